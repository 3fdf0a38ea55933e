package marketdata

import (
	"context"
	"fmt"
	"time"
)

// Bar is one OHLCV candle. Bars are immutable once fetched; the engine keeps
// a bounded trailing window per symbol.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Feed supplies recent candles and the current last-trade price for a symbol.
// Implementations must return a *FeedError so callers can distinguish
// skip-this-cycle conditions from fatal ones.
type Feed interface {
	Bars(ctx context.Context, symbol, interval string, limit int) ([]Bar, error)
	LastPrice(ctx context.Context, symbol string) (float64, error)
	Close() error
}

// Error kinds. Transient errors mean "retry next cycle with last-known data",
// no-data means the venue has nothing yet for the symbol, fatal means the
// feed is misconfigured and the process should not keep polling.
const (
	ErrTransient = "transient"
	ErrNoData    = "no_data"
	ErrFatal     = "fatal"
)

type FeedError struct {
	Kind   string
	Symbol string
	Msg    string
	Cause  error
}

func (e *FeedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error for %s: %s (%v)", e.Kind, e.Symbol, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s error for %s: %s", e.Kind, e.Symbol, e.Msg)
}

func (e *FeedError) Unwrap() error { return e.Cause }

func NewTransientError(symbol, msg string, cause error) *FeedError {
	return &FeedError{Kind: ErrTransient, Symbol: symbol, Msg: msg, Cause: cause}
}

func NewNoDataError(symbol, msg string) *FeedError {
	return &FeedError{Kind: ErrNoData, Symbol: symbol, Msg: msg}
}

func NewFatalError(symbol, msg string, cause error) *FeedError {
	return &FeedError{Kind: ErrFatal, Symbol: symbol, Msg: msg, Cause: cause}
}

// IsTransient reports whether err is a feed error safe to skip for one cycle.
func IsTransient(err error) bool {
	fe, ok := err.(*FeedError)
	return ok && (fe.Kind == ErrTransient || fe.Kind == ErrNoData)
}
