package marketdata

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"golang.org/x/time/rate"

	"github.com/Rajchodisetti/paper-trader/internal/observ"
)

// BinanceFeed reads candles and ticker prices from the Binance spot REST API.
// Paper trading only needs public market data, so no API keys are required.
type BinanceFeed struct {
	client  *binance.Client
	limiter *rate.Limiter
	timeout time.Duration
}

type BinanceConfig struct {
	RateLimitPerMinute int
	TimeoutSec         int
}

func NewBinanceFeed(cfg BinanceConfig) *BinanceFeed {
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 60
	}
	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = 10
	}
	return &BinanceFeed{
		client:  binance.NewClient("", ""),
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMinute)/60.0), 5),
		timeout: time.Duration(cfg.TimeoutSec) * time.Second,
	}
}

func (f *BinanceFeed) Bars(ctx context.Context, symbol, interval string, limit int) ([]Bar, error) {
	if err := f.wait(ctx, symbol); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	klines, err := f.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		observ.IncCounter("feed_errors_total", map[string]string{"op": "bars", "symbol": symbol})
		return nil, classifyAPIError(symbol, "klines fetch failed", err)
	}
	if len(klines) == 0 {
		return nil, NewNoDataError(symbol, "no candles returned")
	}

	bars := make([]Bar, len(klines))
	for i, k := range klines {
		bars[i] = Bar{
			Time:   time.UnixMilli(k.OpenTime),
			Open:   parseFloat(k.Open),
			High:   parseFloat(k.High),
			Low:    parseFloat(k.Low),
			Close:  parseFloat(k.Close),
			Volume: parseFloat(k.Volume),
		}
	}
	return bars, nil
}

func (f *BinanceFeed) LastPrice(ctx context.Context, symbol string) (float64, error) {
	if err := f.wait(ctx, symbol); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	prices, err := f.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		observ.IncCounter("feed_errors_total", map[string]string{"op": "price", "symbol": symbol})
		return 0, classifyAPIError(symbol, "price fetch failed", err)
	}
	if len(prices) == 0 {
		return 0, NewNoDataError(symbol, "no ticker price")
	}
	p := parseFloat(prices[0].Price)
	if p <= 0 {
		return 0, NewTransientError(symbol, "non-positive price", nil)
	}
	return p, nil
}

func (f *BinanceFeed) Close() error { return nil }

// classifyAPIError maps Binance error codes onto the feed error taxonomy.
// An unknown symbol or rejected credentials will never succeed on retry.
func classifyAPIError(symbol, msg string, err error) *FeedError {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1121, -2014, -2015:
			return NewFatalError(symbol, msg, err)
		}
	}
	return NewTransientError(symbol, msg, err)
}

func (f *BinanceFeed) wait(ctx context.Context, symbol string) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return NewTransientError(symbol, "rate limiter interrupted", err)
	}
	return nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
