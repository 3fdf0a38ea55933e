package marketdata

import (
	"context"
	"sync"
	"time"
)

// MockFeed is a deterministic in-memory feed for tests and -sim runs.
// Scripted bars and prices are returned as-is; SetError forces the next call
// for a symbol to fail with the given feed error.
type MockFeed struct {
	mu     sync.Mutex
	bars   map[string][]Bar
	prices map[string]float64
	errs   map[string]*FeedError
	closed bool
}

func NewMockFeed() *MockFeed {
	return &MockFeed{
		bars:   make(map[string][]Bar),
		prices: make(map[string]float64),
		errs:   make(map[string]*FeedError),
	}
}

func (m *MockFeed) SetBars(symbol string, bars []Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[symbol] = bars
}

func (m *MockFeed) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
}

// SetError makes the next Bars/LastPrice call for symbol return err once.
func (m *MockFeed) SetError(symbol string, err *FeedError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[symbol] = err
}

func (m *MockFeed) takeErr(symbol string) *FeedError {
	if e, ok := m.errs[symbol]; ok {
		delete(m.errs, symbol)
		return e
	}
	return nil
}

func (m *MockFeed) Bars(_ context.Context, symbol, _ string, limit int) ([]Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.takeErr(symbol); e != nil {
		return nil, e
	}
	bars, ok := m.bars[symbol]
	if !ok || len(bars) == 0 {
		return nil, NewNoDataError(symbol, "no scripted bars")
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	out := make([]Bar, len(bars))
	copy(out, bars)
	return out, nil
}

func (m *MockFeed) LastPrice(_ context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.takeErr(symbol); e != nil {
		return 0, e
	}
	p, ok := m.prices[symbol]
	if !ok {
		if bars := m.bars[symbol]; len(bars) > 0 {
			return bars[len(bars)-1].Close, nil
		}
		return 0, NewNoDataError(symbol, "no scripted price")
	}
	return p, nil
}

func (m *MockFeed) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GenBars builds a synthetic candle series walking linearly from start to end
// close prices, useful for steering indicator values in tests.
func GenBars(n int, start, end float64, step time.Duration, at time.Time) []Bar {
	if n <= 0 {
		return nil
	}
	bars := make([]Bar, n)
	for i := range bars {
		frac := 0.0
		if n > 1 {
			frac = float64(i) / float64(n-1)
		}
		c := start + (end-start)*frac
		bars[i] = Bar{
			Time:   at.Add(time.Duration(i-n+1) * step),
			Open:   c,
			High:   c * 1.001,
			Low:    c * 0.999,
			Close:  c,
			Volume: 100,
		}
	}
	return bars
}
