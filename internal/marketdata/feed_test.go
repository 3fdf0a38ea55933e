package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockFeed_BarsTrailingLimit(t *testing.T) {
	feed := NewMockFeed()
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	feed.SetBars("BTCUSDT", GenBars(50, 100, 150, time.Hour, at))

	bars, err := feed.Bars(context.Background(), "BTCUSDT", "1h", 10)
	require.NoError(t, err)
	require.Len(t, bars, 10)
	assert.Equal(t, 150.0, bars[9].Close, "limit must keep the newest bars")
	assert.Equal(t, at, bars[9].Time)
}

func TestMockFeed_LastPriceFallsBackToClose(t *testing.T) {
	feed := NewMockFeed()
	feed.SetBars("ETHUSDT", GenBars(5, 100, 120, time.Hour, time.Now()))

	p, err := feed.LastPrice(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 120.0, p)

	feed.SetPrice("ETHUSDT", 121.5)
	p, err = feed.LastPrice(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 121.5, p)
}

func TestMockFeed_ErrorIsOneShot(t *testing.T) {
	feed := NewMockFeed()
	feed.SetBars("BTCUSDT", GenBars(5, 100, 100, time.Hour, time.Now()))
	feed.SetError("BTCUSDT", NewTransientError("BTCUSDT", "timeout", nil))

	_, err := feed.Bars(context.Background(), "BTCUSDT", "1h", 5)
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	_, err = feed.Bars(context.Background(), "BTCUSDT", "1h", 5)
	assert.NoError(t, err, "scripted error fires once")
}

func TestFeedErrorTaxonomy(t *testing.T) {
	cause := errors.New("connection reset")
	te := NewTransientError("BTCUSDT", "fetch failed", cause)
	assert.True(t, IsTransient(te))
	assert.ErrorIs(t, te, cause)
	assert.Contains(t, te.Error(), "BTCUSDT")

	assert.True(t, IsTransient(NewNoDataError("NEWUSDT", "not listed yet")))
	assert.False(t, IsTransient(NewFatalError("BTCUSDT", "bad credentials", nil)))
	assert.False(t, IsTransient(errors.New("plain error")))
}

func TestClassifyAPIError(t *testing.T) {
	invalid := &common.APIError{Code: -1121, Message: "Invalid symbol."}
	fe := classifyAPIError("BTCUSD", "klines fetch failed", invalid)
	assert.Equal(t, ErrFatal, fe.Kind, "unknown symbol must not be retried")
	assert.ErrorIs(t, fe, invalid)

	banned := &common.APIError{Code: -1003, Message: "Too many requests."}
	assert.Equal(t, ErrTransient, classifyAPIError("BTCUSDT", "klines fetch failed", banned).Kind)
	assert.Equal(t, ErrTransient, classifyAPIError("BTCUSDT", "klines fetch failed", errors.New("timeout")).Kind)
}

func TestStreamingFeed_PrefersFreshStreamPrice(t *testing.T) {
	rest := NewMockFeed()
	rest.SetPrice("BTCUSDT", 100)

	stream := NewPriceStream(nil)
	sf := NewStreamingFeed(rest, stream, time.Minute)

	// No cached price yet: REST answers.
	p, err := sf.LastPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 100.0, p)

	stream.setPrice("BTCUSDT", 101.5)
	p, err = sf.LastPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 101.5, p, "fresh cache entry wins over REST")
}

func TestGenBars_Deterministic(t *testing.T) {
	at := time.Now()
	a := GenBars(20, 100, 200, time.Hour, at)
	b := GenBars(20, 100, 200, time.Hour, at)
	assert.Equal(t, a, b)
	assert.Equal(t, 100.0, a[0].Close)
	assert.Equal(t, 200.0, a[19].Close)
	assert.True(t, a[0].Time.Before(a[1].Time))
}
