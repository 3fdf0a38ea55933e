package marketdata

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/Rajchodisetti/paper-trader/internal/observ"
)

const binanceStreamHost = "wss://stream.binance.com:9443/stream?streams="

// PriceStream keeps a last-trade price cache fed by the Binance combined
// trade websocket. It reconnects with jittered backoff and brings the cache
// down gracefully on Close.
type PriceStream struct {
	url string

	mu     sync.RWMutex
	last   map[string]float64
	seenAt map[string]time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

type tradeEvent struct {
	Data struct {
		Symbol string `json:"s"`
		Price  string `json:"p"`
	} `json:"data"`
}

func NewPriceStream(symbols []string) *PriceStream {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = strings.ToLower(s) + "@trade"
	}
	return &PriceStream{
		url:    binanceStreamHost + strings.Join(streams, "/"),
		last:   make(map[string]float64),
		seenAt: make(map[string]time.Time),
		done:   make(chan struct{}),
	}
}

// Start launches the read loop. It returns immediately; the cache fills as
// trades arrive.
func (ps *PriceStream) Start(ctx context.Context) {
	ctx, ps.cancel = context.WithCancel(ctx)
	go ps.run(ctx)
}

func (ps *PriceStream) run(ctx context.Context) {
	defer close(ps.done)
	bo := &backoff.Backoff{Min: time.Second, Max: time.Minute, Jitter: true}
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, ps.url, nil)
		if err != nil {
			d := bo.Duration()
			observ.Log("price_stream_dial_failed", observ.Fields{"error": err.Error(), "retry_in": d.String()})
			select {
			case <-time.After(d):
				continue
			case <-ctx.Done():
				return
			}
		}
		bo.Reset()
		observ.Log("price_stream_connected", observ.Fields{"url": ps.url})
		ps.readPump(ctx, conn)
		conn.Close()
	}
}

// readPump drains one connection until it breaks. A watchdog deadline forces
// a reconnect when the venue goes silent.
func (ps *PriceStream) readPump(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-stop:
				return
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				observ.IncCounter("price_stream_disconnects_total", nil)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var ev tradeEvent
		if err := json.Unmarshal(msg, &ev); err != nil || ev.Data.Symbol == "" {
			continue
		}
		p := parseFloat(ev.Data.Price)
		if p <= 0 {
			continue
		}
		ps.setPrice(ev.Data.Symbol, p)
	}
}

func (ps *PriceStream) setPrice(symbol string, p float64) {
	ps.mu.Lock()
	ps.last[symbol] = p
	ps.seenAt[symbol] = time.Now()
	ps.mu.Unlock()
}

// Price returns the cached last trade and its age, ok=false before the first
// trade for the symbol arrives.
func (ps *PriceStream) Price(symbol string) (float64, time.Duration, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.last[symbol]
	if !ok {
		return 0, 0, false
	}
	return p, time.Since(ps.seenAt[symbol]), true
}

func (ps *PriceStream) Close() error {
	if ps.cancel != nil {
		ps.cancel()
		<-ps.done
	}
	return nil
}

// StreamingFeed serves last prices from the websocket cache when fresh and
// falls back to the REST feed otherwise. Bars always come from REST.
type StreamingFeed struct {
	rest     Feed
	stream   *PriceStream
	staleMax time.Duration
}

func NewStreamingFeed(rest Feed, stream *PriceStream, staleMax time.Duration) *StreamingFeed {
	if staleMax <= 0 {
		staleMax = 30 * time.Second
	}
	return &StreamingFeed{rest: rest, stream: stream, staleMax: staleMax}
}

func (f *StreamingFeed) Bars(ctx context.Context, symbol, interval string, limit int) ([]Bar, error) {
	return f.rest.Bars(ctx, symbol, interval, limit)
}

func (f *StreamingFeed) LastPrice(ctx context.Context, symbol string) (float64, error) {
	if p, age, ok := f.stream.Price(symbol); ok && age <= f.staleMax {
		return p, nil
	}
	return f.rest.LastPrice(ctx, symbol)
}

func (f *StreamingFeed) Close() error {
	err := f.stream.Close()
	if rerr := f.rest.Close(); err == nil {
		err = rerr
	}
	return err
}
