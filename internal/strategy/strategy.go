// Package strategy turns indicator snapshots into trade signals. Strategies
// are independent; the engine picks the single highest-confidence signal per
// symbol and cycle.
package strategy

import (
	"fmt"
	"math"

	"github.com/Rajchodisetti/paper-trader/internal/indicator"
	"github.com/Rajchodisetti/paper-trader/internal/marketdata"
)

// Direction of a candidate trade.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Signal is one strategy's recommendation for a symbol in one cycle. It is
// ephemeral and never persisted.
type Signal struct {
	Strategy   string
	Symbol     string
	Direction  Direction
	Confidence float64 // [0,1]
	Rationale  string
}

// Snapshot carries the per-symbol indicator values one cycle works from.
type Snapshot struct {
	Symbol string
	Price  float64
	BarN   int

	RSI    float64
	MACD   indicator.MACD
	MACDOk bool
	EMA9   float64
	EMA21  float64
	EMAsOk bool
	ATR    float64
	High20 float64
	Low20  float64
}

// minBars is the history floor below which no strategy is evaluated; thin
// series make breakout and range levels meaningless.
const minBars = 30

// A Strategy inspects a snapshot and returns a signal or nil.
type Strategy interface {
	Name() string
	Evaluate(s Snapshot) *Signal
}

// TakeSnapshot computes the indicator set for one symbol from its bars.
func TakeSnapshot(symbol string, bars []marketdata.Bar, price float64) Snapshot {
	snap := Snapshot{
		Symbol: symbol,
		Price:  price,
		BarN:   len(bars),
		RSI:    indicator.RSI(bars, 14),
		ATR:    indicator.ATR(bars, 14),
		High20: indicator.HighestHigh(bars, 20),
		Low20:  indicator.LowestLow(bars, 20),
	}
	snap.MACD, snap.MACDOk = indicator.ComputeMACD(bars)
	ema9, ok9 := indicator.EMA(bars, 9)
	ema21, ok21 := indicator.EMA(bars, 21)
	snap.EMA9, snap.EMA21, snap.EMAsOk = ema9, ema21, ok9 && ok21
	return snap
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// rsiMomentum fires on RSI extremes.
type rsiMomentum struct{}

func (rsiMomentum) Name() string { return "rsi-momentum" }

func (rsiMomentum) Evaluate(s Snapshot) *Signal {
	if s.RSI < 30 {
		return &Signal{
			Strategy: "rsi-momentum", Symbol: s.Symbol, Direction: Long,
			Confidence: clamp01((30 - s.RSI) / 30),
			Rationale:  fmt.Sprintf("RSI oversold at %.2f", s.RSI),
		}
	}
	if s.RSI > 70 {
		return &Signal{
			Strategy: "rsi-momentum", Symbol: s.Symbol, Direction: Short,
			Confidence: clamp01((s.RSI - 30) / 40),
			Rationale:  fmt.Sprintf("RSI overbought at %.2f", s.RSI),
		}
	}
	return nil
}

// macdCross follows the histogram sign.
type macdCross struct{}

func (macdCross) Name() string { return "macd-cross" }

func (macdCross) Evaluate(s Snapshot) *Signal {
	if !s.MACDOk {
		return nil
	}
	conf := clamp01(math.Abs(s.MACD.Histogram) / 10)
	if conf == 0 {
		return nil
	}
	if s.MACD.Histogram > 0 {
		return &Signal{
			Strategy: "macd-cross", Symbol: s.Symbol, Direction: Long,
			Confidence: conf, Rationale: "MACD bullish crossover",
		}
	}
	return &Signal{
		Strategy: "macd-cross", Symbol: s.Symbol, Direction: Short,
		Confidence: conf, Rationale: "MACD bearish crossover",
	}
}

// emaTrend compares the fast and slow EMA with a 2% separation band.
type emaTrend struct{}

func (emaTrend) Name() string { return "ema-trend" }

func (emaTrend) Evaluate(s Snapshot) *Signal {
	if !s.EMAsOk {
		return nil
	}
	if s.EMA9 > s.EMA21*1.02 {
		return &Signal{
			Strategy: "ema-trend", Symbol: s.Symbol, Direction: Long,
			Confidence: 0.7, Rationale: "EMA bullish trend (9 > 21)",
		}
	}
	if s.EMA9 < s.EMA21*0.98 {
		return &Signal{
			Strategy: "ema-trend", Symbol: s.Symbol, Direction: Short,
			Confidence: 0.7, Rationale: "EMA bearish trend (9 < 21)",
		}
	}
	return nil
}

// breakout fires when price clears the 20-bar range by half an ATR.
type breakout struct{}

func (breakout) Name() string { return "breakout" }

func (breakout) Evaluate(s Snapshot) *Signal {
	if s.Price > s.High20+s.ATR*0.5 {
		return &Signal{
			Strategy: "breakout", Symbol: s.Symbol, Direction: Long,
			Confidence: 0.75, Rationale: "bullish breakout above 20-bar high",
		}
	}
	if s.Price < s.Low20-s.ATR*0.5 {
		return &Signal{
			Strategy: "breakout", Symbol: s.Symbol, Direction: Short,
			Confidence: 0.75, Rationale: "bearish breakdown below 20-bar low",
		}
	}
	return nil
}

// supportResistance mean-reverts near the ATR-buffered range edges.
type supportResistance struct{}

func (supportResistance) Name() string { return "support-resistance" }

func (supportResistance) Evaluate(s Snapshot) *Signal {
	support := s.Low20 + s.ATR*0.5
	resistance := s.High20 - s.ATR*0.5
	if s.Price < support+s.ATR {
		return &Signal{
			Strategy: "support-resistance", Symbol: s.Symbol, Direction: Long,
			Confidence: 0.65, Rationale: "price near support",
		}
	}
	if s.Price > resistance-s.ATR {
		return &Signal{
			Strategy: "support-resistance", Symbol: s.Symbol, Direction: Short,
			Confidence: 0.65, Rationale: "price near resistance",
		}
	}
	return nil
}

// Engine evaluates all registered strategies for a symbol. Registration
// order is the tie-break order.
type Engine struct {
	strategies []Strategy
}

// NewEngine registers the default five strategies in their fixed order.
func NewEngine() *Engine {
	return &Engine{strategies: []Strategy{
		rsiMomentum{},
		macdCross{},
		emaTrend{},
		breakout{},
		supportResistance{},
	}}
}

// Names lists registered strategies in declaration order.
func (e *Engine) Names() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

// Evaluate runs every strategy and returns the highest-confidence signal,
// or nil when none fires. A strictly-greater comparison makes the
// first-registered strategy win ties.
func (e *Engine) Evaluate(symbol string, bars []marketdata.Bar, price float64) *Signal {
	if len(bars) < minBars || price <= 0 {
		return nil
	}
	snap := TakeSnapshot(symbol, bars, price)

	var best *Signal
	for _, st := range e.strategies {
		sig := st.Evaluate(snap)
		if sig == nil {
			continue
		}
		sig.Confidence = clamp01(sig.Confidence)
		if best == nil || sig.Confidence > best.Confidence {
			best = sig
		}
	}
	return best
}
