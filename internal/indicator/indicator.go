// Package indicator provides the technical indicators the strategies consume.
// All functions are pure: same bars in, same values out.
package indicator

import (
	"math"

	"github.com/Rajchodisetti/paper-trader/internal/marketdata"
)

// RSI computes the relative strength index over the trailing period bars.
// With fewer than period+1 bars it returns the neutral 50 so short histories
// never look oversold or overbought.
func RSI(bars []marketdata.Bar, period int) float64 {
	if len(bars) < period+1 {
		return 50
	}
	gains, losses := 0.0, 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// EMA returns the exponential moving average seeded with the first close and
// smoothed with k = 2/(period+1). ok is false when the series is shorter
// than period.
func EMA(bars []marketdata.Bar, period int) (float64, bool) {
	if len(bars) < period {
		return 0, false
	}
	k := 2.0 / float64(period+1)
	ema := bars[0].Close
	for i := 1; i < len(bars); i++ {
		ema = bars[i].Close*k + ema*(1-k)
	}
	return ema, true
}

// MACD holds the moving average convergence/divergence trio.
type MACD struct {
	Value     float64
	Signal    float64
	Histogram float64
}

// macdSignalFactor is the smoothing constant for the signal line. The signal
// is Value*0.9, the same single-constant smoothing the upstream system uses
// instead of a 9-period EMA of MACD history.
const macdSignalFactor = 0.9

// ComputeMACD needs at least 26 bars; ok is false below that.
func ComputeMACD(bars []marketdata.Bar) (MACD, bool) {
	if len(bars) < 26 {
		return MACD{}, false
	}
	ema12, _ := EMA(bars, 12)
	ema26, _ := EMA(bars, 26)
	v := ema12 - ema26
	sig := v * macdSignalFactor
	return MACD{Value: v, Signal: sig, Histogram: v - sig}, true
}

// ATR is the mean true range over the trailing period bars, 0 with
// insufficient history.
func ATR(bars []marketdata.Bar, period int) float64 {
	if len(bars) < period+1 {
		return 0
	}
	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		tr := math.Max(bars[i].High-bars[i].Low,
			math.Max(math.Abs(bars[i].High-bars[i-1].Close),
				math.Abs(bars[i].Low-bars[i-1].Close)))
		sum += tr
	}
	return sum / float64(period)
}

// HighestHigh returns the max high over the trailing window bars.
func HighestHigh(bars []marketdata.Bar, window int) float64 {
	if len(bars) == 0 {
		return 0
	}
	if window > len(bars) {
		window = len(bars)
	}
	h := bars[len(bars)-window].High
	for _, b := range bars[len(bars)-window:] {
		if b.High > h {
			h = b.High
		}
	}
	return h
}

// LowestLow returns the min low over the trailing window bars.
func LowestLow(bars []marketdata.Bar, window int) float64 {
	if len(bars) == 0 {
		return 0
	}
	if window > len(bars) {
		window = len(bars)
	}
	l := bars[len(bars)-window].Low
	for _, b := range bars[len(bars)-window:] {
		if b.Low < l {
			l = b.Low
		}
	}
	return l
}
