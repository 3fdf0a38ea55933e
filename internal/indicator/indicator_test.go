package indicator

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/Rajchodisetti/paper-trader/internal/marketdata"
)

func closes(vals ...float64) []marketdata.Bar {
	bars := make([]marketdata.Bar, len(vals))
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range vals {
		bars[i] = marketdata.Bar{
			Time: t0.Add(time.Duration(i) * time.Hour),
			Open: v, High: v + 1, Low: v - 1, Close: v, Volume: 10,
		}
	}
	return bars
}

func TestRSI_NeutralOnShortSeries(t *testing.T) {
	bars := closes(100, 101, 102)
	if got := RSI(bars, 14); got != 50 {
		t.Fatalf("want neutral 50 below period+1 bars, got %v", got)
	}
}

func TestRSI_AllGainsIs100(t *testing.T) {
	vals := make([]float64, 20)
	for i := range vals {
		vals[i] = 100 + float64(i)
	}
	if got := RSI(closes(vals...), 14); got != 100 {
		t.Fatalf("monotonic gains should give 100, got %v", got)
	}
}

func TestRSI_AlwaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		n := rng.Intn(60)
		vals := make([]float64, n)
		p := 100.0
		for i := range vals {
			p += rng.Float64()*4 - 2
			vals[i] = p
		}
		got := RSI(closes(vals...), 14)
		if got < 0 || got > 100 {
			t.Fatalf("RSI out of [0,100]: %v (n=%d)", got, n)
		}
	}
}

func TestEMA_UndefinedBelowPeriod(t *testing.T) {
	bars := closes(1, 2, 3, 4, 5)
	if _, ok := EMA(bars, 6); ok {
		t.Fatal("EMA should be undefined with fewer bars than period")
	}
	if v, ok := EMA(bars, 5); !ok || v <= 0 {
		t.Fatalf("EMA should be defined at exactly period bars, got %v ok=%v", v, ok)
	}
}

func TestEMA_ConstantSeries(t *testing.T) {
	vals := make([]float64, 30)
	for i := range vals {
		vals[i] = 42
	}
	v, ok := EMA(closes(vals...), 12)
	if !ok || math.Abs(v-42) > 1e-9 {
		t.Fatalf("EMA of constant series should be the constant, got %v", v)
	}
}

func TestMACD_UndefinedBelow26(t *testing.T) {
	if _, ok := ComputeMACD(closes(make([]float64, 25)...)); ok {
		t.Fatal("MACD must be undefined below 26 bars")
	}
	vals := make([]float64, 26)
	for i := range vals {
		vals[i] = 100
	}
	m, ok := ComputeMACD(closes(vals...))
	if !ok {
		t.Fatal("MACD must be defined at 26 bars")
	}
	if math.Abs(m.Histogram-(m.Value-m.Signal)) > 1e-12 {
		t.Fatalf("histogram must equal value-signal: %+v", m)
	}
}

func TestMACD_SignOnTrend(t *testing.T) {
	up := make([]float64, 40)
	for i := range up {
		up[i] = 100 + float64(i)
	}
	m, _ := ComputeMACD(closes(up...))
	if m.Value <= 0 || m.Histogram <= 0 {
		t.Fatalf("uptrend should give positive MACD, got %+v", m)
	}
	down := make([]float64, 40)
	for i := range down {
		down[i] = 200 - float64(i)
	}
	m, _ = ComputeMACD(closes(down...))
	if m.Value >= 0 || m.Histogram >= 0 {
		t.Fatalf("downtrend should give negative MACD, got %+v", m)
	}
}

func TestATR_InsufficientHistory(t *testing.T) {
	if got := ATR(closes(1, 2, 3), 14); got != 0 {
		t.Fatalf("ATR should be 0 with insufficient history, got %v", got)
	}
}

func TestATR_FlatBars(t *testing.T) {
	vals := make([]float64, 20)
	for i := range vals {
		vals[i] = 100
	}
	// closes() builds high=close+1, low=close-1 so TR is 2 everywhere.
	if got := ATR(closes(vals...), 14); math.Abs(got-2) > 1e-9 {
		t.Fatalf("want ATR 2, got %v", got)
	}
}

func TestRollingRange(t *testing.T) {
	bars := closes(10, 50, 20, 30, 40)
	if hh := HighestHigh(bars, 3); hh != 41 {
		t.Fatalf("want trailing-3 high 41, got %v", hh)
	}
	if ll := LowestLow(bars, 3); ll != 19 {
		t.Fatalf("want trailing-3 low 19, got %v", ll)
	}
	// window longer than the series clamps to the full series
	if hh := HighestHigh(bars, 99); hh != 51 {
		t.Fatalf("want overall high 51, got %v", hh)
	}
}

func TestDeterminism(t *testing.T) {
	bars := marketdata.GenBars(60, 100, 130, time.Minute, time.Now())
	a1, a2 := RSI(bars, 14), RSI(bars, 14)
	if a1 != a2 {
		t.Fatalf("RSI not deterministic: %v vs %v", a1, a2)
	}
	m1, _ := ComputeMACD(bars)
	m2, _ := ComputeMACD(bars)
	if m1 != m2 {
		t.Fatalf("MACD not deterministic: %+v vs %+v", m1, m2)
	}
}
