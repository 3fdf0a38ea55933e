package portfolio

import (
	"time"

	"github.com/Rajchodisetti/paper-trader/internal/strategy"
)

// Position lifecycle states.
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// Exit reasons recorded on close.
const (
	ExitTakeProfit = "take-profit"
	ExitStopLoss   = "stop-loss"
	ExitTime       = "time-exit"
	ExitWindowRoll = "window-roll"
	ExitReconcile  = "reconcile"
)

// Position is one paper trade. Mutated only while OPEN; once CLOSED it is
// immutable. JSON tags match the persisted snapshot document.
type Position struct {
	ID         int64              `json:"id"`
	Symbol     string             `json:"symbol"`
	Strategy   string             `json:"strategy"`
	Direction  strategy.Direction `json:"direction"`
	EntryPrice float64            `json:"entryPrice"`
	Size       float64            `json:"size"`
	Confidence float64            `json:"confidence"`
	EntryTime  time.Time          `json:"entryTime"`
	Status     string             `json:"status"`
	PnL        float64            `json:"pnl"`
	PnLPercent float64            `json:"pnlPercent"`
	ExitPrice  float64            `json:"exitPrice,omitempty"`
	ExitTime   time.Time          `json:"exitTime,omitempty"`
	ExitReason string             `json:"exitReason,omitempty"`
}

// signedReturn is the direction-aware fractional return at price.
func (p *Position) signedReturn(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	r := (price - p.EntryPrice) / p.EntryPrice
	if p.Direction == strategy.Short {
		r = -r
	}
	return r
}

// PnLAt returns the pnl and pnl-percent the position would have at price.
func (p *Position) PnLAt(price float64) (pnl, pnlPct float64) {
	r := p.signedReturn(price)
	pnl = p.Size * r
	pnlPct = r * 100
	return pnl, pnlPct
}

// StrategyStats is the per-strategy win/loss record. Only ever incremented;
// recomputable from the position list.
type StrategyStats struct {
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
	Total  int `json:"total"`
}

// WinRate is wins over total, 0 with no closed trades.
func (s StrategyStats) WinRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Total)
}

// Account is the aggregate money view. Bank moves exactly once per close.
type Account struct {
	Bank              float64   `json:"bank"`
	InitialBank       float64   `json:"initialBank"`
	PnL               float64   `json:"pnl"`
	PnLPercent        float64   `json:"pnlPercent"`
	Wins              int       `json:"wins"`
	Losses            int       `json:"losses"`
	ConsecutiveLosses int       `json:"consecutiveLosses"`
	LastUpdate        time.Time `json:"lastUpdate"`
}
