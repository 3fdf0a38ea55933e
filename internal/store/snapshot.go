// Package store persists account state to a local JSON file and an optional
// remote key-value service. The persisted document doubles as the dashboard
// feed, so field names follow the published schema.
package store

import (
	"time"

	"github.com/Rajchodisetti/paper-trader/internal/portfolio"
)

// Snapshot is the whole persisted state. The position list is authoritative;
// every other numeric field is a derived cache recomputed on load.
type Snapshot struct {
	Bank              float64                            `json:"bank"`
	InitialBank       float64                            `json:"initialBank"`
	PnL               float64                            `json:"pnl"`
	PnLPercent        float64                            `json:"pnlPercent"`
	Trades            int                                `json:"trades"`
	Wins              int                                `json:"wins"`
	Losses            int                                `json:"losses"`
	WinRate           float64                            `json:"winRate"`
	OpenTrades        int                                `json:"openTrades"`
	ConsecutiveLosses int                                `json:"consecutiveLosses"`
	BestStrategy      string                             `json:"bestStrategy"`
	StrategyStats     map[string]portfolio.StrategyStats `json:"strategyStats"`
	Stakes            map[string]float64                 `json:"stakes,omitempty"`
	LastUpdate        time.Time                          `json:"lastUpdate"`
	TradesList        []*portfolio.Position              `json:"tradesList"`
}

// Valid reports whether the document is structurally usable. A zero or
// negative initial bank marks a default-constructed or garbage payload.
func (s Snapshot) Valid() bool {
	return s.InitialBank > 0
}

// Capture builds a snapshot from the live book and stake table.
func Capture(book *portfolio.Book, stakes map[string]float64, now time.Time) Snapshot {
	acct := book.Account()
	positions := book.Positions()

	open := 0
	for _, p := range positions {
		if p.Status == portfolio.StatusOpen {
			open++
		}
	}
	closed := acct.Wins + acct.Losses
	winRate := 0.0
	if closed > 0 {
		winRate = float64(acct.Wins) / float64(closed)
	}

	return Snapshot{
		Bank:              acct.Bank,
		InitialBank:       acct.InitialBank,
		PnL:               acct.PnL,
		PnLPercent:        acct.PnLPercent,
		Trades:            closed,
		Wins:              acct.Wins,
		Losses:            acct.Losses,
		WinRate:           winRate,
		OpenTrades:        open,
		ConsecutiveLosses: acct.ConsecutiveLosses,
		BestStrategy:      book.BestStrategy(),
		StrategyStats:     book.Stats(),
		Stakes:            stakes,
		LastUpdate:        now.UTC(),
		TradesList:        positions,
	}
}

// Apply restores a snapshot into the book and reconciles, making the
// position list the source of truth for every aggregate.
func Apply(s Snapshot, book *portfolio.Book, now time.Time) {
	book.Restore(portfolio.Account{
		Bank:              s.Bank,
		InitialBank:       s.InitialBank,
		PnL:               s.PnL,
		PnLPercent:        s.PnLPercent,
		Wins:              s.Wins,
		Losses:            s.Losses,
		ConsecutiveLosses: s.ConsecutiveLosses,
		LastUpdate:        s.LastUpdate,
	}, s.TradesList)
	book.Reconcile(now)
}
