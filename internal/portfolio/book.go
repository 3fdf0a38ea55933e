// Package portfolio owns the position lifecycle: opening, mark-to-market,
// exit evaluation, closing, and the derived account aggregates.
package portfolio

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Rajchodisetti/paper-trader/internal/observ"
	"github.com/Rajchodisetti/paper-trader/internal/strategy"
)

// ExitRules are the fixed exit thresholds applied to every open position.
type ExitRules struct {
	TakeProfitPct float64
	StopLossPct   float64
	MaxHold       time.Duration
}

// Rules configures book behavior.
type Rules struct {
	Exits ExitRules
	// PerStrategyKeys widens the one-open-position key from symbol to
	// (symbol, strategy).
	PerStrategyKeys bool
	// MinSample is the closed-trade floor before a strategy is eligible
	// for best-strategy ranking.
	MinSample int
}

// Book is the single source of truth for positions and account state.
// All mutation happens on the cycle goroutine; the mutex protects the
// concurrent snapshot read path only.
type Book struct {
	mu    sync.RWMutex
	rules Rules

	acct      Account
	positions []*Position
	stats     map[string]*StrategyStats
	nextID    int64
}

// NewBook starts a fresh book with the given bank.
func NewBook(initialBank float64, rules Rules) *Book {
	if rules.MinSample <= 0 {
		rules.MinSample = 3
	}
	return &Book{
		rules: rules,
		acct: Account{
			Bank:        initialBank,
			InitialBank: initialBank,
			LastUpdate:  time.Now().UTC(),
		},
		stats:  map[string]*StrategyStats{},
		nextID: 1,
	}
}

func (b *Book) key(symbol, strat string) string {
	if b.rules.PerStrategyKeys {
		return symbol + "|" + strat
	}
	return symbol
}

// openFor returns the OPEN position for the key, if any.
func (b *Book) openFor(key string) *Position {
	for _, p := range b.positions {
		if p.Status == StatusOpen && b.key(p.Symbol, p.Strategy) == key {
			return p
		}
	}
	return nil
}

// Open records a new OPEN position for the signal. It fails if one already
// exists for the position key.
func (b *Book) Open(sig *strategy.Signal, price, size float64, now time.Time) (*Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := b.key(sig.Symbol, sig.Strategy)
	if cur := b.openFor(key); cur != nil {
		return nil, fmt.Errorf("open position exists for %s (id=%d)", key, cur.ID)
	}

	p := &Position{
		ID:         b.nextID,
		Symbol:     sig.Symbol,
		Strategy:   sig.Strategy,
		Direction:  sig.Direction,
		EntryPrice: price,
		Size:       size,
		Confidence: sig.Confidence,
		EntryTime:  now.UTC(),
		Status:     StatusOpen,
	}
	b.nextID++
	b.positions = append(b.positions, p)
	b.acct.LastUpdate = now.UTC()

	observ.IncCounter("positions_opened_total", map[string]string{
		"symbol": p.Symbol, "strategy": p.Strategy,
	})
	return p, nil
}

// MarkToMarket refreshes the live pnl of every OPEN position for symbol.
func (b *Book) MarkToMarket(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.positions {
		if p.Status != StatusOpen || p.Symbol != symbol {
			continue
		}
		p.PnL, p.PnLPercent = p.PnLAt(price)
	}
}

// CheckExits returns the exit reason for p at price, or "" to hold. The
// checks run in fixed priority: take-profit, stop-loss, time, window roll.
func (b *Book) CheckExits(p *Position, price float64, now time.Time, windowRoll bool) string {
	_, pnlPct := p.PnLAt(price)
	switch {
	case pnlPct >= b.rules.Exits.TakeProfitPct:
		return ExitTakeProfit
	case pnlPct <= -b.rules.Exits.StopLossPct:
		return ExitStopLoss
	case now.Sub(p.EntryTime) > b.rules.Exits.MaxHold:
		return ExitTime
	case windowRoll:
		return ExitWindowRoll
	}
	return ""
}

// Close settles an OPEN position at price and folds the result into the
// account and strategy stats.
func (b *Book) Close(p *Position, price float64, reason string, now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked(p, price, reason, now)
}

func (b *Book) closeLocked(p *Position, price float64, reason string, now time.Time) error {
	if p.Status != StatusOpen {
		return fmt.Errorf("position %d already %s", p.ID, p.Status)
	}
	p.PnL, p.PnLPercent = p.PnLAt(price)
	p.Status = StatusClosed
	p.ExitPrice = price
	p.ExitTime = now.UTC()
	p.ExitReason = reason

	b.acct.Bank += p.PnL
	st := b.statsFor(p.Strategy)
	st.Total++
	if p.PnL > 0 {
		st.Wins++
		b.acct.Wins++
		b.acct.ConsecutiveLosses = 0
	} else {
		st.Losses++
		b.acct.Losses++
		b.acct.ConsecutiveLosses++
	}
	b.refreshAggregatesLocked(now)

	observ.IncCounter("positions_closed_total", map[string]string{
		"symbol": p.Symbol, "strategy": p.Strategy, "reason": reason,
	})
	return nil
}

func (b *Book) statsFor(strat string) *StrategyStats {
	st, ok := b.stats[strat]
	if !ok {
		st = &StrategyStats{}
		b.stats[strat] = st
	}
	return st
}

func (b *Book) refreshAggregatesLocked(now time.Time) {
	b.acct.PnL = b.acct.Bank - b.acct.InitialBank
	if b.acct.InitialBank > 0 {
		b.acct.PnLPercent = b.acct.PnL / b.acct.InitialBank * 100
	}
	b.acct.LastUpdate = now.UTC()
	observ.SetGauge("bank_usd", b.acct.Bank, nil)
	observ.SetGauge("open_positions", float64(len(b.openLocked())), nil)
}

func (b *Book) openLocked() []*Position {
	var open []*Position
	for _, p := range b.positions {
		if p.Status == StatusOpen {
			open = append(open, p)
		}
	}
	return open
}

// OpenPositions returns the live OPEN positions in open order. The pointers
// are the book's own, for Close to act on; only the cycle goroutine may use
// them.
func (b *Book) OpenPositions() []*Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*Position(nil), b.openLocked()...)
}

// Positions returns value copies of every position, open and closed, in
// open order. The copies are taken under the lock so callers can read or
// serialize them while the cycle keeps mutating the originals.
func (b *Book) Positions() []*Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Position, len(b.positions))
	for i, p := range b.positions {
		cp := *p
		out[i] = &cp
	}
	return out
}

// Account returns a copy of the current aggregates.
func (b *Book) Account() Account {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.acct
}

// Stats returns a copy of the per-strategy records.
func (b *Book) Stats() map[string]StrategyStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]StrategyStats, len(b.stats))
	for k, v := range b.stats {
		out[k] = *v
	}
	return out
}

// BestStrategy is the highest win rate among strategies with at least
// MinSample closed trades; "" when no strategy qualifies. Name order breaks
// exact win-rate ties deterministically.
func (b *Book) BestStrategy() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bestLocked()
}

func (b *Book) bestLocked() string {
	names := make([]string, 0, len(b.stats))
	for name, st := range b.stats {
		if st.Total >= b.rules.MinSample {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	best, bestRate := "", -1.0
	for _, name := range names {
		if r := b.stats[name].WinRate(); r > bestRate {
			best, bestRate = name, r
		}
	}
	return best
}

// Restore replaces the book contents with persisted state. Callers run
// Reconcile afterwards; the position list is authoritative.
func (b *Book) Restore(acct Account, positions []*Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acct = acct
	b.positions = positions
	b.stats = map[string]*StrategyStats{}
	b.nextID = 1
	for _, p := range positions {
		if p.ID >= b.nextID {
			b.nextID = p.ID + 1
		}
	}
}

// Reconcile recomputes every derived aggregate from the position list and
// resolves duplicate OPEN positions by keeping the earliest-opened one and
// closing the extras at their entry price. Divergence is logged, not fatal.
func (b *Book) Reconcile(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Duplicate OPEN resolution, earliest entry wins.
	earliest := map[string]*Position{}
	for _, p := range b.positions {
		if p.Status != StatusOpen {
			continue
		}
		k := b.key(p.Symbol, p.Strategy)
		cur, ok := earliest[k]
		if !ok || p.EntryTime.Before(cur.EntryTime) {
			earliest[k] = p
		}
	}
	for _, p := range b.positions {
		if p.Status != StatusOpen {
			continue
		}
		k := b.key(p.Symbol, p.Strategy)
		if earliest[k] == p {
			continue
		}
		observ.Log("reconcile_duplicate_open", observ.Fields{
			"symbol": p.Symbol, "strategy": p.Strategy, "id": p.ID,
			"kept_id": earliest[k].ID,
		})
		p.Status = StatusClosed
		p.ExitPrice = p.EntryPrice
		p.PnL, p.PnLPercent = 0, 0
		p.ExitTime = now.UTC()
		p.ExitReason = ExitReconcile
	}

	// Aggregates from scratch; stored values are a cache.
	prev := b.acct
	acct := Account{InitialBank: b.acct.InitialBank, Bank: b.acct.InitialBank}
	stats := map[string]*StrategyStats{}
	closed := make([]*Position, 0, len(b.positions))
	for _, p := range b.positions {
		if p.Status == StatusClosed {
			closed = append(closed, p)
		}
	}
	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].ExitTime.Before(closed[j].ExitTime)
	})
	for _, p := range closed {
		acct.Bank += p.PnL
		st, ok := stats[p.Strategy]
		if !ok {
			st = &StrategyStats{}
			stats[p.Strategy] = st
		}
		st.Total++
		if p.PnL > 0 {
			st.Wins++
			acct.Wins++
			acct.ConsecutiveLosses = 0
		} else {
			st.Losses++
			acct.Losses++
			acct.ConsecutiveLosses++
		}
	}
	if acct.Bank != prev.Bank || acct.Wins != prev.Wins || acct.Losses != prev.Losses {
		observ.Log("reconcile_aggregates", observ.Fields{
			"bank_before": prev.Bank, "bank_after": acct.Bank,
			"wins_before": prev.Wins, "wins_after": acct.Wins,
			"losses_before": prev.Losses, "losses_after": acct.Losses,
		})
		observ.IncCounter("reconcile_corrections_total", nil)
	}
	b.acct = acct
	b.stats = stats
	b.refreshAggregatesLocked(now)
}
