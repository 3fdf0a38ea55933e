// Package engine runs one decision cycle: fetch market data, manage open
// positions, evaluate signals, and persist the result. One Cycle instance
// is driven by the scheduler on a single goroutine.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Rajchodisetti/paper-trader/internal/alerts"
	"github.com/Rajchodisetti/paper-trader/internal/marketdata"
	"github.com/Rajchodisetti/paper-trader/internal/observ"
	"github.com/Rajchodisetti/paper-trader/internal/portfolio"
	"github.com/Rajchodisetti/paper-trader/internal/risk"
	"github.com/Rajchodisetti/paper-trader/internal/sizing"
	"github.com/Rajchodisetti/paper-trader/internal/store"
	"github.com/Rajchodisetti/paper-trader/internal/strategy"
)

// Deps carries everything one cycle needs. Slack and Remote may be nil.
type Deps struct {
	Feed     marketdata.Feed
	Signals  *strategy.Engine
	Governor *risk.Governor
	Book     *portfolio.Book
	Sizer    *sizing.Controller
	Local    *store.FileStore
	Remote   *store.RemoteStore
	Slack    *alerts.SlackClient

	Symbols              []string
	Interval             string
	BarLimit             int
	MaxConsecutiveLosses int
}

// Cycle executes decision ticks. Run, Flush and Report serialize on an
// internal mutex: the scheduler's snapshot and report ticks land on a
// different goroutine than an in-flight cycle, and the persisted document
// must never be serialized from state a cycle is still mutating.
type Cycle struct {
	deps Deps

	mu     sync.Mutex
	dirty  bool
	halted map[string]bool
}

func New(deps Deps) *Cycle {
	return &Cycle{deps: deps, halted: map[string]bool{}}
}

// Run executes one tick over every configured symbol in stable order.
// A failing symbol never blocks the others and the error is absorbed;
// windowRoll force-closes surviving positions at the window boundary.
func (c *Cycle) Run(ctx context.Context, now time.Time, windowRoll bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cid := uuid.NewString()
	started := time.Now()
	observ.Log("cycle_start", observ.Fields{"cid": cid, "window_roll": windowRoll})

	for _, symbol := range c.deps.Symbols {
		if err := ctx.Err(); err != nil {
			observ.Log("cycle_aborted", observ.Fields{"cid": cid, "error": err.Error()})
			break
		}
		c.runSymbol(ctx, cid, symbol, now, windowRoll)
	}

	if c.dirty {
		c.flush(ctx, now)
		c.dirty = false
	}
	observ.ObserveDuration("cycle", time.Since(started), nil)
	observ.Log("cycle_end", observ.Fields{"cid": cid, "elapsed_ms": time.Since(started).Milliseconds()})
}

func (c *Cycle) runSymbol(ctx context.Context, cid, symbol string, now time.Time, windowRoll bool) {
	d := c.deps
	if c.halted[symbol] {
		return
	}

	bars, err := d.Feed.Bars(ctx, symbol, d.Interval, d.BarLimit)
	if err != nil {
		observ.Log("bars_fetch_failed", observ.Fields{
			"cid": cid, "symbol": symbol,
			"transient": marketdata.IsTransient(err), "error": err.Error(),
		})
		// A fatal feed error (bad symbol, bad credentials) will not heal
		// on its own; stop polling the symbol instead of retrying forever.
		if !marketdata.IsTransient(err) {
			c.halted[symbol] = true
			observ.IncCounter("symbols_halted_total", map[string]string{"symbol": symbol})
			observ.Log("symbol_halted", observ.Fields{"cid": cid, "symbol": symbol})
		}
		return
	}
	price, err := d.Feed.LastPrice(ctx, symbol)
	if err != nil || price <= 0 {
		if len(bars) == 0 {
			return
		}
		// Fall back to the latest close; stale by at most one interval.
		price = bars[len(bars)-1].Close
	}

	d.Book.MarkToMarket(symbol, price)
	c.manageExits(cid, symbol, price, now, windowRoll)
	c.maybeOpen(cid, symbol, bars, price, now)
}

func (c *Cycle) manageExits(cid, symbol string, price float64, now time.Time, windowRoll bool) {
	d := c.deps
	for _, p := range d.Book.OpenPositions() {
		if p.Symbol != symbol {
			continue
		}
		reason := d.Book.CheckExits(p, price, now, windowRoll)
		if reason == "" {
			continue
		}
		if err := d.Book.Close(p, price, reason, now); err != nil {
			observ.Log("close_failed", observ.Fields{"cid": cid, "id": p.ID, "error": err.Error()})
			continue
		}
		c.dirty = true

		acct := d.Book.Account()
		observ.Log("position_closed", observ.Fields{
			"cid": cid, "id": p.ID, "symbol": p.Symbol, "strategy": p.Strategy,
			"reason": reason, "pnl": p.PnL, "pnl_pct": p.PnLPercent, "bank": acct.Bank,
		})
		d.Sizer.Observe(p.Strategy, d.Book.Stats()[p.Strategy], acct.Bank)
		d.Slack.TradeClosed(p, acct.Bank)

		if d.MaxConsecutiveLosses > 0 && acct.ConsecutiveLosses == d.MaxConsecutiveLosses {
			d.Slack.RiskPause(risk.ReasonLossCooldown, acct)
		}
	}
}

func (c *Cycle) maybeOpen(cid, symbol string, bars []marketdata.Bar, price float64, now time.Time) {
	d := c.deps

	sig := d.Signals.Evaluate(symbol, bars, price)
	if sig == nil {
		return
	}
	observ.Log("signal", observ.Fields{
		"cid": cid, "symbol": sig.Symbol, "strategy": sig.Strategy,
		"direction": string(sig.Direction), "confidence": sig.Confidence,
		"rationale": sig.Rationale,
	})

	acct := d.Book.Account()
	if ok, _ := d.Governor.Approve(sig, acct, now); !ok {
		return
	}
	stake, viable := d.Sizer.Stake(sig.Strategy, acct.Bank)
	if !viable {
		observ.IncCounter("opens_skipped_total", map[string]string{"reason": "bank_too_low"})
		observ.Log("open_skipped", observ.Fields{
			"cid": cid, "symbol": symbol, "strategy": sig.Strategy,
			"reason": "bank_too_low", "stake": stake, "bank": acct.Bank,
		})
		return
	}

	p, err := d.Book.Open(sig, price, stake, now)
	if err != nil {
		// An open position already holds this key; expected, not an error.
		observ.Log("open_skipped", observ.Fields{
			"cid": cid, "symbol": symbol, "strategy": sig.Strategy,
			"reason": "position_exists",
		})
		return
	}
	c.dirty = true
	observ.Log("position_opened", observ.Fields{
		"cid": cid, "id": p.ID, "symbol": p.Symbol, "strategy": p.Strategy,
		"direction": string(p.Direction), "entry": p.EntryPrice, "size": p.Size,
	})
	d.Slack.TradeOpened(p)
}

// Flush persists the current snapshot: local is mandatory (failure logged
// loudly, in-memory state stays authoritative), remote is best-effort.
// Blocks until an in-flight cycle finishes so the document is consistent.
func (c *Cycle) Flush(ctx context.Context, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flush(ctx, now)
}

func (c *Cycle) flush(ctx context.Context, now time.Time) {
	d := c.deps
	snap := store.Capture(d.Book, d.Sizer.Stakes(), now)

	if err := d.Local.Save(snap); err != nil {
		observ.IncCounter("local_save_failures_total", nil)
		observ.Log("local_save_failed", observ.Fields{"error": err.Error()})
	}
	if d.Remote != nil {
		if err := d.Remote.Save(ctx, snap); err != nil {
			observ.Log("remote_save_failed", observ.Fields{"error": err.Error()})
		}
	}
}

// Report logs the hourly account summary.
func (c *Cycle) Report(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.deps
	snap := store.Capture(d.Book, d.Sizer.Stakes(), now)
	observ.Log("report", observ.Fields{
		"bank": snap.Bank, "pnl": snap.PnL, "pnl_pct": snap.PnLPercent,
		"trades": snap.Trades, "win_rate": snap.WinRate,
		"open": snap.OpenTrades, "best_strategy": snap.BestStrategy,
	})
}
