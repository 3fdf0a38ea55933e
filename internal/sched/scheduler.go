// Package sched drives the engine with three named timers: decision,
// snapshot, and report. Ticks never overlap a running cycle; a tick that
// lands while a cycle is in flight is counted and dropped.
package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Rajchodisetti/paper-trader/internal/observ"
)

// Cycle is the work the scheduler drives. Implemented by engine.Cycle.
type Cycle interface {
	Run(ctx context.Context, now time.Time, windowRoll bool)
	Flush(ctx context.Context, now time.Time)
	Report(now time.Time)
}

// Session restricts decision ticks to a UTC hour window.
type Session struct {
	Enabled      bool
	OpenHourUTC  int
	CloseHourUTC int
}

// InSession reports whether now falls inside the trading window. A window
// with open > close wraps midnight.
func InSession(s Session, now time.Time) bool {
	if !s.Enabled {
		return true
	}
	h := now.UTC().Hour()
	if s.OpenHourUTC <= s.CloseHourUTC {
		return h >= s.OpenHourUTC && h < s.CloseHourUTC
	}
	return h >= s.OpenHourUTC || h < s.CloseHourUTC
}

// Config sets the timer cadence.
type Config struct {
	DecisionInterval time.Duration
	SnapshotInterval time.Duration
	ReportInterval   time.Duration
	WindowInterval   time.Duration
	Session          Session
}

func (c *Config) applyDefaults() {
	if c.DecisionInterval <= 0 {
		c.DecisionInterval = 30 * time.Second
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = time.Minute
	}
	if c.ReportInterval <= 0 {
		c.ReportInterval = time.Hour
	}
	if c.WindowInterval <= 0 {
		c.WindowInterval = 5 * time.Minute
	}
}

// Scheduler owns the timer loop. Run blocks until the context is canceled,
// then waits for the in-flight cycle and performs a final flush.
type Scheduler struct {
	cfg   Config
	cycle Cycle

	busy atomic.Bool
	wg   sync.WaitGroup
}

func New(cfg Config, cycle Cycle) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{cfg: cfg, cycle: cycle}
}

// Run drives the timers. The first decision cycle fires immediately.
func (s *Scheduler) Run(ctx context.Context) {
	decision := time.NewTicker(s.cfg.DecisionInterval)
	snapshot := time.NewTicker(s.cfg.SnapshotInterval)
	report := time.NewTicker(s.cfg.ReportInterval)
	defer decision.Stop()
	defer snapshot.Stop()
	defer report.Stop()

	windowStart := time.Now()
	s.tick(ctx, time.Now(), &windowStart)

	for {
		select {
		case now := <-decision.C:
			s.tick(ctx, now, &windowStart)

		case now := <-snapshot.C:
			s.cycle.Flush(ctx, now)

		case now := <-report.C:
			s.cycle.Report(now)

		case <-ctx.Done():
			s.wg.Wait()
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			s.cycle.Flush(flushCtx, time.Now())
			cancel()
			observ.Log("scheduler_stopped", nil)
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time, windowStart *time.Time) {
	if !InSession(s.cfg.Session, now) {
		observ.IncCounter("cycle_out_of_session_total", nil)
		return
	}
	if !s.busy.CompareAndSwap(false, true) {
		observ.IncCounter("cycle_skipped_total", nil)
		return
	}

	roll := false
	if now.Sub(*windowStart) >= s.cfg.WindowInterval {
		roll = true
		*windowStart = now
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		s.cycle.Run(ctx, now, roll)
	}()
}
