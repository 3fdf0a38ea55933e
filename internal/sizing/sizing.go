// Package sizing adapts per-strategy stake sizes to realized performance.
// Stakes grow on sustained win rates and shrink on sustained losing, with a
// dead band in between so sizes do not oscillate.
package sizing

import (
	"sync"

	"github.com/Rajchodisetti/paper-trader/internal/observ"
	"github.com/Rajchodisetti/paper-trader/internal/portfolio"
)

// Params bound and steer the stake adjustments.
type Params struct {
	BaseRiskFraction  float64 // initial stake as a fraction of bank
	MaxRiskFraction   float64 // growth cap, fraction of bank
	MinRiskFraction   float64 // decay floor, fraction of bank
	IncreaseThreshold float64 // win rate at or above which stakes grow
	DecreaseThreshold float64 // win rate below which stakes shrink
	GrowthFactor      float64
	DecayFactor       float64
	MinSampleSize     int     // closed trades before any adjustment
	MinStakeFraction  float64 // below bank*this, opens are skipped
}

// Controller tracks one stake per strategy. Stakes are mutated only on the
// cycle goroutine; the mutex protects the snapshot read path, which may run
// while a cycle is adjusting stakes.
type Controller struct {
	params Params

	mu     sync.Mutex
	stakes map[string]float64
}

func NewController(params Params) *Controller {
	return &Controller{params: params, stakes: map[string]float64{}}
}

// Stake returns the current stake for the strategy, seeding it from the
// bank on first use. The second return is false when the stake has fallen
// below the minimum viable size and the open should be skipped.
func (c *Controller) Stake(strat string, bank float64) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stake, ok := c.stakes[strat]
	if !ok {
		stake = bank * c.params.BaseRiskFraction
		c.stakes[strat] = stake
	}
	if stake < bank*c.params.MinStakeFraction || stake <= 0 {
		return stake, false
	}
	return stake, true
}

// Observe runs after a close and nudges the strategy's stake based on its
// win rate. Inside the hysteresis band the stake is left alone.
func (c *Controller) Observe(strat string, stats portfolio.StrategyStats, bank float64) {
	if stats.Total < c.params.MinSampleSize {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	stake, ok := c.stakes[strat]
	if !ok {
		stake = bank * c.params.BaseRiskFraction
	}
	prev := stake

	rate := stats.WinRate()
	switch {
	case rate >= c.params.IncreaseThreshold:
		stake *= c.params.GrowthFactor
		if limit := bank * c.params.MaxRiskFraction; stake > limit {
			stake = limit
		}
	case rate < c.params.DecreaseThreshold:
		stake *= c.params.DecayFactor
		if floor := bank * c.params.MinRiskFraction; stake < floor {
			stake = floor
		}
	}
	c.stakes[strat] = stake

	if stake != prev {
		observ.Log("stake_adjusted", observ.Fields{
			"strategy": strat,
			"win_rate": rate,
			"from":     prev,
			"to":       stake,
		})
		observ.SetGauge("stake_usd", stake, map[string]string{"strategy": strat})
	}
}

// Stakes returns a copy of the current per-strategy stakes for snapshots.
func (c *Controller) Stakes() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.stakes))
	for k, v := range c.stakes {
		out[k] = v
	}
	return out
}

// Restore replaces the stake table, used when loading persisted state.
func (c *Controller) Restore(stakes map[string]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stakes = map[string]float64{}
	for k, v := range stakes {
		if v > 0 {
			c.stakes[k] = v
		}
	}
}
