// Package risk gates signals before they become positions. The governor is
// pure: the same signal and account state always yield the same verdict.
package risk

import (
	"time"

	"github.com/Rajchodisetti/paper-trader/internal/observ"
	"github.com/Rajchodisetti/paper-trader/internal/portfolio"
	"github.com/Rajchodisetti/paper-trader/internal/strategy"
)

// Rejection reason codes, emitted in logs and metrics.
const (
	ReasonLowConfidence = "low_confidence"
	ReasonLossCooldown  = "loss_cooldown"
	ReasonDrawdown      = "drawdown"
	ReasonBankFloor     = "bank_floor"
)

// Limits are the governor thresholds, fixed at startup.
type Limits struct {
	MinConfidence        float64
	MaxConsecutiveLosses int
	MaxDailyLossFraction float64
	BankFloorUSD         float64
}

// Governor approves or rejects candidate signals against account state.
type Governor struct {
	limits Limits
}

func NewGovernor(limits Limits) *Governor {
	return &Governor{limits: limits}
}

// Approve returns whether the signal may open a position, with the first
// matching rejection reason. Checks run in fixed order: confidence,
// loss cooldown, drawdown, bank floor.
func (g *Governor) Approve(sig *strategy.Signal, acct portfolio.Account, now time.Time) (bool, string) {
	reason := g.check(sig, acct)
	if reason == "" {
		return true, ""
	}
	observ.IncCounter("governor_rejections_total", map[string]string{"reason": reason})
	observ.Log("signal_rejected", observ.Fields{
		"symbol":     sig.Symbol,
		"strategy":   sig.Strategy,
		"direction":  string(sig.Direction),
		"confidence": sig.Confidence,
		"reason":     reason,
		"ts":         now.UTC().Format(time.RFC3339),
	})
	return false, reason
}

func (g *Governor) check(sig *strategy.Signal, acct portfolio.Account) string {
	if sig.Confidence < g.limits.MinConfidence {
		return ReasonLowConfidence
	}
	if g.limits.MaxConsecutiveLosses > 0 && acct.ConsecutiveLosses >= g.limits.MaxConsecutiveLosses {
		return ReasonLossCooldown
	}
	if acct.InitialBank > 0 {
		drawdown := (acct.Bank - acct.InitialBank) / acct.InitialBank
		if drawdown < -g.limits.MaxDailyLossFraction {
			return ReasonDrawdown
		}
	}
	if acct.Bank < g.limits.BankFloorUSD {
		return ReasonBankFloor
	}
	return ""
}
