// Package burnout holds the single cooldown policy shared by prediction and
// scheduling, so both always agree on whether a user is resting.
package burnout

import (
	"time"

	"github.com/Padu76/lifeOS-sub000/internal"
)

const (
	lowUrgencyFatigue  = 0.7
	severeFatigue      = 0.8
	shortCooldownAfter = 3
	longCooldownAfter  = 5
	shortCooldown      = 8 * time.Hour
	longCooldown       = 24 * time.Hour
	exhaustionCooldown = 48 * time.Hour
)

type Verdict struct {
	Suppress bool          `json:"suppress"`
	Cooldown time.Duration `json:"cooldown"`
	Reason   string        `json:"reason,omitempty"`
}

type Guard struct{}

func NewGuard() Guard { return Guard{} }

// Cooldown is the rest period implied by the indicators alone, zero when none applies.
func (Guard) Cooldown(ind internal.BurnoutIndicators) time.Duration {
	switch {
	case ind.FatigueScore > severeFatigue:
		return exhaustionCooldown
	case ind.ConsecutiveDismissals >= longCooldownAfter:
		return longCooldown
	case ind.ConsecutiveDismissals >= shortCooldownAfter:
		return shortCooldown
	default:
		return 0
	}
}

// Evaluate decides whether a new request of the given urgency must be held back.
// High and emergency requests are never suppressed.
func (g Guard) Evaluate(ind internal.BurnoutIndicators, urgency internal.Urgency) Verdict {
	if urgency != internal.UrgencyLow && urgency != internal.UrgencyMedium {
		return Verdict{}
	}
	cooldown := g.Cooldown(ind)
	if urgency == internal.UrgencyLow && ind.FatigueScore > lowUrgencyFatigue && cooldown < shortCooldown {
		cooldown = shortCooldown
	}
	if cooldown == 0 {
		return Verdict{}
	}
	return Verdict{Suppress: true, Cooldown: cooldown, Reason: internal.SkipReasonBurnout}
}
