package scheduler

import (
	"context"

	"github.com/Padu76/lifeOS-sub000/internal"
)

// DefaultGate is the final just-before-send check of live device conditions.
// Emergency items always pass; a failed send is retried like any other.
type DefaultGate struct{}

func (DefaultGate) Check(_ context.Context, item internal.ScheduledIntervention, dc internal.DeliveryContext) bool {
	if item.Urgency == internal.UrgencyEmergency {
		return true
	}
	if !dc.NetworkOnline {
		return false
	}
	if item.Urgency == internal.UrgencyLow && dc.AppForeground {
		return false
	}
	if dc.DoNotDisturb && item.RespectQuietHours {
		return false
	}
	return true
}

var _ EligibilityGate = DefaultGate{}
