package internal

import (
	"encoding/json"
	"fmt"
	"time"
)

type User struct {
	ID    string `json:"id"`
	Token string `json:"token"`
	Name  string `json:"name"`
}

// Chronotype is the user's natural tendency toward morning or evening activity.
type Chronotype string

const (
	ChronotypeEarlyBird    Chronotype = "early_bird"
	ChronotypeNightOwl     Chronotype = "night_owl"
	ChronotypeIntermediate Chronotype = "intermediate"
)

type Category string

const (
	CategoryStressRelief Category = "stress_relief"
	CategoryEnergyBoost  Category = "energy_boost"
	CategorySleepPrep    Category = "sleep_prep"
	CategoryCelebration  Category = "celebration"
	CategoryReminder     Category = "reminder"
)

var Categories = []Category{
	CategoryStressRelief,
	CategoryEnergyBoost,
	CategorySleepPrep,
	CategoryCelebration,
	CategoryReminder,
}

func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrInvalidInput, s)
}

type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyMedium    Urgency = "medium"
	UrgencyHigh      Urgency = "high"
	UrgencyEmergency Urgency = "emergency"
)

func ParseUrgency(s string) (Urgency, error) {
	switch Urgency(s) {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyEmergency:
		return Urgency(s), nil
	}
	return "", fmt.Errorf("%w: unknown urgency %q", ErrInvalidInput, s)
}

// DayPart names one of the three optimal windows derived per chronotype.
type DayPart string

const (
	DayPartMorning   DayPart = "morning"
	DayPartAfternoon DayPart = "afternoon"
	DayPartEvening   DayPart = "evening"
)

var DayParts = []DayPart{DayPartMorning, DayPartAfternoon, DayPartEvening}

// TimeWindow spans [StartHour, EndHour) and wraps past midnight when EndHour <= StartHour.
type TimeWindow struct {
	StartHour     int     `json:"start_hour"`
	EndHour       int     `json:"end_hour"`
	Effectiveness float64 `json:"effectiveness"` // 0..1
}

func (w TimeWindow) Contains(hour int) bool {
	if w.StartHour == w.EndHour {
		return true
	}
	if w.StartHour < w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	return hour >= w.StartHour || hour < w.EndHour
}

type SleepSchedule struct {
	BedtimeHour int `json:"bedtime_hour"`
	WakeHour    int `json:"wake_hour"`
}

func (s SleepSchedule) Contains(hour int) bool {
	return TimeWindow{StartHour: s.BedtimeHour, EndHour: s.WakeHour}.Contains(hour)
}

type BurnoutIndicators struct {
	ConsecutiveDismissals int     `json:"consecutive_dismissals"`
	WeeklyDecline         bool    `json:"weekly_decline"`
	FatigueScore          float64 `json:"fatigue_score"` // 0..1
}

// UserPattern is replaced as a whole on every rebuild; last write wins.
type UserPattern struct {
	UserID             string                    `json:"user_id"`
	Chronotype         Chronotype                `json:"chronotype"`
	OptimalWindows     map[DayPart]TimeWindow    `json:"optimal_windows"`
	CategoryWindows    map[Category][]TimeWindow `json:"category_windows"`
	StressPeakHours    []int                     `json:"stress_peak_hours"`
	EnergyLowHours     []int                     `json:"energy_low_hours"`
	EnergyPeakHours    []int                     `json:"energy_peak_hours"`
	Sleep              SleepSchedule             `json:"sleep"`
	ResponseByHour     map[int]float64           `json:"response_by_hour"`
	ResponseByWeekday  map[time.Weekday]float64  `json:"response_by_weekday"`
	ResponseByCategory map[Category]float64      `json:"response_by_category"`
	Burnout            BurnoutIndicators         `json:"burnout"`
	SampleSize         int                       `json:"sample_size"`
	UTCOffset          int                       `json:"utc_offset"` // seconds east of UTC, from the latest record
	ComputedAt         time.Time                 `json:"computed_at"`
}

// Location is the zone the pattern's hours are expressed in. A profile built
// without history has no zone of its own and returns fallback.
func (p UserPattern) Location(fallback *time.Location) *time.Location {
	if p.SampleSize == 0 {
		return fallback
	}
	if p.UTCOffset == 0 {
		return time.UTC
	}
	return time.FixedZone("", p.UTCOffset)
}

type ActivityRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Category  Category  `json:"category"`
	Completed bool      `json:"completed"`
	Timestamp time.Time `json:"timestamp"`
}

type CheckInRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Stress    float64   `json:"stress"` // 1–10 scale
	Energy    float64   `json:"energy"` // 1–10 scale
	Timestamp time.Time `json:"timestamp"`
}

type NotificationRequest struct {
	UserID            string        `json:"user_id"`
	Category          Category      `json:"category"`
	Urgency           Urgency       `json:"urgency"`
	MinGap            time.Duration `json:"min_gap"`
	RespectQuietHours bool          `json:"respect_quiet_hours"`
}

const SkipReasonBurnout = "burnout_prevention"

// TimingDecision is advisory only when ShouldSkip is set.
type TimingDecision struct {
	Request      NotificationRequest `json:"request"`
	SuggestedAt  time.Time           `json:"suggested_at"`
	Confidence   float64             `json:"confidence"`
	Reasoning    []string            `json:"reasoning"`
	Alternatives []time.Time         `json:"alternatives,omitempty"`
	ShouldSkip   bool                `json:"should_skip"`
	SkipReason   string              `json:"skip_reason,omitempty"`
}

type InterventionState string

const (
	StatePending   InterventionState = "pending"
	StateDelivered InterventionState = "delivered"
	StateFailed    InterventionState = "failed"
	StateCancelled InterventionState = "cancelled"
)

func (s InterventionState) Terminal() bool {
	return s == StateDelivered || s == StateFailed || s == StateCancelled
}

type ScheduledIntervention struct {
	ID                string            `json:"id"`
	UserID            string            `json:"user_id"`
	Category          Category          `json:"category"`
	Urgency           Urgency           `json:"urgency"`
	RespectQuietHours bool              `json:"respect_quiet_hours"`
	Payload           json.RawMessage   `json:"payload,omitempty"`
	DueAt             time.Time         `json:"due_at"`
	State             InterventionState `json:"state"`
	Attempts          int               `json:"attempts"`
	LastError         string            `json:"last_error,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	DeliveredAt       *time.Time        `json:"delivered_at,omitempty"`
}

// DeliveryContext is read fresh at send time and never cached across retries.
type DeliveryContext struct {
	DoNotDisturb  bool    `json:"do_not_disturb"`
	BatteryLevel  float64 `json:"battery_level"` // 0..1
	AppForeground bool    `json:"app_foreground"`
	NetworkOnline bool    `json:"network_online"`
}
