package predict

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Padu76/lifeOS-sub000/internal"
	"github.com/Padu76/lifeOS-sub000/internal/burnout"
	"github.com/Padu76/lifeOS-sub000/internal/pattern"
)

func clock(hour, minute int) time.Time {
	return time.Date(2024, 3, 15, hour, minute, 0, 0, time.UTC)
}

func request(cat internal.Category, urg internal.Urgency, quiet bool) internal.NotificationRequest {
	return internal.NotificationRequest{UserID: "u1", Category: cat, Urgency: urg, MinGap: time.Hour, RespectQuietHours: quiet}
}

func nightOwl() internal.UserPattern {
	p := pattern.DefaultPattern("u1", clock(0, 0))
	p.Chronotype = internal.ChronotypeNightOwl
	p.OptimalWindows = map[internal.DayPart]internal.TimeWindow{
		internal.DayPartMorning:   {StartHour: 10, EndHour: 12, Effectiveness: 0.5},
		internal.DayPartAfternoon: {StartHour: 15, EndHour: 17, Effectiveness: 0.7},
		internal.DayPartEvening:   {StartHour: 20, EndHour: 23, Effectiveness: 0.9},
	}
	p.StressPeakHours = []int{14}
	p.Sleep = internal.SleepSchedule{BedtimeHour: 0, WakeHour: 8}
	p.CategoryWindows = map[internal.Category][]internal.TimeWindow{}
	return p
}

func TestPredict_StressPeakFiresImmediately(t *testing.T) {
	p := NewPredictor(burnout.NewGuard())
	now := clock(14, 10)
	d := p.Predict(request(internal.CategoryStressRelief, internal.UrgencyMedium, true), nightOwl(), now)
	assert.False(t, d.ShouldSkip)
	assert.Equal(t, now, d.SuggestedAt)
	assert.Contains(t, d.Reasoning, "stress peak period")
	assert.True(t, d.Confidence >= 0 && d.Confidence <= 1)
}

func TestPredict_EnergyLowFiresImmediately(t *testing.T) {
	p := NewPredictor(burnout.NewGuard())
	pat := nightOwl()
	pat.EnergyLowHours = []int{16}
	now := clock(16, 0)
	d := p.Predict(request(internal.CategoryEnergyBoost, internal.UrgencyLow, true), pat, now)
	assert.Equal(t, now, d.SuggestedAt)
	assert.Contains(t, d.Reasoning, "energy low period")
}

func TestPredict_QuietHoursDeferToWakeTime(t *testing.T) {
	p := NewPredictor(burnout.NewGuard())
	pat := pattern.DefaultPattern("u1", clock(0, 0))
	pat.Sleep = internal.SleepSchedule{BedtimeHour: 23, WakeHour: 7}

	d := p.Predict(request(internal.CategoryReminder, internal.UrgencyMedium, true), pat, clock(23, 0))
	assert.False(t, d.ShouldSkip)
	assert.Equal(t, 0.3, d.Confidence)
	assert.Equal(t, time.Date(2024, 3, 16, 7, 0, 0, 0, time.UTC), d.SuggestedAt)

	d = p.Predict(request(internal.CategoryReminder, internal.UrgencyMedium, true), pat, clock(3, 30))
	assert.Equal(t, clock(7, 0), d.SuggestedAt)
}

func TestPredict_HoursAreReadInTheUsersZone(t *testing.T) {
	p := NewPredictor(burnout.NewGuard())
	pat := pattern.DefaultPattern("u1", clock(0, 0))
	pat.StressPeakHours = []int{14}
	pat.Sleep = internal.SleepSchedule{BedtimeHour: 23, WakeHour: 8}
	pat.SampleSize = 40
	pat.UTCOffset = 9 * 3600

	// 14:00 UTC is 23:00 in the user's zone: asleep, not a stress peak
	d := p.Predict(request(internal.CategoryStressRelief, internal.UrgencyMedium, true), pat, clock(14, 0))
	assert.False(t, d.ShouldSkip)
	assert.Equal(t, 0.3, d.Confidence)
	assert.NotContains(t, d.Reasoning, "stress peak period")
	assert.True(t, d.SuggestedAt.Equal(clock(23, 0)), "08:00 +09:00 next morning, got %s", d.SuggestedAt)
	_, off := d.SuggestedAt.Zone()
	assert.Equal(t, 9*3600, off)

	// 05:00 UTC is 14:00 local
	d = p.Predict(request(internal.CategoryStressRelief, internal.UrgencyMedium, true), pat, clock(5, 0))
	assert.Contains(t, d.Reasoning, "stress peak period")
	assert.True(t, d.SuggestedAt.Equal(clock(5, 0)))
}

func TestPredict_QuietHoursIgnoredWhenNotRespected(t *testing.T) {
	p := NewPredictor(burnout.NewGuard())
	pat := pattern.DefaultPattern("u1", clock(0, 0))
	d := p.Predict(request(internal.CategoryReminder, internal.UrgencyMedium, false), pat, clock(23, 0))
	assert.False(t, d.ShouldSkip)
	assert.Equal(t, time.Date(2024, 3, 16, 9, 0, 0, 0, time.UTC), d.SuggestedAt, "wraps to tomorrow's first window")
}

func TestPredict_EmergencyAlwaysBypasses(t *testing.T) {
	p := NewPredictor(burnout.NewGuard())
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		pat := pattern.DefaultPattern("u1", clock(0, 0))
		pat.Burnout = internal.BurnoutIndicators{ConsecutiveDismissals: rng.Intn(10), WeeklyDecline: rng.Intn(2) == 1, FatigueScore: rng.Float64()}
		pat.Sleep = internal.SleepSchedule{BedtimeHour: rng.Intn(24), WakeHour: rng.Intn(24)}
		now := clock(rng.Intn(24), rng.Intn(60))
		cat := internal.Categories[rng.Intn(len(internal.Categories))]

		d := p.Predict(request(cat, internal.UrgencyEmergency, true), pat, now)
		require.False(t, d.ShouldSkip)
		require.Equal(t, 1.0, d.Confidence)
		require.Equal(t, now, d.SuggestedAt)
	}
}

func TestPredict_HighFatigueLowUrgencyAlwaysSkips(t *testing.T) {
	p := NewPredictor(burnout.NewGuard())
	for h := 0; h < 24; h++ {
		for _, cat := range internal.Categories {
			pat := pattern.DefaultPattern("u1", clock(0, 0))
			pat.Burnout = internal.BurnoutIndicators{ConsecutiveDismissals: 2, WeeklyDecline: true, FatigueScore: 0.71}
			d := p.Predict(request(cat, internal.UrgencyLow, h%2 == 0), pat, clock(h, 0))
			assert.True(t, d.ShouldSkip)
			assert.Equal(t, internal.SkipReasonBurnout, d.SkipReason)
		}
	}
}

func TestPredict_DismissalStreakSkipsAllButHigh(t *testing.T) {
	p := NewPredictor(burnout.NewGuard())
	pat := pattern.DefaultPattern("u1", clock(0, 0))
	pat.Burnout = internal.BurnoutIndicators{ConsecutiveDismissals: 5, FatigueScore: 0.5}

	d := p.Predict(request(internal.CategoryReminder, internal.UrgencyMedium, true), pat, clock(10, 0))
	assert.True(t, d.ShouldSkip)
	assert.Equal(t, clock(10, 0).Add(24*time.Hour), d.SuggestedAt)

	d = p.Predict(request(internal.CategoryReminder, internal.UrgencyHigh, true), pat, clock(10, 0))
	assert.False(t, d.ShouldSkip)
}

func TestPredict_SleepPrepTargetsHourBeforeBed(t *testing.T) {
	p := NewPredictor(burnout.NewGuard())
	pat := pattern.DefaultPattern("u1", clock(0, 0))
	d := p.Predict(request(internal.CategorySleepPrep, internal.UrgencyMedium, true), pat, clock(15, 0))
	assert.Equal(t, clock(22, 0), d.SuggestedAt)

	d = p.Predict(request(internal.CategorySleepPrep, internal.UrgencyMedium, true), pat, clock(22, 20))
	assert.Equal(t, clock(22, 20), d.SuggestedAt)
}

func TestPredict_CelebrationUsesBestWindow(t *testing.T) {
	p := NewPredictor(burnout.NewGuard())
	pat := pattern.DefaultPattern("u1", clock(0, 0))
	d := p.Predict(request(internal.CategoryCelebration, internal.UrgencyMedium, true), pat, clock(10, 0))
	assert.Equal(t, clock(14, 0), d.SuggestedAt)
	assert.Contains(t, d.Reasoning, "highest-effectiveness window")
}

func TestPredict_Confidence(t *testing.T) {
	p := NewPredictor(burnout.NewGuard())
	pat := pattern.DefaultPattern("u1", clock(0, 0))
	pat.ResponseByCategory[internal.CategoryReminder] = 0.5
	pat.Burnout = internal.BurnoutIndicators{ConsecutiveDismissals: 1, FatigueScore: 0.2}

	d := p.Predict(request(internal.CategoryReminder, internal.UrgencyMedium, true), pat, clock(9, 30))
	assert.Equal(t, clock(9, 30), d.SuggestedAt)
	assert.InDelta(t, 0.7+0.15-0.06, d.Confidence, 1e-9)

	pat.ResponseByHour[9] = 1
	pat.ResponseByCategory[internal.CategoryReminder] = 1
	pat.Burnout = internal.BurnoutIndicators{}
	d = p.Predict(request(internal.CategoryReminder, internal.UrgencyMedium, true), pat, clock(9, 30))
	assert.Equal(t, 1.0, d.Confidence, "clamped")
}

func TestPredict_Alternatives(t *testing.T) {
	p := NewPredictor(burnout.NewGuard())
	pat := pattern.DefaultPattern("u1", clock(0, 0))
	d := p.Predict(request(internal.CategoryReminder, internal.UrgencyMedium, true), pat, clock(12, 0))
	assert.Equal(t, clock(14, 0), d.SuggestedAt)
	require.NotEmpty(t, d.Alternatives)
	assert.LessOrEqual(t, len(d.Alternatives), 3)
	for i, alt := range d.Alternatives {
		assert.NotEqual(t, d.SuggestedAt, alt)
		if i > 0 {
			assert.True(t, d.Alternatives[i-1].Before(alt))
		}
	}
}
