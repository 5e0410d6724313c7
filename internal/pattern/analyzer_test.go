package pattern

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Padu76/lifeOS-sub000/internal"
)

var now = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func at(daysAgo, hour int) time.Time {
	d := now.AddDate(0, 0, -daysAgo)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
}

func activity(daysAgo, hour int, done bool) internal.ActivityRecord {
	return internal.ActivityRecord{UserID: "u1", Category: internal.CategoryReminder, Completed: done, Timestamp: at(daysAgo, hour)}
}

func TestAnalyze_EmptyHistoryYieldsDefault(t *testing.T) {
	p := Analyze("u1", nil, nil, now)
	assert.Equal(t, internal.ChronotypeIntermediate, p.Chronotype)
	assert.Empty(t, p.StressPeakHours)
	assert.Empty(t, p.EnergyLowHours)
	assert.Zero(t, p.Burnout.FatigueScore)
	assert.Equal(t, internal.SleepSchedule{BedtimeHour: 23, WakeHour: 7}, p.Sleep)
	assert.Len(t, p.OptimalWindows, 3)
	assert.Len(t, p.CategoryWindows, len(internal.Categories))
}

func TestAnalyze_Chronotype(t *testing.T) {
	var early []internal.ActivityRecord
	for d := 1; d <= 5; d++ {
		early = append(early, activity(d, 7, true), activity(d, 8, true))
	}
	assert.Equal(t, internal.ChronotypeEarlyBird, Analyze("u1", early, nil, now).Chronotype)

	owl := []internal.ActivityRecord{activity(2, 9, true)}
	for d := 1; d <= 5; d++ {
		owl = append(owl, activity(d, 20, true), activity(d, 21, true))
	}
	assert.Equal(t, internal.ChronotypeNightOwl, Analyze("u1", owl, nil, now).Chronotype)

	balanced := []internal.ActivityRecord{activity(1, 8, true), activity(1, 19, true)}
	assert.Equal(t, internal.ChronotypeIntermediate, Analyze("u1", balanced, nil, now).Chronotype)
}

func TestAnalyze_StressPeaksAndEnergyLows(t *testing.T) {
	checkIns := []internal.CheckInRecord{
		{Stress: 9, Energy: 2, Timestamp: at(1, 14)},
		{Stress: 3, Energy: 6, Timestamp: at(1, 9)},
		{Stress: 3, Energy: 6, Timestamp: at(1, 10)},
		{Stress: 3, Energy: 6, Timestamp: at(1, 16)},
		{Stress: 3, Energy: 6, Timestamp: at(1, 18)},
	}
	p := Analyze("u1", nil, checkIns, now)
	assert.Equal(t, []int{14}, p.StressPeakHours)
	assert.Equal(t, []int{14}, p.EnergyLowHours)
	assert.Empty(t, p.EnergyPeakHours)

	// stress_relief narrows to the day-part that contains the peak and is boosted
	windows := p.CategoryWindows[internal.CategoryStressRelief]
	require.Len(t, windows, 1)
	assert.True(t, windows[0].Contains(14))
	assert.InDelta(t, p.OptimalWindows[internal.DayPartAfternoon].Effectiveness+0.1, windows[0].Effectiveness, 1e-9)
}

func TestAnalyze_EnergyPeaksNeverOverlapLows(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		var checkIns []internal.CheckInRecord
		for j := 0; j < 1+rng.Intn(60); j++ {
			checkIns = append(checkIns, internal.CheckInRecord{
				Stress:    float64(1 + rng.Intn(10)),
				Energy:    float64(1 + rng.Intn(10)),
				Timestamp: at(rng.Intn(14), rng.Intn(24)),
			})
		}
		p := Analyze("u1", nil, checkIns, now)
		low := map[int]bool{}
		for _, h := range p.EnergyLowHours {
			low[h] = true
			assert.True(t, h >= 0 && h <= 23)
		}
		for _, h := range p.EnergyPeakHours {
			assert.False(t, low[h], "hour %d is both peak and low", h)
		}
		for _, ws := range p.CategoryWindows {
			for _, w := range ws {
				assert.True(t, w.Effectiveness >= 0 && w.Effectiveness <= 1)
			}
		}
	}
}

func TestAnalyze_BurnoutIndicators(t *testing.T) {
	activities := []internal.ActivityRecord{
		// last week: everything completed
		activity(13, 9, true), activity(12, 9, true), activity(11, 9, true), activity(10, 9, true),
		// this week: one completion, then three misses
		activity(6, 9, true), activity(3, 9, false), activity(2, 9, false), activity(1, 9, false),
	}
	p := Analyze("u1", activities, nil, now)
	assert.Equal(t, 3, p.Burnout.ConsecutiveDismissals)
	assert.True(t, p.Burnout.WeeklyDecline)
	assert.InDelta(t, 0.9, p.Burnout.FatigueScore, 1e-9)
}

func TestAnalyze_FatigueCapsAtOne(t *testing.T) {
	var activities []internal.ActivityRecord
	for h := 8; h < 16; h++ {
		activities = append(activities, activity(1, h, false))
	}
	p := Analyze("u1", activities, nil, now)
	assert.Equal(t, 8, p.Burnout.ConsecutiveDismissals)
	assert.False(t, p.Burnout.WeeklyDecline)
	assert.Equal(t, 1.0, p.Burnout.FatigueScore)
}

func TestAnalyze_ConsecutiveIgnoresRecordsOlderThanAWeek(t *testing.T) {
	activities := []internal.ActivityRecord{activity(9, 9, false), activity(8, 9, false)}
	p := Analyze("u1", activities, nil, now)
	assert.Zero(t, p.Burnout.ConsecutiveDismissals)
}

func TestAnalyze_InfersSleepFromQuietHours(t *testing.T) {
	var activities []internal.ActivityRecord
	for h := 7; h <= 22; h++ {
		activities = append(activities, activity(1, h, h%2 == 0))
	}
	p := Analyze("u1", activities, nil, now)
	assert.Equal(t, internal.SleepSchedule{BedtimeHour: 23, WakeHour: 7}, p.Sleep)
	assert.Equal(t, []internal.TimeWindow{{StartHour: 22, EndHour: 23, Effectiveness: 0.8}}, p.CategoryWindows[internal.CategorySleepPrep])
}

func TestAnalyze_ResponseRates(t *testing.T) {
	activities := []internal.ActivityRecord{
		{Category: internal.CategoryStressRelief, Completed: true, Timestamp: at(1, 9)},
		{Category: internal.CategoryStressRelief, Completed: false, Timestamp: at(2, 9)},
		{Category: internal.CategoryCelebration, Completed: true, Timestamp: at(1, 18)},
	}
	p := Analyze("u1", activities, nil, now)
	assert.InDelta(t, 0.5, p.ResponseByHour[9], 1e-9)
	assert.InDelta(t, 1.0, p.ResponseByHour[18], 1e-9)
	assert.InDelta(t, 0.5, p.ResponseByCategory[internal.CategoryStressRelief], 1e-9)
	assert.InDelta(t, 1.0, p.ResponseByCategory[internal.CategoryCelebration], 1e-9)
}

func TestAnalyze_OffsetFollowsLatestRecord(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	activities := []internal.ActivityRecord{
		{Category: internal.CategoryReminder, Timestamp: at(3, 9)},
		{Category: internal.CategoryReminder, Timestamp: time.Date(2024, 3, 14, 20, 0, 0, 0, tokyo)},
	}
	p := Analyze("u1", activities, nil, now)
	assert.Equal(t, 9*3600, p.UTCOffset)
	assert.Equal(t, 21, now.In(p.Location(time.UTC)).Hour(), "12:00 UTC is 21:00 for the user")

	assert.Equal(t, time.UTC, Analyze("u1", nil, nil, now).Location(time.UTC))
}

type brokenHistory struct{}

func (brokenHistory) ListActivities(context.Context, string, time.Time) ([]internal.ActivityRecord, error) {
	return nil, errors.New("db down")
}

func (brokenHistory) ListCheckIns(context.Context, string, time.Time) ([]internal.CheckInRecord, error) {
	return nil, errors.New("db down")
}

func TestBuild_ProviderFailureFallsBackToDefault(t *testing.T) {
	a := NewAnalyzer(brokenHistory{}, 30*24*time.Hour, internal.NopLogger())
	p := a.Build(context.Background(), "u1", now)
	assert.Equal(t, DefaultPattern("u1", now), p)
}
