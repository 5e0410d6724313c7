// Package pattern turns a user's activity and check-in history into a
// circadian/response profile.
package pattern

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/Padu76/lifeOS-sub000/internal"
)

const (
	earlyRatio     = 1.3
	lateRatio      = 0.7
	peakFactor     = 1.2
	lowFactor      = 0.8
	windowBoost    = 0.1
	minSleepHours  = 5
	maxSleepHours  = 12
	declineFactor  = 0.7
	dismissalScale = 5.0
	declineWeight  = 0.3
)

// HistoryProvider supplies raw records; an empty result is valid.
type HistoryProvider interface {
	ListActivities(ctx context.Context, userID string, since time.Time) ([]internal.ActivityRecord, error)
	ListCheckIns(ctx context.Context, userID string, since time.Time) ([]internal.CheckInRecord, error)
}

type Analyzer struct {
	history  HistoryProvider
	lookback time.Duration
	logger   internal.Logger
}

func NewAnalyzer(history HistoryProvider, lookback time.Duration, logger internal.Logger) *Analyzer {
	if lookback < 14*24*time.Hour {
		lookback = 14 * 24 * time.Hour
	}
	return &Analyzer{history: history, lookback: lookback, logger: logger.With("component", "PatternAnalyzer")}
}

// Build pulls the lookback window from the history provider and analyzes it.
// Provider failures degrade to whatever records were read; it never errors.
func (a *Analyzer) Build(ctx context.Context, userID string, now time.Time) internal.UserPattern {
	since := now.Add(-a.lookback)
	activities, err := a.history.ListActivities(ctx, userID, since)
	if err != nil {
		a.logger.Warnf("pattern: list activities for %s: %v", userID, err)
		activities = nil
	}
	checkIns, err := a.history.ListCheckIns(ctx, userID, since)
	if err != nil {
		a.logger.Warnf("pattern: list check-ins for %s: %v", userID, err)
		checkIns = nil
	}
	p := Analyze(userID, activities, checkIns, now)
	a.logger.Debugf("pattern: %s chronotype=%s fatigue=%.2f samples=%d", userID, p.Chronotype, p.Burnout.FatigueScore, p.SampleSize)
	return p
}

// Analyze is the pure profile computation. Hours are read in each record's own location.
func Analyze(userID string, activities []internal.ActivityRecord, checkIns []internal.CheckInRecord, now time.Time) internal.UserPattern {
	if len(activities) == 0 && len(checkIns) == 0 {
		return DefaultPattern(userID, now)
	}

	var engagement, presence [24]float64
	for _, a := range activities {
		h := a.Timestamp.Hour()
		presence[h]++
		if a.Completed {
			engagement[h]++
		}
	}
	var stress, energy hourly
	for _, c := range checkIns {
		h := c.Timestamp.Hour()
		presence[h]++
		engagement[h]++
		stress.add(h, c.Stress)
		energy.add(h, c.Energy)
	}

	chrono := classifyChronotype(engagement)
	parts := dayPartWindows(chrono)
	stressPeaks := stress.hoursAbove(peakFactor)
	energyLows := energy.hoursBelow(lowFactor)
	energyPeaks := energy.hoursAbove(peakFactor)
	sleep := inferSleep(presence, chrono)
	byHour, byWeekday, byCategory := responseRates(activities)

	return internal.UserPattern{
		UserID:             userID,
		Chronotype:         chrono,
		OptimalWindows:     parts,
		CategoryWindows:    categoryWindows(parts, stressPeaks, energyLows, sleep),
		StressPeakHours:    stressPeaks,
		EnergyLowHours:     energyLows,
		EnergyPeakHours:    energyPeaks,
		Sleep:              sleep,
		ResponseByHour:     byHour,
		ResponseByWeekday:  byWeekday,
		ResponseByCategory: byCategory,
		Burnout:            burnoutIndicators(activities, now),
		SampleSize:         len(activities) + len(checkIns),
		UTCOffset:          latestOffset(activities, checkIns),
		ComputedAt:         now,
	}
}

// DefaultPattern is the neutral profile used when there is no history.
func DefaultPattern(userID string, now time.Time) internal.UserPattern {
	parts := dayPartWindows(internal.ChronotypeIntermediate)
	sleep := defaultSleep(internal.ChronotypeIntermediate)
	return internal.UserPattern{
		UserID:             userID,
		Chronotype:         internal.ChronotypeIntermediate,
		OptimalWindows:     parts,
		CategoryWindows:    categoryWindows(parts, nil, nil, sleep),
		StressPeakHours:    []int{},
		EnergyLowHours:     []int{},
		EnergyPeakHours:    []int{},
		Sleep:              sleep,
		ResponseByHour:     map[int]float64{},
		ResponseByWeekday:  map[time.Weekday]float64{},
		ResponseByCategory: map[internal.Category]float64{},
		ComputedAt:         now,
	}
}

// latestOffset is the UTC offset of the newest record, the best guess for
// where the user is now.
func latestOffset(activities []internal.ActivityRecord, checkIns []internal.CheckInRecord) int {
	var latest time.Time
	for _, a := range activities {
		if a.Timestamp.After(latest) {
			latest = a.Timestamp
		}
	}
	for _, c := range checkIns {
		if c.Timestamp.After(latest) {
			latest = c.Timestamp
		}
	}
	_, off := latest.Zone()
	return off
}

func classifyChronotype(engagement [24]float64) internal.Chronotype {
	morning := meanRange(engagement, 6, 10)
	evening := meanRange(engagement, 18, 22)
	if evening == 0 {
		if morning > 0 {
			return internal.ChronotypeEarlyBird
		}
		return internal.ChronotypeIntermediate
	}
	ratio := morning / evening
	switch {
	case ratio > earlyRatio:
		return internal.ChronotypeEarlyBird
	case ratio < lateRatio:
		return internal.ChronotypeNightOwl
	default:
		return internal.ChronotypeIntermediate
	}
}

func meanRange(v [24]float64, from, to int) float64 {
	sum := 0.0
	for h := from; h <= to; h++ {
		sum += v[h]
	}
	return sum / float64(to-from+1)
}

func dayPartWindows(c internal.Chronotype) map[internal.DayPart]internal.TimeWindow {
	switch c {
	case internal.ChronotypeEarlyBird:
		return map[internal.DayPart]internal.TimeWindow{
			internal.DayPartMorning:   {StartHour: 7, EndHour: 10, Effectiveness: 0.9},
			internal.DayPartAfternoon: {StartHour: 13, EndHour: 15, Effectiveness: 0.7},
			internal.DayPartEvening:   {StartHour: 18, EndHour: 20, Effectiveness: 0.5},
		}
	case internal.ChronotypeNightOwl:
		return map[internal.DayPart]internal.TimeWindow{
			internal.DayPartMorning:   {StartHour: 10, EndHour: 12, Effectiveness: 0.5},
			internal.DayPartAfternoon: {StartHour: 15, EndHour: 17, Effectiveness: 0.7},
			internal.DayPartEvening:   {StartHour: 20, EndHour: 23, Effectiveness: 0.9},
		}
	default:
		return map[internal.DayPart]internal.TimeWindow{
			internal.DayPartMorning:   {StartHour: 9, EndHour: 11, Effectiveness: 0.7},
			internal.DayPartAfternoon: {StartHour: 14, EndHour: 16, Effectiveness: 0.8},
			internal.DayPartEvening:   {StartHour: 19, EndHour: 21, Effectiveness: 0.7},
		}
	}
}

func defaultSleep(c internal.Chronotype) internal.SleepSchedule {
	switch c {
	case internal.ChronotypeEarlyBird:
		return internal.SleepSchedule{BedtimeHour: 22, WakeHour: 6}
	case internal.ChronotypeNightOwl:
		return internal.SleepSchedule{BedtimeHour: 0, WakeHour: 8}
	default:
		return internal.SleepSchedule{BedtimeHour: 23, WakeHour: 7}
	}
}

// inferSleep picks the longest circular run of hours without any record.
// Runs outside [minSleepHours, maxSleepHours] mean the data is too sparse to tell.
func inferSleep(presence [24]float64, c internal.Chronotype) internal.SleepSchedule {
	bestStart, bestLen := -1, 0
	for start := 0; start < 24; start++ {
		if presence[start] > 0 || presence[(start+23)%24] == 0 {
			continue
		}
		n := 0
		for n < 24 && presence[(start+n)%24] == 0 {
			n++
		}
		if n > bestLen {
			bestStart, bestLen = start, n
		}
	}
	if bestStart < 0 || bestLen < minSleepHours || bestLen > maxSleepHours {
		return defaultSleep(c)
	}
	return internal.SleepSchedule{BedtimeHour: bestStart, WakeHour: (bestStart + bestLen) % 24}
}

func categoryWindows(parts map[internal.DayPart]internal.TimeWindow, stressPeaks, energyLows []int, sleep internal.SleepSchedule) map[internal.Category][]internal.TimeWindow {
	ordered := make([]internal.TimeWindow, 0, len(internal.DayParts))
	for _, dp := range internal.DayParts {
		ordered = append(ordered, parts[dp])
	}
	return map[internal.Category][]internal.TimeWindow{
		internal.CategoryStressRelief: boosted(ordered, stressPeaks),
		internal.CategoryEnergyBoost:  boosted(ordered, energyLows),
		internal.CategorySleepPrep: {
			{StartHour: (sleep.BedtimeHour + 23) % 24, EndHour: sleep.BedtimeHour, Effectiveness: 0.8},
		},
		internal.CategoryCelebration: append([]internal.TimeWindow(nil), ordered...),
		internal.CategoryReminder:    append([]internal.TimeWindow(nil), ordered...),
	}
}

// boosted keeps the windows that overlap the given hours, falling back to all of them.
func boosted(windows []internal.TimeWindow, hours []int) []internal.TimeWindow {
	var out []internal.TimeWindow
	for _, w := range windows {
		for _, h := range hours {
			if w.Contains(h) {
				w.Effectiveness = math.Min(1, w.Effectiveness+windowBoost)
				out = append(out, w)
				break
			}
		}
	}
	if len(out) == 0 {
		return append([]internal.TimeWindow(nil), windows...)
	}
	return out
}

func responseRates(activities []internal.ActivityRecord) (map[int]float64, map[time.Weekday]float64, map[internal.Category]float64) {
	type tally struct{ done, total int }
	hours := map[int]*tally{}
	days := map[time.Weekday]*tally{}
	cats := map[internal.Category]*tally{}
	bump := func(t *tally, done bool) {
		t.total++
		if done {
			t.done++
		}
	}
	for _, a := range activities {
		h, d := a.Timestamp.Hour(), a.Timestamp.Weekday()
		if hours[h] == nil {
			hours[h] = &tally{}
		}
		if days[d] == nil {
			days[d] = &tally{}
		}
		if cats[a.Category] == nil {
			cats[a.Category] = &tally{}
		}
		bump(hours[h], a.Completed)
		bump(days[d], a.Completed)
		bump(cats[a.Category], a.Completed)
	}

	byHour := make(map[int]float64, len(hours))
	for h, t := range hours {
		byHour[h] = float64(t.done) / float64(t.total)
	}
	byDay := make(map[time.Weekday]float64, len(days))
	for d, t := range days {
		byDay[d] = float64(t.done) / float64(t.total)
	}
	byCat := make(map[internal.Category]float64, len(cats))
	for c, t := range cats {
		byCat[c] = float64(t.done) / float64(t.total)
	}
	return byHour, byDay, byCat
}

func burnoutIndicators(activities []internal.ActivityRecord, now time.Time) internal.BurnoutIndicators {
	weekAgo := now.AddDate(0, 0, -7)
	twoWeeksAgo := now.AddDate(0, 0, -14)

	var thisWeek, lastWeek []internal.ActivityRecord
	for _, a := range activities {
		switch {
		case a.Timestamp.After(now):
		case a.Timestamp.After(weekAgo):
			thisWeek = append(thisWeek, a)
		case a.Timestamp.After(twoWeeksAgo):
			lastWeek = append(lastWeek, a)
		}
	}
	sort.Slice(thisWeek, func(i, j int) bool {
		return thisWeek[i].Timestamp.After(thisWeek[j].Timestamp)
	})

	consecutive := 0
	for _, a := range thisWeek {
		if a.Completed {
			break
		}
		consecutive++
	}

	thisRate, thisOK := completionRate(thisWeek)
	lastRate, lastOK := completionRate(lastWeek)
	decline := thisOK && lastOK && thisRate < declineFactor*lastRate

	fatigue := float64(consecutive) / dismissalScale
	if decline {
		fatigue += declineWeight
	}
	return internal.BurnoutIndicators{
		ConsecutiveDismissals: consecutive,
		WeeklyDecline:         decline,
		FatigueScore:          math.Min(1, fatigue),
	}
}

func completionRate(records []internal.ActivityRecord) (float64, bool) {
	if len(records) == 0 {
		return 0, false
	}
	done := 0
	for _, r := range records {
		if r.Completed {
			done++
		}
	}
	return float64(done) / float64(len(records)), true
}

type hourly struct {
	sum [24]float64
	n   [24]int
}

func (h *hourly) add(hour int, v float64) {
	h.sum[hour] += v
	h.n[hour]++
}

// overall is the mean of the hourly means over hours with data.
func (h *hourly) overall() (float64, bool) {
	total, hours := 0.0, 0
	for i := 0; i < 24; i++ {
		if h.n[i] > 0 {
			total += h.sum[i] / float64(h.n[i])
			hours++
		}
	}
	if hours == 0 {
		return 0, false
	}
	return total / float64(hours), true
}

func (h *hourly) hoursAbove(factor float64) []int {
	return h.filter(func(mean, overall float64) bool { return mean > factor*overall })
}

func (h *hourly) hoursBelow(factor float64) []int {
	return h.filter(func(mean, overall float64) bool { return mean < factor*overall })
}

func (h *hourly) filter(keep func(mean, overall float64) bool) []int {
	out := []int{}
	overall, ok := h.overall()
	if !ok || overall <= 0 {
		return out
	}
	for i := 0; i < 24; i++ {
		if h.n[i] == 0 {
			continue
		}
		if keep(h.sum[i]/float64(h.n[i]), overall) {
			out = append(out, i)
		}
	}
	return out
}
