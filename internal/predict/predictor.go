// Package predict chooses when a candidate intervention should fire.
package predict

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Padu76/lifeOS-sub000/internal"
	"github.com/Padu76/lifeOS-sub000/internal/burnout"
)

const (
	quietHoursConfidence = 0.3
	neutralEffectiveness = 0.6
	categoryRateWeight   = 0.3
	hourRateWeight       = 0.2
	fatigueWeight        = 0.3
	maxAlternatives      = 3
)

type Predictor struct {
	guard burnout.Guard
}

func NewPredictor(guard burnout.Guard) *Predictor {
	return &Predictor{guard: guard}
}

// Predict applies, in order: burnout skip, emergency bypass, quiet-hours
// deferral, then the category-specific window search. Hours are compared in
// the pattern's zone, so now may be given in any location.
func (p *Predictor) Predict(req internal.NotificationRequest, pattern internal.UserPattern, now time.Time) internal.TimingDecision {
	d := internal.TimingDecision{Request: req, Reasoning: []string{}}
	now = now.In(pattern.Location(now.Location()))

	if v := p.guard.Evaluate(pattern.Burnout, req.Urgency); v.Suppress {
		d.SuggestedAt = now.Add(v.Cooldown)
		d.ShouldSkip = true
		d.SkipReason = v.Reason
		d.Reasoning = append(d.Reasoning, fmt.Sprintf("burnout cooldown of %s (fatigue %.2f, %d consecutive dismissals)",
			v.Cooldown, pattern.Burnout.FatigueScore, pattern.Burnout.ConsecutiveDismissals))
		return d
	}

	if req.Urgency == internal.UrgencyEmergency {
		d.SuggestedAt = now
		d.Confidence = 1
		d.Reasoning = append(d.Reasoning, "emergency delivery")
		return d
	}

	hour := now.Hour()
	if req.RespectQuietHours && pattern.Sleep.Contains(hour) {
		d.SuggestedAt = nextHour(now, pattern.Sleep.WakeHour)
		d.Confidence = quietHoursConfidence
		d.Reasoning = append(d.Reasoning, fmt.Sprintf("quiet hours %02d:00-%02d:00, deferred to wake time", pattern.Sleep.BedtimeHour, pattern.Sleep.WakeHour))
		return d
	}

	candidates := p.candidateWindows(req, pattern)

	switch req.Category {
	case internal.CategoryStressRelief:
		if containsHour(pattern.StressPeakHours, hour) {
			return p.immediate(d, pattern, candidates, now, "stress peak period")
		}
	case internal.CategoryEnergyBoost:
		if containsHour(pattern.EnergyLowHours, hour) {
			return p.immediate(d, pattern, candidates, now, "energy low period")
		}
	}

	var chosen internal.TimeWindow
	switch req.Category {
	case internal.CategorySleepPrep:
		chosen = sleepPrepWindow(pattern)
		d.Reasoning = append(d.Reasoning, fmt.Sprintf("one hour before bedtime (%02d:00)", pattern.Sleep.BedtimeHour))
	case internal.CategoryCelebration:
		chosen = bestWindow(candidates)
		d.Reasoning = append(d.Reasoning, "highest-effectiveness window")
	default:
		chosen = earliestWindow(candidates, now)
		d.Reasoning = append(d.Reasoning, "next optimal window")
	}

	d.SuggestedAt = nextStart(now, chosen)
	d.Confidence = confidence(chosen.Effectiveness, req.Category, d.SuggestedAt.Hour(), pattern)
	d.Reasoning = append(d.Reasoning,
		fmt.Sprintf("%s chronotype, window %02d:00-%02d:00 (effectiveness %.2f)", pattern.Chronotype, chosen.StartHour, chosen.EndHour, chosen.Effectiveness))
	d.Alternatives = alternatives(candidates, pattern, chosen, d.SuggestedAt, req.RespectQuietHours, now)
	return d
}

func (p *Predictor) immediate(d internal.TimingDecision, pattern internal.UserPattern, candidates []internal.TimeWindow, now time.Time, why string) internal.TimingDecision {
	base := neutralEffectiveness
	current := internal.TimeWindow{StartHour: now.Hour(), EndHour: (now.Hour() + 1) % 24}
	for _, w := range candidates {
		if w.Contains(now.Hour()) {
			base, current = w.Effectiveness, w
			break
		}
	}
	d.SuggestedAt = now
	d.Confidence = confidence(base, d.Request.Category, now.Hour(), pattern)
	d.Reasoning = append(d.Reasoning, why)
	d.Alternatives = alternatives(candidates, pattern, current, now, d.Request.RespectQuietHours, now)
	return d
}

// candidateWindows never returns an empty slice. Windows starting inside quiet
// hours are dropped for requests that honor them, unless nothing else is left.
func (p *Predictor) candidateWindows(req internal.NotificationRequest, pattern internal.UserPattern) []internal.TimeWindow {
	windows := pattern.CategoryWindows[req.Category]
	if len(windows) == 0 {
		for _, dp := range internal.DayParts {
			if w, ok := pattern.OptimalWindows[dp]; ok {
				windows = append(windows, w)
			}
		}
	}
	if len(windows) == 0 {
		windows = []internal.TimeWindow{{StartHour: 9, EndHour: 21, Effectiveness: neutralEffectiveness}}
	}
	if !req.RespectQuietHours {
		return windows
	}
	var awake []internal.TimeWindow
	for _, w := range windows {
		if !pattern.Sleep.Contains(w.StartHour) {
			awake = append(awake, w)
		}
	}
	if len(awake) == 0 {
		return windows
	}
	return awake
}

func confidence(base float64, cat internal.Category, hour int, pattern internal.UserPattern) float64 {
	c := base +
		pattern.ResponseByCategory[cat]*categoryRateWeight +
		pattern.ResponseByHour[hour]*hourRateWeight -
		pattern.Burnout.FatigueScore*fatigueWeight
	return math.Max(0, math.Min(1, c))
}

func alternatives(candidates []internal.TimeWindow, pattern internal.UserPattern, chosen internal.TimeWindow, suggested time.Time, quiet bool, now time.Time) []time.Time {
	pool := append([]internal.TimeWindow(nil), candidates...)
	for _, dp := range internal.DayParts {
		if w, ok := pattern.OptimalWindows[dp]; ok {
			pool = append(pool, w)
		}
	}
	seen := map[[2]int]bool{{chosen.StartHour, chosen.EndHour}: true}
	var out []time.Time
	for _, w := range pool {
		key := [2]int{w.StartHour, w.EndHour}
		if seen[key] {
			continue
		}
		seen[key] = true
		if quiet && pattern.Sleep.Contains(w.StartHour) {
			continue
		}
		at := nextStart(now, w)
		if at.Equal(suggested) {
			continue
		}
		out = append(out, at)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	if len(out) > maxAlternatives {
		out = out[:maxAlternatives]
	}
	return out
}

func sleepPrepWindow(pattern internal.UserPattern) internal.TimeWindow {
	bed := pattern.Sleep.BedtimeHour
	w := internal.TimeWindow{StartHour: (bed + 23) % 24, EndHour: bed, Effectiveness: 0.8}
	for _, cw := range pattern.CategoryWindows[internal.CategorySleepPrep] {
		if cw.StartHour == w.StartHour {
			w.Effectiveness = cw.Effectiveness
		}
	}
	return w
}

func bestWindow(windows []internal.TimeWindow) internal.TimeWindow {
	best := windows[0]
	for _, w := range windows[1:] {
		if w.Effectiveness > best.Effectiveness {
			best = w
		}
	}
	return best
}

func earliestWindow(windows []internal.TimeWindow, now time.Time) internal.TimeWindow {
	best := windows[0]
	bestAt := nextStart(now, best)
	for _, w := range windows[1:] {
		if at := nextStart(now, w); at.Before(bestAt) {
			best, bestAt = w, at
		}
	}
	return best
}

// nextStart is now when inside w, otherwise the next top of w.StartHour.
func nextStart(now time.Time, w internal.TimeWindow) time.Time {
	if w.Contains(now.Hour()) {
		return now
	}
	return nextHour(now, w.StartHour)
}

// nextHour is the first hh:00 strictly after now, wrapping to the next day.
func nextHour(now time.Time, hour int) time.Time {
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !t.After(now) {
		t = time.Date(now.Year(), now.Month(), now.Day()+1, hour, 0, 0, 0, now.Location())
	}
	return t
}

func containsHour(hours []int, h int) bool {
	for _, x := range hours {
		if x == h {
			return true
		}
	}
	return false
}
