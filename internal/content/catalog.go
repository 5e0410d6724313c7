// Package content supplies the copy shown in an intervention.
package content

import (
	"encoding/json"

	"github.com/Padu76/lifeOS-sub000/internal"
)

type Message struct {
	Title           string            `json:"title"`
	Body            string            `json:"body"`
	Action          string            `json:"action,omitempty"`
	DurationMinutes int               `json:"duration_minutes,omitempty"`
	Category        internal.Category `json:"category"`
}

// Payload is the opaque blob stored on the intervention and forwarded to the gateway.
func (m Message) Payload() (json.RawMessage, error) {
	return json.Marshal(m)
}

// Catalog is read-only; implementations must be safe for concurrent use.
type Catalog interface {
	Lookup(category internal.Category, chronotype internal.Chronotype) (Message, bool)
}

type key struct {
	category   internal.Category
	chronotype internal.Chronotype
}

type StaticCatalog struct {
	byKey      map[key]Message
	byCategory map[internal.Category]Message
}

// Lookup prefers a chronotype-specific message and falls back to the category default.
func (c *StaticCatalog) Lookup(category internal.Category, chronotype internal.Chronotype) (Message, bool) {
	if m, ok := c.byKey[key{category, chronotype}]; ok {
		return m, true
	}
	m, ok := c.byCategory[category]
	return m, ok
}

func NewStaticCatalog() *StaticCatalog {
	c := &StaticCatalog{
		byKey:      make(map[key]Message),
		byCategory: make(map[internal.Category]Message),
	}
	c.byCategory[internal.CategoryStressRelief] = Message{
		Title:           "Take a breath",
		Body:            "Stress tends to build around now. Two minutes of box breathing can reset it.",
		Action:          "start_breathing",
		DurationMinutes: 2,
	}
	c.byCategory[internal.CategoryEnergyBoost] = Message{
		Title:           "Quick recharge",
		Body:            "Stand up, stretch and grab some water before the next task.",
		Action:          "start_stretch",
		DurationMinutes: 5,
	}
	c.byCategory[internal.CategorySleepPrep] = Message{
		Title:           "Wind down",
		Body:            "Bedtime is about an hour away. Dim the lights and put the screens aside.",
		Action:          "start_wind_down",
		DurationMinutes: 10,
	}
	c.byCategory[internal.CategoryCelebration] = Message{
		Title: "Nice streak",
		Body:  "You kept your routine going. Take a moment to notice it.",
	}
	c.byCategory[internal.CategoryReminder] = Message{
		Title:  "Check in",
		Body:   "How are you feeling right now? A quick check-in helps us time things better.",
		Action: "open_checkin",
	}

	c.byKey[key{internal.CategoryEnergyBoost, internal.ChronotypeEarlyBird}] = Message{
		Title:           "Afternoon dip",
		Body:            "Early risers often fade after lunch. A short walk outside helps.",
		Action:          "start_walk",
		DurationMinutes: 10,
	}
	c.byKey[key{internal.CategoryEnergyBoost, internal.ChronotypeNightOwl}] = Message{
		Title:           "Ease into the day",
		Body:            "Mornings are hard for night owls. Get some daylight before coffee.",
		Action:          "start_light_exposure",
		DurationMinutes: 5,
	}
	c.byKey[key{internal.CategorySleepPrep, internal.ChronotypeNightOwl}] = Message{
		Title:           "Start the landing",
		Body:            "Late nights push your schedule further. Begin winding down now.",
		Action:          "start_wind_down",
		DurationMinutes: 15,
	}

	for cat, m := range c.byCategory {
		m.Category = cat
		c.byCategory[cat] = m
	}
	for k, m := range c.byKey {
		m.Category = k.category
		c.byKey[k] = m
	}
	return c
}

var _ Catalog = (*StaticCatalog)(nil)
