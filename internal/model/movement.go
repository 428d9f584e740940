package model

import "time"

// Severity is the alert tier of a movement event.
type Severity string

const (
	SeverityCritical  Severity = "CRITICO"
	SeverityImportant Severity = "IMPORTANTE"
	SeverityInfo      Severity = "INFO"
)

// Emoji returns the tier marker used in user-facing messages.
func (s Severity) Emoji() string {
	switch s {
	case SeverityCritical:
		return "🔴"
	case SeverityImportant:
		return "🟡"
	default:
		return "🟢"
	}
}

// Window returns the lookback window of the tier.
func (s Severity) Window() time.Duration {
	switch s {
	case SeverityCritical:
		return 15 * time.Minute
	case SeverityImportant:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// Threshold returns the absolute percent-change threshold of the tier.
func (s Severity) Threshold() float64 {
	switch s {
	case SeverityCritical:
		return 2.0
	case SeverityImportant:
		return 1.0
	default:
		return 0.5
	}
}

// MinInterval returns the minimum re-alert interval enforced by the
// dispatch ledger for this tier.
func (s Severity) MinInterval() time.Duration {
	switch s {
	case SeverityCritical:
		return 15 * time.Minute
	case SeverityImportant:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// SeveritiesByRank lists tiers from most to least severe; the classifier
// checks them in this order and reports only the first breach.
var SeveritiesByRank = []Severity{SeverityCritical, SeverityImportant, SeverityInfo}

// MovementEvent is one classified price movement. Consumed once by the
// dispatcher, then discarded.
type MovementEvent struct {
	Instrument     string
	Severity       Severity
	ChangePercent  float64
	Window         time.Duration
	ReferencePrice float64
	CurrentPrice   float64
	Time           time.Time
}

// Direction is +1 for an upward move, -1 for downward, 0 for flat.
func (e MovementEvent) Direction() int {
	switch {
	case e.CurrentPrice > e.ReferencePrice:
		return 1
	case e.CurrentPrice < e.ReferencePrice:
		return -1
	}
	return 0
}
