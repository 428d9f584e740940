package model

import "time"

// SignalKind names the non-movement instrument alerts: price breaking or
// approaching a derived level, and outsized on-chain transfer activity.
type SignalKind string

const (
	SignalLevelBreak     SignalKind = "rompimento"
	SignalLevelProximity SignalKind = "proximidade"
	SignalWhale          SignalKind = "baleia"
)

// SignalEvent rides the same dispatch pipeline as a MovementEvent but is
// rate-limited under its own ledger key, so a level break and a movement
// alert on the same instrument do not gate each other.
type SignalEvent struct {
	Instrument string
	Kind       SignalKind
	Severity   Severity
	Direction  int // +1 upward / accumulation, -1 downward / distribution

	// Level signals
	LevelName    string
	LevelValue   float64
	CurrentPrice float64
	DistancePct  float64 // proximity only; distance from the level

	// Whale signals
	Whale *WhaleSummary

	Time time.Time
}

// LedgerKey separates each signal kind's rate limiting from movement
// alerts on the same instrument.
func (e SignalEvent) LedgerKey() string {
	return e.Instrument + "#" + string(e.Kind)
}
