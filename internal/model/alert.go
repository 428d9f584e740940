package model

import "time"

// AlertKind distinguishes threshold-triggered alerts from scheduled
// broadcasts. Digests and reminders skip the rate-limit ledger.
type AlertKind string

const (
	AlertMovement AlertKind = "movement"
	AlertSignal   AlertKind = "signal"
	AlertDigest   AlertKind = "digest"
	AlertReminder AlertKind = "reminder"
)

// DispatchRecord is one row of the dedup/rate-limit ledger, keyed by
// (instrument, severity).
type DispatchRecord struct {
	Instrument string
	Severity   Severity
	LastSent   time.Time
}

// SuppressReason explains why an alert was not delivered to a user.
type SuppressReason string

const (
	SuppressNone        SuppressReason = ""
	SuppressPaused      SuppressReason = "paused"
	SuppressMuted       SuppressReason = "muted"
	SuppressFiltered    SuppressReason = "filtered"
	SuppressRateLimited SuppressReason = "rate-limited"
	SuppressDelivery    SuppressReason = "delivery-failed"
)

// Decision is the per-user outcome of one dispatch evaluation, logged for
// the /status and /erros surfaces.
type Decision struct {
	AlertID    string
	UserID     string
	Instrument string
	Severity   Severity
	Kind       AlertKind
	Sent       bool
	Reason     SuppressReason
	At         time.Time
}
