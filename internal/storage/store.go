package storage

import (
	"time"

	"MetalWatch/internal/model"
)

// ErrorEntry is one logged failure, surfaced via /erros.
type ErrorEntry struct {
	Component string
	Operation string
	Message   string
	At        time.Time
}

// Store is the durable persistence collaborator: user preferences and the
// dispatch ledger survive restarts; decision and error logs back the
// /status and /erros surfaces.
type Store interface {
	LoadPreferences() ([]model.UserPreference, error)
	SavePreference(p model.UserPreference) error

	LoadDispatchRecords() ([]model.DispatchRecord, error)
	SaveDispatchRecord(rec model.DispatchRecord) error

	RecordDecision(d model.Decision) error
	RecentDecisions(limit int) ([]model.Decision, error)
	DecisionCounts(since time.Time) (sent, suppressed int, err error)

	LogError(component, operation, message string) error
	RecentErrors(limit int) ([]ErrorEntry, error)

	SaveDailyClose(ticker string, d model.DailyClose) error
	LoadDailyCloses(ticker string, limit int) ([]model.DailyClose, error)

	Cleanup(olderThan time.Duration) error
	Close() error
}
