package storage

import (
	"time"

	"MetalWatch/internal/model"
)

// NoopStore discards everything. Used when sqlite cannot be opened so the
// alert path keeps running without durability.
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (n *NoopStore) LoadPreferences() ([]model.UserPreference, error)     { return nil, nil }
func (n *NoopStore) SavePreference(model.UserPreference) error            { return nil }
func (n *NoopStore) LoadDispatchRecords() ([]model.DispatchRecord, error) { return nil, nil }
func (n *NoopStore) SaveDispatchRecord(model.DispatchRecord) error        { return nil }
func (n *NoopStore) RecordDecision(model.Decision) error                  { return nil }
func (n *NoopStore) RecentDecisions(int) ([]model.Decision, error)        { return nil, nil }
func (n *NoopStore) DecisionCounts(time.Time) (int, int, error)           { return 0, 0, nil }
func (n *NoopStore) LogError(string, string, string) error                { return nil }
func (n *NoopStore) RecentErrors(int) ([]ErrorEntry, error)               { return nil, nil }
func (n *NoopStore) SaveDailyClose(string, model.DailyClose) error        { return nil }
func (n *NoopStore) LoadDailyCloses(string, int) ([]model.DailyClose, error) {
	return nil, nil
}
func (n *NoopStore) Cleanup(time.Duration) error { return nil }
func (n *NoopStore) Close() error                { return nil }
