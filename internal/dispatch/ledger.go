package dispatch

import (
	"fmt"
	"log"
	"sync"
	"time"

	"MetalWatch/internal/model"
	"MetalWatch/internal/storage"
)

type ledgerKey struct {
	instrument string
	severity   model.Severity
}

// Ledger is the dedup/rate-limit record keyed by (instrument, severity).
// TryAcquire is a single compare-and-update step, so two concurrent
// classification cycles can never both pass the check for the same key.
type Ledger struct {
	persist storage.Store

	mu   sync.Mutex
	last map[ledgerKey]time.Time
}

// NewLedger loads persisted dispatch records so the minimum re-alert
// interval survives restarts.
func NewLedger(persist storage.Store) (*Ledger, error) {
	l := &Ledger{persist: persist, last: make(map[ledgerKey]time.Time)}
	recs, err := persist.LoadDispatchRecords()
	if err != nil {
		return nil, fmt.Errorf("load dispatch records: %w", err)
	}
	for _, r := range recs {
		l.last[ledgerKey{r.Instrument, r.Severity}] = r.LastSent
	}
	return l, nil
}

// TryAcquire checks the tier's minimum interval and, when clear, records
// now as the last-sent time in the same critical section. Returns false
// when a prior alert for the key is still within the interval.
func (l *Ledger) TryAcquire(instrument string, sev model.Severity, now time.Time) bool {
	l.mu.Lock()
	key := ledgerKey{instrument, sev}
	if last, ok := l.last[key]; ok && now.Sub(last) < sev.MinInterval() {
		l.mu.Unlock()
		return false
	}
	l.last[key] = now
	l.mu.Unlock()

	// Persistence is outside the critical section; the in-memory map is
	// authoritative for the running process.
	if err := l.persist.SaveDispatchRecord(model.DispatchRecord{
		Instrument: instrument, Severity: sev, LastSent: now,
	}); err != nil {
		log.Printf("[ERROR] persist dispatch record %s/%s: %v", instrument, sev, err)
	}
	return true
}

// LastSent returns the most recent acquisition for a key.
func (l *Ledger) LastSent(instrument string, sev model.Severity) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.last[ledgerKey{instrument, sev}]
	return t, ok
}
