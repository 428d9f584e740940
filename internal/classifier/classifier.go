package classifier

import (
	"math"
	"time"

	"MetalWatch/internal/model"
)

// Classifier compares the current price against historical snapshots over
// the three tier windows. It runs on a fixed polling cadence, not per
// tick, so load stays bounded regardless of tick rate.
type Classifier struct{}

func New() *Classifier { return &Classifier{} }

// Classify returns at most one MovementEvent per instrument per cycle, at
// the highest severity whose threshold is breached. Tiers are checked
// most-severe first and are not cumulative. A window the series cannot
// reach back through is skipped, never treated as a breach.
func (c *Classifier) Classify(snap model.SeriesSnapshot, now time.Time) (model.MovementEvent, bool) {
	current, ok := snap.Latest()
	if !ok {
		return model.MovementEvent{}, false
	}

	for _, sev := range model.SeveritiesByRank {
		ref, ok := snap.At(now.Add(-sev.Window()))
		if !ok || ref.Price == 0 {
			continue
		}
		changePct := (current.Price - ref.Price) / ref.Price * 100
		// Strict breach: a move exactly at the threshold does not alert.
		if math.Abs(changePct) <= sev.Threshold() {
			continue
		}
		return model.MovementEvent{
			Instrument:     snap.Instrument,
			Severity:       sev,
			ChangePercent:  changePct,
			Window:         sev.Window(),
			ReferencePrice: ref.Price,
			CurrentPrice:   current.Price,
			Time:           now.UTC(),
		}, true
	}
	return model.MovementEvent{}, false
}
