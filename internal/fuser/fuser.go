package fuser

import (
	"sync"
	"time"

	"MetalWatch/internal/model"
)

// Fuser keeps the latest institutional snapshot per instrument and turns
// it into enrichment for outbound alerts. Each fetch cycle replaces the
// snapshot entirely; there is no partial merge. Missing data degrades the
// enrichment, never the dispatch decision.
type Fuser struct {
	mu    sync.RWMutex
	snaps map[string]model.InstitutionalSnapshot
}

func New() *Fuser {
	return &Fuser{snaps: make(map[string]model.InstitutionalSnapshot)}
}

// Update replaces the instrument's snapshot.
func (f *Fuser) Update(s model.InstitutionalSnapshot) {
	if s.TakenAt.IsZero() {
		s.TakenAt = time.Now().UTC()
	}
	f.mu.Lock()
	f.snaps[s.Instrument] = s
	f.mu.Unlock()
}

// Latest returns the current snapshot for an instrument.
func (f *Fuser) Latest(ticker string) (model.InstitutionalSnapshot, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.snaps[ticker]
	return s, ok
}

// Enrich builds the enrichment attached to an alert. techVote comes from
// the technical analyzer; institutional and on-chain votes are derived
// here. Every field degrades to its zero value when source data is
// absent.
func (f *Fuser) Enrich(ticker string, techVote int) model.Enrichment {
	e := model.Enrichment{TechnicalVote: techVote}

	snap, ok := f.Latest(ticker)
	if !ok {
		return e
	}
	e.Snapshot = &snap
	e.InstitutionalVote = institutionalVote(snap)
	if snap.Whale != nil {
		e.OnChainVote = snap.Whale.NetDirection
	}
	return e
}

// institutionalVote combines COT positioning and ETF flow direction into
// a single vote: agreement gives the shared sign, disagreement or absence
// gives no signal.
func institutionalVote(s model.InstitutionalSnapshot) int {
	cot, etf := 0, 0
	if s.COT != nil {
		switch {
		case s.COT.WeeklyChange > 0:
			cot = 1
		case s.COT.WeeklyChange < 0:
			cot = -1
		}
	}
	if s.ETF != nil {
		switch {
		case s.ETF.DeltaUSD > 0:
			etf = 1
		case s.ETF.DeltaUSD < 0:
			etf = -1
		}
	}
	switch {
	case cot == 0:
		return etf
	case etf == 0:
		return cot
	case cot == etf:
		return cot
	default:
		return 0
	}
}
