package institutional

import (
	"context"
	"log"
	"time"

	"MetalWatch/internal/fuser"
	"MetalWatch/internal/model"
)

// Service refreshes every instrument through all configured sources and
// pushes the merged snapshot to the fuser. Each source contributes the
// fields it knows; a failing source leaves its fields nil rather than
// blocking the cycle.
type Service struct {
	Fetchers []Fetcher
	Fuser    *fuser.Fuser
}

func NewService(fetchers []Fetcher, f *fuser.Fuser) *Service {
	return &Service{Fetchers: fetchers, Fuser: f}
}

// RefreshAll merges one snapshot per instrument and publishes it.
func (s *Service) RefreshAll(ctx context.Context) {
	for _, ticker := range model.Tickers() {
		if ctx.Err() != nil {
			return
		}
		s.Fuser.Update(s.merge(ctx, ticker))
	}
}

func (s *Service) merge(ctx context.Context, ticker string) model.InstitutionalSnapshot {
	merged := model.InstitutionalSnapshot{Instrument: ticker, TakenAt: time.Now().UTC()}
	for _, f := range s.Fetchers {
		snap, err := f.Fetch(ctx, ticker)
		if err != nil {
			log.Printf("[WARN] institutional %s/%s: %v", f.Name(), ticker, err)
			continue
		}
		if snap.COT != nil {
			merged.COT = snap.COT
		}
		if snap.ETF != nil {
			merged.ETF = snap.ETF
		}
		if snap.Whale != nil {
			merged.Whale = snap.Whale
		}
	}
	return merged
}
