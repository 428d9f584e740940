package fuser

import (
	"testing"
	"time"

	"MetalWatch/internal/model"
)

func TestEnrich_NoSnapshot(t *testing.T) {
	f := New()
	e := f.Enrich("XAU", 1)
	if e.Snapshot != nil {
		t.Fatal("expected nil snapshot")
	}
	if e.TechnicalVote != 1 || e.InstitutionalVote != 0 || e.OnChainVote != 0 {
		t.Fatalf("unexpected votes: %+v", e)
	}
}

func TestEnrich_FullAgreement(t *testing.T) {
	f := New()
	f.Update(model.InstitutionalSnapshot{
		Instrument: "XAU",
		COT:        &model.COTData{ManagedMoneyNet: 150000, WeeklyChange: 25000, OpenInterest: 400000},
		ETF:        &model.ETFFlow{Symbols: []string{"GLD"}, DeltaUSD: 80_000_000},
		Whale:      &model.WhaleSummary{Transfers: 3, TotalUSD: 5_000_000, NetDirection: 1},
	})

	e := f.Enrich("XAU", 1)
	if e.InstitutionalVote != 1 || e.OnChainVote != 1 {
		t.Fatalf("unexpected votes: %+v", e)
	}
	if got := e.ConfluenceCount(1); got != 3 {
		t.Fatalf("confluence = %d, want 3", got)
	}
	if got := e.ConfluenceCount(-1); got != 0 {
		t.Fatalf("opposite confluence = %d, want 0", got)
	}
}

func TestEnrich_DisagreementCancels(t *testing.T) {
	f := New()
	f.Update(model.InstitutionalSnapshot{
		Instrument: "XAG",
		COT:        &model.COTData{WeeklyChange: 10000, OpenInterest: 100000},
		ETF:        &model.ETFFlow{DeltaUSD: -60_000_000},
	})

	e := f.Enrich("XAG", 0)
	if e.InstitutionalVote != 0 {
		t.Fatalf("conflicting COT/ETF should cancel, got %d", e.InstitutionalVote)
	}
}

func TestUpdate_ReplacesWhole(t *testing.T) {
	f := New()
	f.Update(model.InstitutionalSnapshot{
		Instrument: "XAU",
		COT:        &model.COTData{WeeklyChange: 1000},
		Whale:      &model.WhaleSummary{NetDirection: 1},
	})
	// Next cycle carries only COT: the whale summary must not survive.
	f.Update(model.InstitutionalSnapshot{
		Instrument: "XAU",
		COT:        &model.COTData{WeeklyChange: -500},
	})

	snap, ok := f.Latest("XAU")
	if !ok {
		t.Fatal("snapshot missing")
	}
	if snap.Whale != nil {
		t.Fatal("stale whale data merged across snapshots")
	}
	if snap.COT.WeeklyChange != -500 {
		t.Fatalf("stale COT: %+v", snap.COT)
	}
}

func TestCOT_NetPercentOfOI(t *testing.T) {
	c := model.COTData{ManagedMoneyNet: 120000, OpenInterest: 400000, ReportDate: time.Now()}
	if got := c.NetPercentOfOI(); got != 30 {
		t.Fatalf("net%%OI = %v, want 30", got)
	}
	if got := (model.COTData{}).NetPercentOfOI(); got != 0 {
		t.Fatalf("zero OI should give 0, got %v", got)
	}
}
