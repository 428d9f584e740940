package model

import "time"

// COTData is the managed-money slice of the weekly CFTC Commitment of
// Traders report for one instrument.
type COTData struct {
	ManagedMoneyNet    int64
	WeeklyChange       int64
	OpenInterest       int64
	ReportDate         time.Time
}

// NetPercentOfOI returns managed-money net as a percentage of open
// interest, or 0 when open interest is unknown.
func (c COTData) NetPercentOfOI() float64 {
	if c.OpenInterest == 0 {
		return 0
	}
	return float64(c.ManagedMoneyNet) / float64(c.OpenInterest) * 100
}

// ETFFlow is the latest observed fund-flow delta across the instrument's
// tracked ETFs.
type ETFFlow struct {
	Symbols      []string
	DeltaUSD     float64 // positive = inflow
	HoldingsTons float64
}

// WhaleSummary aggregates large on-chain transfers of the instrument's
// tokenized representations since the previous snapshot.
type WhaleSummary struct {
	Transfers    int
	TotalUSD     float64
	NetDirection int // +1 accumulating, -1 distributing, 0 mixed/none
}

// InstitutionalSnapshot fuses COT, ETF, and on-chain signals for one
// instrument. Each fetch cycle replaces the snapshot entirely.
type InstitutionalSnapshot struct {
	Instrument string
	COT        *COTData
	ETF        *ETFFlow
	Whale      *WhaleSummary
	TakenAt    time.Time
}

// Enrichment is the institutional context attached to an outbound alert.
// Missing source data degrades fields to nil; it never blocks dispatch.
type Enrichment struct {
	Snapshot *InstitutionalSnapshot

	// Directional votes for confluence counting: +1 bullish, -1 bearish,
	// 0 no signal.
	TechnicalVote     int
	InstitutionalVote int
	OnChainVote       int

	// LLMNote is free-text elaboration; empty when the language-model
	// pool was unavailable.
	LLMNote string
}

// ConfluenceCount returns how many signal families agree with the given
// movement direction.
func (e Enrichment) ConfluenceCount(direction int) int {
	n := 0
	for _, v := range []int{e.TechnicalVote, e.InstitutionalVote, e.OnChainVote} {
		if v != 0 && v == direction {
			n++
		}
	}
	return n
}
