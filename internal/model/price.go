package model

import "time"

// PricePoint is a single observed tick for one instrument. Immutable once
// recorded; timestamps are strictly non-decreasing within a series.
type PricePoint struct {
	Instrument string
	Time       time.Time
	Price      float64
	Volume     float64
}

// DailyClose is one completed trading day, kept beyond tick retention for
// moving-average computation.
type DailyClose struct {
	Day    time.Time // midnight UTC of the trading day
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// SeriesSnapshot is an immutable view of one instrument's series, taken
// under the store's lock and safe for concurrent readers.
type SeriesSnapshot struct {
	Instrument  string
	Ticks       []PricePoint // bounded tick-granularity window, oldest first
	DailyCloses []DailyClose // daily granularity, oldest first
	TakenAt     time.Time
}

// Latest returns the most recent tick, or false when the series is empty.
func (s SeriesSnapshot) Latest() (PricePoint, bool) {
	if len(s.Ticks) == 0 {
		return PricePoint{}, false
	}
	return s.Ticks[len(s.Ticks)-1], true
}

// At returns the latest tick at or before t, or false when the series does
// not reach back that far.
func (s SeriesSnapshot) At(t time.Time) (PricePoint, bool) {
	for i := len(s.Ticks) - 1; i >= 0; i-- {
		if !s.Ticks[i].Time.After(t) {
			return s.Ticks[i], true
		}
	}
	return PricePoint{}, false
}
