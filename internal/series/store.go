package series

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"MetalWatch/internal/model"
)

// ErrOutOfOrder is returned when a tick arrives with a timestamp earlier
// than the newest recorded point for its instrument. Existing history is
// never reordered.
var ErrOutOfOrder = errors.New("tick older than series head")

// ErrUnknownInstrument is returned for tickers outside the fixed universe.
var ErrUnknownInstrument = errors.New("unknown instrument")

// Store owns the per-instrument price series. One writer at a time per
// instrument; readers take immutable snapshots under a brief critical
// section.
type Store struct {
	tickRetention time.Duration
	maxDaily      int

	mu     sync.RWMutex
	series map[string]*instrumentSeries
}

type instrumentSeries struct {
	mu     sync.RWMutex
	ticks  []model.PricePoint
	daily  []model.DailyClose
	curDay *model.DailyClose // accumulating trading day (UTC)
}

// NewStore creates a store for the fixed instrument set. tickRetention
// bounds the tick-granularity window (minimum 24h per the retention
// contract); maxDaily bounds the daily-close history.
func NewStore(tickRetention time.Duration, maxDaily int) *Store {
	if tickRetention < 24*time.Hour {
		tickRetention = 24 * time.Hour
	}
	if maxDaily <= 0 {
		maxDaily = 400
	}
	s := &Store{
		tickRetention: tickRetention,
		maxDaily:      maxDaily,
		series:        make(map[string]*instrumentSeries, len(model.Instruments)),
	}
	for _, t := range model.Tickers() {
		s.series[t] = &instrumentSeries{}
	}
	return s
}

func (s *Store) get(ticker string) (*instrumentSeries, error) {
	s.mu.RLock()
	is, ok := s.series[ticker]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstrument, ticker)
	}
	return is, nil
}

// Append records one tick. Timestamps must be non-decreasing per
// instrument; older arrivals are rejected.
func (s *Store) Append(p model.PricePoint) error {
	is, err := s.get(p.Instrument)
	if err != nil {
		return err
	}

	is.mu.Lock()
	defer is.mu.Unlock()

	if n := len(is.ticks); n > 0 && p.Time.Before(is.ticks[n-1].Time) {
		return fmt.Errorf("%w: %s at %s", ErrOutOfOrder, p.Instrument, p.Time.Format(time.RFC3339))
	}
	is.ticks = append(is.ticks, p)
	is.rollDay(p)
	is.expire(p.Time.Add(-s.tickRetention))
	is.capDaily(s.maxDaily)
	return nil
}

// rollDay folds the tick into the accumulating UTC trading day, closing
// the previous day when the date changes.
func (is *instrumentSeries) rollDay(p model.PricePoint) {
	day := p.Time.UTC().Truncate(24 * time.Hour)
	if is.curDay == nil || !is.curDay.Day.Equal(day) {
		if is.curDay != nil {
			is.daily = append(is.daily, *is.curDay)
		}
		is.curDay = &model.DailyClose{Day: day, Open: p.Price, High: p.Price, Low: p.Price, Close: p.Price, Volume: p.Volume}
		return
	}
	if p.Price > is.curDay.High {
		is.curDay.High = p.Price
	}
	if p.Price < is.curDay.Low {
		is.curDay.Low = p.Price
	}
	is.curDay.Close = p.Price
	is.curDay.Volume += p.Volume
}

func (is *instrumentSeries) expire(cutoff time.Time) {
	i := 0
	for i < len(is.ticks) && is.ticks[i].Time.Before(cutoff) {
		i++
	}
	if i > 0 {
		is.ticks = append([]model.PricePoint(nil), is.ticks[i:]...)
	}
}

func (is *instrumentSeries) capDaily(max int) {
	if len(is.daily) > max {
		is.daily = append([]model.DailyClose(nil), is.daily[len(is.daily)-max:]...)
	}
}

// SeedDailyCloses backfills daily history (e.g. from persistence or a
// historical fetch) without touching the tick window. Closes must be
// chronological.
func (s *Store) SeedDailyCloses(ticker string, closes []model.DailyClose) error {
	is, err := s.get(ticker)
	if err != nil {
		return err
	}
	is.mu.Lock()
	defer is.mu.Unlock()
	is.daily = append(append([]model.DailyClose(nil), closes...), is.daily...)
	is.capDaily(s.maxDaily)
	return nil
}

// Snapshot returns an immutable copy of one instrument's series.
func (s *Store) Snapshot(ticker string) (model.SeriesSnapshot, error) {
	is, err := s.get(ticker)
	if err != nil {
		return model.SeriesSnapshot{}, err
	}
	is.mu.RLock()
	defer is.mu.RUnlock()

	snap := model.SeriesSnapshot{
		Instrument:  ticker,
		Ticks:       append([]model.PricePoint(nil), is.ticks...),
		DailyCloses: append([]model.DailyClose(nil), is.daily...),
		TakenAt:     time.Now().UTC(),
	}
	if is.curDay != nil {
		snap.DailyCloses = append(snap.DailyCloses, *is.curDay)
	}
	return snap, nil
}

// LatestPrice returns the newest tick for an instrument, or false when no
// data has arrived yet.
func (s *Store) LatestPrice(ticker string) (model.PricePoint, bool) {
	is, err := s.get(ticker)
	if err != nil {
		return model.PricePoint{}, false
	}
	is.mu.RLock()
	defer is.mu.RUnlock()
	if len(is.ticks) == 0 {
		return model.PricePoint{}, false
	}
	return is.ticks[len(is.ticks)-1], true
}
