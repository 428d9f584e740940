package analyzer

import (
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"MetalWatch/internal/model"
)

// Config tunes level derivation.
type Config struct {
	ZoneVolumeMultiple float64 // high-volume zone threshold vs average bin
	TouchTolerancePct  float64 // band around a level counted as a touch
	ProximityPct       float64 // distance considered "near" a level
	MaxZones           int
	MaxTouchedLevels   int
}

// DefaultConfig mirrors the production thresholds.
func DefaultConfig() Config {
	return Config{
		ZoneVolumeMultiple: 1.5,
		TouchTolerancePct:  0.5,
		ProximityPct:       0.3,
		MaxZones:           3,
		MaxTouchedLevels:   3,
	}
}

// Analyzer derives TechnicalLevels snapshots from price series. Each
// computation produces a new immutable snapshot; the previous one is kept
// only for lookup between recomputations.
type Analyzer struct {
	cfg Config

	mu     sync.RWMutex
	latest map[string]model.TechnicalLevels
}

func New(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg, latest: make(map[string]model.TechnicalLevels)}
}

// Analyze computes a fresh snapshot for one instrument and caches it.
// Indicators lacking history are flagged absent; that is not an error.
func (a *Analyzer) Analyze(snap model.SeriesSnapshot, now time.Time) (model.TechnicalLevels, error) {
	inst, ok := model.Instruments[snap.Instrument]
	if !ok {
		return model.TechnicalLevels{}, errors.New("unknown instrument: " + snap.Instrument)
	}

	tl := model.TechnicalLevels{Instrument: snap.Instrument, ComputedAt: now.UTC()}

	// Completed days only; the last snapshot entry may be the accumulating
	// current day.
	completed := completedDays(snap.DailyCloses, now)

	if prior, ok := priorDay(completed, now); ok {
		if pv, err := CalculatePivots(prior.High, prior.Low, prior.Close); err == nil {
			tl.Pivots = pv
			tl.HasPivots = true
		} else {
			log.Printf("[WARN] %s pivot calculation failed: %v", snap.Instrument, err)
		}
	}

	if vwap, err := CalculateVWAP(snap.Ticks, SessionStart(inst, now)); err == nil {
		tl.VWAP = vwap
		tl.HasVWAP = true
	}

	closes := extractCloses(completed)
	if sma, err := CalculateSMA(closes, 50); err == nil {
		tl.SMA50 = sma
		tl.HasSMA50 = true
	}
	if sma, err := CalculateSMA(closes, 200); err == nil {
		tl.SMA200 = sma
		tl.HasSMA200 = true
	}

	tl.High52w, tl.Low52w = yearRange(completed, snap.Ticks)
	tl.VolumeZones = FindVolumeZones(snap.Ticks, a.cfg.ZoneVolumeMultiple, a.cfg.MaxZones)
	tl.Touched = FindTouchedLevels(snap.Ticks, completed, a.cfg.TouchTolerancePct, a.cfg.MaxTouchedLevels)

	a.mu.Lock()
	a.latest[snap.Instrument] = tl
	a.mu.Unlock()
	return tl, nil
}

// Latest returns the cached snapshot for an instrument, if any.
func (a *Analyzer) Latest(ticker string) (model.TechnicalLevels, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	tl, ok := a.latest[ticker]
	return tl, ok
}

// TechnicalVote reports the directional bias of the cached levels relative
// to price: +1 above pivot and both MAs present-and-below, -1 the inverse,
// 0 when mixed or unknown.
func (a *Analyzer) TechnicalVote(ticker string, price float64) int {
	tl, ok := a.Latest(ticker)
	if !ok {
		return 0
	}
	score := 0
	if tl.HasPivots {
		if price > tl.Pivots.PP {
			score++
		} else {
			score--
		}
	}
	if tl.HasSMA50 {
		if price > tl.SMA50 {
			score++
		} else {
			score--
		}
	}
	if tl.HasSMA200 {
		if price > tl.SMA200 {
			score++
		} else {
			score--
		}
	}
	switch {
	case score > 0:
		return 1
	case score < 0:
		return -1
	default:
		return 0
	}
}

// LevelSignals evaluates the price against the cached levels and returns
// at most one SignalEvent: a break when the move from prevPrice crossed a
// level, or a proximity notice when price just entered the ProximityPct
// band around one. A zero prevPrice (first cycle) yields nothing, so a
// restart never reports stale crossings.
func (a *Analyzer) LevelSignals(ticker string, prevPrice, price float64, now time.Time) []model.SignalEvent {
	if prevPrice <= 0 || price <= 0 || prevPrice == price {
		return nil
	}
	tl, ok := a.Latest(ticker)
	if !ok {
		return nil
	}

	direction := 1
	if price < prevPrice {
		direction = -1
	}

	var nearest *model.SignalEvent
	for _, l := range tl.Levels(price) {
		if l.Value <= 0 {
			continue
		}
		// A crossed level outranks any proximity notice.
		if (prevPrice < l.Value) != (price < l.Value) && price != l.Value {
			return []model.SignalEvent{{
				Instrument:   ticker,
				Kind:         model.SignalLevelBreak,
				Severity:     model.SeverityCritical,
				Direction:    direction,
				LevelName:    l.Name,
				LevelValue:   l.Value,
				CurrentPrice: price,
				Time:         now.UTC(),
			}}
		}
		dist := math.Abs(price-l.Value) / l.Value * 100
		prevDist := math.Abs(prevPrice-l.Value) / l.Value * 100
		if dist > a.cfg.ProximityPct || prevDist <= a.cfg.ProximityPct {
			continue // outside the band, or was already inside it
		}
		if nearest == nil || dist < nearest.DistancePct {
			nearest = &model.SignalEvent{
				Instrument:   ticker,
				Kind:         model.SignalLevelProximity,
				Severity:     model.SeverityImportant,
				Direction:    direction,
				LevelName:    l.Name,
				LevelValue:   l.Value,
				CurrentPrice: price,
				DistancePct:  dist,
				Time:         now.UTC(),
			}
		}
	}
	if nearest != nil {
		return []model.SignalEvent{*nearest}
	}
	return nil
}

// NearestLevels returns up to n levels directly above and below the price,
// for the /preco and /resumo surfaces.
func (a *Analyzer) NearestLevels(ticker string, price float64, n int) (above, below []model.Level) {
	tl, ok := a.Latest(ticker)
	if !ok {
		return nil, nil
	}
	for _, l := range tl.Levels(price) {
		if l.Value > price {
			above = insertNearest(above, l, n, true)
		} else if l.Value < price {
			below = insertNearest(below, l, n, false)
		}
	}
	return above, below
}

func insertNearest(list []model.Level, l model.Level, n int, ascending bool) []model.Level {
	list = append(list, l)
	for i := len(list) - 1; i > 0; i-- {
		swap := list[i].Value < list[i-1].Value
		if !ascending {
			swap = list[i].Value > list[i-1].Value
		}
		if swap {
			list[i], list[i-1] = list[i-1], list[i]
		}
	}
	if len(list) > n {
		list = list[:n]
	}
	return list
}

func completedDays(days []model.DailyClose, now time.Time) []model.DailyClose {
	today := now.UTC().Truncate(24 * time.Hour)
	out := days
	for len(out) > 0 && !out[len(out)-1].Day.Before(today) {
		out = out[:len(out)-1]
	}
	return out
}

func priorDay(completed []model.DailyClose, _ time.Time) (model.DailyClose, bool) {
	if len(completed) == 0 {
		return model.DailyClose{}, false
	}
	return completed[len(completed)-1], true
}

func yearRange(days []model.DailyClose, ticks []model.PricePoint) (high, low float64) {
	high, low = math.Inf(-1), math.Inf(1)
	start := len(days) - 252
	if start < 0 {
		start = 0
	}
	for _, d := range days[start:] {
		if d.High > high {
			high = d.High
		}
		if d.Low < low {
			low = d.Low
		}
	}
	for _, t := range ticks {
		if t.Price > high {
			high = t.Price
		}
		if t.Price < low {
			low = t.Price
		}
	}
	if math.IsInf(high, -1) {
		high, low = 0, 0
	}
	return high, low
}
