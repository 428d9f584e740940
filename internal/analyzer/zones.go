package analyzer

import (
	"math"
	"sort"

	"MetalWatch/internal/model"
)

const volumeBins = 20

// FindVolumeZones buckets the tick window into price bins and returns the
// bins whose cumulative volume exceeds multiple × the average bin volume,
// strongest first, capped at maxZones.
func FindVolumeZones(ticks []model.PricePoint, multiple float64, maxZones int) []model.VolumeZone {
	if len(ticks) == 0 {
		return nil
	}
	minP, maxP := math.Inf(1), math.Inf(-1)
	for _, t := range ticks {
		if t.Price < minP {
			minP = t.Price
		}
		if t.Price > maxP {
			maxP = t.Price
		}
	}
	binSize := (maxP - minP) / volumeBins
	if binSize == 0 {
		binSize = 1
	}

	volumes := make([]float64, volumeBins)
	var total float64
	for _, t := range ticks {
		idx := int((t.Price - minP) / binSize)
		if idx >= volumeBins {
			idx = volumeBins - 1
		}
		volumes[idx] += t.Volume
		total += t.Volume
	}
	if total == 0 {
		return nil
	}
	avg := total / volumeBins

	var zones []model.VolumeZone
	for i, v := range volumes {
		if v > avg*multiple {
			zones = append(zones, model.VolumeZone{
				Price:  minP + (float64(i)+0.5)*binSize,
				Volume: v,
			})
		}
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].Volume > zones[j].Volume })
	if maxZones > 0 && len(zones) > maxZones {
		zones = zones[:maxZones]
	}
	return zones
}

// FindTouchedLevels locates price levels the series approached and
// reversed from at least twice. A level is dropped when any daily close
// breached it beyond the tolerance band. Touch counts are fixed once the
// snapshot is built and only grow at the next full recomputation.
func FindTouchedLevels(ticks []model.PricePoint, daily []model.DailyClose, tolerancePct float64, maxLevels int) []model.Level {
	if len(ticks) < 3 {
		return nil
	}

	// Local extremes of the tick window.
	var extremes []struct {
		price float64
		high  bool
	}
	for i := 1; i < len(ticks)-1; i++ {
		p, prev, next := ticks[i].Price, ticks[i-1].Price, ticks[i+1].Price
		if p > prev && p > next {
			extremes = append(extremes, struct {
				price float64
				high  bool
			}{p, true})
		} else if p < prev && p < next {
			extremes = append(extremes, struct {
				price float64
				high  bool
			}{p, false})
		}
	}
	if len(extremes) == 0 {
		return nil
	}

	tol := tolerancePct / 100
	type group struct {
		sum   float64
		count int
		highs int
	}
	var groups []*group
	for _, e := range extremes {
		placed := false
		for _, g := range groups {
			avg := g.sum / float64(g.count)
			if math.Abs(e.price-avg)/avg <= tol {
				g.sum += e.price
				g.count++
				if e.high {
					g.highs++
				}
				placed = true
				break
			}
		}
		if !placed {
			g := &group{sum: e.price, count: 1}
			if e.high {
				g.highs = 1
			}
			groups = append(groups, g)
		}
	}

	current := ticks[len(ticks)-1].Price
	var levels []model.Level
	for _, g := range groups {
		if g.count < 2 {
			continue
		}
		value := g.sum / float64(g.count)
		if dailyCloseBreached(daily, value, tol) {
			continue
		}
		kind := model.LevelResistance
		if current > value {
			kind = model.LevelSupport
		}
		levels = append(levels, model.Level{
			Name:    "multi_touch",
			Kind:    kind,
			Value:   value,
			Touches: g.count,
		})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Touches > levels[j].Touches })
	if maxLevels > 0 && len(levels) > maxLevels {
		levels = levels[:maxLevels]
	}
	return levels
}

// dailyCloseBreached reports whether any completed daily close sits beyond
// the level's tolerance band on both sides, which invalidates the level.
func dailyCloseBreached(daily []model.DailyClose, level, tol float64) bool {
	var above, below bool
	for _, d := range daily {
		diff := (d.Close - level) / level
		if diff > tol {
			above = true
		}
		if diff < -tol {
			below = true
		}
	}
	return above && below
}
