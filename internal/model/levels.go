package model

import "time"

// LevelKind distinguishes support from resistance.
type LevelKind string

const (
	LevelSupport    LevelKind = "suporte"
	LevelResistance LevelKind = "resistencia"
)

// Level is one derived technical level. Touches only ever increments
// within a snapshot's validity period.
type Level struct {
	Name    string
	Kind    LevelKind
	Value   float64
	Touches int // confirmed approach-and-reverse count; >= 2 means confirmed
}

// Confirmed reports whether the level has multi-touch confirmation.
func (l Level) Confirmed() bool { return l.Touches >= 2 }

// PivotPoints holds the classic floor-trader pivot set.
type PivotPoints struct {
	PP, R1, R2, R3, S1, S2, S3 float64
}

// VolumeZone is a price bucket whose cumulative volume stands out from the
// average bucket.
type VolumeZone struct {
	Price  float64 // bucket center
	Volume float64
}

// TechnicalLevels is a derived snapshot for one instrument. Recomputed
// whole, never mutated in place; absent indicators are flagged, never
// fabricated.
type TechnicalLevels struct {
	Instrument string
	ComputedAt time.Time

	Pivots    PivotPoints
	HasPivots bool

	VWAP    float64
	HasVWAP bool

	SMA50     float64
	HasSMA50  bool
	SMA200    float64
	HasSMA200 bool

	High52w float64
	Low52w  float64

	VolumeZones []VolumeZone
	Touched     []Level // multi-touch confirmed levels
}

// Levels flattens the snapshot into the full support/resistance list
// relative to the given price.
func (t TechnicalLevels) Levels(current float64) []Level {
	var out []Level
	kind := func(v float64) LevelKind {
		if current > v {
			return LevelSupport
		}
		return LevelResistance
	}
	out = append(out,
		Level{Name: "max_52w", Kind: LevelResistance, Value: t.High52w},
		Level{Name: "min_52w", Kind: LevelSupport, Value: t.Low52w},
	)
	if t.HasSMA50 {
		out = append(out, Level{Name: "sma_50", Kind: kind(t.SMA50), Value: t.SMA50})
	}
	if t.HasSMA200 {
		out = append(out, Level{Name: "sma_200", Kind: kind(t.SMA200), Value: t.SMA200})
	}
	if t.HasPivots {
		out = append(out,
			Level{Name: "pivot_pp", Kind: kind(t.Pivots.PP), Value: t.Pivots.PP},
			Level{Name: "pivot_r1", Kind: LevelResistance, Value: t.Pivots.R1},
			Level{Name: "pivot_r2", Kind: LevelResistance, Value: t.Pivots.R2},
			Level{Name: "pivot_r3", Kind: LevelResistance, Value: t.Pivots.R3},
			Level{Name: "pivot_s1", Kind: LevelSupport, Value: t.Pivots.S1},
			Level{Name: "pivot_s2", Kind: LevelSupport, Value: t.Pivots.S2},
			Level{Name: "pivot_s3", Kind: LevelSupport, Value: t.Pivots.S3},
		)
	}
	if t.HasVWAP {
		out = append(out, Level{Name: "vwap", Kind: kind(t.VWAP), Value: t.VWAP})
	}
	out = append(out, t.Touched...)
	return out
}
