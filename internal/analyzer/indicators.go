package analyzer

import (
	"errors"
	"time"

	"MetalWatch/internal/model"
)

// ErrInsufficientHistory marks an indicator that cannot be computed yet.
// Callers surface the field as absent, never as a fabricated value.
var ErrInsufficientHistory = errors.New("not enough history")

// CalculateSMA computes the simple moving average of the given closes over
// the specified period.
func CalculateSMA(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(closes) < period {
		return 0, ErrInsufficientHistory
	}
	sum := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(period), nil
}

// CalculateVWAP computes Σ(price×volume)/Σ(volume) over the ticks at or
// after sessionStart.
func CalculateVWAP(ticks []model.PricePoint, sessionStart time.Time) (float64, error) {
	var pv, vol float64
	for _, t := range ticks {
		if t.Time.Before(sessionStart) {
			continue
		}
		pv += t.Price * t.Volume
		vol += t.Volume
	}
	if vol == 0 {
		return 0, ErrInsufficientHistory
	}
	return pv / vol, nil
}

// SessionStart returns the beginning of the current trading session: the
// most recent primary-market close at or before now.
func SessionStart(inst model.Instrument, now time.Time) time.Time {
	now = now.UTC()
	closeMin := inst.SessionCloseUTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), closeMin/60, closeMin%60, 0, 0, time.UTC)
	if start.After(now) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

func extractCloses(days []model.DailyClose) []float64 {
	closes := make([]float64, len(days))
	for i, d := range days {
		closes[i] = d.Close
	}
	return closes
}
