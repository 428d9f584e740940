package analyzer

import (
	"errors"

	"MetalWatch/internal/model"
)

// CalculatePivots computes the standard floor-trader pivot set from the
// prior completed trading day's high, low and close.
func CalculatePivots(high, low, close float64) (model.PivotPoints, error) {
	if high < low {
		return model.PivotPoints{}, errors.New("high must be >= low")
	}
	pp := (high + low + close) / 3
	return model.PivotPoints{
		PP: pp,
		R1: 2*pp - low,
		S1: 2*pp - high,
		R2: pp + (high - low),
		S2: pp - (high - low),
		R3: high + 2*(pp-low),
		S3: low - 2*(high-pp),
	}, nil
}
