package collector

import (
	"errors"

	"MetalWatch/internal/model"
)

// ErrNoHistory marks sources that only serve live quotes.
var ErrNoHistory = errors.New("collector: source has no history endpoint")

// Fetcher abstracts a price source. Sources differ in coverage: the
// futures feed only quotes the five liquid metals, while the spot feed
// covers the whole complex but has no history endpoint.
type Fetcher interface {
	Name() string

	// Supports reports whether the source quotes this instrument.
	Supports(ticker string) bool

	// FetchTick returns the latest quote for one instrument.
	FetchTick(ticker string) (model.PricePoint, error)

	// FetchDailyCloses returns up to days of completed daily bars, oldest
	// first. Sources without history return ErrNoHistory.
	FetchDailyCloses(ticker string, days int) ([]model.DailyClose, error)
}
