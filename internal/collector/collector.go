package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"MetalWatch/internal/model"
	"MetalWatch/internal/series"
	"MetalWatch/internal/storage"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Prices map[string]float64
	Daily  map[string][]model.DailyClose
	Clock  func() time.Time
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) Supports(ticker string) bool {
	if m.Prices == nil {
		_, known := model.Instruments[ticker]
		return known
	}
	_, ok := m.Prices[ticker]
	return ok
}

func (m *MockFetcher) FetchTick(ticker string) (model.PricePoint, error) {
	now := time.Now().UTC()
	if m.Clock != nil {
		now = m.Clock()
	}
	price, ok := m.Prices[ticker]
	if !ok {
		return model.PricePoint{}, fmt.Errorf("mock: no price for %s", ticker)
	}
	return model.PricePoint{Instrument: ticker, Time: now, Price: price, Volume: 1000}, nil
}

func (m *MockFetcher) FetchDailyCloses(ticker string, days int) ([]model.DailyClose, error) {
	if closes, ok := m.Daily[ticker]; ok {
		return closes, nil
	}
	base, ok := m.Prices[ticker]
	if !ok {
		return nil, fmt.Errorf("mock: no history for %s", ticker)
	}
	return generateMockCloses(base, days), nil
}

func generateMockCloses(basePrice float64, count int) []model.DailyClose {
	closes := make([]model.DailyClose, count)
	day := time.Now().UTC().Truncate(24 * time.Hour)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		closes[i] = model.DailyClose{
			Day:    day.AddDate(0, 0, -(count - i)),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return closes
}

// Collector polls every instrument through an ordered fetcher chain and
// feeds the tick series. The first supporting source that answers wins;
// later sources are fallback only.
type Collector struct {
	Fetchers []Fetcher
	Series   *series.Store
	Persist  storage.Store
}

func NewCollector(fetchers []Fetcher, s *series.Store, persist storage.Store) *Collector {
	return &Collector{Fetchers: fetchers, Series: s, Persist: persist}
}

// PollOnce fetches a tick for every instrument and appends it to the
// series. A source failure falls through to the next source; an
// instrument with no working source is skipped until the next cycle.
func (c *Collector) PollOnce(ctx context.Context) {
	for _, ticker := range model.Tickers() {
		if ctx.Err() != nil {
			return
		}
		tick, err := c.fetchWithFallback(ticker)
		if err != nil {
			log.Printf("[WARN] poll %s: %v", ticker, err)
			continue
		}
		if err := c.Series.Append(tick); err != nil {
			if errors.Is(err, series.ErrOutOfOrder) {
				continue // stale quote from a slower source
			}
			log.Printf("[ERROR] append %s tick: %v", ticker, err)
		}
	}
}

func (c *Collector) fetchWithFallback(ticker string) (model.PricePoint, error) {
	var lastErr error
	for _, f := range c.Fetchers {
		if !f.Supports(ticker) {
			continue
		}
		tick, err := f.FetchTick(ticker)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", f.Name(), err)
			continue
		}
		return tick, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no source supports %s", ticker)
	}
	return model.PricePoint{}, lastErr
}

// Backfill seeds the daily-close history for every instrument from the
// first source that has one, falling back to history persisted in earlier
// runs. Instruments with neither start cold and grow organically.
func (c *Collector) Backfill(days int) {
	for _, ticker := range model.Tickers() {
		closes := c.historyFor(ticker, days)
		if len(closes) == 0 {
			log.Printf("[WARN] no history for %s, starting cold", ticker)
			continue
		}
		if err := c.Series.SeedDailyCloses(ticker, closes); err != nil {
			log.Printf("[ERROR] seed %s: %v", ticker, err)
			continue
		}
		if c.Persist != nil {
			for _, dc := range closes {
				if err := c.Persist.SaveDailyClose(ticker, dc); err != nil {
					log.Printf("[WARN] persist close %s: %v", ticker, err)
					break
				}
			}
		}
		log.Printf("[INFO] seeded %d daily closes for %s", len(closes), ticker)
	}
}

func (c *Collector) historyFor(ticker string, days int) []model.DailyClose {
	for _, f := range c.Fetchers {
		if !f.Supports(ticker) {
			continue
		}
		closes, err := f.FetchDailyCloses(ticker, days)
		if err != nil {
			if !errors.Is(err, ErrNoHistory) {
				log.Printf("[WARN] history %s from %s: %v", ticker, f.Name(), err)
			}
			continue
		}
		if len(closes) > 0 {
			return closes
		}
	}
	if c.Persist != nil {
		closes, err := c.Persist.LoadDailyCloses(ticker, days)
		if err != nil {
			log.Printf("[WARN] load persisted closes %s: %v", ticker, err)
			return nil
		}
		return closes
	}
	return nil
}
