package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"MetalWatch/internal/model"
	"MetalWatch/internal/series"
	"MetalWatch/internal/storage"
)

// failingFetcher supports everything and always errors.
type failingFetcher struct{}

func (failingFetcher) Name() string                  { return "failing" }
func (failingFetcher) Supports(string) bool          { return true }
func (failingFetcher) FetchTick(t string) (model.PricePoint, error) {
	return model.PricePoint{}, errors.New("upstream down")
}
func (failingFetcher) FetchDailyCloses(string, int) ([]model.DailyClose, error) {
	return nil, ErrNoHistory
}

func TestPollOnceFeedsEveryInstrument(t *testing.T) {
	prices := make(map[string]float64)
	for i, ticker := range model.Tickers() {
		prices[ticker] = 100 + float64(i)
	}
	mock := &MockFetcher{Prices: prices}

	s := series.NewStore(24*time.Hour, 400)
	c := NewCollector([]Fetcher{mock}, s, storage.NewNoopStore())
	c.PollOnce(context.Background())

	for _, ticker := range model.Tickers() {
		got, ok := s.LatestPrice(ticker)
		if !ok {
			t.Fatalf("no tick stored for %s", ticker)
		}
		if got.Price != prices[ticker] {
			t.Fatalf("%s price = %v, want %v", ticker, got.Price, prices[ticker])
		}
	}
}

func TestPollFallsBackToNextSource(t *testing.T) {
	backup := &MockFetcher{Prices: map[string]float64{"XAU": 2000}}
	s := series.NewStore(24*time.Hour, 400)
	c := NewCollector([]Fetcher{failingFetcher{}, backup}, s, storage.NewNoopStore())
	c.PollOnce(context.Background())

	got, ok := s.LatestPrice("XAU")
	if !ok || got.Price != 2000 {
		t.Fatalf("fallback tick = %+v ok=%v, want 2000 from backup source", got, ok)
	}
	// Instruments neither source quotes are simply skipped.
	if _, ok := s.LatestPrice("XAG"); ok {
		t.Fatal("unquoted instrument got a tick")
	}
}

func TestPollSkipsStaleQuotes(t *testing.T) {
	now := time.Now().UTC()
	mock := &MockFetcher{Prices: map[string]float64{"XAU": 2000}, Clock: func() time.Time { return now }}
	s := series.NewStore(24*time.Hour, 400)
	c := NewCollector([]Fetcher{mock}, s, storage.NewNoopStore())

	c.PollOnce(context.Background())
	mock.Clock = func() time.Time { return now.Add(-time.Minute) }
	c.PollOnce(context.Background()) // stale, dropped silently

	got, _ := s.LatestPrice("XAU")
	if !got.Time.Equal(now) {
		t.Fatalf("latest tick time = %v, want original %v", got.Time, now)
	}
}

func TestBackfillSeedsSeries(t *testing.T) {
	mock := &MockFetcher{Prices: map[string]float64{"XAU": 2000}}
	s := series.NewStore(24*time.Hour, 400)
	c := NewCollector([]Fetcher{mock}, s, storage.NewNoopStore())
	c.Backfill(60)

	snap, err := s.Snapshot("XAU")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.DailyCloses) != 60 {
		t.Fatalf("seeded %d closes, want 60", len(snap.DailyCloses))
	}
}

func TestSpotNameMappingCoversComplex(t *testing.T) {
	f := NewSpotFetcher("http://example.invalid", "", "")
	for _, ticker := range []string{"XAL", "XNI", "XPB", "XZN", "XSN", "UX", "FE"} {
		if !f.Supports(ticker) {
			t.Fatalf("spot source should quote %s", ticker)
		}
	}
	if _, err := f.FetchDailyCloses("XAU", 10); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("err = %v, want ErrNoHistory", err)
	}
}
