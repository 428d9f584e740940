package institutional

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"MetalWatch/internal/model"
)

// ETFFetcher tracks holdings of each instrument's ETFs through a fund-data
// REST endpoint and reports the USD delta against the previous observation.
type ETFFetcher struct {
	Client  *http.Client
	BaseURL string

	mu   sync.Mutex
	prev map[string]float64 // last aggregate holdings value per ticker
}

func NewETFFetcher(baseURL string) *ETFFetcher {
	return &ETFFetcher{
		Client:  &http.Client{Timeout: 30 * time.Second},
		BaseURL: baseURL,
		prev:    make(map[string]float64),
	}
}

func (f *ETFFetcher) Name() string { return "etf" }

// etfQuote is the fund-data response for one symbol.
type etfQuote struct {
	Symbol       string  `json:"symbol"`
	HoldingsTons float64 `json:"holdings_tons"`
	NavUSD       float64 `json:"nav_usd"`
}

func (f *ETFFetcher) Fetch(ctx context.Context, ticker string) (model.InstitutionalSnapshot, error) {
	snap := model.InstitutionalSnapshot{Instrument: ticker, TakenAt: time.Now().UTC()}

	inst, ok := model.Instruments[ticker]
	if !ok || len(inst.ETFs) == 0 {
		return snap, nil
	}

	var totalUSD, totalTons float64
	var fetched int
	for _, symbol := range inst.ETFs {
		q, err := f.fetchQuote(ctx, symbol)
		if err != nil {
			continue // partial coverage is fine
		}
		totalUSD += q.NavUSD
		totalTons += q.HoldingsTons
		fetched++
	}
	if fetched == 0 {
		return snap, fmt.Errorf("etf: no fund data for %s", ticker)
	}

	f.mu.Lock()
	prev, seen := f.prev[ticker]
	f.prev[ticker] = totalUSD
	f.mu.Unlock()

	flow := model.ETFFlow{Symbols: inst.ETFs, HoldingsTons: totalTons}
	if seen {
		flow.DeltaUSD = totalUSD - prev
	}
	snap.ETF = &flow
	return snap, nil
}

func (f *ETFFetcher) fetchQuote(ctx context.Context, symbol string) (etfQuote, error) {
	u := fmt.Sprintf("%s/v1/funds/%s", f.BaseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return etfQuote{}, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return etfQuote{}, fmt.Errorf("etf fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return etfQuote{}, fmt.Errorf("etf %s: status %d", symbol, resp.StatusCode)
	}
	var q etfQuote
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return etfQuote{}, fmt.Errorf("etf decode %s: %w", symbol, err)
	}
	return q, nil
}
