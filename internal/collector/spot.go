package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"MetalWatch/internal/model"
)

// spotNames maps the spot API's metal names to instrument tickers.
var spotNames = map[string]string{
	"gold":      "XAU",
	"silver":    "XAG",
	"platinum":  "XPT",
	"palladium": "XPD",
	"copper":    "XCU",
	"aluminum":  "XAL",
	"nickel":    "XNI",
	"lead":      "XPB",
	"zinc":      "XZN",
	"tin":       "XSN",
	"uranium":   "UX",
	"iron":      "FE",
}

// SpotFetcher quotes the whole metal complex from a spot REST API
// (metals.live-style JSON array). It serves live ticks only; history
// backfill comes from the futures source.
type SpotFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client

	mu        sync.Mutex
	cached    map[string]model.PricePoint
	fetchedAt time.Time
	maxAge    time.Duration
}

func NewSpotFetcher(baseURL, apiKey, proxyURL string) *SpotFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &SpotFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		maxAge: 10 * time.Second,
	}
}

func (f *SpotFetcher) Name() string { return "spot" }

func (f *SpotFetcher) Supports(ticker string) bool {
	for _, t := range spotNames {
		if t == ticker {
			return true
		}
	}
	return false
}

// spotQuote is one entry of the spot API response.
type spotQuote struct {
	Metal  string  `json:"metal"`
	Price  float64 `json:"price"`
	Change float64 `json:"change"`
	Volume float64 `json:"volume"`
}

// FetchTick serves from a short-lived cache so one poll cycle over twelve
// instruments costs a single upstream request.
func (f *SpotFetcher) FetchTick(ticker string) (model.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if time.Since(f.fetchedAt) > f.maxAge {
		quotes, err := f.fetchAll()
		if err != nil {
			return model.PricePoint{}, err
		}
		f.cached = quotes
		f.fetchedAt = time.Now()
	}
	p, ok := f.cached[ticker]
	if !ok {
		return model.PricePoint{}, fmt.Errorf("spot: no quote for %s", ticker)
	}
	return p, nil
}

func (f *SpotFetcher) FetchDailyCloses(string, int) ([]model.DailyClose, error) {
	return nil, ErrNoHistory
}

func (f *SpotFetcher) fetchAll() (map[string]model.PricePoint, error) {
	req, err := http.NewRequest("GET", f.BaseURL+"/v1/spot", nil)
	if err != nil {
		return nil, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spot fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("spot: status %d, body: %s", resp.StatusCode, body)
	}

	var quotes []spotQuote
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return nil, fmt.Errorf("spot decode: %w", err)
	}

	now := time.Now().UTC()
	out := make(map[string]model.PricePoint, len(quotes))
	for _, q := range quotes {
		ticker, ok := spotNames[strings.ToLower(q.Metal)]
		if !ok || q.Price <= 0 {
			continue
		}
		out[ticker] = model.PricePoint{
			Instrument: ticker,
			Time:       now,
			Price:      q.Price,
			Volume:     q.Volume,
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("spot: empty quote set")
	}
	return out, nil
}
