package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"MetalWatch/internal/model"
)

// YahooFetcher quotes the five futures-listed metals from the Yahoo
// Finance chart API.
type YahooFetcher struct {
	Client    *http.Client
	SymbolMap map[string]string // instrument ticker to Yahoo futures symbol
}

func NewYahooFetcher(proxyURL string) *YahooFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &YahooFetcher{
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		SymbolMap: map[string]string{
			"XAU": "GC=F",
			"XAG": "SI=F",
			"XPT": "PL=F",
			"XPD": "PA=F",
			"XCU": "HG=F",
		},
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

func (f *YahooFetcher) Supports(ticker string) bool {
	_, ok := f.SymbolMap[ticker]
	return ok
}

// yahooChart is the response structure from the Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []interface{} `json:"open"`
					High   []interface{} `json:"high"`
					Low    []interface{} `json:"low"`
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

type yahooBar struct {
	time                         time.Time
	open, high, low, close, vol float64
}

func (f *YahooFetcher) fetchChart(ticker, interval, rng string) ([]yahooBar, error) {
	symbol, ok := f.SymbolMap[ticker]
	if !ok {
		return nil, fmt.Errorf("yahoo: no futures symbol for %s", ticker)
	}
	u := fmt.Sprintf("https://query1.finance.yahoo.com/v8/finance/chart/%s?interval=%s&range=%s",
		url.PathEscape(symbol), interval, rng)

	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned")
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]yahooBar, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		o := toFloat(quote.Open[i])
		h := toFloat(quote.High[i])
		l := toFloat(quote.Low[i])
		c := toFloat(quote.Close[i])
		if o == 0 && h == 0 && l == 0 && c == 0 {
			continue // skip null bars (holidays etc.)
		}
		bars = append(bars, yahooBar{
			time: time.Unix(ts, 0).UTC(),
			open: o, high: h, low: l, close: c,
			vol: toFloat(quote.Volume[i]),
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].time.Before(bars[j].time) })
	return bars, nil
}

func (f *YahooFetcher) FetchTick(ticker string) (model.PricePoint, error) {
	bars, err := f.fetchChart(ticker, "1m", "1d")
	if err != nil {
		return model.PricePoint{}, err
	}
	if len(bars) == 0 {
		return model.PricePoint{}, fmt.Errorf("yahoo: no quote for %s", ticker)
	}
	last := bars[len(bars)-1]
	return model.PricePoint{
		Instrument: ticker,
		Time:       last.time,
		Price:      last.close,
		Volume:     last.vol,
	}, nil
}

func (f *YahooFetcher) FetchDailyCloses(ticker string, days int) ([]model.DailyClose, error) {
	// Yahoo range granularity: pick the smallest window covering days.
	rng := "2y"
	switch {
	case days <= 30:
		rng = "1mo"
	case days <= 90:
		rng = "3mo"
	case days <= 180:
		rng = "6mo"
	case days <= 365:
		rng = "1y"
	}
	bars, err := f.fetchChart(ticker, "1d", rng)
	if err != nil {
		return nil, err
	}
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	closes := make([]model.DailyClose, len(bars))
	for i, b := range bars {
		closes[i] = model.DailyClose{
			Day:    b.time.Truncate(24 * time.Hour),
			Open:   b.open,
			High:   b.high,
			Low:    b.low,
			Close:  b.close,
			Volume: b.vol,
		}
	}
	return closes, nil
}
