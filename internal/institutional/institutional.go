// Package institutional collects COT positioning, ETF flows, and on-chain
// whale movements into per-instrument snapshots for the fuser.
package institutional

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"MetalWatch/internal/model"
)

// Significance thresholds below which a signal is collected but not
// called out in alert or digest text.
const (
	WhaleThresholdUSD   = 1_000_000
	ETFFlowThresholdUSD = 50_000_000
	COTCrowdedPctOfOI   = 30.0
	COTBigWeeklyChange  = 20_000
)

// CrowdedCOT reports whether positioning is stretched: managed money net
// above the open-interest share cap or a violent weekly swing.
func CrowdedCOT(c model.COTData) bool {
	if pct := c.NetPercentOfOI(); pct > COTCrowdedPctOfOI || pct < -COTCrowdedPctOfOI {
		return true
	}
	return c.WeeklyChange > COTBigWeeklyChange || c.WeeklyChange < -COTBigWeeklyChange
}

// SignificantETFFlow reports whether the flow clears the callout bar.
func SignificantETFFlow(f model.ETFFlow) bool {
	return f.DeltaUSD >= ETFFlowThresholdUSD || f.DeltaUSD <= -ETFFlowThresholdUSD
}

// Fetcher is one institutional data source. Sources cover different
// subsets of the complex; absent data stays nil in the snapshot.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, ticker string) (model.InstitutionalSnapshot, error)
}

// MockFetcher serves canned snapshots for development and testing.
type MockFetcher struct {
	Snapshots map[string]model.InstitutionalSnapshot
	Err       error
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) Fetch(_ context.Context, ticker string) (model.InstitutionalSnapshot, error) {
	if m.Err != nil {
		return model.InstitutionalSnapshot{}, m.Err
	}
	snap, ok := m.Snapshots[ticker]
	if !ok {
		return model.InstitutionalSnapshot{Instrument: ticker, TakenAt: time.Now().UTC()}, nil
	}
	return snap, nil
}

// cftcMarkets maps CFTC market-name fragments to instrument tickers. Only
// the futures-listed metals appear in the report.
var cftcMarkets = map[string]string{
	"GOLD":      "XAU",
	"SILVER":    "XAG",
	"PLATINUM":  "XPT",
	"PALLADIUM": "XPD",
	"COPPER":    "XCU",
}

// CFTCFetcher parses the weekly disaggregated futures report published as
// CSV text. One download covers every metal; results are cached for the
// publication week.
type CFTCFetcher struct {
	Client *http.Client
	URL    string

	prevNet map[string]int64 // prior report's net, for the weekly delta
	last    map[string]cotBaseline
	cache   map[string]model.COTData
	cachedAt time.Time
}

// cotBaseline remembers the latest report seen per ticker. prevNet rolls
// only when the report date changes, so re-parsing the same weekly report
// on the hourly cadence keeps WeeklyChange stable instead of zeroing it.
type cotBaseline struct {
	net  int64
	date time.Time
}

func NewCFTCFetcher(proxyURL string) *CFTCFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &CFTCFetcher{
		Client:  &http.Client{Timeout: 30 * time.Second, Transport: transport},
		URL:     "https://www.cftc.gov/dea/newcot/deafut.txt",
		prevNet: make(map[string]int64),
		last:    make(map[string]cotBaseline),
		cache:   make(map[string]model.COTData),
	}
}

func (f *CFTCFetcher) Name() string { return "cftc" }

func (f *CFTCFetcher) Fetch(ctx context.Context, ticker string) (model.InstitutionalSnapshot, error) {
	snap := model.InstitutionalSnapshot{Instrument: ticker, TakenAt: time.Now().UTC()}

	// The report updates weekly; refresh the parsed cache at most hourly.
	if time.Since(f.cachedAt) > time.Hour {
		if err := f.refresh(ctx); err != nil {
			return snap, err
		}
	}
	if cot, ok := f.cache[ticker]; ok {
		c := cot
		snap.COT = &c
	}
	return snap, nil
}

func (f *CFTCFetcher) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", f.URL, nil)
	if err != nil {
		return err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("cftc fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cftc: status %d", resp.StatusCode)
	}

	parsed := ParseCOTReport(resp.Body, f.prevNet)
	if len(parsed) == 0 {
		return fmt.Errorf("cftc: no metal rows parsed")
	}
	for ticker, cot := range parsed {
		if base, seen := f.last[ticker]; seen && !cot.ReportDate.Equal(base.date) {
			f.prevNet[ticker] = base.net
		}
		if prev, ok := f.prevNet[ticker]; ok {
			cot.WeeklyChange = cot.ManagedMoneyNet - prev
		} else {
			cot.WeeklyChange = 0
		}
		f.last[ticker] = cotBaseline{net: cot.ManagedMoneyNet, date: cot.ReportDate}
		parsed[ticker] = cot
	}
	f.cache = parsed
	f.cachedAt = time.Now()
	log.Printf("[INFO] cot report parsed for %d metals", len(parsed))
	return nil
}

// ParseCOTReport extracts managed-money positioning for the monitored
// metals from the CFTC CSV text. prevNet supplies the prior report's net
// positions for the weekly-change column; unknown metals get change 0.
func ParseCOTReport(r io.Reader, prevNet map[string]int64) map[string]model.COTData {
	out := make(map[string]model.COTData)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	first := true
	for scanner.Scan() {
		if first {
			first = false // header
			continue
		}
		fields := strings.Split(scanner.Text(), ",")
		if len(fields) < 16 {
			continue
		}
		market := strings.ToUpper(strings.TrimSpace(fields[0]))
		var ticker string
		for frag, t := range cftcMarkets {
			if strings.Contains(market, frag) {
				ticker = t
				break
			}
		}
		if ticker == "" {
			continue
		}
		if _, dup := out[ticker]; dup {
			continue // keep the first (primary) contract per metal
		}

		reportDate, err := time.Parse("2006-01-02", strings.TrimSpace(fields[2]))
		if err != nil {
			continue
		}
		mmLong := parseInt(fields[7])
		mmShort := parseInt(fields[8])
		oi := parseInt(fields[15])

		net := mmLong - mmShort
		cot := model.COTData{
			ManagedMoneyNet: net,
			OpenInterest:    oi,
			ReportDate:      reportDate.UTC(),
		}
		if prev, ok := prevNet[ticker]; ok {
			cot.WeeklyChange = net - prev
		}
		out[ticker] = cot
	}
	return out
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
