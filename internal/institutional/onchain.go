package institutional

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"MetalWatch/internal/model"
)

// OnChainFetcher watches large transfers of the instrument's tokenized
// forms (PAXG, XAUT and friends) through a token-transfer REST API.
// Transfers below the whale threshold are ignored.
type OnChainFetcher struct {
	Client  *http.Client
	BaseURL string
	APIKey  string
	Window  time.Duration
}

func NewOnChainFetcher(baseURL, apiKey string) *OnChainFetcher {
	return &OnChainFetcher{
		Client:  &http.Client{Timeout: 30 * time.Second},
		BaseURL: baseURL,
		APIKey:  apiKey,
		Window:  time.Hour,
	}
}

func (f *OnChainFetcher) Name() string { return "onchain" }

// tokenTransfer is one large transfer reported by the API.
type tokenTransfer struct {
	Token     string  `json:"token"`
	ValueUSD  float64 `json:"value_usd"`
	Direction string  `json:"direction"` // "in" to exchanges, "out" to custody
	Timestamp int64   `json:"timestamp"`
}

func (f *OnChainFetcher) Fetch(ctx context.Context, ticker string) (model.InstitutionalSnapshot, error) {
	snap := model.InstitutionalSnapshot{Instrument: ticker, TakenAt: time.Now().UTC()}

	inst, ok := model.Instruments[ticker]
	if !ok || len(inst.OnChainTokens) == 0 {
		return snap, nil
	}

	since := time.Now().Add(-f.Window).Unix()
	summary := model.WhaleSummary{}
	var inflow, outflow float64
	for _, token := range inst.OnChainTokens {
		transfers, err := f.fetchTransfers(ctx, token, since)
		if err != nil {
			continue
		}
		for _, t := range transfers {
			if t.ValueUSD < WhaleThresholdUSD {
				continue
			}
			summary.Transfers++
			summary.TotalUSD += t.ValueUSD
			// Flow toward exchanges reads as distribution, away from
			// them as accumulation.
			if t.Direction == "in" {
				inflow += t.ValueUSD
			} else {
				outflow += t.ValueUSD
			}
		}
	}
	if summary.Transfers == 0 {
		return snap, nil
	}
	switch {
	case outflow > inflow*1.5:
		summary.NetDirection = 1
	case inflow > outflow*1.5:
		summary.NetDirection = -1
	}
	snap.Whale = &summary
	return snap, nil
}

func (f *OnChainFetcher) fetchTransfers(ctx context.Context, token string, since int64) ([]tokenTransfer, error) {
	u := fmt.Sprintf("%s/v1/transfers?token=%s&since=%d&min_usd=%d",
		f.BaseURL, token, since, int64(WhaleThresholdUSD))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("onchain fetch %s: %w", token, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("onchain %s: status %d", token, resp.StatusCode)
	}
	var transfers []tokenTransfer
	if err := json.NewDecoder(resp.Body).Decode(&transfers); err != nil {
		return nil, fmt.Errorf("onchain decode %s: %w", token, err)
	}
	return transfers, nil
}
