package institutional

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"MetalWatch/internal/fuser"
	"MetalWatch/internal/model"
)

const cotSample = `Market_and_Exchange_Names,As_of_Date_In_Form_YYMMDD,Report_Date_as_YYYY-MM-DD,MM1,MM2,MM3,MM4,M_Money_Positions_Long,M_Money_Positions_Short,X1,X2,Prod_Long,Prod_Short,X3,X4,Open_Interest
GOLD - COMMODITY EXCHANGE INC.,260526,2026-05-26,0,0,0,0,180000,45000,0,0,1000,2000,0,0,450000
GOLD - SOMETHING ELSE,260526,2026-05-26,0,0,0,0,99,1,0,0,0,0,0,0,100
SILVER - COMMODITY EXCHANGE INC.,260526,2026-05-26,0,0,0,0,60000,20000,0,0,500,700,0,0,140000
CRUDE OIL - NYMEX,260526,2026-05-26,0,0,0,0,1,2,0,0,3,4,0,0,5
`

func TestParseCOTReport(t *testing.T) {
	prev := map[string]int64{"XAU": 100000}
	parsed := ParseCOTReport(strings.NewReader(cotSample), prev)

	gold, ok := parsed["XAU"]
	if !ok {
		t.Fatal("gold row not parsed")
	}
	if gold.ManagedMoneyNet != 135000 {
		t.Fatalf("gold net = %d, want 135000", gold.ManagedMoneyNet)
	}
	if gold.WeeklyChange != 35000 {
		t.Fatalf("gold weekly change = %d, want 35000", gold.WeeklyChange)
	}
	if gold.OpenInterest != 450000 {
		t.Fatalf("gold OI = %d, want 450000", gold.OpenInterest)
	}
	// First matching contract wins; the secondary GOLD row is skipped.
	if pct := gold.NetPercentOfOI(); pct < 29.9 || pct > 30.1 {
		t.Fatalf("gold net%%OI = %.2f, want 30", pct)
	}

	silver, ok := parsed["XAG"]
	if !ok {
		t.Fatal("silver row not parsed")
	}
	if silver.WeeklyChange != 0 {
		t.Fatalf("silver weekly change = %d, want 0 with no prior report", silver.WeeklyChange)
	}
	if _, ok := parsed["CL"]; ok || len(parsed) != 2 {
		t.Fatalf("parsed %d markets, want only the 2 monitored metals", len(parsed))
	}
}

const cotReportA = `Market_and_Exchange_Names,As_of_Date_In_Form_YYMMDD,Report_Date_as_YYYY-MM-DD,MM1,MM2,MM3,MM4,M_Money_Positions_Long,M_Money_Positions_Short,X1,X2,Prod_Long,Prod_Short,X3,X4,Open_Interest
GOLD - COMMODITY EXCHANGE INC.,260519,2026-05-19,0,0,0,0,50000,40000,0,0,1000,2000,0,0,400000
`

const cotReportB = `Market_and_Exchange_Names,As_of_Date_In_Form_YYMMDD,Report_Date_as_YYYY-MM-DD,MM1,MM2,MM3,MM4,M_Money_Positions_Long,M_Money_Positions_Short,X1,X2,Prod_Long,Prod_Short,X3,X4,Open_Interest
GOLD - COMMODITY EXCHANGE INC.,260526,2026-05-26,0,0,0,0,80000,45000,0,0,1000,2000,0,0,450000
`

func TestCFTCFetcher_WeeklyChangeStableAcrossRefreshes(t *testing.T) {
	bodies := []string{cotReportA, cotReportB, cotReportB}
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, bodies[calls])
		calls++
	}))
	defer srv.Close()

	f := NewCFTCFetcher("")
	f.URL = srv.URL

	ctx := context.Background()
	snap, err := f.Fetch(ctx, "XAU")
	if err != nil {
		t.Fatalf("fetch report A: %v", err)
	}
	if snap.COT == nil || snap.COT.WeeklyChange != 0 {
		t.Fatalf("first report weekly change = %+v, want 0 with no baseline", snap.COT)
	}

	// New report: weekly change is vs the prior report's net.
	f.cachedAt = time.Time{}
	snap, err = f.Fetch(ctx, "XAU")
	if err != nil {
		t.Fatalf("fetch report B: %v", err)
	}
	if snap.COT == nil || snap.COT.WeeklyChange != 25000 {
		t.Fatalf("weekly change after new report = %+v, want 25000", snap.COT)
	}

	// Re-parsing the same report on the hourly cadence keeps the delta.
	f.cachedAt = time.Time{}
	snap, err = f.Fetch(ctx, "XAU")
	if err != nil {
		t.Fatalf("refetch report B: %v", err)
	}
	if snap.COT == nil || snap.COT.WeeklyChange != 25000 {
		t.Fatalf("weekly change on re-parse = %+v, want 25000", snap.COT)
	}
	if calls != 3 {
		t.Fatalf("upstream calls = %d, want 3", calls)
	}
}

func TestCrowdedCOT(t *testing.T) {
	if CrowdedCOT(model.COTData{ManagedMoneyNet: 100, OpenInterest: 1000}) {
		t.Fatal("10% of OI flagged crowded")
	}
	if !CrowdedCOT(model.COTData{ManagedMoneyNet: -350, OpenInterest: 1000}) {
		t.Fatal("-35% of OI not flagged crowded")
	}
	if !CrowdedCOT(model.COTData{ManagedMoneyNet: 100, OpenInterest: 10000, WeeklyChange: -25000}) {
		t.Fatal("25k contract swing not flagged crowded")
	}
}

func TestSignificantETFFlow(t *testing.T) {
	if SignificantETFFlow(model.ETFFlow{DeltaUSD: 49_000_000}) {
		t.Fatal("flow under threshold flagged")
	}
	if !SignificantETFFlow(model.ETFFlow{DeltaUSD: -60_000_000}) {
		t.Fatal("large outflow not flagged")
	}
}

func TestServiceMergesSourcesAndToleratesFailure(t *testing.T) {
	cot := model.COTData{ManagedMoneyNet: 1000, OpenInterest: 10000, ReportDate: time.Now()}
	whale := model.WhaleSummary{Transfers: 2, TotalUSD: 5_000_000, NetDirection: 1}

	cotSource := &MockFetcher{Snapshots: map[string]model.InstitutionalSnapshot{
		"XAU": {Instrument: "XAU", COT: &cot},
	}}
	whaleSource := &MockFetcher{Snapshots: map[string]model.InstitutionalSnapshot{
		"XAU": {Instrument: "XAU", Whale: &whale},
	}}
	broken := &MockFetcher{Err: errors.New("upstream down")}

	fu := fuser.New()
	svc := NewService([]Fetcher{cotSource, broken, whaleSource}, fu)
	svc.RefreshAll(context.Background())

	snap, ok := fu.Latest("XAU")
	if !ok {
		t.Fatal("no snapshot published")
	}
	if snap.COT == nil || snap.COT.ManagedMoneyNet != 1000 {
		t.Fatalf("COT not merged: %+v", snap.COT)
	}
	if snap.Whale == nil || snap.Whale.NetDirection != 1 {
		t.Fatalf("whale not merged: %+v", snap.Whale)
	}
	if snap.ETF != nil {
		t.Fatal("ETF should stay nil when no source provides it")
	}
}
