package notifier

import (
	"strings"
	"testing"
	"time"

	"MetalWatch/internal/model"
)

func TestFormatPrice(t *testing.T) {
	cases := map[float64]string{
		2050.5:    "$2,050.50",
		999:       "$999.00",
		1234567.8: "$1,234,567.80",
		-45.2:     "-$45.20",
	}
	for in, want := range cases {
		if got := FormatPrice(in); got != want {
			t.Errorf("FormatPrice(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatLargeUSD(t *testing.T) {
	if got := FormatLargeUSD(62_000_000); got != "$62.0M" {
		t.Errorf("got %q", got)
	}
	if got := FormatLargeUSD(-1_500_000_000); got != "-$1.50B" {
		t.Errorf("got %q", got)
	}
}

func TestMovementMessage(t *testing.T) {
	ev := model.MovementEvent{
		Instrument:     "XAU",
		Severity:       model.SeverityCritical,
		ChangePercent:  -2.3,
		Window:         15 * time.Minute,
		ReferencePrice: 2100,
		CurrentPrice:   2051.7,
		Time:           time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
	pref := model.DefaultPreference("u1")

	msg := MessageFormatter{}.Movement(ev, model.Enrichment{}, false, pref)
	for _, want := range []string{"CRITICO", "QUEDA", "Ouro", "2.30%", "15min", "$2,051.70", "09:00"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "Contexto") {
		t.Error("enrichment block rendered without enrichment")
	}
}

func TestMovementMessageWithEnrichment(t *testing.T) {
	cot := model.COTData{ManagedMoneyNet: 150000, WeeklyChange: 25000, OpenInterest: 400000}
	whale := model.WhaleSummary{Transfers: 3, TotalUSD: 12_000_000, NetDirection: 1}
	enr := model.Enrichment{
		Snapshot:          &model.InstitutionalSnapshot{Instrument: "XAU", COT: &cot, Whale: &whale},
		TechnicalVote:     1,
		InstitutionalVote: 1,
		LLMNote:           "fluxo comprador dominante",
	}
	ev := model.MovementEvent{
		Instrument: "XAU", Severity: model.SeverityImportant,
		ChangePercent: 1.2, Window: time.Hour,
		ReferencePrice: 2000, CurrentPrice: 2024, Time: time.Now(),
	}
	msg := MessageFormatter{}.Movement(ev, enr, true, model.DefaultPreference("u1"))
	for _, want := range []string{"confluência 2/3", "COT", "crowded", "🐋", "fluxo comprador"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestSignalMessages(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	pref := model.DefaultPreference("42")
	f := MessageFormatter{}

	breakMsg := f.Signal(model.SignalEvent{
		Instrument: "XAU", Kind: model.SignalLevelBreak,
		Severity: model.SeverityCritical, Direction: 1,
		LevelName: "pivot_r1", LevelValue: 2040, CurrentPrice: 2051.7, Time: at,
	}, pref)
	for _, want := range []string{"ROMPIMENTO", "Ouro", "R1", "$2,040.00", "para cima", "$2,051.70"} {
		if !strings.Contains(breakMsg, want) {
			t.Errorf("break message missing %q:\n%s", want, breakMsg)
		}
	}

	proxMsg := f.Signal(model.SignalEvent{
		Instrument: "XAG", Kind: model.SignalLevelProximity,
		Severity: model.SeverityImportant, Direction: -1,
		LevelName: "sma_200", LevelValue: 24.1, CurrentPrice: 24.15, DistancePct: 0.21, Time: at,
	}, pref)
	for _, want := range []string{"PROXIMIDADE", "Prata", "SMA200", "0.21%"} {
		if !strings.Contains(proxMsg, want) {
			t.Errorf("proximity message missing %q:\n%s", want, proxMsg)
		}
	}

	whaleMsg := f.Signal(model.SignalEvent{
		Instrument: "XAU", Kind: model.SignalWhale,
		Severity: model.SeverityImportant, Direction: 1,
		Whale: &model.WhaleSummary{Transfers: 3, TotalUSD: 5_200_000, NetDirection: 1},
		Time:  at,
	}, pref)
	for _, want := range []string{"BALEIA", "3 transferências", "$5.2M", "acumulação"} {
		if !strings.Contains(whaleMsg, want) {
			t.Errorf("whale message missing %q:\n%s", want, whaleMsg)
		}
	}
}
