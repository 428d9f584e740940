package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"MetalWatch/internal/analyzer"
	"MetalWatch/internal/calendar"
	"MetalWatch/internal/classifier"
	"MetalWatch/internal/collector"
	"MetalWatch/internal/dispatch"
	"MetalWatch/internal/fuser"
	"MetalWatch/internal/institutional"
	"MetalWatch/internal/llm"
	"MetalWatch/internal/model"
	"MetalWatch/internal/prefs"
	"MetalWatch/internal/series"
	"MetalWatch/internal/storage"
)

type captureOutbound struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureOutbound) Send(_ context.Context, userID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, userID+"|"+text)
	return nil
}

type stubFormatter struct{}

func (stubFormatter) Movement(ev model.MovementEvent, _ model.Enrichment, _ bool, _ model.UserPreference) string {
	return string(ev.Severity) + " " + ev.Instrument
}

func (stubFormatter) Signal(ev model.SignalEvent, _ model.UserPreference) string {
	return string(ev.Kind) + " " + ev.Instrument + " " + ev.LevelName
}

func (stubFormatter) Broadcast(b dispatch.Broadcast, _ model.UserPreference) string {
	return b.Title
}

func newTestScheduler(t *testing.T) (*Scheduler, *captureOutbound) {
	t.Helper()
	st := storage.NewNoopStore()
	ps, err := prefs.NewStore(st)
	if err != nil {
		t.Fatal(err)
	}
	ledger, err := dispatch.NewLedger(st)
	if err != nil {
		t.Fatal(err)
	}
	out := &captureOutbound{}

	s := New(context.Background())
	s.Series = series.NewStore(48*time.Hour, 400)
	s.Analyzer = analyzer.New(analyzer.DefaultConfig())
	s.Classifier = classifier.New()
	s.Fuser = fuser.New()
	s.Institutional = institutional.NewService(nil, s.Fuser)
	s.Prefs = ps
	s.Dispatcher = dispatch.NewDispatcher(ps, ledger, out, stubFormatter{}, st)
	s.Ledger = ledger
	s.Calendar = calendar.NewNotifier()
	s.LLM = llm.NewClient("", 10) // disabled, no network
	s.Store = st
	s.Collector = collector.NewCollector(
		[]collector.Fetcher{&collector.MockFetcher{Prices: map[string]float64{"XAU": 2000}}},
		s.Series, st)
	return s, out
}

func seedTicks(t *testing.T, s *Scheduler, ticker string, prices []float64, step time.Duration) {
	t.Helper()
	start := time.Now().UTC().Add(-time.Duration(len(prices)) * step)
	for i, p := range prices {
		err := s.Series.Append(model.PricePoint{
			Instrument: ticker,
			Time:       start.Add(time.Duration(i) * step),
			Price:      p,
			Volume:     100,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestStartRegistersSubscriber(t *testing.T) {
	s, _ := newTestScheduler(t)
	reply := s.HandleCommand("42", "/start")
	if !strings.Contains(reply, "Bem-vindo") {
		t.Fatalf("unexpected start reply: %q", reply)
	}
	ids := s.Prefs.UserIDs()
	if len(ids) != 1 || ids[0] != "42" {
		t.Fatalf("user not registered: %v", ids)
	}
}

func TestPrecoCommand(t *testing.T) {
	s, _ := newTestScheduler(t)
	seedTicks(t, s, "XAU", []float64{2000, 2010, 2020}, time.Minute)

	reply := s.HandleCommand("42", "/preco ouro")
	if !strings.Contains(reply, "Ouro") || !strings.Contains(reply, "$2,020.00") {
		t.Fatalf("preco reply = %q", reply)
	}

	if reply := s.HandleCommand("42", "/preco vibranium"); !strings.Contains(reply, "desconhecido") {
		t.Fatalf("unknown metal reply = %q", reply)
	}
	if reply := s.HandleCommand("42", "/preco"); !strings.Contains(reply, "Uso:") {
		t.Fatalf("usage reply = %q", reply)
	}
}

func TestFiltrarAndSilenciarCommands(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.HandleCommand("42", "/start")

	if reply := s.HandleCommand("42", "/filtrar XAU prata"); !strings.Contains(reply, "Filtro ativo") {
		t.Fatalf("filtrar reply = %q", reply)
	}
	p := s.Prefs.Get("42")
	if len(p.Filter) != 2 || p.Filter[0] != "XAU" || p.Filter[1] != "XAG" {
		t.Fatalf("filter = %v", p.Filter)
	}

	if reply := s.HandleCommand("42", "/filtrar kryptonita"); !strings.Contains(reply, "desconhecido") {
		t.Fatalf("bad filter reply = %q", reply)
	}
	// Failed update leaves the previous filter untouched.
	if p := s.Prefs.Get("42"); len(p.Filter) != 2 {
		t.Fatalf("filter clobbered by rejected command: %v", p.Filter)
	}

	if reply := s.HandleCommand("42", "/silenciar 2h"); !strings.Contains(reply, "Silenciado") {
		t.Fatalf("silenciar reply = %q", reply)
	}
	if !s.Prefs.Get("42").Muted(time.Now().Add(time.Hour)) {
		t.Fatal("user not muted")
	}
	s.HandleCommand("42", "/ativar")
	if s.Prefs.Get("42").Muted(time.Now()) {
		t.Fatal("user still muted after /ativar")
	}
}

func TestConfluenciaCommand(t *testing.T) {
	s, _ := newTestScheduler(t)
	if reply := s.HandleCommand("42", "/confluencia 3 alertas"); !strings.Contains(reply, "3 sinais") {
		t.Fatalf("confluencia reply = %q", reply)
	}
	p := s.Prefs.Get("42")
	if p.ConfluenceThreshold != 3 || p.ConfluenceScope != model.ConfluenceAlerts {
		t.Fatalf("pref = %+v", p)
	}
	if reply := s.HandleCommand("42", "/confluencia 9"); !strings.Contains(reply, "inválidos") {
		t.Fatalf("bad threshold reply = %q", reply)
	}
}

func TestClassifyCycleDispatchesAlert(t *testing.T) {
	s, out := newTestScheduler(t)
	s.HandleCommand("42", "/start")

	// Flat for a day, then a 3% jump in the final minute.
	now := time.Now().UTC()
	for i := 26; i >= 1; i-- {
		if err := s.Series.Append(model.PricePoint{
			Instrument: "XAU", Time: now.Add(-time.Duration(i) * time.Hour), Price: 2000, Volume: 100,
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Series.Append(model.PricePoint{
		Instrument: "XAU", Time: now.Add(-time.Minute), Price: 2060, Volume: 100,
	}); err != nil {
		t.Fatal(err)
	}

	s.classifyCycle()

	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(out.msgs))
	}
	if !strings.Contains(out.msgs[0], "CRITICO XAU") {
		t.Fatalf("message = %q", out.msgs[0])
	}
	if s.lastAlertAt().IsZero() {
		t.Fatal("lastAlert not updated")
	}
}

func TestClassifyCycleElaboratesOnlyForAdmittedAlerts(t *testing.T) {
	s, out := newTestScheduler(t)
	s.HandleCommand("42", "/start")

	llmCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		llmCalls++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "rompimento de resistência"}},
			},
		})
	}))
	defer srv.Close()
	s.LLM = llm.NewClient("key", 100)
	s.LLM.BaseURL = srv.URL

	// Flat for a day, then a 3% jump in the final minute.
	now := time.Now().UTC()
	for i := 26; i >= 1; i-- {
		if err := s.Series.Append(model.PricePoint{
			Instrument: "XAU", Time: now.Add(-time.Duration(i) * time.Hour), Price: 2000, Volume: 100,
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Series.Append(model.PricePoint{
		Instrument: "XAU", Time: now.Add(-time.Minute), Price: 2060, Volume: 100,
	}); err != nil {
		t.Fatal(err)
	}

	// The move persists across poll cycles; only the first delivery may
	// spend a quota call.
	s.classifyCycle()
	s.classifyCycle()
	s.classifyCycle()

	out.mu.Lock()
	sent := len(out.msgs)
	out.mu.Unlock()
	if sent != 1 {
		t.Fatalf("sent %d messages, want 1", sent)
	}
	if llmCalls != 1 {
		t.Fatalf("llm calls = %d, want 1 for a single delivered alert", llmCalls)
	}
}

func TestLevelCycleDispatchesBreakSignal(t *testing.T) {
	s, out := newTestScheduler(t)
	s.HandleCommand("42", "/start")

	now := time.Now().UTC()
	yesterday := now.Add(-24 * time.Hour).Truncate(24 * time.Hour)
	if _, err := s.Analyzer.Analyze(model.SeriesSnapshot{
		Instrument:  "XAU",
		DailyCloses: []model.DailyClose{{Day: yesterday, High: 110, Low: 90, Close: 100}},
	}, now); err != nil {
		t.Fatal(err)
	}

	tick := func(p float64) model.SeriesSnapshot {
		return model.SeriesSnapshot{Instrument: "XAU", Ticks: []model.PricePoint{
			{Instrument: "XAU", Time: now.Add(-time.Minute), Price: p},
		}}
	}

	// First cycle only primes the crossing reference.
	s.levelCycle("XAU", tick(108), now)
	out.mu.Lock()
	primed := len(out.msgs)
	out.mu.Unlock()
	if primed != 0 {
		t.Fatalf("priming cycle sent %d messages", primed)
	}

	// R1 sits at 110; the next tick crosses it.
	s.levelCycle("XAU", tick(111), now)
	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(out.msgs))
	}
	if !strings.Contains(out.msgs[0], "rompimento XAU") {
		t.Fatalf("message = %q", out.msgs[0])
	}
}

func TestWhaleCycleDispatchesOncePerInterval(t *testing.T) {
	s, out := newTestScheduler(t)
	s.HandleCommand("42", "/start")

	now := time.Now().UTC()
	s.Fuser.Update(model.InstitutionalSnapshot{
		Instrument: "XAU",
		Whale:      &model.WhaleSummary{Transfers: 3, TotalUSD: 2_000_000, NetDirection: 1},
		TakenAt:    now,
	})

	s.whaleCycle(now)
	s.whaleCycle(now.Add(time.Minute)) // inside the re-alert interval

	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(out.msgs))
	}
	if !strings.Contains(out.msgs[0], "baleia XAU") {
		t.Fatalf("message = %q", out.msgs[0])
	}
}

func TestErrosCommandListsSuppressedDecisions(t *testing.T) {
	st, err := storage.NewSQLiteStore(t.TempDir() + "/mw.db")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	s, _ := newTestScheduler(t)
	s.Store = st

	err = st.RecordDecision(model.Decision{
		AlertID: "a1", UserID: "42", Instrument: "XAU",
		Severity: model.SeverityCritical, Kind: model.AlertMovement,
		Sent: false, Reason: model.SuppressRateLimited, At: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}

	reply := s.errosReply()
	if !strings.Contains(reply, "SUPRESSÕES") || !strings.Contains(reply, "XAU") {
		t.Fatalf("erros reply missing suppressed decisions: %q", reply)
	}
	if !strings.Contains(reply, string(model.SuppressRateLimited)) {
		t.Fatalf("erros reply missing reason: %q", reply)
	}
}

func TestCalendarJobSendsReminders(t *testing.T) {
	s, out := newTestScheduler(t)
	s.HandleCommand("42", "/start")

	now := time.Now().UTC()
	s.Calendar.Add(calendar.Event{ID: "cpi", Title: "CPI EUA", At: now.Add(30 * time.Minute)}, now.Add(-2*time.Hour))

	s.calendarJob()

	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.msgs) != 1 || !strings.Contains(out.msgs[0], "LEMBRETE") {
		t.Fatalf("msgs = %v", out.msgs)
	}
}

func TestDigestCommandUsesLivePrices(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.HandleCommand("42", "/start")
	seedTicks(t, s, "XAU", []float64{2000, 2010}, time.Minute)

	reply := s.HandleCommand("42", "/digest")
	if !strings.Contains(reply, "DIGEST") || !strings.Contains(reply, "$2,010.00") {
		t.Fatalf("digest reply = %q", reply)
	}
}
