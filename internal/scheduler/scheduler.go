package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
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

	"github.com/robfig/cron/v3"
)

// CronSpecs holds the cron expressions (with seconds field) for every
// periodic job.
type CronSpecs struct {
	Poll          string
	Technical     string
	Institutional string
	DigestAsia    string
	DigestEUUS    string
	DigestWeekly  string
	Calendar      string
	Cleanup       string
}

// Scheduler manages all cron tasks and owns the classification pipeline
// from fresh ticks to dispatched alerts.
type Scheduler struct {
	Cron          *cron.Cron
	Collector     *collector.Collector
	Series        *series.Store
	Analyzer      *analyzer.Analyzer
	Classifier    *classifier.Classifier
	Fuser         *fuser.Fuser
	Institutional *institutional.Service
	Prefs         *prefs.Store
	Dispatcher    *dispatch.Dispatcher
	Ledger        *dispatch.Ledger
	Calendar      *calendar.Notifier
	LLM           *llm.Client
	Store         storage.Store
	Ctx           context.Context
	StartedAt     time.Time

	mu        sync.Mutex
	lastAlert time.Time
	prevPrice map[string]float64
}

// New creates a Scheduler; collaborators are exported fields so tests can
// substitute them piecemeal.
func New(ctx context.Context) *Scheduler {
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Ctx:       ctx,
		StartedAt: time.Now().UTC(),
		prevPrice: make(map[string]float64),
	}
}

// RegisterAll wires every periodic job.
func (s *Scheduler) RegisterAll(specs CronSpecs) error {
	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"poll", specs.Poll, s.pollJob},
		{"technical", specs.Technical, s.technicalJob},
		{"institutional", specs.Institutional, s.institutionalJob},
		{"digest-asia", specs.DigestAsia, s.digestAsiaJob},
		{"digest-eu-us", specs.DigestEUUS, s.digestEUUSJob},
		{"digest-weekly", specs.DigestWeekly, s.digestWeeklyJob},
		{"calendar", specs.Calendar, s.calendarJob},
		{"cleanup", specs.Cleanup, s.cleanupJob},
	}
	for _, j := range jobs {
		if _, err := s.Cron.AddFunc(j.spec, j.fn); err != nil {
			return fmt.Errorf("register %s task: %w", j.name, err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("[INFO] scheduler stopped")
}

func (s *Scheduler) pollJob() {
	s.Collector.PollOnce(s.Ctx)
	s.classifyCycle()
}

// classifyCycle runs every instrument through the movement classifier and
// submits breaches to the dispatcher. The ledger makes overlapping cycles
// harmless.
func (s *Scheduler) classifyCycle() {
	now := time.Now().UTC()
	for _, ticker := range model.Tickers() {
		snap, err := s.Series.Snapshot(ticker)
		if err != nil {
			continue
		}
		if ev, ok := s.Classifier.Classify(snap, now); ok {
			enr := s.enrich(ticker, ev, now)
			res := s.Dispatcher.Submit(s.Ctx, ev, enr)
			if len(res.Sent) > 0 {
				s.mu.Lock()
				s.lastAlert = now
				s.mu.Unlock()
				log.Printf("[INFO] alert %s %s %s sent to %d users", res.AlertID, ev.Severity, ticker, len(res.Sent))
			}
		}
		s.levelCycle(ticker, snap, now)
	}
}

// levelCycle checks the latest price against the cached technical levels
// and submits break/proximity signals. The previous cycle's price is the
// crossing reference; the first cycle after start only primes it.
func (s *Scheduler) levelCycle(ticker string, snap model.SeriesSnapshot, now time.Time) {
	latest, ok := snap.Latest()
	if !ok {
		return
	}
	s.mu.Lock()
	prev := s.prevPrice[ticker]
	s.prevPrice[ticker] = latest.Price
	s.mu.Unlock()

	for _, sig := range s.Analyzer.LevelSignals(ticker, prev, latest.Price, now) {
		res := s.Dispatcher.SubmitSignal(s.Ctx, sig)
		if len(res.Sent) > 0 {
			s.mu.Lock()
			s.lastAlert = now
			s.mu.Unlock()
			log.Printf("[INFO] %s signal %s %s sent to %d users", sig.Kind, ticker, sig.LevelName, len(res.Sent))
		}
	}
}

// enrich assembles the confluence context for one event. Critical alerts
// additionally get a short language-model note; a slow or exhausted pool
// degrades to template-only text.
func (s *Scheduler) enrich(ticker string, ev model.MovementEvent, now time.Time) model.Enrichment {
	techVote := s.Analyzer.TechnicalVote(ticker, ev.CurrentPrice)
	enr := s.Fuser.Enrich(ticker, techVote)

	if ev.Severity == model.SeverityCritical && s.LLM.Enabled() && s.ledgerAdmits(ev, now) {
		ctx, cancel := context.WithTimeout(s.Ctx, 20*time.Second)
		defer cancel()
		inst := model.Instruments[ticker]
		prompt := fmt.Sprintf(
			"%s moveu %.2f%% em %s, de %.2f para %.2f. Explique o movimento em uma frase curta para um trader, em português.",
			inst.Name, ev.ChangePercent, ev.Window, ev.ReferencePrice, ev.CurrentPrice)
		note, modelName, err := s.LLM.Elaborate(ctx, "Você é um analista de metais conciso.", prompt)
		if err != nil {
			log.Printf("[WARN] llm elaboration skipped: %v", err)
		} else {
			enr.LLMNote = note
			log.Printf("[INFO] llm note from %s for %s", modelName, ticker)
		}
	}
	return enr
}

// ledgerAdmits reports whether the rate-limit ledger would still accept
// this event. A sustained move re-classifies on every poll cycle, and an
// elaboration for an alert the ledger will drop only burns the daily quota.
func (s *Scheduler) ledgerAdmits(ev model.MovementEvent, now time.Time) bool {
	if s.Ledger == nil {
		return true
	}
	last, ok := s.Ledger.LastSent(ev.Instrument, ev.Severity)
	return !ok || now.Sub(last) >= ev.Severity.MinInterval()
}

func (s *Scheduler) technicalJob() {
	now := time.Now().UTC()
	for _, ticker := range model.Tickers() {
		snap, err := s.Series.Snapshot(ticker)
		if err != nil {
			continue
		}
		if _, err := s.Analyzer.Analyze(snap, now); err != nil {
			log.Printf("[WARN] analyze %s: %v", ticker, err)
		}
	}
}

func (s *Scheduler) institutionalJob() {
	log.Println("[INFO] refreshing institutional data")
	s.Institutional.RefreshAll(s.Ctx)
	s.whaleCycle(time.Now().UTC())
}

// whaleCycle emits a standalone signal when an instrument's on-chain
// transfer window clears the whale bar. The signal ledger key keeps it to
// one alert per re-alert interval even though the data refreshes hourly.
func (s *Scheduler) whaleCycle(now time.Time) {
	for _, ticker := range model.Tickers() {
		snap, ok := s.Fuser.Latest(ticker)
		if !ok || snap.Whale == nil || snap.Whale.TotalUSD < institutional.WhaleThresholdUSD {
			continue
		}
		w := *snap.Whale
		res := s.Dispatcher.SubmitSignal(s.Ctx, model.SignalEvent{
			Instrument: ticker,
			Kind:       model.SignalWhale,
			Severity:   model.SeverityImportant,
			Direction:  w.NetDirection,
			Whale:      &w,
			Time:       now,
		})
		if len(res.Sent) > 0 {
			log.Printf("[INFO] whale signal %s sent to %d users", ticker, len(res.Sent))
		}
	}
}

func (s *Scheduler) calendarJob() {
	for _, r := range s.Calendar.Due(time.Now().UTC()) {
		b := dispatch.Broadcast{
			Kind:       model.AlertReminder,
			Instrument: r.Event.Instrument,
			Title:      fmt.Sprintf("📅 LEMBRETE | %s em %s", r.Event.Title, calendar.OffsetLabel(r.Offset)),
			Body:       fmt.Sprintf("Evento: %s\nQuando: %s UTC", r.Event.Title, r.Event.At.UTC().Format("02/01 15:04")),
		}
		res := s.Dispatcher.SubmitBroadcast(s.Ctx, b)
		log.Printf("[INFO] reminder %q sent to %d users", r.Event.Title, len(res.Sent))
	}
}

func (s *Scheduler) cleanupJob() {
	if err := s.Store.Cleanup(30 * 24 * time.Hour); err != nil {
		log.Printf("[ERROR] storage cleanup: %v", err)
	} else {
		log.Println("[INFO] storage cleanup done")
	}
}

// lastAlertAt reports when the dispatcher last delivered something.
func (s *Scheduler) lastAlertAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAlert
}
