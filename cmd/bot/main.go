package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MetalWatch/internal/analyzer"
	"MetalWatch/internal/calendar"
	"MetalWatch/internal/classifier"
	"MetalWatch/internal/collector"
	"MetalWatch/internal/config"
	"MetalWatch/internal/dispatch"
	"MetalWatch/internal/fuser"
	"MetalWatch/internal/institutional"
	"MetalWatch/internal/llm"
	"MetalWatch/internal/notifier"
	"MetalWatch/internal/prefs"
	"MetalWatch/internal/scheduler"
	"MetalWatch/internal/series"
	"MetalWatch/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] MetalWatch starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Init storage
	var store storage.Store
	if cfg.Database.SQLitePath != "" {
		ss, err := storage.NewSQLiteStore(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite store failed, using noop: %v", err)
			store = storage.NewNoopStore()
		} else {
			store = ss
			defer ss.Close()
		}
	} else {
		store = storage.NewNoopStore()
	}

	// Init price series and analysis pipeline
	ser := series.NewStore(time.Duration(cfg.Series.TickRetentionHours)*time.Hour, cfg.Series.MaxDailyCloses)
	ana := analyzer.New(analyzer.DefaultConfig())
	cls := classifier.New()
	fus := fuser.New()

	// Init fetchers: Yahoo futures for the metals it quotes, spot API for
	// everything else.
	fetchers := []collector.Fetcher{collector.NewYahooFetcher(cfg.Proxy)}
	if cfg.Sources.SpotBaseURL != "" {
		fetchers = append(fetchers, collector.NewSpotFetcher(cfg.Sources.SpotBaseURL, cfg.Sources.SpotAPIKey, cfg.Proxy))
	}
	col := collector.NewCollector(fetchers, ser, store)
	col.Backfill(cfg.Series.BackfillDays)

	// Init institutional sources
	instFetchers := []institutional.Fetcher{institutional.NewCFTCFetcher(cfg.Proxy)}
	if cfg.Sources.ETFBaseURL != "" {
		instFetchers = append(instFetchers, institutional.NewETFFetcher(cfg.Sources.ETFBaseURL))
	}
	if cfg.Sources.OnChainBaseURL != "" {
		instFetchers = append(instFetchers, institutional.NewOnChainFetcher(cfg.Sources.OnChainBaseURL, cfg.Sources.OnChainAPIKey))
	}
	inst := institutional.NewService(instFetchers, fus)

	// Init user preferences and dispatch
	pstore, err := prefs.NewStore(store)
	if err != nil {
		log.Fatalf("[FATAL] init preference store: %v", err)
	}
	ledger, err := dispatch.NewLedger(store)
	if err != nil {
		log.Fatalf("[FATAL] init dispatch ledger: %v", err)
	}
	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Proxy)
	disp := dispatch.NewDispatcher(pstore, ledger, tn, notifier.MessageFormatter{}, store)

	// Init LLM client
	lc := llm.NewClient(cfg.LLM.OpenRouterKey, cfg.LLM.MaxCallsPerDay)
	if lc.Enabled() {
		log.Println("[INFO] LLM elaboration enabled")
	}

	// Init calendar with configured events
	cal := calendar.NewNotifier()
	now := time.Now().UTC()
	for _, ev := range cfg.Calendar {
		at, _ := time.Parse(time.RFC3339, ev.At)
		cal.Add(calendar.Event{Title: ev.Title, At: at.UTC(), Instrument: ev.Instrument}, now)
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init scheduler
	sched := scheduler.New(ctx)
	sched.Collector = col
	sched.Series = ser
	sched.Analyzer = ana
	sched.Classifier = cls
	sched.Fuser = fus
	sched.Institutional = inst
	sched.Prefs = pstore
	sched.Dispatcher = disp
	sched.Ledger = ledger
	sched.Calendar = cal
	sched.LLM = lc
	sched.Store = store
	if err := sched.RegisterAll(scheduler.CronSpecs{
		Poll:          cfg.Schedule.PollCron,
		Technical:     cfg.Schedule.TechnicalCron,
		Institutional: cfg.Schedule.InstitutionalCron,
		DigestAsia:    cfg.Schedule.DigestAsiaCron,
		DigestEUUS:    cfg.Schedule.DigestEUUSCron,
		DigestWeekly:  cfg.Schedule.DigestWeeklyCron,
		Calendar:      cfg.Schedule.CalendarCron,
		Cleanup:       cfg.Schedule.CleanupCron,
	}); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	go tn.StartPolling(ctx, sched.HandleCommand)
	log.Println("[INFO] Telegram polling started")

	log.Println("[INFO] MetalWatch is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	log.Println("[INFO] MetalWatch stopped")
}
