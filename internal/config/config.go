package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
	} `yaml:"telegram"`
	Sources struct {
		SpotBaseURL    string `yaml:"spot_base_url"`
		SpotAPIKey     string `yaml:"spot_api_key"`
		ETFBaseURL     string `yaml:"etf_base_url"`
		OnChainBaseURL string `yaml:"onchain_base_url"`
		OnChainAPIKey  string `yaml:"onchain_api_key"`
	} `yaml:"sources"`
	LLM struct {
		OpenRouterKey  string `yaml:"openrouter_key"`
		MaxCallsPerDay int    `yaml:"max_calls_per_day"`
	} `yaml:"llm"`
	Schedule struct {
		PollCron          string `yaml:"poll_cron"`
		TechnicalCron     string `yaml:"technical_cron"`
		InstitutionalCron string `yaml:"institutional_cron"`
		DigestAsiaCron    string `yaml:"digest_asia_cron"`
		DigestEUUSCron    string `yaml:"digest_eu_us_cron"`
		DigestWeeklyCron  string `yaml:"digest_weekly_cron"`
		CalendarCron      string `yaml:"calendar_cron"`
		CleanupCron       string `yaml:"cleanup_cron"`
	} `yaml:"schedule"`
	Series struct {
		TickRetentionHours int `yaml:"tick_retention_hours"`
		MaxDailyCloses     int `yaml:"max_daily_closes"`
		BackfillDays       int `yaml:"backfill_days"`
	} `yaml:"series"`
	Calendar []struct {
		Title      string `yaml:"title"`
		At         string `yaml:"at"` // RFC 3339
		Instrument string `yaml:"instrument"`
	} `yaml:"calendar"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("SPOT_BASE_URL"); v != "" {
		cfg.Sources.SpotBaseURL = v
	}
	if v := os.Getenv("SPOT_API_KEY"); v != "" {
		cfg.Sources.SpotAPIKey = v
	}
	if v := os.Getenv("ETF_BASE_URL"); v != "" {
		cfg.Sources.ETFBaseURL = v
	}
	if v := os.Getenv("ONCHAIN_BASE_URL"); v != "" {
		cfg.Sources.OnChainBaseURL = v
	}
	if v := os.Getenv("ONCHAIN_API_KEY"); v != "" {
		cfg.Sources.OnChainAPIKey = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.LLM.OpenRouterKey = v
	}
	if v := os.Getenv("MAX_LLM_CALLS_PER_DAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.MaxCallsPerDay = n
		}
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.MaxCallsPerDay == 0 {
		cfg.LLM.MaxCallsPerDay = 1000
	}
	if cfg.Schedule.PollCron == "" {
		cfg.Schedule.PollCron = "*/30 * * * * *"
	}
	if cfg.Schedule.TechnicalCron == "" {
		cfg.Schedule.TechnicalCron = "0 */5 * * * *"
	}
	if cfg.Schedule.InstitutionalCron == "" {
		cfg.Schedule.InstitutionalCron = "0 0 * * * *"
	}
	if cfg.Schedule.DigestAsiaCron == "" {
		cfg.Schedule.DigestAsiaCron = "0 30 7 * * *"
	}
	if cfg.Schedule.DigestEUUSCron == "" {
		cfg.Schedule.DigestEUUSCron = "0 30 21 * * *"
	}
	if cfg.Schedule.DigestWeeklyCron == "" {
		cfg.Schedule.DigestWeeklyCron = "0 0 23 * * 6"
	}
	if cfg.Schedule.CalendarCron == "" {
		cfg.Schedule.CalendarCron = "0 * * * * *"
	}
	if cfg.Schedule.CleanupCron == "" {
		cfg.Schedule.CleanupCron = "0 0 4 * * *"
	}
	if cfg.Series.TickRetentionHours == 0 {
		cfg.Series.TickRetentionHours = 48
	}
	if cfg.Series.MaxDailyCloses == 0 {
		cfg.Series.MaxDailyCloses = 400
	}
	if cfg.Series.BackfillDays == 0 {
		cfg.Series.BackfillDays = 250
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/metalwatch.db"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Series.TickRetentionHours < 24 {
		return fmt.Errorf("series.tick_retention_hours must cover the 24h classification window")
	}
	for _, ev := range c.Calendar {
		if _, err := time.Parse(time.RFC3339, ev.At); err != nil {
			return fmt.Errorf("calendar event %q: bad time %q (want RFC 3339)", ev.Title, ev.At)
		}
	}
	return nil
}
