package config

import (
	"fmt"
	"time"

	"k-stock-insight/pkg/common"
	"k-stock-insight/pkg/config"
	"k-stock-insight/pkg/utils"
)

// Ingest holds the ingestion engine settings.
type Ingest struct {
	StartDate               string        `mapstructure:"start_date"`
	IncrementalLookbackDays int           `mapstructure:"incremental_lookback_days"`
	BatchSize               int           `mapstructure:"batch_size"`
	CheckpointEvery         int           `mapstructure:"checkpoint_every"`
	Workers                 int           `mapstructure:"workers"`
	RequestDelay            time.Duration `mapstructure:"request_delay"`
	FetchTimeout            time.Duration `mapstructure:"fetch_timeout"`
	CommitTimeout           time.Duration `mapstructure:"commit_timeout"`
	MaxRetries              int           `mapstructure:"max_retries"`
	Markets                 []string      `mapstructure:"markets"`
	SectorMarket            string        `mapstructure:"sector_market"`
	ParallelTables          bool          `mapstructure:"parallel_tables"`
	RetryFailedEntities     bool          `mapstructure:"retry_failed_entities"`
	FailedEntityTTL         time.Duration `mapstructure:"failed_entity_ttl"`
	RunLockTTL              time.Duration `mapstructure:"run_lock_ttl"`
	TimeZone                string        `mapstructure:"time_zone"`
}

// KRX holds the upstream provider settings.
type KRX struct {
	BaseURL             string        `mapstructure:"base_url"`
	UserAgent           string        `mapstructure:"user_agent"`
	MaxRequestPerMinute int           `mapstructure:"max_request_per_minute"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

// Schedule holds the cron expression used by the serve command.
type Schedule struct {
	Cron string `mapstructure:"cron"`
}

// Telegram holds configuration for the Telegram notifier.
type Telegram struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// Config holds the full configuration for the ingestion service.
type Config struct {
	App      config.App      `mapstructure:"app"`
	Logger   config.Logger   `mapstructure:"logger"`
	Database config.Database `mapstructure:"database"`
	Redis    config.Redis    `mapstructure:"redis"`
	Ingest   Ingest          `mapstructure:"ingest"`
	KRX      KRX             `mapstructure:"krx"`
	Schedule Schedule        `mapstructure:"schedule"`
	Telegram Telegram        `mapstructure:"telegram"`
}

var defaults = map[string]interface{}{
	"app.name":                         "k-stock-ingestor",
	"logger.level":                     "info",
	"logger.encoding":                  "json",
	"ingest.start_date":                "2025-01-01",
	"ingest.incremental_lookback_days": 30,
	"ingest.batch_size":                100,
	"ingest.checkpoint_every":          100,
	"ingest.workers":                   4,
	"ingest.request_delay":             "1s",
	"ingest.fetch_timeout":             "30s",
	"ingest.commit_timeout":            "30s",
	"ingest.max_retries":               2,
	"ingest.markets":                   common.Markets,
	"ingest.sector_market":             common.MarketKOSPI,
	"ingest.failed_entity_ttl":         "720h",
	"ingest.run_lock_ttl":              "6h",
	"ingest.time_zone":                 "Asia/Seoul",
	"krx.base_url":                     "http://data.krx.co.kr",
	"krx.user_agent":                   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"krx.max_request_per_minute":       60,
	"krx.timeout":                      "20s",
	"schedule.cron":                    "30 18 * * 1-5",
}

// Load loads the ingestion configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg, defaults); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.CheckpointEvery <= 0 {
		return fmt.Errorf("ingest.checkpoint_every must be positive, got %d", c.Ingest.CheckpointEvery)
	}
	if c.Ingest.Workers < 1 || c.Ingest.Workers > 8 {
		return fmt.Errorf("ingest.workers must be between 1 and 8, got %d", c.Ingest.Workers)
	}
	if c.Ingest.MaxRetries < 0 {
		return fmt.Errorf("ingest.max_retries must not be negative, got %d", c.Ingest.MaxRetries)
	}
	if _, err := utils.ParseDate(c.Ingest.StartDate); err != nil {
		return fmt.Errorf("ingest.start_date %q: %w", c.Ingest.StartDate, err)
	}
	if len(c.Ingest.Markets) == 0 {
		return fmt.Errorf("ingest.markets must not be empty")
	}
	for _, m := range c.Ingest.Markets {
		if !common.IsKnownMarket(m) {
			return fmt.Errorf("ingest.markets: unknown market %q", m)
		}
	}
	if !common.IsKnownMarket(c.Ingest.SectorMarket) {
		return fmt.Errorf("ingest.sector_market: unknown market %q", c.Ingest.SectorMarket)
	}
	if _, err := time.LoadLocation(c.Ingest.TimeZone); err != nil {
		return fmt.Errorf("ingest.time_zone %q: %w", c.Ingest.TimeZone, err)
	}
	if c.KRX.MaxRequestPerMinute <= 0 {
		return fmt.Errorf("krx.max_request_per_minute must be positive, got %d", c.KRX.MaxRequestPerMinute)
	}
	return nil
}

// FixedStartDate returns the parsed backfill start boundary.
func (i Ingest) FixedStartDate() time.Time {
	t, _ := utils.ParseDate(i.StartDate)
	return t
}

// Location returns the exchange time zone used to derive "yesterday".
func (i Ingest) Location() *time.Location {
	loc, err := time.LoadLocation(i.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
