// Package config defines the top-level configuration for the scalp bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SCALPBOT_* environment variables.
type Config struct {
	Bybit    BybitConfig    `toml:"bybit"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Trading  TradingConfig  `toml:"trading"`
	Guards   GuardsConfig   `toml:"guards"`
	Trade    TradeConfig    `toml:"trade"`
	Regime   RegimeConfig   `toml:"regime"`
	Backtest BacktestConfig `toml:"backtest"`
	EventLog EventLogConfig `toml:"event_log"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// BybitConfig holds venue endpoints and API credentials.
type BybitConfig struct {
	BaseURL    string `toml:"base_url"`
	WsURL      string `toml:"ws_url"`
	ApiKey     string `toml:"api_key"`
	ApiSecret  string `toml:"api_secret"`
	RecvWindow int64  `toml:"recv_window"`
}

// PostgresConfig holds PostgreSQL connection parameters. Enabled false runs
// without trade/event persistence.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Enabled false runs with
// in-process caching only.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for run archiving
// and backtest tick retrieval.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// TradingConfig holds the orchestrator parameters.
type TradingConfig struct {
	Strategy        string   `toml:"strategy"` // pattern | pack
	Leverage        float64  `toml:"leverage"`
	MaxSlots        int      `toml:"max_slots"`
	TotalBudget     float64  `toml:"total_budget"` // 0 derives from balance
	UseBalanceRatio float64  `toml:"use_balance_ratio"`
	TopN            int      `toml:"top_n"`
	Symbols         []string `toml:"symbols"` // static universe; empty ranks by turnover
	FallbackSymbol  string   `toml:"fallback_symbol"`
	TickInterval    duration `toml:"tick_interval"`
	MaxAttempts     int      `toml:"max_attempts"`
	BackoffBase     duration `toml:"backoff_base"`
	BackoffMax      duration `toml:"backoff_max"`
	Strictness      float64  `toml:"strictness"`
	MaxSpreadOfMid  float64  `toml:"max_spread_of_mid"`
	MinTopDepth     float64  `toml:"min_top_depth"`
	HistoryLen      int      `toml:"history_len"`
}

// GuardsConfig holds the pre-entry risk guard thresholds.
type GuardsConfig struct {
	MinFreeBalance float64 `toml:"min_free_balance"`
	MaxAllocPct    float64 `toml:"max_alloc_pct"`
	SlippagePct    float64 `toml:"slippage_pct"`
}

// TradeConfig holds the position lifecycle and cooldown parameters.
type TradeConfig struct {
	TP1                  float64 `toml:"tp1"`
	TrailAfterTP1        float64 `toml:"trail_after_tp1"`
	TimeStopSec          int64   `toml:"time_stop_sec"`
	PartialPct           float64 `toml:"partial_pct"`
	MaxConsecutiveLosses int     `toml:"max_consecutive_losses"`
	CooldownSec          int64   `toml:"cooldown_sec"`
}

// RegimeConfig holds the market regime pause/resume thresholds.
type RegimeConfig struct {
	Enabled            bool    `toml:"enabled"`
	CrashZ             float64 `toml:"crash_z"`
	SpreadMultPause    float64 `toml:"spread_mult_pause"`
	DepthDropPause     float64 `toml:"depth_drop_pause"`
	OIDropPct          float64 `toml:"oi_drop_pct"`
	ResumeRVZ          float64 `toml:"resume_rv_z"`
	ResumeSpreadMult   float64 `toml:"resume_spread_mult"`
	ResumeDepthRecover float64 `toml:"resume_depth_recover"`
}

// BacktestConfig holds the backtest inputs and the fee/slippage models.
type BacktestConfig struct {
	TicksPath   string  `toml:"ticks_path"` // local file, or s3:// key when S3 is enabled
	Symbol      string  `toml:"symbol"`
	MakerFee    float64 `toml:"maker_fee"`
	TakerFee    float64 `toml:"taker_fee"`
	MakerBps    float64 `toml:"maker_slip_bps"`
	TakerBps    float64 `toml:"taker_slip_bps"`
	StartCash   float64 `toml:"start_cash"`
	ReportEvery int     `toml:"report_every"` // ticks between progress lines; 0 disables
}

// EventLogConfig holds the structured decision log settings.
type EventLogConfig struct {
	Dir string `toml:"dir"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration to support TOML string decoding ("5s", "2m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the tuned production values.
func Defaults() Config {
	return Config{
		Bybit: BybitConfig{
			BaseURL:    "https://api.bybit.com",
			WsURL:      "wss://stream.bybit.com/v5/public/linear",
			RecvWindow: 5000,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "scalpbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "scalpbot-data",
			ForcePathStyle: true,
		},
		Trading: TradingConfig{
			Strategy:        "pattern",
			Leverage:        3,
			MaxSlots:        3,
			TotalBudget:     0,
			UseBalanceRatio: 0.9,
			TopN:            12,
			FallbackSymbol:  "BTCUSDT",
			TickInterval:    duration{2 * time.Second},
			MaxAttempts:     3,
			BackoffBase:     duration{200 * time.Millisecond},
			BackoffMax:      duration{5 * time.Second},
			Strictness:      1.0,
			MaxSpreadOfMid:  0.0015,
			MinTopDepth:     0,
			HistoryLen:      64,
		},
		Guards: GuardsConfig{
			MinFreeBalance: 100,
			MaxAllocPct:    0.05,
			SlippagePct:    0.003,
		},
		Trade: TradeConfig{
			TP1:                  0.0012,
			TrailAfterTP1:        0.0008,
			TimeStopSec:          900,
			PartialPct:           0.5,
			MaxConsecutiveLosses: 3,
			CooldownSec:          1800,
		},
		Regime: RegimeConfig{
			Enabled:            true,
			CrashZ:             4.0,
			SpreadMultPause:    3.0,
			DepthDropPause:     0.80,
			OIDropPct:          2.0,
			ResumeRVZ:          1.5,
			ResumeSpreadMult:   1.3,
			ResumeDepthRecover: 0.80,
		},
		Backtest: BacktestConfig{
			Symbol:      "BTCUSDT",
			MakerFee:    0.0002,
			TakerFee:    0.00055,
			MakerBps:    0,
			TakerBps:    1,
			StartCash:   10_000,
			ReportEvery: 0,
		},
		EventLog: EventLogConfig{
			Dir: "runs",
		},
		Notify: NotifyConfig{
			Events: []string{"position_closed", "cooldown", "error"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":    true,
	"paper":    true,
	"backtest": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, paper, backtest)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Bybit — credentials are required only for live trading.
	if c.Bybit.BaseURL == "" {
		errs = append(errs, "bybit: base_url must not be empty")
	}
	if strings.ToLower(c.Mode) == "trade" {
		if c.Bybit.ApiKey == "" || c.Bybit.ApiSecret == "" {
			errs = append(errs, "bybit: api_key and api_secret are required for trade mode")
		}
		if c.Bybit.WsURL == "" {
			errs = append(errs, "bybit: ws_url must not be empty for trade mode")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Trading
	if c.Trading.Strategy != "pattern" && c.Trading.Strategy != "pack" {
		errs = append(errs, fmt.Sprintf("trading: unknown strategy %q (valid: pattern, pack)", c.Trading.Strategy))
	}
	if c.Trading.Leverage <= 0 {
		errs = append(errs, "trading: leverage must be > 0")
	}
	if c.Trading.MaxSlots < 1 {
		errs = append(errs, "trading: max_slots must be >= 1")
	}
	if c.Trading.TotalBudget < 0 {
		errs = append(errs, "trading: total_budget must be >= 0")
	}
	if c.Trading.UseBalanceRatio < 0 || c.Trading.UseBalanceRatio > 1 {
		errs = append(errs, "trading: use_balance_ratio must be in [0, 1]")
	}
	if c.Trading.TickInterval.Duration <= 0 {
		errs = append(errs, "trading: tick_interval must be > 0")
	}
	if c.Trading.Strictness <= 0 {
		errs = append(errs, "trading: strictness must be > 0")
	}
	if len(c.Trading.Symbols) == 0 && c.Trading.FallbackSymbol == "" {
		errs = append(errs, "trading: fallback_symbol is required when symbols is empty")
	}

	// Guards
	if c.Guards.MinFreeBalance < 0 {
		errs = append(errs, "guards: min_free_balance must be >= 0")
	}
	if c.Guards.MaxAllocPct <= 0 || c.Guards.MaxAllocPct > 1 {
		errs = append(errs, "guards: max_alloc_pct must be in (0, 1]")
	}
	if c.Guards.SlippagePct < 0 {
		errs = append(errs, "guards: slippage_pct must be >= 0")
	}

	// Trade lifecycle
	if c.Trade.TP1 <= 0 {
		errs = append(errs, "trade: tp1 must be > 0")
	}
	if c.Trade.TrailAfterTP1 <= 0 {
		errs = append(errs, "trade: trail_after_tp1 must be > 0")
	}
	if c.Trade.TimeStopSec <= 0 {
		errs = append(errs, "trade: time_stop_sec must be > 0")
	}
	if c.Trade.PartialPct <= 0 || c.Trade.PartialPct > 1 {
		errs = append(errs, "trade: partial_pct must be in (0, 1]")
	}
	if c.Trade.MaxConsecutiveLosses < 1 {
		errs = append(errs, "trade: max_consecutive_losses must be >= 1")
	}
	if c.Trade.CooldownSec < 0 {
		errs = append(errs, "trade: cooldown_sec must be >= 0")
	}

	// Backtest
	if strings.ToLower(c.Mode) == "backtest" {
		if c.Backtest.TicksPath == "" {
			errs = append(errs, "backtest: ticks_path is required for backtest mode")
		}
		if c.Backtest.StartCash <= 0 {
			errs = append(errs, "backtest: start_cash must be > 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
