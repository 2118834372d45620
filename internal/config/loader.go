package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SCALPBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SCALPBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Bybit ──
	setStr(&cfg.Bybit.BaseURL, "SCALPBOT_BYBIT_BASE_URL")
	setStr(&cfg.Bybit.WsURL, "SCALPBOT_BYBIT_WS_URL")
	setStr(&cfg.Bybit.ApiKey, "SCALPBOT_BYBIT_API_KEY")
	setStr(&cfg.Bybit.ApiSecret, "SCALPBOT_BYBIT_API_SECRET")
	setInt64(&cfg.Bybit.RecvWindow, "SCALPBOT_BYBIT_RECV_WINDOW")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "SCALPBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "SCALPBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SCALPBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SCALPBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SCALPBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SCALPBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SCALPBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SCALPBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SCALPBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SCALPBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SCALPBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SCALPBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SCALPBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SCALPBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SCALPBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SCALPBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SCALPBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SCALPBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SCALPBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SCALPBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SCALPBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "SCALPBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SCALPBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SCALPBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SCALPBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SCALPBOT_S3_FORCE_PATH_STYLE")

	// ── Trading ──
	setStr(&cfg.Trading.Strategy, "SCALPBOT_TRADING_STRATEGY")
	setFloat64(&cfg.Trading.Leverage, "SCALPBOT_TRADING_LEVERAGE")
	setInt(&cfg.Trading.MaxSlots, "SCALPBOT_TRADING_MAX_SLOTS")
	setFloat64(&cfg.Trading.TotalBudget, "SCALPBOT_TRADING_TOTAL_BUDGET")
	setFloat64(&cfg.Trading.UseBalanceRatio, "SCALPBOT_TRADING_USE_BALANCE_RATIO")
	setInt(&cfg.Trading.TopN, "SCALPBOT_TRADING_TOP_N")
	setStringSlice(&cfg.Trading.Symbols, "SCALPBOT_TRADING_SYMBOLS")
	setStr(&cfg.Trading.FallbackSymbol, "SCALPBOT_TRADING_FALLBACK_SYMBOL")
	setDuration(&cfg.Trading.TickInterval, "SCALPBOT_TRADING_TICK_INTERVAL")
	setInt(&cfg.Trading.MaxAttempts, "SCALPBOT_TRADING_MAX_ATTEMPTS")
	setDuration(&cfg.Trading.BackoffBase, "SCALPBOT_TRADING_BACKOFF_BASE")
	setDuration(&cfg.Trading.BackoffMax, "SCALPBOT_TRADING_BACKOFF_MAX")
	setFloat64(&cfg.Trading.Strictness, "SCALPBOT_TRADING_STRICTNESS")
	setFloat64(&cfg.Trading.MaxSpreadOfMid, "SCALPBOT_TRADING_MAX_SPREAD_OF_MID")
	setFloat64(&cfg.Trading.MinTopDepth, "SCALPBOT_TRADING_MIN_TOP_DEPTH")
	setInt(&cfg.Trading.HistoryLen, "SCALPBOT_TRADING_HISTORY_LEN")

	// ── Guards ──
	setFloat64(&cfg.Guards.MinFreeBalance, "SCALPBOT_GUARDS_MIN_FREE_BALANCE")
	setFloat64(&cfg.Guards.MaxAllocPct, "SCALPBOT_GUARDS_MAX_ALLOC_PCT")
	setFloat64(&cfg.Guards.SlippagePct, "SCALPBOT_GUARDS_SLIPPAGE_PCT")

	// ── Trade lifecycle ──
	setFloat64(&cfg.Trade.TP1, "SCALPBOT_TRADE_TP1")
	setFloat64(&cfg.Trade.TrailAfterTP1, "SCALPBOT_TRADE_TRAIL_AFTER_TP1")
	setInt64(&cfg.Trade.TimeStopSec, "SCALPBOT_TRADE_TIME_STOP_SEC")
	setFloat64(&cfg.Trade.PartialPct, "SCALPBOT_TRADE_PARTIAL_PCT")
	setInt(&cfg.Trade.MaxConsecutiveLosses, "SCALPBOT_TRADE_MAX_CONSECUTIVE_LOSSES")
	setInt64(&cfg.Trade.CooldownSec, "SCALPBOT_TRADE_COOLDOWN_SEC")

	// ── Regime ──
	setBool(&cfg.Regime.Enabled, "SCALPBOT_REGIME_ENABLED")
	setFloat64(&cfg.Regime.CrashZ, "SCALPBOT_REGIME_CRASH_Z")
	setFloat64(&cfg.Regime.SpreadMultPause, "SCALPBOT_REGIME_SPREAD_MULT_PAUSE")
	setFloat64(&cfg.Regime.DepthDropPause, "SCALPBOT_REGIME_DEPTH_DROP_PAUSE")
	setFloat64(&cfg.Regime.OIDropPct, "SCALPBOT_REGIME_OI_DROP_PCT")
	setFloat64(&cfg.Regime.ResumeRVZ, "SCALPBOT_REGIME_RESUME_RV_Z")
	setFloat64(&cfg.Regime.ResumeSpreadMult, "SCALPBOT_REGIME_RESUME_SPREAD_MULT")
	setFloat64(&cfg.Regime.ResumeDepthRecover, "SCALPBOT_REGIME_RESUME_DEPTH_RECOVER")

	// ── Backtest ──
	setStr(&cfg.Backtest.TicksPath, "SCALPBOT_BACKTEST_TICKS_PATH")
	setStr(&cfg.Backtest.Symbol, "SCALPBOT_BACKTEST_SYMBOL")
	setFloat64(&cfg.Backtest.MakerFee, "SCALPBOT_BACKTEST_MAKER_FEE")
	setFloat64(&cfg.Backtest.TakerFee, "SCALPBOT_BACKTEST_TAKER_FEE")
	setFloat64(&cfg.Backtest.MakerBps, "SCALPBOT_BACKTEST_MAKER_SLIP_BPS")
	setFloat64(&cfg.Backtest.TakerBps, "SCALPBOT_BACKTEST_TAKER_SLIP_BPS")
	setFloat64(&cfg.Backtest.StartCash, "SCALPBOT_BACKTEST_START_CASH")

	// ── Event log ──
	setStr(&cfg.EventLog.Dir, "SCALPBOT_EVENT_LOG_DIR")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SCALPBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SCALPBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SCALPBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SCALPBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SCALPBOT_MODE")
	setStr(&cfg.LogLevel, "SCALPBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
