package domain

import (
	"context"
	"io"
	"time"
)

// TradeRecord is a closed (or partially closed) trade persisted for analysis.
type TradeRecord struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	Qty         float64   `json:"qty"`
	RealizedPnL float64   `json:"realized_pnl"`
	Fees        float64   `json:"fees"`
	Reason      string    `json:"reason"` // tp1 | trail_stop | time_stop | manual
	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at"`
}

// TradeStore persists closed trades.
type TradeStore interface {
	Create(ctx context.Context, t TradeRecord) error
	ListByRun(ctx context.Context, runID string) ([]TradeRecord, error)
}

// EventRecord is one structured event-log line (see eventlog package).
type EventRecord struct {
	Ts     int64          `json:"ts"`
	RunID  string         `json:"run_id"`
	Step   string         `json:"step"`
	Symbol string         `json:"symbol,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// EventStore persists structured events alongside the JSONL file sink.
type EventStore interface {
	Append(ctx context.Context, ev EventRecord) error
}

// PriceCache caches mark prices with a bounded TTL so a burst of sizing calls
// does not hammer the venue.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
}

// RulesCache caches per-symbol market rules, which change rarely.
type RulesCache interface {
	SetRule(ctx context.Context, rule MarketRule) error
	GetRule(ctx context.Context, symbol string) (MarketRule, error)
}

// CooldownStore persists the loss-streak cooldown so a restart keeps gating.
type CooldownStore interface {
	Save(ctx context.Context, losses int, resumeTs int64) error
	Load(ctx context.Context) (losses int, resumeTs int64, err error)
}

// BlobWriter writes an object to blob storage (run archives).
type BlobWriter interface {
	Write(ctx context.Context, key string, data []byte, contentType string) error
}

// BlobInfo is object metadata returned by blob listings.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobReader reads objects from blob storage (tick archives for backtests).
type BlobReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// LockManager provides distributed mutual exclusion. Used to guarantee a
// single live trading run per account.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter bounds request rates, e.g. against the venue REST API.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}
