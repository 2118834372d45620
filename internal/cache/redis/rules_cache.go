package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantfold/scalpbot/internal/domain"
)

// rulesTTL keeps instrument filters for a day; they change rarely and a
// restart of the venue's listings invalidates them naturally.
const rulesTTL = 24 * time.Hour

// RulesCache implements domain.RulesCache using Redis hashes at
// "scalpbot:rules:{symbol}".
type RulesCache struct {
	rdb *redis.Client
}

// NewRulesCache creates a RulesCache backed by the given Client.
func NewRulesCache(c *Client) *RulesCache {
	return &RulesCache{rdb: c.Underlying()}
}

func rulesKey(symbol string) string {
	return "scalpbot:rules:" + symbol
}

func formatF(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// SetRule stores a symbol's trading filters.
func (rc *RulesCache) SetRule(ctx context.Context, rule domain.MarketRule) error {
	key := rulesKey(rule.Symbol)
	fields := map[string]any{
		"tick_size":    formatF(rule.TickSize),
		"lot_step":     formatF(rule.LotStep),
		"min_qty":      formatF(rule.MinQty),
		"min_notional": formatF(rule.MinNotional),
	}
	pipe := rc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, rulesTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set rules %s: %w", rule.Symbol, err)
	}
	return nil
}

// GetRule retrieves a symbol's cached trading filters. It returns
// domain.ErrNotFound when the key is absent.
func (rc *RulesCache) GetRule(ctx context.Context, symbol string) (domain.MarketRule, error) {
	vals, err := rc.rdb.HGetAll(ctx, rulesKey(symbol)).Result()
	if err != nil {
		return domain.MarketRule{}, fmt.Errorf("redis: get rules %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.MarketRule{}, domain.ErrNotFound
	}

	parse := func(field string) float64 {
		f, _ := strconv.ParseFloat(vals[field], 64)
		return f
	}
	return domain.MarketRule{
		Symbol:      symbol,
		TickSize:    parse("tick_size"),
		LotStep:     parse("lot_step"),
		MinQty:      parse("min_qty"),
		MinNotional: parse("min_notional"),
	}, nil
}

// Compile-time interface check.
var _ domain.RulesCache = (*RulesCache)(nil)
