package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/quantfold/scalpbot/internal/domain"
)

const cooldownKey = "scalpbot:cooldown"

// CooldownCache implements domain.CooldownStore using a single Redis hash so
// the loss-streak gate survives a restart.
type CooldownCache struct {
	rdb *redis.Client
}

// NewCooldownCache creates a CooldownCache backed by the given Client.
func NewCooldownCache(c *Client) *CooldownCache {
	return &CooldownCache{rdb: c.Underlying()}
}

// Save persists the current loss streak and resume timestamp.
func (cc *CooldownCache) Save(ctx context.Context, losses int, resumeTs int64) error {
	fields := map[string]any{
		"losses":    strconv.Itoa(losses),
		"resume_ts": strconv.FormatInt(resumeTs, 10),
	}
	if err := cc.rdb.HSet(ctx, cooldownKey, fields).Err(); err != nil {
		return fmt.Errorf("redis: save cooldown: %w", err)
	}
	return nil
}

// Load retrieves the persisted cooldown state. A missing key loads as the
// zero state rather than an error so a fresh deployment starts clean.
func (cc *CooldownCache) Load(ctx context.Context) (int, int64, error) {
	vals, err := cc.rdb.HGetAll(ctx, cooldownKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis: load cooldown: %w", err)
	}
	if len(vals) == 0 {
		return 0, 0, nil
	}
	losses, _ := strconv.Atoi(vals["losses"])
	resumeTs, _ := strconv.ParseInt(vals["resume_ts"], 10, 64)
	return losses, resumeTs, nil
}

// Compile-time interface check.
var _ domain.CooldownStore = (*CooldownCache)(nil)
