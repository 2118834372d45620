package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/scalpbot/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. It mirrors the
// JSONL event log into a queryable table.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts one event row. Meta is stored as JSONB.
func (s *EventStore) Append(ctx context.Context, ev domain.EventRecord) error {
	var meta []byte
	if ev.Meta != nil {
		var err error
		meta, err = json.Marshal(ev.Meta)
		if err != nil {
			return fmt.Errorf("postgres: marshal event meta: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (ts, run_id, step, symbol, meta) VALUES ($1, $2, $3, $4, $5)`,
		ev.Ts, ev.RunID, ev.Step, ev.Symbol, meta,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert event: %w", err)
	}
	return nil
}
