package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/scalpbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, run_id, symbol, side, entry_price, exit_price,
	qty, realized_pnl, fees, reason, opened_at, closed_at`

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		if err := rows.Scan(
			&t.ID, &t.RunID, &t.Symbol, &t.Side,
			&t.EntryPrice, &t.ExitPrice, &t.Qty,
			&t.RealizedPnL, &t.Fees, &t.Reason,
			&t.OpenedAt, &t.ClosedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Create inserts one closed trade. Re-inserting the same ID is a no-op so a
// retried persist after a transient failure cannot duplicate the row.
func (s *TradeStore) Create(ctx context.Context, t domain.TradeRecord) error {
	const query = `
		INSERT INTO trades (
			id, run_id, symbol, side, entry_price, exit_price,
			qty, realized_pnl, fees, reason, opened_at, closed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12
		) ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.RunID, t.Symbol, t.Side,
		t.EntryPrice, t.ExitPrice, t.Qty,
		t.RealizedPnL, t.Fees, t.Reason,
		t.OpenedAt, t.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

// ListByRun returns a run's trades ordered by close time.
func (s *TradeStore) ListByRun(ctx context.Context, runID string) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE run_id = $1 ORDER BY closed_at ASC`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by run: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by run: %w", err)
	}
	return trades, nil
}
