package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"tradesim-lab/internal/domain"
	"tradesim-lab/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL. Fills are kept
// as a jsonb column; everything queryable is a flat column.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// InsertBulk adds a run's trades atomically. Fails entire batch on any
// duplicate (run_id, entry_bar, side).
func (s *TradeStore) InsertBulk(ctx context.Context, runID string, trades []domain.Trade) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO simulation_trades (
			run_id, side, entry_bar, exit_bar, entry_time_ms, exit_time_ms,
			avg_entry, avg_exit, size, realized_pnl, commission, funding,
			net_pnl, exit_reason, fills
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15
		)
	`

	for _, t := range trades {
		fills, err := json.Marshal(t.Fills)
		if err != nil {
			return fmt.Errorf("marshal fills: %w", err)
		}
		_, err = tx.Exec(ctx, query,
			runID, t.Side, t.EntryBar, t.ExitBar, t.EntryTimeMs, t.ExitTimeMs,
			t.AvgEntry, t.AvgExit, t.Size, t.RealizedPnL, t.Commission, t.Funding,
			t.NetPnL, t.ExitReason, fills,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert simulation trade: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRunID retrieves all trades of a run, ordered by entry bar ASC.
func (s *TradeStore) GetByRunID(ctx context.Context, runID string) ([]domain.Trade, error) {
	query := `
		SELECT
			side, entry_bar, exit_bar, entry_time_ms, exit_time_ms,
			avg_entry, avg_exit, size, realized_pnl, commission, funding,
			net_pnl, exit_reason, fills
		FROM simulation_trades
		WHERE run_id = $1
		ORDER BY entry_bar ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get simulation trades: %w", err)
	}
	defer rows.Close()

	var result []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var fills []byte
		err := rows.Scan(
			&t.Side, &t.EntryBar, &t.ExitBar, &t.EntryTimeMs, &t.ExitTimeMs,
			&t.AvgEntry, &t.AvgExit, &t.Size, &t.RealizedPnL, &t.Commission, &t.Funding,
			&t.NetPnL, &t.ExitReason, &fills,
		)
		if err != nil {
			return nil, fmt.Errorf("scan simulation trade: %w", err)
		}
		if len(fills) > 0 {
			if err := json.Unmarshal(fills, &t.Fills); err != nil {
				return nil, fmt.Errorf("unmarshal fills: %w", err)
			}
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate simulation trades: %w", err)
	}
	return result, nil
}
