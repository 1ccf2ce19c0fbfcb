package postgres

import (
	"context"
	"fmt"

	"tradesim-lab/internal/domain"
	"tradesim-lab/internal/storage"
)

// EquityStore implements storage.EquityStore using PostgreSQL.
type EquityStore struct {
	pool *Pool
}

// NewEquityStore creates a new EquityStore.
func NewEquityStore(pool *Pool) *EquityStore {
	return &EquityStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EquityStore = (*EquityStore)(nil)

// InsertBulk adds a run's equity samples. Fails entire batch on a duplicate
// (run_id, timestamp_ms).
func (s *EquityStore) InsertBulk(ctx context.Context, runID string, samples []domain.EquitySample) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO simulation_equity (
			run_id, timestamp_ms, equity, realized, unrealized, drawdown, run_up
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, sample := range samples {
		_, err := tx.Exec(ctx, query,
			runID, sample.TimestampMs, sample.Equity, sample.Realized,
			sample.Unrealized, sample.Drawdown, sample.RunUp,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert equity sample: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRunID retrieves a run's equity curve, ordered by timestamp ASC.
func (s *EquityStore) GetByRunID(ctx context.Context, runID string) ([]domain.EquitySample, error) {
	query := `
		SELECT timestamp_ms, equity, realized, unrealized, drawdown, run_up
		FROM simulation_equity
		WHERE run_id = $1
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get equity samples: %w", err)
	}
	defer rows.Close()

	var result []domain.EquitySample
	for rows.Next() {
		var sample domain.EquitySample
		err := rows.Scan(
			&sample.TimestampMs, &sample.Equity, &sample.Realized,
			&sample.Unrealized, &sample.Drawdown, &sample.RunUp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan equity sample: %w", err)
		}
		result = append(result, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate equity samples: %w", err)
	}
	return result, nil
}
