package storage

import (
	"context"

	"tradesim-lab/internal/domain"
)

// BarStore provides access to OHLCV candle storage, keyed by
// (symbol, timeframe, timestamp_ms).
type BarStore interface {
	// InsertBulk adds multiple bars. Fails the entire batch on a duplicate
	// (symbol, timeframe, timestamp_ms).
	InsertBulk(ctx context.Context, symbol string, tf domain.Timeframe, bars []domain.Bar) error

	// GetRange retrieves bars within [start, end] (inclusive), ordered by
	// timestamp ASC.
	GetRange(ctx context.Context, symbol string, tf domain.Timeframe, start, end int64) ([]domain.Bar, error)

	// GetAll retrieves every bar for the symbol/timeframe, ordered by
	// timestamp ASC.
	GetAll(ctx context.Context, symbol string, tf domain.Timeframe) ([]domain.Bar, error)
}

// ResultStore provides access to simulation run results.
type ResultStore interface {
	// Insert persists a finished run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, res *domain.SimulationResult) error

	// GetByRunID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByRunID(ctx context.Context, runID string) (*domain.SimulationResult, error)

	// GetBySymbol retrieves all runs for a symbol, newest first.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.SimulationResult, error)
}

// TradeStore provides access to the per-run closed trades.
type TradeStore interface {
	// InsertBulk adds a run's trades atomically. Fails the entire batch on
	// any duplicate (run_id, entry_bar, side).
	InsertBulk(ctx context.Context, runID string, trades []domain.Trade) error

	// GetByRunID retrieves all trades of a run, ordered by entry bar ASC.
	GetByRunID(ctx context.Context, runID string) ([]domain.Trade, error)
}

// EquityStore provides access to the per-run equity curves.
type EquityStore interface {
	// InsertBulk adds a run's equity samples. Fails the entire batch on a
	// duplicate (run_id, timestamp_ms).
	InsertBulk(ctx context.Context, runID string, samples []domain.EquitySample) error

	// GetByRunID retrieves a run's equity curve, ordered by timestamp ASC.
	GetByRunID(ctx context.Context, runID string) ([]domain.EquitySample, error)
}
