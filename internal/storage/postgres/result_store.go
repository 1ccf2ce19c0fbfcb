package postgres

import (
	"context"
	"fmt"

	"tradesim-lab/internal/domain"
	"tradesim-lab/internal/storage"
)

// ResultStore implements storage.ResultStore using PostgreSQL. Only the run
// header and aggregate metrics live here; trades and equity samples have
// their own stores.
type ResultStore struct {
	pool *Pool
}

// NewResultStore creates a new ResultStore.
func NewResultStore(pool *Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ResultStore = (*ResultStore)(nil)

// Insert persists a finished run. Returns ErrDuplicateKey if run_id exists.
func (s *ResultStore) Insert(ctx context.Context, res *domain.SimulationResult) error {
	if res == nil || res.RunID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO simulation_runs (
			run_id, symbol, initial_capital, final_capital,
			terminated_early, bars_processed, diagnostics,
			net_pnl, net_pnl_pct, total_trades, wins, losses, win_rate,
			profit_factor, sharpe, sortino, max_drawdown, max_drawdown_pct,
			buy_hold_return, avg_trade_pnl, avg_bars_in_trade,
			total_commission, total_funding
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18,
			$19, $20, $21,
			$22, $23
		)
	`

	m := res.Metrics
	_, err := s.pool.Exec(ctx, query,
		res.RunID, res.Symbol, res.InitialCapital, res.FinalCapital,
		res.TerminatedEarly, res.BarsProcessed, len(res.Diagnostics),
		m.NetPnL, m.NetPnLPct, m.TotalTrades, m.Wins, m.Losses, m.WinRate,
		m.ProfitFactor, m.Sharpe, m.Sortino, m.MaxDrawdown, m.MaxDrawdownPct,
		m.BuyHoldReturn, m.AvgTradePnL, m.AvgBarsInTrade,
		m.TotalCommission, m.TotalFunding,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert simulation run: %w", err)
	}
	return nil
}

// GetByRunID retrieves a run header by its ID. Returns ErrNotFound if not
// exists.
func (s *ResultStore) GetByRunID(ctx context.Context, runID string) (*domain.SimulationResult, error) {
	query := selectRunColumns + ` WHERE run_id = $1`

	row := s.pool.QueryRow(ctx, query, runID)
	res, err := scanRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get simulation run by id: %w", err)
	}
	return res, nil
}

// GetBySymbol retrieves all run headers for a symbol, newest first.
func (s *ResultStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.SimulationResult, error) {
	query := selectRunColumns + ` WHERE symbol = $1 ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("get simulation runs by symbol: %w", err)
	}
	defer rows.Close()

	var result []*domain.SimulationResult
	for rows.Next() {
		res, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan simulation run: %w", err)
		}
		result = append(result, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate simulation runs: %w", err)
	}
	return result, nil
}

const selectRunColumns = `
	SELECT
		run_id, symbol, initial_capital, final_capital,
		terminated_early, bars_processed,
		net_pnl, net_pnl_pct, total_trades, wins, losses, win_rate,
		profit_factor, sharpe, sortino, max_drawdown, max_drawdown_pct,
		buy_hold_return, avg_trade_pnl, avg_bars_in_trade,
		total_commission, total_funding
	FROM simulation_runs
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.SimulationResult, error) {
	var res domain.SimulationResult
	m := &res.Metrics
	err := row.Scan(
		&res.RunID, &res.Symbol, &res.InitialCapital, &res.FinalCapital,
		&res.TerminatedEarly, &res.BarsProcessed,
		&m.NetPnL, &m.NetPnLPct, &m.TotalTrades, &m.Wins, &m.Losses, &m.WinRate,
		&m.ProfitFactor, &m.Sharpe, &m.Sortino, &m.MaxDrawdown, &m.MaxDrawdownPct,
		&m.BuyHoldReturn, &m.AvgTradePnL, &m.AvgBarsInTrade,
		&m.TotalCommission, &m.TotalFunding,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
