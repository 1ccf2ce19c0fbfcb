package batch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim-lab/internal/domain"
	"tradesim-lab/internal/storage/memory"
)

func sweepBars(n int) []domain.Bar {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	bars := make([]domain.Bar, n)
	price := 100.0
	for i := range bars {
		bars[i] = domain.Bar{
			TimestampMs: t0 + int64(i)*3600_000,
			Open:        price,
			High:        price + 2,
			Low:         price - 2,
			Close:       price + 1,
			Volume:      1000,
		}
		price++
	}
	return bars
}

func sweepSignals(n int) domain.SignalSet {
	s := domain.SignalSet{
		LongEntry:  make([]bool, n),
		LongExit:   make([]bool, n),
		ShortEntry: make([]bool, n),
		ShortExit:  make([]bool, n),
	}
	s.LongEntry[1] = true
	s.LongExit[n-2] = true
	return s
}

func sweepConfig(fraction float64) domain.SimulationConfig {
	cfg := domain.DefaultConfig("BTCUSDT")
	cfg.Sizing.EquityFraction = fraction
	return cfg
}

func newTestRunner(workers int) (*Runner, *memory.ResultStore, *memory.TradeStore, *memory.EquityStore) {
	results := memory.NewResultStore()
	trades := memory.NewTradeStore()
	equity := memory.NewEquityStore()
	r := New(Options{
		ResultStore: results,
		TradeStore:  trades,
		EquityStore: equity,
		Workers:     workers,
	})
	return r, results, trades, equity
}

func TestRunner_SweepStoresEveryVariant(t *testing.T) {
	r, results, trades, equity := newTestRunner(4)

	bars := sweepBars(20)
	signals := sweepSignals(20)
	cfgs := []domain.SimulationConfig{sweepConfig(0.05), sweepConfig(0.1), sweepConfig(0.2)}

	out, err := r.Run(context.Background(), cfgs, bars, signals, nil)
	require.NoError(t, err)
	require.Len(t, out.Results, 3)
	assert.Empty(t, out.Errors)

	ctx := context.Background()
	for i, res := range out.Results {
		require.NotNil(t, res, "variant %d", i)
		assert.Equal(t, 1, res.Metrics.TotalTrades)

		stored, err := results.GetByRunID(ctx, res.RunID)
		require.NoError(t, err)
		assert.Equal(t, res.FinalCapital, stored.FinalCapital)

		storedTrades, err := trades.GetByRunID(ctx, res.RunID)
		require.NoError(t, err)
		assert.Len(t, storedTrades, 1)

		curve, err := equity.GetByRunID(ctx, res.RunID)
		require.NoError(t, err)
		assert.Len(t, curve, 20)
	}

	// Distinct configs produce distinct run IDs.
	assert.NotEqual(t, out.Results[0].RunID, out.Results[1].RunID)
	assert.NotEqual(t, out.Results[1].RunID, out.Results[2].RunID)
}

func TestRunner_ResultsKeepInputOrder(t *testing.T) {
	r, _, _, _ := newTestRunner(8)

	bars := sweepBars(20)
	signals := sweepSignals(20)

	fractions := []float64{0.05, 0.1, 0.15, 0.2, 0.25}
	cfgs := make([]domain.SimulationConfig, len(fractions))
	for i, f := range fractions {
		cfgs[i] = sweepConfig(f)
	}

	out, err := r.Run(context.Background(), cfgs, bars, signals, nil)
	require.NoError(t, err)
	require.Len(t, out.Results, len(fractions))

	// Larger fraction means a larger position on the same winning trade.
	prev := 0.0
	for i, res := range out.Results {
		require.NotNil(t, res, "variant %d", i)
		assert.Greater(t, res.Metrics.NetPnL, prev, "variant %d", i)
		prev = res.Metrics.NetPnL
	}
}

func TestRunner_FailedVariantLeavesNilSlot(t *testing.T) {
	r, _, _, _ := newTestRunner(2)

	bars := sweepBars(20)
	signals := sweepSignals(20)

	bad := sweepConfig(0.1)
	bad.Leverage = -1
	cfgs := []domain.SimulationConfig{sweepConfig(0.05), bad, sweepConfig(0.2)}

	out, err := r.Run(context.Background(), cfgs, bars, signals, nil)
	require.NoError(t, err)
	require.Len(t, out.Results, 3)

	assert.NotNil(t, out.Results[0])
	assert.Nil(t, out.Results[1])
	assert.NotNil(t, out.Results[2])
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "variant 1")
}

func TestRunner_DuplicateRunIsNotAnError(t *testing.T) {
	r, results, _, _ := newTestRunner(1)

	bars := sweepBars(20)
	signals := sweepSignals(20)
	// Identical configs hash to the same run ID; the second persist hits the
	// stored header and is skipped.
	cfgs := []domain.SimulationConfig{sweepConfig(0.1), sweepConfig(0.1)}

	out, err := r.Run(context.Background(), cfgs, bars, signals, nil)
	require.NoError(t, err)
	assert.Empty(t, out.Errors)
	require.NotNil(t, out.Results[0])
	require.NotNil(t, out.Results[1])
	assert.Equal(t, out.Results[0].RunID, out.Results[1].RunID)

	runs, err := results.GetBySymbol(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunner_EmptySweep(t *testing.T) {
	r, _, _, _ := newTestRunner(1)

	out, err := r.Run(context.Background(), nil, sweepBars(20), sweepSignals(20), nil)
	require.NoError(t, err)
	assert.Empty(t, out.Results)
	assert.Empty(t, out.Errors)
}

func TestRunner_ContextCancellation(t *testing.T) {
	r, _, _, _ := newTestRunner(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfgs := make([]domain.SimulationConfig, 50)
	for i := range cfgs {
		cfgs[i] = sweepConfig(0.1)
	}

	_, err := r.Run(ctx, cfgs, sweepBars(20), sweepSignals(20), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
