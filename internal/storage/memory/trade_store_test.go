package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim-lab/internal/domain"
	"tradesim-lab/internal/storage"
)

func testTrade(entryBar int, pnl float64) domain.Trade {
	return domain.Trade{
		Side:        domain.SideLong,
		EntryBar:    entryBar,
		ExitBar:     entryBar + 3,
		AvgEntry:    100,
		AvgExit:     100 + pnl/10,
		Size:        10,
		RealizedPnL: pnl,
		NetPnL:      pnl,
		ExitReason:  domain.ReasonSignalExit,
	}
}

func TestTradeStore_InsertAndGet(t *testing.T) {
	s := NewTradeStore()
	ctx := context.Background()

	trades := []domain.Trade{testTrade(5, -20), testTrade(1, 50)}
	require.NoError(t, s.InsertBulk(ctx, "run1", trades))

	got, err := s.GetByRunID(ctx, "run1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Ordered by entry bar regardless of insert order.
	assert.Equal(t, 1, got[0].EntryBar)
	assert.Equal(t, 5, got[1].EntryBar)
}

func TestTradeStore_DuplicateRun(t *testing.T) {
	s := NewTradeStore()
	ctx := context.Background()

	require.NoError(t, s.InsertBulk(ctx, "run1", []domain.Trade{testTrade(1, 50)}))
	err := s.InsertBulk(ctx, "run1", []domain.Trade{testTrade(2, 10)})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestTradeStore_EmptyRunIsStored(t *testing.T) {
	s := NewTradeStore()
	ctx := context.Background()

	require.NoError(t, s.InsertBulk(ctx, "run1", nil))

	got, err := s.GetByRunID(ctx, "run1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTradeStore_NotFoundAndInvalid(t *testing.T) {
	s := NewTradeStore()
	ctx := context.Background()

	_, err := s.GetByRunID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, s.InsertBulk(ctx, "", nil), storage.ErrInvalidInput)
}

func TestTradeStore_ReadsAreCopies(t *testing.T) {
	s := NewTradeStore()
	ctx := context.Background()
	require.NoError(t, s.InsertBulk(ctx, "run1", []domain.Trade{testTrade(1, 50)}))

	got, _ := s.GetByRunID(ctx, "run1")
	got[0].NetPnL = -999

	again, _ := s.GetByRunID(ctx, "run1")
	assert.Equal(t, 50.0, again[0].NetPnL)
}

func TestEquityStore_InsertAndGet(t *testing.T) {
	s := NewEquityStore()
	ctx := context.Background()

	samples := []domain.EquitySample{
		{TimestampMs: 2000, Equity: 10100},
		{TimestampMs: 1000, Equity: 10000},
	}
	require.NoError(t, s.InsertBulk(ctx, "run1", samples))

	got, err := s.GetByRunID(ctx, "run1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1000), got[0].TimestampMs)
	assert.Equal(t, int64(2000), got[1].TimestampMs)
}

func TestEquityStore_DuplicateAndNotFound(t *testing.T) {
	s := NewEquityStore()
	ctx := context.Background()

	require.NoError(t, s.InsertBulk(ctx, "run1", []domain.EquitySample{{TimestampMs: 1000, Equity: 10000}}))
	assert.ErrorIs(t, s.InsertBulk(ctx, "run1", nil), storage.ErrDuplicateKey)

	_, err := s.GetByRunID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, s.InsertBulk(ctx, "", nil), storage.ErrInvalidInput)
}
