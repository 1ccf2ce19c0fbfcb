package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim-lab/internal/domain"
	"tradesim-lab/internal/storage"
)

func createTestTrade(entryBar int, netPnL float64) domain.Trade {
	entryTs := int64(1700000000000 + entryBar*3600000)
	exitBar := entryBar + 4
	return domain.Trade{
		Side:        domain.SideLong,
		EntryBar:    entryBar,
		ExitBar:     exitBar,
		EntryTimeMs: entryTs,
		ExitTimeMs:  entryTs + 4*3600000,
		AvgEntry:    100.5,
		AvgExit:     100.5 + netPnL/10,
		Size:        10,
		RealizedPnL: netPnL + 2,
		Commission:  1.5,
		Funding:     0.5,
		NetPnL:      netPnL,
		ExitReason:  domain.ReasonSignalExit,
		Fills: []domain.Fill{
			{
				BarIndex:    entryBar,
				TimestampMs: entryTs,
				Side:        domain.SideLong,
				Price:       100.5,
				Size:        10,
				Commission:  0.75,
				Reason:      domain.ReasonEntry,
				IsEntry:     true,
			},
			{
				BarIndex:    exitBar,
				TimestampMs: entryTs + 4*3600000,
				Side:        domain.SideLong,
				Price:       100.5 + netPnL/10,
				Size:        10,
				Commission:  0.75,
				Reason:      domain.ReasonSignalExit,
			},
		},
	}
}

func TestTradeStore_InsertBulkAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	insertTestRun(t, ctx, pool, "run-001")

	store := NewTradeStore(pool)

	trades := []domain.Trade{createTestTrade(20, -15), createTestTrade(3, 50)}
	require.NoError(t, store.InsertBulk(ctx, "run-001", trades))

	retrieved, err := store.GetByRunID(ctx, "run-001")
	require.NoError(t, err)
	require.Len(t, retrieved, 2)

	// Ordered by entry bar regardless of insert order.
	assert.Equal(t, 3, retrieved[0].EntryBar)
	assert.Equal(t, 20, retrieved[1].EntryBar)

	got := retrieved[0]
	want := trades[1]
	assert.Equal(t, want.Side, got.Side)
	assert.Equal(t, want.ExitBar, got.ExitBar)
	assert.Equal(t, want.EntryTimeMs, got.EntryTimeMs)
	assert.Equal(t, want.ExitTimeMs, got.ExitTimeMs)
	assert.InDelta(t, want.AvgEntry, got.AvgEntry, 0.0001)
	assert.InDelta(t, want.AvgExit, got.AvgExit, 0.0001)
	assert.InDelta(t, want.Size, got.Size, 0.0001)
	assert.InDelta(t, want.RealizedPnL, got.RealizedPnL, 0.0001)
	assert.InDelta(t, want.Commission, got.Commission, 0.0001)
	assert.InDelta(t, want.Funding, got.Funding, 0.0001)
	assert.InDelta(t, want.NetPnL, got.NetPnL, 0.0001)
	assert.Equal(t, want.ExitReason, got.ExitReason)
}

func TestTradeStore_FillsRoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	insertTestRun(t, ctx, pool, "run-001")

	store := NewTradeStore(pool)
	trade := createTestTrade(5, 30)
	require.NoError(t, store.InsertBulk(ctx, "run-001", []domain.Trade{trade}))

	retrieved, err := store.GetByRunID(ctx, "run-001")
	require.NoError(t, err)
	require.Len(t, retrieved, 1)
	require.Len(t, retrieved[0].Fills, 2)

	entry := retrieved[0].Fills[0]
	assert.True(t, entry.IsEntry)
	assert.Equal(t, domain.ReasonEntry, entry.Reason)
	assert.Equal(t, 5, entry.BarIndex)
	assert.InDelta(t, 100.5, entry.Price, 0.0001)
	assert.InDelta(t, 10.0, entry.Size, 0.0001)

	exit := retrieved[0].Fills[1]
	assert.False(t, exit.IsEntry)
	assert.Equal(t, domain.ReasonSignalExit, exit.Reason)
	assert.Equal(t, 9, exit.BarIndex)
}

func TestTradeStore_DuplicateFailsWholeBatch(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	insertTestRun(t, ctx, pool, "run-001")

	store := NewTradeStore(pool)
	require.NoError(t, store.InsertBulk(ctx, "run-001", []domain.Trade{createTestTrade(5, 30)}))

	// Second batch collides on (run_id, entry_bar, side); nothing from it
	// must land.
	err := store.InsertBulk(ctx, "run-001", []domain.Trade{createTestTrade(10, 20), createTestTrade(5, 99)})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	retrieved, err := store.GetByRunID(ctx, "run-001")
	require.NoError(t, err)
	assert.Len(t, retrieved, 1)
}

func TestTradeStore_EmptyRunReturnsNoTrades(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	retrieved, err := store.GetByRunID(ctx, "unknown-run")
	require.NoError(t, err)
	assert.Empty(t, retrieved)
}

func TestTradeStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(pool)
	err := store.InsertBulk(context.Background(), "", []domain.Trade{createTestTrade(1, 10)})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
