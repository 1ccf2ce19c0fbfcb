package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim-lab/internal/domain"
	"tradesim-lab/internal/storage"
)

func testBar(ts int64, close float64) domain.Bar {
	return domain.Bar{
		TimestampMs: ts,
		Open:        close,
		High:        close + 1,
		Low:         close - 1,
		Close:       close,
		Volume:      100,
	}
}

func TestBarStore_InsertAndGetAll(t *testing.T) {
	s := NewBarStore()
	ctx := context.Background()

	// Out of order on purpose; reads are sorted.
	bars := []domain.Bar{testBar(3000, 102), testBar(1000, 100), testBar(2000, 101)}
	require.NoError(t, s.InsertBulk(ctx, "BTCUSDT", domain.TF1h, bars))

	got, err := s.GetAll(ctx, "BTCUSDT", domain.TF1h)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1000), got[0].TimestampMs)
	assert.Equal(t, int64(2000), got[1].TimestampMs)
	assert.Equal(t, int64(3000), got[2].TimestampMs)
}

func TestBarStore_InvalidInput(t *testing.T) {
	s := NewBarStore()
	ctx := context.Background()

	err := s.InsertBulk(ctx, "", domain.TF1h, []domain.Bar{testBar(1000, 100)})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	err = s.InsertBulk(ctx, "BTCUSDT", "", []domain.Bar{testBar(1000, 100)})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	assert.NoError(t, s.InsertBulk(ctx, "BTCUSDT", domain.TF1h, nil))
}

func TestBarStore_DuplicateTimestamp(t *testing.T) {
	s := NewBarStore()
	ctx := context.Background()

	require.NoError(t, s.InsertBulk(ctx, "BTCUSDT", domain.TF1h, []domain.Bar{testBar(1000, 100)}))

	err := s.InsertBulk(ctx, "BTCUSDT", domain.TF1h, []domain.Bar{testBar(1000, 105)})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// The failed batch must not be partially applied.
	err = s.InsertBulk(ctx, "BTCUSDT", domain.TF1h, []domain.Bar{testBar(2000, 101), testBar(1000, 105)})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	got, _ := s.GetAll(ctx, "BTCUSDT", domain.TF1h)
	assert.Len(t, got, 1)
}

func TestBarStore_IntraBatchDuplicate(t *testing.T) {
	s := NewBarStore()
	err := s.InsertBulk(context.Background(), "BTCUSDT", domain.TF1h,
		[]domain.Bar{testBar(1000, 100), testBar(1000, 101)})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestBarStore_KeyedBySymbolAndTimeframe(t *testing.T) {
	s := NewBarStore()
	ctx := context.Background()

	require.NoError(t, s.InsertBulk(ctx, "BTCUSDT", domain.TF1h, []domain.Bar{testBar(1000, 100)}))
	require.NoError(t, s.InsertBulk(ctx, "BTCUSDT", domain.TF4h, []domain.Bar{testBar(1000, 100)}))
	require.NoError(t, s.InsertBulk(ctx, "ETHUSDT", domain.TF1h, []domain.Bar{testBar(1000, 100)}))

	got, err := s.GetAll(ctx, "BTCUSDT", domain.TF1h)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestBarStore_GetRange(t *testing.T) {
	s := NewBarStore()
	ctx := context.Background()

	bars := []domain.Bar{testBar(1000, 100), testBar(2000, 101), testBar(3000, 102), testBar(4000, 103)}
	require.NoError(t, s.InsertBulk(ctx, "BTCUSDT", domain.TF1h, bars))

	got, err := s.GetRange(ctx, "BTCUSDT", domain.TF1h, 2000, 3000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2000), got[0].TimestampMs)
	assert.Equal(t, int64(3000), got[1].TimestampMs)
}

func TestBarStore_ReadsAreCopies(t *testing.T) {
	s := NewBarStore()
	ctx := context.Background()
	require.NoError(t, s.InsertBulk(ctx, "BTCUSDT", domain.TF1h, []domain.Bar{testBar(1000, 100)}))

	got, _ := s.GetAll(ctx, "BTCUSDT", domain.TF1h)
	got[0].Close = 999

	again, _ := s.GetAll(ctx, "BTCUSDT", domain.TF1h)
	assert.Equal(t, 100.0, again[0].Close)
}
