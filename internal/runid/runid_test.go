package runid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim-lab/internal/domain"
)

func testBars() []domain.Bar {
	return []domain.Bar{
		{TimestampMs: 1_700_000_000_000, Open: 100, High: 101, Low: 99, Close: 100.5},
		{TimestampMs: 1_700_003_600_000, Open: 100.5, High: 102, Low: 100, Close: 101},
	}
}

func TestCompute_Deterministic(t *testing.T) {
	cfg := domain.DefaultConfig("BTCUSDT")
	bars := testBars()

	a, err := Compute(&cfg, bars)
	require.NoError(t, err)
	b, err := Compute(&cfg, bars)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEmpty(t, a)
}

func TestCompute_SensitiveToConfig(t *testing.T) {
	cfg := domain.DefaultConfig("BTCUSDT")
	bars := testBars()

	a, err := Compute(&cfg, bars)
	require.NoError(t, err)

	cfg.CommissionRate = 0.0004
	b, err := Compute(&cfg, bars)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestCompute_SensitiveToDataWindow(t *testing.T) {
	cfg := domain.DefaultConfig("BTCUSDT")
	bars := testBars()

	a, err := Compute(&cfg, bars)
	require.NoError(t, err)

	b, err := Compute(&cfg, bars[:1])
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	shifted := testBars()
	shifted[1].TimestampMs += 3_600_000
	c, err := Compute(&cfg, shifted)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestCompute_SensitiveToSymbol(t *testing.T) {
	cfg := domain.DefaultConfig("BTCUSDT")
	other := domain.DefaultConfig("ETHUSDT")
	bars := testBars()

	a, err := Compute(&cfg, bars)
	require.NoError(t, err)
	b, err := Compute(&other, bars)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCompute_EmptyBars(t *testing.T) {
	cfg := domain.DefaultConfig("BTCUSDT")
	id, err := Compute(&cfg, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
