package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEquityTracker_Identity(t *testing.T) {
	tr := NewEquityTracker(10_000)
	tr.AddRealized(500)
	tr.AddFees(20)
	tr.AddFunding(5)

	assert.InDelta(t, 10_475.0, tr.Cash(), 1e-9)
	assert.InDelta(t, 10_575.0, tr.Equity(100), 1e-9)

	s := tr.Commit(1000, 100)
	assert.InDelta(t, s.Equity, 10_000+s.Realized+s.Unrealized, 1e-9)
	assert.InDelta(t, 475.0, s.Realized, 1e-9)
}

func TestEquityTracker_DrawdownAndRunUp(t *testing.T) {
	tr := NewEquityTracker(10_000)

	tr.AddRealized(1000)
	s := tr.Commit(1, 0) // equity 11000, new peak
	assert.Equal(t, 0.0, s.Drawdown)
	assert.InDelta(t, 1000.0, s.RunUp, 1e-9)

	tr.AddRealized(-1500)
	s = tr.Commit(2, 0) // equity 9500
	assert.InDelta(t, 1500.0, s.Drawdown, 1e-9)
	assert.Equal(t, 0.0, s.RunUp)

	tr.AddRealized(200)
	s = tr.Commit(3, 0) // equity 9700, trough stays 9500
	assert.InDelta(t, 1300.0, s.Drawdown, 1e-9)
	assert.InDelta(t, 200.0, s.RunUp, 1e-9)

	require.Len(t, tr.Samples(), 3)
}

func TestEquityTracker_UnrealizedDoesNotTouchCash(t *testing.T) {
	tr := NewEquityTracker(10_000)
	tr.Commit(1, 500)
	tr.Commit(2, -500)
	assert.InDelta(t, 10_000.0, tr.Cash(), 1e-9)
}
