package engine

import "tradesim-lab/internal/domain"

// EquityTracker maintains the account balance decomposition and the
// per-bar equity curve. The identity it preserves on every sample is
// equity = initial + realized - fees - funding + unrealized.
type EquityTracker struct {
	initial  float64
	realized float64
	fees     float64
	funding  float64

	peak    float64
	trough  float64
	samples []domain.EquitySample
}

func NewEquityTracker(initial float64) *EquityTracker {
	return &EquityTracker{initial: initial, peak: initial, trough: initial}
}

func (t *EquityTracker) AddRealized(pnl float64) { t.realized += pnl }
func (t *EquityTracker) AddFees(fee float64)     { t.fees += fee }
func (t *EquityTracker) AddFunding(f float64)    { t.funding += f }

// Cash is the balance excluding unrealized PnL.
func (t *EquityTracker) Cash() float64 {
	return t.initial + t.realized - t.fees - t.funding
}

// Equity marks the account including unrealized PnL.
func (t *EquityTracker) Equity(unrealized float64) float64 {
	return t.Cash() + unrealized
}

// Commit records the end-of-bar equity sample with drawdown from the
// running peak and run-up from the running trough.
func (t *EquityTracker) Commit(tsMs int64, unrealized float64) domain.EquitySample {
	eq := t.Equity(unrealized)
	if eq > t.peak {
		t.peak = eq
	}
	if eq < t.trough {
		t.trough = eq
	}
	s := domain.EquitySample{
		TimestampMs: tsMs,
		Equity:      eq,
		Realized:    t.realized - t.fees - t.funding,
		Unrealized:  unrealized,
		Drawdown:    t.peak - eq,
		RunUp:       eq - t.trough,
	}
	t.samples = append(t.samples, s)
	return s
}

func (t *EquityTracker) Samples() []domain.EquitySample { return t.samples }
