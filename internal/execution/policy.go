// Package execution resolves requested entries and exits into actual fills:
// order-type semantics for market/limit/stop entries, slippage models,
// commission, and perpetual funding accrual.
package execution

import (
	"math"

	"tradesim-lab/internal/domain"
)

// Policy applies slippage and commission to fills. It is a pure function of
// (bar, request) plus its configuration.
type Policy struct {
	cfg            domain.ExecutionConfig
	commissionRate float64
}

// NewPolicy creates a Policy.
func NewPolicy(cfg domain.ExecutionConfig, commissionRate float64) *Policy {
	return &Policy{cfg: cfg, commissionRate: commissionRate}
}

// PendingOrder is a limit or stop entry waiting for a touch. It is abandoned
// once BarsLeft reaches zero without a fill.
type PendingOrder struct {
	Side      domain.Side
	Kind      domain.OrderKind
	Price     float64 // trigger level
	SignalBar int
	BarsLeft  int
}

// NewPendingOrder builds the pending entry for a signal at signalClose.
// Limit orders rest on the favorable side of the signal price, stop orders
// on the breakout side.
func (p *Policy) NewPendingOrder(side domain.Side, signalClose float64, signalBar int) PendingOrder {
	off := p.cfg.LimitOffsetPct
	var level float64
	switch p.cfg.Order {
	case domain.OrderLimit:
		if side == domain.SideLong {
			level = signalClose * (1 - off)
		} else {
			level = signalClose * (1 + off)
		}
	case domain.OrderStop:
		if side == domain.SideLong {
			level = signalClose * (1 + off)
		} else {
			level = signalClose * (1 - off)
		}
	}
	return PendingOrder{
		Side:      side,
		Kind:      p.cfg.Order,
		Price:     level,
		SignalBar: signalBar,
		BarsLeft:  p.cfg.TimeoutBars,
	}
}

// TryFill checks a pending order against a bar. A level gapped through at
// the open fills at the open.
func (p *Policy) TryFill(o PendingOrder, bar domain.Bar) (price float64, ok bool) {
	switch o.Kind {
	case domain.OrderLimit:
		if o.Side == domain.SideLong {
			if bar.Low <= o.Price {
				if bar.Open <= o.Price {
					return bar.Open, true
				}
				return o.Price, true
			}
		} else {
			if bar.High >= o.Price {
				if bar.Open >= o.Price {
					return bar.Open, true
				}
				return o.Price, true
			}
		}
	case domain.OrderStop:
		if o.Side == domain.SideLong {
			if bar.High >= o.Price {
				if bar.Open >= o.Price {
					return bar.Open, true
				}
				return o.Price, true
			}
		} else {
			if bar.Low <= o.Price {
				if bar.Open <= o.Price {
					return bar.Open, true
				}
				return o.Price, true
			}
		}
	}
	return 0, false
}

// SlippagePct returns the fractional price impact for an order of size units
// against the given bar. atr may be NaN when unavailable.
func (p *Policy) SlippagePct(size float64, bar domain.Bar, atr float64) float64 {
	s := p.cfg.Slippage
	fixed := s.Bps / 10_000
	volume := 0.0
	if bar.Volume > 0 {
		volume = s.VolumeCoeff * (size / bar.Volume)
	}
	volatility := 0.0
	if !math.IsNaN(atr) && bar.Close > 0 {
		volatility = s.ATRCoeff * (atr / bar.Close)
	}
	switch s.Model {
	case domain.SlippageFixed:
		return fixed
	case domain.SlippageVolume:
		return volume
	case domain.SlippageVolatility:
		return volatility
	case domain.SlippageCombined:
		return fixed + volume + volatility
	default:
		return 0
	}
}

// ApplySlippage worsens price against the trade direction. buying=true means
// the fill acquires the asset (long entry or short exit).
func ApplySlippage(price, pct float64, buying bool) float64 {
	if buying {
		return price * (1 + pct)
	}
	return price * (1 - pct)
}

// Commission returns the commission charged on a fill's notional.
func (p *Policy) Commission(price, size float64) float64 {
	return math.Abs(price*size) * p.commissionRate
}

// FundingAccruer tracks funding intervals over a position's lifetime.
// Longs pay positive rates, shorts receive them.
type FundingAccruer struct {
	cfg     domain.FundingConfig
	anchor  int64 // position open time, ms
	accrued int   // intervals already settled
}

// NewFundingAccruer starts accrual at the position open timestamp.
func NewFundingAccruer(cfg domain.FundingConfig, openMs int64) *FundingAccruer {
	return &FundingAccruer{cfg: cfg, anchor: openMs}
}

// Accrue settles all funding intervals elapsed up to nowMs and returns the
// signed charge (positive = cost to the account) on the given notional.
func (f *FundingAccruer) Accrue(nowMs int64, side domain.Side, notional float64) float64 {
	if f == nil || !f.cfg.Enabled || f.cfg.IntervalHours <= 0 {
		return 0
	}
	intervalMs := int64(f.cfg.IntervalHours) * 3_600_000
	elapsed := int((nowMs - f.anchor) / intervalMs)
	if elapsed <= f.accrued {
		return 0
	}
	n := elapsed - f.accrued
	f.accrued = elapsed
	charge := f.cfg.RatePerInterval * notional * float64(n)
	if side == domain.SideShort {
		charge = -charge
	}
	return charge
}
