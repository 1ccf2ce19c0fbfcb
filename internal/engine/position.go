package engine

import (
	"math"

	"tradesim-lab/internal/domain"
	"tradesim-lab/internal/execution"
	"tradesim-lab/internal/risk"
)

type priceLevel struct {
	price float64
	size  float64 // asset units to add when touched
	origin domain.LotOrigin
}

// Position is the trade-lifecycle state of one open position: its lots, the
// attached exit plan, pre-scheduled DCA/scale-in levels, and running cost
// totals. It lives entirely inside one run.
type Position struct {
	Side     domain.Side
	Lots     []domain.Lot
	Plan     *risk.ExitPlan
	Fills    []domain.Fill
	EntryBar int
	EntryTs  int64

	BaseSize     float64 // initial lot size, the pyramiding cap unit
	TotalEntered float64 // cumulative entered size
	OpenSize     float64 // currently open size

	realized   float64 // gross PnL of closed portions
	commission float64
	funding    float64

	closedSize   float64
	exitNotional float64

	pendingAdds []priceLevel // untriggered DCA and scale-in levels
	entryCount  int          // signal-driven entries, bounded by pyramiding

	entryATR   float64
	fundingAcc *execution.FundingAccruer
	exitReason domain.FillReason
}

// AvgEntry is the volume-weighted average price of all entry fills. It is
// stable under partial closes and moves only when lots are added, keeping
// the exit plan consistent with it.
func (p *Position) AvgEntry() float64 {
	notional, size := 0.0, 0.0
	for _, f := range p.Fills {
		if f.IsEntry {
			notional += f.Price * f.Size
			size += f.Size
		}
	}
	if size == 0 {
		return 0
	}
	return notional / size
}

// OpenAvgEntry is the volume-weighted average price of the still-open lot
// remainders, used for marking unrealized PnL.
func (p *Position) OpenAvgEntry() float64 {
	notional, size := 0.0, 0.0
	for _, l := range p.Lots {
		notional += l.EntryPrice * l.Size
		size += l.Size
	}
	if size == 0 {
		return 0
	}
	return notional / size
}

// Unrealized marks the open remainder at price.
func (p *Position) Unrealized(price float64) float64 {
	if p.OpenSize <= 0 {
		return 0
	}
	if p.Side == domain.SideLong {
		return (price - p.OpenAvgEntry()) * p.OpenSize
	}
	return (p.OpenAvgEntry() - price) * p.OpenSize
}

// addLot appends an entry fill and its lot, and keeps totals in sync.
func (p *Position) addLot(fill domain.Fill, origin domain.LotOrigin) {
	p.Fills = append(p.Fills, fill)
	p.Lots = append(p.Lots, domain.Lot{
		EntryPrice: fill.Price,
		Size:       fill.Size,
		BarIndex:   fill.BarIndex,
		Origin:     origin,
	})
	p.TotalEntered += fill.Size
	p.OpenSize += fill.Size
	p.commission += fill.Commission
}

// closeSize consumes size units from the lots in the configured order and
// returns the gross PnL realized against exitPrice.
func (p *Position) closeSize(size, exitPrice float64, order domain.CloseOrder) float64 {
	remaining := size
	pnl := 0.0
	consume := func(l *domain.Lot) {
		take := math.Min(l.Size, remaining)
		if take <= 0 {
			return
		}
		if p.Side == domain.SideLong {
			pnl += (exitPrice - l.EntryPrice) * take
		} else {
			pnl += (l.EntryPrice - exitPrice) * take
		}
		l.Size -= take
		remaining -= take
	}
	if order == domain.CloseLIFO {
		for i := len(p.Lots) - 1; i >= 0 && remaining > 0; i-- {
			consume(&p.Lots[i])
		}
	} else {
		for i := 0; i < len(p.Lots) && remaining > 0; i++ {
			consume(&p.Lots[i])
		}
	}
	closed := size - remaining
	p.OpenSize -= closed
	p.closedSize += closed
	p.exitNotional += exitPrice * closed
	p.realized += pnl
	return pnl
}

// trade snapshots the position into a Trade record once it is fully closed
// (or at end of data while still open, with ExitBar = -1).
func (p *Position) trade(closed bool) domain.Trade {
	t := domain.Trade{
		Side:        p.Side,
		Fills:       p.Fills,
		EntryBar:    p.EntryBar,
		EntryTimeMs: p.EntryTs,
		AvgEntry:    p.AvgEntry(),
		Size:        p.TotalEntered,
		RealizedPnL: p.realized,
		Commission:  p.commission,
		Funding:     p.funding,
		NetPnL:      p.realized - p.commission - p.funding,
		ExitReason:  p.exitReason,
		ExitBar:     -1,
	}
	if p.closedSize > 0 {
		t.AvgExit = p.exitNotional / p.closedSize
	}
	if closed && len(p.Fills) > 0 {
		last := p.Fills[len(p.Fills)-1]
		t.ExitBar = last.BarIndex
		t.ExitTimeMs = last.TimestampMs
	}
	return t
}

// PositionManager enforces the side/hedge/pyramiding limits over the at
// most two concurrently open positions.
type PositionManager struct {
	cfg   *domain.SimulationConfig
	long  *Position
	short *Position
}

// NewPositionManager creates a PositionManager.
func NewPositionManager(cfg *domain.SimulationConfig) *PositionManager {
	return &PositionManager{cfg: cfg}
}

// Get returns the open position for side, or nil.
func (m *PositionManager) Get(side domain.Side) *Position {
	if side == domain.SideLong {
		return m.long
	}
	return m.short
}

// Open installs a freshly created position. The caller guarantees the slot
// is free.
func (m *PositionManager) Open(p *Position) {
	if p.Side == domain.SideLong {
		m.long = p
	} else {
		m.short = p
	}
}

// Drop removes a fully closed position.
func (m *PositionManager) Drop(side domain.Side) {
	if side == domain.SideLong {
		m.long = nil
	} else {
		m.short = nil
	}
}

// OpenPositions returns the currently open positions, long first.
func (m *PositionManager) OpenPositions() []*Position {
	var out []*Position
	if m.long != nil {
		out = append(out, m.long)
	}
	if m.short != nil {
		out = append(out, m.short)
	}
	return out
}

// MayEnter reports whether a new signal entry on side is currently
// possible: a free slot, or a free pyramiding slot on an existing position.
// The size cap (pyramiding × base size) is enforced at add time.
func (m *PositionManager) MayEnter(side domain.Side) bool {
	opposite := m.Get(side.Opposite())
	if opposite != nil && !m.cfg.HedgeMode {
		return false
	}
	p := m.Get(side)
	if p == nil {
		return true
	}
	return p.entryCount < effPyramiding(m.cfg)
}

// FitsSizeCap reports whether adding size keeps the position within the
// pyramiding × base size invariant.
func (p *Position) FitsSizeCap(add float64, maxMultiple int) bool {
	return p.TotalEntered+add <= float64(maxMultiple)*p.BaseSize+1e-9
}
