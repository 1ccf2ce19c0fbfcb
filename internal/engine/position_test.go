package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim-lab/internal/domain"
)

func entryFill(barIndex int, price, size float64) domain.Fill {
	return domain.Fill{
		BarIndex: barIndex,
		Side:     domain.SideLong,
		Price:    price,
		Size:     size,
		IsEntry:  true,
	}
}

func TestPosition_AvgEntry(t *testing.T) {
	p := &Position{Side: domain.SideLong, BaseSize: 10}
	p.addLot(entryFill(0, 100, 10), domain.LotInitial)
	p.addLot(entryFill(1, 98, 10), domain.LotDCA)

	assert.InDelta(t, 99.0, p.AvgEntry(), 1e-9)
	assert.InDelta(t, 20.0, p.OpenSize, 1e-9)
	assert.InDelta(t, 20.0, p.TotalEntered, 1e-9)
}

func TestPosition_AvgEntryStableUnderPartialClose(t *testing.T) {
	p := &Position{Side: domain.SideLong, BaseSize: 10}
	p.addLot(entryFill(0, 100, 10), domain.LotInitial)
	p.addLot(entryFill(1, 98, 10), domain.LotDCA)

	p.closeSize(10, 105, domain.CloseFIFO)
	assert.InDelta(t, 99.0, p.AvgEntry(), 1e-9, "partial closes do not move the entry average")
	// The open remainder is the 98 lot only.
	assert.InDelta(t, 98.0, p.OpenAvgEntry(), 1e-9)
}

func TestPosition_CloseFIFOvsLIFO(t *testing.T) {
	build := func() *Position {
		p := &Position{Side: domain.SideLong, BaseSize: 10}
		p.addLot(entryFill(0, 100, 10), domain.LotInitial)
		p.addLot(entryFill(1, 90, 10), domain.LotDCA)
		return p
	}

	fifo := build()
	pnl := fifo.closeSize(10, 105, domain.CloseFIFO)
	assert.InDelta(t, 50.0, pnl, 1e-9, "FIFO consumes the 100 lot first")

	lifo := build()
	pnl = lifo.closeSize(10, 105, domain.CloseLIFO)
	assert.InDelta(t, 150.0, pnl, 1e-9, "LIFO consumes the 90 lot first")
}

func TestPosition_CloseAcrossLots(t *testing.T) {
	p := &Position{Side: domain.SideLong, BaseSize: 10}
	p.addLot(entryFill(0, 100, 10), domain.LotInitial)
	p.addLot(entryFill(1, 90, 10), domain.LotDCA)

	pnl := p.closeSize(15, 110, domain.CloseFIFO)
	// 10 units at +10 and 5 units at +20.
	assert.InDelta(t, 200.0, pnl, 1e-9)
	assert.InDelta(t, 5.0, p.OpenSize, 1e-9)
}

func TestPosition_UnrealizedShort(t *testing.T) {
	p := &Position{Side: domain.SideShort, BaseSize: 10}
	p.addLot(entryFill(0, 100, 10), domain.LotInitial)

	assert.InDelta(t, 50.0, p.Unrealized(95), 1e-9)
	assert.InDelta(t, -50.0, p.Unrealized(105), 1e-9)
}

func TestPosition_TradeSnapshot(t *testing.T) {
	p := &Position{Side: domain.SideLong, EntryBar: 3, EntryTs: 1000, BaseSize: 10}
	p.addLot(entryFill(3, 100, 10), domain.LotInitial)

	open := p.trade(false)
	assert.Equal(t, -1, open.ExitBar, "still-open snapshot carries no exit bar")
	assert.InDelta(t, 100.0, open.AvgEntry, 1e-9)

	p.closeSize(10, 110, domain.CloseFIFO)
	p.Fills = append(p.Fills, domain.Fill{BarIndex: 7, TimestampMs: 5000, Price: 110, Size: 10})
	p.exitReason = domain.ReasonSignalExit

	closed := p.trade(true)
	assert.Equal(t, 7, closed.ExitBar)
	assert.Equal(t, int64(5000), closed.ExitTimeMs)
	assert.InDelta(t, 110.0, closed.AvgExit, 1e-9)
	assert.InDelta(t, 100.0, closed.RealizedPnL, 1e-9)
	assert.Equal(t, domain.ReasonSignalExit, closed.ExitReason)
}

func TestPosition_FitsSizeCap(t *testing.T) {
	p := &Position{Side: domain.SideLong, BaseSize: 10}
	p.addLot(entryFill(0, 100, 10), domain.LotInitial)

	assert.True(t, p.FitsSizeCap(10, 2))
	assert.False(t, p.FitsSizeCap(10.1, 2))
}

func TestPositionManager_SlotRules(t *testing.T) {
	cfg := domain.DefaultConfig("TESTUSDT")
	cfg.AllowShort = true
	m := NewPositionManager(&cfg)

	assert.True(t, m.MayEnter(domain.SideLong))

	long := &Position{Side: domain.SideLong, BaseSize: 10, entryCount: 1}
	long.addLot(entryFill(0, 100, 10), domain.LotInitial)
	m.Open(long)

	assert.False(t, m.MayEnter(domain.SideLong), "pyramiding defaults to 1")
	assert.False(t, m.MayEnter(domain.SideShort), "opposite side blocked without hedge mode")

	cfg.HedgeMode = true
	assert.True(t, m.MayEnter(domain.SideShort))

	m.Drop(domain.SideLong)
	assert.Nil(t, m.Get(domain.SideLong))
	assert.True(t, m.MayEnter(domain.SideLong))
}

func TestPositionManager_OpenPositionsOrder(t *testing.T) {
	cfg := domain.DefaultConfig("TESTUSDT")
	cfg.AllowShort = true
	cfg.HedgeMode = true
	m := NewPositionManager(&cfg)

	short := &Position{Side: domain.SideShort, BaseSize: 1}
	short.addLot(domain.Fill{Price: 100, Size: 1, Side: domain.SideShort, IsEntry: true}, domain.LotInitial)
	m.Open(short)
	long := &Position{Side: domain.SideLong, BaseSize: 1}
	long.addLot(entryFill(0, 100, 1), domain.LotInitial)
	m.Open(long)

	got := m.OpenPositions()
	require.Len(t, got, 2)
	assert.Equal(t, domain.SideLong, got[0].Side)
	assert.Equal(t, domain.SideShort, got[1].Side)
}

func TestScheduleAdds_LinearAndGeometric(t *testing.T) {
	cfg := domain.DefaultConfig("TESTUSDT")
	cfg.DCA = domain.DCAConfig{
		SafetyOrders:      3,
		PriceDeviationPct: 0.01,
		VolumeScale:       1,
		StepScale:         1,
		Linear:            true,
	}

	levels := scheduleAdds(&cfg, domain.SideLong, 100, 10)
	require.Len(t, levels, 3)
	assert.InDelta(t, 99.0, levels[0].price, 1e-9)
	assert.InDelta(t, 98.0, levels[1].price, 1e-9)
	assert.InDelta(t, 97.0, levels[2].price, 1e-9)
	for _, lv := range levels {
		assert.InDelta(t, 10.0, lv.size, 1e-9)
		assert.Equal(t, domain.LotDCA, lv.origin)
	}

	cfg.DCA.Linear = false
	cfg.DCA.StepScale = 2
	cfg.DCA.VolumeScale = 1.5
	levels = scheduleAdds(&cfg, domain.SideLong, 100, 10)
	require.Len(t, levels, 3)
	// Cumulative deviations 1%, 3%, 7%.
	assert.InDelta(t, 99.0, levels[0].price, 1e-9)
	assert.InDelta(t, 97.0, levels[1].price, 1e-9)
	assert.InDelta(t, 93.0, levels[2].price, 1e-9)
	assert.InDelta(t, 15.0, levels[0].size, 1e-9)
	assert.InDelta(t, 22.5, levels[1].size, 1e-9)
	assert.InDelta(t, 33.75, levels[2].size, 1e-9)
}

func TestScheduleAdds_ShortMirrors(t *testing.T) {
	cfg := domain.DefaultConfig("TESTUSDT")
	cfg.DCA = domain.DCAConfig{SafetyOrders: 1, PriceDeviationPct: 0.02, Linear: true}
	cfg.ScaleIn = domain.ScaleInConfig{Levels: []domain.ScaleInLevelConfig{{OffsetPct: 0.03, Portion: 0.5}}}

	levels := scheduleAdds(&cfg, domain.SideShort, 100, 10)
	require.Len(t, levels, 2)
	assert.InDelta(t, 102.0, levels[0].price, 1e-9, "short safety orders sit above the entry")
	assert.InDelta(t, 10.0, levels[0].size, 1e-9, "unset volume scale keeps sizes flat")
	assert.InDelta(t, 103.0, levels[1].price, 1e-9)
	assert.InDelta(t, 5.0, levels[1].size, 1e-9)
	assert.Equal(t, domain.LotScaleIn, levels[1].origin)
}

func TestClampToBar(t *testing.T) {
	b := domain.Bar{High: 105, Low: 95}
	assert.Equal(t, 100.0, clampToBar(100, b))
	assert.Equal(t, 105.0, clampToBar(106, b))
	assert.Equal(t, 95.0, clampToBar(94, b))
}

func TestIsFinitePrice(t *testing.T) {
	assert.True(t, isFinitePrice(100))
	assert.False(t, isFinitePrice(0))
	assert.False(t, isFinitePrice(-5))
	assert.False(t, isFinitePrice(math.NaN()))
	assert.False(t, isFinitePrice(math.Inf(1)))
}
