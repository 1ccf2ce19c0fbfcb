// Package engine runs the bar-by-bar simulation loop. Each bar resolves in a
// fixed order: higher-timeframe refresh, risk exits against the bar's range,
// scheduled adds, signal exits, forced time closes, pending entry orders, new
// entries, funding, then the equity commit. Nothing ever reads a bar that has
// not closed yet.
package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"tradesim-lab/internal/domain"
	"tradesim-lab/internal/execution"
	"tradesim-lab/internal/gates"
	"tradesim-lab/internal/indicator"
	"tradesim-lab/internal/metrics"
	"tradesim-lab/internal/mtf"
	"tradesim-lab/internal/risk"
	"tradesim-lab/internal/sizing"
)

// Engine holds the per-run collaborators. Build one per simulation; it is
// not safe for concurrent use.
type Engine struct {
	cfg     *domain.SimulationConfig
	Verbose bool

	bars    []domain.Bar
	signals *domain.SignalSet

	cache    *indicator.Cache
	policy   *execution.Policy
	sizer    *sizing.Engine
	reentry  *gates.ReEntryGovernor
	timeGov  *gates.TimeGovernor
	filters  *gates.FilterBank
	htf      *mtf.Provider
	posman   *PositionManager
	tracker  *EquityTracker

	stats   sizing.TradeStats
	history gates.EntryHistory
	curDay  int
	curWeek int

	pending  []pendingEntry
	deferred []entryRequest

	result *domain.SimulationResult
}

// pendingEntry is a resting limit/stop order plus the size fixed at signal
// time.
type pendingEntry struct {
	order execution.PendingOrder
	size  float64
}

// entryRequest is a market entry deferred to the next bar's open.
type entryRequest struct {
	side domain.Side
	size float64
}

// New validates the configuration and data and builds a ready Engine.
// htfBars may be nil when no higher-timeframe filters are configured.
func New(cfg domain.SimulationConfig, bars []domain.Bar, signals domain.SignalSet, htfBars map[domain.Timeframe][]domain.Bar) (*Engine, error) {
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	if err := ValidateData(&cfg, bars, &signals); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     &cfg,
		bars:    bars,
		signals: &signals,
		cache:   indicator.New(bars),
		policy:  execution.NewPolicy(cfg.Execution, cfg.CommissionRate),
		sizer:   sizing.New(cfg.Sizing, cfg.Leverage),
		reentry: gates.NewReEntryGovernor(cfg.ReEntry),
		timeGov: gates.NewTimeGovernor(cfg.Time),
		posman:  NewPositionManager(&cfg),
		tracker: NewEquityTracker(cfg.InitialCapital),
		history: gates.EntryHistory{LastExitBar: -1},
	}
	e.filters = gates.NewFilterBank(cfg.Filters, bars, e.cache)

	if len(cfg.MTF) > 0 {
		p, err := mtf.NewProvider(bars, cfg.MTF, htfBars)
		if err != nil {
			return nil, fmt.Errorf("mtf provider: %w", err)
		}
		e.htf = p
	}

	e.result = &domain.SimulationResult{
		Symbol:         cfg.Symbol,
		InitialCapital: cfg.InitialCapital,
	}
	return e, nil
}

// Run executes the simulation over all bars. The context is checked once per
// bar; cancellation returns the error with partial results discarded.
func (e *Engine) Run(ctx context.Context) (*domain.SimulationResult, error) {
	for i := range e.bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bar := e.bars[i]
		e.rollCalendar(bar.TimestampMs)

		if e.htf != nil {
			e.htf.Refresh(i)
		}

		if err := e.fillDeferred(i, bar); err != nil {
			return nil, err
		}
		e.accrueFunding(bar)
		if err := e.resolveRiskExits(i, bar); err != nil {
			return nil, err
		}
		e.resolveScheduledAdds(i, bar)
		e.resolveSignalExits(i, bar)
		e.resolveTimeExits(i, bar)
		if err := e.resolvePendingOrders(i, bar); err != nil {
			return nil, err
		}
		if err := e.resolveEntries(i, bar); err != nil {
			return nil, err
		}

		sample := e.tracker.Commit(bar.TimestampMs, e.unrealized(bar.Close))
		e.result.Equity = append(e.result.Equity, sample)
		e.result.BarsProcessed = i + 1

		if sample.Equity <= 0 {
			e.logf("bankrupt at bar %d equity=%.4f", i, sample.Equity)
			e.liquidate(i, bar)
			e.result.TerminatedEarly = true
			break
		}
	}

	e.finalize()
	return e.result, nil
}

// rollCalendar resets the daily and weekly trade counters when the bar's
// timestamp crosses a day or ISO-week boundary.
func (e *Engine) rollCalendar(tsMs int64) {
	t := time.UnixMilli(tsMs).UTC()
	day := t.YearDay() + t.Year()*1000
	year, week := t.ISOWeek()
	wk := year*100 + week
	if e.history.TradesToday > 0 || e.history.TradesThisWeek > 0 {
		if day != e.curDay {
			e.history.TradesToday = 0
		}
		if wk != e.curWeek {
			e.history.TradesThisWeek = 0
		}
	}
	e.curDay = day
	e.curWeek = wk
}

// accrueFunding settles elapsed funding intervals for every open position.
func (e *Engine) accrueFunding(bar domain.Bar) {
	for _, pos := range e.posman.OpenPositions() {
		charge := pos.fundingAcc.Accrue(bar.TimestampMs, pos.Side, pos.OpenAvgEntry()*pos.OpenSize)
		if charge != 0 {
			pos.funding += charge
			e.tracker.AddFunding(charge)
		}
	}
}

// resolveRiskExits evaluates each open position's exit plan against the
// bar's range.
func (e *Engine) resolveRiskExits(barIndex int, bar domain.Bar) error {
	for _, pos := range e.posman.OpenPositions() {
		atrNow := e.stopATR(barIndex)
		for _, ev := range pos.Plan.Evaluate(bar, atrNow) {
			if pos.OpenSize <= 0 {
				break
			}
			size := pos.OpenSize
			if ev.Portion < 1 {
				size = math.Min(ev.Portion*pos.TotalEntered, pos.OpenSize)
			}
			if err := e.closeFill(pos, size, ev.Price, barIndex, bar, ev.Reason); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveScheduledAdds fills DCA and scale-in levels touched by the bar.
func (e *Engine) resolveScheduledAdds(barIndex int, bar domain.Bar) {
	for _, pos := range e.posman.OpenPositions() {
		if pos.OpenSize <= 0 {
			continue
		}
		kept := pos.pendingAdds[:0]
		for _, lvl := range pos.pendingAdds {
			if !touchedAdverseLevel(pos.Side, bar, lvl.price) {
				kept = append(kept, lvl)
				continue
			}
			price := lvl.price
			if pos.Side == domain.SideLong && bar.Open < price {
				price = bar.Open
			}
			if pos.Side == domain.SideShort && bar.Open > price {
				price = bar.Open
			}
			if !pos.FitsSizeCap(lvl.size, effPyramiding(e.cfg)) {
				continue
			}
			e.addFill(pos, lvl.size, price, barIndex, bar, lvl.origin)
		}
		pos.pendingAdds = kept
		if pos.OpenSize > 0 {
			pos.Plan.Reprice(pos.AvgEntry(), e.stopATR(barIndex))
		}
	}
}

// resolveSignalExits closes positions whose exit signal fired on this bar.
func (e *Engine) resolveSignalExits(barIndex int, bar domain.Bar) {
	exit := func(side domain.Side) {
		pos := e.posman.Get(side)
		if pos == nil || pos.OpenSize <= 0 {
			return
		}
		_ = e.closeFill(pos, pos.OpenSize, bar.Close, barIndex, bar, domain.ReasonSignalExit)
	}
	if e.signals.LongExit[barIndex] {
		exit(domain.SideLong)
	}
	if e.signals.ShortExit[barIndex] {
		exit(domain.SideShort)
	}
}

// resolveTimeExits applies session, week-end and max-duration forced closes.
func (e *Engine) resolveTimeExits(barIndex int, bar domain.Bar) {
	nextTs := int64(-1)
	if barIndex+1 < len(e.bars) {
		nextTs = e.bars[barIndex+1].TimestampMs
	}
	for _, pos := range e.posman.OpenPositions() {
		if pos.OpenSize <= 0 {
			continue
		}
		force, reason := e.timeGov.ForceExit(bar.TimestampMs, nextTs, barIndex-pos.EntryBar)
		if force {
			_ = e.closeFill(pos, pos.OpenSize, bar.Close, barIndex, bar, reason)
		}
	}
}

// resolvePendingOrders checks resting limit/stop entries against the bar and
// expires the ones past their timeout.
func (e *Engine) resolvePendingOrders(barIndex int, bar domain.Bar) error {
	kept := e.pending[:0]
	for _, pe := range e.pending {
		if pe.order.SignalBar == barIndex {
			// Orders placed this bar start working on the next one.
			kept = append(kept, pe)
			continue
		}
		price, ok := e.policy.TryFill(pe.order, bar)
		if ok {
			if err := e.openOrAdd(pe.order.Side, pe.size, price, barIndex, bar); err != nil {
				return err
			}
			continue
		}
		pe.order.BarsLeft--
		if pe.order.BarsLeft <= 0 {
			e.diag(barIndex, bar, domain.DiagOrderExpired,
				fmt.Sprintf("%s %s order from bar %d expired", pe.order.Side, pe.order.Kind, pe.order.SignalBar))
			continue
		}
		kept = append(kept, pe)
	}
	e.pending = kept
	return nil
}

// resolveEntries evaluates this bar's entry signals through the gate chain
// and hands survivors to the execution policy.
func (e *Engine) resolveEntries(barIndex int, bar domain.Bar) error {
	try := func(side domain.Side, allowed bool) error {
		if !allowed {
			return nil
		}
		if side == domain.SideLong && !e.cfg.AllowLong {
			return nil
		}
		if side == domain.SideShort && !e.cfg.AllowShort {
			return nil
		}
		if !e.posman.MayEnter(side) {
			return nil
		}
		if ok, why := e.timeGov.AllowEntry(bar.TimestampMs); !ok {
			e.logf("bar %d %s entry vetoed: %s", barIndex, side, why)
			return nil
		}
		if ok, why := e.reentry.Allow(barIndex, e.history); !ok {
			e.logf("bar %d %s entry vetoed: %s", barIndex, side, why)
			return nil
		}
		if ok, why := e.filters.Pass(barIndex, side); !ok {
			e.logf("bar %d %s entry vetoed: %s", barIndex, side, why)
			return nil
		}
		if e.htf != nil {
			if ok, why := e.htf.Allow(side); !ok {
				e.logf("bar %d %s entry vetoed: %s", barIndex, side, why)
				return nil
			}
		}

		size, err := e.sizeEntry(barIndex, bar)
		if err != nil {
			return err
		}
		if math.IsNaN(size) || size <= 0 {
			return nil
		}

		switch e.cfg.Execution.Order {
		case domain.OrderLimit, domain.OrderStop:
			e.pending = append(e.pending, pendingEntry{
				order: e.policy.NewPendingOrder(side, bar.Close, barIndex),
				size:  size,
			})
			return nil
		default:
			if e.cfg.Execution.FillAtNextOpen {
				e.deferred = append(e.deferred, entryRequest{side: side, size: size})
				return nil
			}
			return e.openOrAdd(side, size, bar.Close, barIndex, bar)
		}
	}

	if err := try(domain.SideLong, e.signals.LongEntry[barIndex]); err != nil {
		return err
	}
	return try(domain.SideShort, e.signals.ShortEntry[barIndex])
}

// fillDeferred executes market entries carried over from the previous bar at
// this bar's open.
func (e *Engine) fillDeferred(barIndex int, bar domain.Bar) error {
	if len(e.deferred) == 0 {
		return nil
	}
	reqs := e.deferred
	e.deferred = nil
	for _, r := range reqs {
		if err := e.openOrAdd(r.side, r.size, bar.Open, barIndex, bar); err != nil {
			return err
		}
	}
	return nil
}

// sizeEntry runs the sizing engine in the current account context. A
// non-finite size becomes a diagnostic, or an error under FailFast.
func (e *Engine) sizeEntry(barIndex int, bar domain.Bar) (float64, error) {
	equity := e.tracker.Equity(e.unrealized(bar.Close))
	sctx := sizing.Context{
		Equity:       equity,
		Price:        bar.Close,
		ATR:          e.sizingATR(barIndex),
		StopDistance: e.stopDistance(barIndex, bar.Close),
		History:      e.stats,
	}
	size := e.sizer.Size(sctx)
	if math.IsNaN(size) || math.IsInf(size, 0) {
		detail := fmt.Sprintf("sizing mode %q produced a non-finite size", e.cfg.Sizing.Mode)
		if e.cfg.FailFast {
			return 0, fmt.Errorf("%w: bar %d: %s", ErrNumericDegeneracy, barIndex, detail)
		}
		e.diag(barIndex, bar, domain.DiagNonFiniteSize, detail)
		return math.NaN(), nil
	}
	return size, nil
}

// openOrAdd routes a sized entry to a fresh position or a pyramid add.
func (e *Engine) openOrAdd(side domain.Side, size, rawPrice float64, barIndex int, bar domain.Bar) error {
	pos := e.posman.Get(side)
	if pos != nil && pos.OpenSize > 0 {
		if pos.entryCount >= effPyramiding(e.cfg) || !pos.FitsSizeCap(size, effPyramiding(e.cfg)) {
			return nil
		}
		e.addFill(pos, size, rawPrice, barIndex, bar, domain.LotPyramid)
		pos.entryCount++
		pos.Plan.Reprice(pos.AvgEntry(), e.stopATR(barIndex))
		return nil
	}
	return e.openPosition(side, size, rawPrice, barIndex, bar)
}

// openPosition creates a new position, its exit plan, and its scheduled
// DCA/scale-in levels.
func (e *Engine) openPosition(side domain.Side, size, rawPrice float64, barIndex int, bar domain.Bar) error {
	buying := side == domain.SideLong
	pct := e.policy.SlippagePct(size, bar, e.slippageATR(barIndex))
	price := clampToBar(execution.ApplySlippage(rawPrice, pct, buying), bar)
	if !isFinitePrice(price) {
		detail := fmt.Sprintf("entry price %v after slippage", price)
		if e.cfg.FailFast {
			return fmt.Errorf("%w: bar %d: %s", ErrNumericDegeneracy, barIndex, detail)
		}
		e.diag(barIndex, bar, domain.DiagNonFinitePrice, detail)
		return nil
	}
	commission := e.policy.Commission(price, size)

	entryATR := e.stopATR(barIndex)
	pos := &Position{
		Side:       side,
		EntryBar:   barIndex,
		EntryTs:    bar.TimestampMs,
		BaseSize:   size,
		entryATR:   entryATR,
		entryCount: 1,
		fundingAcc: execution.NewFundingAccruer(e.cfg.Funding, bar.TimestampMs),
	}
	pos.addLot(domain.Fill{
		BarIndex:    barIndex,
		TimestampMs: bar.TimestampMs,
		Side:        side,
		Price:       price,
		Size:        size,
		Commission:  commission,
		Slippage:    math.Abs(price - rawPrice),
		Reason:      domain.ReasonEntry,
		IsEntry:     true,
	}, domain.LotInitial)
	e.tracker.AddFees(commission)

	pos.Plan = risk.NewExitPlan(e.cfg, side, price, entryATR)
	pos.pendingAdds = scheduleAdds(e.cfg, side, price, size)

	e.posman.Open(pos)
	e.history.TradesToday++
	e.history.TradesThisWeek++
	e.logf("bar %d open %s size=%.6f price=%.4f", barIndex, side, size, price)
	return nil
}

// addFill appends a scheduled or pyramid entry fill to an open position.
func (e *Engine) addFill(pos *Position, size, rawPrice float64, barIndex int, bar domain.Bar, origin domain.LotOrigin) {
	buying := pos.Side == domain.SideLong
	pct := e.policy.SlippagePct(size, bar, e.slippageATR(barIndex))
	price := clampToBar(execution.ApplySlippage(rawPrice, pct, buying), bar)
	if !isFinitePrice(price) {
		e.diag(barIndex, bar, domain.DiagNonFinitePrice, fmt.Sprintf("add price %v after slippage", price))
		return
	}
	commission := e.policy.Commission(price, size)
	reason := domain.ReasonScaleIn
	switch origin {
	case domain.LotDCA:
		reason = domain.ReasonDCA
	case domain.LotPyramid:
		reason = domain.ReasonPyramid
	}
	pos.addLot(domain.Fill{
		BarIndex:    barIndex,
		TimestampMs: bar.TimestampMs,
		Side:        pos.Side,
		Price:       price,
		Size:        size,
		Commission:  commission,
		Slippage:    math.Abs(price - rawPrice),
		Reason:      reason,
		IsEntry:     true,
	}, origin)
	e.tracker.AddFees(commission)
	e.logf("bar %d add %s %s size=%.6f price=%.4f", barIndex, pos.Side, origin, size, price)
}

// closeFill closes size units of a position at rawPrice and finalizes the
// trade when nothing remains open.
func (e *Engine) closeFill(pos *Position, size, rawPrice float64, barIndex int, bar domain.Bar, reason domain.FillReason) error {
	if size <= 0 || pos.OpenSize <= 0 {
		return nil
	}
	buying := pos.Side == domain.SideShort
	pct := e.policy.SlippagePct(size, bar, e.slippageATR(barIndex))
	price := clampToBar(execution.ApplySlippage(rawPrice, pct, buying), bar)
	if !isFinitePrice(price) {
		detail := fmt.Sprintf("exit price %v after slippage", price)
		if e.cfg.FailFast {
			return fmt.Errorf("%w: bar %d: %s", ErrNumericDegeneracy, barIndex, detail)
		}
		e.diag(barIndex, bar, domain.DiagNonFinitePrice, detail)
		return nil
	}
	commission := e.policy.Commission(price, size)
	pnl := pos.closeSize(size, price, e.cfg.CloseOrder)
	pos.commission += commission
	pos.Fills = append(pos.Fills, domain.Fill{
		BarIndex:    barIndex,
		TimestampMs: bar.TimestampMs,
		Side:        pos.Side.Opposite(),
		Price:       price,
		Size:        size,
		Commission:  commission,
		Slippage:    math.Abs(price - rawPrice),
		Reason:      reason,
	})
	e.tracker.AddRealized(pnl)
	e.tracker.AddFees(commission)
	e.logf("bar %d close %s %.6f@%.4f reason=%s pnl=%.4f", barIndex, pos.Side, size, price, reason, pnl)

	if pos.OpenSize <= 1e-12 {
		e.finishTrade(pos, barIndex, reason)
	}
	return nil
}

// finishTrade records a fully closed position into the result, the sizing
// history and the re-entry counters.
func (e *Engine) finishTrade(pos *Position, barIndex int, reason domain.FillReason) {
	pos.exitReason = reason
	t := pos.trade(true)
	e.result.Trades = append(e.result.Trades, t)
	e.stats.Record(t.NetPnL)

	e.history.LastExitBar = barIndex
	if t.NetPnL < 0 {
		e.history.ConsecutiveLosses++
		if e.cfg.ReEntry.MaxConsecutiveLosses > 0 &&
			e.history.ConsecutiveLosses >= e.cfg.ReEntry.MaxConsecutiveLosses {
			if until := e.reentry.CooldownAfterStreak(barIndex); until > 0 {
				e.history.CooldownUntilBar = until
				e.history.ConsecutiveLosses = 0
			}
		}
	} else {
		e.history.ConsecutiveLosses = 0
	}
	e.posman.Drop(pos.Side)
}

// liquidate force-closes everything at the bar close after bankruptcy.
func (e *Engine) liquidate(barIndex int, bar domain.Bar) {
	for _, pos := range e.posman.OpenPositions() {
		_ = e.closeFill(pos, pos.OpenSize, bar.Close, barIndex, bar, domain.ReasonBankruptcy)
	}
}

// finalize snapshots still-open positions and computes aggregate metrics.
// Open positions stay open: their trades land in OpenTrades, marked at the
// last processed bar, and never enter the closed-trade statistics.
func (e *Engine) finalize() {
	for _, pos := range e.posman.OpenPositions() {
		e.result.OpenTrades = append(e.result.OpenTrades, pos.trade(false))
	}
	last := 0.0
	if n := len(e.result.Equity); n > 0 {
		last = e.result.Equity[n-1].Equity
	} else {
		last = e.cfg.InitialCapital
	}
	e.result.FinalCapital = last
	metrics.Compute(e.result, e.bars)
}

func (e *Engine) unrealized(price float64) float64 {
	u := 0.0
	for _, pos := range e.posman.OpenPositions() {
		u += pos.Unrealized(price)
	}
	return u
}

// stopDistance is the price distance to the configured stop, for risk
// sizing. NaN when no stop mode is set.
func (e *Engine) stopDistance(barIndex int, price float64) float64 {
	switch e.cfg.Stop.Mode {
	case domain.StopPercent:
		return price * e.cfg.Stop.Percent
	case domain.StopATR:
		atr := e.stopATR(barIndex)
		if math.IsNaN(atr) {
			return math.NaN()
		}
		return e.cfg.Stop.ATRMult * atr
	default:
		return math.NaN()
	}
}

func (e *Engine) stopATR(barIndex int) float64 {
	if e.cfg.Stop.ATRPeriod <= 0 {
		return math.NaN()
	}
	return e.cache.ATR(e.cfg.Stop.ATRPeriod)[barIndex]
}

func (e *Engine) sizingATR(barIndex int) float64 {
	if e.cfg.Sizing.ATRPeriod <= 0 {
		return math.NaN()
	}
	return e.cache.ATR(e.cfg.Sizing.ATRPeriod)[barIndex]
}

func (e *Engine) slippageATR(barIndex int) float64 {
	if e.cfg.Execution.Slippage.ATRPeriod <= 0 {
		return math.NaN()
	}
	return e.cache.ATR(e.cfg.Execution.Slippage.ATRPeriod)[barIndex]
}

func (e *Engine) diag(barIndex int, bar domain.Bar, code, detail string) {
	e.result.Diagnostics = append(e.result.Diagnostics, domain.Diagnostic{
		BarIndex:    barIndex,
		TimestampMs: bar.TimestampMs,
		Code:        code,
		Detail:      detail,
	})
	e.logf("bar %d diagnostic %s: %s", barIndex, code, detail)
}

func (e *Engine) logf(format string, args ...any) {
	if e.Verbose {
		log.Printf("engine: "+format, args...)
	}
}

// scheduleAdds precomputes the DCA safety-order and scale-in levels for a
// freshly opened position. Both ladders anchor to the base entry price and
// never move afterwards.
func scheduleAdds(cfg *domain.SimulationConfig, side domain.Side, basePrice, baseSize float64) []priceLevel {
	var out []priceLevel
	d := cfg.DCA
	volScale := d.VolumeScale
	if volScale == 0 {
		volScale = 1
	}
	stepScale := d.StepScale
	if stepScale == 0 {
		stepScale = 1
	}
	for i := 1; i <= d.SafetyOrders; i++ {
		dev := float64(i) * d.PriceDeviationPct
		if !d.Linear && stepScale != 1 {
			dev = d.PriceDeviationPct * (1 - math.Pow(stepScale, float64(i))) / (1 - stepScale)
		}
		price := basePrice * (1 - dev)
		if side == domain.SideShort {
			price = basePrice * (1 + dev)
		}
		out = append(out, priceLevel{
			price:  price,
			size:   baseSize * math.Pow(volScale, float64(i)),
			origin: domain.LotDCA,
		})
	}
	for _, lvl := range cfg.ScaleIn.Levels {
		price := basePrice * (1 - lvl.OffsetPct)
		if side == domain.SideShort {
			price = basePrice * (1 + lvl.OffsetPct)
		}
		out = append(out, priceLevel{
			price:  price,
			size:   baseSize * lvl.Portion,
			origin: domain.LotScaleIn,
		})
	}
	return out
}

func touchedAdverseLevel(side domain.Side, bar domain.Bar, price float64) bool {
	if side == domain.SideLong {
		return bar.Low <= price
	}
	return bar.High >= price
}

// clampToBar keeps a slipped fill inside the bar's traded range.
func clampToBar(price float64, bar domain.Bar) float64 {
	if price < bar.Low {
		return bar.Low
	}
	if price > bar.High {
		return bar.High
	}
	return price
}

func isFinitePrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0
}
