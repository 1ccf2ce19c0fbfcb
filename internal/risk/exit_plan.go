// Package risk owns the exit-threshold logic for one open position:
// fixed-percent and ATR stops, single and multi-level take-profits, trailing
// and breakeven stops. Thresholds are evaluated against intrabar high/low;
// when both a stop and a target are touched by the same bar's range the
// configured tie-break decides which resolves first.
package risk

import (
	"math"

	"tradesim-lab/internal/domain"
)

// ExitEvent is one threshold hit resolved for a bar.
type ExitEvent struct {
	Price   float64
	Portion float64 // fraction of the original position size; 1 closes all remaining
	Reason  domain.FillReason
}

type planLevel struct {
	price   float64
	portion float64
	level   int // 1-based
	hit     bool
}

// ExitPlan is the active exit-threshold snapshot of one open position. It is
// rebuilt on open and repriced whenever the average entry moves (DCA,
// scale-in) or ATR recomputation is enabled. Trailing ratchets only in the
// favorable direction; breakeven triggers once and is irreversible.
type ExitPlan struct {
	side     domain.Side
	avgEntry float64
	entryATR float64

	stopCfg  domain.StopConfig
	tpCfg    domain.TakeProfitConfig
	trailCfg domain.TrailingConfig
	beCfg    domain.BreakevenConfig
	tieBreak domain.TieBreak

	stopPrice float64 // NaN when no stop is active
	tpPrice   float64 // NaN when no single target is active
	levels    []planLevel

	trailArmed bool
	trailPeak  float64
	trailStop  float64 // NaN until armed

	breakevenDone bool
	breakevenStop float64 // NaN until triggered
}

// NewExitPlan builds the plan for a freshly opened position. entryATR is the
// ATR sampled at the entry bar; it stays frozen unless recomputation is
// enabled on the stop or take-profit config.
func NewExitPlan(cfg *domain.SimulationConfig, side domain.Side, avgEntry, entryATR float64) *ExitPlan {
	p := &ExitPlan{
		side:          side,
		entryATR:      entryATR,
		stopCfg:       cfg.Stop,
		tpCfg:         cfg.TakeProfit,
		trailCfg:      cfg.Trailing,
		beCfg:         cfg.Breakeven,
		tieBreak:      cfg.TieBreak,
		stopPrice:     math.NaN(),
		tpPrice:       math.NaN(),
		trailStop:     math.NaN(),
		breakevenStop: math.NaN(),
	}
	p.Reprice(avgEntry, entryATR)
	return p
}

// Side returns the side the plan guards.
func (p *ExitPlan) Side() domain.Side { return p.side }

// StopPrice returns the plain stop-loss threshold (NaN when none). Trailing
// and breakeven stops are tracked separately and folded in at evaluation.
func (p *ExitPlan) StopPrice() float64 { return p.stopPrice }

// Reprice recomputes all thresholds from a new average entry price and ATR
// sample. Hit flags on multi-level targets, trailing state and the breakeven
// trigger survive repricing.
func (p *ExitPlan) Reprice(avgEntry, atr float64) {
	p.avgEntry = avgEntry
	if !p.stopCfg.Recompute && !p.tpCfg.Recompute {
		atr = p.entryATR
	}

	switch p.stopCfg.Mode {
	case domain.StopPercent:
		p.stopPrice = offsetPrice(p.side, avgEntry, -p.stopCfg.Percent)
	case domain.StopATR:
		a := p.entryATR
		if p.stopCfg.Recompute && !math.IsNaN(atr) {
			a = atr
		}
		p.stopPrice = adverse(p.side, avgEntry, p.stopCfg.ATRMult*a)
	default:
		p.stopPrice = math.NaN()
	}

	switch p.tpCfg.Mode {
	case domain.TPPercent:
		p.tpPrice = offsetPrice(p.side, avgEntry, p.tpCfg.Percent)
	case domain.TPATR:
		a := p.entryATR
		if p.tpCfg.Recompute && !math.IsNaN(atr) {
			a = atr
		}
		p.tpPrice = favorable(p.side, avgEntry, p.tpCfg.ATRMult*a)
	case domain.TPMulti:
		hit := make(map[int]bool, len(p.levels))
		for _, lv := range p.levels {
			hit[lv.level] = lv.hit
		}
		p.levels = p.levels[:0]
		for i, lc := range p.tpCfg.Levels {
			p.levels = append(p.levels, planLevel{
				price:   offsetPrice(p.side, avgEntry, lc.Percent),
				portion: lc.Portion,
				level:   i + 1,
				hit:     hit[i+1],
			})
		}
		p.tpPrice = math.NaN()
	default:
		p.tpPrice = math.NaN()
	}

	// Breakeven, once triggered, pins to the entry that was current at
	// trigger time; it does not move with later repricing.
	if p.breakevenDone && math.IsNaN(p.breakevenStop) {
		p.breakevenStop = offsetPrice(p.side, avgEntry, p.beCfg.OffsetPct)
	}
}

// effectiveStop folds the plain, trailing and breakeven stops into the
// tightest active one for the position side.
func (p *ExitPlan) effectiveStop() (float64, domain.FillReason) {
	price := p.stopPrice
	reason := domain.ReasonStopLoss
	tighter := func(candidate float64, r domain.FillReason) {
		if math.IsNaN(candidate) {
			return
		}
		if math.IsNaN(price) ||
			(p.side == domain.SideLong && candidate > price) ||
			(p.side == domain.SideShort && candidate < price) {
			price = candidate
			reason = r
		}
	}
	tighter(p.breakevenStop, domain.ReasonBreakeven)
	tighter(p.trailStop, domain.ReasonTrailing)
	return price, reason
}

// Evaluate resolves the bar against the plan and returns zero or more exit
// events in resolution order. Threshold state (trail peak, breakeven arm) is
// updated from the bar's extremes only after the touch checks, so a
// threshold never benefits from price action inside the bar that armed it.
// atrNow is the current ATR sample, used only when recomputation is enabled.
func (p *ExitPlan) Evaluate(bar domain.Bar, atrNow float64) []ExitEvent {
	if (p.stopCfg.Recompute || p.tpCfg.Recompute) && !math.IsNaN(atrNow) {
		p.Reprice(p.avgEntry, atrNow)
	}

	var events []ExitEvent
	stopPrice, stopReason := p.effectiveStop()
	stopHit := !math.IsNaN(stopPrice) && touchedAdverse(p.side, bar, stopPrice)

	targets := p.touchedTargets(bar)

	switch {
	case stopHit && len(targets) > 0:
		if p.tieBreak == domain.TieBreakTargetFirst {
			events = append(events, targets...)
			// Anything left after partial targets still exits at the stop.
			events = append(events, ExitEvent{Price: gapAdjusted(p.side, bar, stopPrice), Portion: 1, Reason: stopReason})
		} else {
			events = append(events, ExitEvent{Price: gapAdjusted(p.side, bar, stopPrice), Portion: 1, Reason: stopReason})
		}
	case stopHit:
		events = append(events, ExitEvent{Price: gapAdjusted(p.side, bar, stopPrice), Portion: 1, Reason: stopReason})
	case len(targets) > 0:
		events = append(events, targets...)
	}

	p.advance(bar)
	return events
}

// touchedTargets returns the take-profit events touched by the bar, nearest
// level first, and marks multi-level hits.
func (p *ExitPlan) touchedTargets(bar domain.Bar) []ExitEvent {
	var out []ExitEvent
	if !math.IsNaN(p.tpPrice) && touchedFavorable(p.side, bar, p.tpPrice) {
		out = append(out, ExitEvent{Price: gapAdjustedFavorable(p.side, bar, p.tpPrice), Portion: 1, Reason: domain.ReasonTPLevel(1)})
		return out
	}
	for i := range p.levels {
		lv := &p.levels[i]
		if lv.hit || !touchedFavorable(p.side, bar, lv.price) {
			continue
		}
		lv.hit = true
		out = append(out, ExitEvent{
			Price:   gapAdjustedFavorable(p.side, bar, lv.price),
			Portion: lv.portion,
			Reason:  domain.ReasonTPLevel(lv.level),
		})
	}
	return out
}

// advance updates trailing and breakeven state from the bar's extremes.
func (p *ExitPlan) advance(bar domain.Bar) {
	fav := bar.High
	if p.side == domain.SideShort {
		fav = bar.Low
	}

	if p.trailCfg.Enabled {
		activation := offsetPrice(p.side, p.avgEntry, p.trailCfg.ActivationPct)
		if !p.trailArmed && reached(p.side, fav, activation) {
			p.trailArmed = true
			p.trailPeak = fav
		}
		if p.trailArmed {
			if reached(p.side, fav, p.trailPeak) {
				p.trailPeak = fav
			}
			candidate := offsetPrice(p.side.Opposite(), p.trailPeak, p.trailCfg.CallbackPct)
			// Ratchet: the trail never retreats.
			if math.IsNaN(p.trailStop) || reached(p.side, candidate, p.trailStop) {
				p.trailStop = candidate
			}
		}
	}

	if p.beCfg.Enabled && !p.breakevenDone {
		trigger := offsetPrice(p.side, p.avgEntry, p.beCfg.TriggerPct)
		if reached(p.side, fav, trigger) {
			p.breakevenDone = true
			p.breakevenStop = offsetPrice(p.side, p.avgEntry, p.beCfg.OffsetPct)
		}
	}
}

// offsetPrice moves price by pct in the favorable direction of side; a
// negative pct moves it adversely.
func offsetPrice(side domain.Side, price, pct float64) float64 {
	if side == domain.SideLong {
		return price * (1 + pct)
	}
	return price * (1 - pct)
}

// adverse moves price by an absolute distance against side.
func adverse(side domain.Side, price, dist float64) float64 {
	if side == domain.SideLong {
		return price - dist
	}
	return price + dist
}

// favorable moves price by an absolute distance with side.
func favorable(side domain.Side, price, dist float64) float64 {
	if side == domain.SideLong {
		return price + dist
	}
	return price - dist
}

// reached reports whether value has reached target in side's favorable
// direction.
func reached(side domain.Side, value, target float64) bool {
	if side == domain.SideLong {
		return value >= target
	}
	return value <= target
}

func touchedAdverse(side domain.Side, bar domain.Bar, price float64) bool {
	if side == domain.SideLong {
		return bar.Low <= price
	}
	return bar.High >= price
}

func touchedFavorable(side domain.Side, bar domain.Bar, price float64) bool {
	if side == domain.SideLong {
		return bar.High >= price
	}
	return bar.Low <= price
}

// gapAdjusted returns the realistic fill price for an adverse stop: when the
// bar opens through the level, the fill happens at the open.
func gapAdjusted(side domain.Side, bar domain.Bar, stop float64) float64 {
	if side == domain.SideLong && bar.Open < stop {
		return bar.Open
	}
	if side == domain.SideShort && bar.Open > stop {
		return bar.Open
	}
	return stop
}

// gapAdjustedFavorable mirrors gapAdjusted for targets: a favorable gap
// through the level fills at the open.
func gapAdjustedFavorable(side domain.Side, bar domain.Bar, target float64) float64 {
	if side == domain.SideLong && bar.Open > target {
		return bar.Open
	}
	if side == domain.SideShort && bar.Open < target {
		return bar.Open
	}
	return target
}
