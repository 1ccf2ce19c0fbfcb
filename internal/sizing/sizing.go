// Package sizing turns account equity, leverage and a sizing mode into a
// position size for a candidate entry. All modes clamp the resulting
// notional to the configured equity-fraction band.
package sizing

import (
	"math"

	"tradesim-lab/internal/domain"
)

// TradeStats is the trailing trade history the Kelly mode estimates its
// edge from. The simulation loop maintains one per run.
type TradeStats struct {
	Trades  int
	Wins    int
	AvgWin  float64 // mean winning net PnL, quote currency
	AvgLoss float64 // mean losing net PnL magnitude
}

// Record folds one closed trade into the stats.
func (s *TradeStats) Record(netPnL float64) {
	if netPnL > 0 {
		s.AvgWin = (s.AvgWin*float64(s.Wins) + netPnL) / float64(s.Wins+1)
		s.Wins++
	} else {
		losses := s.Trades - s.Wins
		s.AvgLoss = (s.AvgLoss*float64(losses) - netPnL) / float64(losses+1)
	}
	s.Trades++
}

// Context is everything a single sizing decision may read.
type Context struct {
	Equity       float64
	Price        float64
	ATR          float64 // NaN when unavailable
	StopDistance float64 // price units to the stop; NaN when no stop is configured
	History      TradeStats
}

// Engine computes position sizes for one run.
type Engine struct {
	cfg      domain.SizingConfig
	leverage float64
}

// New creates a sizing Engine.
func New(cfg domain.SizingConfig, leverage float64) *Engine {
	if leverage <= 0 {
		leverage = 1
	}
	return &Engine{cfg: cfg, leverage: leverage}
}

// Size returns the entry size in asset units. A non-finite result signals
// numeric degeneracy to the caller; Size itself never panics. Kelly with
// insufficient history falls back to the fixed mode.
func (e *Engine) Size(ctx Context) float64 {
	if ctx.Price <= 0 || ctx.Equity <= 0 {
		return math.NaN()
	}

	fraction := e.fraction(ctx)
	if math.IsNaN(fraction) || math.IsInf(fraction, 0) {
		return math.NaN()
	}

	if fraction < e.cfg.MinFraction {
		fraction = e.cfg.MinFraction
	}
	if e.cfg.MaxFraction > 0 && fraction > e.cfg.MaxFraction {
		fraction = e.cfg.MaxFraction
	}

	notional := ctx.Equity * fraction * e.leverage
	return notional / ctx.Price
}

func (e *Engine) fraction(ctx Context) float64 {
	switch e.cfg.Mode {
	case domain.SizingFixed:
		return e.cfg.EquityFraction
	case domain.SizingRisk:
		// Size so a stop hit loses exactly RiskPerTrade of equity.
		if math.IsNaN(ctx.StopDistance) || ctx.StopDistance <= 0 {
			return math.NaN()
		}
		units := e.cfg.RiskPerTrade * ctx.Equity / ctx.StopDistance
		return units * ctx.Price / (ctx.Equity * e.leverage)
	case domain.SizingKelly:
		return e.kellyFraction(ctx)
	case domain.SizingVolatility:
		if math.IsNaN(ctx.ATR) || ctx.ATR <= 0 {
			return math.NaN()
		}
		return e.cfg.TargetVolPct / (ctx.ATR / ctx.Price)
	default:
		return math.NaN()
	}
}

// kellyFraction estimates f = W - (1-W)/R from trailing history, damped by
// the fractional-Kelly factor. Until enough trades exist it sizes like the
// fixed mode, so a zero-history run never fails.
func (e *Engine) kellyFraction(ctx Context) float64 {
	h := ctx.History
	if h.Trades < e.cfg.KellyMinTrades || h.Wins == 0 || h.Wins == h.Trades || h.AvgLoss <= 0 {
		return e.cfg.EquityFraction
	}
	winRate := float64(h.Wins) / float64(h.Trades)
	payoff := h.AvgWin / h.AvgLoss
	if payoff <= 0 {
		return e.cfg.EquityFraction
	}
	f := winRate - (1-winRate)/payoff
	f *= e.cfg.KellyFraction
	if f <= 0 {
		// Negative edge: fall back rather than refuse to trade, the
		// governors decide whether trading continues.
		return e.cfg.MinFraction
	}
	return f
}
