package engine

import (
	"math"

	"tradesim-lab/internal/domain"
)

// ValidateConfig checks a SimulationConfig for malformed or inconsistent
// combinations. It runs once before the loop; anything it accepts is safe
// for the whole run.
func ValidateConfig(cfg *domain.SimulationConfig) error {
	if cfg.InitialCapital <= 0 {
		return configErrorf("initial_capital", "must be positive, got %v", cfg.InitialCapital)
	}
	if cfg.Leverage < 1 {
		return configErrorf("leverage", "must be >= 1, got %v", cfg.Leverage)
	}
	if cfg.CommissionRate < 0 {
		return configErrorf("commission_rate", "must be non-negative, got %v", cfg.CommissionRate)
	}
	if !cfg.AllowLong && !cfg.AllowShort {
		return configErrorf("allow_long/allow_short", "at least one side must be enabled")
	}
	if cfg.Pyramiding < 0 {
		return configErrorf("pyramiding", "must be non-negative, got %d", cfg.Pyramiding)
	}
	if cfg.BaseTimeframe.DurationMs() == 0 {
		return configErrorf("base_timeframe", "unknown timeframe %q", cfg.BaseTimeframe)
	}

	switch cfg.CloseOrder {
	case domain.CloseFIFO, domain.CloseLIFO, "":
	default:
		return configErrorf("close_order", "unknown value %q", cfg.CloseOrder)
	}
	switch cfg.TieBreak {
	case domain.TieBreakStopFirst, domain.TieBreakTargetFirst, "":
	default:
		return configErrorf("tie_break", "unknown value %q", cfg.TieBreak)
	}

	if err := validateStop(cfg.Stop); err != nil {
		return err
	}
	if err := validateTakeProfit(cfg.TakeProfit); err != nil {
		return err
	}
	if cfg.Trailing.Enabled {
		if cfg.Trailing.CallbackPct <= 0 {
			return configErrorf("trailing.callback_pct", "must be positive when trailing is enabled")
		}
		if cfg.Trailing.ActivationPct < 0 {
			return configErrorf("trailing.activation_pct", "must be non-negative")
		}
	}
	if cfg.Breakeven.Enabled && cfg.Breakeven.TriggerPct <= 0 {
		return configErrorf("breakeven.trigger_pct", "must be positive when breakeven is enabled")
	}

	if err := validateSizing(cfg); err != nil {
		return err
	}
	if err := validateExecution(cfg.Execution); err != nil {
		return err
	}
	if cfg.Funding.Enabled && cfg.Funding.IntervalHours <= 0 {
		return configErrorf("funding.interval_hours", "must be positive when funding is enabled")
	}
	if err := validateEntrySchedules(cfg); err != nil {
		return err
	}
	for i, f := range cfg.MTF {
		switch f.Kind {
		case domain.HTFTrendMA, domain.HTFEMADirection, domain.HTFRSIRange:
		default:
			return configErrorf("mtf", "filter %d: unknown predicate %q", i, f.Kind)
		}
		if f.Timeframe.DurationMs() == 0 {
			return configErrorf("mtf", "filter %d: unknown timeframe %q", i, f.Timeframe)
		}
		if f.Period <= 0 {
			return configErrorf("mtf", "filter %d: period must be positive", i)
		}
	}
	return nil
}

func validateStop(s domain.StopConfig) error {
	switch s.Mode {
	case domain.StopNone:
	case domain.StopPercent:
		if s.Percent <= 0 {
			return configErrorf("stop.percent", "must be positive, got %v", s.Percent)
		}
	case domain.StopATR:
		if s.ATRPeriod <= 0 || s.ATRMult <= 0 {
			return configErrorf("stop", "atr mode requires positive atr_period and atr_mult")
		}
	default:
		return configErrorf("stop.mode", "unknown value %q", s.Mode)
	}
	return nil
}

func validateTakeProfit(t domain.TakeProfitConfig) error {
	switch t.Mode {
	case domain.TPNone:
	case domain.TPPercent:
		if t.Percent <= 0 {
			return configErrorf("take_profit.percent", "must be positive, got %v", t.Percent)
		}
	case domain.TPATR:
		if t.ATRPeriod <= 0 || t.ATRMult <= 0 {
			return configErrorf("take_profit", "atr mode requires positive atr_period and atr_mult")
		}
	case domain.TPMulti:
		if len(t.Levels) == 0 {
			return configErrorf("take_profit.levels", "multi mode requires at least one level")
		}
		total := 0.0
		prev := 0.0
		for i, lv := range t.Levels {
			if lv.Percent <= prev {
				return configErrorf("take_profit.levels", "level %d: percents must be strictly ascending", i+1)
			}
			if lv.Portion <= 0 || lv.Portion > 1 {
				return configErrorf("take_profit.levels", "level %d: portion must be in (0, 1]", i+1)
			}
			prev = lv.Percent
			total += lv.Portion
		}
		if total > 1+1e-9 {
			return configErrorf("take_profit.levels", "portions sum to %v, must not exceed 1", total)
		}
	default:
		return configErrorf("take_profit.mode", "unknown value %q", t.Mode)
	}
	return nil
}

func validateSizing(cfg *domain.SimulationConfig) error {
	s := cfg.Sizing
	if s.MinFraction < 0 || (s.MaxFraction > 0 && s.MaxFraction < s.MinFraction) {
		return configErrorf("sizing", "min_fraction/max_fraction band is inverted")
	}
	switch s.Mode {
	case domain.SizingFixed:
		if s.EquityFraction <= 0 {
			return configErrorf("sizing.equity_fraction", "must be positive in fixed mode")
		}
	case domain.SizingRisk:
		if s.RiskPerTrade <= 0 {
			return configErrorf("sizing.risk_per_trade", "must be positive in risk mode")
		}
		// Risk sizing needs a stop distance known at sizing time.
		if cfg.Stop.Mode == domain.StopNone {
			return configErrorf("sizing", "risk mode requires a configured stop-loss")
		}
	case domain.SizingKelly:
		if s.KellyFraction <= 0 || s.KellyFraction > 1 {
			return configErrorf("sizing.kelly_fraction", "must be in (0, 1]")
		}
		if s.EquityFraction <= 0 {
			return configErrorf("sizing.equity_fraction", "kelly mode needs a positive fallback fraction")
		}
	case domain.SizingVolatility:
		if s.TargetVolPct <= 0 || s.ATRPeriod <= 0 {
			return configErrorf("sizing", "volatility mode requires positive target_vol_pct and atr_period")
		}
	default:
		return configErrorf("sizing.mode", "unknown value %q", s.Mode)
	}
	return nil
}

func validateExecution(e domain.ExecutionConfig) error {
	switch e.Order {
	case domain.OrderMarket:
	case domain.OrderLimit, domain.OrderStop:
		if e.TimeoutBars <= 0 {
			return configErrorf("execution.timeout_bars", "must be positive for %s orders", e.Order)
		}
		if e.LimitOffsetPct < 0 {
			return configErrorf("execution.limit_offset_pct", "must be non-negative")
		}
	default:
		return configErrorf("execution.order", "unknown value %q", e.Order)
	}
	switch e.Slippage.Model {
	case domain.SlippageNone, domain.SlippageFixed, domain.SlippageVolume,
		domain.SlippageVolatility, domain.SlippageCombined:
	default:
		return configErrorf("execution.slippage.model", "unknown value %q", e.Slippage.Model)
	}
	return nil
}

// validateEntrySchedules rejects DCA/scale-in plans whose worst-case total
// size would breach the pyramiding cap, instead of clamping mid-run.
func validateEntrySchedules(cfg *domain.SimulationConfig) error {
	d := cfg.DCA
	multiple := 1.0
	if d.SafetyOrders > 0 {
		if d.PriceDeviationPct <= 0 {
			return configErrorf("dca.price_deviation_pct", "must be positive with safety orders")
		}
		if d.VolumeScale < 0 || d.StepScale < 0 {
			return configErrorf("dca", "volume_scale and step_scale must be non-negative")
		}
		scale := d.VolumeScale
		if scale == 0 {
			scale = 1
		}
		for i := 1; i <= d.SafetyOrders; i++ {
			multiple += math.Pow(scale, float64(i))
		}
	}
	for i, lv := range cfg.ScaleIn.Levels {
		if lv.OffsetPct <= 0 || lv.Portion <= 0 {
			return configErrorf("scale_in.levels", "level %d: offset and portion must be positive", i)
		}
		multiple += lv.Portion
	}
	limit := float64(effPyramiding(cfg))
	if multiple > limit+1e-9 {
		return configErrorf("pyramiding",
			"entry schedule totals %.4gx base size, exceeding the %gx pyramiding cap", multiple, limit)
	}
	return nil
}

// effPyramiding is the maximum position size in base-size multiples.
func effPyramiding(cfg *domain.SimulationConfig) int {
	if cfg.Pyramiding < 1 {
		return 1
	}
	return cfg.Pyramiding
}

// ValidateData checks bar/signal alignment and series sanity before a run.
func ValidateData(cfg *domain.SimulationConfig, bars []domain.Bar, signals *domain.SignalSet) error {
	if len(bars) == 0 {
		return dataErrorf("empty bar series")
	}
	n := signals.Len()
	if n < 0 {
		return dataErrorf("signal arrays have mismatched lengths")
	}
	if n != len(bars) {
		return dataErrorf("signal length %d does not match bar count %d", n, len(bars))
	}
	tfMs := cfg.BaseTimeframe.DurationMs()
	for i, b := range bars {
		if b.High < b.Low || b.High < b.Open || b.High < b.Close || b.Low > b.Open || b.Low > b.Close {
			return dataErrorf("bar %d: inconsistent OHLC", i)
		}
		if i == 0 {
			continue
		}
		gap := b.TimestampMs - bars[i-1].TimestampMs
		if gap <= 0 {
			return dataErrorf("bar %d: non-monotonic timestamp", i)
		}
		if cfg.MaxGapBars > 0 && gap > int64(cfg.MaxGapBars)*tfMs {
			return dataErrorf("bar %d: gap of %dms exceeds tolerance", i, gap)
		}
	}
	return nil
}
