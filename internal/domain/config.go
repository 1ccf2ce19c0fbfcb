package domain

// Policy mode enums. Each family is dispatched by exhaustive switch; an
// unknown value is a configuration error, caught before the loop starts.

// StopMode selects the stop-loss model.
type StopMode string

// Stop-loss modes.
const (
	StopNone    StopMode = ""
	StopPercent StopMode = "percent"
	StopATR     StopMode = "atr"
)

// TPMode selects the take-profit model.
type TPMode string

// Take-profit modes.
const (
	TPNone    TPMode = ""
	TPPercent TPMode = "percent"
	TPATR     TPMode = "atr"
	TPMulti   TPMode = "multi"
)

// SizingMode selects the position-sizing model.
type SizingMode string

// Sizing modes.
const (
	SizingFixed      SizingMode = "fixed"
	SizingRisk       SizingMode = "risk"
	SizingKelly      SizingMode = "kelly"
	SizingVolatility SizingMode = "volatility"
)

// OrderKind selects the entry order type.
type OrderKind string

// Entry order kinds.
const (
	OrderMarket OrderKind = "market"
	OrderLimit  OrderKind = "limit"
	OrderStop   OrderKind = "stop"
)

// SlippageModel selects the slippage model.
type SlippageModel string

// Slippage models.
const (
	SlippageNone       SlippageModel = ""
	SlippageFixed      SlippageModel = "fixed"
	SlippageVolume     SlippageModel = "volume"
	SlippageVolatility SlippageModel = "volatility"
	SlippageCombined   SlippageModel = "combined"
)

// TieBreak names the same-bar SL/TP resolution policy.
type TieBreak string

// Tie-break policies. StopFirst is the conservative default.
const (
	TieBreakStopFirst   TieBreak = "stop_first"
	TieBreakTargetFirst TieBreak = "target_first"
)

// CloseOrder selects which lots a partial close consumes first.
type CloseOrder string

// Lot close orderings.
const (
	CloseFIFO CloseOrder = "fifo"
	CloseLIFO CloseOrder = "lifo"
)

// HTFFilterKind selects a higher-timeframe filter predicate.
type HTFFilterKind string

// HTF filter kinds.
const (
	HTFTrendMA      HTFFilterKind = "trend_ma"
	HTFEMADirection HTFFilterKind = "ema_direction"
	HTFRSIRange     HTFFilterKind = "rsi_range"
)

// TPLevelConfig is one (level, portion) pair of a multi-level take-profit.
// Percent is the gain from average entry; Portion is the fraction of the
// original position size closed when the level triggers.
type TPLevelConfig struct {
	Percent float64 `yaml:"percent"`
	Portion float64 `yaml:"portion"`
}

// StopConfig configures the stop-loss model.
type StopConfig struct {
	Mode      StopMode `yaml:"mode"`
	Percent   float64  `yaml:"percent"`
	ATRPeriod int      `yaml:"atr_period"`
	ATRMult   float64  `yaml:"atr_mult"`
	// Recompute re-samples ATR every bar instead of freezing it at entry.
	Recompute bool `yaml:"recompute"`
}

// TakeProfitConfig configures the take-profit model.
type TakeProfitConfig struct {
	Mode      TPMode          `yaml:"mode"`
	Percent   float64         `yaml:"percent"`
	ATRPeriod int             `yaml:"atr_period"`
	ATRMult   float64         `yaml:"atr_mult"`
	Levels    []TPLevelConfig `yaml:"levels"`
	Recompute bool            `yaml:"recompute"`
}

// TrailingConfig configures the trailing stop.
type TrailingConfig struct {
	Enabled       bool    `yaml:"enabled"`
	ActivationPct float64 `yaml:"activation_pct"` // unrealized gain that arms the trail
	CallbackPct   float64 `yaml:"callback_pct"`   // distance from the peak
}

// BreakevenConfig configures the breakeven stop.
type BreakevenConfig struct {
	Enabled    bool    `yaml:"enabled"`
	TriggerPct float64 `yaml:"trigger_pct"`
	OffsetPct  float64 `yaml:"offset_pct"` // stop lands at entry ± offset
}

// SizingConfig configures position sizing. Fractions are of current equity.
type SizingConfig struct {
	Mode           SizingMode `yaml:"mode"`
	EquityFraction float64    `yaml:"equity_fraction"` // fixed mode, and kelly fallback
	RiskPerTrade   float64    `yaml:"risk_per_trade"`  // risk mode
	KellyFraction  float64    `yaml:"kelly_fraction"`  // fractional-Kelly damping
	KellyMinTrades int        `yaml:"kelly_min_trades"`
	TargetVolPct   float64    `yaml:"target_vol_pct"` // volatility mode
	ATRPeriod      int        `yaml:"atr_period"`
	MinFraction    float64    `yaml:"min_fraction"`
	MaxFraction    float64    `yaml:"max_fraction"`
}

// SlippageConfig configures the slippage model.
type SlippageConfig struct {
	Model       SlippageModel `yaml:"model"`
	Bps         float64       `yaml:"bps"`          // fixed component
	VolumeCoeff float64       `yaml:"volume_coeff"` // impact per unit of order/bar volume ratio
	ATRCoeff    float64       `yaml:"atr_coeff"`    // impact per unit of ATR/price ratio
	ATRPeriod   int           `yaml:"atr_period"`
}

// ExecutionConfig configures entry order resolution.
type ExecutionConfig struct {
	Order          OrderKind      `yaml:"order"`
	LimitOffsetPct float64        `yaml:"limit_offset_pct"` // offset from signal close for limit/stop orders
	TimeoutBars    int            `yaml:"timeout_bars"`     // pending order lifetime
	FillAtNextOpen bool           `yaml:"fill_at_next_open"`
	Slippage       SlippageConfig `yaml:"slippage"`
}

// FundingConfig configures perpetual funding accrual. Longs pay positive
// rates, shorts receive them.
type FundingConfig struct {
	Enabled         bool    `yaml:"enabled"`
	RatePerInterval float64 `yaml:"rate_per_interval"`
	IntervalHours   int     `yaml:"interval_hours"`
}

// ReEntryConfig configures trade-frequency gating.
type ReEntryConfig struct {
	DelayBars            int `yaml:"delay_bars"`
	MaxTradesPerDay      int `yaml:"max_trades_per_day"`  // 0 = unlimited
	MaxTradesPerWeek     int `yaml:"max_trades_per_week"` // 0 = unlimited
	MaxConsecutiveLosses int `yaml:"max_consecutive_losses"`
	CooldownBars         int `yaml:"cooldown_bars"` // penalty after the loss streak is hit
}

// TimeConfig configures calendar and duration gating.
type TimeConfig struct {
	ExcludedHours    []int `yaml:"excluded_hours"`    // UTC hours with no new entries
	ExcludedWeekdays []int `yaml:"excluded_weekdays"` // time.Weekday values
	SessionEndHour   *int  `yaml:"session_end_hour"`  // force close at this UTC hour; nil disables
	CloseAtWeekEnd   bool  `yaml:"close_at_week_end"`
	MaxBarsInTrade   int   `yaml:"max_bars_in_trade"` // 0 = unlimited
}

// TrendFilterConfig vetoes entries against the moving average.
type TrendFilterConfig struct {
	Enabled  bool `yaml:"enabled"`
	MAPeriod int  `yaml:"ma_period"`
	UseEMA   bool `yaml:"use_ema"`
}

// VolatilityFilterConfig requires the ATR percentile rank inside a band.
type VolatilityFilterConfig struct {
	Enabled   bool    `yaml:"enabled"`
	ATRPeriod int     `yaml:"atr_period"`
	Lookback  int     `yaml:"lookback"`
	MinRank   float64 `yaml:"min_rank"`
	MaxRank   float64 `yaml:"max_rank"`
}

// VolumeFilterConfig requires the volume percentile rank above a floor.
type VolumeFilterConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Lookback int     `yaml:"lookback"`
	MinRank  float64 `yaml:"min_rank"`
}

// MomentumFilterConfig requires rate-of-change in the trade direction.
type MomentumFilterConfig struct {
	Enabled bool    `yaml:"enabled"`
	Period  int     `yaml:"period"`
	MinAbs  float64 `yaml:"min_abs"` // minimum |ROC| as a fraction
}

// RangeFilterConfig requires the trailing window's price range width inside
// a band, as a fraction of the current close.
type RangeFilterConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Lookback    int     `yaml:"lookback"`
	MinWidthPct float64 `yaml:"min_width_pct"`
	MaxWidthPct float64 `yaml:"max_width_pct"` // 0 = no ceiling
}

// FilterConfig toggles the market filters. All enabled filters must pass.
type FilterConfig struct {
	Trend      TrendFilterConfig      `yaml:"trend"`
	Volatility VolatilityFilterConfig `yaml:"volatility"`
	Volume     VolumeFilterConfig     `yaml:"volume"`
	Momentum   MomentumFilterConfig   `yaml:"momentum"`
	Range      RangeFilterConfig      `yaml:"range"`
}

// HTFFilterConfig is one higher-timeframe gate.
type HTFFilterConfig struct {
	Timeframe Timeframe     `yaml:"timeframe"`
	Kind      HTFFilterKind `yaml:"kind"`
	Period    int           `yaml:"period"`
	Direction string        `yaml:"direction"` // trend_ma: "above" | "below"
	Lookback  int           `yaml:"lookback"`  // ema_direction slope window
	Min       float64       `yaml:"min"`       // rsi_range bounds
	Max       float64       `yaml:"max"`
}

// DCAConfig pre-schedules safety orders at increasing adverse deviations.
type DCAConfig struct {
	SafetyOrders      int     `yaml:"safety_orders"` // 0 disables
	PriceDeviationPct float64 `yaml:"price_deviation_pct"`
	VolumeScale       float64 `yaml:"volume_scale"` // size multiplier per order
	StepScale         float64 `yaml:"step_scale"`   // deviation multiplier per order
	Linear            bool    `yaml:"linear"`       // linear instead of geometric deviations
}

// ScaleInLevelConfig is one (price offset, size portion) pair fixed at
// signal time.
type ScaleInLevelConfig struct {
	OffsetPct float64 `yaml:"offset_pct"` // adverse offset from the base entry
	Portion   float64 `yaml:"portion"`    // fraction of the base size
}

// ScaleInConfig configures fixed-level scale-in entries.
type ScaleInConfig struct {
	Levels []ScaleInLevelConfig `yaml:"levels"`
}

// SimulationConfig enumerates every recognized engine option. It is
// validated once before the loop starts; inconsistent combinations are
// rejected there, never discovered mid-run.
type SimulationConfig struct {
	Symbol         string  `yaml:"symbol"`
	BaseTimeframe  Timeframe `yaml:"base_timeframe"`
	InitialCapital float64 `yaml:"initial_capital"`
	Leverage       float64 `yaml:"leverage"`
	CommissionRate float64 `yaml:"commission_rate"` // fraction of traded notional per fill

	AllowLong  bool `yaml:"allow_long"`
	AllowShort bool `yaml:"allow_short"`
	HedgeMode  bool `yaml:"hedge_mode"`
	Pyramiding int  `yaml:"pyramiding"` // max same-direction entries; 0 means 1

	CloseOrder CloseOrder `yaml:"close_order"`
	TieBreak   TieBreak   `yaml:"tie_break"`

	// MaxGapBars is the largest tolerated gap between consecutive bars,
	// expressed in base-timeframe bars. 0 disables the check.
	MaxGapBars int `yaml:"max_gap_bars"`

	Stop       StopConfig       `yaml:"stop"`
	TakeProfit TakeProfitConfig `yaml:"take_profit"`
	Trailing   TrailingConfig   `yaml:"trailing"`
	Breakeven  BreakevenConfig  `yaml:"breakeven"`
	Sizing     SizingConfig     `yaml:"sizing"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Funding    FundingConfig    `yaml:"funding"`
	ReEntry    ReEntryConfig    `yaml:"re_entry"`
	Time       TimeConfig       `yaml:"time"`
	Filters    FilterConfig     `yaml:"filters"`
	DCA        DCAConfig        `yaml:"dca"`
	ScaleIn    ScaleInConfig    `yaml:"scale_in"`
	MTF        []HTFFilterConfig `yaml:"mtf"`

	// FailFast aborts on numeric degeneracy instead of skipping the bar.
	// Intended for property testing.
	FailFast bool `yaml:"fail_fast"`
}

// DefaultConfig returns a runnable baseline: long-only market entries,
// fixed fractional sizing, no exits beyond signals.
func DefaultConfig(symbol string) SimulationConfig {
	return SimulationConfig{
		Symbol:         symbol,
		BaseTimeframe:  TF1h,
		InitialCapital: 10_000,
		Leverage:       1,
		AllowLong:      true,
		CloseOrder:     CloseFIFO,
		TieBreak:       TieBreakStopFirst,
		Sizing: SizingConfig{
			Mode:           SizingFixed,
			EquityFraction: 0.1,
			MinFraction:    0.01,
			MaxFraction:    1.0,
		},
		Execution: ExecutionConfig{Order: OrderMarket},
	}
}
