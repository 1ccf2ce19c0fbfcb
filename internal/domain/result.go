package domain

// EquitySample is one per-bar snapshot of account state. Append-only.
type EquitySample struct {
	TimestampMs int64
	Equity      float64
	Realized    float64 // cumulative realized PnL, net of fees and funding
	Unrealized  float64 // open lots marked at the bar close
	Drawdown    float64 // equity peak - equity, quote currency
	RunUp       float64 // equity - equity trough since start
}

// Diagnostic records a recovered per-bar anomaly (skipped signal, non-finite
// computation). Diagnostics never terminate a run.
type Diagnostic struct {
	BarIndex    int
	TimestampMs int64
	Code        string
	Detail      string
}

// Diagnostic codes.
const (
	DiagNonFiniteSize  = "non_finite_size"
	DiagNonFinitePrice = "non_finite_price"
	DiagOrderExpired   = "order_expired"
)

// Metrics is the aggregate performance bundle of one run.
type Metrics struct {
	NetPnL          float64
	NetPnLPct       float64
	TotalTrades     int
	Wins            int
	Losses          int
	WinRate         float64
	ProfitFactor    float64
	Sharpe          float64 // per-bar returns, annualization left to callers
	Sortino         float64
	MaxDrawdown     float64 // quote currency
	MaxDrawdownPct  float64
	BuyHoldReturn   float64 // fractional return of holding from first to last bar
	AvgTradePnL     float64
	AvgBarsInTrade  float64
	TotalCommission float64
	TotalFunding    float64
}

// SimulationResult is the complete output of one engine run.
type SimulationResult struct {
	RunID           string
	Symbol          string
	InitialCapital  float64
	FinalCapital    float64
	Trades          []Trade
	OpenTrades      []Trade // positions still open at the last bar, marked there
	Equity          []EquitySample
	Metrics         Metrics
	Diagnostics     []Diagnostic
	TerminatedEarly bool // equity reached zero before the last bar
	BarsProcessed   int
}
