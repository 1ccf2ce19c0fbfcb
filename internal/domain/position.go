package domain

import "fmt"

// Side is the direction of a position or fill.
type Side string

// Side constants.
const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// LotOrigin records which rule opened a lot.
type LotOrigin string

// Lot origin constants.
const (
	LotInitial LotOrigin = "initial"
	LotScaleIn LotOrigin = "scale_in"
	LotDCA     LotOrigin = "dca"
	LotPyramid LotOrigin = "pyramid"
)

// Lot is one entry tranche within a position.
type Lot struct {
	EntryPrice float64
	Size       float64 // asset units; reduced by partial closes
	BarIndex   int     // entry bar index
	Origin     LotOrigin
}

// FillReason records why an execution happened.
type FillReason string

// Fill reason constants. Take-profit levels use ReasonTPLevel(n).
const (
	ReasonEntry        FillReason = "entry"
	ReasonScaleIn      FillReason = "scale_in"
	ReasonDCA          FillReason = "dca"
	ReasonPyramid      FillReason = "pyramid"
	ReasonStopLoss     FillReason = "sl"
	ReasonTrailing     FillReason = "trailing"
	ReasonBreakeven    FillReason = "breakeven"
	ReasonSignalExit   FillReason = "signal_exit"
	ReasonTimeExit     FillReason = "time_exit"
	ReasonSessionClose FillReason = "session_close"
	ReasonEndOfData    FillReason = "end_of_data"
	ReasonBankruptcy   FillReason = "bankruptcy"
)

// ReasonTPLevel returns the fill reason for take-profit level n (1-based),
// e.g. "tp1".
func ReasonTPLevel(n int) FillReason {
	return FillReason(fmt.Sprintf("tp%d", n))
}

// Fill is an immutable record of one execution.
type Fill struct {
	BarIndex    int
	TimestampMs int64
	Side        Side    // side of the position the fill belongs to
	Price       float64 // actual fill price, slippage included
	Size        float64 // asset units executed
	Commission  float64 // quote currency
	Slippage    float64 // quote currency cost attributed to slippage
	Reason      FillReason
	IsEntry     bool
}

// Trade is one closed (or force-closed) position: the ordered list of its
// fills plus derived totals.
type Trade struct {
	Side        Side
	Fills       []Fill
	EntryBar    int
	ExitBar     int
	EntryTimeMs int64
	ExitTimeMs  int64
	AvgEntry    float64 // volume-weighted average entry price
	AvgExit     float64 // volume-weighted average exit price
	Size        float64 // total entered size, asset units
	RealizedPnL float64 // gross of fees
	Commission  float64
	Funding     float64
	NetPnL      float64 // realized - commission - funding
	ExitReason  FillReason
}
