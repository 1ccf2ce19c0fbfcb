package domain

// Bar represents one OHLCV sample at a fixed timeframe.
// Bars are immutable once ingested; their sequence is the simulation clock.
type Bar struct {
	TimestampMs int64 // bar open time, UTC milliseconds
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

// Timeframe identifies a bar interval.
type Timeframe string

// Supported timeframes.
const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// DurationMs returns the timeframe length in milliseconds, or 0 for an
// unknown timeframe.
func (tf Timeframe) DurationMs() int64 {
	switch tf {
	case TF1m:
		return 60_000
	case TF5m:
		return 300_000
	case TF15m:
		return 900_000
	case TF30m:
		return 1_800_000
	case TF1h:
		return 3_600_000
	case TF4h:
		return 14_400_000
	case TF1d:
		return 86_400_000
	default:
		return 0
	}
}

// SignalSet holds per-bar boolean entry/exit signals, index-aligned 1:1 with
// the bar sequence.
type SignalSet struct {
	LongEntry  []bool
	LongExit   []bool
	ShortEntry []bool
	ShortExit  []bool
}

// Len returns the signal length, or -1 if the four arrays disagree.
func (s *SignalSet) Len() int {
	n := len(s.LongEntry)
	if len(s.LongExit) != n || len(s.ShortEntry) != n || len(s.ShortExit) != n {
		return -1
	}
	return n
}
