// Package verification re-executes stored runs and checks the invariants a
// correct simulation must hold: determinism under replay, the equity
// identity, and fill-price containment inside bar ranges.
package verification

import (
	"fmt"
	"math"

	"tradesim-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string
	Expected interface{}
	Actual   interface{}
}

// VerificationResult contains the outcome of verifying one run.
type VerificationResult struct {
	RunID       string
	Match       bool
	Divergences []FieldDivergence
}

// CompareResults compares a stored run against a replayed one and returns
// divergences. Uses FloatTolerance for float64 comparisons.
func CompareResults(stored, replayed *domain.SimulationResult) []FieldDivergence {
	var div []FieldDivergence
	diff := func(field string, expected, actual interface{}) {
		div = append(div, FieldDivergence{Field: field, Expected: expected, Actual: actual})
	}

	if stored.RunID != replayed.RunID {
		diff("RunID", stored.RunID, replayed.RunID)
	}
	if !floatEquals(stored.FinalCapital, replayed.FinalCapital) {
		diff("FinalCapital", stored.FinalCapital, replayed.FinalCapital)
	}
	if stored.TerminatedEarly != replayed.TerminatedEarly {
		diff("TerminatedEarly", stored.TerminatedEarly, replayed.TerminatedEarly)
	}
	if stored.BarsProcessed != replayed.BarsProcessed {
		diff("BarsProcessed", stored.BarsProcessed, replayed.BarsProcessed)
	}
	if len(stored.Trades) != len(replayed.Trades) {
		diff("Trades", len(stored.Trades), len(replayed.Trades))
		return div
	}

	for i := range stored.Trades {
		s, r := &stored.Trades[i], &replayed.Trades[i]
		prefix := fmt.Sprintf("Trades[%d].", i)
		if s.Side != r.Side {
			diff(prefix+"Side", s.Side, r.Side)
		}
		if s.EntryBar != r.EntryBar {
			diff(prefix+"EntryBar", s.EntryBar, r.EntryBar)
		}
		if s.ExitBar != r.ExitBar {
			diff(prefix+"ExitBar", s.ExitBar, r.ExitBar)
		}
		if !floatEquals(s.AvgEntry, r.AvgEntry) {
			diff(prefix+"AvgEntry", s.AvgEntry, r.AvgEntry)
		}
		if !floatEquals(s.AvgExit, r.AvgExit) {
			diff(prefix+"AvgExit", s.AvgExit, r.AvgExit)
		}
		if !floatEquals(s.Size, r.Size) {
			diff(prefix+"Size", s.Size, r.Size)
		}
		if !floatEquals(s.NetPnL, r.NetPnL) {
			diff(prefix+"NetPnL", s.NetPnL, r.NetPnL)
		}
		if s.ExitReason != r.ExitReason {
			diff(prefix+"ExitReason", s.ExitReason, r.ExitReason)
		}
	}
	return div
}

// CheckInvariants validates structural invariants of a result against its
// source bars. Every violation is one divergence entry.
func CheckInvariants(res *domain.SimulationResult, bars []domain.Bar) []FieldDivergence {
	var div []FieldDivergence
	diff := func(field string, expected, actual interface{}) {
		div = append(div, FieldDivergence{Field: field, Expected: expected, Actual: actual})
	}

	// Equity identity: every sample equals initial + realized + unrealized,
	// where the stored Realized is already net of fees and funding.
	for i, s := range res.Equity {
		want := res.InitialCapital + s.Realized + s.Unrealized
		if !floatEquals(s.Equity, want) {
			diff(fmt.Sprintf("Equity[%d].Equity", i), want, s.Equity)
		}
	}

	// Fill prices stay inside the range of their bar.
	checkTrades := func(trades []domain.Trade, label string) {
		for ti, t := range trades {
			for fi, f := range t.Fills {
				if f.BarIndex < 0 || f.BarIndex >= len(bars) {
					diff(fmt.Sprintf("%s[%d].Fills[%d].BarIndex", label, ti, fi), "in range", f.BarIndex)
					continue
				}
				b := bars[f.BarIndex]
				if f.Price < b.Low-FloatTolerance || f.Price > b.High+FloatTolerance {
					diff(fmt.Sprintf("%s[%d].Fills[%d].Price", label, ti, fi),
						fmt.Sprintf("[%v, %v]", b.Low, b.High), f.Price)
				}
			}
			// Fills and bar indices are chronological inside a trade.
			for fi := 1; fi < len(t.Fills); fi++ {
				if t.Fills[fi].BarIndex < t.Fills[fi-1].BarIndex {
					diff(fmt.Sprintf("%s[%d].Fills[%d].BarIndex order", label, ti, fi),
						t.Fills[fi-1].BarIndex, t.Fills[fi].BarIndex)
				}
			}
		}
	}
	checkTrades(res.Trades, "Trades")
	checkTrades(res.OpenTrades, "OpenTrades")

	// Closed trades never overlap their own side.
	lastExit := map[domain.Side]int{}
	for i, t := range res.Trades {
		if prev, ok := lastExit[t.Side]; ok && t.EntryBar < prev {
			diff(fmt.Sprintf("Trades[%d].EntryBar overlap", i), prev, t.EntryBar)
		}
		if t.ExitBar >= 0 {
			lastExit[t.Side] = t.ExitBar
		}
	}

	return div
}

// floatEquals compares floats within FloatTolerance. NaNs compare equal to
// each other.
func floatEquals(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return math.Abs(a-b) <= FloatTolerance
}
