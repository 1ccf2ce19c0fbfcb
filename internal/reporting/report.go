// Package reporting renders finished runs as Markdown and CSV.
package reporting

import (
	"fmt"
	"time"

	"tradesim-lab/internal/domain"
)

// Report is the renderable summary of one or more runs over a data window.
type Report struct {
	GeneratedAt time.Time
	Symbol      string
	Timeframe   domain.Timeframe

	// Data Summary
	BarCount       int
	DateRangeStart int64 // Unix ms
	DateRangeEnd   int64 // Unix ms

	// One row per run, input order preserved.
	Runs []RunRow

	// Diagnostics across all runs.
	Diagnostics []string
}

// RunRow is one run's metrics flattened for tabular rendering.
type RunRow struct {
	RunID           string
	NetPnL          float64
	NetPnLPct       float64
	TotalTrades     int
	WinRate         float64
	ProfitFactor    float64
	Sharpe          float64
	Sortino         float64
	MaxDrawdownPct  float64
	BuyHoldReturn   float64
	AvgTradePnL     float64
	TotalCommission float64
	TotalFunding    float64
	OpenPositions   int
	TerminatedEarly bool
}

// Build assembles a Report from results over their shared bar series.
func Build(symbol string, tf domain.Timeframe, bars []domain.Bar, results []*domain.SimulationResult) *Report {
	r := &Report{
		GeneratedAt: time.Now().UTC(),
		Symbol:      symbol,
		Timeframe:   tf,
		BarCount:    len(bars),
	}
	if len(bars) > 0 {
		r.DateRangeStart = bars[0].TimestampMs
		r.DateRangeEnd = bars[len(bars)-1].TimestampMs
	}
	for _, res := range results {
		if res == nil {
			continue
		}
		m := res.Metrics
		r.Runs = append(r.Runs, RunRow{
			RunID:           res.RunID,
			NetPnL:          m.NetPnL,
			NetPnLPct:       m.NetPnLPct,
			TotalTrades:     m.TotalTrades,
			WinRate:         m.WinRate,
			ProfitFactor:    m.ProfitFactor,
			Sharpe:          m.Sharpe,
			Sortino:         m.Sortino,
			MaxDrawdownPct:  m.MaxDrawdownPct,
			BuyHoldReturn:   m.BuyHoldReturn,
			AvgTradePnL:     m.AvgTradePnL,
			TotalCommission: m.TotalCommission,
			TotalFunding:    m.TotalFunding,
			OpenPositions:   len(res.OpenTrades),
			TerminatedEarly: res.TerminatedEarly,
		})
		for _, d := range res.Diagnostics {
			r.Diagnostics = append(r.Diagnostics,
				fmt.Sprintf("%s bar %d: %s (%s)", shortRunID(res.RunID), d.BarIndex, d.Code, d.Detail))
		}
	}
	return r
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
