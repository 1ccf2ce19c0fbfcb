package reporting

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// RenderMarkdown renders a report as a Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Simulation Report: %s %s\n\n", r.Symbol, r.Timeframe))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	sb.WriteString("## Data Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Bars | %d |\n", r.BarCount))
	sb.WriteString(fmt.Sprintf("| Range Start | %s |\n", time.UnixMilli(r.DateRangeStart).UTC().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("| Range End | %s |\n", time.UnixMilli(r.DateRangeEnd).UTC().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("| Runs | %d |\n", len(r.Runs)))
	sb.WriteString("\n")

	sb.WriteString("## Results\n\n")
	if len(r.Runs) == 0 {
		sb.WriteString("No runs completed.\n\n")
	} else {
		sb.WriteString("| Run | Trades | Net PnL | Net % | Win Rate | PF | Sharpe | Sortino | Max DD % | Buy&Hold % | Open | Early Stop |\n")
		sb.WriteString("|-----|--------|---------|-------|----------|----|--------|---------|----------|------------|------|------------|\n")
		for _, row := range r.Runs {
			early := ""
			if row.TerminatedEarly {
				early = "yes"
			}
			sb.WriteString(fmt.Sprintf("| %s | %d | %.2f | %.2f%% | %.1f%% | %s | %.3f | %.3f | %.2f%% | %.2f%% | %d | %s |\n",
				shortRunID(row.RunID),
				row.TotalTrades,
				row.NetPnL,
				row.NetPnLPct*100,
				row.WinRate*100,
				formatPF(row.ProfitFactor),
				row.Sharpe,
				row.Sortino,
				row.MaxDrawdownPct*100,
				row.BuyHoldReturn*100,
				row.OpenPositions,
				early,
			))
		}
		sb.WriteString("\n")
	}

	if len(r.Diagnostics) > 0 {
		sb.WriteString("## Diagnostics\n\n")
		for _, d := range r.Diagnostics {
			sb.WriteString(fmt.Sprintf("- %s\n", d))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// formatPF renders a profit factor; an all-winning run has no losses.
func formatPF(pf float64) string {
	if math.IsInf(pf, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", pf)
}
