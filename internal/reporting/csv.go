package reporting

import (
	"fmt"
	"strings"

	"tradesim-lab/internal/domain"
)

// RenderRunsCSV renders run rows as a CSV string.
func RenderRunsCSV(rows []RunRow) string {
	var sb strings.Builder

	sb.WriteString("run_id,total_trades,net_pnl,net_pnl_pct,win_rate,profit_factor,")
	sb.WriteString("sharpe,sortino,max_drawdown_pct,buy_hold_return,avg_trade_pnl,")
	sb.WriteString("total_commission,total_funding,open_positions,terminated_early\n")

	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%d,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%d,%t\n",
			r.RunID,
			r.TotalTrades,
			r.NetPnL,
			r.NetPnLPct,
			r.WinRate,
			r.ProfitFactor,
			r.Sharpe,
			r.Sortino,
			r.MaxDrawdownPct,
			r.BuyHoldReturn,
			r.AvgTradePnL,
			r.TotalCommission,
			r.TotalFunding,
			r.OpenPositions,
			r.TerminatedEarly,
		))
	}

	return sb.String()
}

// RenderTradesCSV renders a run's closed trades as a CSV string.
func RenderTradesCSV(trades []domain.Trade) string {
	var sb strings.Builder

	sb.WriteString("side,entry_bar,exit_bar,entry_time_ms,exit_time_ms,avg_entry,avg_exit,")
	sb.WriteString("size,realized_pnl,commission,funding,net_pnl,exit_reason\n")

	for _, t := range trades {
		sb.WriteString(fmt.Sprintf("%s,%d,%d,%d,%d,%.8f,%.8f,%.8f,%.6f,%.6f,%.6f,%.6f,%s\n",
			t.Side,
			t.EntryBar,
			t.ExitBar,
			t.EntryTimeMs,
			t.ExitTimeMs,
			t.AvgEntry,
			t.AvgExit,
			t.Size,
			t.RealizedPnL,
			t.Commission,
			t.Funding,
			t.NetPnL,
			t.ExitReason,
		))
	}

	return sb.String()
}
