// Package metrics computes the aggregate performance bundle of a finished
// run from its closed trades and equity curve. Open positions are excluded
// from trade statistics.
package metrics

import (
	"math"

	"tradesim-lab/internal/domain"
)

// Compute fills res.Metrics in place. bars is the base series the run was
// executed over; it supplies the buy-and-hold benchmark.
func Compute(res *domain.SimulationResult, bars []domain.Bar) {
	m := domain.Metrics{}

	grossWin, grossLoss := 0.0, 0.0
	totalBars := 0
	for _, t := range res.Trades {
		m.TotalTrades++
		m.NetPnL += t.NetPnL
		m.TotalCommission += t.Commission
		m.TotalFunding += t.Funding
		if t.NetPnL > 0 {
			m.Wins++
			grossWin += t.NetPnL
		} else {
			m.Losses++
			grossLoss += -t.NetPnL
		}
		if t.ExitBar >= 0 {
			totalBars += t.ExitBar - t.EntryBar
		}
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.Wins) / float64(m.TotalTrades)
		m.AvgTradePnL = m.NetPnL / float64(m.TotalTrades)
		m.AvgBarsInTrade = float64(totalBars) / float64(m.TotalTrades)
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		m.ProfitFactor = math.Inf(1)
	}
	if res.InitialCapital > 0 {
		m.NetPnLPct = m.NetPnL / res.InitialCapital
	}

	m.MaxDrawdown, m.MaxDrawdownPct = maxDrawdown(res.Equity)
	m.Sharpe, m.Sortino = riskAdjusted(res.Equity)

	if len(bars) > 1 && bars[0].Close > 0 {
		m.BuyHoldReturn = bars[len(bars)-1].Close/bars[0].Close - 1
	}

	res.Metrics = m
}

// maxDrawdown scans the equity curve for the worst peak-to-trough fall, in
// quote currency and as a fraction of the peak.
func maxDrawdown(samples []domain.EquitySample) (float64, float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	peak := samples[0].Equity
	worst, worstPct := 0.0, 0.0
	for _, s := range samples {
		if s.Equity > peak {
			peak = s.Equity
		}
		dd := peak - s.Equity
		if dd > worst {
			worst = dd
		}
		if peak > 0 && dd/peak > worstPct {
			worstPct = dd / peak
		}
	}
	return worst, worstPct
}

// riskAdjusted computes per-bar Sharpe and Sortino ratios from the equity
// curve. Annualization is left to callers who know the bar duration.
func riskAdjusted(samples []domain.EquitySample) (sharpe, sortino float64) {
	if len(samples) < 3 {
		return 0, 0
	}
	returns := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		prev := samples[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, samples[i].Equity/prev-1)
	}
	if len(returns) < 2 {
		return 0, 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance, downVariance := 0.0, 0.0
	downN := 0
	for _, r := range returns {
		d := r - mean
		variance += d * d
		if r < 0 {
			downVariance += r * r
			downN++
		}
	}
	variance /= float64(len(returns) - 1)

	if sd := math.Sqrt(variance); sd > 0 {
		sharpe = mean / sd
	}
	if downN > 0 {
		if dsd := math.Sqrt(downVariance / float64(downN)); dsd > 0 {
			sortino = mean / dsd
		}
	}
	return sharpe, sortino
}
