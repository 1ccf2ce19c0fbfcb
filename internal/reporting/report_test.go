package reporting

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim-lab/internal/domain"
)

func reportFixture() *Report {
	bars := []domain.Bar{
		{TimestampMs: 1_700_000_000_000, Close: 100},
		{TimestampMs: 1_700_003_600_000, Close: 101},
	}
	results := []*domain.SimulationResult{
		{
			RunID:          "AbCdEfGhIjKlMn",
			InitialCapital: 10_000,
			Metrics: domain.Metrics{
				NetPnL:       120,
				NetPnLPct:    0.012,
				TotalTrades:  4,
				WinRate:      0.75,
				ProfitFactor: 2.5,
			},
			Diagnostics: []domain.Diagnostic{
				{BarIndex: 7, Code: domain.DiagOrderExpired, Detail: "long limit order from bar 5 expired"},
			},
		},
		nil, // failed variant, skipped
		{
			RunID:           "ZyXwVuTsRqPoNm",
			InitialCapital:  10_000,
			TerminatedEarly: true,
			OpenTrades:      []domain.Trade{{Side: domain.SideLong}},
			Metrics:         domain.Metrics{ProfitFactor: math.Inf(1)},
		},
	}
	return Build("BTCUSDT", domain.TF1h, bars, results)
}

func TestBuild(t *testing.T) {
	r := reportFixture()

	assert.Equal(t, "BTCUSDT", r.Symbol)
	assert.Equal(t, domain.TF1h, r.Timeframe)
	assert.Equal(t, 2, r.BarCount)
	assert.Equal(t, int64(1_700_000_000_000), r.DateRangeStart)
	assert.Equal(t, int64(1_700_003_600_000), r.DateRangeEnd)

	require.Len(t, r.Runs, 2, "nil results are skipped")
	assert.Equal(t, 4, r.Runs[0].TotalTrades)
	assert.Equal(t, 1, r.Runs[1].OpenPositions)
	assert.True(t, r.Runs[1].TerminatedEarly)

	require.Len(t, r.Diagnostics, 1)
	assert.Contains(t, r.Diagnostics[0], "AbCdEfGh")
	assert.Contains(t, r.Diagnostics[0], "bar 7")
	assert.Contains(t, r.Diagnostics[0], domain.DiagOrderExpired)
}

func TestRenderMarkdown(t *testing.T) {
	md := RenderMarkdown(reportFixture())

	assert.Contains(t, md, "# Simulation Report: BTCUSDT 1h")
	assert.Contains(t, md, "| Bars | 2 |")
	assert.Contains(t, md, "## Results")
	assert.Contains(t, md, "AbCdEfGh")
	assert.Contains(t, md, "| inf |", "infinite profit factor renders as inf")
	assert.Contains(t, md, "## Diagnostics")

	// Two header rows plus two run rows in the results table.
	assert.Equal(t, 2, strings.Count(md, "| yes |")+strings.Count(md, "|  |"),
		"one early-stopped run and one normal run")
}

func TestRenderMarkdown_NoRuns(t *testing.T) {
	md := RenderMarkdown(Build("BTCUSDT", domain.TF1h, nil, nil))
	assert.Contains(t, md, "No runs completed.")
}

func TestRenderRunsCSV(t *testing.T) {
	r := reportFixture()
	csv := RenderRunsCSV(r.Runs)

	lines := strings.Split(strings.TrimSpace(csv), "\n")
	require.Len(t, lines, 3) // header + 2 rows
	assert.True(t, strings.HasPrefix(lines[0], "run_id,total_trades,net_pnl"))
	assert.True(t, strings.HasPrefix(lines[1], "AbCdEfGhIjKlMn,4,120"))
	assert.Contains(t, lines[2], ",true")
}

func TestRenderTradesCSV(t *testing.T) {
	trades := []domain.Trade{
		{
			Side:        domain.SideLong,
			EntryBar:    1,
			ExitBar:     5,
			EntryTimeMs: 1000,
			ExitTimeMs:  5000,
			AvgEntry:    100,
			AvgExit:     105,
			Size:        10,
			RealizedPnL: 50,
			Commission:  2,
			NetPnL:      48,
			ExitReason:  domain.ReasonSignalExit,
		},
	}
	csv := RenderTradesCSV(trades)

	lines := strings.Split(strings.TrimSpace(csv), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "long,1,5,1000,5000"))
	assert.Contains(t, lines[1], "signal_exit")
}
