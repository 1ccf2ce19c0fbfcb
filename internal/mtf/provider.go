// Package mtf synchronizes higher-timeframe indicator context into the
// base-timeframe loop. For each configured timeframe it tracks the most
// recently closed HTF bar as of the current base bar — never a still-forming
// one — and evaluates the configured HTF filter predicates against it.
package mtf

import (
	"errors"
	"fmt"
	"math"

	"tradesim-lab/internal/domain"
	"tradesim-lab/internal/indicator"
)

// Provider errors.
var (
	ErrMissingSeries    = errors.New("htf bar series missing for configured timeframe")
	ErrUnknownPredicate = errors.New("unknown htf filter predicate")
	ErrUnknownTimeframe = errors.New("unknown timeframe")
)

type htfContext struct {
	filter domain.HTFFilterConfig
	bars   []domain.Bar
	cache  *indicator.Cache
	// lastClosed[i] is the index of the last fully closed HTF bar as of
	// base bar i, or -1 when none has closed yet.
	lastClosed []int
}

// Provider evaluates HTF filters for one run. Build it once per run; it is
// not safe for concurrent runs.
type Provider struct {
	contexts []htfContext
	cursor   int
}

// NewProvider aligns each configured HTF series against the base bars.
// Alignment is right-edged: an HTF bar is visible from the first base bar
// whose open time is at or past the HTF bar's close time.
func NewProvider(baseBars []domain.Bar, filters []domain.HTFFilterConfig, htfBars map[domain.Timeframe][]domain.Bar) (*Provider, error) {
	p := &Provider{}
	for _, f := range filters {
		series, ok := htfBars[f.Timeframe]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingSeries, f.Timeframe)
		}
		dur := f.Timeframe.DurationMs()
		if dur == 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTimeframe, f.Timeframe)
		}
		ctx := htfContext{
			filter:     f,
			bars:       series,
			cache:      indicator.New(series),
			lastClosed: make([]int, len(baseBars)),
		}
		j := -1
		for i, b := range baseBars {
			for j+1 < len(series) && series[j+1].TimestampMs+dur <= b.TimestampMs {
				j++
			}
			ctx.lastClosed[i] = j
		}
		p.contexts = append(p.contexts, ctx)
	}
	return p, nil
}

// Refresh advances the provider to the given base bar. The alignment is
// precomputed, so this only moves the cursor; it exists to keep the per-bar
// resolution order explicit in the loop.
func (p *Provider) Refresh(barIndex int) {
	p.cursor = barIndex
}

// Allow evaluates every configured HTF filter at the current base bar for an
// entry on side. A filter without a closed HTF bar yet fails closed.
func (p *Provider) Allow(side domain.Side) (bool, string) {
	for i := range p.contexts {
		ctx := &p.contexts[i]
		idx := ctx.lastClosed[p.cursor]
		if idx < 0 {
			return false, fmt.Sprintf("htf %s: no closed bar", ctx.filter.Timeframe)
		}
		ok, err := evalPredicate(ctx, idx, side)
		if err != nil || !ok {
			return false, fmt.Sprintf("htf %s %s", ctx.filter.Timeframe, ctx.filter.Kind)
		}
	}
	return true, ""
}

func evalPredicate(ctx *htfContext, idx int, side domain.Side) (bool, error) {
	f := ctx.filter
	switch f.Kind {
	case domain.HTFTrendMA:
		ma := ctx.cache.SMA(f.Period)[idx]
		if math.IsNaN(ma) {
			return false, nil
		}
		close := ctx.bars[idx].Close
		if f.Direction == "below" {
			return close < ma, nil
		}
		return close > ma, nil
	case domain.HTFEMADirection:
		ema := ctx.cache.EMA(f.Period)
		lb := f.Lookback
		if lb <= 0 {
			lb = 1
		}
		if idx-lb < 0 {
			return false, nil
		}
		cur, prev := ema[idx], ema[idx-lb]
		if math.IsNaN(cur) || math.IsNaN(prev) {
			return false, nil
		}
		if side == domain.SideLong {
			return cur > prev, nil
		}
		return cur < prev, nil
	case domain.HTFRSIRange:
		rsi := ctx.cache.RSI(f.Period)[idx]
		if math.IsNaN(rsi) {
			return false, nil
		}
		return rsi >= f.Min && rsi <= f.Max, nil
	default:
		return false, ErrUnknownPredicate
	}
}

// LastClosedIndex exposes the visible HTF bar index for filter n at the
// current base bar. Intended for tests.
func (p *Provider) LastClosedIndex(n int) int {
	return p.contexts[n].lastClosed[p.cursor]
}
