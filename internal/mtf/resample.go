package mtf

import (
	"fmt"

	"tradesim-lab/internal/domain"
)

// Resample aggregates base-timeframe bars into target-timeframe bars,
// bucketing by the target duration from the epoch. Partial trailing buckets
// are emitted; the provider's right-edge rule keeps them invisible until
// they close.
func Resample(bars []domain.Bar, target domain.Timeframe) ([]domain.Bar, error) {
	dur := target.DurationMs()
	if dur <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimeframe, target)
	}
	if len(bars) == 0 {
		return nil, nil
	}

	var out []domain.Bar
	var cur domain.Bar
	curStart := int64(-1)

	for _, b := range bars {
		start := b.TimestampMs - b.TimestampMs%dur
		if start != curStart {
			if curStart >= 0 {
				out = append(out, cur)
			}
			curStart = start
			cur = domain.Bar{
				TimestampMs: start,
				Open:        b.Open,
				High:        b.High,
				Low:         b.Low,
				Close:       b.Close,
				Volume:      b.Volume,
			}
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	out = append(out, cur)
	return out, nil
}
