// Package indicator computes technical indicator series over one bar
// sequence and caches them by name. A Cache is scoped to a single run and
// must not be shared across concurrent runs.
package indicator

import (
	"fmt"
	"math"

	"tradesim-lab/internal/domain"
)

// Cache computes indicator series lazily and memoizes them. All series are
// index-aligned with the bar sequence; warmup positions hold NaN.
type Cache struct {
	bars   []domain.Bar
	closes []float64
	series map[string][]float64
}

// New creates a Cache over the given bars.
func New(bars []domain.Bar) *Cache {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return &Cache{
		bars:   bars,
		closes: closes,
		series: make(map[string][]float64),
	}
}

// Closes returns the close price series.
func (c *Cache) Closes() []float64 { return c.closes }

// Len returns the number of bars the cache was built from.
func (c *Cache) Len() int { return len(c.bars) }

func (c *Cache) memo(key string, compute func() []float64) []float64 {
	if s, ok := c.series[key]; ok {
		return s
	}
	s := compute()
	c.series[key] = s
	return s
}

// SMA returns the simple moving average of closes over period.
func (c *Cache) SMA(period int) []float64 {
	return c.memo(fmt.Sprintf("sma_%d", period), func() []float64 {
		out := nanSeries(len(c.closes))
		if period <= 0 {
			return out
		}
		sum := 0.0
		for i, v := range c.closes {
			sum += v
			if i >= period {
				sum -= c.closes[i-period]
			}
			if i >= period-1 {
				out[i] = sum / float64(period)
			}
		}
		return out
	})
}

// EMA returns the exponential moving average of closes over period, seeded
// with the SMA of the first period closes.
func (c *Cache) EMA(period int) []float64 {
	return c.memo(fmt.Sprintf("ema_%d", period), func() []float64 {
		out := nanSeries(len(c.closes))
		if period <= 0 || len(c.closes) < period {
			return out
		}
		sum := 0.0
		for i := 0; i < period; i++ {
			sum += c.closes[i]
		}
		prev := sum / float64(period)
		out[period-1] = prev
		k := 2.0 / float64(period+1)
		for i := period; i < len(c.closes); i++ {
			prev = (c.closes[i]-prev)*k + prev
			out[i] = prev
		}
		return out
	})
}

// RSI returns the Wilder-smoothed relative strength index over period.
func (c *Cache) RSI(period int) []float64 {
	return c.memo(fmt.Sprintf("rsi_%d", period), func() []float64 {
		out := nanSeries(len(c.closes))
		if period <= 0 || len(c.closes) < period+1 {
			return out
		}
		var avgGain, avgLoss float64
		for i := 1; i <= period; i++ {
			change := c.closes[i] - c.closes[i-1]
			if change > 0 {
				avgGain += change
			} else {
				avgLoss -= change
			}
		}
		avgGain /= float64(period)
		avgLoss /= float64(period)
		out[period] = rsiValue(avgGain, avgLoss)
		for i := period + 1; i < len(c.closes); i++ {
			change := c.closes[i] - c.closes[i-1]
			gain, loss := 0.0, 0.0
			if change > 0 {
				gain = change
			} else {
				loss = -change
			}
			avgGain = (avgGain*float64(period-1) + gain) / float64(period)
			avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
			out[i] = rsiValue(avgGain, avgLoss)
		}
		return out
	})
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

// ATR returns the Wilder-smoothed average true range over period.
func (c *Cache) ATR(period int) []float64 {
	return c.memo(fmt.Sprintf("atr_%d", period), func() []float64 {
		out := nanSeries(len(c.bars))
		if period <= 0 || len(c.bars) < period+1 {
			return out
		}
		tr := make([]float64, len(c.bars))
		tr[0] = c.bars[0].High - c.bars[0].Low
		for i := 1; i < len(c.bars); i++ {
			tr[i] = trueRange(c.bars[i], c.bars[i-1].Close)
		}
		sum := 0.0
		for i := 1; i <= period; i++ {
			sum += tr[i]
		}
		prev := sum / float64(period)
		out[period] = prev
		for i := period + 1; i < len(c.bars); i++ {
			prev = (prev*float64(period-1) + tr[i]) / float64(period)
			out[i] = prev
		}
		return out
	})
}

func trueRange(b domain.Bar, prevClose float64) float64 {
	tr := b.High - b.Low
	if hc := math.Abs(b.High - prevClose); hc > tr {
		tr = hc
	}
	if lc := math.Abs(b.Low - prevClose); lc > tr {
		tr = lc
	}
	return tr
}

// Momentum returns the rate of change of closes over period as a fraction.
func (c *Cache) Momentum(period int) []float64 {
	return c.memo(fmt.Sprintf("mom_%d", period), func() []float64 {
		out := nanSeries(len(c.closes))
		if period <= 0 {
			return out
		}
		for i := period; i < len(c.closes); i++ {
			base := c.closes[i-period]
			if base != 0 {
				out[i] = (c.closes[i] - base) / base
			}
		}
		return out
	})
}

// VolatilityRank returns, per bar, the percentile rank (0..1) of the current
// ATR(period)/close ratio within the trailing lookback window.
func (c *Cache) VolatilityRank(period, lookback int) []float64 {
	return c.memo(fmt.Sprintf("volrank_%d_%d", period, lookback), func() []float64 {
		atr := c.ATR(period)
		ratio := nanSeries(len(atr))
		for i := range atr {
			if !math.IsNaN(atr[i]) && c.closes[i] != 0 {
				ratio[i] = atr[i] / c.closes[i]
			}
		}
		return percentileRank(ratio, lookback)
	})
}

// VolumeRank returns, per bar, the percentile rank (0..1) of the bar's
// volume within the trailing lookback window.
func (c *Cache) VolumeRank(lookback int) []float64 {
	return c.memo(fmt.Sprintf("volumerank_%d", lookback), func() []float64 {
		vols := make([]float64, len(c.bars))
		for i, b := range c.bars {
			vols[i] = b.Volume
		}
		return percentileRank(vols, lookback)
	})
}

// percentileRank computes the fraction of trailing window values that are
// strictly below the current value. NaN inputs yield NaN outputs.
func percentileRank(values []float64, lookback int) []float64 {
	out := nanSeries(len(values))
	if lookback <= 1 {
		return out
	}
	for i := lookback - 1; i < len(values); i++ {
		cur := values[i]
		if math.IsNaN(cur) {
			continue
		}
		below, total := 0, 0
		for j := i - lookback + 1; j <= i; j++ {
			if math.IsNaN(values[j]) {
				continue
			}
			total++
			if values[j] < cur {
				below++
			}
		}
		if total > 1 {
			out[i] = float64(below) / float64(total-1)
		} else {
			out[i] = 0
		}
	}
	return out
}

func nanSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
