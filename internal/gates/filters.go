package gates

import (
	"math"

	"tradesim-lab/internal/domain"
	"tradesim-lab/internal/indicator"
)

// FilterBank evaluates the independently toggled market filters against the
// run's indicator cache. All enabled filters must pass for an entry to
// proceed.
type FilterBank struct {
	cfg   domain.FilterConfig
	cache *indicator.Cache
	bars  []domain.Bar
}

// NewFilterBank creates a FilterBank over one run's bars and cache.
func NewFilterBank(cfg domain.FilterConfig, bars []domain.Bar, cache *indicator.Cache) *FilterBank {
	return &FilterBank{cfg: cfg, cache: cache, bars: bars}
}

// Pass evaluates all enabled filters at barIndex for an entry on side.
// A filter whose indicator is still warming up fails closed.
func (f *FilterBank) Pass(barIndex int, side domain.Side) (bool, string) {
	if f.cfg.Trend.Enabled {
		if ok := f.trendPass(barIndex, side); !ok {
			return false, "trend filter"
		}
	}
	if f.cfg.Volatility.Enabled {
		c := f.cfg.Volatility
		rank := f.cache.VolatilityRank(c.ATRPeriod, c.Lookback)[barIndex]
		if math.IsNaN(rank) || rank < c.MinRank || rank > c.MaxRank {
			return false, "volatility filter"
		}
	}
	if f.cfg.Volume.Enabled {
		c := f.cfg.Volume
		rank := f.cache.VolumeRank(c.Lookback)[barIndex]
		if math.IsNaN(rank) || rank < c.MinRank {
			return false, "volume filter"
		}
	}
	if f.cfg.Momentum.Enabled {
		c := f.cfg.Momentum
		mom := f.cache.Momentum(c.Period)[barIndex]
		if math.IsNaN(mom) {
			return false, "momentum filter"
		}
		if side == domain.SideLong && mom < c.MinAbs {
			return false, "momentum filter"
		}
		if side == domain.SideShort && mom > -c.MinAbs {
			return false, "momentum filter"
		}
	}
	if f.cfg.Range.Enabled {
		if ok := f.rangePass(barIndex); !ok {
			return false, "range filter"
		}
	}
	return true, ""
}

func (f *FilterBank) trendPass(barIndex int, side domain.Side) bool {
	c := f.cfg.Trend
	var ma float64
	if c.UseEMA {
		ma = f.cache.EMA(c.MAPeriod)[barIndex]
	} else {
		ma = f.cache.SMA(c.MAPeriod)[barIndex]
	}
	if math.IsNaN(ma) {
		return false
	}
	close := f.bars[barIndex].Close
	if side == domain.SideLong {
		return close > ma
	}
	return close < ma
}

func (f *FilterBank) rangePass(barIndex int) bool {
	c := f.cfg.Range
	if barIndex < c.Lookback-1 || c.Lookback <= 0 {
		return false
	}
	hi := math.Inf(-1)
	lo := math.Inf(1)
	for i := barIndex - c.Lookback + 1; i <= barIndex; i++ {
		if f.bars[i].High > hi {
			hi = f.bars[i].High
		}
		if f.bars[i].Low < lo {
			lo = f.bars[i].Low
		}
	}
	close := f.bars[barIndex].Close
	if close <= 0 {
		return false
	}
	width := (hi - lo) / close
	if width < c.MinWidthPct {
		return false
	}
	if c.MaxWidthPct > 0 && width > c.MaxWidthPct {
		return false
	}
	return true
}
