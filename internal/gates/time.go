package gates

import (
	"time"

	"tradesim-lab/internal/domain"
)

// TimeGovernor vetoes entries inside excluded hours/days and forces exits at
// session end, week end, and after a maximum holding duration.
type TimeGovernor struct {
	cfg domain.TimeConfig
}

// NewTimeGovernor creates a TimeGovernor.
func NewTimeGovernor(cfg domain.TimeConfig) *TimeGovernor {
	return &TimeGovernor{cfg: cfg}
}

// AllowEntry reports whether a new entry is permitted at the bar's
// timestamp.
func (g *TimeGovernor) AllowEntry(tsMs int64) (bool, string) {
	t := time.UnixMilli(tsMs).UTC()
	for _, h := range g.cfg.ExcludedHours {
		if t.Hour() == h {
			return false, "excluded hour"
		}
	}
	for _, d := range g.cfg.ExcludedWeekdays {
		if int(t.Weekday()) == d {
			return false, "excluded weekday"
		}
	}
	return true, ""
}

// ForceExit reports whether an open position must close on this bar.
// nextTsMs is the following bar's timestamp, or -1 on the last bar; the
// week-end rule closes on the final bar of a calendar week.
func (g *TimeGovernor) ForceExit(tsMs, nextTsMs int64, barsInTrade int) (bool, domain.FillReason) {
	if g.cfg.MaxBarsInTrade > 0 && barsInTrade >= g.cfg.MaxBarsInTrade {
		return true, domain.ReasonTimeExit
	}
	t := time.UnixMilli(tsMs).UTC()
	if g.cfg.SessionEndHour != nil && t.Hour() >= *g.cfg.SessionEndHour {
		return true, domain.ReasonSessionClose
	}
	if g.cfg.CloseAtWeekEnd && nextTsMs >= 0 {
		y1, w1 := t.ISOWeek()
		y2, w2 := time.UnixMilli(nextTsMs).UTC().ISOWeek()
		if y1 != y2 || w1 != w2 {
			return true, domain.ReasonSessionClose
		}
	}
	return false, ""
}
