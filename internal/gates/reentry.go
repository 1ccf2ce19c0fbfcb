// Package gates holds the stateless-per-bar entry vetoes: trade-frequency
// and cooldown rules, calendar/session/duration rules, and the market
// filter bank. A veto is a normal "no trade this bar" outcome, never an
// error.
package gates

import (
	"tradesim-lab/internal/domain"
)

// EntryHistory is the snapshot of past trading activity a re-entry decision
// reads. The simulation loop owns and updates it; the governor never holds
// state across bars.
type EntryHistory struct {
	LastExitBar       int // -1 before any exit
	TradesToday       int
	TradesThisWeek    int
	ConsecutiveLosses int
	CooldownUntilBar  int // first bar allowed after a loss-streak penalty
}

// ReEntryGovernor vetoes candidate entries on trade-frequency grounds.
type ReEntryGovernor struct {
	cfg domain.ReEntryConfig
}

// NewReEntryGovernor creates a ReEntryGovernor.
func NewReEntryGovernor(cfg domain.ReEntryConfig) *ReEntryGovernor {
	return &ReEntryGovernor{cfg: cfg}
}

// Allow reports whether an entry at barIndex may proceed, with the veto
// reason when it may not.
func (g *ReEntryGovernor) Allow(barIndex int, h EntryHistory) (bool, string) {
	if g.cfg.DelayBars > 0 && h.LastExitBar >= 0 && barIndex-h.LastExitBar < g.cfg.DelayBars {
		return false, "re-entry delay"
	}
	if g.cfg.MaxTradesPerDay > 0 && h.TradesToday >= g.cfg.MaxTradesPerDay {
		return false, "daily trade cap"
	}
	if g.cfg.MaxTradesPerWeek > 0 && h.TradesThisWeek >= g.cfg.MaxTradesPerWeek {
		return false, "weekly trade cap"
	}
	if g.cfg.MaxConsecutiveLosses > 0 {
		if barIndex < h.CooldownUntilBar {
			return false, "loss-streak cooldown"
		}
		if h.ConsecutiveLosses >= g.cfg.MaxConsecutiveLosses {
			return false, "loss streak"
		}
	}
	return true, ""
}

// CooldownAfterStreak returns the first allowed bar after a loss streak hit
// at barIndex, or -1 when no cooldown penalty is configured.
func (g *ReEntryGovernor) CooldownAfterStreak(barIndex int) int {
	if g.cfg.CooldownBars <= 0 {
		return -1
	}
	return barIndex + g.cfg.CooldownBars
}
