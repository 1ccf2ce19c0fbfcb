// Package runid derives the deterministic identifier of a simulation run.
// Two runs over the same configuration and data window always share an ID,
// which is what result verification keys on.
package runid

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
	"gopkg.in/yaml.v3"

	"tradesim-lab/internal/domain"
)

// Compute returns the run ID for a configuration over a bar window.
// Formula: base58(SHA256(symbol|timeframe|firstTs|lastTs|barCount|configYAML)).
func Compute(cfg *domain.SimulationConfig, bars []domain.Bar) (string, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}

	firstTs, lastTs := int64(0), int64(0)
	if len(bars) > 0 {
		firstTs = bars[0].TimestampMs
		lastTs = bars[len(bars)-1].TimestampMs
	}

	data := fmt.Sprintf("%s|%s|%d|%d|%d|%s",
		cfg.Symbol,
		cfg.BaseTimeframe,
		firstTs,
		lastTs,
		len(bars),
		raw,
	)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:]), nil
}
