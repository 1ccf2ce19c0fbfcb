package verification

import (
	"context"
	"errors"
	"fmt"

	"tradesim-lab/internal/domain"
	"tradesim-lab/internal/engine"
	"tradesim-lab/internal/runid"
	"tradesim-lab/internal/storage"
)

// ErrRunNotFound is returned when the run ID doesn't exist in storage.
var ErrRunNotFound = errors.New("run not found")

// ReplayVerifier re-executes a stored run from its configuration and input
// data and compares the outcome field by field.
type ReplayVerifier struct {
	resultStore storage.ResultStore
	tradeStore  storage.TradeStore
}

// NewReplayVerifier creates a ReplayVerifier.
func NewReplayVerifier(resultStore storage.ResultStore, tradeStore storage.TradeStore) *ReplayVerifier {
	return &ReplayVerifier{resultStore: resultStore, tradeStore: tradeStore}
}

// VerifyRun replays cfg over bars and compares against the stored run. The
// caller supplies the same inputs the original run used; a diverging run ID
// means they did not.
func (v *ReplayVerifier) VerifyRun(ctx context.Context, storedRunID string, cfg domain.SimulationConfig, bars []domain.Bar, signals domain.SignalSet, htf map[domain.Timeframe][]domain.Bar) (*VerificationResult, error) {
	stored, err := v.resultStore.GetByRunID(ctx, storedRunID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	if v.tradeStore != nil {
		trades, err := v.tradeStore.GetByRunID(ctx, storedRunID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("load stored trades: %w", err)
		}
		stored.Trades = trades
	}

	eng, err := engine.New(cfg, bars, signals, htf)
	if err != nil {
		return nil, fmt.Errorf("rebuild engine: %w", err)
	}
	replayed, err := eng.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay run: %w", err)
	}
	replayed.RunID, err = runid.Compute(&cfg, bars)
	if err != nil {
		return nil, err
	}

	div := CompareResults(stored, replayed)
	div = append(div, CheckInvariants(replayed, bars)...)

	return &VerificationResult{
		RunID:       storedRunID,
		Match:       len(div) == 0,
		Divergences: div,
	}, nil
}
