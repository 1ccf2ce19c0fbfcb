package memory

import (
	"context"
	"sort"
	"sync"

	"tradesim-lab/internal/domain"
	"tradesim-lab/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string][]domain.Trade // keyed by run_id
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string][]domain.Trade),
	}
}

// InsertBulk adds a run's trades atomically. A second insert for the same
// run is a duplicate.
func (s *TradeStore) InsertBulk(_ context.Context, runID string, trades []domain.Trade) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[runID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := make([]domain.Trade, len(trades))
	copy(cp, trades)
	s.data[runID] = cp
	return nil
}

// GetByRunID retrieves all trades of a run, ordered by entry bar ASC.
func (s *TradeStore) GetByRunID(_ context.Context, runID string) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	result := make([]domain.Trade, len(src))
	copy(result, src)
	sort.Slice(result, func(i, j int) bool {
		return result[i].EntryBar < result[j].EntryBar
	})
	return result, nil
}

var _ storage.TradeStore = (*TradeStore)(nil)

// EquityStore is an in-memory implementation of storage.EquityStore.
type EquityStore struct {
	mu   sync.RWMutex
	data map[string][]domain.EquitySample // keyed by run_id
}

// NewEquityStore creates a new in-memory equity store.
func NewEquityStore() *EquityStore {
	return &EquityStore{
		data: make(map[string][]domain.EquitySample),
	}
}

// InsertBulk adds a run's equity samples. A second insert for the same run
// is a duplicate.
func (s *EquityStore) InsertBulk(_ context.Context, runID string, samples []domain.EquitySample) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[runID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := make([]domain.EquitySample, len(samples))
	copy(cp, samples)
	s.data[runID] = cp
	return nil
}

// GetByRunID retrieves a run's equity curve, ordered by timestamp ASC.
func (s *EquityStore) GetByRunID(_ context.Context, runID string) ([]domain.EquitySample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	result := make([]domain.EquitySample, len(src))
	copy(result, src)
	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})
	return result, nil
}

var _ storage.EquityStore = (*EquityStore)(nil)
