package memory

import (
	"context"
	"sort"
	"sync"

	"tradesim-lab/internal/domain"
	"tradesim-lab/internal/storage"
)

// ResultStore is an in-memory implementation of storage.ResultStore.
type ResultStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SimulationResult // keyed by run_id
}

// NewResultStore creates a new in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		data: make(map[string]*domain.SimulationResult),
	}
}

// Insert persists a finished run. Returns ErrDuplicateKey if run_id exists.
func (s *ResultStore) Insert(_ context.Context, res *domain.SimulationResult) error {
	if res == nil || res.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[res.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *res
	s.data[res.RunID] = &cp
	return nil
}

// GetByRunID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *ResultStore) GetByRunID(_ context.Context, runID string) (*domain.SimulationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	cp := *res
	return &cp, nil
}

// GetBySymbol retrieves all runs for a symbol, newest first by last equity
// sample.
func (s *ResultStore) GetBySymbol(_ context.Context, symbol string) ([]*domain.SimulationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SimulationResult
	for _, res := range s.data {
		if res.Symbol == symbol {
			cp := *res
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return lastTs(result[i]) > lastTs(result[j])
	})
	return result, nil
}

func lastTs(res *domain.SimulationResult) int64 {
	if n := len(res.Equity); n > 0 {
		return res.Equity[n-1].TimestampMs
	}
	return 0
}

var _ storage.ResultStore = (*ResultStore)(nil)
