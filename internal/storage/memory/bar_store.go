package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tradesim-lab/internal/domain"
	"tradesim-lab/internal/storage"
)

// BarStore is an in-memory implementation of storage.BarStore.
type BarStore struct {
	mu   sync.RWMutex
	data map[string][]domain.Bar // keyed by symbol|timeframe, kept sorted
}

// NewBarStore creates a new in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{
		data: make(map[string][]domain.Bar),
	}
}

func barKey(symbol string, tf domain.Timeframe) string {
	return fmt.Sprintf("%s|%s", symbol, tf)
}

// InsertBulk adds multiple bars. Fails entire batch on any duplicate timestamp.
func (s *BarStore) InsertBulk(_ context.Context, symbol string, tf domain.Timeframe, bars []domain.Bar) error {
	if symbol == "" || tf == "" {
		return storage.ErrInvalidInput
	}
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := barKey(symbol, tf)
	existing := make(map[int64]struct{}, len(s.data[key]))
	for _, b := range s.data[key] {
		existing[b.TimestampMs] = struct{}{}
	}

	// First pass: check for duplicates (existing + intra-batch)
	batchKeys := make(map[int64]struct{}, len(bars))
	for _, b := range bars {
		if _, exists := existing[b.TimestampMs]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[b.TimestampMs]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[b.TimestampMs] = struct{}{}
	}

	s.data[key] = append(s.data[key], bars...)
	sort.Slice(s.data[key], func(i, j int) bool {
		return s.data[key][i].TimestampMs < s.data[key][j].TimestampMs
	})
	return nil
}

// GetRange retrieves bars within [start, end] (inclusive), ordered by timestamp ASC.
func (s *BarStore) GetRange(_ context.Context, symbol string, tf domain.Timeframe, start, end int64) ([]domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Bar
	for _, b := range s.data[barKey(symbol, tf)] {
		if b.TimestampMs >= start && b.TimestampMs <= end {
			result = append(result, b)
		}
	}
	return result, nil
}

// GetAll retrieves every bar for the symbol/timeframe, ordered by timestamp ASC.
func (s *BarStore) GetAll(_ context.Context, symbol string, tf domain.Timeframe) ([]domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.data[barKey(symbol, tf)]
	result := make([]domain.Bar, len(src))
	copy(result, src)
	return result, nil
}

var _ storage.BarStore = (*BarStore)(nil)
