package clickhouse

import (
	"context"
	"fmt"

	"tradesim-lab/internal/domain"
	"tradesim-lab/internal/storage"
)

// BarStore implements storage.BarStore using ClickHouse. Candle history is
// the one dataset large enough to warrant a columnar backend.
type BarStore struct {
	conn *Conn
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// InsertBulk adds multiple bars. Fails entire batch on duplicate
// (symbol, timeframe, timestamp_ms).
func (s *BarStore) InsertBulk(ctx context.Context, symbol string, tf domain.Timeframe, bars []domain.Bar) error {
	if symbol == "" || tf == "" {
		return storage.ErrInvalidInput
	}
	if len(bars) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[int64]struct{}, len(bars))
	for _, b := range bars {
		if _, exists := seen[b.TimestampMs]; exists {
			return storage.ErrDuplicateKey
		}
		seen[b.TimestampMs] = struct{}{}
	}

	// Check for duplicates against existing DB rows. MergeTree does not
	// enforce uniqueness at insert time.
	first, last := bars[0].TimestampMs, bars[len(bars)-1].TimestampMs
	existing, err := s.existingTimestamps(ctx, symbol, tf, first, last)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	for _, b := range bars {
		if _, exists := existing[b.TimestampMs]; exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ohlcv_bars (
			symbol, timeframe, timestamp_ms, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		err = batch.Append(
			symbol, string(tf), uint64(b.TimestampMs),
			b.Open, b.High, b.Low, b.Close, b.Volume,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetRange retrieves bars within [start, end] (inclusive), ordered by timestamp ASC.
func (s *BarStore) GetRange(ctx context.Context, symbol string, tf domain.Timeframe, start, end int64) ([]domain.Bar, error) {
	query := `
		SELECT timestamp_ms, open, high, low, close, volume
		FROM ohlcv_bars
		WHERE symbol = ? AND timeframe = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, string(tf), uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query bars by time range: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// GetAll retrieves every bar for the symbol/timeframe, ordered by timestamp ASC.
func (s *BarStore) GetAll(ctx context.Context, symbol string, tf domain.Timeframe) ([]domain.Bar, error) {
	query := `
		SELECT timestamp_ms, open, high, low, close, volume
		FROM ohlcv_bars
		WHERE symbol = ? AND timeframe = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, string(tf))
	if err != nil {
		return nil, fmt.Errorf("query all bars: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// existingTimestamps returns the stored timestamps inside [start, end].
func (s *BarStore) existingTimestamps(ctx context.Context, symbol string, tf domain.Timeframe, start, end int64) (map[int64]struct{}, error) {
	query := `
		SELECT timestamp_ms FROM ohlcv_bars
		WHERE symbol = ? AND timeframe = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
	`

	rows, err := s.conn.Query(ctx, query, symbol, string(tf), uint64(start), uint64(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]struct{})
	for rows.Next() {
		var ts uint64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out[int64(ts)] = struct{}{}
	}
	return out, rows.Err()
}

// chRows is the subset of driver.Rows the scanners need.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanBars(rows chRows) ([]domain.Bar, error) {
	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		var ts uint64
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.TimestampMs = int64(ts)
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bars: %w", err)
	}
	return bars, nil
}
