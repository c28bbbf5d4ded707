package clickhouse

import (
	"context"
	"fmt"
	"time"

	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// InsertBulk adds candles. Fails entire batch on duplicate (asset_id, interval, timestamp).
// MergeTree does not enforce uniqueness, so duplicates are checked before the insert.
func (s *CandleStore) InsertBulk(ctx context.Context, assetID string, interval domain.Interval, candles []domain.Candle) (err error) {
	if assetID == "" || !interval.Valid() {
		return storage.ErrInvalidInput
	}
	if len(candles) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("insert_candles", start, err) }(time.Now())

	// Check for intra-batch duplicates and bad rows
	seen := make(map[int64]struct{}, len(candles))
	minTs, maxTs := candles[0].Timestamp, candles[0].Timestamp
	for _, c := range candles {
		if c.Validate() != nil || c.Timestamp < 0 {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[c.Timestamp]; exists {
			return storage.ErrDuplicateKey
		}
		seen[c.Timestamp] = struct{}{}
		minTs = min(minTs, c.Timestamp)
		maxTs = max(maxTs, c.Timestamp)
	}

	// Check for duplicates against existing rows in one range scan
	existing, err := s.GetRange(ctx, assetID, interval, minTs, maxTs)
	if err != nil {
		return fmt.Errorf("check existing: %w", err)
	}
	for _, c := range existing {
		if _, dup := seen[c.Timestamp]; dup {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (asset_id, interval, timestamp, open, high, low, close, volume)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		err = batch.Append(
			assetID, string(interval), uint64(c.Timestamp),
			c.Open, c.High, c.Low, c.Close, c.Volume,
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

// GetRange returns candles with open time in [from, to], ordered by timestamp ASC.
func (s *CandleStore) GetRange(ctx context.Context, assetID string, interval domain.Interval, from, to int64) (_ []domain.Candle, err error) {
	if to < from || to < 0 {
		return nil, nil
	}
	from = max(from, 0)
	defer func(start time.Time) { observe("get_candles", start, err) }(time.Now())

	query := `
		SELECT timestamp, open, high, low, close, volume
		FROM candles
		WHERE asset_id = ? AND interval = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, assetID, string(interval), uint64(from), uint64(to))
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// CountRange returns the number of candles over assetIDs in [from, to].
func (s *CandleStore) CountRange(ctx context.Context, assetIDs []string, interval domain.Interval, from, to int64) (_ int64, err error) {
	if len(assetIDs) == 0 || to < from || to < 0 {
		return 0, nil
	}
	from = max(from, 0)
	defer func(start time.Time) { observe("count_candles", start, err) }(time.Now())

	query := `
		SELECT count(*)
		FROM candles
		WHERE asset_id IN ? AND interval = ? AND timestamp >= ? AND timestamp <= ?
	`

	var n uint64
	if err := s.conn.QueryRow(ctx, query, assetIDs, string(interval), uint64(from), uint64(to)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count candles: %w", err)
	}
	return int64(n), nil
}

// scanCandles scans multiple rows.
func scanCandles(rows chRows) ([]domain.Candle, error) {
	var candles []domain.Candle

	for rows.Next() {
		var c domain.Candle
		var ts uint64

		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		c.Timestamp = int64(ts)
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}
