package memory

import (
	"context"
	"sort"
	"sync"

	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/storage"
)

type seriesKey struct {
	assetID  string
	interval domain.Interval
}

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[seriesKey][]domain.Candle // sorted by timestamp
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[seriesKey][]domain.Candle),
	}
}

// InsertBulk adds candles. Fails entire batch on duplicate timestamp.
func (s *CandleStore) InsertBulk(_ context.Context, assetID string, interval domain.Interval, candles []domain.Candle) error {
	if assetID == "" || !interval.Valid() {
		return storage.ErrInvalidInput
	}
	if len(candles) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := seriesKey{assetID, interval}
	existing := s.data[key]

	seen := make(map[int64]struct{}, len(existing)+len(candles))
	for _, c := range existing {
		seen[c.Timestamp] = struct{}{}
	}
	for _, c := range candles {
		if err := c.Validate(); err != nil {
			return storage.ErrInvalidInput
		}
		if _, dup := seen[c.Timestamp]; dup {
			return storage.ErrDuplicateKey
		}
		seen[c.Timestamp] = struct{}{}
	}

	merged := make([]domain.Candle, 0, len(existing)+len(candles))
	merged = append(merged, existing...)
	merged = append(merged, candles...)
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	s.data[key] = merged
	return nil
}

// GetRange returns candles with open time in [from, to], ordered by timestamp ASC.
func (s *CandleStore) GetRange(_ context.Context, assetID string, interval domain.Interval, from, to int64) ([]domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.data[seriesKey{assetID, interval}]
	lo := sort.Search(len(series), func(i int) bool { return series[i].Timestamp >= from })
	hi := sort.Search(len(series), func(i int) bool { return series[i].Timestamp > to })
	if lo >= hi {
		return nil, nil
	}

	out := make([]domain.Candle, hi-lo)
	copy(out, series[lo:hi])
	return out, nil
}

// CountRange returns the number of candles over assetIDs in [from, to].
func (s *CandleStore) CountRange(ctx context.Context, assetIDs []string, interval domain.Interval, from, to int64) (int64, error) {
	var n int64
	for _, id := range assetIDs {
		candles, err := s.GetRange(ctx, id, interval, from, to)
		if err != nil {
			return 0, err
		}
		n += int64(len(candles))
	}
	return n, nil
}

// Verify interface compliance at compile time.
var _ storage.CandleStore = (*CandleStore)(nil)
