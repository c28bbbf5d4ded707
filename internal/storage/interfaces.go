package storage

import (
	"context"

	"signal-replay-lab/internal/domain"
)

// CandleStore provides access to OHLCV candles. It satisfies causal.CandleSource.
type CandleStore interface {
	// InsertBulk adds candles for one asset and interval. Fails entire batch on
	// duplicate (asset_id, interval, timestamp) or on an invalid candle.
	InsertBulk(ctx context.Context, assetID string, interval domain.Interval, candles []domain.Candle) error

	// GetRange returns candles with open time in [from, to] (inclusive), ordered by timestamp ASC.
	GetRange(ctx context.Context, assetID string, interval domain.Interval, from, to int64) ([]domain.Candle, error)

	// CountRange returns the number of candles over several assets in [from, to].
	CountRange(ctx context.Context, assetIDs []string, interval domain.Interval, from, to int64) (int64, error)
}

// SignalStore provides access to signals (calls).
type SignalStore interface {
	// Insert adds a new signal. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, s *domain.Signal) error

	// InsertBulk adds multiple signals atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, signals []*domain.Signal) error

	// GetByID retrieves a signal by id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Signal, error)

	// GetByTimeRange retrieves signals created in [start, end), ordered by created_at ASC, id ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Signal, error)
}

// CatalogStore is the catalog index. Entries are content-addressed: an
// upsert of an id that already exists keeps the first record.
type CatalogStore interface {
	// FindSlice returns the slice record for id, or ErrNotFound.
	FindSlice(ctx context.Context, sliceID string) (*domain.SliceRecord, error)

	// UpsertSlice indexes a slice record.
	UpsertSlice(ctx context.Context, r *domain.SliceRecord) error

	// FindFeatures returns the features record for id, or ErrNotFound.
	FindFeatures(ctx context.Context, featuresID string) (*domain.FeaturesRecord, error)

	// UpsertFeatures indexes a features record.
	UpsertFeatures(ctx context.Context, r *domain.FeaturesRecord) error

	// FindSimRun returns the sim run record for id, or ErrNotFound.
	FindSimRun(ctx context.Context, simID string) (*domain.SimRunRecord, error)

	// UpsertSimRun indexes a sim run record.
	UpsertSimRun(ctx context.Context, r *domain.SimRunRecord) error
}
