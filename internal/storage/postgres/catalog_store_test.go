package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/storage"
)

func TestCatalogStore_Slice(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCatalogStore(pool)
	ctx := context.Background()

	_, err := store.FindSlice(ctx, "slice-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	rec := &domain.SliceRecord{
		SliceID:    "slice-1",
		TokenSetID: "ts-1",
		Spec: domain.SliceSpec{
			Dataset:    "candles",
			Chain:      "solana",
			Interval:   domain.Interval1m,
			StartISO:   "2025-01-01T00:00:00Z",
			EndISO:     "2025-01-02T00:00:00Z",
			AssetIDs:   []string{"a", "b"},
			SchemaHash: "v1",
		},
		ManifestPath: "slices/slice-1/manifest.json",
		RowCount:     2880,
		CreatedAt:    time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.UpsertSlice(ctx, rec))

	// Second upsert is a no-op
	other := *rec
	other.ManifestPath = "elsewhere.json"
	require.NoError(t, store.UpsertSlice(ctx, &other))

	got, err := store.FindSlice(ctx, "slice-1")
	require.NoError(t, err)
	assert.Equal(t, rec.ManifestPath, got.ManifestPath)
	assert.Equal(t, rec.Spec, got.Spec)
	assert.Equal(t, rec.RowCount, got.RowCount)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
}

func TestCatalogStore_FeaturesAndSimRun(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCatalogStore(pool)
	ctx := context.Background()

	require.NoError(t, store.UpsertFeatures(ctx, &domain.FeaturesRecord{
		FeaturesID:   "f-1",
		SliceID:      "slice-1",
		FeatureSetID: "fs-1",
		ManifestPath: "features/f-1/manifest.json",
		RowCount:     100,
	}))
	f, err := store.FindFeatures(ctx, "f-1")
	require.NoError(t, err)
	assert.Equal(t, "fs-1", f.FeatureSetID)
	assert.False(t, f.CreatedAt.IsZero())

	require.NoError(t, store.UpsertSimRun(ctx, &domain.SimRunRecord{
		SimID:         "sim-1",
		FeaturesID:    "f-1",
		StrategyHash:  "sh",
		RiskHash:      "rh",
		EngineVersion: "engine-v1",
		ManifestPath:  "sims/sim-1/manifest.json",
		RowCount:      7,
	}))
	r, err := store.FindSimRun(ctx, "sim-1")
	require.NoError(t, err)
	assert.Equal(t, "", r.WindowID)
	assert.Equal(t, "engine-v1", r.EngineVersion)

	_, err = store.FindSimRun(ctx, "sim-2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCatalogStore_InvalidInput(t *testing.T) {
	store := NewCatalogStore(nil)
	ctx := context.Background()

	assert.ErrorIs(t, store.UpsertSlice(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.UpsertFeatures(ctx, &domain.FeaturesRecord{FeaturesID: "f"}), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.UpsertSimRun(ctx, &domain.SimRunRecord{ManifestPath: "m"}), storage.ErrInvalidInput)
}
