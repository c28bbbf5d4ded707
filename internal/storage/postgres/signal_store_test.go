package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/storage"
)

func TestSignalStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	sig := &domain.Signal{
		ID:             "sig-001",
		Caller:         "alice",
		AssetID:        "asset-a",
		CreatedAt:      1700000000,
		ReferencePrice: ptr(0.0042),
	}
	require.NoError(t, store.Insert(ctx, sig))

	got, err := store.GetByID(ctx, "sig-001")
	require.NoError(t, err)
	assert.Equal(t, sig.Caller, got.Caller)
	assert.Equal(t, sig.AssetID, got.AssetID)
	assert.Equal(t, sig.CreatedAt, got.CreatedAt)
	require.NotNil(t, got.ReferencePrice)
	assert.Equal(t, 0.0042, *got.ReferencePrice)

	// Nil reference price round-trips as nil
	require.NoError(t, store.Insert(ctx, &domain.Signal{ID: "sig-002", AssetID: "asset-a", CreatedAt: 1}))
	got, err = store.GetByID(ctx, "sig-002")
	require.NoError(t, err)
	assert.Nil(t, got.ReferencePrice)
}

func TestSignalStore_Errors(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	sig := &domain.Signal{ID: "dup", AssetID: "asset-a"}
	require.NoError(t, store.Insert(ctx, sig))
	assert.ErrorIs(t, store.Insert(ctx, sig), storage.ErrDuplicateKey)

	_, err := store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, store.Insert(ctx, &domain.Signal{ID: "x"}), storage.ErrInvalidInput)
}

func TestSignalStore_InsertBulkAndRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)
	ctx := context.Background()

	signals := []*domain.Signal{
		{ID: "c", AssetID: "x", CreatedAt: 200},
		{ID: "b", AssetID: "x", CreatedAt: 100},
		{ID: "a", AssetID: "x", CreatedAt: 100},
		{ID: "d", AssetID: "x", CreatedAt: 300},
	}
	require.NoError(t, store.InsertBulk(ctx, signals))

	got, err := store.GetByTimeRange(ctx, 100, 300)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "c", got[2].ID)

	// Duplicate inside a batch rolls back the whole batch
	err = store.InsertBulk(ctx, []*domain.Signal{{ID: "e", AssetID: "x"}, {ID: "a", AssetID: "x"}})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	_, err = store.GetByID(ctx, "e")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
