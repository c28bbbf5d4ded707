package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/storage"
)

func TestCatalogStore_SliceFirstWriteWins(t *testing.T) {
	store := NewCatalogStore()
	ctx := context.Background()

	if _, err := store.FindSlice(ctx, "s1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	first := &domain.SliceRecord{SliceID: "s1", ManifestPath: "slices/s1/manifest.json", RowCount: 10, CreatedAt: time.Unix(0, 0)}
	second := &domain.SliceRecord{SliceID: "s1", ManifestPath: "other.json", RowCount: 99}
	if err := store.UpsertSlice(ctx, first); err != nil {
		t.Fatalf("UpsertSlice failed: %v", err)
	}
	if err := store.UpsertSlice(ctx, second); err != nil {
		t.Fatalf("second UpsertSlice failed: %v", err)
	}

	got, err := store.FindSlice(ctx, "s1")
	if err != nil {
		t.Fatalf("FindSlice failed: %v", err)
	}
	if got.ManifestPath != first.ManifestPath || got.RowCount != 10 {
		t.Errorf("got %+v, want first record", got)
	}
}

func TestCatalogStore_FeaturesAndSimRuns(t *testing.T) {
	store := NewCatalogStore()
	ctx := context.Background()

	if err := store.UpsertFeatures(ctx, &domain.FeaturesRecord{FeaturesID: "f1", SliceID: "s1", ManifestPath: "m"}); err != nil {
		t.Fatalf("UpsertFeatures failed: %v", err)
	}
	if err := store.UpsertSimRun(ctx, &domain.SimRunRecord{SimID: "r1", FeaturesID: "f1", ManifestPath: "m"}); err != nil {
		t.Fatalf("UpsertSimRun failed: %v", err)
	}

	f, err := store.FindFeatures(ctx, "f1")
	if err != nil || f.SliceID != "s1" {
		t.Errorf("FindFeatures = %+v, %v", f, err)
	}
	r, err := store.FindSimRun(ctx, "r1")
	if err != nil || r.FeaturesID != "f1" {
		t.Errorf("FindSimRun = %+v, %v", r, err)
	}

	store.Delete("r1")
	if _, err := store.FindSimRun(ctx, "r1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after Delete, got %v", err)
	}
}

func TestCatalogStore_InvalidInput(t *testing.T) {
	store := NewCatalogStore()
	ctx := context.Background()

	if err := store.UpsertSlice(ctx, &domain.SliceRecord{SliceID: "s"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("missing manifest path: got %v", err)
	}
	if err := store.UpsertFeatures(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("nil features: got %v", err)
	}
	if err := store.UpsertSimRun(ctx, &domain.SimRunRecord{ManifestPath: "m"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("missing id: got %v", err)
	}
}

func TestCatalogStore_ConcurrentAccess(t *testing.T) {
	store := NewCatalogStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.UpsertSlice(ctx, &domain.SliceRecord{SliceID: "s", ManifestPath: "m", Spec: domain.SliceSpec{AssetIDs: []string{"a"}}})
			_, _ = store.FindSlice(ctx, "s")
		}()
	}
	wg.Wait()

	got, err := store.FindSlice(ctx, "s")
	if err != nil {
		t.Fatalf("FindSlice failed: %v", err)
	}
	if len(got.Spec.AssetIDs) != 1 {
		t.Errorf("asset ids = %v", got.Spec.AssetIDs)
	}
}
