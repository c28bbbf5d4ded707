package memory

import (
	"context"
	"sync"

	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/storage"
)

// CatalogStore is an in-memory implementation of storage.CatalogStore.
type CatalogStore struct {
	mu       sync.RWMutex
	slices   map[string]domain.SliceRecord
	features map[string]domain.FeaturesRecord
	simRuns  map[string]domain.SimRunRecord
}

// NewCatalogStore creates a new in-memory catalog store.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		slices:   make(map[string]domain.SliceRecord),
		features: make(map[string]domain.FeaturesRecord),
		simRuns:  make(map[string]domain.SimRunRecord),
	}
}

// FindSlice returns the slice record for id, or ErrNotFound.
func (s *CatalogStore) FindSlice(_ context.Context, sliceID string) (*domain.SliceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.slices[sliceID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	r.Spec.AssetIDs = append([]string(nil), r.Spec.AssetIDs...)
	return &r, nil
}

// UpsertSlice indexes a slice record. The first record for an id is kept.
func (s *CatalogStore) UpsertSlice(_ context.Context, r *domain.SliceRecord) error {
	if r == nil || r.SliceID == "" || r.ManifestPath == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.slices[r.SliceID]; exists {
		return nil
	}
	rec := *r
	rec.Spec.AssetIDs = append([]string(nil), r.Spec.AssetIDs...)
	s.slices[r.SliceID] = rec
	return nil
}

// FindFeatures returns the features record for id, or ErrNotFound.
func (s *CatalogStore) FindFeatures(_ context.Context, featuresID string) (*domain.FeaturesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.features[featuresID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &r, nil
}

// UpsertFeatures indexes a features record. The first record for an id is kept.
func (s *CatalogStore) UpsertFeatures(_ context.Context, r *domain.FeaturesRecord) error {
	if r == nil || r.FeaturesID == "" || r.ManifestPath == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.features[r.FeaturesID]; !exists {
		s.features[r.FeaturesID] = *r
	}
	return nil
}

// FindSimRun returns the sim run record for id, or ErrNotFound.
func (s *CatalogStore) FindSimRun(_ context.Context, simID string) (*domain.SimRunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.simRuns[simID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &r, nil
}

// UpsertSimRun indexes a sim run record. The first record for an id is kept.
func (s *CatalogStore) UpsertSimRun(_ context.Context, r *domain.SimRunRecord) error {
	if r == nil || r.SimID == "" || r.ManifestPath == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.simRuns[r.SimID]; !exists {
		s.simRuns[r.SimID] = *r
	}
	return nil
}

// Delete removes every record with the given id. Used for out-of-band
// invalidation after a data correction.
func (s *CatalogStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.slices, id)
	delete(s.features, id)
	delete(s.simRuns, id)
}

// Verify interface compliance at compile time.
var _ storage.CatalogStore = (*CatalogStore)(nil)
