package memory

import (
	"context"
	"sort"
	"sync"

	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/storage"
)

// SignalStore is an in-memory implementation of storage.SignalStore.
type SignalStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Signal // keyed by id
}

// NewSignalStore creates a new in-memory signal store.
func NewSignalStore() *SignalStore {
	return &SignalStore{
		data: make(map[string]*domain.Signal),
	}
}

// Insert adds a new signal. Returns ErrDuplicateKey if the id exists.
func (s *SignalStore) Insert(_ context.Context, sig *domain.Signal) error {
	if sig == nil || sig.ID == "" || sig.AssetID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sig.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[sig.ID] = copySignal(sig)
	return nil
}

// InsertBulk adds multiple signals atomically.
func (s *SignalStore) InsertBulk(_ context.Context, signals []*domain.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]struct{}, len(signals))
	for _, sig := range signals {
		if sig == nil || sig.ID == "" || sig.AssetID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[sig.ID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[sig.ID]; exists {
			return storage.ErrDuplicateKey
		}
		batch[sig.ID] = struct{}{}
	}

	for _, sig := range signals {
		s.data[sig.ID] = copySignal(sig)
	}
	return nil
}

// GetByID retrieves a signal by id. Returns ErrNotFound if not exists.
func (s *SignalStore) GetByID(_ context.Context, id string) (*domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copySignal(sig), nil
}

// GetByTimeRange retrieves signals created in [start, end).
func (s *SignalStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Signal
	for _, sig := range s.data {
		if sig.CreatedAt >= start && sig.CreatedAt < end {
			result = append(result, copySignal(sig))
		}
	}

	// Sort by created_at ASC, id ASC
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

func copySignal(sig *domain.Signal) *domain.Signal {
	out := *sig
	if sig.ReferencePrice != nil {
		p := *sig.ReferencePrice
		out.ReferencePrice = &p
	}
	return &out
}

// Verify interface compliance at compile time.
var _ storage.SignalStore = (*SignalStore)(nil)
