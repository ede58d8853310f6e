package account

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	byOwner map[string]Account
}

// NewMemoryRepository constructs an in-memory repository for tests and dev runs.
func NewMemoryRepository() Repository {
	return &memoryRepository{byOwner: make(map[string]Account)}
}

func (r *memoryRepository) Create(_ context.Context, a Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byOwner[a.OwnerID]; exists {
		return ErrExists
	}
	r.byOwner[a.OwnerID] = a
	return nil
}

func (r *memoryRepository) GetByOwner(_ context.Context, ownerID string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byOwner[ownerID]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}
