package identity

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu    sync.RWMutex
	users map[string]User
	phone map[string]string
}

// NewMemoryRepository builds an in-memory user store for tests and development.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]User), phone: make(map[string]string)}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.phone[user.Phone]; exists {
		return ErrUserExists
	}
	r.users[user.ID] = user
	r.phone[user.Phone] = user.ID
	return nil
}

func (r *memoryRepository) FindByPhone(_ context.Context, phone string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.phone[phone]
	if !ok {
		return User{}, ErrNotFound
	}
	return r.users[id], nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *memoryRepository) UpdateDevice(_ context.Context, id, deviceID string) error {
	return r.mutate(id, func(u *User) { u.DeviceID = deviceID })
}

func (r *memoryRepository) UpdatePIN(_ context.Context, id string, pinHash []byte) error {
	return r.mutate(id, func(u *User) {
		u.PINHash = pinHash
		u.FailedAttempts = 0
		u.LockedUntil = nil
	})
}

func (r *memoryRepository) UpdateTokenVersion(_ context.Context, id string, version int) error {
	return r.mutate(id, func(u *User) { u.TokenVersion = version })
}

func (r *memoryRepository) UpdateLoginState(_ context.Context, id string, state LoginState) error {
	return r.mutate(id, func(u *User) {
		u.FailedAttempts = state.FailedAttempts
		u.LockedUntil = state.LockedUntil
		if state.LastLogin != nil {
			u.LastLogin = state.LastLogin
		}
	})
}

func (r *memoryRepository) mutate(id string, fn func(*User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(&user)
	r.users[id] = user
	return nil
}
