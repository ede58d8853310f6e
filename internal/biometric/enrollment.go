package biometric

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNotEnrolled is returned when the user has not enabled biometric login on this device.
var ErrNotEnrolled = errors.New("biometric: not enrolled")

// Enrollment records that a user enabled biometric login on this device.
// KeyID is empty for local enrollments that unlock the stored PIN instead of
// signing a server challenge.
type Enrollment struct {
	UserID     string     `json:"user_id"`
	KeyID      string     `json:"key_id,omitempty"`
	DeviceName string     `json:"device_name"`
	EnabledAt  time.Time  `json:"enabled_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// EnrollmentStore persists enrollments keyed by user id.
type EnrollmentStore interface {
	Get(ctx context.Context, userID string) (Enrollment, error)
	Save(ctx context.Context, e Enrollment) error
	Touch(ctx context.Context, userID string, at time.Time) error
	Delete(ctx context.Context, userID string) error
}

// FileEnrollments keeps enrollments in a 0600 JSON file.
type FileEnrollments struct {
	mu   sync.Mutex
	path string
}

// NewFileEnrollments returns a store rooted at path, creating its directory.
func NewFileEnrollments(path string) (*FileEnrollments, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("biometric: create dir: %w", err)
	}
	return &FileEnrollments{path: path}, nil
}

func (s *FileEnrollments) Get(_ context.Context, userID string) (Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.read()
	if err != nil {
		return Enrollment{}, err
	}
	e, ok := all[userID]
	if !ok {
		return Enrollment{}, ErrNotEnrolled
	}
	return e, nil
}

func (s *FileEnrollments) Save(_ context.Context, e Enrollment) error {
	return s.update(func(all map[string]Enrollment) error {
		all[e.UserID] = e
		return nil
	})
}

func (s *FileEnrollments) Touch(_ context.Context, userID string, at time.Time) error {
	return s.update(func(all map[string]Enrollment) error {
		e, ok := all[userID]
		if !ok {
			return ErrNotEnrolled
		}
		at = at.UTC()
		e.LastUsedAt = &at
		all[userID] = e
		return nil
	})
}

func (s *FileEnrollments) Delete(_ context.Context, userID string) error {
	return s.update(func(all map[string]Enrollment) error {
		delete(all, userID)
		return nil
	})
}

func (s *FileEnrollments) read() (map[string]Enrollment, error) {
	all := make(map[string]Enrollment)
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return all, nil
	}
	if err != nil {
		return nil, fmt.Errorf("biometric: read enrollments: %w", err)
	}
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("biometric: decode enrollments: %w", err)
	}
	return all, nil
}

func (s *FileEnrollments) update(fn func(map[string]Enrollment) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(all); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("biometric: write enrollments: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// MemoryEnrollments is an in-process EnrollmentStore for tests.
type MemoryEnrollments struct {
	mu  sync.RWMutex
	all map[string]Enrollment
}

// NewMemoryEnrollments returns an empty store.
func NewMemoryEnrollments() *MemoryEnrollments {
	return &MemoryEnrollments{all: make(map[string]Enrollment)}
}

func (m *MemoryEnrollments) Get(_ context.Context, userID string) (Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.all[userID]
	if !ok {
		return Enrollment{}, ErrNotEnrolled
	}
	return e, nil
}

func (m *MemoryEnrollments) Save(_ context.Context, e Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.all[e.UserID] = e
	return nil
}

func (m *MemoryEnrollments) Touch(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.all[userID]
	if !ok {
		return ErrNotEnrolled
	}
	at = at.UTC()
	e.LastUsedAt = &at
	m.all[userID] = e
	return nil
}

func (m *MemoryEnrollments) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.all, userID)
	return nil
}
