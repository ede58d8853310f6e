// Package localstore keeps the device-local login credential: the PIN the
// user picked on this device and the phone number it belongs to.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned when the requested value was never stored or was removed.
var ErrNotFound = errors.New("localstore: value not found")

type record struct {
	Pin   string `json:"pin,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// FileStore persists the credential as a 0600 JSON file. Writes go through a
// temp file and a rename so a crash never leaves a torn record.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates the parent directory and returns a store rooted at path.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("localstore: create dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Pin(_ context.Context) (string, error) {
	rec, err := s.load()
	if err != nil {
		return "", err
	}
	if rec.Pin == "" {
		return "", ErrNotFound
	}
	return rec.Pin, nil
}

func (s *FileStore) SetPin(_ context.Context, pin string) error {
	return s.update(func(r *record) { r.Pin = pin })
}

func (s *FileStore) RemovePin(_ context.Context) error {
	return s.update(func(r *record) { r.Pin = "" })
}

func (s *FileStore) Phone(_ context.Context) (string, error) {
	rec, err := s.load()
	if err != nil {
		return "", err
	}
	if rec.Phone == "" {
		return "", ErrNotFound
	}
	return rec.Phone, nil
}

func (s *FileStore) SetPhone(_ context.Context, phone string) error {
	return s.update(func(r *record) { r.Phone = phone })
}

// Clear removes the PIN and the phone.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("localstore: clear: %w", err)
	}
	return nil
}

func (s *FileStore) load() (record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) read() (record, error) {
	var rec record
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return rec, nil
	}
	if err != nil {
		return rec, fmt.Errorf("localstore: read: %w", err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("localstore: decode: %w", err)
	}
	return rec, nil
}

func (s *FileStore) update(fn func(*record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read()
	if err != nil {
		return err
	}
	fn(&rec)

	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("localstore: temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // nolint:errcheck
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("localstore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Memory is an in-process store for tests.
type Memory struct {
	mu  sync.RWMutex
	rec record
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Pin(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.rec.Pin == "" {
		return "", ErrNotFound
	}
	return m.rec.Pin, nil
}

func (m *Memory) SetPin(_ context.Context, pin string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec.Pin = pin
	return nil
}

func (m *Memory) RemovePin(_ context.Context) error {
	return m.SetPin(context.Background(), "")
}

func (m *Memory) Phone(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.rec.Phone == "" {
		return "", ErrNotFound
	}
	return m.rec.Phone, nil
}

func (m *Memory) SetPhone(_ context.Context, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec.Phone = phone
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = record{}
	return nil
}
