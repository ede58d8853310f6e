// Package vault holds session tokens and device secrets. It is deliberately a
// separate store from localstore: wiping one never touches the other.
package vault

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

var (
	// ErrNoTokens is returned when no session is stored.
	ErrNoTokens = errors.New("vault: no session tokens")
	// ErrSecretNotFound is returned for unknown secret names.
	ErrSecretNotFound = errors.New("vault: secret not found")
	// ErrSealed is returned when the vault file cannot be opened with the given key.
	ErrSealed = errors.New("vault: wrong key or corrupt file")
)

// Tokens is the session token pair issued by the backend.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Empty reports whether no access token is present.
func (t Tokens) Empty() bool {
	return t.AccessToken == ""
}

type contents struct {
	Tokens  Tokens            `json:"tokens"`
	Secrets map[string][]byte `json:"secrets,omitempty"`
}

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32
)

// SealedFile stores the vault as salt || nonce || secretbox(JSON). The box key
// is argon2id(passphrase, salt) and is derived once when the vault is opened.
type SealedFile struct {
	mu   sync.Mutex
	path string
	salt [saltSize]byte
	key  [keySize]byte
}

// OpenSealedFile opens or initialises the vault at path.
func OpenSealedFile(path, passphrase string) (*SealedFile, error) {
	if passphrase == "" {
		return nil, errors.New("vault: passphrase is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("vault: create dir: %w", err)
	}

	v := &SealedFile{path: path}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if _, err := io.ReadFull(rand.Reader, v.salt[:]); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("vault: read: %w", err)
	case len(raw) < saltSize+nonceSize+secretbox.Overhead:
		return nil, ErrSealed
	default:
		copy(v.salt[:], raw[:saltSize])
	}

	copy(v.key[:], argon2.IDKey([]byte(passphrase), v.salt[:], 1, 64*1024, 4, keySize))

	if err == nil {
		if _, err := v.open(raw); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (v *SealedFile) open(raw []byte) (contents, error) {
	var c contents
	if len(raw) < saltSize+nonceSize+secretbox.Overhead {
		return c, ErrSealed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[saltSize:saltSize+nonceSize])
	plain, ok := secretbox.Open(nil, raw[saltSize+nonceSize:], &nonce, &v.key)
	if !ok {
		return c, ErrSealed
	}
	if err := json.Unmarshal(plain, &c); err != nil {
		return c, fmt.Errorf("vault: decode: %w", err)
	}
	return c, nil
}

func (v *SealedFile) read() (contents, error) {
	raw, err := os.ReadFile(v.path)
	if errors.Is(err, os.ErrNotExist) {
		return contents{}, nil
	}
	if err != nil {
		return contents{}, fmt.Errorf("vault: read: %w", err)
	}
	return v.open(raw)
}

func (v *SealedFile) update(fn func(*contents)) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	c, err := v.read()
	if err != nil {
		return err
	}
	fn(&c)

	plain, err := json.Marshal(c)
	if err != nil {
		return err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return err
	}
	out := make([]byte, 0, saltSize+nonceSize+len(plain)+secretbox.Overhead)
	out = append(out, v.salt[:]...)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, plain, &nonce, &v.key)

	tmp, err := os.CreateTemp(filepath.Dir(v.path), ".vault-*")
	if err != nil {
		return fmt.Errorf("vault: temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // nolint:errcheck
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("vault: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), v.path)
}

func (v *SealedFile) snapshot() (contents, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.read()
}

func (v *SealedFile) Tokens(_ context.Context) (Tokens, error) {
	c, err := v.snapshot()
	if err != nil {
		return Tokens{}, err
	}
	if c.Tokens.Empty() {
		return Tokens{}, ErrNoTokens
	}
	return c.Tokens, nil
}

func (v *SealedFile) SetTokens(_ context.Context, t Tokens) error {
	return v.update(func(c *contents) { c.Tokens = t })
}

// ResetTokens forgets the session. Device secrets are kept.
func (v *SealedFile) ResetTokens(_ context.Context) error {
	return v.update(func(c *contents) { c.Tokens = Tokens{} })
}

func (v *SealedFile) Secret(_ context.Context, name string) ([]byte, error) {
	c, err := v.snapshot()
	if err != nil {
		return nil, err
	}
	secret, ok := c.Secrets[name]
	if !ok {
		return nil, ErrSecretNotFound
	}
	return secret, nil
}

func (v *SealedFile) PutSecret(_ context.Context, name string, value []byte) error {
	return v.update(func(c *contents) {
		if c.Secrets == nil {
			c.Secrets = make(map[string][]byte)
		}
		c.Secrets[name] = append([]byte(nil), value...)
	})
}

func (v *SealedFile) DeleteSecret(_ context.Context, name string) error {
	return v.update(func(c *contents) { delete(c.Secrets, name) })
}

// Memory is an in-process vault for tests.
type Memory struct {
	mu sync.RWMutex
	c  contents
}

// NewMemory returns an empty in-memory vault.
func NewMemory() *Memory {
	return &Memory{c: contents{Secrets: make(map[string][]byte)}}
}

func (m *Memory) Tokens(_ context.Context) (Tokens, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.c.Tokens.Empty() {
		return Tokens{}, ErrNoTokens
	}
	return m.c.Tokens, nil
}

func (m *Memory) SetTokens(_ context.Context, t Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Tokens = t
	return nil
}

func (m *Memory) ResetTokens(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Tokens = Tokens{}
	return nil
}

func (m *Memory) Secret(_ context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	secret, ok := m.c.Secrets[name]
	if !ok {
		return nil, ErrSecretNotFound
	}
	return secret, nil
}

func (m *Memory) PutSecret(_ context.Context, name string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Secrets[name] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) DeleteSecret(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.c.Secrets, name)
	return nil
}
