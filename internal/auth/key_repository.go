package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// KeyRepository persists biometric device keys.
type KeyRepository interface {
	Create(ctx context.Context, key BiometricKey) error
	Get(ctx context.Context, id string) (BiometricKey, error)
	TouchUsed(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, userID, id string) error
}

// PostgresKeyRepository stores keys in the biometric_keys table.
type PostgresKeyRepository struct {
	db *pgxpool.Pool
}

// NewPostgresKeyRepository builds a Postgres-backed key repository.
func NewPostgresKeyRepository(db *pgxpool.Pool) *PostgresKeyRepository {
	return &PostgresKeyRepository{db: db}
}

// Create inserts a key.
func (r *PostgresKeyRepository) Create(ctx context.Context, key BiometricKey) error {
	keyID, err := uuid.Parse(key.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(key.UserID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO biometric_keys (id, user_id, public_key, device_name, created_at)
        VALUES ($1, $2, $3, $4, $5)`, keyID, userID, key.PublicKey, key.DeviceName, key.CreatedAt.UTC())
	return err
}

// Get fetches a key by id.
func (r *PostgresKeyRepository) Get(ctx context.Context, id string) (BiometricKey, error) {
	keyID, err := uuid.Parse(id)
	if err != nil {
		return BiometricKey{}, ErrKeyNotFound
	}
	var (
		key     BiometricKey
		rawID   uuid.UUID
		rawUser uuid.UUID
	)
	err = r.db.QueryRow(ctx, `SELECT id, user_id, public_key, device_name, created_at, last_used_at
        FROM biometric_keys WHERE id = $1`, keyID).Scan(&rawID, &rawUser, &key.PublicKey, &key.DeviceName, &key.CreatedAt, &key.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BiometricKey{}, ErrKeyNotFound
		}
		return BiometricKey{}, err
	}
	key.ID = rawID.String()
	key.UserID = rawUser.String()
	return key, nil
}

// TouchUsed stamps the last successful use.
func (r *PostgresKeyRepository) TouchUsed(ctx context.Context, id string, at time.Time) error {
	keyID, err := uuid.Parse(id)
	if err != nil {
		return ErrKeyNotFound
	}
	_, err = r.db.Exec(ctx, `UPDATE biometric_keys SET last_used_at = $1 WHERE id = $2`, at.UTC(), keyID)
	return err
}

// Delete removes a key owned by userID.
func (r *PostgresKeyRepository) Delete(ctx context.Context, userID, id string) error {
	keyID, err := uuid.Parse(id)
	if err != nil {
		return ErrKeyNotFound
	}
	owner, err := uuid.Parse(userID)
	if err != nil {
		return ErrKeyNotFound
	}
	cmd, err := r.db.Exec(ctx, `DELETE FROM biometric_keys WHERE id = $1 AND user_id = $2`, keyID, owner)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

type memoryKeyRepository struct {
	mu   sync.RWMutex
	keys map[string]BiometricKey
}

// NewMemoryKeyRepository builds an in-memory key repository.
func NewMemoryKeyRepository() KeyRepository {
	return &memoryKeyRepository{keys: make(map[string]BiometricKey)}
}

func (r *memoryKeyRepository) Create(_ context.Context, key BiometricKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[key.ID] = key
	return nil
}

func (r *memoryKeyRepository) Get(_ context.Context, id string) (BiometricKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.keys[id]
	if !ok {
		return BiometricKey{}, ErrKeyNotFound
	}
	return key, nil
}

func (r *memoryKeyRepository) TouchUsed(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[id]
	if !ok {
		return ErrKeyNotFound
	}
	key.LastUsedAt = &at
	r.keys[id] = key
	return nil
}

func (r *memoryKeyRepository) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[id]
	if !ok || key.UserID != userID {
		return ErrKeyNotFound
	}
	delete(r.keys, id)
	return nil
}
