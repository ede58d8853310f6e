package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TokenRepository persists push tokens per user.
type TokenRepository interface {
	Register(ctx context.Context, userID, token string) error
	ListByUser(ctx context.Context, userID string) ([]string, error)
}

// PostgresTokenRepository stores tokens in the push_tokens table.
type PostgresTokenRepository struct {
	db *pgxpool.Pool
}

// NewPostgresTokenRepository builds a Postgres-backed token repository.
func NewPostgresTokenRepository(db *pgxpool.Pool) *PostgresTokenRepository {
	return &PostgresTokenRepository{db: db}
}

// Register upserts a token.
func (r *PostgresTokenRepository) Register(ctx context.Context, userID, token string) error {
	owner, err := uuid.Parse(userID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO push_tokens (user_id, token, created_at) VALUES ($1, $2, $3)
        ON CONFLICT (user_id, token) DO NOTHING`, owner, token, time.Now().UTC())
	return err
}

// ListByUser returns the user's tokens, oldest first.
func (r *PostgresTokenRepository) ListByUser(ctx context.Context, userID string) ([]string, error) {
	owner, err := uuid.Parse(userID)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT token FROM push_tokens WHERE user_id = $1 ORDER BY created_at`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

type memoryTokenRepository struct {
	mu     sync.RWMutex
	tokens map[string]map[string]struct{}
}

// NewMemoryTokenRepository builds an in-memory token repository.
func NewMemoryTokenRepository() TokenRepository {
	return &memoryTokenRepository{tokens: make(map[string]map[string]struct{})}
}

func (r *memoryTokenRepository) Register(_ context.Context, userID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.tokens[userID]
	if !ok {
		set = make(map[string]struct{})
		r.tokens[userID] = set
	}
	set[token] = struct{}{}
	return nil
}

func (r *memoryTokenRepository) ListByUser(_ context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tokens[userID]))
	for token := range r.tokens[userID] {
		out = append(out, token)
	}
	sort.Strings(out)
	return out, nil
}
