package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByPhone(ctx context.Context, phone string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	UpdateDevice(ctx context.Context, id, deviceID string) error
	UpdatePIN(ctx context.Context, id string, pinHash []byte) error
	UpdateTokenVersion(ctx context.Context, id string, version int) error
	UpdateLoginState(ctx context.Context, id string, state LoginState) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, phone, pin_hash, device_id, token_version, failed_attempts, locked_until, created_at, last_login`

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (id, phone, pin_hash, device_id, token_version, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, userID, user.Phone, user.PINHash, user.DeviceID, user.TokenVersion, user.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUserExists
	}
	return err
}

// FindByPhone fetches a user by phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
	return scanUser(row)
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

// UpdateDevice stores the users bound device identifier.
func (r *PostgresRepository) UpdateDevice(ctx context.Context, id, deviceID string) error {
	return r.update(ctx, id, `UPDATE users SET device_id = $1 WHERE id = $2`, deviceID)
}

// UpdatePIN replaces the stored PIN hash.
func (r *PostgresRepository) UpdatePIN(ctx context.Context, id string, pinHash []byte) error {
	return r.update(ctx, id, `UPDATE users SET pin_hash = $1, failed_attempts = 0, locked_until = NULL WHERE id = $2`, pinHash)
}

// UpdateTokenVersion sets the token version embedded in issued tokens.
func (r *PostgresRepository) UpdateTokenVersion(ctx context.Context, id string, version int) error {
	return r.update(ctx, id, `UPDATE users SET token_version = $1 WHERE id = $2`, version)
}

// UpdateLoginState records the outcome of a PIN attempt.
func (r *PostgresRepository) UpdateLoginState(ctx context.Context, id string, state LoginState) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE users SET failed_attempts = $1, locked_until = $2,
        last_login = COALESCE($3, last_login) WHERE id = $4`,
		state.FailedAttempts, utcPtr(state.LockedUntil), utcPtr(state.LastLogin), userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) update(ctx context.Context, id, query string, value any) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, query, value, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id        uuid.UUID
		createdAt time.Time
		user      User
	)
	if err := row.Scan(&id, &user.Phone, &user.PINHash, &user.DeviceID, &user.TokenVersion,
		&user.FailedAttempts, &user.LockedUntil, &createdAt, &user.LastLogin); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	user.ID = id.String()
	user.CreatedAt = createdAt.UTC()
	return user, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
