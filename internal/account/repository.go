package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when the owner has no cash account.
	ErrNotFound = errors.New("account not found")
	// ErrExists is returned when the owner already has a cash account.
	ErrExists = errors.New("account already exists")
)

// Repository persists account metadata.
type Repository interface {
	Create(ctx context.Context, account Account) error
	GetByOwner(ctx context.Context, ownerID string) (Account, error)
}

// PostgresRepository stores accounts in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts an account record.
func (r *PostgresRepository) Create(ctx context.Context, a Account) error {
	id, err := uuid.Parse(a.ID)
	if err != nil {
		return err
	}
	ownerID, err := uuid.Parse(a.OwnerID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO cash_accounts (id, owner_id, ledger_code, currency, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, id, ownerID, a.AccountCode, a.Currency, a.Status, a.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	return err
}

// GetByOwner fetches the account belonging to ownerID.
func (r *PostgresRepository) GetByOwner(ctx context.Context, ownerID string) (Account, error) {
	ownerUUID, err := uuid.Parse(ownerID)
	if err != nil {
		return Account{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, owner_id, ledger_code, currency, status, created_at
        FROM cash_accounts WHERE owner_id = $1`, ownerUUID)
	var (
		a         Account
		id, owner uuid.UUID
		createdAt time.Time
	)
	if err := row.Scan(&id, &owner, &a.AccountCode, &a.Currency, &a.Status, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	a.ID = id.String()
	a.OwnerID = owner.String()
	a.CreatedAt = createdAt.UTC()
	return a, nil
}
