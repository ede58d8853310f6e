package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists ledger entries in PostgreSQL ensuring double-entry balance.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureAccount guarantees an account exists for the provided code.
func (l *PostgresLedger) EnsureAccount(ctx context.Context, code string) error {
	_, err := l.db.Exec(ctx, `INSERT INTO ledger_accounts (id, code) VALUES ($1, $2)
        ON CONFLICT (code) DO NOTHING`, uuid.New(), code)
	return err
}

// Balance returns the summed balance for the specified account code.
func (l *PostgresLedger) Balance(ctx context.Context, code string) (int64, error) {
	const query = `
        SELECT a.id, COALESCE(SUM(e.amount), 0)
        FROM ledger_accounts a
        LEFT JOIN ledger_entries e ON e.account_id = a.id
        WHERE a.code = $1
        GROUP BY a.id`
	var (
		id      uuid.UUID
		balance int64
	)
	if err := l.db.QueryRow(ctx, query, code).Scan(&id, &balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}
	return balance, nil
}

// TopUp credits the account and debits top-up suspense until settlement.
func (l *PostgresLedger) TopUp(ctx context.Context, accountCode, clientTxID string, amount int64) (PostingResult, error) {
	return l.post(ctx, topUpPosting(accountCode, clientTxID, amount), amount)
}

// RequestWithdrawal debits the account into withdrawal suspense pending review.
func (l *PostgresLedger) RequestWithdrawal(ctx context.Context, accountCode, clientTxID string, amount int64) (PostingResult, error) {
	return l.post(ctx, withdrawalPosting(accountCode, clientTxID, amount), amount)
}

func (l *PostgresLedger) post(ctx context.Context, p posting, amount int64) (PostingResult, error) {
	if amount <= 0 {
		return PostingResult{}, ErrInvalidAmount
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return PostingResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	accountID, err := accountIDForCode(ctx, tx, p.accountCode)
	if err != nil {
		return PostingResult{}, err
	}
	contraID, err := accountIDForCode(ctx, tx, p.contraCode)
	if err != nil {
		return PostingResult{}, err
	}

	const existingQuery = `SELECT id, status FROM ledger_transactions WHERE client_tx_id = $1 AND kind = $2`
	var (
		existingID     uuid.UUID
		existingStatus string
	)
	if err := tx.QueryRow(ctx, existingQuery, p.clientTxID, p.kind).Scan(&existingID, &existingStatus); err == nil {
		balance, balErr := balanceForAccount(ctx, tx, accountID)
		if balErr != nil {
			return PostingResult{}, balErr
		}
		return PostingResult{TransactionID: existingID.String(), Balance: balance, Status: existingStatus}, ErrDuplicateTransaction
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return PostingResult{}, err
	}

	balance, err := balanceForAccount(ctx, tx, accountID)
	if err != nil {
		return PostingResult{}, err
	}
	if balance+p.delta < 0 {
		return PostingResult{}, ErrInsufficientFunds
	}

	txID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO ledger_transactions (id, client_tx_id, kind, status) VALUES ($1, $2, $3, $4)`,
		txID, p.clientTxID, p.kind, p.status); err != nil {
		return PostingResult{}, err
	}
	const entry = `INSERT INTO ledger_entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4)`
	if _, err := tx.Exec(ctx, entry, uuid.New(), txID, accountID, p.delta); err != nil {
		return PostingResult{}, err
	}
	if _, err := tx.Exec(ctx, entry, uuid.New(), txID, contraID, -p.delta); err != nil {
		return PostingResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return PostingResult{}, err
	}

	return PostingResult{TransactionID: txID.String(), Balance: balance + p.delta, Status: p.status}, nil
}

// accountIDForCode locks the account row for the rest of the transaction.
func accountIDForCode(ctx context.Context, tx pgx.Tx, code string) (uuid.UUID, error) {
	const query = `SELECT id FROM ledger_accounts WHERE code = $1 FOR UPDATE`
	var id uuid.UUID
	if err := tx.QueryRow(ctx, query, code).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrAccountNotFound
		}
		return uuid.Nil, err
	}
	return id, nil
}

func balanceForAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1`
	var balance int64
	if err := tx.QueryRow(ctx, query, accountID).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}
