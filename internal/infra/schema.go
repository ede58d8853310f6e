package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id              UUID PRIMARY KEY,
        phone           TEXT NOT NULL UNIQUE,
        pin_hash        BYTEA,
        device_id       TEXT NOT NULL DEFAULT '',
        token_version   INTEGER NOT NULL DEFAULT 0,
        failed_attempts INTEGER NOT NULL DEFAULT 0,
        locked_until    TIMESTAMPTZ,
        created_at      TIMESTAMPTZ NOT NULL,
        last_login      TIMESTAMPTZ
    )`,
	`CREATE TABLE IF NOT EXISTS biometric_keys (
        id           UUID PRIMARY KEY,
        user_id      UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
        public_key   BYTEA NOT NULL,
        device_name  TEXT NOT NULL,
        created_at   TIMESTAMPTZ NOT NULL,
        last_used_at TIMESTAMPTZ
    )`,
	`CREATE TABLE IF NOT EXISTS push_tokens (
        user_id    UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
        token      TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL,
        PRIMARY KEY (user_id, token)
    )`,
	`CREATE TABLE IF NOT EXISTS ledger_accounts (
        id   UUID PRIMARY KEY,
        code TEXT NOT NULL UNIQUE
    )`,
	`CREATE TABLE IF NOT EXISTS ledger_transactions (
        id           UUID PRIMARY KEY,
        client_tx_id TEXT NOT NULL,
        kind         TEXT NOT NULL,
        status       TEXT NOT NULL,
        created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (client_tx_id, kind)
    )`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
        id             UUID PRIMARY KEY,
        transaction_id UUID NOT NULL REFERENCES ledger_transactions (id),
        account_id     UUID NOT NULL REFERENCES ledger_accounts (id),
        amount         BIGINT NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS cash_accounts (
        id          UUID PRIMARY KEY,
        owner_id    UUID NOT NULL UNIQUE REFERENCES users (id) ON DELETE CASCADE,
        ledger_code TEXT NOT NULL,
        currency    TEXT NOT NULL,
        status      TEXT NOT NULL,
        created_at  TIMESTAMPTZ NOT NULL
    )`,
}

// EnsureSchema creates the tables used by the postgres repositories.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
