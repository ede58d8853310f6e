package vault

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type store interface {
	Tokens(context.Context) (Tokens, error)
	SetTokens(context.Context, Tokens) error
	ResetTokens(context.Context) error
	Secret(context.Context, string) ([]byte, error)
	PutSecret(context.Context, string, []byte) error
	DeleteSecret(context.Context, string) error
}

func exercise(t *testing.T, v store) {
	t.Helper()
	ctx := context.Background()

	if _, err := v.Tokens(ctx); !errors.Is(err, ErrNoTokens) {
		t.Fatalf("expected no tokens, got %v", err)
	}
	want := Tokens{AccessToken: "a1", RefreshToken: "r1"}
	if err := v.SetTokens(ctx, want); err != nil {
		t.Fatalf("set tokens: %v", err)
	}
	if err := v.PutSecret(ctx, "device-key", []byte{1, 2, 3}); err != nil {
		t.Fatalf("put secret: %v", err)
	}
	if got, err := v.Tokens(ctx); err != nil || got != want {
		t.Fatalf("tokens = %+v, %v", got, err)
	}

	if err := v.ResetTokens(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := v.Tokens(ctx); !errors.Is(err, ErrNoTokens) {
		t.Fatalf("expected reset tokens, got %v", err)
	}
	secret, err := v.Secret(ctx, "device-key")
	if err != nil || !bytes.Equal(secret, []byte{1, 2, 3}) {
		t.Fatalf("secret must survive token reset, got %v %v", secret, err)
	}

	if err := v.DeleteSecret(ctx, "device-key"); err != nil {
		t.Fatalf("delete secret: %v", err)
	}
	if _, err := v.Secret(ctx, "device-key"); !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("expected missing secret, got %v", err)
	}
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory())
}

func TestSealedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault", "vault.sealed")
	v, err := OpenSealedFile(path, "correct horse")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exercise(t, v)

	ctx := context.Background()
	if err := v.SetTokens(ctx, Tokens{AccessToken: "secret-access", RefreshToken: "secret-refresh"}); err != nil {
		t.Fatalf("set tokens: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if bytes.Contains(raw, []byte("secret-access")) {
		t.Fatalf("tokens must not be stored in clear text")
	}

	reopened, err := OpenSealedFile(path, "correct horse")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got, err := reopened.Tokens(ctx); err != nil || got.AccessToken != "secret-access" {
		t.Fatalf("expected persisted tokens, got %+v %v", got, err)
	}

	if _, err := OpenSealedFile(path, "wrong"); !errors.Is(err, ErrSealed) {
		t.Fatalf("expected sealed error for wrong passphrase, got %v", err)
	}
}
