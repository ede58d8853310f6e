package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/brokerline/brokerline/internal/vault"
)

// deviceSecret returns the named per-install identifier, creating it on first use.
func deviceSecret(ctx context.Context, v *vault.SealedFile, name, prefix string) (string, error) {
	raw, err := v.Secret(ctx, name)
	if err == nil {
		return string(raw), nil
	}
	if !errors.Is(err, vault.ErrSecretNotFound) {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	id := prefix + uuid.NewString()
	if err := v.PutSecret(ctx, name, []byte(id)); err != nil {
		return "", fmt.Errorf("store %s: %w", name, err)
	}
	return id, nil
}

// hostVaultKey derives a vault passphrase from host identity when
// BROKERLINE_VAULT_KEY is unset. It binds the vault to this machine and user.
func hostVaultKey() string {
	parts := []string{"brokerline-vault"}
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if b, err := os.ReadFile(path); err == nil {
			parts = append(parts, strings.TrimSpace(string(b)))
			break
		}
	}
	if host, err := os.Hostname(); err == nil {
		parts = append(parts, host)
	}
	if home, err := os.UserHomeDir(); err == nil {
		parts = append(parts, home)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
