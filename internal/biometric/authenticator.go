// Package biometric enrolls the device for biometric login and performs the
// login exchange once the platform prompt succeeds.
package biometric

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brokerline/brokerline/internal/apiclient"
	"github.com/brokerline/brokerline/internal/vault"
)

// Mode selects how a biometric login obtains tokens.
type Mode string

const (
	// ModeServer signs a backend challenge with the enrolled device key.
	ModeServer Mode = "server"
	// ModeLocal unlocks the stored PIN and phone and logs in with them.
	ModeLocal Mode = "local"
)

var (
	// ErrUnavailable is returned when the device has no biometric sensor.
	ErrUnavailable = errors.New("biometric: no sensor available")
	// ErrCancelled is returned when the user declines the enrollment prompt.
	ErrCancelled = errors.New("biometric: prompt cancelled")
	// ErrNoLocalCredential is returned by local-mode login without a stored PIN and phone.
	ErrNoLocalCredential = errors.New("biometric: no stored credential to unlock")
)

// Backend is the subset of the API the subsystem needs.
type Backend interface {
	BiometricOptions(ctx context.Context, userID, keyID string) (apiclient.BiometricOptions, error)
	BiometricLogin(ctx context.Context, challengeID, keyID string, signature []byte) (vault.Tokens, error)
	RegisterBiometricKey(ctx context.Context, pub ed25519.PublicKey, deviceName string) (string, error)
	RevokeBiometricKey(ctx context.Context, keyID string) error
	LoginByPin(ctx context.Context, phone, pin, pushToken string) (vault.Tokens, error)
}

// Vault keeps the device private key and receives the session tokens.
type Vault interface {
	Secret(ctx context.Context, name string) ([]byte, error)
	PutSecret(ctx context.Context, name string, value []byte) error
	DeleteSecret(ctx context.Context, name string) error
	SetTokens(ctx context.Context, t vault.Tokens) error
}

// LocalCredentials reads the stored PIN and phone.
type LocalCredentials interface {
	Pin(ctx context.Context) (string, error)
	Phone(ctx context.Context) (string, error)
}

// LoginOptions is everything Login needs for one attempt.
type LoginOptions struct {
	Mode        Mode
	UserID      string
	ChallengeID string
	KeyID       string
	Nonce       []byte
	ExpiresAt   time.Time
}

// Deps wires an Authenticator.
type Deps struct {
	Prompter    Prompter
	Enrollments EnrollmentStore
	Backend     Backend
	Vault       Vault
	Local       LocalCredentials
	PushToken   string
	Logger      *slog.Logger
}

// Authenticator is the device's biometric subsystem.
type Authenticator struct {
	Deps
	now func() time.Time
}

// NewAuthenticator builds an Authenticator.
func NewAuthenticator(d Deps) *Authenticator {
	return &Authenticator{Deps: d, now: time.Now}
}

func keySecretName(userID string) string {
	return "biometric-key:" + userID
}

// Enroll enables biometric login for userID on this device. In server mode a
// fresh ed25519 key is registered with the backend and its private half kept
// in the vault.
func (a *Authenticator) Enroll(ctx context.Context, userID, deviceName string, mode Mode) (Enrollment, error) {
	if a.Prompter.Capability() == CapabilityNone {
		return Enrollment{}, ErrUnavailable
	}
	ok, err := a.Prompter.Prompt(ctx, "Enable biometric login")
	if err != nil {
		return Enrollment{}, err
	}
	if !ok {
		return Enrollment{}, ErrCancelled
	}

	e := Enrollment{UserID: userID, DeviceName: deviceName, EnabledAt: a.now().UTC()}
	if mode == ModeServer {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return Enrollment{}, err
		}
		if err := a.Vault.PutSecret(ctx, keySecretName(userID), priv.Seed()); err != nil {
			return Enrollment{}, err
		}
		keyID, err := a.Backend.RegisterBiometricKey(ctx, pub, deviceName)
		if err != nil {
			_ = a.Vault.DeleteSecret(ctx, keySecretName(userID))
			return Enrollment{}, fmt.Errorf("register device key: %w", err)
		}
		e.KeyID = keyID
	}

	if err := a.Enrollments.Save(ctx, e); err != nil {
		return Enrollment{}, err
	}
	a.Logger.Info("biometric enrolled", slog.String("user_id", userID), slog.String("mode", string(mode)))
	return e, nil
}

// Disable removes the enrollment and, in server mode, the device key.
func (a *Authenticator) Disable(ctx context.Context, userID string) error {
	e, err := a.Enrollments.Get(ctx, userID)
	if errors.Is(err, ErrNotEnrolled) {
		return nil
	}
	if err != nil {
		return err
	}
	if e.KeyID != "" {
		if err := a.Backend.RevokeBiometricKey(ctx, e.KeyID); err != nil {
			a.Logger.Warn("revoke biometric key", slog.String("key_id", e.KeyID), slog.Any("error", err))
		}
		if err := a.Vault.DeleteSecret(ctx, keySecretName(userID)); err != nil && !errors.Is(err, vault.ErrSecretNotFound) {
			return err
		}
	}
	return a.Enrollments.Delete(ctx, userID)
}

// Enrolled reports whether biometric login can be offered to userID.
func (a *Authenticator) Enrolled(ctx context.Context, userID string) bool {
	if a.Prompter.Capability() == CapabilityNone {
		return false
	}
	_, err := a.Enrollments.Get(ctx, userID)
	return err == nil
}

// Options prepares a login attempt for userID.
func (a *Authenticator) Options(ctx context.Context, userID string) (LoginOptions, error) {
	e, err := a.Enrollments.Get(ctx, userID)
	if err != nil {
		return LoginOptions{}, err
	}
	if e.KeyID == "" {
		return LoginOptions{Mode: ModeLocal, UserID: userID}, nil
	}

	remote, err := a.Backend.BiometricOptions(ctx, userID, e.KeyID)
	if err != nil {
		return LoginOptions{}, err
	}
	nonce, err := remote.Nonce()
	if err != nil {
		return LoginOptions{}, fmt.Errorf("%w: malformed challenge", apiclient.ErrServer)
	}
	return LoginOptions{
		Mode:        ModeServer,
		UserID:      userID,
		ChallengeID: remote.ChallengeID,
		KeyID:       remote.KeyID,
		Nonce:       nonce,
		ExpiresAt:   remote.ExpiresAt,
	}, nil
}

// Login prompts the user and exchanges the result for a session. It returns
// false without error when the prompt is declined. Tokens are stored in the
// vault on success.
func (a *Authenticator) Login(ctx context.Context, opts LoginOptions) (bool, error) {
	ok, err := a.Prompter.Prompt(ctx, "Sign in to Brokerline")
	if err != nil || !ok {
		return false, err
	}

	var tokens vault.Tokens
	switch opts.Mode {
	case ModeServer:
		seed, err := a.Vault.Secret(ctx, keySecretName(opts.UserID))
		if err != nil {
			return false, err
		}
		if len(seed) != ed25519.SeedSize {
			return false, fmt.Errorf("biometric: corrupt device key")
		}
		sig := ed25519.Sign(ed25519.NewKeyFromSeed(seed), opts.Nonce)
		if tokens, err = a.Backend.BiometricLogin(ctx, opts.ChallengeID, opts.KeyID, sig); err != nil {
			return false, err
		}
	case ModeLocal:
		pin, pinErr := a.Local.Pin(ctx)
		phone, phoneErr := a.Local.Phone(ctx)
		if pinErr != nil || phoneErr != nil {
			return false, ErrNoLocalCredential
		}
		if tokens, err = a.Backend.LoginByPin(ctx, phone, pin, a.PushToken); err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("biometric: unknown mode %q", opts.Mode)
	}

	if err := a.Vault.SetTokens(ctx, tokens); err != nil {
		return false, err
	}
	if err := a.Enrollments.Touch(ctx, opts.UserID, a.now()); err != nil {
		a.Logger.Warn("touch enrollment", slog.String("user_id", opts.UserID), slog.Any("error", err))
	}
	return true, nil
}
