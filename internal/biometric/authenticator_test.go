package biometric

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/brokerline/brokerline/internal/apiclient"
	"github.com/brokerline/brokerline/internal/localstore"
	"github.com/brokerline/brokerline/internal/logging"
	"github.com/brokerline/brokerline/internal/vault"
)

type fakePrompter struct {
	kind   Capability
	accept bool
	calls  int
}

func (p *fakePrompter) Capability() Capability { return p.kind }

func (p *fakePrompter) Prompt(context.Context, string) (bool, error) {
	p.calls++
	return p.accept, nil
}

type fakeBackend struct {
	keys     map[string]ed25519.PublicKey
	nonce    []byte
	revoked  []string
	pinCalls []string
}

func (b *fakeBackend) RegisterBiometricKey(_ context.Context, pub ed25519.PublicKey, _ string) (string, error) {
	if b.keys == nil {
		b.keys = make(map[string]ed25519.PublicKey)
	}
	b.keys["k1"] = pub
	return "k1", nil
}

func (b *fakeBackend) RevokeBiometricKey(_ context.Context, keyID string) error {
	b.revoked = append(b.revoked, keyID)
	return nil
}

func (b *fakeBackend) BiometricOptions(_ context.Context, _, keyID string) (apiclient.BiometricOptions, error) {
	b.nonce = []byte("challenge-nonce-0123456789abcdef")
	return apiclient.BiometricOptions{
		Mode:        "server",
		ChallengeID: "c1",
		KeyID:       keyID,
		Challenge:   base64.StdEncoding.EncodeToString(b.nonce),
		ExpiresAt:   time.Now().Add(time.Minute),
	}, nil
}

func (b *fakeBackend) BiometricLogin(_ context.Context, challengeID, keyID string, sig []byte) (vault.Tokens, error) {
	if challengeID != "c1" || !ed25519.Verify(b.keys[keyID], b.nonce, sig) {
		return vault.Tokens{}, apiclient.ErrInvalidCredentials
	}
	return vault.Tokens{AccessToken: "bio-access", RefreshToken: "bio-refresh"}, nil
}

func (b *fakeBackend) LoginByPin(_ context.Context, phone, pin, push string) (vault.Tokens, error) {
	b.pinCalls = append(b.pinCalls, phone+"/"+pin+"/"+push)
	return vault.Tokens{AccessToken: "pin-access", RefreshToken: "pin-refresh"}, nil
}

type fixture struct {
	auth     *Authenticator
	prompter *fakePrompter
	backend  *fakeBackend
	vault    *vault.Memory
	local    *localstore.Memory
}

func newFixture(kind Capability) fixture {
	f := fixture{
		prompter: &fakePrompter{kind: kind, accept: true},
		backend:  &fakeBackend{},
		vault:    vault.NewMemory(),
		local:    localstore.NewMemory(),
	}
	f.auth = NewAuthenticator(Deps{
		Prompter:    f.prompter,
		Enrollments: NewMemoryEnrollments(),
		Backend:     f.backend,
		Vault:       f.vault,
		Local:       f.local,
		PushToken:   "push-1",
		Logger:      logging.Discard(),
	})
	return f
}

func TestServerModeRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(CapabilityFace)

	e, err := f.auth.Enroll(ctx, "u1", "laptop", ModeServer)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if e.KeyID != "k1" || !f.auth.Enrolled(ctx, "u1") {
		t.Fatalf("expected server enrollment, got %+v", e)
	}

	opts, err := f.auth.Options(ctx, "u1")
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Mode != ModeServer {
		t.Fatalf("expected server mode, got %s", opts.Mode)
	}
	ok, err := f.auth.Login(ctx, opts)
	if err != nil || !ok {
		t.Fatalf("login: %v %v", ok, err)
	}
	tokens, _ := f.vault.Tokens(ctx)
	if tokens.AccessToken != "bio-access" {
		t.Fatalf("expected tokens persisted, got %+v", tokens)
	}
	stored, _ := f.auth.Enrollments.Get(ctx, "u1")
	if stored.LastUsedAt == nil {
		t.Fatalf("expected lastUsedAt to be stamped")
	}
}

func TestLocalModeUnlocksStoredPin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(CapabilityFingerprint)
	_ = f.local.SetPin(ctx, "9999")
	_ = f.local.SetPhone(ctx, "+70000000000")

	if _, err := f.auth.Enroll(ctx, "u1", "laptop", ModeLocal); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	opts, err := f.auth.Options(ctx, "u1")
	if err != nil || opts.Mode != ModeLocal {
		t.Fatalf("expected local options, got %+v %v", opts, err)
	}
	ok, err := f.auth.Login(ctx, opts)
	if err != nil || !ok {
		t.Fatalf("login: %v %v", ok, err)
	}
	if len(f.backend.pinCalls) != 1 || f.backend.pinCalls[0] != "+70000000000/9999/push-1" {
		t.Fatalf("unexpected pin calls %v", f.backend.pinCalls)
	}

	_ = f.local.RemovePin(ctx)
	if _, err := f.auth.Login(ctx, opts); !errors.Is(err, ErrNoLocalCredential) {
		t.Fatalf("expected missing credential, got %v", err)
	}
}

func TestDeclinedPromptIsNotAnError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(CapabilityFace)
	if _, err := f.auth.Enroll(ctx, "u1", "laptop", ModeLocal); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	f.prompter.accept = false

	ok, err := f.auth.Login(ctx, LoginOptions{Mode: ModeLocal, UserID: "u1"})
	if err != nil || ok {
		t.Fatalf("expected declined login, got %v %v", ok, err)
	}
	if _, err := f.auth.Enroll(ctx, "u2", "laptop", ModeLocal); !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected cancelled enrollment, got %v", err)
	}
}

func TestDisableRevokesKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(CapabilityFace)
	if _, err := f.auth.Enroll(ctx, "u1", "laptop", ModeServer); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if err := f.auth.Disable(ctx, "u1"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if f.auth.Enrolled(ctx, "u1") {
		t.Fatalf("expected enrollment removed")
	}
	if len(f.backend.revoked) != 1 || f.backend.revoked[0] != "k1" {
		t.Fatalf("expected key revoked, got %v", f.backend.revoked)
	}
	if _, err := f.vault.Secret(ctx, keySecretName("u1")); !errors.Is(err, vault.ErrSecretNotFound) {
		t.Fatalf("expected device key deleted, got %v", err)
	}
}

func TestNoSensor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(CapabilityNone)
	if _, err := f.auth.Enroll(ctx, "u1", "laptop", ModeLocal); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	_ = f.auth.Enrollments.Save(ctx, Enrollment{UserID: "u1"})
	if f.auth.Enrolled(ctx, "u1") {
		t.Fatalf("enrollment must not be offered without a sensor")
	}
}

func TestFileEnrollments(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local", "biometrics.json")
	store, err := NewFileEnrollments(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Get(ctx, "u1"); !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("expected not enrolled, got %v", err)
	}
	if err := store.Save(ctx, Enrollment{UserID: "u1", KeyID: "k1", DeviceName: "laptop", EnabledAt: time.Now()}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Touch(ctx, "u1", time.Now()); err != nil {
		t.Fatalf("touch: %v", err)
	}

	reopened, _ := NewFileEnrollments(path)
	e, err := reopened.Get(ctx, "u1")
	if err != nil || e.KeyID != "k1" || e.LastUsedAt == nil {
		t.Fatalf("unexpected enrollment %+v %v", e, err)
	}
	if err := reopened.Delete(ctx, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := reopened.Touch(ctx, "u1", time.Now()); !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("expected not enrolled, got %v", err)
	}
}
