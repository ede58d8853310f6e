package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brokerline/brokerline/internal/config"
	"github.com/brokerline/brokerline/internal/identity"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:       "access-secret",
		RefreshSecret:   "refresh-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		ChallengeTTL:    time.Minute,
	}
}

func newTokenFixture(t *testing.T) (*Service, *identity.Service, identity.User) {
	t.Helper()
	users := identity.NewService(identity.NewMemoryRepository(), identity.LockoutPolicy{})
	user, err := users.Register(context.Background(), identity.Registration{Phone: "+70000000000", PIN: "9999", DeviceID: "d1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return NewService(testConfig(), users), users, user
}

func TestIssueAndVerifyAccess(t *testing.T) {
	svc, _, user := newTokenFixture(t)

	pair, err := svc.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := svc.VerifyAccess(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("expected subject %s, got %s", user.ID, got.ID)
	}

	if _, err := svc.VerifyAccess(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token must not verify as access token, got %v", err)
	}
}

func TestAccessTokenExpires(t *testing.T) {
	svc, _, user := newTokenFixture(t)
	pair, err := svc.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := svc.VerifyAccess(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestRefreshAndLogout(t *testing.T) {
	svc, _, user := newTokenFixture(t)
	ctx := context.Background()

	pair, err := svc.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	refreshed, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken != pair.RefreshToken || refreshed.AccessToken == "" {
		t.Fatalf("unexpected refreshed pair %+v", refreshed)
	}

	if err := svc.Logout(ctx, user.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected revoked refresh token, got %v", err)
	}
	if _, err := svc.VerifyAccess(ctx, refreshed.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected revoked access token, got %v", err)
	}
}

func TestTokensSignedWithOtherSecretRejected(t *testing.T) {
	svc, users, user := newTokenFixture(t)
	cfg := testConfig()
	cfg.JWTSecret = "other"
	other := NewService(cfg, users)

	pair, err := other.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.VerifyAccess(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected signature failure, got %v", err)
	}
}
