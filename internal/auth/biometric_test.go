package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/brokerline/brokerline/internal/identity"
)

func newBiometricFixture(t *testing.T, store ChallengeStore) (*BiometricService, identity.User, ed25519.PrivateKey, BiometricKey) {
	t.Helper()
	ctx := context.Background()
	users := identity.NewService(identity.NewMemoryRepository(), identity.LockoutPolicy{})
	user, err := users.Register(ctx, identity.Registration{Phone: "+70000000000", PIN: "1234", DeviceID: "d1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	svc := NewBiometricService(NewMemoryKeyRepository(), store, users, time.Minute)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	key, err := svc.RegisterKey(ctx, user.ID, pub, "Pixel 8")
	if err != nil {
		t.Fatalf("register key: %v", err)
	}
	return svc, user, priv, key
}

func newRedisStore(t *testing.T) *RedisChallengeStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return NewRedisChallengeStore(cache)
}

func TestBiometricLoginRoundTrip(t *testing.T) {
	stores := map[string]ChallengeStore{
		"memory": NewMemoryChallengeStore(),
		"redis":  newRedisStore(t),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc, user, priv, key := newBiometricFixture(t, store)

			ch, err := svc.Options(ctx, user.ID, key.ID)
			if err != nil {
				t.Fatalf("options: %v", err)
			}
			sig := ed25519.Sign(priv, ch.Nonce)

			got, err := svc.Login(ctx, ch.ID, key.ID, sig)
			if err != nil {
				t.Fatalf("login: %v", err)
			}
			if got.ID != user.ID {
				t.Fatalf("expected user %s, got %s", user.ID, got.ID)
			}

			if _, err := svc.Login(ctx, ch.ID, key.ID, sig); !errors.Is(err, ErrChallengeNotFound) {
				t.Fatalf("expected challenge to be single use, got %v", err)
			}
		})
	}
}

func TestBiometricLoginRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	svc, user, _, key := newBiometricFixture(t, NewMemoryChallengeStore())

	ch, err := svc.Options(ctx, user.ID, key.ID)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	_, otherPriv, _ := ed25519.GenerateKey(rand.Reader)
	if _, err := svc.Login(ctx, ch.ID, key.ID, ed25519.Sign(otherPriv, ch.Nonce)); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestBiometricOptionsRejectsForeignKey(t *testing.T) {
	svc, _, _, key := newBiometricFixture(t, NewMemoryChallengeStore())
	if _, err := svc.Options(context.Background(), "someone-else", key.ID); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestRegisterKeyValidatesLength(t *testing.T) {
	svc, user, _, _ := newBiometricFixture(t, NewMemoryChallengeStore())
	if _, err := svc.RegisterKey(context.Background(), user.ID, []byte("short"), "x"); !errors.Is(err, ErrInvalidPublicKey) {
		t.Fatalf("expected ErrInvalidPublicKey, got %v", err)
	}
}

func TestExpiredChallengeRejected(t *testing.T) {
	ctx := context.Background()
	svc, user, priv, key := newBiometricFixture(t, NewMemoryChallengeStore())
	ch, err := svc.Options(ctx, user.ID, key.ID)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := svc.Login(ctx, ch.ID, key.ID, ed25519.Sign(priv, ch.Nonce)); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected expired challenge to be rejected, got %v", err)
	}
}
