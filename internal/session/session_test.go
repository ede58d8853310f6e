package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/brokerline/brokerline/internal/apiclient"
	"github.com/brokerline/brokerline/internal/localstore"
	"github.com/brokerline/brokerline/internal/logging"
	"github.com/brokerline/brokerline/internal/vault"
)

type fakeBackend struct {
	mu         sync.Mutex
	user       apiclient.User
	err        error
	logoutErr  error
	logoutHits int
}

func (b *fakeBackend) Me(context.Context) (apiclient.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.user, b.err
}

func (b *fakeBackend) Logout(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logoutHits++
	return b.logoutErr
}

func TestRefetchNotifiesOnChange(t *testing.T) {
	backend := &fakeBackend{user: apiclient.User{ID: "u1", Phone: "+70000000000"}}
	p := NewProvider(backend, localstore.NewMemory(), vault.NewMemory(), logging.Discard())

	var seen []User
	stop := p.Watch(func(u User, ok bool) { seen = append(seen, u) })

	if _, err := p.Refetch(context.Background()); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if _, err := p.Refetch(context.Background()); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("expected one notification for an unchanged user, got %d", len(seen))
	}

	backend.user.HasPin = true
	if _, err := p.Refetch(context.Background()); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if len(seen) != 2 || !seen[1].HasPin {
		t.Fatalf("expected hasPin change notification, got %+v", seen)
	}

	stop()
	backend.user.HasPin = false
	_, _ = p.Refetch(context.Background())
	if len(seen) != 2 {
		t.Fatalf("unsubscribed watcher must not run")
	}
}

func TestRefetchFailureKeepsPreviousUser(t *testing.T) {
	backend := &fakeBackend{user: apiclient.User{ID: "u1"}}
	p := NewProvider(backend, localstore.NewMemory(), vault.NewMemory(), logging.Discard())
	_, _ = p.Refetch(context.Background())

	backend.err = apiclient.ErrServer
	if _, err := p.Refetch(context.Background()); !errors.Is(err, apiclient.ErrServer) {
		t.Fatalf("expected server error, got %v", err)
	}
	if u, ok := p.Current(); !ok || u.ID != "u1" {
		t.Fatalf("expected previous user kept, got %+v %v", u, ok)
	}

	backend.err = apiclient.ErrUnauthorized
	_, _ = p.Refetch(context.Background())
	if _, ok := p.Current(); ok {
		t.Fatalf("expected user dropped after unauthorized")
	}
}

func TestLogoutWipesLocalState(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{user: apiclient.User{ID: "u1"}, logoutErr: apiclient.ErrServer}
	local := localstore.NewMemory()
	tokens := vault.NewMemory()
	_ = local.SetPin(ctx, "1234")
	_ = tokens.SetTokens(ctx, vault.Tokens{AccessToken: "a", RefreshToken: "r"})

	p := NewProvider(backend, local, tokens, logging.Discard())
	_, _ = p.Refetch(ctx)

	if err := p.Logout(ctx); err != nil {
		t.Fatalf("logout must succeed even if the backend is down: %v", err)
	}
	if backend.logoutHits != 1 {
		t.Fatalf("expected remote logout attempt")
	}
	if _, err := local.Pin(ctx); !errors.Is(err, localstore.ErrNotFound) {
		t.Fatalf("expected pin cleared, got %v", err)
	}
	if _, err := tokens.Tokens(ctx); !errors.Is(err, vault.ErrNoTokens) {
		t.Fatalf("expected tokens cleared, got %v", err)
	}
	if _, ok := p.Current(); ok {
		t.Fatalf("expected user dropped")
	}
}

func TestPrimeOnlyWithoutFetchedUser(t *testing.T) {
	backend := &fakeBackend{user: apiclient.User{ID: "u1", Phone: "+70000000000", HasPin: true}}
	p := NewProvider(backend, localstore.NewMemory(), vault.NewMemory(), logging.Discard())

	var seen []User
	p.Watch(func(u User, ok bool) { seen = append(seen, u) })

	p.Prime(User{Phone: "+70000000000", HasPin: true})
	if u, ok := p.Current(); !ok || !u.HasPin || u.ID != "" {
		t.Fatalf("expected primed user, got %+v %v", u, ok)
	}

	if _, err := p.Refetch(context.Background()); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	p.Prime(User{Phone: "+71111111111"})
	if u, _ := p.Current(); u.ID != "u1" {
		t.Fatalf("prime must not replace a fetched user, got %+v", u)
	}
	if len(seen) != 2 {
		t.Fatalf("expected prime and refetch notifications, got %d", len(seen))
	}
}
