// Package session tracks the signed-in user as last reported by the backend.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/brokerline/brokerline/internal/apiclient"
)

// User is the part of the profile the client acts on.
type User struct {
	ID     string
	Phone  string
	HasPin bool
}

// Backend is the remote side of the session.
type Backend interface {
	Me(ctx context.Context) (apiclient.User, error)
	Logout(ctx context.Context) error
}

// Clearer wipes a local credential store.
type Clearer interface {
	Clear(ctx context.Context) error
}

// TokenResetter forgets the stored session tokens.
type TokenResetter interface {
	ResetTokens(ctx context.Context) error
}

// Provider holds the current user and notifies watchers when it changes.
type Provider struct {
	backend Backend
	local   Clearer
	tokens  TokenResetter
	logger  *slog.Logger

	mu       sync.Mutex
	user     User
	present  bool
	nextID   int
	watchers map[int]func(User, bool)
}

// NewProvider builds a provider with no current user.
func NewProvider(backend Backend, local Clearer, tokens TokenResetter, logger *slog.Logger) *Provider {
	return &Provider{
		backend:  backend,
		local:    local,
		tokens:   tokens,
		logger:   logger,
		watchers: make(map[int]func(User, bool)),
	}
}

// Current returns the last fetched user. ok is false when nobody is signed in.
func (p *Provider) Current() (User, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.user, p.present
}

// Refetch reloads the user from the backend. On failure the previous record is
// kept and the error returned; a rejected session drops the record.
func (p *Provider) Refetch(ctx context.Context) (User, error) {
	remote, err := p.backend.Me(ctx)
	if err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			p.set(User{}, false)
		}
		return User{}, err
	}
	u := User{ID: remote.ID, Phone: remote.Phone, HasPin: remote.HasPin}
	p.set(u, true)
	return u, nil
}

// Prime records a user known without a session, such as the result of a
// phone lookup on a signed-out device. It does nothing while a fetched user is
// present; the next successful Refetch replaces it.
func (p *Provider) Prime(u User) {
	p.mu.Lock()
	present := p.present
	p.mu.Unlock()
	if present {
		return
	}
	p.set(u, true)
}

// Watch registers fn to run after every change of the current user. The
// returned func unsubscribes.
func (p *Provider) Watch(fn func(u User, ok bool)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.watchers[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.watchers, id)
		p.mu.Unlock()
	}
}

// Logout revokes the session on the backend when possible, then wipes the
// local PIN store and the vault tokens and drops the user.
func (p *Provider) Logout(ctx context.Context) error {
	if err := p.backend.Logout(ctx); err != nil {
		p.logger.Warn("remote logout failed", slog.Any("error", err))
	}

	var errs []error
	if err := p.local.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := p.tokens.ResetTokens(ctx); err != nil {
		errs = append(errs, err)
	}
	p.set(User{}, false)
	return errors.Join(errs...)
}

func (p *Provider) set(u User, present bool) {
	p.mu.Lock()
	if p.user == u && p.present == present {
		p.mu.Unlock()
		return
	}
	p.user, p.present = u, present

	ids := make([]int, 0, len(p.watchers))
	for id := range p.watchers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(User, bool), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, p.watchers[id])
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(u, present)
	}
}
