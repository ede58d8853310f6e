package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/brokerline/brokerline/internal/logging"
	"github.com/brokerline/brokerline/internal/vault"
)

type fakeBackend struct {
	access       string
	refresh      string
	refreshCalls atomic.Int32
	lastIdemKey  atomic.Value
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+b.access {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("/auth/pin/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req["pin"] {
		case "9999":
			if req["device_id"] != "dev-1" || req["push_token"] != "push" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"user_id": "u1", "access_token": b.access, "refresh_token": b.refresh})
		case "0000":
			writeJSON(w, http.StatusLocked, map[string]string{"error": "account temporarily locked"})
		case "5555":
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "boom"})
		default:
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		}
	})
	mux.HandleFunc("/identity/lookup", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if r.Header.Get("Authorization") != "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lookup is anonymous"})
			return
		}
		known := req["phone"] == "+70000000000"
		writeJSON(w, http.StatusOK, map[string]bool{"registered": known, "has_pin": known && req["device_id"] == "dev-1"})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["refresh_token"] != b.refresh {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": b.access, "refresh_token": b.refresh})
	})
	mux.HandleFunc("/me", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"user_id": "u1", "phone": "+70000000000", "has_pin": true})
	}))
	mux.HandleFunc("/auth/pin", authed(func(w http.ResponseWriter, r *http.Request) {
		b.lastIdemKey.Store(r.Header.Get("Idempotency-Key"))
		writeJSON(w, http.StatusOK, map[string]string{"status": "pin_installed"})
	}))
	return mux
}

func newClient(t *testing.T, b *fakeBackend) (*Client, *vault.Memory) {
	t.Helper()
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)
	tokens := vault.NewMemory()
	return New(Config{BaseURL: srv.URL + "/", DeviceID: "dev-1"}, tokens, logging.Discard()), tokens
}

func TestLoginByPinStatusMapping(t *testing.T) {
	c, _ := newClient(t, &fakeBackend{access: "a1", refresh: "r1"})
	ctx := context.Background()

	tokens, err := c.LoginByPin(ctx, "+70000000000", "9999", "push")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if tokens.AccessToken != "a1" || tokens.RefreshToken != "r1" {
		t.Fatalf("unexpected tokens %+v", tokens)
	}

	cases := []struct {
		pin  string
		want error
	}{
		{"1111", ErrInvalidCredentials},
		{"0000", ErrLocked},
		{"5555", ErrServer},
	}
	for _, tc := range cases {
		if _, err := c.LoginByPin(ctx, "+70000000000", tc.pin, "push"); !errors.Is(err, tc.want) {
			t.Fatalf("pin %s: expected %v, got %v", tc.pin, tc.want, err)
		}
	}
}

func TestAuthenticatedCallRefreshesOnce(t *testing.T) {
	b := &fakeBackend{access: "fresh", refresh: "r1"}
	c, tokens := newClient(t, b)
	ctx := context.Background()
	_ = tokens.SetTokens(ctx, vault.Tokens{AccessToken: "stale", RefreshToken: "r1"})

	user, err := c.Me(ctx)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if !user.HasPin || user.ID != "u1" {
		t.Fatalf("unexpected user %+v", user)
	}
	if b.refreshCalls.Load() != 1 {
		t.Fatalf("expected one refresh, got %d", b.refreshCalls.Load())
	}
	stored, _ := tokens.Tokens(ctx)
	if stored.AccessToken != "fresh" {
		t.Fatalf("expected refreshed token stored, got %+v", stored)
	}
}

func TestRefreshFailureForgetsSession(t *testing.T) {
	c, tokens := newClient(t, &fakeBackend{access: "fresh", refresh: "r2"})
	ctx := context.Background()
	_ = tokens.SetTokens(ctx, vault.Tokens{AccessToken: "stale", RefreshToken: "revoked"})

	if _, err := c.Me(ctx); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := tokens.Tokens(ctx); !errors.Is(err, vault.ErrNoTokens) {
		t.Fatalf("expected tokens reset, got %v", err)
	}
	if _, err := c.Me(ctx); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized without tokens, got %v", err)
	}
}

func TestInstallPinSendsIdempotencyKey(t *testing.T) {
	b := &fakeBackend{access: "a1", refresh: "r1"}
	c, tokens := newClient(t, b)
	ctx := context.Background()
	_ = tokens.SetTokens(ctx, vault.Tokens{AccessToken: "a1", RefreshToken: "r1"})

	if err := c.InstallPin(ctx, "1234"); err != nil {
		t.Fatalf("install: %v", err)
	}
	if key, _ := b.lastIdemKey.Load().(string); key == "" {
		t.Fatalf("expected idempotency key header")
	}
}

func TestLookupPhoneWithoutSession(t *testing.T) {
	c, _ := newClient(t, &fakeBackend{access: "a1", refresh: "r1"})
	ctx := context.Background()

	status, err := c.LookupPhone(ctx, "+70000000000")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !status.Registered || !status.HasPin {
		t.Fatalf("unexpected status %+v", status)
	}

	status, err = c.LookupPhone(ctx, "+79999999999")
	if err != nil || status.Registered {
		t.Fatalf("expected unknown phone, got %+v (%v)", status, err)
	}
}
