// Package apiclient talks to the Brokerline backend over HTTP.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brokerline/brokerline/internal/vault"
)

// TokenStore is where the client keeps the session between calls.
type TokenStore interface {
	Tokens(ctx context.Context) (vault.Tokens, error)
	SetTokens(ctx context.Context, t vault.Tokens) error
	ResetTokens(ctx context.Context) error
}

// Config configures a Client.
type Config struct {
	BaseURL  string
	DeviceID string
	Timeout  time.Duration
}

// Client is a backend API client. Authenticated calls use the access token
// from the TokenStore and refresh it once on a 401.
type Client struct {
	baseURL  string
	deviceID string
	http     *http.Client
	tokens   TokenStore
	logger   *slog.Logger
}

// New builds a client.
func New(cfg Config, tokens TokenStore, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		deviceID: cfg.DeviceID,
		http:     &http.Client{Timeout: timeout},
		tokens:   tokens,
		logger:   logger,
	}
}

// DeviceID is the identifier this client binds logins to.
func (c *Client) DeviceID() string {
	return c.deviceID
}

type request struct {
	method        string
	path          string
	body          any
	authenticated bool
	idempotent    bool
}

type errorBody struct {
	Error string `json:"error"`
}

// call performs req and decodes a 2xx body into out. Non-2xx responses are
// returned as *APIError; callers map specific statuses to sentinels.
func (c *Client) call(ctx context.Context, req request, out any) error {
	idempotencyKey := ""
	if req.idempotent {
		idempotencyKey = uuid.NewString()
	}

	status, body, err := c.send(ctx, req, idempotencyKey)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized && req.authenticated {
		if err := c.Refresh(ctx); err != nil {
			return err
		}
		if status, body, err = c.send(ctx, req, idempotencyKey); err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return ErrUnauthorized
		}
	}

	if status < 200 || status >= 300 {
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		if eb.Error == "" {
			eb.Error = http.StatusText(status)
		}
		return &APIError{Status: status, Message: eb.Error}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrServer, req.path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, req request, idempotencyKey string) (int, []byte, error) {
	var payload io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return 0, nil, err
		}
		payload = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, payload)
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if req.authenticated {
		tokens, err := c.tokens.Tokens(ctx)
		if err != nil {
			if errors.Is(err, vault.ErrNoTokens) {
				return 0, nil, ErrUnauthorized
			}
			return 0, nil, err
		}
		httpReq.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %v", ErrServer, req.method, req.path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read %s: %v", ErrServer, req.path, err)
	}
	c.logger.Debug("api call",
		slog.String("method", req.method),
		slog.String("path", req.path),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", resp.Header.Get("X-Request-ID")),
	)
	return resp.StatusCode, body, nil
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
