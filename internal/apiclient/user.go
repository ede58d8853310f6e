package apiclient

import (
	"context"
	"net/http"
	"time"

	"github.com/brokerline/brokerline/internal/vault"
)

// User is the signed-in user's profile.
type User struct {
	ID           string     `json:"user_id"`
	Phone        string     `json:"phone"`
	HasPin       bool       `json:"has_pin"`
	DeviceID     string     `json:"device_id"`
	TokenVersion int        `json:"token_version"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// Registration is the result of signing up.
type Registration struct {
	User      User
	AccountID string
}

// Register creates a user bound to this device and stores the initial session.
func (c *Client) Register(ctx context.Context, phone string) (Registration, error) {
	var out struct {
		User      User   `json:"user"`
		AccountID string `json:"account_id"`
		tokenResponse
	}
	err := c.call(ctx, request{
		method: http.MethodPost,
		path:   "/identity/register",
		body:   map[string]string{"phone": phone, "device_id": c.deviceID},
	}, &out)
	if err != nil {
		return Registration{}, err
	}
	if err := c.tokens.SetTokens(ctx, vault.Tokens{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}); err != nil {
		return Registration{}, err
	}
	return Registration{User: out.User, AccountID: out.AccountID}, nil
}

// Me fetches the signed-in user's profile.
func (c *Client) Me(ctx context.Context) (User, error) {
	var out User
	err := c.call(ctx, request{method: http.MethodGet, path: "/me", authenticated: true}, &out)
	return out, err
}

// PhoneStatus is the signed-out view of a phone number.
type PhoneStatus struct {
	Registered bool `json:"registered"`
	HasPin     bool `json:"has_pin"`
}

// LookupPhone asks whether phone is registered and can log in by PIN from
// this device. It needs no session.
func (c *Client) LookupPhone(ctx context.Context, phone string) (PhoneStatus, error) {
	var out PhoneStatus
	err := c.call(ctx, request{
		method: http.MethodPost,
		path:   "/identity/lookup",
		body:   map[string]string{"phone": phone, "device_id": c.deviceID},
	}, &out)
	if statusOf(err) == http.StatusTooManyRequests {
		return PhoneStatus{}, ErrRateLimited
	}
	return out, err
}
