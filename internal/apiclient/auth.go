package apiclient

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/brokerline/brokerline/internal/vault"
)

type tokenResponse struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (t tokenResponse) tokens() vault.Tokens {
	return vault.Tokens{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken}
}

// LoginByPin exchanges phone + PIN for a token pair. The caller decides
// whether to persist the tokens.
func (c *Client) LoginByPin(ctx context.Context, phone, pin, pushToken string) (vault.Tokens, error) {
	var out tokenResponse
	err := c.call(ctx, request{
		method: http.MethodPost,
		path:   "/auth/pin/login",
		body: map[string]string{
			"phone":      phone,
			"pin":        pin,
			"device_id":  c.deviceID,
			"push_token": pushToken,
		},
	}, &out)
	if err != nil {
		return vault.Tokens{}, loginError(err)
	}
	return out.tokens(), nil
}

func loginError(err error) error {
	switch statusOf(err) {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict:
		return ErrInvalidCredentials
	case http.StatusLocked:
		return ErrLocked
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return err
	}
}

// InstallPin sets the PIN of the signed-in user.
func (c *Client) InstallPin(ctx context.Context, pin string) error {
	return c.call(ctx, request{
		method:        http.MethodPut,
		path:          "/auth/pin",
		body:          map[string]string{"pin": pin},
		authenticated: true,
		idempotent:    true,
	}, nil)
}

// Refresh trades the stored refresh token for a new access token. Any failure
// to refresh forgets the session.
func (c *Client) Refresh(ctx context.Context) error {
	current, err := c.tokens.Tokens(ctx)
	if err != nil {
		if errors.Is(err, vault.ErrNoTokens) {
			return ErrUnauthorized
		}
		return err
	}

	var out tokenResponse
	err = c.call(ctx, request{
		method: http.MethodPost,
		path:   "/auth/refresh",
		body:   map[string]string{"refresh_token": current.RefreshToken},
	}, &out)
	if err != nil {
		if statusOf(err) == http.StatusUnauthorized {
			if resetErr := c.tokens.ResetTokens(ctx); resetErr != nil {
				return resetErr
			}
			return ErrUnauthorized
		}
		return err
	}
	return c.tokens.SetTokens(ctx, out.tokens())
}

// Logout revokes every token of the signed-in user on the backend.
func (c *Client) Logout(ctx context.Context) error {
	return c.call(ctx, request{method: http.MethodPost, path: "/auth/logout", authenticated: true}, nil)
}

// BiometricOptions is a login challenge for a registered device key.
type BiometricOptions struct {
	Mode        string    `json:"mode"`
	ChallengeID string    `json:"challenge_id"`
	Challenge   string    `json:"challenge"`
	KeyID       string    `json:"key_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Nonce decodes the challenge bytes to sign.
func (o BiometricOptions) Nonce() ([]byte, error) {
	return base64.StdEncoding.DecodeString(o.Challenge)
}

// BiometricOptions asks the backend for a challenge bound to keyID.
func (c *Client) BiometricOptions(ctx context.Context, userID, keyID string) (BiometricOptions, error) {
	var out BiometricOptions
	err := c.call(ctx, request{
		method: http.MethodPost,
		path:   "/auth/biometric/options",
		body:   map[string]string{"user_id": userID, "key_id": keyID},
	}, &out)
	return out, err
}

// BiometricLogin exchanges a signed challenge for a token pair.
func (c *Client) BiometricLogin(ctx context.Context, challengeID, keyID string, signature []byte) (vault.Tokens, error) {
	var out tokenResponse
	err := c.call(ctx, request{
		method: http.MethodPost,
		path:   "/auth/biometric/login",
		body: map[string]string{
			"challenge_id": challengeID,
			"key_id":       keyID,
			"signature":    base64.StdEncoding.EncodeToString(signature),
		},
	}, &out)
	if err != nil {
		if statusOf(err) == http.StatusUnauthorized {
			return vault.Tokens{}, ErrInvalidCredentials
		}
		return vault.Tokens{}, err
	}
	return out.tokens(), nil
}

// RegisterBiometricKey enrolls a device public key for the signed-in user and
// returns its key id.
func (c *Client) RegisterBiometricKey(ctx context.Context, pub ed25519.PublicKey, deviceName string) (string, error) {
	var out struct {
		KeyID string `json:"key_id"`
	}
	err := c.call(ctx, request{
		method: http.MethodPost,
		path:   "/auth/biometric/keys",
		body: map[string]string{
			"public_key":  base64.StdEncoding.EncodeToString(pub),
			"device_name": deviceName,
		},
		authenticated: true,
	}, &out)
	return out.KeyID, err
}

// RevokeBiometricKey removes a device key.
func (c *Client) RevokeBiometricKey(ctx context.Context, keyID string) error {
	return c.call(ctx, request{method: http.MethodDelete, path: "/auth/biometric/keys/" + keyID, authenticated: true}, nil)
}
