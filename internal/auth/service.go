package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/brokerline/brokerline/internal/config"
	"github.com/brokerline/brokerline/internal/identity"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	// ErrInvalidToken covers malformed, expired and wrongly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenRevoked is returned when the token version no longer matches the user.
	ErrTokenRevoked = errors.New("token version invalidated")
)

// Service issues and verifies session token pairs.
type Service struct {
	cfg   config.Config
	users *identity.Service
	now   func() time.Time
}

// NewService builds a token service.
func NewService(cfg config.Config, users *identity.Service) *Service {
	return &Service{cfg: cfg, users: users, now: time.Now}
}

// TokenPair is the session credential handed to clients.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims is the JWT payload of both token kinds.
type Claims struct {
	Version int    `json:"ver"`
	Type    string `json:"typ"`
	jwt.RegisteredClaims
}

// Issue signs a fresh access/refresh pair for the user.
func (s *Service) Issue(user identity.User) (TokenPair, error) {
	access, err := s.sign(user, tokenTypeAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(user, tokenTypeRefresh, s.cfg.RefreshSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

func (s *Service) sign(user identity.User, typ, secret string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Version: user.TokenVersion,
		Type:    typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

func (s *Service) parse(token, typ, secret string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || claims.Type != typ || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// VerifyAccess validates an access token and checks it against the current token version.
func (s *Service) VerifyAccess(ctx context.Context, token string) (identity.User, error) {
	claims, err := s.parse(token, tokenTypeAccess, s.cfg.JWTSecret)
	if err != nil {
		return identity.User{}, err
	}
	return s.currentUser(ctx, claims)
}

// Refresh verifies the refresh token and returns a new access token paired with
// the same refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.parse(refreshToken, tokenTypeRefresh, s.cfg.RefreshSecret)
	if err != nil {
		return TokenPair{}, err
	}
	user, err := s.currentUser(ctx, claims)
	if err != nil {
		return TokenPair{}, err
	}
	access, err := s.sign(user, tokenTypeAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refreshToken, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

func (s *Service) currentUser(ctx context.Context, claims Claims) (identity.User, error) {
	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.User{}, ErrInvalidToken
		}
		return identity.User{}, err
	}
	if user.TokenVersion != claims.Version {
		return identity.User{}, ErrTokenRevoked
	}
	return user, nil
}

// Logout increments token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.users.RevokeTokens(ctx, userID)
}
