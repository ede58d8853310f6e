package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brokerline/brokerline/internal/identity"
)

// BiometricModeServer is the only mode the backend issues: the device proves
// possession of its enrolled key by signing a one-time challenge.
const BiometricModeServer = "server"

const challengeSize = 32

var (
	// ErrKeyNotFound is returned for unknown or foreign biometric keys.
	ErrKeyNotFound = errors.New("biometric key not found")
	// ErrChallengeNotFound is returned for expired, consumed or unknown challenges.
	ErrChallengeNotFound = errors.New("biometric challenge not found")
	// ErrBadSignature is returned when the challenge signature does not verify.
	ErrBadSignature = errors.New("biometric signature invalid")
	// ErrInvalidPublicKey is returned when a registered key is not an ed25519 public key.
	ErrInvalidPublicKey = errors.New("public key must be a raw ed25519 key")
)

// BiometricKey is a device public key enrolled for biometric login.
type BiometricKey struct {
	ID         string
	UserID     string
	PublicKey  []byte
	DeviceName string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// Challenge is a single-use nonce bound to a user and key.
type Challenge struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	KeyID     string    `json:"key_id"`
	Nonce     []byte    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BiometricService enrolls device keys and exchanges signed challenges for logins.
type BiometricService struct {
	keys       KeyRepository
	challenges ChallengeStore
	users      *identity.Service
	ttl        time.Duration
	now        func() time.Time
}

// NewBiometricService builds the biometric login service.
func NewBiometricService(keys KeyRepository, challenges ChallengeStore, users *identity.Service, ttl time.Duration) *BiometricService {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &BiometricService{keys: keys, challenges: challenges, users: users, ttl: ttl, now: time.Now}
}

// RegisterKey stores a device public key for the user.
func (s *BiometricService) RegisterKey(ctx context.Context, userID string, publicKey []byte, deviceName string) (BiometricKey, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return BiometricKey{}, ErrInvalidPublicKey
	}
	deviceName = strings.TrimSpace(deviceName)
	if deviceName == "" {
		deviceName = "unknown device"
	}
	key := BiometricKey{
		ID:         uuid.NewString(),
		UserID:     userID,
		PublicKey:  publicKey,
		DeviceName: deviceName,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return BiometricKey{}, err
	}
	return key, nil
}

// RevokeKey removes a key owned by the user.
func (s *BiometricService) RevokeKey(ctx context.Context, userID, keyID string) error {
	return s.keys.Delete(ctx, userID, keyID)
}

// Options issues a fresh challenge for the user's key.
func (s *BiometricService) Options(ctx context.Context, userID, keyID string) (Challenge, error) {
	key, err := s.keys.Get(ctx, keyID)
	if err != nil {
		return Challenge{}, err
	}
	if key.UserID != userID {
		return Challenge{}, ErrKeyNotFound
	}

	nonce := make([]byte, challengeSize)
	if _, err := rand.Read(nonce); err != nil {
		return Challenge{}, fmt.Errorf("generate challenge: %w", err)
	}
	ch := Challenge{
		ID:        uuid.NewString(),
		UserID:    userID,
		KeyID:     keyID,
		Nonce:     nonce,
		ExpiresAt: s.now().UTC().Add(s.ttl),
	}
	if err := s.challenges.Put(ctx, ch, s.ttl); err != nil {
		return Challenge{}, err
	}
	return ch, nil
}

// Login consumes the challenge and verifies the signature over its nonce.
func (s *BiometricService) Login(ctx context.Context, challengeID, keyID string, signature []byte) (identity.User, error) {
	ch, err := s.challenges.Take(ctx, challengeID)
	if err != nil {
		return identity.User{}, err
	}
	if ch.KeyID != keyID || s.now().After(ch.ExpiresAt) {
		return identity.User{}, ErrChallengeNotFound
	}

	key, err := s.keys.Get(ctx, keyID)
	if err != nil {
		return identity.User{}, err
	}
	if key.UserID != ch.UserID {
		return identity.User{}, ErrKeyNotFound
	}
	if !ed25519.Verify(ed25519.PublicKey(key.PublicKey), ch.Nonce, signature) {
		return identity.User{}, ErrBadSignature
	}

	user, err := s.users.FindByID(ctx, key.UserID)
	if err != nil {
		return identity.User{}, err
	}
	if err := s.keys.TouchUsed(ctx, key.ID, s.now().UTC()); err != nil {
		return identity.User{}, err
	}
	if err := s.users.MarkLogin(ctx, user.ID); err != nil {
		return identity.User{}, err
	}
	return user, nil
}
