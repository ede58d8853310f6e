package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// LockoutPolicy bounds PIN guessing per account.
type LockoutPolicy struct {
	MaxAttempts int
	Lockout     time.Duration
}

// Service manages identity lifecycle.
type Service struct {
	repo   Repository
	policy LockoutPolicy
	now    func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository, policy LockoutPolicy) *Service {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 5
	}
	if policy.Lockout <= 0 {
		policy.Lockout = 15 * time.Minute
	}
	return &Service{repo: repo, policy: policy, now: time.Now}
}

// Registration carries onboarding input. The PIN is optional: most clients set
// it on the first launch after phone verification.
type Registration struct {
	Phone    string
	DeviceID string
	PIN      string
}

// Register creates a user, hashing the PIN when one is supplied.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	phone := strings.TrimSpace(reg.Phone)
	if phone == "" {
		return User{}, errors.New("phone is required")
	}

	var hash []byte
	if reg.PIN != "" {
		var err error
		if hash, err = hashPIN(reg.PIN); err != nil {
			return User{}, err
		}
	}

	user := User{
		ID:        uuid.New().String(),
		Phone:     phone,
		PINHash:   hash,
		DeviceID:  reg.DeviceID,
		CreatedAt: s.now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	return user, nil
}

// Authenticate verifies phone + PIN, enforces the lockout policy and device binding.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByPhone(ctx, strings.TrimSpace(creds.Phone))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if !user.HasPIN() {
		return User{}, ErrPINNotSet
	}

	now := s.now().UTC()
	if user.LockedAt(now) {
		return User{}, ErrLocked
	}

	if err := bcrypt.CompareHashAndPassword(user.PINHash, []byte(creds.PIN)); err != nil {
		return User{}, s.recordFailure(ctx, user, now)
	}

	switch {
	case creds.DeviceID == "":
		return User{}, ErrDeviceRequired
	case user.DeviceID == "":
		if err := s.repo.UpdateDevice(ctx, user.ID, creds.DeviceID); err != nil {
			return User{}, err
		}
		user.DeviceID = creds.DeviceID
	case user.DeviceID != creds.DeviceID:
		return User{}, ErrDeviceMismatch
	}

	if err := s.MarkLogin(ctx, user.ID); err != nil {
		return User{}, err
	}
	user.FailedAttempts = 0
	user.LockedUntil = nil
	user.LastLogin = &now

	return user, nil
}

// PINStatus is what an unauthenticated client may learn about a phone.
type PINStatus struct {
	Registered bool
	// HasPIN reports that PIN login is available from the asking device.
	HasPIN bool
}

// LookupPIN tells a signed-out device whether it can log in by PIN. A PIN bound
// to another device is reported as absent.
func (s *Service) LookupPIN(ctx context.Context, phone, deviceID string) (PINStatus, error) {
	user, err := s.repo.FindByPhone(ctx, strings.TrimSpace(phone))
	if errors.Is(err, ErrNotFound) {
		return PINStatus{}, nil
	}
	if err != nil {
		return PINStatus{}, err
	}
	usable := user.HasPIN() && (user.DeviceID == "" || user.DeviceID == deviceID)
	return PINStatus{Registered: true, HasPIN: usable}, nil
}

// MarkLogin clears the failure counter and stamps the last login time. Used by
// every successful login path, PIN or biometric.
func (s *Service) MarkLogin(ctx context.Context, userID string) error {
	now := s.now().UTC()
	return s.repo.UpdateLoginState(ctx, userID, LoginState{LastLogin: &now})
}

func (s *Service) recordFailure(ctx context.Context, user User, now time.Time) error {
	state := LoginState{FailedAttempts: user.FailedAttempts + 1}
	locked := state.FailedAttempts >= s.policy.MaxAttempts
	if locked {
		until := now.Add(s.policy.Lockout)
		state.LockedUntil = &until
		state.FailedAttempts = 0
	}
	if err := s.repo.UpdateLoginState(ctx, user.ID, state); err != nil {
		return fmt.Errorf("record PIN failure: %w", err)
	}
	if locked {
		return ErrLocked
	}
	return ErrInvalidCredentials
}

// SetPIN installs or replaces the user's PIN.
func (s *Service) SetPIN(ctx context.Context, userID, pin string) error {
	hash, err := hashPIN(pin)
	if err != nil {
		return err
	}
	return s.repo.UpdatePIN(ctx, userID, hash)
}

// FindByID returns the user with the given id.
func (s *Service) FindByID(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// RevokeTokens bumps the token version so previously issued tokens stop verifying.
func (s *Service) RevokeTokens(ctx context.Context, userID string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.repo.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1)
}

func hashPIN(pin string) ([]byte, error) {
	if err := ValidatePIN(pin); err != nil {
		return nil, err
	}
	return bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
}
