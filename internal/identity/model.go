package identity

import (
	"errors"
	"time"
)

var (
	// ErrUserExists is returned when a phone number is already registered.
	ErrUserExists = errors.New("user exists")
	// ErrNotFound is returned by repositories for unknown users.
	ErrNotFound = errors.New("user not found")
	// ErrInvalidCredentials covers unknown phones and wrong PINs alike.
	ErrInvalidCredentials = errors.New("invalid phone or PIN")
	// ErrPINNotSet is returned when PIN login is attempted before a PIN was installed.
	ErrPINNotSet = errors.New("PIN is not set")
	// ErrInvalidPIN is returned for PINs that are not exactly four digits.
	ErrInvalidPIN = errors.New("PIN must be exactly 4 digits")
	// ErrLocked is returned while the account is locked after repeated PIN failures.
	ErrLocked = errors.New("too many failed PIN attempts, account temporarily locked")
	// ErrDeviceRequired is returned when the first login carries no device id.
	ErrDeviceRequired = errors.New("device binding required")
	// ErrDeviceMismatch is returned when a login comes from a device other than the bound one.
	ErrDeviceMismatch = errors.New("device mismatch")
)

// PINLength is the number of digits in a PIN.
const PINLength = 4

// User represents a registered brokerage client.
type User struct {
	ID             string
	Phone          string
	PINHash        []byte
	DeviceID       string
	TokenVersion   int
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
	LastLogin      *time.Time
}

// HasPIN reports whether the user installed a server-side PIN.
func (u User) HasPIN() bool {
	return len(u.PINHash) > 0
}

// LockedAt reports whether the account is locked at the given instant.
func (u User) LockedAt(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// Credentials request structure.
type Credentials struct {
	Phone    string
	PIN      string
	DeviceID string
}

// LoginState is the mutable part of a user touched by every PIN attempt.
type LoginState struct {
	FailedAttempts int
	LockedUntil    *time.Time
	LastLogin      *time.Time
}

// ValidatePIN checks the PIN shape without looking at any stored hash.
func ValidatePIN(pin string) error {
	if len(pin) != PINLength {
		return ErrInvalidPIN
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return ErrInvalidPIN
		}
	}
	return nil
}
