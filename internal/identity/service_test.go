package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := NewService(NewMemoryRepository(), LockoutPolicy{})

	ctx := context.Background()
	user, err := svc.Register(ctx, Registration{Phone: "+70000000000", PIN: "1234", DeviceID: "device-1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !user.HasPIN() {
		t.Fatalf("expected PIN to be stored")
	}

	authed, err := svc.Authenticate(ctx, Credentials{Phone: user.Phone, PIN: "1234", DeviceID: "device-1"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.LastLogin == nil {
		t.Fatalf("expected last login to be stamped")
	}
}

func TestRegisterWithoutPINThenSetPIN(t *testing.T) {
	svc := NewService(NewMemoryRepository(), LockoutPolicy{})
	ctx := context.Background()

	user, err := svc.Register(ctx, Registration{Phone: "+70000000001", DeviceID: "device-1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.HasPIN() {
		t.Fatalf("expected no PIN")
	}

	if _, err := svc.Authenticate(ctx, Credentials{Phone: user.Phone, PIN: "0000"}); !errors.Is(err, ErrPINNotSet) {
		t.Fatalf("expected ErrPINNotSet, got %v", err)
	}

	if err := svc.SetPIN(ctx, user.ID, "12a4"); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("expected ErrInvalidPIN, got %v", err)
	}
	if err := svc.SetPIN(ctx, user.ID, "0000"); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	if _, err := svc.Authenticate(ctx, Credentials{Phone: user.Phone, PIN: "0000", DeviceID: "device-1"}); err != nil {
		t.Fatalf("authenticate after set: %v", err)
	}
}

func TestRegisterDuplicatePhone(t *testing.T) {
	svc := NewService(NewMemoryRepository(), LockoutPolicy{})
	ctx := context.Background()

	if _, err := svc.Register(ctx, Registration{Phone: "123"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, Registration{Phone: "123"}); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthenticateDeviceMismatch(t *testing.T) {
	svc := NewService(NewMemoryRepository(), LockoutPolicy{})
	ctx := context.Background()

	if _, err := svc.Register(ctx, Registration{Phone: "123", PIN: "1234", DeviceID: "device-1"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Authenticate(ctx, Credentials{Phone: "123", PIN: "1234", DeviceID: "device-2"}); !errors.Is(err, ErrDeviceMismatch) {
		t.Fatalf("expected device mismatch error, got %v", err)
	}
}

func TestAuthenticateBoundUserRequiresDevice(t *testing.T) {
	svc := NewService(NewMemoryRepository(), LockoutPolicy{})
	ctx := context.Background()

	if _, err := svc.Register(ctx, Registration{Phone: "124", PIN: "1234", DeviceID: "device-1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Authenticate(ctx, Credentials{Phone: "124", PIN: "1234"}); !errors.Is(err, ErrDeviceRequired) {
		t.Fatalf("expected device required for a bound user, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, Credentials{Phone: "124", PIN: "1234", DeviceID: "device-1"}); err != nil {
		t.Fatalf("authenticate from bound device: %v", err)
	}
}

func TestAuthenticateLocksAfterRepeatedFailures(t *testing.T) {
	svc := NewService(NewMemoryRepository(), LockoutPolicy{MaxAttempts: 3, Lockout: time.Minute})
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := svc.Register(ctx, Registration{Phone: "555", PIN: "1234", DeviceID: "d"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.Authenticate(ctx, Credentials{Phone: "555", PIN: "9999", DeviceID: "d"}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	if _, err := svc.Authenticate(ctx, Credentials{Phone: "555", PIN: "9999", DeviceID: "d"}); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected lock on third failure, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, Credentials{Phone: "555", PIN: "1234", DeviceID: "d"}); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected correct PIN to be refused while locked, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := svc.Authenticate(ctx, Credentials{Phone: "555", PIN: "1234", DeviceID: "d"}); err != nil {
		t.Fatalf("expected login after lockout expiry: %v", err)
	}
}

func TestAuthenticateUnknownPhone(t *testing.T) {
	svc := NewService(NewMemoryRepository(), LockoutPolicy{})
	if _, err := svc.Authenticate(context.Background(), Credentials{Phone: "nobody", PIN: "1234"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLookupPIN(t *testing.T) {
	svc := NewService(NewMemoryRepository(), LockoutPolicy{})
	ctx := context.Background()

	status, err := svc.LookupPIN(ctx, "+70000000009", "device-1")
	if err != nil || status.Registered {
		t.Fatalf("expected unknown phone, got %+v (%v)", status, err)
	}

	user, err := svc.Register(ctx, Registration{Phone: "+70000000009", DeviceID: "device-1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if status, _ := svc.LookupPIN(ctx, user.Phone, "device-1"); !status.Registered || status.HasPIN {
		t.Fatalf("expected registered without pin, got %+v", status)
	}

	if err := svc.SetPIN(ctx, user.ID, "1234"); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	if status, _ := svc.LookupPIN(ctx, user.Phone, "device-1"); !status.HasPIN {
		t.Fatalf("expected pin usable from the bound device")
	}
	if status, _ := svc.LookupPIN(ctx, user.Phone, "device-2"); status.HasPIN {
		t.Fatalf("expected pin hidden from another device")
	}
}
