package pinflow

import (
	"errors"
	"fmt"

	"github.com/brokerline/brokerline/internal/apiclient"
)

var (
	// ErrInvalidCredentials means the backend rejected the PIN.
	ErrInvalidCredentials = apiclient.ErrInvalidCredentials
	// ErrServer covers every other failure of a PIN login or install.
	ErrServer = apiclient.ErrServer
	// ErrMismatch means the confirmation did not match the new PIN.
	ErrMismatch = errors.New("PINs do not match")
	// ErrMissingPhone means there is no phone on file to log in with.
	ErrMissingPhone = errors.New("no phone number on this device")
	// ErrBiometricFailure means the automatic biometric attempt did not log the user in.
	ErrBiometricFailure = errors.New("biometric login failed")
	// ErrInvalidDigit is returned by Digit for anything but 0-9.
	ErrInvalidDigit = errors.New("not a digit")
)

// Notice is a transient user-visible message. Kind is one of the errors above;
// Err carries the underlying cause when there is one.
type Notice struct {
	Kind error
	Err  error
}

func (n Notice) String() string {
	if n.Err == nil || n.Err == n.Kind {
		return n.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", n.Kind, n.Err)
}

// classifyLogin maps a LoginByPin error onto the flow's taxonomy.
func classifyLogin(err error) error {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return err
	case errors.Is(err, apiclient.ErrLocked), errors.Is(err, apiclient.ErrRateLimited):
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	case errors.Is(err, ErrServer):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrServer, err)
	}
}

func kindOf(err error) error {
	if errors.Is(err, ErrInvalidCredentials) {
		return ErrInvalidCredentials
	}
	return ErrServer
}
