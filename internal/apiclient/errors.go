package apiclient

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned when the backend rejects a phone/PIN pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLocked is returned while the account is locked after repeated PIN failures.
	ErrLocked = errors.New("account temporarily locked")
	// ErrRateLimited is returned when the backend throttles login attempts.
	ErrRateLimited = errors.New("too many attempts")
	// ErrUnauthorized is returned for authenticated calls without a usable session.
	ErrUnauthorized = errors.New("not signed in")
	// ErrServer matches every unexpected backend response.
	ErrServer = errors.New("server error")
)

// APIError carries a non-2xx response that has no more specific sentinel.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Is makes every APIError match ErrServer.
func (e *APIError) Is(target error) bool {
	return target == ErrServer
}
