// Package pinflow is the local authentication orchestrator: it decides
// whether the user creates, confirms or enters a PIN, drives digit entry to
// the backend, and makes one unattended biometric attempt per flow.
//
// A Flow is single-use. Hosts construct a new one each time the PIN prompt
// opens and Close it when the prompt goes away.
package pinflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/brokerline/brokerline/internal/biometric"
	"github.com/brokerline/brokerline/internal/logging"
	"github.com/brokerline/brokerline/internal/session"
	"github.com/brokerline/brokerline/internal/vault"
)

// PinLength is the number of digits in a PIN.
const PinLength = 4

// Step is the prompt the flow is showing.
type Step int

const (
	StepEnter Step = iota
	StepCreate
	StepConfirm
)

func (s Step) String() string {
	switch s {
	case StepEnter:
		return "enter"
	case StepCreate:
		return "create"
	case StepConfirm:
		return "confirm"
	default:
		return "unknown"
	}
}

// LocalStore holds the device PIN and phone.
type LocalStore interface {
	Pin(ctx context.Context) (string, error)
	SetPin(ctx context.Context, pin string) error
	Phone(ctx context.Context) (string, error)
}

// Vault receives session tokens after a PIN login.
type Vault interface {
	SetTokens(ctx context.Context, t vault.Tokens) error
}

// AuthService is the remote side of PIN login and installation.
type AuthService interface {
	LoginByPin(ctx context.Context, phone, pin, pushToken string) (vault.Tokens, error)
	InstallPin(ctx context.Context, pin string) error
}

// Biometrics is the device biometric subsystem.
type Biometrics interface {
	Enrolled(ctx context.Context, userID string) bool
	Options(ctx context.Context, userID string) (biometric.LoginOptions, error)
	Login(ctx context.Context, opts biometric.LoginOptions) (bool, error)
}

// SessionProvider supplies the signed-in user.
type SessionProvider interface {
	Current() (session.User, bool)
	Refetch(ctx context.Context) (session.User, error)
	Watch(fn func(u session.User, ok bool)) func()
}

// Haptics gives tactile feedback on a rejected PIN.
type Haptics interface {
	Pulse()
}

// Notifier shows transient notices.
type Notifier interface {
	Notify(n Notice)
}

// Config wires a Flow. Biometrics, Haptics, Notifier and the callbacks are optional.
type Config struct {
	Local      LocalStore
	Vault      Vault
	Auth       AuthService
	Session    SessionProvider
	Biometrics Biometrics
	Haptics    Haptics
	Notifier   Notifier
	PushToken  string
	OnSuccess  func()
	OnClose    func()
	Logger     *slog.Logger
}

// State is a snapshot for rendering. The PIN itself is never exposed.
type State struct {
	Step          Step
	Digits        int
	Error         bool
	Resolved      bool
	Busy          bool
	BiometricBusy bool
	LoggedIn      bool
	Closed        bool
}

// Flow is one PIN prompt session.
type Flow struct {
	cfg    Config
	logger *slog.Logger
	wg     sync.WaitGroup

	mu       sync.Mutex
	ctx      context.Context
	step     Step
	buf      []byte
	pending  string
	errFlag  bool
	resolved bool
	busy     bool
	closed   bool
	unwatch  func()
	hasPin   bool
	userID   string

	// one-shot latches, never reset
	loggedIn       bool
	triedBiometric bool

	bioEnrolled bool
	bioLoading  bool
	bioOptions  *biometric.LoginOptions
	bioBusy     bool
}

// New builds a flow. Nothing happens until Start.
func New(cfg Config) *Flow {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Flow{cfg: cfg, logger: logger, buf: make([]byte, 0, PinLength)}
}

// State returns the current snapshot.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return State{
		Step:          f.step,
		Digits:        len(f.buf),
		Error:         f.errFlag,
		Resolved:      f.resolved,
		Busy:          f.busy,
		BiometricBusy: f.bioBusy,
		LoggedIn:      f.loggedIn,
		Closed:        f.closed,
	}
}

// Close tears the flow down. Work still in flight completes without touching
// state or calling back. optOut reports the user chose another way to sign in
// and fires OnClose.
func (f *Flow) Close(optOut bool) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	unwatch := f.unwatch
	f.unwatch = nil
	f.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	if optOut && f.cfg.OnClose != nil {
		f.cfg.OnClose()
	}
}

// Wait blocks until background work started by the flow has finished.
func (f *Flow) Wait() {
	f.wg.Wait()
}

func (f *Flow) pulse() {
	if f.cfg.Haptics != nil {
		f.cfg.Haptics.Pulse()
	}
}

func (f *Flow) notify(kind, err error) {
	if f.cfg.Notifier != nil {
		f.cfg.Notifier.Notify(Notice{Kind: kind, Err: err})
	}
}

// succeed runs the shared tail of every successful login. When submission is
// set it also ends the in-flight PIN call, so busy and loggedIn change under
// one lock. It reports false when another path already won or the flow was
// closed.
func (f *Flow) succeed(ctx context.Context, method string, submission bool) bool {
	f.mu.Lock()
	if submission {
		f.busy = false
	}
	if f.closed || f.loggedIn {
		f.mu.Unlock()
		return false
	}
	f.loggedIn = true
	f.buf = f.buf[:0]
	f.errFlag = false
	f.pending = ""
	f.mu.Unlock()

	if _, err := f.cfg.Session.Refetch(ctx); err != nil {
		f.logger.Warn("refetch user after login", slog.Any("error", err))
	}
	f.logger.Info("pin flow completed", slog.String("method", method))
	if f.cfg.OnSuccess != nil {
		f.cfg.OnSuccess()
	}
	return true
}
