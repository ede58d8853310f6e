package pinflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brokerline/brokerline/internal/localstore"
)

// Digit appends d to the buffer. When the buffer reaches PinLength the
// submission runs before Digit returns and its error, if any, is returned.
// Digits are ignored while the buffer is full, a submission is in flight, or
// the step is not resolved yet.
func (f *Flow) Digit(ctx context.Context, d rune) error {
	if d < '0' || d > '9' {
		return ErrInvalidDigit
	}
	f.mu.Lock()
	if !f.accepting() || len(f.buf) >= PinLength {
		f.mu.Unlock()
		return nil
	}
	f.buf = append(f.buf, byte(d))
	full := len(f.buf) == PinLength
	f.mu.Unlock()

	if full {
		return f.Submit(ctx)
	}
	return nil
}

// Delete removes the last digit, if any, and clears the error flag.
func (f *Flow) Delete() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.accepting() {
		return
	}
	if len(f.buf) > 0 {
		f.buf = f.buf[:len(f.buf)-1]
	}
	f.errFlag = false
}

// ResetPin clears the buffer and the error flag. The step is kept.
func (f *Flow) ResetPin() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.accepting() {
		return
	}
	f.buf = f.buf[:0]
	f.errFlag = false
}

func (f *Flow) accepting() bool {
	return f.resolved && !f.closed && !f.loggedIn && !f.busy
}

// Submit processes a full buffer according to the current step. It is a no-op
// while the buffer is short or another submission is in flight. Failures are
// reported through the error flag, a notice and a haptic pulse, and also
// returned.
func (f *Flow) Submit(ctx context.Context) error {
	f.mu.Lock()
	if !f.accepting() || len(f.buf) < PinLength {
		f.mu.Unlock()
		return nil
	}
	pin := string(f.buf)

	switch f.step {
	case StepCreate:
		f.pending = pin
		f.buf = f.buf[:0]
		f.errFlag = false
		f.step = StepConfirm
		f.mu.Unlock()
		return nil

	case StepConfirm:
		if pin != f.pending {
			f.pending = ""
			f.buf = f.buf[:0]
			f.errFlag = true
			f.step = StepCreate
			f.mu.Unlock()
			f.pulse()
			f.notify(ErrMismatch, nil)
			return ErrMismatch
		}
		f.busy = true
		f.mu.Unlock()
		return f.install(ctx, pin)

	default:
		f.busy = true
		f.mu.Unlock()
		return f.login(ctx, pin)
	}
}

func (f *Flow) login(ctx context.Context, pin string) error {
	phone, err := f.cfg.Local.Phone(ctx)
	if err != nil || phone == "" {
		if err != nil && !errors.Is(err, localstore.ErrNotFound) {
			f.logger.Warn("read phone", slog.Any("error", err))
		}
		if f.finishFailed(false) {
			f.notify(ErrMissingPhone, nil)
		}
		return ErrMissingPhone
	}

	tokens, err := f.cfg.Auth.LoginByPin(ctx, phone, pin, f.cfg.PushToken)
	if err != nil {
		err = classifyLogin(err)
		f.logger.Info("pin login rejected", slog.String("phone", phone), slog.Any("error", err))
		if f.finishFailed(true) {
			f.pulse()
			f.notify(kindOf(err), err)
		}
		f.maybeBiometric()
		return err
	}

	if f.isClosed() {
		f.release()
		return nil
	}
	if err := f.cfg.Vault.SetTokens(ctx, tokens); err != nil {
		err = fmt.Errorf("%w: store session: %w", ErrServer, err)
		if f.finishFailed(true) {
			f.notify(ErrServer, err)
		}
		return err
	}
	f.mirrorPin(ctx, pin)
	f.succeed(ctx, "pin", true)
	return nil
}

func (f *Flow) install(ctx context.Context, pin string) error {
	if err := f.cfg.Auth.InstallPin(ctx, pin); err != nil {
		if !errors.Is(err, ErrServer) {
			err = fmt.Errorf("%w: %w", ErrServer, err)
		}
		f.logger.Warn("install pin failed", slog.Any("error", err))
		f.mu.Lock()
		f.busy = false
		closed := f.closed
		if !closed {
			f.errFlag = true
		}
		f.mu.Unlock()
		if !closed {
			f.notify(ErrServer, err)
		}
		return err
	}

	if f.isClosed() {
		f.release()
		return nil
	}
	if err := f.cfg.Local.SetPin(ctx, pin); err != nil {
		f.logger.Warn("store new pin locally", slog.Any("error", err))
	}

	f.mu.Lock()
	if !f.closed {
		f.step = StepEnter
	}
	f.mu.Unlock()
	f.succeed(ctx, "install", true)
	return nil
}

// mirrorPin keeps the local copy in line with a PIN the server just accepted.
func (f *Flow) mirrorPin(ctx context.Context, pin string) {
	if stored, err := f.cfg.Local.Pin(ctx); err == nil && stored == pin {
		return
	}
	if err := f.cfg.Local.SetPin(ctx, pin); err != nil {
		f.logger.Warn("mirror pin locally", slog.Any("error", err))
	}
}

// finishFailed ends a submission that did not log in: the buffer is cleared
// and, when flag is set, the error flag raised. It reports false if the flow
// was closed meanwhile, in which case nothing is touched.
func (f *Flow) finishFailed(flag bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	if f.closed {
		return false
	}
	f.buf = f.buf[:0]
	if flag {
		f.errFlag = true
	}
	return true
}

func (f *Flow) release() {
	f.mu.Lock()
	f.busy = false
	f.mu.Unlock()
}

func (f *Flow) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
