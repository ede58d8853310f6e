package pinflow

import (
	"context"
	"log/slog"
)

// prepareBiometrics checks the enrollment for userID and loads login options
// in the background.
func (f *Flow) prepareBiometrics(ctx context.Context, userID string) {
	if f.cfg.Biometrics == nil || userID == "" {
		return
	}
	f.mu.Lock()
	done := f.closed || f.loggedIn || f.triedBiometric
	f.mu.Unlock()
	if done || !f.cfg.Biometrics.Enrolled(ctx, userID) {
		return
	}

	f.mu.Lock()
	if f.closed || f.loggedIn || f.bioLoading || f.bioOptions != nil || f.triedBiometric {
		f.mu.Unlock()
		return
	}
	f.bioEnrolled = true
	f.bioLoading = true
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()
		opts, err := f.cfg.Biometrics.Options(ctx, userID)

		f.mu.Lock()
		f.bioLoading = false
		stale := f.closed || f.loggedIn
		if err == nil && !stale {
			f.bioOptions = &opts
		}
		f.mu.Unlock()

		if stale {
			return
		}
		if err != nil {
			f.logger.Warn("load biometric options", slog.String("user_id", userID), slog.Any("error", err))
			f.notify(ErrBiometricFailure, err)
			return
		}
		f.maybeBiometric()
	}()
}

// maybeBiometric starts the single automatic biometric attempt once every
// precondition holds. The latch is set under the lock before the attempt
// goroutine exists, so overlapping calls start at most one exchange.
func (f *Flow) maybeBiometric() {
	f.mu.Lock()
	if f.closed || f.triedBiometric || f.loggedIn || !f.bioEnrolled || f.bioLoading ||
		f.bioOptions == nil || f.busy || !f.resolved || f.step != StepEnter {
		f.mu.Unlock()
		return
	}
	f.triedBiometric = true
	f.bioBusy = true
	opts := *f.bioOptions
	ctx := f.ctx
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()
		ok, err := f.cfg.Biometrics.Login(ctx, opts)

		f.mu.Lock()
		f.bioBusy = false
		closed := f.closed
		f.mu.Unlock()
		if closed {
			return
		}

		if err != nil || !ok {
			f.logger.Info("automatic biometric login failed", slog.Bool("declined", err == nil), slog.Any("error", err))
			f.notify(ErrBiometricFailure, err)
			return
		}
		f.succeed(ctx, "biometric", false)
	}()
}
