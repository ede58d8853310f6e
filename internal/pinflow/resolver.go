package pinflow

import (
	"context"
	"log/slog"

	"github.com/brokerline/brokerline/internal/session"
)

// Start resolves the initial step, subscribes to session changes and kicks
// off the biometric preparation. ctx is used for all work the flow starts in
// the background.
func (f *Flow) Start(ctx context.Context) {
	f.mu.Lock()
	if f.closed || f.ctx != nil {
		f.mu.Unlock()
		return
	}
	f.ctx = ctx
	f.mu.Unlock()

	user, ok := f.cfg.Session.Current()
	step := f.resolveStep(ctx, ok && user.HasPin)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.step = step
	f.resolved = true
	if ok {
		f.hasPin = user.HasPin
		f.userID = user.ID
	}
	f.mu.Unlock()

	unwatch := f.cfg.Session.Watch(f.sessionChanged)
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		unwatch()
		return
	}
	f.unwatch = unwatch
	f.mu.Unlock()

	f.logger.Debug("pin flow started", slog.String("step", step.String()))
	if ok {
		f.prepareBiometrics(ctx, user.ID)
	}
	f.maybeBiometric()
}

// resolveStep: a local PIN or a server-side PIN means Enter, otherwise Create.
// Store errors count as absent.
func (f *Flow) resolveStep(ctx context.Context, serverHasPin bool) Step {
	if pin, err := f.cfg.Local.Pin(ctx); err == nil && pin != "" {
		return StepEnter
	}
	if serverHasPin {
		return StepEnter
	}
	return StepCreate
}

func (f *Flow) sessionChanged(u session.User, ok bool) {
	f.mu.Lock()
	if f.closed || f.loggedIn || !ok {
		f.mu.Unlock()
		return
	}
	ctx := f.ctx
	pinChanged := u.HasPin != f.hasPin
	userChanged := u.ID != f.userID
	f.hasPin = u.HasPin
	f.userID = u.ID
	f.mu.Unlock()

	if pinChanged {
		f.reresolve(ctx, u.HasPin)
	}
	if userChanged {
		f.prepareBiometrics(ctx, u.ID)
	}
	f.maybeBiometric()
}

func (f *Flow) reresolve(ctx context.Context, serverHasPin bool) {
	step := f.resolveStep(ctx, serverHasPin)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.loggedIn || f.busy || step == f.step {
		return
	}
	// a half-finished create/confirm pair is not thrown away
	if step == StepCreate && f.step == StepConfirm {
		return
	}
	f.logger.Debug("pin step re-resolved", slog.String("from", f.step.String()), slog.String("to", step.String()))
	f.step = step
	f.buf = f.buf[:0]
	f.pending = ""
	f.errFlag = false
}
