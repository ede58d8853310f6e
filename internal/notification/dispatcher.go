package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Dispatcher fans account events out to every push token the user registered.
type Dispatcher struct {
	tokens   TokenRepository
	notifier Notifier
	logger   *slog.Logger
}

// NewDispatcher builds a push dispatcher.
func NewDispatcher(tokens TokenRepository, notifier Notifier, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{tokens: tokens, notifier: notifier, logger: logger}
}

// RegisterToken remembers a device push token for the user. Empty tokens are ignored.
func (d *Dispatcher) RegisterToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return d.tokens.Register(ctx, userID, token)
}

// LoginAlert notifies the user about a new session opened with the given method.
func (d *Dispatcher) LoginAlert(ctx context.Context, userID, method string) {
	d.broadcast(ctx, userID, KindLoginAlert, fmt.Sprintf("New sign-in with %s", method))
}

// PINChanged notifies the user that the PIN was (re)installed.
func (d *Dispatcher) PINChanged(ctx context.Context, userID string) {
	d.broadcast(ctx, userID, KindPINChanged, "Your PIN was changed")
}

// broadcast never fails the caller: delivery problems are logged.
func (d *Dispatcher) broadcast(ctx context.Context, userID, kind, body string) {
	tokens, err := d.tokens.ListByUser(ctx, userID)
	if err != nil {
		d.logger.Warn("list push tokens", slog.String("user_id", userID), slog.Any("error", err))
		return
	}
	for _, token := range tokens {
		if err := d.notifier.Send(ctx, Message{Kind: kind, Destination: token, Body: body}); err != nil {
			d.logger.Warn("push delivery failed", slog.String("user_id", userID), slog.String("kind", kind), slog.Any("error", err))
		}
	}
}
