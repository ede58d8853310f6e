package notification

import (
	"context"
	"log/slog"
)

const (
	// KindLoginAlert tells the user a new session was opened.
	KindLoginAlert = "login_alert"
	// KindPINChanged tells the user the PIN was installed or replaced.
	KindPINChanged = "pin_changed"
)

// Message describes a push notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("push notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}
