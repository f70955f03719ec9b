package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

const (
	// KindVerificationCode marks a phone verification message.
	KindVerificationCode = "verification_code"

	ChannelWhatsApp = "whatsapp"
	ChannelSMS      = "sms"
	ChannelLog      = "log"
)

// ErrNotConfigured is returned when a channel lacks provider credentials.
// It is a configuration error and is never retried.
var ErrNotConfigured = errors.New("notification channel not configured")

// TransportError describes a failed delivery attempt at the provider.
type TransportError struct {
	Channel string
	Status  int
	Body    string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s delivery failed: %v", e.Channel, e.Err)
	}
	return fmt.Sprintf("%s delivery failed: provider status %d", e.Channel, e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Channel delivers messages over one provider.
type Channel interface {
	Name() string
	Send(ctx context.Context, message Message) error
}

// LoggerChannel writes messages to the logger instead of a provider.
// Only wired in development.
type LoggerChannel struct {
	logger *slog.Logger
}

// NewLoggerChannel constructs a logging channel.
func NewLoggerChannel(logger *slog.Logger) *LoggerChannel {
	return &LoggerChannel{logger: logger}
}

// Name implements Channel.
func (n *LoggerChannel) Name() string { return ChannelLog }

// Send writes the message to the structured logger.
func (n *LoggerChannel) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}
