package notification

import (
	"context"
	"log/slog"
	"time"
)

const (
	// KindTransferSuccess announces a settled outbound transfer.
	KindTransferSuccess = "transfer_success"
	// KindTransferFailed announces a failed transfer, after the refund.
	KindTransferFailed = "transfer_failed"
	// KindDepositSuccess announces an inbound credit.
	KindDepositSuccess = "deposit_success"
)

const (
	// StatusSent marks a delivered notification.
	StatusSent = "sent"
	// StatusFailed marks a notification that could not be delivered.
	StatusFailed = "failed"
	// StatusRead marks a notification the owner has acknowledged.
	StatusRead = "read"
)

// Message describes a notification addressed to an account owner.
type Message struct {
	ID        string            `json:"id"`
	OwnerID   string            `json:"owner_id"`
	Kind      string            `json:"kind"`
	Body      string            `json:"body"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// Notifier delivers notifications to downstream channels. Callers treat
// delivery as fire-and-forget: a notifier error never rolls back financial
// state.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the
// structured logger.
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
	n.logger.Info("notification",
		"kind", message.Kind,
		"owner_id", message.OwnerID,
		"body", message.Body,
	)
	return nil
}
