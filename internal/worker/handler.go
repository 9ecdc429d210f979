// Package worker delivers queued notifications to the email service.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joao-fontenele/orderflow-core/internal/apperr"
	"github.com/joao-fontenele/orderflow-core/internal/domain"
	"github.com/joao-fontenele/orderflow-core/internal/messaging"
	"github.com/joao-fontenele/orderflow-core/internal/notify"
)

type NotificationHandler struct {
	sender notify.Sender
	logger *slog.Logger
}

func NewNotificationHandler(sender notify.Sender, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		sender: sender,
		logger: logger,
	}
}

// Handle delivers one email.requested event. Events of other types and
// messages that can never be delivered are skipped; delivery failures are
// returned so the message is retried.
func (h *NotificationHandler) Handle(ctx context.Context, env messaging.Envelope) error {
	if env.EventType != domain.EventEmailRequested {
		h.logger.Debug("ignoring event", "event_type", env.EventType, "event_id", env.EventID)
		return nil
	}

	msg, err := messaging.UnwrapPayload[domain.EmailMessage](env)
	if err != nil {
		h.logger.Error("skipping malformed notification", "error", err, "event_id", env.EventID)
		return nil
	}
	if err := notify.ValidateEmail(msg.To); err != nil {
		h.logger.Warn("skipping undeliverable notification", "error", err, "event_id", env.EventID)
		return nil
	}

	h.logger.Info("delivering notification", "to", msg.To, "subject", msg.Subject, "correlation_id", env.CorrelationID)

	if err := h.sender.Send(ctx, msg); err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			h.logger.Warn("email service rejected notification", "error", err, "event_id", env.EventID)
			return nil
		}
		h.logger.Error("failed to deliver notification", "error", err, "event_id", env.EventID)
		return fmt.Errorf("deliver notification %s: %w", env.EventID, err)
	}

	return nil
}
