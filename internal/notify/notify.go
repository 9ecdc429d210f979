// Package notify tells customers about order progress. Inputs are validated
// before any delivery is attempted.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/orderflow-core/internal/apperr"
	"github.com/joao-fontenele/orderflow-core/internal/domain"
	"github.com/joao-fontenele/orderflow-core/internal/ledger"
	"github.com/joao-fontenele/orderflow-core/internal/telemetry"
)

const (
	Topic = "notifications.email"

	trackingURL = "https://track.example.com/%s"
)

var (
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s.]+$`)
	trackingPattern = regexp.MustCompile(`^[A-Z0-9]{4,}$`)
)

func ValidateEmail(s string) error {
	if !emailPattern.MatchString(s) {
		return fmt.Errorf("%w: %q", apperr.ErrInvalidEmail, s)
	}
	return nil
}

// NormalizeTrackingNumber upper-cases n and checks that it is at least four
// alphanumeric characters.
func NormalizeTrackingNumber(n string) (string, error) {
	n = strings.ToUpper(strings.TrimSpace(n))
	if !trackingPattern.MatchString(n) {
		return "", fmt.Errorf("%w: %q", apperr.ErrInvalidTrackingNumber, n)
	}
	return n, nil
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg domain.EmailMessage) error
}

type Notifier struct {
	sender   Sender
	logger   *slog.Logger
	sent     metric.Int64Counter
	failures metric.Int64Counter
}

func NewNotifier(sender Sender, logger *slog.Logger) *Notifier {
	return &Notifier{
		sender:   sender,
		logger:   logger,
		sent:     telemetry.Counter("orderflow/notify", "notifications.sent", "Notifications handed to a sender"),
		failures: telemetry.Counter("orderflow/notify", "notifications.failed", "Notifications the sender rejected"),
	}
}

func (n *Notifier) NotifyOrderConfirmed(ctx context.Context, orderID, email string, total ledger.Money) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if total <= 0 {
		return fmt.Errorf("%w: total %s", apperr.ErrInvalidAmount, total)
	}

	return n.send(ctx, "order_confirmed", domain.EmailMessage{
		To:      email,
		Subject: "Order Confirmation: " + orderID,
		Body:    fmt.Sprintf("Your order %s has been confirmed. Total charged: %s.", orderID, total),
	})
}

func (n *Notifier) NotifyShipped(ctx context.Context, trackingNumber, email string) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}
	number, err := NormalizeTrackingNumber(trackingNumber)
	if err != nil {
		return err
	}

	return n.send(ctx, "order_shipped", domain.EmailMessage{
		To:      email,
		Subject: "Your order has shipped",
		Body:    fmt.Sprintf("Track your package at %s.", fmt.Sprintf(trackingURL, number)),
	})
}

func (n *Notifier) send(ctx context.Context, kind string, msg domain.EmailMessage) error {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	if err := n.sender.Send(ctx, msg); err != nil {
		n.failures.Add(ctx, 1, attrs)
		return fmt.Errorf("send %s notification: %w", kind, err)
	}
	n.sent.Add(ctx, 1, attrs)
	n.logger.Info("notification sent", "kind", kind, "to", msg.To)
	return nil
}
