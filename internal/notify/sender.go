package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/orderflow-core/internal/apperr"
	"github.com/joao-fontenele/orderflow-core/internal/domain"
)

// HTTPSender posts messages to the email service.
type HTTPSender struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSender(baseURL string, client *http.Client) *HTTPSender {
	return &HTTPSender{baseURL: baseURL, client: client}
}

func (s *HTTPSender) Send(ctx context.Context, msg domain.EmailMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: email service rejected message for %s", apperr.ErrValidation, msg.To)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}

type Publisher interface {
	PublishEvent(ctx context.Context, eventType, key string, payload any) error
}

// QueueSender hands messages to the notification topic; the worker delivers
// them.
type QueueSender struct {
	publisher Publisher
}

func NewQueueSender(p Publisher) *QueueSender {
	return &QueueSender{publisher: p}
}

func (s *QueueSender) Send(ctx context.Context, msg domain.EmailMessage) error {
	return s.publisher.PublishEvent(ctx, domain.EventEmailRequested, msg.To, msg)
}

// LogSender only logs; it stands in when no transport is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(_ context.Context, msg domain.EmailMessage) error {
	s.Logger.Info("email not delivered, no transport configured", "to", msg.To, "subject", msg.Subject)
	return nil
}
