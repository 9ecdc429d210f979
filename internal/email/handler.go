// Package email is a stand-in mail relay: it validates a message, simulates
// delivery latency and logs it.
package email

import (
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/orderflow-core/internal/domain"
	"github.com/joao-fontenele/orderflow-core/internal/httpx"
	"github.com/joao-fontenele/orderflow-core/internal/notify"
	"github.com/joao-fontenele/orderflow-core/internal/telemetry"
)

type Handler struct {
	logger    *slog.Logger
	latency   func() time.Duration
	delivered metric.Int64Counter
}

type Option func(*Handler)

// WithLatency replaces the simulated delivery delay.
func WithLatency(latency func() time.Duration) Option {
	return func(h *Handler) {
		h.latency = latency
	}
}

func NewHandler(logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		logger: logger,
		latency: func() time.Duration {
			return time.Duration(50+rand.IntN(151)) * time.Millisecond
		},
		delivered: telemetry.Counter("orderflow/email", "emails.delivered", "Emails accepted for delivery"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /send", telemetry.WithHTTPRoute(h.HandleSend))
}

type sendResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var msg domain.EmailMessage
	if err := httpx.DecodeJSON(r, &msg); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := notify.ValidateEmail(msg.To); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "rejected email", "to", msg.To)
		return
	}
	if strings.TrimSpace(msg.Subject) == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "subject is required")
		return
	}

	select {
	case <-time.After(h.latency()):
	case <-r.Context().Done():
		return
	}

	h.delivered.Add(r.Context(), 1, metric.WithAttributes(attribute.String("domain", domainOf(msg.To))))
	h.logger.Info("email sent", "to", msg.To, "subject", msg.Subject)

	httpx.WriteJSON(w, h.logger, http.StatusOK, sendResponse{Status: "sent"})
}

func domainOf(addr string) string {
	_, d, _ := strings.Cut(addr, "@")
	return d
}
