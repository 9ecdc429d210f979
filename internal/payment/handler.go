package payment

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/orderflow-core/internal/apperr"
	"github.com/joao-fontenele/orderflow-core/internal/auth"
	"github.com/joao-fontenele/orderflow-core/internal/domain"
	"github.com/joao-fontenele/orderflow-core/internal/httpx"
	"github.com/joao-fontenele/orderflow-core/internal/ledger"
	"github.com/joao-fontenele/orderflow-core/internal/telemetry"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /payments", telemetry.WithHTTPRoute(h.HandleProcess))
	mux.HandleFunc("GET /payments/installments", telemetry.WithHTTPRoute(h.HandleInstallments))
	mux.HandleFunc("GET /payments/tax", telemetry.WithHTTPRoute(h.HandleTax))
	mux.HandleFunc("GET /payments/{id}", telemetry.WithHTTPRoute(h.HandleGet))
	mux.HandleFunc("POST /payments/{id}/refunds", telemetry.WithHTTPRoute(h.HandleRefund))
	mux.HandleFunc("POST /orders/{id}/payment", telemetry.WithHTTPRoute(h.HandlePayOrder))
	mux.HandleFunc("POST /orders/{id}/refund", telemetry.WithHTTPRoute(h.HandleRefundOrder))
	mux.HandleFunc("POST /subscriptions", telemetry.WithHTTPRoute(h.HandleCreateSubscription))
}

type paymentRequest struct {
	CustomerID string `json:"customer_id"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Method     string `json:"method"`
}

func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())

	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	customerID := p.UserID
	if req.CustomerID != "" {
		customerID = req.CustomerID
	}
	if err := auth.RequireOwnerOr(p, customerID, auth.PermManageOrders); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "payment denied")
		return
	}

	amount, err := ledger.Parse(req.Amount)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid amount", "amount", req.Amount)
		return
	}

	tx, err := h.svc.ProcessPayment(r.Context(), PaymentRequest{
		CustomerID:     customerID,
		Amount:         amount,
		Currency:       req.Currency,
		Method:         req.Method,
		IdempotencyKey: r.Header.Get(HeaderIdempotencyKey),
	})
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to process payment", "customer_id", customerID)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, tx)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	tx, err := h.svc.GetTransaction(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get transaction", "transaction_id", id)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, tx)
}

type refundRequest struct {
	Amount string `json:"amount,omitempty"`
}

func (r refundRequest) amount() (*ledger.Money, error) {
	if r.Amount == "" {
		return nil, nil
	}
	m, err := ledger.Parse(r.Amount)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (h *Handler) HandleRefund(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req refundRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	amount, err := req.amount()
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid refund amount", "transaction_id", id)
		return
	}

	res, err := h.svc.RefundPayment(r.Context(), auth.FromContext(r.Context()), id, amount)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to refund payment", "transaction_id", id)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, res)
}

type payOrderRequest struct {
	Method string `json:"method"`
}

func (h *Handler) HandlePayOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req payOrderRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	tx, err := h.svc.PayOrder(r.Context(), auth.FromContext(r.Context()), id, req.Method, r.Header.Get(HeaderIdempotencyKey))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to pay order", "order_id", id)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, tx)
}

func (h *Handler) HandleRefundOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req refundRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	amount, err := req.amount()
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid refund amount", "order_id", id)
		return
	}

	res, err := h.svc.RefundOrder(r.Context(), auth.FromContext(r.Context()), id, amount)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to refund order", "order_id", id)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, res)
}

func (h *Handler) HandleInstallments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	total, err := ledger.Parse(q.Get("total"))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid total")
		return
	}
	n, err := strconv.Atoi(q.Get("count"))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, apperr.ErrInvalidInstallmentCount, "invalid installment count")
		return
	}
	rate := decimal.Zero
	if raw := q.Get("rate"); raw != "" {
		if rate, err = decimal.NewFromString(raw); err != nil {
			httpx.WriteDomainError(w, h.logger, apperr.ErrInvalidPercent, "invalid interest rate")
			return
		}
	}

	plan, err := h.svc.CalculateInstallments(total, n, rate)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to calculate installments")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, plan)
}

func (h *Handler) HandleTax(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	amount, err := ledger.Parse(q.Get("amount"))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid amount")
		return
	}
	rate, err := decimal.NewFromString(q.Get("rate"))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, apperr.ErrInvalidTaxRate, "invalid tax rate")
		return
	}
	country := q.Get("country")
	if country == "" {
		country = "US"
	}

	quote, err := CalculateTax(amount, rate, country)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to calculate tax")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, quote)
}

type subscriptionRequest struct {
	CustomerID string     `json:"customer_id"`
	Amount     string     `json:"amount"`
	Currency   string     `json:"currency"`
	Method     string     `json:"method"`
	Frequency  string     `json:"frequency"`
	EndsAt     *time.Time `json:"ends_at,omitempty"`
}

func (h *Handler) HandleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := ledger.Parse(req.Amount)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid amount")
		return
	}

	sub, err := h.svc.CreateSubscription(r.Context(), auth.FromContext(r.Context()), SubscriptionRequest{
		CustomerID: req.CustomerID,
		Amount:     amount,
		Currency:   req.Currency,
		Method:     req.Method,
		Frequency:  domain.Frequency(req.Frequency),
		EndsAt:     req.EndsAt,
	})
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to create subscription")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, sub)
}
