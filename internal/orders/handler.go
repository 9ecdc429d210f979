package orders

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joao-fontenele/orderflow-core/internal/auth"
	"github.com/joao-fontenele/orderflow-core/internal/domain"
	"github.com/joao-fontenele/orderflow-core/internal/httpx"
	"github.com/joao-fontenele/orderflow-core/internal/telemetry"
)

const defaultListLimit = 50

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
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(h.HandleList))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(h.HandleGet))
	mux.HandleFunc("GET /orders/{id}/refund-amount", telemetry.WithHTTPRoute(h.HandleRefundAmount))
	mux.HandleFunc("PUT /orders/{id}/status", telemetry.WithHTTPRoute(h.HandleUpdateStatus))
	mux.HandleFunc("POST /orders/{id}/cancel", telemetry.WithHTTPRoute(h.HandleCancel))
	mux.HandleFunc("PUT /orders/{id}/tracking", telemetry.WithHTTPRoute(h.HandleTracking))
	mux.HandleFunc("PUT /orders/{id}/shipping-address", telemetry.WithHTTPRoute(h.HandleShippingAddress))
	mux.HandleFunc("POST /orders/{id}/returns", telemetry.WithHTTPRoute(h.HandleReturn))
	mux.HandleFunc("GET /users/{userId}/orders", telemetry.WithHTTPRoute(h.HandleListForUser))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	order, err := h.svc.View(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get order", "order_id", id)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

// HandleList lists orders by status for staff: GET /orders?status=shipped&limit=10.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := defaultListLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(w, h.logger, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	status := q.Get("status")
	if status == "" {
		status = string(domain.OrderStatusPending)
	}

	orders, err := h.svc.ListByStatus(r.Context(), auth.FromContext(r.Context()), status, limit)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list orders", "status", status)
		return
	}

	h.logger.Info("orders listed", "status", status, "count", len(orders))
	httpx.WriteJSON(w, h.logger, http.StatusOK, orders)
}

func (h *Handler) HandleListForUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	orders, err := h.svc.ListForUser(r.Context(), auth.FromContext(r.Context()), userID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list orders", "user_id", userID)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, orders)
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid status", "order_id", id)
		return
	}

	p := auth.FromContext(r.Context())
	var order domain.Order
	if status == domain.OrderStatusCancelled {
		order, err = h.svc.Cancel(r.Context(), p, id, req.Reason)
	} else {
		order, err = h.svc.Transition(r.Context(), p, id, status)
	}
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to update order status", "order_id", id, "status", status)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req cancelRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	order, err := h.svc.Cancel(r.Context(), auth.FromContext(r.Context()), id, req.Reason)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to cancel order", "order_id", id)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

type trackingRequest struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

func (h *Handler) HandleTracking(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req trackingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.svc.AddTrackingInfo(r.Context(), auth.FromContext(r.Context()), id, req.Carrier, req.TrackingNumber)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to add tracking", "order_id", id)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

func (h *Handler) HandleShippingAddress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var addr domain.Address
	if err := httpx.DecodeJSON(r, &addr); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.svc.UpdateShippingAddress(r.Context(), auth.FromContext(r.Context()), id, addr)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to update shipping address", "order_id", id)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

type returnRequest struct {
	Items  []string `json:"items"`
	Reason string   `json:"reason"`
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req returnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	ret, err := h.svc.ProcessReturn(r.Context(), auth.FromContext(r.Context()), id, req.Items, req.Reason)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to process return", "order_id", id)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, ret)
}

type refundAmountResponse struct {
	OrderID string `json:"order_id"`
	Amount  string `json:"amount"`
}

func (h *Handler) HandleRefundAmount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	order, err := h.svc.View(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get order", "order_id", id)
		return
	}
	amount, err := CalculateRefundAmount(order)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "order is not refundable", "order_id", id)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, refundAmountResponse{OrderID: id, Amount: amount.String()})
}
