package cart

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/orderflow-core/internal/apperr"
	"github.com/joao-fontenele/orderflow-core/internal/auth"
	"github.com/joao-fontenele/orderflow-core/internal/domain"
	"github.com/joao-fontenele/orderflow-core/internal/httpx"
	"github.com/joao-fontenele/orderflow-core/internal/telemetry"
)

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
	mux.HandleFunc("GET /cart", telemetry.WithHTTPRoute(h.HandleGet))
	mux.HandleFunc("DELETE /cart", telemetry.WithHTTPRoute(h.HandleClear))
	mux.HandleFunc("GET /cart/totals", telemetry.WithHTTPRoute(h.HandleTotals))
	mux.HandleFunc("POST /cart/items", telemetry.WithHTTPRoute(h.HandleAddItem))
	mux.HandleFunc("PUT /cart/items/{productId}", telemetry.WithHTTPRoute(h.HandleUpdateQuantity))
	mux.HandleFunc("DELETE /cart/items/{productId}", telemetry.WithHTTPRoute(h.HandleRemoveItem))
	mux.HandleFunc("POST /cart/discounts", telemetry.WithHTTPRoute(h.HandleApplyDiscount))
	mux.HandleFunc("PUT /cart/shipping-address", telemetry.WithHTTPRoute(h.HandleShippingAddress))
	mux.HandleFunc("POST /cart/checkout", telemetry.WithHTTPRoute(h.HandleCheckout))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Get(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get cart")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, c)
}

func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Clear(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to clear cart")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, c)
}

type totalsResponse struct {
	domain.Totals
	ItemCount int `json:"item_count"`
}

func (h *Handler) HandleTotals(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())

	c, err := h.svc.Get(r.Context(), p)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get cart")
		return
	}
	totals, err := h.svc.Totals(r.Context(), p)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to price cart")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, totalsResponse{Totals: totals, ItemCount: c.ItemCount()})
}

type itemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.svc.AddItem(r.Context(), auth.FromContext(r.Context()), req.ProductID, req.Quantity)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to add item", "product_id", req.ProductID)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, c)
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")

	var req quantityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.svc.UpdateQuantity(r.Context(), auth.FromContext(r.Context()), productID, req.Quantity)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to update quantity", "product_id", productID)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, c)
}

func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")

	c, err := h.svc.RemoveItem(r.Context(), auth.FromContext(r.Context()), productID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to remove item", "product_id", productID)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, c)
}

type discountRequest struct {
	Code    string `json:"code"`
	Percent string `json:"percent"`
}

func (h *Handler) HandleApplyDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	percent, err := decimal.NewFromString(req.Percent)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, apperr.ErrInvalidPercent, "invalid discount percent", "code", req.Code)
		return
	}

	c, err := h.svc.ApplyDiscount(r.Context(), auth.FromContext(r.Context()), req.Code, percent)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to apply discount", "code", req.Code)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, c)
}

func (h *Handler) HandleShippingAddress(w http.ResponseWriter, r *http.Request) {
	var addr domain.Address
	if err := httpx.DecodeJSON(r, &addr); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.svc.SetShippingAddress(r.Context(), auth.FromContext(r.Context()), addr)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to set shipping address")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, c)
}

type checkoutRequest struct {
	PaymentMethod string `json:"payment_method"`
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	p := auth.FromContext(r.Context())
	order, err := h.svc.Checkout(r.Context(), p, req.PaymentMethod)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "checkout failed", "user_id", p.UserID)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, order)
}
