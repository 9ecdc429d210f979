package inventory

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joao-fontenele/orderflow-core/internal/apperr"
	"github.com/joao-fontenele/orderflow-core/internal/auth"
	"github.com/joao-fontenele/orderflow-core/internal/httpx"
	"github.com/joao-fontenele/orderflow-core/internal/ledger"
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
	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(h.HandleListProducts))
	mux.HandleFunc("POST /products", telemetry.WithHTTPRoute(h.HandleAddProduct))
	mux.HandleFunc("GET /products/{productId}", telemetry.WithHTTPRoute(h.HandleGetProduct))
	mux.HandleFunc("PUT /products/{productId}/price", telemetry.WithHTTPRoute(h.HandleUpdatePrice))
	mux.HandleFunc("POST /products/prices", telemetry.WithHTTPRoute(h.HandleBulkUpdatePrices))

	mux.HandleFunc("GET /stock", telemetry.WithHTTPRoute(h.HandleListStock))
	mux.HandleFunc("GET /stock/low", telemetry.WithHTTPRoute(h.HandleLowStock))
	mux.HandleFunc("POST /stock/transfer", telemetry.WithHTTPRoute(h.HandleTransfer))
	mux.HandleFunc("GET /stock/{itemId}", telemetry.WithHTTPRoute(h.HandleGetStock))
	mux.HandleFunc("PUT /stock/{itemId}", telemetry.WithHTTPRoute(h.HandleUpdateStock))
	mux.HandleFunc("POST /stock/{itemId}/adjust", telemetry.WithHTTPRoute(h.HandleAdjustStock))
	mux.HandleFunc("GET /stock/{itemId}/availability", telemetry.WithHTTPRoute(h.HandleCheckAvailability))
	mux.HandleFunc("POST /stock/{itemId}/reserve", telemetry.WithHTTPRoute(h.HandleReserve))

	mux.HandleFunc("GET /reservations/{reservationId}", telemetry.WithHTTPRoute(h.HandleGetReservation))
	mux.HandleFunc("POST /reservations/{reservationId}/release", telemetry.WithHTTPRoute(h.HandleRelease))
	mux.HandleFunc("POST /reservations/{reservationId}/commit", telemetry.WithHTTPRoute(h.HandleCommit))
}

type addProductRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
}

func (h *Handler) HandleAddProduct(w http.ResponseWriter, r *http.Request) {
	var req addProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	price, err := ledger.Parse(req.Price)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid product price", "price", req.Price)
		return
	}

	product, err := h.svc.AddProduct(r.Context(), auth.FromContext(r.Context()), NewProduct{
		ID:       req.ID,
		Name:     req.Name,
		Category: req.Category,
		Price:    price,
		Quantity: req.Quantity,
	})
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to add product", "product_id", req.ID)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, product)
}

func (h *Handler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.ListProducts(r.Context())
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list products")
		return
	}

	h.logger.Info("products listed", "count", len(products))
	httpx.WriteJSON(w, h.logger, http.StatusOK, products)
}

func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("productId")

	product, err := h.svc.GetProduct(r.Context(), id)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get product", "product_id", id)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, product)
}

type priceRequest struct {
	Price string `json:"price"`
}

func (h *Handler) HandleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("productId")

	var req priceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	price, err := ledger.Parse(req.Price)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid price", "product_id", id)
		return
	}

	product, err := h.svc.UpdatePrice(r.Context(), auth.FromContext(r.Context()), id, price)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to update price", "product_id", id)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, product)
}

type bulkPriceRequest struct {
	Prices map[string]string `json:"prices"`
}

func (h *Handler) HandleBulkUpdatePrices(w http.ResponseWriter, r *http.Request) {
	var req bulkPriceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	prices := make(map[string]ledger.Money, len(req.Prices))
	for id, raw := range req.Prices {
		price, err := ledger.Parse(raw)
		if err != nil {
			httpx.WriteDomainError(w, h.logger, err, "invalid price", "product_id", id)
			return
		}
		prices[id] = price
	}

	products, err := h.svc.BulkUpdatePrices(r.Context(), auth.FromContext(r.Context()), prices)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to update prices")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, products)
}

func (h *Handler) HandleListStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListStock(r.Context())
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list stock")
		return
	}

	h.logger.Info("stock listed", "count", len(items))
	httpx.WriteJSON(w, h.logger, http.StatusOK, items)
}

func (h *Handler) HandleGetStock(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("itemId")

	stock, err := h.svc.GetStock(r.Context(), itemID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get stock", "item_id", itemID)
		return
	}

	h.logger.Info("stock retrieved", "item_id", itemID)
	httpx.WriteJSON(w, h.logger, http.StatusOK, stock)
}

func (h *Handler) HandleLowStock(w http.ResponseWriter, r *http.Request) {
	threshold := 0
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid threshold")
			return
		}
		threshold = n
	}

	products, err := h.svc.LowStock(r.Context(), threshold)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list low stock")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, products)
}

func (h *Handler) HandleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("itemId")

	quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, apperr.ErrInvalidQuantity, "invalid quantity", "item_id", itemID)
		return
	}

	availability, err := h.svc.CheckAvailability(r.Context(), itemID, quantity)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to check availability", "item_id", itemID)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, availability)
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleUpdateStock(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("itemId")

	var req quantityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	product, err := h.svc.UpdateStock(r.Context(), auth.FromContext(r.Context()), itemID, req.Quantity)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to update stock", "item_id", itemID)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, product.StockLevel())
}

type adjustRequest struct {
	Delta int `json:"delta"`
}

func (h *Handler) HandleAdjustStock(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("itemId")

	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	product, err := h.svc.AdjustStock(r.Context(), auth.FromContext(r.Context()), itemID, req.Delta)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to adjust stock", "item_id", itemID)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, product.StockLevel())
}

type transferRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Quantity int    `json:"quantity"`
}

func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.TransferStock(r.Context(), auth.FromContext(r.Context()), req.From, req.To, req.Quantity); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to transfer stock", "from", req.From, "to", req.To)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type reserveRequest struct {
	Quantity int    `json:"quantity"`
	OrderID  string `json:"order_id"`
}

type reserveResponse struct {
	ReservationID string `json:"reservation_id"`
}

// HandleReserve is meant for back-office tooling; checkout reserves through
// the service directly.
func (h *Handler) HandleReserve(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("itemId")

	if err := auth.Require(auth.FromContext(r.Context()), auth.PermManageOrders); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "reserve denied", "item_id", itemID)
		return
	}

	var req reserveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "missing order id")
		return
	}

	id, err := h.svc.Reserve(r.Context(), itemID, req.Quantity, req.OrderID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to reserve stock", "item_id", itemID, "quantity", req.Quantity)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, reserveResponse{ReservationID: id})
}

func (h *Handler) HandleGetReservation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("reservationId")

	reservation, err := h.svc.GetReservation(r.Context(), id)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get reservation", "reservation_id", id)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, reservation)
}

func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.svc.Release, "failed to release stock")
}

func (h *Handler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.svc.Commit, "failed to commit stock")
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error, msg string) {
	id := r.PathValue("reservationId")

	if err := auth.Require(auth.FromContext(r.Context()), auth.PermManageOrders); err != nil {
		httpx.WriteDomainError(w, h.logger, err, msg, "reservation_id", id)
		return
	}

	if err := op(r.Context(), id); err != nil {
		httpx.WriteDomainError(w, h.logger, err, msg, "reservation_id", id)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
