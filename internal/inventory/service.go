package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/orderflow-core/internal/apperr"
	"github.com/joao-fontenele/orderflow-core/internal/auth"
	"github.com/joao-fontenele/orderflow-core/internal/domain"
	"github.com/joao-fontenele/orderflow-core/internal/ledger"
	"github.com/joao-fontenele/orderflow-core/internal/lock"
	"github.com/joao-fontenele/orderflow-core/internal/store"
	"github.com/joao-fontenele/orderflow-core/internal/telemetry"
)

const scope = "orderflow/inventory"

var tracer = otel.Tracer(scope)

// Service owns product stock. Every unit is either available or reserved;
// Reserve and Release move units between the two buckets and Commit removes
// reserved units for good.
type Service struct {
	products          store.Store[domain.Product]
	reservations      store.Store[domain.Reservation]
	locks             *lock.Keyed
	lowStockThreshold int
	now               func() time.Time
	logger            *slog.Logger
	reservedUnits     metric.Int64UpDownCounter
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithLowStockThreshold(n int) Option {
	return func(s *Service) {
		s.lowStockThreshold = n
	}
}

func NewService(repo Repository, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		products:          repo.Products,
		reservations:      repo.Reservations,
		locks:             lock.NewKeyed(),
		lowStockThreshold: 10,
		now:               func() time.Time { return time.Now().UTC() },
		logger:            logger,
		reservedUnits:     telemetry.UpDownCounter(scope, "inventory.reserved_units", "Units currently held by reservations"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func productKey(id string) string     { return "product:" + id }
func reservationKey(id string) string { return "reservation:" + id }

type NewProduct struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Category string       `json:"category"`
	Price    ledger.Money `json:"price"`
	Quantity int          `json:"quantity"`
}

func (s *Service) AddProduct(ctx context.Context, p auth.Principal, np NewProduct) (domain.Product, error) {
	if err := auth.Require(p, auth.PermManageInventory); err != nil {
		return domain.Product{}, err
	}
	np.ID = strings.TrimSpace(np.ID)
	np.Name = strings.TrimSpace(np.Name)
	if np.ID == "" || np.Name == "" {
		return domain.Product{}, apperr.ErrInvalidName
	}
	if np.Price <= 0 {
		return domain.Product{}, fmt.Errorf("%w: %s", apperr.ErrInvalidPrice, np.Price)
	}
	if np.Quantity < 0 {
		return domain.Product{}, apperr.ErrInvalidQuantity
	}
	if np.Category == "" {
		np.Category = "general"
	}

	defer s.locks.Lock(productKey(np.ID))()

	if _, err := s.products.Get(ctx, np.ID); err == nil {
		return domain.Product{}, fmt.Errorf("%w: %s", apperr.ErrDuplicateProduct, np.ID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Product{}, fmt.Errorf("load product %s: %w", np.ID, err)
	}

	now := s.now()
	product := domain.Product{
		ID:        np.ID,
		Name:      np.Name,
		Category:  np.Category,
		Price:     np.Price,
		Available: np.Quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.products.Put(ctx, product.ID, product); err != nil {
		return domain.Product{}, fmt.Errorf("save product %s: %w", product.ID, err)
	}

	s.logger.Info("product added", "product_id", product.ID, "available", product.Available, "by", p.UserID)
	return product, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.products.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Product{}, fmt.Errorf("%w: %s", apperr.ErrProductNotFound, id)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("load product %s: %w", id, err)
	}
	return product, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (s *Service) GetStock(ctx context.Context, id string) (domain.StockLevel, error) {
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return domain.StockLevel{}, err
	}
	return product.StockLevel(), nil
}

func (s *Service) ListStock(ctx context.Context) ([]domain.StockLevel, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	levels := make([]domain.StockLevel, 0, len(products))
	for _, p := range products {
		levels = append(levels, p.StockLevel())
	}
	return levels, nil
}

// CheckAvailability compares quantity against the available bucket only;
// reserved units are already promised to other orders.
func (s *Service) CheckAvailability(ctx context.Context, productID string, quantity int) (domain.Availability, error) {
	if quantity <= 0 {
		return domain.Availability{}, apperr.ErrInvalidQuantity
	}
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return domain.Availability{}, err
	}
	return domain.Availability{
		ProductID: product.ID,
		Available: quantity <= product.Available,
		InStock:   product.Available,
		Reserved:  product.Reserved,
		Requested: quantity,
	}, nil
}

// Reserve moves quantity units of productID from available to reserved for
// orderID and returns the reservation id. An order holds at most one
// reservation per product.
func (s *Service) Reserve(ctx context.Context, productID string, quantity int, orderID string) (string, error) {
	ctx, span := tracer.Start(ctx, "inventory.Reserve", trace.WithAttributes(
		attribute.String("product.id", productID),
		attribute.String("order.id", orderID),
		attribute.Int("quantity", quantity),
	))
	defer span.End()

	if quantity <= 0 {
		return "", apperr.ErrInvalidQuantity
	}

	id := domain.ReservationID(orderID, productID)
	defer s.locks.Lock(reservationKey(id))()
	defer s.locks.Lock(productKey(productID))()

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return "", err
	}

	if _, err := s.reservations.Get(ctx, id); err == nil {
		return "", fmt.Errorf("%w: order %s, product %s", apperr.ErrDuplicateReservation, orderID, productID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("load reservation %s: %w", id, err)
	}

	if quantity > product.Available {
		return "", fmt.Errorf("%w: product %s has %d available, %d requested",
			apperr.ErrInsufficientStock, productID, product.Available, quantity)
	}

	original := product
	now := s.now()
	product.Available -= quantity
	product.Reserved += quantity
	product.UpdatedAt = now

	if err := s.products.Put(ctx, product.ID, product); err != nil {
		return "", fmt.Errorf("save product %s: %w", product.ID, err)
	}

	reservation := domain.Reservation{
		ID:        id,
		ProductID: productID,
		OrderID:   orderID,
		Quantity:  quantity,
		CreatedAt: now,
	}
	if err := s.reservations.Put(ctx, id, reservation); err != nil {
		s.restore(ctx, original)
		return "", fmt.Errorf("save reservation %s: %w", id, err)
	}

	s.reservedUnits.Add(ctx, int64(quantity))
	s.logger.Info("stock reserved", "reservation_id", id, "product_id", productID, "order_id", orderID, "quantity", quantity)
	return id, nil
}

// Release returns a reservation's units to the available bucket. Releasing
// the same reservation twice fails with ErrReservationNotFound.
func (s *Service) Release(ctx context.Context, reservationID string) error {
	ctx, span := tracer.Start(ctx, "inventory.Release", trace.WithAttributes(
		attribute.String("reservation.id", reservationID),
	))
	defer span.End()

	return s.settle(ctx, reservationID, func(p *domain.Product, qty int) {
		p.Reserved -= qty
		p.Available += qty
	}, "stock released")
}

// Commit removes a reservation's units from stock permanently.
func (s *Service) Commit(ctx context.Context, reservationID string) error {
	ctx, span := tracer.Start(ctx, "inventory.Commit", trace.WithAttributes(
		attribute.String("reservation.id", reservationID),
	))
	defer span.End()

	return s.settle(ctx, reservationID, func(p *domain.Product, qty int) {
		p.Reserved -= qty
	}, "stock committed")
}

// settle applies apply to the reserved product and deletes the reservation.
func (s *Service) settle(ctx context.Context, reservationID string, apply func(*domain.Product, int), msg string) error {
	defer s.locks.Lock(reservationKey(reservationID))()

	reservation, err := s.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}

	defer s.locks.Lock(productKey(reservation.ProductID))()

	product, err := s.GetProduct(ctx, reservation.ProductID)
	if err != nil {
		return err
	}
	if product.Reserved < reservation.Quantity {
		return fmt.Errorf("product %s holds %d reserved units, reservation %s needs %d",
			product.ID, product.Reserved, reservationID, reservation.Quantity)
	}

	original := product
	apply(&product, reservation.Quantity)
	product.UpdatedAt = s.now()

	if err := s.products.Put(ctx, product.ID, product); err != nil {
		return fmt.Errorf("save product %s: %w", product.ID, err)
	}
	if err := s.reservations.Delete(ctx, reservationID); err != nil {
		s.restore(ctx, original)
		return fmt.Errorf("delete reservation %s: %w", reservationID, err)
	}

	s.reservedUnits.Add(ctx, -int64(reservation.Quantity))
	s.logger.Info(msg, "reservation_id", reservationID, "product_id", product.ID, "order_id", reservation.OrderID, "quantity", reservation.Quantity)
	return nil
}

func (s *Service) restore(ctx context.Context, original domain.Product) {
	if err := s.products.Put(ctx, original.ID, original); err != nil {
		s.logger.Error("failed to restore product after partial write", "error", err, "product_id", original.ID)
	}
}

func (s *Service) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	reservation, err := s.reservations.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Reservation{}, fmt.Errorf("%w: %s", apperr.ErrReservationNotFound, id)
	}
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("load reservation %s: %w", id, err)
	}
	return reservation, nil
}

// Reservations returns the reservations that still exist among ids.
func (s *Service) Reservations(ctx context.Context, ids []string) ([]domain.Reservation, error) {
	reservations, err := s.reservations.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load reservations: %w", err)
	}
	return reservations, nil
}

func (s *Service) ReservationsForOrder(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	all, err := s.reservations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	out := make([]domain.Reservation, 0)
	for _, r := range all {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out, nil
}

// UpdateStock sets the available quantity of a product. Reserved units are
// untouched.
func (s *Service) UpdateStock(ctx context.Context, p auth.Principal, productID string, quantity int) (domain.Product, error) {
	if err := auth.Require(p, auth.PermManageInventory); err != nil {
		return domain.Product{}, err
	}
	if quantity < 0 {
		return domain.Product{}, apperr.ErrInvalidQuantity
	}
	return s.mutate(ctx, productID, func(product *domain.Product) error {
		product.Available = quantity
		return nil
	}, "stock updated", "by", p.UserID)
}

// AdjustStock adds delta, which may be negative, to the available quantity.
func (s *Service) AdjustStock(ctx context.Context, p auth.Principal, productID string, delta int) (domain.Product, error) {
	if err := auth.Require(p, auth.PermManageInventory); err != nil {
		return domain.Product{}, err
	}
	return s.mutate(ctx, productID, func(product *domain.Product) error {
		if product.Available+delta < 0 {
			return fmt.Errorf("%w: product %s has %d available, adjustment %d",
				apperr.ErrInsufficientStock, product.ID, product.Available, delta)
		}
		product.Available += delta
		return nil
	}, "stock adjusted", "delta", delta, "by", p.UserID)
}

func (s *Service) UpdatePrice(ctx context.Context, p auth.Principal, productID string, price ledger.Money) (domain.Product, error) {
	if err := auth.Require(p, auth.PermManageInventory); err != nil {
		return domain.Product{}, err
	}
	if price <= 0 {
		return domain.Product{}, fmt.Errorf("%w: %s", apperr.ErrInvalidPrice, price)
	}
	return s.mutate(ctx, productID, func(product *domain.Product) error {
		product.Price = price
		return nil
	}, "price updated", "price", price.String(), "by", p.UserID)
}

func (s *Service) mutate(ctx context.Context, productID string, apply func(*domain.Product) error, msg string, args ...any) (domain.Product, error) {
	defer s.locks.Lock(productKey(productID))()

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if err := apply(&product); err != nil {
		return domain.Product{}, err
	}
	product.UpdatedAt = s.now()

	if err := s.products.Put(ctx, product.ID, product); err != nil {
		return domain.Product{}, fmt.Errorf("save product %s: %w", product.ID, err)
	}

	s.logger.Info(msg, append([]any{"product_id", product.ID, "available", product.Available}, args...)...)
	return product, nil
}

// BulkUpdatePrices validates every entry before writing any of them. A write
// failure restores the prices already written.
func (s *Service) BulkUpdatePrices(ctx context.Context, p auth.Principal, prices map[string]ledger.Money) ([]domain.Product, error) {
	if err := auth.Require(p, auth.PermManageInventory); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(prices))
	for id, price := range prices {
		if price <= 0 {
			return nil, fmt.Errorf("%w: product %s price %s", apperr.ErrInvalidPrice, id, price)
		}
		keys = append(keys, productKey(id))
	}
	defer s.locks.LockMany(keys...)()

	products := make([]domain.Product, 0, len(prices))
	for id := range prices {
		product, err := s.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}

	now := s.now()
	written := make([]domain.Product, 0, len(products))
	updated := make([]domain.Product, 0, len(products))
	for _, original := range products {
		product := original
		product.Price = prices[product.ID]
		product.UpdatedAt = now
		if err := s.products.Put(ctx, product.ID, product); err != nil {
			for _, w := range written {
				s.restore(ctx, w)
			}
			return nil, fmt.Errorf("save product %s: %w", product.ID, err)
		}
		written = append(written, original)
		updated = append(updated, product)
	}

	s.logger.Info("prices updated", "count", len(updated), "by", p.UserID)
	return updated, nil
}

// TransferStock moves available units between two products.
func (s *Service) TransferStock(ctx context.Context, p auth.Principal, fromID, toID string, quantity int) error {
	if err := auth.Require(p, auth.PermManageInventory); err != nil {
		return err
	}
	if quantity <= 0 {
		return apperr.ErrInvalidQuantity
	}
	if fromID == toID {
		return fmt.Errorf("%w: %s", apperr.ErrInvalidTransfer, fromID)
	}

	defer s.locks.LockMany(productKey(fromID), productKey(toID))()

	from, err := s.GetProduct(ctx, fromID)
	if err != nil {
		return err
	}
	to, err := s.GetProduct(ctx, toID)
	if err != nil {
		return err
	}
	if quantity > from.Available {
		return fmt.Errorf("%w: product %s has %d available, %d requested",
			apperr.ErrInsufficientStock, fromID, from.Available, quantity)
	}

	originalFrom := from
	now := s.now()
	from.Available -= quantity
	from.UpdatedAt = now
	to.Available += quantity
	to.UpdatedAt = now

	if err := s.products.Put(ctx, from.ID, from); err != nil {
		return fmt.Errorf("save product %s: %w", from.ID, err)
	}
	if err := s.products.Put(ctx, to.ID, to); err != nil {
		s.restore(ctx, originalFrom)
		return fmt.Errorf("save product %s: %w", to.ID, err)
	}

	s.logger.Info("stock transferred", "from", fromID, "to", toID, "quantity", quantity, "by", p.UserID)
	return nil
}

// LowStock lists products whose available quantity is below threshold. A
// non-positive threshold uses the configured default.
func (s *Service) LowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	if threshold <= 0 {
		threshold = s.lowStockThreshold
	}
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]domain.Product, 0)
	for _, p := range products {
		if p.Available < threshold {
			low = append(low, p)
		}
	}
	return low, nil
}
