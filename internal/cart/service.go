// Package cart manages shopping carts and turns them into orders.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/orderflow-core/internal/apperr"
	"github.com/joao-fontenele/orderflow-core/internal/auth"
	"github.com/joao-fontenele/orderflow-core/internal/domain"
	"github.com/joao-fontenele/orderflow-core/internal/ledger"
	"github.com/joao-fontenele/orderflow-core/internal/lock"
	"github.com/joao-fontenele/orderflow-core/internal/orders"
	"github.com/joao-fontenele/orderflow-core/internal/store"
	"github.com/joao-fontenele/orderflow-core/internal/telemetry"
)

const scope = "orderflow/cart"

var tracer = otel.Tracer(scope)

// Catalog is the slice of the inventory the cart needs.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	CheckAvailability(ctx context.Context, productID string, quantity int) (domain.Availability, error)
	Reserve(ctx context.Context, productID string, quantity int, orderID string) (string, error)
	Release(ctx context.Context, reservationID string) error
}

// OrderBook receives the order a checkout produces.
type OrderBook interface {
	NextID(ctx context.Context) (string, error)
	Create(ctx context.Context, d orders.Draft) (domain.Order, error)
}

type MethodVerifier interface {
	Verify(ctx context.Context, method string) error
}

type Settings struct {
	ShippingCost    ledger.Money
	TaxRate         decimal.Decimal
	DiscountPolicy  domain.DiscountPolicy
	MaxLineQuantity int
}

func DefaultSettings() Settings {
	return Settings{
		ShippingCost:    ledger.MustParse("5.00"),
		TaxRate:         decimal.NewFromInt(10),
		DiscountPolicy:  domain.DiscountAdditive,
		MaxLineQuantity: 100,
	}
}

type Service struct {
	carts     store.Store[domain.Cart]
	catalog   Catalog
	orders    OrderBook
	verifier  MethodVerifier
	settings  Settings
	locks     *lock.Keyed
	now       func() time.Time
	logger    *slog.Logger
	checkouts metric.Int64Counter
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(repo Repository, catalog Catalog, orderBook OrderBook, verifier MethodVerifier, settings Settings, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		carts:     repo.Carts,
		catalog:   catalog,
		orders:    orderBook,
		verifier:  verifier,
		settings:  settings,
		locks:     lock.NewKeyed(),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
		checkouts: telemetry.Counter(scope, "cart.checkouts", "Checkout attempts by outcome"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func cartKey(userID string) string { return "cart:" + userID }

// load returns the caller's cart, or a new empty one.
func (s *Service) load(ctx context.Context, userID string) (*domain.Cart, error) {
	c, err := s.carts.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.NewCart(userID, s.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", userID, err)
	}
	return &c, nil
}

func (s *Service) save(ctx context.Context, c *domain.Cart) error {
	if err := s.carts.Put(ctx, c.ID, *c); err != nil {
		return fmt.Errorf("save cart %s: %w", c.ID, err)
	}
	return nil
}

// update runs apply on the caller's cart under its lock and saves the result.
func (s *Service) update(ctx context.Context, p auth.Principal, apply func(*domain.Cart) error) (domain.Cart, error) {
	if err := auth.RequireAuthenticated(p); err != nil {
		return domain.Cart{}, err
	}

	defer s.locks.Lock(cartKey(p.UserID))()

	c, err := s.load(ctx, p.UserID)
	if err != nil {
		return domain.Cart{}, err
	}
	if err := apply(c); err != nil {
		return domain.Cart{}, err
	}
	if err := s.save(ctx, c); err != nil {
		return domain.Cart{}, err
	}
	return *c, nil
}

func (s *Service) Get(ctx context.Context, p auth.Principal) (domain.Cart, error) {
	if err := auth.RequireAuthenticated(p); err != nil {
		return domain.Cart{}, err
	}
	c, err := s.load(ctx, p.UserID)
	if err != nil {
		return domain.Cart{}, err
	}
	return *c, nil
}

// checkQuantity enforces the per-line limit and that stock covers quantity.
func (s *Service) checkQuantity(ctx context.Context, productID string, quantity int) error {
	if quantity > s.settings.MaxLineQuantity {
		return fmt.Errorf("%w: %d units of %s, limit is %d",
			apperr.ErrLineLimitExceeded, quantity, productID, s.settings.MaxLineQuantity)
	}
	avail, err := s.catalog.CheckAvailability(ctx, productID, quantity)
	if err != nil {
		return err
	}
	if !avail.Available {
		return fmt.Errorf("%w: product %s has %d available, %d requested",
			apperr.ErrInsufficientStock, productID, avail.InStock, quantity)
	}
	return nil
}

// AddItem puts quantity units of productID in the cart at the current
// catalog price. Adding a product already in the cart sums the quantities.
func (s *Service) AddItem(ctx context.Context, p auth.Principal, productID string, quantity int) (domain.Cart, error) {
	if quantity <= 0 {
		return domain.Cart{}, apperr.ErrInvalidQuantity
	}

	return s.update(ctx, p, func(c *domain.Cart) error {
		product, err := s.catalog.GetProduct(ctx, productID)
		if err != nil {
			return err
		}

		merged := quantity
		if line, ok := c.Line(productID); ok {
			merged += line.Quantity
		}
		if err := s.checkQuantity(ctx, productID, merged); err != nil {
			return err
		}

		return c.AddLine(domain.CartLine{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  quantity,
			UnitPrice: product.Price,
		}, s.now())
	})
}

func (s *Service) UpdateQuantity(ctx context.Context, p auth.Principal, productID string, quantity int) (domain.Cart, error) {
	return s.update(ctx, p, func(c *domain.Cart) error {
		if _, ok := c.Line(productID); !ok {
			return fmt.Errorf("%w: %s", apperr.ErrItemNotFound, productID)
		}
		if quantity <= 0 {
			return apperr.ErrInvalidQuantity
		}
		if err := s.checkQuantity(ctx, productID, quantity); err != nil {
			return err
		}
		return c.UpdateQuantity(productID, quantity, s.now())
	})
}

func (s *Service) RemoveItem(ctx context.Context, p auth.Principal, productID string) (domain.Cart, error) {
	return s.update(ctx, p, func(c *domain.Cart) error {
		return c.RemoveLine(productID, s.now())
	})
}

func (s *Service) ApplyDiscount(ctx context.Context, p auth.Principal, code string, percent decimal.Decimal) (domain.Cart, error) {
	return s.update(ctx, p, func(c *domain.Cart) error {
		return c.ApplyDiscount(code, percent, s.now())
	})
}

func (s *Service) SetShippingAddress(ctx context.Context, p auth.Principal, addr domain.Address) (domain.Cart, error) {
	return s.update(ctx, p, func(c *domain.Cart) error {
		return c.SetShippingAddress(addr, s.now())
	})
}

func (s *Service) Clear(ctx context.Context, p auth.Principal) (domain.Cart, error) {
	return s.update(ctx, p, func(c *domain.Cart) error {
		c.Clear(s.now())
		return nil
	})
}

// Totals prices the caller's cart with the configured shipping, tax and
// discount policy.
func (s *Service) Totals(ctx context.Context, p auth.Principal) (domain.Totals, error) {
	c, err := s.Get(ctx, p)
	if err != nil {
		return domain.Totals{}, err
	}
	return c.CalculateTotal(s.settings.ShippingCost, s.settings.TaxRate, s.settings.DiscountPolicy)
}

// Checkout turns the caller's cart into a pending order. Stock for every line
// is reserved first; on any failure the reservations already taken are
// released and the cart is left untouched.
func (s *Service) Checkout(ctx context.Context, p auth.Principal, paymentMethod string) (domain.Order, error) {
	ctx, span := tracer.Start(ctx, "cart.Checkout", trace.WithAttributes(attribute.String("user.id", p.UserID)))
	defer span.End()

	if err := auth.RequireAuthenticated(p); err != nil {
		return domain.Order{}, err
	}

	defer s.locks.Lock(cartKey(p.UserID))()

	order, err := s.checkout(ctx, p, paymentMethod)
	outcome := "completed"
	if err != nil {
		outcome = "failed"
	}
	s.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return order, err
}

func (s *Service) checkout(ctx context.Context, p auth.Principal, paymentMethod string) (domain.Order, error) {
	c, err := s.load(ctx, p.UserID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := c.Validate(); err != nil {
		return domain.Order{}, err
	}
	if err := s.verifier.Verify(ctx, paymentMethod); err != nil {
		return domain.Order{}, err
	}
	totals, err := c.CalculateTotal(s.settings.ShippingCost, s.settings.TaxRate, s.settings.DiscountPolicy)
	if err != nil {
		return domain.Order{}, err
	}

	orderID, err := s.orders.NextID(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("allocate order id: %w", err)
	}

	items := make([]domain.OrderItem, 0, len(c.Lines))
	reserved := make([]string, 0, len(c.Lines))
	for _, line := range c.Lines {
		rid, err := s.catalog.Reserve(ctx, line.ProductID, line.Quantity, orderID)
		if err != nil {
			s.release(ctx, orderID, reserved)
			return domain.Order{}, err
		}
		reserved = append(reserved, rid)
		items = append(items, domain.OrderItem{
			ProductID:     line.ProductID,
			Name:          line.Name,
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
			ReservationID: rid,
		})
	}

	draft := orders.Draft{
		ID:              orderID,
		UserID:          p.UserID,
		Email:           p.Email,
		Items:           items,
		Discounts:       c.Discounts,
		Totals:          totals,
		ShippingAddress: *c.ShippingAddress,
		PaymentMethod:   paymentMethod,
	}

	original := *c
	c.Clear(s.now())
	if err := s.save(ctx, c); err != nil {
		s.release(ctx, orderID, reserved)
		return domain.Order{}, err
	}

	order, err := s.orders.Create(ctx, draft)
	if err != nil {
		s.release(ctx, orderID, reserved)
		if rerr := s.save(ctx, &original); rerr != nil {
			s.logger.Error("failed to restore cart after checkout failure", "error", rerr, "user_id", p.UserID, "order_id", orderID)
		}
		return domain.Order{}, err
	}

	s.logger.Info("checkout completed", "order_id", order.ID, "user_id", p.UserID, "lines", len(items), "total", totals.Total.String())
	return order, nil
}

func (s *Service) release(ctx context.Context, orderID string, reservationIDs []string) {
	for _, rid := range reservationIDs {
		if err := s.catalog.Release(ctx, rid); err != nil {
			s.logger.Error("failed to release reservation", "error", err, "order_id", orderID, "reservation_id", rid)
		}
	}
}
