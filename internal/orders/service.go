// Package orders runs the order lifecycle: transitions, cancellation,
// shipment tracking and returns.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
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
	"github.com/joao-fontenele/orderflow-core/internal/notify"
	"github.com/joao-fontenele/orderflow-core/internal/store"
	"github.com/joao-fontenele/orderflow-core/internal/telemetry"
)

const scope = "orderflow/orders"

var tracer = otel.Tracer(scope)

// Inventory settles the reservations held by an order.
type Inventory interface {
	Reserve(ctx context.Context, productID string, quantity int, orderID string) (string, error)
	Reservations(ctx context.Context, ids []string) ([]domain.Reservation, error)
	Release(ctx context.Context, reservationID string) error
	Commit(ctx context.Context, reservationID string) error
}

type Notifier interface {
	NotifyOrderConfirmed(ctx context.Context, orderID, email string, total ledger.Money) error
	NotifyShipped(ctx context.Context, trackingNumber, email string) error
}

type Publisher interface {
	PublishEvent(ctx context.Context, eventType, key string, payload any) error
}

type Settings struct {
	Carriers         []string
	ReturnWindow     time.Duration
	DeliveryEstimate time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Carriers:         []string{"ups", "usps", "fedex", "dhl"},
		ReturnWindow:     30 * 24 * time.Hour,
		DeliveryEstimate: 7 * 24 * time.Hour,
	}
}

type Service struct {
	orders      store.Store[domain.Order]
	ids         Sequence
	inventory   Inventory
	notifier    Notifier
	publisher   Publisher
	settings    Settings
	locks       *lock.Keyed
	now         func() time.Time
	logger      *slog.Logger
	transitions metric.Int64Counter
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func NewService(repo Repository, inventory Inventory, notifier Notifier, settings Settings, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		orders:      repo.Orders,
		ids:         repo.IDs,
		inventory:   inventory,
		notifier:    notifier,
		settings:    settings,
		locks:       lock.NewKeyed(),
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
		transitions: telemetry.Counter(scope, "orders.transitions", "Order status transitions"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func orderKey(id string) string { return "order:" + id }

// NextID allocates the id of an order that is about to be created.
func (s *Service) NextID(ctx context.Context) (string, error) {
	n, err := s.ids.Next(ctx)
	if err != nil {
		return "", err
	}
	return domain.OrderIDFor(n), nil
}

// Draft is the immutable snapshot checkout hands over.
type Draft struct {
	ID              string
	UserID          string
	Email           string
	Items           []domain.OrderItem
	Discounts       []domain.DiscountApplication
	Totals          domain.Totals
	ShippingAddress domain.Address
	PaymentMethod   string
}

// Create stores a new pending order.
func (s *Service) Create(ctx context.Context, d Draft) (domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders.Create", trace.WithAttributes(attribute.String("order.id", d.ID)))
	defer span.End()

	if d.ID == "" || d.UserID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id and user id are required", apperr.ErrValidation)
	}
	if len(d.Items) == 0 {
		return domain.Order{}, apperr.ErrEmptyCart
	}
	if err := d.ShippingAddress.Validate(); err != nil {
		return domain.Order{}, err
	}

	defer s.locks.Lock(orderKey(d.ID))()

	if _, err := s.orders.Get(ctx, d.ID); err == nil {
		return domain.Order{}, fmt.Errorf("%w: order %s already exists", apperr.ErrConflict, d.ID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Order{}, fmt.Errorf("load order %s: %w", d.ID, err)
	}

	now := s.now()
	order := domain.Order{
		ID:                d.ID,
		UserID:            d.UserID,
		Email:             d.Email,
		Items:             slices.Clone(d.Items),
		Discounts:         slices.Clone(d.Discounts),
		Totals:            d.Totals,
		ShippingAddress:   d.ShippingAddress,
		PaymentMethod:     d.PaymentMethod,
		Status:            domain.OrderStatusPending,
		EstimatedDelivery: now.Add(s.settings.DeliveryEstimate),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.orders.Put(ctx, order.ID, order); err != nil {
		return domain.Order{}, fmt.Errorf("save order %s: %w", order.ID, err)
	}

	s.publish(ctx, domain.EventOrderCreated, order.ID, domain.OrderCreatedEvent{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Items:     order.Items,
		Total:     order.Totals.Total,
		Timestamp: now,
	})
	s.logger.Info("order created", "order_id", order.ID, "user_id", order.UserID, "total", order.Totals.Total.String())
	return order, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.orders.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Order{}, fmt.Errorf("%w: %s", apperr.ErrOrderNotFound, id)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("load order %s: %w", id, err)
	}
	return order, nil
}

// View returns an order to its owner or to staff.
func (s *Service) View(ctx context.Context, p auth.Principal, id string) (domain.Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if err := auth.RequireOwnerOr(p, order.UserID, auth.PermViewAllOrders); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// Transition moves an order along the lifecycle. Cancellation goes through
// Cancel; refunds are recorded by the payment processor via MarkRefunded.
func (s *Service) Transition(ctx context.Context, p auth.Principal, id string, to domain.OrderStatus) (domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders.Transition", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.to", string(to)),
	))
	defer span.End()

	switch to {
	case domain.OrderStatusCancelled:
		return s.Cancel(ctx, p, id, "")
	case domain.OrderStatusRefunded:
		return domain.Order{}, fmt.Errorf("%w: refunds are issued through the payment processor", apperr.ErrInvalidTransition)
	}

	if err := auth.Require(p, auth.PermManageOrders); err != nil {
		return domain.Order{}, err
	}

	defer s.locks.Lock(orderKey(id))()

	order, err := s.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	from := order.Status

	if to == domain.OrderStatusShipped {
		if !domain.CanTransition(order.Status, to, order.PaymentCaptured) {
			return domain.Order{}, fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, order.Status, to)
		}
		if err := s.commitReservations(ctx, &order); err != nil {
			return domain.Order{}, err
		}
	}

	if err := order.Transition(to, p.UserID, s.now()); err != nil {
		return domain.Order{}, err
	}

	if err := s.orders.Put(ctx, order.ID, order); err != nil {
		return domain.Order{}, fmt.Errorf("save order %s: %w", order.ID, err)
	}
	s.changed(ctx, order, from, p)

	if to == domain.OrderStatusConfirmed {
		if err := s.notifier.NotifyOrderConfirmed(ctx, order.ID, order.Email, order.Totals.Total); err != nil {
			s.logger.Error("failed to send confirmation", "error", err, "order_id", order.ID)
		}
	}
	return order, nil
}

// commitReservations commits every reservation of the order. All of them must
// still exist before any is committed. Each commit is saved on the order
// right away, so a retry after a failure only commits what is left.
func (s *Service) commitReservations(ctx context.Context, order *domain.Order) error {
	ids := order.ReservationIDs()
	found, err := s.inventory.Reservations(ctx, ids)
	if err != nil {
		return err
	}
	if len(found) != len(ids) {
		return fmt.Errorf("%w: order %s holds %d of %d reservations",
			apperr.ErrReservationNotFound, order.ID, len(found), len(ids))
	}

	for i := range order.Items {
		rid := order.Items[i].ReservationID
		if rid == "" {
			continue
		}
		if err := s.inventory.Commit(ctx, rid); err != nil {
			return fmt.Errorf("commit reservation %s: %w", rid, err)
		}
		order.Items[i].ReservationID = ""
		order.UpdatedAt = s.now()
		if err := s.orders.Put(ctx, order.ID, *order); err != nil {
			return fmt.Errorf("save order %s after committing %s: %w", order.ID, rid, err)
		}
	}
	return nil
}

// releaseReservations releases what the order still holds and returns the
// released reservations. Reservations that are already gone are skipped. On
// failure the ones released so far are restored.
func (s *Service) releaseReservations(ctx context.Context, order *domain.Order) ([]domain.Reservation, error) {
	ids := order.ReservationIDs()
	found, err := s.inventory.Reservations(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(found) != len(ids) {
		s.logger.Warn("order reservations already settled", "order_id", order.ID, "expected", len(ids), "found", len(found))
	}

	released := make([]domain.Reservation, 0, len(found))
	for _, r := range found {
		err := s.inventory.Release(ctx, r.ID)
		if errors.Is(err, apperr.ErrReservationNotFound) {
			continue
		}
		if err != nil {
			s.restoreReservations(ctx, order.ID, released)
			return nil, fmt.Errorf("release reservation %s: %w", r.ID, err)
		}
		released = append(released, r)
	}
	clearReservations(order)
	return released, nil
}

// restoreReservations reserves released stock again under the same ids.
func (s *Service) restoreReservations(ctx context.Context, orderID string, released []domain.Reservation) {
	for _, r := range released {
		if _, err := s.inventory.Reserve(ctx, r.ProductID, r.Quantity, r.OrderID); err != nil {
			s.logger.Error("failed to restore reservation", "error", err, "order_id", orderID, "reservation_id", r.ID)
		}
	}
}

func clearReservations(order *domain.Order) {
	for i := range order.Items {
		order.Items[i].ReservationID = ""
	}
}

// Cancel cancels an order that has not shipped and releases its stock. No
// money moves; a captured payment leaves the order eligible for a refund.
func (s *Service) Cancel(ctx context.Context, p auth.Principal, id, reason string) (domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders.Cancel", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	defer s.locks.Lock(orderKey(id))()

	order, err := s.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if err := auth.RequireOwnerOr(p, order.UserID, auth.PermManageOrders); err != nil {
		return domain.Order{}, err
	}
	if !order.Status.Cancellable() {
		return domain.Order{}, fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, order.Status, domain.OrderStatusCancelled)
	}

	from := order.Status
	if err := order.Transition(domain.OrderStatusCancelled, p.UserID, s.now()); err != nil {
		return domain.Order{}, err
	}
	released, err := s.releaseReservations(ctx, &order)
	if err != nil {
		return domain.Order{}, err
	}
	order.CancellationReason = strings.TrimSpace(reason)

	if err := s.orders.Put(ctx, order.ID, order); err != nil {
		s.restoreReservations(ctx, order.ID, released)
		return domain.Order{}, fmt.Errorf("save order %s: %w", order.ID, err)
	}
	s.changed(ctx, order, from, p)
	return order, nil
}

// AttachPayment records the transaction that paid for the order. Only a
// pending or confirmed order takes a payment.
func (s *Service) AttachPayment(ctx context.Context, id, transactionID string) error {
	defer s.locks.Lock(orderKey(id))()

	order, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if order.TransactionID != "" {
		return fmt.Errorf("%w: %s", apperr.ErrAlreadyPaid, id)
	}
	if order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusConfirmed {
		return fmt.Errorf("%w: order %s is %s", apperr.ErrInvalidOrderState, id, order.Status)
	}

	order.TransactionID = transactionID
	order.PaymentCaptured = true
	order.UpdatedAt = s.now()
	if err := s.orders.Put(ctx, order.ID, order); err != nil {
		return fmt.Errorf("save order %s: %w", order.ID, err)
	}

	s.logger.Info("payment attached", "order_id", id, "transaction_id", transactionID)
	return nil
}

func (s *Service) MarkRefunded(ctx context.Context, p auth.Principal, id string) error {
	if err := auth.Require(p, auth.PermRefund); err != nil {
		return err
	}

	defer s.locks.Lock(orderKey(id))()

	order, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	from := order.Status
	if err := order.Transition(domain.OrderStatusRefunded, p.UserID, s.now()); err != nil {
		return err
	}
	if err := s.orders.Put(ctx, order.ID, order); err != nil {
		return fmt.Errorf("save order %s: %w", order.ID, err)
	}
	s.changed(ctx, order, from, p)
	return nil
}

func (s *Service) AddTrackingInfo(ctx context.Context, p auth.Principal, id, carrier, number string) (domain.Order, error) {
	if err := auth.Require(p, auth.PermManageOrders); err != nil {
		return domain.Order{}, err
	}

	carrier = strings.ToLower(strings.TrimSpace(carrier))
	if !slices.Contains(s.settings.Carriers, carrier) {
		return domain.Order{}, fmt.Errorf("%w: %q", apperr.ErrInvalidCarrier, carrier)
	}
	number, err := notify.NormalizeTrackingNumber(number)
	if err != nil {
		return domain.Order{}, err
	}

	defer s.locks.Lock(orderKey(id))()

	order, err := s.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderStatusShipped {
		return domain.Order{}, fmt.Errorf("%w: tracking requires a shipped order, %s is %s",
			apperr.ErrInvalidOrderState, id, order.Status)
	}

	now := s.now()
	order.Tracking = &domain.Tracking{Carrier: carrier, Number: number, AddedAt: now}
	order.UpdatedAt = now
	if err := s.orders.Put(ctx, order.ID, order); err != nil {
		return domain.Order{}, fmt.Errorf("save order %s: %w", order.ID, err)
	}

	if err := s.notifier.NotifyShipped(ctx, number, order.Email); err != nil {
		s.logger.Error("failed to send shipping notification", "error", err, "order_id", order.ID)
	}
	s.logger.Info("tracking added", "order_id", order.ID, "carrier", carrier, "tracking_number", number)
	return order, nil
}

// ProcessReturn records a pending return for delivered items. The refund
// amount is the value of the returned lines, capped at the order total.
func (s *Service) ProcessReturn(ctx context.Context, p auth.Principal, id string, itemIDs []string, reason string) (domain.Return, error) {
	if len(itemIDs) == 0 {
		return domain.Return{}, apperr.ErrNoReturnItems
	}

	defer s.locks.Lock(orderKey(id))()

	order, err := s.Get(ctx, id)
	if err != nil {
		return domain.Return{}, err
	}
	if err := auth.RequireOwnerOr(p, order.UserID, auth.PermManageOrders); err != nil {
		return domain.Return{}, err
	}
	if order.Status != domain.OrderStatusDelivered || order.DeliveredAt == nil {
		return domain.Return{}, fmt.Errorf("%w: returns require a delivered order, %s is %s",
			apperr.ErrInvalidOrderState, id, order.Status)
	}
	now := s.now()
	if now.After(order.DeliveredAt.Add(s.settings.ReturnWindow)) {
		return domain.Return{}, fmt.Errorf("%w: delivered %s", apperr.ErrReturnWindowExpired, order.DeliveredAt.Format(time.DateOnly))
	}

	var amount ledger.Money
	seen := make(map[string]bool, len(itemIDs))
	for _, pid := range itemIDs {
		item, ok := order.Item(pid)
		if !ok {
			return domain.Return{}, fmt.Errorf("%w: %s", apperr.ErrUnknownReturnItem, pid)
		}
		if seen[pid] || order.Returned(pid) {
			return domain.Return{}, fmt.Errorf("%w: %s", apperr.ErrItemAlreadyReturned, pid)
		}
		seen[pid] = true

		line, err := item.LineTotal()
		if err != nil {
			return domain.Return{}, err
		}
		if amount, err = ledger.Add(amount, line); err != nil {
			return domain.Return{}, err
		}
	}
	if amount > order.Totals.Total {
		amount = order.Totals.Total
	}

	ret := domain.Return{
		ID:           fmt.Sprintf("RET-%s-%d", order.ID, len(order.Returns)+1),
		Items:        slices.Clone(itemIDs),
		Reason:       strings.TrimSpace(reason),
		Status:       "pending",
		RefundAmount: amount,
		CreatedAt:    now,
	}
	order.Returns = append(order.Returns, ret)
	order.UpdatedAt = now
	if err := s.orders.Put(ctx, order.ID, order); err != nil {
		return domain.Return{}, fmt.Errorf("save order %s: %w", order.ID, err)
	}

	s.logger.Info("return recorded", "order_id", order.ID, "return_id", ret.ID, "items", len(ret.Items), "refund_amount", amount.String())
	return ret, nil
}

// CalculateRefundAmount is what a full refund of o would pay back.
func CalculateRefundAmount(o domain.Order) (ledger.Money, error) {
	if !o.PaymentCaptured {
		return 0, fmt.Errorf("%w: order %s has no captured payment", apperr.ErrRefundNotAllowed, o.ID)
	}
	switch {
	case o.Status == domain.OrderStatusDelivered:
	case o.Status == domain.OrderStatusCancelled && o.RefundEligible:
	default:
		return 0, fmt.Errorf("%w: order %s is %s", apperr.ErrRefundNotAllowed, o.ID, o.Status)
	}
	return o.Totals.Total, nil
}

// UpdateShippingAddress changes where an order goes, until it ships.
func (s *Service) UpdateShippingAddress(ctx context.Context, p auth.Principal, id string, addr domain.Address) (domain.Order, error) {
	if err := addr.Validate(); err != nil {
		return domain.Order{}, err
	}

	defer s.locks.Lock(orderKey(id))()

	order, err := s.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if err := auth.RequireOwnerOr(p, order.UserID, auth.PermManageOrders); err != nil {
		return domain.Order{}, err
	}
	if !order.Status.Cancellable() {
		return domain.Order{}, fmt.Errorf("%w: address is fixed once %s", apperr.ErrInvalidOrderState, order.Status)
	}

	order.ShippingAddress = addr
	order.UpdatedAt = s.now()
	if err := s.orders.Put(ctx, order.ID, order); err != nil {
		return domain.Order{}, fmt.Errorf("save order %s: %w", order.ID, err)
	}
	return order, nil
}

func (s *Service) ListForUser(ctx context.Context, p auth.Principal, userID string) ([]domain.Order, error) {
	if err := auth.RequireOwnerOr(p, userID, auth.PermViewAllOrders); err != nil {
		return nil, err
	}
	return s.list(ctx, func(o domain.Order) bool { return o.UserID == userID }, 0)
}

// ListByStatus returns up to limit orders in status, newest first. A
// non-positive limit returns all of them.
func (s *Service) ListByStatus(ctx context.Context, p auth.Principal, status string, limit int) ([]domain.Order, error) {
	if err := auth.Require(p, auth.PermViewAllOrders); err != nil {
		return nil, err
	}
	st, err := domain.ParseOrderStatus(strings.ToLower(strings.TrimSpace(status)))
	if err != nil {
		return nil, err
	}
	return s.list(ctx, func(o domain.Order) bool { return o.Status == st }, limit)
}

func (s *Service) list(ctx context.Context, keep func(domain.Order) bool, limit int) ([]domain.Order, error) {
	all, err := s.orders.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := make([]domain.Order, 0)
	for _, o := range all {
		if keep(o) {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Service) changed(ctx context.Context, order domain.Order, from domain.OrderStatus, p auth.Principal) {
	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(order.Status)),
	))
	s.publish(ctx, domain.EventOrderStatusChanged, order.ID, domain.OrderStatusChangedEvent{
		OrderID:   order.ID,
		From:      from,
		To:        order.Status,
		By:        p.UserID,
		Timestamp: order.UpdatedAt,
	})
	s.logger.Info("order status changed", "order_id", order.ID, "from", from, "to", order.Status, "by", p.UserID)
}

func (s *Service) publish(ctx context.Context, eventType, key string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, eventType, key, payload); err != nil {
		s.logger.Error("failed to publish order event", "error", err, "event_type", eventType, "order_id", key)
	}
}
