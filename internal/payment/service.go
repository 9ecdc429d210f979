// Package payment settles charges against orders and accounts for refunds.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/orderflow-core/internal/apperr"
	"github.com/joao-fontenele/orderflow-core/internal/auth"
	"github.com/joao-fontenele/orderflow-core/internal/domain"
	"github.com/joao-fontenele/orderflow-core/internal/idempotency"
	"github.com/joao-fontenele/orderflow-core/internal/ledger"
	"github.com/joao-fontenele/orderflow-core/internal/lock"
	"github.com/joao-fontenele/orderflow-core/internal/store"
	"github.com/joao-fontenele/orderflow-core/internal/telemetry"
)

const scope = "orderflow/payment"

var tracer = otel.Tracer(scope)

// OrderBook is the view of the order lifecycle the processor needs.
type OrderBook interface {
	Get(ctx context.Context, id string) (domain.Order, error)
	AttachPayment(ctx context.Context, id, transactionID string) error
	MarkRefunded(ctx context.Context, p auth.Principal, id string) error
}

type Publisher interface {
	PublishEvent(ctx context.Context, eventType, key string, payload any) error
}

// Settings are the processor's money rules.
type Settings struct {
	FeeRate          decimal.Decimal
	FixedFee         ledger.Money
	RefundFeeRate    decimal.Decimal
	RefundFeeEnabled bool
	Currencies       []string
	MaxInterestRate  decimal.Decimal
}

func DefaultSettings() Settings {
	return Settings{
		FeeRate:          decimal.RequireFromString("2.9"),
		FixedFee:         ledger.MustParse("0.30"),
		RefundFeeRate:    decimal.NewFromInt(1),
		RefundFeeEnabled: true,
		Currencies:       []string{"USD", "EUR", "GBP"},
		MaxInterestRate:  ledger.MaxRate,
	}
}

type Service struct {
	transactions  store.Store[domain.Transaction]
	subscriptions store.Store[domain.Subscription]
	orders        OrderBook
	verifier      MethodVerifier
	guard         idempotency.Guard
	publisher     Publisher
	settings      Settings
	locks         *lock.Keyed
	now           func() time.Time
	logger        *slog.Logger
	payments      metric.Int64Counter
	refunds       metric.Int64Counter
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithGuard(g idempotency.Guard) Option {
	return func(s *Service) {
		s.guard = g
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func NewService(repo Repository, orders OrderBook, verifier MethodVerifier, settings Settings, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		transactions:  repo.Transactions,
		subscriptions: repo.Subscriptions,
		orders:        orders,
		verifier:      verifier,
		guard:         idempotency.NewMemory(24 * time.Hour),
		settings:      settings,
		locks:         lock.NewKeyed(),
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger,
		payments:      telemetry.Counter(scope, "payments.processed", "Completed payments"),
		refunds:       telemetry.Counter(scope, "payments.refunded", "Refunds issued"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type PaymentRequest struct {
	OrderID        string       `json:"order_id,omitempty"`
	CustomerID     string       `json:"customer_id"`
	Amount         ledger.Money `json:"amount"`
	Currency       string       `json:"currency"`
	Method         string       `json:"method"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
}

func (s *Service) currency(c string) (string, error) {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" && len(s.settings.Currencies) > 0 {
		return s.settings.Currencies[0], nil
	}
	if !slices.Contains(s.settings.Currencies, c) {
		return "", fmt.Errorf("%w: %q", apperr.ErrInvalidCurrency, c)
	}
	return c, nil
}

// ProcessPayment charges req.Amount. With an idempotency key, a repeated
// request returns the transaction created by the first one.
func (s *Service) ProcessPayment(ctx context.Context, req PaymentRequest) (domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "payment.ProcessPayment", trace.WithAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.Int64("amount.minor", req.Amount.Minor()),
	))
	defer span.End()

	tx, err := s.processPayment(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return tx, err
}

func (s *Service) processPayment(ctx context.Context, req PaymentRequest) (domain.Transaction, error) {
	if req.Amount <= 0 {
		return domain.Transaction{}, fmt.Errorf("%w: %s", apperr.ErrInvalidAmount, req.Amount)
	}
	currency, err := s.currency(req.Currency)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := s.verifier.Verify(ctx, req.Method); err != nil {
		return domain.Transaction{}, err
	}
	fee, net, err := fees(req.Amount, s.settings.FeeRate, s.settings.FixedFee)
	if err != nil {
		return domain.Transaction{}, err
	}

	var key string
	if req.IdempotencyKey != "" {
		key = fmt.Sprintf(idempotency.KeyPayment, req.IdempotencyKey)
		prior, claimed, err := s.guard.Claim(ctx, key)
		if err != nil {
			return domain.Transaction{}, err
		}
		if !claimed {
			if prior == "" {
				return domain.Transaction{}, apperr.ErrPaymentInProgress
			}
			s.logger.Info("idempotent payment replayed", "transaction_id", prior)
			return s.transaction(ctx, prior)
		}
	}

	now := s.now()
	tx := domain.Transaction{
		ID:             uuid.NewString(),
		OrderID:        req.OrderID,
		CustomerID:     req.CustomerID,
		Amount:         req.Amount,
		Currency:       currency,
		Fee:            fee,
		Net:            net,
		Method:         normalizeMethod(req.Method),
		Status:         domain.TransactionCompleted,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.transactions.Put(ctx, tx.ID, tx); err != nil {
		if key != "" {
			if aerr := s.guard.Abandon(ctx, key); aerr != nil {
				s.logger.Error("failed to release idempotency key", "error", aerr, "key", key)
			}
		}
		return domain.Transaction{}, fmt.Errorf("save transaction %s: %w", tx.ID, err)
	}
	if key != "" {
		if err := s.guard.Complete(ctx, key, tx.ID); err != nil {
			s.logger.Error("failed to record idempotency key", "error", err, "key", key, "transaction_id", tx.ID)
		}
	}

	s.payments.Add(ctx, 1, metric.WithAttributes(attribute.String("currency", currency)))
	s.publish(ctx, domain.EventPaymentCompleted, tx)
	s.logger.Info("payment processed", "transaction_id", tx.ID, "order_id", tx.OrderID, "amount", tx.Amount.String(), "fee", tx.Fee.String())
	return tx, nil
}

// PayOrder charges the order total and attaches the transaction to the order.
func (s *Service) PayOrder(ctx context.Context, p auth.Principal, orderID, method, idempotencyKey string) (domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "payment.PayOrder", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	defer s.locks.Lock("order:" + orderID)()

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := auth.RequireOwnerOr(p, order.UserID, auth.PermManageOrders); err != nil {
		return domain.Transaction{}, err
	}

	if order.TransactionID != "" {
		if idempotencyKey != "" {
			if tx, err := s.transaction(ctx, order.TransactionID); err == nil && tx.IdempotencyKey == idempotencyKey {
				return tx, nil
			}
		}
		return domain.Transaction{}, fmt.Errorf("%w: %s", apperr.ErrAlreadyPaid, orderID)
	}
	if order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusConfirmed {
		return domain.Transaction{}, fmt.Errorf("%w: order %s is %s", apperr.ErrInvalidOrderState, orderID, order.Status)
	}
	if method == "" {
		method = order.PaymentMethod
	}

	tx, err := s.ProcessPayment(ctx, PaymentRequest{
		OrderID:        order.ID,
		CustomerID:     order.UserID,
		Amount:         order.Totals.Total,
		Method:         method,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	if err := s.orders.AttachPayment(ctx, orderID, tx.ID); err != nil {
		s.reverse(ctx, tx)
		return domain.Transaction{}, fmt.Errorf("attach payment to order %s: %w", orderID, err)
	}
	return tx, nil
}

// reverse refunds a transaction in full without a fee after a failed
// follow-up step.
func (s *Service) reverse(ctx context.Context, tx domain.Transaction) {
	defer s.locks.Lock("transaction:" + tx.ID)()

	now := s.now()
	tx.Refunds = append(tx.Refunds, domain.Refund{
		ID:        uuid.NewString(),
		Amount:    tx.Amount,
		Net:       tx.Amount,
		CreatedAt: now,
	})
	tx.RefundedTotal = tx.Amount
	tx.Status = domain.TransactionRefunded
	tx.UpdatedAt = now
	if err := s.transactions.Put(ctx, tx.ID, tx); err != nil {
		s.logger.Error("failed to reverse transaction", "error", err, "transaction_id", tx.ID)
	}
}

type RefundResult struct {
	Refund      domain.Refund      `json:"refund"`
	Transaction domain.Transaction `json:"transaction"`
}

// RefundPayment refunds amount, or everything still refundable when amount is
// nil. The transaction becomes refunded once its refunds add up to the
// original amount. A transaction that paid an order is refunded under the
// order's rules, as RefundOrder does.
func (s *Service) RefundPayment(ctx context.Context, p auth.Principal, transactionID string, amount *ledger.Money) (RefundResult, error) {
	ctx, span := tracer.Start(ctx, "payment.RefundPayment", trace.WithAttributes(attribute.String("transaction.id", transactionID)))
	defer span.End()

	if err := auth.Require(p, auth.PermRefund); err != nil {
		return RefundResult{}, err
	}

	tx, err := s.transaction(ctx, transactionID)
	if err != nil {
		return RefundResult{}, err
	}
	if tx.OrderID != "" {
		return s.refundOrder(ctx, p, tx.OrderID, transactionID, amount)
	}
	return s.refund(ctx, p, transactionID, amount)
}

func (s *Service) refund(ctx context.Context, p auth.Principal, transactionID string, amount *ledger.Money) (RefundResult, error) {
	defer s.locks.Lock("transaction:" + transactionID)()

	tx, err := s.transaction(ctx, transactionID)
	if err != nil {
		return RefundResult{}, err
	}
	if tx.Status == domain.TransactionRefunded {
		return RefundResult{}, fmt.Errorf("%w: %s", apperr.ErrAlreadyRefunded, transactionID)
	}

	remaining, err := tx.Refundable()
	if err != nil {
		return RefundResult{}, err
	}
	refund := remaining
	if amount != nil {
		refund = *amount
	}
	if refund <= 0 {
		return RefundResult{}, fmt.Errorf("%w: %s", apperr.ErrInvalidAmount, refund)
	}
	if refund > remaining {
		return RefundResult{}, fmt.Errorf("%w: requested %s, refundable %s", apperr.ErrRefundExceedsOriginal, refund, remaining)
	}

	var fee ledger.Money
	if s.settings.RefundFeeEnabled {
		if fee, err = ledger.ApplyRate(refund, s.settings.RefundFeeRate, ledger.MaxRate); err != nil {
			return RefundResult{}, err
		}
	}
	net, err := ledger.Subtract(refund, fee)
	if err != nil {
		return RefundResult{}, err
	}
	total, err := ledger.Add(tx.RefundedTotal, refund)
	if err != nil {
		return RefundResult{}, err
	}

	now := s.now()
	record := domain.Refund{
		ID:        uuid.NewString(),
		Amount:    refund,
		Fee:       fee,
		Net:       net,
		CreatedAt: now,
	}
	tx.Refunds = append(tx.Refunds, record)
	tx.RefundedTotal = total
	tx.UpdatedAt = now
	if total == tx.Amount {
		tx.Status = domain.TransactionRefunded
	}

	if err := s.transactions.Put(ctx, tx.ID, tx); err != nil {
		return RefundResult{}, fmt.Errorf("save transaction %s: %w", tx.ID, err)
	}

	s.refunds.Add(ctx, 1, metric.WithAttributes(attribute.Bool("full", tx.Status == domain.TransactionRefunded)))
	s.publish(ctx, domain.EventPaymentRefunded, tx)
	s.logger.Info("payment refunded", "transaction_id", tx.ID, "amount", refund.String(), "fee", fee.String(), "refunded_total", total.String(), "by", p.UserID)
	return RefundResult{Refund: record, Transaction: tx}, nil
}

// RefundOrder refunds the order's payment. A refund that settles the
// transaction in full moves the order to refunded.
func (s *Service) RefundOrder(ctx context.Context, p auth.Principal, orderID string, amount *ledger.Money) (RefundResult, error) {
	if err := auth.Require(p, auth.PermRefund); err != nil {
		return RefundResult{}, err
	}
	return s.refundOrder(ctx, p, orderID, "", amount)
}

// refundOrder refunds the payment of orderID. When transactionID is set and
// is not the payment the order holds, it is refunded on its own.
func (s *Service) refundOrder(ctx context.Context, p auth.Principal, orderID, transactionID string, amount *ledger.Money) (RefundResult, error) {
	defer s.locks.Lock("order:" + orderID)()

	order, err := s.orders.Get(ctx, orderID)
	if transactionID != "" {
		detached := errors.Is(err, apperr.ErrOrderNotFound) || (err == nil && order.TransactionID != transactionID)
		if detached {
			return s.refund(ctx, p, transactionID, amount)
		}
	}
	if err != nil {
		return RefundResult{}, err
	}
	if !refundable(order) {
		return RefundResult{}, fmt.Errorf("%w: order %s is %s", apperr.ErrRefundNotAllowed, orderID, order.Status)
	}

	res, err := s.refund(ctx, p, order.TransactionID, amount)
	if err != nil {
		return RefundResult{}, err
	}

	if res.Transaction.Status == domain.TransactionRefunded {
		if err := s.orders.MarkRefunded(ctx, p, orderID); err != nil {
			return res, fmt.Errorf("refund %s recorded, order %s not updated: %w", res.Refund.ID, orderID, err)
		}
	}
	return res, nil
}

func refundable(o domain.Order) bool {
	if o.TransactionID == "" || !o.PaymentCaptured {
		return false
	}
	switch o.Status {
	case domain.OrderStatusDelivered:
		return true
	case domain.OrderStatusCancelled:
		return o.RefundEligible
	default:
		return false
	}
}

// CalculateInstallments uses the configured interest ceiling.
func (s *Service) CalculateInstallments(total ledger.Money, n int, rate decimal.Decimal) (domain.InstallmentPlan, error) {
	return CalculateInstallments(total, n, rate, s.settings.MaxInterestRate)
}

func (s *Service) GetTransaction(ctx context.Context, p auth.Principal, id string) (domain.Transaction, error) {
	tx, err := s.transaction(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := auth.RequireOwnerOr(p, tx.CustomerID, auth.PermViewAllOrders); err != nil {
		return domain.Transaction{}, err
	}
	return tx, nil
}

func (s *Service) transaction(ctx context.Context, id string) (domain.Transaction, error) {
	tx, err := s.transactions.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Transaction{}, fmt.Errorf("%w: %s", apperr.ErrTransactionNotFound, id)
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("load transaction %s: %w", id, err)
	}
	return tx, nil
}

func (s *Service) publish(ctx context.Context, eventType string, tx domain.Transaction) {
	if s.publisher == nil {
		return
	}
	event := domain.PaymentEvent{
		TransactionID: tx.ID,
		OrderID:       tx.OrderID,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		Timestamp:     tx.UpdatedAt,
	}
	if eventType == domain.EventPaymentRefunded && len(tx.Refunds) > 0 {
		event.Amount = tx.Refunds[len(tx.Refunds)-1].Amount
	}
	if err := s.publisher.PublishEvent(ctx, eventType, tx.ID, event); err != nil {
		s.logger.Error("failed to publish payment event", "error", err, "event_type", eventType, "transaction_id", tx.ID)
	}
}
