package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/orderflow-core/internal/apperr"
	"github.com/joao-fontenele/orderflow-core/internal/auth"
	"github.com/joao-fontenele/orderflow-core/internal/domain"
	"github.com/joao-fontenele/orderflow-core/internal/inventory"
	"github.com/joao-fontenele/orderflow-core/internal/ledger"
	"github.com/joao-fontenele/orderflow-core/internal/orders"
)

var (
	staff    = auth.Principal{UserID: "staff-1", Role: auth.RoleStaff}
	customer = auth.Principal{UserID: "user-1", Role: auth.RoleCustomer}
	stranger = auth.Principal{UserID: "user-2", Role: auth.RoleCustomer}
	fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

type mockOrderBook struct {
	orders    map[string]domain.Order
	attachErr error
	refunded  []string
}

func newMockOrderBook(orders ...domain.Order) *mockOrderBook {
	m := &mockOrderBook{orders: make(map[string]domain.Order)}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *mockOrderBook) Get(_ context.Context, id string) (domain.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, apperr.ErrOrderNotFound
	}
	return o, nil
}

func (m *mockOrderBook) AttachPayment(_ context.Context, id, transactionID string) error {
	if m.attachErr != nil {
		return m.attachErr
	}
	o := m.orders[id]
	o.TransactionID = transactionID
	o.PaymentCaptured = true
	m.orders[id] = o
	return nil
}

func (m *mockOrderBook) MarkRefunded(_ context.Context, _ auth.Principal, id string) error {
	m.refunded = append(m.refunded, id)
	o := m.orders[id]
	o.Status = domain.OrderStatusRefunded
	m.orders[id] = o
	return nil
}

type mockPublisher struct {
	events []string
}

func (m *mockPublisher) PublishEvent(_ context.Context, eventType, _ string, _ any) error {
	m.events = append(m.events, eventType)
	return nil
}

func newTestService(t *testing.T, orders OrderBook, settings Settings, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewService(NewMemoryRepository(), orders, NewAllowList("card", "paypal", "bank_transfer"), settings,
		slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func money(s string) ledger.Money { return ledger.MustParse(s) }

func ptr[T any](v T) *T { return &v }

func pay(t *testing.T, svc *Service, amount string) domain.Transaction {
	t.Helper()
	tx, err := svc.ProcessPayment(context.Background(), PaymentRequest{
		CustomerID: customer.UserID, Amount: money(amount), Currency: "usd", Method: "card",
	})
	if err != nil {
		t.Fatalf("process payment: %v", err)
	}
	return tx
}

func TestService_ProcessPayment(t *testing.T) {
	pub := &mockPublisher{}
	svc := newTestService(t, newMockOrderBook(), DefaultSettings(), WithPublisher(pub))

	tx := pay(t, svc, "100.00")

	if tx.Fee != money("3.20") {
		t.Errorf("expected fee 3.20, got %s", tx.Fee)
	}
	if tx.Net != money("96.80") {
		t.Errorf("expected net 96.80, got %s", tx.Net)
	}
	if tx.Currency != "USD" || tx.Status != domain.TransactionCompleted {
		t.Errorf("unexpected transaction %+v", tx)
	}
	if len(pub.events) != 1 || pub.events[0] != domain.EventPaymentCompleted {
		t.Errorf("expected one payment.completed event, got %v", pub.events)
	}
}

func TestService_ProcessPayment_Validation(t *testing.T) {
	svc := newTestService(t, newMockOrderBook(), DefaultSettings())

	tests := []struct {
		name string
		req  PaymentRequest
		want error
	}{
		{name: "zero amount", req: PaymentRequest{Currency: "USD", Method: "card"}, want: apperr.ErrInvalidAmount},
		{name: "unsupported currency", req: PaymentRequest{Amount: 100, Currency: "JPY", Method: "card"}, want: apperr.ErrInvalidCurrency},
		{name: "rejected method", req: PaymentRequest{Amount: 1000, Currency: "USD", Method: "crypto"}, want: apperr.ErrPaymentMethodRejected},
		{name: "missing method", req: PaymentRequest{Amount: 1000, Currency: "USD"}, want: apperr.ErrInvalidPaymentMethod},
		{name: "fee above amount", req: PaymentRequest{Amount: money("0.10"), Currency: "USD", Method: "card"}, want: apperr.ErrNegativeResult},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ProcessPayment(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestService_ProcessPayment_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newMockOrderBook(), DefaultSettings())

	req := PaymentRequest{CustomerID: "user-1", Amount: money("20.00"), Currency: "EUR", Method: "paypal", IdempotencyKey: "abc"}
	first, err := svc.ProcessPayment(ctx, req)
	if err != nil {
		t.Fatalf("first payment: %v", err)
	}
	second, err := svc.ProcessPayment(ctx, req)
	if err != nil {
		t.Fatalf("replayed payment: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected replay to return %s, got %s", first.ID, second.ID)
	}

	req.IdempotencyKey = "def"
	third, _ := svc.ProcessPayment(ctx, req)
	if third.ID == first.ID {
		t.Error("different key must create a new transaction")
	}
}

func TestService_RefundPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("refund exceeding original fails", func(t *testing.T) {
		svc := newTestService(t, newMockOrderBook(), DefaultSettings())
		tx := pay(t, svc, "100.00")

		_, err := svc.RefundPayment(ctx, staff, tx.ID, ptr(money("150.00")))
		if !errors.Is(err, apperr.ErrRefundExceedsOriginal) {
			t.Errorf("expected ErrRefundExceedsOriginal, got %v", err)
		}
	})

	t.Run("full refund then second refund fails", func(t *testing.T) {
		svc := newTestService(t, newMockOrderBook(), DefaultSettings())
		tx := pay(t, svc, "100.00")

		res, err := svc.RefundPayment(ctx, staff, tx.ID, nil)
		if err != nil {
			t.Fatalf("refund: %v", err)
		}
		if res.Refund.Amount != money("100.00") || res.Refund.Fee != money("1.00") || res.Refund.Net != money("99.00") {
			t.Errorf("unexpected refund %+v", res.Refund)
		}
		if res.Transaction.Status != domain.TransactionRefunded {
			t.Errorf("expected refunded, got %s", res.Transaction.Status)
		}

		_, err = svc.RefundPayment(ctx, staff, tx.ID, nil)
		if !errors.Is(err, apperr.ErrAlreadyRefunded) {
			t.Errorf("expected ErrAlreadyRefunded, got %v", err)
		}
	})

	t.Run("partial refunds accumulate", func(t *testing.T) {
		svc := newTestService(t, newMockOrderBook(), DefaultSettings())
		tx := pay(t, svc, "100.00")

		res, err := svc.RefundPayment(ctx, staff, tx.ID, ptr(money("40.00")))
		if err != nil {
			t.Fatalf("first refund: %v", err)
		}
		if res.Transaction.Status != domain.TransactionCompleted || res.Transaction.RefundedTotal != money("40.00") {
			t.Errorf("unexpected transaction after partial refund: %+v", res.Transaction)
		}

		_, err = svc.RefundPayment(ctx, staff, tx.ID, ptr(money("60.01")))
		if !errors.Is(err, apperr.ErrRefundExceedsOriginal) {
			t.Errorf("expected ErrRefundExceedsOriginal, got %v", err)
		}

		res, err = svc.RefundPayment(ctx, staff, tx.ID, nil)
		if err != nil {
			t.Fatalf("final refund: %v", err)
		}
		if res.Refund.Amount != money("60.00") {
			t.Errorf("expected default refund of the remaining 60.00, got %s", res.Refund.Amount)
		}
		if res.Transaction.Status != domain.TransactionRefunded || len(res.Transaction.Refunds) != 2 {
			t.Errorf("unexpected transaction %+v", res.Transaction)
		}
	})

	t.Run("refund fee can be disabled", func(t *testing.T) {
		settings := DefaultSettings()
		settings.RefundFeeEnabled = false
		svc := newTestService(t, newMockOrderBook(), settings)
		tx := pay(t, svc, "50.00")

		res, err := svc.RefundPayment(ctx, staff, tx.ID, nil)
		if err != nil {
			t.Fatalf("refund: %v", err)
		}
		if res.Refund.Fee != 0 || res.Refund.Net != money("50.00") {
			t.Errorf("unexpected refund %+v", res.Refund)
		}
	})

	t.Run("rejections", func(t *testing.T) {
		svc := newTestService(t, newMockOrderBook(), DefaultSettings())
		tx := pay(t, svc, "10.00")

		if _, err := svc.RefundPayment(ctx, customer, tx.ID, nil); !errors.Is(err, apperr.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
		if _, err := svc.RefundPayment(ctx, staff, "missing", nil); !errors.Is(err, apperr.ErrTransactionNotFound) {
			t.Errorf("expected ErrTransactionNotFound, got %v", err)
		}
		if _, err := svc.RefundPayment(ctx, staff, tx.ID, ptr(ledger.Money(0))); !errors.Is(err, apperr.ErrInvalidAmount) {
			t.Errorf("expected ErrInvalidAmount, got %v", err)
		}
	})
}

func pendingOrder() domain.Order {
	return domain.Order{
		ID:            "ORD-000001",
		UserID:        customer.UserID,
		Status:        domain.OrderStatusPending,
		PaymentMethod: "card",
		Totals:        domain.Totals{Total: money("22.60")},
	}
}

func TestService_PayOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("charges the order total", func(t *testing.T) {
		orders := newMockOrderBook(pendingOrder())
		svc := newTestService(t, orders, DefaultSettings())

		tx, err := svc.PayOrder(ctx, customer, "ORD-000001", "", "")
		if err != nil {
			t.Fatalf("pay order: %v", err)
		}
		if tx.Amount != money("22.60") || tx.OrderID != "ORD-000001" {
			t.Errorf("unexpected transaction %+v", tx)
		}
		if orders.orders["ORD-000001"].TransactionID != tx.ID {
			t.Error("expected transaction to be attached to the order")
		}

		if _, err := svc.PayOrder(ctx, customer, "ORD-000001", "card", ""); !errors.Is(err, apperr.ErrAlreadyPaid) {
			t.Errorf("expected ErrAlreadyPaid, got %v", err)
		}
	})

	t.Run("replay with the same key returns the first transaction", func(t *testing.T) {
		svc := newTestService(t, newMockOrderBook(pendingOrder()), DefaultSettings())

		first, err := svc.PayOrder(ctx, customer, "ORD-000001", "card", "k-1")
		if err != nil {
			t.Fatalf("pay order: %v", err)
		}
		second, err := svc.PayOrder(ctx, customer, "ORD-000001", "card", "k-1")
		if err != nil {
			t.Fatalf("replay: %v", err)
		}
		if first.ID != second.ID {
			t.Errorf("expected %s, got %s", first.ID, second.ID)
		}
	})

	t.Run("other customers cannot pay", func(t *testing.T) {
		svc := newTestService(t, newMockOrderBook(pendingOrder()), DefaultSettings())
		if _, err := svc.PayOrder(ctx, stranger, "ORD-000001", "card", ""); !errors.Is(err, apperr.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("shipped order cannot be paid", func(t *testing.T) {
		o := pendingOrder()
		o.Status = domain.OrderStatusShipped
		svc := newTestService(t, newMockOrderBook(o), DefaultSettings())
		if _, err := svc.PayOrder(ctx, customer, o.ID, "card", ""); !errors.Is(err, apperr.ErrInvalidOrderState) {
			t.Errorf("expected ErrInvalidOrderState, got %v", err)
		}
	})

	t.Run("failed attach reverses the charge", func(t *testing.T) {
		orders := newMockOrderBook(pendingOrder())
		orders.attachErr = errors.New("db down")
		svc := newTestService(t, orders, DefaultSettings())

		if _, err := svc.PayOrder(ctx, customer, "ORD-000001", "card", ""); err == nil {
			t.Fatal("expected error")
		}
		txs, _ := svc.transactions.List(ctx)
		if len(txs) != 1 || txs[0].Status != domain.TransactionRefunded {
			t.Errorf("expected one reversed transaction, got %+v", txs)
		}
	})
}

// cancellingVerifier cancels the order while the charge is being authorized.
type cancellingVerifier struct {
	orders  *orders.Service
	orderID string
}

func (v cancellingVerifier) Verify(ctx context.Context, _ string) error {
	_, err := v.orders.Cancel(ctx, auth.System, v.orderID, "")
	return err
}

type nopNotifier struct{}

func (nopNotifier) NotifyOrderConfirmed(context.Context, string, string, ledger.Money) error {
	return nil
}

func (nopNotifier) NotifyShipped(context.Context, string, string) error { return nil }

func TestService_PayOrder_CancelledDuringCharge(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	inv := inventory.NewService(inventory.NewMemoryRepository(), logger)
	if _, err := inv.AddProduct(ctx, auth.System, inventory.NewProduct{ID: "P-1", Name: "Widget", Price: money("10.00"), Quantity: 5}); err != nil {
		t.Fatalf("add product: %v", err)
	}
	orderSvc := orders.NewService(orders.NewMemoryRepository(), inv, nopNotifier{}, orders.DefaultSettings(), logger)

	id, err := orderSvc.NextID(ctx)
	if err != nil {
		t.Fatalf("next id: %v", err)
	}
	rid, err := inv.Reserve(ctx, "P-1", 1, id)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := orderSvc.Create(ctx, orders.Draft{
		ID:     id,
		UserID: customer.UserID,
		Items: []domain.OrderItem{
			{ProductID: "P-1", Name: "Widget", Quantity: 1, UnitPrice: money("10.00"), ReservationID: rid},
		},
		Totals:          domain.Totals{Subtotal: money("10.00"), Total: money("10.00")},
		ShippingAddress: domain.Address{Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
		PaymentMethod:   "card",
	}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	svc := NewService(NewMemoryRepository(), orderSvc, cancellingVerifier{orders: orderSvc, orderID: id},
		DefaultSettings(), logger, WithClock(func() time.Time { return fixedNow }))

	if _, err := svc.PayOrder(ctx, customer, id, "card", ""); !errors.Is(err, apperr.ErrInvalidOrderState) {
		t.Fatalf("expected ErrInvalidOrderState, got %v", err)
	}

	txs, _ := svc.transactions.List(ctx)
	if len(txs) != 1 || txs[0].Status != domain.TransactionRefunded {
		t.Errorf("expected one reversed transaction, got %+v", txs)
	}
	order, _ := orderSvc.Get(ctx, id)
	if order.Status != domain.OrderStatusCancelled || order.PaymentCaptured || order.RefundEligible {
		t.Errorf("unexpected order %s captured=%v eligible=%v", order.Status, order.PaymentCaptured, order.RefundEligible)
	}
}

func TestService_RefundPayment_OrderPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("follows the order's refund rules", func(t *testing.T) {
		book := newMockOrderBook(pendingOrder())
		svc := newTestService(t, book, DefaultSettings())
		tx, err := svc.PayOrder(ctx, customer, "ORD-000001", "card", "")
		if err != nil {
			t.Fatalf("pay order: %v", err)
		}

		if _, err := svc.RefundPayment(ctx, staff, tx.ID, nil); !errors.Is(err, apperr.ErrRefundNotAllowed) {
			t.Fatalf("expected ErrRefundNotAllowed, got %v", err)
		}
		got, _ := svc.transaction(ctx, tx.ID)
		if got.Status != domain.TransactionCompleted || got.RefundedTotal != 0 {
			t.Errorf("expected untouched transaction, got %+v", got)
		}

		o := book.orders["ORD-000001"]
		o.Status = domain.OrderStatusDelivered
		book.orders[o.ID] = o

		if _, err := svc.RefundPayment(ctx, staff, tx.ID, nil); err != nil {
			t.Fatalf("refund: %v", err)
		}
		if len(book.refunded) != 1 || book.orders[o.ID].Status != domain.OrderStatusRefunded {
			t.Errorf("expected order to be marked refunded, got %v", book.refunded)
		}
	})

	t.Run("payment for an unknown order is refunded on its own", func(t *testing.T) {
		svc := newTestService(t, newMockOrderBook(), DefaultSettings())
		tx, err := svc.ProcessPayment(ctx, PaymentRequest{
			OrderID: "ORD-000404", CustomerID: customer.UserID, Amount: money("10.00"), Currency: "USD", Method: "card",
		})
		if err != nil {
			t.Fatalf("process payment: %v", err)
		}
		res, err := svc.RefundPayment(ctx, staff, tx.ID, nil)
		if err != nil {
			t.Fatalf("refund: %v", err)
		}
		if res.Transaction.Status != domain.TransactionRefunded {
			t.Errorf("expected refunded, got %s", res.Transaction.Status)
		}
	})
}

func TestService_RefundOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("delivered order is refunded in full", func(t *testing.T) {
		orders := newMockOrderBook(pendingOrder())
		svc := newTestService(t, orders, DefaultSettings())
		if _, err := svc.PayOrder(ctx, customer, "ORD-000001", "card", ""); err != nil {
			t.Fatalf("pay order: %v", err)
		}
		o := orders.orders["ORD-000001"]
		o.Status = domain.OrderStatusDelivered
		orders.orders[o.ID] = o

		res, err := svc.RefundOrder(ctx, staff, o.ID, nil)
		if err != nil {
			t.Fatalf("refund order: %v", err)
		}
		if res.Refund.Amount != money("22.60") {
			t.Errorf("expected 22.60, got %s", res.Refund.Amount)
		}
		if len(orders.refunded) != 1 {
			t.Errorf("expected order to be marked refunded, got %v", orders.refunded)
		}
	})

	t.Run("partial refund leaves the order alone", func(t *testing.T) {
		orders := newMockOrderBook(pendingOrder())
		svc := newTestService(t, orders, DefaultSettings())
		if _, err := svc.PayOrder(ctx, customer, "ORD-000001", "card", ""); err != nil {
			t.Fatalf("pay order: %v", err)
		}
		o := orders.orders["ORD-000001"]
		o.Status = domain.OrderStatusDelivered
		orders.orders[o.ID] = o

		if _, err := svc.RefundOrder(ctx, staff, o.ID, ptr(money("2.60"))); err != nil {
			t.Fatalf("refund order: %v", err)
		}
		if len(orders.refunded) != 0 {
			t.Errorf("did not expect order to be marked refunded")
		}
	})

	t.Run("pending order is not refundable", func(t *testing.T) {
		svc := newTestService(t, newMockOrderBook(pendingOrder()), DefaultSettings())
		if _, err := svc.RefundOrder(ctx, staff, "ORD-000001", nil); !errors.Is(err, apperr.ErrRefundNotAllowed) {
			t.Errorf("expected ErrRefundNotAllowed, got %v", err)
		}
	})
}

func TestCalculateInstallments(t *testing.T) {
	t.Run("parts sum to the total", func(t *testing.T) {
		plan, err := CalculateInstallments(money("100.00"), 3, decimal.Zero, ledger.MaxRate)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []ledger.Money{money("33.33"), money("33.33"), money("33.34")}
		var sum ledger.Money
		for i, inst := range plan.Installments {
			if inst.Amount != want[i] || inst.Number != i+1 {
				t.Errorf("installment %d: expected %s, got %+v", i+1, want[i], inst)
			}
			sum += inst.Amount
		}
		if sum != money("100.00") || plan.Total != money("100.00") {
			t.Errorf("expected sum 100.00, got %s (plan total %s)", sum, plan.Total)
		}
	})

	t.Run("interest is added before splitting", func(t *testing.T) {
		plan, err := CalculateInstallments(money("100.00"), 3, decimal.NewFromInt(10), ledger.MaxRate)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if plan.Total != money("110.00") {
			t.Errorf("expected 110.00, got %s", plan.Total)
		}
		if last := plan.Installments[2].Amount; last != money("36.68") {
			t.Errorf("expected last installment 36.68, got %s", last)
		}
	})

	tests := []struct {
		name string
		n    int
		rate decimal.Decimal
		want error
	}{
		{name: "zero installments", n: 0, rate: decimal.Zero, want: apperr.ErrInvalidInstallmentCount},
		{name: "negative installments", n: -2, rate: decimal.Zero, want: apperr.ErrInvalidInstallmentCount},
		{name: "negative rate", n: 3, rate: decimal.NewFromInt(-1), want: apperr.ErrInvalidPercent},
		{name: "rate above ceiling", n: 3, rate: decimal.NewFromInt(101), want: apperr.ErrInvalidPercent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CalculateInstallments(money("100.00"), tt.n, tt.rate, ledger.MaxRate); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCalculateTax(t *testing.T) {
	quote, err := CalculateTax(money("80.00"), decimal.RequireFromString("8.25"), "US")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Tax != money("6.60") || quote.Total != money("86.60") {
		t.Errorf("unexpected quote %+v", quote)
	}

	if _, err := CalculateTax(money("80.00"), decimal.NewFromInt(-5), "US"); !errors.Is(err, apperr.ErrInvalidTaxRate) {
		t.Errorf("expected ErrInvalidTaxRate, got %v", err)
	}
	if _, err := CalculateTax(money("80.00"), decimal.NewFromInt(5), "usa"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_CreateSubscription(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newMockOrderBook(), DefaultSettings())

	sub, err := svc.CreateSubscription(ctx, customer, SubscriptionRequest{
		Amount: money("9.99"), Currency: "USD", Method: "card", Frequency: domain.FrequencyMonthly,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.CustomerID != customer.UserID || sub.Status != "active" || !sub.NextBillingAt.Equal(fixedNow) {
		t.Errorf("unexpected subscription %+v", sub)
	}

	past := fixedNow.Add(-time.Hour)
	tests := []struct {
		name string
		p    auth.Principal
		req  SubscriptionRequest
		want error
	}{
		{name: "bad frequency", p: customer, req: SubscriptionRequest{Amount: 100, Method: "card", Frequency: "daily"}, want: apperr.ErrInvalidFrequency},
		{name: "zero amount", p: customer, req: SubscriptionRequest{Method: "card", Frequency: domain.FrequencyWeekly}, want: apperr.ErrInvalidAmount},
		{name: "end before start", p: customer, req: SubscriptionRequest{Amount: 100, Method: "card", Frequency: domain.FrequencyWeekly, EndsAt: &past}, want: apperr.ErrInvalidPeriod},
		{name: "someone else's subscription", p: stranger, req: SubscriptionRequest{CustomerID: "user-1", Amount: 100, Method: "card", Frequency: domain.FrequencyWeekly}, want: apperr.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateSubscription(ctx, tt.p, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
