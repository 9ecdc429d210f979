package domain

import (
	"time"

	"github.com/joao-fontenele/orderflow-core/internal/ledger"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventPaymentCompleted   = "payment.completed"
	EventPaymentRefunded    = "payment.refunded"
	EventEmailRequested     = "email.requested"
)

type OrderCreatedEvent struct {
	OrderID   string       `json:"order_id"`
	UserID    string       `json:"user_id"`
	Items     []OrderItem  `json:"items"`
	Total     ledger.Money `json:"total"`
	Timestamp time.Time    `json:"timestamp"`
}

type OrderStatusChangedEvent struct {
	OrderID   string      `json:"order_id"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	By        string      `json:"by"`
	Timestamp time.Time   `json:"timestamp"`
}

type PaymentEvent struct {
	TransactionID string       `json:"transaction_id"`
	OrderID       string       `json:"order_id,omitempty"`
	Amount        ledger.Money `json:"amount"`
	Currency      string       `json:"currency"`
	Timestamp     time.Time    `json:"timestamp"`
}

// EmailMessage is a rendered notification waiting for delivery.
type EmailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
