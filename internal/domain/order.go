package domain

import (
	"fmt"
	"time"

	"github.com/joao-fontenele/orderflow-core/internal/apperr"
	"github.com/joao-fontenele/orderflow-core/internal/ledger"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", apperr.ErrInvalidStatus, s)
	}
}

func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// Cancellable reports whether an order in this status may still be cancelled.
func (s OrderStatus) Cancellable() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing:
		return true
	default:
		return false
	}
}

// CanTransition is the order lifecycle table. A cancelled order may only move
// to refunded when its payment was captured.
func CanTransition(from, to OrderStatus, paymentCaptured bool) bool {
	switch from {
	case OrderStatusPending:
		return to == OrderStatusConfirmed || to == OrderStatusCancelled
	case OrderStatusConfirmed:
		return to == OrderStatusProcessing || to == OrderStatusCancelled
	case OrderStatusProcessing:
		return to == OrderStatusShipped || to == OrderStatusCancelled
	case OrderStatusShipped:
		return to == OrderStatusDelivered
	case OrderStatusDelivered:
		return to == OrderStatusRefunded
	case OrderStatusCancelled:
		return to == OrderStatusRefunded && paymentCaptured
	case OrderStatusRefunded:
		return false
	default:
		return false
	}
}

type OrderItem struct {
	ProductID     string       `json:"product_id"`
	Name          string       `json:"name"`
	Quantity      int          `json:"quantity"`
	UnitPrice     ledger.Money `json:"unit_price"`
	ReservationID string       `json:"reservation_id,omitempty"`
}

func (i OrderItem) LineTotal() (ledger.Money, error) {
	return ledger.Multiply(i.UnitPrice, i.Quantity)
}

type Totals struct {
	Subtotal ledger.Money `json:"subtotal"`
	Discount ledger.Money `json:"discount"`
	Tax      ledger.Money `json:"tax"`
	Shipping ledger.Money `json:"shipping"`
	Total    ledger.Money `json:"total"`
}

type Tracking struct {
	Carrier string    `json:"carrier"`
	Number  string    `json:"number"`
	AddedAt time.Time `json:"added_at"`
}

type Return struct {
	ID           string       `json:"id"`
	Items        []string     `json:"items"`
	Reason       string       `json:"reason"`
	Status       string       `json:"status"`
	RefundAmount ledger.Money `json:"refund_amount"`
	CreatedAt    time.Time    `json:"created_at"`
}

type StatusChange struct {
	From OrderStatus `json:"from"`
	To   OrderStatus `json:"to"`
	By   string      `json:"by"`
	At   time.Time   `json:"at"`
}

type Order struct {
	ID                 string                `json:"id"`
	UserID             string                `json:"user_id"`
	Email              string                `json:"email"`
	Items              []OrderItem           `json:"items"`
	Discounts          []DiscountApplication `json:"discounts,omitempty"`
	Totals             Totals                `json:"totals"`
	ShippingAddress    Address               `json:"shipping_address"`
	PaymentMethod      string                `json:"payment_method"`
	Status             OrderStatus           `json:"status"`
	TransactionID      string                `json:"transaction_id,omitempty"`
	PaymentCaptured    bool                  `json:"payment_captured"`
	RefundEligible     bool                  `json:"refund_eligible"`
	Tracking           *Tracking             `json:"tracking,omitempty"`
	Returns            []Return              `json:"returns,omitempty"`
	History            []StatusChange        `json:"history,omitempty"`
	CancellationReason string                `json:"cancellation_reason,omitempty"`
	EstimatedDelivery  time.Time             `json:"estimated_delivery"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
	ConfirmedAt        *time.Time            `json:"confirmed_at,omitempty"`
	ShippedAt          *time.Time            `json:"shipped_at,omitempty"`
	DeliveredAt        *time.Time            `json:"delivered_at,omitempty"`
	CancelledAt        *time.Time            `json:"cancelled_at,omitempty"`
	RefundedAt         *time.Time            `json:"refunded_at,omitempty"`
}

// Transition moves the order to status to, recording who asked for it.
func (o *Order) Transition(to OrderStatus, by string, now time.Time) error {
	if !CanTransition(o.Status, to, o.PaymentCaptured) {
		return fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, o.Status, to)
	}

	o.History = append(o.History, StatusChange{From: o.Status, To: to, By: by, At: now})
	o.Status = to
	o.UpdatedAt = now

	at := now
	switch to {
	case OrderStatusConfirmed:
		o.ConfirmedAt = &at
	case OrderStatusShipped:
		o.ShippedAt = &at
	case OrderStatusDelivered:
		o.DeliveredAt = &at
	case OrderStatusCancelled:
		o.CancelledAt = &at
		o.RefundEligible = o.PaymentCaptured
	case OrderStatusRefunded:
		o.RefundedAt = &at
		o.RefundEligible = false
	}
	return nil
}

func (o *Order) Item(productID string) (OrderItem, bool) {
	for _, it := range o.Items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return OrderItem{}, false
}

// Returned reports whether productID is part of a recorded return.
func (o *Order) Returned(productID string) bool {
	for _, r := range o.Returns {
		for _, id := range r.Items {
			if id == productID {
				return true
			}
		}
	}
	return false
}

// ReservationIDs lists the reservations still tied to the order's lines.
func (o *Order) ReservationIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		if it.ReservationID != "" {
			ids = append(ids, it.ReservationID)
		}
	}
	return ids
}

// OwnedBy reports whether userID placed the order.
func (o *Order) OwnedBy(userID string) bool {
	return userID != "" && o.UserID == userID
}

// OrderIDFor formats the n-th order id.
func OrderIDFor(n int) string {
	return fmt.Sprintf("ORD-%06d", n)
}
