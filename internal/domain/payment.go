package domain

import (
	"time"

	"github.com/joao-fontenele/orderflow-core/internal/ledger"
)

type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionRefunded  TransactionStatus = "refunded"
)

type Refund struct {
	ID        string       `json:"id"`
	Amount    ledger.Money `json:"amount"`
	Fee       ledger.Money `json:"fee"`
	Net       ledger.Money `json:"net"`
	CreatedAt time.Time    `json:"created_at"`
}

// Transaction is a settled payment. Only refunds are appended after
// settlement.
type Transaction struct {
	ID             string            `json:"id"`
	OrderID        string            `json:"order_id,omitempty"`
	CustomerID     string            `json:"customer_id,omitempty"`
	Amount         ledger.Money      `json:"amount"`
	Currency       string            `json:"currency"`
	Fee            ledger.Money      `json:"fee"`
	Net            ledger.Money      `json:"net"`
	Method         string            `json:"method"`
	Status         TransactionStatus `json:"status"`
	Refunds        []Refund          `json:"refunds,omitempty"`
	RefundedTotal  ledger.Money      `json:"refunded_total"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Refundable is what is left to refund on the transaction.
func (t *Transaction) Refundable() (ledger.Money, error) {
	return ledger.Subtract(t.Amount, t.RefundedTotal)
}

type Frequency string

const (
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Next returns the billing date following t.
func (f Frequency) Next(t time.Time) (time.Time, bool) {
	switch f {
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7), true
	case FrequencyMonthly:
		return t.AddDate(0, 1, 0), true
	case FrequencyYearly:
		return t.AddDate(1, 0, 0), true
	default:
		return time.Time{}, false
	}
}

type Subscription struct {
	ID            string       `json:"id"`
	CustomerID    string       `json:"customer_id"`
	Amount        ledger.Money `json:"amount"`
	Currency      string       `json:"currency"`
	Method        string       `json:"method"`
	Frequency     Frequency    `json:"frequency"`
	Status        string       `json:"status"`
	NextBillingAt time.Time    `json:"next_billing_at"`
	EndsAt        *time.Time   `json:"ends_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Installment is one scheduled part of a payment plan.
type Installment struct {
	Number int          `json:"number"`
	Amount ledger.Money `json:"amount"`
}

type InstallmentPlan struct {
	Principal    ledger.Money  `json:"principal"`
	InterestRate string        `json:"interest_rate"`
	Total        ledger.Money  `json:"total"`
	Installments []Installment `json:"installments"`
}
