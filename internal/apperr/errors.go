// Package apperr defines the error taxonomy shared by every component.
package apperr

import "errors"

// Kind classifies a domain error. Callers branch on the kind (for example to
// pick an HTTP status) and on the specific sentinel when they need more detail.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindState
	KindAuthorization
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindState:
		return "state"
	case KindAuthorization:
		return "authorization"
	default:
		return "unknown"
	}
}

// Error is a business-rule failure. Errors with an empty Code act as kind
// sentinels: errors.Is(err, ErrConflict) matches every conflict error.
type Error struct {
	Kind Kind
	Code string
	msg  string
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

func (e *Error) Error() string {
	return e.msg
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return t.Kind == e.Kind
	}
	return t.Code == e.Code
}

// KindOf returns the kind of the first domain error in err's chain, or zero
// when err carries none.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

// CodeOf returns the code of the first domain error in err's chain.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

var (
	ErrValidation    = newError(KindValidation, "", "validation error")
	ErrNotFound      = newError(KindNotFound, "", "not found")
	ErrConflict      = newError(KindConflict, "", "conflict")
	ErrState         = newError(KindState, "", "invalid state")
	ErrAuthorization = newError(KindAuthorization, "", "not authorized")
)

// Validation errors.
var (
	ErrNegativeAmount          = newError(KindValidation, "negative_amount", "amount must not be negative")
	ErrNegativeResult          = newError(KindValidation, "negative_result", "operation would produce a negative amount")
	ErrOverflow                = newError(KindValidation, "overflow", "amount out of range")
	ErrInvalidAmount           = newError(KindValidation, "invalid_amount", "amount must be greater than zero")
	ErrInvalidPercent          = newError(KindValidation, "invalid_percent", "percent out of range")
	ErrInvalidQuantity         = newError(KindValidation, "invalid_quantity", "quantity must be greater than zero")
	ErrInvalidPrice            = newError(KindValidation, "invalid_price", "invalid price")
	ErrInvalidName             = newError(KindValidation, "invalid_name", "name is required")
	ErrInvalidShippingCost     = newError(KindValidation, "invalid_shipping_cost", "shipping cost must not be negative")
	ErrInvalidTaxRate          = newError(KindValidation, "invalid_tax_rate", "tax rate out of range")
	ErrInvalidInstallmentCount = newError(KindValidation, "invalid_installment_count", "installment count must be greater than zero")
	ErrInvalidCurrency         = newError(KindValidation, "invalid_currency", "unsupported currency")
	ErrInvalidFrequency        = newError(KindValidation, "invalid_frequency", "unsupported billing frequency")
	ErrInvalidPaymentMethod    = newError(KindValidation, "invalid_payment_method", "invalid payment method")
	ErrPaymentMethodRejected   = newError(KindValidation, "payment_method_rejected", "payment method rejected")
	ErrInvalidDiscountCode     = newError(KindValidation, "invalid_discount_code", "discount code is required")
	ErrInvalidAddress          = newError(KindValidation, "invalid_address", "invalid shipping address")
	ErrInvalidEmail            = newError(KindValidation, "invalid_email", "invalid email address")
	ErrInvalidTrackingNumber   = newError(KindValidation, "invalid_tracking_number", "invalid tracking number")
	ErrInvalidCarrier          = newError(KindValidation, "invalid_carrier", "unsupported carrier")
	ErrInvalidStatus           = newError(KindValidation, "invalid_status", "unknown order status")
	ErrInvalidTransfer         = newError(KindValidation, "invalid_transfer", "source and destination must differ")
	ErrEmptyCart               = newError(KindValidation, "empty_cart", "cart is empty")
	ErrMissingShippingAddress  = newError(KindValidation, "missing_shipping_address", "shipping address required")
	ErrNoReturnItems           = newError(KindValidation, "no_return_items", "at least one item must be returned")
	ErrUnknownReturnItem       = newError(KindValidation, "unknown_return_item", "item is not part of the order")
	ErrInvalidPeriod           = newError(KindValidation, "invalid_period", "end date must be after start date")
)

// Not found errors.
var (
	ErrProductNotFound     = newError(KindNotFound, "product_not_found", "product not found")
	ErrReservationNotFound = newError(KindNotFound, "reservation_not_found", "reservation not found")
	ErrItemNotFound        = newError(KindNotFound, "item_not_found", "item not in cart")
	ErrOrderNotFound       = newError(KindNotFound, "order_not_found", "order not found")
	ErrTransactionNotFound = newError(KindNotFound, "transaction_not_found", "transaction not found")
)

// Conflict errors.
var (
	ErrInsufficientStock     = newError(KindConflict, "insufficient_stock", "insufficient stock")
	ErrDuplicateReservation  = newError(KindConflict, "duplicate_reservation", "reservation already exists for order")
	ErrDuplicateProduct      = newError(KindConflict, "duplicate_product", "product already exists")
	ErrDuplicateDiscount     = newError(KindConflict, "duplicate_discount", "discount code already applied")
	ErrAlreadyRefunded       = newError(KindConflict, "already_refunded", "transaction already refunded")
	ErrRefundExceedsOriginal = newError(KindConflict, "refund_exceeds_original", "refund exceeds refundable amount")
	ErrAlreadyPaid           = newError(KindConflict, "already_paid", "order already paid")
	ErrItemAlreadyReturned   = newError(KindConflict, "item_already_returned", "item already returned")
	ErrLineLimitExceeded     = newError(KindConflict, "line_limit_exceeded", "line quantity above limit")
	ErrPaymentInProgress     = newError(KindConflict, "payment_in_progress", "a payment with this idempotency key is in progress")
)

// State errors.
var (
	ErrInvalidTransition   = newError(KindState, "invalid_transition", "invalid order status transition")
	ErrInvalidOrderState   = newError(KindState, "invalid_order_state", "operation not allowed in current order state")
	ErrReturnWindowExpired = newError(KindState, "return_window_expired", "return window expired")
	ErrRefundNotAllowed    = newError(KindState, "refund_not_allowed", "order is not eligible for refund")
)

// Authorization errors.
var (
	ErrUnauthorized = newError(KindAuthorization, "unauthorized", "caller is not authorized")
)
