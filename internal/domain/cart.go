package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/orderflow-core/internal/apperr"
	"github.com/joao-fontenele/orderflow-core/internal/ledger"
)

// DiscountPolicy decides how several discount codes on one cart combine.
type DiscountPolicy string

const (
	// DiscountAdditive sums every code's percentage of the subtotal and clamps
	// the result to the subtotal.
	DiscountAdditive DiscountPolicy = "additive"
	// DiscountMultiplicative applies each code to what the previous codes left.
	DiscountMultiplicative DiscountPolicy = "multiplicative"
)

// ParseDiscountPolicy accepts a policy name in any case.
func ParseDiscountPolicy(s string) (DiscountPolicy, error) {
	switch p := DiscountPolicy(strings.ToLower(s)); p {
	case DiscountAdditive, DiscountMultiplicative:
		return p, nil
	default:
		return "", fmt.Errorf("unknown discount policy %q", s)
	}
}

type CartLine struct {
	ProductID string       `json:"product_id"`
	Name      string       `json:"name"`
	Quantity  int          `json:"quantity"`
	UnitPrice ledger.Money `json:"unit_price"`
	AddedAt   time.Time    `json:"added_at"`
}

type DiscountApplication struct {
	Code      string          `json:"code"`
	Percent   decimal.Decimal `json:"percent"`
	AppliedAt time.Time       `json:"applied_at"`
}

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (a Address) Validate() error {
	missing := make([]string, 0, 4)
	if strings.TrimSpace(a.Line1) == "" {
		missing = append(missing, "line1")
	}
	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		missing = append(missing, "postal_code")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", apperr.ErrInvalidAddress, strings.Join(missing, ", "))
	}
	if !isCountryCode(a.Country) {
		return fmt.Errorf("%w: country %q is not an ISO 3166 alpha-2 code", apperr.ErrInvalidAddress, a.Country)
	}
	return nil
}

func isCountryCode(s string) bool {
	if len(s) != 2 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Cart is a user's pending purchase. One cart per user: the cart ID is the
// owning user's ID.
type Cart struct {
	ID              string                `json:"id"`
	UserID          string                `json:"user_id"`
	Lines           []CartLine            `json:"lines"`
	Discounts       []DiscountApplication `json:"discounts"`
	ShippingAddress *Address              `json:"shipping_address,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func NewCart(userID string, now time.Time) *Cart {
	return &Cart{
		ID:        userID,
		UserID:    userID,
		Lines:     []CartLine{},
		Discounts: []DiscountApplication{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Cart) lineIndex(productID string) int {
	for i, l := range c.Lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) Line(productID string) (CartLine, bool) {
	if i := c.lineIndex(productID); i >= 0 {
		return c.Lines[i], true
	}
	return CartLine{}, false
}

// AddLine adds line or, if the product is already in the cart, adds its
// quantity to the existing line. The existing price snapshot is refreshed.
func (c *Cart) AddLine(line CartLine, now time.Time) error {
	if line.Quantity <= 0 {
		return apperr.ErrInvalidQuantity
	}
	if line.UnitPrice < 0 {
		return fmt.Errorf("%w: %s", apperr.ErrInvalidPrice, line.UnitPrice)
	}

	if i := c.lineIndex(line.ProductID); i >= 0 {
		c.Lines[i].Quantity += line.Quantity
		c.Lines[i].UnitPrice = line.UnitPrice
	} else {
		line.AddedAt = now
		c.Lines = append(c.Lines, line)
	}
	c.UpdatedAt = now
	return nil
}

func (c *Cart) RemoveLine(productID string, now time.Time) error {
	i := c.lineIndex(productID)
	if i < 0 {
		return fmt.Errorf("%w: %s", apperr.ErrItemNotFound, productID)
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	c.UpdatedAt = now
	return nil
}

// UpdateQuantity replaces a line's quantity. Use RemoveLine to drop a line.
func (c *Cart) UpdateQuantity(productID string, quantity int, now time.Time) error {
	i := c.lineIndex(productID)
	if i < 0 {
		return fmt.Errorf("%w: %s", apperr.ErrItemNotFound, productID)
	}
	if quantity <= 0 {
		return apperr.ErrInvalidQuantity
	}
	c.Lines[i].Quantity = quantity
	c.UpdatedAt = now
	return nil
}

func (c *Cart) ApplyDiscount(code string, percent decimal.Decimal, now time.Time) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return apperr.ErrInvalidDiscountCode
	}
	if percent.IsNegative() || percent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: %s", apperr.ErrInvalidPercent, percent)
	}
	for _, d := range c.Discounts {
		if d.Code == code {
			return fmt.Errorf("%w: %s", apperr.ErrDuplicateDiscount, code)
		}
	}
	c.Discounts = append(c.Discounts, DiscountApplication{Code: code, Percent: percent, AppliedAt: now})
	c.UpdatedAt = now
	return nil
}

func (c *Cart) SetShippingAddress(a Address, now time.Time) error {
	if err := a.Validate(); err != nil {
		return err
	}
	c.ShippingAddress = &a
	c.UpdatedAt = now
	return nil
}

// Clear empties lines, discounts and the shipping address.
func (c *Cart) Clear(now time.Time) {
	c.Lines = []CartLine{}
	c.Discounts = []DiscountApplication{}
	c.ShippingAddress = nil
	c.UpdatedAt = now
}

// ItemCount is the total number of units in the cart.
func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

func (c *Cart) Subtotal() (ledger.Money, error) {
	var subtotal ledger.Money
	for _, l := range c.Lines {
		line, err := ledger.Multiply(l.UnitPrice, l.Quantity)
		if err != nil {
			return 0, fmt.Errorf("line %s: %w", l.ProductID, err)
		}
		if subtotal, err = ledger.Add(subtotal, line); err != nil {
			return 0, err
		}
	}
	return subtotal, nil
}

// Discount returns the discount the applied codes grant on subtotal. It never
// exceeds subtotal.
func (c *Cart) Discount(subtotal ledger.Money, policy DiscountPolicy) (ledger.Money, error) {
	switch policy {
	case DiscountMultiplicative:
		remaining := subtotal
		for _, d := range c.Discounts {
			part, err := ledger.ApplyPercentage(remaining, d.Percent)
			if err != nil {
				return 0, err
			}
			if remaining, err = ledger.Subtract(remaining, part); err != nil {
				return 0, err
			}
		}
		return subtotal - remaining, nil
	default:
		var discount ledger.Money
		for _, d := range c.Discounts {
			part, err := ledger.ApplyPercentage(subtotal, d.Percent)
			if err != nil {
				return 0, err
			}
			if discount, err = ledger.Add(discount, part); err != nil {
				return 0, err
			}
		}
		return min(discount, subtotal), nil
	}
}

// CalculateTotal prices the cart: tax applies to the discounted amount and
// shipping is added last.
func (c *Cart) CalculateTotal(shipping ledger.Money, taxRate decimal.Decimal, policy DiscountPolicy) (Totals, error) {
	if shipping < 0 {
		return Totals{}, fmt.Errorf("%w: %s", apperr.ErrInvalidShippingCost, shipping)
	}
	if taxRate.IsNegative() || taxRate.GreaterThan(ledger.MaxRate) {
		return Totals{}, fmt.Errorf("%w: %s", apperr.ErrInvalidTaxRate, taxRate)
	}

	subtotal, err := c.Subtotal()
	if err != nil {
		return Totals{}, err
	}
	discount, err := c.Discount(subtotal, policy)
	if err != nil {
		return Totals{}, err
	}
	afterDiscount, err := ledger.Subtract(subtotal, discount)
	if err != nil {
		return Totals{}, err
	}
	tax, err := ledger.ApplyRate(afterDiscount, taxRate, ledger.MaxRate)
	if err != nil {
		return Totals{}, err
	}
	total, err := ledger.Sum(afterDiscount, tax, shipping)
	if err != nil {
		return Totals{}, err
	}

	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Shipping: shipping,
		Total:    total,
	}, nil
}

// Validate checks the cart can be checked out.
func (c *Cart) Validate() error {
	if len(c.Lines) == 0 {
		return apperr.ErrEmptyCart
	}
	if c.ShippingAddress == nil {
		return apperr.ErrMissingShippingAddress
	}
	return nil
}
