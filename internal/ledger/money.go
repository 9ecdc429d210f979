// Package ledger holds the money primitives every other component builds on.
// Amounts are integers of minor units; percentages are decimals. Binary
// floating point never touches a monetary value.
package ledger

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/orderflow-core/internal/apperr"
)

// MinorDigits is the number of decimal digits between a major and a minor unit.
const MinorDigits = 2

// Money is an amount in minor units (cents).
type Money int64

var (
	hundred = decimal.NewFromInt(100)

	// MaxRate is the default sanity ceiling for tax and fee rates, in percent.
	MaxRate = decimal.NewFromInt(100)
)

// FromMinor wraps an amount already counted in cents.
func FromMinor(minor int64) Money {
	return Money(minor)
}

// FromDecimal converts a major-unit decimal ("22.60") to Money, rounding half
// away from zero at the minor unit.
func FromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return 0, apperr.ErrNegativeAmount
	}
	minor := d.Shift(MinorDigits).Round(0)
	if !minor.IsInteger() || minor.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, apperr.ErrOverflow
	}
	return Money(minor.IntPart()), nil
}

// Parse reads a major-unit string such as "33.34". More than MinorDigits
// fractional digits are rejected instead of silently rounded.
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", apperr.ErrInvalidAmount, s)
	}
	if !d.Shift(MinorDigits).IsInteger() {
		return 0, fmt.Errorf("%w: %q has sub-minor precision", apperr.ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Minor is the amount in cents.
func (m Money) Minor() int64 {
	return int64(m)
}

// Decimal is the exact decimal value, with MinorDigits places.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -MinorDigits)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(MinorDigits)
}

func (m Money) IsZero() bool {
	return m == 0
}

func (m Money) IsNegative() bool {
	return m < 0
}

// Add returns a+b. Both operands must be non-negative.
func Add(a, b Money) (Money, error) {
	if a < 0 || b < 0 {
		return 0, apperr.ErrNegativeAmount
	}
	if a > math.MaxInt64-b {
		return 0, apperr.ErrOverflow
	}
	return a + b, nil
}

// Sum adds all values left to right.
func Sum(values ...Money) (Money, error) {
	var total Money
	for _, v := range values {
		var err error
		if total, err = Add(total, v); err != nil {
			return 0, err
		}
	}
	return total, nil
}

type subtractOptions struct {
	allowDebt bool
}

type SubtractOption func(*subtractOptions)

// AllowDebt lets Subtract return a negative result. Use it only where a
// negative amount is an explicitly modelled cost.
func AllowDebt() SubtractOption {
	return func(o *subtractOptions) {
		o.allowDebt = true
	}
}

// Subtract returns a-b and fails with ErrNegativeResult when the result would
// be negative, unless AllowDebt is given.
func Subtract(a, b Money, opts ...SubtractOption) (Money, error) {
	var o subtractOptions
	for _, opt := range opts {
		opt(&o)
	}
	if a < 0 || b < 0 {
		return 0, apperr.ErrNegativeAmount
	}
	if b > a && !o.allowDebt {
		return 0, fmt.Errorf("%w: %s - %s", apperr.ErrNegativeResult, a, b)
	}
	return a - b, nil
}

// Multiply returns m*qty.
func Multiply(m Money, qty int) (Money, error) {
	if m < 0 {
		return 0, apperr.ErrNegativeAmount
	}
	if qty < 0 {
		return 0, apperr.ErrInvalidQuantity
	}
	if qty != 0 && int64(m) > math.MaxInt64/int64(qty) {
		return 0, apperr.ErrOverflow
	}
	return m * Money(qty), nil
}

// ApplyPercentage returns percent% of amount. Percent must lie in [0,100];
// this is the discount rule.
func ApplyPercentage(amount Money, percent decimal.Decimal) (Money, error) {
	return ApplyRate(amount, percent, hundred)
}

// ApplyRate returns percent% of amount for taxes and fees, where percent must
// lie in [0, ceiling]. The result is rounded half away from zero.
func ApplyRate(amount Money, percent, ceiling decimal.Decimal) (Money, error) {
	if amount < 0 {
		return 0, apperr.ErrNegativeAmount
	}
	if percent.IsNegative() || percent.GreaterThan(ceiling) {
		return 0, fmt.Errorf("%w: %s", apperr.ErrInvalidPercent, percent)
	}
	part := decimal.NewFromInt(int64(amount)).Mul(percent).Div(hundred).Round(0)
	return Money(part.IntPart()), nil
}

// Split divides total into n parts of ⌊total/n⌋ and puts the remainder on the
// final part, so the parts always sum to total.
func Split(total Money, n int) ([]Money, error) {
	if n <= 0 {
		return nil, apperr.ErrInvalidInstallmentCount
	}
	if total < 0 {
		return nil, apperr.ErrNegativeAmount
	}
	base := total / Money(n)
	parts := make([]Money, n)
	for i := range parts {
		parts[i] = base
	}
	parts[n-1] += total - base*Money(n)
	return parts, nil
}
