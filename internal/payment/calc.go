package payment

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/orderflow-core/internal/apperr"
	"github.com/joao-fontenele/orderflow-core/internal/domain"
	"github.com/joao-fontenele/orderflow-core/internal/ledger"
)

var countryCode = regexp.MustCompile(`^[A-Z]{2}$`)

// CalculateInstallments spreads total plus rate percent of interest over n
// installments. Every installment but the last is the floor of the share; the
// last one carries the remainder, so the plan always sums to its total.
func CalculateInstallments(total ledger.Money, n int, rate, maxRate decimal.Decimal) (domain.InstallmentPlan, error) {
	if n <= 0 {
		return domain.InstallmentPlan{}, fmt.Errorf("%w: %d", apperr.ErrInvalidInstallmentCount, n)
	}
	if total <= 0 {
		return domain.InstallmentPlan{}, apperr.ErrInvalidAmount
	}

	interest, err := ledger.ApplyRate(total, rate, maxRate)
	if err != nil {
		return domain.InstallmentPlan{}, err
	}
	adjusted, err := ledger.Add(total, interest)
	if err != nil {
		return domain.InstallmentPlan{}, err
	}
	parts, err := ledger.Split(adjusted, n)
	if err != nil {
		return domain.InstallmentPlan{}, err
	}

	plan := domain.InstallmentPlan{
		Principal:    total,
		InterestRate: rate.String(),
		Total:        adjusted,
		Installments: make([]domain.Installment, n),
	}
	for i, amount := range parts {
		plan.Installments[i] = domain.Installment{Number: i + 1, Amount: amount}
	}
	return plan, nil
}

type TaxQuote struct {
	Subtotal ledger.Money `json:"subtotal"`
	Rate     string       `json:"tax_rate"`
	Tax      ledger.Money `json:"tax"`
	Total    ledger.Money `json:"total"`
	Country  string       `json:"country"`
}

// CalculateTax applies a flat rate; there are no per-country rules, the
// country is only validated and echoed back.
func CalculateTax(amount ledger.Money, rate decimal.Decimal, country string) (TaxQuote, error) {
	if amount < 0 {
		return TaxQuote{}, apperr.ErrNegativeAmount
	}
	if !countryCode.MatchString(country) {
		return TaxQuote{}, fmt.Errorf("%w: country %q", apperr.ErrInvalidAddress, country)
	}
	tax, err := ledger.ApplyRate(amount, rate, ledger.MaxRate)
	if err != nil {
		return TaxQuote{}, fmt.Errorf("%w: %s", apperr.ErrInvalidTaxRate, rate)
	}
	total, err := ledger.Add(amount, tax)
	if err != nil {
		return TaxQuote{}, err
	}
	return TaxQuote{
		Subtotal: amount,
		Rate:     rate.String(),
		Tax:      tax,
		Total:    total,
		Country:  country,
	}, nil
}

// fees returns rate percent of amount plus fixed, and amount minus that fee.
func fees(amount ledger.Money, rate decimal.Decimal, fixed ledger.Money) (fee, net ledger.Money, err error) {
	variable, err := ledger.ApplyRate(amount, rate, ledger.MaxRate)
	if err != nil {
		return 0, 0, err
	}
	fee, err = ledger.Add(variable, fixed)
	if err != nil {
		return 0, 0, err
	}
	net, err = ledger.Subtract(amount, fee)
	if err != nil {
		return 0, 0, fmt.Errorf("fee %s exceeds amount %s: %w", fee, amount, err)
	}
	return fee, net, nil
}
