package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/joao-fontenele/orderflow-core/internal/apperr"
)

// MethodVerifier decides whether a payment method may be charged.
type MethodVerifier interface {
	Verify(ctx context.Context, method string) error
}

// AllowList accepts a fixed set of method names.
type AllowList struct {
	methods map[string]struct{}
}

func NewAllowList(methods ...string) *AllowList {
	a := &AllowList{methods: make(map[string]struct{}, len(methods))}
	for _, m := range methods {
		a.methods[normalizeMethod(m)] = struct{}{}
	}
	return a
}

func (a *AllowList) Verify(_ context.Context, method string) error {
	m := normalizeMethod(method)
	if m == "" {
		return apperr.ErrInvalidPaymentMethod
	}
	if _, ok := a.methods[m]; !ok {
		return fmt.Errorf("%w: %q", apperr.ErrPaymentMethodRejected, method)
	}
	return nil
}

func normalizeMethod(m string) string {
	return strings.ToLower(strings.TrimSpace(m))
}
