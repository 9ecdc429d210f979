package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/orderflow-core/internal/apperr"
	"github.com/joao-fontenele/orderflow-core/internal/auth"
	"github.com/joao-fontenele/orderflow-core/internal/domain"
	"github.com/joao-fontenele/orderflow-core/internal/ledger"
)

type SubscriptionRequest struct {
	CustomerID string           `json:"customer_id"`
	Amount     ledger.Money     `json:"amount"`
	Currency   string           `json:"currency"`
	Method     string           `json:"method"`
	Frequency  domain.Frequency `json:"frequency"`
	EndsAt     *time.Time       `json:"ends_at,omitempty"`
}

// CreateSubscription sets up recurring billing. The first charge is due
// immediately; no billing happens here.
func (s *Service) CreateSubscription(ctx context.Context, p auth.Principal, req SubscriptionRequest) (domain.Subscription, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.CustomerID == "" {
		req.CustomerID = p.UserID
	}
	if err := auth.RequireOwnerOr(p, req.CustomerID, auth.PermManageOrders); err != nil {
		return domain.Subscription{}, err
	}
	if req.Amount <= 0 {
		return domain.Subscription{}, fmt.Errorf("%w: %s", apperr.ErrInvalidAmount, req.Amount)
	}
	currency, err := s.currency(req.Currency)
	if err != nil {
		return domain.Subscription{}, err
	}

	now := s.now()
	if _, ok := req.Frequency.Next(now); !ok {
		return domain.Subscription{}, fmt.Errorf("%w: %q", apperr.ErrInvalidFrequency, req.Frequency)
	}
	if req.EndsAt != nil && !req.EndsAt.After(now) {
		return domain.Subscription{}, apperr.ErrInvalidPeriod
	}
	if err := s.verifier.Verify(ctx, req.Method); err != nil {
		return domain.Subscription{}, err
	}

	sub := domain.Subscription{
		ID:            "SUB-" + uuid.NewString(),
		CustomerID:    req.CustomerID,
		Amount:        req.Amount,
		Currency:      currency,
		Method:        normalizeMethod(req.Method),
		Frequency:     req.Frequency,
		Status:        "active",
		NextBillingAt: now,
		EndsAt:        req.EndsAt,
		CreatedAt:     now,
	}
	if err := s.subscriptions.Put(ctx, sub.ID, sub); err != nil {
		return domain.Subscription{}, fmt.Errorf("save subscription %s: %w", sub.ID, err)
	}

	s.logger.Info("subscription created", "subscription_id", sub.ID, "customer_id", sub.CustomerID, "frequency", sub.Frequency)
	return sub, nil
}
