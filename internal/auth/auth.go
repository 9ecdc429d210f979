// Package auth carries the caller identity through a request and answers
// permission questions about it. Authentication itself happens upstream.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/joao-fontenele/orderflow-core/internal/apperr"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleCustomer, RoleStaff, RoleAdmin:
		return r, true
	default:
		return "", false
	}
}

type Permission string

const (
	PermManageInventory Permission = "inventory:manage"
	PermManageOrders    Permission = "orders:manage"
	PermViewAllOrders   Permission = "orders:view_all"
	PermRefund          Permission = "payments:refund"
)

var rolePermissions = map[Role][]Permission{
	RoleStaff: {PermManageOrders, PermViewAllOrders, PermRefund},
	RoleAdmin: {PermManageInventory, PermManageOrders, PermViewAllOrders, PermRefund},
}

type Principal struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

// System is the principal used for internal calls that act on no user's
// behalf, such as compensation after a failed checkout.
var System = Principal{UserID: "system", Role: RoleAdmin}

func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

func (p Principal) Can(perm Permission) bool {
	for _, granted := range rolePermissions[p.Role] {
		if granted == perm {
			return true
		}
	}
	return false
}

// Require fails with ErrUnauthorized unless p holds perm.
func Require(p Principal, perm Permission) error {
	if !p.Authenticated() || !p.Can(perm) {
		return fmt.Errorf("%w: %s lacks %s", apperr.ErrUnauthorized, p.describe(), perm)
	}
	return nil
}

// RequireOwnerOr lets the owner of a resource through, and anyone else only
// when they hold perm.
func RequireOwnerOr(p Principal, ownerID string, perm Permission) error {
	if p.Authenticated() && p.UserID == ownerID {
		return nil
	}
	return Require(p, perm)
}

// RequireAuthenticated fails with ErrUnauthorized for anonymous callers.
func RequireAuthenticated(p Principal) error {
	if !p.Authenticated() {
		return fmt.Errorf("%w: anonymous caller", apperr.ErrUnauthorized)
	}
	return nil
}

func (p Principal) describe() string {
	if !p.Authenticated() {
		return "anonymous caller"
	}
	return fmt.Sprintf("user %s (%s)", p.UserID, p.Role)
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the caller stored in ctx, or the zero (anonymous)
// principal.
func FromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(ctxKey{}).(Principal)
	return p
}
