package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/joao-fontenele/orderflow-core/internal/apperr"
)

func TestRequire(t *testing.T) {
	tests := []struct {
		name    string
		p       Principal
		perm    Permission
		allowed bool
	}{
		{name: "admin manages inventory", p: Principal{UserID: "a", Role: RoleAdmin}, perm: PermManageInventory, allowed: true},
		{name: "staff cannot manage inventory", p: Principal{UserID: "s", Role: RoleStaff}, perm: PermManageInventory},
		{name: "staff refunds", p: Principal{UserID: "s", Role: RoleStaff}, perm: PermRefund, allowed: true},
		{name: "customer cannot refund", p: Principal{UserID: "c", Role: RoleCustomer}, perm: PermRefund},
		{name: "anonymous admin role is rejected", p: Principal{Role: RoleAdmin}, perm: PermManageOrders},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Require(tt.p, tt.perm)
			if tt.allowed && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.allowed && !errors.Is(err, apperr.ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestRequireOwnerOr(t *testing.T) {
	owner := Principal{UserID: "u1", Role: RoleCustomer}
	other := Principal{UserID: "u2", Role: RoleCustomer}
	staff := Principal{UserID: "s1", Role: RoleStaff}

	if err := RequireOwnerOr(owner, "u1", PermManageOrders); err != nil {
		t.Errorf("owner rejected: %v", err)
	}
	if err := RequireOwnerOr(other, "u1", PermManageOrders); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("expected authorization error, got %v", err)
	}
	if err := RequireOwnerOr(staff, "u1", PermManageOrders); err != nil {
		t.Errorf("staff rejected: %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	var got Principal
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	t.Run("reads identity headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderUserID, "u1")
		req.Header.Set(HeaderUserEmail, "u1@example.com")
		req.Header.Set(HeaderUserRole, "Staff")
		h.ServeHTTP(httptest.NewRecorder(), req)

		want := Principal{UserID: "u1", Email: "u1@example.com", Role: RoleStaff}
		if got != want {
			t.Errorf("expected %+v, got %+v", want, got)
		}
	})

	t.Run("unknown role falls back to customer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderUserID, "u1")
		req.Header.Set(HeaderUserRole, "root")
		h.ServeHTTP(httptest.NewRecorder(), req)

		if got.Role != RoleCustomer {
			t.Errorf("expected customer, got %s", got.Role)
		}
	})

	t.Run("no headers means anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		h.ServeHTTP(httptest.NewRecorder(), req)

		if got.Authenticated() {
			t.Errorf("expected anonymous principal, got %+v", got)
		}
	})
}
