package auth

import (
	"net/http"
	"strings"
)

// Headers set by the authenticating edge and forwarded by the gateway.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
)

// Middleware stores the caller described by the identity headers in the
// request context. Unknown roles fall back to customer.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		role, ok := ParseRole(r.Header.Get(HeaderUserRole))
		if !ok {
			role = RoleCustomer
		}

		p := Principal{
			UserID: userID,
			Email:  strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
			Role:   role,
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}
