package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestServiceProxy_ForwardRequest(t *testing.T) {
	t.Run("forwards GET request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				t.Errorf("expected GET, got %s", r.Method)
			}
			if r.URL.Path != "/test" {
				t.Errorf("expected /test, got %s", r.URL.Path)
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}))
		defer server.Close()

		proxy := NewServiceProxy(server.URL, server.Client())
		req := httptest.NewRequest(http.MethodGet, "/original", nil)
		resp, err := proxy.ForwardRequest(context.Background(), req, "/test")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected status 200, got %d", resp.StatusCode)
		}
	})

	t.Run("forwards POST request with body and content-type", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"data":"test"}` {
				t.Errorf("unexpected body: %s", body)
			}
			w.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		proxy := NewServiceProxy(server.URL, server.Client())
		req := httptest.NewRequest(http.MethodPost, "/original", strings.NewReader(`{"data":"test"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := proxy.ForwardRequest(context.Background(), req, "/create")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusCreated {
			t.Errorf("expected status 201, got %d", resp.StatusCode)
		}
	})

	t.Run("forwards query and identity from the edge only", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.RawQuery != "quantity=3" {
				t.Errorf("expected quantity=3, got %q", r.URL.RawQuery)
			}
			if r.Header.Get("X-User-Role") != "staff" || r.Header.Get("Idempotency-Key") != "k-1" {
				t.Errorf("expected identity and idempotency headers, got %v", r.Header)
			}
			if r.Header.Get("Cookie") != "" || r.Header.Get(HeaderEdgeSecret) != "" {
				t.Errorf("expected cookie and edge secret to be dropped, got %v", r.Header)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		proxy := NewServiceProxy(server.URL, server.Client(), WithIdentitySecret("s3cret"))
		req := httptest.NewRequest(http.MethodGet, "/api/stock/P-1/availability?quantity=3", nil)
		req.Header.Set("X-User-ID", "staff-1")
		req.Header.Set("X-User-Role", "staff")
		req.Header.Set("Idempotency-Key", "k-1")
		req.Header.Set("Cookie", "session=secret")
		req.Header.Set(HeaderEdgeSecret, "s3cret")
		resp, err := proxy.ForwardRequest(context.Background(), req, "/stock/P-1/availability")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()
	})

	t.Run("drops identity headers without the edge secret", func(t *testing.T) {
		tests := []struct {
			name   string
			secret string
			sent   string
		}{
			{"no secret configured", "", ""},
			{"missing secret", "s3cret", ""},
			{"wrong secret", "s3cret", "guess"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					if r.Header.Get("X-User-ID") != "" || r.Header.Get("X-User-Role") != "" || r.Header.Get("X-User-Email") != "" {
						t.Errorf("expected identity headers to be dropped, got %v", r.Header)
					}
					w.WriteHeader(http.StatusOK)
				}))
				defer server.Close()

				proxy := NewServiceProxy(server.URL, server.Client(), WithIdentitySecret(tt.secret))
				req := httptest.NewRequest(http.MethodPost, "/api/payments/tx-1/refunds", nil)
				req.Header.Set("X-User-ID", "admin-1")
				req.Header.Set("X-User-Role", "admin")
				req.Header.Set("X-User-Email", "root@example.com")
				if tt.sent != "" {
					req.Header.Set(HeaderEdgeSecret, tt.sent)
				}
				resp, err := proxy.ForwardRequest(context.Background(), req, "/payments/tx-1/refunds")
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				defer func() { _ = resp.Body.Close() }()
			})
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		proxy := NewServiceProxy(server.URL, server.Client())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		req := httptest.NewRequest(http.MethodGet, "/original", nil)
		_, err := proxy.ForwardRequest(ctx, req, "/test")
		if err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}
