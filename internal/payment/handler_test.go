package payment

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joao-fontenele/orderflow-core/internal/auth"
	"github.com/joao-fontenele/orderflow-core/internal/domain"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	svc := newTestService(t, newMockOrderBook(pendingOrder()), DefaultSettings())
	mux := http.NewServeMux()
	NewHandler(svc, svc.logger).Register(mux)
	return auth.Middleware(mux)
}

func as(req *http.Request, p auth.Principal) *http.Request {
	req.Header.Set(auth.HeaderUserID, p.UserID)
	req.Header.Set(auth.HeaderUserRole, string(p.Role))
	return req
}

func TestHandler_ProcessAndRefund(t *testing.T) {
	srv := newTestServer(t)

	req := as(httptest.NewRequest(http.MethodPost, "/payments",
		strings.NewReader(`{"amount":"100.00","currency":"USD","method":"card"}`)), customer)
	req.Header.Set(HeaderIdempotencyKey, "key-1")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var tx domain.Transaction
	if err := json.NewDecoder(rec.Body).Decode(&tx); err != nil {
		t.Fatalf("decode: %v", err)
	}

	t.Run("customer cannot refund", func(t *testing.T) {
		req := as(httptest.NewRequest(http.MethodPost, "/payments/"+tx.ID+"/refunds", nil), customer)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected status 403, got %d", rec.Code)
		}
	})

	t.Run("refund above original is 409", func(t *testing.T) {
		req := as(httptest.NewRequest(http.MethodPost, "/payments/"+tx.ID+"/refunds",
			strings.NewReader(`{"amount":"100.01"}`)), staff)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "refund_exceeds_original") {
			t.Errorf("unexpected body %s", rec.Body.String())
		}
	})

	t.Run("staff refunds in full", func(t *testing.T) {
		req := as(httptest.NewRequest(http.MethodPost, "/payments/"+tx.ID+"/refunds", nil), staff)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var res RefundResult
		if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if res.Transaction.Status != domain.TransactionRefunded {
			t.Errorf("expected refunded, got %s", res.Transaction.Status)
		}
	})
}

func TestHandler_Installments(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{name: "valid plan", query: "total=100.00&count=3", status: http.StatusOK},
		{name: "zero count", query: "total=100.00&count=0", status: http.StatusBadRequest},
		{name: "missing count", query: "total=100.00", status: http.StatusBadRequest},
		{name: "bad rate", query: "total=100.00&count=3&rate=abc", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/installments?"+tt.query, nil))
			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandler_PayOrder(t *testing.T) {
	srv := newTestServer(t)

	req := as(httptest.NewRequest(http.MethodPost, "/orders/ORD-000001/payment", strings.NewReader(`{"method":"paypal"}`)), customer)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	req = as(httptest.NewRequest(http.MethodPost, "/orders/ORD-000001/payment", nil), customer)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected status 409 on second payment, got %d", rec.Code)
	}
}
