package inventory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/joao-fontenele/orderflow-core/internal/apperr"
	"github.com/joao-fontenele/orderflow-core/internal/auth"
	"github.com/joao-fontenele/orderflow-core/internal/domain"
	"github.com/joao-fontenele/orderflow-core/internal/ledger"
	"github.com/joao-fontenele/orderflow-core/internal/store"
)

var (
	admin    = auth.Principal{UserID: "admin-1", Role: auth.RoleAdmin}
	customer = auth.Principal{UserID: "user-1", Role: auth.RoleCustomer}
	fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, products ...NewProduct) *Service {
	t.Helper()
	svc := NewService(NewMemoryRepository(), discardLogger(), WithClock(func() time.Time { return fixedNow }))
	for _, p := range products {
		if _, err := svc.AddProduct(context.Background(), admin, p); err != nil {
			t.Fatalf("add product %s: %v", p.ID, err)
		}
	}
	return svc
}

func widget(qty int) NewProduct {
	return NewProduct{ID: "P-1", Name: "Widget", Price: ledger.MustParse("10.00"), Quantity: qty}
}

func assertStock(t *testing.T, svc *Service, id string, available, reserved int) {
	t.Helper()
	got, err := svc.GetStock(context.Background(), id)
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if got.Available != available || got.Reserved != reserved {
		t.Errorf("expected available=%d reserved=%d, got available=%d reserved=%d",
			available, reserved, got.Available, got.Reserved)
	}
}

func TestService_AddProduct(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects non-admin", func(t *testing.T) {
		svc := newTestService(t)
		_, err := svc.AddProduct(ctx, customer, widget(5))
		if !errors.Is(err, apperr.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		svc := newTestService(t, widget(5))
		_, err := svc.AddProduct(ctx, admin, widget(5))
		if !errors.Is(err, apperr.ErrDuplicateProduct) {
			t.Errorf("expected ErrDuplicateProduct, got %v", err)
		}
	})

	t.Run("rejects bad input", func(t *testing.T) {
		svc := newTestService(t)
		tests := []struct {
			name string
			np   NewProduct
			want error
		}{
			{name: "zero price", np: NewProduct{ID: "X", Name: "X"}, want: apperr.ErrInvalidPrice},
			{name: "negative quantity", np: NewProduct{ID: "X", Name: "X", Price: 100, Quantity: -1}, want: apperr.ErrInvalidQuantity},
			{name: "missing name", np: NewProduct{ID: "X", Price: 100}, want: apperr.ErrInvalidName},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := svc.AddProduct(ctx, admin, tt.np); !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
			})
		}
	})

	t.Run("defaults category", func(t *testing.T) {
		svc := newTestService(t, widget(5))
		p, err := svc.GetProduct(ctx, "P-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Category != "general" {
			t.Errorf("expected general, got %q", p.Category)
		}
	})
}

func TestService_ReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, widget(10))

	id, err := svc.Reserve(ctx, "P-1", 3, "ORD-000001")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if id != "RES-10-ORD-000001-P-1" {
		t.Errorf("unexpected reservation id %q", id)
	}
	assertStock(t, svc, "P-1", 7, 3)

	if err := svc.Release(ctx, id); err != nil {
		t.Fatalf("release: %v", err)
	}
	assertStock(t, svc, "P-1", 10, 0)

	if err := svc.Release(ctx, id); !errors.Is(err, apperr.ErrReservationNotFound) {
		t.Errorf("expected ErrReservationNotFound on second release, got %v", err)
	}
	assertStock(t, svc, "P-1", 10, 0)
}

func TestService_Reserve_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		product string
		qty     int
		want    error
	}{
		{name: "insufficient stock", product: "P-1", qty: 11, want: apperr.ErrInsufficientStock},
		{name: "zero quantity", product: "P-1", qty: 0, want: apperr.ErrInvalidQuantity},
		{name: "unknown product", product: "nope", qty: 1, want: apperr.ErrProductNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, widget(10))
			if _, err := svc.Reserve(ctx, tt.product, tt.qty, "ORD-1"); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			assertStock(t, svc, "P-1", 10, 0)
		})
	}

	t.Run("duplicate reservation for the same order", func(t *testing.T) {
		svc := newTestService(t, widget(10))
		if _, err := svc.Reserve(ctx, "P-1", 2, "ORD-1"); err != nil {
			t.Fatalf("reserve: %v", err)
		}
		_, err := svc.Reserve(ctx, "P-1", 2, "ORD-1")
		if !errors.Is(err, apperr.ErrDuplicateReservation) {
			t.Errorf("expected ErrDuplicateReservation, got %v", err)
		}
		assertStock(t, svc, "P-1", 8, 2)
	})
}

func TestService_Commit(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, widget(10))

	id, err := svc.Reserve(ctx, "P-1", 4, "ORD-1")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := svc.Commit(ctx, id); err != nil {
		t.Fatalf("commit: %v", err)
	}
	assertStock(t, svc, "P-1", 6, 0)

	if err := svc.Commit(ctx, id); !errors.Is(err, apperr.ErrReservationNotFound) {
		t.Errorf("expected ErrReservationNotFound, got %v", err)
	}
	if err := svc.Release(ctx, id); !errors.Is(err, apperr.ErrReservationNotFound) {
		t.Errorf("expected ErrReservationNotFound after commit, got %v", err)
	}
}

func TestService_ConcurrentReservationsConserveStock(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, widget(50))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved []string
	)
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := svc.Reserve(ctx, "P-1", 1, domain.OrderIDFor(i+1))
			if err != nil {
				if !errors.Is(err, apperr.ErrInsufficientStock) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			mu.Lock()
			reserved = append(reserved, id)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(reserved) != 50 {
		t.Fatalf("expected 50 successful reservations, got %d", len(reserved))
	}
	assertStock(t, svc, "P-1", 0, 50)

	for i, id := range reserved {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				err = svc.Release(ctx, id)
			} else {
				err = svc.Commit(ctx, id)
			}
			if err != nil {
				t.Errorf("settle %s: %v", id, err)
			}
		}()
	}
	wg.Wait()

	assertStock(t, svc, "P-1", 25, 0)
}

func TestService_CheckAvailability(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, widget(5))
	if _, err := svc.Reserve(ctx, "P-1", 3, "ORD-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	got, err := svc.CheckAvailability(ctx, "P-1", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Available {
		t.Error("reserved units must not count as available")
	}
	if got.InStock != 2 || got.Reserved != 3 {
		t.Errorf("unexpected availability %+v", got)
	}

	got, _ = svc.CheckAvailability(ctx, "P-1", 2)
	if !got.Available {
		t.Error("expected 2 units to be available")
	}
}

func TestService_UpdateAndAdjustStock(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, widget(5))
	if _, err := svc.Reserve(ctx, "P-1", 2, "ORD-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if _, err := svc.UpdateStock(ctx, admin, "P-1", 20); err != nil {
		t.Fatalf("update stock: %v", err)
	}
	assertStock(t, svc, "P-1", 20, 2)

	if _, err := svc.UpdateStock(ctx, admin, "P-1", -1); !errors.Is(err, apperr.ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := svc.UpdateStock(ctx, customer, "P-1", 1); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	if _, err := svc.AdjustStock(ctx, admin, "P-1", -5); err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	assertStock(t, svc, "P-1", 15, 2)

	if _, err := svc.AdjustStock(ctx, admin, "P-1", -16); !errors.Is(err, apperr.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got %v", err)
	}
	assertStock(t, svc, "P-1", 15, 2)
}

func TestService_BulkUpdatePrices(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t,
		NewProduct{ID: "A", Name: "A", Price: ledger.MustParse("1.00"), Quantity: 1},
		NewProduct{ID: "B", Name: "B", Price: ledger.MustParse("2.00"), Quantity: 1},
	)

	t.Run("all or nothing on invalid price", func(t *testing.T) {
		_, err := svc.BulkUpdatePrices(ctx, admin, map[string]ledger.Money{"A": ledger.MustParse("5.00"), "B": 0})
		if !errors.Is(err, apperr.ErrInvalidPrice) {
			t.Fatalf("expected ErrInvalidPrice, got %v", err)
		}
		a, _ := svc.GetProduct(ctx, "A")
		if a.Price != ledger.MustParse("1.00") {
			t.Errorf("price of A changed to %s", a.Price)
		}
	})

	t.Run("all or nothing on unknown product", func(t *testing.T) {
		_, err := svc.BulkUpdatePrices(ctx, admin, map[string]ledger.Money{"A": 500, "Z": 100})
		if !errors.Is(err, apperr.ErrProductNotFound) {
			t.Fatalf("expected ErrProductNotFound, got %v", err)
		}
		a, _ := svc.GetProduct(ctx, "A")
		if a.Price != ledger.MustParse("1.00") {
			t.Errorf("price of A changed to %s", a.Price)
		}
	})

	t.Run("updates every price", func(t *testing.T) {
		updated, err := svc.BulkUpdatePrices(ctx, admin, map[string]ledger.Money{"A": 300, "B": 400})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(updated) != 2 {
			t.Errorf("expected 2 products, got %d", len(updated))
		}
		b, _ := svc.GetProduct(ctx, "B")
		if b.Price != 400 {
			t.Errorf("expected 4.00, got %s", b.Price)
		}
	})
}

func TestService_TransferStock(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t,
		NewProduct{ID: "A", Name: "A", Price: 100, Quantity: 10},
		NewProduct{ID: "B", Name: "B", Price: 100, Quantity: 0},
	)

	if err := svc.TransferStock(ctx, admin, "A", "B", 4); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	assertStock(t, svc, "A", 6, 0)
	assertStock(t, svc, "B", 4, 0)

	tests := []struct {
		name     string
		from, to string
		qty      int
		want     error
	}{
		{name: "same product", from: "A", to: "A", qty: 1, want: apperr.ErrInvalidTransfer},
		{name: "too many", from: "A", to: "B", qty: 7, want: apperr.ErrInsufficientStock},
		{name: "unknown destination", from: "A", to: "Z", qty: 1, want: apperr.ErrProductNotFound},
		{name: "zero quantity", from: "A", to: "B", qty: 0, want: apperr.ErrInvalidQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.TransferStock(ctx, admin, tt.from, tt.to, tt.qty); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	assertStock(t, svc, "A", 6, 0)
	assertStock(t, svc, "B", 4, 0)
}

func TestService_LowStock(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t,
		NewProduct{ID: "A", Name: "A", Price: 100, Quantity: 2},
		NewProduct{ID: "B", Name: "B", Price: 100, Quantity: 50},
	)

	low, err := svc.LowStock(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(low) != 1 || low[0].ID != "A" {
		t.Errorf("expected only A, got %+v", low)
	}

	low, _ = svc.LowStock(ctx, 100)
	if len(low) != 2 {
		t.Errorf("expected 2 products, got %d", len(low))
	}
}

type failingStore[V any] struct {
	store.Store[V]
	failPut bool
}

func (f *failingStore[V]) Put(ctx context.Context, id string, v V) error {
	if f.failPut {
		return errors.New("disk full")
	}
	return f.Store.Put(ctx, id, v)
}

func TestService_Reserve_RestoresProductWhenReservationWriteFails(t *testing.T) {
	ctx := context.Background()
	reservations := &failingStore[domain.Reservation]{Store: store.NewMemory[domain.Reservation]()}
	repo := Repository{Products: store.NewMemory[domain.Product](), Reservations: reservations}
	svc := NewService(repo, discardLogger())

	if _, err := svc.AddProduct(ctx, admin, widget(5)); err != nil {
		t.Fatalf("add product: %v", err)
	}

	reservations.failPut = true
	if _, err := svc.Reserve(ctx, "P-1", 2, "ORD-1"); err == nil {
		t.Fatal("expected error")
	}
	assertStock(t, svc, "P-1", 5, 0)
}

func TestService_Reserve_DistinctOrderProductPairs(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t,
		NewProduct{ID: "X", Name: "Ex", Price: ledger.MustParse("1.00"), Quantity: 5},
		NewProduct{ID: "P-X", Name: "Pex", Price: ledger.MustParse("1.00"), Quantity: 5},
	)

	first, err := svc.Reserve(ctx, "X", 1, "ORD-1-P")
	if err != nil {
		t.Fatalf("reserve X: %v", err)
	}
	second, err := svc.Reserve(ctx, "P-X", 2, "ORD-1")
	if err != nil {
		t.Fatalf("reserve P-X: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct reservation ids, both %q", first)
	}
	assertStock(t, svc, "X", 4, 1)
	assertStock(t, svc, "P-X", 3, 2)

	if err := svc.Release(ctx, first); err != nil {
		t.Fatalf("release: %v", err)
	}
	assertStock(t, svc, "X", 5, 0)
	assertStock(t, svc, "P-X", 3, 2)
}
