package orders

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/joao-fontenele/orderflow-core/internal/domain"
	"github.com/joao-fontenele/orderflow-core/internal/store"
)

// Sequence hands out order numbers. Numbers are unique and increasing.
type Sequence interface {
	Next(ctx context.Context) (int, error)
}

type Repository struct {
	Orders store.Store[domain.Order]
	IDs    Sequence
}

func NewMemoryRepository() Repository {
	return Repository{
		Orders: store.NewMemory[domain.Order](),
		IDs:    &MemorySequence{},
	}
}

func NewPostgresRepository(db *sql.DB) Repository {
	return Repository{
		Orders: store.NewPostgres[domain.Order](db, "orders"),
		IDs:    &PostgresSequence{db: db},
	}
}

type MemorySequence struct {
	mu   sync.Mutex
	last int
}

// NewMemorySequence continues numbering after the highest order already in
// orders.
func NewMemorySequence(ctx context.Context, orders store.Store[domain.Order]) (*MemorySequence, error) {
	existing, err := orders.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed order sequence: %w", err)
	}
	seq := &MemorySequence{}
	for _, o := range existing {
		n, err := strconv.Atoi(strings.TrimPrefix(o.ID, "ORD-"))
		if err == nil && n > seq.last {
			seq.last = n
		}
	}
	return seq, nil
}

func (s *MemorySequence) Next(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last++
	return s.last, nil
}

// PostgresSequence draws from the order_numbers sequence created by the
// migrations.
type PostgresSequence struct {
	db *sql.DB
}

func (s *PostgresSequence) Next(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('order_numbers')`).Scan(&n); err != nil {
		return 0, fmt.Errorf("next order number: %w", err)
	}
	return n, nil
}
