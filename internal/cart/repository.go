package cart

import (
	"database/sql"

	"github.com/joao-fontenele/orderflow-core/internal/domain"
	"github.com/joao-fontenele/orderflow-core/internal/store"
)

// Repository keeps one cart per user, keyed by user id.
type Repository struct {
	Carts store.Store[domain.Cart]
}

func NewMemoryRepository() Repository {
	return Repository{Carts: store.NewMemory[domain.Cart]()}
}

func NewPostgresRepository(db *sql.DB) Repository {
	return Repository{Carts: store.NewPostgres[domain.Cart](db, "carts")}
}
