package inventory

import (
	"database/sql"

	"github.com/joao-fontenele/orderflow-core/internal/domain"
	"github.com/joao-fontenele/orderflow-core/internal/store"
)

const (
	productsCollection     = "products"
	reservationsCollection = "reservations"
)

// Repository groups the collections owned by the inventory.
type Repository struct {
	Products     store.Store[domain.Product]
	Reservations store.Store[domain.Reservation]
}

func NewMemoryRepository() Repository {
	return Repository{
		Products:     store.NewMemory[domain.Product](),
		Reservations: store.NewMemory[domain.Reservation](),
	}
}

func NewPostgresRepository(db *sql.DB) Repository {
	return Repository{
		Products:     store.NewPostgres[domain.Product](db, productsCollection),
		Reservations: store.NewPostgres[domain.Reservation](db, reservationsCollection),
	}
}
