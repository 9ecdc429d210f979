package payment

import (
	"database/sql"

	"github.com/joao-fontenele/orderflow-core/internal/domain"
	"github.com/joao-fontenele/orderflow-core/internal/store"
)

type Repository struct {
	Transactions  store.Store[domain.Transaction]
	Subscriptions store.Store[domain.Subscription]
}

func NewMemoryRepository() Repository {
	return Repository{
		Transactions:  store.NewMemory[domain.Transaction](),
		Subscriptions: store.NewMemory[domain.Subscription](),
	}
}

func NewPostgresRepository(db *sql.DB) Repository {
	return Repository{
		Transactions:  store.NewPostgres[domain.Transaction](db, "transactions"),
		Subscriptions: store.NewPostgres[domain.Subscription](db, "subscriptions"),
	}
}
