package domain

import (
	"strconv"
	"time"

	"github.com/joao-fontenele/orderflow-core/internal/ledger"
)

type Product struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Category  string       `json:"category"`
	Price     ledger.Money `json:"price"`
	Available int          `json:"available"`
	Reserved  int          `json:"reserved"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (p Product) StockLevel() StockLevel {
	return StockLevel{ItemID: p.ID, Available: p.Available, Reserved: p.Reserved}
}

type StockLevel struct {
	ItemID    string `json:"item_id"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
}

// Availability answers a stock check for a requested quantity.
type Availability struct {
	ProductID string `json:"product_id"`
	Available bool   `json:"available"`
	InStock   int    `json:"in_stock"`
	Reserved  int    `json:"reserved"`
	Requested int    `json:"requested"`
}

// Reservation holds Quantity units of a product for one order until it is
// either committed or released.
type Reservation struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	OrderID   string    `json:"order_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// ReservationID is the key of the single active reservation an order may hold
// on a product. The order id is length-prefixed, so distinct pairs never map
// to the same key.
func ReservationID(orderID, productID string) string {
	return "RES-" + strconv.Itoa(len(orderID)) + "-" + orderID + "-" + productID
}
