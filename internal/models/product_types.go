package models

import (
	"github.com/shopspring/decimal"
)

// ProductActive is the only product status that can be checked out.
const ProductActive = "active"

// Product is the read-only view of the 'products' table used at pricing time.
// The catalog itself is managed elsewhere; this service never writes it.
type Product struct {
	ID            int64           `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Brand         string          `json:"brand" db:"brand"`
	Category      string          `json:"category" db:"category"`
	ImageURL      string          `json:"imageUrl" db:"image_url"`
	Price         decimal.Decimal `json:"price" db:"price"`
	StockQuantity int             `json:"stock" db:"stock_quantity"`
	Status        string          `json:"status" db:"status"`
}

// CartLine is one line of a checkout request. Only the product id and quantity
// are taken from the client; prices are always re-read from the catalog.
type CartLine struct {
	ProductID int64 `json:"productId" binding:"required,gt=0"`
	Quantity  int   `json:"quantity" binding:"required,gt=0"`
}
