package memstore

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/01moynul/taptosell-orders/internal/models"
)

// Catalog is the read-only product lookup used by pricing.
type Catalog struct{ s *Store }

func (c *Catalog) ProductsByID(_ context.Context, ids []int64) (map[int64]models.Product, error) {
	defer c.s.lock()()
	out := make(map[int64]models.Product, len(ids))
	for _, id := range ids {
		if p, ok := c.s.st.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// Put adds or replaces a product. The real catalog is owned elsewhere; this
// exists for fixtures.
func (c *Catalog) Put(products ...models.Product) {
	defer c.s.lock()()
	for _, p := range products {
		c.s.st.products[p.ID] = p
	}
}

// Sequence is the order-number counter.
type Sequence struct{ s *Store }

func (q *Sequence) Next(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	defer q.s.lock()()
	q.s.st.sequence++
	return q.s.st.sequence, nil
}

// DemoProducts is a small fixture catalog for STORE_DRIVER=memory.
func DemoProducts() []models.Product {
	return []models.Product{
		{ID: 1, Name: "Stainless Steel Kettle", Brand: "Prestige", Category: "Kitchen", Price: decimal.RequireFromString("1249.00"), StockQuantity: 40, Status: models.ProductActive},
		{ID: 2, Name: "Ceramic Mug Set", Brand: "Claycraft", Category: "Kitchen", Price: decimal.RequireFromString("499.50"), StockQuantity: 120, Status: models.ProductActive},
		{ID: 3, Name: "Cotton Bath Towel", Brand: "Bombay Dyeing", Category: "Home", Price: decimal.RequireFromString("349.99"), StockQuantity: 75, Status: models.ProductActive},
	}
}
