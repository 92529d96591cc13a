package mysqlstore

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/01moynul/taptosell-orders/internal/models"
)

// Catalog reads the products table. This service never writes it.
type Catalog struct{ s *Store }

func (c *Catalog) ProductsByID(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	out := make(map[int64]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT id, name, brand, category, image_url, price, stock_quantity, status
		FROM products WHERE id IN (?)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "build products query")
	}
	var list []models.Product
	if err := sqlx.SelectContext(ctx, c.s.ext, &list, c.s.ext.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "select products")
	}
	for _, p := range list {
		out[p.ID] = p
	}
	return out, nil
}

// Sequence is the order-number counter row in order_sequences.
type Sequence struct{ s *Store }

const sequenceName = "orders"

// Next increments and reads the counter in one statement. LAST_INSERT_ID(expr)
// ties the new value to this connection's result, so no second read can race.
func (q *Sequence) Next(ctx context.Context) (int64, error) {
	res, err := q.s.ext.ExecContext(ctx,
		"UPDATE order_sequences SET value = LAST_INSERT_ID(value + 1) WHERE name = ?", sequenceName)
	if err != nil {
		return 0, errors.Wrap(err, "advance order sequence")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "advance order sequence: rows affected")
	}
	if n == 0 {
		return 0, errors.Errorf("order sequence %q is missing; run migrations", sequenceName)
	}
	v, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "advance order sequence: read value")
	}
	return v, nil
}
