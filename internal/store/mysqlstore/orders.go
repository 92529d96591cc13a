package mysqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/01moynul/taptosell-orders/internal/apperr"
	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/01moynul/taptosell-orders/internal/orders"
)

const orderColumns = `id, order_number, user_id, subtotal, discount, total, currency, coupon_id, coupon_code,
	status, payment_status, gateway_order_id, gateway_payment_id, gateway_signature, shipping_address,
	tracking_number, notes, estimated_delivery_at, delivered_at, version, created_at, updated_at`

const itemColumns = `id, order_id, product_id, product_name, brand, category, image_url, unit_price, quantity, line_total`

// OrderRepo implements orders.Repository.
type OrderRepo struct{ s *Store }

// Insert writes the order row and its item snapshots. Outside a transaction it
// opens its own so a half-written order is never visible.
func (r *OrderRepo) Insert(ctx context.Context, o *models.Order) error {
	if r.s.tx == nil {
		return r.s.Atomic(ctx, func(tx orders.Store) error {
			return tx.Orders().Insert(ctx, o)
		})
	}

	o.Version = 1
	res, err := sqlx.NamedExecContext(ctx, r.s.ext, `
		INSERT INTO orders (order_number, user_id, subtotal, discount, total, currency, coupon_id, coupon_code,
			status, payment_status, gateway_order_id, shipping_address, notes, version, created_at, updated_at)
		VALUES (:order_number, :user_id, :subtotal, :discount, :total, :currency, :coupon_id, :coupon_code,
			:status, :payment_status, :gateway_order_id, :shipping_address, :notes, :version, :created_at, :updated_at)`, o)
	if err != nil {
		if isDuplicate(err, "order_number") {
			return apperr.ErrNumberingConflict
		}
		return errors.Wrap(err, "insert order")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "insert order: last id")
	}
	o.ID = id

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = id
		res, err := sqlx.NamedExecContext(ctx, r.s.ext, `
			INSERT INTO order_items (order_id, product_id, product_name, brand, category, image_url, unit_price, quantity, line_total)
			VALUES (:order_id, :product_id, :product_name, :brand, :category, :image_url, :unit_price, :quantity, :line_total)`, it)
		if err != nil {
			return errors.Wrapf(err, "insert item %d", it.ProductID)
		}
		if it.ID, err = res.LastInsertId(); err != nil {
			return errors.Wrap(err, "insert item: last id")
		}
	}
	return nil
}

func (r *OrderRepo) FindByNumber(ctx context.Context, number string) (*models.Order, error) {
	return r.findOne(ctx, "order_number = ?", number)
}

func (r *OrderRepo) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	return r.findOne(ctx, "gateway_order_id = ?", gatewayOrderID)
}

func (r *OrderRepo) findOne(ctx context.Context, where string, arg interface{}) (*models.Order, error) {
	var o models.Order
	err := sqlx.GetContext(ctx, r.s.ext, &o, "SELECT "+orderColumns+" FROM orders WHERE "+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select order")
	}

	if err := sqlx.SelectContext(ctx, r.s.ext, &o.Items,
		"SELECT "+itemColumns+" FROM order_items WHERE order_id = ? ORDER BY id", o.ID); err != nil {
		return nil, errors.Wrap(err, "select order items")
	}
	return &o, nil
}

// List returns order headers with their items, newest first.
func (r *OrderRepo) List(ctx context.Context, f orders.Filter) ([]models.Order, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.UserID != 0 {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}

	query := "SELECT " + orderColumns + " FROM orders"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	var list []models.Order
	if err := sqlx.SelectContext(ctx, r.s.ext, &list, query, args...); err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if err := r.attachItems(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *OrderRepo) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var list []models.Order
	err := sqlx.SelectContext(ctx, r.s.ext, &list, "SELECT "+orderColumns+` FROM orders
		WHERE status = 'pending' AND payment_status IN ('pending', 'failed') AND created_at < ?
		ORDER BY created_at LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list stale orders")
	}
	return list, nil
}

func (r *OrderRepo) attachItems(ctx context.Context, list []models.Order) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]int64, len(list))
	index := make(map[int64]int, len(list))
	for i, o := range list {
		ids[i] = o.ID
		index[o.ID] = i
	}

	query, args, err := sqlx.In("SELECT "+itemColumns+" FROM order_items WHERE order_id IN (?) ORDER BY id", ids)
	if err != nil {
		return errors.Wrap(err, "build items query")
	}
	var items []models.LineItem
	if err := sqlx.SelectContext(ctx, r.s.ext, &items, r.s.ext.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "select order items")
	}
	for _, it := range items {
		if i, ok := index[it.OrderID]; ok {
			list[i].Items = append(list[i].Items, it)
		}
	}
	return nil
}

// Update is the optimistic check-and-set: it only matches the row while its
// version is still the one the caller read.
func (r *OrderRepo) Update(ctx context.Context, o *models.Order) error {
	res, err := r.s.ext.ExecContext(ctx, `
		UPDATE orders SET status = ?, payment_status = ?, gateway_payment_id = ?, gateway_signature = ?,
			tracking_number = ?, notes = ?, estimated_delivery_at = ?, delivered_at = ?, updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		o.Status, o.PaymentStatus, o.GatewayPaymentID, o.GatewaySignature,
		o.TrackingNumber, o.Notes, o.EstimatedDeliveryAt, o.DeliveredAt, o.UpdatedAt,
		o.ID, o.Version)
	if err != nil {
		return errors.Wrap(err, "update order")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "update order: rows affected")
	}
	if n == 0 {
		return apperr.ErrOptimisticLock
	}
	o.Version++
	return nil
}
