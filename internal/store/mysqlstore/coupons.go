package mysqlstore

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/01moynul/taptosell-orders/internal/apperr"
	"github.com/01moynul/taptosell-orders/internal/models"
)

const couponColumns = `id, code, discount_type, discount_value, min_cart_value, active, usage_count,
	max_usage, description, created_at, updated_at`

// CouponRepo implements coupons.Repository and orders.UsageCounter.
type CouponRepo struct{ s *Store }

func (r *CouponRepo) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := sqlx.GetContext(ctx, r.s.ext, &c, "SELECT "+couponColumns+" FROM coupons WHERE code = ?",
		models.NormalizeCouponCode(code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrCouponNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select coupon")
	}
	return &c, nil
}

func (r *CouponRepo) List(ctx context.Context) ([]models.Coupon, error) {
	list := []models.Coupon{}
	if err := sqlx.SelectContext(ctx, r.s.ext, &list, "SELECT "+couponColumns+" FROM coupons ORDER BY code"); err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return list, nil
}

func (r *CouponRepo) Insert(ctx context.Context, c *models.Coupon) error {
	res, err := sqlx.NamedExecContext(ctx, r.s.ext, `
		INSERT INTO coupons (code, discount_type, discount_value, min_cart_value, active, usage_count, max_usage, description, created_at, updated_at)
		VALUES (:code, :discount_type, :discount_value, :min_cart_value, :active, 0, :max_usage, :description, :created_at, :updated_at)`, c)
	if err != nil {
		if isDuplicate(err, "") {
			return apperr.ErrDuplicateCode
		}
		return errors.Wrap(err, "insert coupon")
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return errors.Wrap(err, "insert coupon: last id")
	}
	c.UsageCount = 0
	return nil
}

// Update rewrites the definition. The cap guard sits in the WHERE clause so it
// is evaluated against the live counter, not the one the caller read.
func (r *CouponRepo) Update(ctx context.Context, c *models.Coupon) error {
	res, err := r.s.ext.ExecContext(ctx, `
		UPDATE coupons SET discount_type = ?, discount_value = ?, min_cart_value = ?, active = ?,
			max_usage = ?, description = ?, updated_at = ?
		WHERE id = ? AND (? IS NULL OR usage_count <= ?)`,
		c.DiscountType, c.Value, c.MinCartValue, c.Active, c.MaxUsage, c.Description, c.UpdatedAt,
		c.ID, c.MaxUsage, c.MaxUsage)
	if err != nil {
		return errors.Wrap(err, "update coupon")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "update coupon: rows affected")
	}
	if n > 0 {
		return nil
	}

	// MySQL reports zero rows both for "no match" and for "nothing changed".
	var usage int
	err = sqlx.GetContext(ctx, r.s.ext, &usage, "SELECT usage_count FROM coupons WHERE id = ?", c.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrCouponNotFound
	}
	if err != nil {
		return errors.Wrap(err, "update coupon: recheck")
	}
	if c.MaxUsage != nil && *c.MaxUsage < usage {
		return apperr.ErrCapBelowUsage
	}
	return nil
}

// IncrementUsage is a single conditional UPDATE, so concurrent confirmations
// can never push usage_count past max_usage.
func (r *CouponRepo) IncrementUsage(ctx context.Context, id int64) (bool, error) {
	res, err := r.s.ext.ExecContext(ctx, `
		UPDATE coupons SET usage_count = usage_count + 1
		WHERE id = ? AND active = 1 AND (max_usage IS NULL OR usage_count < max_usage)`, id)
	if err != nil {
		return false, errors.Wrap(err, "increment coupon usage")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "increment coupon usage: rows affected")
	}
	return n == 1, nil
}
