package memstore

import (
	"context"
	"sort"

	"github.com/01moynul/taptosell-orders/internal/apperr"
	"github.com/01moynul/taptosell-orders/internal/models"
)

// CouponRepo implements coupons.Repository and orders.UsageCounter.
type CouponRepo struct{ s *Store }

func cloneCoupon(c *models.Coupon) *models.Coupon {
	out := *c
	if c.MaxUsage != nil {
		v := *c.MaxUsage
		out.MaxUsage = &v
	}
	if c.Description != nil {
		v := *c.Description
		out.Description = &v
	}
	return &out
}

func (r *CouponRepo) FindByCode(_ context.Context, code string) (*models.Coupon, error) {
	defer r.s.lock()()
	id, ok := r.s.st.couponByCode[models.NormalizeCouponCode(code)]
	if !ok {
		return nil, apperr.ErrCouponNotFound
	}
	return cloneCoupon(r.s.st.coupons[id]), nil
}

func (r *CouponRepo) List(_ context.Context) ([]models.Coupon, error) {
	defer r.s.lock()()
	out := make([]models.Coupon, 0, len(r.s.st.coupons))
	for _, c := range r.s.st.coupons {
		out = append(out, *cloneCoupon(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *CouponRepo) Insert(_ context.Context, c *models.Coupon) error {
	defer r.s.lock()()
	st := r.s.st
	if _, taken := st.couponByCode[c.Code]; taken {
		return apperr.ErrDuplicateCode
	}

	st.nextCouponID++
	c.ID = st.nextCouponID
	st.coupons[c.ID] = cloneCoupon(c)
	st.couponByCode[c.Code] = c.ID

	id, code := c.ID, c.Code
	r.s.onRollback(func() {
		delete(st.coupons, id)
		delete(st.couponByCode, code)
		st.nextCouponID--
	})
	return nil
}

// Update rewrites the definition but never the usage counter.
func (r *CouponRepo) Update(_ context.Context, c *models.Coupon) error {
	defer r.s.lock()()
	stored, ok := r.s.st.coupons[c.ID]
	if !ok {
		return apperr.ErrCouponNotFound
	}
	if c.MaxUsage != nil && *c.MaxUsage < stored.UsageCount {
		return apperr.ErrCapBelowUsage
	}

	next := cloneCoupon(c)
	next.Code = stored.Code
	next.UsageCount = stored.UsageCount
	next.CreatedAt = stored.CreatedAt
	r.s.st.coupons[c.ID] = next
	c.UsageCount = stored.UsageCount

	r.s.onRollback(func() { r.s.st.coupons[stored.ID] = stored })
	return nil
}

// IncrementUsage is the compare-and-increment: it only counts while the
// coupon is active and below its cap.
func (r *CouponRepo) IncrementUsage(_ context.Context, id int64) (bool, error) {
	defer r.s.lock()()
	c, ok := r.s.st.coupons[id]
	if !ok || !c.Active || c.Exhausted() {
		return false, nil
	}

	c.UsageCount++
	r.s.onRollback(func() { c.UsageCount-- })
	return true, nil
}
