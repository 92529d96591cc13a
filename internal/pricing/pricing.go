// Package pricing turns a client cart into server-side line items and totals,
// applying at most one coupon. It never trusts a price sent by the client and
// never consumes coupon usage; that happens on confirmed payment.
package pricing

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/01moynul/taptosell-orders/internal/apperr"
	"github.com/01moynul/taptosell-orders/internal/models"
)

// MinorUnitPlaces is the number of decimal places of the currency minor unit.
const MinorUnitPlaces = 2

// MaxCartLines bounds a single checkout.
const MaxCartLines = 100

var hundred = decimal.NewFromInt(100)

// Catalog is the read-only product store consulted at pricing time.
type Catalog interface {
	ProductsByID(ctx context.Context, ids []int64) (map[int64]models.Product, error)
}

// CouponFinder looks a coupon up by its normalized code.
// It returns apperr.ErrCouponNotFound when no such coupon exists.
type CouponFinder interface {
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
}

// Quote is the result of pricing a cart.
type Quote struct {
	Lines         []models.LineItem `json:"items"`
	Subtotal      decimal.Decimal   `json:"subtotal"`
	Discount      decimal.Decimal   `json:"discount"`
	Total         decimal.Decimal   `json:"total"`
	AppliedCoupon *models.Coupon    `json:"-"`
}

// Engine prices carts.
type Engine struct {
	catalog Catalog
	coupons CouponFinder
}

func NewEngine(catalog Catalog, coupons CouponFinder) *Engine {
	return &Engine{catalog: catalog, coupons: coupons}
}

// ValidateAndPrice prices the cart against the catalog and, when couponCode is
// not blank, validates and applies the coupon.
func (e *Engine) ValidateAndPrice(ctx context.Context, cart []models.CartLine, couponCode string) (*Quote, error) {
	merged, err := mergeLines(cart)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(merged))
	for _, l := range merged {
		ids = append(ids, l.ProductID)
	}
	products, err := e.catalog.ProductsByID(ctx, ids)
	if err != nil {
		return nil, apperr.Persistence(err, "load products")
	}

	q := &Quote{Subtotal: decimal.Zero, Discount: decimal.Zero}
	for _, l := range merged {
		p, ok := products[l.ProductID]
		if !ok || p.Status != models.ProductActive {
			return nil, apperr.Validation("product %d is not available", l.ProductID)
		}
		if p.StockQuantity < l.Quantity {
			return nil, apperr.Validation("not enough stock for product %d", l.ProductID)
		}
		if p.Price.IsNegative() {
			return nil, apperr.Validation("product %d has an invalid price", l.ProductID)
		}

		lineTotal := p.Price.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(MinorUnitPlaces)
		q.Lines = append(q.Lines, models.LineItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Brand:       p.Brand,
			Category:    p.Category,
			ImageURL:    p.ImageURL,
			UnitPrice:   p.Price,
			Quantity:    l.Quantity,
			LineTotal:   lineTotal,
		})
		q.Subtotal = q.Subtotal.Add(lineTotal)
	}

	code := models.NormalizeCouponCode(couponCode)
	if code != "" {
		coupon, err := e.coupons.FindByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if err := CheckCoupon(coupon, q.Subtotal); err != nil {
			return nil, err
		}
		q.Discount = Discount(coupon, q.Subtotal)
		q.AppliedCoupon = coupon
	}

	q.Total = q.Subtotal.Sub(q.Discount)
	return q, nil
}

// CheckCoupon applies the eligibility rules in the order the client sees them.
func CheckCoupon(c *models.Coupon, subtotal decimal.Decimal) error {
	if c == nil {
		return apperr.ErrCouponNotFound
	}
	if !c.Active {
		return apperr.ErrCouponInactive
	}
	if subtotal.LessThan(c.MinCartValue) {
		return apperr.ErrCouponMinCartNotMet
	}
	if c.Exhausted() {
		return apperr.ErrCouponUsageExceeded
	}
	return nil
}

// Discount computes the coupon discount for subtotal, rounded half-up to the
// minor unit and capped so the total never goes below zero.
func Discount(c *models.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	if c == nil || !subtotal.IsPositive() {
		return decimal.Zero
	}

	var d decimal.Decimal
	switch c.DiscountType {
	case models.DiscountFlat:
		d = decimal.Min(c.Value, subtotal)
	case models.DiscountPercentage:
		d = subtotal.Mul(c.Value).Div(hundred)
	default:
		return decimal.Zero
	}

	// Round on a non-negative value rounds half away from zero, i.e. half-up.
	d = d.Round(MinorUnitPlaces)
	if d.GreaterThan(subtotal) {
		d = subtotal
	}
	if d.IsNegative() {
		d = decimal.Zero
	}
	return d
}

// mergeLines folds repeated products into one line and orders lines by product id.
func mergeLines(cart []models.CartLine) ([]models.CartLine, error) {
	if len(cart) == 0 {
		return nil, apperr.Validation("cart is empty")
	}
	if len(cart) > MaxCartLines {
		return nil, apperr.Validation("cart has more than %d lines", MaxCartLines)
	}

	qty := make(map[int64]int, len(cart))
	for _, l := range cart {
		if l.ProductID <= 0 {
			return nil, apperr.Validation("invalid product id %d", l.ProductID)
		}
		if l.Quantity <= 0 {
			return nil, apperr.Validation("quantity for product %d must be positive", l.ProductID)
		}
		qty[l.ProductID] += l.Quantity
	}

	merged := make([]models.CartLine, 0, len(qty))
	for id, q := range qty {
		merged = append(merged, models.CartLine{ProductID: id, Quantity: q})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}
