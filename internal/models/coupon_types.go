package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType is either a flat amount or a percentage of the subtotal.
type DiscountType string

const (
	DiscountFlat       DiscountType = "flat"
	DiscountPercentage DiscountType = "percentage"
)

// Coupon is the model for the 'coupons' table.
type Coupon struct {
	ID           int64           `json:"id" db:"id"`
	Code         string          `json:"code" db:"code"`
	DiscountType DiscountType    `json:"discountType" db:"discount_type"`
	Value        decimal.Decimal `json:"value" db:"discount_value"`
	MinCartValue decimal.Decimal `json:"minCartValue" db:"min_cart_value"`
	Active       bool            `json:"active" db:"active"`
	UsageCount   int             `json:"usageCount" db:"usage_count"`
	MaxUsage     *int            `json:"maxUsage,omitempty" db:"max_usage"` // nil means unlimited
	Description  *string         `json:"description,omitempty" db:"description"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time       `json:"updatedAt" db:"updated_at"`
}

// NormalizeCouponCode is the single case-normalization rule for coupon codes.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Exhausted reports whether the usage cap has been reached.
func (c *Coupon) Exhausted() bool {
	return c.MaxUsage != nil && c.UsageCount >= *c.MaxUsage
}
