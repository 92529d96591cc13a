// Package coupons is the coupon ledger: the single authority for coupon
// definitions and their usage counters.
package coupons

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/01moynul/taptosell-orders/internal/apperr"
	"github.com/01moynul/taptosell-orders/internal/models"
)

var maxPercentage = decimal.NewFromInt(100)

// Repository persists coupons.
//
// IncrementUsage must be a single atomic compare-and-increment: it bumps the
// counter only while the coupon is active and below its cap, and reports
// whether it did. Update must refuse a cap below the stored usage count with
// apperr.ErrCapBelowUsage, checked atomically with the write.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	List(ctx context.Context) ([]models.Coupon, error)
	Insert(ctx context.Context, c *models.Coupon) error
	Update(ctx context.Context, c *models.Coupon) error
	IncrementUsage(ctx context.Context, id int64) (bool, error)
}

// Definition is the administrator-editable part of a coupon.
type Definition struct {
	Code         string              `json:"code" binding:"omitempty,couponcode"`
	DiscountType models.DiscountType `json:"discountType" binding:"required,oneof=flat percentage"`
	Value        decimal.Decimal     `json:"value"`
	MinCartValue decimal.Decimal     `json:"minCartValue"`
	MaxUsage     *int                `json:"maxUsage,omitempty" binding:"omitempty,gt=0"`
	Description  *string             `json:"description,omitempty" binding:"omitempty,max=255"`
	Active       *bool               `json:"active,omitempty"`
}

// Ledger validates and stores coupon definitions.
type Ledger struct {
	repo Repository
	now  func() time.Time
}

func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// FindByCode looks a coupon up by code, case-insensitively.
func (l *Ledger) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	code = models.NormalizeCouponCode(code)
	if code == "" {
		return nil, apperr.ErrCouponNotFound
	}
	return l.repo.FindByCode(ctx, code)
}

func (l *Ledger) List(ctx context.Context) ([]models.Coupon, error) {
	list, err := l.repo.List(ctx)
	if err != nil {
		return nil, apperr.Persistence(err, "list coupons")
	}
	return list, nil
}

// Create stores a new coupon. New coupons are active unless the definition says otherwise.
func (l *Ledger) Create(ctx context.Context, def Definition) (*models.Coupon, error) {
	if err := validateDefinition(def); err != nil {
		return nil, err
	}

	now := l.now()
	c := &models.Coupon{
		Code:         models.NormalizeCouponCode(def.Code),
		DiscountType: def.DiscountType,
		Value:        def.Value,
		MinCartValue: def.MinCartValue,
		Active:       true,
		MaxUsage:     def.MaxUsage,
		Description:  def.Description,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if def.Active != nil {
		c.Active = *def.Active
	}

	if err := l.repo.Insert(ctx, c); err != nil {
		return nil, apperr.Persistence(err, "insert coupon")
	}

	log.WithFields(log.Fields{"coupon": c.Code, "type": c.DiscountType, "value": c.Value.String()}).Info("coupon created")
	return c, nil
}

// Update replaces the editable fields of the coupon identified by code.
// The code itself and the usage counter are never changed here.
func (l *Ledger) Update(ctx context.Context, code string, def Definition) (*models.Coupon, error) {
	def.Code = code
	if err := validateDefinition(def); err != nil {
		return nil, err
	}

	c, err := l.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	c.DiscountType = def.DiscountType
	c.Value = def.Value
	c.MinCartValue = def.MinCartValue
	c.MaxUsage = def.MaxUsage
	c.Description = def.Description
	if def.Active != nil {
		c.Active = *def.Active
	}
	c.UpdatedAt = l.now()

	if err := l.repo.Update(ctx, c); err != nil {
		return nil, apperr.Persistence(err, "update coupon")
	}

	log.WithField("coupon", c.Code).Info("coupon updated")
	return c, nil
}

// SetActive soft-activates or soft-deactivates a coupon. Coupons are never deleted.
func (l *Ledger) SetActive(ctx context.Context, code string, active bool) (*models.Coupon, error) {
	c, err := l.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if c.Active == active {
		return c, nil
	}

	c.Active = active
	c.UpdatedAt = l.now()
	if err := l.repo.Update(ctx, c); err != nil {
		return nil, apperr.Persistence(err, "update coupon")
	}

	log.WithFields(log.Fields{"coupon": c.Code, "active": active}).Info("coupon activation changed")
	return c, nil
}

func validateDefinition(def Definition) error {
	if models.NormalizeCouponCode(def.Code) == "" {
		return apperr.Validation("coupon code is required")
	}
	switch def.DiscountType {
	case models.DiscountFlat:
		if !def.Value.IsPositive() {
			return apperr.Validation("flat coupon value must be greater than zero")
		}
	case models.DiscountPercentage:
		if !def.Value.IsPositive() || def.Value.GreaterThan(maxPercentage) {
			return apperr.Validation("percentage coupon value must be in (0, 100]")
		}
	default:
		return apperr.Validation("unknown discount type %q", def.DiscountType)
	}
	if def.MinCartValue.IsNegative() {
		return apperr.Validation("minimum cart value cannot be negative")
	}
	if def.MaxUsage != nil && *def.MaxUsage <= 0 {
		return apperr.Validation("maxUsage must be positive when set")
	}
	return nil
}
