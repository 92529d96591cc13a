package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/01moynul/taptosell-orders/internal/apperr"
	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/01moynul/taptosell-orders/internal/orders"
)

func newOrder(number string) *models.Order {
	now := time.Now().UTC()
	return &models.Order{
		OrderNumber:    number,
		UserID:         1,
		GatewayOrderID: "gw_" + number,
		Status:         models.OrderPending,
		PaymentStatus:  models.PaymentPending,
		Total:          decimal.NewFromInt(100),
		Items:          []models.LineItem{{ProductID: 1, ProductName: "Kettle", Quantity: 1, UnitPrice: decimal.NewFromInt(100), LineTotal: decimal.NewFromInt(100)}},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func intPtr(v int) *int { return &v }

func TestOrderRepo_InsertAndFind(t *testing.T) {
	s := New()
	ctx := context.Background()

	o := newOrder("ORD000001")
	require.NoError(t, s.Orders().Insert(ctx, o))
	assert.NotZero(t, o.ID)
	assert.Equal(t, 1, o.Version)
	assert.Equal(t, o.ID, o.Items[0].OrderID)

	got, err := s.Orders().FindByGatewayOrderID(ctx, "gw_ORD000001")
	require.NoError(t, err)
	assert.Equal(t, "ORD000001", got.OrderNumber)

	got.Items[0].ProductName = "mutated"
	again, err := s.Orders().FindByNumber(ctx, "ORD000001")
	require.NoError(t, err)
	assert.Equal(t, "Kettle", again.Items[0].ProductName)

	_, err = s.Orders().FindByNumber(ctx, "ORD999999")
	assert.True(t, errors.Is(err, apperr.ErrOrderNotFound))
}

func TestOrderRepo_DuplicateNumber(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Orders().Insert(ctx, newOrder("ORD000001")))

	dup := newOrder("ORD000001")
	dup.GatewayOrderID = "gw_other"
	err := s.Orders().Insert(ctx, dup)

	assert.True(t, errors.Is(err, apperr.ErrNumberingConflict))
}

func TestOrderRepo_UpdateIsCheckAndSet(t *testing.T) {
	s := New()
	ctx := context.Background()
	o := newOrder("ORD000001")
	require.NoError(t, s.Orders().Insert(ctx, o))

	a, _ := s.Orders().FindByNumber(ctx, "ORD000001")
	b, _ := s.Orders().FindByNumber(ctx, "ORD000001")

	a.Status = models.OrderCancelled
	require.NoError(t, s.Orders().Update(ctx, a))
	assert.Equal(t, 2, a.Version)

	b.PaymentStatus = models.PaymentCompleted
	err := s.Orders().Update(ctx, b)
	assert.True(t, errors.Is(err, apperr.ErrOptimisticLock))

	stored, _ := s.Orders().FindByNumber(ctx, "ORD000001")
	assert.Equal(t, models.OrderCancelled, stored.Status)
	assert.Equal(t, models.PaymentPending, stored.PaymentStatus)
}

func TestAtomic_RollsBackEveryWrite(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := &models.Coupon{Code: "TEN", DiscountType: models.DiscountPercentage, Value: decimal.NewFromInt(10), Active: true}
	require.NoError(t, s.CouponRepo().Insert(ctx, c))
	o := newOrder("ORD000001")
	require.NoError(t, s.Orders().Insert(ctx, o))

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(tx orders.Store) error {
		ok, err := tx.Coupons().IncrementUsage(ctx, c.ID)
		require.NoError(t, err)
		require.True(t, ok)

		cur, err := tx.Orders().FindByNumber(ctx, "ORD000001")
		require.NoError(t, err)
		cur.Status = models.OrderConfirmed
		require.NoError(t, tx.Orders().Update(ctx, cur))

		require.NoError(t, tx.Orders().Insert(ctx, newOrder("ORD000002")))
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	got, _ := s.CouponRepo().FindByCode(ctx, "TEN")
	assert.Equal(t, 0, got.UsageCount)
	stored, _ := s.Orders().FindByNumber(ctx, "ORD000001")
	assert.Equal(t, models.OrderPending, stored.Status)
	assert.Equal(t, 1, stored.Version)
	_, err = s.Orders().FindByNumber(ctx, "ORD000002")
	assert.True(t, errors.Is(err, apperr.ErrOrderNotFound))
}

func TestCouponRepo_IncrementUsageHonoursCap(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := &models.Coupon{Code: "FIVE", DiscountType: models.DiscountFlat, Value: decimal.NewFromInt(5), Active: true, MaxUsage: intPtr(5)}
	require.NoError(t, s.CouponRepo().Insert(ctx, c))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Coupons().IncrementUsage(ctx, c.ID)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, wins)
	got, _ := s.CouponRepo().FindByCode(ctx, "five")
	assert.Equal(t, 5, got.UsageCount)
}

func TestCouponRepo_Update(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := &models.Coupon{Code: "SAVE", DiscountType: models.DiscountFlat, Value: decimal.NewFromInt(5), Active: true, UsageCount: 0}
	require.NoError(t, s.CouponRepo().Insert(ctx, c))
	for i := 0; i < 3; i++ {
		_, _ = s.Coupons().IncrementUsage(ctx, c.ID)
	}

	t.Run("cap below usage rejected", func(t *testing.T) {
		edit, _ := s.CouponRepo().FindByCode(ctx, "SAVE")
		edit.MaxUsage = intPtr(2)
		assert.True(t, errors.Is(s.CouponRepo().Update(ctx, edit), apperr.ErrCapBelowUsage))
	})

	t.Run("usage counter is not overwritten", func(t *testing.T) {
		edit, _ := s.CouponRepo().FindByCode(ctx, "SAVE")
		edit.UsageCount = 0
		edit.Active = false
		require.NoError(t, s.CouponRepo().Update(ctx, edit))

		got, _ := s.CouponRepo().FindByCode(ctx, "SAVE")
		assert.Equal(t, 3, got.UsageCount)
		assert.False(t, got.Active)

		ok, err := s.Coupons().IncrementUsage(ctx, c.ID)
		require.NoError(t, err)
		assert.False(t, ok, "inactive coupons are not counted")
	})
}

func TestOrderRepo_ListAndStale(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, n := range []string{"ORD000001", "ORD000002", "ORD000003"} {
		o := newOrder(n)
		o.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.Orders().Insert(ctx, o))
	}
	paid, _ := s.Orders().FindByNumber(ctx, "ORD000001")
	paid.PaymentStatus = models.PaymentCompleted
	paid.Status = models.OrderConfirmed
	require.NoError(t, s.Orders().Update(ctx, paid))

	list, err := s.Orders().List(ctx, orders.Filter{UserID: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ORD000003", list[0].OrderNumber)

	byStatus, err := s.Orders().List(ctx, orders.Filter{Status: models.OrderConfirmed})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)

	stale, err := s.Orders().ListStalePending(ctx, base.Add(90*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "ORD000002", stale[0].OrderNumber)
}

func TestSequence(t *testing.T) {
	s := New()
	a, _ := s.Sequence().Next(context.Background())
	b, _ := s.Sequence().Next(context.Background())
	assert.Equal(t, int64(1), a)
	assert.Equal(t, int64(2), b)
}
