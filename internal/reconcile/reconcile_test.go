package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/01moynul/taptosell-orders/internal/apperr"
	"github.com/01moynul/taptosell-orders/internal/coupons"
	"github.com/01moynul/taptosell-orders/internal/events"
	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/01moynul/taptosell-orders/internal/numbering"
	"github.com/01moynul/taptosell-orders/internal/orders"
	"github.com/01moynul/taptosell-orders/internal/payment"
	"github.com/01moynul/taptosell-orders/internal/pricing"
	"github.com/01moynul/taptosell-orders/internal/reconcile"
	"github.com/01moynul/taptosell-orders/internal/store/memstore"
)

type harness struct {
	mgr     *orders.Manager
	gateway *payment.Sandbox
	events  *events.Recorder
	clock   time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s := memstore.New()
	s.Catalog().Put(models.Product{ID: 1, Name: "Kettle", Price: decimal.NewFromInt(250), StockQuantity: 100, Status: models.ProductActive})
	h := &harness{
		gateway: payment.NewSandbox("secret"),
		events:  &events.Recorder{},
		clock:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	h.mgr = orders.NewManager(orders.Deps{
		Store:    s,
		Pricer:   pricing.NewEngine(s.Catalog(), coupons.NewLedger(s.CouponRepo())),
		Numbers:  numbering.NewAuthority(s.Sequence(), "ORD", 6),
		Gateway:  h.gateway,
		Verifier: payment.NewVerifier("secret"),
		Events:   h.events,
		Now:      func() time.Time { return h.clock },
	})
	return h
}

func (h *harness) checkout(t *testing.T) *models.Order {
	t.Helper()
	o, err := h.mgr.Checkout(context.Background(), orders.CheckoutRequest{
		UserID:          3,
		Items:           []models.CartLine{{ProductID: 1, Quantity: 1}},
		ShippingAddress: models.Address{FullName: "R", Phone: "1", AddressLine1: "a", City: "c", State: "s", Postcode: "1"},
	})
	require.NoError(t, err)
	return o
}

func (h *harness) pay(t *testing.T, o *models.Order) {
	t.Helper()
	payID, sig := h.gateway.Pay(o.GatewayOrderID)
	_, err := h.mgr.HandlePaymentCallback(context.Background(), orders.PaymentCallback{
		GatewayOrderID: o.GatewayOrderID, GatewayPaymentID: payID, Signature: sig,
	})
	require.NoError(t, err)
}

func TestRun_CancelsOnlyStaleUnpaidOrders(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	mgr, rec := h.mgr, h.events
	checkout := func() *models.Order { return h.checkout(t) }

	unpaid := checkout()
	failed := checkout()
	paid := checkout()
	_, err := mgr.FailPayment(ctx, failed.OrderNumber, "", "declined")
	require.NoError(t, err)
	h.pay(t, paid)

	h.clock = h.clock.Add(23 * time.Hour)
	fresh := checkout()

	r := reconcile.New(mgr, 24*time.Hour)
	res, err := r.Run(ctx, h.clock.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, reconcile.Result{Scanned: 2, Cancelled: 2}, res)

	for number, want := range map[string]models.OrderStatus{
		unpaid.OrderNumber: models.OrderCancelled,
		failed.OrderNumber: models.OrderCancelled,
		paid.OrderNumber:   models.OrderConfirmed,
		fresh.OrderNumber:  models.OrderPending,
	} {
		o, err := mgr.Get(ctx, number)
		require.NoError(t, err)
		assert.Equal(t, want, o.Status, number)
	}

	cancelled := rec.OfType(events.OrderCancelled)
	require.Len(t, cancelled, 2)
	assert.Equal(t, reconcile.CancelReason, cancelled[0].Reason)
	assert.Empty(t, rec.OfType(events.PaymentRefundInitiated))

	res, err = r.Run(ctx, h.clock.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, res.Scanned, "second pass finds nothing")
}

// payAfterScan lets a payment or a customer cancellation land between the
// reconciler's scan and its cancellation of the same order.
type payAfterScan struct {
	*orders.Manager
	between func(list []models.Order)
}

func (p *payAfterScan) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	list, err := p.Manager.StalePending(ctx, cutoff, limit)
	if err == nil && p.between != nil {
		p.between(list)
		p.between = nil
	}
	return list, err
}

func TestRun_LeavesOrdersPaidAfterTheScan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	late := h.checkout(t)
	unpaid := h.checkout(t)
	withdrawn := h.checkout(t)

	wrapped := &payAfterScan{Manager: h.mgr, between: func(list []models.Order) {
		require.Len(t, list, 3)
		h.pay(t, late)
		_, err := h.mgr.CancelOwn(ctx, 3, withdrawn.OrderNumber, "changed my mind")
		require.NoError(t, err)
	}}

	res, err := reconcile.New(wrapped, time.Hour).Run(ctx, h.clock.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, reconcile.Result{Scanned: 3, Cancelled: 1, Skipped: 2}, res)

	got, err := h.mgr.Get(ctx, late.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, models.OrderConfirmed, got.Status)
	assert.Equal(t, models.PaymentCompleted, got.PaymentStatus)
	assert.Empty(t, h.events.OfType(events.PaymentRefundInitiated))

	got, err = h.mgr.Get(ctx, unpaid.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, got.Status)

	got, err = h.mgr.Get(ctx, withdrawn.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, "changed my mind", *got.Notes, "customer's cancellation is not overwritten")
}

type stubCanceller struct {
	stale     []models.Order
	cancelErr map[string]error
	cancelled []string
}

func (s *stubCanceller) StalePending(_ context.Context, _ time.Time, _ int) ([]models.Order, error) {
	var out []models.Order
	for _, o := range s.stale {
		done := false
		for _, c := range s.cancelled {
			done = done || c == o.OrderNumber
		}
		if !done {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *stubCanceller) CancelStale(_ context.Context, number, _ string) (*models.Order, error) {
	if err := s.cancelErr[number]; err != nil {
		return nil, err
	}
	s.cancelled = append(s.cancelled, number)
	return &models.Order{OrderNumber: number, Status: models.OrderCancelled}, nil
}

func TestRun_CountsRejectedCancellationsAsSkipped(t *testing.T) {
	stub := &stubCanceller{
		stale: []models.Order{{OrderNumber: "A"}, {OrderNumber: "B"}, {OrderNumber: "C"}},
		cancelErr: map[string]error{
			"B": apperr.InvalidTransition("confirmed", "cancelled"),
		},
	}

	res, err := reconcile.New(stub, time.Hour).Run(context.Background(), time.Now())

	require.NoError(t, err)
	assert.Equal(t, reconcile.Result{Scanned: 3, Cancelled: 2, Skipped: 1}, res)
	assert.Equal(t, []string{"A", "C"}, stub.cancelled)
}

func TestRun_StopsOnStoreFailure(t *testing.T) {
	stub := &stubCanceller{
		stale:     []models.Order{{OrderNumber: "A"}},
		cancelErr: map[string]error{"A": apperr.Persistence(errors.New("connection reset"), "update order")},
	}

	_, err := reconcile.New(stub, time.Hour).Run(context.Background(), time.Now())

	assert.Error(t, err)
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
}

func TestLoop_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reconcile.New(&stubCanceller{}, time.Hour).Loop(ctx, time.Millisecond) }()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}
