// Package orders owns the order state machine. Every change to an order goes
// through the Manager, which conditions each write on the version it read and
// emits lifecycle events only after its write committed.
package orders

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/01moynul/taptosell-orders/internal/apperr"
	"github.com/01moynul/taptosell-orders/internal/events"
	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/01moynul/taptosell-orders/internal/payment"
	"github.com/01moynul/taptosell-orders/internal/pricing"
)

// maxAttempts bounds re-read-and-retry after losing a check-and-set.
const maxAttempts = 3

// Pricer prices a cart.
type Pricer interface {
	ValidateAndPrice(ctx context.Context, cart []models.CartLine, couponCode string) (*pricing.Quote, error)
}

// Numberer mints an order number and retries fn once on a numbering conflict.
type Numberer interface {
	WithNumber(ctx context.Context, fn func(number string) error) error
}

// SignatureVerifier authenticates gateway callbacks.
type SignatureVerifier interface {
	Verify(gatewayOrderID, gatewayPaymentID, signature string) bool
}

// Deps wires a Manager.
type Deps struct {
	Store    Store
	Pricer   Pricer
	Numbers  Numberer
	Gateway  payment.Gateway
	Verifier SignatureVerifier
	Events   events.Dispatcher
	Currency string
	Now      func() time.Time
}

// Manager is the order lifecycle manager.
type Manager struct {
	store    Store
	pricer   Pricer
	numbers  Numberer
	gateway  payment.Gateway
	verifier SignatureVerifier
	events   events.Dispatcher
	currency string
	now      func() time.Time
}

func NewManager(d Deps) *Manager {
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.Currency == "" {
		d.Currency = "INR"
	}
	return &Manager{
		store:    d.Store,
		pricer:   d.Pricer,
		numbers:  d.Numbers,
		gateway:  d.Gateway,
		verifier: d.Verifier,
		events:   d.Events,
		currency: d.Currency,
		now:      d.Now,
	}
}

// CheckoutRequest is what the client submits. Prices are never taken from it.
type CheckoutRequest struct {
	UserID          int64
	Items           []models.CartLine
	ShippingAddress models.Address
	CouponCode      string
	Notes           string
}

// PaymentCallback is the gateway's report about one payment attempt.
type PaymentCallback struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	// FailureReason is set when the gateway itself reports a failed attempt.
	FailureReason string
}

// StatusUpdate is an operator's request to move an order.
type StatusUpdate struct {
	Status              models.OrderStatus
	TrackingNumber      *string
	Notes               *string
	EstimatedDeliveryAt *time.Time
}

// Quote prices a cart without creating anything.
func (m *Manager) Quote(ctx context.Context, cart []models.CartLine, couponCode string) (*pricing.Quote, error) {
	return m.pricer.ValidateAndPrice(ctx, cart, couponCode)
}

// Checkout prices the cart, mints an order number, opens a gateway order and
// stores the pending order with its item snapshots in one transaction.
func (m *Manager) Checkout(ctx context.Context, req CheckoutRequest) (*models.Order, error) {
	if req.UserID <= 0 {
		return nil, apperr.Validation("user is required")
	}

	quote, err := m.pricer.ValidateAndPrice(ctx, req.Items, req.CouponCode)
	if err != nil {
		return nil, err
	}

	var created *models.Order
	err = m.numbers.WithNumber(ctx, func(number string) error {
		gatewayOrderID, err := m.gateway.CreateOrder(ctx, number, quote.Total, m.currency)
		if err != nil {
			return apperr.Persistence(err, "open gateway order")
		}

		o := m.newOrder(number, gatewayOrderID, req, quote)
		if err := m.store.Atomic(ctx, func(tx Store) error {
			return tx.Orders().Insert(ctx, o)
		}); err != nil {
			if errors.Is(err, apperr.ErrNumberingConflict) {
				return err
			}
			return apperr.Persistence(err, "create order")
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"order_number": created.OrderNumber,
		"user_id":      created.UserID,
		"total":        created.Total.String(),
	}).Info("order created")
	return created, nil
}

func (m *Manager) newOrder(number, gatewayOrderID string, req CheckoutRequest, q *pricing.Quote) *models.Order {
	now := m.now()
	o := &models.Order{
		OrderNumber:     number,
		UserID:          req.UserID,
		Items:           append([]models.LineItem(nil), q.Lines...),
		Subtotal:        q.Subtotal,
		Discount:        q.Discount,
		Total:           q.Total,
		Currency:        m.currency,
		Status:          models.OrderPending,
		PaymentStatus:   models.PaymentPending,
		GatewayOrderID:  gatewayOrderID,
		ShippingAddress: req.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if q.AppliedCoupon != nil {
		id, code := q.AppliedCoupon.ID, q.AppliedCoupon.Code
		o.CouponID, o.CouponCode = &id, &code
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		o.Notes = &notes
	}
	return o
}

// HandlePaymentCallback verifies a gateway callback and confirms or fails the
// matching order. Success and failure reports are both signed over the
// order/payment id pair. A signature that does not verify marks the payment
// failed without notifying anyone and returns apperr.ErrPaymentVerificationFailed;
// the order stays payable.
func (m *Manager) HandlePaymentCallback(ctx context.Context, cb PaymentCallback) (*models.Order, error) {
	if strings.TrimSpace(cb.GatewayOrderID) == "" {
		return nil, apperr.Validation("gateway order id is required")
	}

	o, err := m.store.Orders().FindByGatewayOrderID(ctx, cb.GatewayOrderID)
	if err != nil {
		return nil, apperr.Persistence(err, "load order")
	}

	if !m.verifier.Verify(cb.GatewayOrderID, cb.GatewayPaymentID, cb.Signature) {
		log.WithFields(log.Fields{
			"order_number":     o.OrderNumber,
			"gateway_order_id": cb.GatewayOrderID,
			"reported_failure": cb.FailureReason != "",
		}).Warn("payment signature rejected")

		if _, err := m.failPayment(ctx, o.OrderNumber, "", "signature verification failed", false); err != nil {
			return nil, err
		}
		return nil, apperr.ErrPaymentVerificationFailed
	}

	if cb.FailureReason != "" {
		return m.FailPayment(ctx, o.OrderNumber, cb.GatewayPaymentID, cb.FailureReason)
	}
	return m.confirmPayment(ctx, o.OrderNumber, cb.GatewayPaymentID, cb.Signature)
}

// confirmPayment moves a verified payment to completed and the order to
// confirmed, consuming one coupon use in the same transaction. It must only be
// reached after signature verification succeeded.
func (m *Manager) confirmPayment(ctx context.Context, number, paymentID, signature string) (*models.Order, error) {
	var (
		applied    bool
		capReached bool
	)
	o, err := m.transition(ctx, number, func(o *models.Order) (bool, error) {
		switch o.PaymentStatus {
		case models.PaymentCompleted, models.PaymentRefunded:
			return false, nil
		}
		if o.Status != models.OrderPending {
			return false, apperr.InvalidTransition(string(o.Status), string(models.OrderConfirmed))
		}

		o.PaymentStatus = models.PaymentCompleted
		o.Status = models.OrderConfirmed
		o.GatewayPaymentID = &paymentID
		o.GatewaySignature = &signature
		return true, nil
	}, func(tx Store, o *models.Order) error {
		capReached = false
		if o.CouponID == nil {
			return nil
		}
		ok, err := tx.Coupons().IncrementUsage(ctx, *o.CouponID)
		if err != nil {
			return err
		}
		capReached = !ok
		return nil
	}, &applied)
	if err != nil {
		return nil, err
	}

	fields := log.Fields{"order_number": o.OrderNumber, "status": o.Status, "payment_status": o.PaymentStatus}
	if !applied {
		log.WithFields(fields).Info("duplicate payment confirmation ignored")
		return o, nil
	}
	if capReached {
		log.WithFields(fields).WithField("coupon", deref(o.CouponCode)).
			Warn("coupon usage cap reached before payment confirmed; usage not counted")
	}
	log.WithFields(fields).Info("payment confirmed")

	m.emit(ctx, events.New(events.OrderConfirmed, o, ""))
	return o, nil
}

// FailPayment records a failed payment attempt. The order stays pending so the
// customer can retry payment on it. Completed or refunded payments are left alone.
func (m *Manager) FailPayment(ctx context.Context, number, paymentID, reason string) (*models.Order, error) {
	return m.failPayment(ctx, number, paymentID, reason, true)
}

// failPayment emits payment.failed only when announce is set.
func (m *Manager) failPayment(ctx context.Context, number, paymentID, reason string, announce bool) (*models.Order, error) {
	var applied bool
	o, err := m.transition(ctx, number, func(o *models.Order) (bool, error) {
		if o.Status != models.OrderPending {
			return false, nil
		}
		switch o.PaymentStatus {
		case models.PaymentCompleted, models.PaymentRefunded:
			return false, nil
		}
		o.PaymentStatus = models.PaymentFailed
		if paymentID != "" {
			o.GatewayPaymentID = &paymentID
		}
		return true, nil
	}, nil, &applied)
	if err != nil {
		return nil, err
	}

	if applied {
		log.WithFields(log.Fields{"order_number": o.OrderNumber, "reason": reason}).Warn("payment failed")
		if announce {
			m.emit(ctx, events.New(events.PaymentFailed, o, reason))
		}
	}
	return o, nil
}

// Advance moves an order one step along confirmed, packed, dispatched,
// delivered. Requesting the current status again is a no-op apart from
// updating tracking details, and never emits an event.
func (m *Manager) Advance(ctx context.Context, number string, u StatusUpdate) (*models.Order, error) {
	if u.Status == models.OrderCancelled {
		return m.Cancel(ctx, number, deref(u.Notes))
	}
	if !u.Status.Valid() {
		return nil, apperr.Validation("unknown order status %q", u.Status)
	}

	var (
		applied bool
		moved   bool
	)
	o, err := m.transition(ctx, number, func(o *models.Order) (bool, error) {
		moved = false
		if o.Status == u.Status {
			if o.Status.Terminal() {
				return false, nil
			}
			return applyDetails(o, u), nil
		}
		if err := checkAdvance(o.Status, u.Status); err != nil {
			return false, err
		}

		o.Status = u.Status
		applyDetails(o, u)
		if u.Status == models.OrderDelivered {
			now := m.now()
			o.DeliveredAt = &now
		}
		moved = true
		return true, nil
	}, nil, &applied)
	if err != nil {
		return nil, err
	}

	if !moved {
		return o, nil
	}

	log.WithFields(log.Fields{"order_number": o.OrderNumber, "status": o.Status}).Info("order advanced")
	switch o.Status {
	case models.OrderDispatched:
		m.emit(ctx, events.New(events.OrderDispatched, o, ""))
	case models.OrderDelivered:
		m.emit(ctx, events.New(events.OrderDelivered, o, ""))
	}
	return o, nil
}

// applyDetails copies optional tracking fields and reports whether anything changed.
func applyDetails(o *models.Order, u StatusUpdate) bool {
	changed := false
	if u.TrackingNumber != nil && deref(o.TrackingNumber) != *u.TrackingNumber {
		v := *u.TrackingNumber
		o.TrackingNumber = &v
		changed = true
	}
	if u.Notes != nil && deref(o.Notes) != *u.Notes {
		v := *u.Notes
		o.Notes = &v
		changed = true
	}
	if u.EstimatedDeliveryAt != nil && (o.EstimatedDeliveryAt == nil || !o.EstimatedDeliveryAt.Equal(*u.EstimatedDeliveryAt)) {
		v := *u.EstimatedDeliveryAt
		o.EstimatedDeliveryAt = &v
		changed = true
	}
	return changed
}

// Cancel moves an order to cancelled. A completed payment becomes refunded and
// a refund is requested through the event stream. Cancelling an already
// cancelled order is a no-op.
func (m *Manager) Cancel(ctx context.Context, number, reason string) (*models.Order, error) {
	return m.cancel(ctx, number, reason, func(*models.Order) error { return nil })
}

// CancelOwn lets a customer cancel their own order while it is still pending.
func (m *Manager) CancelOwn(ctx context.Context, userID int64, number, reason string) (*models.Order, error) {
	return m.cancel(ctx, number, reason, func(o *models.Order) error {
		if o.UserID != userID {
			return apperr.ErrOrderNotFound
		}
		if o.Status != models.OrderPending && o.Status != models.OrderCancelled {
			return apperr.InvalidTransition(string(o.Status), string(models.OrderCancelled))
		}
		return nil
	})
}

// CancelStale cancels an order only while it is still pending with no
// successful payment. An order that was paid or moved on since it was
// selected is rejected with an InvalidTransition error and left untouched.
func (m *Manager) CancelStale(ctx context.Context, number, reason string) (*models.Order, error) {
	return m.cancel(ctx, number, reason, func(o *models.Order) error {
		if o.Status != models.OrderPending {
			return apperr.InvalidTransition(string(o.Status), string(models.OrderCancelled))
		}
		switch o.PaymentStatus {
		case models.PaymentPending, models.PaymentFailed:
			return nil
		}
		return apperr.InvalidTransition(string(o.Status)+"/"+string(o.PaymentStatus), string(models.OrderCancelled))
	})
}

func (m *Manager) cancel(ctx context.Context, number, reason string, guard func(*models.Order) error) (*models.Order, error) {
	var (
		applied  bool
		refunded bool
	)
	o, err := m.transition(ctx, number, func(o *models.Order) (bool, error) {
		refunded = false
		if err := guard(o); err != nil {
			return false, err
		}
		if o.Status == models.OrderCancelled {
			return false, nil
		}
		if err := checkCancel(o.Status); err != nil {
			return false, err
		}

		o.Status = models.OrderCancelled
		if o.PaymentStatus == models.PaymentCompleted {
			o.PaymentStatus = models.PaymentRefunded
			refunded = true
		}
		if r := strings.TrimSpace(reason); r != "" {
			o.Notes = &r
		}
		return true, nil
	}, nil, &applied)
	if err != nil {
		return nil, err
	}
	if !applied {
		return o, nil
	}

	log.WithFields(log.Fields{"order_number": o.OrderNumber, "payment_status": o.PaymentStatus, "reason": reason}).Info("order cancelled")
	m.emit(ctx, events.New(events.OrderCancelled, o, reason))
	if refunded {
		m.emit(ctx, events.New(events.PaymentRefundInitiated, o, reason))
	}
	return o, nil
}

// mutateFunc changes o in place and reports whether anything needs writing.
// Returning an error rejects the transition and leaves the order untouched.
type mutateFunc func(o *models.Order) (bool, error)

// sideEffectFunc runs inside the transaction that writes the order.
type sideEffectFunc func(tx Store, o *models.Order) error

// transition reads the order, applies mutate to a private copy and writes it
// back conditioned on the version it read, retrying from a fresh read when
// another writer got there first. The returned order is the committed state.
func (m *Manager) transition(ctx context.Context, number string, mutate mutateFunc, side sideEffectFunc, applied *bool) (*models.Order, error) {
	*applied = false
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		current, err := m.store.Orders().FindByNumber(ctx, number)
		if err != nil {
			return nil, apperr.Persistence(err, "load order")
		}

		next := current.Clone()
		changed, err := mutate(next)
		if err != nil {
			return nil, err
		}
		if !changed {
			return current, nil
		}
		next.UpdatedAt = m.now()

		err = m.store.Atomic(ctx, func(tx Store) error {
			if side != nil {
				if err := side(tx, next); err != nil {
					return err
				}
			}
			return tx.Orders().Update(ctx, next)
		})
		if err == nil {
			*applied = true
			return next, nil
		}
		if !errors.Is(err, apperr.ErrOptimisticLock) {
			return nil, apperr.Persistence(err, "update order")
		}
		log.WithFields(log.Fields{"order_number": number, "attempt": attempt}).Debug("order changed concurrently, retrying")
	}
	return nil, apperr.ErrOptimisticLock
}

// emit publishes after commit. A failed dispatch never undoes a transition.
func (m *Manager) emit(ctx context.Context, e events.Event) {
	if m.events == nil {
		return
	}
	if err := m.events.Dispatch(ctx, e); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"event":        e.Type,
			"event_id":     e.ID,
			"order_number": e.Order.OrderNumber,
		}).Error("event dispatch failed")
	}
}

// Get returns any order by number.
func (m *Manager) Get(ctx context.Context, number string) (*models.Order, error) {
	o, err := m.store.Orders().FindByNumber(ctx, number)
	if err != nil {
		return nil, apperr.Persistence(err, "load order")
	}
	return o, nil
}

// GetForUser returns the order only if userID owns it.
func (m *Manager) GetForUser(ctx context.Context, userID int64, number string) (*models.Order, error) {
	o, err := m.Get(ctx, number)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, apperr.ErrOrderNotFound
	}
	return o, nil
}

// List returns orders matching f, newest first.
func (m *Manager) List(ctx context.Context, f Filter) ([]models.Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("unknown order status %q", f.Status)
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	list, err := m.store.Orders().List(ctx, f)
	if err != nil {
		return nil, apperr.Persistence(err, "list orders")
	}
	return list, nil
}

// StalePending returns unpaid pending orders created before cutoff.
func (m *Manager) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	list, err := m.store.Orders().ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return nil, apperr.Persistence(err, "list stale orders")
	}
	return list, nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
