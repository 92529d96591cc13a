package orders

import (
	"github.com/01moynul/taptosell-orders/internal/apperr"
	"github.com/01moynul/taptosell-orders/internal/models"
)

// fulfillment is the only forward chain an operator may drive.
var fulfillment = map[models.OrderStatus]models.OrderStatus{
	models.OrderConfirmed:  models.OrderPacked,
	models.OrderPacked:     models.OrderDispatched,
	models.OrderDispatched: models.OrderDelivered,
}

// NextFulfillmentStatus returns the single status an operator may move to from s.
func NextFulfillmentStatus(s models.OrderStatus) (models.OrderStatus, bool) {
	next, ok := fulfillment[s]
	return next, ok
}

// Cancellable reports whether an order in status s may be cancelled.
func Cancellable(s models.OrderStatus) bool {
	switch s {
	case models.OrderPending, models.OrderConfirmed, models.OrderPacked:
		return true
	}
	return false
}

// checkAdvance validates an operator move from cur to target. Same-status
// requests are handled by the caller before this is reached.
func checkAdvance(cur, target models.OrderStatus) error {
	if !target.Valid() {
		return apperr.Validation("unknown order status %q", target)
	}
	if cur.Terminal() {
		return apperr.InvalidTransition(string(cur), string(target))
	}
	next, ok := NextFulfillmentStatus(cur)
	if !ok || next != target {
		return apperr.InvalidTransition(string(cur), string(target))
	}
	return nil
}

// checkCancel validates a cancellation from cur.
func checkCancel(cur models.OrderStatus) error {
	if !Cancellable(cur) {
		return apperr.InvalidTransition(string(cur), string(models.OrderCancelled))
	}
	return nil
}
