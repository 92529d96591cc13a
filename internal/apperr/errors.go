// Package apperr holds the error taxonomy shared by the order-processing core
// and the HTTP layer. Every error that crosses a package boundary is either an
// *Error or wraps one, so handlers can pick a status code with KindOf.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error by how the caller is expected to react.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindCoupon
	KindInvalidTransition
	KindPaymentVerification
	KindNumberingConflict
	KindPersistence
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCoupon:
		return "coupon"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindPaymentVerification:
		return "payment_verification"
	case KindNumberingConflict:
		return "numbering_conflict"
	case KindPersistence:
		return "persistence"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified error with a stable machine-readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Coupon errors are reported verbatim to the checkout client.
var (
	ErrCouponNotFound      = &Error{Kind: KindCoupon, Code: "coupon_not_found", Message: "coupon not found"}
	ErrCouponInactive      = &Error{Kind: KindCoupon, Code: "coupon_inactive", Message: "coupon is no longer active"}
	ErrCouponMinCartNotMet = &Error{Kind: KindCoupon, Code: "coupon_min_cart_not_met", Message: "cart value is below the coupon minimum"}
	ErrCouponUsageExceeded = &Error{Kind: KindCoupon, Code: "coupon_usage_exceeded", Message: "coupon usage limit reached"}
)

var (
	ErrOrderNotFound   = &Error{Kind: KindNotFound, Code: "order_not_found", Message: "order not found"}
	ErrProductNotFound = &Error{Kind: KindNotFound, Code: "product_not_found", Message: "product not found or not available"}

	ErrNotificationNotFound = &Error{Kind: KindNotFound, Code: "notification_not_found", Message: "notification not found or you do not have permission"}

	ErrInvalidTransition         = &Error{Kind: KindInvalidTransition, Code: "invalid_transition", Message: "transition not allowed from the current state"}
	ErrPaymentVerificationFailed = &Error{Kind: KindPaymentVerification, Code: "payment_verification_failed", Message: "payment signature could not be verified"}

	// ErrOptimisticLock means the row changed between read and write.
	ErrOptimisticLock = &Error{Kind: KindConflict, Code: "concurrent_update", Message: "order has been modified by another request"}
	ErrDuplicateCode  = &Error{Kind: KindConflict, Code: "duplicate_code", Message: "a coupon with this code already exists"}
	ErrCapBelowUsage  = &Error{Kind: KindValidation, Code: "max_usage_below_usage_count", Message: "maxUsage cannot be lower than the current usage count"}

	ErrNumberingConflict = &Error{Kind: KindNumberingConflict, Code: "numbering_conflict", Message: "order number already taken"}
)

// Validation builds a user-correctable input error.
func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Code: "invalid_input", Message: fmt.Sprintf(format, args...)}
}

// InvalidTransition reports a rejected state change with the states involved.
func InvalidTransition(from, to string) error {
	return &Error{
		Kind:    KindInvalidTransition,
		Code:    ErrInvalidTransition.Code,
		Message: fmt.Sprintf("cannot move order from %s to %s", from, to),
		Err:     ErrInvalidTransition,
	}
}

// Persistence marks a store failure. The request fails and no partial state is left.
func Persistence(err error, op string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return errors.Wrap(err, op)
	}
	return &Error{Kind: KindPersistence, Code: "persistence_unavailable", Message: op, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in the chain.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return "internal_error"
}
