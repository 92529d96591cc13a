package orders

import (
	"context"
	"time"

	"github.com/01moynul/taptosell-orders/internal/models"
)

// Filter narrows order listings. Zero values mean "any".
type Filter struct {
	UserID int64
	Status models.OrderStatus
	Limit  int
	Offset int
}

// Repository persists orders and their line-item snapshots.
type Repository interface {
	// Insert stores the order and its items, assigning IDs. A taken order
	// number is reported as apperr.ErrNumberingConflict.
	Insert(ctx context.Context, o *models.Order) error
	FindByNumber(ctx context.Context, number string) (*models.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	List(ctx context.Context, f Filter) ([]models.Order, error)
	// ListStalePending returns pending orders with an unpaid payment created before cutoff.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	// Update writes the mutable order columns only if the stored version still
	// equals o.Version, then bumps o.Version. Otherwise it returns
	// apperr.ErrOptimisticLock and changes nothing.
	Update(ctx context.Context, o *models.Order) error
}

// UsageCounter is the coupon ledger's atomic compare-and-increment.
type UsageCounter interface {
	IncrementUsage(ctx context.Context, couponID int64) (bool, error)
}

// Store is a unit of work over orders and coupon usage.
type Store interface {
	Orders() Repository
	Coupons() UsageCounter
	// Atomic runs fn in one transaction. Returning an error rolls everything back.
	Atomic(ctx context.Context, fn func(tx Store) error) error
}
