// Package memstore is a mutex-guarded in-memory implementation of every
// repository. It keeps the same atomicity rules as the MySQL store: one
// transaction at a time, conditional writes, and rollback on error.
package memstore

import (
	"context"
	"sync"

	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/01moynul/taptosell-orders/internal/orders"
)

type state struct {
	orders      map[int64]*models.Order
	byNumber    map[string]int64
	byGateway   map[string]int64
	nextOrderID int64
	nextItemID  int64

	coupons      map[int64]*models.Coupon
	couponByCode map[string]int64
	nextCouponID int64

	products map[int64]models.Product
	sequence int64

	notifications []*models.Notification
	nextNotifyID  int64
}

// Store is safe for concurrent use.
type Store struct {
	mu   *sync.Mutex
	st   *state
	undo *[]func()
}

func New() *Store {
	return &Store{
		mu: &sync.Mutex{},
		st: &state{
			orders:       make(map[int64]*models.Order),
			byNumber:     make(map[string]int64),
			byGateway:    make(map[string]int64),
			coupons:      make(map[int64]*models.Coupon),
			couponByCode: make(map[string]int64),
			products:     make(map[int64]models.Product),
		},
	}
}

func (s *Store) inTx() bool { return s.undo != nil }

// lock serializes access outside a transaction. Inside one the transaction
// already holds the lock.
func (s *Store) lock() func() {
	if s.inTx() {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) onRollback(fn func()) {
	if s.inTx() {
		*s.undo = append(*s.undo, fn)
	}
}

func (s *Store) Orders() orders.Repository    { return &OrderRepo{s: s} }
func (s *Store) Coupons() orders.UsageCounter { return &CouponRepo{s: s} }
func (s *Store) CouponRepo() *CouponRepo      { return &CouponRepo{s: s} }
func (s *Store) Catalog() *Catalog            { return &Catalog{s: s} }
func (s *Store) Sequence() *Sequence          { return &Sequence{s: s} }
func (s *Store) Notifications() *NotificationRepo {
	return &NotificationRepo{s: s}
}

// Atomic runs fn while holding the store lock and undoes every write fn made
// if it returns an error.
func (s *Store) Atomic(ctx context.Context, fn func(tx orders.Store) error) error {
	if s.inTx() {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	journal := make([]func(), 0, 4)
	tx := &Store{mu: s.mu, st: s.st, undo: &journal}
	if err := fn(tx); err != nil {
		for i := len(journal) - 1; i >= 0; i-- {
			journal[i]()
		}
		return err
	}
	return nil
}
