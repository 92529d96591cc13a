// Package mysqlstore implements the repositories on MySQL with sqlx.
package mysqlstore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/01moynul/taptosell-orders/internal/orders"
)

const errDuplicateEntry = 1062

// Store hands out repositories bound either to the pool or to one transaction.
type Store struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
	tx  *sqlx.Tx
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db, ext: db}
}

func (s *Store) Orders() orders.Repository    { return &OrderRepo{s: s} }
func (s *Store) Coupons() orders.UsageCounter { return &CouponRepo{s: s} }
func (s *Store) CouponRepo() *CouponRepo      { return &CouponRepo{s: s} }
func (s *Store) Catalog() *Catalog            { return &Catalog{s: s} }
func (s *Store) Sequence() *Sequence          { return &Sequence{s: s} }
func (s *Store) Notifications() *NotificationRepo {
	return &NotificationRepo{s: s}
}

// Atomic runs fn in a single transaction. Nested calls join the outer one.
func (s *Store) Atomic(ctx context.Context, fn func(tx orders.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.WithError(err).Warn("rollback failed")
		}
	}()

	if err := fn(&Store{db: s.db, ext: tx, tx: tx}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit transaction")
}

// isDuplicate reports a unique-key violation, optionally on a named key.
func isDuplicate(err error, key string) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != errDuplicateEntry {
		return false
	}
	return key == "" || strings.Contains(me.Message, key)
}
