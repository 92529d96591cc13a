// Package reconcile cancels orders that were never paid.
package reconcile

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/01moynul/taptosell-orders/internal/apperr"
	"github.com/01moynul/taptosell-orders/internal/models"
)

const (
	batchSize    = 100
	CancelReason = "payment not received in time"
)

// OrderCanceller is the slice of the lifecycle manager the reconciler needs.
type OrderCanceller interface {
	StalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	CancelStale(ctx context.Context, number, reason string) (*models.Order, error)
}

// Result summarises one pass.
type Result struct {
	Scanned   int
	Cancelled int
	Skipped   int
}

type Reconciler struct {
	orders  OrderCanceller
	timeout time.Duration
}

func New(orders OrderCanceller, timeout time.Duration) *Reconciler {
	return &Reconciler{orders: orders, timeout: timeout}
}

// Run cancels every pending, unpaid order created more than the timeout
// before now. An order paid or cancelled after the scan is rejected by
// CancelStale and counted as skipped.
func (r *Reconciler) Run(ctx context.Context, now time.Time) (Result, error) {
	var res Result
	cutoff := now.Add(-r.timeout)
	seen := make(map[string]bool)

	for {
		batch, err := r.orders.StalePending(ctx, cutoff, batchSize)
		if err != nil {
			return res, err
		}

		progressed := false
		for _, o := range batch {
			if seen[o.OrderNumber] {
				continue
			}
			seen[o.OrderNumber] = true
			progressed = true
			res.Scanned++

			if err := ctx.Err(); err != nil {
				return res, err
			}
			if _, err := r.orders.CancelStale(ctx, o.OrderNumber, CancelReason); err != nil {
				switch apperr.KindOf(err) {
				case apperr.KindInvalidTransition, apperr.KindConflict:
					res.Skipped++
					log.WithError(err).WithField("order_number", o.OrderNumber).Info("stale order changed before cancellation; skipped")
					continue
				}
				return res, errors.Wrapf(err, "cancel stale order %s", o.OrderNumber)
			}
			res.Cancelled++
		}

		if len(batch) < batchSize || !progressed {
			break
		}
	}

	if res.Scanned > 0 {
		log.WithFields(log.Fields{
			"scanned":   res.Scanned,
			"cancelled": res.Cancelled,
			"skipped":   res.Skipped,
			"cutoff":    cutoff.Format(time.RFC3339),
		}).Info("reconciliation pass finished")
	}
	return res, nil
}

// Loop runs a pass on every tick until ctx is done. A failed pass is logged
// and retried on the next tick.
func (r *Reconciler) Loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.WithFields(log.Fields{"interval": interval.String(), "timeout": r.timeout.String()}).
		Info("background worker started: monitoring for unpaid orders")

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			if _, err := r.Run(ctx, t.UTC()); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("reconciliation pass failed")
			}
		}
	}
}
