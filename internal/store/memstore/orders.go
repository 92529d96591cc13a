package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/01moynul/taptosell-orders/internal/apperr"
	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/01moynul/taptosell-orders/internal/orders"
)

// OrderRepo implements orders.Repository.
type OrderRepo struct{ s *Store }

func (r *OrderRepo) Insert(ctx context.Context, o *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer r.s.lock()()
	st := r.s.st

	if _, taken := st.byNumber[o.OrderNumber]; taken {
		return apperr.ErrNumberingConflict
	}
	if _, taken := st.byGateway[o.GatewayOrderID]; taken {
		return errors.Errorf("memstore: gateway order id %s already used", o.GatewayOrderID)
	}

	prevOrderID, prevItemID := st.nextOrderID, st.nextItemID
	st.nextOrderID++
	o.ID = st.nextOrderID
	o.Version = 1
	for i := range o.Items {
		st.nextItemID++
		o.Items[i].ID = st.nextItemID
		o.Items[i].OrderID = o.ID
	}

	st.orders[o.ID] = o.Clone()
	st.byNumber[o.OrderNumber] = o.ID
	st.byGateway[o.GatewayOrderID] = o.ID

	id, number, gw := o.ID, o.OrderNumber, o.GatewayOrderID
	r.s.onRollback(func() {
		delete(st.orders, id)
		delete(st.byNumber, number)
		delete(st.byGateway, gw)
		st.nextOrderID, st.nextItemID = prevOrderID, prevItemID
	})
	return nil
}

func (r *OrderRepo) FindByNumber(_ context.Context, number string) (*models.Order, error) {
	defer r.s.lock()()
	id, ok := r.s.st.byNumber[number]
	if !ok {
		return nil, apperr.ErrOrderNotFound
	}
	return r.s.st.orders[id].Clone(), nil
}

func (r *OrderRepo) FindByGatewayOrderID(_ context.Context, gatewayOrderID string) (*models.Order, error) {
	defer r.s.lock()()
	id, ok := r.s.st.byGateway[gatewayOrderID]
	if !ok {
		return nil, apperr.ErrOrderNotFound
	}
	return r.s.st.orders[id].Clone(), nil
}

func (r *OrderRepo) List(_ context.Context, f orders.Filter) ([]models.Order, error) {
	defer r.s.lock()()

	var out []models.Order
	for _, o := range r.s.st.orders {
		if f.UserID != 0 && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *o.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, f.Offset, f.Limit), nil
}

func (r *OrderRepo) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	defer r.s.lock()()

	var out []models.Order
	for _, o := range r.s.st.orders {
		if o.Status != models.OrderPending || !o.CreatedAt.Before(cutoff) {
			continue
		}
		if o.PaymentStatus != models.PaymentPending && o.PaymentStatus != models.PaymentFailed {
			continue
		}
		out = append(out, *o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, 0, limit), nil
}

// Update is the optimistic check-and-set on Version. Items are never rewritten.
func (r *OrderRepo) Update(ctx context.Context, o *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer r.s.lock()()

	stored, ok := r.s.st.orders[o.ID]
	if !ok {
		return apperr.ErrOrderNotFound
	}
	if stored.Version != o.Version {
		return apperr.ErrOptimisticLock
	}

	prev := stored
	next := o.Clone()
	next.Items = stored.Items
	next.Version = stored.Version + 1
	r.s.st.orders[o.ID] = next
	o.Version = next.Version

	r.s.onRollback(func() {
		r.s.st.orders[prev.ID] = prev
		o.Version = prev.Version
	})
	return nil
}

func page(list []models.Order, offset, limit int) []models.Order {
	if offset >= len(list) {
		return []models.Order{}
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}
