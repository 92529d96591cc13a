package memstore

import (
	"context"
	"sort"

	"github.com/01moynul/taptosell-orders/internal/apperr"
	"github.com/01moynul/taptosell-orders/internal/models"
)

// NotificationRepo implements notify.Inbox.
type NotificationRepo struct{ s *Store }

func (r *NotificationRepo) Add(_ context.Context, n *models.Notification) (bool, error) {
	defer r.s.lock()()
	st := r.s.st
	for _, existing := range st.notifications {
		if existing.UserID == n.UserID && existing.EventID == n.EventID {
			return false, nil
		}
	}
	st.nextNotifyID++
	n.ID = st.nextNotifyID
	stored := *n
	st.notifications = append(st.notifications, &stored)
	return true, nil
}

// ListForUser returns unread notifications first, newest first within each group.
func (r *NotificationRepo) ListForUser(_ context.Context, userID int64, limit int) ([]models.Notification, error) {
	defer r.s.lock()()
	out := []models.Notification{}
	for _, n := range r.s.st.notifications {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsRead != out[j].IsRead {
			return !out[i].IsRead
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *NotificationRepo) MarkRead(_ context.Context, userID, id int64) error {
	defer r.s.lock()()
	for _, n := range r.s.st.notifications {
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			return nil
		}
	}
	return apperr.ErrNotificationNotFound
}
