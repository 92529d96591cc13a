package mysqlstore

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/01moynul/taptosell-orders/internal/apperr"
	"github.com/01moynul/taptosell-orders/internal/models"
)

// NotificationRepo implements notify.Inbox.
type NotificationRepo struct{ s *Store }

// Add inserts a notification. A second insert for the same event and user is
// swallowed by the unique key and reported as false.
func (r *NotificationRepo) Add(ctx context.Context, n *models.Notification) (bool, error) {
	res, err := sqlx.NamedExecContext(ctx, r.s.ext, `
		INSERT INTO notifications (user_id, event_id, message, link, is_read, created_at)
		VALUES (:user_id, :event_id, :message, :link, :is_read, :created_at)`, n)
	if err != nil {
		if isDuplicate(err, "uq_notifications_event_user") {
			return false, nil
		}
		return false, errors.Wrap(err, "insert notification")
	}
	if n.ID, err = res.LastInsertId(); err != nil {
		return false, errors.Wrap(err, "insert notification: last id")
	}
	return true, nil
}

// ListForUser fetches the most recent notifications, showing unread ones first.
func (r *NotificationRepo) ListForUser(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	list := []models.Notification{}
	err := sqlx.SelectContext(ctx, r.s.ext, &list, `
		SELECT id, user_id, event_id, message, link, is_read, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY is_read ASC, created_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	return list, nil
}

// MarkRead flags one notification as read, but only if it belongs to userID.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID, id int64) error {
	res, err := r.s.ext.ExecContext(ctx, "UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return errors.Wrap(err, "mark notification read")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "mark notification read: rows affected")
	}
	if n > 0 {
		return nil
	}

	// Already-read rows also report zero affected rows.
	var found int
	if err := sqlx.GetContext(ctx, r.s.ext, &found,
		"SELECT COUNT(*) FROM notifications WHERE id = ? AND user_id = ?", id, userID); err != nil {
		return errors.Wrap(err, "mark notification read: lookup")
	}
	if found == 0 {
		return apperr.ErrNotificationNotFound
	}
	return nil
}
