package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/ce-fello/barter-service/src/internal/model"

	"go.uber.org/zap"
)

type notificationRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Event     string    `db:"event"`
	Payload   []byte       `db:"payload"`
	ReadAt    sql.NullTime `db:"read_at"`
	CreatedAt time.Time    `db:"created_at"`
}

func (r *Repositories) CreateNotification(ctx context.Context, n model.Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, event, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`, n.ID, n.UserID, n.Event, string(payload), n.CreatedAt)
	if err != nil {
		r.Log.Error("CreateNotification: insert failed", zap.String("user", n.UserID), zap.Error(err))
		return err
	}
	r.Log.Debug("CreateNotification: success", zap.String("user", n.UserID), zap.String("event", n.Event))
	return nil
}

func (r *Repositories) ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	var rows []notificationRow
	if err := r.DB.SelectContext(ctx, &rows, `
		SELECT id, user_id, event, payload, read_at, created_at FROM notifications
		WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`, userID, limit); err != nil {
		r.Log.Error("ListNotifications: query failed", zap.Error(err))
		return nil, err
	}
	out := make([]model.Notification, 0, len(rows))
	for _, row := range rows {
		n := model.Notification{ID: row.ID, UserID: row.UserID, Event: row.Event, CreatedAt: row.CreatedAt}
		if row.ReadAt.Valid {
			t := row.ReadAt.Time
			n.IsRead, n.ReadAt = true, &t
		}
		if len(row.Payload) > 0 {
			if err := json.Unmarshal(row.Payload, &n.Payload); err != nil {
				r.Log.Warn("ListNotifications: bad payload", zap.String("notification_id", row.ID), zap.Error(err))
			}
		}
		out = append(out, n)
	}
	return out, nil
}

func (r *Repositories) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND read_at IS NULL`, userID); err != nil {
		r.Log.Error("CountUnreadNotifications: query failed", zap.Error(err))
		return 0, err
	}
	return n, nil
}

func (r *Repositories) MarkNotificationRead(ctx context.Context, userID, notificationID string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE notifications SET read_at=COALESCE(read_at, $3)
		WHERE id=$1 AND user_id=$2`, notificationID, userID, at)
	if err != nil {
		r.Log.Error("MarkNotificationRead: update failed", zap.String("notification_id", notificationID), zap.Error(err))
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		r.Log.Debug("MarkNotificationRead: not found", zap.String("notification_id", notificationID), zap.String("user", userID))
		return model.ErrNotFound
	}
	return nil
}

func (r *Repositories) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read_at=$2 WHERE user_id=$1 AND read_at IS NULL`, userID, at)
	if err != nil {
		r.Log.Error("MarkAllNotificationsRead: update failed", zap.String("user", userID), zap.Error(err))
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	r.Log.Debug("MarkAllNotificationsRead: success", zap.String("user", userID), zap.Int64("count", affected))
	return int(affected), nil
}
