package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ce-fello/barter-service/src/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"go.uber.org/zap"
)

// MutateFunc edits a barter while its row is locked. Returning an error
// aborts the update and leaves the stored record untouched.
type MutateFunc func(b *model.BarterRequest) error

type Repository interface {
	GetSkill(ctx context.Context, skillID string) (model.Skill, error)

	CreateBarter(ctx context.Context, b model.BarterRequest) error
	GetBarter(ctx context.Context, barterID string) (model.BarterRequest, error)
	UpdateBarter(ctx context.Context, barterID string, mutate MutateFunc) (model.BarterRequest, error)
	ListBarters(ctx context.Context, q model.BarterQuery) ([]model.BarterRequest, int, error)
	CountBartersByStatus(ctx context.Context, userID string) ([]model.StatusCount, error)

	CreateReview(ctx context.Context, r model.Review) error
	GetReview(ctx context.Context, barterID, reviewerID string) (model.Review, error)
	ListReviewsFor(ctx context.Context, revieweeID string, limit, offset int) ([]model.Review, int, float64, error)
	ListReviewsBy(ctx context.Context, reviewerID string, limit, offset int) ([]model.Review, int, float64, error)

	CreateReport(ctx context.Context, r model.Report) error

	EnsureConversation(ctx context.Context, userA, userB, barterID string) (model.Conversation, error)

	CreateNotification(ctx context.Context, n model.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string, at time.Time) error
	MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int, error)
}

type Repositories struct {
	DB  *sqlx.DB
	Log *zap.Logger
}

func NewRepositories(db *sqlx.DB, logger *zap.Logger) *Repositories {
	return &Repositories{DB: db, Log: logger}
}

func (r *Repositories) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	r.Log.Debug("BeginTx called")
	return r.DB.BeginTxx(ctx, &sql.TxOptions{})
}

func (r *Repositories) rollback(tx *sqlx.Tx, op string) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		r.Log.Warn(op+": rollback failed", zap.Error(err))
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func checkPage(limit, offset int) error {
	if limit < 0 || offset < 0 {
		return fmt.Errorf("invalid page window: limit=%d offset=%d", limit, offset)
	}
	return nil
}
