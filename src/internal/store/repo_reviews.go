package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ce-fello/barter-service/src/internal/model"

	"go.uber.org/zap"
)

func (r *Repositories) CreateReview(ctx context.Context, rv model.Review) error {
	r.Log.Debug("CreateReview: start", zap.String("barter_id", rv.BarterID), zap.String("reviewer", rv.ReviewerID))
	_, err := r.DB.NamedExecContext(ctx, `
		INSERT INTO reviews (id, barter_id, reviewer_id, reviewee_id, rating, comment, created_at)
		VALUES (:id, :barter_id, :reviewer_id, :reviewee_id, :rating, :comment, :created_at)`, rv)
	if err != nil {
		if isUniqueViolation(err) {
			r.Log.Debug("CreateReview: already reviewed", zap.String("barter_id", rv.BarterID), zap.String("reviewer", rv.ReviewerID))
			return model.ErrDuplicate
		}
		r.Log.Error("CreateReview: insert failed", zap.Error(err))
		return err
	}
	r.Log.Info("CreateReview: success", zap.String("review_id", rv.ID), zap.Int("rating", rv.Rating))
	return nil
}

func (r *Repositories) GetReview(ctx context.Context, barterID, reviewerID string) (model.Review, error) {
	r.Log.Debug("GetReview: start", zap.String("barter_id", barterID), zap.String("reviewer", reviewerID))
	var rv model.Review
	err := r.DB.GetContext(ctx, &rv, `
		SELECT id, barter_id, reviewer_id, reviewee_id, rating, comment, created_at
		FROM reviews WHERE barter_id=$1 AND reviewer_id=$2`, barterID, reviewerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Review{}, model.ErrNotFound
		}
		r.Log.Error("GetReview: query failed", zap.Error(err))
		return model.Review{}, err
	}
	return rv, nil
}

func (r *Repositories) ListReviewsFor(ctx context.Context, revieweeID string, limit, offset int) ([]model.Review, int, float64, error) {
	return r.listReviews(ctx, "reviewee_id", revieweeID, limit, offset)
}

func (r *Repositories) ListReviewsBy(ctx context.Context, reviewerID string, limit, offset int) ([]model.Review, int, float64, error) {
	return r.listReviews(ctx, "reviewer_id", reviewerID, limit, offset)
}

// listReviews pages reviews matching column=userID. column is one of the
// fixed names above, never caller input.
func (r *Repositories) listReviews(ctx context.Context, column, userID string, limit, offset int) ([]model.Review, int, float64, error) {
	r.Log.Debug("listReviews: start", zap.String(column, userID))
	if err := checkPage(limit, offset); err != nil {
		return nil, 0, 0, err
	}

	var agg struct {
		Total   int     `db:"total"`
		Average float64 `db:"average"`
	}
	if err := r.DB.GetContext(ctx, &agg, `
		SELECT COUNT(*) AS total, COALESCE(AVG(rating), 0)::float8 AS average
		FROM reviews WHERE `+column+`=$1`, userID); err != nil {
		r.Log.Error("listReviews: aggregate failed", zap.Error(err))
		return nil, 0, 0, err
	}

	reviews := []model.Review{}
	if err := r.DB.SelectContext(ctx, &reviews, `
		SELECT id, barter_id, reviewer_id, reviewee_id, rating, comment, created_at
		FROM reviews WHERE `+column+`=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset); err != nil {
		r.Log.Error("listReviews: query failed", zap.Error(err))
		return nil, 0, 0, err
	}

	r.Log.Debug("listReviews: success", zap.Int("count", len(reviews)), zap.Int("total", agg.Total))
	return reviews, agg.Total, agg.Average, nil
}
