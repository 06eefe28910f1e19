package store

import (
	"context"

	"github.com/ce-fello/barter-service/src/internal/model"

	"go.uber.org/zap"
)

func (r *Repositories) CountBartersByStatus(ctx context.Context, userID string) ([]model.StatusCount, error) {
	r.Log.Debug("CountBartersByStatus: start", zap.String("user", userID))
	query := `
		SELECT 'sender' AS role, status, COUNT(*) AS count
		FROM barter_requests
		WHERE sender_id = $1
		GROUP BY status
		UNION ALL
		SELECT 'receiver' AS role, status, COUNT(*) AS count
		FROM barter_requests
		WHERE receiver_id = $1
		GROUP BY status
	`
	var counts []model.StatusCount
	if err := r.DB.SelectContext(ctx, &counts, query, userID); err != nil {
		r.Log.Error("CountBartersByStatus: query failed", zap.Error(err))
		return nil, err
	}
	r.Log.Debug("CountBartersByStatus: success", zap.Int("groups", len(counts)))
	return counts, nil
}
