package store

import (
	"context"

	"github.com/ce-fello/barter-service/src/internal/model"

	"go.uber.org/zap"
)

func (r *Repositories) CreateReport(ctx context.Context, rp model.Report) error {
	r.Log.Debug("CreateReport: start", zap.String("barter_id", rp.BarterID), zap.String("reporter", rp.ReportingUserID))
	_, err := r.DB.NamedExecContext(ctx, `
		INSERT INTO reports (id, barter_id, reporting_user_id, reported_user_id, reason, description, created_at)
		VALUES (:id, :barter_id, :reporting_user_id, :reported_user_id, :reason, :description, :created_at)`, rp)
	if err != nil {
		r.Log.Error("CreateReport: insert failed", zap.Error(err))
		return err
	}
	r.Log.Info("CreateReport: success", zap.String("report_id", rp.ID), zap.String("reason", string(rp.Reason)))
	return nil
}
