package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ce-fello/barter-service/src/internal/model"

	"go.uber.org/zap"
)

type SubmitReportInput struct {
	BarterID        string
	ReportingUserID string
	ReportedUserID  string
	Reason          model.ReportReason
	Description     string
}

// SubmitReport files a report against the other participant of a barter.
// Any status is accepted; only participation is checked.
func (s *Service) SubmitReport(ctx context.Context, in SubmitReportInput) (model.Report, error) {
	if in.ReportingUserID == "" {
		return model.Report{}, errForbidden()
	}
	if in.ReportedUserID == "" {
		return model.Report{}, errValidation("reported_user_id required")
	}
	if in.ReportingUserID == in.ReportedUserID {
		return model.Report{}, errValidation("cannot report yourself")
	}
	if !in.Reason.Valid() {
		return model.Report{}, errValidation(fmt.Sprintf("unknown report reason %q", in.Reason))
	}
	desc := strings.TrimSpace(in.Description)
	if n := utf8.RuneCountInString(desc); n < MinReportDescription || n > MaxReportDescription {
		return model.Report{}, errValidation(fmt.Sprintf("description must be between %d and %d characters", MinReportDescription, MaxReportDescription))
	}

	b, err := s.repo.GetBarter(ctx, in.BarterID)
	if err != nil {
		return model.Report{}, notFound(err, "barter")
	}
	if !b.IsParticipant(in.ReportingUserID) {
		return model.Report{}, errForbidden()
	}
	if !b.IsParticipant(in.ReportedUserID) {
		return model.Report{}, errValidation("reported user is not a participant of this barter")
	}

	r := model.Report{
		ID:              s.newID(),
		BarterID:        b.ID,
		ReportingUserID: in.ReportingUserID,
		ReportedUserID:  in.ReportedUserID,
		Reason:          in.Reason,
		Description:     desc,
		CreatedAt:       s.now(),
	}
	if err := s.repo.CreateReport(ctx, r); err != nil {
		s.log.Error("SubmitReport: insert failed", zap.String("barter_id", b.ID), zap.Error(err))
		return model.Report{}, err
	}
	s.log.Info("report filed", zap.String("report_id", r.ID), zap.String("barter_id", r.BarterID), zap.String("reason", string(r.Reason)))
	return r, nil
}
