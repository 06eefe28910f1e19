package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ce-fello/barter-service/src/internal/api/apiErrors"
	"github.com/ce-fello/barter-service/src/internal/model"

	"go.uber.org/zap"
)

type SubmitReviewInput struct {
	BarterID   string
	ReviewerID string
	Rating     int
	Comment    string
}

// CanReview never fails for a caller outside the barter; it reports them as
// not eligible instead.
func (s *Service) CanReview(ctx context.Context, barterID, callerID string) (model.ReviewEligibility, error) {
	b, err := s.repo.GetBarter(ctx, barterID)
	if err != nil {
		return model.ReviewEligibility{}, notFound(err, "barter")
	}
	if !b.IsParticipant(callerID) {
		return model.ReviewEligibility{}, nil
	}

	existing, err := s.repo.GetReview(ctx, barterID, callerID)
	switch {
	case err == nil:
		return model.ReviewEligibility{AlreadyReviewed: true, Review: &existing}, nil
	case !errors.Is(err, model.ErrNotFound):
		return model.ReviewEligibility{}, err
	}

	return model.ReviewEligibility{Eligible: b.Status == model.StatusCompleted}, nil
}

func (s *Service) SubmitReview(ctx context.Context, in SubmitReviewInput) (model.Review, error) {
	if in.ReviewerID == "" {
		return model.Review{}, errForbidden()
	}
	if in.Rating < 1 || in.Rating > 5 {
		return model.Review{}, errValidation("rating must be an integer between 1 and 5")
	}
	comment := strings.TrimSpace(in.Comment)
	if tooLong(comment, MaxCommentLen) {
		return model.Review{}, errValidation(fmt.Sprintf("comment must be at most %d characters", MaxCommentLen))
	}

	b, err := s.repo.GetBarter(ctx, in.BarterID)
	if err != nil {
		return model.Review{}, notFound(err, "barter")
	}
	if !b.IsParticipant(in.ReviewerID) {
		return model.Review{}, errForbidden()
	}
	if b.Status != model.StatusCompleted {
		return model.Review{}, apiErrors.New(apiErrors.InvalidState, "only completed barters can be reviewed")
	}

	r := model.Review{
		ID:         s.newID(),
		BarterID:   b.ID,
		ReviewerID: in.ReviewerID,
		RevieweeID: b.Counterpart(in.ReviewerID),
		Rating:     in.Rating,
		Comment:    comment,
		CreatedAt:  s.now(),
	}
	if err := s.repo.CreateReview(ctx, r); err != nil {
		if errors.Is(err, model.ErrDuplicate) {
			return model.Review{}, apiErrors.New(apiErrors.Conflict, "you have already reviewed this barter")
		}
		return model.Review{}, err
	}

	s.log.Info("review submitted", zap.String("review_id", r.ID), zap.String("barter_id", r.BarterID), zap.String("reviewer", r.ReviewerID))
	s.notify(ctx, r.RevieweeID, model.EventReviewReceived, map[string]string{
		"barter_id": r.BarterID,
		"review_id": r.ID,
		"actor_id":  r.ReviewerID,
		"rating":    strconv.Itoa(r.Rating),
	})
	return r, nil
}

func (s *Service) ListUserReviews(ctx context.Context, userID string, page, limit int) (model.ReviewPage, error) {
	if userID == "" {
		return model.ReviewPage{}, errValidation("user id required")
	}
	page, limit = normalizePage(page, limit)

	reviews, total, avg, err := s.repo.ListReviewsFor(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		s.log.Error("ListUserReviews: query failed", zap.String("user_id", userID), zap.Error(err))
		return model.ReviewPage{}, err
	}
	return model.ReviewPage{
		Reviews:       reviews,
		AverageRating: avg,
		Pagination:    paginate(page, limit, total),
	}, nil
}

// ListMyReviews lists reviews the user has written; AverageRating is the
// mean of the ratings they gave.
func (s *Service) ListMyReviews(ctx context.Context, userID string, page, limit int) (model.ReviewPage, error) {
	if userID == "" {
		return model.ReviewPage{}, errForbidden()
	}
	page, limit = normalizePage(page, limit)

	reviews, total, avg, err := s.repo.ListReviewsBy(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		s.log.Error("ListMyReviews: query failed", zap.String("user_id", userID), zap.Error(err))
		return model.ReviewPage{}, err
	}
	return model.ReviewPage{
		Reviews:       reviews,
		AverageRating: avg,
		Pagination:    paginate(page, limit, total),
	}, nil
}
