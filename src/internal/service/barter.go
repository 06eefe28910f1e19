package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ce-fello/barter-service/src/internal/api/apiErrors"
	"github.com/ce-fello/barter-service/src/internal/model"

	"go.uber.org/zap"
)

type CreateBarterInput struct {
	SenderID         string
	ReceiverID       string
	OfferedSkillID   string
	RequestedSkillID string
	Message          string
}

type transition struct {
	name    string
	to      model.Status
	allowed func(b model.BarterRequest, callerID string) bool
	apply   func(b *model.BarterRequest, now time.Time)
}

func receiverOnly(b model.BarterRequest, callerID string) bool { return callerID == b.ReceiverID }
func senderOnly(b model.BarterRequest, callerID string) bool   { return callerID == b.SenderID }
func participant(b model.BarterRequest, callerID string) bool  { return b.IsParticipant(callerID) }

// legalFrom reports whether t may run from s. A transition without a target
// status edits a pending barter in place.
func (t transition) legalFrom(s model.Status) bool {
	if t.to == "" {
		return s == model.StatusPending
	}
	return model.CanTransition(s, t.to)
}

func (t transition) check(b model.BarterRequest, callerID string) error {
	if !t.allowed(b, callerID) {
		return errForbidden()
	}
	if !t.legalFrom(b.Status) {
		return apiErrors.New(apiErrors.InvalidState, fmt.Sprintf("cannot %s a barter that is %s", t.name, b.Status))
	}
	return nil
}

func (s *Service) checkSkill(ctx context.Context, skillID, ownerID, label string) error {
	sk, err := s.skills.GetSkill(ctx, skillID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return errValidation(label + " skill not found")
		}
		return err
	}
	if sk.OwnerID != ownerID {
		return errValidation(label + " skill does not belong to the expected user")
	}
	if !sk.IsActive {
		return errValidation(label + " skill is not active")
	}
	return nil
}

func (s *Service) CreateBarter(ctx context.Context, in CreateBarterInput) (model.BarterRequest, error) {
	if in.SenderID == "" {
		return model.BarterRequest{}, errForbidden()
	}
	if in.ReceiverID == "" || in.OfferedSkillID == "" || in.RequestedSkillID == "" {
		return model.BarterRequest{}, errValidation("receiver_id, offered_skill_id and requested_skill_id required")
	}
	if in.SenderID == in.ReceiverID {
		return model.BarterRequest{}, errValidation("cannot barter with yourself")
	}
	msg := strings.TrimSpace(in.Message)
	if tooLong(msg, MaxMessageLen) {
		return model.BarterRequest{}, errValidation(fmt.Sprintf("message must be at most %d characters", MaxMessageLen))
	}

	if err := s.checkSkill(ctx, in.OfferedSkillID, in.SenderID, "offered"); err != nil {
		return model.BarterRequest{}, err
	}
	if err := s.checkSkill(ctx, in.RequestedSkillID, in.ReceiverID, "requested"); err != nil {
		return model.BarterRequest{}, err
	}

	now := s.now()
	b := model.BarterRequest{
		ID:               s.newID(),
		SenderID:         in.SenderID,
		ReceiverID:       in.ReceiverID,
		OfferedSkillID:   in.OfferedSkillID,
		RequestedSkillID: in.RequestedSkillID,
		Message:          msg,
		Status:           model.StatusPending,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.CreateBarter(ctx, b); err != nil {
		if errors.Is(err, model.ErrDuplicate) {
			return model.BarterRequest{}, apiErrors.New(apiErrors.Conflict, "an open barter request for these skills already exists")
		}
		return model.BarterRequest{}, err
	}

	s.log.Info("barter created", zap.String("barter_id", b.ID), zap.String("sender", b.SenderID), zap.String("receiver", b.ReceiverID))
	s.notify(ctx, b.ReceiverID, model.EventBarterCreated, barterPayload(b, b.SenderID))
	return b, nil
}

func (s *Service) GetBarter(ctx context.Context, barterID, callerID string) (model.BarterRequest, error) {
	if callerID == "" {
		return model.BarterRequest{}, errForbidden()
	}
	b, err := s.repo.GetBarter(ctx, barterID)
	if err != nil {
		return model.BarterRequest{}, notFound(err, "barter")
	}
	if !b.IsParticipant(callerID) {
		return model.BarterRequest{}, errForbidden()
	}
	return b, nil
}

// precheck reads the committed record and runs t's checks without taking the
// row lock, so requests that are bound to fail never reach external I/O.
func (s *Service) precheck(ctx context.Context, barterID, callerID string, t transition) (model.BarterRequest, error) {
	if callerID == "" {
		return model.BarterRequest{}, errForbidden()
	}
	b, err := s.repo.GetBarter(ctx, barterID)
	if err != nil {
		return model.BarterRequest{}, notFound(err, "barter")
	}
	if err := t.check(b, callerID); err != nil {
		return model.BarterRequest{}, err
	}
	return b, nil
}

// apply runs t under the store's per-record lock. Checks are repeated on the
// locked record so the loser of a race observes INVALID_STATE.
func (s *Service) apply(ctx context.Context, barterID, callerID string, t transition) (model.BarterRequest, error) {
	if callerID == "" {
		return model.BarterRequest{}, errForbidden()
	}
	b, err := s.repo.UpdateBarter(ctx, barterID, func(b *model.BarterRequest) error {
		if err := t.check(*b, callerID); err != nil {
			return err
		}
		now := s.now()
		if t.to != "" {
			b.Status = t.to
		}
		if t.apply != nil {
			t.apply(b, now)
		}
		b.UpdatedAt = now
		return nil
	})
	if err != nil {
		return model.BarterRequest{}, notFound(err, "barter")
	}
	s.log.Info("barter transition", zap.String("barter_id", b.ID), zap.String("op", t.name), zap.String("status", string(b.Status)), zap.String("caller", callerID))
	return b, nil
}

func (s *Service) AcceptBarter(ctx context.Context, barterID, callerID string) (model.BarterRequest, error) {
	t := transition{name: "accept", to: model.StatusAccepted, allowed: receiverOnly}
	current, err := s.precheck(ctx, barterID, callerID, t)
	if err != nil {
		return model.BarterRequest{}, err
	}

	conv, err := s.chat.EnsureConversation(ctx, current.SenderID, current.ReceiverID, current.ID)
	if err != nil {
		s.log.Error("accept: ensure conversation failed", zap.String("barter_id", barterID), zap.Error(err))
		return model.BarterRequest{}, fmt.Errorf("ensure conversation: %w", err)
	}
	t.apply = func(b *model.BarterRequest, _ time.Time) {
		ref := conv.ID
		b.ConversationRef = &ref
	}

	b, err := s.apply(ctx, barterID, callerID, t)
	if err != nil {
		return model.BarterRequest{}, err
	}
	s.notify(ctx, b.SenderID, model.EventBarterAccepted, barterPayload(b, callerID))
	return b, nil
}

func (s *Service) RejectBarter(ctx context.Context, barterID, callerID, reason string) (model.BarterRequest, error) {
	reason = strings.TrimSpace(reason)
	if tooLong(reason, MaxMessageLen) {
		return model.BarterRequest{}, errValidation(fmt.Sprintf("reason must be at most %d characters", MaxMessageLen))
	}

	t := transition{
		name:    "reject",
		to:      model.StatusRejected,
		allowed: receiverOnly,
		apply: func(b *model.BarterRequest, _ time.Time) {
			if reason != "" {
				r := reason
				b.RejectionReason = &r
			}
		},
	}
	b, err := s.apply(ctx, barterID, callerID, t)
	if err != nil {
		return model.BarterRequest{}, err
	}
	s.notify(ctx, b.SenderID, model.EventBarterRejected, barterPayload(b, callerID))
	return b, nil
}

func (s *Service) CounterOffer(ctx context.Context, barterID, callerID, message, offeredSkillID string) (model.BarterRequest, error) {
	message = strings.TrimSpace(message)
	if offeredSkillID == "" {
		return model.BarterRequest{}, errValidation("offered_skill_id required")
	}
	if tooLong(message, MaxMessageLen) {
		return model.BarterRequest{}, errValidation(fmt.Sprintf("message must be at most %d characters", MaxMessageLen))
	}

	t := transition{name: "counter", allowed: receiverOnly}
	current, err := s.precheck(ctx, barterID, callerID, t)
	if err != nil {
		return model.BarterRequest{}, err
	}
	if err := s.checkSkill(ctx, offeredSkillID, current.ReceiverID, "counter-offered"); err != nil {
		return model.BarterRequest{}, err
	}

	t.apply = func(b *model.BarterRequest, now time.Time) {
		b.CounterOffer = &model.CounterOffer{
			Message:        message,
			OfferedSkillID: offeredSkillID,
			CreatedAt:      now,
		}
	}
	b, err := s.apply(ctx, barterID, callerID, t)
	if err != nil {
		return model.BarterRequest{}, err
	}
	s.notify(ctx, b.SenderID, model.EventBarterCountered, barterPayload(b, callerID))
	return b, nil
}

func (s *Service) CancelBarter(ctx context.Context, barterID, callerID string) (model.BarterRequest, error) {
	t := transition{name: "cancel", to: model.StatusCancelled, allowed: senderOnly}
	b, err := s.apply(ctx, barterID, callerID, t)
	if err != nil {
		return model.BarterRequest{}, err
	}
	s.notify(ctx, b.ReceiverID, model.EventBarterCancelled, barterPayload(b, callerID))
	return b, nil
}

// CompleteBarter closes an accepted barter. Completion is what makes both
// participants eligible to review each other.
func (s *Service) CompleteBarter(ctx context.Context, barterID, callerID string) (model.BarterRequest, error) {
	t := transition{
		name:    "complete",
		to:      model.StatusCompleted,
		allowed: participant,
		apply: func(b *model.BarterRequest, now time.Time) {
			done := now
			b.CompletedAt = &done
		},
	}
	b, err := s.apply(ctx, barterID, callerID, t)
	if err != nil {
		return model.BarterRequest{}, err
	}
	s.notify(ctx, b.Counterpart(callerID), model.EventBarterCompleted, barterPayload(b, callerID))
	return b, nil
}
