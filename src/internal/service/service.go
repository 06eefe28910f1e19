package service

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/ce-fello/barter-service/src/internal/api/apiErrors"
	"github.com/ce-fello/barter-service/src/internal/model"
	"github.com/ce-fello/barter-service/src/internal/store"
	"github.com/google/uuid"

	"go.uber.org/zap"
)

const (
	MaxMessageLen        = 500
	MaxCommentLen        = 500
	MinReportDescription = 10
	MaxReportDescription = 1000
	DefaultPageLimit     = 10
	MaxPageLimit         = 100
	MaxPage              = 1_000_000
)

type SkillCatalog interface {
	GetSkill(ctx context.Context, skillID string) (model.Skill, error)
}

type ConversationBridge interface {
	EnsureConversation(ctx context.Context, userA, userB, barterID string) (model.Conversation, error)
}

// Notifier is fire-and-forget: implementations must not block the caller
// and have no way to fail the triggering operation.
type Notifier interface {
	Notify(ctx context.Context, userID, event string, payload map[string]string)
}

type Service struct {
	repo     store.Repository
	skills   SkillCatalog
	chat     ConversationBridge
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewService(repo store.Repository, skills SkillCatalog, chat ConversationBridge, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		skills:   skills,
		chat:     chat,
		notifier: notifier,
		log:      logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
}

func errForbidden() error {
	return apiErrors.New(apiErrors.Forbidden, "you are not allowed to perform this action")
}

func errValidation(msg string) error {
	return apiErrors.New(apiErrors.Validation, msg)
}

func notFound(err error, what string) error {
	if errors.Is(err, model.ErrNotFound) {
		return apiErrors.New(apiErrors.NotFound, what+" not found")
	}
	return err
}

func tooLong(s string, max int) bool {
	return utf8.RuneCountInString(s) > max
}

func normalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	// keeps (page-1)*limit well inside int range
	if page > MaxPage {
		page = MaxPage
	}
	return page, limit
}

func paginate(page, limit, total int) model.Pagination {
	return model.Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}
}

func (s *Service) notify(ctx context.Context, userID, event string, payload map[string]string) {
	if s.notifier == nil || userID == "" {
		return
	}
	s.notifier.Notify(ctx, userID, event, payload)
}

func barterPayload(b model.BarterRequest, actorID string) map[string]string {
	return map[string]string{
		"barter_id": b.ID,
		"actor_id":  actorID,
		"status":    string(b.Status),
	}
}
