package service

import (
	"context"
	"fmt"

	"github.com/ce-fello/barter-service/src/internal/model"

	"go.uber.org/zap"
)

const notificationFeedLimit = 50

// ListBarters reads straight from the store so a view always reflects the
// last committed transition.
func (s *Service) ListBarters(ctx context.Context, userID string, view model.BarterView, page, limit int) (model.BarterPage, error) {
	if userID == "" {
		return model.BarterPage{}, errForbidden()
	}
	if view.Filter == "" {
		view.Filter = model.FilterAll
	}
	if !view.Filter.Valid() {
		return model.BarterPage{}, errValidation(fmt.Sprintf("unknown filter %q", view.Filter))
	}
	if view.Status != "" && !view.Status.Valid() {
		return model.BarterPage{}, errValidation(fmt.Sprintf("unknown status %q", view.Status))
	}
	if view.Type != "" && !view.Type.Valid() {
		return model.BarterPage{}, errValidation(fmt.Sprintf("unknown type %q", view.Type))
	}
	page, limit = normalizePage(page, limit)

	items, total, err := s.repo.ListBarters(ctx, model.BarterQuery{
		UserID: userID,
		Filter: view.Filter,
		Status: view.Status,
		Type:   view.Type,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		s.log.Error("ListBarters: query failed", zap.String("user_id", userID), zap.Error(err))
		return model.BarterPage{}, err
	}
	return model.BarterPage{Barters: items, Pagination: paginate(page, limit, total)}, nil
}

func (s *Service) Stats(ctx context.Context, userID string) (model.BarterStats, error) {
	if userID == "" {
		return model.BarterStats{}, errForbidden()
	}
	counts, err := s.repo.CountBartersByStatus(ctx, userID)
	if err != nil {
		s.log.Error("Stats: query failed", zap.String("user_id", userID), zap.Error(err))
		return model.BarterStats{}, err
	}
	return aggregateStats(counts), nil
}

func aggregateStats(counts []model.StatusCount) model.BarterStats {
	st := model.BarterStats{ByStatus: make(map[model.Status]int, len(model.AllStatuses))}
	for _, status := range model.AllStatuses {
		st.ByStatus[status] = 0
	}
	for _, c := range counts {
		st.ByStatus[c.Status] += c.Count
		st.Total += c.Count
		switch c.Role {
		case model.RoleSender:
			st.Sent += c.Count
		case model.RoleReceiver:
			st.Received += c.Count
			if c.Status == model.StatusPending {
				st.PendingReceived += c.Count
			}
		}
	}
	return st
}

func (s *Service) ListNotifications(ctx context.Context, userID string) (model.NotificationFeed, error) {
	if userID == "" {
		return model.NotificationFeed{}, errForbidden()
	}
	items, err := s.repo.ListNotifications(ctx, userID, notificationFeedLimit)
	if err != nil {
		s.log.Error("ListNotifications: query failed", zap.String("user_id", userID), zap.Error(err))
		return model.NotificationFeed{}, err
	}
	unread, err := s.repo.CountUnreadNotifications(ctx, userID)
	if err != nil {
		s.log.Error("ListNotifications: unread count failed", zap.String("user_id", userID), zap.Error(err))
		return model.NotificationFeed{}, err
	}
	return model.NotificationFeed{Notifications: items, UnreadCount: unread}, nil
}

// MarkNotificationRead only touches the caller's own inbox. Someone else's
// notification is reported as not found. Marking twice keeps the first read time.
func (s *Service) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	if userID == "" {
		return errForbidden()
	}
	if err := s.repo.MarkNotificationRead(ctx, userID, notificationID, s.now()); err != nil {
		return notFound(err, "notification")
	}
	return nil
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, errForbidden()
	}
	n, err := s.repo.MarkAllNotificationsRead(ctx, userID, s.now())
	if err != nil {
		s.log.Error("MarkAllNotificationsRead: update failed", zap.String("user_id", userID), zap.Error(err))
		return 0, err
	}
	s.log.Debug("notifications marked read", zap.String("user_id", userID), zap.Int("count", n))
	return n, nil
}
