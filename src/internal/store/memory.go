package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ce-fello/barter-service/src/internal/model"
	"github.com/google/uuid"

	"go.uber.org/zap"
)

var (
	_ Repository = (*Memory)(nil)
	_ Repository = (*Repositories)(nil)
)

// Memory is a process-local Repository. Barter mutations are serialized per
// record through a dedicated mutex; mu only guards the maps themselves.
type Memory struct {
	log *zap.Logger

	mu            sync.RWMutex
	skills        map[string]model.Skill
	barters       map[string]model.BarterRequest
	openTuples    map[string]string
	reviews       map[string]model.Review
	reports       []model.Report
	conversations map[string]model.Conversation
	notifications []model.Notification

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewMemory(logger *zap.Logger) *Memory {
	return &Memory{
		log:           logger,
		skills:        make(map[string]model.Skill),
		barters:       make(map[string]model.BarterRequest),
		openTuples:    make(map[string]string),
		reviews:       make(map[string]model.Review),
		conversations: make(map[string]model.Conversation),
		locks:         make(map[string]*sync.Mutex),
	}
}

func (m *Memory) PutSkill(s model.Skill) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skills[s.SkillID] = s
}

func (m *Memory) GetSkill(_ context.Context, skillID string) (model.Skill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.skills[skillID]
	if !ok {
		return model.Skill{}, model.ErrNotFound
	}
	return s, nil
}

func (m *Memory) recordLock(id string) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func cloneBarter(b model.BarterRequest) model.BarterRequest {
	if b.RejectionReason != nil {
		s := *b.RejectionReason
		b.RejectionReason = &s
	}
	if b.CounterOffer != nil {
		c := *b.CounterOffer
		b.CounterOffer = &c
	}
	if b.ConversationRef != nil {
		s := *b.ConversationRef
		b.ConversationRef = &s
	}
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		b.CompletedAt = &t
	}
	return b
}

func (m *Memory) CreateBarter(_ context.Context, b model.BarterRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := b.TupleKey()
	if b.Status.Open() {
		if _, taken := m.openTuples[key]; taken {
			m.log.Debug("CreateBarter: open tuple exists", zap.String("tuple", key))
			return model.ErrDuplicate
		}
		m.openTuples[key] = b.ID
	}
	m.barters[b.ID] = cloneBarter(b)
	m.log.Info("CreateBarter: success", zap.String("barter_id", b.ID))
	return nil
}

func (m *Memory) GetBarter(_ context.Context, barterID string) (model.BarterRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.barters[barterID]
	if !ok {
		return model.BarterRequest{}, model.ErrNotFound
	}
	return cloneBarter(b), nil
}

func (m *Memory) UpdateBarter(_ context.Context, barterID string, mutate MutateFunc) (model.BarterRequest, error) {
	l := m.recordLock(barterID)
	l.Lock()
	defer l.Unlock()

	m.mu.RLock()
	current, ok := m.barters[barterID]
	m.mu.RUnlock()
	if !ok {
		return model.BarterRequest{}, model.ErrNotFound
	}

	b := cloneBarter(current)
	if err := mutate(&b); err != nil {
		return model.BarterRequest{}, err
	}
	b.Version = current.Version + 1

	m.mu.Lock()
	if current.Status.Open() && !b.Status.Open() {
		if m.openTuples[current.TupleKey()] == barterID {
			delete(m.openTuples, current.TupleKey())
		}
	}
	m.barters[barterID] = cloneBarter(b)
	m.mu.Unlock()

	m.log.Info("UpdateBarter: success", zap.String("barter_id", barterID), zap.String("status", string(b.Status)), zap.Int("version", b.Version))
	return b, nil
}

func (m *Memory) ListBarters(_ context.Context, q model.BarterQuery) ([]model.BarterRequest, int, error) {
	if err := checkPage(q.Limit, q.Offset); err != nil {
		return nil, 0, err
	}
	m.mu.RLock()
	var matched []model.BarterRequest
	for _, b := range m.barters {
		if q.Matches(b) {
			matched = append(matched, cloneBarter(b))
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	return window(matched, q.Limit, q.Offset), len(matched), nil
}

// window returns the [offset, offset+limit) slice of items, never nil.
func window[T any](items []T, limit, offset int) []T {
	total := len(items)
	if offset >= total {
		return []T{}
	}
	end := total
	if limit < total-offset {
		end = offset + limit
	}
	return items[offset:end]
}

func (m *Memory) CountBartersByStatus(_ context.Context, userID string) ([]model.StatusCount, error) {
	type key struct {
		role   model.Role
		status model.Status
	}
	counts := make(map[key]int)

	m.mu.RLock()
	for _, b := range m.barters {
		if b.SenderID == userID {
			counts[key{model.RoleSender, b.Status}]++
		}
		if b.ReceiverID == userID {
			counts[key{model.RoleReceiver, b.Status}]++
		}
	}
	m.mu.RUnlock()

	out := make([]model.StatusCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, model.StatusCount{Role: k.role, Status: k.status, Count: n})
	}
	return out, nil
}

func reviewKey(barterID, reviewerID string) string {
	return barterID + "|" + reviewerID
}

func (m *Memory) CreateReview(_ context.Context, r model.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := reviewKey(r.BarterID, r.ReviewerID)
	if _, exists := m.reviews[k]; exists {
		return model.ErrDuplicate
	}
	m.reviews[k] = r
	return nil
}

func (m *Memory) GetReview(_ context.Context, barterID, reviewerID string) (model.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reviews[reviewKey(barterID, reviewerID)]
	if !ok {
		return model.Review{}, model.ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListReviewsFor(_ context.Context, revieweeID string, limit, offset int) ([]model.Review, int, float64, error) {
	return m.listReviews(func(r model.Review) bool { return r.RevieweeID == revieweeID }, limit, offset)
}

func (m *Memory) ListReviewsBy(_ context.Context, reviewerID string, limit, offset int) ([]model.Review, int, float64, error) {
	return m.listReviews(func(r model.Review) bool { return r.ReviewerID == reviewerID }, limit, offset)
}

func (m *Memory) listReviews(match func(model.Review) bool, limit, offset int) ([]model.Review, int, float64, error) {
	if err := checkPage(limit, offset); err != nil {
		return nil, 0, 0, err
	}
	m.mu.RLock()
	var matched []model.Review
	sum := 0
	for _, r := range m.reviews {
		if match(r) {
			matched = append(matched, r)
			sum += r.Rating
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	avg := 0.0
	if total > 0 {
		avg = float64(sum) / float64(total)
	}
	return window(matched, limit, offset), total, avg, nil
}

func (m *Memory) CreateReport(_ context.Context, r model.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

func (m *Memory) EnsureConversation(_ context.Context, userA, userB, barterID string) (model.Conversation, error) {
	a, b := model.ParticipantKey(userA, userB)
	k := a + "|" + b

	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[k]
	if !ok {
		c = model.Conversation{ID: uuid.New().String(), UserA: a, UserB: b, CreatedAt: time.Now().UTC()}
	}
	c.BarterID = barterID
	m.conversations[k] = c
	return c, nil
}

func (m *Memory) CreateNotification(_ context.Context, n model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *Memory) ListNotifications(_ context.Context, userID string, limit int) ([]model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.Notification{}
	for i := len(m.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		if m.notifications[i].UserID == userID {
			out = append(out, cloneNotification(m.notifications[i]))
		}
	}
	return out, nil
}

func (m *Memory) CountUnreadNotifications(_ context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, item := range m.notifications {
		if item.UserID == userID && !item.IsRead {
			n++
		}
	}
	return n, nil
}

func (m *Memory) MarkNotificationRead(_ context.Context, userID, notificationID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		n := &m.notifications[i]
		if n.ID != notificationID || n.UserID != userID {
			continue
		}
		if !n.IsRead {
			markRead(n, at)
		}
		return nil
	}
	return model.ErrNotFound
}

func (m *Memory) MarkAllNotificationsRead(_ context.Context, userID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for i := range m.notifications {
		n := &m.notifications[i]
		if n.UserID == userID && !n.IsRead {
			markRead(n, at)
			count++
		}
	}
	return count, nil
}

func markRead(n *model.Notification, at time.Time) {
	n.IsRead = true
	n.ReadAt = &at
}

func cloneNotification(n model.Notification) model.Notification {
	if n.ReadAt != nil {
		t := *n.ReadAt
		n.ReadAt = &t
	}
	return n
}
