package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ce-fello/barter-service/src/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newBarter(id, sender, receiver string, created time.Time) model.BarterRequest {
	return model.BarterRequest{
		ID:               id,
		SenderID:         sender,
		ReceiverID:       receiver,
		OfferedSkillID:   "skill-" + sender,
		RequestedSkillID: "skill-" + receiver,
		Status:           model.StatusPending,
		Version:          1,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
}

func TestMemory_CreateBarter_RejectsOpenDuplicateTuple(t *testing.T) {
	m := NewMemory(zap.NewNop())
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, m.CreateBarter(ctx, newBarter("b1", "alice", "bob", now)))

	mirrored := newBarter("b2", "bob", "alice", now)
	assert.ErrorIs(t, m.CreateBarter(ctx, mirrored), model.ErrDuplicate)
}

func TestMemory_CreateBarter_AllowsAfterTerminal(t *testing.T) {
	m := NewMemory(zap.NewNop())
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, m.CreateBarter(ctx, newBarter("b1", "alice", "bob", now)))
	_, err := m.UpdateBarter(ctx, "b1", func(b *model.BarterRequest) error {
		b.Status = model.StatusRejected
		return nil
	})
	require.NoError(t, err)

	assert.NoError(t, m.CreateBarter(ctx, newBarter("b2", "alice", "bob", now)))
}

func TestMemory_UpdateBarter_NotFound(t *testing.T) {
	m := NewMemory(zap.NewNop())

	_, err := m.UpdateBarter(context.Background(), "missing", func(*model.BarterRequest) error { return nil })

	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemory_UpdateBarter_RefusedMutationLeavesRecord(t *testing.T) {
	m := NewMemory(zap.NewNop())
	ctx := context.Background()
	require.NoError(t, m.CreateBarter(ctx, newBarter("b1", "alice", "bob", time.Now().UTC())))

	refusal := errors.New("refused")
	_, err := m.UpdateBarter(ctx, "b1", func(b *model.BarterRequest) error {
		b.Status = model.StatusAccepted
		return refusal
	})
	assert.ErrorIs(t, err, refusal)

	got, err := m.GetBarter(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, 1, got.Version)
}

func TestMemory_UpdateBarter_SerializesPerRecord(t *testing.T) {
	m := NewMemory(zap.NewNop())
	ctx := context.Background()
	require.NoError(t, m.CreateBarter(ctx, newBarter("b1", "alice", "bob", time.Now().UTC())))

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.UpdateBarter(ctx, "b1", func(b *model.BarterRequest) error {
				if b.Status != model.StatusPending {
					return errors.New("lost")
				}
				b.Status = model.StatusAccepted
				return nil
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	got, err := m.GetBarter(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, got.Status)
	assert.Equal(t, 2, got.Version)
}

func TestMemory_GetBarter_ReturnsCopy(t *testing.T) {
	m := NewMemory(zap.NewNop())
	ctx := context.Background()
	b := newBarter("b1", "alice", "bob", time.Now().UTC())
	reason := "busy"
	b.RejectionReason = &reason
	require.NoError(t, m.CreateBarter(ctx, b))

	got, err := m.GetBarter(ctx, "b1")
	require.NoError(t, err)
	*got.RejectionReason = "changed"

	again, err := m.GetBarter(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "busy", *again.RejectionReason)
}

func TestMemory_ListBarters_OrderAndPagination(t *testing.T) {
	m := NewMemory(zap.NewNop())
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		b := newBarter(fmt.Sprintf("b%d", i), "alice", "bob", base.Add(time.Duration(i)*time.Hour))
		b.OfferedSkillID = fmt.Sprintf("s%d", i)
		require.NoError(t, m.CreateBarter(ctx, b))
	}
	other := newBarter("x", "carol", "dave", base)
	require.NoError(t, m.CreateBarter(ctx, other))

	page, total, err := m.ListBarters(ctx, model.BarterQuery{UserID: "bob", Filter: model.FilterReceivedPending, Limit: 2, Offset: 0})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "b4", page[0].ID)
	assert.Equal(t, "b3", page[1].ID)

	last, _, err := m.ListBarters(ctx, model.BarterQuery{UserID: "bob", Filter: model.FilterReceivedPending, Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "b0", last[0].ID)

	empty, _, err := m.ListBarters(ctx, model.BarterQuery{UserID: "bob", Filter: model.FilterSent, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemory_CountBartersByStatus(t *testing.T) {
	m := NewMemory(zap.NewNop())
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, m.CreateBarter(ctx, newBarter("b1", "alice", "bob", now)))
	b2 := newBarter("b2", "carol", "alice", now)
	require.NoError(t, m.CreateBarter(ctx, b2))

	counts, err := m.CountBartersByStatus(ctx, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.StatusCount{
		{Role: model.RoleSender, Status: model.StatusPending, Count: 1},
		{Role: model.RoleReceiver, Status: model.StatusPending, Count: 1},
	}, counts)
}

func TestMemory_CreateReview_Unique(t *testing.T) {
	m := NewMemory(zap.NewNop())
	ctx := context.Background()
	r := model.Review{ID: "r1", BarterID: "b1", ReviewerID: "alice", RevieweeID: "bob", Rating: 4}

	require.NoError(t, m.CreateReview(ctx, r))
	r.ID = "r2"
	assert.ErrorIs(t, m.CreateReview(ctx, r), model.ErrDuplicate)

	got, err := m.GetReview(ctx, "b1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)
}

func TestMemory_ListReviewsFor_Average(t *testing.T) {
	m := NewMemory(zap.NewNop())
	ctx := context.Background()
	require.NoError(t, m.CreateReview(ctx, model.Review{ID: "r1", BarterID: "b1", ReviewerID: "alice", RevieweeID: "bob", Rating: 5}))
	require.NoError(t, m.CreateReview(ctx, model.Review{ID: "r2", BarterID: "b2", ReviewerID: "carol", RevieweeID: "bob", Rating: 2}))

	reviews, total, avg, err := m.ListReviewsFor(ctx, "bob", 10, 0)
	require.NoError(t, err)
	assert.Len(t, reviews, 2)
	assert.Equal(t, 2, total)
	assert.InDelta(t, 3.5, avg, 0.001)
}

func TestMemory_EnsureConversation_ReusesPair(t *testing.T) {
	m := NewMemory(zap.NewNop())
	ctx := context.Background()

	first, err := m.EnsureConversation(ctx, "bob", "alice", "b1")
	require.NoError(t, err)
	second, err := m.EnsureConversation(ctx, "alice", "bob", "b2")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "b2", second.BarterID)
	assert.Equal(t, "alice", second.UserA)
}

func TestMemory_ListNotifications_NewestFirst(t *testing.T) {
	m := NewMemory(zap.NewNop())
	ctx := context.Background()
	require.NoError(t, m.CreateNotification(ctx, model.Notification{ID: "n1", UserID: "bob", Event: "barter.created"}))
	require.NoError(t, m.CreateNotification(ctx, model.Notification{ID: "n2", UserID: "alice", Event: "barter.accepted"}))
	require.NoError(t, m.CreateNotification(ctx, model.Notification{ID: "n3", UserID: "bob", Event: "barter.cancelled"}))

	got, err := m.ListNotifications(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "n3", got[0].ID)
	assert.Equal(t, "n1", got[1].ID)
}

func TestMemory_RejectsNegativePageWindow(t *testing.T) {
	m := NewMemory(zap.NewNop())
	ctx := context.Background()
	require.NoError(t, m.CreateBarter(ctx, newBarter("b1", "alice", "bob", time.Now().UTC())))

	_, _, err := m.ListBarters(ctx, model.BarterQuery{UserID: "bob", Filter: model.FilterAll, Limit: 10, Offset: -10})
	assert.Error(t, err)

	_, _, _, err = m.ListReviewsFor(ctx, "bob", 10, -1)
	assert.Error(t, err)

	_, _, _, err = m.ListReviewsBy(ctx, "alice", -1, 0)
	assert.Error(t, err)
}

func TestMemory_ListBarters_StatusAndType(t *testing.T) {
	m := NewMemory(zap.NewNop())
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, m.CreateBarter(ctx, newBarter("b1", "alice", "bob", now)))
	require.NoError(t, m.CreateBarter(ctx, newBarter("b2", "carol", "alice", now)))
	_, err := m.UpdateBarter(ctx, "b2", func(b *model.BarterRequest) error {
		b.Status = model.StatusCancelled
		return nil
	})
	require.NoError(t, err)

	cancelled, total, err := m.ListBarters(ctx, model.BarterQuery{UserID: "alice", Filter: model.FilterAll, Status: model.StatusCancelled, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "b2", cancelled[0].ID)

	received, _, err := m.ListBarters(ctx, model.BarterQuery{UserID: "alice", Filter: model.FilterAll, Type: model.TypeReceived, Limit: 10})
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "b2", received[0].ID)
}

func TestMemory_ListReviewsBy(t *testing.T) {
	m := NewMemory(zap.NewNop())
	ctx := context.Background()
	require.NoError(t, m.CreateReview(ctx, model.Review{ID: "r1", BarterID: "b1", ReviewerID: "alice", RevieweeID: "bob", Rating: 5}))
	require.NoError(t, m.CreateReview(ctx, model.Review{ID: "r2", BarterID: "b2", ReviewerID: "alice", RevieweeID: "carol", Rating: 3}))
	require.NoError(t, m.CreateReview(ctx, model.Review{ID: "r3", BarterID: "b1", ReviewerID: "bob", RevieweeID: "alice", Rating: 1}))

	reviews, total, avg, err := m.ListReviewsBy(ctx, "alice", 1, 0)
	require.NoError(t, err)
	assert.Len(t, reviews, 1)
	assert.Equal(t, 2, total)
	assert.InDelta(t, 4.0, avg, 0.001)
}

func TestMemory_NotificationReadState(t *testing.T) {
	m := NewMemory(zap.NewNop())
	ctx := context.Background()
	first := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.CreateNotification(ctx, model.Notification{ID: "n1", UserID: "bob"}))
	require.NoError(t, m.CreateNotification(ctx, model.Notification{ID: "n2", UserID: "bob"}))
	require.NoError(t, m.CreateNotification(ctx, model.Notification{ID: "n3", UserID: "alice"}))

	require.NoError(t, m.MarkNotificationRead(ctx, "bob", "n1", first))
	require.NoError(t, m.MarkNotificationRead(ctx, "bob", "n1", first.Add(time.Hour)))
	assert.ErrorIs(t, m.MarkNotificationRead(ctx, "bob", "n3", first), model.ErrNotFound)

	unread, err := m.CountUnreadNotifications(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	got, err := m.ListNotifications(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[1].ReadAt)
	assert.Equal(t, first, *got[1].ReadAt)
	assert.False(t, got[0].IsRead)

	n, err := m.MarkAllNotificationsRead(ctx, "bob", first)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	unread, err = m.CountUnreadNotifications(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}
