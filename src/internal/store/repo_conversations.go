package store

import (
	"context"

	"github.com/ce-fello/barter-service/src/internal/model"
	"github.com/google/uuid"

	"go.uber.org/zap"
)

// EnsureConversation returns the conversation between the two users,
// creating it on first use. An existing conversation is relinked to barterID.
func (r *Repositories) EnsureConversation(ctx context.Context, userA, userB, barterID string) (model.Conversation, error) {
	a, b := model.ParticipantKey(userA, userB)
	r.Log.Debug("EnsureConversation: start", zap.String("user_a", a), zap.String("user_b", b), zap.String("barter_id", barterID))

	var c model.Conversation
	err := r.DB.GetContext(ctx, &c, `
		INSERT INTO conversations (id, user_a, user_b, barter_id, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_a, user_b) DO UPDATE SET barter_id = EXCLUDED.barter_id
		RETURNING id, user_a, user_b, barter_id, created_at`, uuid.New().String(), a, b, barterID)
	if err != nil {
		r.Log.Error("EnsureConversation: upsert failed", zap.Error(err))
		return model.Conversation{}, err
	}
	r.Log.Info("EnsureConversation: success", zap.String("conversation_id", c.ID))
	return c, nil
}
