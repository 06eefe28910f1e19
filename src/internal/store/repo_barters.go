package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ce-fello/barter-service/src/internal/model"

	"go.uber.org/zap"
)

const barterColumns = `id, sender_id, receiver_id, offered_skill_id, requested_skill_id, message, status,
	rejection_reason, counter_message, counter_skill_id, counter_created_at, conversation_ref,
	completed_at, tuple_key, version, created_at, updated_at`

type barterRow struct {
	ID               string         `db:"id"`
	SenderID         string         `db:"sender_id"`
	ReceiverID       string         `db:"receiver_id"`
	OfferedSkillID   string         `db:"offered_skill_id"`
	RequestedSkillID string         `db:"requested_skill_id"`
	Message          string         `db:"message"`
	Status           string         `db:"status"`
	RejectionReason  sql.NullString `db:"rejection_reason"`
	CounterMessage   sql.NullString `db:"counter_message"`
	CounterSkillID   sql.NullString `db:"counter_skill_id"`
	CounterCreatedAt sql.NullTime   `db:"counter_created_at"`
	ConversationRef  sql.NullString `db:"conversation_ref"`
	CompletedAt      sql.NullTime   `db:"completed_at"`
	TupleKey         string         `db:"tuple_key"`
	Version          int            `db:"version"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func toRow(b model.BarterRequest) barterRow {
	row := barterRow{
		ID:               b.ID,
		SenderID:         b.SenderID,
		ReceiverID:       b.ReceiverID,
		OfferedSkillID:   b.OfferedSkillID,
		RequestedSkillID: b.RequestedSkillID,
		Message:          b.Message,
		Status:           string(b.Status),
		TupleKey:         b.TupleKey(),
		Version:          b.Version,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
	if b.RejectionReason != nil {
		row.RejectionReason = sql.NullString{String: *b.RejectionReason, Valid: true}
	}
	if b.CounterOffer != nil {
		row.CounterMessage = sql.NullString{String: b.CounterOffer.Message, Valid: true}
		row.CounterSkillID = sql.NullString{String: b.CounterOffer.OfferedSkillID, Valid: true}
		row.CounterCreatedAt = sql.NullTime{Time: b.CounterOffer.CreatedAt, Valid: true}
	}
	if b.ConversationRef != nil {
		row.ConversationRef = sql.NullString{String: *b.ConversationRef, Valid: true}
	}
	if b.CompletedAt != nil {
		row.CompletedAt = sql.NullTime{Time: *b.CompletedAt, Valid: true}
	}
	return row
}

func (row barterRow) toModel() model.BarterRequest {
	b := model.BarterRequest{
		ID:               row.ID,
		SenderID:         row.SenderID,
		ReceiverID:       row.ReceiverID,
		OfferedSkillID:   row.OfferedSkillID,
		RequestedSkillID: row.RequestedSkillID,
		Message:          row.Message,
		Status:           model.Status(row.Status),
		Version:          row.Version,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
	if row.RejectionReason.Valid {
		s := row.RejectionReason.String
		b.RejectionReason = &s
	}
	if row.CounterSkillID.Valid {
		b.CounterOffer = &model.CounterOffer{
			Message:        row.CounterMessage.String,
			OfferedSkillID: row.CounterSkillID.String,
			CreatedAt:      row.CounterCreatedAt.Time,
		}
	}
	if row.ConversationRef.Valid {
		s := row.ConversationRef.String
		b.ConversationRef = &s
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time
		b.CompletedAt = &t
	}
	return b
}

func (r *Repositories) CreateBarter(ctx context.Context, b model.BarterRequest) error {
	r.Log.Debug("CreateBarter: start", zap.String("barter_id", b.ID), zap.String("sender", b.SenderID), zap.String("receiver", b.ReceiverID))

	_, err := r.DB.NamedExecContext(ctx, `
		INSERT INTO barter_requests (`+barterColumns+`)
		VALUES (:id, :sender_id, :receiver_id, :offered_skill_id, :requested_skill_id, :message, :status,
			:rejection_reason, :counter_message, :counter_skill_id, :counter_created_at, :conversation_ref,
			:completed_at, :tuple_key, :version, :created_at, :updated_at)`, toRow(b))
	if err != nil {
		if isUniqueViolation(err) {
			r.Log.Debug("CreateBarter: open tuple exists", zap.String("tuple", b.TupleKey()))
			return model.ErrDuplicate
		}
		r.Log.Error("CreateBarter: insert failed", zap.String("barter_id", b.ID), zap.Error(err))
		return err
	}

	r.Log.Info("CreateBarter: success", zap.String("barter_id", b.ID))
	return nil
}

func (r *Repositories) GetBarter(ctx context.Context, barterID string) (model.BarterRequest, error) {
	r.Log.Debug("GetBarter: start", zap.String("barter_id", barterID))
	var row barterRow
	if err := r.DB.GetContext(ctx, &row, `SELECT `+barterColumns+` FROM barter_requests WHERE id=$1`, barterID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.Log.Debug("GetBarter: not found", zap.String("barter_id", barterID))
			return model.BarterRequest{}, model.ErrNotFound
		}
		r.Log.Error("GetBarter: query failed", zap.String("barter_id", barterID), zap.Error(err))
		return model.BarterRequest{}, err
	}
	return row.toModel(), nil
}

// UpdateBarter locks the row with SELECT ... FOR UPDATE, applies mutate and
// writes the result back in the same transaction. Concurrent callers on the
// same id queue on the row lock and observe the committed state.
func (r *Repositories) UpdateBarter(ctx context.Context, barterID string, mutate MutateFunc) (model.BarterRequest, error) {
	r.Log.Debug("UpdateBarter: start", zap.String("barter_id", barterID))

	tx, err := r.BeginTx(ctx)
	if err != nil {
		r.Log.Error("UpdateBarter: begin tx failed", zap.Error(err))
		return model.BarterRequest{}, err
	}
	defer r.rollback(tx, "UpdateBarter")

	var row barterRow
	if err := tx.GetContext(ctx, &row, `SELECT `+barterColumns+` FROM barter_requests WHERE id=$1 FOR UPDATE`, barterID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.Log.Debug("UpdateBarter: not found", zap.String("barter_id", barterID))
			return model.BarterRequest{}, model.ErrNotFound
		}
		r.Log.Error("UpdateBarter: select for update failed", zap.String("barter_id", barterID), zap.Error(err))
		return model.BarterRequest{}, err
	}

	b := row.toModel()
	if err := mutate(&b); err != nil {
		r.Log.Debug("UpdateBarter: mutation refused", zap.String("barter_id", barterID), zap.Error(err))
		return model.BarterRequest{}, err
	}
	b.Version = row.Version + 1

	_, err = tx.NamedExecContext(ctx, `
		UPDATE barter_requests
		SET status=:status, rejection_reason=:rejection_reason, counter_message=:counter_message,
			counter_skill_id=:counter_skill_id, counter_created_at=:counter_created_at,
			conversation_ref=:conversation_ref, completed_at=:completed_at, version=:version,
			updated_at=:updated_at
		WHERE id=:id`, toRow(b))
	if err != nil {
		r.Log.Error("UpdateBarter: update failed", zap.String("barter_id", barterID), zap.Error(err))
		return model.BarterRequest{}, err
	}

	if err := tx.Commit(); err != nil {
		r.Log.Error("UpdateBarter: commit failed", zap.String("barter_id", barterID), zap.Error(err))
		return model.BarterRequest{}, err
	}

	r.Log.Info("UpdateBarter: success", zap.String("barter_id", barterID), zap.String("status", string(b.Status)), zap.Int("version", b.Version))
	return b, nil
}

func filterClause(f model.ListFilter) (string, error) {
	switch f {
	case model.FilterReceivedPending:
		return `receiver_id=$1 AND status='pending'`, nil
	case model.FilterSent:
		return `sender_id=$1`, nil
	case model.FilterActive:
		return `(sender_id=$1 OR receiver_id=$1) AND status='accepted'`, nil
	case model.FilterCompleted:
		return `(sender_id=$1 OR receiver_id=$1) AND status='completed'`, nil
	case model.FilterAll:
		return `(sender_id=$1 OR receiver_id=$1)`, nil
	}
	return "", fmt.Errorf("unknown filter %q", f)
}

// whereClause builds the WHERE body for q. The user id is always $1.
func whereClause(q model.BarterQuery) (string, []any, error) {
	where, err := filterClause(q.Filter)
	if err != nil {
		return "", nil, err
	}
	args := []any{q.UserID}
	if q.Status != "" {
		args = append(args, string(q.Status))
		where += fmt.Sprintf(` AND status=$%d`, len(args))
	}
	switch q.Type {
	case model.TypeSent:
		where += ` AND sender_id=$1`
	case model.TypeReceived:
		where += ` AND receiver_id=$1`
	}
	return where, args, nil
}

func (r *Repositories) ListBarters(ctx context.Context, q model.BarterQuery) ([]model.BarterRequest, int, error) {
	r.Log.Debug("ListBarters: start", zap.String("user", q.UserID), zap.String("filter", string(q.Filter)),
		zap.String("status", string(q.Status)), zap.String("type", string(q.Type)))
	if err := checkPage(q.Limit, q.Offset); err != nil {
		return nil, 0, err
	}
	where, args, err := whereClause(q)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.GetContext(ctx, &total, `SELECT COUNT(*) FROM barter_requests WHERE `+where, args...); err != nil {
		r.Log.Error("ListBarters: count failed", zap.Error(err))
		return nil, 0, err
	}

	n := len(args)
	var rows []barterRow
	if err := r.DB.SelectContext(ctx, &rows, fmt.Sprintf(`
		SELECT `+barterColumns+` FROM barter_requests
		WHERE `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, n+1, n+2), append(args, q.Limit, q.Offset)...); err != nil {
		r.Log.Error("ListBarters: query failed", zap.Error(err))
		return nil, 0, err
	}

	out := make([]model.BarterRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	r.Log.Debug("ListBarters: success", zap.Int("count", len(out)), zap.Int("total", total))
	return out, total, nil
}
