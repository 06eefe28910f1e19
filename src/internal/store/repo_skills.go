package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ce-fello/barter-service/src/internal/model"

	"go.uber.org/zap"
)

func (r *Repositories) GetSkill(ctx context.Context, skillID string) (model.Skill, error) {
	r.Log.Debug("GetSkill: start", zap.String("skill", skillID))
	var s model.Skill
	if err := r.DB.GetContext(ctx, &s, `SELECT skill_id, owner_id, title, is_active FROM skills WHERE skill_id=$1`, skillID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.Log.Debug("GetSkill: not found", zap.String("skill", skillID))
			return model.Skill{}, model.ErrNotFound
		}
		r.Log.Error("GetSkill: query failed", zap.Error(err))
		return model.Skill{}, err
	}
	r.Log.Debug("GetSkill: success", zap.String("skill", skillID), zap.Bool("is_active", s.IsActive))
	return s, nil
}

// UpsertSkill mirrors a catalog entry into the local skills table.
func (r *Repositories) UpsertSkill(ctx context.Context, s model.Skill) error {
	_, err := r.DB.NamedExecContext(ctx, `
		INSERT INTO skills (skill_id, owner_id, title, is_active)
		VALUES (:skill_id, :owner_id, :title, :is_active)
		ON CONFLICT (skill_id) DO UPDATE
		SET owner_id=EXCLUDED.owner_id, title=EXCLUDED.title, is_active=EXCLUDED.is_active`, s)
	if err != nil {
		r.Log.Error("UpsertSkill: failed", zap.String("skill", s.SkillID), zap.Error(err))
		return err
	}
	r.Log.Debug("UpsertSkill: success", zap.String("skill", s.SkillID))
	return nil
}
