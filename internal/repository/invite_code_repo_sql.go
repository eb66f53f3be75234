package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"biliticket/invitehub/internal/model"
)

type sqlInviteCodeRepository struct {
	db *gorm.DB
}

func NewSQLInviteCodeRepository(db *gorm.DB) InviteCodeRepository {
	return &sqlInviteCodeRepository{db: db}
}

func (r *sqlInviteCodeRepository) Create(ctx context.Context, code *model.InviteCode) error {
	return r.db.WithContext(ctx).Create(code).Error
}

func (r *sqlInviteCodeRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.InviteCode, error) {
	var code model.InviteCode
	if err := r.db.WithContext(ctx).First(&code, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *sqlInviteCodeRepository) GetActiveByHash(ctx context.Context, hash string) (*model.InviteCode, error) {
	var code model.InviteCode
	if err := r.db.WithContext(ctx).
		Where("code_hash = ? AND active = ?", hash, true).
		First(&code).Error; err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *sqlInviteCodeRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).
		Model(&model.InviteCode{}).
		Where("code_hash = ?", hash).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *sqlInviteCodeRepository) List(ctx context.Context, includeInactive bool) ([]model.InviteCode, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if !includeInactive {
		q = q.Where("active = ?", true)
	}
	var codes []model.InviteCode
	if err := q.Find(&codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *sqlInviteCodeRepository) Update(ctx context.Context, id uuid.UUID, fn func(code *model.InviteCode) error) (*model.InviteCode, error) {
	var code model.InviteCode
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&code, "id = ?", id).Error; err != nil {
			return err
		}
		if err := fn(&code); err != nil {
			return err
		}
		return tx.Save(&code).Error
	})
	if err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *sqlInviteCodeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	// The FK cascades on postgres; deleting usage rows explicitly keeps
	// engines without enforced constraints consistent.
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code_id = ?", id).Delete(&model.UsageAttempt{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.InviteCode{}, "id = ?", id).Error
	})
}

func (r *sqlInviteCodeRepository) Consume(ctx context.Context, id uuid.UUID, attempt *model.UsageAttempt) (*model.InviteCode, error) {
	var code model.InviteCode
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND active = ?", id, true).
			First(&code).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotConsumable
			}
			return err
		}
		if code.UsesRemaining <= 0 {
			return ErrNotConsumable
		}

		code.UsesRemaining--
		code.TotalUses++
		code.Active = code.UsesRemaining > 0
		if err := tx.Save(&code).Error; err != nil {
			return err
		}

		attempt.CodeID = &code.ID
		return tx.Create(attempt).Error
	})
	if err != nil {
		return nil, err
	}
	return &code, nil
}
