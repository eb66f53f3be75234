package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"biliticket/invitehub/internal/model"
)

type sqlSettingRepository struct {
	db *gorm.DB
}

func NewSQLSettingRepository(db *gorm.DB) SettingRepository {
	return &sqlSettingRepository{db: db}
}

func (r *sqlSettingRepository) All(ctx context.Context) ([]model.Setting, error) {
	var settings []model.Setting
	if err := r.db.WithContext(ctx).Order("name").Find(&settings).Error; err != nil {
		return nil, err
	}
	return settings, nil
}

func (r *sqlSettingRepository) Save(ctx context.Context, setting *model.Setting) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(setting).Error
}
