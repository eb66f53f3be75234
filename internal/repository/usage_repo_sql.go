package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"biliticket/invitehub/internal/model"
)

type sqlUsageRepository struct {
	db *gorm.DB
}

func NewSQLUsageRepository(db *gorm.DB) UsageRepository {
	return &sqlUsageRepository{db: db}
}

func (r *sqlUsageRepository) Record(ctx context.Context, attempt *model.UsageAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *sqlUsageRepository) CountFailures(ctx context.Context, ip string, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.UsageAttempt{}).
		Where("ip_address = ? AND outcome IN ? AND attempted_at > ?", ip, model.FailureOutcomes, since).
		Count(&n).Error
	return n, err
}

func (r *sqlUsageRepository) Stats(ctx context.Context, codeID *uuid.UUID) (model.UsageStats, error) {
	var rows []struct {
		Outcome model.UsageOutcome
		Total   int64
	}
	q := r.db.WithContext(ctx).
		Model(&model.UsageAttempt{}).
		Select("outcome, COUNT(*) AS total").
		Group("outcome")
	if codeID != nil {
		q = q.Where("code_id = ?", *codeID)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := model.NewUsageStats()
	for _, row := range rows {
		stats[row.Outcome] = row.Total
	}
	return stats, nil
}

func (r *sqlUsageRepository) Query(ctx context.Context, filter UsageFilter) ([]model.UsageAttempt, error) {
	q := r.db.WithContext(ctx).Order("attempted_at DESC")
	if filter.CodeID != nil {
		q = q.Where("code_id = ?", *filter.CodeID)
	}
	if filter.IPAddress != "" {
		q = q.Where("ip_address = ?", filter.IPAddress)
	}
	if filter.Outcome != "" {
		q = q.Where("outcome = ?", filter.Outcome)
	}
	if !filter.Since.IsZero() {
		q = q.Where("attempted_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("attempted_at < ?", filter.Until)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var attempts []model.UsageAttempt
	if err := q.Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}
