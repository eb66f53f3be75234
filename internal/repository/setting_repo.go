package repository

import (
	"context"

	"biliticket/invitehub/internal/model"
)

// SettingRepository stores raw JSON setting values by key.
type SettingRepository interface {
	All(ctx context.Context) ([]model.Setting, error)
	Save(ctx context.Context, setting *model.Setting) error
}
