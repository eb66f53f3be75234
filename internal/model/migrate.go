package model

import "gorm.io/gorm"

// AutoMigrate runs GORM auto-migration for all models. code_usage references
// invite_codes with ON DELETE CASCADE, so invite_codes must exist first.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Setting{},
		&InviteCode{},
		&UsageAttempt{},
	)
}
