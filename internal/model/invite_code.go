package model

import (
	"time"

	"github.com/google/uuid"
)

// InviteCode is a stored invitation. The plaintext is never persisted, only CodeHash.
//
// UsesRemaining + TotalUses always equals UsageLimit, and a code with no
// remaining uses is never active.
type InviteCode struct {
	ID            uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
	CodeHash      string     `gorm:"type:char(64);uniqueIndex;not null" json:"-"`
	UsageLimit    int        `gorm:"not null" json:"usage_limit"`
	UsesRemaining int        `gorm:"not null" json:"uses_remaining"`
	TotalUses     int        `gorm:"not null" json:"total_uses"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`
	Role          string     `gorm:"type:varchar(64);not null" json:"role"`
	Active        bool       `gorm:"not null;index" json:"active"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (InviteCode) TableName() string { return "invite_codes" }

// Exhausted reports whether every use has been consumed.
func (c *InviteCode) Exhausted() bool {
	return c.UsesRemaining <= 0
}

// ExpiredAt reports whether the code is past its expiry at the given instant.
func (c *InviteCode) ExpiredAt(now time.Time) bool {
	return c.ExpiryDate != nil && now.After(*c.ExpiryDate)
}

// View strips the hash for callers outside the registry.
func (c *InviteCode) View() CodeView {
	return CodeView{
		ID:            c.ID,
		UsageLimit:    c.UsageLimit,
		UsesRemaining: c.UsesRemaining,
		TotalUses:     c.TotalUses,
		ExpiryDate:    c.ExpiryDate,
		Role:          c.Role,
		CreatedAt:     c.CreatedAt,
		Active:        c.Active,
	}
}

// CodeView is the externally visible shape of an invite code.
type CodeView struct {
	ID            uuid.UUID  `json:"id"`
	UsageLimit    int        `json:"usage_limit"`
	UsesRemaining int        `json:"uses_remaining"`
	TotalUses     int        `json:"total_uses"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`
	Role          string     `json:"role"`
	CreatedAt     time.Time  `json:"created_at"`
	Active        bool       `json:"active"`
}

// GeneratedCode pairs a new code's id with its plaintext. The plaintext is only
// ever available in the response to the call that created it.
type GeneratedCode struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"code"`
}
