package model

import (
	"time"

	"github.com/google/uuid"
)

type UsageOutcome string

const (
	OutcomeSuccess   UsageOutcome = "success"
	OutcomeInvalid   UsageOutcome = "invalid"
	OutcomeExhausted UsageOutcome = "exhausted"
	OutcomeExpired   UsageOutcome = "expired"
)

// FailureOutcomes are the outcomes counted against an origin by the rate limiter.
var FailureOutcomes = []UsageOutcome{OutcomeInvalid, OutcomeExhausted, OutcomeExpired}

// AllOutcomes lists every outcome in reporting order.
var AllOutcomes = []UsageOutcome{OutcomeSuccess, OutcomeInvalid, OutcomeExhausted, OutcomeExpired}

// UsageAttempt is one append-only ledger row. CodeID is nil when the submitted
// code did not resolve; UserID is set only on success.
type UsageAttempt struct {
	ID          uuid.UUID    `gorm:"type:char(36);primaryKey" json:"id"`
	CodeID      *uuid.UUID   `gorm:"type:char(36);index" json:"code_id,omitempty"`
	IPAddress   string       `gorm:"type:varchar(45);not null;index:idx_code_usage_ip_time,priority:1" json:"ip_address"`
	Outcome     UsageOutcome `gorm:"type:varchar(16);not null;index" json:"outcome"`
	UserID      *string      `gorm:"type:varchar(64)" json:"user_id,omitempty"`
	AttemptedAt time.Time    `gorm:"not null;index:idx_code_usage_ip_time,priority:2" json:"attempted_at"`

	Code *InviteCode `gorm:"foreignKey:CodeID;constraint:OnDelete:CASCADE" json:"-"`
}

func (UsageAttempt) TableName() string { return "code_usage" }

// UsageStats maps every outcome to its attempt count.
type UsageStats map[UsageOutcome]int64

// NewUsageStats returns stats with every outcome present at zero.
func NewUsageStats() UsageStats {
	stats := make(UsageStats, len(AllOutcomes))
	for _, o := range AllOutcomes {
		stats[o] = 0
	}
	return stats
}
