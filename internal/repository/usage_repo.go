package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"biliticket/invitehub/internal/model"
)

// UsageFilter narrows an attempt query. Zero fields are ignored; the time range
// is [Since, Until).
type UsageFilter struct {
	CodeID    *uuid.UUID
	IPAddress string
	Outcome   model.UsageOutcome
	Since     time.Time
	Until     time.Time
	Limit     int
}

// UsageRepository is the append-only attempt ledger.
type UsageRepository interface {
	Record(ctx context.Context, attempt *model.UsageAttempt) error
	// CountFailures counts non-success attempts from ip strictly after since.
	CountFailures(ctx context.Context, ip string, since time.Time) (int64, error)
	// Stats counts attempts per outcome, for one code or all codes when codeID is nil.
	Stats(ctx context.Context, codeID *uuid.UUID) (model.UsageStats, error)
	Query(ctx context.Context, filter UsageFilter) ([]model.UsageAttempt, error)
}
