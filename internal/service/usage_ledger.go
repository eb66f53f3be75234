package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"biliticket/invitehub/internal/model"
	"biliticket/invitehub/internal/repository"
)

// UsageLedger records and reports code validation attempts.
type UsageLedger interface {
	Record(ctx context.Context, codeID *uuid.UUID, ip string, outcome model.UsageOutcome, userID *string) error
	StatsFor(ctx context.Context, codeID *uuid.UUID) (model.UsageStats, error)
	Attempts(ctx context.Context, filter repository.UsageFilter) ([]model.UsageAttempt, error)
}

type usageLedger struct {
	usage repository.UsageRepository
	now   Clock
}

func NewUsageLedger(usage repository.UsageRepository, now Clock) UsageLedger {
	if now == nil {
		now = SystemClock
	}
	return &usageLedger{usage: usage, now: now}
}

// newAttempt stamps a ledger row; Consume builds its success row the same way.
func newAttempt(codeID *uuid.UUID, ip string, outcome model.UsageOutcome, userID *string, at time.Time) *model.UsageAttempt {
	return &model.UsageAttempt{
		ID:          uuid.New(),
		CodeID:      codeID,
		IPAddress:   ip,
		Outcome:     outcome,
		UserID:      userID,
		AttemptedAt: at,
	}
}

func (l *usageLedger) Record(ctx context.Context, codeID *uuid.UUID, ip string, outcome model.UsageOutcome, userID *string) error {
	if outcome != model.OutcomeSuccess {
		userID = nil
	}
	if err := l.usage.Record(ctx, newAttempt(codeID, ip, outcome, userID, l.now())); err != nil {
		return storageError("record usage", err)
	}
	return nil
}

func (l *usageLedger) StatsFor(ctx context.Context, codeID *uuid.UUID) (model.UsageStats, error) {
	stats, err := l.usage.Stats(ctx, codeID)
	if err != nil {
		return nil, storageError("usage stats", err)
	}
	return stats, nil
}

const maxAttemptsPage = 500

func (l *usageLedger) Attempts(ctx context.Context, filter repository.UsageFilter) ([]model.UsageAttempt, error) {
	if filter.Limit <= 0 || filter.Limit > maxAttemptsPage {
		filter.Limit = maxAttemptsPage
	}
	if !filter.Since.IsZero() && !filter.Until.IsZero() && !filter.Since.Before(filter.Until) {
		return nil, ErrInvalidInput
	}
	attempts, err := l.usage.Query(ctx, filter)
	if err != nil {
		return nil, storageError("query usage", err)
	}
	return attempts, nil
}
