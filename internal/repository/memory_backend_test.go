package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"biliticket/invitehub/internal/model"
)

func newCode(hash string, uses int) *model.InviteCode {
	return &model.InviteCode{
		ID:            uuid.New(),
		CodeHash:      hash,
		UsageLimit:    uses,
		UsesRemaining: uses,
		Role:          "subscriber",
		Active:        true,
	}
}

func TestMemoryInviteCodes_CreateRejectsDuplicateHash(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryInviteCodeRepository(NewMemoryBackend())

	if err := repo.Create(ctx, newCode("h1", 1)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := repo.Create(ctx, newCode("h1", 3))
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("second Create err = %v, want ErrDuplicatedKey", err)
	}
}

func TestMemoryInviteCodes_ConsumeExhausts(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	codes := NewMemoryInviteCodeRepository(b)
	usage := NewMemoryUsageRepository(b)

	c := newCode("h", 2)
	if err := codes.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i, wantActive := range []bool{true, false} {
		got, err := codes.Consume(ctx, c.ID, &model.UsageAttempt{ID: uuid.New(), Outcome: model.OutcomeSuccess})
		if err != nil {
			t.Fatalf("Consume #%d: %v", i, err)
		}
		if got.Active != wantActive {
			t.Errorf("Consume #%d active = %v, want %v", i, got.Active, wantActive)
		}
		if got.UsesRemaining+got.TotalUses != got.UsageLimit {
			t.Errorf("Consume #%d broke counters: %+v", i, got)
		}
	}

	if _, err := codes.Consume(ctx, c.ID, &model.UsageAttempt{ID: uuid.New()}); !errors.Is(err, ErrNotConsumable) {
		t.Fatalf("third Consume err = %v, want ErrNotConsumable", err)
	}
	stats, _ := usage.Stats(ctx, &c.ID)
	if stats[model.OutcomeSuccess] != 2 {
		t.Errorf("success count = %d, want 2", stats[model.OutcomeSuccess])
	}
}

func TestMemoryInviteCodes_ConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	codes := NewMemoryInviteCodeRepository(NewMemoryBackend())
	c := newCode("h", 1)
	if err := codes.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := codes.Consume(ctx, c.ID, &model.UsageAttempt{ID: uuid.New()}); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if won != 1 {
		t.Fatalf("winners = %d, want 1", won)
	}
}

func TestMemoryInviteCodes_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	codes := NewMemoryInviteCodeRepository(b)
	usage := NewMemoryUsageRepository(b)

	keep, drop := newCode("keep", 1), newCode("drop", 1)
	for _, c := range []*model.InviteCode{keep, drop} {
		if err := codes.Create(ctx, c); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := usage.Record(ctx, &model.UsageAttempt{ID: uuid.New(), CodeID: &c.ID, Outcome: model.OutcomeExpired}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := usage.Record(ctx, &model.UsageAttempt{ID: uuid.New(), Outcome: model.OutcomeInvalid}); err != nil {
		t.Fatalf("Record orphan: %v", err)
	}

	if err := codes.Delete(ctx, drop.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := codes.Delete(ctx, drop.ID); err != nil {
		t.Fatalf("second Delete should be a no-op, got %v", err)
	}

	rows, _ := usage.Query(ctx, UsageFilter{})
	if len(rows) != 2 {
		t.Fatalf("remaining rows = %d, want 2", len(rows))
	}
	for _, r := range rows {
		if r.CodeID != nil && *r.CodeID == drop.ID {
			t.Fatalf("usage row for deleted code survived")
		}
	}
}

func TestMemoryUsage_CountFailuresWindow(t *testing.T) {
	ctx := context.Background()
	usage := NewMemoryUsageRepository(NewMemoryBackend())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	record := func(ip string, outcome model.UsageOutcome, ago time.Duration) {
		t.Helper()
		err := usage.Record(ctx, &model.UsageAttempt{ID: uuid.New(), IPAddress: ip, Outcome: outcome, AttemptedAt: now.Add(-ago)})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	record("10.0.0.1", model.OutcomeInvalid, time.Minute)
	record("10.0.0.1", model.OutcomeExpired, 30*time.Minute)
	record("10.0.0.1", model.OutcomeInvalid, 2*time.Hour)
	record("10.0.0.1", model.OutcomeSuccess, time.Minute)
	record("10.0.0.2", model.OutcomeInvalid, time.Minute)

	n, err := usage.CountFailures(ctx, "10.0.0.1", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountFailures: %v", err)
	}
	if n != 2 {
		t.Fatalf("failures = %d, want 2", n)
	}
}

func TestMemoryUsage_QueryFilters(t *testing.T) {
	ctx := context.Background()
	usage := NewMemoryUsageRepository(NewMemoryBackend())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_ = usage.Record(ctx, &model.UsageAttempt{
			ID:          uuid.New(),
			IPAddress:   "1.1.1.1",
			Outcome:     model.OutcomeInvalid,
			AttemptedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}

	rows, err := usage.Query(ctx, UsageFilter{
		IPAddress: "1.1.1.1",
		Since:     base.Add(time.Hour),
		Until:     base.Add(4 * time.Hour),
		Limit:     2,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if !rows[0].AttemptedAt.Equal(base.Add(3 * time.Hour)) {
		t.Errorf("first row at %v, want newest in range", rows[0].AttemptedAt)
	}
}

func TestMemorySettings_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySettingRepository(NewMemoryBackend())

	if got, err := repo.All(ctx); err != nil || len(got) != 0 {
		t.Fatalf("All on empty store = %v, %v", got, err)
	}
	_ = repo.Save(ctx, &model.Setting{Key: "rate_limit_attempts", Value: "3"})
	_ = repo.Save(ctx, &model.Setting{Key: "rate_limit_attempts", Value: "5"})

	got, err := repo.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(got) != 1 || got[0].Value != "5" {
		t.Fatalf("settings = %+v, want one row with value 5", got)
	}
}
