package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"biliticket/invitehub/internal/model"
)

func TestSQLInviteCodes_CreateRejectsDuplicateHash(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLInviteCodeRepository(newSQLiteDB(t))

	if err := repo.Create(ctx, newCode("h1", 1)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, newCode("h1", 3)); !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("second Create err = %v, want ErrDuplicatedKey", err)
	}
	exists, err := repo.ExistsByHash(ctx, "h1")
	if err != nil || !exists {
		t.Fatalf("ExistsByHash = %v, %v", exists, err)
	}
}

func TestSQLInviteCodes_ConsumeUntilExhausted(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	codes := NewSQLInviteCodeRepository(db)
	usage := NewSQLUsageRepository(db)

	c := newCode("single", 1)
	if err := codes.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}

	attempt := &model.UsageAttempt{
		ID:          uuid.New(),
		IPAddress:   "1.2.3.4",
		Outcome:     model.OutcomeSuccess,
		AttemptedAt: time.Now().UTC(),
	}
	got, err := codes.Consume(ctx, c.ID, attempt)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got.UsesRemaining != 0 || got.TotalUses != 1 || got.Active {
		t.Fatalf("after consume: %+v", got)
	}
	if attempt.CodeID == nil || *attempt.CodeID != c.ID {
		t.Fatalf("attempt not linked to code: %v", attempt.CodeID)
	}

	stored, err := codes.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.UsesRemaining != 0 || stored.Active {
		t.Fatalf("stored row not updated: %+v", stored)
	}
	if _, err := codes.GetActiveByHash(ctx, "single"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("exhausted code still active by hash, err = %v", err)
	}

	if _, err := codes.Consume(ctx, c.ID, &model.UsageAttempt{ID: uuid.New(), Outcome: model.OutcomeSuccess}); !errors.Is(err, ErrNotConsumable) {
		t.Fatalf("second Consume err = %v, want ErrNotConsumable", err)
	}
	if _, err := codes.Consume(ctx, uuid.New(), &model.UsageAttempt{ID: uuid.New()}); !errors.Is(err, ErrNotConsumable) {
		t.Fatalf("Consume of unknown code err = %v, want ErrNotConsumable", err)
	}

	stats, err := usage.Stats(ctx, &c.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[model.OutcomeSuccess] != 1 {
		t.Fatalf("success rows = %d, want 1 (failed consumes must roll back)", stats[model.OutcomeSuccess])
	}
}

func TestSQLInviteCodes_UpdateAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLInviteCodeRepository(newSQLiteDB(t))

	older, newer := newCode("older", 2), newCode("newer", 2)
	older.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)
	for _, c := range []*model.InviteCode{older, newer} {
		if err := repo.Create(ctx, c); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	updated, err := repo.Update(ctx, older.ID, func(c *model.InviteCode) error {
		c.Active = false
		c.Role = "editor"
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Active || updated.Role != "editor" {
		t.Fatalf("updated = %+v", updated)
	}

	errRejected := errors.New("rejected")
	if _, err := repo.Update(ctx, newer.ID, func(c *model.InviteCode) error {
		c.Role = "never"
		return errRejected
	}); !errors.Is(err, errRejected) {
		t.Fatalf("Update err = %v, want callback error", err)
	}
	if got, _ := repo.GetByID(ctx, newer.ID); got.Role != "subscriber" {
		t.Fatalf("rejected update was persisted: role = %q", got.Role)
	}
	if _, err := repo.Update(ctx, uuid.New(), func(*model.InviteCode) error { return nil }); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("Update of unknown code err = %v", err)
	}

	active, err := repo.List(ctx, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(active) != 1 || active[0].ID != newer.ID {
		t.Fatalf("active list = %+v", active)
	}
	all, err := repo.List(ctx, true)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 2 || all[0].ID != newer.ID {
		t.Fatalf("all list not newest first: %+v", all)
	}
}

func TestSQLInviteCodes_DeleteRemovesUsage(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	codes := NewSQLInviteCodeRepository(db)
	usage := NewSQLUsageRepository(db)

	keep, drop := newCode("keep", 3), newCode("drop", 3)
	for _, c := range []*model.InviteCode{keep, drop} {
		if err := codes.Create(ctx, c); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	for _, id := range []uuid.UUID{drop.ID, drop.ID, keep.ID} {
		if _, err := codes.Consume(ctx, id, &model.UsageAttempt{ID: uuid.New(), Outcome: model.OutcomeSuccess, AttemptedAt: time.Now().UTC()}); err != nil {
			t.Fatalf("Consume: %v", err)
		}
	}

	if err := codes.Delete(ctx, drop.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := codes.Delete(ctx, drop.ID); err != nil {
		t.Fatalf("Delete of missing code should be a no-op, got %v", err)
	}

	stats, err := usage.Stats(ctx, nil)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[model.OutcomeSuccess] != 1 {
		t.Fatalf("success rows = %d, want 1", stats[model.OutcomeSuccess])
	}
	if _, err := codes.GetByID(ctx, drop.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("deleted code still readable, err = %v", err)
	}
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	return db, mock
}

var inviteCodeColumns = []string{
	"id", "code_hash", "usage_limit", "uses_remaining", "total_uses",
	"expiry_date", "role", "active", "created_at", "updated_at",
}

func TestSQLInviteCodes_ConsumeLocksRowAndRollsBack(t *testing.T) {
	lockQuery := `SELECT \* FROM "invite_codes" WHERE .*FOR UPDATE`
	now := time.Now().UTC()

	tests := []struct {
		name string
		rows *sqlmock.Rows
	}{
		{
			name: "no uses left",
			rows: sqlmock.NewRows(inviteCodeColumns).
				AddRow(uuid.NewString(), "h", 1, 0, 1, nil, "subscriber", true, now, now),
		},
		{
			name: "missing or inactive",
			rows: sqlmock.NewRows(inviteCodeColumns),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewSQLInviteCodeRepository(db)

			mock.ExpectBegin()
			mock.ExpectQuery(lockQuery).WillReturnRows(tt.rows)
			mock.ExpectRollback()

			_, err := repo.Consume(context.Background(), uuid.New(), &model.UsageAttempt{ID: uuid.New()})
			if !errors.Is(err, ErrNotConsumable) {
				t.Fatalf("Consume err = %v, want ErrNotConsumable", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestSQLInviteCodes_ConsumeStorageErrorRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSQLInviteCodeRepository(db)

	lockErr := errors.New("canceling statement due to lock timeout")
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).WillReturnError(lockErr)
	mock.ExpectRollback()

	_, err := repo.Consume(context.Background(), uuid.New(), &model.UsageAttempt{ID: uuid.New()})
	if !errors.Is(err, lockErr) {
		t.Fatalf("Consume err = %v, want lock error", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
