package repository

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"biliticket/invitehub/internal/model"
)

// MemoryBackend holds every table for single-instance deployments and tests.
// A single mutex serialises all access, which also stands in for row locks.
type MemoryBackend struct {
	mu       sync.Mutex
	codes    map[uuid.UUID]model.InviteCode
	usage    []model.UsageAttempt
	settings map[string]string
	now      func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		codes:    make(map[uuid.UUID]model.InviteCode),
		settings: make(map[string]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source used for CreatedAt/UpdatedAt.
func (b *MemoryBackend) SetClock(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

type memoryInviteCodeRepository struct{ b *MemoryBackend }

func NewMemoryInviteCodeRepository(b *MemoryBackend) InviteCodeRepository {
	return &memoryInviteCodeRepository{b: b}
}

func (r *memoryInviteCodeRepository) Create(_ context.Context, code *model.InviteCode) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()

	if _, ok := r.b.codes[code.ID]; ok {
		return gorm.ErrDuplicatedKey
	}
	for _, c := range r.b.codes {
		if c.CodeHash == code.CodeHash {
			return gorm.ErrDuplicatedKey
		}
	}
	now := r.b.now()
	if code.CreatedAt.IsZero() {
		code.CreatedAt = now
	}
	code.UpdatedAt = now
	r.b.codes[code.ID] = *code
	return nil
}

func (r *memoryInviteCodeRepository) GetByID(_ context.Context, id uuid.UUID) (*model.InviteCode, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()

	c, ok := r.b.codes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (r *memoryInviteCodeRepository) GetActiveByHash(_ context.Context, hash string) (*model.InviteCode, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()

	for _, c := range r.b.codes {
		if c.CodeHash == hash && c.Active {
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryInviteCodeRepository) ExistsByHash(_ context.Context, hash string) (bool, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()

	for _, c := range r.b.codes {
		if c.CodeHash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryInviteCodeRepository) List(_ context.Context, includeInactive bool) ([]model.InviteCode, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()

	codes := make([]model.InviteCode, 0, len(r.b.codes))
	for _, c := range r.b.codes {
		if c.Active || includeInactive {
			codes = append(codes, c)
		}
	}
	slices.SortFunc(codes, func(a, b model.InviteCode) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return codes, nil
}

func (r *memoryInviteCodeRepository) Update(_ context.Context, id uuid.UUID, fn func(code *model.InviteCode) error) (*model.InviteCode, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()

	c, ok := r.b.codes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if err := fn(&c); err != nil {
		return nil, err
	}
	c.UpdatedAt = r.b.now()
	r.b.codes[id] = c
	return &c, nil
}

func (r *memoryInviteCodeRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()

	delete(r.b.codes, id)
	r.b.usage = slices.DeleteFunc(r.b.usage, func(a model.UsageAttempt) bool {
		return a.CodeID != nil && *a.CodeID == id
	})
	return nil
}

func (r *memoryInviteCodeRepository) Consume(_ context.Context, id uuid.UUID, attempt *model.UsageAttempt) (*model.InviteCode, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()

	c, ok := r.b.codes[id]
	if !ok || !c.Active || c.UsesRemaining <= 0 {
		return nil, ErrNotConsumable
	}
	c.UsesRemaining--
	c.TotalUses++
	c.Active = c.UsesRemaining > 0
	c.UpdatedAt = r.b.now()
	r.b.codes[id] = c

	attempt.CodeID = &c.ID
	r.b.usage = append(r.b.usage, *attempt)
	return &c, nil
}

type memoryUsageRepository struct{ b *MemoryBackend }

func NewMemoryUsageRepository(b *MemoryBackend) UsageRepository {
	return &memoryUsageRepository{b: b}
}

func (r *memoryUsageRepository) Record(_ context.Context, attempt *model.UsageAttempt) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()

	if attempt.CodeID != nil {
		if _, ok := r.b.codes[*attempt.CodeID]; !ok {
			return gorm.ErrForeignKeyViolated
		}
	}
	r.b.usage = append(r.b.usage, *attempt)
	return nil
}

func (r *memoryUsageRepository) CountFailures(_ context.Context, ip string, since time.Time) (int64, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()

	var n int64
	for _, a := range r.b.usage {
		if a.IPAddress == ip && a.Outcome != model.OutcomeSuccess && a.AttemptedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (r *memoryUsageRepository) Stats(_ context.Context, codeID *uuid.UUID) (model.UsageStats, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()

	stats := model.NewUsageStats()
	for _, a := range r.b.usage {
		if codeID != nil && (a.CodeID == nil || *a.CodeID != *codeID) {
			continue
		}
		stats[a.Outcome]++
	}
	return stats, nil
}

func (r *memoryUsageRepository) Query(_ context.Context, filter UsageFilter) ([]model.UsageAttempt, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()

	var out []model.UsageAttempt
	for _, a := range r.b.usage {
		switch {
		case filter.CodeID != nil && (a.CodeID == nil || *a.CodeID != *filter.CodeID):
			continue
		case filter.IPAddress != "" && a.IPAddress != filter.IPAddress:
			continue
		case filter.Outcome != "" && a.Outcome != filter.Outcome:
			continue
		case !filter.Since.IsZero() && a.AttemptedAt.Before(filter.Since):
			continue
		case !filter.Until.IsZero() && !a.AttemptedAt.Before(filter.Until):
			continue
		}
		out = append(out, a)
	}
	slices.SortStableFunc(out, func(a, b model.UsageAttempt) int {
		return b.AttemptedAt.Compare(a.AttemptedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type memorySettingRepository struct{ b *MemoryBackend }

func NewMemorySettingRepository(b *MemoryBackend) SettingRepository {
	return &memorySettingRepository{b: b}
}

func (r *memorySettingRepository) All(_ context.Context) ([]model.Setting, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()

	out := make([]model.Setting, 0, len(r.b.settings))
	for k, v := range r.b.settings {
		out = append(out, model.Setting{Key: k, Value: v})
	}
	slices.SortFunc(out, func(a, b model.Setting) int {
		return cmp.Compare(a.Key, b.Key)
	})
	return out, nil
}

func (r *memorySettingRepository) Save(_ context.Context, setting *model.Setting) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()

	r.b.settings[setting.Key] = setting.Value
	return nil
}
