package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"biliticket/invitehub/internal/model"
	"biliticket/invitehub/internal/repository"
	"biliticket/invitehub/pkg/crypto"
)

// InviteService is the code registry: issuing, validating and consuming invite codes.
type InviteService interface {
	CreateCode(ctx context.Context, in CreateCodeInput) (uuid.UUID, error)
	BulkGenerate(ctx context.Context, in BulkGenerateInput) ([]model.GeneratedCode, error)
	// Validate checks a submitted code without consuming it. Failures are
	// recorded in the usage ledger; success is not.
	Validate(ctx context.Context, code, ip string) (*model.CodeView, error)
	// Consume takes one use of the code for userID. It reports false when the
	// code is gone, already exhausted, or the store failed.
	Consume(ctx context.Context, codeID uuid.UUID, userID, ip string) bool
	UpdateCode(ctx context.Context, id uuid.UUID, patch map[string]any) (*model.CodeView, error)
	DeleteCode(ctx context.Context, id uuid.UUID) error
	ListCodes(ctx context.Context, includeInactive bool) ([]model.CodeView, error)
	GetCode(ctx context.Context, id uuid.UUID) (*model.CodeView, error)
}

type CreateCodeInput struct {
	Code       string     `json:"code"`
	UsageLimit int        `json:"usage_limit" validate:"min=1"`
	ExpiryDate *time.Time `json:"expiry_date"`
	Role       string     `json:"role" validate:"max=64"`
}

type BulkGenerateInput struct {
	Count      int        `json:"count" validate:"min=1"`
	UsageLimit int        `json:"usage_limit" validate:"min=1"`
	ExpiryDate *time.Time `json:"expiry_date"`
	Role       string     `json:"role" validate:"max=64"`
	Prefix     string     `json:"prefix" validate:"omitempty,alphanum,max=16"`
}

// CodeGenerator returns a fresh plaintext code for prefix.
type CodeGenerator func(prefix string) (string, error)

const codeSuffixLen = 8

func defaultGenerator(prefix string) (string, error) {
	return crypto.GenerateInviteCode(prefix, codeSuffixLen)
}

type InviteServiceDeps struct {
	Codes    repository.InviteCodeRepository
	Ledger   UsageLedger
	Limiter  RateLimiter
	Settings SettingsProvider
	Hasher   *crypto.Hasher
	Cache    repository.StateStore
	Cleanup  CleanupScheduler
	Notifier Notifier
	Clock    Clock
	Logger   *zap.Logger
}

type InviteOptions struct {
	CleanupDelay    time.Duration
	NotifyTimeout   time.Duration
	ListCacheTTL    time.Duration
	BulkMax         int
	BulkRetryBudget int
	// Generator overrides random code generation.
	Generator CodeGenerator
}

type inviteService struct {
	InviteServiceDeps
	opts InviteOptions

	// listGen is bumped on every invalidation so a list read that raced a
	// mutation is not left in the cache.
	listGen atomic.Uint64
}

func NewInviteService(deps InviteServiceDeps, opts InviteOptions) InviteService {
	if deps.Clock == nil {
		deps.Clock = SystemClock
	}
	if opts.Generator == nil {
		opts.Generator = defaultGenerator
	}
	if opts.BulkMax <= 0 {
		opts.BulkMax = 1000
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 30 * time.Second
	}
	return &inviteService{InviteServiceDeps: deps, opts: opts}
}

func (s *inviteService) resolveRole(ctx context.Context, role string) (string, error) {
	if role = sanitizeRole(role); role != "" {
		return role, nil
	}
	cfg, err := s.Settings.Current(ctx)
	if err != nil {
		return "", err
	}
	return cfg.DefaultRole, nil
}

func (s *inviteService) CreateCode(ctx context.Context, in CreateCodeInput) (uuid.UUID, error) {
	normalized := crypto.NormalizeCode(in.Code)
	if normalized == "" {
		return uuid.Nil, ErrEmptyCode
	}
	if err := validateInput(in); err != nil {
		return uuid.Nil, err
	}
	role, err := s.resolveRole(ctx, in.Role)
	if err != nil {
		return uuid.Nil, err
	}

	hash := s.Hasher.HashCode(normalized)
	exists, err := s.Codes.ExistsByHash(ctx, hash)
	if err != nil {
		return uuid.Nil, storageError("check code", err)
	}
	if exists {
		return uuid.Nil, ErrDuplicateCode
	}

	code := s.newCode(hash, in.UsageLimit, in.ExpiryDate, role)
	if err := s.Codes.Create(ctx, code); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return uuid.Nil, ErrDuplicateCode
		}
		return uuid.Nil, storageError("create code", err)
	}
	s.invalidateList(ctx)

	s.Logger.Info("invite code created",
		zap.String("code_id", code.ID.String()),
		zap.Int("usage_limit", code.UsageLimit),
		zap.String("role", code.Role),
	)
	return code.ID, nil
}

func (s *inviteService) newCode(hash string, usageLimit int, expiry *time.Time, role string) *model.InviteCode {
	now := s.Clock()
	return &model.InviteCode{
		ID:            uuid.New(),
		CodeHash:      hash,
		UsageLimit:    usageLimit,
		UsesRemaining: usageLimit,
		TotalUses:     0,
		ExpiryDate:    utcPtr(expiry),
		Role:          role,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *inviteService) BulkGenerate(ctx context.Context, in BulkGenerateInput) ([]model.GeneratedCode, error) {
	if in.Count > s.opts.BulkMax {
		in.Count = s.opts.BulkMax
	}
	in.Prefix = crypto.NormalizeCode(in.Prefix)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	role, err := s.resolveRole(ctx, in.Role)
	if err != nil {
		return nil, err
	}

	out := make([]model.GeneratedCode, 0, in.Count)
	budget := in.Count + s.opts.BulkRetryBudget
	collisions := 0
	for attempt := 0; len(out) < in.Count && attempt < budget; attempt++ {
		plain, err := s.opts.Generator(in.Prefix)
		if err != nil {
			return out, fmt.Errorf("generate invite code: %w", err)
		}
		code := s.newCode(s.Hasher.HashCode(crypto.NormalizeCode(plain)), in.UsageLimit, in.ExpiryDate, role)
		if err := s.Codes.Create(ctx, code); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				collisions++
				continue
			}
			if len(out) > 0 {
				s.invalidateList(ctx)
			}
			return out, storageError("create code", err)
		}
		out = append(out, model.GeneratedCode{ID: code.ID, Code: plain})
	}
	s.invalidateList(ctx)

	log := s.Logger.With(
		zap.Int("requested", in.Count),
		zap.Int("created", len(out)),
		zap.Int("collisions", collisions),
	)
	if len(out) < in.Count {
		log.Warn("bulk generation stopped: retry budget exhausted")
	} else {
		log.Info("invite codes generated")
	}
	return out, nil
}

func (s *inviteService) Validate(ctx context.Context, code, ip string) (*model.CodeView, error) {
	normalized := crypto.NormalizeCode(code)
	if normalized == "" {
		return nil, ErrEmptyCode
	}

	limited, err := s.Limiter.IsLimited(ctx, ip)
	if err != nil {
		return nil, err
	}
	if limited {
		return nil, ErrRateLimited
	}

	found, err := s.Codes.GetActiveByHash(ctx, s.Hasher.HashCode(normalized))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.record(ctx, nil, ip, model.OutcomeInvalid)
			return nil, ErrInvalidCode
		}
		return nil, storageError("lookup code", err)
	}

	if found.Exhausted() {
		s.record(ctx, &found.ID, ip, model.OutcomeExhausted)
		return nil, ErrCodeExhausted
	}
	if found.ExpiredAt(s.Clock()) {
		s.record(ctx, &found.ID, ip, model.OutcomeExpired)
		return nil, ErrCodeExpired
	}

	view := found.View()
	return &view, nil
}

// record writes a failed attempt; ledger failures never fail validation.
func (s *inviteService) record(ctx context.Context, codeID *uuid.UUID, ip string, outcome model.UsageOutcome) {
	if err := s.Ledger.Record(ctx, codeID, ip, outcome, nil); err != nil {
		s.Logger.Warn("record usage attempt",
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
	}
}

func (s *inviteService) Consume(ctx context.Context, codeID uuid.UUID, userID, ip string) bool {
	var uid *string
	if userID != "" {
		uid = &userID
	}
	attempt := newAttempt(nil, ip, model.OutcomeSuccess, uid, s.Clock())

	code, err := s.Codes.Consume(ctx, codeID, attempt)
	if err != nil {
		log := s.Logger.With(zap.String("code_id", codeID.String()), zap.String("user_id", userID))
		if errors.Is(err, repository.ErrNotConsumable) {
			log.Info("invite code no longer consumable")
		} else {
			log.Error("consume invite code", zap.Error(err))
		}
		return false
	}
	s.invalidateList(ctx)

	s.Logger.Info("invite code consumed",
		zap.String("code_id", code.ID.String()),
		zap.String("user_id", userID),
		zap.Int("uses_remaining", code.UsesRemaining),
	)
	if code.Exhausted() {
		s.onExhausted(ctx, code)
	}
	return true
}

// onExhausted runs after commit; neither step can undo the consume.
func (s *inviteService) onExhausted(ctx context.Context, code *model.InviteCode) {
	bg := context.WithoutCancel(ctx)
	if s.Cleanup != nil {
		if err := s.Cleanup.ScheduleDeletion(bg, code.ID, s.opts.CleanupDelay); err != nil {
			s.Logger.Error("schedule exhausted code deletion",
				zap.String("code_id", code.ID.String()),
				zap.Error(err),
			)
		}
	}
	if s.Notifier != nil {
		snapshot := *code
		go func() {
			nctx, cancel := context.WithTimeout(bg, s.opts.NotifyTimeout)
			defer cancel()
			s.Notifier.NotifyExhausted(nctx, &snapshot)
		}()
	}
}

func (s *inviteService) UpdateCode(ctx context.Context, id uuid.UUID, patch map[string]any) (*model.CodeView, error) {
	becameExhausted := false
	updated, err := s.Codes.Update(ctx, id, func(c *model.InviteCode) error {
		wasExhausted := c.Exhausted()
		if err := applyPatch(c, patch); err != nil {
			return err
		}
		becameExhausted = !wasExhausted && c.Exhausted()
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			return nil, err
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, ErrCodeNotFound
		}
		return nil, storageError("update code", err)
	}
	s.invalidateList(ctx)

	s.Logger.Info("invite code updated", zap.String("code_id", id.String()))
	if becameExhausted && s.Cleanup != nil {
		if err := s.Cleanup.ScheduleDeletion(ctx, id, s.opts.CleanupDelay); err != nil {
			s.Logger.Error("schedule exhausted code deletion", zap.String("code_id", id.String()), zap.Error(err))
		}
	}
	view := updated.View()
	return &view, nil
}

// applyPatch applies the editable fields of patch to c, keeping
// UsesRemaining + TotalUses == UsageLimit. Other keys are ignored.
func applyPatch(c *model.InviteCode, patch map[string]any) error {
	exhausted := c.Exhausted()

	limit, hasLimit := patch["usage_limit"]
	remaining, hasRemaining := patch["uses_remaining"]
	if (hasLimit || hasRemaining) && exhausted {
		return fmt.Errorf("%w: exhausted code cannot be refilled", ErrInvalidInput)
	}
	if hasLimit {
		n, err := wholeInt(limit)
		if err != nil || n < 1 {
			return fmt.Errorf("%w: usage_limit must be a positive integer", ErrInvalidInput)
		}
		if n < c.TotalUses {
			return fmt.Errorf("%w: usage_limit below total uses (%d)", ErrInvalidInput, c.TotalUses)
		}
		c.UsageLimit = n
		c.UsesRemaining = n - c.TotalUses
	}
	if hasRemaining {
		n, err := wholeInt(remaining)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: uses_remaining must be a non-negative integer", ErrInvalidInput)
		}
		if hasLimit && n != c.UsesRemaining {
			return fmt.Errorf("%w: uses_remaining conflicts with usage_limit", ErrInvalidInput)
		}
		if n+c.TotalUses < 1 {
			return fmt.Errorf("%w: usage_limit would drop below 1", ErrInvalidInput)
		}
		c.UsesRemaining = n
		c.UsageLimit = n + c.TotalUses
	}

	if v, ok := patch["expiry_date"]; ok {
		if v == nil || v == "" {
			c.ExpiryDate = nil
		} else {
			t, err := cast.ToTimeE(v)
			if err != nil {
				return fmt.Errorf("%w: expiry_date: %v", ErrInvalidInput, err)
			}
			c.ExpiryDate = utcPtr(&t)
		}
	}

	if v, ok := patch["role"]; ok {
		role, err := cast.ToStringE(v)
		if err != nil {
			return fmt.Errorf("%w: role: %v", ErrInvalidInput, err)
		}
		if role = sanitizeRole(role); role == "" || len(role) > 64 {
			return fmt.Errorf("%w: role must be 1..64 characters", ErrInvalidInput)
		}
		c.Role = role
	}

	if v, ok := patch["active"]; ok {
		active, err := cast.ToBoolE(v)
		if err != nil {
			return fmt.Errorf("%w: active: %v", ErrInvalidInput, err)
		}
		if active && c.Exhausted() {
			return fmt.Errorf("%w: exhausted code cannot be reactivated", ErrInvalidInput)
		}
		c.Active = active
	}

	if c.Exhausted() {
		c.Active = false
	}
	return nil
}

func (s *inviteService) DeleteCode(ctx context.Context, id uuid.UUID) error {
	if err := s.Codes.Delete(ctx, id); err != nil {
		return storageError("delete code", err)
	}
	s.invalidateList(ctx)
	s.Logger.Info("invite code deleted", zap.String("code_id", id.String()))
	return nil
}

func (s *inviteService) GetCode(ctx context.Context, id uuid.UUID) (*model.CodeView, error) {
	code, err := s.Codes.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, storageError("get code", err)
	}
	view := code.View()
	return &view, nil
}

const (
	listCacheAll    = "codes:list:all"
	listCacheActive = "codes:list:active"
)

func (s *inviteService) ListCodes(ctx context.Context, includeInactive bool) ([]model.CodeView, error) {
	key := listCacheActive
	if includeInactive {
		key = listCacheAll
	}
	gen := s.listGen.Load()

	if s.Cache != nil {
		raw, err := s.Cache.Get(ctx, key)
		if err != nil {
			s.Logger.Warn("read code list cache", zap.Error(err))
		} else if raw != nil {
			var views []model.CodeView
			if err := json.Unmarshal(raw, &views); err == nil {
				return views, nil
			}
		}
	}

	codes, err := s.Codes.List(ctx, includeInactive)
	if err != nil {
		return nil, storageError("list codes", err)
	}
	views := make([]model.CodeView, len(codes))
	for i := range codes {
		views[i] = codes[i].View()
	}

	if s.Cache != nil && s.listGen.Load() == gen {
		if raw, err := json.Marshal(views); err == nil {
			if err := s.Cache.Set(ctx, key, raw, s.opts.ListCacheTTL); err != nil {
				s.Logger.Warn("write code list cache", zap.Error(err))
			} else if s.listGen.Load() != gen {
				// A mutation landed between the check and the write.
				s.invalidateList(ctx)
			}
		}
	}
	return views, nil
}

func (s *inviteService) invalidateList(ctx context.Context) {
	s.listGen.Add(1)
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Delete(context.WithoutCancel(ctx), listCacheAll, listCacheActive); err != nil {
		s.Logger.Warn("invalidate code list cache", zap.Error(err))
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
