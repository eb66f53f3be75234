package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"biliticket/invitehub/internal/model"
	"biliticket/invitehub/internal/repository"
)

// Runtime setting keys.
const (
	SettingRateLimitEnabled  = "rate_limit_enabled"
	SettingRateLimitAttempts = "rate_limit_attempts"
	SettingRateLimitWindow   = "rate_limit_window"
	SettingNotifyExhausted   = "notify_code_exhausted"
	SettingNotificationEmail = "notification_email"
	SettingRequireInviteCode = "require_invite_code"
	SettingDefaultRole       = "default_role"
)

// SettingKeys lists every key accepted by Set.
var SettingKeys = []string{
	SettingRateLimitEnabled,
	SettingRateLimitAttempts,
	SettingRateLimitWindow,
	SettingNotifyExhausted,
	SettingNotificationEmail,
	SettingRequireInviteCode,
	SettingDefaultRole,
}

// Settings is an immutable snapshot of the runtime configuration.
type Settings struct {
	RateLimitEnabled   bool
	RateLimitAttempts  int
	RateLimitWindowMin int
	NotifyExhausted    bool
	NotificationEmail  string
	RequireInviteCode  bool
	DefaultRole        string
}

// Values renders the snapshot keyed by setting name.
func (s *Settings) Values() map[string]any {
	return map[string]any{
		SettingRateLimitEnabled:  s.RateLimitEnabled,
		SettingRateLimitAttempts: s.RateLimitAttempts,
		SettingRateLimitWindow:   s.RateLimitWindowMin,
		SettingNotifyExhausted:   s.NotifyExhausted,
		SettingNotificationEmail: s.NotificationEmail,
		SettingRequireInviteCode: s.RequireInviteCode,
		SettingDefaultRole:       s.DefaultRole,
	}
}

// apply coerces value into the field named by key.
func (s *Settings) apply(key string, value any) error {
	var err error
	switch key {
	case SettingRateLimitEnabled:
		s.RateLimitEnabled, err = cast.ToBoolE(value)
	case SettingRateLimitAttempts:
		s.RateLimitAttempts, err = positiveInt(value)
	case SettingRateLimitWindow:
		s.RateLimitWindowMin, err = positiveInt(value)
	case SettingNotifyExhausted:
		s.NotifyExhausted, err = cast.ToBoolE(value)
	case SettingNotificationEmail:
		s.NotificationEmail, err = cast.ToStringE(value)
	case SettingRequireInviteCode:
		s.RequireInviteCode, err = cast.ToBoolE(value)
	case SettingDefaultRole:
		s.DefaultRole, err = cast.ToStringE(value)
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return err
}

func positiveInt(value any) (int, error) {
	n, err := wholeInt(value)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}

// SettingsProvider hands out the current settings snapshot.
type SettingsProvider interface {
	Current(ctx context.Context) (*Settings, error)
}

type SettingsService interface {
	SettingsProvider
	Set(ctx context.Context, key string, value any) error
	Invalidate()
}

type settingsService struct {
	repo     repository.SettingRepository
	defaults Settings
	ttl      time.Duration
	now      Clock
	logger   *zap.Logger

	mu       sync.Mutex
	snapshot *Settings
	loadedAt time.Time
}

// NewSettingsService reads settings through a per-process cache refreshed
// after ttl. Keys absent from the store fall back to defaults.
func NewSettingsService(repo repository.SettingRepository, defaults Settings, ttl time.Duration, now Clock, logger *zap.Logger) SettingsService {
	if now == nil {
		now = SystemClock
	}
	return &settingsService{
		repo:     repo,
		defaults: defaults,
		ttl:      ttl,
		now:      now,
		logger:   logger,
	}
}

func (s *settingsService) Current(ctx context.Context) (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot != nil && s.ttl > 0 && s.now().Sub(s.loadedAt) < s.ttl {
		return s.snapshot, nil
	}

	rows, err := s.repo.All(ctx)
	if err != nil {
		if s.snapshot != nil {
			s.logger.Warn("settings reload failed, serving stale snapshot", zap.Error(err))
			return s.snapshot, nil
		}
		return nil, storageError("load settings", err)
	}

	next := s.defaults
	for _, row := range rows {
		var value any
		if err := json.Unmarshal([]byte(row.Value), &value); err != nil {
			s.logger.Warn("ignoring malformed setting", zap.String("key", row.Key), zap.Error(err))
			continue
		}
		if err := next.apply(row.Key, value); err != nil {
			s.logger.Warn("ignoring invalid setting", zap.String("key", row.Key), zap.Error(err))
		}
	}

	s.snapshot = &next
	s.loadedAt = s.now()
	return s.snapshot, nil
}

func (s *settingsService) Set(ctx context.Context, key string, value any) error {
	if !slices.Contains(SettingKeys, key) {
		return fmt.Errorf("%w: unknown setting %q", ErrInvalidInput, key)
	}
	// Coerce through a scratch snapshot so only well-typed values are stored.
	var scratch Settings
	if err := scratch.apply(key, value); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidInput, key, err)
	}
	raw, err := json.Marshal(scratch.Values()[key])
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidInput, key, err)
	}

	if err := s.repo.Save(ctx, &model.Setting{Key: key, Value: string(raw)}); err != nil {
		return storageError("save setting", err)
	}
	s.Invalidate()
	s.logger.Info("setting updated", zap.String("key", key), zap.ByteString("value", raw))
	return nil
}

func (s *settingsService) Invalidate() {
	s.mu.Lock()
	s.snapshot = nil
	s.mu.Unlock()
}
