package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"biliticket/invitehub/internal/repository"
)

// RateLimiter decides from the usage ledger whether an origin may attempt
// another code. It keeps no state of its own.
type RateLimiter interface {
	IsLimited(ctx context.Context, ip string) (bool, error)
}

type rateLimiter struct {
	usage              repository.UsageRepository
	settings           SettingsProvider
	now                Clock
	limitUnknownOrigin bool
	logger             *zap.Logger
}

// NewRateLimiter builds a limiter. With limitUnknownOrigin set, requests that
// carry no address share one bucket instead of bypassing the limit.
func NewRateLimiter(usage repository.UsageRepository, settings SettingsProvider, now Clock, limitUnknownOrigin bool, logger *zap.Logger) RateLimiter {
	if now == nil {
		now = SystemClock
	}
	return &rateLimiter{
		usage:              usage,
		settings:           settings,
		now:                now,
		limitUnknownOrigin: limitUnknownOrigin,
		logger:             logger,
	}
}

func (l *rateLimiter) IsLimited(ctx context.Context, ip string) (bool, error) {
	cfg, err := l.settings.Current(ctx)
	if err != nil {
		return false, err
	}
	if !cfg.RateLimitEnabled {
		return false, nil
	}
	if ip == "" && !l.limitUnknownOrigin {
		return false, nil
	}

	since := l.now().Add(-time.Duration(cfg.RateLimitWindowMin) * time.Minute)
	failures, err := l.usage.CountFailures(ctx, ip, since)
	if err != nil {
		return false, storageError("count failed attempts", err)
	}
	if failures >= int64(cfg.RateLimitAttempts) {
		l.logger.Info("invite code attempts rate limited",
			zap.String("ip", ip),
			zap.Int64("failures", failures),
			zap.Int("window_minutes", cfg.RateLimitWindowMin),
		)
		return true, nil
	}
	return false, nil
}
