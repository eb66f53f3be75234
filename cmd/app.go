package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"biliticket/invitehub/internal/config"
	"biliticket/invitehub/internal/i18n"
	"biliticket/invitehub/internal/repository"
	"biliticket/invitehub/internal/service"
	"biliticket/invitehub/pkg/crypto"
	jwtpkg "biliticket/invitehub/pkg/jwt"
)

// app is the wired object graph shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
	redis  *redis.Client

	queue    repository.TaskQueue
	settings service.SettingsService
	ledger   service.UsageLedger
	invites  service.InviteService
	hooks    service.RegistrationHooks
	jwt      *jwtpkg.Manager
	catalog  *i18n.Catalog
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zc.Level = level
	}
	return zc.Build()
}

func settingsDefaults(cfg *config.Config) service.Settings {
	return service.Settings{
		RateLimitEnabled:   cfg.RateLimit.Enabled,
		RateLimitAttempts:  cfg.RateLimit.MaxAttempts,
		RateLimitWindowMin: cfg.RateLimit.WindowMinutes,
		NotifyExhausted:    cfg.Notify.Exhausted,
		NotificationEmail:  cfg.Notify.Email,
		RequireInviteCode:  cfg.Invite.RequireCode,
		DefaultRole:        cfg.Invite.DefaultRole,
	}
}

// durabilityWarnings flags configurations whose state does not outlive the process.
func durabilityWarnings(cfg *config.Config) []string {
	var warnings []string
	if cfg.Database.Driver != "memory" && cfg.Cache.Backend == "memory" {
		warnings = append(warnings,
			"cache.backend is memory: pending deletions of exhausted codes are lost on restart; use redis with a SQL driver")
	}
	return warnings
}

func buildApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	for _, w := range durabilityWarnings(cfg) {
		logger.Warn(w)
	}

	// 1. Relational store
	db, err := config.OpenDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.db = db

	var (
		codes    repository.InviteCodeRepository
		usage    repository.UsageRepository
		settings repository.SettingRepository
	)
	if db == nil {
		backend := repository.NewMemoryBackend()
		codes = repository.NewMemoryInviteCodeRepository(backend)
		usage = repository.NewMemoryUsageRepository(backend)
		settings = repository.NewMemorySettingRepository(backend)
		logger.Warn("using in-memory database; data is lost on exit")
	} else {
		codes = repository.NewSQLInviteCodeRepository(db)
		usage = repository.NewSQLUsageRepository(db)
		settings = repository.NewSQLSettingRepository(db)
	}

	// 2. Cache and deferred task queue (Redis or in-memory)
	var cache repository.StateStore
	switch cfg.Cache.Backend {
	case "redis":
		client, err := config.NewRedisClient(cfg.Database.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		cache = repository.NewRedisStateStore(client, cfg.Cache.Prefix)
		a.queue = repository.NewRedisTaskQueue(client, cfg.Cache.Prefix)
	case "memory":
		cache = repository.NewMemoryStateStore()
		a.queue = repository.NewMemoryTaskQueue()
	default:
		a.Close()
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}

	// 3. Notification channels
	var mail service.MailSender
	if cfg.SMTP.Host != "" {
		if mail, err = service.NewSMTPSender(cfg.SMTP); err != nil {
			a.Close()
			return nil, fmt.Errorf("smtp: %w", err)
		}
	}
	var chat service.ChatSender
	if cfg.Telegram.BotToken != "" {
		if chat, err = service.NewTelegramSender(cfg.Telegram); err != nil {
			logger.Warn("telegram notifications disabled", zap.Error(err))
			chat = nil
		}
	}

	// 4. Services
	hasher, err := crypto.NewHasher(cfg.Invite.CodePepper)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.settings = service.NewSettingsService(settings, settingsDefaults(cfg), cfg.Settings.CacheTTL, nil, logger)
	a.ledger = service.NewUsageLedger(usage, nil)
	a.invites = service.NewInviteService(service.InviteServiceDeps{
		Codes:    codes,
		Ledger:   a.ledger,
		Limiter:  service.NewRateLimiter(usage, a.settings, nil, cfg.RateLimit.LimitUnknownOrigin, logger),
		Settings: a.settings,
		Hasher:   hasher,
		Cache:    cache,
		Cleanup:  service.NewCleanupScheduler(a.queue, nil, logger),
		Notifier: service.NewNotifier(a.settings, mail, chat, cfg.Notify.SiteName, cfg.Cleanup.Delay, logger),
		Logger:   logger,
	}, service.InviteOptions{
		CleanupDelay:    cfg.Cleanup.Delay,
		NotifyTimeout:   cfg.Notify.Timeout,
		ListCacheTTL:    cfg.Invite.ListCacheTTL,
		BulkMax:         cfg.Invite.BulkMax,
		BulkRetryBudget: cfg.Invite.BulkRetryBudget,
	})
	a.hooks = service.NewRegistrationHooks(a.invites, a.settings)

	a.jwt = jwtpkg.NewManager(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.TokenTTL)
	if a.catalog, err = i18n.NewCatalog(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) newCleanupWorker() *service.CleanupWorker {
	return service.NewCleanupWorker(a.queue, a.invites, a.cfg.Cleanup.PollInterval, a.cfg.Cleanup.BatchSize, nil, a.logger)
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
