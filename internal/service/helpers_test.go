package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"biliticket/invitehub/internal/model"
	"biliticket/invitehub/internal/repository"
	"biliticket/invitehub/pkg/crypto"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeNotifier struct {
	calls chan model.InviteCode
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{calls: make(chan model.InviteCode, 8)}
}

func (n *fakeNotifier) NotifyExhausted(_ context.Context, code *model.InviteCode) {
	n.calls <- *code
}

func defaultSettings() Settings {
	return Settings{
		RateLimitEnabled:   true,
		RateLimitAttempts:  3,
		RateLimitWindowMin: 60,
		NotifyExhausted:    true,
		NotificationEmail:  "ops@example.com",
		RequireInviteCode:  true,
		DefaultRole:        "subscriber",
	}
}

type harness struct {
	clock    *fakeClock
	codes    repository.InviteCodeRepository
	usage    repository.UsageRepository
	settings SettingsService
	queue    repository.TaskQueue
	notifier *fakeNotifier
	ledger   UsageLedger
	deps     InviteServiceDeps
	opts     InviteOptions
	svc      InviteService
}

func newHarness(t *testing.T, tweak ...func(*InviteOptions)) *harness {
	t.Helper()

	logger := zaptest.NewLogger(t)
	clock := newFakeClock()
	backend := repository.NewMemoryBackend()
	backend.SetClock(clock.Now)

	hasher, err := crypto.NewHasher("test-pepper")
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	h := &harness{
		clock:    clock,
		codes:    repository.NewMemoryInviteCodeRepository(backend),
		usage:    repository.NewMemoryUsageRepository(backend),
		queue:    repository.NewMemoryTaskQueue(),
		notifier: newFakeNotifier(),
	}
	h.settings = NewSettingsService(repository.NewMemorySettingRepository(backend), defaultSettings(), 0, clock.Now, logger)
	h.ledger = NewUsageLedger(h.usage, clock.Now)

	opts := InviteOptions{
		CleanupDelay:    24 * time.Hour,
		NotifyTimeout:   time.Second,
		ListCacheTTL:    time.Hour,
		BulkMax:         1000,
		BulkRetryBudget: 32,
	}
	for _, fn := range tweak {
		fn(&opts)
	}

	h.opts = opts
	h.deps = InviteServiceDeps{
		Codes:    h.codes,
		Ledger:   h.ledger,
		Limiter:  NewRateLimiter(h.usage, h.settings, clock.Now, false, logger),
		Settings: h.settings,
		Hasher:   hasher,
		Cache:    repository.NewMemoryStateStoreWithClock(clock.Now),
		Cleanup:  NewCleanupScheduler(h.queue, clock.Now, logger),
		Notifier: h.notifier,
		Clock:    clock.Now,
		Logger:   logger,
	}
	h.svc = NewInviteService(h.deps, opts)
	return h
}

func (h *harness) create(t *testing.T, code string, limit int) model.CodeView {
	t.Helper()
	id, err := h.svc.CreateCode(context.Background(), CreateCodeInput{Code: code, UsageLimit: limit})
	if err != nil {
		t.Fatalf("CreateCode(%q): %v", code, err)
	}
	view, err := h.svc.GetCode(context.Background(), id)
	if err != nil {
		t.Fatalf("GetCode: %v", err)
	}
	return *view
}

func (h *harness) stats(t *testing.T) model.UsageStats {
	t.Helper()
	stats, err := h.ledger.StatsFor(context.Background(), nil)
	if err != nil {
		t.Fatalf("StatsFor: %v", err)
	}
	return stats
}

func assertCounters(t *testing.T, v *model.CodeView) {
	t.Helper()
	if v.UsesRemaining+v.TotalUses != v.UsageLimit {
		t.Fatalf("uses_remaining(%d) + total_uses(%d) != usage_limit(%d)", v.UsesRemaining, v.TotalUses, v.UsageLimit)
	}
	if v.UsesRemaining == 0 && v.Active {
		t.Fatalf("exhausted code still active")
	}
}
