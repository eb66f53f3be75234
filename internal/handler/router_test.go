package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"biliticket/invitehub/internal/config"
	"biliticket/invitehub/internal/i18n"
	"biliticket/invitehub/internal/repository"
	"biliticket/invitehub/internal/service"
	"biliticket/invitehub/pkg/crypto"
	jwtpkg "biliticket/invitehub/pkg/jwt"
)

type testServer struct {
	t       *testing.T
	engine  *gin.Engine
	admin   string
	host    string
	invites service.InviteService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)

	cfg := &config.Config{}
	cfg.Server.Mode = "test"
	cfg.Server.ClientIPHeader = "X-Client-IP"
	cfg.Admin.UserIDs = []string{"operator-1"}

	backend := repository.NewMemoryBackend()
	usage := repository.NewMemoryUsageRepository(backend)
	settings := service.NewSettingsService(repository.NewMemorySettingRepository(backend), service.Settings{
		RateLimitEnabled:   true,
		RateLimitAttempts:  3,
		RateLimitWindowMin: 60,
		RequireInviteCode:  true,
		DefaultRole:        "subscriber",
	}, 0, nil, logger)
	ledger := service.NewUsageLedger(usage, nil)
	hasher, err := crypto.NewHasher("")
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	invites := service.NewInviteService(service.InviteServiceDeps{
		Codes:    repository.NewMemoryInviteCodeRepository(backend),
		Ledger:   ledger,
		Limiter:  service.NewRateLimiter(usage, settings, nil, false, logger),
		Settings: settings,
		Hasher:   hasher,
		Cache:    repository.NewMemoryStateStore(),
		Cleanup:  service.NewCleanupScheduler(repository.NewMemoryTaskQueue(), nil, logger),
		Logger:   logger,
	}, service.InviteOptions{CleanupDelay: 24 * time.Hour, BulkRetryBudget: 8})

	catalog, err := i18n.NewCatalog()
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	jwtManager := jwtpkg.NewManager("test-signing-key-0123456789abcdef", "invitehub", time.Hour)
	admin, _ := jwtManager.GenerateToken("operator-1", jwtpkg.TokenTypeAccess, 0)
	host, _ := jwtManager.GenerateToken("forum", jwtpkg.TokenTypeService, 0)

	engine := SetupRouter(cfg, logger, jwtManager,
		NewRegistrationHandler(service.NewRegistrationHooks(invites, settings), catalog, logger),
		NewAdminHandler(invites, ledger, settings, catalog, "INV", logger),
	)
	return &testServer{t: t, engine: engine, admin: admin, host: host, invites: invites}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Kind    string          `json:"kind"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(method, path, token string, body any, headers ...string) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.1:4000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			s.t.Fatalf("decode %s %s response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, env
}

func TestRouter_Healthz(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRouter_Auth(t *testing.T) {
	s := newTestServer(t)
	jwtManager := jwtpkg.NewManager("test-signing-key-0123456789abcdef", "invitehub", time.Hour)
	stranger, _ := jwtManager.GenerateToken("someone-else", jwtpkg.TokenTypeAccess, 0)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodPost, "/api/v1/registration/validate", "", http.StatusUnauthorized},
		{"access token on host route", http.MethodPost, "/api/v1/registration/validate", s.admin, http.StatusUnauthorized},
		{"service token on admin route", http.MethodGet, "/api/v1/admin/invite-codes", s.host, http.StatusUnauthorized},
		{"non-admin operator", http.MethodGet, "/api/v1/admin/invite-codes", stranger, http.StatusForbidden},
		{"admin", http.MethodGet, "/api/v1/admin/invite-codes", s.admin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := s.do(tt.method, tt.path, tt.token, map[string]string{"code": "X"})
			if status != tt.want {
				t.Fatalf("status = %d, want %d", status, tt.want)
			}
		})
	}
}

func TestRouter_RegistrationFlow(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(http.MethodPost, "/api/v1/admin/invite-codes", s.admin,
		map[string]any{"code": "Welcome-1", "usage_limit": 1, "role": "member"})
	if status != http.StatusOK {
		t.Fatalf("create status = %d (%s)", status, env.Message)
	}

	status, env = s.do(http.MethodPost, "/api/v1/registration/validate", s.host,
		map[string]string{"code": "welcome-1"}, "X-Client-IP", "203.0.113.5")
	if status != http.StatusOK {
		t.Fatalf("validate status = %d (%s)", status, env.Message)
	}
	var validated struct {
		Required bool `json:"required"`
		Code     struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		} `json:"code"`
	}
	if err := json.Unmarshal(env.Data, &validated); err != nil {
		t.Fatalf("decode validate: %v", err)
	}
	if !validated.Required || validated.Code.Role != "member" {
		t.Fatalf("validate data = %s", env.Data)
	}

	complete := map[string]string{"code_id": validated.Code.ID, "user_id": "42"}
	for i, want := range []bool{true, false} {
		status, env = s.do(http.MethodPost, "/api/v1/registration/complete", s.host, complete)
		if status != http.StatusOK {
			t.Fatalf("complete #%d status = %d", i, status)
		}
		var res struct {
			Granted bool `json:"granted"`
		}
		_ = json.Unmarshal(env.Data, &res)
		if res.Granted != want {
			t.Fatalf("complete #%d granted = %v, want %v", i, res.Granted, want)
		}
	}

	status, env = s.do(http.MethodGet, "/api/v1/admin/invite-codes/"+validated.Code.ID+"/stats", s.admin, nil)
	if status != http.StatusOK {
		t.Fatalf("stats status = %d", status)
	}
	var stats map[string]int
	_ = json.Unmarshal(env.Data, &stats)
	if stats["success"] != 1 || len(stats) != 4 {
		t.Fatalf("stats = %v", stats)
	}
}

func TestRouter_ValidateFailuresAreLocalized(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(http.MethodPost, "/api/v1/registration/validate", s.host,
		map[string]string{"code": "nope"}, "X-Client-IP", "198.51.100.9", "Accept-Language", "zh-CN")
	if status != http.StatusUnprocessableEntity || env.Kind != "invalid_code" || env.Message != "邀请码无效。" {
		t.Fatalf("got %d %q %q", status, env.Kind, env.Message)
	}

	status, env = s.do(http.MethodPost, "/api/v1/registration/validate", s.host,
		map[string]string{"code": ""}, "X-Client-IP", "198.51.100.9")
	if status != http.StatusBadRequest || env.Kind != "empty_code" {
		t.Fatalf("blank code: got %d %q", status, env.Kind)
	}

	for i := 0; i < 2; i++ {
		s.do(http.MethodPost, "/api/v1/registration/validate", s.host,
			map[string]string{"code": "nope"}, "X-Client-IP", "198.51.100.9")
	}
	status, env = s.do(http.MethodPost, "/api/v1/registration/validate", s.host,
		map[string]string{"code": "nope"}, "X-Client-IP", "198.51.100.9")
	if status != http.StatusTooManyRequests || env.Kind != "rate_limited" {
		t.Fatalf("fourth attempt: got %d %q", status, env.Kind)
	}
}

func TestRouter_BulkAndSettings(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(http.MethodPost, "/api/v1/admin/invite-codes/bulk", s.admin,
		map[string]any{"count": 5, "usage_limit": 2})
	if status != http.StatusOK {
		t.Fatalf("bulk status = %d (%s)", status, env.Message)
	}
	var bulk struct {
		Codes []struct {
			Code string `json:"code"`
		} `json:"codes"`
		Created int `json:"created"`
	}
	_ = json.Unmarshal(env.Data, &bulk)
	if bulk.Created != 5 || len(bulk.Codes) != 5 {
		t.Fatalf("bulk = %s", env.Data)
	}

	status, _ = s.do(http.MethodPut, "/api/v1/admin/settings", s.admin,
		map[string]any{"require_invite_code": false})
	if status != http.StatusOK {
		t.Fatalf("settings status = %d", status)
	}
	status, env = s.do(http.MethodPost, "/api/v1/registration/validate", s.host, map[string]string{"code": ""})
	if status != http.StatusOK || string(env.Data) != `{"required":false}` {
		t.Fatalf("validate with codes optional: %d %s", status, env.Data)
	}

	status, env = s.do(http.MethodPut, "/api/v1/admin/settings", s.admin, map[string]any{"bogus": 1})
	if status != http.StatusBadRequest || env.Kind != "invalid_input" {
		t.Fatalf("bogus setting: %d %q", status, env.Kind)
	}
}
