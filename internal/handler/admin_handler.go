package handler

import (
	"errors"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"biliticket/invitehub/internal/i18n"
	"biliticket/invitehub/internal/model"
	"biliticket/invitehub/internal/repository"
	"biliticket/invitehub/internal/service"
	"biliticket/invitehub/pkg/response"
)

type AdminHandler struct {
	inviteService   service.InviteService
	ledger          service.UsageLedger
	settingsService service.SettingsService
	catalog         *i18n.Catalog
	defaultPrefix   string
	logger          *zap.Logger
}

func NewAdminHandler(
	inviteService service.InviteService,
	ledger service.UsageLedger,
	settingsService service.SettingsService,
	catalog *i18n.Catalog,
	defaultPrefix string,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		inviteService:   inviteService,
		ledger:          ledger,
		settingsService: settingsService,
		catalog:         catalog,
		defaultPrefix:   defaultPrefix,
		logger:          logger,
	}
}

func (h *AdminHandler) fail(c *gin.Context, err error) {
	writeServiceError(c, h.catalog, h.logger, err)
}

type CreateInviteCodeRequest struct {
	Code       string     `json:"code" binding:"required"`
	UsageLimit int        `json:"usage_limit" binding:"required,min=1"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
	Role       string     `json:"role"`
}

// CreateInviteCode registers an operator-chosen code.
func (h *AdminHandler) CreateInviteCode(c *gin.Context) {
	var req CreateInviteCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	id, err := h.inviteService.CreateCode(c.Request.Context(), service.CreateCodeInput{
		Code:       req.Code,
		UsageLimit: req.UsageLimit,
		ExpiryDate: req.ExpiryDate,
		Role:       req.Role,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}

type BulkGenerateRequest struct {
	Count      int        `json:"count" binding:"required,min=1"`
	UsageLimit int        `json:"usage_limit" binding:"required,min=1"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
	Role       string     `json:"role"`
	Prefix     *string    `json:"prefix,omitempty"`
}

// BulkGenerateInviteCodes creates random codes. The plaintexts appear only in this response.
func (h *AdminHandler) BulkGenerateInviteCodes(c *gin.Context) {
	var req BulkGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	prefix := h.defaultPrefix
	if req.Prefix != nil {
		prefix = *req.Prefix
	}

	codes, err := h.inviteService.BulkGenerate(c.Request.Context(), service.BulkGenerateInput{
		Count:      req.Count,
		UsageLimit: req.UsageLimit,
		ExpiryDate: req.ExpiryDate,
		Role:       req.Role,
		Prefix:     prefix,
	})
	if err != nil && len(codes) == 0 {
		h.fail(c, err)
		return
	}
	if err != nil {
		h.logger.Error("bulk generation partially failed", zap.Int("created", len(codes)), zap.Error(err))
	}
	response.Success(c, gin.H{"codes": codes, "requested": req.Count, "created": len(codes)})
}

func (h *AdminHandler) ListInviteCodes(c *gin.Context) {
	includeInactive, _ := strconv.ParseBool(c.Query("include_inactive"))
	codes, err := h.inviteService.ListCodes(c.Request.Context(), includeInactive)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, codes)
}

func (h *AdminHandler) GetInviteCode(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	code, err := h.inviteService.GetCode(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, code)
}

// UpdateInviteCode applies a partial update; fields outside the editable set are ignored.
func (h *AdminHandler) UpdateInviteCode(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	code, err := h.inviteService.UpdateCode(c.Request.Context(), id, patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, code)
}

func (h *AdminHandler) DeleteInviteCode(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if err := h.inviteService.DeleteCode(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, nil)
}

// InviteCodeStats reports attempt counts per outcome for one code.
func (h *AdminHandler) InviteCodeStats(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	stats, err := h.ledger.StatsFor(c.Request.Context(), &id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, stats)
}

// UsageStats reports attempt counts per outcome across all codes.
func (h *AdminHandler) UsageStats(c *gin.Context) {
	stats, err := h.ledger.StatsFor(c.Request.Context(), nil)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, stats)
}

type usageQuery struct {
	CodeID  string    `form:"code_id" binding:"omitempty,uuid"`
	IP      string    `form:"ip" binding:"omitempty,ip"`
	Outcome string    `form:"outcome" binding:"omitempty,oneof=success invalid exhausted expired"`
	Since   time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Until   time.Time `form:"until" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit   int       `form:"limit" binding:"omitempty,min=1,max=500"`
}

// ListUsage returns ledger rows, newest first.
func (h *AdminHandler) ListUsage(c *gin.Context) {
	var q usageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "invalid query: "+err.Error())
		return
	}

	filter := repository.UsageFilter{
		IPAddress: q.IP,
		Outcome:   model.UsageOutcome(q.Outcome),
		Since:     q.Since,
		Until:     q.Until,
		Limit:     q.Limit,
	}
	if q.CodeID != "" {
		id := uuid.MustParse(q.CodeID)
		filter.CodeID = &id
	}

	attempts, err := h.ledger.Attempts(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, attempts)
}

func (h *AdminHandler) GetSettings(c *gin.Context) {
	current, err := h.settingsService.Current(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, current.Values())
}

// UpdateSettings writes the body's keys in name order; the first invalid key
// aborts the rest.
func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if len(body) == 0 {
		h.fail(c, errors.Join(service.ErrInvalidInput, errors.New("no settings given")))
		return
	}

	ctx := c.Request.Context()
	for _, key := range slices.Sorted(maps.Keys(body)) {
		if err := h.settingsService.Set(ctx, key, body[key]); err != nil {
			h.fail(c, err)
			return
		}
	}
	h.GetSettings(c)
}
