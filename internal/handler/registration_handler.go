package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"biliticket/invitehub/internal/handler/middleware"
	"biliticket/invitehub/internal/i18n"
	"biliticket/invitehub/internal/model"
	"biliticket/invitehub/internal/service"
	"biliticket/invitehub/pkg/response"
)

// RegistrationHandler exposes the registration hooks to a host application.
// The end user's address comes from the host via the client IP header.
type RegistrationHandler struct {
	hooks   service.RegistrationHooks
	catalog *i18n.Catalog
	logger  *zap.Logger
}

func NewRegistrationHandler(hooks service.RegistrationHooks, catalog *i18n.Catalog, logger *zap.Logger) *RegistrationHandler {
	return &RegistrationHandler{hooks: hooks, catalog: catalog, logger: logger}
}

type ValidateRequest struct {
	Code string `json:"code"`
}

type ValidateResponse struct {
	Required bool            `json:"required"`
	Code     *model.CodeView `json:"code,omitempty"`
}

// Validate vets a code submitted on the host's registration form.
func (h *RegistrationHandler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	view, err := h.hooks.OnRegistrationSubmitted(c.Request.Context(), req.Code, middleware.ClientIPFrom(c))
	if err != nil {
		writeServiceError(c, h.catalog, h.logger, err)
		return
	}
	if view == nil {
		response.Success(c, ValidateResponse{Required: false})
		return
	}
	response.Success(c, ValidateResponse{Required: true, Code: view})
}

type CompleteRequest struct {
	CodeID string `json:"code_id" binding:"required,uuid"`
	UserID string `json:"user_id" binding:"required,max=64"`
}

type CompleteResponse struct {
	Granted bool   `json:"granted"`
	Message string `json:"message,omitempty"`
}

// Complete spends the code once the host has created the account. A false
// grant is not an error: the account exists, the code could not be applied.
func (h *RegistrationHandler) Complete(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	codeID := uuid.MustParse(req.CodeID)

	if h.hooks.OnUserCreated(c.Request.Context(), codeID, req.UserID, middleware.ClientIPFrom(c)) {
		response.Success(c, CompleteResponse{Granted: true})
		return
	}
	response.Success(c, CompleteResponse{
		Granted: false,
		Message: h.catalog.T("code_grant_failed", c.GetHeader("Accept-Language")),
	})
}
