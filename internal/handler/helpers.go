package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"biliticket/invitehub/internal/i18n"
	"biliticket/invitehub/internal/service"
	"biliticket/invitehub/pkg/response"
)

var kindStatus = map[service.ErrorKind]int{
	service.KindEmptyCode:     http.StatusBadRequest,
	service.KindInvalidInput:  http.StatusBadRequest,
	service.KindRateLimited:   http.StatusTooManyRequests,
	service.KindInvalidCode:   http.StatusUnprocessableEntity,
	service.KindCodeExhausted: http.StatusUnprocessableEntity,
	service.KindCodeExpired:   http.StatusUnprocessableEntity,
	service.KindDuplicateCode: http.StatusConflict,
	service.KindNotFound:      http.StatusNotFound,
	service.KindStorage:       http.StatusInternalServerError,
}

// writeServiceError answers with the error kind and a message localized for
// the request's Accept-Language.
func writeServiceError(c *gin.Context, catalog *i18n.Catalog, logger *zap.Logger, err error) {
	kind := service.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	response.Reason(c, status, string(kind), catalog.T(string(kind), c.GetHeader("Accept-Language")))
}

func parseIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
