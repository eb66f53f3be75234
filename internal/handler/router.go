package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"biliticket/invitehub/internal/config"
	"biliticket/invitehub/internal/handler/middleware"
	jwtpkg "biliticket/invitehub/pkg/jwt"
)

func SetupRouter(
	cfg *config.Config,
	logger *zap.Logger,
	jwtManager *jwtpkg.Manager,
	registrationHandler *RegistrationHandler,
	adminHandler *AdminHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.ClientIP(cfg.Server.ClientIPHeader))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Host application hooks
	registration := r.Group("/api/v1/registration")
	registration.Use(middleware.JWTAuth(jwtManager, jwtpkg.TokenTypeService))
	{
		registration.POST("/validate", registrationHandler.Validate)
		registration.POST("/complete", registrationHandler.Complete)
	}

	// Admin routes (JWT + admin check)
	admin := r.Group("/api/v1/admin")
	admin.Use(middleware.JWTAuth(jwtManager, jwtpkg.TokenTypeAccess))
	admin.Use(middleware.AdminAuth(cfg.Admin.UserIDs))
	{
		admin.POST("/invite-codes", adminHandler.CreateInviteCode)
		admin.POST("/invite-codes/bulk", adminHandler.BulkGenerateInviteCodes)
		admin.GET("/invite-codes", adminHandler.ListInviteCodes)
		admin.GET("/invite-codes/:id", adminHandler.GetInviteCode)
		admin.PATCH("/invite-codes/:id", adminHandler.UpdateInviteCode)
		admin.DELETE("/invite-codes/:id", adminHandler.DeleteInviteCode)
		admin.GET("/invite-codes/:id/stats", adminHandler.InviteCodeStats)

		admin.GET("/usage", adminHandler.ListUsage)
		admin.GET("/usage/stats", adminHandler.UsageStats)

		admin.GET("/settings", adminHandler.GetSettings)
		admin.PUT("/settings", adminHandler.UpdateSettings)
	}

	return r
}
