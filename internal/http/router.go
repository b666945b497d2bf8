// Package http wires gin routes to handlers and guard chains.
package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/taskhive/taskhive-auth/internal/config"
	"github.com/taskhive/taskhive-auth/internal/domain"
	"github.com/taskhive/taskhive-auth/internal/http/handler"
	"github.com/taskhive/taskhive-auth/internal/http/middleware"
)

// NewRouter builds the route table. Guards are explicit per-route chains:
// the access gate, then (where needed) the role gate, then the handler.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, authMiddleware *middleware.Auth, logger *zap.Logger) *gin.Engine {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	gate := authMiddleware.Gate()

	auth := r.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.GET("/verify-email/:token", authHandler.VerifyEmail)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh-token", authHandler.RefreshToken)
		auth.POST("/logout", gate, authHandler.Logout)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password/:token", authHandler.ResetPassword)
		auth.PUT("/change-password", gate, authHandler.ChangePassword)
		auth.GET("/me", gate, authHandler.Me)
	}

	admin := r.Group("/admin", gate, middleware.RequireRole(domain.RoleAdmin))
	{
		admin.GET("/accounts", authHandler.ListAccounts)
	}

	return r
}
