package admin

import (
	"log/slog"

	"quickaccess/internal/config"
	"quickaccess/internal/db"

	"github.com/gin-gonic/gin"
)

// SetupRoutes registers the admin API under /admin.
func SetupRoutes(router *gin.Engine, dbService db.Service, cfg *config.Config, logger *slog.Logger) {
	handler := NewHandler(dbService, cfg, logger)

	adminGroup := router.Group("/admin")
	adminGroup.Use(AuthMiddleware(cfg.Admin.Password))
	{
		linksGroup := adminGroup.Group("/links")
		{
			linksGroup.GET("", handler.ListLinksHandler)
			linksGroup.POST("", handler.CreateLinkHandler)
			linksGroup.GET("/:id", handler.GetLinkHandler)
			linksGroup.PUT("/:id", handler.UpdateLinkHandler)
			linksGroup.DELETE("/:id", handler.DeleteLinkHandler)
			linksGroup.PATCH("/:id/active", handler.SetLinkActiveHandler)
		}

		usersGroup := adminGroup.Group("/users")
		{
			usersGroup.GET("", handler.ListUsersHandler)
			usersGroup.POST("", handler.CreateUserHandler)
			usersGroup.GET("/:id", handler.GetUserHandler)
		}

		adminGroup.GET("/logs", handler.ListLogsHandler)
		adminGroup.GET("/stats", handler.StatsHandler)
	}
}
