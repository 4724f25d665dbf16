package main

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/camp-trail/internal/account"
	"github.com/yourusername/camp-trail/internal/auth"
	"github.com/yourusername/camp-trail/internal/config"
	"github.com/yourusername/camp-trail/internal/maintenance"
	"github.com/yourusername/camp-trail/internal/session"
)

func setupMaintenance(cfg *config.Config, accounts *account.Store, sessions *session.Manager) (*maintenance.Manager, error) {
	return maintenance.NewManager(cfg.SessionRedisURL, accounts, sessions, log.Default())
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, authManager *auth.Manager, maintenanceManager *maintenance.Manager) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/register", authManager.Register)
			authRoutes.POST("/login", authManager.Login)
			authRoutes.POST("/logout", authManager.Logout)
			authRoutes.POST("/password",
				authManager.RequireLogin(),
				authManager.ChangePassword,
			)
			authRoutes.GET("/me",
				authManager.RequireLogin(),
				authManager.Me,
			)
		}

		if maintenanceManager != nil {
			api.POST("/maintenance/sweep",
				authManager.RequireLogin(),
				sweepHandler(maintenanceManager),
			)
		}
	}
}

// sweepHandler は掃除ジョブの手動投入ハンドラーを返します。
func sweepHandler(manager *maintenance.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := manager.EnqueueSweep(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "SWEEP_ENQUEUE_FAILED",
				"message": "問題が起きました",
			})
			return
		}
		c.Status(http.StatusAccepted)
	}
}
