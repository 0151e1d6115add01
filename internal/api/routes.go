package api

import (
	"github.com/gin-gonic/gin"

	"github.com/vdjjd/faninteract/internal/api/handlers"
	"github.com/vdjjd/faninteract/internal/config"
	"github.com/vdjjd/faninteract/internal/middleware"
	"github.com/vdjjd/faninteract/internal/ws"
)

// SetupRoutes configures all API routes.
func SetupRoutes(router *gin.Engine, cfg *config.Config) {
	router.Use(middleware.CORSMiddleware(cfg))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck(cfg))

		session := v1.Group("/sessions")
		{
			session.POST("", handlers.CreateSession(cfg))
			session.GET("", handlers.ListSessions)
			session.GET("/:id", handlers.GetSession)
			session.PUT("/:id/settings", handlers.UpdateSettings)
			session.PUT("/:id/wall", handlers.SetWallActive)
			session.POST("/:id/countdown", handlers.StartCountdown)
			session.DELETE("/:id", handlers.DeleteSession)

			session.POST("/:id/players", handlers.JoinSession)
			session.DELETE("/:id/players/:playerId", handlers.LeaveSession)
			session.POST("/:id/shots", handlers.FireShot)
			session.POST("/:id/lanes/:lane/score", handlers.ForceScore)
			session.GET("/:id/qr", handlers.JoinQR(cfg))

			session.GET("/:id/ws", ws.HandleWebSocket)
		}
	}
}
