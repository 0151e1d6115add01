package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vdjjd/faninteract/internal/config"
)

var startTime = time.Now()

const version = "1.2.0"

// HealthCheck returns server health status plus the client bootstrap hints:
// how often pollers should refresh and how many lanes the wall runs.
func HealthCheck(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":           "ok",
			"service":          "faninteract-arena",
			"version":          version,
			"uptime":           time.Since(startTime).String(),
			"poll_interval_ms": cfg.PollIntervalMS,
			"lane_count":       cfg.LaneCount,
		})
	}
}
