package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vdjjd/faninteract/internal/config"
	"github.com/vdjjd/faninteract/internal/game"
)

// CreateSession creates a session in the lobby state.
func CreateSession(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			HostID string `json:"host_id" binding:"required"`
			Title  string `json:"title"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "host_id required"})
			return
		}

		s, err := game.Manager.CreateSession(req.HostID, req.Title)
		if err != nil {
			log.Printf("[ERROR] CreateSession failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}

		c.JSON(http.StatusCreated, s.Snapshot())
	}
}

// ListSessions returns all live sessions for the host dashboard.
func ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": game.Manager.ListSessions()})
}

// GetSession returns a session snapshot. Polling clients call this on a
// fixed period when they have no push channel; the snapshot carries the
// computed time_left so they never assume a full clock.
func GetSession(c *gin.Context) {
	s, err := game.Manager.GetSession(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// UpdateSettings applies host edits to title, duration and max players.
func UpdateSettings(c *gin.Context) {
	var req struct {
		Title        *string `json:"title"`
		DurationSecs *int    `json:"duration_seconds"`
		MaxPlayers   *int    `json:"max_players"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings payload"})
		return
	}

	err := game.Manager.UpdateSettings(c.Param("id"), req.Title, req.DurationSecs, req.MaxPlayers)
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, game.ErrInvalidSettings):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update settings"})
	default:
		s, _ := game.Manager.GetSession(c.Param("id"))
		c.JSON(http.StatusOK, s.Snapshot())
	}
}

// SetWallActive toggles the public wall display for a session.
func SetWallActive(c *gin.Context) {
	var req struct {
		Active bool `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := game.Manager.SetWallActive(c.Param("id"), req.Active); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"wall_active": req.Active})
}

// StartCountdown arms the shared pre-game countdown.
func StartCountdown(c *gin.Context) {
	err := game.Manager.StartCountdown(c.Param("id"))
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case err != nil:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s, _ := game.Manager.GetSession(c.Param("id"))
		c.JSON(http.StatusOK, s.Snapshot())
	}
}

// DeleteSession removes a session and its players. Terminal.
func DeleteSession(c *gin.Context) {
	if err := game.Manager.DeleteSession(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ForceScore lets the host credit a lane directly, e.g. when a contested
// shot did not register. The points land on the next simulation tick.
func ForceScore(c *gin.Context) {
	lane, convErr := strconv.Atoi(c.Param("lane"))
	if convErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lane"})
		return
	}

	err := game.Manager.ForceScore(c.Param("id"), lane)
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case err != nil:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusAccepted, gin.H{"forced": true, "lane": lane})
	}
}

// FireShot is the HTTP fallback for shooter clients without a socket. The
// manager drops shots for non-running sessions and clamps power, so the
// response is always accepted, matching the socket path where a stale shot
// also produces no visible effect.
func FireShot(c *gin.Context) {
	var req struct {
		Lane  int         `json:"lane"`
		Power float64     `json:"power"`
		FX    game.ShotFX `json:"fx"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid shot payload"})
		return
	}

	game.Manager.OnShotFired(c.Param("id"), req.Lane, req.Power, req.FX)
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}
