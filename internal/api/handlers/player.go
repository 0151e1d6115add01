package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/vdjjd/faninteract/internal/config"
	"github.com/vdjjd/faninteract/internal/game"
)

// JoinSession places a guest on a lane of a session. With no lane requested
// the lowest free one is assigned.
func JoinSession(c *gin.Context) {
	var req struct {
		DisplayName string `json:"display_name" binding:"required"`
		PhotoURL    string `json:"photo_url"`
		Lane        *int   `json:"lane"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "display_name required"})
		return
	}

	name := strings.TrimSpace(req.DisplayName)
	if name == "" || len(name) > 50 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid display_name"})
		return
	}

	lane := -1
	if req.Lane != nil {
		lane = *req.Lane
	}

	player, err := game.Manager.JoinPlayer(c.Param("id"), name, req.PhotoURL, lane)
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, game.ErrSessionFull):
		c.JSON(http.StatusConflict, gin.H{"error": "session is full"})
	case errors.Is(err, game.ErrLaneOccupied):
		c.JSON(http.StatusConflict, gin.H{"error": "lane already occupied"})
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusCreated, player)
	}
}

// LeaveSession soft-removes a player; the row and score stay for history.
func LeaveSession(c *gin.Context) {
	game.Manager.DisconnectPlayer(c.Param("id"), c.Param("playerId"))
	c.JSON(http.StatusOK, gin.H{"disconnected": true})
}

// JoinQR renders a QR code PNG for the wall display pointing phones at the
// session join page.
func JoinQR(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("id")
		if _, err := game.Manager.GetSession(sessionID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}

		joinURL := fmt.Sprintf("%s/join/%s", strings.TrimRight(cfg.FrontendURL, "/"), sessionID)
		png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render QR code"})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	}
}
