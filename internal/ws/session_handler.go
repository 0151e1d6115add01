package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vdjjd/faninteract/internal/game"
)

// ShotFiredData is a shooter's shot event: lane index and normalized power.
type ShotFiredData struct {
	Lane  int         `json:"lane"`
	Power float64     `json:"power"`
	FX    game.ShotFX `json:"fx"`
}

// SessionHub is the single hub for all session rooms.
var SessionHub *Hub

func init() {
	SessionHub = NewHub()
	go runSessionHub(SessionHub)
}

// HandleWebSocket attaches a client to a session room. Shooters identify
// with their player id; walls and dashboards attach read-mostly.
func HandleWebSocket(c *gin.Context) {
	sessionID := c.Param("id")
	role := c.DefaultQuery("role", "wall")
	playerID := c.Query("player")

	if _, err := game.Manager.GetSession(sessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	client := &Client{
		conn:      conn,
		clientID:  uuid.NewString(),
		sessionID: sessionID,
		role:      role,
		playerID:  playerID,
		send:      make(chan []byte, 256),
	}

	SessionHub.register <- client

	go client.writePump()
	go client.readPump()
}

// runSessionHub processes client registration and departure.
func runSessionHub(h *Hub) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()

			// A shooter reconnecting replaces its previous connection. The
			// stale client leaves the room here, so its later unregister is a
			// no-op and never soft-disconnects the live player.
			if client.role == "shooter" && client.playerID != "" {
				if room, ok := h.sessionRooms[client.sessionID]; ok {
					for id, old := range room {
						if old.role != "shooter" || old.playerID != client.playerID {
							continue
						}
						log.Printf("[WS] Shooter %s reconnecting to session %s - closing old connection", client.playerID, client.sessionID)
						if old.conn != nil {
							old.conn.WriteControl(websocket.CloseMessage,
								websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced by new connection"),
								time.Now().Add(5*time.Second))
							old.conn.Close()
						}
						delete(h.clients, id)
						delete(room, id)
						close(old.send)
					}
				}
			}

			h.clients[client.clientID] = client
			if _, exists := h.sessionRooms[client.sessionID]; !exists {
				h.sessionRooms[client.sessionID] = make(map[string]*Client)
			}
			h.sessionRooms[client.sessionID][client.clientID] = client
			h.mu.Unlock()

			log.Printf("[WS] Client %s (%s) connected to session %s", client.clientID, client.role, client.sessionID)

			// Push current state immediately so a late joiner anchors to the
			// persisted timer rather than assuming a full clock.
			if s, err := game.Manager.GetSession(client.sessionID); err == nil {
				snap := s.Snapshot()
				h.SendToClient(client.clientID, map[string]interface{}{
					"type":    "session_state",
					"session": snap,
				})
			}

		case client := <-h.unregister:
			h.mu.Lock()
			_, existed := h.clients[client.clientID]
			if existed {
				delete(h.clients, client.clientID)
				if room, ok := h.sessionRooms[client.sessionID]; ok {
					delete(room, client.clientID)
					if len(room) == 0 {
						delete(h.sessionRooms, client.sessionID)
					}
				}
				close(client.send)
			}
			h.mu.Unlock()

			// A replaced connection was already removed at registration; only
			// a current connection dropping counts as the player leaving.
			if !existed {
				continue
			}

			log.Printf("[WS] Client %s disconnected from session %s", client.clientID, client.sessionID)

			if client.role == "shooter" && client.playerID != "" {
				game.Manager.DisconnectPlayer(client.sessionID, client.playerID)
			}
		}
	}
}

// readPump reads and dispatches messages from one client connection.
func (c *Client) readPump() {
	defer func() {
		SessionHub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Unexpected close for client %s: %v", c.clientID, err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		c.handleMessage(msg)
	}
}

// handleMessage processes incoming session messages.
func (c *Client) handleMessage(msg WSMessage) {
	switch msg.Type {
	case "shot_fired":
		var data ShotFiredData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("Invalid shot data")
			return
		}
		// Validation (running state, lane bounds, power clamp) happens in
		// the manager; bad shots are dropped there without a reply.
		game.Manager.OnShotFired(c.sessionID, data.Lane, data.Power, data.FX)

	case "start_countdown":
		if err := game.Manager.StartCountdown(c.sessionID); err != nil {
			c.sendError(err.Error())
		}

	case "force_score":
		var data struct {
			Lane int `json:"lane"`
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("Invalid lane data")
			return
		}
		if err := game.Manager.ForceScore(c.sessionID, data.Lane); err != nil {
			c.sendError(err.Error())
		}

	case "get_state":
		s, err := game.Manager.GetSession(c.sessionID)
		if err != nil {
			c.sendError("Session not found")
			return
		}
		snap := s.Snapshot()
		data, _ := json.Marshal(map[string]interface{}{
			"type":    "session_state",
			"session": snap,
		})
		select {
		case c.send <- data:
		default:
		}

	default:
		c.sendError("Unknown message type")
	}
}
