package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// Client is one connected websocket client: a wall display, a host
// dashboard, or a phone shooter bound to a lane.
type Client struct {
	conn      *websocket.Conn
	clientID  string
	sessionID string
	role      string // "wall", "dashboard", "shooter"
	playerID  string // set for shooters
	send      chan []byte
}

// Hub maintains the set of active clients grouped into per-session rooms.
type Hub struct {
	clients      map[string]*Client            // clientID -> Client
	sessionRooms map[string]map[string]*Client // sessionID -> clientID -> Client
	register     chan *Client
	unregister   chan *Client
	mu           sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:      make(map[string]*Client),
		sessionRooms: make(map[string]map[string]*Client),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
	}
}

// BroadcastToSession sends a message to every client attached to a session.
// This is the push half of the broadcast channel: delivery is best-effort,
// at-most-once; a full client buffer drops the message rather than blocking
// the simulation.
func (h *Hub) BroadcastToSession(sessionID string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("[WS] Error marshaling message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if room, exists := h.sessionRooms[sessionID]; exists {
		for _, client := range room {
			select {
			case client.send <- data:
			default:
				log.Printf("[WS] Send buffer full for client %s in session %s, dropping message", client.clientID, sessionID)
			}
		}
	}
}

// SendToClient sends a message to a single client.
func (h *Hub) SendToClient(clientID string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("[WS] Error marshaling message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if client, exists := h.clients[clientID]; exists {
		select {
		case client.send <- data:
		default:
			log.Printf("[WS] SendToClient dropped message for client %s (buffer full)", clientID)
		}
	}
}

// RoomSize returns the number of clients attached to a session.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessionRooms[sessionID])
}

// WSMessage is the typed envelope for client-originated messages.
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// writePump writes queued messages to the connection and pings on an interval.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Channel closed: connection replaced or cleaned up.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[WS] Write error for client %s: %v", c.clientID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[WS] Ping error for client %s: %v", c.clientID, err)
				return
			}
		}
	}
}

// sendError sends an error message to the client.
func (c *Client) sendError(message string) {
	data, _ := json.Marshal(map[string]interface{}{
		"type":    "error",
		"message": message,
	})
	select {
	case c.send <- data:
	default:
	}
}
