package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/vdjjd/faninteract/internal/game"
)

var rdbClient *redis.Client

// SetRedisClient wires the optional Redis client. With no Redis a single
// instance still broadcasts through the local hub; only cross-instance
// fan-out is lost.
func SetRedisClient(r *redis.Client) {
	rdbClient = r
}

// StartSessionEventSubscriber subscribes to the session_events channel and
// rebroadcasts incoming events to local rooms. This is how a wall served by
// one instance sees a countdown started through another.
func StartSessionEventSubscriber(ctx context.Context) {
	if rdbClient == nil {
		log.Println("[WS] Redis client not set; session event subscriber not started")
		return
	}

	pubsub := rdbClient.Subscribe(ctx, "session_events")
	ch := pubsub.Channel()
	go func() {
		log.Println("[WS] session_events subscriber started")
		for msg := range ch {
			var payload map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				log.Printf("[WS] invalid event payload: %v", err)
				continue
			}

			sessionID, _ := payload["session_id"].(string)
			if sessionID == "" {
				continue
			}

			// Skip events this instance published itself; the local hub
			// already delivered them.
			if origin, _ := payload["origin"].(string); origin == game.Manager.InstanceID() {
				continue
			}

			SessionHub.mu.RLock()
			_, exists := SessionHub.sessionRooms[sessionID]
			SessionHub.mu.RUnlock()
			if !exists {
				continue
			}

			SessionHub.BroadcastToSession(sessionID, payload)
		}
	}()
}
