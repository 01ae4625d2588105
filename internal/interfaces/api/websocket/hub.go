// Package websocket implements the live-progress push channel spec §4.12
// names: clients subscribe to a folder's room and receive ingest progress
// events from the Folder and Image Workers as they happen; no component
// sends the sync:completed event. Grounded on the teacher's
// interfaces/api/websocket/websocket_handler.go call sites
// (RegisterClient/UnregisterClient/room-scoped broadcast against a process
// -wide manager); the teacher's own manager implementation was not present
// in the retrieval pack, so the Hub below is built from those call sites as
// a DI-constructed struct instead of the teacher's free-standing package
// singleton, consistent with how this module's rate limiter and caches
// avoid globals elsewhere.
package websocket

import (
	"sync"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"driveingest/internal/pkg/logger"
)

// Event names pushed over the hub, generalized from the teacher's photo and
// sync broadcast events to this domain's folder/image lifecycle.
const (
	EventIngestStarted   = "ingest:started"
	EventIngestProgress  = "ingest:progress"
	EventIngestCompleted = "ingest:completed"
	EventIngestFailed    = "ingest:failed"
	EventImagesAdded     = "images:added"
	EventSyncCompleted   = "sync:completed"
)

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	room string
}

// Hub tracks connected clients per folder room and fans out events. Safe for
// concurrent use by many HTTP goroutines and the background workers.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*client
	rooms   map[string]map[uuid.UUID]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]*client),
		rooms:   make(map[string]map[uuid.UUID]struct{}),
	}
}

// Register binds a connection to a room (typically a folder id, empty for
// the unscoped global feed) and returns the client id to pass to Unregister.
func (h *Hub) Register(conn *websocket.Conn, room string) uuid.UUID {
	id := uuid.New()

	h.mu.Lock()
	h.clients[id] = &client{id: id, conn: conn, room: room}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[uuid.UUID]struct{})
	}
	h.rooms[room][id] = struct{}{}
	h.mu.Unlock()

	logger.API("websocket_connected", "client connected", map[string]interface{}{
		"clientId": id.String(), "room": room,
	})
	return id
}

// Unregister drops a client from its room. Safe to call more than once.
func (h *Hub) Unregister(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[id]
	if !ok {
		return
	}
	delete(h.clients, id)
	if room, ok := h.rooms[c.room]; ok {
		delete(room, id)
		if len(room) == 0 {
			delete(h.rooms, c.room)
		}
	}
}

// Broadcast pushes an event to every client in room. A folder-scoped event
// also reaches clients subscribed to the unscoped "" room, mirroring the
// teacher's global-plus-room fan-out.
func (h *Hub) Broadcast(room, event string, payload interface{}) {
	h.mu.RLock()
	targets := make([]*client, 0)
	for id := range h.rooms[room] {
		targets = append(targets, h.clients[id])
	}
	if room != "" {
		for id := range h.rooms[""] {
			targets = append(targets, h.clients[id])
		}
	}
	h.mu.RUnlock()

	message := map[string]interface{}{"event": event, "data": payload}
	for _, c := range targets {
		if err := c.conn.WriteJSON(message); err != nil {
			logger.Error(logger.CategoryAPI, "websocket_write_failed", "failed to push event to client", err, map[string]interface{}{
				"clientId": c.id.String(), "event": event,
			})
		}
	}
}
