package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Client is a single websocket connection; the network side lives in the ws handler.
type Client interface {
	Send(message []byte) bool
	Close()
}

// Event is the JSON envelope pushed to a user's clients.
type Event struct {
	Type    string         `json:"type"`
	TaskID  string         `json:"taskId,omitempty"`
	UserID  string         `json:"userId"`
	Version int            `json:"version"`
	Data    map[string]any `json:"data,omitempty"`
}

const (
	EventTaskCreated     = "task_created"
	EventTaskUpdated     = "task_updated"
	EventTaskDeleted     = "task_deleted"
	EventTaskArchived    = "task_archived"
	EventStrategyApplied = "strategy_applied"
	EventTasksMissed     = "tasks_missed"
)

// Publisher delivers events to a user. Delivery is best effort.
type Publisher interface {
	Publish(userID string, evt Event)
}

// Hub maintains active user connections and broadcasts events to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[Client]struct{})}
}

// Register adds a client under a user ID.
func (h *Hub) Register(userID string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[userID]; !ok {
		h.clients[userID] = make(map[Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
}

// Unregister removes a client and drops the user entry once empty.
func (h *Hub) Unregister(userID string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, userID)
		}
	}
}

// Connected returns how many clients a user has open.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Broadcast sends a raw message to all clients of a user. Failed writes are
// cleaned up by the owning handler.
func (h *Hub) Broadcast(userID string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		c.Send(message)
	}
}

func (h *Hub) Publish(userID string, evt Event) {
	if evt.Version == 0 {
		evt.Version = 1
	}
	if evt.UserID == "" {
		evt.UserID = userID
	}
	b, err := json.Marshal(evt)
	if err != nil {
		slog.Warn("realtime: encode event", "type", evt.Type, "error", err)
		return
	}
	h.Broadcast(userID, b)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(string, Event) {}

var (
	_ Publisher = (*Hub)(nil)
	_ Publisher = Discard{}
)
