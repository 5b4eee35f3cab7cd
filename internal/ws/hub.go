package ws

import (
	"log/slog"
	"sync"
)

const revokedReason = "session revoked"

// Hub tracks live connections by user and session so revoked sessions can
// be told to go away.
type Hub struct {
	clients map[string]map[*Client]struct{} // userID -> clients
	closed  bool
	mu      sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

// Register adds c and queues its READY message. It returns false once the
// hub is shutting down.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}

	c.trySend(&WSMessage{
		Op: OpReady,
		Data: ReadyPayload{
			ProtocolVersion: ProtocolVersion,
			UserID:          c.userID,
			SessionID:       c.sessionID,
		},
	})

	slog.Debug("client registered", "component", "hub", "user_id", c.userID, "session_id", c.sessionID)
	return true
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	c.CloseSend()
}

// RevokeSessions sends SESSION_REVOKED to every connection bound to one of
// sessionIDs and closes it once the event is flushed.
func (h *Hub) RevokeSessions(userID string, sessionIDs []string) {
	if len(sessionIDs) == 0 {
		return
	}
	revoked := make(map[string]struct{}, len(sessionIDs))
	for _, id := range sessionIDs {
		revoked[id] = struct{}{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.clients[userID]
	count := 0
	for c := range set {
		if _, ok := revoked[c.sessionID]; !ok {
			continue
		}
		c.trySend(&WSMessage{
			Op:   OpDispatch,
			Type: EventSessionRevoked,
			Data: SessionRevokedPayload{SessionID: c.sessionID, Reason: revokedReason},
		})
		delete(set, c)
		c.CloseSend()
		count++
	}
	if len(set) == 0 {
		delete(h.clients, userID)
	}

	if count > 0 {
		slog.Info("closed revoked session connections", "component", "hub", "user_id", userID, "count", count)
	}
}

// ConnectionCount is the number of registered connections for userID.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for userID, set := range h.clients {
		for c := range set {
			c.CloseSend()
		}
		delete(h.clients, userID)
	}
	slog.Info("shutdown complete", "component", "hub")
}
