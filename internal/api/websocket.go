package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"vidtube/internal/session"
	"vidtube/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// SessionChecker confirms an access token's session is still live. Access
// tokens outlive logout, so a connection must not be bound to a session that
// was already revoked.
type SessionChecker interface {
	RequireActiveSession(ctx context.Context, userID, sessionID string) error
}

type WebSocketHandler struct {
	hub      *ws.Hub
	guard    *session.Guard
	sessions SessionChecker
}

func NewWebSocketHandler(hub *ws.Hub, guard *session.Guard, sessions SessionChecker) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		guard:    guard,
		sessions: sessions,
	}
}

// GET /ws authenticates before upgrading. Browsers cannot set headers on a
// WebSocket handshake, so a token query parameter is accepted as well.
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	principal, err := h.guard.Authenticate(r.Context(), token)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := h.sessions.RequireActiveSession(r.Context(), principal.User.ID, principal.SessionID); err != nil {
		writeAppError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}

	client := ws.NewClient(h.hub, conn, principal.User.ID, principal.SessionID)
	if !h.hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	// A revocation that landed between the check and Register found no
	// client to close. Check once more now that the hub can reach it.
	if err := h.sessions.RequireActiveSession(context.WithoutCancel(r.Context()), principal.User.ID, principal.SessionID); err != nil {
		h.hub.RevokeSessions(principal.User.ID, []string{principal.SessionID})
	}
}
