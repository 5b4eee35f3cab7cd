package ws

// Operation codes for WebSocket messages
type OpCode int

// ProtocolVersion is the exact server/client WS protocol version.
// Bump this only for breaking wire-contract changes.
const ProtocolVersion = 1

const (
	// DISPATCH - Events with type field
	OpDispatch OpCode = 0

	// Lifecycle ops (Server -> Client)
	OpReady          OpCode = 2 // Sent once the connection is registered
	OpInvalidSession OpCode = 3 // Session revoked, must log in again
)

// Event types (Server -> Client via DISPATCH)
const (
	EventSessionRevoked = "SESSION_REVOKED"
	EventUserUpdate     = "USER_UPDATE"
)

type WSMessage struct {
	Op   OpCode `json:"op"`
	Type string `json:"t,omitempty"`
	Data any    `json:"d,omitempty"`
}

type ReadyPayload struct {
	ProtocolVersion int    `json:"protocolVersion"`
	UserID          string `json:"userId"`
	SessionID       string `json:"sessionId"`
}

type SessionRevokedPayload struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

type InvalidSessionPayload struct {
	Resumable bool `json:"resumable"`
}
