package realtime

import "encoding/json"

// MessageType identifies a realtime protocol message.
type MessageType string

const (
	// ─── Client → Server ────────────────────────────────────────────────
	MessageTypeJoinSession   MessageType = "join-session"
	MessageTypeListSessions  MessageType = "list-sessions"
	MessageTypeWatchSession  MessageType = "watch-session"
	MessageTypeSecurityEvent MessageType = "security-event"
	MessageTypePing          MessageType = "ping"

	// ─── Both directions ────────────────────────────────────────────────
	MessageTypeSessionMeta  MessageType = "session-meta"
	MessageTypeOffer        MessageType = "webrtc-offer"
	MessageTypeAnswer       MessageType = "webrtc-answer"
	MessageTypeICECandidate MessageType = "webrtc-ice-candidate"

	// ─── Server → Client ────────────────────────────────────────────────
	MessageTypeConnected           MessageType = "connected"
	MessageTypePresence            MessageType = "presence"
	MessageTypeSessionsList        MessageType = "sessions-list"
	MessageTypeRequestOffer        MessageType = "request-offer"
	MessageTypeSecurityLog         MessageType = "security-log"
	MessageTypeSecurityLogResolved MessageType = "security-log-resolved"
	MessageTypeError               MessageType = "error"
	MessageTypePong                MessageType = "pong"
)

// Message is the wire envelope in both directions.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinSessionPayload attaches the sender to a session's room.
type JoinSessionPayload struct {
	SessionID string `json:"session_id"`
}

// SessionMetaPayload patches (client→server) or announces (server→client)
// room metadata. Empty fields are left untouched on patch.
type SessionMetaPayload struct {
	SessionID    string `json:"session_id"`
	ExamTitle    string `json:"exam_title,omitempty"`
	StudentName  string `json:"student_name,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
}

// WatchSessionPayload subscribes a viewer to a session's room.
type WatchSessionPayload struct {
	SessionID string `json:"session_id"`
}

// SignalPayload carries WebRTC negotiation messages. The relay never looks
// inside Description or Candidate; it routes on To and stamps From.
type SignalPayload struct {
	To          string          `json:"to"`
	From        string          `json:"from,omitempty"`
	SessionID   string          `json:"session_id"`
	Description json.RawMessage `json:"description,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
}

// SecurityEventPayload is a tamper/anomaly report funneled through the
// realtime channel by the candidate's browser.
type SecurityEventPayload struct {
	SessionID string          `json:"session_id"`
	EventType string          `json:"event_type"`
	EventData json.RawMessage `json:"event_data,omitempty"`
	Severity  string          `json:"severity,omitempty"`
}

// ConnectedPayload tells a freshly authenticated connection its id, which
// peers will later use as a WebRTC signaling target.
type ConnectedPayload struct {
	ConnectionID string `json:"connection_id"`
}

// PresencePayload is the per-room membership snapshot broadcast on every
// membership change, both globally and room-scoped.
type PresencePayload struct {
	SessionID string   `json:"session_id"`
	Students  int      `json:"students"`
	Admins    int      `json:"admins"`
	Meta      RoomMeta `json:"meta"`
}

// SessionsListEntry is one row of the sessions-list answer.
type SessionsListEntry struct {
	SessionID   string `json:"session_id"`
	Students    int    `json:"students"`
	Admins      int    `json:"admins"`
	ExamTitle   string `json:"exam_title,omitempty"`
	StudentName string `json:"student_name,omitempty"`
}

// RequestOfferPayload asks room members to open a fresh peer negotiation
// toward the viewer. A member already negotiating with that viewer discards
// the old state and starts over.
type RequestOfferPayload struct {
	ViewerConnectionID string `json:"viewer_connection_id"`
	SessionID          string `json:"session_id"`
}

// ErrorPayload reports a per-message failure without closing the connection.
type ErrorPayload struct {
	Message string `json:"message"`
}
