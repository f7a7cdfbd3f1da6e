package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/proktor-backend/internal/config"
	"github.com/stemsi/proktor-backend/internal/model"
	"github.com/stemsi/proktor-backend/internal/service"
)

// alertBufferSize bounds the pipeline→hub handoff. When proctors cannot
// keep up the oldest alerts are dropped from the live feed; the database
// copy is unaffected.
const alertBufferSize = 256

type inboundMessage struct {
	client *Client
	msg    *Message
}

// alertEvent is the persisted-pipeline notification injected into the run
// loop by the Broadcaster methods.
type alertEvent struct {
	entry      *model.SecurityLogEntry
	resolvedID uuid.UUID
}

type snapshotRequest struct {
	reply chan []RoomSnapshot
}

// SessionChecker verifies a session id against durable storage before its
// audit events enter the persistence queue and the live feed.
type SessionChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Hub owns every live connection and all room state. A single Run goroutine
// consumes the channels below, so handlers mutate clients and rooms without
// locks. Anything that must not block the loop (Redis, the pipeline) is
// pushed out through buffered channels or short-lived goroutines.
type Hub struct {
	log      zerolog.Logger
	rdb      *redis.Client
	sessions SessionChecker

	register    chan *Client
	unregister  chan *Client
	inbound     chan *inboundMessage
	alerts      chan alertEvent
	snapshotReq chan snapshotRequest

	clients map[string]*Client
	reg     *registry
}

func NewHub(rdb *redis.Client, sessions SessionChecker, log zerolog.Logger) *Hub {
	return &Hub{
		log:         log.With().Str("component", "realtime_hub").Logger(),
		rdb:         rdb,
		sessions:    sessions,
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		inbound:     make(chan *inboundMessage),
		alerts:      make(chan alertEvent, alertBufferSize),
		snapshotReq: make(chan snapshotRequest),
		clients:     make(map[string]*Client),
		reg:         newRegistry(),
	}
}

// Run is the dispatch loop. Exactly one instance must run; it exits when
// ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info().Msg("realtime hub started")
	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("realtime hub stopped")
			return
		case c := <-h.register:
			h.handleRegister(c)
		case c := <-h.unregister:
			h.handleUnregister(c)
		case in := <-h.inbound:
			h.handleMessage(in.client, in.msg)
		case ev := <-h.alerts:
			h.handleAlert(ev)
		case req := <-h.snapshotReq:
			req.reply <- h.reg.snapshot()
		}
	}
}

// Register hands a freshly upgraded connection to the hub.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Snapshot returns the current room directory. Safe from any goroutine.
func (h *Hub) Snapshot(ctx context.Context) []RoomSnapshot {
	req := snapshotRequest{reply: make(chan []RoomSnapshot, 1)}
	select {
	case h.snapshotReq <- req:
	case <-ctx.Done():
		return nil
	}
	select {
	case snap := <-req.reply:
		return snap
	case <-ctx.Done():
		return nil
	}
}

// PublishSecurityLog fans a persisted entry out to the session's viewers
// and to every connected proctor. Never blocks: a saturated hub drops the
// live notification.
func (h *Hub) PublishSecurityLog(entry *model.SecurityLogEntry) {
	select {
	case h.alerts <- alertEvent{entry: entry}:
	default:
		h.log.Warn().Str("session_id", entry.SessionID.String()).Msg("alert buffer full, dropping live notification")
	}
}

// PublishSecurityLogResolved announces a resolved entry to every proctor.
func (h *Hub) PublishSecurityLogResolved(id uuid.UUID) {
	select {
	case h.alerts <- alertEvent{resolvedID: id}:
	default:
		h.log.Warn().Str("log_id", id.String()).Msg("alert buffer full, dropping resolve notification")
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.clients[c.ID] = c
	c.Send(MessageTypeConnected, ConnectedPayload{ConnectionID: c.ID})
	h.log.Debug().Str("connection_id", c.ID).Str("role", string(c.Role)).Msg("client registered")
}

func (h *Hub) handleUnregister(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	close(c.send)

	for _, sessionID := range h.reg.leaveAll(c.ID) {
		h.broadcastPresence(sessionID)
	}
	h.log.Debug().Str("connection_id", c.ID).Msg("client unregistered")
}

func (h *Hub) handleMessage(c *Client, msg *Message) {
	switch msg.Type {
	case MessageTypeJoinSession:
		h.handleJoinSession(c, msg.Payload)
	case MessageTypeSessionMeta:
		h.handleSessionMeta(c, msg.Payload)
	case MessageTypeListSessions:
		h.handleListSessions(c)
	case MessageTypeWatchSession:
		h.handleWatchSession(c, msg.Payload)
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeICECandidate:
		h.handleSignal(c, msg.Type, msg.Payload)
	case MessageTypeSecurityEvent:
		h.handleSecurityEvent(c, msg.Payload)
	case MessageTypePing:
		c.Send(MessageTypePong, nil)
	default:
		c.sendError("unknown message type")
	}
}

func (h *Hub) handleJoinSession(c *Client, raw json.RawMessage) {
	var p JoinSessionPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.SessionID == "" {
		c.sendError("session_id is required")
		return
	}
	h.reg.join(p.SessionID, c)
	h.broadcastPresence(p.SessionID)
}

func (h *Hub) handleSessionMeta(c *Client, raw json.RawMessage) {
	var p SessionMetaPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.SessionID == "" {
		c.sendError("session_id is required")
		return
	}
	// Metadata never creates a room; rooms exist only while they have
	// members, so a meta frame for an unjoined session is refused.
	room := h.reg.setMeta(p.SessionID, RoomMeta{ExamTitle: p.ExamTitle, StudentName: p.StudentName})
	if room == nil {
		c.sendError("join-session required before session-meta")
		return
	}

	// Proctors learn who is behind the room and which connection carries
	// the candidate stream.
	meta := room.meta
	h.broadcastGlobalAdmins(MessageTypeSessionMeta, SessionMetaPayload{
		SessionID:    p.SessionID,
		ExamTitle:    meta.ExamTitle,
		StudentName:  meta.StudentName,
		ConnectionID: c.ID,
	})
}

func (h *Hub) handleListSessions(c *Client) {
	if !c.IsAdmin() {
		c.sendError("admin access required")
		return
	}
	snap := h.reg.snapshot()
	entries := make([]SessionsListEntry, 0, len(snap))
	for _, s := range snap {
		entries = append(entries, SessionsListEntry{
			SessionID:   s.SessionID,
			Students:    s.Students,
			Admins:      s.Admins,
			ExamTitle:   s.Meta.ExamTitle,
			StudentName: s.Meta.StudentName,
		})
	}
	c.Send(MessageTypeSessionsList, entries)
}

func (h *Hub) handleWatchSession(c *Client, raw json.RawMessage) {
	if !c.IsAdmin() {
		c.sendError("admin access required")
		return
	}
	var p WatchSessionPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.SessionID == "" {
		c.sendError("session_id is required")
		return
	}
	room := h.reg.join(p.SessionID, c)
	h.broadcastPresence(p.SessionID)

	// Ask the whole room to start a fresh negotiation toward the viewer.
	// In practice only candidate connections answer, but responder choice
	// is left to the clients; a stale negotiation with the same viewer is
	// abandoned client-side.
	req := RequestOfferPayload{ViewerConnectionID: c.ID, SessionID: p.SessionID}
	for _, member := range room.students {
		member.Send(MessageTypeRequestOffer, req)
	}
	for id, member := range room.admins {
		if id == c.ID {
			continue
		}
		member.Send(MessageTypeRequestOffer, req)
	}
}

// handleSignal relays a WebRTC negotiation frame to its target connection.
// Payloads pass through untouched except for the From stamp; the relay has
// no opinion about SDP or ICE contents.
func (h *Hub) handleSignal(c *Client, msgType MessageType, raw json.RawMessage) {
	var p SignalPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.To == "" {
		c.sendError("signal target is required")
		return
	}
	target, ok := h.clients[p.To]
	if !ok {
		h.log.Debug().Str("type", string(msgType)).Str("to", p.To).Msg("signal target gone, dropping")
		return
	}
	p.From = c.ID
	target.Send(msgType, p)
}

func (h *Hub) handleSecurityEvent(c *Client, raw json.RawMessage) {
	if c.IsAdmin() {
		c.sendError("student access required")
		return
	}
	var p SecurityEventPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.SessionID == "" || p.EventType == "" {
		c.sendError("session_id and event_type are required")
		return
	}
	sessionID, err := uuid.Parse(p.SessionID)
	if err != nil {
		c.sendError("session_id is invalid")
		return
	}

	entry := &model.SecurityLogEntry{
		ID:        uuid.New(),
		SessionID: sessionID,
		EventType: p.EventType,
		EventData: service.EncodeEventData(p.EventData),
		Severity:  service.NormalizeSeverity(string(p.Severity)),
		CreatedAt: time.Now(),
	}

	// The queue and the live feed only see sessions that exist; an event
	// naming an unknown session is dropped here instead of re-failing its
	// FK at every flush. The check runs off-loop. A storage error lets the
	// event through and leaves the final say to the insert.
	connID := c.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		known, err := h.sessions.Exists(ctx, entry.SessionID)
		if err != nil {
			h.log.Warn().Err(err).Str("session_id", entry.SessionID.String()).Msg("session check failed, keeping event")
		} else if !known {
			h.log.Warn().Str("session_id", entry.SessionID.String()).Str("connection_id", connID).Msg("security event for unknown session, dropping")
			return
		}
		h.enqueuePersist(ctx, entry)
		h.PublishSecurityLog(entry)
	}()
}

// enqueuePersist hands the event to the persistence queue. Losing an
// enqueue costs one audit row, never a connection.
func (h *Hub) enqueuePersist(ctx context.Context, entry *model.SecurityLogEntry) {
	item := model.QueuedSecurityLog{
		SessionID: entry.SessionID,
		EventType: entry.EventType,
		EventData: entry.EventData,
		Severity:  entry.Severity,
		Timestamp: entry.CreatedAt.Unix(),
	}
	data, err := json.Marshal(item)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal queued security log")
		return
	}
	if err := h.rdb.RPush(ctx, config.WorkerKey.PersistSecurityLogsQueue, data).Err(); err != nil {
		h.log.Error().Err(err).Str("session_id", entry.SessionID.String()).Msg("failed to enqueue security log")
	}
}

func (h *Hub) handleAlert(ev alertEvent) {
	if ev.entry != nil {
		h.notifySecurityLog(ev.entry)
		return
	}
	h.broadcastGlobalAdmins(MessageTypeSecurityLogResolved, map[string]string{"id": ev.resolvedID.String()})
}

// notifySecurityLog delivers an entry to the session's viewers and, once,
// to every other connected proctor.
func (h *Hub) notifySecurityLog(entry *model.SecurityLogEntry) {
	sessionID := entry.SessionID.String()
	seen := make(map[string]bool)
	if room := h.reg.get(sessionID); room != nil {
		for id, member := range room.admins {
			member.Send(MessageTypeSecurityLog, entry)
			seen[id] = true
		}
	}
	for id, c := range h.clients {
		if c.IsAdmin() && !seen[id] {
			c.Send(MessageTypeSecurityLog, entry)
		}
	}
}

// broadcastPresence publishes the room's membership twice: to the room's
// own members and to every connected proctor, so dashboards track rooms
// they are not watching.
func (h *Hub) broadcastPresence(sessionID string) {
	payload := PresencePayload{SessionID: sessionID}
	var room *room
	if room = h.reg.get(sessionID); room != nil {
		payload.Students = len(room.students)
		payload.Admins = len(room.admins)
		payload.Meta = room.meta
	}

	seen := make(map[string]bool)
	if room != nil {
		h.broadcastRoom(room, MessageTypePresence, payload, seen)
	}
	for id, c := range h.clients {
		if c.IsAdmin() && !seen[id] {
			c.Send(MessageTypePresence, payload)
		}
	}
}

func (h *Hub) broadcastRoom(r *room, msgType MessageType, payload any, seen map[string]bool) {
	for id, member := range r.students {
		member.Send(msgType, payload)
		if seen != nil {
			seen[id] = true
		}
	}
	for id, member := range r.admins {
		member.Send(msgType, payload)
		if seen != nil {
			seen[id] = true
		}
	}
}

func (h *Hub) broadcastGlobalAdmins(msgType MessageType, payload any) {
	for _, c := range h.clients {
		if c.IsAdmin() {
			c.Send(msgType, payload)
		}
	}
}
