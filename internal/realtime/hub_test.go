package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/proktor-backend/internal/service"
)

// stubSessionChecker answers session existence from memory and reports each
// lookup so tests can synchronize with the off-loop check.
type stubSessionChecker struct {
	exists bool
	err    error
	called chan uuid.UUID
}

func (s *stubSessionChecker) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	if s.called != nil {
		s.called <- id
	}
	return s.exists, s.err
}

func newTestHub() *Hub {
	h := NewHub(nil, &stubSessionChecker{exists: true}, zerolog.Nop())
	return h
}

func newTestClient(h *Hub, id string, role service.TokenType) *Client {
	return &Client{
		ID:   id,
		Role: role,
		hub:  h,
		send: make(chan []byte, 32),
		log:  zerolog.Nop(),
	}
}

// drain decodes every queued frame for a client.
func drain(t *testing.T, c *Client) []Message {
	t.Helper()
	var out []Message
	for {
		select {
		case data := <-c.send:
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("invalid frame: %v", err)
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func countType(msgs []Message, mt MessageType) int {
	n := 0
	for _, m := range msgs {
		if m.Type == mt {
			n++
		}
	}
	return n
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestJoinSessionBroadcastsPresence(t *testing.T) {
	h := newTestHub()
	student := newTestClient(h, "conn-s", service.TokenTypeStudent)
	admin := newTestClient(h, "conn-a", service.TokenTypeAdmin)
	h.clients[student.ID] = student
	h.clients[admin.ID] = admin

	h.handleJoinSession(student, mustMarshal(t, JoinSessionPayload{SessionID: "sess-1"}))

	if h.reg.get("sess-1") == nil {
		t.Fatal("expected room sess-1 to exist")
	}
	if got := len(h.reg.get("sess-1").students); got != 1 {
		t.Fatalf("expected 1 student in room, got %d", got)
	}

	// Room member and global admin both hear about the change.
	if countType(drain(t, student), MessageTypePresence) != 1 {
		t.Error("student should receive room presence")
	}
	adminMsgs := drain(t, admin)
	if countType(adminMsgs, MessageTypePresence) != 1 {
		t.Error("admin should receive global presence")
	}

	var p PresencePayload
	for _, m := range adminMsgs {
		if m.Type == MessageTypePresence {
			if err := json.Unmarshal(m.Payload, &p); err != nil {
				t.Fatalf("presence payload: %v", err)
			}
		}
	}
	if p.SessionID != "sess-1" || p.Students != 1 || p.Admins != 0 {
		t.Errorf("unexpected presence payload: %+v", p)
	}
}

func TestEmptyRoomIsDeleted(t *testing.T) {
	h := newTestHub()
	student := newTestClient(h, "conn-s", service.TokenTypeStudent)
	h.clients[student.ID] = student

	h.handleJoinSession(student, mustMarshal(t, JoinSessionPayload{SessionID: "sess-1"}))
	h.handleUnregister(student)

	if h.reg.get("sess-1") != nil {
		t.Error("room should be deleted when its last member leaves")
	}
	if _, ok := h.clients[student.ID]; ok {
		t.Error("client should be removed from the hub")
	}
}

func TestUnregisterBroadcastsPresencePerRoom(t *testing.T) {
	h := newTestHub()
	admin := newTestClient(h, "conn-a", service.TokenTypeAdmin)
	observer := newTestClient(h, "conn-o", service.TokenTypeAdmin)
	studentA := newTestClient(h, "conn-sa", service.TokenTypeStudent)
	studentB := newTestClient(h, "conn-sb", service.TokenTypeStudent)
	for _, c := range []*Client{admin, observer, studentA, studentB} {
		h.clients[c.ID] = c
	}
	h.handleJoinSession(studentA, mustMarshal(t, JoinSessionPayload{SessionID: "sess-a"}))
	h.handleJoinSession(studentB, mustMarshal(t, JoinSessionPayload{SessionID: "sess-b"}))
	h.handleWatchSession(admin, mustMarshal(t, WatchSessionPayload{SessionID: "sess-a"}))
	h.handleWatchSession(admin, mustMarshal(t, WatchSessionPayload{SessionID: "sess-b"}))
	drain(t, observer)

	h.handleUnregister(admin)

	// One presence update per room the viewer was in.
	if got := countType(drain(t, observer), MessageTypePresence); got != 2 {
		t.Errorf("expected 2 presence broadcasts, got %d", got)
	}
	if len(h.reg.get("sess-a").admins) != 0 || len(h.reg.get("sess-b").admins) != 0 {
		t.Error("viewer should be removed from every room")
	}
}

func TestWatchSessionRequiresAdmin(t *testing.T) {
	h := newTestHub()
	student := newTestClient(h, "conn-s", service.TokenTypeStudent)
	h.clients[student.ID] = student

	h.handleWatchSession(student, mustMarshal(t, WatchSessionPayload{SessionID: "sess-1"}))

	if countType(drain(t, student), MessageTypeError) != 1 {
		t.Error("student watch-session should be rejected")
	}
	if h.reg.get("sess-1") != nil {
		t.Error("rejected watch must not create the room")
	}
}

func TestWatchSessionFansOutRequestOffer(t *testing.T) {
	h := newTestHub()
	student := newTestClient(h, "conn-s", service.TokenTypeStudent)
	viewer := newTestClient(h, "conn-v", service.TokenTypeAdmin)
	other := newTestClient(h, "conn-v2", service.TokenTypeAdmin)
	for _, c := range []*Client{student, viewer, other} {
		h.clients[c.ID] = c
	}
	h.handleJoinSession(student, mustMarshal(t, JoinSessionPayload{SessionID: "sess-1"}))
	h.handleWatchSession(other, mustMarshal(t, WatchSessionPayload{SessionID: "sess-1"}))
	drain(t, student)
	drain(t, viewer)
	drain(t, other)

	h.handleWatchSession(viewer, mustMarshal(t, WatchSessionPayload{SessionID: "sess-1"}))

	studentMsgs := drain(t, student)
	if countType(studentMsgs, MessageTypeRequestOffer) != 1 {
		t.Fatal("candidate should receive exactly one request-offer")
	}
	var req RequestOfferPayload
	for _, m := range studentMsgs {
		if m.Type == MessageTypeRequestOffer {
			if err := json.Unmarshal(m.Payload, &req); err != nil {
				t.Fatalf("request-offer payload: %v", err)
			}
		}
	}
	if req.ViewerConnectionID != "conn-v" || req.SessionID != "sess-1" {
		t.Errorf("unexpected request-offer: %+v", req)
	}

	// The whole room hears the request; responder choice is the clients'.
	if countType(drain(t, other), MessageTypeRequestOffer) != 1 {
		t.Error("every other room member should receive request-offer")
	}
	if countType(drain(t, viewer), MessageTypeRequestOffer) != 0 {
		t.Error("the requesting viewer must not be asked to offer to itself")
	}
}

func TestSignalRoutedVerbatimWithFromStamp(t *testing.T) {
	h := newTestHub()
	student := newTestClient(h, "conn-s", service.TokenTypeStudent)
	viewer := newTestClient(h, "conn-v", service.TokenTypeAdmin)
	h.clients[student.ID] = student
	h.clients[viewer.ID] = viewer

	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0..."}`)
	h.handleSignal(student, MessageTypeOffer, mustMarshal(t, SignalPayload{
		To:          "conn-v",
		From:        "spoofed",
		SessionID:   "sess-1",
		Description: sdp,
	}))

	msgs := drain(t, viewer)
	if countType(msgs, MessageTypeOffer) != 1 {
		t.Fatal("target should receive the offer")
	}
	var p SignalPayload
	if err := json.Unmarshal(msgs[0].Payload, &p); err != nil {
		t.Fatalf("signal payload: %v", err)
	}
	if p.From != "conn-s" {
		t.Errorf("From must be stamped with the sender id, got %q", p.From)
	}
	if string(p.Description) != string(sdp) {
		t.Error("description must pass through untouched")
	}
	if countType(drain(t, student), MessageTypeError) != 0 {
		t.Error("successful relay should not error the sender")
	}
}

func TestSignalToUnknownTargetIsDropped(t *testing.T) {
	h := newTestHub()
	student := newTestClient(h, "conn-s", service.TokenTypeStudent)
	h.clients[student.ID] = student

	h.handleSignal(student, MessageTypeICECandidate, mustMarshal(t, SignalPayload{
		To:        "gone",
		SessionID: "sess-1",
		Candidate: json.RawMessage(`{"candidate":"..."}`),
	}))

	// Vanished targets are a normal race, not a protocol error.
	if msgs := drain(t, student); len(msgs) != 0 {
		t.Errorf("sender should hear nothing, got %d messages", len(msgs))
	}
}

func TestSessionMetaLastWriteWinsPerField(t *testing.T) {
	h := newTestHub()
	student := newTestClient(h, "conn-s", service.TokenTypeStudent)
	admin := newTestClient(h, "conn-a", service.TokenTypeAdmin)
	h.clients[student.ID] = student
	h.clients[admin.ID] = admin

	h.handleJoinSession(student, mustMarshal(t, JoinSessionPayload{SessionID: "sess-1"}))
	drain(t, admin)

	h.handleSessionMeta(student, mustMarshal(t, SessionMetaPayload{SessionID: "sess-1", ExamTitle: "Matematika XII"}))
	h.handleSessionMeta(student, mustMarshal(t, SessionMetaPayload{SessionID: "sess-1", StudentName: "Budi"}))

	meta := h.reg.get("sess-1").meta
	if meta.ExamTitle != "Matematika XII" || meta.StudentName != "Budi" {
		t.Errorf("meta fields must merge independently, got %+v", meta)
	}

	adminMsgs := drain(t, admin)
	if countType(adminMsgs, MessageTypeSessionMeta) != 2 {
		t.Fatal("each meta patch should be announced to proctors")
	}
	var last SessionMetaPayload
	if err := json.Unmarshal(adminMsgs[len(adminMsgs)-1].Payload, &last); err != nil {
		t.Fatalf("session-meta payload: %v", err)
	}
	if last.ConnectionID != "conn-s" {
		t.Errorf("announcement must carry the sender connection id, got %q", last.ConnectionID)
	}
	if last.ExamTitle != "Matematika XII" {
		t.Error("announcement must carry the merged metadata")
	}
}

func TestListSessionsAdminOnly(t *testing.T) {
	h := newTestHub()
	student := newTestClient(h, "conn-s", service.TokenTypeStudent)
	admin := newTestClient(h, "conn-a", service.TokenTypeAdmin)
	h.clients[student.ID] = student
	h.clients[admin.ID] = admin
	h.handleJoinSession(student, mustMarshal(t, JoinSessionPayload{SessionID: "sess-1"}))
	drain(t, student)
	drain(t, admin)

	h.handleListSessions(student)
	if countType(drain(t, student), MessageTypeError) != 1 {
		t.Error("student list-sessions should be rejected")
	}

	h.handleListSessions(admin)
	msgs := drain(t, admin)
	if countType(msgs, MessageTypeSessionsList) != 1 {
		t.Fatal("admin should receive the sessions list")
	}
	var entries []SessionsListEntry
	if err := json.Unmarshal(msgs[0].Payload, &entries); err != nil {
		t.Fatalf("sessions-list payload: %v", err)
	}
	if len(entries) != 1 || entries[0].SessionID != "sess-1" || entries[0].Students != 1 {
		t.Errorf("unexpected sessions list: %+v", entries)
	}
}

func TestRegistrySnapshotCountsLiveStudents(t *testing.T) {
	g := newRegistry()
	h := newTestHub()
	a := newTestClient(h, "a", service.TokenTypeStudent)
	b := newTestClient(h, "b", service.TokenTypeStudent)
	v := newTestClient(h, "v", service.TokenTypeAdmin)
	g.join("s1", a)
	g.join("s2", b)
	g.join("s2", v)

	if got := g.liveStudents(); got != 2 {
		t.Errorf("expected 2 live students, got %d", got)
	}
	if got := len(g.snapshot()); got != 2 {
		t.Errorf("expected 2 rooms in snapshot, got %d", got)
	}

	changed := g.leaveAll("b")
	if len(changed) != 1 || changed[0] != "s2" {
		t.Errorf("expected only s2 to change, got %v", changed)
	}
	if g.get("s2") == nil {
		t.Error("s2 still has a viewer and must survive")
	}

	g.leaveAll("v")
	if g.get("s2") != nil {
		t.Error("s2 must be deleted once empty")
	}
}

func TestSessionMetaWithoutJoinCreatesNoRoom(t *testing.T) {
	h := newTestHub()
	student := newTestClient(h, "conn-s", service.TokenTypeStudent)
	admin := newTestClient(h, "conn-a", service.TokenTypeAdmin)
	h.clients[student.ID] = student
	h.clients[admin.ID] = admin

	h.handleSessionMeta(student, mustMarshal(t, SessionMetaPayload{SessionID: "ghost", ExamTitle: "Fisika"}))

	if h.reg.get("ghost") != nil {
		t.Fatal("metadata alone must not create a room")
	}
	if got := len(h.reg.snapshot()); got != 0 {
		t.Fatalf("expected empty snapshot, got %d rooms", got)
	}
	if countType(drain(t, student), MessageTypeError) != 1 {
		t.Error("sender should be told the meta frame was refused")
	}
	if countType(drain(t, admin), MessageTypeSessionMeta) != 0 {
		t.Error("refused meta must not be announced to proctors")
	}
}

func TestSecurityEventUnknownSessionDropped(t *testing.T) {
	h := newTestHub()
	checker := &stubSessionChecker{exists: false, called: make(chan uuid.UUID, 1)}
	h.sessions = checker
	student := newTestClient(h, "conn-s", service.TokenTypeStudent)
	admin := newTestClient(h, "conn-a", service.TokenTypeAdmin)
	h.clients[student.ID] = student
	h.clients[admin.ID] = admin

	ghost := uuid.New()
	h.handleSecurityEvent(student, mustMarshal(t, SecurityEventPayload{
		SessionID: ghost.String(),
		EventType: "tab_switch",
	}))

	select {
	case id := <-checker.called:
		if id != ghost {
			t.Fatalf("checked wrong session: %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session existence was never checked")
	}

	// The event must reach neither the persistence pipeline nor the feed.
	select {
	case <-h.alerts:
		t.Fatal("unknown-session event must not be broadcast")
	default:
	}
	if countType(drain(t, admin), MessageTypeSecurityLog) != 0 {
		t.Error("proctors must not see events for unknown sessions")
	}
}
