package realtime

// RoomMeta is the display metadata attached to a room. Fields are patched
// independently, last writer wins.
type RoomMeta struct {
	ExamTitle   string `json:"exam_title,omitempty"`
	StudentName string `json:"student_name,omitempty"`
}

// RoomSnapshot is the read-only view of one room handed out to dashboards
// and the sessions-list message.
type RoomSnapshot struct {
	SessionID string   `json:"session_id"`
	Students  int      `json:"students"`
	Admins    int      `json:"admins"`
	Meta      RoomMeta `json:"meta"`
}

// room groups the live connections sharing one session id: typically one
// candidate and any number of viewers.
type room struct {
	students map[string]*Client
	admins   map[string]*Client
	meta     RoomMeta
}

func newRoom() *room {
	return &room{
		students: make(map[string]*Client),
		admins:   make(map[string]*Client),
	}
}

func (r *room) empty() bool {
	return len(r.students) == 0 && len(r.admins) == 0
}

// registry is the process-local room directory. It is only ever touched
// from the hub's run loop, which serializes every mutation; no locking.
// Scaling the relay past one process means replacing this map with a
// shared, broadcast-capable backend behind the same operations.
type registry struct {
	rooms map[string]*room
	// sessionByConn reverse-maps a candidate connection to its session for
	// cleanup. Viewers are absent here: one viewer may watch many rooms.
	sessionByConn map[string]string
}

func newRegistry() *registry {
	return &registry{
		rooms:         make(map[string]*room),
		sessionByConn: make(map[string]string),
	}
}

// ensure returns the room for a session id, creating it when absent.
func (g *registry) ensure(sessionID string) *room {
	r, ok := g.rooms[sessionID]
	if !ok {
		r = newRoom()
		g.rooms[sessionID] = r
	}
	return r
}

// join adds a connection to the room's student or admin set by role.
func (g *registry) join(sessionID string, c *Client) *room {
	r := g.ensure(sessionID)
	if c.IsAdmin() {
		r.admins[c.ID] = c
	} else {
		r.students[c.ID] = c
		g.sessionByConn[c.ID] = sessionID
	}
	return r
}

// setMeta merges a metadata patch into an existing room and returns it, or
// nil when no room carries the session id. Metadata alone never creates a
// room: leaveAll only visits rooms the connection joined, so a member-less
// room would outlive every disconnect. Empty patch fields leave the stored
// value untouched.
func (g *registry) setMeta(sessionID string, patch RoomMeta) *room {
	r := g.rooms[sessionID]
	if r == nil {
		return nil
	}
	if patch.ExamTitle != "" {
		r.meta.ExamTitle = patch.ExamTitle
	}
	if patch.StudentName != "" {
		r.meta.StudentName = patch.StudentName
	}
	return r
}

// leaveAll removes a connection from every room and deletes rooms left
// empty. It returns the session ids whose membership changed so the hub can
// broadcast updated presence for each.
func (g *registry) leaveAll(connID string) []string {
	var changed []string
	for sessionID, r := range g.rooms {
		_, wasStudent := r.students[connID]
		_, wasAdmin := r.admins[connID]
		if !wasStudent && !wasAdmin {
			continue
		}
		delete(r.students, connID)
		delete(r.admins, connID)
		if r.empty() {
			delete(g.rooms, sessionID)
		}
		changed = append(changed, sessionID)
	}
	delete(g.sessionByConn, connID)
	return changed
}

// get returns the room for a session id, or nil.
func (g *registry) get(sessionID string) *room {
	return g.rooms[sessionID]
}

// snapshot returns the current view of every room.
func (g *registry) snapshot() []RoomSnapshot {
	out := make([]RoomSnapshot, 0, len(g.rooms))
	for sessionID, r := range g.rooms {
		out = append(out, RoomSnapshot{
			SessionID: sessionID,
			Students:  len(r.students),
			Admins:    len(r.admins),
			Meta:      r.meta,
		})
	}
	return out
}

// liveStudents counts candidate connections across all rooms, the headline
// figure for dashboards.
func (g *registry) liveStudents() int {
	total := 0
	for _, r := range g.rooms {
		total += len(r.students)
	}
	return total
}
