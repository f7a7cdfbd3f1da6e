package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionSessionsRead allows viewing exam sessions of own exams.
	PermissionSessionsRead Permission = "sessions:read"

	// PermissionSessionsReadAll allows viewing every exam session regardless of author.
	PermissionSessionsReadAll Permission = "sessions:read_all"

	// PermissionSessionsMonitor allows attaching to the live proctoring feeds
	// (WebSocket rooms, alert SSE, room snapshots).
	PermissionSessionsMonitor Permission = "sessions:monitor"

	// PermissionSessionsGrade allows locking a submitted session as graded.
	PermissionSessionsGrade Permission = "sessions:grade"

	// PermissionSecurityResolve allows resolving security log entries.
	PermissionSecurityResolve Permission = "security:resolve"
)

// AllPermissions is a slice of all available permissions.
var AllPermissions = []Permission{
	PermissionSessionsRead,
	PermissionSessionsReadAll,
	PermissionSessionsMonitor,
	PermissionSessionsGrade,
	PermissionSecurityResolve,
}
