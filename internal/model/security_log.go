package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Severity classifies how serious a security event is.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// SecurityLogEntry is one recorded integrity violation (or suspicion of one)
// tied to an exam session. Entries are append-only except for the resolved
// flag, which an operator flips exactly once.
type SecurityLogEntry struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	EventType string          `json:"event_type"`
	EventData json.RawMessage `json:"event_data"`
	Severity  Severity        `json:"severity"`
	Resolved  bool            `json:"resolved"`
	CreatedAt time.Time       `json:"created_at"`
}

// QueuedSecurityLog is the Redis queue item carrying an event reported over
// the realtime channel until the persistence worker flushes it to Postgres.
type QueuedSecurityLog struct {
	SessionID uuid.UUID       `json:"session_id"`
	EventType string          `json:"event_type"`
	EventData json.RawMessage `json:"event_data"`
	Severity  Severity        `json:"severity"`
	Timestamp int64           `json:"timestamp"`
}

// LogSecurityEventRequest is the validated REST payload for reporting a
// security event. Unlike the internal logging path, an unknown severity is
// rejected here rather than coerced.
type LogSecurityEventRequest struct {
	EventType string          `json:"event_type" binding:"required,min=1,max=100"`
	EventData json.RawMessage `json:"event_data"`
	Severity  Severity        `json:"severity" binding:"required,oneof=LOW MEDIUM HIGH"`
}
