package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/proktor-backend/internal/config"
	"github.com/stemsi/proktor-backend/internal/model"
	"github.com/stemsi/proktor-backend/internal/repository"
)

// ErrLogEntryNotFound is returned when a resolve targets an unknown or
// already-resolved entry.
var ErrLogEntryNotFound = errors.New("security log entry not found")

// Broadcaster is the realtime hub surface the pipeline fans out through.
// Implementations must not block: fan-out rides on the caller's goroutine.
type Broadcaster interface {
	PublishSecurityLog(entry *model.SecurityLogEntry)
	PublishSecurityLogResolved(id uuid.UUID)
}

// AlertMessage is the envelope published on the global admin alert channel.
type AlertMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// SecurityService wraps session-scoped security logging with live fan-out:
// every persisted entry reaches the session's room viewers through the hub
// and every connected operator through the Redis alert channel, so an
// operator watching nothing still sees the feed.
type SecurityService struct {
	sessions *SessionService
	logRepo  *repository.SecurityLogRepository
	hub      Broadcaster
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewSecurityService creates a new SecurityService.
func NewSecurityService(
	sessions *SessionService,
	logRepo *repository.SecurityLogRepository,
	hub Broadcaster,
	rdb *redis.Client,
	log zerolog.Logger,
) *SecurityService {
	return &SecurityService{
		sessions: sessions,
		logRepo:  logRepo,
		hub:      hub,
		rdb:      rdb,
		log:      log.With().Str("component", "security_service").Logger(),
	}
}

// Log persists an entry and fans it out. This is the strict path: unknown
// sessions fail with ErrSessionNotFound and the caller sees persistence
// errors. Fan-out failures are still only logged — the entry is durable by
// then and delivery is best-effort.
func (s *SecurityService) Log(ctx context.Context, sessionID uuid.UUID, eventType string, eventData any, severity string) (*model.SecurityLogEntry, error) {
	entry, err := s.sessions.LogSecurityEvent(ctx, sessionID, eventType, eventData, severity)
	if err != nil {
		return nil, err
	}
	s.fanOut(ctx, entry)
	return entry, nil
}

// Report is the best-effort side channel: a failure to persist or deliver is
// logged and swallowed, never surfaced to the caller. Business operations
// (exam submission in particular) must not fail because their audit trail
// write did.
func (s *SecurityService) Report(ctx context.Context, sessionID uuid.UUID, eventType string, eventData any, severity string) {
	if _, err := s.Log(ctx, sessionID, eventType, eventData, severity); err != nil {
		s.log.Warn().Err(err).
			Str("session_id", sessionID.String()).
			Str("event_type", eventType).
			Msg("Security event dropped")
	}
}

// Resolve flips an entry's resolved flag exactly once and broadcasts the
// change. An unknown or already-resolved entry yields ErrLogEntryNotFound.
func (s *SecurityService) Resolve(ctx context.Context, id uuid.UUID) error {
	affected, err := s.logRepo.Resolve(ctx, id)
	if err != nil {
		return fmt.Errorf("resolve security log: %w", err)
	}
	if affected == 0 {
		return ErrLogEntryNotFound
	}

	s.hub.PublishSecurityLogResolved(id)
	s.publishAlert(ctx, AlertMessage{
		Event: "security-log-resolved",
		Data:  map[string]any{"id": id.String(), "resolved": true},
	})
	return nil
}

// ListBySession returns all entries of one session for the proctor view.
func (s *SecurityService) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.SecurityLogEntry, error) {
	return s.logRepo.ListBySession(ctx, sessionID)
}

func (s *SecurityService) fanOut(ctx context.Context, entry *model.SecurityLogEntry) {
	s.hub.PublishSecurityLog(entry)
	s.publishAlert(ctx, AlertMessage{Event: "security-log", Data: entry})
}

func (s *SecurityService) publishAlert(ctx context.Context, msg AlertMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("Marshal alert failed")
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.SecurityAlertsChannel(), payload).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Publish alert failed")
	}
}
