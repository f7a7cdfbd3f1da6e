package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/proktor-backend/internal/model"
)

// SecurityLogRepository handles security log data access.
type SecurityLogRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityLogRepository creates a new SecurityLogRepository.
func NewSecurityLogRepository(pool *pgxpool.Pool) *SecurityLogRepository {
	return &SecurityLogRepository{pool: pool}
}

// Insert persists a new entry and fills in its ID and creation time.
func (r *SecurityLogRepository) Insert(ctx context.Context, e *model.SecurityLogEntry) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO security_logs (session_id, event_type, event_data, severity)
		 VALUES ($1, $2, $3::jsonb, $4)
		 RETURNING id, resolved, created_at`,
		e.SessionID, e.EventType, e.EventData, e.Severity,
	).Scan(&e.ID, &e.Resolved, &e.CreatedAt)
}

// Resolve flips the resolved flag of an unresolved entry. Returns the number
// of rows affected; zero means the entry is unknown or already resolved.
func (r *SecurityLogRepository) Resolve(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE security_logs SET resolved = TRUE WHERE id = $1 AND resolved = FALSE`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListBySession retrieves all entries of one session, oldest first.
func (r *SecurityLogRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.SecurityLogEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, event_type, event_data, severity, resolved, created_at
		 FROM security_logs
		 WHERE session_id = $1
		 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.SecurityLogEntry
	for rows.Next() {
		var e model.SecurityLogEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EventType, &e.EventData,
			&e.Severity, &e.Resolved, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
