package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/proktor-backend/internal/config"
	"github.com/stemsi/proktor-backend/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// SecurityLogWorker drains the realtime security event queue into Postgres.
// Events arrive over WebSocket faster than the database should be hit row
// by row, so they are buffered and bulk-inserted.
type SecurityLogWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewSecurityLogWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *SecurityLogWorker {
	return &SecurityLogWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "security_log_worker").Logger(),
	}
}

func (w *SecurityLogWorker) Start(ctx context.Context) {
	w.log.Info().Msg("SecurityLogWorker started")

	buffer := make([]*model.QueuedSecurityLog, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check Flush Conditions (Time or Size)
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0] // Clear buffer, keep capacity
				lastFlushTime = time.Now()
			}
		}

		// 2. Check Context (Graceful Shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
			// Continue
		}

		// 3. Fetch from Redis
		// BLPop blocks for 1 second. Returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistSecurityLogsQueue).Result()

		if err != nil {
			if err == redis.Nil {
				continue // Timeout (Queue empty), loop back to check flush timer
			}
			if ctx.Err() != nil {
				return // Context cancelled
			}
			// Real Redis error (e.g., connection lost)
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		// 4. Process Data
		if len(result) < 2 {
			continue
		}

		var payload model.QueuedSecurityLog
		if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
			// If JSON is malformed, we CANNOT retry it. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &payload)
	}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue
func (w *SecurityLogWorker) flushSafe(ctx context.Context, batch []*model.QueuedSecurityLog) {
	// Try Fast Path: Bulk Insert
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

		// Fallback Path: Insert one by one
		w.fallbackInsert(ctx, batch)
	}
}

func (w *SecurityLogWorker) bulkInsert(ctx context.Context, batch []*model.QueuedSecurityLog) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, p := range batch {
		rows = append(rows, []interface{}{
			uuid.New(), p.SessionID, p.EventType, []byte(p.EventData), string(p.Severity), time.Unix(p.Timestamp, 0),
		})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"security_logs"},
		[]string{"id", "session_id", "event_type", "event_data", "severity", "created_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *SecurityLogWorker) fallbackInsert(ctx context.Context, batch []*model.QueuedSecurityLog) {
	requeueList := make([]*model.QueuedSecurityLog, 0)

	for _, p := range batch {
		_, err := w.pool.Exec(ctx,
			`INSERT INTO security_logs (id, session_id, event_type, event_data, severity, created_at)
             VALUES ($1, $2, $3, $4::jsonb, $5, $6)`,
			uuid.New(), p.SessionID, p.EventType, []byte(p.EventData), string(p.Severity), time.Unix(p.Timestamp, 0),
		)

		if err != nil {
			if nonRetryable(err) {
				// A constraint or data violation will fail identically on
				// every retry; requeueing it would poison the queue.
				w.log.Error().Err(err).Str("session_id", p.SessionID.String()).Msg("Dropping row that can never insert")
				continue
			}
			// Anything else is presumed transient (DB down, timeout) and
			// goes back; the audit trail matters more than a few duplicate
			// retries.
			w.log.Error().Err(err).Str("session_id", p.SessionID.String()).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, p)
		}
	}

	// If we have items to requeue (DB was down), push them back to Redis
	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

// nonRetryable reports whether an insert failure is permanent for the row
// itself. Integrity violations (an event naming a session that never
// existed) and data exceptions fail the same way on every attempt;
// connection-class errors do not.
func nonRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch {
	case strings.HasPrefix(pgErr.Code, "23"): // integrity constraint violation
		return true
	case strings.HasPrefix(pgErr.Code, "22"): // data exception
		return true
	}
	return false
}

func (w *SecurityLogWorker) requeue(ctx context.Context, items []*model.QueuedSecurityLog) {
	// Use a pipeline to push everything back quickly
	pipe := w.rdb.Pipeline()
	for _, p := range items {
		data, _ := json.Marshal(p)
		pipe.RPush(ctx, config.WorkerKey.PersistSecurityLogsQueue, data)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
	} else {
		w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
		// Sleep a bit to avoid thrashing if the DB is down hard
		time.Sleep(2 * time.Second)
	}
}

func (w *SecurityLogWorker) shutdown(buffer []*model.QueuedSecurityLog) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	// Give it 5 seconds to flush to DB
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
