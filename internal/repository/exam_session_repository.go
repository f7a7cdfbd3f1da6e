package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/proktor-backend/internal/model"
)

// ExamSessionRepository handles exam session and answer data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

const sessionColumns = `id, exam_id, student_id, status, started_at, submitted_at, ip, user_agent`

func scanSession(row pgx.Row) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := row.Scan(&s.ID, &s.ExamID, &s.StudentID, &s.Status, &s.StartedAt,
		&s.SubmittedAt, &s.IP, &s.UserAgent)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// FindLatestTx returns the most recently started session for an exam-student
// pair inside an open transaction, or pgx.ErrNoRows. Used by the start path:
// an existing row of any status is reused, never duplicated.
func (r *ExamSessionRepository) FindLatestTx(ctx context.Context, tx pgx.Tx, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	return scanSession(tx.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE exam_id = $1 AND student_id = $2
		 ORDER BY started_at DESC
		 LIMIT 1`, examID, studentID))
}

// InsertTx creates a new in-progress session inside an open transaction.
func (r *ExamSessionRepository) InsertTx(ctx context.Context, tx pgx.Tx, s *model.ExamSession) error {
	return tx.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, student_id, status, ip, user_agent)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, started_at`,
		s.ExamID, s.StudentID, model.SessionStatusInProgress, s.IP, s.UserAgent,
	).Scan(&s.ID, &s.StartedAt)
}

// GetByID retrieves a bare session row.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
}

// GetWithExam retrieves a session joined with its exam metadata.
func (r *ExamSessionRepository) GetWithExam(ctx context.Context, id uuid.UUID) (*model.SessionWithExam, error) {
	s := &model.SessionWithExam{}
	err := r.pool.QueryRow(ctx,
		`SELECT es.id, es.exam_id, es.student_id, es.status, es.started_at,
		        es.submitted_at, es.ip, es.user_agent,
		        e.title, e.author_id, e.scheduled_end
		 FROM exam_sessions es
		 JOIN exams e ON es.exam_id = e.id
		 WHERE es.id = $1`, id,
	).Scan(&s.ID, &s.ExamID, &s.StudentID, &s.Status, &s.StartedAt,
		&s.SubmittedAt, &s.IP, &s.UserAgent,
		&s.ExamTitle, &s.ExamAuthorID, &s.ScheduledEnd)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Submit transitions a session IN_PROGRESS → SUBMITTED and stamps
// submitted_at. The ownership and state preconditions live in the WHERE
// clause: zero rows affected means the session is not available to submit,
// whatever the reason.
func (r *ExamSessionRepository) Submit(ctx context.Context, sessionID uuid.UUID, studentID int, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $1, submitted_at = $2
		 WHERE id = $3 AND student_id = $4 AND status = $5`,
		model.SessionStatusSubmitted, at, sessionID, studentID, model.SessionStatusInProgress)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkGraded transitions SUBMITTED → GRADED. Invoked by the grading workflow
// once every question of the session has a recorded grade.
func (r *ExamSessionRepository) MarkGraded(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $1
		 WHERE id = $2 AND status = $3`,
		model.SessionStatusGraded, sessionID, model.SessionStatusSubmitted)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListByStudent retrieves all sessions of a student, newest first.
func (r *ExamSessionRepository) ListByStudent(ctx context.Context, studentID int) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE student_id = $1
		 ORDER BY started_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		var s model.ExamSession
		if err := rows.Scan(&s.ID, &s.ExamID, &s.StudentID, &s.Status, &s.StartedAt,
			&s.SubmittedAt, &s.IP, &s.UserAgent); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListByExam retrieves all sessions of an exam with student names, for the
// proctor results view.
func (r *ExamSessionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.SessionWithExam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT es.id, es.exam_id, es.student_id, es.status, es.started_at,
		        es.submitted_at, es.ip, es.user_agent, e.title, e.author_id
		 FROM exam_sessions es
		 JOIN exams e ON es.exam_id = e.id
		 WHERE es.exam_id = $1
		 ORDER BY es.started_at ASC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.SessionWithExam
	for rows.Next() {
		var s model.SessionWithExam
		if err := rows.Scan(&s.ID, &s.ExamID, &s.StudentID, &s.Status, &s.StartedAt,
			&s.SubmittedAt, &s.IP, &s.UserAgent, &s.ExamTitle, &s.ExamAuthorID); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// UpsertAnswer inserts or updates one answer. Content fields are overwritten
// (last write wins) while time_spent accumulates: the stored value and the
// reported increment are each clamped to ≥0 before summing, so revisits add
// elapsed time and a negative report can never shrink the total. The answer
// is updated in place with the stored totals.
func (r *ExamSessionRepository) UpsertAnswer(ctx context.Context, a *model.Answer) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO answers (session_id, question_id, answer_text, selected_option, time_spent, updated_at)
		 VALUES ($1, $2, $3, $4, GREATEST($5, 0), NOW())
		 ON CONFLICT (session_id, question_id) DO UPDATE
		 SET answer_text = EXCLUDED.answer_text,
		     selected_option = EXCLUDED.selected_option,
		     time_spent = GREATEST(answers.time_spent, 0) + GREATEST($5, 0),
		     updated_at = NOW()
		 RETURNING time_spent, updated_at`,
		a.SessionID, a.QuestionID, a.AnswerText, a.SelectedOption, a.TimeSpentSeconds,
	).Scan(&a.TimeSpentSeconds, &a.UpdatedAt)
}

// GetAnswer retrieves a stored answer by its composite key.
func (r *ExamSessionRepository) GetAnswer(ctx context.Context, sessionID, questionID uuid.UUID) (*model.Answer, error) {
	a := &model.Answer{}
	err := r.pool.QueryRow(ctx,
		`SELECT session_id, question_id, answer_text, selected_option, time_spent, updated_at
		 FROM answers
		 WHERE session_id = $1 AND question_id = $2`, sessionID, questionID,
	).Scan(&a.SessionID, &a.QuestionID, &a.AnswerText, &a.SelectedOption,
		&a.TimeSpentSeconds, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Exists reports whether a session row exists.
func (r *ExamSessionRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exam_sessions WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}
