package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stemsi/proktor-backend/internal/model"
	"github.com/stemsi/proktor-backend/internal/repository"
)

// Session lifecycle errors. ErrSessionNotFound doubles as the answer for
// sessions the requester is not allowed to see — existence must not leak.
var (
	ErrExamNotAvailable = errors.New("exam is not open for new sessions")
	ErrSessionNotFound  = errors.New("session not found")
	ErrAccessDenied     = errors.New("access denied")
	ErrSessionNotActive = errors.New("session is not in progress")
	ErrOptionRequired   = errors.New("selected option is required")
	ErrOptionInvalid    = errors.New("selected option does not match the declared set")
)

// Requester carries the verified identity an operation runs on behalf of.
type Requester struct {
	UserID      int
	Role        TokenType
	Permissions []string
}

func (r Requester) hasPermission(code model.Permission) bool {
	for _, p := range r.Permissions {
		if p == string(code) {
			return true
		}
	}
	return false
}

// SessionService owns the exam attempt state machine: start, answer upsert,
// submit, grade-lock, plus the session-scoped security log entry point.
type SessionService struct {
	pool        *pgxpool.Pool
	sessionRepo *repository.ExamSessionRepository
	examRepo    *repository.ExamRepository
	questions   *repository.QuestionLookup
	logRepo     *repository.SecurityLogRepository
	log         zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	pool *pgxpool.Pool,
	sessionRepo *repository.ExamSessionRepository,
	examRepo *repository.ExamRepository,
	questions *repository.QuestionLookup,
	logRepo *repository.SecurityLogRepository,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		pool:        pool,
		sessionRepo: sessionRepo,
		examRepo:    examRepo,
		questions:   questions,
		logRepo:     logRepo,
		log:         log.With().Str("component", "session_service").Logger(),
	}
}

// Start opens (or resumes) a session for the student on the given exam.
// The whole check-then-insert runs in one transaction so two simultaneous
// start calls cannot both miss the existence check and create duplicates.
// Start is idempotent: an existing session of any status is returned as-is.
func (s *SessionService) Start(ctx context.Context, examID uuid.UUID, studentID int, ip, userAgent string) (*model.ExamSession, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin start tx: %w", err)
	}
	defer tx.Rollback(ctx)

	exam, err := s.examRepo.GetByIDTx(ctx, tx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotAvailable
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if !exam.OpenAt(time.Now()) {
		return nil, ErrExamNotAvailable
	}

	existing, err := s.sessionRepo.FindLatestTx(ctx, tx, examID, studentID)
	if err == nil {
		// Page reloads and device hops land here. The row is reused whatever
		// its status; the caller sees the same session id every time.
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit start tx: %w", err)
		}
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("find session: %w", err)
	}

	session := &model.ExamSession{
		ExamID:    examID,
		StudentID: studentID,
		Status:    model.SessionStatusInProgress,
		IP:        ip,
		UserAgent: userAgent,
	}
	if err := s.sessionRepo.InsertTx(ctx, tx, session); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit start tx: %w", err)
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Msg("Session started")

	return session, nil
}

// Get returns a session joined with exam metadata, narrowed by the
// requester's role: students see only their own sessions, admins without
// sessions:read_all only sessions of exams they authored. A session the
// requester may not see answers exactly like one that does not exist.
func (s *SessionService) Get(ctx context.Context, sessionID uuid.UUID, req Requester) (*model.SessionWithExam, error) {
	session, err := s.sessionRepo.GetWithExam(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	switch req.Role {
	case TokenTypeStudent:
		if session.StudentID != req.UserID {
			return nil, ErrSessionNotFound
		}
	case TokenTypeAdmin:
		if !req.hasPermission(model.PermissionSessionsReadAll) && session.ExamAuthorID != req.UserID {
			return nil, ErrSessionNotFound
		}
	default:
		return nil, ErrSessionNotFound
	}

	return session, nil
}

// SubmitAnswer records one answer for an in-progress session owned by the
// caller. Selection questions require a non-empty option which, when the
// question declares an option set, must match one of its values ignoring
// case and surrounding whitespace; the client's value is stored verbatim.
// Essay questions accept any text, including empty. Re-answering the same
// question overwrites the content and accumulates time spent.
func (s *SessionService) SubmitAnswer(ctx context.Context, sessionID uuid.UUID, req *model.SubmitAnswerRequest, studentID int) (*model.Answer, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.StudentID != studentID {
		return nil, ErrAccessDenied
	}
	if session.Status != model.SessionStatusInProgress {
		return nil, ErrSessionNotActive
	}

	question, err := s.questions.Find(ctx, session.ExamID, req.QuestionID)
	if err != nil {
		if errors.Is(err, repository.ErrQuestionNotFound) {
			return nil, repository.ErrQuestionNotFound
		}
		return nil, err
	}

	answer := &model.Answer{
		SessionID:        sessionID,
		QuestionID:       req.QuestionID,
		TimeSpentSeconds: req.TimeSpentSeconds,
	}

	switch question.QuestionType {
	case model.QuestionTypeMultipleChoice:
		option := req.SelectedOption
		if strings.TrimSpace(option) == "" {
			return nil, ErrOptionRequired
		}
		if declared := question.OptionValues(); len(declared) > 0 && !optionMatches(option, declared) {
			return nil, ErrOptionInvalid
		}
		answer.SelectedOption = &option
	default:
		text := req.AnswerText
		answer.AnswerText = &text
	}

	if err := s.sessionRepo.UpsertAnswer(ctx, answer); err != nil {
		return nil, fmt.Errorf("upsert answer: %w", err)
	}
	return answer, nil
}

// SubmitExam transitions the caller's in-progress session to SUBMITTED. The
// ownership and state checks live in the UPDATE's WHERE clause; zero rows
// affected means the session is not available to submit.
func (s *SessionService) SubmitExam(ctx context.Context, sessionID uuid.UUID, studentID int) (*model.ExamSession, error) {
	affected, err := s.sessionRepo.Submit(ctx, sessionID, studentID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("submit session: %w", err)
	}
	if affected == 0 {
		return nil, ErrSessionNotFound
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("reload session: %w", err)
	}

	s.log.Info().
		Str("session_id", sessionID.String()).
		Int("student_id", studentID).
		Msg("Session submitted")

	return session, nil
}

// MarkGraded locks a submitted session as GRADED. Called by the grading
// workflow once every question carries a grade.
func (s *SessionService) MarkGraded(ctx context.Context, sessionID uuid.UUID) error {
	affected, err := s.sessionRepo.MarkGraded(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("mark graded: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListByStudent returns a student's own session history.
func (s *SessionService) ListByStudent(ctx context.Context, studentID int) ([]model.ExamSession, error) {
	return s.sessionRepo.ListByStudent(ctx, studentID)
}

// ListByExam returns all sessions of one exam for the proctor results view.
func (s *SessionService) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.SessionWithExam, error) {
	return s.sessionRepo.ListByExam(ctx, examID)
}

// LogSecurityEvent persists a security log entry for an existing session.
// This is the internal, non-validated entry point: an unrecognized severity
// is coerced to LOW, and event_data that cannot be serialized degrades to a
// storable JSON value instead of failing. The request-level validator takes
// the opposite stance and rejects unknown severities outright.
func (s *SessionService) LogSecurityEvent(ctx context.Context, sessionID uuid.UUID, eventType string, eventData any, severity string) (*model.SecurityLogEntry, error) {
	exists, err := s.sessionRepo.Exists(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if !exists {
		return nil, ErrSessionNotFound
	}

	entry := &model.SecurityLogEntry{
		SessionID: sessionID,
		EventType: eventType,
		EventData: EncodeEventData(eventData),
		Severity:  NormalizeSeverity(severity),
	}
	if err := s.logRepo.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert security log: %w", err)
	}
	return entry, nil
}

// NormalizeSeverity coerces an arbitrary severity string to the fixed enum,
// defaulting anything unrecognized to LOW.
func NormalizeSeverity(raw string) model.Severity {
	switch model.Severity(strings.ToUpper(strings.TrimSpace(raw))) {
	case model.SeverityLow:
		return model.SeverityLow
	case model.SeverityMedium:
		return model.SeverityMedium
	case model.SeverityHigh:
		return model.SeverityHigh
	default:
		return model.SeverityLow
	}
}

// EncodeEventData serializes arbitrary event data to a JSON value that is
// always storable: raw JSON passes through if valid, anything else is
// marshaled, and a marshal failure degrades to the value's string form.
func EncodeEventData(data any) json.RawMessage {
	switch v := data.(type) {
	case nil:
		return json.RawMessage("null")
	case json.RawMessage:
		if json.Valid(v) {
			return v
		}
		quoted, _ := json.Marshal(string(v))
		return quoted
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			quoted, _ := json.Marshal(fmt.Sprint(v))
			return quoted
		}
		return encoded
	}
}

// optionMatches reports whether value matches any declared option, ignoring
// case and surrounding whitespace.
func optionMatches(value string, declared []string) bool {
	needle := strings.TrimSpace(value)
	for _, d := range declared {
		if strings.EqualFold(needle, strings.TrimSpace(d)) {
			return true
		}
	}
	return false
}
