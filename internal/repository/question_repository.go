package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/proktor-backend/internal/model"
)

// ErrQuestionNotFound is returned when no source can resolve a question.
var ErrQuestionNotFound = errors.New("question not found")

// QuestionSource resolves question metadata for one exam. Question storage
// has evolved across schema generations (dedicated questions table, generic
// per-exam table, JSON embedded in the exam row), so lookups go through this
// interface and callers never know which shape answered.
type QuestionSource interface {
	Find(ctx context.Context, examID, questionID uuid.UUID) (*model.Question, error)
}

// QuestionLookup tries each configured source in order and returns the first
// hit. Sources signal a miss with ErrQuestionNotFound; any other error stops
// the chain.
type QuestionLookup struct {
	sources []QuestionSource
}

// NewQuestionLookup builds the default three-source chain against the pool.
func NewQuestionLookup(pool *pgxpool.Pool) *QuestionLookup {
	return &QuestionLookup{
		sources: []QuestionSource{
			&questionTableSource{pool: pool},
			&examQuestionTableSource{pool: pool},
			&embeddedQuestionSource{pool: pool},
		},
	}
}

// NewQuestionLookupWithSources builds a chain from explicit sources.
func NewQuestionLookupWithSources(sources ...QuestionSource) *QuestionLookup {
	return &QuestionLookup{sources: sources}
}

// Find resolves a question through the source chain.
func (l *QuestionLookup) Find(ctx context.Context, examID, questionID uuid.UUID) (*model.Question, error) {
	for _, src := range l.sources {
		q, err := src.Find(ctx, examID, questionID)
		if err == nil {
			return q, nil
		}
		if !errors.Is(err, ErrQuestionNotFound) {
			return nil, fmt.Errorf("question lookup: %w", err)
		}
	}
	return nil, ErrQuestionNotFound
}

// questionTableSource reads the current-generation questions table.
type questionTableSource struct {
	pool *pgxpool.Pool
}

func (s *questionTableSource) Find(ctx context.Context, examID, questionID uuid.UUID) (*model.Question, error) {
	q := &model.Question{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, question_text, question_type, options
		 FROM questions
		 WHERE id = $1 AND exam_id = $2`, questionID, examID,
	).Scan(&q.ID, &q.QuestionText, &q.QuestionType, &q.Options)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}
	return q, nil
}

// examQuestionTableSource reads the older exam_questions table, which scoped
// generic question rows per exam before questions got their own table.
type examQuestionTableSource struct {
	pool *pgxpool.Pool
}

func (s *examQuestionTableSource) Find(ctx context.Context, examID, questionID uuid.UUID) (*model.Question, error) {
	q := &model.Question{}
	err := s.pool.QueryRow(ctx,
		`SELECT question_id, question_text, question_type, options
		 FROM exam_questions
		 WHERE question_id = $1 AND exam_id = $2`, questionID, examID,
	).Scan(&q.ID, &q.QuestionText, &q.QuestionType, &q.Options)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}
	return q, nil
}

// embeddedQuestionSource reads the legacy questions_json column on the exam
// row itself. Oldest exams carry their entire paper inline.
type embeddedQuestionSource struct {
	pool *pgxpool.Pool
}

func (s *embeddedQuestionSource) Find(ctx context.Context, examID, questionID uuid.UUID) (*model.Question, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT questions_json FROM exams WHERE id = $1`, examID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}
	if len(payload) == 0 {
		return nil, ErrQuestionNotFound
	}

	var embedded []model.Question
	if err := json.Unmarshal(payload, &embedded); err != nil {
		// A malformed legacy payload is a miss, not a failure; the exam may
		// simply predate the embedded format too.
		return nil, ErrQuestionNotFound
	}
	for i := range embedded {
		if embedded[i].ID == questionID {
			return &embedded[i], nil
		}
	}
	return nil, ErrQuestionNotFound
}
