package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/proktor-backend/internal/model"
)

type stubSource struct {
	questions map[uuid.UUID]*model.Question
	err       error
	calls     int
}

func (s *stubSource) Find(ctx context.Context, examID, questionID uuid.UUID) (*model.Question, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if q, ok := s.questions[questionID]; ok {
		return q, nil
	}
	return nil, ErrQuestionNotFound
}

func TestQuestionLookupFirstHitWins(t *testing.T) {
	qID := uuid.New()
	first := &stubSource{questions: map[uuid.UUID]*model.Question{
		qID: {ID: qID, QuestionType: model.QuestionTypeEssay},
	}}
	second := &stubSource{}

	lookup := NewQuestionLookupWithSources(first, second)
	q, err := lookup.Find(context.Background(), uuid.New(), qID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.ID != qID {
		t.Errorf("wrong question returned")
	}
	if second.calls != 0 {
		t.Error("later sources must not be consulted after a hit")
	}
}

func TestQuestionLookupFallsThroughOnMiss(t *testing.T) {
	qID := uuid.New()
	first := &stubSource{}
	second := &stubSource{}
	third := &stubSource{questions: map[uuid.UUID]*model.Question{
		qID: {ID: qID, QuestionType: model.QuestionTypeMultipleChoice},
	}}

	lookup := NewQuestionLookupWithSources(first, second, third)
	q, err := lookup.Find(context.Background(), uuid.New(), qID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.ID != qID {
		t.Errorf("wrong question returned")
	}
	if first.calls != 1 || second.calls != 1 || third.calls != 1 {
		t.Error("every source should be tried in order")
	}
}

func TestQuestionLookupAllMiss(t *testing.T) {
	lookup := NewQuestionLookupWithSources(&stubSource{}, &stubSource{})
	_, err := lookup.Find(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, ErrQuestionNotFound) {
		t.Errorf("expected ErrQuestionNotFound, got %v", err)
	}
}

func TestQuestionLookupRealErrorStopsChain(t *testing.T) {
	boom := errors.New("connection refused")
	first := &stubSource{err: boom}
	second := &stubSource{}

	lookup := NewQuestionLookupWithSources(first, second)
	_, err := lookup.Find(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped source error, got %v", err)
	}
	if second.calls != 0 {
		t.Error("a real error must stop the chain")
	}
}
