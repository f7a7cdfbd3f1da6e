package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// QuestionType distinguishes selection questions from free-text ones.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeEssay          QuestionType = "ESSAY"
)

// Question represents a single exam question as seen by the answer pipeline.
// Question storage has gone through several schema generations, so instances
// may originate from the questions table, the exam_questions table, or the
// JSON payload embedded in the exam row.
type Question struct {
	ID           uuid.UUID       `json:"id"`
	QuestionText string          `json:"question_text"`
	QuestionType QuestionType    `json:"question_type"`
	Options      json.RawMessage `json:"options"`
}

// OptionValues decodes the declared option set. A missing, null, or
// undecodable options payload yields nil, which callers treat as "no
// enumerated set declared" (any non-empty value is then acceptable).
func (q *Question) OptionValues() []string {
	if len(q.Options) == 0 {
		return nil
	}
	var values []string
	if err := json.Unmarshal(q.Options, &values); err != nil {
		return nil
	}
	return values
}
