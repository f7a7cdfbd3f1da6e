package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft      ExamStatus = "DRAFT"
	ExamStatusPublished  ExamStatus = "PUBLISHED"
	ExamStatusInProgress ExamStatus = "IN_PROGRESS"
	ExamStatusCompleted  ExamStatus = "COMPLETED"
	ExamStatusArchived   ExamStatus = "ARCHIVED"
)

// Exam represents an exam entity as consumed by the session core.
// Exam authoring itself lives outside this service.
type Exam struct {
	ID             uuid.UUID  `json:"id"`
	Title          string     `json:"title"`
	AuthorID       int        `json:"author_id"`
	ScheduledStart *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd   *time.Time `json:"scheduled_end,omitempty"`
	// QuestionsJSON is the legacy embedded question payload. Newer exams keep
	// their questions in dedicated tables; see repository.QuestionSource.
	QuestionsJSON json.RawMessage `json:"-"`
	Status        ExamStatus      `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// OpenAt reports whether the exam accepts new sessions at the given instant:
// it must be published or running, and the instant must fall inside
// [scheduled_start, scheduled_end).
func (e *Exam) OpenAt(now time.Time) bool {
	if e.Status != ExamStatusPublished && e.Status != ExamStatusInProgress {
		return false
	}
	if e.ScheduledStart != nil && now.Before(*e.ScheduledStart) {
		return false
	}
	if e.ScheduledEnd != nil && !now.Before(*e.ScheduledEnd) {
		return false
	}
	return true
}
