package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusSubmitted  SessionStatus = "SUBMITTED"
	SessionStatusGraded     SessionStatus = "GRADED"
)

// ExamSession represents a student's timed attempt at one exam.
type ExamSession struct {
	ID          uuid.UUID     `json:"id"`
	ExamID      uuid.UUID     `json:"exam_id"`
	StudentID   int           `json:"student_id"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	SubmittedAt *time.Time    `json:"submitted_at,omitempty"`
	IP          string        `json:"ip"`
	UserAgent   string        `json:"user_agent"`
}

// SessionWithExam is a session joined with the exam metadata callers need
// for display and authorization.
type SessionWithExam struct {
	ExamSession
	ExamTitle    string     `json:"exam_title"`
	ExamAuthorID int        `json:"-"`
	ScheduledEnd *time.Time `json:"scheduled_end,omitempty"`
}

// Answer represents one stored answer, identified by (session_id, question_id).
// Exactly one of AnswerText / SelectedOption is populated, depending on the
// question type.
type Answer struct {
	SessionID        uuid.UUID `json:"session_id"`
	QuestionID       uuid.UUID `json:"question_id"`
	AnswerText       *string   `json:"answer_text,omitempty"`
	SelectedOption   *string   `json:"selected_option,omitempty"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SubmitAnswerRequest is the payload for answering one question. Which of
// the two content fields applies is decided by the question type, not by
// the client.
type SubmitAnswerRequest struct {
	QuestionID       uuid.UUID `json:"question_id" binding:"required"`
	AnswerText       string    `json:"answer_text"`
	SelectedOption   string    `json:"selected_option"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
}
