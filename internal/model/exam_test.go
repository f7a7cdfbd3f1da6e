package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestExamOpenAt(t *testing.T) {
	start := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	exam := &Exam{Status: ExamStatusPublished, ScheduledStart: &start, ScheduledEnd: &end}

	cases := []struct {
		name   string
		status ExamStatus
		at     time.Time
		want   bool
	}{
		{"inside window", ExamStatusPublished, start.Add(time.Hour), true},
		{"in progress inside window", ExamStatusInProgress, start.Add(time.Hour), true},
		{"exactly at start", ExamStatusPublished, start, true},
		{"exactly at end is closed", ExamStatusPublished, end, false},
		{"before start", ExamStatusPublished, start.Add(-time.Minute), false},
		{"after end", ExamStatusPublished, end.Add(time.Minute), false},
		{"draft inside window", ExamStatusDraft, start.Add(time.Hour), false},
		{"completed inside window", ExamStatusCompleted, start.Add(time.Hour), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exam.Status = tc.status
			if got := exam.OpenAt(tc.at); got != tc.want {
				t.Errorf("OpenAt = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestExamOpenAtWithoutSchedule(t *testing.T) {
	// Exams without a window are open whenever their status allows.
	exam := &Exam{Status: ExamStatusPublished}
	if !exam.OpenAt(time.Now()) {
		t.Error("published exam without schedule should be open")
	}
}

func TestQuestionOptionValues(t *testing.T) {
	cases := []struct {
		name    string
		options json.RawMessage
		want    int
	}{
		{"declared set", json.RawMessage(`["A","B","C"]`), 3},
		{"empty set", json.RawMessage(`[]`), 0},
		{"missing", nil, 0},
		{"null", json.RawMessage(`null`), 0},
		{"undecodable", json.RawMessage(`{"a":1}`), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := &Question{Options: tc.options}
			if got := len(q.OptionValues()); got != tc.want {
				t.Errorf("got %d values, want %d", got, tc.want)
			}
		})
	}
}
