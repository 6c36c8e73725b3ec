package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates exam attempt states. The set is closed: every
// switch over it must handle all five values.
type AttemptStatus string

const (
	AttemptStatusNotStarted    AttemptStatus = "NOT_STARTED"
	AttemptStatusInProgress    AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted     AttemptStatus = "COMPLETED"
	AttemptStatusAutoSubmitted AttemptStatus = "AUTO_SUBMITTED"
	AttemptStatusAbandoned     AttemptStatus = "ABANDONED"
)

// IsTerminal reports whether no further transitions are allowed out of s.
func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case AttemptStatusCompleted, AttemptStatusAutoSubmitted, AttemptStatusAbandoned:
		return true
	case AttemptStatusNotStarted, AttemptStatusInProgress:
		return false
	}
	return false
}

// IsActive reports whether s counts against the one-active-attempt-per-
// (user, exam) invariant.
func (s AttemptStatus) IsActive() bool {
	switch s {
	case AttemptStatusNotStarted, AttemptStatusInProgress:
		return true
	case AttemptStatusCompleted, AttemptStatusAutoSubmitted, AttemptStatusAbandoned:
		return false
	}
	return false
}

// ExamAttempt is one user's run through one mock exam, end to end.
type ExamAttempt struct {
	ID               uuid.UUID     `json:"id"`
	UserID           int           `json:"user_id"`
	ExamID           uuid.UUID     `json:"exam_id"`
	Status           AttemptStatus `json:"status"`
	StartTime        *time.Time    `json:"start_time,omitempty"`
	EndTime          *time.Time    `json:"end_time,omitempty"`
	CurrentSectionID *uuid.UUID    `json:"current_section_id,omitempty"`
	LastActivity     *time.Time    `json:"last_activity,omitempty"`
	TotalScore       *float64      `json:"total_score,omitempty"`
	PercentageScore  *float64      `json:"percentage_score,omitempty"`
	Passed           *bool         `json:"passed,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// DurationTaken returns elapsed wall-clock time for the attempt, measured to
// the end time if finished, otherwise to now. Zero when never started.
func (a *ExamAttempt) DurationTaken(now time.Time) time.Duration {
	if a.StartTime == nil {
		return 0
	}
	if a.EndTime != nil {
		return a.EndTime.Sub(*a.StartTime)
	}
	return now.Sub(*a.StartTime)
}

// SectionAttempt is one user's run through a single section within an attempt.
// MaxPossibleScore is snapshotted from the section definition at creation so
// later edits to the question bank cannot skew historical results.
type SectionAttempt struct {
	ID                   uuid.UUID  `json:"id"`
	AttemptID            uuid.UUID  `json:"attempt_id"`
	SectionID            uuid.UUID  `json:"section_id"`
	StartTime            *time.Time `json:"start_time,omitempty"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	Score                *float64   `json:"score,omitempty"`
	MaxPossibleScore     float64    `json:"max_possible_score"`
	QuestionsAnswered    int        `json:"questions_answered"`
	QuestionsCorrect     int        `json:"questions_correct"`
	IsCompleted          bool       `json:"is_completed"`
	CurrentQuestionIndex int        `json:"current_question_index"`
}

// UserAnswer records a user's selection for one question within a section
// attempt. IsCorrect and PointsEarned are derived from SelectedOptionID on
// every write and are never settable on their own.
type UserAnswer struct {
	ID               uuid.UUID  `json:"id"`
	SectionAttemptID uuid.UUID  `json:"section_attempt_id"`
	QuestionID       uuid.UUID  `json:"question_id"`
	SelectedOptionID *uuid.UUID `json:"selected_option_id,omitempty"`
	IsCorrect        *bool      `json:"is_correct,omitempty"`
	PointsEarned     float64    `json:"points_earned"`
	AnsweredAt       time.Time  `json:"answered_at"`
}

// SaveAnswerRequest is the payload for recording a single answer selection.
type SaveAnswerRequest struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	OptionID   uuid.UUID `json:"option_id" binding:"required"`
}

// AutoSaveAnswer is one batched (question, option) pair within an autosave.
type AutoSaveAnswer struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	OptionID   uuid.UUID `json:"option_id" binding:"required"`
}

// AutoSaveRequest is the periodic autosave payload: pending answers plus the
// client's position within the current section.
type AutoSaveRequest struct {
	Answers              []AutoSaveAnswer `json:"answers" binding:"omitempty,dive"`
	CurrentQuestionIndex *int             `json:"current_question_index" binding:"omitempty,min=0"`
}
