package model

import (
	"time"

	"github.com/google/uuid"
)

// TransitionBufferMinutes is added to the sum of section durations when
// reporting an exam's total length, to cover moving between sections.
const TransitionBufferMinutes = 15

// MockExam represents a complete mock exam composed of sections.
type MockExam struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExamSection is one timed section of a mock exam. Sections are ordered by
// Name, which is a stable short key (e.g. "advanced_math", "english") — exam
// flow depends on this ordering being deterministic and total.
type ExamSection struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	DisplayName        string    `json:"display_name"`
	DurationMinutes    int       `json:"duration_minutes"`
	MaxScore           float64   `json:"max_score"`
	MinPassScore       float64   `json:"min_pass_score"`
	HasNegativeMarking bool      `json:"has_negative_marking"`
	Instructions       string    `json:"instructions,omitempty"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
}

// Duration returns the section's time limit as a time.Duration.
func (s *ExamSection) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// ExamConfig holds the global presentation settings shown alongside exam
// instructions. There is a single row; defaults apply when none exists.
type ExamConfig struct {
	ExamInstructions        string    `json:"exam_instructions"`
	NegativeMarkingInfo     string    `json:"negative_marking_info"`
	TechnicalRequirements   string    `json:"technical_requirements"`
	AutoSaveIntervalSeconds int       `json:"auto_save_interval_seconds"`
	ShowResultsImmediately  bool      `json:"show_results_immediately"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// DefaultExamConfig returns the configuration used when no row exists yet.
func DefaultExamConfig() *ExamConfig {
	return &ExamConfig{
		ExamInstructions:        "Please read all instructions carefully before starting the exam.",
		NegativeMarkingInfo:     "Wrong answers will result in negative marking.",
		TechnicalRequirements:   "Ensure stable internet connection and quiet environment.",
		AutoSaveIntervalSeconds: 30,
		ShowResultsImmediately:  true,
	}
}
