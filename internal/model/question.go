package model

import (
	"time"

	"github.com/google/uuid"
)

// Difficulty classifies a question for authoring purposes only; it does not
// affect scoring.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question is a single multiple-choice question within a section.
type Question struct {
	ID             uuid.UUID        `json:"id"`
	SectionID      uuid.UUID        `json:"section_id"`
	QuestionText   string           `json:"question_text"`
	Difficulty     Difficulty       `json:"difficulty"`
	Points         float64          `json:"points"`
	NegativePoints float64          `json:"negative_points"`
	Explanation    string           `json:"explanation,omitempty"`
	IsActive       bool             `json:"is_active"`
	CreatedAt      time.Time        `json:"created_at"`
	Options        []QuestionOption `json:"options,omitempty"`
}

// OptionByID returns the question's option with the given ID, or nil if the
// option does not belong to this question.
func (q *Question) OptionByID(optionID uuid.UUID) *QuestionOption {
	for i := range q.Options {
		if q.Options[i].ID == optionID {
			return &q.Options[i]
		}
	}
	return nil
}

// QuestionOption is one of the four lettered choices of a question. At most
// one option per question is correct.
type QuestionOption struct {
	ID           uuid.UUID `json:"id"`
	QuestionID   uuid.UUID `json:"question_id"`
	OptionLetter string    `json:"option_letter"`
	OptionText   string    `json:"option_text"`
	IsCorrect    bool      `json:"-"`
}
