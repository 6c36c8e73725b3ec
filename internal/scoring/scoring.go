// Package scoring holds the pure computation core of the exam engine:
// per-answer marks, section totals, pass/fail aggregation, and section
// progression. Nothing here touches storage or the clock.
package scoring

import (
	"github.com/google/uuid"
	"github.com/uasprep/mockexam-backend/internal/model"
)

// AnswerScore is the derived result of scoring one selection.
type AnswerScore struct {
	// IsCorrect is nil when no option was selected.
	IsCorrect    *bool
	PointsEarned float64
}

// ScoreAnswer derives correctness and points for a selection. A nil option
// means "no selection": correctness stays undefined and no points move.
// Incorrect answers deduct the question's negative points only when the
// section uses negative marking.
func ScoreAnswer(question *model.Question, option *model.QuestionOption, negativeMarking bool) AnswerScore {
	if option == nil {
		return AnswerScore{}
	}

	correct := option.IsCorrect
	score := AnswerScore{IsCorrect: &correct}

	if correct {
		score.PointsEarned = question.Points
	} else if negativeMarking {
		score.PointsEarned = -question.NegativePoints
	}

	return score
}

// SectionResult aggregates the recorded answers of one section attempt.
type SectionResult struct {
	Score             float64
	QuestionsAnswered int
	QuestionsCorrect  int
}

// ScoreSection sums the derived points over all answers that carry a
// selection. Unanswered questions contribute nothing and are excluded from
// both counts. The net score is floored at zero even though individual
// incorrect answers may have subtracted below it.
func ScoreSection(answers []model.UserAnswer) SectionResult {
	var res SectionResult
	var total float64

	for i := range answers {
		a := &answers[i]
		if a.SelectedOptionID == nil {
			continue
		}
		res.QuestionsAnswered++
		if a.IsCorrect != nil && *a.IsCorrect {
			res.QuestionsCorrect++
		}
		total += a.PointsEarned
	}

	if total < 0 {
		total = 0
	}
	res.Score = total
	return res
}

// ExamTotals is the aggregate outcome of a finished attempt.
type ExamTotals struct {
	TotalScore      float64
	PercentageScore float64
	Passed          bool
}

// Totals computes the attempt-level aggregates over its section attempts.
// Passing requires every section's score to meet that section's minimum pass
// score; a single failing section fails the whole exam. The percentage is 0
// when no points were achievable.
func Totals(sectionAttempts []model.SectionAttempt, minPassBySection map[uuid.UUID]float64) ExamTotals {
	var total, maxPossible float64
	passed := true

	for i := range sectionAttempts {
		sa := &sectionAttempts[i]
		score := 0.0
		if sa.Score != nil {
			score = *sa.Score
		}
		total += score
		maxPossible += sa.MaxPossibleScore

		if score < minPassBySection[sa.SectionID] {
			passed = false
		}
	}

	totals := ExamTotals{TotalScore: total, Passed: passed}
	if maxPossible > 0 {
		totals.PercentageScore = total / maxPossible * 100
	}
	return totals
}

// NextSection returns the first section in the exam's stable order whose ID
// is not in completed, or nil when every section is done. Sections must
// already be sorted by their short name; progression depends on that order,
// not on creation order or duration.
func NextSection(sections []model.ExamSection, completed map[uuid.UUID]bool) *model.ExamSection {
	for i := range sections {
		if !completed[sections[i].ID] {
			return &sections[i]
		}
	}
	return nil
}

// TotalDurationMinutes is the advertised exam length: the sum of section
// durations plus a fixed buffer for transitions between sections.
func TotalDurationMinutes(sections []model.ExamSection) int {
	total := 0
	for i := range sections {
		total += sections[i].DurationMinutes
	}
	return total + model.TransitionBufferMinutes
}
