package scoring

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uasprep/mockexam-backend/internal/model"
)

func question(points, negative float64) *model.Question {
	return &model.Question{ID: uuid.New(), Points: points, NegativePoints: negative}
}

func option(correct bool) *model.QuestionOption {
	return &model.QuestionOption{ID: uuid.New(), IsCorrect: correct}
}

func answer(selected bool, correct *bool, points float64) model.UserAnswer {
	a := model.UserAnswer{QuestionID: uuid.New(), IsCorrect: correct, PointsEarned: points}
	if selected {
		id := uuid.New()
		a.SelectedOptionID = &id
	}
	return a
}

func boolPtr(b bool) *bool { return &b }

func TestScoreAnswer(t *testing.T) {
	tests := []struct {
		name            string
		question        *model.Question
		option          *model.QuestionOption
		negativeMarking bool
		wantCorrect     *bool
		wantPoints      float64
	}{
		{name: "no selection", question: question(1, 0.25), option: nil, negativeMarking: true, wantCorrect: nil, wantPoints: 0},
		{name: "correct", question: question(2, 0.25), option: option(true), negativeMarking: true, wantCorrect: boolPtr(true), wantPoints: 2},
		{name: "incorrect with negative marking", question: question(1, 0.25), option: option(false), negativeMarking: true, wantCorrect: boolPtr(false), wantPoints: -0.25},
		{name: "incorrect without negative marking", question: question(1, 0.25), option: option(false), negativeMarking: false, wantCorrect: boolPtr(false), wantPoints: 0},
		{name: "correct ignores negative marking flag", question: question(3, 1), option: option(true), negativeMarking: false, wantCorrect: boolPtr(true), wantPoints: 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ScoreAnswer(tc.question, tc.option, tc.negativeMarking)
			assert.Equal(t, tc.wantCorrect, got.IsCorrect)
			assert.Equal(t, tc.wantPoints, got.PointsEarned)
		})
	}
}

func TestScoreSection(t *testing.T) {
	t.Run("one correct one incorrect with negative marking", func(t *testing.T) {
		// 2 questions, 1 point each, 0.25 negative: 1 - 0.25 = 0.75.
		answers := []model.UserAnswer{
			answer(true, boolPtr(true), 1),
			answer(true, boolPtr(false), -0.25),
		}
		res := ScoreSection(answers)
		assert.InDelta(t, 0.75, res.Score, 1e-9)
		assert.Equal(t, 2, res.QuestionsAnswered)
		assert.Equal(t, 1, res.QuestionsCorrect)
	})

	t.Run("unanswered question excluded from counts", func(t *testing.T) {
		answers := []model.UserAnswer{
			answer(true, boolPtr(true), 1),
			answer(false, nil, 0),
		}
		res := ScoreSection(answers)
		assert.Equal(t, 1.0, res.Score)
		assert.Equal(t, 1, res.QuestionsAnswered)
		assert.Equal(t, 1, res.QuestionsCorrect)
	})

	t.Run("net score floored at zero", func(t *testing.T) {
		answers := []model.UserAnswer{
			answer(true, boolPtr(false), -0.25),
			answer(true, boolPtr(false), -0.25),
			answer(true, boolPtr(false), -0.25),
		}
		res := ScoreSection(answers)
		assert.Equal(t, 0.0, res.Score)
		assert.Equal(t, 3, res.QuestionsAnswered)
		assert.Equal(t, 0, res.QuestionsCorrect)
	})

	t.Run("empty answer set", func(t *testing.T) {
		res := ScoreSection(nil)
		assert.Equal(t, SectionResult{}, res)
	})
}

func TestTotals(t *testing.T) {
	sectionA := uuid.New()
	sectionB := uuid.New()

	sa := func(sectionID uuid.UUID, score, max float64) model.SectionAttempt {
		return model.SectionAttempt{SectionID: sectionID, Score: &score, MaxPossibleScore: max}
	}

	t.Run("single failing section fails the exam", func(t *testing.T) {
		attempts := []model.SectionAttempt{
			sa(sectionA, 10, 20),
			sa(sectionB, 3, 20),
		}
		minPass := map[uuid.UUID]float64{sectionA: 1, sectionB: 5}

		got := Totals(attempts, minPass)
		assert.Equal(t, 13.0, got.TotalScore)
		assert.InDelta(t, 32.5, got.PercentageScore, 1e-9)
		assert.False(t, got.Passed)
	})

	t.Run("all sections above minimum passes", func(t *testing.T) {
		attempts := []model.SectionAttempt{
			sa(sectionA, 10, 20),
			sa(sectionB, 5, 20),
		}
		minPass := map[uuid.UUID]float64{sectionA: 1, sectionB: 5}

		got := Totals(attempts, minPass)
		assert.True(t, got.Passed)
	})

	t.Run("zero max possible yields zero percentage", func(t *testing.T) {
		attempts := []model.SectionAttempt{sa(sectionA, 0, 0)}
		got := Totals(attempts, map[uuid.UUID]float64{sectionA: 0})
		assert.Equal(t, 0.0, got.PercentageScore)
		assert.True(t, got.Passed)
	})

	t.Run("nil section score treated as zero", func(t *testing.T) {
		attempts := []model.SectionAttempt{{SectionID: sectionA, MaxPossibleScore: 20}}
		got := Totals(attempts, map[uuid.UUID]float64{sectionA: 1})
		assert.Equal(t, 0.0, got.TotalScore)
		assert.False(t, got.Passed)
	})
}

func TestNextSection(t *testing.T) {
	sections := []model.ExamSection{
		{ID: uuid.New(), Name: "advanced_math"},
		{ID: uuid.New(), Name: "english"},
		{ID: uuid.New(), Name: "reasoning"},
	}

	t.Run("empty completed set returns first", func(t *testing.T) {
		next := NextSection(sections, map[uuid.UUID]bool{})
		require.NotNil(t, next)
		assert.Equal(t, "advanced_math", next.Name)
	})

	t.Run("skips completed sections in order", func(t *testing.T) {
		completed := map[uuid.UUID]bool{sections[0].ID: true}
		next := NextSection(sections, completed)
		require.NotNil(t, next)
		assert.Equal(t, "english", next.Name)
	})

	t.Run("gap in the middle is revisited first", func(t *testing.T) {
		completed := map[uuid.UUID]bool{sections[0].ID: true, sections[2].ID: true}
		next := NextSection(sections, completed)
		require.NotNil(t, next)
		assert.Equal(t, "english", next.Name)
	})

	t.Run("all completed returns nil", func(t *testing.T) {
		completed := map[uuid.UUID]bool{
			sections[0].ID: true,
			sections[1].ID: true,
			sections[2].ID: true,
		}
		assert.Nil(t, NextSection(sections, completed))
	})
}

func TestTotalDurationMinutes(t *testing.T) {
	sections := []model.ExamSection{
		{DurationMinutes: 30},
		{DurationMinutes: 25},
		{DurationMinutes: 20},
	}
	assert.Equal(t, 75+model.TransitionBufferMinutes, TotalDurationMinutes(sections))
}

func TestNarrative(t *testing.T) {
	strengths, weaknesses := Narrative([]SectionPerformance{
		{DisplayName: "Reasoning Skills", Percentage: 85},
		{DisplayName: "English Language Skills", Percentage: 65},
		{DisplayName: "Mathematical Skills", Percentage: 50},
		{DisplayName: "Ethical Skills", Percentage: 30},
	})

	assert.Equal(t, []string{
		"Excellent performance in Reasoning Skills",
		"Good understanding of English Language Skills",
	}, strengths)
	assert.Equal(t, []string{
		"Room for improvement in Mathematical Skills",
		"Need more practice in Ethical Skills",
	}, weaknesses)
}
