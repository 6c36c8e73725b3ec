package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/uasprep/mockexam-backend/internal/model"
	"github.com/uasprep/mockexam-backend/internal/scoring"
)

// SectionResultView is one row of the per-section results breakdown.
type SectionResultView struct {
	SectionName       string  `json:"section_name"`
	Score             float64 `json:"score"`
	MaxScore          float64 `json:"max_score"`
	Percentage        float64 `json:"percentage"`
	QuestionsAnswered int     `json:"questions_answered"`
	QuestionsCorrect  int     `json:"questions_correct"`
	Passed            bool    `json:"passed"`
}

// ExamResults is the full results page for the user's latest finished
// attempt.
type ExamResults struct {
	ExamName        string              `json:"exam_name"`
	Status          model.AttemptStatus `json:"status"`
	TotalScore      float64             `json:"total_score"`
	MaxPossible     float64             `json:"max_possible_score"`
	PercentageScore float64             `json:"percentage_score"`
	Passed          bool                `json:"passed"`
	CompletedAt     *time.Time          `json:"completed_at"`
	DurationTaken   string              `json:"duration_taken"`
	TimeEfficiency  float64             `json:"time_efficiency"`
	Sections        []SectionResultView `json:"sections"`
	Strengths       []string            `json:"strengths"`
	Weaknesses      []string            `json:"weaknesses"`
}

// GetResults assembles the results of the user's most recent finished
// attempt for the exam.
func (s *ExamSessionService) GetResults(ctx context.Context, userID int, examID uuid.UUID) (*ExamResults, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	attempt, err := s.attempts.FindLatestFinished(ctx, userID, examID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoFinishedAttempt
	} else if err != nil {
		return nil, fmt.Errorf("find finished attempt: %w", err)
	}

	sectionAttempts, err := s.sectionAttempts.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("list section attempts: %w", err)
	}

	// Include inactive sections so a historical attempt keeps its names and
	// pass thresholds.
	sections, err := s.exams.ListSections(ctx, examID, false)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	sectionByID := make(map[uuid.UUID]*model.ExamSection, len(sections))
	for i := range sections {
		sectionByID[sections[i].ID] = &sections[i]
	}

	results := &ExamResults{
		ExamName:    exam.Name,
		Status:      attempt.Status,
		CompletedAt: attempt.EndTime,
	}
	if attempt.TotalScore != nil {
		results.TotalScore = *attempt.TotalScore
	}
	if attempt.PercentageScore != nil {
		results.PercentageScore = *attempt.PercentageScore
	}
	if attempt.Passed != nil {
		results.Passed = *attempt.Passed
	}

	var performances []scoring.SectionPerformance
	for i := range sectionAttempts {
		sa := &sectionAttempts[i]
		section := sectionByID[sa.SectionID]
		if section == nil {
			continue
		}

		score := 0.0
		if sa.Score != nil {
			score = *sa.Score
		}
		pct := 0.0
		if sa.MaxPossibleScore > 0 {
			pct = score / sa.MaxPossibleScore * 100
		}

		results.MaxPossible += sa.MaxPossibleScore
		results.Sections = append(results.Sections, SectionResultView{
			SectionName:       section.DisplayName,
			Score:             score,
			MaxScore:          sa.MaxPossibleScore,
			Percentage:        pct,
			QuestionsAnswered: sa.QuestionsAnswered,
			QuestionsCorrect:  sa.QuestionsCorrect,
			Passed:            score >= section.MinPassScore,
		})
		performances = append(performances, scoring.SectionPerformance{
			DisplayName: section.DisplayName,
			Percentage:  pct,
		})
	}

	results.Strengths, results.Weaknesses = scoring.Narrative(performances)

	taken := attempt.DurationTaken(s.now())
	results.DurationTaken = formatDuration(taken)
	// Allocated time is the exam's advertised length, transition buffer
	// included, not just the sections this attempt reached.
	results.TimeEfficiency = timeEfficiency(scoring.TotalDurationMinutes(sections), taken)

	return results, nil
}

// formatDuration renders a duration the way the results page shows it, e.g.
// "1h 12m 5s" or "45m 10s".
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, sec)
	}
	return fmt.Sprintf("%dm %ds", m, sec)
}

// timeEfficiency compares allocated time against time actually taken, capped
// at 100. Finishing in half the allocated time is not "200% efficient".
func timeEfficiency(allocatedMinutes int, taken time.Duration) float64 {
	if taken <= 0 || allocatedMinutes <= 0 {
		return 0
	}
	eff := float64(allocatedMinutes) / taken.Minutes() * 100
	if eff > 100 {
		return 100
	}
	return eff
}
