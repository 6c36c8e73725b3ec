package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/uasprep/mockexam-backend/internal/model"
	"github.com/uasprep/mockexam-backend/internal/repository"
	"github.com/uasprep/mockexam-backend/internal/scoring"
)

// ExamService serves the exam catalog.
type ExamService struct {
	exams ExamStore
	log   zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(exams ExamStore, log zerolog.Logger) *ExamService {
	return &ExamService{
		exams: exams,
		log:   log.With().Str("component", "exam_service").Logger(),
	}
}

// ExamDetail is an exam with its section plan, config, and the total time a
// taker should plan for.
type ExamDetail struct {
	Exam                 *model.MockExam     `json:"exam"`
	Sections             []model.ExamSection `json:"sections"`
	Config               *model.ExamConfig   `json:"config"`
	TotalDurationMinutes int                 `json:"total_duration_minutes"`
}

// ListExams returns all active exams with their question counts.
func (s *ExamService) ListExams(ctx context.Context) ([]repository.ExamSummary, error) {
	exams, err := s.exams.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	return exams, nil
}

// GetExamDetail returns one exam with everything the start screen needs.
func (s *ExamService) GetExamDetail(ctx context.Context, examID uuid.UUID) (*ExamDetail, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	sections, err := s.exams.ListSections(ctx, exam.ID, true)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}

	config, err := s.exams.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("get exam config: %w", err)
	}

	return &ExamDetail{
		Exam:                 exam,
		Sections:             sections,
		Config:               config,
		TotalDurationMinutes: scoring.TotalDurationMinutes(sections),
	}, nil
}
