package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uasprep/mockexam-backend/internal/model"
	"github.com/uasprep/mockexam-backend/internal/repository"
)

// The interfaces below are the service layer's view of the answer store. The
// pgx repositories satisfy them in production; tests substitute in-memory
// fakes. Absence is signaled with pgx.ErrNoRows throughout.

// ExamStore serves exam, section, and configuration definitions.
type ExamStore interface {
	GetByID(ctx context.Context, examID uuid.UUID) (*model.MockExam, error)
	ListActive(ctx context.Context) ([]repository.ExamSummary, error)
	ListSections(ctx context.Context, examID uuid.UUID, activeOnly bool) ([]model.ExamSection, error)
	GetSection(ctx context.Context, sectionID uuid.UUID) (*model.ExamSection, error)
	GetConfig(ctx context.Context) (*model.ExamConfig, error)
}

// QuestionStore serves question definitions with their options.
type QuestionStore interface {
	ListBySection(ctx context.Context, sectionID uuid.UUID, activeOnly bool) ([]model.Question, error)
	GetByID(ctx context.Context, questionID uuid.UUID) (*model.Question, error)
}

// AttemptStore persists exam attempts.
type AttemptStore interface {
	FindActive(ctx context.Context, userID int, examID uuid.UUID) (*model.ExamAttempt, error)
	FindActiveByUser(ctx context.Context, userID int) (*model.ExamAttempt, error)
	GetByID(ctx context.Context, attemptID uuid.UUID) (*model.ExamAttempt, error)
	Create(ctx context.Context, a *model.ExamAttempt) error
	Save(ctx context.Context, a *model.ExamAttempt) error
	FindLatestFinished(ctx context.Context, userID int, examID uuid.UUID) (*model.ExamAttempt, error)
}

// SectionAttemptStore persists section attempts.
type SectionAttemptStore interface {
	Upsert(ctx context.Context, attemptID, sectionID uuid.UUID, maxPossibleScore float64) (*model.SectionAttempt, error)
	GetByAttemptAndSection(ctx context.Context, attemptID, sectionID uuid.UUID) (*model.SectionAttempt, error)
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.SectionAttempt, error)
	CompletedSectionIDs(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]bool, error)
	Save(ctx context.Context, sa *model.SectionAttempt) error
	SetQuestionIndex(ctx context.Context, sectionAttemptID uuid.UUID, index int) error
}

// AnswerStore persists recorded answers.
type AnswerStore interface {
	Upsert(ctx context.Context, sectionAttemptID, questionID uuid.UUID, selectedOptionID *uuid.UUID, isCorrect *bool, pointsEarned float64) (*model.UserAnswer, error)
	ListBySectionAttempt(ctx context.Context, sectionAttemptID uuid.UUID) ([]model.UserAnswer, error)
	CountBySectionAttempt(ctx context.Context, sectionAttemptID uuid.UUID) (int, error)
}

// SessionCache is the coordination layer over Redis: per-attempt transition
// locks plus hot copies of section start times and activity timestamps. Every
// cached value has the database as fallback, so cache loss is never fatal.
type SessionCache interface {
	// AcquireAttemptLock takes the transition lock for an attempt. Returns
	// false when another request currently holds it.
	AcquireAttemptLock(ctx context.Context, attemptID uuid.UUID) (bool, error)
	ReleaseAttemptLock(ctx context.Context, attemptID uuid.UUID)

	CacheSectionStart(ctx context.Context, attemptID, sectionID uuid.UUID, start time.Time)
	SectionStart(ctx context.Context, attemptID, sectionID uuid.UUID) (time.Time, bool)

	// TouchActivity records the attempt's last activity and enqueues a
	// durable flush for the activity worker.
	TouchActivity(ctx context.Context, attemptID uuid.UUID, at time.Time) error
	LastActivity(ctx context.Context, attemptID uuid.UUID) (time.Time, bool)
}
