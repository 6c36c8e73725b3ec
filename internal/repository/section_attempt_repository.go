package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uasprep/mockexam-backend/internal/model"
)

// SectionAttemptRepository handles section attempt data access.
type SectionAttemptRepository struct {
	pool *pgxpool.Pool
}

// NewSectionAttemptRepository creates a new SectionAttemptRepository.
func NewSectionAttemptRepository(pool *pgxpool.Pool) *SectionAttemptRepository {
	return &SectionAttemptRepository{pool: pool}
}

const sectionAttemptColumns = `id, attempt_id, section_id, start_time, end_time, score,
	max_possible_score, questions_answered, questions_correct, is_completed, current_question_index`

func scanSectionAttempt(row interface{ Scan(...any) error }) (*model.SectionAttempt, error) {
	sa := &model.SectionAttempt{}
	err := row.Scan(&sa.ID, &sa.AttemptID, &sa.SectionID, &sa.StartTime, &sa.EndTime, &sa.Score,
		&sa.MaxPossibleScore, &sa.QuestionsAnswered, &sa.QuestionsCorrect, &sa.IsCompleted, &sa.CurrentQuestionIndex)
	if err != nil {
		return nil, err
	}
	return sa, nil
}

// Upsert lazily creates the section attempt for (attempt, section), stamping
// the start time and snapshotting the section's max score. If one already
// exists it is returned unchanged — concurrent first entries resolve to the
// same row.
func (r *SectionAttemptRepository) Upsert(ctx context.Context, attemptID, sectionID uuid.UUID, maxPossibleScore float64) (*model.SectionAttempt, error) {
	sa, err := scanSectionAttempt(r.pool.QueryRow(ctx,
		`INSERT INTO section_attempts (attempt_id, section_id, start_time, max_possible_score)
		 VALUES ($1, $2, now(), $3)
		 ON CONFLICT (attempt_id, section_id) DO NOTHING
		 RETURNING `+sectionAttemptColumns,
		attemptID, sectionID, maxPossibleScore,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		// Row already existed.
		return r.GetByAttemptAndSection(ctx, attemptID, sectionID)
	}
	return sa, err
}

// GetByAttemptAndSection retrieves the section attempt for (attempt, section).
func (r *SectionAttemptRepository) GetByAttemptAndSection(ctx context.Context, attemptID, sectionID uuid.UUID) (*model.SectionAttempt, error) {
	return scanSectionAttempt(r.pool.QueryRow(ctx,
		`SELECT `+sectionAttemptColumns+`
		 FROM section_attempts
		 WHERE attempt_id = $1 AND section_id = $2`,
		attemptID, sectionID,
	))
}

// ListByAttempt retrieves all section attempts of an attempt, ordered by the
// section short name so results line up with the exam's section order.
func (r *SectionAttemptRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.SectionAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT sa.id, sa.attempt_id, sa.section_id, sa.start_time, sa.end_time, sa.score,
		        sa.max_possible_score, sa.questions_answered, sa.questions_correct,
		        sa.is_completed, sa.current_question_index
		 FROM section_attempts sa
		 JOIN exam_sections s ON s.id = sa.section_id
		 WHERE sa.attempt_id = $1
		 ORDER BY s.name ASC`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.SectionAttempt
	for rows.Next() {
		sa, err := scanSectionAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *sa)
	}
	return attempts, rows.Err()
}

// CompletedSectionIDs returns the IDs of sections already completed within an
// attempt.
func (r *SectionAttemptRepository) CompletedSectionIDs(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT section_id FROM section_attempts
		 WHERE attempt_id = $1 AND is_completed`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	completed := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		completed[id] = true
	}
	return completed, rows.Err()
}

// Save persists a section attempt's mutable fields.
func (r *SectionAttemptRepository) Save(ctx context.Context, sa *model.SectionAttempt) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE section_attempts
		 SET end_time = $1, score = $2, questions_answered = $3, questions_correct = $4,
		     is_completed = $5, current_question_index = $6
		 WHERE id = $7`,
		sa.EndTime, sa.Score, sa.QuestionsAnswered, sa.QuestionsCorrect,
		sa.IsCompleted, sa.CurrentQuestionIndex, sa.ID)
	return err
}

// SetQuestionIndex records the client's resume position within an open
// section attempt.
func (r *SectionAttemptRepository) SetQuestionIndex(ctx context.Context, sectionAttemptID uuid.UUID, index int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE section_attempts
		 SET current_question_index = $1
		 WHERE id = $2 AND NOT is_completed`,
		index, sectionAttemptID)
	return err
}
