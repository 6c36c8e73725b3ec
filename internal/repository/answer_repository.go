package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uasprep/mockexam-backend/internal/model"
)

// AnswerRepository handles user answer data access.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// Upsert creates or replaces the answer for (section attempt, question).
// is_correct and points_earned are derived values computed by the caller from
// the selected option; they are written together with the selection so the
// three can never drift apart.
func (r *AnswerRepository) Upsert(ctx context.Context, sectionAttemptID, questionID uuid.UUID, selectedOptionID *uuid.UUID, isCorrect *bool, pointsEarned float64) (*model.UserAnswer, error) {
	a := &model.UserAnswer{}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO user_answers (section_attempt_id, question_id, selected_option_id, is_correct, points_earned)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (section_attempt_id, question_id) DO UPDATE
		 SET selected_option_id = EXCLUDED.selected_option_id,
		     is_correct = EXCLUDED.is_correct,
		     points_earned = EXCLUDED.points_earned,
		     answered_at = now()
		 RETURNING id, section_attempt_id, question_id, selected_option_id, is_correct, points_earned, answered_at`,
		sectionAttemptID, questionID, selectedOptionID, isCorrect, pointsEarned,
	).Scan(&a.ID, &a.SectionAttemptID, &a.QuestionID, &a.SelectedOptionID, &a.IsCorrect, &a.PointsEarned, &a.AnsweredAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListBySectionAttempt retrieves all recorded answers of a section attempt.
func (r *AnswerRepository) ListBySectionAttempt(ctx context.Context, sectionAttemptID uuid.UUID) ([]model.UserAnswer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, section_attempt_id, question_id, selected_option_id, is_correct, points_earned, answered_at
		 FROM user_answers
		 WHERE section_attempt_id = $1
		 ORDER BY answered_at ASC`, sectionAttemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.UserAnswer
	for rows.Next() {
		var a model.UserAnswer
		if err := rows.Scan(&a.ID, &a.SectionAttemptID, &a.QuestionID, &a.SelectedOptionID,
			&a.IsCorrect, &a.PointsEarned, &a.AnsweredAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// CountBySectionAttempt returns how many answers carry a selection for a
// section attempt, for the progress summary. Cleared selections do not count.
func (r *AnswerRepository) CountBySectionAttempt(ctx context.Context, sectionAttemptID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_answers
		 WHERE section_attempt_id = $1 AND selected_option_id IS NOT NULL`, sectionAttemptID,
	).Scan(&count)
	return count, err
}
