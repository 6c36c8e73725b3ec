package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uasprep/mockexam-backend/internal/model"
)

// QuestionRepository handles question and option data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListBySection retrieves a section's questions with their options, in
// creation order.
func (r *QuestionRepository) ListBySection(ctx context.Context, sectionID uuid.UUID, activeOnly bool) ([]model.Question, error) {
	query := `SELECT id, section_id, question_text, difficulty, points, negative_points,
	                 explanation, is_active, created_at
	          FROM questions
	          WHERE section_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, sectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.SectionID, &q.QuestionText, &q.Difficulty, &q.Points,
			&q.NegativePoints, &q.Explanation, &q.IsActive, &q.CreatedAt); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachOptions(ctx, questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// GetByID retrieves an active question with its options.
func (r *QuestionRepository) GetByID(ctx context.Context, questionID uuid.UUID) (*model.Question, error) {
	q := model.Question{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, section_id, question_text, difficulty, points, negative_points,
		        explanation, is_active, created_at
		 FROM questions
		 WHERE id = $1 AND is_active`, questionID,
	).Scan(&q.ID, &q.SectionID, &q.QuestionText, &q.Difficulty, &q.Points,
		&q.NegativePoints, &q.Explanation, &q.IsActive, &q.CreatedAt)
	if err != nil {
		return nil, err
	}

	qs := []model.Question{q}
	if err := r.attachOptions(ctx, qs); err != nil {
		return nil, err
	}
	return &qs[0], nil
}

// attachOptions loads the options for every question in qs with one query.
func (r *QuestionRepository) attachOptions(ctx context.Context, qs []model.Question) error {
	if len(qs) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(qs))
	index := make(map[uuid.UUID]*model.Question, len(qs))
	for i := range qs {
		ids[i] = qs[i].ID
		index[qs[i].ID] = &qs[i]
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, question_id, option_letter, option_text, is_correct
		 FROM question_options
		 WHERE question_id = ANY($1)
		 ORDER BY option_letter ASC`, ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var o model.QuestionOption
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.OptionLetter, &o.OptionText, &o.IsCorrect); err != nil {
			return err
		}
		if q, ok := index[o.QuestionID]; ok {
			q.Options = append(q.Options, o)
		}
	}
	return rows.Err()
}
