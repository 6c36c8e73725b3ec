package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uasprep/mockexam-backend/internal/model"
)

// ExamSummary is an exam with its aggregate question count, as shown on the
// exam list page.
type ExamSummary struct {
	model.MockExam
	TotalQuestions int `json:"total_questions"`
}

// ExamRepository handles mock exam and section data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an active exam by ID.
func (r *ExamRepository) GetByID(ctx context.Context, examID uuid.UUID) (*model.MockExam, error) {
	e := &model.MockExam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description, is_active, created_at
		 FROM mock_exams
		 WHERE id = $1 AND is_active`, examID,
	).Scan(&e.ID, &e.Name, &e.Description, &e.IsActive, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListActive retrieves all active exams with their active question counts.
func (r *ExamRepository) ListActive(ctx context.Context) ([]ExamSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT e.id, e.name, e.description, e.is_active, e.created_at,
		        COUNT(q.id) FILTER (WHERE q.is_active) AS total_questions
		 FROM mock_exams e
		 LEFT JOIN mock_exam_sections mes ON mes.exam_id = e.id
		 LEFT JOIN exam_sections s ON s.id = mes.section_id AND s.is_active
		 LEFT JOIN questions q ON q.section_id = s.id
		 WHERE e.is_active
		 GROUP BY e.id
		 ORDER BY e.name ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []ExamSummary
	for rows.Next() {
		var e ExamSummary
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.IsActive, &e.CreatedAt, &e.TotalQuestions); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// ListSections retrieves an exam's sections ordered by their short name.
// That ordering is the exam's section progression order.
func (r *ExamRepository) ListSections(ctx context.Context, examID uuid.UUID, activeOnly bool) ([]model.ExamSection, error) {
	query := `SELECT s.id, s.name, s.display_name, s.duration_minutes, s.max_score,
	                 s.min_pass_score, s.has_negative_marking, s.instructions, s.is_active, s.created_at
	          FROM exam_sections s
	          JOIN mock_exam_sections mes ON mes.section_id = s.id
	          WHERE mes.exam_id = $1`
	if activeOnly {
		query += ` AND s.is_active`
	}
	query += ` ORDER BY s.name ASC`

	rows, err := r.pool.Query(ctx, query, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sections []model.ExamSection
	for rows.Next() {
		var s model.ExamSection
		if err := rows.Scan(&s.ID, &s.Name, &s.DisplayName, &s.DurationMinutes, &s.MaxScore,
			&s.MinPassScore, &s.HasNegativeMarking, &s.Instructions, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, err
		}
		sections = append(sections, s)
	}
	return sections, rows.Err()
}

// GetSection retrieves an active section by ID.
func (r *ExamRepository) GetSection(ctx context.Context, sectionID uuid.UUID) (*model.ExamSection, error) {
	s := &model.ExamSection{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, display_name, duration_minutes, max_score,
		        min_pass_score, has_negative_marking, instructions, is_active, created_at
		 FROM exam_sections
		 WHERE id = $1 AND is_active`, sectionID,
	).Scan(&s.ID, &s.Name, &s.DisplayName, &s.DurationMinutes, &s.MaxScore,
		&s.MinPassScore, &s.HasNegativeMarking, &s.Instructions, &s.IsActive, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetConfig retrieves the global exam configuration row. When none has been
// created yet the built-in defaults are returned.
func (r *ExamRepository) GetConfig(ctx context.Context) (*model.ExamConfig, error) {
	c := &model.ExamConfig{}
	err := r.pool.QueryRow(ctx,
		`SELECT exam_instructions, negative_marking_info, technical_requirements,
		        auto_save_interval_seconds, show_results_immediately, updated_at
		 FROM exam_configs
		 ORDER BY id ASC
		 LIMIT 1`,
	).Scan(&c.ExamInstructions, &c.NegativeMarkingInfo, &c.TechnicalRequirements,
		&c.AutoSaveIntervalSeconds, &c.ShowResultsImmediately, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DefaultExamConfig(), nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
