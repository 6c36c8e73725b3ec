package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uasprep/mockexam-backend/internal/model"
)

// AttemptRepository handles exam attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, user_id, exam_id, status, start_time, end_time,
	current_section_id, last_activity, total_score, percentage_score, passed, created_at`

func scanAttempt(row interface{ Scan(...any) error }) (*model.ExamAttempt, error) {
	a := &model.ExamAttempt{}
	err := row.Scan(&a.ID, &a.UserID, &a.ExamID, &a.Status, &a.StartTime, &a.EndTime,
		&a.CurrentSectionID, &a.LastActivity, &a.TotalScore, &a.PercentageScore, &a.Passed, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// FindActive retrieves the single active (not started or in progress) attempt
// for a user/exam pair. Returns pgx.ErrNoRows when none exists.
func (r *AttemptRepository) FindActive(ctx context.Context, userID int, examID uuid.UUID) (*model.ExamAttempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE user_id = $1 AND exam_id = $2 AND status IN ($3, $4)`,
		userID, examID, model.AttemptStatusNotStarted, model.AttemptStatusInProgress,
	))
}

// FindActiveByUser retrieves the user's active attempt across all exams.
// Used by answer saves, which are keyed by question rather than exam.
func (r *AttemptRepository) FindActiveByUser(ctx context.Context, userID int) (*model.ExamAttempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE user_id = $1 AND status = $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID, model.AttemptStatusInProgress,
	))
}

// GetByID retrieves an attempt by its primary key. The state machine re-reads
// through this after taking the attempt lock, so transitions never act on a
// snapshot loaded before the lock.
func (r *AttemptRepository) GetByID(ctx context.Context, attemptID uuid.UUID) (*model.ExamAttempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE id = $1`,
		attemptID,
	))
}

// Create inserts a new attempt in NOT_STARTED state. The partial unique index
// on (user_id, exam_id) for active statuses makes this safe under concurrent
// enter requests: the loser gets pgx.ErrNoRows and must refetch the winner's
// row.
func (r *AttemptRepository) Create(ctx context.Context, a *model.ExamAttempt) error {
	a.Status = model.AttemptStatusNotStarted
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (user_id, exam_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, exam_id) WHERE status IN ('NOT_STARTED', 'IN_PROGRESS') DO NOTHING
		 RETURNING id, created_at`,
		a.UserID, a.ExamID, a.Status,
	).Scan(&a.ID, &a.CreatedAt)
}

// Save persists an attempt's mutable fields.
func (r *AttemptRepository) Save(ctx context.Context, a *model.ExamAttempt) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = $1, start_time = $2, end_time = $3, current_section_id = $4,
		     last_activity = $5, total_score = $6, percentage_score = $7, passed = $8
		 WHERE id = $9`,
		a.Status, a.StartTime, a.EndTime, a.CurrentSectionID,
		a.LastActivity, a.TotalScore, a.PercentageScore, a.Passed, a.ID)
	return err
}

// FindLatestFinished retrieves the most recently finished attempt for a
// user/exam pair, for the results view. Returns pgx.ErrNoRows when none.
func (r *AttemptRepository) FindLatestFinished(ctx context.Context, userID int, examID uuid.UUID) (*model.ExamAttempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE user_id = $1 AND exam_id = $2 AND status IN ($3, $4)
		 ORDER BY end_time DESC
		 LIMIT 1`,
		userID, examID, model.AttemptStatusCompleted, model.AttemptStatusAutoSubmitted,
	))
}

// ListOverdue retrieves in-progress attempts that look expired: either no
// activity since the cutoff, or the current section's time limit has passed.
// Used by the background sweeper; the locked recovery transition re-checks
// everything, so false positives here are harmless.
func (r *AttemptRepository) ListOverdue(ctx context.Context, activityCutoff time.Time, limit int) ([]model.ExamAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT a.id, a.user_id, a.exam_id, a.status, a.start_time, a.end_time,
		        a.current_section_id, a.last_activity, a.total_score, a.percentage_score, a.passed, a.created_at
		 FROM exam_attempts a
		 LEFT JOIN section_attempts sa
		        ON sa.attempt_id = a.id AND sa.section_id = a.current_section_id AND NOT sa.is_completed
		 LEFT JOIN exam_sections s ON s.id = sa.section_id
		 WHERE a.status = $1
		   AND ((a.last_activity IS NOT NULL AND a.last_activity < $2)
		     OR (sa.start_time IS NOT NULL
		         AND sa.start_time + make_interval(mins => s.duration_minutes) <= now()))
		 LIMIT $3`,
		model.AttemptStatusInProgress, activityCutoff, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.ExamAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// BulkTouchActivity updates last_activity for a batch of attempts in one
// statement via UNNEST.
func (r *AttemptRepository) BulkTouchActivity(ctx context.Context, attemptIDs []uuid.UUID, seenAts []time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts AS a
		 SET last_activity = GREATEST(a.last_activity, t.seen_at)
		 FROM (
		 	SELECT u.attempt_id, u.seen_at
		 	FROM UNNEST($1::uuid[], $2::timestamptz[]) AS u (attempt_id, seen_at)
		 ) AS t
		 WHERE a.id = t.attempt_id AND a.status = $3`,
		attemptIDs, seenAts, model.AttemptStatusInProgress)
	return err
}
