package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/uasprep/mockexam-backend/internal/model"
	"github.com/uasprep/mockexam-backend/internal/scoring"
)

// Session state machine errors, surfaced to the HTTP layer.
var (
	ErrNoActiveAttempt   = errors.New("no active exam attempt")
	ErrNoCurrentSection  = errors.New("attempt has no current section")
	ErrSectionNotOpen    = errors.New("section attempt is missing or already completed")
	ErrNoSections        = errors.New("exam has no active sections")
	ErrAttemptBusy       = errors.New("another request is updating this attempt")
	ErrNoFinishedAttempt = errors.New("no finished exam attempt")
)

// ExamSessionService drives the attempt state machine. It holds no session
// state of its own: every operation loads the attempt, applies one
// transition, and persists the result, so any instance can serve any request.
type ExamSessionService struct {
	exams             ExamStore
	questions         QuestionStore
	attempts          AttemptStore
	sectionAttempts   SectionAttemptStore
	answers           AnswerStore
	cache             SessionCache
	inactivityTimeout time.Duration
	log               zerolog.Logger
	now               func() time.Time
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	exams ExamStore,
	questions QuestionStore,
	attempts AttemptStore,
	sectionAttempts SectionAttemptStore,
	answers AnswerStore,
	cache SessionCache,
	inactivityTimeout time.Duration,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		exams:             exams,
		questions:         questions,
		attempts:          attempts,
		sectionAttempts:   sectionAttempts,
		answers:           answers,
		cache:             cache,
		inactivityTimeout: inactivityTimeout,
		log:               log.With().Str("component", "exam_session_service").Logger(),
		now:               time.Now,
	}
}

// lockAttempt takes the per-attempt transition lock and returns the matching
// release func.
func (s *ExamSessionService) lockAttempt(ctx context.Context, attemptID uuid.UUID) (func(), error) {
	ok, err := s.cache.AcquireAttemptLock(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("acquire attempt lock: %w", err)
	}
	if !ok {
		return nil, ErrAttemptBusy
	}
	return func() { s.cache.ReleaseAttemptLock(ctx, attemptID) }, nil
}

// lockAndReload takes the transition lock and then re-reads the attempt under
// it. Any snapshot loaded before the lock may be stale: a concurrent request
// can finish or abandon the attempt between the load and the lock
// acquisition, and a transition run on that snapshot would resurrect a
// terminal attempt and overwrite its persisted scores. Every mutating
// transition must branch on the copy returned here, never the pre-lock one.
func (s *ExamSessionService) lockAndReload(ctx context.Context, attemptID uuid.UUID) (*model.ExamAttempt, func(), error) {
	release, err := s.lockAttempt(ctx, attemptID)
	if err != nil {
		return nil, nil, err
	}
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		release()
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNoActiveAttempt
		}
		return nil, nil, fmt.Errorf("reload attempt: %w", err)
	}
	return attempt, release, nil
}

// SessionState is the response to entering (or re-entering) an exam.
type SessionState struct {
	Attempt        *model.ExamAttempt    `json:"attempt"`
	Section        *model.ExamSection    `json:"current_section"`
	SectionAttempt *model.SectionAttempt `json:"section_attempt"`
	TimeRemaining  int                   `json:"time_remaining"`
}

// EnterExam finds or creates the user's active attempt for the exam and moves
// it into progress. Entering is idempotent: a second request (even a
// concurrent one) resolves to the same attempt. The current section's attempt
// is created lazily here, snapshotting the section's max score.
func (s *ExamSessionService) EnterExam(ctx context.Context, userID int, examID uuid.UUID) (*SessionState, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	attempt, err := s.attempts.FindActive(ctx, userID, exam.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		attempt = &model.ExamAttempt{UserID: userID, ExamID: exam.ID}
		if createErr := s.attempts.Create(ctx, attempt); createErr != nil {
			if !errors.Is(createErr, pgx.ErrNoRows) {
				return nil, fmt.Errorf("create attempt: %w", createErr)
			}
			// Concurrent enter won the insert — reuse its attempt.
			attempt, err = s.attempts.FindActive(ctx, userID, exam.ID)
			if err != nil {
				return nil, fmt.Errorf("refetch attempt after concurrent enter: %w", err)
			}
		}
	} else if err != nil {
		return nil, fmt.Errorf("find active attempt: %w", err)
	}

	attempt, release, err := s.lockAndReload(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.now()
	dirty := false

	switch attempt.Status {
	case model.AttemptStatusNotStarted:
		attempt.Status = model.AttemptStatusInProgress
		if attempt.StartTime == nil {
			attempt.StartTime = &now
		}
		attempt.LastActivity = &now
		dirty = true
	case model.AttemptStatusInProgress:
		// Resume where the user left off.
	case model.AttemptStatusCompleted, model.AttemptStatusAutoSubmitted, model.AttemptStatusAbandoned:
		return nil, ErrNoActiveAttempt
	}

	sections, err := s.exams.ListSections(ctx, exam.ID, true)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	if len(sections) == 0 {
		return nil, ErrNoSections
	}

	if attempt.CurrentSectionID == nil {
		completed, err := s.sectionAttempts.CompletedSectionIDs(ctx, attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("completed sections: %w", err)
		}
		next := scoring.NextSection(sections, completed)
		if next == nil {
			return nil, ErrNoSections
		}
		attempt.CurrentSectionID = &next.ID
		dirty = true
	}

	if dirty {
		if err := s.attempts.Save(ctx, attempt); err != nil {
			return nil, fmt.Errorf("save attempt: %w", err)
		}
	}

	section, err := s.exams.GetSection(ctx, *attempt.CurrentSectionID)
	if err != nil {
		return nil, fmt.Errorf("get current section: %w", err)
	}

	sa, err := s.sectionAttempts.Upsert(ctx, attempt.ID, section.ID, section.MaxScore)
	if err != nil {
		return nil, fmt.Errorf("upsert section attempt: %w", err)
	}
	if sa.StartTime != nil {
		s.cache.CacheSectionStart(ctx, attempt.ID, section.ID, *sa.StartTime)
	}

	return &SessionState{
		Attempt:        attempt,
		Section:        section,
		SectionAttempt: sa,
		TimeRemaining:  remainingSeconds(section, sa.StartTime, s.now()),
	}, nil
}

// remainingSeconds computes a section's remaining time, floored at zero. A
// nil start means the section clock has not begun: the full duration remains.
func remainingSeconds(section *model.ExamSection, start *time.Time, now time.Time) int {
	if start == nil {
		return section.DurationMinutes * 60
	}
	remaining := section.Duration() - now.Sub(*start)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Seconds())
}

// QuestionView is a question as delivered to the exam taker. Option
// correctness never leaves the server.
type QuestionView struct {
	ID             uuid.UUID    `json:"id"`
	Text           string       `json:"text"`
	Points         float64      `json:"points"`
	NegativePoints float64      `json:"negative_points"`
	Options        []OptionView `json:"options"`
	SelectedAnswer string       `json:"selected_answer,omitempty"`
}

// OptionView is one choice of a QuestionView.
type OptionView struct {
	ID     uuid.UUID `json:"id"`
	Letter string    `json:"letter"`
	Text   string    `json:"text"`
}

// SectionQuestions is the payload for rendering the current section.
type SectionQuestions struct {
	Questions            []QuestionView    `json:"questions"`
	SectionID            uuid.UUID         `json:"section_id"`
	SectionName          string            `json:"section_name"`
	DurationMinutes      int               `json:"duration_minutes"`
	TimeRemaining        int               `json:"time_remaining"`
	CurrentQuestionIndex int               `json:"current_question_index"`
	ExistingAnswers      map[string]string `json:"existing_answers"`
}

// FetchSectionQuestions returns the current section's questions, the user's
// recorded selections, and the remaining time.
func (s *ExamSessionService) FetchSectionQuestions(ctx context.Context, userID int, examID uuid.UUID) (*SectionQuestions, error) {
	attempt, err := s.requireInProgress(ctx, userID, examID)
	if err != nil {
		return nil, err
	}
	if attempt.CurrentSectionID == nil {
		return nil, ErrNoCurrentSection
	}

	section, err := s.exams.GetSection(ctx, *attempt.CurrentSectionID)
	if err != nil {
		return nil, fmt.Errorf("get current section: %w", err)
	}

	questions, err := s.questions.ListBySection(ctx, section.ID, true)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	out := &SectionQuestions{
		SectionID:       section.ID,
		SectionName:     section.DisplayName,
		DurationMinutes: section.DurationMinutes,
		TimeRemaining:   section.DurationMinutes * 60,
		ExistingAnswers: map[string]string{},
	}

	// Existing selections and elapsed time only exist once the section
	// attempt does.
	selected := map[uuid.UUID]uuid.UUID{}
	sa, err := s.sectionAttempts.GetByAttemptAndSection(ctx, attempt.ID, section.ID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get section attempt: %w", err)
	}
	if sa != nil {
		out.CurrentQuestionIndex = sa.CurrentQuestionIndex
		out.TimeRemaining = remainingSeconds(section, sa.StartTime, s.now())

		answers, err := s.answers.ListBySectionAttempt(ctx, sa.ID)
		if err != nil {
			return nil, fmt.Errorf("list answers: %w", err)
		}
		for i := range answers {
			if answers[i].SelectedOptionID != nil {
				selected[answers[i].QuestionID] = *answers[i].SelectedOptionID
			}
		}
	}

	for i := range questions {
		q := &questions[i]
		view := QuestionView{
			ID:             q.ID,
			Text:           q.QuestionText,
			Points:         q.Points,
			NegativePoints: q.NegativePoints,
		}
		for _, o := range q.Options {
			view.Options = append(view.Options, OptionView{ID: o.ID, Letter: o.OptionLetter, Text: o.OptionText})
			if optID, ok := selected[q.ID]; ok && optID == o.ID {
				view.SelectedAnswer = o.OptionLetter
				out.ExistingAnswers[q.ID.String()] = o.OptionLetter
			}
		}
		out.Questions = append(out.Questions, view)
	}

	return out, nil
}

// SaveAnswer records a single selection, deriving correctness and points from
// the chosen option on every write.
func (s *ExamSessionService) SaveAnswer(ctx context.Context, userID int, questionID, optionID uuid.UUID) (*model.UserAnswer, error) {
	question, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	option := question.OptionByID(optionID)
	if option == nil {
		return nil, fmt.Errorf("option does not belong to question: %w", pgx.ErrNoRows)
	}

	attempt, err := s.attempts.FindActiveByUser(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoActiveAttempt
	} else if err != nil {
		return nil, fmt.Errorf("find active attempt: %w", err)
	}

	section, err := s.exams.GetSection(ctx, question.SectionID)
	if err != nil {
		return nil, fmt.Errorf("get section: %w", err)
	}

	sa, err := s.sectionAttempts.GetByAttemptAndSection(ctx, attempt.ID, question.SectionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSectionNotOpen
	} else if err != nil {
		return nil, fmt.Errorf("get section attempt: %w", err)
	}
	if sa.IsCompleted {
		return nil, ErrSectionNotOpen
	}

	derived := scoring.ScoreAnswer(question, option, section.HasNegativeMarking)
	answer, err := s.answers.Upsert(ctx, sa.ID, question.ID, &option.ID, derived.IsCorrect, derived.PointsEarned)
	if err != nil {
		return nil, fmt.Errorf("upsert answer: %w", err)
	}
	return answer, nil
}

// SubmitResult reports where the attempt went after a section or exam submit.
type SubmitResult struct {
	Finished    bool               `json:"finished"`
	Attempt     *model.ExamAttempt `json:"attempt"`
	NextSection *model.ExamSection `json:"next_section,omitempty"`
}

// SubmitSection scores and completes the current section, then advances to
// the next incomplete section or finishes the exam. Submitting an already
// completed section does not re-score it and does not advance past the
// section that followed it.
func (s *ExamSessionService) SubmitSection(ctx context.Context, userID int, examID uuid.UUID) (*SubmitResult, error) {
	attempt, err := s.requireInProgress(ctx, userID, examID)
	if err != nil {
		return nil, err
	}

	attempt, release, err := s.lockAndReload(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	defer release()
	if attempt.Status != model.AttemptStatusInProgress {
		return nil, ErrNoActiveAttempt
	}
	if attempt.CurrentSectionID == nil {
		return nil, ErrNoCurrentSection
	}

	now := s.now()
	if err := s.completeCurrentSection(ctx, attempt, now); err != nil {
		return nil, err
	}

	next, err := s.advance(ctx, attempt)
	if err != nil {
		return nil, err
	}
	if next != nil {
		return &SubmitResult{Attempt: attempt, NextSection: next}, nil
	}

	if err := s.finish(ctx, attempt, model.AttemptStatusCompleted, now); err != nil {
		return nil, err
	}
	return &SubmitResult{Finished: true, Attempt: attempt}, nil
}

// SubmitExam force-finishes the whole attempt (emergency submit or overall
// time-up): the current section is scored and closed without advancing, and
// the attempt ends as AUTO_SUBMITTED.
func (s *ExamSessionService) SubmitExam(ctx context.Context, userID int, examID uuid.UUID) (*SubmitResult, error) {
	attempt, err := s.requireInProgress(ctx, userID, examID)
	if err != nil {
		return nil, err
	}

	attempt, release, err := s.lockAndReload(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	defer release()
	if attempt.Status != model.AttemptStatusInProgress {
		return nil, ErrNoActiveAttempt
	}

	now := s.now()
	if attempt.CurrentSectionID != nil {
		if err := s.completeCurrentSection(ctx, attempt, now); err != nil {
			return nil, err
		}
	}

	if err := s.finish(ctx, attempt, model.AttemptStatusAutoSubmitted, now); err != nil {
		return nil, err
	}
	return &SubmitResult{Finished: true, Attempt: attempt}, nil
}

// completeCurrentSection scores the current section's recorded answers and
// marks its attempt completed. A missing or already-completed section attempt
// is a no-op, which is what makes redundant submits safe.
func (s *ExamSessionService) completeCurrentSection(ctx context.Context, attempt *model.ExamAttempt, now time.Time) error {
	sa, err := s.sectionAttempts.GetByAttemptAndSection(ctx, attempt.ID, *attempt.CurrentSectionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	} else if err != nil {
		return fmt.Errorf("get section attempt: %w", err)
	}
	if sa.IsCompleted {
		return nil
	}

	answers, err := s.answers.ListBySectionAttempt(ctx, sa.ID)
	if err != nil {
		return fmt.Errorf("list answers: %w", err)
	}

	result := scoring.ScoreSection(answers)
	sa.Score = &result.Score
	sa.QuestionsAnswered = result.QuestionsAnswered
	sa.QuestionsCorrect = result.QuestionsCorrect
	sa.IsCompleted = true
	sa.EndTime = &now

	if err := s.sectionAttempts.Save(ctx, sa); err != nil {
		return fmt.Errorf("save section attempt: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("section_id", sa.SectionID.String()).
		Float64("score", result.Score).
		Int("answered", result.QuestionsAnswered).
		Msg("Section completed")
	return nil
}

// advance moves the attempt to the next incomplete section per the exam's
// stable section order. Returns nil when every section is complete.
func (s *ExamSessionService) advance(ctx context.Context, attempt *model.ExamAttempt) (*model.ExamSection, error) {
	sections, err := s.exams.ListSections(ctx, attempt.ExamID, true)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	completed, err := s.sectionAttempts.CompletedSectionIDs(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("completed sections: %w", err)
	}

	next := scoring.NextSection(sections, completed)
	if next == nil {
		return nil, nil
	}

	attempt.CurrentSectionID = &next.ID
	if err := s.attempts.Save(ctx, attempt); err != nil {
		return nil, fmt.Errorf("save attempt: %w", err)
	}
	return next, nil
}

// finish closes the attempt with the given terminal status and persists the
// aggregate scores. The current section reference is kept for audit reads.
func (s *ExamSessionService) finish(ctx context.Context, attempt *model.ExamAttempt, status model.AttemptStatus, now time.Time) error {
	sectionAttempts, err := s.sectionAttempts.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return fmt.Errorf("list section attempts: %w", err)
	}

	sections, err := s.exams.ListSections(ctx, attempt.ExamID, false)
	if err != nil {
		return fmt.Errorf("list sections: %w", err)
	}
	minPass := make(map[uuid.UUID]float64, len(sections))
	for i := range sections {
		minPass[sections[i].ID] = sections[i].MinPassScore
	}

	totals := scoring.Totals(sectionAttempts, minPass)

	attempt.Status = status
	attempt.EndTime = &now
	attempt.TotalScore = &totals.TotalScore
	attempt.PercentageScore = &totals.PercentageScore
	attempt.Passed = &totals.Passed

	if err := s.attempts.Save(ctx, attempt); err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("status", string(status)).
		Float64("total_score", totals.TotalScore).
		Bool("passed", totals.Passed).
		Msg("Attempt finished")
	return nil
}

// requireInProgress loads the active attempt for (user, exam) and rejects
// anything that is not currently in progress.
func (s *ExamSessionService) requireInProgress(ctx context.Context, userID int, examID uuid.UUID) (*model.ExamAttempt, error) {
	attempt, err := s.attempts.FindActive(ctx, userID, examID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoActiveAttempt
	} else if err != nil {
		return nil, fmt.Errorf("find active attempt: %w", err)
	}
	if attempt.Status != model.AttemptStatusInProgress {
		return nil, ErrNoActiveAttempt
	}
	return attempt, nil
}
