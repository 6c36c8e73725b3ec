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

// TimeStatus is the server-authoritative clock for the current section.
type TimeStatus struct {
	TimeRemaining int    `json:"time_remaining"`
	SectionName   string `json:"section_name"`
	AutoSubmit    bool   `json:"auto_submit"`
}

// CheckTimeRemaining reports how much time the current section has left. The
// section start is read from cache when possible and healed from the
// database on a miss. AutoSubmit turns on when the clock hits zero, telling
// the client to submit the section now.
func (s *ExamSessionService) CheckTimeRemaining(ctx context.Context, userID int, examID uuid.UUID) (*TimeStatus, error) {
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

	start, ok := s.cache.SectionStart(ctx, attempt.ID, section.ID)
	if !ok {
		sa, err := s.sectionAttempts.GetByAttemptAndSection(ctx, attempt.ID, section.ID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSectionNotOpen
		} else if err != nil {
			return nil, fmt.Errorf("get section attempt: %w", err)
		}
		if sa.StartTime == nil {
			return nil, ErrSectionNotOpen
		}
		start = *sa.StartTime
		s.cache.CacheSectionStart(ctx, attempt.ID, section.ID, start)
	}

	remaining := remainingSeconds(section, &start, s.now())
	return &TimeStatus{
		TimeRemaining: remaining,
		SectionName:   section.DisplayName,
		AutoSubmit:    remaining <= 0,
	}, nil
}

// AutoSaveResult summarizes a periodic background save.
type AutoSaveResult struct {
	SavedCount int       `json:"saved_count"`
	SavedAt    time.Time `json:"saved_at"`
}

// AutoSave persists a client-side batch of answers and bumps the attempt's
// activity marker. Items referencing inactive questions or options that no
// longer belong to their question are skipped rather than failing the batch.
// No transition lock is taken: autosave only writes answers and progress,
// never state.
func (s *ExamSessionService) AutoSave(ctx context.Context, userID int, examID uuid.UUID, req *model.AutoSaveRequest) (*AutoSaveResult, error) {
	attempt, err := s.requireInProgress(ctx, userID, examID)
	if err != nil {
		return nil, err
	}
	if attempt.CurrentSectionID == nil {
		return nil, ErrNoCurrentSection
	}

	sa, err := s.sectionAttempts.GetByAttemptAndSection(ctx, attempt.ID, *attempt.CurrentSectionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSectionNotOpen
	} else if err != nil {
		return nil, fmt.Errorf("get section attempt: %w", err)
	}
	if sa.IsCompleted {
		return nil, ErrSectionNotOpen
	}

	now := s.now()
	saved := 0
	for _, item := range req.Answers {
		question, err := s.questions.GetByID(ctx, item.QuestionID)
		if err != nil {
			s.log.Debug().Str("question_id", item.QuestionID.String()).Msg("Autosave skipped stale question")
			continue
		}
		if question.SectionID != *attempt.CurrentSectionID {
			continue
		}
		option := question.OptionByID(item.OptionID)
		if option == nil {
			continue
		}

		section, err := s.exams.GetSection(ctx, question.SectionID)
		if err != nil {
			return nil, fmt.Errorf("get section: %w", err)
		}
		derived := scoring.ScoreAnswer(question, option, section.HasNegativeMarking)
		if _, err := s.answers.Upsert(ctx, sa.ID, question.ID, &option.ID, derived.IsCorrect, derived.PointsEarned); err != nil {
			return nil, fmt.Errorf("upsert answer: %w", err)
		}
		saved++
	}

	if req.CurrentQuestionIndex != nil {
		if err := s.sectionAttempts.SetQuestionIndex(ctx, sa.ID, *req.CurrentQuestionIndex); err != nil {
			return nil, fmt.Errorf("set question index: %w", err)
		}
	}

	if err := s.cache.TouchActivity(ctx, attempt.ID, now); err != nil {
		// Redis down must not lose the activity signal.
		s.log.Warn().Err(err).Msg("Activity cache unavailable, writing directly")
		attempt.LastActivity = &now
		if saveErr := s.attempts.Save(ctx, attempt); saveErr != nil {
			return nil, fmt.Errorf("save attempt activity: %w", saveErr)
		}
	}

	return &AutoSaveResult{SavedCount: saved, SavedAt: now}, nil
}

// Recovery outcomes.
const (
	RecoveryResumed        = "resumed"
	RecoveryAbandoned      = "abandoned"
	RecoverySectionExpired = "section_expired"
	RecoveryFinished       = "finished"
)

// RecoveryResult tells a reconnecting client what happened to its session
// while it was away.
type RecoveryResult struct {
	Outcome       string             `json:"outcome"`
	Attempt       *model.ExamAttempt `json:"attempt"`
	Section       *model.ExamSection `json:"current_section,omitempty"`
	TimeRemaining int                `json:"time_remaining"`
}

// RecoverSession reconciles an attempt after a disconnect. An attempt idle
// past the inactivity timeout is abandoned without scoring. An expired
// current section is scored, closed, and either advanced past or, when it
// was the last, the attempt finishes as AUTO_SUBMITTED. Otherwise the
// session resumes in place.
func (s *ExamSessionService) RecoverSession(ctx context.Context, userID int, examID uuid.UUID) (*RecoveryResult, error) {
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

	return s.recoverLocked(ctx, attempt)
}

// ForceRecover applies the recovery rules to an attempt without a user
// request behind it. The expiry sweep uses this to close out attempts whose
// owners never came back. ErrAttemptBusy means a live request got there
// first, which settles the attempt just as well. The handed-in attempt is
// only a candidate: it is re-read under the lock, and one that reached a
// terminal state since it was listed is left untouched.
func (s *ExamSessionService) ForceRecover(ctx context.Context, attempt *model.ExamAttempt) (*RecoveryResult, error) {
	if attempt.Status != model.AttemptStatusInProgress {
		return nil, ErrNoActiveAttempt
	}

	fresh, release, err := s.lockAndReload(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	defer release()
	if fresh.Status != model.AttemptStatusInProgress {
		return nil, ErrNoActiveAttempt
	}

	return s.recoverLocked(ctx, fresh)
}

// recoverLocked runs the recovery decision tree. The caller holds the
// attempt lock.
func (s *ExamSessionService) recoverLocked(ctx context.Context, attempt *model.ExamAttempt) (*RecoveryResult, error) {
	now := s.now()

	lastActivity, ok := s.cache.LastActivity(ctx, attempt.ID)
	if !ok && attempt.LastActivity != nil {
		lastActivity = *attempt.LastActivity
		ok = true
	}
	if ok && now.Sub(lastActivity) > s.inactivityTimeout {
		attempt.Status = model.AttemptStatusAbandoned
		attempt.EndTime = &now
		if err := s.attempts.Save(ctx, attempt); err != nil {
			return nil, fmt.Errorf("save abandoned attempt: %w", err)
		}
		s.log.Info().Str("attempt_id", attempt.ID.String()).Msg("Attempt abandoned after inactivity")
		return &RecoveryResult{Outcome: RecoveryAbandoned, Attempt: attempt}, nil
	}

	if attempt.CurrentSectionID == nil {
		return nil, ErrNoCurrentSection
	}

	section, err := s.exams.GetSection(ctx, *attempt.CurrentSectionID)
	if err != nil {
		return nil, fmt.Errorf("get current section: %w", err)
	}
	sa, err := s.sectionAttempts.GetByAttemptAndSection(ctx, attempt.ID, section.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSectionNotOpen
	} else if err != nil {
		return nil, fmt.Errorf("get section attempt: %w", err)
	}

	remaining := remainingSeconds(section, sa.StartTime, now)
	if remaining > 0 {
		if err := s.cache.TouchActivity(ctx, attempt.ID, now); err != nil {
			attempt.LastActivity = &now
			if saveErr := s.attempts.Save(ctx, attempt); saveErr != nil {
				return nil, fmt.Errorf("save attempt activity: %w", saveErr)
			}
		}
		return &RecoveryResult{
			Outcome:       RecoveryResumed,
			Attempt:       attempt,
			Section:       section,
			TimeRemaining: remaining,
		}, nil
	}

	// Section time ran out while the client was away.
	if err := s.completeCurrentSection(ctx, attempt, now); err != nil {
		return nil, err
	}
	next, err := s.advance(ctx, attempt)
	if err != nil {
		return nil, err
	}
	if next != nil {
		nsa, err := s.sectionAttempts.Upsert(ctx, attempt.ID, next.ID, next.MaxScore)
		if err != nil {
			return nil, fmt.Errorf("upsert next section attempt: %w", err)
		}
		if nsa.StartTime != nil {
			s.cache.CacheSectionStart(ctx, attempt.ID, next.ID, *nsa.StartTime)
		}
		return &RecoveryResult{
			Outcome:       RecoverySectionExpired,
			Attempt:       attempt,
			Section:       next,
			TimeRemaining: remainingSeconds(next, nsa.StartTime, now),
		}, nil
	}

	if err := s.finish(ctx, attempt, model.AttemptStatusAutoSubmitted, now); err != nil {
		return nil, err
	}
	return &RecoveryResult{Outcome: RecoveryFinished, Attempt: attempt}, nil
}

// SessionStatus is the lightweight polling view of a user's attempt state:
// overall section progress plus how far into the current section the user is.
type SessionStatus struct {
	SessionExists     bool                `json:"session_exists"`
	Status            model.AttemptStatus `json:"status,omitempty"`
	AttemptID         string              `json:"attempt_id,omitempty"`
	SectionName       string              `json:"current_section,omitempty"`
	SectionsCompleted int                 `json:"sections_completed"`
	SectionsTotal     int                 `json:"sections_total"`
	SectionProgress   float64             `json:"section_progress"`
	TimeRemaining     int                 `json:"time_remaining"`
}

// GetSessionStatus reports whether the user has an active attempt for the
// exam. Absence of a session is a normal answer, not an error.
// SectionProgress is the percentage of the current section's questions with a
// recorded answer.
func (s *ExamSessionService) GetSessionStatus(ctx context.Context, userID int, examID uuid.UUID) (*SessionStatus, error) {
	attempt, err := s.attempts.FindActive(ctx, userID, examID)
	if errors.Is(err, pgx.ErrNoRows) {
		return &SessionStatus{SessionExists: false}, nil
	} else if err != nil {
		return nil, fmt.Errorf("find active attempt: %w", err)
	}

	status := &SessionStatus{
		SessionExists: true,
		Status:        attempt.Status,
		AttemptID:     attempt.ID.String(),
	}

	sections, err := s.exams.ListSections(ctx, examID, true)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	status.SectionsTotal = len(sections)

	completed, err := s.sectionAttempts.CompletedSectionIDs(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("completed sections: %w", err)
	}
	status.SectionsCompleted = len(completed)

	if attempt.CurrentSectionID == nil {
		return status, nil
	}

	section, err := s.exams.GetSection(ctx, *attempt.CurrentSectionID)
	if err != nil {
		return nil, fmt.Errorf("get current section: %w", err)
	}
	status.SectionName = section.DisplayName

	sa, err := s.sectionAttempts.GetByAttemptAndSection(ctx, attempt.ID, section.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return status, nil
	} else if err != nil {
		return nil, fmt.Errorf("get section attempt: %w", err)
	}
	status.TimeRemaining = remainingSeconds(section, sa.StartTime, s.now())

	questions, err := s.questions.ListBySection(ctx, section.ID, true)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) > 0 {
		answered, err := s.answers.CountBySectionAttempt(ctx, sa.ID)
		if err != nil {
			return nil, fmt.Errorf("count answers: %w", err)
		}
		status.SectionProgress = float64(answered) / float64(len(questions)) * 100
	}
	return status, nil
}
