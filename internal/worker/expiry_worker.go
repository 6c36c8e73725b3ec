package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/uasprep/mockexam-backend/internal/model"
	"github.com/uasprep/mockexam-backend/internal/service"
)

// OverdueLister finds in-progress attempts that look dead: idle past the
// activity cutoff or sitting in a section whose time already ran out.
type OverdueLister interface {
	ListOverdue(ctx context.Context, activityCutoff time.Time, limit int) ([]model.ExamAttempt, error)
}

// SessionRecoverer settles a single overdue attempt.
type SessionRecoverer interface {
	ForceRecover(ctx context.Context, attempt *model.ExamAttempt) (*service.RecoveryResult, error)
}

// ExpiryWorker periodically sweeps overdue attempts so sessions whose owners
// never reconnect still reach a terminal state. Requests settle their own
// attempt lazily; this sweep is the backstop for attempts nobody touches.
type ExpiryWorker struct {
	attempts OverdueLister
	sessions SessionRecoverer
	log      zerolog.Logger

	sweepInterval     time.Duration
	inactivityTimeout time.Duration
	batchLimit        int
}

// NewExpiryWorker creates a new ExpiryWorker.
func NewExpiryWorker(
	attempts OverdueLister,
	sessions SessionRecoverer,
	sweepInterval time.Duration,
	inactivityTimeout time.Duration,
	log zerolog.Logger,
) *ExpiryWorker {
	return &ExpiryWorker{
		attempts:          attempts,
		sessions:          sessions,
		log:               log.With().Str("component", "expiry_worker").Logger(),
		sweepInterval:     sweepInterval,
		inactivityTimeout: inactivityTimeout,
		batchLimit:        50,
	}
}

// Start begins the periodic sweep loop. Call in a goroutine.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.sweepInterval).Msg("Worker started")

	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-w.inactivityTimeout)

	overdue, err := w.attempts.ListOverdue(ctx, cutoff, w.batchLimit)
	if err != nil {
		w.log.Error().Err(err).Msg("List overdue error")
		return
	}
	if len(overdue) == 0 {
		return
	}

	settled := 0
	for i := range overdue {
		attempt := &overdue[i]
		result, err := w.sessions.ForceRecover(ctx, attempt)
		if err != nil {
			// Busy means a live request is settling it right now.
			if !errors.Is(err, service.ErrAttemptBusy) {
				w.log.Error().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Recover error")
			}
			continue
		}
		if result.Outcome != service.RecoveryResumed {
			settled++
			w.log.Info().
				Str("attempt_id", attempt.ID.String()).
				Str("outcome", result.Outcome).
				Msg("Overdue attempt settled")
		}
	}

	if settled > 0 {
		w.log.Info().Int("settled", settled).Int("scanned", len(overdue)).Msg("Sweep complete")
	}
}
