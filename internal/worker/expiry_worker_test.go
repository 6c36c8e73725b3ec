package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/uasprep/mockexam-backend/internal/model"
	"github.com/uasprep/mockexam-backend/internal/service"
)

type fakeLister struct {
	attempts []model.ExamAttempt
	err      error
	cutoffs  []time.Time
}

func (f *fakeLister) ListOverdue(_ context.Context, cutoff time.Time, _ int) ([]model.ExamAttempt, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.attempts, f.err
}

type fakeRecoverer struct {
	outcomes  map[uuid.UUID]string
	errs      map[uuid.UUID]error
	recovered []uuid.UUID
}

func (f *fakeRecoverer) ForceRecover(_ context.Context, attempt *model.ExamAttempt) (*service.RecoveryResult, error) {
	f.recovered = append(f.recovered, attempt.ID)
	if err := f.errs[attempt.ID]; err != nil {
		return nil, err
	}
	return &service.RecoveryResult{Outcome: f.outcomes[attempt.ID], Attempt: attempt}, nil
}

func TestSweepSettlesEachOverdueAttempt(t *testing.T) {
	abandoned := model.ExamAttempt{ID: uuid.New(), Status: model.AttemptStatusInProgress}
	expired := model.ExamAttempt{ID: uuid.New(), Status: model.AttemptStatusInProgress}
	busy := model.ExamAttempt{ID: uuid.New(), Status: model.AttemptStatusInProgress}

	lister := &fakeLister{attempts: []model.ExamAttempt{abandoned, expired, busy}}
	recoverer := &fakeRecoverer{
		outcomes: map[uuid.UUID]string{
			abandoned.ID: service.RecoveryAbandoned,
			expired.ID:   service.RecoveryFinished,
		},
		errs: map[uuid.UUID]error{
			busy.ID: service.ErrAttemptBusy,
		},
	}

	w := NewExpiryWorker(lister, recoverer, time.Minute, time.Hour, zerolog.Nop())
	w.sweep(context.Background())

	// Every listed attempt gets a recovery try; a busy one is left for the
	// live request holding its lock.
	assert.ElementsMatch(t, []uuid.UUID{abandoned.ID, expired.ID, busy.ID}, recoverer.recovered)
}

func TestSweepCutoffUsesInactivityTimeout(t *testing.T) {
	lister := &fakeLister{}
	w := NewExpiryWorker(lister, &fakeRecoverer{}, time.Minute, time.Hour, zerolog.Nop())

	before := time.Now()
	w.sweep(context.Background())

	if assert.Len(t, lister.cutoffs, 1) {
		cutoff := lister.cutoffs[0]
		assert.WithinDuration(t, before.Add(-time.Hour), cutoff, time.Second)
	}
}

func TestSweepToleratesListError(t *testing.T) {
	lister := &fakeLister{err: errors.New("connection refused")}
	recoverer := &fakeRecoverer{}

	w := NewExpiryWorker(lister, recoverer, time.Minute, time.Hour, zerolog.Nop())
	w.sweep(context.Background())

	assert.Empty(t, recoverer.recovered)
}
