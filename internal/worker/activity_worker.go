package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/uasprep/mockexam-backend/internal/config"
	"github.com/uasprep/mockexam-backend/internal/service"
)

// ActivityPersister flushes activity timestamps to storage in one statement.
type ActivityPersister interface {
	BulkTouchActivity(ctx context.Context, attemptIDs []uuid.UUID, seenAts []time.Time) error
}

// ActivityWorker consumes the activity queue and batch-writes last_activity
// to PostgreSQL. Autosave writes activity to Redis on the hot path; this
// worker makes it durable so abandonment decisions survive a Redis restart.
type ActivityWorker struct {
	attempts ActivityPersister
	rdb      *redis.Client
	log      zerolog.Logger

	batchSize     int
	flushInterval time.Duration
}

// NewActivityWorker creates a new ActivityWorker.
func NewActivityWorker(attempts ActivityPersister, rdb *redis.Client, log zerolog.Logger) *ActivityWorker {
	return &ActivityWorker{
		attempts:      attempts,
		rdb:           rdb,
		log:           log.With().Str("component", "activity_worker").Logger(),
		batchSize:     100,
		flushInterval: 2 * time.Second,
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *ActivityWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	batch := make(map[uuid.UUID]time.Time)
	lastFlush := time.Now()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background(), batch)
			w.log.Info().Msg("Worker stopped")
			return
		default:
		}

		if ev, ok := w.popEvent(ctx); ok {
			// Later events for the same attempt win.
			batch[ev.attemptID] = ev.seenAt
		}

		if len(batch) >= w.batchSize || (len(batch) > 0 && time.Since(lastFlush) >= w.flushInterval) {
			w.flush(ctx, batch)
			batch = make(map[uuid.UUID]time.Time)
			lastFlush = time.Now()
		}
	}
}

type activityItem struct {
	attemptID uuid.UUID
	seenAt    time.Time
}

// popEvent blocks up to a second for the next queued activity event.
func (w *ActivityWorker) popEvent(ctx context.Context) (activityItem, bool) {
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistActivityQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return activityItem{}, false
	}
	if len(result) < 2 {
		return activityItem{}, false
	}

	var ev service.ActivityEvent
	if err := json.Unmarshal([]byte(result[1]), &ev); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return activityItem{}, false
	}

	attemptID, err := uuid.Parse(ev.AttemptID)
	if err != nil {
		w.log.Error().Err(err).Str("attempt_id", ev.AttemptID).Msg("Bad attempt id in queue")
		return activityItem{}, false
	}
	return activityItem{attemptID: attemptID, seenAt: ev.SeenAt}, true
}

// flush writes the batch in one UNNEST statement.
func (w *ActivityWorker) flush(ctx context.Context, batch map[uuid.UUID]time.Time) {
	ids := make([]uuid.UUID, 0, len(batch))
	seen := make([]time.Time, 0, len(batch))
	for id, at := range batch {
		ids = append(ids, id)
		seen = append(seen, at)
	}

	if err := w.attempts.BulkTouchActivity(ctx, ids, seen); err != nil {
		w.log.Error().Err(err).Int("count", len(ids)).Msg("Flush error, requeueing")
		for _, id := range ids {
			payload, _ := json.Marshal(service.ActivityEvent{AttemptID: id.String(), SeenAt: batch[id]})
			w.rdb.RPush(ctx, config.WorkerKey.PersistActivityQueue, payload)
		}
		time.Sleep(5 * time.Second)
		return
	}

	w.log.Debug().Int("count", len(ids)).Msg("Flushed activity batch")
}

// drain flushes the in-memory batch plus whatever remains queued.
func (w *ActivityWorker) drain(ctx context.Context, batch map[uuid.UUID]time.Time) {
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistActivityQueue).Result()
		if err != nil {
			break
		}
		var ev service.ActivityEvent
		if err := json.Unmarshal([]byte(result), &ev); err != nil {
			continue
		}
		if attemptID, err := uuid.Parse(ev.AttemptID); err == nil {
			batch[attemptID] = ev.SeenAt
		}
	}

	if len(batch) > 0 {
		w.flush(ctx, batch)
	}
}
