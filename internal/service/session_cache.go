package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/uasprep/mockexam-backend/internal/config"
)

// ActivityEvent is the queue payload consumed by the activity worker.
type ActivityEvent struct {
	AttemptID string    `json:"attempt_id"`
	SeenAt    time.Time `json:"seen_at"`
}

// RedisSessionCache implements SessionCache on a Redis client.
type RedisSessionCache struct {
	rdb     *redis.Client
	lockTTL time.Duration
}

// NewRedisSessionCache creates a RedisSessionCache. lockTTL bounds how long a
// crashed request can leave an attempt lock behind.
func NewRedisSessionCache(rdb *redis.Client, lockTTL time.Duration) *RedisSessionCache {
	return &RedisSessionCache{rdb: rdb, lockTTL: lockTTL}
}

// AcquireAttemptLock takes the per-attempt transition lock via SET NX.
func (c *RedisSessionCache) AcquireAttemptLock(ctx context.Context, attemptID uuid.UUID) (bool, error) {
	return c.rdb.SetNX(ctx, config.CacheKey.AttemptLockKey(attemptID.String()), 1, c.lockTTL).Result()
}

// ReleaseAttemptLock drops the per-attempt transition lock. Best effort — an
// unreleased lock expires with its TTL.
func (c *RedisSessionCache) ReleaseAttemptLock(ctx context.Context, attemptID uuid.UUID) {
	_ = c.rdb.Del(ctx, config.CacheKey.AttemptLockKey(attemptID.String())).Err()
}

// CacheSectionStart stores a section attempt's start time for fast remaining-
// time checks. Best effort — readers fall back to PostgreSQL on a miss.
func (c *RedisSessionCache) CacheSectionStart(ctx context.Context, attemptID, sectionID uuid.UUID, start time.Time) {
	key := config.CacheKey.SectionStartKey(attemptID.String(), sectionID.String())
	_ = c.rdb.Set(ctx, key, start.Unix(), 0).Err()
}

// SectionStart reads a cached section start time. ok is false on a miss or
// any Redis error; the caller falls back to the database.
func (c *RedisSessionCache) SectionStart(ctx context.Context, attemptID, sectionID uuid.UUID) (time.Time, bool) {
	key := config.CacheKey.SectionStartKey(attemptID.String(), sectionID.String())
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}

// TouchActivity stores the attempt's last activity in Redis and enqueues a
// durable flush. The caller persists directly when this fails, so an outage
// degrades to synchronous writes rather than lost activity.
func (c *RedisSessionCache) TouchActivity(ctx context.Context, attemptID uuid.UUID, at time.Time) error {
	key := config.CacheKey.AttemptActivityKey(attemptID.String())
	if err := c.rdb.Set(ctx, key, at.Unix(), 0).Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(ActivityEvent{AttemptID: attemptID.String(), SeenAt: at})
	if err != nil {
		return err
	}
	return c.rdb.RPush(ctx, config.WorkerKey.PersistActivityQueue, raw).Err()
}

// LastActivity reads the cached last-activity timestamp. ok is false on a
// miss; the caller falls back to the attempt row.
func (c *RedisSessionCache) LastActivity(ctx context.Context, attemptID uuid.UUID) (time.Time, bool) {
	val, err := c.rdb.Get(ctx, config.CacheKey.AttemptActivityKey(attemptID.String())).Result()
	if err != nil {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}
