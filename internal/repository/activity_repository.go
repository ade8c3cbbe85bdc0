package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/transitlab/sirihub/pkg/domain"

	"github.com/go-redis/redis/v8"
)

// ActivityRepository tracks per-subscription liveness timestamps and traffic
// counters in shared state, so any node can evaluate health for any
// subscription. Counters use HINCRBY and stay exact past 32-bit ranges.
type ActivityRepository interface {
	Touch(ctx context.Context, subscriptionID string, at time.Time) error
	DataReceived(ctx context.Context, subscriptionID string, at time.Time) error
	Activate(ctx context.Context, subscriptionID string, at time.Time) error

	Get(ctx context.Context, subscriptionID string) (*domain.Activity, error)
	Remove(ctx context.Context, subscriptionID string) error

	Hit(ctx context.Context, subscriptionID string) error
	AddObjects(ctx context.Context, subscriptionID string, n int64) error
	HitCount(ctx context.Context, subscriptionID string) (int64, error)
	ObjectCount(ctx context.Context, subscriptionID string) (int64, error)
}

type activityRedisRepo struct {
	rdb *redis.Client
}

func NewActivityRepository(rdb *redis.Client) ActivityRepository {
	return &activityRedisRepo{rdb: rdb}
}

func (r *activityRedisRepo) keyLastActivity() string { return "sirihub:activity:last" }
func (r *activityRedisRepo) keyDataReceived() string { return "sirihub:activity:data" }
func (r *activityRedisRepo) keyActivated() string    { return "sirihub:activity:activated" }
func (r *activityRedisRepo) keyHits() string         { return "sirihub:activity:hits" }
func (r *activityRedisRepo) keyObjects() string      { return "sirihub:activity:objects" }

func (r *activityRedisRepo) setTime(ctx context.Context, key, id string, at time.Time) error {
	if err := r.rdb.HSet(ctx, key, id, at.UTC().Format(time.RFC3339Nano)).Err(); err != nil {
		return fmt.Errorf("redis HSET %s: %w", key, err)
	}
	return nil
}

func (r *activityRedisRepo) getTime(ctx context.Context, key, id string) (time.Time, error) {
	s, err := r.rdb.HGet(ctx, key, id).Result()
	if err == redis.Nil || s == "" {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("redis HGET %s: %w", key, err)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp in %s for %s: %w", key, id, err)
	}
	return t, nil
}

func (r *activityRedisRepo) Touch(ctx context.Context, subscriptionID string, at time.Time) error {
	return r.setTime(ctx, r.keyLastActivity(), subscriptionID, at)
}

func (r *activityRedisRepo) DataReceived(ctx context.Context, subscriptionID string, at time.Time) error {
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, r.keyLastActivity(), subscriptionID, at.UTC().Format(time.RFC3339Nano))
	pipe.HSet(ctx, r.keyDataReceived(), subscriptionID, at.UTC().Format(time.RFC3339Nano))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis data-received pipeline: %w", err)
	}
	return nil
}

func (r *activityRedisRepo) Activate(ctx context.Context, subscriptionID string, at time.Time) error {
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, r.keyActivated(), subscriptionID, at.UTC().Format(time.RFC3339Nano))
	pipe.HSet(ctx, r.keyLastActivity(), subscriptionID, at.UTC().Format(time.RFC3339Nano))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis activate pipeline: %w", err)
	}
	return nil
}

func (r *activityRedisRepo) Get(ctx context.Context, subscriptionID string) (*domain.Activity, error) {
	last, err := r.getTime(ctx, r.keyLastActivity(), subscriptionID)
	if err != nil {
		return nil, err
	}
	data, err := r.getTime(ctx, r.keyDataReceived(), subscriptionID)
	if err != nil {
		return nil, err
	}
	activated, err := r.getTime(ctx, r.keyActivated(), subscriptionID)
	if err != nil {
		return nil, err
	}
	return &domain.Activity{LastActivity: last, LastDataReceived: data, Activated: activated}, nil
}

func (r *activityRedisRepo) Remove(ctx context.Context, subscriptionID string) error {
	pipe := r.rdb.TxPipeline()
	for _, key := range []string{
		r.keyLastActivity(), r.keyDataReceived(), r.keyActivated(),
		r.keyHits(), r.keyObjects(),
	} {
		pipe.HDel(ctx, key, subscriptionID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis remove tracking pipeline: %w", err)
	}
	return nil
}

func (r *activityRedisRepo) Hit(ctx context.Context, subscriptionID string) error {
	if err := r.rdb.HIncrBy(ctx, r.keyHits(), subscriptionID, 1).Err(); err != nil {
		return fmt.Errorf("redis HINCRBY hits: %w", err)
	}
	return nil
}

func (r *activityRedisRepo) AddObjects(ctx context.Context, subscriptionID string, n int64) error {
	if n == 0 {
		return nil
	}
	if err := r.rdb.HIncrBy(ctx, r.keyObjects(), subscriptionID, n).Err(); err != nil {
		return fmt.Errorf("redis HINCRBY objects: %w", err)
	}
	return nil
}

func (r *activityRedisRepo) counter(ctx context.Context, key, id string) (int64, error) {
	n, err := r.rdb.HGet(ctx, key, id).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis HGET %s: %w", key, err)
	}
	return n, nil
}

func (r *activityRedisRepo) HitCount(ctx context.Context, subscriptionID string) (int64, error) {
	return r.counter(ctx, r.keyHits(), subscriptionID)
}

func (r *activityRedisRepo) ObjectCount(ctx context.Context, subscriptionID string) (int64, error) {
	return r.counter(ctx, r.keyObjects(), subscriptionID)
}
