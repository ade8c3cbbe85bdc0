package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/transitlab/sirihub/pkg/domain"

	"github.com/go-redis/redis/v8"
)

// SubscriptionRepository is the shared record store for registered
// subscriptions. Writes are last-writer-wins full replacements; partial
// mutation of a stored record is not offered.
type SubscriptionRepository interface {
	Save(ctx context.Context, sub *domain.Subscription) error
	Get(ctx context.Context, subscriptionID string) (*domain.Subscription, error)
	FindAll(ctx context.Context) ([]*domain.Subscription, error)
	Delete(ctx context.Context, subscriptionID string) error
}

type subscriptionRedisRepo struct {
	rdb *redis.Client
}

func NewSubscriptionRepository(rdb *redis.Client) SubscriptionRepository {
	return &subscriptionRedisRepo{rdb: rdb}
}

func (r *subscriptionRedisRepo) keySubsHash() string {
	return "sirihub:subs"
}

func (r *subscriptionRedisRepo) Save(ctx context.Context, sub *domain.Subscription) error {
	if sub.SubscriptionID == "" {
		return fmt.Errorf("save subscription: empty subscriptionId")
	}
	b, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal subscription %s: %w", sub.SubscriptionID, err)
	}
	if err := r.rdb.HSet(ctx, r.keySubsHash(), sub.SubscriptionID, string(b)).Err(); err != nil {
		return fmt.Errorf("redis HSET sub: %w", err)
	}
	return nil
}

func (r *subscriptionRedisRepo) Get(ctx context.Context, subscriptionID string) (*domain.Subscription, error) {
	js, err := r.rdb.HGet(ctx, r.keySubsHash(), subscriptionID).Result()
	if err == redis.Nil || js == "" {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis HGET sub: %w", err)
	}
	var sub domain.Subscription
	if err := json.Unmarshal([]byte(js), &sub); err != nil {
		return nil, fmt.Errorf("unmarshal sub %s: %w", subscriptionID, err)
	}
	return &sub, nil
}

func (r *subscriptionRedisRepo) FindAll(ctx context.Context) ([]*domain.Subscription, error) {
	all, err := r.rdb.HGetAll(ctx, r.keySubsHash()).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis HGETALL subs: %w", err)
	}
	subs := make([]*domain.Subscription, 0, len(all))
	for id, js := range all {
		var sub domain.Subscription
		if err := json.Unmarshal([]byte(js), &sub); err != nil {
			return nil, fmt.Errorf("unmarshal sub %s: %w", id, err)
		}
		subs = append(subs, &sub)
	}
	return subs, nil
}

func (r *subscriptionRedisRepo) Delete(ctx context.Context, subscriptionID string) error {
	if err := r.rdb.HDel(ctx, r.keySubsHash(), subscriptionID).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis HDEL sub: %w", err)
	}
	return nil
}
