package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/transitlab/sirihub/internal/health"
	"github.com/transitlab/sirihub/internal/repository"
	"github.com/transitlab/sirihub/pkg/domain"
)

// SubscriptionManager is the lifecycle authority for subscriptions: it owns
// the record store and the activity tracker and is the only writer of the
// active flag. All state it holds is shared; concurrent writers follow
// last-writer-wins.
type SubscriptionManager interface {
	Add(ctx context.Context, sub *domain.Subscription) error
	Remove(ctx context.Context, subscriptionID string, force bool) error
	Get(ctx context.Context, subscriptionID string) (*domain.Subscription, error)
	FindAll(ctx context.Context) ([]*domain.Subscription, error)

	IsActive(ctx context.Context, subscriptionID string) bool
	IsRegistered(ctx context.Context, subscriptionID string) bool
	IsHealthy(ctx context.Context, subscriptionID string) bool

	// ActivatePending flips a pending subscription active. Re-activating an
	// already-active subscription has no start side effects and just renews
	// the lease window.
	ActivatePending(ctx context.Context, subscriptionID string) (activated bool, err error)
	SetActive(ctx context.Context, subscriptionID string, active bool) error

	Touch(ctx context.Context, subscriptionID string) error
	// TouchWithServiceStart applies the remote-restart rule: a start time
	// before our last recorded activity is an ordinary touch; a start time at
	// or after it means the provider restarted since we last heard from it,
	// so lastActivity is rewound far enough to fail the next health check.
	TouchWithServiceStart(ctx context.Context, subscriptionID string, serviceStartedAt time.Time) (touched bool, err error)
	DataReceived(ctx context.Context, subscriptionID string, objects int64) error
	Hit(ctx context.Context, subscriptionID string) error

	Status(ctx context.Context, subscriptionID string) (*domain.SubscriptionStatus, error)
	Stats(ctx context.Context) ([]*domain.SubscriptionStatus, error)
}

type subscriptionManager struct {
	subs     repository.SubscriptionRepository
	activity repository.ActivityRepository
	factor   int
	logger   *slog.Logger
	now      func() time.Time
}

func NewSubscriptionManager(subs repository.SubscriptionRepository, activity repository.ActivityRepository, healthCheckFactor int, logger *slog.Logger) SubscriptionManager {
	if healthCheckFactor <= 0 {
		healthCheckFactor = health.DefaultFactor
	}
	return &subscriptionManager{
		subs:     subs,
		activity: activity,
		factor:   healthCheckFactor,
		logger:   logger,
		now:      time.Now,
	}
}

func (m *subscriptionManager) Add(ctx context.Context, sub *domain.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	if err := m.subs.Save(ctx, sub); err != nil {
		return err
	}
	m.logger.Info("subscription registered", "subscriptionId", sub.SubscriptionID, "vendor", sub.Vendor, "mode", string(sub.Mode))
	return nil
}

func (m *subscriptionManager) Remove(ctx context.Context, subscriptionID string, force bool) error {
	sub, err := m.subs.Get(ctx, subscriptionID)
	if errors.Is(err, domain.ErrNotFound) {
		if force {
			// Purge any orphaned tracking even when the record is gone.
			return m.activity.Remove(ctx, subscriptionID)
		}
		return nil
	}
	if err != nil {
		return err
	}

	if force {
		if err := m.subs.Delete(ctx, subscriptionID); err != nil {
			return err
		}
		if err := m.activity.Remove(ctx, subscriptionID); err != nil {
			return err
		}
		m.logger.Info("subscription force-removed", "subscriptionId", subscriptionID)
		return nil
	}

	// Plain removal deactivates but keeps history and counters.
	sub.Active = false
	if err := m.subs.Save(ctx, sub); err != nil {
		return err
	}
	m.logger.Info("subscription deactivated", "subscriptionId", subscriptionID)
	return nil
}

func (m *subscriptionManager) Get(ctx context.Context, subscriptionID string) (*domain.Subscription, error) {
	return m.subs.Get(ctx, subscriptionID)
}

func (m *subscriptionManager) FindAll(ctx context.Context) ([]*domain.Subscription, error) {
	return m.subs.FindAll(ctx)
}

func (m *subscriptionManager) IsActive(ctx context.Context, subscriptionID string) bool {
	sub, err := m.subs.Get(ctx, subscriptionID)
	return err == nil && sub.Active
}

func (m *subscriptionManager) IsRegistered(ctx context.Context, subscriptionID string) bool {
	_, err := m.subs.Get(ctx, subscriptionID)
	return err == nil
}

func (m *subscriptionManager) IsHealthy(ctx context.Context, subscriptionID string) bool {
	sub, err := m.subs.Get(ctx, subscriptionID)
	if err != nil {
		return true
	}
	act, err := m.activity.Get(ctx, subscriptionID)
	if err != nil {
		return true
	}
	return health.IsHealthy(sub, act, m.factor, m.now())
}

func (m *subscriptionManager) ActivatePending(ctx context.Context, subscriptionID string) (bool, error) {
	sub, err := m.subs.Get(ctx, subscriptionID)
	if err != nil {
		return false, err
	}
	transitioned := !sub.Active
	if transitioned {
		sub.Active = true
		if err := m.subs.Save(ctx, sub); err != nil {
			return false, err
		}
		m.logger.Info("subscription activated", "subscriptionId", subscriptionID, "vendor", sub.Vendor)
	}
	// Every confirmation renews the provider-granted lease window.
	if err := m.activity.Activate(ctx, subscriptionID, m.now()); err != nil {
		return transitioned, err
	}
	return transitioned, nil
}

func (m *subscriptionManager) SetActive(ctx context.Context, subscriptionID string, active bool) error {
	if active {
		_, err := m.ActivatePending(ctx, subscriptionID)
		return err
	}
	return m.Remove(ctx, subscriptionID, false)
}

func (m *subscriptionManager) Touch(ctx context.Context, subscriptionID string) error {
	return m.activity.Touch(ctx, subscriptionID, m.now())
}

func (m *subscriptionManager) TouchWithServiceStart(ctx context.Context, subscriptionID string, serviceStartedAt time.Time) (bool, error) {
	act, err := m.activity.Get(ctx, subscriptionID)
	if err != nil {
		return false, err
	}
	now := m.now()

	if act.LastActivity.IsZero() || serviceStartedAt.Before(act.LastActivity) {
		return true, m.activity.Touch(ctx, subscriptionID, now)
	}

	sub, err := m.subs.Get(ctx, subscriptionID)
	if err != nil {
		return false, err
	}
	heartbeat := sub.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = health.DefaultHeartbeatInterval
	}
	rewound := now.Add(-time.Duration(m.factor+1) * heartbeat)
	m.logger.Warn("provider restart detected",
		"subscriptionId", subscriptionID,
		"serviceStartedTime", serviceStartedAt,
		"lastActivity", act.LastActivity)
	return false, m.activity.Touch(ctx, subscriptionID, rewound)
}

func (m *subscriptionManager) DataReceived(ctx context.Context, subscriptionID string, objects int64) error {
	if err := m.activity.DataReceived(ctx, subscriptionID, m.now()); err != nil {
		return err
	}
	return m.activity.AddObjects(ctx, subscriptionID, objects)
}

func (m *subscriptionManager) Hit(ctx context.Context, subscriptionID string) error {
	return m.activity.Hit(ctx, subscriptionID)
}

func (m *subscriptionManager) Status(ctx context.Context, subscriptionID string) (*domain.SubscriptionStatus, error) {
	sub, err := m.subs.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return m.status(ctx, sub)
}

func (m *subscriptionManager) Stats(ctx context.Context) ([]*domain.SubscriptionStatus, error) {
	subs, err := m.subs.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].SubscriptionID < subs[j].SubscriptionID })

	out := make([]*domain.SubscriptionStatus, 0, len(subs))
	for _, sub := range subs {
		st, err := m.status(ctx, sub)
		if err != nil {
			return nil, fmt.Errorf("status for %s: %w", sub.SubscriptionID, err)
		}
		out = append(out, st)
	}
	return out, nil
}

func (m *subscriptionManager) status(ctx context.Context, sub *domain.Subscription) (*domain.SubscriptionStatus, error) {
	act, err := m.activity.Get(ctx, sub.SubscriptionID)
	if err != nil {
		return nil, err
	}
	hits, err := m.activity.HitCount(ctx, sub.SubscriptionID)
	if err != nil {
		return nil, err
	}
	objects, err := m.activity.ObjectCount(ctx, sub.SubscriptionID)
	if err != nil {
		return nil, err
	}

	st := &domain.SubscriptionStatus{
		Subscription:     sub,
		Status:           "deactivated",
		Activated:        formatTime(act.Activated),
		LastActivity:     formatTime(act.LastActivity),
		LastDataReceived: formatTime(act.LastDataReceived),
		HitCount:         hits,
		ObjectCount:      objects,
		URLs:             sub.URLMap,
	}
	if sub.Active {
		st.Status = "active"
		healthy := health.IsHealthy(sub, act, m.factor, m.now())
		st.Healthy = &healthy
		st.FlagAsNotReceivingData = !act.LastDataReceived.IsZero() &&
			m.now().Sub(act.LastDataReceived) > 5*time.Minute
	}
	return st, nil
}

// formatTime renders a tracking timestamp, empty when never set.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
