package health

import (
	"testing"
	"time"

	"github.com/transitlab/sirihub/pkg/domain"
)

var t0 = time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

func activeSub(mode domain.SubscriptionMode, heartbeat time.Duration) *domain.Subscription {
	return &domain.Subscription{
		SubscriptionID:         "sub-1",
		Mode:                   mode,
		HeartbeatInterval:      heartbeat,
		DurationOfSubscription: 24 * time.Hour,
		Active:                 true,
	}
}

func TestInactiveSubscriptionIsHealthy(t *testing.T) {
	sub := activeSub(domain.ModeSubscribe, time.Minute)
	sub.Active = false
	act := &domain.Activity{LastActivity: t0.Add(-100 * time.Hour)}
	if !IsHealthy(sub, act, 5, t0) {
		t.Error("deactivated subscription must always be healthy")
	}
}

func TestNoActivityIsHealthy(t *testing.T) {
	sub := activeSub(domain.ModeSubscribe, time.Minute)
	if !IsHealthy(sub, &domain.Activity{}, 5, t0) {
		t.Error("subscription with no tracked activity must be healthy")
	}
	if !IsHealthy(sub, nil, 5, t0) {
		t.Error("nil activity must be healthy")
	}
}

// Boundary behavior: exactly factor*heartbeat old is still healthy, a moment
// beyond it is not. Heartbeat 150ms and factor 5 give a 750ms window.
func TestActivityWindowBoundary(t *testing.T) {
	sub := activeSub(domain.ModeSubscribe, 150*time.Millisecond)

	atBoundary := &domain.Activity{LastActivity: t0.Add(-750 * time.Millisecond)}
	if !IsHealthy(sub, atBoundary, 5, t0) {
		t.Error("activity exactly at the window boundary must be healthy")
	}

	beyond := &domain.Activity{LastActivity: t0.Add(-751 * time.Millisecond)}
	if IsHealthy(sub, beyond, 5, t0) {
		t.Error("activity beyond the window must be unhealthy")
	}
}

func TestDefaultsApplyWhenUnset(t *testing.T) {
	// No heartbeat declared: the 5 minute default with factor 5 allows 25m.
	sub := activeSub(domain.ModeRequestResponse, 0)

	ok := &domain.Activity{LastActivity: t0.Add(-20 * time.Minute)}
	if !IsHealthy(sub, ok, 0, t0) {
		t.Error("activity within default window must be healthy")
	}
	stale := &domain.Activity{LastActivity: t0.Add(-26 * time.Minute)}
	if IsHealthy(sub, stale, 0, t0) {
		t.Error("activity beyond default window must be unhealthy")
	}
}

func TestSubscribeLeaseLapse(t *testing.T) {
	sub := activeSub(domain.ModeSubscribe, time.Hour)
	sub.DurationOfSubscription = 2 * time.Hour

	// Recent activity, but the negotiated lease ran out.
	act := &domain.Activity{
		LastActivity: t0.Add(-time.Minute),
		Activated:    t0.Add(-3 * time.Hour),
	}
	if IsHealthy(sub, act, 5, t0) {
		t.Error("lapsed push lease must be unhealthy")
	}

	// Lease lapse only applies to push subscriptions.
	poll := activeSub(domain.ModeRequestResponse, time.Hour)
	poll.DurationOfSubscription = 2 * time.Hour
	if !IsHealthy(poll, act, 5, t0) {
		t.Error("lease lapse must not apply to polling subscriptions")
	}
}
