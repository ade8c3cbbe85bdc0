// Package health decides whether a subscription is alive based purely on its
// configuration and tracked activity. It has no side effects and no clock of
// its own, so the trigger loop and the admin surface evaluate identically.
package health

import (
	"time"

	"github.com/transitlab/sirihub/pkg/domain"
)

const (
	// DefaultHeartbeatInterval applies when a subscription does not declare one.
	DefaultHeartbeatInterval = 5 * time.Minute
	// DefaultFactor is the number of heartbeat intervals that may elapse
	// without activity before the subscription counts as dead.
	DefaultFactor = 5
)

// IsHealthy reports whether the subscription should be considered alive at
// the given instant.
//
// A subscription that is not active, or that has never produced any tracked
// activity, is healthy: there is nothing to restart yet. An active one is
// unhealthy once its last activity is older than factor heartbeat intervals,
// or, for push subscriptions, once its negotiated lease has lapsed.
func IsHealthy(sub *domain.Subscription, act *domain.Activity, factor int, now time.Time) bool {
	if sub == nil || !sub.Active {
		return true
	}
	if act == nil || act.LastActivity.IsZero() {
		return true
	}

	heartbeat := sub.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	if factor <= 0 {
		factor = DefaultFactor
	}

	allowed := time.Duration(factor) * heartbeat
	if now.Sub(act.LastActivity) > allowed {
		return false
	}

	if sub.Mode == domain.ModeSubscribe && !act.Activated.IsZero() {
		if act.Activated.Add(sub.DurationOfSubscription).Before(now) {
			return false
		}
	}
	return true
}
