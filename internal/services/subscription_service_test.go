package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/transitlab/sirihub/internal/repository"
	"github.com/transitlab/sirihub/pkg/domain"
)

func newTestSubscription(id string) *domain.Subscription {
	return &domain.Subscription{
		InternalID:             id,
		SubscriptionID:         id,
		Vendor:                 "okina",
		DatasetID:              "OKI",
		Version:                "2.0",
		ServiceType:            domain.ServiceREST,
		Mode:                   domain.ModeSubscribe,
		DataType:               domain.VehicleMonitoring,
		HeartbeatInterval:      time.Minute,
		DurationOfSubscription: 24 * time.Hour,
		RequestorRef:           "sirihub",
		URLMap: map[domain.RequestType]string{
			domain.ReqSubscribe:          "http://provider.test/subscribe",
			domain.ReqDeleteSubscription: "http://provider.test/terminate",
			domain.ReqCheckStatus:        "http://provider.test/status",
		},
	}
}

func setupManager(t *testing.T) (context.Context, *subscriptionManager, repository.ActivityRepository) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	subs := repository.NewSubscriptionRepository(rdb)
	activity := repository.NewActivityRepository(rdb)
	m := NewSubscriptionManager(subs, activity, 5, slog.Default()).(*subscriptionManager)
	return context.Background(), m, activity
}

func TestManagerAddAndGet(t *testing.T) {
	ctx, m, _ := setupManager(t)

	sub := newTestSubscription("okina-vm")
	if err := m.Add(ctx, sub); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, err := m.Get(ctx, "okina-vm")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Vendor != "okina" || got.Mode != domain.ModeSubscribe {
		t.Fatalf("unexpected subscription: %+v", got)
	}
	if !m.IsRegistered(ctx, "okina-vm") {
		t.Fatal("expected subscription to be registered")
	}
}

func TestManagerAddRejectsInvalid(t *testing.T) {
	ctx, m, _ := setupManager(t)

	sub := newTestSubscription("bad")
	sub.Mode = ""
	if err := m.Add(ctx, sub); err == nil {
		t.Fatal("expected validation error for missing mode")
	}
	if m.IsRegistered(ctx, "bad") {
		t.Fatal("invalid subscription must not be persisted")
	}
}

func TestManagerActivatePending(t *testing.T) {
	ctx, m, activity := setupManager(t)

	sub := newTestSubscription("okina-vm")
	if err := m.Add(ctx, sub); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if m.IsActive(ctx, "okina-vm") {
		t.Fatal("fresh subscription must start inactive")
	}

	transitioned, err := m.ActivatePending(ctx, "okina-vm")
	if err != nil {
		t.Fatalf("ActivatePending: %v", err)
	}
	if !transitioned {
		t.Fatal("first confirmation must transition to active")
	}
	if !m.IsActive(ctx, "okina-vm") {
		t.Fatal("subscription should be active after confirmation")
	}

	first, err := activity.Get(ctx, "okina-vm")
	if err != nil {
		t.Fatalf("activity.Get: %v", err)
	}

	// A repeated confirmation renews the lease but is not a new transition.
	m.now = func() time.Time { return time.Now().Add(time.Hour) }
	transitioned, err = m.ActivatePending(ctx, "okina-vm")
	if err != nil {
		t.Fatalf("ActivatePending again: %v", err)
	}
	if transitioned {
		t.Fatal("re-confirmation must not report a transition")
	}
	second, err := activity.Get(ctx, "okina-vm")
	if err != nil {
		t.Fatalf("activity.Get: %v", err)
	}
	if !second.Activated.After(first.Activated) {
		t.Fatal("re-confirmation must renew the activation timestamp")
	}
}

func TestManagerTouchWithServiceStartOrdinary(t *testing.T) {
	ctx, m, activity := setupManager(t)

	sub := newTestSubscription("okina-vm")
	if err := m.Add(ctx, sub); err != nil {
		t.Fatalf("Add: %v", err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := activity.Touch(ctx, "okina-vm", base); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	m.now = func() time.Time { return base.Add(30 * time.Second) }
	touched, err := m.TouchWithServiceStart(ctx, "okina-vm", base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("TouchWithServiceStart: %v", err)
	}
	if !touched {
		t.Fatal("start time before last activity is an ordinary touch")
	}
	act, _ := activity.Get(ctx, "okina-vm")
	if !act.LastActivity.Equal(base.Add(30 * time.Second)) {
		t.Fatalf("last activity = %v, want %v", act.LastActivity, base.Add(30*time.Second))
	}
}

func TestManagerTouchWithServiceStartDetectsRestart(t *testing.T) {
	ctx, m, activity := setupManager(t)

	sub := newTestSubscription("okina-vm")
	sub.Active = true
	if err := m.Add(ctx, sub); err != nil {
		t.Fatalf("Add: %v", err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := activity.Touch(ctx, "okina-vm", base); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	now := base.Add(30 * time.Second)
	m.now = func() time.Time { return now }

	// Provider reports it started after our last recorded activity: it
	// restarted behind our back.
	touched, err := m.TouchWithServiceStart(ctx, "okina-vm", base.Add(10*time.Second))
	if err != nil {
		t.Fatalf("TouchWithServiceStart: %v", err)
	}
	if touched {
		t.Fatal("restart must not count as an ordinary touch")
	}

	act, _ := activity.Get(ctx, "okina-vm")
	wantRewound := now.Add(-6 * time.Minute) // (factor+1) heartbeats behind now
	if !act.LastActivity.Equal(wantRewound) {
		t.Fatalf("last activity = %v, want rewound to %v", act.LastActivity, wantRewound)
	}
	if m.IsHealthy(ctx, "okina-vm") {
		t.Fatal("rewound activity must fail the next health check")
	}
}

func TestManagerTouchWithServiceStartFirstContact(t *testing.T) {
	ctx, m, _ := setupManager(t)

	sub := newTestSubscription("okina-vm")
	if err := m.Add(ctx, sub); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// No activity on record yet: any reported start time is a plain touch.
	touched, err := m.TouchWithServiceStart(ctx, "okina-vm", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("TouchWithServiceStart: %v", err)
	}
	if !touched {
		t.Fatal("first contact must be an ordinary touch")
	}
}

func TestManagerRemoveKeepsRecordUnlessForced(t *testing.T) {
	ctx, m, activity := setupManager(t)

	sub := newTestSubscription("okina-vm")
	sub.Active = true
	if err := m.Add(ctx, sub); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Hit(ctx, "okina-vm"); err != nil {
		t.Fatalf("Hit: %v", err)
	}

	if err := m.Remove(ctx, "okina-vm", false); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if m.IsActive(ctx, "okina-vm") {
		t.Fatal("removed subscription must be inactive")
	}
	if !m.IsRegistered(ctx, "okina-vm") {
		t.Fatal("plain removal keeps the record")
	}
	hits, _ := activity.HitCount(ctx, "okina-vm")
	if hits != 1 {
		t.Fatalf("plain removal keeps counters, hits = %d", hits)
	}

	if err := m.Remove(ctx, "okina-vm", true); err != nil {
		t.Fatalf("force Remove: %v", err)
	}
	if m.IsRegistered(ctx, "okina-vm") {
		t.Fatal("forced removal deletes the record")
	}
	hits, _ = activity.HitCount(ctx, "okina-vm")
	if hits != 0 {
		t.Fatalf("forced removal purges counters, hits = %d", hits)
	}
}

func TestManagerDataReceivedCounts(t *testing.T) {
	ctx, m, activity := setupManager(t)

	sub := newTestSubscription("okina-vm")
	if err := m.Add(ctx, sub); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.DataReceived(ctx, "okina-vm", 7); err != nil {
		t.Fatalf("DataReceived: %v", err)
	}
	if err := m.DataReceived(ctx, "okina-vm", 3); err != nil {
		t.Fatalf("DataReceived: %v", err)
	}

	objects, err := activity.ObjectCount(ctx, "okina-vm")
	if err != nil {
		t.Fatalf("ObjectCount: %v", err)
	}
	if objects != 10 {
		t.Fatalf("object count = %d, want 10", objects)
	}
	act, _ := activity.Get(ctx, "okina-vm")
	if act.LastDataReceived.IsZero() || act.LastActivity.IsZero() {
		t.Fatal("data receipt must stamp both activity timestamps")
	}
}

func TestManagerStats(t *testing.T) {
	ctx, m, _ := setupManager(t)

	b := newTestSubscription("b-sub")
	a := newTestSubscription("a-sub")
	a.Active = true
	for _, sub := range []*domain.Subscription{b, a} {
		if err := m.Add(ctx, sub); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if err := m.Touch(ctx, "a-sub"); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	stats, err := m.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("got %d entries, want 2", len(stats))
	}
	if stats[0].Subscription.SubscriptionID != "a-sub" {
		t.Fatalf("stats not sorted by id: %s first", stats[0].Subscription.SubscriptionID)
	}
	if stats[0].Status != "active" || stats[0].Healthy == nil || !*stats[0].Healthy {
		t.Fatalf("active subscription status wrong: %+v", stats[0])
	}
	if stats[1].Status != "deactivated" || stats[1].Healthy != nil {
		t.Fatalf("inactive subscription status wrong: %+v", stats[1])
	}
}
