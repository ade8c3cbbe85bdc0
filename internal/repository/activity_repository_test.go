package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func setupActivityRepo(t *testing.T) (context.Context, ActivityRepository) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return context.Background(), NewActivityRepository(rdb)
}

func TestActivityTouch(t *testing.T) {
	ctx, repo := setupActivityRepo(t)

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	if err := repo.Touch(ctx, "sub-1", now); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	act, err := repo.Get(ctx, "sub-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !act.LastActivity.Equal(now) {
		t.Errorf("LastActivity = %v, want %v", act.LastActivity, now)
	}
	if !act.LastDataReceived.IsZero() || !act.Activated.IsZero() {
		t.Error("Touch must not set data-received or activated")
	}
}

func TestActivityGetUnknown(t *testing.T) {
	ctx, repo := setupActivityRepo(t)

	// Unknown subscriptions report zero times, never an error.
	act, err := repo.Get(ctx, "unknown")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !act.LastActivity.IsZero() {
		t.Errorf("LastActivity = %v, want zero", act.LastActivity)
	}
}

func TestActivityDataReceivedTouches(t *testing.T) {
	ctx, repo := setupActivityRepo(t)

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	if err := repo.DataReceived(ctx, "sub-1", now); err != nil {
		t.Fatalf("DataReceived() error = %v", err)
	}

	act, _ := repo.Get(ctx, "sub-1")
	if !act.LastDataReceived.Equal(now) {
		t.Errorf("LastDataReceived = %v, want %v", act.LastDataReceived, now)
	}
	if !act.LastActivity.Equal(now) {
		t.Errorf("LastActivity = %v, want %v (data counts as activity)", act.LastActivity, now)
	}
}

func TestActivityActivate(t *testing.T) {
	ctx, repo := setupActivityRepo(t)

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	if err := repo.Activate(ctx, "sub-1", now); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	act, _ := repo.Get(ctx, "sub-1")
	if !act.Activated.Equal(now) {
		t.Errorf("Activated = %v, want %v", act.Activated, now)
	}
}

func TestActivityCounters(t *testing.T) {
	ctx, repo := setupActivityRepo(t)

	for i := 0; i < 3; i++ {
		if err := repo.Hit(ctx, "sub-1"); err != nil {
			t.Fatalf("Hit() error = %v", err)
		}
	}
	if err := repo.AddObjects(ctx, "sub-1", 2_500_000_000); err != nil {
		t.Fatalf("AddObjects() error = %v", err)
	}
	if err := repo.AddObjects(ctx, "sub-1", 2_500_000_000); err != nil {
		t.Fatalf("AddObjects() error = %v", err)
	}

	hits, err := repo.HitCount(ctx, "sub-1")
	if err != nil {
		t.Fatalf("HitCount() error = %v", err)
	}
	if hits != 3 {
		t.Errorf("HitCount = %d, want 3", hits)
	}

	// Accumulation past the 32-bit range stays exact.
	objs, err := repo.ObjectCount(ctx, "sub-1")
	if err != nil {
		t.Fatalf("ObjectCount() error = %v", err)
	}
	if objs != 5_000_000_000 {
		t.Errorf("ObjectCount = %d, want 5000000000", objs)
	}

	if err := repo.AddObjects(ctx, "sub-1", 0); err != nil {
		t.Errorf("AddObjects(0) error = %v", err)
	}
}

func TestActivityRemovePurgesEverything(t *testing.T) {
	ctx, repo := setupActivityRepo(t)

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	_ = repo.Touch(ctx, "sub-1", now)
	_ = repo.Activate(ctx, "sub-1", now)
	_ = repo.Hit(ctx, "sub-1")
	_ = repo.AddObjects(ctx, "sub-1", 10)

	if err := repo.Remove(ctx, "sub-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	act, _ := repo.Get(ctx, "sub-1")
	if !act.LastActivity.IsZero() || !act.Activated.IsZero() {
		t.Error("tracking timestamps survived Remove")
	}
	hits, _ := repo.HitCount(ctx, "sub-1")
	objs, _ := repo.ObjectCount(ctx, "sub-1")
	if hits != 0 || objs != 0 {
		t.Errorf("counters survived Remove: hits=%d objs=%d", hits, objs)
	}
}
