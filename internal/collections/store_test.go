package collections

import (
	"context"
	"testing"
	"time"

	"github.com/transitlab/sirihub/pkg/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func setupStores(t *testing.T) (context.Context, *miniredis.Miniredis, *Stores) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return context.Background(), mr, NewStores(rdb)
}

func vehicle(ref string, recordedAt time.Time) domain.VehicleActivity {
	return domain.VehicleActivity{
		VehicleRef:     ref,
		LineRef:        "RUT:Line:1",
		RecordedAtTime: recordedAt,
	}
}

func TestAddAllReturnsChangedSubset(t *testing.T) {
	ctx, _, stores := setupStores(t)
	now := time.Now()

	first, err := stores.VehicleActivities.AddAll(ctx, "RUT", []domain.VehicleActivity{
		vehicle("v1", now),
		vehicle("v2", now),
	})
	if err != nil {
		t.Fatalf("AddAll() error = %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("AddAll() changed = %d, want 2", len(first))
	}

	// Re-sending the same snapshot changes nothing; one fresher record
	// changes exactly one.
	second, err := stores.VehicleActivities.AddAll(ctx, "RUT", []domain.VehicleActivity{
		vehicle("v1", now),
		vehicle("v2", now.Add(time.Minute)),
	})
	if err != nil {
		t.Fatalf("AddAll() error = %v", err)
	}
	if len(second) != 1 || second[0].VehicleRef != "v2" {
		t.Fatalf("AddAll() changed = %v, want just v2", second)
	}
}

func TestAddAllIgnoresStaleAndKeyless(t *testing.T) {
	ctx, _, stores := setupStores(t)
	now := time.Now()

	if _, err := stores.VehicleActivities.AddAll(ctx, "RUT", []domain.VehicleActivity{vehicle("v1", now)}); err != nil {
		t.Fatalf("AddAll() error = %v", err)
	}

	changed, err := stores.VehicleActivities.AddAll(ctx, "RUT", []domain.VehicleActivity{
		vehicle("v1", now.Add(-time.Minute)), // older than stored
		vehicle("", now),                     // no key
	})
	if err != nil {
		t.Fatalf("AddAll() error = %v", err)
	}
	if len(changed) != 0 {
		t.Errorf("AddAll() changed = %v, want none", changed)
	}
}

func TestAddAllDropsExpired(t *testing.T) {
	ctx, _, stores := setupStores(t)
	now := time.Now()

	rec := vehicle("v1", now)
	rec.ValidUntil = now.Add(-time.Minute)
	changed, err := stores.VehicleActivities.AddAll(ctx, "RUT", []domain.VehicleActivity{rec})
	if err != nil {
		t.Fatalf("AddAll() error = %v", err)
	}
	if len(changed) != 0 {
		t.Error("expired record must not land")
	}
}

func TestRecordsExpire(t *testing.T) {
	ctx, mr, stores := setupStores(t)
	now := time.Now()

	rec := vehicle("v1", now)
	rec.ValidUntil = now.Add(30 * time.Second)
	if _, err := stores.VehicleActivities.AddAll(ctx, "RUT", []domain.VehicleActivity{rec}); err != nil {
		t.Fatalf("AddAll() error = %v", err)
	}

	size, _ := stores.VehicleActivities.Size(ctx)
	if size != 1 {
		t.Fatalf("Size = %d, want 1", size)
	}

	mr.FastForward(time.Minute)

	size, _ = stores.VehicleActivities.Size(ctx)
	if size != 0 {
		t.Errorf("Size after expiry = %d, want 0", size)
	}
}

func TestListByDataset(t *testing.T) {
	ctx, _, stores := setupStores(t)
	now := time.Now()

	_, _ = stores.VehicleActivities.AddAll(ctx, "RUT", []domain.VehicleActivity{vehicle("v1", now)})
	_, _ = stores.VehicleActivities.AddAll(ctx, "ATB", []domain.VehicleActivity{vehicle("v2", now)})

	rut, err := stores.VehicleActivities.List(ctx, "RUT")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(rut) != 1 || rut[0].VehicleRef != "v1" {
		t.Errorf("List(RUT) = %v, want just v1", rut)
	}

	all, err := stores.VehicleActivities.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List(all) = %d records, want 2", len(all))
	}
}

func TestSituationVersionBeatsCreationTime(t *testing.T) {
	ctx, _, stores := setupStores(t)
	created := time.Now().Add(-time.Hour)

	base := domain.SituationElement{
		ParticipantRef:  "RUT",
		SituationNumber: "status-1",
		CreationTime:    created,
		SituationVersion: 1,
	}
	if _, err := stores.Situations.AddAll(ctx, "RUT", []domain.SituationElement{base}); err != nil {
		t.Fatalf("AddAll() error = %v", err)
	}

	// Same creation time, higher version: must replace.
	revised := base
	revised.SituationVersion = 2
	changed, err := stores.Situations.AddAll(ctx, "RUT", []domain.SituationElement{revised})
	if err != nil {
		t.Fatalf("AddAll() error = %v", err)
	}
	if len(changed) != 1 {
		t.Error("higher situation version must count as fresher")
	}

	// Same version again: no change.
	changed, _ = stores.Situations.AddAll(ctx, "RUT", []domain.SituationElement{revised})
	if len(changed) != 0 {
		t.Error("re-sent situation version must not count as fresher")
	}
}
