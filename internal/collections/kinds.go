package collections

import (
	"time"

	"github.com/transitlab/sirihub/pkg/domain"

	"github.com/go-redis/redis/v8"
)

// Fallback lifetimes for records that do not declare their own validity.
const (
	defaultSituationTTL  = 24 * time.Hour
	defaultVehicleTTL    = 10 * time.Minute
	defaultEstimatedTTL  = 6 * time.Hour
	defaultProductionTTL = 24 * time.Hour
)

func ttlUntil(validUntil time.Time, now time.Time, fallback time.Duration) time.Duration {
	if validUntil.IsZero() {
		return fallback
	}
	return validUntil.Sub(now)
}

// NewSituationStore keys situations by participant and situation number; a
// higher situation version or later creation time replaces the stored one.
func NewSituationStore(rdb *redis.Client) *Store[domain.SituationElement] {
	return NewStore(rdb, "sx", func(rec domain.SituationElement, now time.Time) Meta {
		if rec.SituationNumber == "" {
			return Meta{}
		}
		recordedAt := rec.CreationTime
		if rec.SituationVersion > 0 {
			// Version beats wall clock when providers re-issue with the same
			// creation time.
			recordedAt = recordedAt.Add(time.Duration(rec.SituationVersion) * time.Millisecond)
		}
		return Meta{
			Key:        rec.ParticipantRef + ":" + rec.SituationNumber,
			RecordedAt: recordedAt,
			TTL:        ttlUntil(rec.ValidUntil, now, defaultSituationTTL),
		}
	})
}

// NewVehicleActivityStore keys by vehicle reference; a later recorded-at
// replaces the stored position.
func NewVehicleActivityStore(rdb *redis.Client) *Store[domain.VehicleActivity] {
	return NewStore(rdb, "vm", func(rec domain.VehicleActivity, now time.Time) Meta {
		return Meta{
			Key:        rec.VehicleRef,
			RecordedAt: rec.RecordedAtTime,
			TTL:        ttlUntil(rec.ValidUntil, now, defaultVehicleTTL),
		}
	})
}

// NewEstimatedTimetableStore keys by dated vehicle journey.
func NewEstimatedTimetableStore(rdb *redis.Client) *Store[domain.EstimatedVehicleJourney] {
	return NewStore(rdb, "et", func(rec domain.EstimatedVehicleJourney, now time.Time) Meta {
		return Meta{
			Key:        rec.DatedVehicleJourneyRef,
			RecordedAt: rec.RecordedAtTime,
			TTL:        defaultEstimatedTTL,
		}
	})
}

// NewProductionTimetableStore keys by line within a timetable frame.
func NewProductionTimetableStore(rdb *redis.Client) *Store[domain.DatedTimetableFrame] {
	return NewStore(rdb, "pt", func(rec domain.DatedTimetableFrame, now time.Time) Meta {
		return Meta{
			Key:        rec.LineRef,
			RecordedAt: rec.RecordedAtTime,
			TTL:        defaultProductionTTL,
		}
	})
}

// Stores bundles the four kind stores for wiring.
type Stores struct {
	Situations           *Store[domain.SituationElement]
	VehicleActivities    *Store[domain.VehicleActivity]
	EstimatedTimetables  *Store[domain.EstimatedVehicleJourney]
	ProductionTimetables *Store[domain.DatedTimetableFrame]
}

func NewStores(rdb *redis.Client) *Stores {
	return &Stores{
		Situations:           NewSituationStore(rdb),
		VehicleActivities:    NewVehicleActivityStore(rdb),
		EstimatedTimetables:  NewEstimatedTimetableStore(rdb),
		ProductionTimetables: NewProductionTimetableStore(rdb),
	}
}
