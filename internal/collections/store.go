// Package collections holds the deduplicated, expiring view of received
// real-time records, one store per data kind, shared across nodes through
// Redis. AddAll is the single write path: a record only lands if it is new or
// strictly fresher than the stored version, and the subset that landed is
// returned so callers republish exactly what changed.
package collections

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Meta is the storage identity of one record: its deduplication key, its
// version ordering timestamp and how long it stays relevant.
type Meta struct {
	Key        string
	RecordedAt time.Time
	TTL        time.Duration
}

// MetaFunc extracts storage identity from a record.
type MetaFunc[T any] func(rec T, now time.Time) Meta

type entry[T any] struct {
	RecordedAt time.Time `json:"recordedAt"`
	Record     T         `json:"record"`
}

type Store[T any] struct {
	rdb  *redis.Client
	kind string
	meta MetaFunc[T]
	now  func() time.Time
}

func NewStore[T any](rdb *redis.Client, kind string, meta MetaFunc[T]) *Store[T] {
	return &Store[T]{rdb: rdb, kind: kind, meta: meta, now: time.Now}
}

func (s *Store[T]) keyRecord(datasetID, recordKey string) string {
	return fmt.Sprintf("sirihub:data:%s:%s:%s", s.kind, datasetID, recordKey)
}

func (s *Store[T]) keyPattern(datasetID string) string {
	if datasetID == "" {
		return fmt.Sprintf("sirihub:data:%s:*", s.kind)
	}
	return fmt.Sprintf("sirihub:data:%s:%s:*", s.kind, datasetID)
}

// AddAll writes the records that are new or fresher than what is stored and
// returns exactly that subset. Records without a key, or already past their
// validity, are dropped silently.
func (s *Store[T]) AddAll(ctx context.Context, datasetID string, records []T) ([]T, error) {
	now := s.now()
	var changed []T
	for _, rec := range records {
		m := s.meta(rec, now)
		if m.Key == "" || m.TTL <= 0 {
			continue
		}
		key := s.keyRecord(datasetID, m.Key)

		js, err := s.rdb.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return changed, fmt.Errorf("redis GET %s: %w", key, err)
		}
		if err == nil && js != "" {
			var existing entry[T]
			if jerr := json.Unmarshal([]byte(js), &existing); jerr == nil {
				if !m.RecordedAt.After(existing.RecordedAt) {
					continue
				}
			}
		}

		b, err := json.Marshal(entry[T]{RecordedAt: m.RecordedAt, Record: rec})
		if err != nil {
			return changed, fmt.Errorf("marshal %s record: %w", s.kind, err)
		}
		if err := s.rdb.Set(ctx, key, string(b), m.TTL).Err(); err != nil {
			return changed, fmt.Errorf("redis SET %s: %w", key, err)
		}
		changed = append(changed, rec)
	}
	return changed, nil
}

// List returns every live record, optionally narrowed to one dataset.
func (s *Store[T]) List(ctx context.Context, datasetID string) ([]T, error) {
	var out []T
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, s.keyPattern(datasetID), 200).Result()
		if err != nil {
			return nil, fmt.Errorf("redis SCAN %s: %w", s.kind, err)
		}
		for _, key := range keys {
			js, err := s.rdb.Get(ctx, key).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("redis GET %s: %w", key, err)
			}
			var e entry[T]
			if err := json.Unmarshal([]byte(js), &e); err != nil {
				continue
			}
			out = append(out, e.Record)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

// Size counts live records across all datasets.
func (s *Store[T]) Size(ctx context.Context) (int64, error) {
	var count int64
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, s.keyPattern(""), 500).Result()
		if err != nil {
			return 0, fmt.Errorf("redis SCAN %s: %w", s.kind, err)
		}
		count += int64(len(keys))
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return count, nil
}

func (s *Store[T]) Kind() string { return s.kind }
