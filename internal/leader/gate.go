package leader

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Gate answers whether this node currently holds leadership for a key.
// Leadership is advisory: it suppresses duplicate outbound protocol calls in
// a cluster, but a brief overlap during failover is tolerated because the
// remote operations are idempotent.
type Gate interface {
	IsLeader(ctx context.Context, key string) bool
}

// RedisLeaseGate takes leadership by acquiring a SET NX PX lease per key and
// refreshing it while it is the owner. If the owner dies, the lease expires
// and another node acquires it on its next tick.
type RedisLeaseGate struct {
	rdb    *redis.Client
	nodeID string
	ttl    time.Duration
}

func NewRedisLeaseGate(rdb *redis.Client, nodeID string, ttl time.Duration) *RedisLeaseGate {
	if ttl <= 0 {
		ttl = 45 * time.Second
	}
	return &RedisLeaseGate{rdb: rdb, nodeID: nodeID, ttl: ttl}
}

func (g *RedisLeaseGate) keyLease(key string) string {
	return "sirihub:leader:" + key
}

func (g *RedisLeaseGate) IsLeader(ctx context.Context, key string) bool {
	lease := g.keyLease(key)

	ok, err := g.rdb.SetNX(ctx, lease, g.nodeID, g.ttl).Result()
	if err != nil && err != redis.Nil {
		// Degraded coordination backend: stand down rather than risk a
		// thundering herd of duplicate protocol calls.
		return false
	}
	if ok {
		return true
	}

	owner, err := g.rdb.Get(ctx, lease).Result()
	if err != nil || owner != g.nodeID {
		return false
	}
	// Still the owner: refresh the lease.
	_ = g.rdb.Expire(ctx, lease, g.ttl).Err()
	return true
}

// StaticGate always answers the same, for single-node deployments and tests.
type StaticGate bool

func (g StaticGate) IsLeader(context.Context, string) bool { return bool(g) }
