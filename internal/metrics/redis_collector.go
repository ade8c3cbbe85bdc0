package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

// redisCollector exports the live size of each data-kind collection straight
// from Redis at scrape time, so the numbers reflect expiry without any
// bookkeeping in the ingestion path.
type redisCollector struct {
	rdb    *redis.Client
	logger *slog.Logger

	collectionSizeDesc *prometheus.Desc
	subsDesc           *prometheus.Desc
}

func newRedisCollector(rdb *redis.Client, logger *slog.Logger) *redisCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisCollector{
		rdb:    rdb,
		logger: logger,
		collectionSizeDesc: prometheus.NewDesc(
			"sirihub_collection_size",
			"Current number of live records per data kind.",
			[]string{"kind"},
			nil,
		),
		subsDesc: prometheus.NewDesc(
			"sirihub_subscriptions_registered",
			"Current number of registered subscriptions.",
			nil,
			nil,
		),
	}
}

func (c *redisCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.collectionSizeDesc
	ch <- c.subsDesc
}

func (c *redisCollector) Collect(ch chan<- prometheus.Metric) {
	if c.rdb == nil {
		return
	}

	// Keep Redis reads bounded so scrapes do not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, kind := range []string{"sx", "vm", "et", "pt"} {
		count, err := c.countKeys(ctx, fmt.Sprintf("sirihub:data:%s:*", kind))
		if err != nil {
			c.logger.Warn("prometheus redis collector failed", "kind", kind, "err", err)
			return
		}
		emitGauge(ch, c.collectionSizeDesc, float64(count), kind)
	}

	subs, err := c.rdb.HLen(ctx, "sirihub:subs").Result()
	if err != nil && err != redis.Nil {
		c.logger.Warn("prometheus redis collector failed", "err", err)
		return
	}
	emitGauge(ch, c.subsDesc, float64(subs))
}

func (c *redisCollector) countKeys(ctx context.Context, pattern string) (int64, error) {
	var count int64
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return 0, err
		}
		count += int64(len(keys))
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labelValues...)
	if err != nil {
		return
	}
	ch <- m
}

var registerRedisCollectorOnce sync.Once

func RegisterRedisCollector(rdb *redis.Client, logger *slog.Logger) {
	registerRedisCollectorOnce.Do(func() {
		prometheus.MustRegister(newRedisCollector(rdb, logger))
	})
}
