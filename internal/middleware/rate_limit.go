package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/transitlab/sirihub/internal/metrics"
	"github.com/transitlab/sirihub/internal/ratelimit"
	"github.com/transitlab/sirihub/pkg/config"
)

// RateLimitInbound throttles pushed messages per provider subscription. The
// key is the subscriptionId path parameter; anonymous service requests share
// one bucket keyed by client address.
func RateLimitInbound(lim ratelimit.Limiter, cfg config.RateLimitBucketConfig) gin.HandlerFunc {
	bucket := ratelimit.Bucket{RequestsPerMinute: cfg.RequestsPerMinute, BurstSize: cfg.BurstSize}
	return func(c *gin.Context) {
		if lim == nil || !bucket.Enabled() {
			c.Next()
			return
		}

		key := c.Param("subscriptionId")
		if key == "" {
			key = c.ClientIP()
		}

		dec, err := lim.Allow(c.Request.Context(), key, bucket)
		if err != nil {
			// Fail open: a Redis hiccup must not drop provider data.
			slog.Default().Warn("rate limit check failed", "subscriptionId", key, "err", err)
			c.Next()
			return
		}
		if dec.Allowed {
			c.Next()
			return
		}

		retryAfterSeconds := int(dec.RetryAfter.Seconds())
		if retryAfterSeconds <= 0 {
			retryAfterSeconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		metrics.RateLimitHitsTotal.WithLabelValues(key).Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":             "rate limit exceeded",
			"retryAfterSeconds": retryAfterSeconds,
		})
	}
}
