package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/transitlab/sirihub/internal/ratelimit"
	"github.com/transitlab/sirihub/pkg/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

func newInboundEngine(t *testing.T, cfg config.RateLimitBucketConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	engine := gin.New()
	engine.POST("/siri/:subscriptionId", RateLimitInbound(ratelimit.NewTokenBucketLimiter(rdb), cfg), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return engine
}

func postInbound(engine *gin.Engine, subscriptionID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/siri/"+subscriptionID, nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRateLimitInboundDisabledPassesEverything(t *testing.T) {
	engine := newInboundEngine(t, config.RateLimitBucketConfig{})

	for i := 0; i < 20; i++ {
		if w := postInbound(engine, "sub-1"); w.Code != http.StatusOK {
			t.Fatalf("request %d = %d, want 200 with limiting disabled", i, w.Code)
		}
	}
}

func TestRateLimitInboundThrottlesPerSubscription(t *testing.T) {
	engine := newInboundEngine(t, config.RateLimitBucketConfig{RequestsPerMinute: 60, BurstSize: 2})

	for i := 0; i < 2; i++ {
		if w := postInbound(engine, "sub-1"); w.Code != http.StatusOK {
			t.Fatalf("burst request %d = %d, want 200", i, w.Code)
		}
	}

	w := postInbound(engine, "sub-1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over-burst request = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("throttled response must carry Retry-After")
	}

	// A different subscription has its own bucket.
	if w := postInbound(engine, "sub-2"); w.Code != http.StatusOK {
		t.Fatalf("other subscription = %d, want 200", w.Code)
	}
}
