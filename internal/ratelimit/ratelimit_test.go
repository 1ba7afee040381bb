package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestAllow_BurstThenDeny(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	for i := 0; i < 5; i++ {
		if !limiter.Allow("203.0.113.9") {
			t.Errorf("request %d within burst should be allowed", i)
		}
	}
	if limiter.Allow("203.0.113.9") {
		t.Error("request past the burst should be denied")
	}

	// One token refills per second at 60/min.
	time.Sleep(1100 * time.Millisecond)
	if !limiter.Allow("203.0.113.9") {
		t.Error("request after refill should be allowed")
	}
}

func TestAllow_SeparateBucketsPerClient(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		limiter.Allow("mobile-app")
	}
	if limiter.Allow("mobile-app") {
		t.Error("exhausted client should be limited")
	}
	if !limiter.Allow("backoffice") {
		t.Error("fresh client should have its own bucket")
	}
}

func TestAllow_RefillCapsAtBurst(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 600,
		BurstSize:         2,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	limiter.Allow("k")
	limiter.Allow("k")
	if limiter.Allow("k") {
		t.Error("bucket should be empty")
	}

	// Long idle refills at most BurstSize tokens.
	time.Sleep(500 * time.Millisecond)
	allowed := 0
	for i := 0; i < 10; i++ {
		if limiter.Allow("k") {
			allowed++
		}
	}
	if allowed > 3 {
		t.Errorf("allowed %d requests after idle, burst cap not applied", allowed)
	}
}

func TestMiddleware_KeysAuthenticatedCallersByToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	r := gin.New()
	r.Use(limiter.Middleware())
	r.GET("/v1/catalog", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	do := func(token string) int {
		req := httptest.NewRequest("GET", "/v1/catalog", nil)
		if token != "" {
			req.Header.Set("Authorization", token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	// Anonymous requests from the same IP share one bucket.
	if do("") != http.StatusOK {
		t.Error("first anonymous request should pass")
	}
	if do("") != http.StatusTooManyRequests {
		t.Error("second anonymous request should be limited")
	}

	// A token holder behind the same IP gets a separate bucket.
	if do("Bearer user-a-token") != http.StatusOK {
		t.Error("authenticated request should have its own bucket")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RequestsPerMinute != 60 || cfg.BurstSize != 10 || cfg.CleanupInterval != time.Minute {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}
