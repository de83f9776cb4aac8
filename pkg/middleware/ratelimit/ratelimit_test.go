package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestTokenBucketLimiter_EnforcesBurst(t *testing.T) {
	limiter := NewTokenBucketLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("10.0.0.1") {
			t.Fatalf("request %d should be within the burst", i)
		}
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatal("request beyond the burst should be rejected")
	}
}

func TestTokenBucketLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewTokenBucketLimiter(1, 1)

	if !limiter.Allow("10.0.0.1") {
		t.Fatal("first key should be allowed")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatal("first key exhausted its burst")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Fatal("second key must have its own bucket")
	}
}

func newLimitedRouter(limiter RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/v1/events", PerClientIP(limiter), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})
	return router
}

func TestPerClientIP(t *testing.T) {
	router := newLimitedRouter(NewTokenBucketLimiter(1, 2))

	send := func(remoteAddr string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/v1/events", nil)
		req.RemoteAddr = remoteAddr
		router.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send("10.0.0.1:1234"); rec.Code != http.StatusAccepted {
			t.Fatalf("request %d: expected 202, got %d", i, rec.Code)
		}
	}

	rec := send("10.0.0.1:1234")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("429 response should carry a Retry-After hint")
	}

	// A different client IP is unaffected; the port is not part of the key.
	if rec := send("10.0.0.2:1234"); rec.Code != http.StatusAccepted {
		t.Fatalf("other client: expected 202, got %d", rec.Code)
	}
	if rec := send("10.0.0.1:9999"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("same IP on another port: expected 429, got %d", rec.Code)
	}
}
