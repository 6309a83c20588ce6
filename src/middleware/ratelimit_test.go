package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func rateLimitedApp(rl *RateLimiter) *fiber.App {
	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})
	return app
}

func TestRateLimiterAllowsWithinWindow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, "X-Owner")
	fixed := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return fixed }

	for i := 0; i < 3; i++ {
		if !rl.Allow("owner:a") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("owner:a") {
		t.Error("fourth request in the window should be rejected")
	}
	if !rl.Allow("owner:b") {
		t.Error("another client has its own budget")
	}

	fixed = fixed.Add(time.Minute)
	if !rl.Allow("owner:a") {
		t.Error("a new window resets the count")
	}
	if len(rl.counters) != 2 {
		t.Errorf("expected old windows to be dropped, got %d counters", len(rl.counters))
	}
}

func TestRateLimiterKeysByOwnerHeader(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour, "X-Owner")
	app := rateLimitedApp(rl)

	send := func(owner string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		if owner != "" {
			req.Header.Set("X-Owner", owner)
		}
		req.Header.Set("X-Forwarded-For", "10.0.0.1")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		return resp.StatusCode
	}

	if status := send("alice"); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if status := send("alice"); status != http.StatusTooManyRequests {
		t.Errorf("Expected 429 for a second request from the same owner, got %d", status)
	}
	if status := send("bob"); status != http.StatusOK {
		t.Errorf("Expected 200 for a different owner, got %d", status)
	}
	// edge case: without an owner the forwarded address is the key
	if status := send(""); status != http.StatusOK {
		t.Errorf("Expected 200 for an anonymous client, got %d", status)
	}
	if status := send(""); status != http.StatusTooManyRequests {
		t.Errorf("Expected 429 for a repeated anonymous client, got %d", status)
	}
}

func TestRateLimiterHeaders(t *testing.T) {
	app := rateLimitedApp(NewRateLimiter(5, 500*time.Millisecond, "X-Owner"))
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if got := resp.Header.Get("X-RateLimit-Limit"); got != "5" {
		t.Errorf("Expected X-RateLimit-Limit 5, got %q", got)
	}
	if got := resp.Header.Get("X-RateLimit-Window"); got != "500ms" {
		t.Errorf("Expected X-RateLimit-Window 500ms, got %q", got)
	}
}
