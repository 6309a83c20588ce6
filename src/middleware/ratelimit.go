package middleware

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// RateLimiter counts requests per client in fixed windows. Clients are
// identified by the owner header when present, otherwise by address.
type RateLimiter struct {
	maxRequests    int
	windowDuration time.Duration
	ownerHeader    string
	counters       map[string]int
	mu             sync.Mutex
	now            func() time.Time
}

func NewRateLimiter(maxRequests int, windowDuration time.Duration, ownerHeader string) *RateLimiter {
	return &RateLimiter{
		maxRequests:    maxRequests,
		windowDuration: windowDuration,
		ownerHeader:    ownerHeader,
		counters:       make(map[string]int),
		now:            time.Now,
	}
}

func (rl *RateLimiter) getClientID(c *fiber.Ctx) string {
	if rl.ownerHeader != "" {
		if owner := strings.TrimSpace(c.Get(rl.ownerHeader)); owner != "" {
			return "owner:" + owner
		}
	}
	ip := c.Get("X-Forwarded-For")
	if ip == "" {
		ip = c.Get("X-Real-IP")
	}
	if ip == "" {
		ip = c.IP()
	}
	return "ip:" + ip
}

func (rl *RateLimiter) getWindowKey(clientID string, now time.Time) string {
	windowNumber := now.UnixNano() / rl.windowDuration.Nanoseconds()
	return fmt.Sprintf("%s_%d", clientID, windowNumber)
}

func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	key := rl.getWindowKey(clientID, now)

	count, exists := rl.counters[key]
	if !exists {
		// edge case: remove old windows when starting new window
		rl.removeOldWindows(clientID, key)
		rl.counters[key] = 1
		return true
	}

	if count >= rl.maxRequests {
		return false
	}

	rl.counters[key] = count + 1
	return true
}

func (rl *RateLimiter) removeOldWindows(clientID, currentKey string) {
	clientPrefix := clientID + "_"
	for key := range rl.counters {
		if key != currentKey && strings.HasPrefix(key, clientPrefix) {
			delete(rl.counters, key)
		}
	}
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := rl.getClientID(c)

		if !rl.Allow(clientID) {
			log.Warn().
				Str("client", clientID).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("max_requests", rl.maxRequests).
				Msg("Rate limit exceeded")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "Rate limit exceeded",
				"code":    "RATE_LIMITED",
				"message": "Too many requests. Please try again later.",
			})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.maxRequests))
		c.Set("X-RateLimit-Window", rl.windowDuration.String())

		return c.Next()
	}
}
