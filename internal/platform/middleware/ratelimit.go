package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig sets per-client token buckets. Reads and writes draw from
// separate buckets so a client polling slots cannot starve its own bookings.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// WriteRequestsPerSecond and WriteBurstSize cover POST, PUT, PATCH and
	// DELETE. Zero falls back to the read budget.
	WriteRequestsPerSecond float64
	WriteBurstSize         int
	// IdleTTL drops a client's buckets after this long without requests.
	IdleTTL time.Duration
	// Skipper exempts requests, e.g. health probes.
	Skipper func(c echo.Context) bool
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond:      50,
		BurstSize:              100,
		WriteRequestsPerSecond: 10,
		WriteBurstSize:         20,
		IdleTTL:                10 * time.Minute,
	}
}

type bucket struct {
	limit rate.Limit
	burst int
}

func (cfg RateLimitConfig) bucketFor(method string) (bucket, string) {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		if cfg.WriteRequestsPerSecond > 0 {
			burst := cfg.WriteBurstSize
			if burst <= 0 {
				burst = int(math.Ceil(cfg.WriteRequestsPerSecond))
			}
			return bucket{rate.Limit(cfg.WriteRequestsPerSecond), burst}, "write"
		}
	}
	return bucket{rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize}, "read"
}

type trackedLimiter struct {
	*rate.Limiter
	lastSeen time.Time
}

// limiterStore keeps one limiter per client and bucket, sweeping idle ones at
// most once per IdleTTL.
type limiterStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	limiters  map[string]*trackedLimiter
	lastSweep time.Time
}

func newLimiterStore(ttl time.Duration, now time.Time) *limiterStore {
	return &limiterStore{ttl: ttl, limiters: make(map[string]*trackedLimiter), lastSweep: now}
}

func (s *limiterStore) get(key string, b bucket, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl > 0 && now.Sub(s.lastSweep) > s.ttl {
		for k, l := range s.limiters {
			if now.Sub(l.lastSeen) > s.ttl {
				delete(s.limiters, k)
			}
		}
		s.lastSweep = now
	}

	l, ok := s.limiters[key]
	if !ok {
		l = &trackedLimiter{Limiter: rate.NewLimiter(b.limit, b.burst)}
		s.limiters[key] = l
	}
	l.lastSeen = now
	return l.Limiter
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// RateLimit rejects a client with 429 once its bucket for the request's
// method class is empty. Clients are keyed by echo's RealIP.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newLimiterStore(cfg.IdleTTL, time.Now())

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}
			now := time.Now()
			b, class := cfg.bucketFor(c.Request().Method)
			limiter := store.get(c.RealIP()+"|"+class, b, now)

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.FormatFloat(float64(b.limit), 'f', -1, 64))

			r := limiter.ReserveN(now, 1)
			if delay := r.DelayFrom(now); !r.OK() || delay > 0 {
				r.CancelAt(now)
				h.Set("X-RateLimit-Remaining", "0")
				if r.OK() {
					h.Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				}
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}

			h.Set("X-RateLimit-Remaining", strconv.Itoa(int(math.Max(0, limiter.TokensAt(now)))))
			return next(c)
		}
	}
}
