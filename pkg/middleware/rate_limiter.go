package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	apperrors "dwiju-assistant/backend/pkg/errors"
	"dwiju-assistant/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterOptions configures the rate limiter
type RateLimiterOptions struct {
	// Points is the number of requests allowed per Window
	Points int
	// Window is the accounting period for Points
	Window time.Duration
	// ExpiryDuration defines how long to keep idle client state in memory
	ExpiryDuration time.Duration
	// KeyFunc extracts the limiting key from a request (e.g. IP, user ID)
	KeyFunc func(*gin.Context) string
}

// DefaultRateLimiterOptions returns 100 requests per minute keyed by client IP.
func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Points:         100,
		Window:         time.Minute,
		ExpiryDuration: time.Hour,
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	}
}

// Decision is the outcome of consuming one point for a key.
type Decision struct {
	Allowed   bool
	Remaining int
	// ResetAfter is how long until the key can be served again.
	ResetAfter time.Duration
}

// LimitStore consumes one point for key.
type LimitStore interface {
	Consume(ctx context.Context, key string) (Decision, error)
}

// RateLimiter implements rate limiting middleware for Gin
type RateLimiter struct {
	options RateLimiterOptions
	store   LimitStore
	logger  *logger.Logger
	now     func() time.Time
}

// NewRateLimiter creates a rate limiter over store. A nil store selects the
// in-process token bucket.
func NewRateLimiter(log *logger.Logger, store LimitStore, opts RateLimiterOptions) *RateLimiter {
	if opts.KeyFunc == nil {
		opts.KeyFunc = DefaultRateLimiterOptions().KeyFunc
	}
	if opts.Points <= 0 {
		opts.Points = DefaultRateLimiterOptions().Points
	}
	if opts.Window <= 0 {
		opts.Window = DefaultRateLimiterOptions().Window
	}
	if store == nil {
		store = NewMemoryLimitStore(opts)
	}
	return &RateLimiter{options: opts, store: store, logger: log, now: time.Now}
}

// Middleware returns a Gin middleware for rate limiting
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := r.options.KeyFunc(c)

		d, err := r.store.Consume(c.Request.Context(), key)
		if err != nil {
			// A broken limiter backend must not take the API down with it.
			r.logger.Warn("rate limiter unavailable", "error", err.Error())
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(r.options.Points))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			retryAfter := int(math.Round(d.ResetAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			r.logger.Warn("rate limit exceeded",
				"client", key,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-RateLimit-Reset", r.now().Add(d.ResetAfter).UTC().Format(time.RFC3339))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":    false,
				"error":      "Too many requests",
				"code":       apperrors.CodeRateLimited,
				"retryAfter": retryAfter,
				"limit":      r.options.Points,
				"remaining":  d.Remaining,
			})
			return
		}

		c.Next()
	}
}

// client represents a rate limiter client
type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimitStore is a per-key token bucket refilling Points every Window.
type MemoryLimitStore struct {
	mu      sync.Mutex
	options RateLimiterOptions
	clients map[string]*client
	now     func() time.Time
}

// NewMemoryLimitStore creates an in-process store.
func NewMemoryLimitStore(opts RateLimiterOptions) *MemoryLimitStore {
	if opts.ExpiryDuration <= 0 {
		opts.ExpiryDuration = time.Hour
	}
	return &MemoryLimitStore{
		options: opts,
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

// Consume implements LimitStore.
func (m *MemoryLimitStore) Consume(_ context.Context, key string) (Decision, error) {
	now := m.now()
	limiter := m.getLimiter(key, now)

	res := limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); !res.OK() || delay > 0 {
		res.CancelAt(now)
		return Decision{Allowed: false, Remaining: 0, ResetAfter: delay}, nil
	}

	remaining := int(limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

// getLimiter returns a rate limiter for the given key
func (m *MemoryLimitStore) getLimiter(key string, now time.Time) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, exists := m.clients[key]
	if !exists {
		every := rate.Every(m.options.Window / time.Duration(m.options.Points))
		limiter := rate.NewLimiter(every, m.options.Points)
		m.clients[key] = &client{limiter: limiter, lastSeen: now}
		return limiter
	}

	v.lastSeen = now
	return v.limiter
}

// Cleanup drops clients idle for longer than ExpiryDuration every interval
// until ctx is done.
func (m *MemoryLimitStore) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *MemoryLimitStore) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.options.ExpiryDuration)
	for k, v := range m.clients {
		if v.lastSeen.Before(cutoff) {
			delete(m.clients, k)
		}
	}
}

// WindowCounter is the backend of the shared fixed-window store.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RedisLimitStore is a fixed-window counter shared by every replica.
type RedisLimitStore struct {
	counter WindowCounter
	points  int
	window  time.Duration
	prefix  string
}

// NewRedisLimitStore creates a store counting opts.Points per opts.Window.
func NewRedisLimitStore(counter WindowCounter, opts RateLimiterOptions) *RedisLimitStore {
	return &RedisLimitStore{counter: counter, points: opts.Points, window: opts.Window, prefix: "ratelimit:"}
}

// Consume implements LimitStore.
func (s *RedisLimitStore) Consume(ctx context.Context, key string) (Decision, error) {
	count, reset, err := s.counter.IncrWindow(ctx, s.prefix+key, s.window)
	if err != nil {
		return Decision{}, err
	}
	remaining := s.points - int(count)
	if remaining < 0 {
		return Decision{Allowed: false, Remaining: 0, ResetAfter: reset}, nil
	}
	return Decision{Allowed: true, Remaining: remaining, ResetAfter: reset}, nil
}
