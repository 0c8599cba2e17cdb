package httpapi

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig bounds registrations per volunteer.
type RateLimitConfig struct {
	PerMinute       float64
	Burst           int
	CleanupInterval time.Duration
}

type volunteerLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// rateLimiter keeps one token bucket per volunteer and drops idle buckets.
type rateLimiter struct {
	limit    rate.Limit
	burst    int
	interval time.Duration

	mu       sync.Mutex
	limiters map[string]*volunteerLimiter
	stopOnce sync.Once
	stopCh   chan struct{}
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	rl := &rateLimiter{
		limit:    rate.Limit(cfg.PerMinute / 60),
		burst:    cfg.Burst,
		interval: cfg.CleanupInterval,
		limiters: make(map[string]*volunteerLimiter),
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *rateLimiter) allow(key string) bool {
	now := time.Now()
	rl.mu.Lock()
	vl, ok := rl.limiters[key]
	if !ok {
		vl = &volunteerLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = vl
	}
	vl.lastAccess = now
	rl.mu.Unlock()
	return vl.limiter.AllowN(now, 1)
}

func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *rateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *rateLimiter) cleanup(now time.Time) {
	ttl := rl.interval * 2
	rl.mu.Lock()
	for key, vl := range rl.limiters {
		if now.Sub(vl.lastAccess) > ttl {
			delete(rl.limiters, key)
		}
	}
	rl.mu.Unlock()
}

// middleware limits requests per identified volunteer. It runs after
// loadSession; anonymous callers share the remote address bucket.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if vol, ok := volunteerFrom(r.Context()); ok {
			key = vol.ID
		}
		if !rl.allow(key) {
			retry := int(math.Ceil(1 / float64(rl.limit)))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeError(w, http.StatusTooManyRequests, "too many registrations, try again shortly")
			return
		}
		next.ServeHTTP(w, r)
	})
}
