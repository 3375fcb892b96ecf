package worker

import (
	"net/http"
	"sync"
	"time"

	"github.com/thebtf/retroboard/internal/auth"
)

// Suggestion runs are the most expensive request; each user gets a small bucket.
const (
	SuggestRate  = 1.0 // tokens per second
	SuggestBurst = 5
)

// RateLimiter implements a token bucket rate limiter.
type RateLimiter struct {
	lastUpdate time.Time
	rate       float64
	burst      int
	tokens     float64
	mu         sync.Mutex
}

// NewRateLimiter creates a limiter allowing rate requests per second, up to burst at once.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
	}
}

// Allow reports whether a request may proceed, consuming a token if so.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens = min(rl.tokens+now.Sub(rl.lastUpdate).Seconds()*rl.rate, float64(rl.burst))
	rl.lastUpdate = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

func (rl *RateLimiter) idleSince() time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.lastUpdate
}

// UserRateLimiter keeps one bucket per user.
type UserRateLimiter struct {
	lastCleanup time.Time
	users       map[string]*RateLimiter
	rate        float64
	burst       int
	maxIdleTime time.Duration
	mu          sync.Mutex
}

// NewUserRateLimiter creates a per-user rate limiter.
func NewUserRateLimiter(rate float64, burst int) *UserRateLimiter {
	return &UserRateLimiter{
		lastCleanup: time.Now(),
		users:       make(map[string]*RateLimiter),
		rate:        rate,
		burst:       burst,
		maxIdleTime: 10 * time.Minute,
	}
}

// Allow checks the bucket of userID.
func (l *UserRateLimiter) Allow(userID string) bool {
	l.mu.Lock()
	if time.Since(l.lastCleanup) > l.maxIdleTime {
		for id, rl := range l.users {
			if time.Since(rl.idleSince()) > l.maxIdleTime {
				delete(l.users, id)
			}
		}
		l.lastCleanup = time.Now()
	}
	rl, ok := l.users[userID]
	if !ok {
		rl = NewRateLimiter(l.rate, l.burst)
		l.users[userID] = rl
	}
	l.mu.Unlock()

	return rl.Allow()
}

// Middleware rejects requests of users whose bucket is empty. Requests without a
// user fall back to the client address.
func (l *UserRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if user, ok := auth.FromContext(r.Context()); ok {
			key = user.ID
		}
		if !l.Allow(key) {
			w.Header().Set("Retry-After", "1")
			writeErrorStatus(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
