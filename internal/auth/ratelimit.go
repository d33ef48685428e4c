package auth

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RateLimiter is a per-client token bucket guarding the login and signup posts
type RateLimiter struct {
	mu             sync.Mutex
	buckets        map[string]*tokenBucket
	maxTokens      int
	refillRate     int
	refillInterval time.Duration
	now            func() time.Time
}

type tokenBucket struct {
	tokens     int
	lastRefill time.Time
}

// NewRateLimiter allows maxTokens requests per client, then refillRate more
// every refillInterval
func NewRateLimiter(maxTokens, refillRate int, refillInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets:        make(map[string]*tokenBucket),
		maxTokens:      maxTokens,
		refillRate:     refillRate,
		refillInterval: refillInterval,
		now:            time.Now,
	}
}

// DefaultAuthRateLimiter allows a burst of burst posts, then one per minute.
// A burst <= 0 falls back to 5.
func DefaultAuthRateLimiter(burst int) *RateLimiter {
	if burst <= 0 {
		burst = 5
	}
	return NewRateLimiter(burst, 1, time.Minute)
}

// Allow reports whether a request from clientID may proceed and consumes a token
func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	bucket, exists := rl.buckets[clientID]
	if !exists {
		bucket = &tokenBucket{tokens: rl.maxTokens, lastRefill: now}
		rl.buckets[clientID] = bucket
	}

	if intervals := int(now.Sub(bucket.lastRefill) / rl.refillInterval); intervals > 0 {
		bucket.tokens = min(bucket.tokens+intervals*rl.refillRate, rl.maxTokens)
		bucket.lastRefill = bucket.lastRefill.Add(time.Duration(intervals) * rl.refillInterval)
	}

	if bucket.tokens > 0 {
		bucket.tokens--
		return true
	}
	return false
}

// Sweep drops buckets that have been idle long enough to be full again
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	full := time.Duration(rl.maxTokens) * rl.refillInterval
	now := rl.now()
	removed := 0
	for id, bucket := range rl.buckets {
		if now.Sub(bucket.lastRefill) >= full {
			delete(rl.buckets, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// TokensRemaining returns the tokens left for a client
func (rl *RateLimiter) TokensRemaining(clientID string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, exists := rl.buckets[clientID]
	if !exists {
		return rl.maxTokens
	}
	return bucket.tokens
}

// ClientIP extracts the client IP, preferring X-Forwarded-For and X-Real-IP
// over RemoteAddr. Only the last X-Forwarded-For hop is used: it is the
// address API Gateway or the load balancer in front of the server saw, while
// earlier hops are whatever the client chose to send.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		if ip := strings.TrimSpace(hops[len(hops)-1]); ip != "" {
			return ip
		}
	}

	if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
		return xrip
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimitMiddleware answers 429 Too Many Requests once a client's bucket is empty
func RateLimitMiddleware(rl *RateLimiter, logger *zap.Logger) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(rl.refillInterval / time.Second))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := ClientIP(r)
			if !rl.Allow(clientIP) {
				logger.Warn("rate limit exceeded",
					zap.String("client_ip", clientIP),
					zap.String("path", r.URL.Path))
				w.Header().Set("Retry-After", retryAfter)
				http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
