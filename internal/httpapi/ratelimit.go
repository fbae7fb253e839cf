package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type RateLimitConfig struct {
	IPPerMinute         int
	IPBurst             int
	RestaurantPerMinute int
	RestaurantBurst     int
}

// RateLimiter applies token buckets per client IP and per restaurant.
type RateLimiter struct {
	ipLimiter         *tokenLimiter
	restaurantLimiter *tokenLimiter
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		ipLimiter:         newTokenLimiter(cfg.IPPerMinute, cfg.IPBurst),
		restaurantLimiter: newTokenLimiter(cfg.RestaurantPerMinute, cfg.RestaurantBurst),
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ip != "" && !l.ipLimiter.allow(ip) {
			writeError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}

		restaurantID := extractRestaurantID(r)
		if restaurantID != "" && !l.restaurantLimiter.allow(restaurantID) {
			writeError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// tokenLimiter keeps one refilling bucket per key.
type tokenLimiter struct {
	mu      sync.Mutex
	rate    float64
	burst   float64
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newTokenLimiter(perMinute, burst int) *tokenLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 20
	}
	return &tokenLimiter{
		rate:    float64(perMinute) / 60.0,
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (l *tokenLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[key] = b
	}
	return b.take(now, l.rate, l.burst)
}

// take refills the bucket for the time since its last use and spends one token.
func (b *bucket) take(now time.Time, rate, burst float64) bool {
	b.tokens = min(burst, b.tokens+now.Sub(b.last).Seconds()*rate)
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// extractRestaurantID reads X-Restaurant-ID, falling back to the restaurantId
// field of a JSON body. The body is restored for the next handler.
func extractRestaurantID(r *http.Request) string {
	if restaurantID := strings.TrimSpace(r.Header.Get("X-Restaurant-ID")); restaurantID != "" {
		return restaurantID
	}
	if r.Body == nil || !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return ""
	}

	body, err := readBody(r)
	if err != nil {
		return ""
	}
	var payload struct {
		RestaurantID string `json:"restaurantId"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.RestaurantID)
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
