package httputil

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/psyprofile/psyprofile-backend/pkg/errors"
	"golang.org/x/time/rate"
)

// KeyedLimiter hands out one token bucket per key (session, client address).
// Buckets idle for longer than idleTTL are dropped.
type KeyedLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	buckets  map[string]*bucket
	lastScan time.Time
	now      func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter allows perMinute events per key with the given burst.
// perMinute <= 0 disables limiting.
func NewKeyedLimiter(perMinute, burst int, idleTTL time.Duration) *KeyedLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60.0)
	}
	if burst <= 0 {
		burst = 1
	}
	return &KeyedLimiter{
		limit:   limit,
		burst:   burst,
		idleTTL: idleTTL,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Reserve takes one token for key and returns how long the caller must wait.
// A zero duration means the request may proceed.
func (k *KeyedLimiter) Reserve(key string) time.Duration {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	k.evictIdle(now)

	b, ok := k.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.buckets[key] = b
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return time.Minute
	}
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
	}
	return delay
}

func (k *KeyedLimiter) evictIdle(now time.Time) {
	if k.idleTTL <= 0 || now.Sub(k.lastScan) < k.idleTTL {
		return
	}
	k.lastScan = now
	for key, b := range k.buckets {
		if now.Sub(b.lastSeen) > k.idleTTL {
			delete(k.buckets, key)
		}
	}
}

// RateLimit rejects requests over the limit with 429 and a Retry-After header.
// keyFn picks the bucket; an empty key falls back to the client address.
func RateLimit(limiter *KeyedLimiter, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if keyFn != nil {
				key = keyFn(r)
			}
			if key == "" {
				key = ClientKey(r)
			}

			if wait := limiter.Reserve(key); wait > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				ErrorLocalized(w, r, errors.TooManyRequests())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SessionKey buckets requests by the authenticated session
func SessionKey(r *http.Request) string {
	return GetSessionID(r.Context())
}

// ClientKey buckets requests by client IP. The port is dropped so that new
// connections from the same client share a bucket.
func ClientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
