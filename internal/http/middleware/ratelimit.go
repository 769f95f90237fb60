// README: Per-caller token-bucket limiter for driver self-service writes.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var rateLimited = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "medtrans",
		Name:      "ratelimit_exceeded_total",
		Help:      "Requests rejected by the per-caller limiter",
	},
	[]string{"route"},
)

// KeyedLimiter keeps one token bucket per key. Idle buckets are dropped after idleTTL.
type KeyedLimiter struct {
	rate    rate.Limit
	burst   int
	idleTTL time.Duration

	mu          sync.Mutex
	buckets     map[string]*bucket
	lastCleanup time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewKeyedLimiter(perSecond float64, burst int) *KeyedLimiter {
	return &KeyedLimiter{
		rate:        rate.Limit(perSecond),
		burst:       burst,
		idleTTL:     10 * time.Minute,
		buckets:     make(map[string]*bucket),
		lastCleanup: time.Now(),
	}
}

func (l *KeyedLimiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	if now.Sub(l.lastCleanup) > l.idleTTL {
		for k, v := range l.buckets {
			if now.Sub(v.lastSeen) > l.idleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastCleanup = now
	}
	l.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

// Size reports the number of live buckets.
func (l *KeyedLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimitCaller answers 429 once the authenticated caller exhausts its bucket. Admins are
// never limited.
func RateLimitCaller(l *KeyedLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerRole(c) == RoleAdmin {
			c.Next()
			return
		}
		if !l.Allow(CallerUID(c)) {
			rateLimited.WithLabelValues(c.FullPath()).Inc()
			c.Header("Retry-After", "1")
			abort(c, http.StatusTooManyRequests, "too many status updates, slow down")
			return
		}
		c.Next()
	}
}
