package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/aquadrop/aquadrop/internal/identity"
)

// Throttle limits requests per phone number, or per client IP when the body
// carries no phone, to maxPerMin. Counters live in Redis when cache is set and
// in process memory otherwise.
func Throttle(cache *redis.Client, maxPerMin int, prefix string) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	local := newLocalLimiter(maxPerMin)
	return func(c *fiber.Ctx) error {
		var req struct {
			Phone string `json:"phone"`
		}
		_ = c.BodyParser(&req)
		subject := identity.NormalizePhone(strings.TrimSpace(req.Phone))
		if subject == "" {
			subject = c.IP()
		}

		if cache == nil {
			if !local.allow(prefix + subject) {
				return tooManyRequests()
			}
			return c.Next()
		}

		key := "rl:" + prefix + ":" + subject
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return tooManyRequests()
		}
		return c.Next()
	}
}

func tooManyRequests() error {
	return fiber.NewError(http.StatusTooManyRequests, "too many attempts, try again later")
}

// localLimiterSweepSize is the number of tracked subjects that triggers a
// sweep of idle buckets.
const localLimiterSweepSize = 4096

// localLimiter keeps one token bucket per subject. A bucket untouched for a
// full refill window is indistinguishable from a new one, so it is dropped
// once the map grows past localLimiterSweepSize.
type localLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleAfter time.Duration
	now       func() time.Time
	limiters  map[string]*subjectLimiter
}

type subjectLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLocalLimiter(perMinute int) *localLimiter {
	return &localLimiter{
		limit:     rate.Every(time.Minute / time.Duration(perMinute)),
		burst:     perMinute,
		idleAfter: time.Minute,
		now:       time.Now,
		limiters:  make(map[string]*subjectLimiter),
	}
}

func (l *localLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= localLimiterSweepSize {
			l.sweep(now)
		}
		entry = &subjectLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// sweep must be called with l.mu held.
func (l *localLimiter) sweep(now time.Time) {
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) >= l.idleAfter {
			delete(l.limiters, key)
		}
	}
}
