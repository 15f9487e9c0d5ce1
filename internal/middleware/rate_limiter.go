package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"concentra/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// rateEntry tracks request counts per IP within a fixed window.
type rateEntry struct {
	count     int
	windowEnd time.Time
	mu        sync.Mutex
}

// RateLimiter is a per-IP fixed-window limiter.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*rateEntry
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{limit: limit, window: window, now: time.Now, entries: make(map[string]*rateEntry)}
}

// Handler returns the gin middleware.
func (l *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, windowEnd := l.allow(c.ClientIP())
		if !ok {
			c.Header("Retry-After", windowEnd.Format(time.RFC1123))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.New("Demasiadas solicitudes. Intente nuevamente en un momento."))
			return
		}
		c.Next()
	}
}

func (l *RateLimiter) allow(ip string) (bool, time.Time) {
	l.mu.Lock()
	entry, exists := l.entries[ip]
	if !exists {
		entry = &rateEntry{}
		l.entries[ip] = entry
	}
	l.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := l.now()
	if now.After(entry.windowEnd) {
		entry.count = 0
		entry.windowEnd = now.Add(l.window)
	}
	entry.count++
	return entry.count <= l.limit, entry.windowEnd
}

// StartPurge removes expired entries every interval until ctx is done, so
// IPs that never return do not accumulate.
func (l *RateLimiter) StartPurge(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := l.purge(); n > 0 {
					log.Debug().Int("purged", n).Msg("rate limiter entries purged")
				}
			}
		}
	}()
}

func (l *RateLimiter) purge() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	purged := 0
	for ip, entry := range l.entries {
		entry.mu.Lock()
		if now.After(entry.windowEnd) {
			delete(l.entries, ip)
			purged++
		}
		entry.mu.Unlock()
	}
	return purged
}
