/*
Package limiter provides per-client-IP token bucket rate limiting.

Idle buckets are evicted by a background sweeper so the map does not grow without bound.
*/
package limiter

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/resp"
)

const sweepInterval = 3 * time.Minute

// IPRateLimiter hands out one rate.Limiter per client IP.
type IPRateLimiter struct {
	mu     sync.RWMutex
	limits map[string]*rate.Limiter

	r rate.Limit
	b int

	stop     chan struct{}
	stopOnce sync.Once
}

// NewIPRateLimiter creates a limiter allowing r events per second with burst b per IP
// and starts its sweeper.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	i := &IPRateLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
		stop:   make(chan struct{}),
	}

	go i.sweep()

	return i
}

// GetLimiter returns the limiter for ip, creating it on first use.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.RLock()
	limiter, exists := i.limits[ip]
	i.mu.RUnlock()

	if exists {
		return limiter
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	limiter, exists = i.limits[ip]
	if !exists {
		limiter = rate.NewLimiter(i.r, i.b)
		i.limits[ip] = limiter
	}

	return limiter
}

// Allow reports whether the request from ip may proceed.
func (i *IPRateLimiter) Allow(ip string) bool {
	return i.GetLimiter(ip).Allow()
}

// Stop terminates the sweeper. It is safe to call more than once.
func (i *IPRateLimiter) Stop() {
	i.stopOnce.Do(func() { close(i.stop) })
}

// sweep drops buckets that have refilled completely, i.e. clients that went quiet.
func (i *IPRateLimiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-i.stop:
			return
		case now := <-ticker.C:
			removed, remaining := i.evictIdle(now)
			logx.Logger().Debug().
				Int("removed", removed).
				Int("remaining", remaining).
				Msg("rate limiter sweep finished")
		}
	}
}

func (i *IPRateLimiter) evictIdle(now time.Time) (removed, remaining int) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for ip, limiter := range i.limits {
		if limiter.TokensAt(now) >= float64(limiter.Burst()) {
			delete(i.limits, ip)
			removed++
		}
	}

	return removed, len(i.limits)
}

// Middleware rejects requests over the limit with ErrRateLimitExceeded (HTTP 429).
func (i *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !i.Allow(ClientIP(r)) {
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the host part of r.RemoteAddr (already rewritten by chi's RealIP).
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}

	if ip == "" {
		return "unknown_ip"
	}

	return ip
}
