package authgate

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginLimiter throttles authentication attempts per client IP with a
// token bucket, replacing a hand-rolled sliding window with the ecosystem
// limiter so brute-forcing /auth/local or DAV Basic credentials costs an
// attacker real wall-clock time.
type LoginLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	rps      rate.Limit
	burst    int
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// DefaultLoginRate allows one attempt per two seconds sustained, with a
// small burst for a user who mistypes a password a couple of times.
const (
	DefaultLoginRate  rate.Limit = 0.5
	DefaultLoginBurst            = 5
)

// NewLoginLimiter builds a limiter and starts its background sweep of
// stale per-IP entries.
func NewLoginLimiter(rps rate.Limit, burst int) *LoginLimiter {
	l := &LoginLimiter{
		limiters: make(map[string]*entry),
		rps:      rps,
		burst:    burst,
	}
	go l.sweep()
	return l
}

func (l *LoginLimiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	for range ticker.C {
		l.mu.Lock()
		for ip, e := range l.limiters {
			if time.Since(e.lastSeen) > 5*time.Minute {
				delete(l.limiters, ip)
			}
		}
		l.mu.Unlock()
	}
}

// Allow reports whether another login attempt from ip is permitted now.
func (l *LoginLimiter) Allow(ip string) bool {
	l.mu.Lock()
	e, ok := l.limiters[ip]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[ip] = e
	}
	e.lastSeen = time.Now()
	limiter := e.limiter
	l.mu.Unlock()
	return limiter.Allow()
}

// ClientIP extracts the originating client address, preferring
// X-Forwarded-For / X-Real-IP (as set by a trusted upstream proxy tier)
// before falling back to the raw connection's RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
