package httpx

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig defines per-client-IP rate limiting parameters.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

// StrictLimit suits credential-bearing endpoints (login, OTP verify).
var StrictLimit = RateLimitConfig{
	RequestsPerWindow: 10,
	Window:            time.Minute,
	Burst:             10,
}

// RateLimitMiddleware limits requests per client IP. Entries idle for ten
// windows are evicted to bound memory.
func RateLimitMiddleware(cfg RateLimitConfig) Middleware {
	lim := &ipLimiter{
		cfg:     cfg,
		clients: make(map[string]*clientEntry),
	}
	go lim.evictLoop()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !lim.allow(clientIP(r)) {
				WriteError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	clients map[string]*clientEntry
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.clients[ip]
	if !ok {
		every := l.cfg.Window / time.Duration(l.cfg.RequestsPerWindow)
		entry = &clientEntry{limiter: rate.NewLimiter(rate.Every(every), l.cfg.Burst)}
		l.clients[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

func (l *ipLimiter) evictLoop() {
	ticker := time.NewTicker(l.cfg.Window)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-10 * l.cfg.Window)
		l.mu.Lock()
		for ip, entry := range l.clients {
			if entry.lastSeen.Before(cutoff) {
				delete(l.clients, ip)
			}
		}
		l.mu.Unlock()
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
