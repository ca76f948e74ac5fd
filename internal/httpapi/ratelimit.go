package httpapi

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// keyedLimiter rate-limits per key (client IP or email). The map is bounded:
// entries idle past the TTL are reaped on a timer so a scan cannot grow it
// without limit.
type keyedLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*limiterEntry
}

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

const limiterTTL = 10 * time.Minute

func newKeyedLimiter(perMinute float64, burst int) *keyedLimiter {
	kl := &keyedLimiter{
		limit:   rate.Limit(perMinute / 60),
		burst:   burst,
		entries: make(map[string]*limiterEntry),
	}
	go kl.reapLoop()
	return kl
}

func (kl *keyedLimiter) allow(key string) bool {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	e, ok := kl.entries[key]
	if !ok {
		e = &limiterEntry{l: rate.NewLimiter(kl.limit, kl.burst)}
		kl.entries[key] = e
	}
	e.lastSeen = time.Now()
	return e.l.Allow()
}

func (kl *keyedLimiter) reapLoop() {
	ticker := time.NewTicker(limiterTTL)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-limiterTTL)
		kl.mu.Lock()
		for k, e := range kl.entries {
			if e.lastSeen.Before(cutoff) {
				delete(kl.entries, k)
			}
		}
		kl.mu.Unlock()
	}
}

// limitByIP wraps a handler with a per-IP limiter, used on the login and
// webhook endpoints.
func limitByIP(kl *keyedLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !kl.allow(clientIP(r)) {
			writeErr(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
