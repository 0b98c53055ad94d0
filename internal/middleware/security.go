package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AnshRaj112/eyeglaze/pkg/clientip"
	"golang.org/x/time/rate"
)

const (
	headerXContentTypeOptions     = "X-Content-Type-Options"
	headerXFrameOptions           = "X-Frame-Options"
	headerXXSSProtection          = "X-XSS-Protection"
	headerContentSecurityPolicy   = "Content-Security-Policy"
	headerStrictTransportSecurity = "Strict-Transport-Security"
)

// SecurityHeaders sets security-related response headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerXContentTypeOptions, "nosniff")
		w.Header().Set(headerXFrameOptions, "DENY")
		w.Header().Set(headerXXSSProtection, "1; mode=block")
		w.Header().Set(headerContentSecurityPolicy, "default-src 'self'")
		w.Header().Set(headerStrictTransportSecurity, "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}

// HostCheck returns 403 when r.Host does not match allowedHost. allowedHost
// is a bare hostname; an empty value disables the check.
func HostCheck(allowedHost string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowedHost == "" {
				next.ServeHTTP(w, r)
				return
			}
			reqHost := r.Host
			if host, _, err := net.SplitHostPort(reqHost); err == nil {
				reqHost = host
			}
			if !strings.EqualFold(strings.TrimSpace(reqHost), strings.TrimSpace(allowedHost)) {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte("Forbidden"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

const (
	limiterCleanupInterval = 5 * time.Minute
	limiterTTL             = 30 * time.Minute
)

type limiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// KeyedLimiter keeps one token bucket per client IP and forgets idle ones.
type KeyedLimiter struct {
	limit   rate.Limit
	burst   int
	message string
	paths   map[string]bool // nil applies to every path

	mu          sync.Mutex
	entries     map[string]*limiterEntry
	cleanupOnce sync.Once
	now         func() time.Time
}

func NewKeyedLimiter(limit rate.Limit, burst int, message string, paths ...string) *KeyedLimiter {
	l := &KeyedLimiter{
		limit:   limit,
		burst:   burst,
		message: message,
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}
	if len(paths) > 0 {
		l.paths = make(map[string]bool, len(paths))
		for _, p := range paths {
			l.paths[p] = true
		}
	}
	return l
}

func (l *KeyedLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = e
	}
	e.lastUse = l.now()
	return e.limiter
}

func (l *KeyedLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for ip, e := range l.entries {
		if now.Sub(e.lastUse) > limiterTTL {
			delete(l.entries, ip)
		}
	}
}

func (l *KeyedLimiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(limiterCleanupInterval)
			defer ticker.Stop()
			for range ticker.C {
				l.sweep()
			}
		}()
	})
}

func (l *KeyedLimiter) Middleware(next http.Handler) http.Handler {
	l.startCleanup()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.paths != nil && !l.paths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if !l.get(clientip.RealClientIP(r)).Allow() {
			writeTooMany(w, l.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GlobalRateLimit limits each IP to 5 req/s with a burst of 20.
func GlobalRateLimit() *KeyedLimiter {
	return NewKeyedLimiter(rate.Limit(5), 20, "Too many requests. Please slow down.")
}

// SessionRateLimit applies a stricter limit to sign-in and registration.
func SessionRateLimit() *KeyedLimiter {
	return NewKeyedLimiter(rate.Every(5*time.Second), 2, "Too many login attempts. Please try again later.",
		"/api/session/login", "/api/session/register")
}

// ScanRateLimit bounds how often an analysis run can be started.
func ScanRateLimit() *KeyedLimiter {
	return NewKeyedLimiter(rate.Every(2*time.Second), 3, "Too many analysis requests. Please wait a moment.",
		"/api/scan/run")
}

// ProductionSecurity returns SecurityHeaders, HostCheck and the per-IP limiters in order.
func ProductionSecurity(allowedHost string) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		SecurityHeaders,
		HostCheck(allowedHost),
		GlobalRateLimit().Middleware,
		SessionRateLimit().Middleware,
		ScanRateLimit().Middleware,
	}
}
