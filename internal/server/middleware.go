package server

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/apcupsd-exporter/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const (
	otherPath = "other"

	maxTrackedClients = 1024
	clientIdleTTL     = 10 * time.Minute
)

func newRequestCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apcupsd",
			Subsystem: "exporter",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by path and status.",
		},
		[]string{"method", "path", "status"},
	)
}

type Middleware func(http.Handler) http.Handler

// Chain applies middleware in order, first argument outermost.
func Chain(handler http.Handler, mw ...Middleware) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}

// LoggingMiddleware logs each request at debug level and counts it. Paths
// outside knownPaths are counted as "other" to bound label cardinality.
// Paths in skipPaths are counted but not logged.
func LoggingMiddleware(requests *prometheus.CounterVec, knownPaths, skipPaths []string) Middleware {
	known := make(map[string]bool, len(knownPaths))
	for _, p := range knownPaths {
		known[p] = true
	}
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			if !skip[r.URL.Path] {
				logger.Debug().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", sw.status).
					Dur("duration", time.Since(start)).
					Str("remote", r.RemoteAddr).
					Msg("HTTP request")
			}

			path := r.URL.Path
			if !known[path] {
				path = otherPath
			}
			requests.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
		})
	}
}

// RecoveryMiddleware turns a handler panic into a 500.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Msg("Recovered from handler panic")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RateLimitMiddleware applies a per-client token bucket to the given paths.
// Other paths pass through untouched. X-Forwarded-For identifies the client
// only when trustForwardedFor is set, i.e. behind a proxy that sets it.
func RateLimitMiddleware(rps float64, burst int, limitedPaths []string, trustForwardedFor bool) Middleware {
	rl := newClientRateLimiter(rate.Limit(rps), burst, maxTrackedClients)
	limited := make(map[string]bool, len(limitedPaths))
	for _, p := range limitedPaths {
		limited[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limited[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if !rl.allow(clientIP(r, trustForwardedFor)) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientRateLimiter tracks at most maxClients token buckets.
type clientRateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*limiterEntry
	limit      rate.Limit
	burst      int
	maxClients int
	now        func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientRateLimiter(limit rate.Limit, burst, maxClients int) *clientRateLimiter {
	return &clientRateLimiter{
		limiters:   make(map[string]*limiterEntry),
		limit:      limit,
		burst:      burst,
		maxClients: maxClients,
		now:        time.Now,
	}
}

func (l *clientRateLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.limiters[client]
	if !ok {
		if len(l.limiters) >= l.maxClients {
			l.evictIdle(now)
		}
		if len(l.limiters) >= l.maxClients {
			l.evictOldest()
		}
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[client] = e
	}
	e.lastSeen = now

	return e.limiter.AllowN(now, 1)
}

// evictIdle must be called with l.mu held.
func (l *clientRateLimiter) evictIdle(now time.Time) {
	cutoff := now.Add(-clientIdleTTL)
	for client, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, client)
		}
	}
}

// evictOldest must be called with l.mu held.
func (l *clientRateLimiter) evictOldest() {
	var (
		oldest string
		seen   time.Time
		found  bool
	)
	for client, e := range l.limiters {
		if !found || e.lastSeen.Before(seen) {
			oldest, seen, found = client, e.lastSeen, true
		}
	}
	if found {
		delete(l.limiters, oldest)
	}
}

func clientIP(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
