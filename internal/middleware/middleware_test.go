package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
)

// failExpireOnce makes the next EXPIRE outside a pipeline fail.
type failExpireOnce struct {
	armed bool
}

func (h *failExpireOnce) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *failExpireOnce) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if h.armed && cmd.Name() == "expire" {
			h.armed = false
			err := errors.New("i/o timeout")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (h *failExpireOnce) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"http://localhost:3000"})(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/api/scan/run", nil)
	req.Header.Set("Origin", "http://LOCALHOST:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://LOCALHOST:3000" {
		t.Fatalf("expected origin echoed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/scan/state", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("expected unknown origin to be ignored")
	}
}

func TestHostCheck(t *testing.T) {
	h := HostCheck("localhost")(okHandler)

	req := httptest.NewRequest(http.MethodGet, "http://localhost:8080/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "http://rebind.example/health", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestKeyedLimiterOnlyGuardsItsPaths(t *testing.T) {
	l := NewKeyedLimiter(rate.Every(time.Hour), 1, "slow down", "/api/session/login")
	h := l.Middleware(okHandler)

	codes := func(path string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if codes("/api/session/login") != http.StatusOK {
		t.Fatal("expected first login to pass")
	}
	if codes("/api/session/login") != http.StatusTooManyRequests {
		t.Fatal("expected second login to be limited")
	}
	if codes("/api/scan/state") != http.StatusOK {
		t.Fatal("expected unrelated path to pass")
	}
}

func TestKeyedLimiterSweepsIdleEntries(t *testing.T) {
	l := NewKeyedLimiter(rate.Limit(1), 1, "slow down")
	now := time.Now()
	l.now = func() time.Time { return now }
	l.get("10.0.0.1")

	now = now.Add(limiterTTL + time.Minute)
	l.sweep()
	if len(l.entries) != 0 {
		t.Fatalf("expected idle entry to be removed, got %d", len(l.entries))
	}
}

func TestRedisRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewRedisRateLimit(rdb, "eyeGlaze", zap.NewNop())
	l.limit = 2
	h := l.Middleware(okHandler)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/scan/state", nil)
		req.RemoteAddr = "192.168.1.20:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusOK || rec.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Fatalf("unexpected first response %d %v", rec.Code, rec.Header())
	}
	send()
	if rec := send(); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if ttl := mr.TTL("eyeGlaze:ratelimit:192.168.1.20"); ttl != RateLimitWindow {
		t.Fatalf("expected window ttl, got %v", ttl)
	}

	mr.FastForward(RateLimitWindow + time.Second)
	if rec := send(); rec.Code != http.StatusOK {
		t.Fatalf("expected a fresh window, got %d", rec.Code)
	}
}

func TestRedisRateLimitRestoresLostExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	hook := &failExpireOnce{armed: true}
	rdb.AddHook(hook)

	l := NewRedisRateLimit(rdb, "eyeGlaze", zap.NewNop())
	l.limit = 2
	h := l.Middleware(okHandler)
	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/scan/state", nil)
		req.RemoteAddr = "192.168.1.30:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	const key = "eyeGlaze:ratelimit:192.168.1.30"

	if code := send(); code != http.StatusOK {
		t.Fatalf("expected first request through, got %d", code)
	}
	if hook.armed {
		t.Fatal("expected the first EXPIRE to be attempted")
	}
	if ttl := mr.TTL(key); ttl != 0 {
		t.Fatalf("expected the counter to be left without expiry, got %v", ttl)
	}

	send()
	if ttl := mr.TTL(key); ttl != RateLimitWindow {
		t.Fatalf("expected expiry to be restored, got %v", ttl)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}

	mr.FastForward(RateLimitWindow + time.Second)
	if code := send(); code != http.StatusOK {
		t.Fatalf("expected the client to recover after the window, got %d", code)
	}
}

func TestRedisRateLimitFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	h := NewRedisRateLimit(rdb, "eyeGlaze", zap.NewNop()).Middleware(okHandler)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected request to pass when redis is down, got %d", rec.Code)
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/scan/run?x=1", nil))

	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.ErrorLevel {
		t.Fatalf("expected one error entry, got %+v", entries)
	}
	fields := entries[0].ContextMap()
	if fields["path"] != "/api/scan/run" || fields["status"] != int64(http.StatusBadGateway) {
		t.Fatalf("unexpected fields %+v", fields)
	}
}
