package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/iliyamo/flashsale-booking/internal/apperr"
	"github.com/iliyamo/flashsale-booking/internal/config"
	"github.com/iliyamo/flashsale-booking/internal/utils"
)

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func ok(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestJWTAuthAndRole(t *testing.T) {
	e := echo.New()
	h := JWTAuth("s3cret")(RequireRole(utils.RoleAdmin)(func(c echo.Context) error {
		if AdminSubject(c) != "ops" {
			t.Fatalf("subject = %q", AdminSubject(c))
		}
		return ok(c)
	}))
	good, _ := utils.NewAdminToken("s3cret", "ops", time.Hour)

	cases := []struct {
		name string
		auth string
		kind apperr.Kind
	}{
		{"missing", "", apperr.Unauthenticated},
		{"not bearer", "Basic abc", apperr.Unauthenticated},
		{"bad token", "Bearer nope", apperr.Unauthenticated},
		{"valid", "Bearer " + good.Token, ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/v1/admin/concerts", nil)
		if tc.auth != "" {
			req.Header.Set(echo.HeaderAuthorization, tc.auth)
		}
		err := h(e.NewContext(req, httptest.NewRecorder()))
		if got := apperr.KindOf(err); got != tc.kind {
			t.Errorf("%s: kind = %q (err %v)", tc.name, got, err)
		}
	}
}

func TestRequireRoleWithoutClaims(t *testing.T) {
	e := echo.New()
	err := RequireRole(utils.RoleAdmin)(ok)(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder()))
	if !apperr.Is(err, apperr.Forbidden) {
		t.Fatalf("err = %v", err)
	}
}

func TestRequireQueueToken(t *testing.T) {
	e := echo.New()
	var seen string
	h := RequireQueueToken(func(c echo.Context) error {
		seen = QueueToken(c)
		return ok(c)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/payments", nil)
	if err := h(e.NewContext(req, httptest.NewRecorder())); !apperr.Is(err, apperr.Unauthenticated) {
		t.Fatalf("missing header: %v", err)
	}
	req.Header.Set(QueueTokenHeader, " tok-1 ")
	if err := h(e.NewContext(req, httptest.NewRecorder())); err != nil {
		t.Fatalf("with header: %v", err)
	}
	if seen != "tok-1" {
		t.Fatalf("token = %q", seen)
	}
}

func TestTokenBucket(t *testing.T) {
	_, client := newRedis(t)
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Minute,
		TTL: 10 * time.Minute, KeyStrategy: "ip_route", Prefix: "rl"}
	tb := NewTokenBucket(cfg, client, quiet())
	now := time.Date(2026, 12, 1, 10, 0, 0, 0, time.UTC)
	tb.now = func() time.Time { return now }

	e := echo.New()
	e.POST("/v1/queue/tokens", ok, tb.Middleware())
	hit := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/queue/tokens", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := hit(); rec.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, rec.Code)
		}
	}
	rec := hit()
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("third request: %d retry=%q", rec.Code, rec.Header().Get("Retry-After"))
	}
	now = now.Add(time.Minute)
	if rec := hit(); rec.Code != http.StatusOK {
		t.Fatalf("after refill: %d", rec.Code)
	}
}

func TestTokenBucketFailsOpen(t *testing.T) {
	mr, client := newRedis(t)
	mr.Close()
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Minute, TTL: time.Hour, Prefix: "rl"}
	logger, hook := test.NewNullLogger()
	e := echo.New()
	e.POST("/x", ok, NewTokenBucket(cfg, client, logger).Middleware())
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, rec.Code)
		}
	}
	if len(hook.Entries) == 0 || hook.LastEntry().Level != logrus.WarnLevel {
		t.Fatal("expected a warning for the unreachable limiter")
	}
}

func TestRedisCache(t *testing.T) {
	_, client := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute,
		KeyStrategy: "route_query", Prefix: "cache", MaxBodyBytes: 1 << 10}
	calls := 0
	e := echo.New()
	e.GET("/v1/concerts/dates", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"items": []string{"2026-12-24"}})
	}, NewRedisCache(cfg, client, quiet()))

	get := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/concerts/dates", nil))
		return rec
	}
	first := get()
	second := get()
	if first.Header().Get("X-Cache") != "MISS" || second.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("x-cache = %q, %q", first.Header().Get("X-Cache"), second.Header().Get("X-Cache"))
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}
	if first.Body.String() != second.Body.String() || second.Header().Get(echo.HeaderContentType) != echo.MIMEApplicationJSON {
		t.Fatalf("cached response differs: %q vs %q (%s)", first.Body.String(), second.Body.String(), second.Header().Get(echo.HeaderContentType))
	}
}

func TestRedisCacheSkipsErrors(t *testing.T) {
	_, client := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "cache"}
	calls := 0
	e := echo.New()
	e.GET("/v1/concerts/:date/seats", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusNotFound, echo.Map{"error": "concert-not-found"})
	}, NewRedisCache(cfg, client, quiet()))
	for i := 0; i < 2; i++ {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/concerts/2030-01-01/seats", nil))
	}
	if calls != 2 {
		t.Fatalf("error response was cached (%d calls)", calls)
	}
}

func TestRequestLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	e := echo.New()
	e.GET("/fine", ok)
	e.GET("/broken", func(echo.Context) error { return errors.New("boom") })
	e.Use(RequestLogger(logger, http.StatusInternalServerError))

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fine", nil))
	if e := hook.LastEntry(); e.Level != logrus.InfoLevel || e.Data["status"] != http.StatusOK {
		t.Fatalf("entry = %v %v", e.Level, e.Data)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/broken", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := hook.LastEntry(); e.Level != logrus.ErrorLevel || e.Data["route"] != "/broken" {
		t.Fatalf("entry = %v %v", e.Level, e.Data)
	}
}
