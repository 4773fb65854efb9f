package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starlingpost/starlingpost/internal/identity"
	"github.com/starlingpost/starlingpost/internal/rate"
)

type fakeVerifier map[string]*identity.Principal

func (f fakeVerifier) VerifyToken(_ context.Context, raw string) (*identity.Principal, error) {
	if p, ok := f[raw]; ok {
		return p, nil
	}
	return nil, identity.ErrInvalidToken
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-User", GetUserID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
})

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestChain_Order(t *testing.T) {
	var order []string
	mk := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	serve(Chain(okHandler, mk("a"), mk("b"), mk("c")), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRequireAuth(t *testing.T) {
	v := fakeVerifier{"good": {UserID: "u1"}, "admin": {UserID: "root", IsAdmin: true}}
	h := Chain(okHandler, RequireAuth(v))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "missing bearer token")

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer nope")
	rec = serve(h, r)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "TOKEN_INVALID")

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "bearer good")
	rec = serve(h, r)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "u1", rec.Header().Get("X-User"))
}

func TestRequireAdmin(t *testing.T) {
	v := fakeVerifier{"good": {UserID: "u1"}, "admin": {UserID: "root", IsAdmin: true}}
	h := Chain(okHandler, RequireAuth(v), RequireAdmin())

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Authorization", "Bearer good")
	require.Equal(t, http.StatusForbidden, serve(h, r).Code)

	r = httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Authorization", "Bearer admin")
	require.Equal(t, http.StatusNoContent, serve(h, r).Code)
}

func TestWithRateLimit_RejectsWithRetryAfter(t *testing.T) {
	lim := rate.NewLocalLimiter(1, time.Minute, 1)
	h := Chain(okHandler, WithRateLimit(RateLimitConfig{Limiter: lim, Whitelist: []string{"/healthz"}}))

	r := httptest.NewRequest(http.MethodGet, "/v1/accounts", nil)
	require.Equal(t, http.StatusNoContent, serve(h, r).Code)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/accounts", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	require.Equal(t, http.StatusNoContent, serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (rate.Result, error) {
	return rate.Result{}, errors.New("redis down")
}

func TestWithRateLimit_FailsOpen(t *testing.T) {
	h := Chain(okHandler, WithRateLimit(RateLimitConfig{Limiter: brokenLimiter{}}))
	require.Equal(t, http.StatusNoContent, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

func TestWithRecover(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }), WithRecover())
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "boom")
}

func TestWithRequestID(t *testing.T) {
	h := Chain(okHandler, WithRequestID())
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Len(t, rec.Header().Get("X-Request-ID"), 36)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "abc")
	require.Equal(t, "abc", serve(h, r).Header().Get("X-Request-ID"))
}

func TestWithCORS(t *testing.T) {
	h := Chain(okHandler, WithCORS([]string{"https://dash.example.com/"}))

	r := httptest.NewRequest(http.MethodOptions, "/v1/accounts", nil)
	r.Header.Set("Origin", "https://dash.example.com")
	r.Header.Set("Access-Control-Request-Method", "DELETE")
	rec := serve(h, r)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodGet, "/v1/accounts", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	require.Empty(t, serve(h, r).Header().Get("Access-Control-Allow-Origin"))
}
