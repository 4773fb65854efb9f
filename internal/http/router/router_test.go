package router_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/starlingpost/starlingpost/internal/cache"
	"github.com/starlingpost/starlingpost/internal/domain/social"
	accountsctrl "github.com/starlingpost/starlingpost/internal/http/controllers/accounts"
	adminctrl "github.com/starlingpost/starlingpost/internal/http/controllers/admin"
	healthctrl "github.com/starlingpost/starlingpost/internal/http/controllers/health"
	linkctrl "github.com/starlingpost/starlingpost/internal/http/controllers/link"
	"github.com/starlingpost/starlingpost/internal/http/router"
	healthsvc "github.com/starlingpost/starlingpost/internal/http/services/health"
	"github.com/starlingpost/starlingpost/internal/identity"
	"github.com/starlingpost/starlingpost/internal/linking"
	"github.com/starlingpost/starlingpost/internal/metricsync"
	"github.com/starlingpost/starlingpost/internal/notify"
	"github.com/starlingpost/starlingpost/internal/oauthstate"
	"github.com/starlingpost/starlingpost/internal/platforms"
	"github.com/starlingpost/starlingpost/internal/store/memory"
)

const (
	idpSecret   = "router-test-secret-0123456789abcdef"
	setupSecret = "bootstrap-secret"
	dashboard   = "https://dash.test/settings"
)

// fakeYouTube plataforma implementada sin red.
type fakeYouTube struct {
	platforms.Unimplemented
	fetchErr error
}

func (f *fakeYouTube) Implemented() bool { return true }
func (f *fakeYouTube) Validate() error   { return nil }

func (f *fakeYouTube) BuildAuthURL(req platforms.AuthRequest) (string, error) {
	return "https://accounts.test/o/oauth2/auth?" + url.Values{"state": {req.State}}.Encode(), nil
}

func (f *fakeYouTube) ExchangeCode(context.Context, platforms.ExchangeRequest) (*social.TokenSet, error) {
	return &social.TokenSet{AccessToken: "at-secret", RefreshToken: "rt-secret", Scopes: []string{"yt.readonly"}}, nil
}

func (f *fakeYouTube) Identify(context.Context, *social.TokenSet) (*platforms.AccountInfo, error) {
	return &platforms.AccountInfo{ID: "UC1", Name: "Channel"}, nil
}

func (f *fakeYouTube) RefreshToken(context.Context, social.TokenSet) (*social.TokenSet, error) {
	return nil, social.E(social.KindRefreshNotSupported, "RefreshToken", social.YouTube, "")
}

func (f *fakeYouTube) FetchMetrics(context.Context, *social.LinkedAccount, string) (*social.PostMetrics, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return &social.PostMetrics{Views: social.Int64(42), Likes: social.Int64(7)}, nil
}

type env struct {
	srv *httptest.Server
	yt  *fakeYouTube
}

func newEnv(t *testing.T, setup string) *env {
	t.Helper()
	mem := memory.New()
	yt := &fakeYouTube{Unimplemented: platforms.Unimplemented{P: social.YouTube}}
	reg := platforms.NewDefaultRegistry(nil, nil)
	reg.Register(yt)

	states := oauthstate.New(cache.NewMemory("t"))
	linkSvc := linking.NewService(linking.Deps{
		Adapters: reg,
		States:   states,
		Accounts: mem.Accounts(),
		Attempts: linking.NewAttempts(time.Minute, time.Now),
	})
	syncSvc := metricsync.NewService(metricsync.Deps{
		Adapters: reg,
		Accounts: mem.Accounts(),
		Metrics:  mem.Metrics(),
		Notifier: notify.Noop{},
	})
	verifier, err := identity.NewVerifier(identity.VerifierConfig{HMACSecret: idpSecret, Issuer: "https://idp.test"}, mem.Claims())
	require.NoError(t, err)
	claims := identity.NewClaimsManager(mem.Claims())

	h := router.New(router.Deps{
		Health:   healthctrl.NewHealthController(healthsvc.NewHealthService(healthsvc.Deps{StoreCheck: mem.Ping})),
		Link:     linkctrl.NewControllers(linkSvc, dashboard),
		Accounts: accountsctrl.NewAccountsController(linkSvc),
		Sync:     accountsctrl.NewSyncController(syncSvc, mem.Metrics(), 2),
		Admin:    adminctrl.NewControllers(claims, identity.NewAdminSetup(setup, claims)),
		Verifier: verifier,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &env{srv: srv, yt: yt}
}

func token(t *testing.T, sub string) string {
	t.Helper()
	s, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, jwtv5.MapClaims{
		"sub": sub, "email": sub + "@example.com", "iss": "https://idp.test",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(idpSecret))
	require.NoError(t, err)
	return s
}

var noRedirect = &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

func (e *env) do(t *testing.T, method, path, bearer, body string, hdr ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	res, err := noRedirect.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decode(t *testing.T, res *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(res.Body).Decode(v))
}

func location(t *testing.T, res *http.Response) url.Values {
	t.Helper()
	require.Equal(t, http.StatusFound, res.StatusCode)
	u, err := url.Parse(res.Header.Get("Location"))
	require.NoError(t, err)
	return u.Query()
}

// startLink devuelve el state que la plataforma recibiría.
func (e *env) startLink(t *testing.T, bearer, platform string) string {
	t.Helper()
	res := e.do(t, http.MethodGet, "/v1/link/"+platform+"/start?format=json", bearer, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "no-store", res.Header.Get("Cache-Control"))
	var body struct {
		RedirectURL string `json:"redirect_url"`
	}
	decode(t, res, &body)
	u, err := url.Parse(body.RedirectURL)
	require.NoError(t, err)
	require.Len(t, u.Query()["state"], 1)
	return u.Query().Get("state")
}

func TestHealth(t *testing.T) {
	e := newEnv(t, "")
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/healthz", "", "").StatusCode)

	res := e.do(t, http.MethodGet, "/readyz", "", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var body map[string]any
	decode(t, res, &body)
	require.Equal(t, "ready", body["status"])
}

func TestStartRequiresBearer(t *testing.T) {
	e := newEnv(t, "")
	res := e.do(t, http.MethodGet, "/v1/link/youtube/start", "", "")
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestStart_RedirectsToProvider(t *testing.T) {
	e := newEnv(t, "")
	res := e.do(t, http.MethodGet, "/v1/link/youtube/start", token(t, "u1"), "")
	require.Equal(t, http.StatusFound, res.StatusCode)
	require.True(t, strings.HasPrefix(res.Header.Get("Location"), "https://accounts.test/"))
}

func TestLinkFlow_CallbackRedirectsAndReplayFails(t *testing.T) {
	e := newEnv(t, "")
	tok := token(t, "u1")
	state := e.startLink(t, tok, "youtube")

	cb := "/v1/link/youtube/callback?" + url.Values{"code": {"c1"}, "state": {state}}.Encode()
	q := location(t, e.do(t, http.MethodGet, cb, "", ""))
	require.Equal(t, "youtube", q.Get("linked"))
	require.Equal(t, "UC1", q.Get("account"))

	q = location(t, e.do(t, http.MethodGet, cb, "", ""))
	require.Equal(t, "state_not_found", q.Get("link_error"))
	require.Equal(t, "youtube", q.Get("platform"))

	res := e.do(t, http.MethodGet, "/v1/accounts", tok, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var list struct {
		Accounts []map[string]any `json:"accounts"`
	}
	decode(t, res, &list)
	require.Len(t, list.Accounts, 1)
	raw, err := json.Marshal(list)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "at-secret")
	require.NotContains(t, string(raw), "rt-secret")

	// otro usuario no ve la cuenta
	res = e.do(t, http.MethodGet, "/v1/accounts", token(t, "u2"), "")
	decode(t, res, &list)
	require.Empty(t, list.Accounts)
}

func TestCallback_AccessDeniedConsumesState(t *testing.T) {
	e := newEnv(t, "")
	state := e.startLink(t, token(t, "u1"), "youtube")

	q := location(t, e.do(t, http.MethodGet, "/v1/link/youtube/callback?"+url.Values{"error": {"access_denied"}, "state": {state}}.Encode(), "", ""))
	require.Equal(t, "access_denied", q.Get("link_error"))

	q = location(t, e.do(t, http.MethodGet, "/v1/link/youtube/callback?"+url.Values{"code": {"c"}, "state": {state}}.Encode(), "", ""))
	require.Equal(t, "state_not_found", q.Get("link_error"))
}

func TestFacebook_NotImplemented(t *testing.T) {
	e := newEnv(t, "")
	res := e.do(t, http.MethodGet, "/v1/link/facebook/start", token(t, "u1"), "")
	require.Equal(t, http.StatusNotImplemented, res.StatusCode)

	q := location(t, e.do(t, http.MethodGet, "/v1/link/facebook/callback?code=x&state=y", "", ""))
	require.Equal(t, "not_implemented", q.Get("link_error"))
	require.Empty(t, q.Get("linked"))
}

func TestUnknownPlatform(t *testing.T) {
	e := newEnv(t, "")
	res := e.do(t, http.MethodGet, "/v1/link/myspace/start", token(t, "u1"), "")
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestSync_StatusMapping(t *testing.T) {
	e := newEnv(t, "")
	tok := token(t, "u1")
	state := e.startLink(t, tok, "youtube")
	location(t, e.do(t, http.MethodGet, "/v1/link/youtube/callback?"+url.Values{"code": {"c"}, "state": {state}}.Encode(), "", ""))

	syncPath := "/v1/accounts/youtube/UC1/posts/vid1/sync"
	res := e.do(t, http.MethodPost, syncPath, tok, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var m struct {
		Metrics map[string]int64 `json:"metrics"`
	}
	decode(t, res, &m)
	require.EqualValues(t, 42, m.Metrics["views"])

	res = e.do(t, http.MethodGet, "/v1/accounts/youtube/UC1/posts/vid1/metrics", tok, "")
	require.Equal(t, http.StatusOK, res.StatusCode)

	require.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/v1/accounts/youtube/UC1/posts/other/metrics", tok, "").StatusCode)
	require.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/v1/accounts/youtube/NOPE/posts/vid1/sync", tok, "").StatusCode)

	e.yt.fetchErr = social.RateLimited("FetchMetrics", social.YouTube, 30*time.Second)
	res = e.do(t, http.MethodPost, syncPath, tok, "")
	require.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	require.Equal(t, "30", res.Header.Get("Retry-After"))

	e.yt.fetchErr = social.E(social.KindInvalidGrant, "FetchMetrics", social.YouTube, "revoked")
	res = e.do(t, http.MethodPost, syncPath, tok, "")
	require.Equal(t, http.StatusConflict, res.StatusCode)
	var body map[string]string
	decode(t, res, &body)
	require.Equal(t, "NEEDS_RELINK", body["code"])

	res = e.do(t, http.MethodPost, "/v1/sync", tok, `{"items":[{"platform":"youtube","account_id":"UC1","post_id":"vid1"}]}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var batch struct {
		Results []map[string]any `json:"results"`
	}
	decode(t, res, &batch)
	require.Len(t, batch.Results, 1)
	require.Equal(t, "NEEDS_RELINK", batch.Results[0]["error"])
}

func TestUnlink(t *testing.T) {
	e := newEnv(t, "")
	tok := token(t, "u1")
	state := e.startLink(t, tok, "youtube")
	location(t, e.do(t, http.MethodGet, "/v1/link/youtube/callback?"+url.Values{"code": {"c"}, "state": {state}}.Encode(), "", ""))

	require.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/v1/accounts/youtube/UC1", tok, "").StatusCode)
	require.Equal(t, http.StatusNotFound, e.do(t, http.MethodDelete, "/v1/accounts/youtube/UC1", tok, "").StatusCode)
}

func TestAdminSetup(t *testing.T) {
	e := newEnv(t, setupSecret)

	res := e.do(t, http.MethodPost, "/admin/setup", "", `{"uid":"u1","isAdmin":true}`)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = e.do(t, http.MethodPost, "/admin/setup", "", `{"uid":"u1","isAdmin":true}`, "x-admin-setup-secret", "wrong")
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = e.do(t, http.MethodPost, "/admin/setup", "", `{"isAdmin":true}`, "x-admin-setup-secret", setupSecret)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	var errBody map[string]string
	decode(t, res, &errBody)
	require.Equal(t, "Missing uid", errBody["message"])

	res = e.do(t, http.MethodPost, "/admin/setup", "", `{"uid":"u1","isAdmin":true}`, "x-admin-setup-secret", setupSecret)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var ok map[string]bool
	decode(t, res, &ok)
	require.True(t, ok["success"])

	// u1 ya es admin por claim guardado
	res = e.do(t, http.MethodPost, "/v1/admin/claims", token(t, "u1"), `{"uid":"u2","role":"editor"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = e.do(t, http.MethodPost, "/v1/admin/claims", token(t, "u2"), `{"uid":"u3","role":"admin"}`)
	require.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestAdminSetup_DisabledWithoutSecret(t *testing.T) {
	e := newEnv(t, "")
	res := e.do(t, http.MethodPost, "/admin/setup", "", `{"uid":"u1","isAdmin":true}`, "x-admin-setup-secret", "anything")
	require.Equal(t, http.StatusInternalServerError, res.StatusCode)
}

func TestNotFoundRoute(t *testing.T) {
	e := newEnv(t, "")
	res := e.do(t, http.MethodGet, "/nope", "", "")
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}
