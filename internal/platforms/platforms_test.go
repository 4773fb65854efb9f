package platforms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starlingpost/starlingpost/internal/domain/social"
)

var testCreds = Credentials{ClientID: "cid", ClientSecret: "csecret", RedirectURI: "https://app.test/v1/link/cb"}

// fakeProvider es un proveedor OAuth + API mínimo sobre httptest.
type fakeProvider struct {
	*httptest.Server
	calls int32
	mux   *http.ServeMux
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{mux: http.NewServeMux()}
	fp.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fp.calls, 1)
		fp.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(fp.Close)
	return fp
}

func (fp *fakeProvider) Calls() int { return int(atomic.LoadInt32(&fp.calls)) }

func (fp *fakeProvider) opts() Options {
	return Options{
		AuthEndpoint:  fp.URL + "/authorize",
		TokenEndpoint: fp.URL + "/token",
		APIBase:       fp.URL + "/api",
		GraphBase:     fp.URL + "/graph",
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func mustAdapter(t *testing.T, f Factory, creds Credentials, opts Options) Adapter {
	t.Helper()
	a, err := f(creds, opts)
	require.NoError(t, err)
	return a
}

func TestBuildAuthURL_SingleStateForImplementedPlatforms(t *testing.T) {
	for _, f := range []Factory{NewYouTube, NewInstagram, NewTwitter} {
		a := mustAdapter(t, f, testCreds, Options{})
		raw, err := a.BuildAuthURL(AuthRequest{State: "st-123", CodeVerifier: "verifier-abcdefghijklmnopqrstuvwxyz0123456789"})
		require.NoError(t, err, a.Platform())

		u, err := url.Parse(raw)
		require.NoError(t, err)
		q := u.Query()
		require.Equal(t, []string{"st-123"}, q["state"], a.Platform())
		require.Equal(t, "code", q.Get("response_type"))
		require.Equal(t, testCreds.RedirectURI, q.Get("redirect_uri"))
		require.Equal(t, "cid", q.Get("client_id"))
		require.NotEmpty(t, q.Get("scope"))
		require.NotContains(t, raw, "csecret")
	}
}

func TestBuildAuthURL_PlatformSpecifics(t *testing.T) {
	yt := mustAdapter(t, NewYouTube, testCreds, Options{})
	raw, err := yt.BuildAuthURL(AuthRequest{State: "s"})
	require.NoError(t, err)
	u, _ := url.Parse(raw)
	require.Equal(t, "offline", u.Query().Get("access_type"))
	require.Contains(t, u.Query().Get("scope"), "https://www.googleapis.com/auth/yt-analytics.readonly")

	tw := mustAdapter(t, NewTwitter, testCreds, Options{})
	raw, err = tw.BuildAuthURL(AuthRequest{State: "s", CodeVerifier: "v1"})
	require.NoError(t, err)
	u, _ = url.Parse(raw)
	require.Equal(t, "S256", u.Query().Get("code_challenge_method"))
	require.Equal(t, CodeChallengeS256("v1"), u.Query().Get("code_challenge"))
	require.Equal(t, "tweet.read users.read offline.access", u.Query().Get("scope"))

	_, err = tw.BuildAuthURL(AuthRequest{State: "s"})
	require.Equal(t, social.KindConfiguration, social.KindOf(err))

	ig := mustAdapter(t, NewInstagram, testCreds, Options{})
	raw, err = ig.BuildAuthURL(AuthRequest{State: "s"})
	require.NoError(t, err)
	u, _ = url.Parse(raw)
	require.Contains(t, u.Query().Get("scope"), "instagram_business_basic,")
}

func TestCodeChallengeS256_RFC7636Vector(t *testing.T) {
	require.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeS256("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))
}

func TestMissingConfiguration(t *testing.T) {
	a := mustAdapter(t, NewYouTube, Credentials{ClientID: "cid"}, Options{})
	_, err := a.BuildAuthURL(AuthRequest{State: "s"})
	require.ErrorIs(t, err, social.ErrConfiguration)
	require.Contains(t, err.Error(), "YOUTUBE_CLIENT_SECRET")
	require.Contains(t, err.Error(), "YOUTUBE_REDIRECT_URI")
	require.ErrorIs(t, a.Validate(), social.ErrConfiguration)
}

func TestUnimplementedPlatforms(t *testing.T) {
	ctx := context.Background()
	for _, p := range []social.Platform{social.TikTok, social.Pinterest, social.Facebook} {
		a, err := NewDefaultRegistry(nil, nil).Get(p)
		require.NoError(t, err)
		require.False(t, a.Implemented())

		_, err = a.BuildAuthURL(AuthRequest{State: "s"})
		require.ErrorIs(t, err, social.ErrNotImplemented)
		_, err = a.ExchangeCode(ctx, ExchangeRequest{Code: "c"})
		require.ErrorIs(t, err, social.ErrNotImplemented)
		_, err = a.RefreshToken(ctx, social.TokenSet{RefreshToken: "r"})
		require.ErrorIs(t, err, social.ErrNotImplemented)
		_, err = a.FetchMetrics(ctx, &social.LinkedAccount{}, "p")
		require.ErrorIs(t, err, social.ErrNotImplemented)
		_, err = a.Identify(ctx, &social.TokenSet{})
		require.ErrorIs(t, err, social.ErrNotImplemented)
	}
}

func TestExchangeCode_Success(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		require.Equal(t, "the-code", r.PostForm.Get("code"))
		require.Equal(t, "cid", r.PostForm.Get("client_id"))
		require.Equal(t, "csecret", r.PostForm.Get("client_secret"))
		writeJSON(w, 200, map[string]any{
			"access_token": "at-1", "refresh_token": "rt-1", "expires_in": 3600,
			"token_type": "Bearer", "scope": "b a",
		})
	})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	opts := fp.opts()
	opts.Now = func() time.Time { return now }
	a := mustAdapter(t, NewYouTube, testCreds, opts)

	ts, err := a.ExchangeCode(context.Background(), ExchangeRequest{Code: "the-code"})
	require.NoError(t, err)
	require.Equal(t, "at-1", ts.AccessToken)
	require.Equal(t, "rt-1", ts.RefreshToken)
	require.Equal(t, []string{"a", "b"}, ts.Scopes)
	require.NotNil(t, ts.ExpiresAt)
	require.Equal(t, now.Add(time.Hour), *ts.ExpiresAt)
}

func TestExchangeCode_ProviderErrorIsSanitized(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 400, map[string]any{"error": "invalid_grant", "error_description": "Bad Request"})
	})
	a := mustAdapter(t, NewYouTube, testCreds, fp.opts())

	_, err := a.ExchangeCode(context.Background(), ExchangeRequest{Code: "secret-code"})
	require.ErrorIs(t, err, social.ErrExchangeFailed)
	require.Contains(t, err.Error(), "invalid_grant")
	require.NotContains(t, err.Error(), "secret-code")
	require.NotContains(t, err.Error(), "csecret")
}

func TestExchangeCode_Timeout(t *testing.T) {
	fp := newFakeProvider(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	fp.mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	a := mustAdapter(t, NewYouTube, testCreds, fp.opts())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := a.ExchangeCode(ctx, ExchangeRequest{Code: "c"})
	require.ErrorIs(t, err, social.ErrTimeout)
}

func TestExchangeCode_NetworkError(t *testing.T) {
	fp := newFakeProvider(t)
	opts := fp.opts()
	fp.Close()
	a := mustAdapter(t, NewYouTube, testCreds, opts)

	_, err := a.ExchangeCode(context.Background(), ExchangeRequest{Code: "c"})
	require.ErrorIs(t, err, social.ErrNetwork)
}

func TestRefresh_NotSupportedMakesNoNetworkCalls(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"access_token": "x"})
	})

	// youtube sin refresh token
	yt := mustAdapter(t, NewYouTube, testCreds, fp.opts())
	_, err := yt.RefreshToken(context.Background(), social.TokenSet{AccessToken: "a"})
	require.ErrorIs(t, err, social.ErrRefreshNotSupported)

	// plataforma sin refresh en su tabla
	spec := Specs[social.YouTube]
	spec.Refresh = RefreshNone
	spec.TokenEndpoint = fp.URL + "/token"
	engine := NewOAuth2(spec, testCreds, Options{})
	_, err = engine.Refresh(context.Background(), social.TokenSet{AccessToken: "a", RefreshToken: "r"})
	require.ErrorIs(t, err, social.ErrRefreshNotSupported)

	require.Equal(t, 0, fp.Calls())
}

func TestRefresh_InvalidGrantAndRotation(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("refresh_token") == "revoked" {
			writeJSON(w, 400, map[string]any{"error": "invalid_grant"})
			return
		}
		writeJSON(w, 200, map[string]any{"access_token": "at-2", "expires_in": 3600})
	})
	a := mustAdapter(t, NewYouTube, testCreds, fp.opts())

	_, err := a.RefreshToken(context.Background(), social.TokenSet{RefreshToken: "revoked"})
	require.ErrorIs(t, err, social.ErrInvalidGrant)

	ts, err := a.RefreshToken(context.Background(), social.TokenSet{RefreshToken: "rt-1", Scopes: []string{"s"}})
	require.NoError(t, err)
	require.Equal(t, "at-2", ts.AccessToken)
	require.Equal(t, "rt-1", ts.RefreshToken)
	require.Equal(t, []string{"s"}, ts.Scopes)
}

func TestRefresh_ProviderErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   map[string]any
		want   error
	}{
		{"revoked token", 400, map[string]any{"error": "invalid_grant"}, social.ErrInvalidGrant},
		{"revoked token 401", 401, map[string]any{"error": "invalid_grant"}, social.ErrInvalidGrant},
		{"bad client secret", 401, map[string]any{"error": "invalid_client"}, social.ErrConfiguration},
		{"client not allowed", 400, map[string]any{"error": "unauthorized_client"}, social.ErrConfiguration},
		{"malformed request", 400, map[string]any{"error": "invalid_request"}, social.ErrExchangeFailed},
		{"no error code", 403, map[string]any{}, social.ErrExchangeFailed},
		{"throttled", 429, map[string]any{"error": "slow_down"}, social.ErrRateLimited},
		{"provider down", 503, map[string]any{"error": "temporarily_unavailable"}, social.ErrNetwork},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fp := newFakeProvider(t)
			fp.mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, tc.body)
			})
			a := mustAdapter(t, NewYouTube, testCreds, fp.opts())

			_, err := a.RefreshToken(context.Background(), social.TokenSet{RefreshToken: "rt-1"})
			require.ErrorIs(t, err, tc.want)
			if tc.want != social.ErrInvalidGrant {
				require.NotErrorIs(t, err, social.ErrInvalidGrant)
			}
		})
	}
}

func TestExchangeCode_AnyNon2xxIsExchangeFailed(t *testing.T) {
	for _, status := range []int{400, 401, 429, 500, 503} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			fp := newFakeProvider(t)
			fp.mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "30")
				writeJSON(w, status, map[string]any{"error": "server_error", "error_description": "try later"})
			})
			a := mustAdapter(t, NewYouTube, testCreds, fp.opts())

			_, err := a.ExchangeCode(context.Background(), ExchangeRequest{Code: "c"})
			require.ErrorIs(t, err, social.ErrExchangeFailed)
			require.Equal(t, social.KindExchangeFailed, social.KindOf(err))
			require.Contains(t, err.Error(), "status "+strconv.Itoa(status))
		})
	}
}

func TestYouTube_Metrics(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("/api/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("id") {
		case "vid1":
			require.Equal(t, "Bearer at", r.Header.Get("Authorization"))
			writeJSON(w, 200, map[string]any{"items": []any{map[string]any{
				"statistics": map[string]any{"viewCount": "1200", "likeCount": "34", "commentCount": "5"},
			}}})
		case "gone":
			writeJSON(w, 200, map[string]any{"items": []any{}})
		case "quota":
			writeJSON(w, 403, map[string]any{"error": map[string]any{"errors": []any{map[string]any{"reason": "quotaExceeded"}}}})
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	})
	a := mustAdapter(t, NewYouTube, testCreds, fp.opts())
	acct := &social.LinkedAccount{AccessToken: "at"}
	ctx := context.Background()

	m, err := a.FetchMetrics(ctx, acct, "vid1")
	require.NoError(t, err)
	require.Equal(t, int64(1200), *m.Views)
	require.Equal(t, int64(34), *m.Likes)
	require.Equal(t, int64(5), *m.Comments)
	require.Nil(t, m.Reach)
	require.Nil(t, m.Shares)

	_, err = a.FetchMetrics(ctx, acct, "gone")
	require.ErrorIs(t, err, social.ErrNotFound)

	_, err = a.FetchMetrics(ctx, acct, "quota")
	require.ErrorIs(t, err, social.ErrRateLimited)
	d, ok := social.RetryAfterOf(err)
	require.True(t, ok)
	require.Greater(t, d, time.Duration(0))

	_, err = a.FetchMetrics(ctx, acct, "revoked")
	require.ErrorIs(t, err, social.ErrInvalidGrant)
}

func TestYouTube_Identify(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("/api/youtube/v3/channels", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "true", r.URL.Query().Get("mine"))
		writeJSON(w, 200, map[string]any{"items": []any{map[string]any{"id": "UC123", "snippet": map[string]any{"title": "My Channel"}}}})
	})
	a := mustAdapter(t, NewYouTube, testCreds, fp.opts())
	info, err := a.Identify(context.Background(), &social.TokenSet{AccessToken: "at"})
	require.NoError(t, err)
	require.Equal(t, "UC123", info.ID)
	require.Equal(t, "My Channel", info.Name)
}

func TestTwitter_ExchangeUsesBasicAuthAndVerifier(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "cid", user)
		require.Equal(t, "csecret", pass)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "ver", r.PostForm.Get("code_verifier"))
		require.Empty(t, r.PostForm.Get("client_secret"))
		writeJSON(w, 200, map[string]any{"access_token": "at", "refresh_token": "rt", "expires_in": 7200, "scope": "tweet.read users.read offline.access"})
	})
	a := mustAdapter(t, NewTwitter, testCreds, fp.opts())
	ts, err := a.ExchangeCode(context.Background(), ExchangeRequest{Code: "c", CodeVerifier: "ver"})
	require.NoError(t, err)
	require.Equal(t, []string{"offline.access", "tweet.read", "users.read"}, ts.Scopes)
}

func TestTwitter_MetricsAndRateLimit(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("/api/2/tweets/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/2/tweets/t1":
			writeJSON(w, 200, map[string]any{"data": map[string]any{"id": "t1", "public_metrics": map[string]any{
				"retweet_count": 3, "reply_count": 2, "like_count": 10, "quote_count": 1, "bookmark_count": 4, "impression_count": 900,
			}}})
		case "/api/2/tweets/deleted":
			writeJSON(w, 200, map[string]any{"errors": []any{map[string]any{"title": "Not Found Error"}}})
		default:
			w.Header().Set("x-rate-limit-reset", strconv.FormatInt(now.Add(90*time.Second).Unix(), 10))
			w.WriteHeader(http.StatusTooManyRequests)
		}
	})
	opts := fp.opts()
	opts.Now = func() time.Time { return now }
	a := mustAdapter(t, NewTwitter, testCreds, opts)
	acct := &social.LinkedAccount{AccessToken: "at"}

	m, err := a.FetchMetrics(context.Background(), acct, "t1")
	require.NoError(t, err)
	require.Equal(t, int64(900), *m.Impressions)
	require.Equal(t, int64(10), *m.Likes)
	require.Equal(t, int64(2), *m.Comments)
	require.Equal(t, int64(4), *m.Saves)
	require.Equal(t, int64(4), *m.Shares)
	require.Nil(t, m.Reach)

	_, err = a.FetchMetrics(context.Background(), acct, "deleted")
	require.ErrorIs(t, err, social.ErrNotFound)

	_, err = a.FetchMetrics(context.Background(), acct, "busy")
	require.ErrorIs(t, err, social.ErrRateLimited)
	d, _ := social.RetryAfterOf(err)
	require.Equal(t, 90*time.Second, d)
}

func TestInstagram_ExchangeRefreshAndInsights(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"access_token": "short", "user_id": 42, "permissions": []string{"instagram_business_basic"}})
	})
	fp.mux.HandleFunc("/graph/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "ig_exchange_token", r.URL.Query().Get("grant_type"))
		require.Equal(t, "short", r.URL.Query().Get("access_token"))
		writeJSON(w, 200, map[string]any{"access_token": "long", "token_type": "bearer", "expires_in": 5184000})
	})
	fp.mux.HandleFunc("/graph/refresh_access_token", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") == "revoked" {
			writeJSON(w, 400, map[string]any{"error": map[string]any{"message": "Error validating access token", "type": "OAuthException", "code": 190}})
			return
		}
		writeJSON(w, 200, map[string]any{"access_token": "long-2", "token_type": "bearer", "expires_in": 5184000})
	})
	fp.mux.HandleFunc("/api/m1/insights", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"data": []any{
			map[string]any{"name": "reach", "values": []any{map[string]any{"value": 500}}},
			map[string]any{"name": "likes", "values": []any{map[string]any{"value": 40}}},
			map[string]any{"name": "saved", "values": []any{map[string]any{"value": 7}}},
		}})
	})
	a := mustAdapter(t, NewInstagram, testCreds, fp.opts())
	ctx := context.Background()

	ts, err := a.ExchangeCode(ctx, ExchangeRequest{Code: "c"})
	require.NoError(t, err)
	require.Equal(t, "long", ts.AccessToken)
	require.Empty(t, ts.RefreshToken)
	require.NotNil(t, ts.ExpiresAt)
	require.Equal(t, []string{"instagram_business_basic"}, ts.Scopes)

	ts2, err := a.RefreshToken(ctx, *ts)
	require.NoError(t, err)
	require.Equal(t, "long-2", ts2.AccessToken)

	_, err = a.RefreshToken(ctx, social.TokenSet{AccessToken: "revoked"})
	require.ErrorIs(t, err, social.ErrInvalidGrant)

	m, err := a.FetchMetrics(ctx, &social.LinkedAccount{AccessToken: "long"}, "m1")
	require.NoError(t, err)
	require.Equal(t, int64(500), *m.Reach)
	require.Equal(t, int64(40), *m.Likes)
	require.Equal(t, int64(7), *m.Saves)
	require.Nil(t, m.Views)
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry(map[social.Platform]Credentials{social.YouTube: testCreds}, nil)

	_, err := r.Resolve("myspace")
	require.ErrorIs(t, err, social.ErrUnknownPlatform)

	a1, err := r.Resolve("YouTube")
	require.NoError(t, err)
	a2, err := r.Get(social.YouTube)
	require.NoError(t, err)
	require.Same(t, a1, a2)
	require.NoError(t, a1.Validate())

	require.Len(t, r.Available(), len(social.AllPlatforms))
}

func TestRetryAfterParsing(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := newTransport(social.Twitter, Options{Now: func() time.Time { return now }})

	h := http.Header{}
	h.Set("Retry-After", "30")
	require.Equal(t, 30*time.Second, tr.retryAfter(h))

	h = http.Header{}
	h.Set("Retry-After", now.Add(2*time.Minute).Format(http.TimeFormat))
	require.Equal(t, 2*time.Minute, tr.retryAfter(h))

	require.Equal(t, defaultRetryAfter, tr.retryAfter(http.Header{}))
}
