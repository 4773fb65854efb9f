package linking

import (
	"context"
	"errors"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starlingpost/starlingpost/internal/cache"
	"github.com/starlingpost/starlingpost/internal/domain/social"
	"github.com/starlingpost/starlingpost/internal/oauthstate"
	"github.com/starlingpost/starlingpost/internal/platforms"
	"github.com/starlingpost/starlingpost/internal/store"
	"github.com/starlingpost/starlingpost/internal/store/memory"
)

// stubAdapter simula una plataforma implementada sin red.
type stubAdapter struct {
	p           social.Platform
	exchangeErr error
	identifyErr error
	authErr     error
	block       bool
	lastCode    string
	lastVerif   string
	exchanges   int32
}

func (s *stubAdapter) Platform() social.Platform { return s.p }
func (s *stubAdapter) Implemented() bool         { return true }
func (s *stubAdapter) Validate() error           { return nil }

func (s *stubAdapter) BuildAuthURL(req platforms.AuthRequest) (string, error) {
	if s.authErr != nil {
		return "", s.authErr
	}
	q := url.Values{"state": {req.State}, "client_id": {"cid"}}
	return "https://provider.test/auth?" + q.Encode(), nil
}

func (s *stubAdapter) ExchangeCode(ctx context.Context, req platforms.ExchangeRequest) (*social.TokenSet, error) {
	atomic.AddInt32(&s.exchanges, 1)
	s.lastCode, s.lastVerif = req.Code, req.CodeVerifier
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.exchangeErr != nil {
		return nil, s.exchangeErr
	}
	exp := time.Now().Add(time.Hour)
	return &social.TokenSet{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresAt: &exp, Scopes: []string{"b", "a"}}, nil
}

func (s *stubAdapter) RefreshToken(context.Context, social.TokenSet) (*social.TokenSet, error) {
	return nil, social.E(social.KindRefreshNotSupported, "RefreshToken", s.p, "")
}

func (s *stubAdapter) FetchMetrics(context.Context, *social.LinkedAccount, string) (*social.PostMetrics, error) {
	return &social.PostMetrics{}, nil
}

func (s *stubAdapter) Identify(context.Context, *social.TokenSet) (*platforms.AccountInfo, error) {
	if s.identifyErr != nil {
		return nil, s.identifyErr
	}
	return &platforms.AccountInfo{ID: "UC123", Name: "My Channel"}, nil
}

// countingStates cuenta lecturas/escrituras del state store.
type countingStates struct {
	inner    oauthstate.Store
	creates  int32
	consumes int32
	last     string
}

func (c *countingStates) Create(ctx context.Context, in oauthstate.CreateInput) (*social.OAuthState, error) {
	atomic.AddInt32(&c.creates, 1)
	st, err := c.inner.Create(ctx, in)
	if err == nil {
		c.last = st.State
	}
	return st, err
}

func (c *countingStates) Consume(ctx context.Context, state string) (*social.OAuthState, error) {
	atomic.AddInt32(&c.consumes, 1)
	return c.inner.Consume(ctx, state)
}

type fixture struct {
	svc     Service
	yt      *stubAdapter
	states  *countingStates
	mem     *memory.Store
	now     time.Time
	advance func(time.Duration)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	f.advance = func(d time.Duration) { f.now = f.now.Add(d) }

	reg := platforms.NewDefaultRegistry(nil, nil)
	f.yt = &stubAdapter{p: social.YouTube}
	reg.Register(f.yt)

	f.states = &countingStates{inner: oauthstate.New(cache.NewMemory("test"), oauthstate.WithClock(clock))}
	f.mem = memory.New()
	f.svc = NewService(Deps{
		Adapters:        reg,
		States:          f.states,
		Accounts:        f.mem.Accounts(),
		Attempts:        NewAttempts(time.Minute, clock),
		ExchangeTimeout: 200 * time.Millisecond,
		Now:             clock,
	})
	return f
}

func stateFrom(t *testing.T, redirect string) string {
	t.Helper()
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	vals := u.Query()["state"]
	require.Len(t, vals, 1)
	return vals[0]
}

func TestYouTubeLinkPersistsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.StartLink(ctx, StartRequest{UserID: "u1", Email: "u1@example.com", Platform: "youtube"})
	require.NoError(t, err)
	state := stateFrom(t, res.RedirectURL)

	at, ok := f.svc.AttemptStatus(state)
	require.True(t, ok)
	require.Equal(t, social.AttemptPending, at.Status)
	require.Equal(t, 0, f.mem.WriteCount())

	acc, err := f.svc.CompleteLink(ctx, CompleteRequest{Platform: "youtube", Code: "code-1", State: state})
	require.NoError(t, err)
	require.Equal(t, "UC123", acc.AccountID)
	require.Equal(t, "u1@example.com", acc.ContactEmail)
	require.Equal(t, []string{"a", "b"}, acc.Scopes)
	require.Equal(t, 1, f.mem.WriteCount())
	require.Equal(t, "code-1", f.yt.lastCode)
	require.NotEmpty(t, f.yt.lastVerif)

	at, _ = f.svc.AttemptStatus(state)
	require.Equal(t, social.AttemptLinked, at.Status)

	views, err := f.svc.ListAccounts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, "My Channel", views[0].AccountName)

	// replay del callback
	_, err = f.svc.CompleteLink(ctx, CompleteRequest{Platform: "youtube", Code: "code-1", State: state})
	require.ErrorIs(t, err, social.ErrStateNotFound)
	require.Equal(t, 1, f.mem.WriteCount())
	require.EqualValues(t, 1, f.yt.exchanges)
}

func TestFacebookCompleteLinkIsNotImplemented(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CompleteLink(context.Background(), CompleteRequest{Platform: "facebook", Code: "c", State: "whatever"})
	require.ErrorIs(t, err, social.ErrNotImplemented)
	require.EqualValues(t, 0, f.states.consumes)
	require.EqualValues(t, 0, f.states.creates)
	require.Equal(t, 0, f.mem.WriteCount())

	_, err = f.svc.StartLink(context.Background(), StartRequest{UserID: "u1", Platform: "facebook"})
	require.ErrorIs(t, err, social.ErrNotImplemented)
	require.EqualValues(t, 0, f.states.creates)
}

func TestCompleteLinkUnknownOrExpiredState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CompleteLink(ctx, CompleteRequest{Platform: "youtube", Code: "c", State: "forged"})
	require.ErrorIs(t, err, social.ErrStateNotFound)

	res, err := f.svc.StartLink(ctx, StartRequest{UserID: "u1", Platform: "youtube"})
	require.NoError(t, err)
	f.advance(oauthstate.DefaultTTL + time.Second)

	_, err = f.svc.CompleteLink(ctx, CompleteRequest{Platform: "youtube", Code: "c", State: stateFrom(t, res.RedirectURL)})
	require.ErrorIs(t, err, social.ErrStateNotFound)
	require.Equal(t, 0, f.mem.WriteCount())
	require.EqualValues(t, 0, f.yt.exchanges)
}

func TestCompleteLinkPlatformMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f2 := &stubAdapter{p: social.Twitter}
	f.svc.(*service).adapters.(*platforms.Registry).Register(f2)

	res, err := f.svc.StartLink(ctx, StartRequest{UserID: "u1", Platform: "youtube"})
	require.NoError(t, err)
	state := stateFrom(t, res.RedirectURL)

	_, err = f.svc.CompleteLink(ctx, CompleteRequest{Platform: "twitter", Code: "c", State: state})
	require.ErrorIs(t, err, social.ErrStateNotFound)
	require.Equal(t, 0, f.mem.WriteCount())

	at, ok := f.svc.AttemptStatus(state)
	require.True(t, ok)
	require.Equal(t, social.AttemptFailed, at.Status)
}

func TestCompleteLinkExchangeFailureMarksAttemptFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.yt.exchangeErr = social.E(social.KindExchangeFailed, "ExchangeCode", social.YouTube, "invalid_grant")

	res, err := f.svc.StartLink(ctx, StartRequest{UserID: "u1", Platform: "youtube"})
	require.NoError(t, err)
	state := stateFrom(t, res.RedirectURL)

	_, err = f.svc.CompleteLink(ctx, CompleteRequest{Platform: "youtube", Code: "bad", State: state})
	require.ErrorIs(t, err, social.ErrExchangeFailed)
	require.Equal(t, 0, f.mem.WriteCount())

	at, _ := f.svc.AttemptStatus(state)
	require.Equal(t, social.AttemptFailed, at.Status)
	require.Equal(t, social.KindExchangeFailed, at.ErrorCode)
}

func TestCompleteLinkTimeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.yt.block = true

	res, err := f.svc.StartLink(ctx, StartRequest{UserID: "u1", Platform: "youtube"})
	require.NoError(t, err)

	_, err = f.svc.CompleteLink(ctx, CompleteRequest{Platform: "youtube", Code: "c", State: stateFrom(t, res.RedirectURL)})
	require.ErrorIs(t, err, social.ErrTimeout)
	require.Equal(t, 0, f.mem.WriteCount())
}

func TestStartLinkAuthURLFailureDiscardsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.yt.authErr = social.E(social.KindConfiguration, "BuildAuthURL", social.YouTube, "bad auth endpoint")

	_, err := f.svc.StartLink(ctx, StartRequest{UserID: "u1", Platform: "youtube"})
	require.ErrorIs(t, err, social.ErrConfiguration)
	require.NotEmpty(t, f.states.last)

	_, err = f.states.inner.Consume(ctx, f.states.last)
	require.ErrorIs(t, err, social.ErrStateNotFound)
}

// failingAccounts rechaza toda escritura.
type failingAccounts struct{ store.AccountRepository }

func (failingAccounts) Put(context.Context, *social.LinkedAccount) error {
	return errors.New("connection refused")
}

func TestCompleteLinkPersistFailureIsTyped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	reg := platforms.NewDefaultRegistry(nil, nil)
	reg.Register(f.yt)
	svc := NewService(Deps{
		Adapters:        reg,
		States:          f.states,
		Accounts:        failingAccounts{f.mem.Accounts()},
		ExchangeTimeout: 200 * time.Millisecond,
	})

	res, err := svc.StartLink(ctx, StartRequest{UserID: "u1", Platform: "youtube"})
	require.NoError(t, err)
	state := stateFrom(t, res.RedirectURL)

	_, err = svc.CompleteLink(ctx, CompleteRequest{Platform: "youtube", Code: "c", State: state})
	require.ErrorIs(t, err, social.ErrNetwork)
	require.NotContains(t, err.Error(), "at-1")

	at, ok := svc.AttemptStatus(state)
	require.True(t, ok)
	require.Equal(t, social.KindNetwork, at.ErrorCode)
}

func TestIdentifyFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.yt.identifyErr = social.E(social.KindInvalidGrant, "Identify", social.YouTube, "")

	res, err := f.svc.StartLink(ctx, StartRequest{UserID: "u1", Platform: "youtube"})
	require.NoError(t, err)

	_, err = f.svc.CompleteLink(ctx, CompleteRequest{Platform: "youtube", Code: "c", State: stateFrom(t, res.RedirectURL)})
	require.ErrorIs(t, err, social.ErrInvalidGrant)
	require.Equal(t, 0, f.mem.WriteCount())
}

func TestStartLinkUnknownPlatform(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.StartLink(context.Background(), StartRequest{UserID: "u1", Platform: "myspace"})
	require.ErrorIs(t, err, social.ErrUnknownPlatform)
}

func TestStartLinkMisconfiguredPlatform(t *testing.T) {
	f := newFixture(t)
	// instagram sin credenciales
	_, err := f.svc.StartLink(context.Background(), StartRequest{UserID: "u1", Platform: "instagram"})
	require.ErrorIs(t, err, social.ErrConfiguration)
	require.EqualValues(t, 0, f.states.creates)
}

func TestAbortLinkConsumesState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.StartLink(ctx, StartRequest{UserID: "u1", Platform: "youtube"})
	require.NoError(t, err)
	state := stateFrom(t, res.RedirectURL)

	require.NoError(t, f.svc.AbortLink(ctx, "youtube", state, "access_denied"))
	at, _ := f.svc.AttemptStatus(state)
	require.Equal(t, social.AttemptFailed, at.Status)

	_, err = f.svc.CompleteLink(ctx, CompleteRequest{Platform: "youtube", Code: "c", State: state})
	require.ErrorIs(t, err, social.ErrStateNotFound)
}

func TestUnlink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.StartLink(ctx, StartRequest{UserID: "u1", Platform: "youtube"})
	require.NoError(t, err)
	_, err = f.svc.CompleteLink(ctx, CompleteRequest{Platform: "youtube", Code: "c", State: stateFrom(t, res.RedirectURL)})
	require.NoError(t, err)

	require.NoError(t, f.svc.Unlink(ctx, "u1", "youtube", "UC123"))
	err = f.svc.Unlink(ctx, "u1", "youtube", "UC123")
	require.ErrorIs(t, err, social.ErrNotFound)

	views, err := f.svc.ListAccounts(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, views)
}

func TestAttemptsRejectIllegalTransitions(t *testing.T) {
	a := NewAttempts(time.Minute, nil)
	a.Start("s", "u1", social.YouTube)

	_, err := a.Transition("s", social.YouTube, social.AttemptLinked, "")
	require.ErrorIs(t, err, ErrIllegalTransition)

	_, err = a.Transition("s", social.YouTube, social.AttemptExchanging, "")
	require.NoError(t, err)
	_, err = a.Transition("s", social.YouTube, social.AttemptLinked, "")
	require.NoError(t, err)
	_, err = a.Transition("s", social.YouTube, social.AttemptFailed, "")
	require.ErrorIs(t, err, ErrIllegalTransition)
}
