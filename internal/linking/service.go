// Package linking orquesta la vinculación OAuth de cuentas de plataformas:
// start (state + URL de autorización), callback (consumo del state, exchange,
// identify, persistencia) y unlink.
package linking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/starlingpost/starlingpost/internal/domain/social"
	"github.com/starlingpost/starlingpost/internal/metrics"
	"github.com/starlingpost/starlingpost/internal/oauthstate"
	"github.com/starlingpost/starlingpost/internal/observability/logger"
	"github.com/starlingpost/starlingpost/internal/platforms"
	"github.com/starlingpost/starlingpost/internal/store"
)

// DefaultExchangeTimeout aplica a ExchangeCode y a Identify por separado.
const DefaultExchangeTimeout = 10 * time.Second

// AdapterResolver resuelve el adapter de una plataforma (platforms.Registry).
type AdapterResolver interface {
	Resolve(raw string) (platforms.Adapter, error)
}

// Service es el OAuth Orchestrator.
type Service interface {
	StartLink(ctx context.Context, req StartRequest) (*StartResult, error)
	CompleteLink(ctx context.Context, req CompleteRequest) (*social.LinkedAccount, error)
	// AbortLink consume el state cuando el proveedor devolvió error (ej: access_denied).
	AbortLink(ctx context.Context, platform, state string, reason social.Kind) error
	Unlink(ctx context.Context, userID, platform, accountID string) error
	ListAccounts(ctx context.Context, userID string) ([]social.AccountView, error)
	AttemptStatus(state string) (social.LinkAttempt, bool)
}

// StartRequest identifica al usuario autenticado que inicia la vinculación.
type StartRequest struct {
	UserID   string
	Email    string
	Platform string
}

// StartResult URL a la que redirigir al usuario.
type StartResult struct {
	RedirectURL string
	Platform    social.Platform
	AttemptID   string
}

// CompleteRequest datos del callback del proveedor.
type CompleteRequest struct {
	Platform string
	Code     string
	State    string
}

// Deps dependencias del orquestador.
type Deps struct {
	Adapters        AdapterResolver
	States          oauthstate.Store
	Accounts        store.AccountRepository
	Attempts        *Attempts
	ExchangeTimeout time.Duration
	Now             func() time.Time
}

type service struct {
	adapters AdapterResolver
	states   oauthstate.Store
	accounts store.AccountRepository
	attempts *Attempts
	timeout  time.Duration
	now      func() time.Time
}

// NewService crea el orquestador.
func NewService(d Deps) Service {
	s := &service{
		adapters: d.Adapters,
		states:   d.States,
		accounts: d.Accounts,
		attempts: d.Attempts,
		timeout:  d.ExchangeTimeout,
		now:      d.Now,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultExchangeTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.attempts == nil {
		s.attempts = NewAttempts(oauthstate.DefaultTTL, s.now)
	}
	return s
}

func (s *service) StartLink(ctx context.Context, req StartRequest) (*StartResult, error) {
	const op = "StartLink"
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("linking"), logger.Op(op),
		logger.UserID(req.UserID))

	if req.UserID == "" {
		return nil, errors.New("linking: empty user id")
	}
	adapter, err := s.adapters.Resolve(req.Platform)
	if err != nil {
		return nil, err
	}
	p := adapter.Platform()
	log = log.With(logger.Platform(string(p)))

	if !adapter.Implemented() {
		log.Info("link requested for unimplemented platform")
		return nil, social.NotImplemented(op, p)
	}
	if err := adapter.Validate(); err != nil {
		log.Error("platform misconfigured", logger.Err(err))
		return nil, err
	}

	st, err := s.states.Create(ctx, oauthstate.CreateInput{
		UserID:       req.UserID,
		Platform:     p,
		ContactEmail: req.Email,
		WithVerifier: true,
	})
	if err != nil {
		log.Error("create oauth state failed", logger.Err(err))
		return nil, fmt.Errorf("linking: create state: %w", err)
	}

	redirect, err := adapter.BuildAuthURL(platforms.AuthRequest{State: st.State, CodeVerifier: st.CodeVerifier})
	if err != nil {
		log.Error("build auth url failed", logger.Err(err))
		// el state no llegó al usuario: se descarta ya
		if _, derr := s.states.Consume(ctx, st.State); derr != nil && !social.IsKind(derr, social.KindStateNotFound) {
			log.Warn("discard oauth state failed", logger.Err(derr))
		}
		return nil, err
	}

	at := s.attempts.Start(st.State, req.UserID, p)
	metrics.LinkAttempts.WithLabelValues(string(p), "started").Inc()
	log.Info("link started", logger.Attempt(at.ID), logger.StateRef(st.State))

	return &StartResult{RedirectURL: redirect, Platform: p, AttemptID: at.ID}, nil
}

func (s *service) CompleteLink(ctx context.Context, req CompleteRequest) (*social.LinkedAccount, error) {
	const op = "CompleteLink"
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("linking"), logger.Op(op),
		logger.StateRef(req.State))

	adapter, err := s.adapters.Resolve(req.Platform)
	if err != nil {
		return nil, err
	}
	p := adapter.Platform()
	log = log.With(logger.Platform(string(p)))

	// Plataformas sin integrar: ni lectura de state ni escrituras.
	if !adapter.Implemented() {
		log.Info("callback for unimplemented platform")
		return nil, social.NotImplemented(op, p)
	}

	st, err := s.states.Consume(ctx, req.State)
	if err != nil {
		return nil, err
	}
	log = log.With(logger.UserID(st.UserID))

	if st.Platform != p {
		log.Warn("state issued for another platform", logger.String("state_platform", string(st.Platform)))
		return nil, s.fail(req.State, p, social.E(social.KindStateNotFound, op, p, "state issued for another platform"))
	}
	if req.Code == "" {
		return nil, s.fail(req.State, p, social.E(social.KindExchangeFailed, op, p, "missing authorization code"))
	}
	if _, err := s.attempts.Transition(req.State, p, social.AttemptExchanging, ""); err != nil {
		log.Warn("attempt transition rejected", logger.Err(err))
	}

	tokens, err := s.exchange(ctx, adapter, req.Code, st.CodeVerifier)
	if err != nil {
		log.Warn("code exchange failed", logger.String("kind", string(social.KindOf(err))))
		return nil, s.fail(req.State, p, err)
	}

	info, err := s.identify(ctx, adapter, tokens)
	if err != nil {
		log.Warn("identify failed", logger.String("kind", string(social.KindOf(err))))
		return nil, s.fail(req.State, p, err)
	}
	if info.ID == "" {
		return nil, s.fail(req.State, p, social.E(social.KindExchangeFailed, op, p, "platform returned no account id"))
	}

	now := s.now().UTC()
	acc := &social.LinkedAccount{
		UserID:       st.UserID,
		Platform:     p,
		AccountID:    info.ID,
		AccountName:  info.Name,
		ContactEmail: st.ContactEmail,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
		Scopes:       social.NormalizeScopes(tokens.Scopes),
		UpdatedAt:    now,
	}
	if err := s.accounts.Put(ctx, acc); err != nil {
		log.Error("persist linked account failed", logger.Err(err))
		return nil, s.fail(req.State, p, social.Wrap(social.KindNetwork, op, p, fmt.Errorf("persist account: %w", err)))
	}

	at, _ := s.attempts.Transition(req.State, p, social.AttemptLinked, "")
	metrics.LinkAttempts.WithLabelValues(string(p), "linked").Inc()
	log.Info("account linked", logger.AccountID(acc.AccountID), logger.Attempt(at.ID))
	return acc, nil
}

func (s *service) exchange(ctx context.Context, a platforms.Adapter, code, verifier string) (*social.TokenSet, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ts, err := a.ExchangeCode(ctx, platforms.ExchangeRequest{Code: code, CodeVerifier: verifier})
	if err != nil {
		return nil, timeoutAware(ctx, "ExchangeCode", a.Platform(), err)
	}
	if ts == nil || ts.AccessToken == "" {
		return nil, social.E(social.KindExchangeFailed, "ExchangeCode", a.Platform(), "empty access token")
	}
	return ts, nil
}

func (s *service) identify(ctx context.Context, a platforms.Adapter, ts *social.TokenSet) (*platforms.AccountInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	info, err := a.Identify(ctx, ts)
	if err != nil {
		return nil, timeoutAware(ctx, "Identify", a.Platform(), err)
	}
	return info, nil
}

// timeoutAware garantiza un error tipado cuando venció el deadline y el adapter
// devolvió un error crudo.
func timeoutAware(ctx context.Context, op string, p social.Platform, err error) error {
	if social.Typed(err) {
		return err
	}
	return social.FromContext(ctx, op, p, err)
}

func (s *service) fail(state string, p social.Platform, err error) error {
	_, _ = s.attempts.Transition(state, p, social.AttemptFailed, social.KindOf(err))
	metrics.LinkAttempts.WithLabelValues(string(p), "failed").Inc()
	return err
}

func (s *service) AbortLink(ctx context.Context, platform, state string, reason social.Kind) error {
	const op = "AbortLink"
	adapter, err := s.adapters.Resolve(platform)
	if err != nil {
		return err
	}
	p := adapter.Platform()
	if !adapter.Implemented() {
		return social.NotImplemented(op, p)
	}
	st, err := s.states.Consume(ctx, state)
	if err != nil {
		return err
	}
	logger.From(ctx).Info("link cancelled at provider",
		logger.Component("linking"), logger.Op(op), logger.Platform(string(p)),
		logger.UserID(st.UserID), logger.String("reason", string(reason)))
	_, _ = s.attempts.Transition(state, p, social.AttemptFailed, reason)
	metrics.LinkAttempts.WithLabelValues(string(p), "failed").Inc()
	return nil
}

func (s *service) Unlink(ctx context.Context, userID, platform, accountID string) error {
	const op = "Unlink"
	p, err := social.ParsePlatform(platform)
	if err != nil {
		return err
	}
	key := social.AccountKey{UserID: userID, Platform: p, AccountID: accountID}
	if err := s.accounts.Delete(ctx, key); err != nil {
		if store.IsNotFound(err) {
			return social.E(social.KindNotFound, op, p, "linked account not found")
		}
		return fmt.Errorf("linking: unlink: %w", err)
	}
	logger.From(ctx).Info("account unlinked", logger.Component("linking"), logger.Op(op),
		logger.UserID(userID), logger.Platform(string(p)), logger.AccountID(accountID))
	return nil
}

func (s *service) ListAccounts(ctx context.Context, userID string) ([]social.AccountView, error) {
	list, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("linking: list accounts: %w", err)
	}
	out := make([]social.AccountView, 0, len(list))
	for i := range list {
		out = append(out, list[i].View())
	}
	return out, nil
}

func (s *service) AttemptStatus(state string) (social.LinkAttempt, bool) {
	return s.attempts.Get(state)
}
