// Package oauthstate guarda los OAuth state de un solo uso.
package oauthstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starlingpost/starlingpost/internal/cache"
	"github.com/starlingpost/starlingpost/internal/domain/social"
	"github.com/starlingpost/starlingpost/internal/observability/logger"
	tokens "github.com/starlingpost/starlingpost/internal/security/token"
)

// DefaultTTL es la vida máxima de un state.
const DefaultTTL = 10 * time.Minute

const keyPrefix = "oauth_state:"

// Store crea y consume OAuthState.
type Store interface {
	// Create genera un state aleatorio ligado a userID y platform.
	Create(ctx context.Context, in CreateInput) (*social.OAuthState, error)
	// Consume lo obtiene y borra de forma atómica. StateNotFound si no existe,
	// ya fue consumido o expiró.
	Consume(ctx context.Context, state string) (*social.OAuthState, error)
}

// CreateInput datos del intento.
type CreateInput struct {
	UserID       string
	Platform     social.Platform
	ContactEmail string
	// WithVerifier genera además un PKCE code_verifier.
	WithVerifier bool
}

type cacheStore struct {
	c   cache.Client
	ttl time.Duration
	now func() time.Time
}

// Option configura el store.
type Option func(*cacheStore)

// WithTTL cambia el TTL (0 = DefaultTTL).
func WithTTL(ttl time.Duration) Option {
	return func(s *cacheStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock reemplaza el reloj (tests).
func WithClock(now func() time.Time) Option {
	return func(s *cacheStore) { s.now = now }
}

// New crea un Store sobre el cache dado (memory o redis).
func New(c cache.Client, opts ...Option) Store {
	s := &cacheStore{c: c, ttl: DefaultTTL, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *cacheStore) Create(ctx context.Context, in CreateInput) (*social.OAuthState, error) {
	if in.UserID == "" {
		return nil, errors.New("oauthstate: empty user id")
	}
	st := &social.OAuthState{
		UserID:       in.UserID,
		Platform:     in.Platform,
		CreatedAt:    s.now().UTC(),
		ContactEmail: in.ContactEmail,
	}
	if in.WithVerifier {
		v, err := tokens.NewVerifier()
		if err != nil {
			return nil, err
		}
		st.CodeVerifier = v
	}

	// Add falla si la key ya existe
	for i := 0; i < 3; i++ {
		v, err := tokens.NewState()
		if err != nil {
			return nil, err
		}
		st.State = v
		payload, err := json.Marshal(st)
		if err != nil {
			return nil, fmt.Errorf("oauthstate: marshal: %w", err)
		}
		err = s.c.Add(ctx, keyPrefix+v, string(payload), s.ttl)
		if err == nil {
			return st, nil
		}
		if !errors.Is(err, cache.ErrExists) {
			return nil, fmt.Errorf("oauthstate: store: %w", err)
		}
	}
	return nil, errors.New("oauthstate: could not allocate unique state")
}

func (s *cacheStore) Consume(ctx context.Context, state string) (*social.OAuthState, error) {
	const op = "Consume"
	if state == "" {
		return nil, social.E(social.KindStateNotFound, op, "", "empty state")
	}
	raw, err := s.c.Take(ctx, keyPrefix+state)
	if err != nil {
		if cache.IsNotFound(err) {
			logger.From(ctx).Warn("oauth state not found (expired, reused or forged)",
				logger.Component("oauthstate"), logger.Op(op), logger.StateRef(state))
			return nil, social.E(social.KindStateNotFound, op, "", "unknown or already used state")
		}
		return nil, fmt.Errorf("oauthstate: take: %w", err)
	}
	var st social.OAuthState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, social.E(social.KindStateNotFound, op, "", "corrupt state payload")
	}
	if s.now().Sub(st.CreatedAt) > s.ttl {
		return nil, social.E(social.KindStateNotFound, op, st.Platform, "state expired")
	}
	return &st, nil
}
