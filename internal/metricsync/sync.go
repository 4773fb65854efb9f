// Package metricsync trae métricas de posts desde las plataformas usando las
// credenciales guardadas, con un único refresh de token ante InvalidGrant.
package metricsync

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/starlingpost/starlingpost/internal/domain/social"
	"github.com/starlingpost/starlingpost/internal/metrics"
	"github.com/starlingpost/starlingpost/internal/observability/logger"
	"github.com/starlingpost/starlingpost/internal/platforms"
	"github.com/starlingpost/starlingpost/internal/store"
)

const (
	DefaultFetchTimeout   = 5 * time.Second
	DefaultRefreshTimeout = 10 * time.Second
	DefaultConcurrency    = 4
)

// AdapterSource retorna el adapter de una plataforma (platforms.Registry).
type AdapterSource interface {
	Get(p social.Platform) (platforms.Adapter, error)
}

// Notifier avisa al usuario que tiene que re-vincular la cuenta.
type Notifier interface {
	NotifyRelink(ctx context.Context, acc social.LinkedAccount) error
}

// Request identifica un post de una cuenta vinculada.
type Request struct {
	UserID    string          `json:"user_id"`
	Platform  social.Platform `json:"platform"`
	AccountID string          `json:"account_id"`
	PostID    string          `json:"post_id"`
}

func (r Request) key() social.AccountKey {
	return social.AccountKey{UserID: r.UserID, Platform: r.Platform, AccountID: r.AccountID}
}

// Result resultado por item de SyncBatch.
type Result struct {
	Request Request
	Record  *social.PostMetricsRecord
	Err     error
}

// Service es Metrics Sync.
type Service interface {
	SyncMetrics(ctx context.Context, acc *social.LinkedAccount, postID string) (*social.PostMetricsRecord, error)
	SyncPost(ctx context.Context, req Request) (*social.PostMetricsRecord, error)
	SyncBatch(ctx context.Context, reqs []Request, concurrency int) []Result
}

// Deps dependencias del servicio.
type Deps struct {
	Adapters       AdapterSource
	Accounts       store.AccountRepository
	Metrics        store.MetricsRepository
	Notifier       Notifier
	FetchTimeout   time.Duration
	RefreshTimeout time.Duration
	Now            func() time.Time
}

type service struct {
	adapters       AdapterSource
	accounts       store.AccountRepository
	metrics        store.MetricsRepository
	notifier       Notifier
	fetchTimeout   time.Duration
	refreshTimeout time.Duration
	now            func() time.Time
	refreshes      singleflight.Group
}

// NewService crea el servicio.
func NewService(d Deps) Service {
	s := &service{
		adapters:       d.Adapters,
		accounts:       d.Accounts,
		metrics:        d.Metrics,
		notifier:       d.Notifier,
		fetchTimeout:   d.FetchTimeout,
		refreshTimeout: d.RefreshTimeout,
		now:            d.Now,
	}
	if s.fetchTimeout <= 0 {
		s.fetchTimeout = DefaultFetchTimeout
	}
	if s.refreshTimeout <= 0 {
		s.refreshTimeout = DefaultRefreshTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *service) SyncPost(ctx context.Context, req Request) (*social.PostMetricsRecord, error) {
	const op = "SyncPost"
	if req.PostID == "" {
		return nil, social.E(social.KindNotFound, op, req.Platform, "empty post id")
	}
	acc, err := s.accounts.Get(ctx, req.key())
	if err != nil {
		if store.IsNotFound(err) {
			return nil, social.E(social.KindNotFound, op, req.Platform, "linked account not found")
		}
		return nil, fmt.Errorf("metricsync: load account: %w", err)
	}
	if acc.NeedsRelink {
		return nil, social.E(social.KindInvalidGrant, op, acc.Platform, "account needs relink")
	}
	return s.SyncMetrics(ctx, acc, req.PostID)
}

func (s *service) SyncMetrics(ctx context.Context, acc *social.LinkedAccount, postID string) (*social.PostMetricsRecord, error) {
	const op = "SyncMetrics"
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("metricsync"), logger.Op(op),
		logger.UserID(acc.UserID), logger.Platform(string(acc.Platform)), logger.AccountID(acc.AccountID),
		logger.PostID(postID))

	adapter, err := s.adapters.Get(acc.Platform)
	if err != nil {
		return nil, err
	}
	if !adapter.Implemented() {
		return nil, social.NotImplemented(op, acc.Platform)
	}

	m, err := s.fetch(ctx, adapter, acc, postID)
	if social.IsKind(err, social.KindInvalidGrant) {
		log.Info("token rejected, refreshing once")
		if rerr := s.refresh(ctx, adapter, acc); rerr != nil {
			switch social.KindOf(rerr) {
			case social.KindInvalidGrant, social.KindRefreshNotSupported:
				s.requireRelink(ctx, acc)
				return nil, s.done(acc.Platform, &social.Error{Kind: social.KindInvalidGrant, Op: op,
					Platform: acc.Platform, Detail: "refresh failed, account needs relink", Err: rerr})
			}
			log.Warn("token refresh failed", logger.String("kind", string(social.KindOf(rerr))))
			return nil, s.done(acc.Platform, rerr)
		}
		m, err = s.fetch(ctx, adapter, acc, postID)
		if social.IsKind(err, social.KindInvalidGrant) {
			s.requireRelink(ctx, acc)
			return nil, s.done(acc.Platform, err)
		}
	}

	switch {
	case err == nil:
	case social.IsKind(err, social.KindNotFound):
		if serr := s.metrics.MarkStale(ctx, acc.Key(), postID); serr != nil && !store.IsNotFound(serr) {
			log.Error("mark metrics stale failed", logger.Err(serr))
		}
		return nil, s.done(acc.Platform, err)
	default:
		if d, ok := social.RetryAfterOf(err); ok {
			log.Info("rate limited", logger.Duration(d))
		}
		return nil, s.done(acc.Platform, err)
	}

	rec := &social.PostMetricsRecord{
		UserID:    acc.UserID,
		Platform:  acc.Platform,
		AccountID: acc.AccountID,
		PostID:    postID,
		Metrics:   *m,
		FetchedAt: s.now().UTC(),
	}
	if err := s.metrics.PutMetrics(ctx, rec); err != nil {
		log.Error("persist metrics failed", logger.Err(err))
		return nil, s.done(acc.Platform, fmt.Errorf("metricsync: persist metrics: %w", err))
	}
	t := rec.FetchedAt
	acc.LastSyncedAt = &t
	log.Debug("metrics synced")
	return rec, s.done(acc.Platform, nil)
}

func (s *service) fetch(ctx context.Context, a platforms.Adapter, acc *social.LinkedAccount, postID string) (*social.PostMetrics, error) {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	m, err := a.FetchMetrics(ctx, acc, postID)
	if err != nil {
		if !social.Typed(err) {
			return nil, social.FromContext(ctx, "FetchMetrics", acc.Platform, err)
		}
		return nil, err
	}
	if m == nil {
		return nil, social.E(social.KindNotFound, "FetchMetrics", acc.Platform, "empty result")
	}
	return m, nil
}

// refresh renueva el token una sola vez por cuenta aunque haya syncs
// concurrentes, persiste el resultado y lo aplica a acc. El refresh compartido
// no depende del ctx del primer caller; cada caller deja de esperar con el suyo.
func (s *service) refresh(ctx context.Context, a platforms.Adapter, acc *social.LinkedAccount) error {
	const op = "RefreshToken"
	key := acc.Key()
	stale := acc.AccessToken
	ch := s.refreshes.DoChan(key.String(), func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
		defer cancel()

		// otra réplica o request pudo haber refrescado ya
		if cur, err := s.accounts.Get(rctx, key); err == nil && cur.AccessToken != stale && !cur.NeedsRelink {
			return cur.Tokens(), nil
		}

		ts, err := a.RefreshToken(rctx, acc.Tokens())
		if err != nil && !social.Typed(err) {
			err = social.FromContext(rctx, op, acc.Platform, err)
		}
		metrics.TokenRefreshes.WithLabelValues(string(acc.Platform), metrics.Outcome(string(social.KindOf(err)))).Inc()
		if err != nil {
			return nil, err
		}
		updated := *acc
		updated.ApplyTokens(*ts, s.now().UTC())
		if err := s.accounts.Put(rctx, &updated); err != nil {
			return nil, social.Wrap(social.KindNetwork, op, acc.Platform, fmt.Errorf("persist refreshed tokens: %w", err))
		}
		return updated.Tokens(), nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return social.FromContext(ctx, op, acc.Platform, ctx.Err())
	}
	if res.Err != nil {
		return res.Err
	}
	acc.ApplyTokens(res.Val.(social.TokenSet), s.now().UTC())
	return nil
}

func (s *service) requireRelink(ctx context.Context, acc *social.LinkedAccount) {
	log := logger.From(ctx).With(logger.Component("metricsync"), logger.Platform(string(acc.Platform)),
		logger.UserID(acc.UserID), logger.AccountID(acc.AccountID))

	acc.NeedsRelink = true
	if err := s.accounts.MarkNeedsRelink(ctx, acc.Key()); err != nil {
		log.Error("persist needsRelink failed", logger.Err(err))
	}
	metrics.RelinkRequired.WithLabelValues(string(acc.Platform)).Inc()
	log.Warn("account needs relink")

	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyRelink(ctx, *acc); err != nil {
		log.Warn("relink notice failed", logger.Err(err))
	}
}

func (s *service) done(p social.Platform, err error) error {
	outcome := metrics.Outcome(string(social.KindOf(err)))
	if err != nil && social.KindOf(err) == "" {
		outcome = "internal"
	}
	metrics.SyncResults.WithLabelValues(string(p), outcome).Inc()
	return err
}

func (s *service) SyncBatch(ctx context.Context, reqs []Request, concurrency int) []Result {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	out := make([]Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			rec, err := s.SyncPost(gctx, req)
			out[i] = Result{Request: req, Record: rec, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
