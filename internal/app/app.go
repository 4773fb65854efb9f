// Package app arma el runtime del servicio: store, cache, adapters, servicios
// de dominio y el handler HTTP, a partir de la configuración.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/starlingpost/starlingpost/internal/cache"
	"github.com/starlingpost/starlingpost/internal/config"
	"github.com/starlingpost/starlingpost/internal/domain/social"
	accountsctrl "github.com/starlingpost/starlingpost/internal/http/controllers/accounts"
	adminctrl "github.com/starlingpost/starlingpost/internal/http/controllers/admin"
	healthctrl "github.com/starlingpost/starlingpost/internal/http/controllers/health"
	linkctrl "github.com/starlingpost/starlingpost/internal/http/controllers/link"
	"github.com/starlingpost/starlingpost/internal/http/router"
	healthsvc "github.com/starlingpost/starlingpost/internal/http/services/health"
	"github.com/starlingpost/starlingpost/internal/identity"
	"github.com/starlingpost/starlingpost/internal/linking"
	"github.com/starlingpost/starlingpost/internal/metrics"
	"github.com/starlingpost/starlingpost/internal/metricsync"
	"github.com/starlingpost/starlingpost/internal/notify"
	"github.com/starlingpost/starlingpost/internal/oauthstate"
	"github.com/starlingpost/starlingpost/internal/observability/logger"
	"github.com/starlingpost/starlingpost/internal/platforms"
	"github.com/starlingpost/starlingpost/internal/rate"
	"github.com/starlingpost/starlingpost/internal/security/secretbox"
	"github.com/starlingpost/starlingpost/internal/store"
	_ "github.com/starlingpost/starlingpost/internal/store/drivers"
)

// tokenPurpose separa la clave de cifrado de tokens de otros usos de MasterKey.
const tokenPurpose = "linked-account-tokens"

// Runtime agrupa las dependencias vivas del proceso.
type Runtime struct {
	Config *config.Config

	Store    store.Store
	Accounts store.AccountRepository // cifrado (Sealed)
	Cache    cache.Client
	Registry *platforms.Registry
	States   oauthstate.Store

	Linking  linking.Service
	Sync     metricsync.Service
	Verifier *identity.Verifier
	Claims   *identity.ClaimsManager
	Setup    *identity.AdminSetup
	Limiter  rate.Limiter

	Handler http.Handler

	shutdownOnce sync.Once
	shutdownErr  error
}

var (
	initOnce sync.Once
	global   *Runtime
	initErr  error
)

// Init construye el runtime global una sola vez; llamadas siguientes
// devuelven el mismo resultado.
func Init(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	initOnce.Do(func() {
		global, initErr = New(ctx, cfg)
	})
	return global, initErr
}

// New construye un runtime independiente (tests, CLI embebido).
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	log := logger.From(ctx).With(logger.Component("app"), logger.Op("New"))
	rt := &Runtime{Config: cfg}

	st, err := store.Open(ctx, store.Config{
		Driver:   cfg.Store.Driver,
		DSN:      cfg.Store.DSN,
		MaxConns: int32(cfg.Store.MaxConns),
		Migrate:  cfg.Store.Migrate,
	})
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}
	rt.Store = st

	box, err := tokenBox(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if box == nil {
		log.Warn("MASTER_KEY not set, tokens stored without encryption")
	}
	rt.Accounts = store.NewSealed(st.Accounts(), box)

	// Un único cliente redis para state store y rate limiter.
	var rdb goredis.UniversalClient
	if cfg.Cache.Driver == "redis" {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Cache.Host, cfg.Cache.Port),
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			_ = st.Close()
			return nil, fmt.Errorf("app: redis ping: %w", err)
		}
		rt.Cache = cache.NewRedisFromClient(rdb, cfg.Cache.Prefix)
	} else {
		rt.Cache = cache.NewMemory(cfg.Cache.Prefix)
	}

	rt.Registry = platforms.NewDefaultRegistry(platformCreds(cfg))
	rt.States = oauthstate.New(rt.Cache, oauthstate.WithTTL(cfg.Linking.StateTTL))

	rt.Linking = linking.NewService(linking.Deps{
		Adapters:        rt.Registry,
		States:          rt.States,
		Accounts:        rt.Accounts,
		Attempts:        linking.NewAttempts(2*cfg.Linking.StateTTL, time.Now),
		ExchangeTimeout: cfg.Linking.ExchangeTimeout,
	})
	rt.Sync = metricsync.NewService(metricsync.Deps{
		Adapters:       rt.Registry,
		Accounts:       rt.Accounts,
		Metrics:        st.Metrics(),
		Notifier:       notifier(cfg),
		FetchTimeout:   cfg.Sync.FetchTimeout,
		RefreshTimeout: cfg.Sync.RefreshTimeout,
	})

	rt.Claims = identity.NewClaimsManager(st.Claims())
	rt.Setup = identity.NewAdminSetup(cfg.Admin.SetupSecret, rt.Claims)
	rt.Verifier, err = identity.NewVerifier(identity.VerifierConfig{
		HMACSecret:      cfg.Identity.JWTSecret,
		RSAPublicKeyPEM: cfg.Identity.JWTPublicKey,
		Issuer:          cfg.Identity.Issuer,
		Audience:        cfg.Identity.Audience,
	}, st.Claims())
	if err != nil {
		_ = rt.Shutdown(ctx)
		return nil, fmt.Errorf("app: identity verifier: %w", err)
	}

	if cfg.Rate.Enabled {
		if cfg.Rate.Driver == "redis" && rdb != nil {
			rt.Limiter = rate.NewRedisLimiter(rdb, cfg.Cache.Prefix+":rl", cfg.Rate.Requests, cfg.Rate.Window)
		} else {
			rt.Limiter = rate.NewLocalLimiter(cfg.Rate.Requests, cfg.Rate.Window, cfg.Rate.Burst)
		}
	}

	if err := registerMetrics(st); err != nil {
		log.Warn("metrics registration", logger.Err(err))
	}

	claims := rt.Claims
	rt.Handler = router.New(router.Deps{
		Health: healthctrl.NewHealthController(healthsvc.NewHealthService(healthsvc.Deps{
			StoreCheck: st.Ping,
			CacheCheck: rt.Cache.Ping,
			Version:    cfg.App.Version,
		})),
		Link:        linkctrl.NewControllers(rt.Linking, cfg.Linking.DashboardURL),
		Accounts:    accountsctrl.NewAccountsController(rt.Linking),
		Sync:        accountsctrl.NewSyncController(rt.Sync, st.Metrics(), cfg.Sync.Concurrency),
		Admin:       adminctrl.NewControllers(claims, rt.Setup),
		Verifier:    rt.Verifier,
		Limiter:     rt.Limiter,
		CORSOrigins: cfg.Server.CORSAllowedOrigins,
		Metrics:     metrics.Handler(),
	})

	log.Info("runtime ready",
		logger.String("store", st.Driver()),
		logger.String("cache", cfg.Cache.Driver),
		logger.Bool("rate_limit", rt.Limiter != nil),
		logger.Bool("admin_setup", rt.Setup.Enabled()),
	)
	return rt, nil
}

// Shutdown cierra store y cache (que cierra el cliente redis compartido) y
// hace flush del logger. Idempotente.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	rt.shutdownOnce.Do(func() {
		var errs []error
		if rt.Cache != nil {
			if err := rt.Cache.Close(); err != nil {
				errs = append(errs, fmt.Errorf("cache: %w", err))
			}
		}
		if rt.Store != nil {
			if err := rt.Store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("store: %w", err))
			}
		}
		_ = logger.Sync()
		rt.shutdownErr = errors.Join(errs...)
		if rt.shutdownErr != nil {
			logger.From(ctx).Warn("shutdown", logger.Err(rt.shutdownErr))
		}
	})
	return rt.shutdownErr
}

func tokenBox(cfg *config.Config) (*secretbox.Box, error) {
	if cfg.Security.MasterKey == "" {
		if cfg.IsProd() {
			return nil, errors.New("app: MASTER_KEY is required in prod")
		}
		return nil, nil
	}
	key, err := secretbox.ParseKey(cfg.Security.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("app: master key: %w", err)
	}
	return secretbox.New(key, tokenPurpose)
}

func platformCreds(cfg *config.Config) (map[social.Platform]platforms.Credentials, map[social.Platform]platforms.Options) {
	hc := &http.Client{Timeout: 30 * time.Second}
	creds := make(map[social.Platform]platforms.Credentials, len(social.AllPlatforms))
	opts := make(map[social.Platform]platforms.Options, len(social.AllPlatforms))
	for _, p := range social.AllPlatforms {
		pc := cfg.Platform(p)
		creds[p] = platforms.Credentials{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURI:  pc.RedirectURI,
		}
		opts[p] = platforms.Options{
			HTTPClient:    hc,
			RatePerSecond: pc.RatePerSecond,
			Burst:         pc.Burst,
		}
	}
	return creds, opts
}

func notifier(cfg *config.Config) metricsync.Notifier {
	if cfg.SMTP.Host == "" {
		return notify.Noop{}
	}
	sender := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		From:     cfg.SMTP.From,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		TLSMode:  cfg.SMTP.TLSMode,
	})
	return notify.NewRelinkNotifier(sender, cfg.Linking.DashboardURL)
}

type poolProvider interface {
	Pool() *pgxpool.Pool
}

func registerMetrics(st store.Store) error {
	reg := prometheus.DefaultRegisterer
	if err := metrics.Register(reg); err != nil {
		return err
	}
	if pp, ok := st.(poolProvider); ok {
		return metrics.RegisterPool(reg, pp.Pool)
	}
	return nil
}
