// Package router arma el árbol de rutas chi del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	accountsctrl "github.com/starlingpost/starlingpost/internal/http/controllers/accounts"
	adminctrl "github.com/starlingpost/starlingpost/internal/http/controllers/admin"
	healthctrl "github.com/starlingpost/starlingpost/internal/http/controllers/health"
	linkctrl "github.com/starlingpost/starlingpost/internal/http/controllers/link"
	httperrors "github.com/starlingpost/starlingpost/internal/http/errors"
	mw "github.com/starlingpost/starlingpost/internal/http/middlewares"
	"github.com/starlingpost/starlingpost/internal/rate"
)

// Deps dependencias del router.
type Deps struct {
	Health   *healthctrl.HealthController
	Link     *linkctrl.Controllers
	Accounts *accountsctrl.AccountsController
	Sync     *accountsctrl.SyncController
	Admin    *adminctrl.Controllers

	Verifier mw.TokenVerifier
	// Limiter opcional; nil = sin rate limit.
	Limiter     rate.Limiter
	CORSOrigins []string
	// Metrics expone /metrics (promhttp). nil = no se monta.
	Metrics http.Handler
}

// New retorna el handler raíz.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithMetrics(),
		mw.WithSecurityHeaders(),
		mw.WithCORS(d.CORSOrigins),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	r.Get("/healthz", d.Health.Healthz)
	r.Get("/readyz", d.Health.Readyz)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	limit := mw.WithRateLimit(mw.RateLimitConfig{Limiter: d.Limiter})

	// Bootstrap del primer admin: secreto por header, sin bearer.
	r.With(limit, mw.WithNoStore()).Post("/admin/setup", d.Admin.Setup.Setup)

	r.Route("/v1", func(r chi.Router) {
		// El callback lo invoca el navegador desde la plataforma: no hay bearer.
		r.With(limit, mw.WithNoStore()).Get("/link/{platform}/callback", d.Link.Callback.Callback)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAuth(d.Verifier), limit)

			r.With(mw.WithNoStore()).Get("/link/{platform}/start", d.Link.Start.Start)

			r.Get("/accounts", d.Accounts.List)
			r.Delete("/accounts/{platform}/{accountId}", d.Accounts.Delete)
			r.Post("/accounts/{platform}/{accountId}/posts/{postId}/sync", d.Sync.Sync)
			r.Get("/accounts/{platform}/{accountId}/posts/{postId}/metrics", d.Sync.Get)
			r.Post("/sync", d.Sync.Batch)

			r.Group(func(r chi.Router) {
				r.Use(mw.RequireAdmin(), mw.WithNoStore())
				r.Post("/admin/claims", d.Admin.Claims.Set)
				r.Get("/admin/claims/{uid}", d.Admin.Claims.Get)
			})
		})
	})
	return r
}
