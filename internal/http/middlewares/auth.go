package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/starlingpost/starlingpost/internal/http/errors"
	"github.com/starlingpost/starlingpost/internal/identity"
	"github.com/starlingpost/starlingpost/internal/observability/logger"
)

// TokenVerifier valida el bearer token del IdP (identity.Verifier).
type TokenVerifier interface {
	VerifyToken(ctx context.Context, raw string) (*identity.Principal, error)
}

func bearer(r *http.Request) string {
	ah := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(ah) < 7 || !strings.EqualFold(ah[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(ah[7:])
}

// RequireAuth valida Authorization: Bearer <JWT> y guarda el Principal en el
// contexto. Responde 401 si falta o es inválido.
func RequireAuth(v TokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearer(r)
			if raw == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token", error_description="missing bearer token"`)
				errors.WriteError(w, errors.ErrTokenMissing)
				return
			}
			p, err := v.VerifyToken(r.Context(), raw)
			if err != nil {
				logger.From(r.Context()).Debug("bearer rejected",
					logger.Layer("middleware"), logger.Component("auth"), logger.Err(err))
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
				errors.WriteError(w, errors.ErrTokenInvalid)
				return
			}

			ctx := WithPrincipal(r.Context(), p)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.UserID(p.UserID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin exige un Principal admin. Usar después de RequireAuth.
func RequireAdmin() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipal(r.Context())
			if p == nil {
				errors.WriteError(w, errors.ErrUnauthorized)
				return
			}
			if !p.IsAdmin {
				errors.WriteError(w, errors.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
