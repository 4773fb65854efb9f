package middlewares

import (
	"context"

	"github.com/starlingpost/starlingpost/internal/identity"
)

type ctxKey string

const (
	ctxPrincipalKey ctxKey = "principal"
	ctxRequestIDKey ctxKey = "request_id"
)

// WithPrincipal inyecta el usuario autenticado en el contexto.
func WithPrincipal(ctx context.Context, p *identity.Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey, p)
}

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetPrincipal retorna nil si el request no pasó por RequireAuth.
func GetPrincipal(ctx context.Context) *identity.Principal {
	p, _ := ctx.Value(ctxPrincipalKey).(*identity.Principal)
	return p
}

// GetUserID atajo sobre GetPrincipal.
func GetUserID(ctx context.Context) string {
	if p := GetPrincipal(ctx); p != nil {
		return p.UserID
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxRequestIDKey).(string)
	return s
}
