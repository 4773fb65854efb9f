// Package platforms implementa los adapters OAuth/API de cada red social.
//
// Todas las plataformas exponen la misma interfaz. Las que todavía no están
// integradas (tiktok, pinterest, facebook) devuelven NotImplemented en cada
// operación, sin tocar la red.
package platforms

import (
	"context"
	"net/http"
	"time"

	"github.com/starlingpost/starlingpost/internal/domain/social"
)

// Adapter es la estrategia por plataforma.
type Adapter interface {
	Platform() social.Platform

	// Implemented es false para plataformas sin integrar.
	Implemented() bool

	// Validate verifica client id/secret/redirect. Error de kind ConfigurationError.
	Validate() error

	// BuildAuthURL arma la URL de autorización con exactamente un parámetro state.
	BuildAuthURL(req AuthRequest) (string, error)

	// ExchangeCode canjea el code del callback por tokens.
	ExchangeCode(ctx context.Context, req ExchangeRequest) (*social.TokenSet, error)

	// RefreshToken obtiene un access token nuevo. RefreshNotSupported sin llamar
	// a la red si la plataforma (o el TokenSet) no permite refresh.
	RefreshToken(ctx context.Context, existing social.TokenSet) (*social.TokenSet, error)

	// FetchMetrics trae los contadores de un post. Campos faltantes quedan nil.
	FetchMetrics(ctx context.Context, account *social.LinkedAccount, postID string) (*social.PostMetrics, error)

	// Identify resuelve la cuenta de plataforma dueña de los tokens.
	Identify(ctx context.Context, tokens *social.TokenSet) (*AccountInfo, error)
}

// AuthRequest datos del intento para armar la URL de autorización.
type AuthRequest struct {
	State        string
	CodeVerifier string // PKCE; obligatorio si la plataforma usa PKCE
}

// ExchangeRequest datos del callback.
type ExchangeRequest struct {
	Code         string
	CodeVerifier string
}

// AccountInfo identidad de la cuenta en la plataforma.
type AccountInfo struct {
	ID   string
	Name string
}

// Credentials de la app registrada en la plataforma.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Options ajustes de transporte. Los endpoints vacíos usan los del Spec.
type Options struct {
	HTTPClient *http.Client
	// RatePerSecond/Burst limitan las llamadas salientes del adapter. 0 = sin límite.
	RatePerSecond float64
	Burst         int

	AuthEndpoint  string
	TokenEndpoint string
	APIBase       string
	GraphBase     string // solo instagram (long-lived tokens)

	Now func() time.Time
}
