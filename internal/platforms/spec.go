package platforms

import "github.com/starlingpost/starlingpost/internal/domain/social"

// RefreshMode describe cómo renueva tokens una plataforma.
type RefreshMode int

const (
	RefreshNone RefreshMode = iota
	// RefreshGrant usa grant_type=refresh_token.
	RefreshGrant
	// RefreshAccessToken intercambia el propio access token (instagram long-lived).
	RefreshAccessToken
)

// TokenAuth cómo se autentica el cliente contra el token endpoint.
type TokenAuth int

const (
	// TokenAuthForm manda client_id y client_secret en el body.
	TokenAuthForm TokenAuth = iota
	// TokenAuthBasic usa Authorization: Basic.
	TokenAuthBasic
)

// Spec es la fila de configuración estática de una plataforma.
type Spec struct {
	Platform        social.Platform
	ClientIDEnv     string
	ClientSecretEnv string
	RedirectEnv     string

	AuthEndpoint  string
	TokenEndpoint string
	APIBase       string
	GraphBase     string

	Scopes          []string
	ScopeSeparator  string
	ClientIDParam   string
	ExtraAuthParams map[string]string
	PKCE            bool
	TokenAuth       TokenAuth
	Refresh         RefreshMode
	Implemented     bool
}

func envNames(p social.Platform) (string, string, string) {
	pre := p.EnvPrefix()
	return pre + "_CLIENT_ID", pre + "_CLIENT_SECRET", pre + "_REDIRECT_URI"
}

func withEnv(s Spec) Spec {
	s.ClientIDEnv, s.ClientSecretEnv, s.RedirectEnv = envNames(s.Platform)
	if s.ClientIDParam == "" {
		s.ClientIDParam = "client_id"
	}
	if s.ScopeSeparator == "" {
		s.ScopeSeparator = " "
	}
	return s
}

// Specs es la tabla única de configuración por plataforma.
var Specs = map[social.Platform]Spec{
	social.YouTube: withEnv(Spec{
		Platform:      social.YouTube,
		AuthEndpoint:  "https://accounts.google.com/o/oauth2/v2/auth",
		TokenEndpoint: "https://oauth2.googleapis.com/token",
		APIBase:       "https://www.googleapis.com",
		Scopes: []string{
			"https://www.googleapis.com/auth/youtube.upload",
			"https://www.googleapis.com/auth/youtube.readonly",
			"https://www.googleapis.com/auth/yt-analytics.readonly",
		},
		ExtraAuthParams: map[string]string{
			"access_type":            "offline",
			"prompt":                 "consent",
			"include_granted_scopes": "true",
		},
		Refresh:     RefreshGrant,
		Implemented: true,
	}),
	social.Instagram: withEnv(Spec{
		Platform:      social.Instagram,
		AuthEndpoint:  "https://www.instagram.com/oauth/authorize",
		TokenEndpoint: "https://api.instagram.com/oauth/access_token",
		APIBase:       "https://graph.instagram.com/v21.0",
		GraphBase:     "https://graph.instagram.com",
		Scopes: []string{
			"instagram_business_basic",
			"instagram_business_manage_insights",
			"instagram_business_content_publish",
		},
		ScopeSeparator: ",",
		Refresh:        RefreshAccessToken,
		Implemented:    true,
	}),
	social.Twitter: withEnv(Spec{
		Platform:      social.Twitter,
		AuthEndpoint:  "https://twitter.com/i/oauth2/authorize",
		TokenEndpoint: "https://api.twitter.com/2/oauth2/token",
		APIBase:       "https://api.twitter.com",
		Scopes:        []string{"tweet.read", "users.read", "offline.access"},
		PKCE:          true,
		TokenAuth:     TokenAuthBasic,
		Refresh:       RefreshGrant,
		Implemented:   true,
	}),
	social.TikTok: withEnv(Spec{
		Platform:       social.TikTok,
		AuthEndpoint:   "https://www.tiktok.com/v2/auth/authorize/",
		TokenEndpoint:  "https://open.tiktokapis.com/v2/oauth/token/",
		Scopes:         []string{"user.info.basic", "video.list"},
		ScopeSeparator: ",",
		ClientIDParam:  "client_key",
		Refresh:        RefreshGrant,
	}),
	social.Pinterest: withEnv(Spec{
		Platform:       social.Pinterest,
		AuthEndpoint:   "https://www.pinterest.com/oauth/",
		TokenEndpoint:  "https://api.pinterest.com/v5/oauth/token",
		Scopes:         []string{"pins:read", "user_accounts:read"},
		ScopeSeparator: ",",
		TokenAuth:      TokenAuthBasic,
		Refresh:        RefreshGrant,
	}),
	social.Facebook: withEnv(Spec{
		Platform:       social.Facebook,
		AuthEndpoint:   "https://www.facebook.com/v21.0/dialog/oauth",
		TokenEndpoint:  "https://graph.facebook.com/v21.0/oauth/access_token",
		Scopes:         []string{"pages_show_list", "read_insights"},
		ScopeSeparator: ",",
		Refresh:        RefreshNone,
	}),
}

// SpecFor retorna la fila de p aplicando overrides de endpoints.
func SpecFor(p social.Platform, opts Options) (Spec, bool) {
	s, ok := Specs[p]
	if !ok {
		return Spec{}, false
	}
	if opts.AuthEndpoint != "" {
		s.AuthEndpoint = opts.AuthEndpoint
	}
	if opts.TokenEndpoint != "" {
		s.TokenEndpoint = opts.TokenEndpoint
	}
	if opts.APIBase != "" {
		s.APIBase = opts.APIBase
	}
	if opts.GraphBase != "" {
		s.GraphBase = opts.GraphBase
	}
	return s, true
}
