// Package identity verifica los tokens del identity provider externo y
// administra los claims (rol, admin) de cada usuario.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/starlingpost/starlingpost/internal/observability/logger"
	"github.com/starlingpost/starlingpost/internal/store"
)

var (
	ErrInvalidToken  = errors.New("identity: invalid token")
	ErrNotConfigured = errors.New("identity: verifier not configured")
)

// Principal es el usuario autenticado de un request.
type Principal struct {
	UserID  string
	Email   string
	Role    string
	IsAdmin bool
}

// VerifierConfig: HMACSecret (HS256) o RSAPublicKeyPEM (RS256). Si están los dos se aceptan ambos.
type VerifierConfig struct {
	HMACSecret      string
	RSAPublicKeyPEM string
	Issuer          string
	Audience        string
	Leeway          time.Duration
}

// Verifier valida bearer tokens del IdP.
type Verifier struct {
	cfg     VerifierConfig
	hmacKey []byte
	rsaKey  any
	methods []string
	claims  store.ClaimsRepository
	now     func() time.Time
}

// NewVerifier crea el verifier. claims puede ser nil (solo claims del token).
func NewVerifier(cfg VerifierConfig, claims store.ClaimsRepository) (*Verifier, error) {
	v := &Verifier{cfg: cfg, claims: claims, now: time.Now}
	if cfg.HMACSecret != "" {
		v.hmacKey = []byte(cfg.HMACSecret)
		v.methods = append(v.methods, jwtv5.SigningMethodHS256.Alg())
	}
	if strings.TrimSpace(cfg.RSAPublicKeyPEM) != "" {
		key, err := jwtv5.ParseRSAPublicKeyFromPEM([]byte(cfg.RSAPublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("identity: parse rsa public key: %w", err)
		}
		v.rsaKey = key
		v.methods = append(v.methods, jwtv5.SigningMethodRS256.Alg())
	}
	if len(v.methods) == 0 {
		return nil, ErrNotConfigured
	}
	if v.cfg.Leeway == 0 {
		v.cfg.Leeway = 30 * time.Second
	}
	return v, nil
}

func (v *Verifier) keyfunc(t *jwtv5.Token) (any, error) {
	switch t.Method.(type) {
	case *jwtv5.SigningMethodHMAC:
		if v.hmacKey != nil {
			return v.hmacKey, nil
		}
	case *jwtv5.SigningMethodRSA:
		if v.rsaKey != nil {
			return v.rsaKey, nil
		}
	}
	return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
}

// VerifyToken valida firma, exp/nbf, iss y aud y arma el Principal.
// IsAdmin: claim admin=true en el token, o claim guardado admin=true, o rol admin.
func (v *Verifier) VerifyToken(ctx context.Context, raw string) (*Principal, error) {
	opts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods(v.methods),
		jwtv5.WithLeeway(v.cfg.Leeway),
		jwtv5.WithTimeFunc(v.now),
		jwtv5.WithExpirationRequired(),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwtv5.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwtv5.WithAudience(v.cfg.Audience))
	}

	claims := jwtv5.MapClaims{}
	tok, err := jwtv5.ParseWithClaims(raw, claims, v.keyfunc, opts...)
	if err != nil || !tok.Valid {
		logger.From(ctx).Debug("bearer token rejected", logger.Component("identity"), logger.Err(err))
		return nil, ErrInvalidToken
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		// tokens de Firebase traen user_id además de sub
		sub, _ = claims["user_id"].(string)
	}
	if sub == "" {
		return nil, ErrInvalidToken
	}
	p := &Principal{UserID: sub}
	p.Email, _ = claims["email"].(string)
	p.Role, _ = claims["role"].(string)
	p.IsAdmin = truthy(claims["admin"]) || p.Role == RoleAdmin

	if v.claims != nil && !p.IsAdmin {
		stored, err := v.claims.GetClaims(ctx, sub)
		if err != nil {
			logger.From(ctx).Warn("load stored claims failed", logger.Component("identity"), logger.UserID(sub), logger.Err(err))
		} else {
			if r, ok := stored[ClaimRole].(string); ok && r != "" {
				p.Role = r
			}
			p.IsAdmin = truthy(stored[ClaimAdmin]) || p.Role == RoleAdmin
		}
	}
	return p, nil
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	}
	return false
}
