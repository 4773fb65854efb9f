package platforms

import (
	"context"

	"github.com/starlingpost/starlingpost/internal/domain/social"
)

// Unimplemented es el adapter de plataformas aún no integradas.
// Toda operación falla con NotImplemented sin efectos.
type Unimplemented struct {
	P social.Platform
}

func (u Unimplemented) Platform() social.Platform { return u.P }
func (u Unimplemented) Implemented() bool         { return false }

func (u Unimplemented) Validate() error { return social.NotImplemented("Validate", u.P) }

func (u Unimplemented) BuildAuthURL(AuthRequest) (string, error) {
	return "", social.NotImplemented("BuildAuthURL", u.P)
}

func (u Unimplemented) ExchangeCode(context.Context, ExchangeRequest) (*social.TokenSet, error) {
	return nil, social.NotImplemented("ExchangeCode", u.P)
}

func (u Unimplemented) RefreshToken(context.Context, social.TokenSet) (*social.TokenSet, error) {
	return nil, social.NotImplemented("RefreshToken", u.P)
}

func (u Unimplemented) FetchMetrics(context.Context, *social.LinkedAccount, string) (*social.PostMetrics, error) {
	return nil, social.NotImplemented("FetchMetrics", u.P)
}

func (u Unimplemented) Identify(context.Context, *social.TokenSet) (*AccountInfo, error) {
	return nil, social.NotImplemented("Identify", u.P)
}
