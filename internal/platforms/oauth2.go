package platforms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starlingpost/starlingpost/internal/domain/social"
	tokens "github.com/starlingpost/starlingpost/internal/security/token"
)

// OAuth2 es el motor compartido de authorization-code + refresh, parametrizado
// por la fila Spec de cada plataforma.
type OAuth2 struct {
	spec  Spec
	creds Credentials
	t     *transport
}

// NewOAuth2 crea el motor para spec con las credenciales dadas.
func NewOAuth2(spec Spec, creds Credentials, opts Options) *OAuth2 {
	return &OAuth2{spec: spec, creds: creds, t: newTransport(spec.Platform, opts)}
}

// Spec retorna la fila efectiva (con overrides).
func (o *OAuth2) Spec() Spec { return o.spec }

// Validate verifica que estén todas las credenciales.
func (o *OAuth2) Validate() error {
	var missing []string
	if strings.TrimSpace(o.creds.ClientID) == "" {
		missing = append(missing, o.spec.ClientIDEnv)
	}
	if strings.TrimSpace(o.creds.ClientSecret) == "" {
		missing = append(missing, o.spec.ClientSecretEnv)
	}
	if strings.TrimSpace(o.creds.RedirectURI) == "" {
		missing = append(missing, o.spec.RedirectEnv)
	}
	if len(missing) > 0 {
		return social.E(social.KindConfiguration, "Validate", o.spec.Platform, "missing "+strings.Join(missing, ", "))
	}
	return nil
}

// AuthURL arma la URL de autorización.
func (o *OAuth2) AuthURL(req AuthRequest) (string, error) {
	const op = "BuildAuthURL"
	if err := o.Validate(); err != nil {
		return "", err
	}
	if req.State == "" {
		return "", social.E(social.KindConfiguration, op, o.spec.Platform, "empty state")
	}
	u, err := url.Parse(o.spec.AuthEndpoint)
	if err != nil {
		return "", social.E(social.KindConfiguration, op, o.spec.Platform, "invalid auth endpoint")
	}
	q := u.Query()
	for k, v := range o.spec.ExtraAuthParams {
		q.Set(k, v)
	}
	q.Set(o.spec.ClientIDParam, o.creds.ClientID)
	q.Set("redirect_uri", o.creds.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", strings.Join(o.spec.Scopes, o.spec.ScopeSeparator))
	q.Set("state", req.State)
	if o.spec.PKCE {
		if req.CodeVerifier == "" {
			return "", social.E(social.KindConfiguration, op, o.spec.Platform, "missing PKCE verifier")
		}
		q.Set("code_challenge", CodeChallengeS256(req.CodeVerifier))
		q.Set("code_challenge_method", "S256")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CodeChallengeS256 = BASE64URL(SHA256(verifier)) sin padding (RFC 7636).
func CodeChallengeS256(verifier string) string { return tokens.S256(verifier) }

// tokenResponse cubre Google, Twitter, Instagram y Graph.
type tokenResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    json.Number     `json:"expires_in"`
	Scope        string          `json:"scope"`
	UserID       json.RawMessage `json:"user_id"`
	Permissions  json.RawMessage `json:"permissions"`
}

func (tr tokenResponse) toSet(now time.Time, sep string) *social.TokenSet {
	ts := &social.TokenSet{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
	}
	if secs, err := tr.ExpiresIn.Int64(); err == nil && secs > 0 {
		exp := now.Add(time.Duration(secs) * time.Second)
		ts.ExpiresAt = &exp
	}
	if tr.Scope != "" {
		if sep == "," {
			ts.Scopes = social.NormalizeScopes(strings.Split(tr.Scope, ","))
		} else {
			ts.Scopes = social.NormalizeScopes(strings.Fields(tr.Scope))
		}
	}
	return ts
}

// Exchange canjea el code (grant_type=authorization_code).
func (o *OAuth2) Exchange(ctx context.Context, req ExchangeRequest) (*social.TokenSet, error) {
	tr, err := o.exchangeRaw(ctx, req)
	if err != nil {
		return nil, err
	}
	return o.finish(tr, nil), nil
}

func (o *OAuth2) exchangeRaw(ctx context.Context, req ExchangeRequest) (*tokenResponse, error) {
	const op = "ExchangeCode"
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if req.Code == "" {
		return nil, social.E(social.KindExchangeFailed, op, o.spec.Platform, "empty authorization code")
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", req.Code)
	form.Set("redirect_uri", o.creds.RedirectURI)
	if o.spec.PKCE {
		if req.CodeVerifier == "" {
			return nil, social.E(social.KindExchangeFailed, op, o.spec.Platform, "missing PKCE verifier")
		}
		form.Set("code_verifier", req.CodeVerifier)
	}
	return o.postToken(ctx, op, form)
}

// Refresh usa grant_type=refresh_token. Sin refresh token no hay llamada de red.
func (o *OAuth2) Refresh(ctx context.Context, existing social.TokenSet) (*social.TokenSet, error) {
	const op = "RefreshToken"
	if o.spec.Refresh != RefreshGrant || existing.RefreshToken == "" {
		return nil, social.E(social.KindRefreshNotSupported, op, o.spec.Platform, "no refresh token available")
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", existing.RefreshToken)
	tr, err := o.postToken(ctx, op, form)
	if err != nil {
		return nil, err
	}
	return o.finish(tr, &existing), nil
}

// finish convierte la respuesta. Si el proveedor no rota el refresh token o no
// devuelve scopes, se conservan los previos.
func (o *OAuth2) finish(tr *tokenResponse, prev *social.TokenSet) *social.TokenSet {
	ts := tr.toSet(o.t.now(), o.spec.ScopeSeparator)
	if len(ts.Scopes) == 0 {
		if prev != nil && len(prev.Scopes) > 0 {
			ts.Scopes = append([]string(nil), prev.Scopes...)
		} else {
			ts.Scopes = social.NormalizeScopes(o.spec.Scopes)
		}
	}
	if prev != nil && ts.RefreshToken == "" {
		ts.RefreshToken = prev.RefreshToken
	}
	return ts
}

func (o *OAuth2) postToken(ctx context.Context, op string, form url.Values) (*tokenResponse, error) {
	if o.spec.TokenAuth == TokenAuthForm {
		form.Set("client_id", o.creds.ClientID)
		form.Set("client_secret", o.creds.ClientSecret)
	} else {
		form.Set("client_id", o.creds.ClientID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.spec.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, social.E(social.KindConfiguration, op, o.spec.Platform, "invalid token endpoint")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if o.spec.TokenAuth == TokenAuthBasic {
		req.SetBasicAuth(url.QueryEscape(o.creds.ClientID), url.QueryEscape(o.creds.ClientSecret))
	}
	res, err := o.t.do(ctx, op, req)
	if err != nil {
		return nil, err
	}
	return o.decodeToken(op, res)
}

func (o *OAuth2) decodeToken(op string, res *response) (*tokenResponse, error) {
	if res.status < 200 || res.status > 299 {
		pe := parseProviderError(res.body)
		if op == "RefreshToken" {
			return nil, o.refreshFailure(op, pe, res)
		}
		return nil, social.E(social.KindExchangeFailed, op, o.spec.Platform, pe.sanitized(res.status))
	}
	var tr tokenResponse
	dec := json.NewDecoder(strings.NewReader(string(res.body)))
	dec.UseNumber()
	if err := dec.Decode(&tr); err != nil {
		return nil, social.E(social.KindExchangeFailed, op, o.spec.Platform, "malformed token response")
	}
	if tr.AccessToken == "" {
		pe := parseProviderError(res.body)
		return nil, social.E(social.KindExchangeFailed, op, o.spec.Platform, "no access_token in response: "+pe.sanitized(res.status))
	}
	return &tr, nil
}

// refreshFailure clasifica un non-2xx del refresh. Solo invalid_grant exige
// re-vincular; un client mal configurado es problema nuestro, no del usuario.
func (o *OAuth2) refreshFailure(op string, pe providerError, res *response) *social.Error {
	p := o.spec.Platform
	switch {
	case res.status == http.StatusTooManyRequests:
		return social.RateLimited(op, p, o.t.retryAfter(res.header))
	case res.status >= 500:
		return social.E(social.KindNetwork, op, p, pe.sanitized(res.status))
	}
	switch pe.Code {
	case "invalid_grant":
		return social.E(social.KindInvalidGrant, op, p, pe.sanitized(res.status))
	case "invalid_client", "unauthorized_client":
		return social.E(social.KindConfiguration, op, p, pe.sanitized(res.status))
	}
	return social.E(social.KindExchangeFailed, op, p, pe.sanitized(res.status))
}
