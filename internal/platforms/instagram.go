package platforms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/starlingpost/starlingpost/internal/domain/social"
)

// Instagram usa Instagram Login (Business) y Graph API.
// El code se canjea por un token corto que se cambia en el momento por uno
// long-lived (60 días). Ese token se renueva a sí mismo con ig_refresh_token.
type Instagram struct {
	*OAuth2
}

// NewInstagram es la Factory de instagram.
func NewInstagram(creds Credentials, opts Options) (Adapter, error) {
	spec, _ := SpecFor(social.Instagram, opts)
	return &Instagram{OAuth2: NewOAuth2(spec, creds, opts)}, nil
}

func (ig *Instagram) Platform() social.Platform { return social.Instagram }
func (ig *Instagram) Implemented() bool         { return true }

func (ig *Instagram) BuildAuthURL(req AuthRequest) (string, error) { return ig.AuthURL(req) }

// ExchangeCode canjea el code y obtiene el token long-lived.
func (ig *Instagram) ExchangeCode(ctx context.Context, req ExchangeRequest) (*social.TokenSet, error) {
	const op = "ExchangeCode"
	short, err := ig.exchangeRaw(ctx, req)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("grant_type", "ig_exchange_token")
	q.Set("client_secret", ig.creds.ClientSecret)
	long, err := ig.graphToken(ctx, op, "/access_token", q, short.AccessToken)
	if err != nil {
		return nil, err
	}
	ts := ig.finish(long, nil)
	if ts.TokenType == "" {
		ts.TokenType = "bearer"
	}
	if perms := parsePermissions(short.Permissions); len(perms) > 0 {
		ts.Scopes = perms
	}
	return ts, nil
}

// RefreshToken renueva el long-lived token con ig_refresh_token. Solo es posible
// mientras el token actual siga vigente; vencido = InvalidGrant (hay que re-vincular).
func (ig *Instagram) RefreshToken(ctx context.Context, existing social.TokenSet) (*social.TokenSet, error) {
	const op = "RefreshToken"
	if existing.AccessToken == "" {
		return nil, social.E(social.KindRefreshNotSupported, op, social.Instagram, "no long-lived token to refresh")
	}
	if existing.Expired(ig.t.now(), 0) {
		return nil, social.E(social.KindInvalidGrant, op, social.Instagram, "long-lived token already expired")
	}
	q := url.Values{}
	q.Set("grant_type", "ig_refresh_token")
	tr, err := ig.graphToken(ctx, op, "/refresh_access_token", q, existing.AccessToken)
	if err != nil {
		return nil, err
	}
	return ig.finish(tr, &existing), nil
}

// graphToken hace GET contra graph.instagram.com pasando el token actual como
// access_token (la API no acepta header en estos endpoints).
func (ig *Instagram) graphToken(ctx context.Context, op, path string, q url.Values, accessToken string) (*tokenResponse, error) {
	q.Set("access_token", accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ig.spec.GraphBase+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, social.E(social.KindConfiguration, op, social.Instagram, "invalid graph endpoint")
	}
	req.Header.Set("Accept", "application/json")
	res, err := ig.t.do(ctx, op, req)
	if err != nil {
		return nil, err
	}
	if e := ig.classify(op)(res); e != nil && op == "RefreshToken" {
		return nil, e
	}
	return ig.decodeToken(op, res)
}

type igMe struct {
	UserID   json.Number `json:"user_id"`
	ID       string      `json:"id"`
	Username string      `json:"username"`
}

// Identify consulta /me.
func (ig *Instagram) Identify(ctx context.Context, tokens *social.TokenSet) (*AccountInfo, error) {
	const op = "Identify"
	var out igMe
	if err := ig.t.getJSON(ctx, op, ig.spec.APIBase+"/me?fields=user_id,username", tokens.AccessToken, &out, ig.classify(op)); err != nil {
		return nil, err
	}
	id := out.UserID.String()
	if id == "" {
		id = out.ID
	}
	if id == "" {
		return nil, social.E(social.KindNotFound, op, social.Instagram, "account not returned")
	}
	return &AccountInfo{ID: id, Name: out.Username}, nil
}

type igInsights struct {
	Data []struct {
		Name   string `json:"name"`
		Values []struct {
			Value json.Number `json:"value"`
		} `json:"values"`
		TotalValue *struct {
			Value json.Number `json:"value"`
		} `json:"total_value"`
	} `json:"data"`
}

const igMetricList = "reach,views,likes,comments,saved,shares"

// FetchMetrics lee insights del media.
func (ig *Instagram) FetchMetrics(ctx context.Context, account *social.LinkedAccount, postID string) (*social.PostMetrics, error) {
	const op = "FetchMetrics"
	if strings.TrimSpace(postID) == "" {
		return nil, social.E(social.KindNotFound, op, social.Instagram, "empty media id")
	}
	var out igInsights
	u := ig.spec.APIBase + "/" + url.PathEscape(postID) + "/insights?metric=" + igMetricList
	if err := ig.t.getJSON(ctx, op, u, account.AccessToken, &out, ig.classify(op)); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, social.E(social.KindNotFound, op, social.Instagram, "no insights for media")
	}
	m := &social.PostMetrics{}
	for _, d := range out.Data {
		var raw json.Number
		switch {
		case d.TotalValue != nil:
			raw = d.TotalValue.Value
		case len(d.Values) > 0:
			raw = d.Values[0].Value
		default:
			continue
		}
		n, err := raw.Int64()
		if err != nil {
			continue
		}
		switch d.Name {
		case "reach":
			m.Reach = social.Int64(n)
		case "views", "impressions":
			m.Views = social.Int64(n)
		case "likes":
			m.Likes = social.Int64(n)
		case "comments":
			m.Comments = social.Int64(n)
		case "saved":
			m.Saves = social.Int64(n)
		case "shares":
			m.Shares = social.Int64(n)
		}
	}
	return m, nil
}

// classify traduce errores de Graph API ({"error":{"code":..}}).
// 190 = token inválido/expirado, 4/17/32/613 = rate limit, 100/33 = objeto inexistente.
func (ig *Instagram) classify(op string) func(*response) *social.Error {
	return func(res *response) *social.Error {
		if res.status >= 200 && res.status < 300 {
			return nil
		}
		pe := parseProviderError(res.body)
		switch pe.GraphCode {
		case 190, 102:
			return social.E(social.KindInvalidGrant, op, social.Instagram, pe.sanitized(res.status))
		case 4, 17, 32, 613:
			return social.RateLimited(op, social.Instagram, ig.t.retryAfter(res.header))
		case 100:
			if pe.GraphSub == 33 || op == "FetchMetrics" {
				return social.E(social.KindNotFound, op, social.Instagram, pe.sanitized(res.status))
			}
		}
		return nil
	}
}

func parsePermissions(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return social.NormalizeScopes(list)
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return social.NormalizeScopes(strings.Split(s, ","))
	}
	return nil
}
