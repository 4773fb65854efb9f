package platforms

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/starlingpost/starlingpost/internal/domain/social"
)

// Twitter usa OAuth 2.0 con PKCE (S256) y la API v2.
type Twitter struct {
	*OAuth2
}

// NewTwitter es la Factory de twitter/x.
func NewTwitter(creds Credentials, opts Options) (Adapter, error) {
	spec, _ := SpecFor(social.Twitter, opts)
	return &Twitter{OAuth2: NewOAuth2(spec, creds, opts)}, nil
}

func (tw *Twitter) Platform() social.Platform { return social.Twitter }
func (tw *Twitter) Implemented() bool         { return true }

func (tw *Twitter) BuildAuthURL(req AuthRequest) (string, error) { return tw.AuthURL(req) }

func (tw *Twitter) ExchangeCode(ctx context.Context, req ExchangeRequest) (*social.TokenSet, error) {
	return tw.Exchange(ctx, req)
}

func (tw *Twitter) RefreshToken(ctx context.Context, existing social.TokenSet) (*social.TokenSet, error) {
	return tw.Refresh(ctx, existing)
}

type twUser struct {
	Data *struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"data"`
}

// Identify consulta /2/users/me.
func (tw *Twitter) Identify(ctx context.Context, tokens *social.TokenSet) (*AccountInfo, error) {
	const op = "Identify"
	var out twUser
	if err := tw.t.getJSON(ctx, op, tw.spec.APIBase+"/2/users/me", tokens.AccessToken, &out, nil); err != nil {
		return nil, err
	}
	if out.Data == nil || out.Data.ID == "" {
		return nil, social.E(social.KindNotFound, op, social.Twitter, "user not returned")
	}
	return &AccountInfo{ID: out.Data.ID, Name: out.Data.Username}, nil
}

type twTweet struct {
	Data *struct {
		ID            string `json:"id"`
		PublicMetrics *struct {
			RetweetCount    *int64 `json:"retweet_count"`
			ReplyCount      *int64 `json:"reply_count"`
			LikeCount       *int64 `json:"like_count"`
			QuoteCount      *int64 `json:"quote_count"`
			BookmarkCount   *int64 `json:"bookmark_count"`
			ImpressionCount *int64 `json:"impression_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Errors []struct {
		Title string `json:"title"`
		Type  string `json:"type"`
	} `json:"errors"`
}

// FetchMetrics lee public_metrics del tweet.
// Shares = retweets + quotes (si alguno viene).
func (tw *Twitter) FetchMetrics(ctx context.Context, account *social.LinkedAccount, postID string) (*social.PostMetrics, error) {
	const op = "FetchMetrics"
	if strings.TrimSpace(postID) == "" {
		return nil, social.E(social.KindNotFound, op, social.Twitter, "empty tweet id")
	}
	var out twTweet
	u := tw.spec.APIBase + "/2/tweets/" + url.PathEscape(postID) + "?tweet.fields=public_metrics"
	if err := tw.t.getJSON(ctx, op, u, account.AccessToken, &out, tw.classify(op)); err != nil {
		return nil, err
	}
	// 200 con errors y sin data = tweet borrado o inexistente
	if out.Data == nil {
		return nil, social.E(social.KindNotFound, op, social.Twitter, "tweet not found")
	}
	m := &social.PostMetrics{}
	pm := out.Data.PublicMetrics
	if pm == nil {
		return m, nil
	}
	m.Impressions = pm.ImpressionCount
	m.Likes = pm.LikeCount
	m.Comments = pm.ReplyCount
	m.Saves = pm.BookmarkCount
	if pm.RetweetCount != nil || pm.QuoteCount != nil {
		var n int64
		if pm.RetweetCount != nil {
			n += *pm.RetweetCount
		}
		if pm.QuoteCount != nil {
			n += *pm.QuoteCount
		}
		m.Shares = &n
	}
	return m, nil
}

// classify: la API v2 devuelve 429 con x-rate-limit-reset; el mapeo genérico ya
// lo cubre. 400 con id inválido se trata como NotFound.
func (tw *Twitter) classify(op string) func(*response) *social.Error {
	return func(res *response) *social.Error {
		if res.status == http.StatusBadRequest && strings.Contains(string(res.body), "Invalid Request") {
			return social.E(social.KindNotFound, op, social.Twitter, "invalid tweet id")
		}
		return nil
	}
}
