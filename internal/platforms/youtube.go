package platforms

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/starlingpost/starlingpost/internal/domain/social"
)

// YouTube usa Google OAuth2 (offline access) y YouTube Data API v3.
type YouTube struct {
	*OAuth2
}

// NewYouTube es la Factory de youtube.
func NewYouTube(creds Credentials, opts Options) (Adapter, error) {
	spec, _ := SpecFor(social.YouTube, opts)
	return &YouTube{OAuth2: NewOAuth2(spec, creds, opts)}, nil
}

func (y *YouTube) Platform() social.Platform { return social.YouTube }
func (y *YouTube) Implemented() bool         { return true }

func (y *YouTube) BuildAuthURL(req AuthRequest) (string, error) { return y.AuthURL(req) }

func (y *YouTube) ExchangeCode(ctx context.Context, req ExchangeRequest) (*social.TokenSet, error) {
	return y.Exchange(ctx, req)
}

func (y *YouTube) RefreshToken(ctx context.Context, existing social.TokenSet) (*social.TokenSet, error) {
	return y.Refresh(ctx, existing)
}

type ytChannels struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title     string `json:"title"`
			CustomURL string `json:"customUrl"`
		} `json:"snippet"`
	} `json:"items"`
}

// Identify retorna el canal del usuario autenticado.
func (y *YouTube) Identify(ctx context.Context, tokens *social.TokenSet) (*AccountInfo, error) {
	const op = "Identify"
	var out ytChannels
	u := y.spec.APIBase + "/youtube/v3/channels?part=snippet&mine=true"
	if err := y.t.getJSON(ctx, op, u, tokens.AccessToken, &out, y.classify(op)); err != nil {
		return nil, err
	}
	if len(out.Items) == 0 || out.Items[0].ID == "" {
		return nil, social.E(social.KindNotFound, op, social.YouTube, "no channel for this google account")
	}
	it := out.Items[0]
	name := it.Snippet.CustomURL
	if name == "" {
		name = it.Snippet.Title
	}
	return &AccountInfo{ID: it.ID, Name: name}, nil
}

type ytVideos struct {
	Items []struct {
		Statistics struct {
			ViewCount     *string `json:"viewCount"`
			LikeCount     *string `json:"likeCount"`
			CommentCount  *string `json:"commentCount"`
			FavoriteCount *string `json:"favoriteCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// FetchMetrics lee statistics del video. YouTube no expone reach/impressions
// en la Data API; esos campos quedan nil.
func (y *YouTube) FetchMetrics(ctx context.Context, account *social.LinkedAccount, postID string) (*social.PostMetrics, error) {
	const op = "FetchMetrics"
	if strings.TrimSpace(postID) == "" {
		return nil, social.E(social.KindNotFound, op, social.YouTube, "empty video id")
	}
	var out ytVideos
	u := y.spec.APIBase + "/youtube/v3/videos?part=statistics&id=" + url.QueryEscape(postID)
	if err := y.t.getJSON(ctx, op, u, account.AccessToken, &out, y.classify(op)); err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, social.E(social.KindNotFound, op, social.YouTube, "video not found")
	}
	st := out.Items[0].Statistics
	return &social.PostMetrics{
		Views:    parseCount(st.ViewCount),
		Likes:    parseCount(st.LikeCount),
		Comments: parseCount(st.CommentCount),
		Saves:    parseCount(st.FavoriteCount),
	}, nil
}

// classify detecta cuota agotada (403 quotaExceeded / rateLimitExceeded).
func (y *YouTube) classify(op string) func(*response) *social.Error {
	return func(res *response) *social.Error {
		if res.status != http.StatusForbidden && res.status != http.StatusTooManyRequests {
			return nil
		}
		body := string(res.body)
		if strings.Contains(body, "quotaExceeded") || strings.Contains(body, "dailyLimitExceeded") {
			return social.RateLimited(op, social.YouTube, untilPacificMidnight(y.t.now()))
		}
		if strings.Contains(body, "rateLimitExceeded") || strings.Contains(body, "userRateLimitExceeded") {
			return social.RateLimited(op, social.YouTube, y.t.retryAfter(res.header))
		}
		return nil
	}
}

// untilPacificMidnight: la cuota diaria de YouTube se resetea a medianoche hora del Pacífico.
func untilPacificMidnight(now time.Time) time.Duration {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		return time.Hour
	}
	t := now.In(loc)
	next := time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
	return next.Sub(t).Round(time.Second)
}

func parseCount(s *string) *int64 {
	if s == nil {
		return nil
	}
	n, err := strconv.ParseInt(*s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
