package social

import (
	"fmt"
	"sort"
	"time"
)

// TokenSet es el resultado de un code exchange o refresh.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    *time.Time // nil = no expira
	Scopes       []string
}

// Expired reporta si el access token ya no es válido en now (con margen skew).
func (t TokenSet) Expired(now time.Time, skew time.Duration) bool {
	if t.ExpiresAt == nil {
		return false
	}
	return !now.Add(skew).Before(*t.ExpiresAt)
}

// LinkedAccount vincula un usuario de StarlingPost con una cuenta de plataforma.
// Clave única: (UserID, Platform, AccountID).
type LinkedAccount struct {
	UserID       string
	Platform     Platform
	AccountID    string
	AccountName  string
	ContactEmail string

	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	Scopes       []string

	NeedsRelink  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastSyncedAt *time.Time
}

// Key retorna la clave única de la cuenta.
func (a *LinkedAccount) Key() AccountKey {
	return AccountKey{UserID: a.UserID, Platform: a.Platform, AccountID: a.AccountID}
}

// Tokens arma un TokenSet con las credenciales guardadas.
func (a *LinkedAccount) Tokens() TokenSet {
	return TokenSet{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		ExpiresAt:    a.ExpiresAt,
		Scopes:       append([]string(nil), a.Scopes...),
	}
}

// ApplyTokens reemplaza las credenciales tras un refresh. Si el proveedor no
// rota el refresh token se conserva el anterior.
func (a *LinkedAccount) ApplyTokens(ts TokenSet, now time.Time) {
	a.AccessToken = ts.AccessToken
	if ts.RefreshToken != "" {
		a.RefreshToken = ts.RefreshToken
	}
	a.ExpiresAt = ts.ExpiresAt
	if len(ts.Scopes) > 0 {
		a.Scopes = NormalizeScopes(ts.Scopes)
	}
	a.NeedsRelink = false
	a.UpdatedAt = now
}

// String nunca incluye tokens.
func (a LinkedAccount) String() string {
	return fmt.Sprintf("LinkedAccount{user=%s platform=%s account=%s needsRelink=%t}",
		a.UserID, a.Platform, a.AccountID, a.NeedsRelink)
}

// View es la representación pública (sin tokens).
func (a *LinkedAccount) View() AccountView {
	return AccountView{
		Platform:     a.Platform,
		AccountID:    a.AccountID,
		AccountName:  a.AccountName,
		Scopes:       append([]string(nil), a.Scopes...),
		ExpiresAt:    a.ExpiresAt,
		NeedsRelink:  a.NeedsRelink,
		LinkedAt:     a.CreatedAt,
		LastSyncedAt: a.LastSyncedAt,
	}
}

// AccountView es lo único que sale hacia el cliente.
type AccountView struct {
	Platform     Platform   `json:"platform"`
	AccountID    string     `json:"account_id"`
	AccountName  string     `json:"account_name,omitempty"`
	Scopes       []string   `json:"scopes"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	NeedsRelink  bool       `json:"needs_relink"`
	LinkedAt     time.Time  `json:"linked_at"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// AccountKey identifica una cuenta vinculada.
type AccountKey struct {
	UserID    string
	Platform  Platform
	AccountID string
}

func (k AccountKey) String() string {
	return k.UserID + "/" + string(k.Platform) + "/" + k.AccountID
}

// OAuthState es el valor efímero de un intento de vinculación.
// Se consume una sola vez y expira tras el TTL del store.
type OAuthState struct {
	State        string    `json:"state"`
	UserID       string    `json:"user_id"`
	Platform     Platform  `json:"platform"`
	CreatedAt    time.Time `json:"created_at"`
	CodeVerifier string    `json:"code_verifier,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
}

// PostMetrics: nil significa "no reportado por la plataforma".
type PostMetrics struct {
	Reach       *int64 `json:"reach,omitempty"`
	Impressions *int64 `json:"impressions,omitempty"`
	Views       *int64 `json:"views,omitempty"`
	Likes       *int64 `json:"likes,omitempty"`
	Comments    *int64 `json:"comments,omitempty"`
	Saves       *int64 `json:"saves,omitempty"`
	Shares      *int64 `json:"shares,omitempty"`
}

// Empty reporta si la plataforma no devolvió ningún contador.
func (m PostMetrics) Empty() bool {
	return m.Reach == nil && m.Impressions == nil && m.Views == nil &&
		m.Likes == nil && m.Comments == nil && m.Saves == nil && m.Shares == nil
}

// Int64 devuelve un puntero a v; helper para adapters y tests.
func Int64(v int64) *int64 { return &v }

// PostMetricsRecord es lo que persiste Metrics Sync.
type PostMetricsRecord struct {
	UserID    string      `json:"-"`
	Platform  Platform    `json:"platform"`
	AccountID string      `json:"account_id"`
	PostID    string      `json:"post_id"`
	Metrics   PostMetrics `json:"metrics"`
	FetchedAt time.Time   `json:"fetched_at"`
	Stale     bool        `json:"stale"`
}

// NormalizeScopes deduplica y ordena.
func NormalizeScopes(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
