// Package accounts contiene DTOs de cuentas vinculadas y métricas.
package accounts

import (
	"time"

	"github.com/starlingpost/starlingpost/internal/domain/social"
)

// ListResponse GET /v1/accounts. Nunca incluye tokens.
type ListResponse struct {
	Accounts []social.AccountView `json:"accounts"`
}

// MetricsResponse snapshot de métricas de un post. Los contadores que la
// plataforma no expone se omiten.
type MetricsResponse struct {
	Platform  string             `json:"platform"`
	AccountID string             `json:"account_id"`
	PostID    string             `json:"post_id"`
	Metrics   social.PostMetrics `json:"metrics"`
	FetchedAt time.Time          `json:"fetched_at"`
	Stale     bool               `json:"stale"`
}

// FromRecord arma la respuesta desde lo persistido.
func FromRecord(rec *social.PostMetricsRecord) *MetricsResponse {
	if rec == nil {
		return nil
	}
	return &MetricsResponse{
		Platform:  rec.Platform.String(),
		AccountID: rec.AccountID,
		PostID:    rec.PostID,
		Metrics:   rec.Metrics,
		FetchedAt: rec.FetchedAt,
		Stale:     rec.Stale,
	}
}

// BatchSyncRequest POST /v1/sync.
type BatchSyncRequest struct {
	Items []BatchSyncItem `json:"items"`
}

type BatchSyncItem struct {
	Platform  string `json:"platform"`
	AccountID string `json:"account_id"`
	PostID    string `json:"post_id"`
}

// BatchSyncResult un item del resultado.
type BatchSyncResult struct {
	Platform  string           `json:"platform"`
	AccountID string           `json:"account_id"`
	PostID    string           `json:"post_id"`
	Metrics   *MetricsResponse `json:"metrics,omitempty"`
	Error     string           `json:"error,omitempty"`
}

type BatchSyncResponse struct {
	Results []BatchSyncResult `json:"results"`
}
