package accounts

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starlingpost/starlingpost/internal/domain/social"
	dto "github.com/starlingpost/starlingpost/internal/http/dto/accounts"
	httperrors "github.com/starlingpost/starlingpost/internal/http/errors"
	"github.com/starlingpost/starlingpost/internal/http/helpers"
	mw "github.com/starlingpost/starlingpost/internal/http/middlewares"
	"github.com/starlingpost/starlingpost/internal/metricsync"
	"github.com/starlingpost/starlingpost/internal/observability/logger"
	"github.com/starlingpost/starlingpost/internal/store"
)

// maxBatchItems por request de POST /v1/sync.
const maxBatchItems = 50

// SyncController maneja la sincronización y lectura de métricas de posts.
type SyncController struct {
	service     metricsync.Service
	metrics     store.MetricsRepository
	concurrency int
}

func NewSyncController(service metricsync.Service, metrics store.MetricsRepository, concurrency int) *SyncController {
	return &SyncController{service: service, metrics: metrics, concurrency: concurrency}
}

func requestFrom(r *http.Request) (metricsync.Request, error) {
	p, err := social.ParsePlatform(chi.URLParam(r, "platform"))
	if err != nil {
		return metricsync.Request{}, err
	}
	return metricsync.Request{
		UserID:    mw.GetUserID(r.Context()),
		Platform:  p,
		AccountID: chi.URLParam(r, "accountId"),
		PostID:    chi.URLParam(r, "postId"),
	}, nil
}

// Sync maneja POST /v1/accounts/{platform}/{accountId}/posts/{postId}/sync
func (c *SyncController) Sync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("SyncController.Sync"))

	req, err := requestFrom(r)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	rec, err := c.service.SyncPost(ctx, req)
	if err != nil {
		log.Warn("sync failed", logger.Platform(req.Platform.String()), logger.PostID(req.PostID), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.FromRecord(rec))
}

// Get maneja GET /v1/accounts/{platform}/{accountId}/posts/{postId}/metrics
func (c *SyncController) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("SyncController.Get"))

	req, err := requestFrom(r)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	key := social.AccountKey{UserID: req.UserID, Platform: req.Platform, AccountID: req.AccountID}
	rec, err := c.metrics.GetMetrics(ctx, key, req.PostID)
	if err != nil {
		if store.IsNotFound(err) {
			httperrors.WriteError(w, httperrors.ErrNotFound.WithDetail("no metrics synced for this post"))
			return
		}
		log.Error("get metrics failed", logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.FromRecord(rec))
}

// Batch maneja POST /v1/sync. Cada item se resuelve por separado; un error en
// uno no corta el resto.
func (c *SyncController) Batch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("SyncController.Batch"))

	var body dto.BatchSyncRequest
	if !helpers.ReadJSON(w, r, &body) {
		return
	}
	if len(body.Items) == 0 {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("items"))
		return
	}
	if len(body.Items) > maxBatchItems {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("too many items"))
		return
	}

	uid := mw.GetUserID(ctx)
	reqs := make([]metricsync.Request, 0, len(body.Items))
	for _, it := range body.Items {
		p, err := social.ParsePlatform(it.Platform)
		if err != nil {
			httperrors.WriteError(w, err)
			return
		}
		if strings.TrimSpace(it.AccountID) == "" || strings.TrimSpace(it.PostID) == "" {
			httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("account_id, post_id"))
			return
		}
		reqs = append(reqs, metricsync.Request{UserID: uid, Platform: p, AccountID: it.AccountID, PostID: it.PostID})
	}

	results := c.service.SyncBatch(ctx, reqs, c.concurrency)
	out := dto.BatchSyncResponse{Results: make([]dto.BatchSyncResult, 0, len(results))}
	failed := 0
	for _, res := range results {
		item := dto.BatchSyncResult{
			Platform:  res.Request.Platform.String(),
			AccountID: res.Request.AccountID,
			PostID:    res.Request.PostID,
			Metrics:   dto.FromRecord(res.Record),
		}
		if res.Err != nil {
			failed++
			item.Error = httperrors.FromError(res.Err).Code
		}
		out.Results = append(out.Results, item)
	}
	log.Info("batch sync done", logger.Int("items", len(results)), logger.Int("failed", failed))
	helpers.WriteJSON(w, http.StatusOK, out)
}
