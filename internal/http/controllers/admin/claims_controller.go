package admin

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	dto "github.com/starlingpost/starlingpost/internal/http/dto/admin"
	httperrors "github.com/starlingpost/starlingpost/internal/http/errors"
	"github.com/starlingpost/starlingpost/internal/http/helpers"
	mw "github.com/starlingpost/starlingpost/internal/http/middlewares"
	"github.com/starlingpost/starlingpost/internal/identity"
	"github.com/starlingpost/starlingpost/internal/observability/logger"
)

// ClaimsController maneja /v1/admin/claims
type ClaimsController struct {
	claims *identity.ClaimsManager
}

func NewClaimsController(claims *identity.ClaimsManager) *ClaimsController {
	return &ClaimsController{claims: claims}
}

// Set maneja POST /v1/admin/claims: {uid, role} o {uid, key, value}.
func (c *ClaimsController) Set(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("ClaimsController.Set"))

	var req dto.SetClaimRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}

	var err error
	switch {
	case strings.TrimSpace(req.Role) != "":
		err = c.claims.SetRole(ctx, req.UID, req.Role)
	case strings.TrimSpace(req.Key) != "":
		err = c.claims.SetCustomClaim(ctx, req.UID, req.Key, req.Value)
	default:
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("role or key"))
		return
	}
	if err != nil {
		log.Warn("set claim failed", logger.Err(err))
		httperrors.WriteError(w, mapClaimError(err))
		return
	}

	log.Info("claims updated", logger.String("by", mw.GetUserID(ctx)), logger.String("uid", req.UID))
	c.write(w, r, req.UID)
}

// Get maneja GET /v1/admin/claims/{uid}
func (c *ClaimsController) Get(w http.ResponseWriter, r *http.Request) {
	c.write(w, r, chi.URLParam(r, "uid"))
}

func (c *ClaimsController) write(w http.ResponseWriter, r *http.Request, uid string) {
	claims, err := c.claims.Claims(r.Context(), uid)
	if err != nil {
		httperrors.WriteError(w, mapClaimError(err))
		return
	}
	if claims == nil {
		claims = map[string]any{}
	}
	helpers.WriteJSON(w, http.StatusOK, dto.ClaimsResponse{UID: uid, Claims: claims})
}

func mapClaimError(err error) error {
	switch {
	case errors.Is(err, identity.ErrMissingUID):
		return httperrors.ErrMissingFields.WithDetail("uid")
	case errors.Is(err, identity.ErrInvalidRole):
		return httperrors.ErrBadRequest.WithDetail("invalid role")
	case errors.Is(err, identity.ErrReservedClaim):
		return httperrors.ErrBadRequest.WithDetail("reserved claim")
	}
	return err
}
