package admin

import (
	"errors"
	"net/http"

	dto "github.com/starlingpost/starlingpost/internal/http/dto/admin"
	httperrors "github.com/starlingpost/starlingpost/internal/http/errors"
	"github.com/starlingpost/starlingpost/internal/http/helpers"
	"github.com/starlingpost/starlingpost/internal/identity"
	"github.com/starlingpost/starlingpost/internal/observability/logger"
)

// SetupSecretHeader header con el secreto de bootstrap.
const SetupSecretHeader = "x-admin-setup-secret"

var (
	errSetupUnauthorized = httperrors.New(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
	errSetupMissingUID   = httperrors.New(http.StatusBadRequest, "MISSING_UID", "Missing uid")
	errSetupDisabled     = httperrors.New(http.StatusInternalServerError, "SETUP_DISABLED", "Admin setup is not configured")
)

// SetupController maneja POST /admin/setup (bootstrap del primer admin).
type SetupController struct {
	setup *identity.AdminSetup
}

func NewSetupController(setup *identity.AdminSetup) *SetupController {
	return &SetupController{setup: setup}
}

// Setup valida el secreto antes de leer el body.
func (c *SetupController) Setup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("SetupController.Setup"))

	secret := r.Header.Get(SetupSecretHeader)
	if err := c.setup.Authorize(secret); err != nil {
		httperrors.WriteError(w, mapSetupError(err))
		return
	}

	var req dto.SetupRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if err := c.setup.Setup(ctx, secret, req.UID, req.IsAdmin); err != nil {
		log.Warn("admin setup failed", logger.Err(err))
		httperrors.WriteError(w, mapSetupError(err))
		return
	}
	log.Info("admin claim set via setup", logger.String("uid", req.UID), logger.Bool("is_admin", req.IsAdmin))
	helpers.WriteJSON(w, http.StatusOK, dto.SetupResponse{Success: true})
}

func mapSetupError(err error) error {
	switch {
	case errors.Is(err, identity.ErrSetupDisabled):
		return errSetupDisabled
	case errors.Is(err, identity.ErrSetupUnauthorized):
		return errSetupUnauthorized
	case errors.Is(err, identity.ErrMissingUID):
		return errSetupMissingUID
	}
	return err
}
