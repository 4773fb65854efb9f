// Package accounts contiene los controllers de cuentas vinculadas y métricas.
package accounts

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	dto "github.com/starlingpost/starlingpost/internal/http/dto/accounts"
	httperrors "github.com/starlingpost/starlingpost/internal/http/errors"
	"github.com/starlingpost/starlingpost/internal/http/helpers"
	mw "github.com/starlingpost/starlingpost/internal/http/middlewares"
	"github.com/starlingpost/starlingpost/internal/linking"
	"github.com/starlingpost/starlingpost/internal/observability/logger"
)

// AccountsController maneja /v1/accounts.
type AccountsController struct {
	service linking.Service
}

func NewAccountsController(service linking.Service) *AccountsController {
	return &AccountsController{service: service}
}

// List maneja GET /v1/accounts
func (c *AccountsController) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("AccountsController.List"))

	uid := mw.GetUserID(ctx)
	views, err := c.service.ListAccounts(ctx, uid)
	if err != nil {
		log.Error("list accounts failed", logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.ListResponse{Accounts: views})
}

// Delete maneja DELETE /v1/accounts/{platform}/{accountId}
func (c *AccountsController) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("AccountsController.Delete"))

	platform := chi.URLParam(r, "platform")
	accountID := chi.URLParam(r, "accountId")
	if err := c.service.Unlink(ctx, mw.GetUserID(ctx), platform, accountID); err != nil {
		log.Warn("unlink failed", logger.Platform(platform), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
