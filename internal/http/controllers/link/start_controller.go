package link

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	dto "github.com/starlingpost/starlingpost/internal/http/dto/link"
	httperrors "github.com/starlingpost/starlingpost/internal/http/errors"
	"github.com/starlingpost/starlingpost/internal/http/helpers"
	mw "github.com/starlingpost/starlingpost/internal/http/middlewares"
	"github.com/starlingpost/starlingpost/internal/linking"
	"github.com/starlingpost/starlingpost/internal/observability/logger"
)

// StartController maneja GET /v1/link/{platform}/start
type StartController struct {
	service linking.Service
}

func NewStartController(service linking.Service) *StartController {
	return &StartController{service: service}
}

// Start redirige (302) a la pantalla de consentimiento de la plataforma.
// Con ?format=json devuelve la URL para que el dashboard navegue.
func (c *StartController) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("StartController.Start"))

	p := mw.GetPrincipal(ctx)
	if p == nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	platform := chi.URLParam(r, "platform")

	res, err := c.service.StartLink(ctx, linking.StartRequest{
		UserID:   p.UserID,
		Email:    p.Email,
		Platform: platform,
	})
	if err != nil {
		log.Warn("start link failed", logger.Platform(platform), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "json" {
		helpers.WriteJSON(w, http.StatusOK, dto.StartResponse{
			RedirectURL: res.RedirectURL,
			Platform:    res.Platform.String(),
			AttemptID:   res.AttemptID,
		})
		return
	}
	http.Redirect(w, r, res.RedirectURL, http.StatusFound)
}
