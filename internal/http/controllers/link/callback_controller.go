package link

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starlingpost/starlingpost/internal/domain/social"
	dto "github.com/starlingpost/starlingpost/internal/http/dto/link"
	"github.com/starlingpost/starlingpost/internal/http/helpers"
	"github.com/starlingpost/starlingpost/internal/linking"
	"github.com/starlingpost/starlingpost/internal/observability/logger"
)

// Códigos de link_error que no vienen de un social.Kind.
const (
	codeAccessDenied  = "access_denied"
	codeProviderError = "provider_error"
	codeInternal      = "internal_error"
)

// CallbackController maneja GET /v1/link/{platform}/callback
type CallbackController struct {
	service   linking.Service
	dashboard string
}

func NewCallbackController(service linking.Service, dashboardURL string) *CallbackController {
	return &CallbackController{service: service, dashboard: strings.TrimSpace(dashboardURL)}
}

// Callback recibe el redirect de la plataforma. Siempre responde con un
// redirect al dashboard (?linked= o ?link_error=); nunca expone mensajes
// crudos del proveedor ni tokens.
func (c *CallbackController) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("CallbackController.Callback"))

	platform := chi.URLParam(r, "platform")
	q := r.URL.Query()
	state := strings.TrimSpace(q.Get("state"))

	if idpError := strings.TrimSpace(q.Get("error")); idpError != "" {
		code := codeProviderError
		reason := social.KindExchangeFailed
		if idpError == codeAccessDenied {
			code = codeAccessDenied
			reason = social.Kind(codeAccessDenied)
		}
		log.Info("provider returned error",
			logger.Platform(platform), logger.String("error", truncate(idpError, 64)), logger.StateRef(state))
		if state != "" {
			if err := c.service.AbortLink(ctx, platform, state, reason); err != nil {
				log.Debug("abort link", logger.Err(err))
			}
		}
		c.fail(w, r, platform, code)
		return
	}

	acc, err := c.service.CompleteLink(ctx, linking.CompleteRequest{
		Platform: platform,
		Code:     strings.TrimSpace(q.Get("code")),
		State:    state,
	})
	if err != nil {
		code := string(social.KindOf(err))
		if code == "" {
			code = codeInternal
		}
		log.Warn("link callback failed",
			logger.Platform(platform), logger.String("link_error", code), logger.Err(err))
		c.fail(w, r, platform, code)
		return
	}

	log.Info("account linked", logger.Platform(platform), logger.AccountID(acc.AccountID))
	if c.dashboard == "" {
		helpers.WriteJSON(w, http.StatusOK, dto.CallbackResponse{
			Linked: true, Platform: acc.Platform.String(), AccountID: acc.AccountID,
		})
		return
	}
	http.Redirect(w, r, c.redirect(url.Values{
		"linked":  {acc.Platform.String()},
		"account": {acc.AccountID},
	}), http.StatusFound)
}

func (c *CallbackController) fail(w http.ResponseWriter, r *http.Request, platform, code string) {
	if c.dashboard == "" {
		helpers.WriteJSON(w, http.StatusBadRequest, dto.CallbackResponse{Platform: platform, Error: code})
		return
	}
	http.Redirect(w, r, c.redirect(url.Values{
		"link_error": {code},
		"platform":   {platform},
	}), http.StatusFound)
}

// redirect agrega v a la query del dashboard conservando la existente.
func (c *CallbackController) redirect(v url.Values) string {
	u, err := url.Parse(c.dashboard)
	if err != nil {
		return c.dashboard
	}
	q := u.Query()
	for k, vals := range v {
		q[k] = vals
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
