package errors

import (
	"encoding/json"
	stderrors "errors"
	"math"
	"net/http"
	"strconv"

	"github.com/starlingpost/starlingpost/internal/domain/social"
)

type errorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Detail   string `json:"detail,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// WriteError escribe err como JSON. Los errores de dominio (social.Error) se
// traducen con FromError; RateLimited agrega Retry-After.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	resp := errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	}
	var se *social.Error
	if stderrors.As(err, &se) && se.Platform != "" {
		resp.Platform = se.Platform.String()
	}
	if d, ok := social.RetryAfterOf(err); ok {
		secs := int(math.Ceil(d.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// FromError convierte cualquier error en *AppError. Los desconocidos son 500
// sin exponer el mensaje original.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	if base := fromKind(social.KindOf(err)); base != nil {
		return base.WithCause(err)
	}
	return ErrInternalServerError.WithCause(err)
}

func fromKind(k social.Kind) *AppError {
	switch k {
	case social.KindUnknownPlatform:
		return ErrUnknownPlatform
	case social.KindStateNotFound:
		return ErrStateNotFound
	case social.KindNotFound:
		return ErrNotFound
	case social.KindInvalidGrant, social.KindRefreshNotSupported:
		return ErrNeedsRelink
	case social.KindRateLimited:
		return ErrRateLimitExceeded
	case social.KindNotImplemented:
		return ErrNotImplemented
	case social.KindConfiguration:
		return ErrPlatformMisconfigured
	case social.KindExchangeFailed, social.KindNetwork:
		return ErrBadGateway
	case social.KindTimeout:
		return ErrGatewayTimeout
	}
	return nil
}
