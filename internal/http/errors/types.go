package errors

import (
	"fmt"
	"net/http"
)

// AppError es el error que viaja hasta el borde HTTP.
// Code es estable (lo lee el dashboard), Message es para humanos y Detail
// agrega contexto puntual. Err nunca se serializa.
type AppError struct {
	Code       string
	Message    string
	Detail     string
	HTTPStatus int
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// New crea un AppError.
func New(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// Wrap crea un AppError con causa.
func Wrap(status int, code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// WithDetail retorna una copia con detalle.
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithCause retorna una copia con la causa original.
func (e *AppError) WithCause(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// ─── 400 ───

var (
	ErrBadRequest = &AppError{
		HTTPStatus: http.StatusBadRequest,
		Code:       "BAD_REQUEST",
		Message:    "La solicitud es inválida.",
	}
	ErrInvalidJSON = &AppError{
		HTTPStatus: http.StatusBadRequest,
		Code:       "INVALID_JSON",
		Message:    "El cuerpo de la solicitud no es JSON válido.",
	}
	ErrMissingFields = &AppError{
		HTTPStatus: http.StatusBadRequest,
		Code:       "MISSING_FIELDS",
		Message:    "Faltan campos obligatorios.",
	}
	ErrUnknownPlatform = &AppError{
		HTTPStatus: http.StatusBadRequest,
		Code:       "UNKNOWN_PLATFORM",
		Message:    "Plataforma no soportada.",
	}
	ErrStateNotFound = &AppError{
		HTTPStatus: http.StatusBadRequest,
		Code:       "STATE_NOT_FOUND",
		Message:    "El intento de vinculación no existe o expiró.",
	}
)

// ─── 401 / 403 ───

var (
	ErrUnauthorized = &AppError{
		HTTPStatus: http.StatusUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    "No autorizado.",
	}
	ErrTokenMissing = &AppError{
		HTTPStatus: http.StatusUnauthorized,
		Code:       "TOKEN_MISSING",
		Message:    "Falta el token de acceso.",
	}
	ErrTokenInvalid = &AppError{
		HTTPStatus: http.StatusUnauthorized,
		Code:       "TOKEN_INVALID",
		Message:    "El token de acceso es inválido.",
	}
	ErrForbidden = &AppError{
		HTTPStatus: http.StatusForbidden,
		Code:       "FORBIDDEN",
		Message:    "No tenés permisos para esta operación.",
	}
)

// ─── 404 / 405 / 409 ───

var (
	ErrNotFound = &AppError{
		HTTPStatus: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    "Recurso no encontrado.",
	}
	ErrRouteNotFound = &AppError{
		HTTPStatus: http.StatusNotFound,
		Code:       "ROUTE_NOT_FOUND",
		Message:    "La ruta no existe.",
	}
	ErrMethodNotAllowed = &AppError{
		HTTPStatus: http.StatusMethodNotAllowed,
		Code:       "METHOD_NOT_ALLOWED",
		Message:    "Método no permitido.",
	}
	ErrNeedsRelink = &AppError{
		HTTPStatus: http.StatusConflict,
		Code:       "NEEDS_RELINK",
		Message:    "La plataforma revocó el acceso; hay que volver a vincular la cuenta.",
	}
)

// ─── 429 ───

var ErrRateLimitExceeded = &AppError{
	HTTPStatus: http.StatusTooManyRequests,
	Code:       "RATE_LIMIT_EXCEEDED",
	Message:    "Demasiadas solicitudes. Probá de nuevo más tarde.",
}

// ─── 5xx ───

var (
	ErrInternalServerError = &AppError{
		HTTPStatus: http.StatusInternalServerError,
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Error interno del servidor.",
	}
	ErrPlatformMisconfigured = &AppError{
		HTTPStatus: http.StatusInternalServerError,
		Code:       "CONFIGURATION_ERROR",
		Message:    "La plataforma no está configurada.",
	}
	ErrNotImplemented = &AppError{
		HTTPStatus: http.StatusNotImplemented,
		Code:       "NOT_IMPLEMENTED",
		Message:    "La plataforma todavía no está integrada.",
	}
	ErrBadGateway = &AppError{
		HTTPStatus: http.StatusBadGateway,
		Code:       "BAD_GATEWAY",
		Message:    "La plataforma respondió con un error.",
	}
	ErrServiceUnavailable = &AppError{
		HTTPStatus: http.StatusServiceUnavailable,
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "Servicio no disponible.",
	}
	ErrGatewayTimeout = &AppError{
		HTTPStatus: http.StatusGatewayTimeout,
		Code:       "GATEWAY_TIMEOUT",
		Message:    "La plataforma no respondió a tiempo.",
	}
)
