package social

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind clasifica los errores del dominio de vinculación.
type Kind string

const (
	KindConfiguration       Kind = "configuration_error"
	KindUnknownPlatform     Kind = "unknown_platform"
	KindStateNotFound       Kind = "state_not_found"
	KindExchangeFailed      Kind = "exchange_failed"
	KindNetwork             Kind = "network_error"
	KindInvalidGrant        Kind = "invalid_grant"
	KindRateLimited         Kind = "rate_limited"
	KindNotFound            Kind = "not_found"
	KindNotImplemented      Kind = "not_implemented"
	KindTimeout             Kind = "timeout"
	KindRefreshNotSupported Kind = "refresh_not_supported"
)

// Error es el único tipo de error del dominio.
// Detail nunca contiene tokens, secrets ni codes.
type Error struct {
	Kind       Kind
	Op         string
	Platform   Platform
	Detail     string
	RetryAfter time.Duration // solo KindRateLimited
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Platform != "" {
		msg = string(e.Platform) + ": " + msg
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is permite errors.Is(err, social.ErrInvalidGrant) comparando por Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Platform == "" && t.Detail == ""
}

// Sentinels para errors.Is.
var (
	ErrConfiguration       = &Error{Kind: KindConfiguration}
	ErrUnknownPlatform     = &Error{Kind: KindUnknownPlatform}
	ErrStateNotFound       = &Error{Kind: KindStateNotFound}
	ErrExchangeFailed      = &Error{Kind: KindExchangeFailed}
	ErrNetwork             = &Error{Kind: KindNetwork}
	ErrInvalidGrant        = &Error{Kind: KindInvalidGrant}
	ErrRateLimited         = &Error{Kind: KindRateLimited}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrNotImplemented      = &Error{Kind: KindNotImplemented}
	ErrTimeout             = &Error{Kind: KindTimeout}
	ErrRefreshNotSupported = &Error{Kind: KindRefreshNotSupported}
)

// E construye un *Error.
func E(kind Kind, op string, p Platform, detail string) *Error {
	return &Error{Kind: kind, Op: op, Platform: p, Detail: detail}
}

// Wrap construye un *Error con causa.
func Wrap(kind Kind, op string, p Platform, err error) *Error {
	return &Error{Kind: kind, Op: op, Platform: p, Err: err}
}

// NotImplemented es el error determinístico de las plataformas sin terminar.
func NotImplemented(op string, p Platform) *Error {
	return &Error{Kind: KindNotImplemented, Op: op, Platform: p, Detail: "platform integration not implemented"}
}

// RateLimited con el tiempo de espera sugerido por el proveedor.
func RateLimited(op string, p Platform, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Op: op, Platform: p, RetryAfter: retryAfter}
}

// KindOf retorna el Kind del primer *Error de la cadena. Deadlines del
// contexto se clasifican como timeout; cualquier otro error es "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return ""
}

// Typed reporta si err ya trae un *Error en la cadena. Un context.DeadlineExceeded
// crudo no cuenta aunque KindOf lo clasifique como timeout.
func Typed(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// IsKind es un atajo de KindOf(err) == k.
func IsKind(err error, k Kind) bool { return KindOf(err) == k }

// RetryAfterOf retorna el RetryAfter si err es RateLimited.
func RetryAfterOf(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindRateLimited {
		return e.RetryAfter, true
	}
	return 0, false
}

// FromContext convierte un error de transporte según el estado del contexto:
// deadline -> Timeout, cancelado o cualquier otro -> NetworkError.
func FromContext(ctx context.Context, op string, p Platform, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Wrap(KindTimeout, op, p, context.DeadlineExceeded)
	}
	return &Error{Kind: KindNetwork, Op: op, Platform: p, Detail: fmt.Sprintf("%T", unwrapAll(err))}
}

func unwrapAll(err error) error {
	for {
		u := errors.Unwrap(err)
		if u == nil {
			return err
		}
		err = u
	}
}
