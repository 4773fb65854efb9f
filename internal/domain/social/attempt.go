package social

import "time"

// AttemptStatus es el estado de un intento de vinculación.
type AttemptStatus string

const (
	AttemptPending    AttemptStatus = "PENDING"
	AttemptExchanging AttemptStatus = "EXCHANGING"
	AttemptLinked     AttemptStatus = "LINKED"
	AttemptFailed     AttemptStatus = "FAILED"
)

// CanTransition valida PENDING -> EXCHANGING -> LINKED | FAILED.
// PENDING -> FAILED también es válido (state expirado o rechazado antes del exchange).
func (s AttemptStatus) CanTransition(to AttemptStatus) bool {
	switch s {
	case AttemptPending:
		return to == AttemptExchanging || to == AttemptFailed
	case AttemptExchanging:
		return to == AttemptLinked || to == AttemptFailed
	default:
		return false
	}
}

// Terminal reporta LINKED o FAILED.
func (s AttemptStatus) Terminal() bool { return s == AttemptLinked || s == AttemptFailed }

// LinkAttempt es el seguimiento de un flujo start/callback.
type LinkAttempt struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Platform  Platform      `json:"platform"`
	Status    AttemptStatus `json:"status"`
	ErrorCode Kind          `json:"error_code,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}
