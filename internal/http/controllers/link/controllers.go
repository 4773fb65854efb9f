// Package link contiene los controllers de vinculación OAuth (start/callback).
package link

import (
	"github.com/starlingpost/starlingpost/internal/linking"
)

// Controllers agrupa los controllers del dominio link.
type Controllers struct {
	Start    *StartController
	Callback *CallbackController
}

// NewControllers crea el agregador. dashboardURL recibe los redirects del callback.
func NewControllers(s linking.Service, dashboardURL string) *Controllers {
	return &Controllers{
		Start:    NewStartController(s),
		Callback: NewCallbackController(s, dashboardURL),
	}
}
