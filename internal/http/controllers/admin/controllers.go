// Package admin contiene los controllers administrativos (claims y bootstrap).
package admin

import "github.com/starlingpost/starlingpost/internal/identity"

// Controllers agrupa los controllers del dominio admin.
type Controllers struct {
	Claims *ClaimsController
	Setup  *SetupController
}

func NewControllers(claims *identity.ClaimsManager, setup *identity.AdminSetup) *Controllers {
	return &Controllers{
		Claims: NewClaimsController(claims),
		Setup:  NewSetupController(setup),
	}
}
