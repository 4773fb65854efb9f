// Package admin contiene DTOs de las rutas administrativas.
package admin

// SetupRequest POST /admin/setup.
type SetupRequest struct {
	UID     string `json:"uid"`
	IsAdmin bool   `json:"isAdmin"`
}

// SetupResponse respuesta exitosa de /admin/setup.
type SetupResponse struct {
	Success bool `json:"success"`
}

// SetClaimRequest POST /v1/admin/claims. Role o Key/Value.
type SetClaimRequest struct {
	UID   string `json:"uid"`
	Role  string `json:"role,omitempty"`
	Key   string `json:"key,omitempty"`
	Value any    `json:"value,omitempty"`
}

// ClaimsResponse claims actuales del usuario.
type ClaimsResponse struct {
	UID    string         `json:"uid"`
	Claims map[string]any `json:"claims"`
}
