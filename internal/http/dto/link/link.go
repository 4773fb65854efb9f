// Package link contiene DTOs de la vinculación OAuth.
package link

// StartResponse respuesta de start con ?format=json.
type StartResponse struct {
	RedirectURL string `json:"redirect_url"`
	Platform    string `json:"platform"`
	AttemptID   string `json:"attempt_id"`
}

// CallbackResponse se usa cuando no hay dashboard configurado.
type CallbackResponse struct {
	Linked    bool   `json:"linked"`
	Platform  string `json:"platform"`
	AccountID string `json:"account_id,omitempty"`
	Error     string `json:"error,omitempty"`
}
