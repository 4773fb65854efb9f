// Package tokens genera los valores aleatorios del flujo de vinculación
// (state, PKCE code_verifier) y sus digests.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Tamaños usados por oauthstate. 32 bytes -> 43 chars; 48 bytes -> 64 chars,
// dentro del rango 43..128 que exige RFC 7636 para el verifier.
const (
	StateBytes    = 32
	VerifierBytes = 48
)

// Opaque retorna n bytes aleatorios en base64url sin padding.
func Opaque(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("tokens: invalid size %d", n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("tokens: random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewState genera un OAuth state.
func NewState() (string, error) { return Opaque(StateBytes) }

// NewVerifier genera un PKCE code_verifier.
func NewVerifier() (string, error) { return Opaque(VerifierBytes) }

// S256 = BASE64URL(SHA256(s)) sin padding; es el code_challenge de PKCE.
func S256(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Digest = hex(SHA256(s)). Sirve de clave para no indexar por el valor crudo.
func Digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
