package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.uber.org/zap"
)

// --- HTTP ---

func RequestID(v string) zap.Field       { return zap.String("request_id", v) }
func Method(v string) zap.Field          { return zap.String("method", v) }
func Path(v string) zap.Field            { return zap.String("path", v) }
func Status(v int) zap.Field             { return zap.Int("status", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
func ClientIP(v string) zap.Field        { return zap.String("client_ip", v) }

// --- Negocio ---

func UserID(v string) zap.Field    { return zap.String("user_id", v) }
func Platform(v string) zap.Field  { return zap.String("platform", v) }
func AccountID(v string) zap.Field { return zap.String("account_id", v) }
func PostID(v string) zap.Field    { return zap.String("post_id", v) }
func Attempt(v string) zap.Field   { return zap.String("attempt_id", v) }

// StateRef loguea una referencia no reversible a un OAuth state.
// Nunca loguear el state (ni tokens) en claro.
func StateRef(state string) zap.Field {
	if state == "" {
		return zap.String("state_ref", "")
	}
	sum := sha256.Sum256([]byte(state))
	return zap.String("state_ref", hex.EncodeToString(sum[:4]))
}

// --- Sistema ---

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Layer(v string) zap.Field     { return zap.String("layer", v) }
func Err(err error) zap.Field      { return zap.Error(err) }

// --- Genéricos ---

func String(key, v string) zap.Field  { return zap.String(key, v) }
func Int(key string, v int) zap.Field { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}
func Any(key string, v any) zap.Field { return zap.Any(key, v) }
