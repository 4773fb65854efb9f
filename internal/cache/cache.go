// Package cache provee un key-value efímero con TTL y soporte multi-backend.
//
// Soporta:
//   - memory (in-process, go-cache; dev/testing o un único nodo)
//   - redis (distribuido; necesario con más de una réplica)
//
// Lo usan el store de OAuth state (Take atómico) y el tracker de intentos.
package cache

import (
	"context"
	"errors"
	"time"
)

// Client define las operaciones de cache.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe o expiró.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor. ttl 0 = no expira.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Add guarda solo si la key no existe. Retorna ErrExists si ya existe.
	Add(ctx context.Context, key, value string, ttl time.Duration) error

	// Take obtiene y elimina la key en una sola operación atómica.
	// De N llamadas concurrentes sobre la misma key, a lo sumo una obtiene el valor.
	Take(ctx context.Context, key string) (string, error)

	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Config para crear un cliente.
type Config struct {
	Driver   string // "memory" | "redis"
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

var (
	ErrNotFound = errors.New("cache: key not found")
	ErrExists   = errors.New("cache: key already exists")
)

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// New crea un cliente según cfg.Driver.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg)
	default:
		return NewMemory(cfg.Prefix), nil
	}
}

func prefixed(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}
