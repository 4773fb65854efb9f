// Package store persiste cuentas vinculadas, métricas de posts y claims.
//
// Drivers: memory (dev/tests), postgres (pgx) y sqlite (modernc). Cada driver se
// registra en init(); importar internal/store/drivers para tenerlos todos.
// Los tokens OAuth se cifran antes de llegar al driver (ver Sealed).
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/starlingpost/starlingpost/internal/domain/social"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
)

// IsNotFound helper.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// AccountRepository es el Credential Store.
type AccountRepository interface {
	Get(ctx context.Context, key social.AccountKey) (*social.LinkedAccount, error)
	// Put es un upsert sobre (UserID, Platform, AccountID). CreatedAt se conserva.
	Put(ctx context.Context, acc *social.LinkedAccount) error
	Delete(ctx context.Context, key social.AccountKey) error
	ListByUser(ctx context.Context, userID string) ([]social.LinkedAccount, error)
	MarkNeedsRelink(ctx context.Context, key social.AccountKey) error
}

// MetricsRepository guarda el último snapshot de métricas por post.
type MetricsRepository interface {
	PutMetrics(ctx context.Context, rec *social.PostMetricsRecord) error
	GetMetrics(ctx context.Context, key social.AccountKey, postID string) (*social.PostMetricsRecord, error)
	// MarkStale marca el snapshot como desactualizado (post borrado o inaccesible).
	MarkStale(ctx context.Context, key social.AccountKey, postID string) error
}

// ClaimsRepository guarda custom claims por usuario del IdP.
type ClaimsRepository interface {
	GetClaims(ctx context.Context, userID string) (map[string]any, error)
	SetClaim(ctx context.Context, userID, key string, value any) error
}

// Store agrupa los repositorios de un driver.
type Store interface {
	Accounts() AccountRepository
	Metrics() MetricsRepository
	Claims() ClaimsRepository
	Ping(ctx context.Context) error
	Close() error
	Driver() string
}

// Config para abrir un Store.
type Config struct {
	Driver string // memory | postgres | sqlite
	DSN    string
	// MaxConns solo postgres.
	MaxConns int32
	// Migrate aplica migraciones embebidas al abrir.
	Migrate bool
}

// OpenFunc abre un driver.
type OpenFunc func(ctx context.Context, cfg Config) (Store, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]OpenFunc{}
)

// RegisterDriver registra un driver. Llamar desde init().
func RegisterDriver(name string, open OpenFunc) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = open
}

// Drivers lista los drivers registrados.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	out := make([]string, 0, len(drivers))
	for n := range drivers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Open abre el driver configurado (default memory).
func Open(ctx context.Context, cfg Config) (Store, error) {
	name := cfg.Driver
	if name == "" {
		name = "memory"
	}
	driversMu.RLock()
	open, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: driver %q not registered (available: %v)", name, Drivers())
	}
	return open(ctx, cfg)
}
