package identity

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/starlingpost/starlingpost/internal/observability/logger"
	"github.com/starlingpost/starlingpost/internal/store"
)

// Claims con nombre reservado.
const (
	ClaimAdmin = "admin"
	ClaimRole  = "role"
)

// Roles conocidos.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

var (
	ErrMissingUID        = errors.New("identity: missing uid")
	ErrInvalidRole       = errors.New("identity: invalid role")
	ErrReservedClaim     = errors.New("identity: reserved claim")
	ErrSetupDisabled     = errors.New("identity: admin setup secret not configured")
	ErrSetupUnauthorized = errors.New("identity: admin setup unauthorized")
)

// registered claims del JWT que no se pueden pisar
var reservedClaims = map[string]struct{}{
	"sub": {}, "iss": {}, "aud": {}, "exp": {}, "iat": {}, "nbf": {}, "jti": {}, "user_id": {}, "email": {},
}

// ClaimsManager administra custom claims sobre el ClaimsRepository.
type ClaimsManager struct {
	repo store.ClaimsRepository
}

func NewClaimsManager(repo store.ClaimsRepository) *ClaimsManager {
	return &ClaimsManager{repo: repo}
}

// SetCustomClaim guarda key=value para uid.
func (m *ClaimsManager) SetCustomClaim(ctx context.Context, uid, key string, value any) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return ErrMissingUID
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrReservedClaim)
	}
	if _, ok := reservedClaims[key]; ok {
		return fmt.Errorf("%w: %s", ErrReservedClaim, key)
	}
	if err := m.repo.SetClaim(ctx, uid, key, value); err != nil {
		return fmt.Errorf("identity: set claim: %w", err)
	}
	logger.From(ctx).Info("custom claim set", logger.Component("identity"), logger.UserID(uid), logger.String("claim", key))
	return nil
}

// SetRole fija el rol; admin también se refleja en el claim admin.
func (m *ClaimsManager) SetRole(ctx context.Context, uid, role string) error {
	role = strings.ToLower(strings.TrimSpace(role))
	switch role {
	case RoleAdmin, RoleEditor, RoleViewer:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if err := m.SetCustomClaim(ctx, uid, ClaimRole, role); err != nil {
		return err
	}
	return m.SetCustomClaim(ctx, uid, ClaimAdmin, role == RoleAdmin)
}

// Claims retorna los claims guardados de uid.
func (m *ClaimsManager) Claims(ctx context.Context, uid string) (map[string]any, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, ErrMissingUID
	}
	return m.repo.GetClaims(ctx, uid)
}

// AdminSetup es el bootstrap del primer admin con un secreto compartido. El
// secreto sale de la configuración; vacío deshabilita la operación.
type AdminSetup struct {
	secretSum [32]byte
	enabled   bool
	claims    *ClaimsManager
}

func NewAdminSetup(secret string, claims *ClaimsManager) *AdminSetup {
	a := &AdminSetup{claims: claims}
	if secret != "" {
		a.secretSum = sha256.Sum256([]byte(secret))
		a.enabled = true
	}
	return a
}

// Enabled reporta si hay secreto configurado.
func (a *AdminSetup) Enabled() bool { return a.enabled }

// Authorize compara provided contra el secreto en tiempo constante.
func (a *AdminSetup) Authorize(provided string) error {
	if !a.enabled {
		return ErrSetupDisabled
	}
	sum := sha256.Sum256([]byte(provided))
	if provided == "" || subtle.ConstantTimeCompare(sum[:], a.secretSum[:]) != 1 {
		return ErrSetupUnauthorized
	}
	return nil
}

// Setup autoriza y fija el claim admin de uid.
func (a *AdminSetup) Setup(ctx context.Context, provided, uid string, isAdmin bool) error {
	if err := a.Authorize(provided); err != nil {
		if errors.Is(err, ErrSetupUnauthorized) {
			logger.From(ctx).Warn("admin setup rejected", logger.Component("identity"))
		}
		return err
	}
	return a.claims.SetCustomClaim(ctx, uid, ClaimAdmin, isAdmin)
}
