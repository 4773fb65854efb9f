package linking

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/starlingpost/starlingpost/internal/domain/social"
	tokens "github.com/starlingpost/starlingpost/internal/security/token"
)

// ErrIllegalTransition cuando un intento salta estados (ej: LINKED -> EXCHANGING).
var ErrIllegalTransition = fmt.Errorf("linking: illegal attempt transition")

// Attempts sigue el estado de cada intento start/callback en memoria, indexado
// por un hash del state. Vive lo mismo que el state.
type Attempts struct {
	mu  sync.Mutex
	c   *gocache.Cache
	ttl time.Duration
	now func() time.Time
}

// NewAttempts crea el tracker. ttl <= 0 usa 10 minutos.
func NewAttempts(ttl time.Duration, now func() time.Time) *Attempts {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Attempts{c: gocache.New(ttl, time.Minute), ttl: ttl, now: now}
}

func attemptKey(state string) string { return tokens.Digest(state) }

// Start registra un intento PENDING.
func (a *Attempts) Start(state, userID string, p social.Platform) social.LinkAttempt {
	at := social.LinkAttempt{
		ID:        uuid.NewString(),
		UserID:    userID,
		Platform:  p,
		Status:    social.AttemptPending,
		UpdatedAt: a.now().UTC(),
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.c.Set(attemptKey(state), at, a.ttl)
	return at
}

// Transition mueve el intento a "to". Si el intento no está (otra réplica o
// reinicio) se asume PENDING.
func (a *Attempts) Transition(state string, p social.Platform, to social.AttemptStatus, code social.Kind) (social.LinkAttempt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := attemptKey(state)
	var at social.LinkAttempt
	if v, ok := a.c.Get(k); ok {
		at = v.(social.LinkAttempt)
	} else {
		at = social.LinkAttempt{ID: uuid.NewString(), Platform: p, Status: social.AttemptPending}
	}
	if !at.Status.CanTransition(to) {
		return at, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, at.Status, to)
	}
	at.Status = to
	at.ErrorCode = code
	at.UpdatedAt = a.now().UTC()
	a.c.Set(k, at, a.ttl)
	return at, nil
}

// Get retorna el intento asociado al state.
func (a *Attempts) Get(state string) (social.LinkAttempt, bool) {
	v, ok := a.c.Get(attemptKey(state))
	if !ok {
		return social.LinkAttempt{}, false
	}
	return v.(social.LinkAttempt), true
}
