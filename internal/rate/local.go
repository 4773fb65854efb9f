package rate

import (
	"context"
	"math"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	xrate "golang.org/x/time/rate"
)

// LocalLimiter es un token bucket por clave. Las claves sin uso expiran tras idle.
type LocalLimiter struct {
	mu       sync.Mutex
	visitors *gocache.Cache
	limit    xrate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

// NewLocalLimiter permite requests eventos por window con ráfagas de burst.
func NewLocalLimiter(requests int, window time.Duration, burst int) *LocalLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if burst <= 0 {
		burst = requests
	}
	idle := 2 * window
	if idle < 5*time.Minute {
		idle = 5 * time.Minute
	}
	return &LocalLimiter{
		visitors: gocache.New(idle, idle),
		limit:    xrate.Every(window / time.Duration(requests)),
		burst:    burst,
		idle:     idle,
		now:      time.Now,
	}
}

func (l *LocalLimiter) limiter(key string) *xrate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.visitors.Get(key); ok {
		lim := v.(*xrate.Limiter)
		l.visitors.Set(key, lim, l.idle)
		return lim
	}
	lim := xrate.NewLimiter(l.limit, l.burst)
	l.visitors.Set(key, lim, l.idle)
	return lim
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (Result, error) {
	if key == "" {
		key = "unknown"
	}
	lim := l.limiter(key)
	now := l.now()
	if lim.AllowN(now, 1) {
		return Result{Allowed: true, Remaining: int64(math.Floor(lim.TokensAt(now)))}, nil
	}
	r := lim.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	if wait < time.Second {
		wait = time.Second
	}
	return Result{Allowed: false, RetryAfter: wait}, nil
}
