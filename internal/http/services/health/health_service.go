// Package health contiene el service para health checks.
package health

import (
	"context"
	"time"

	dto "github.com/starlingpost/starlingpost/internal/http/dto/health"
	"github.com/starlingpost/starlingpost/internal/observability/logger"
)

// HealthService define las operaciones de health check.
type HealthService interface {
	Check(ctx context.Context) dto.HealthResponse
}

// Deps checks inyectables. Un check nil se reporta como "disabled".
type Deps struct {
	StoreCheck func(ctx context.Context) error
	CacheCheck func(ctx context.Context) error
	Version    string
	Timeout    time.Duration
}

type healthService struct {
	deps Deps
}

// NewHealthService crea un nuevo service de health check.
func NewHealthService(deps Deps) HealthService {
	if deps.Timeout <= 0 {
		deps.Timeout = 2 * time.Second
	}
	return &healthService{deps: deps}
}

func (s *healthService) Check(ctx context.Context) dto.HealthResponse {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("health"),
		logger.Op("Check"),
	)

	resp := dto.HealthResponse{
		Status:     "ready",
		Components: make(map[string]dto.HealthStatus, 2),
		Version:    s.deps.Version,
		Timestamp:  time.Now().UTC(),
	}

	checks := []struct {
		name  string
		check func(context.Context) error
	}{
		{"store", s.deps.StoreCheck},
		{"cache", s.deps.CacheCheck},
	}
	for _, c := range checks {
		if c.check == nil {
			resp.Components[c.name] = dto.HealthStatus{Status: "disabled"}
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, s.deps.Timeout)
		err := c.check(cctx)
		cancel()
		if err != nil {
			log.Error(c.name+" unavailable", logger.Err(err))
			resp.Components[c.name] = dto.HealthStatus{Status: "error", Message: "unavailable"}
			resp.Status = "unavailable"
			continue
		}
		resp.Components[c.name] = dto.HealthStatus{Status: "ok"}
	}
	return resp
}
