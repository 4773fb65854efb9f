package metrics

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Métricas del servicio. Viven en un paquete aparte para que platforms, linking,
// metricsync y http las usen sin ciclos de import.

var (
	LinkAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "starling_link_attempts_total",
		Help: "Intentos de vinculación por plataforma y estado final",
	}, []string{"platform", "status"}) // status: started|linked|failed

	ProviderRequests = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "starling_provider_request_duration_seconds",
		Help:    "Latencia de llamadas a APIs de plataformas",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"platform", "op", "outcome"})

	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "starling_token_refresh_total",
		Help: "Refresh de tokens por resultado",
	}, []string{"platform", "outcome"})

	SyncResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "starling_metrics_sync_total",
		Help: "Sincronizaciones de métricas por resultado",
	}, []string{"platform", "outcome"})

	RelinkRequired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "starling_relink_required_total",
		Help: "Cuentas marcadas needsRelink",
	}, []string{"platform"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Número total de requests procesadas",
	}, []string{"method", "path", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Outcome normaliza un error a label ("ok" o el kind del error).
func Outcome(kind string) string {
	if kind == "" {
		return "ok"
	}
	return kind
}

// Register registra todas las métricas en reg (default si nil). Duplicados se ignoran.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		LinkAttempts, ProviderRequests, TokenRefreshes, SyncResults, RelinkRequired,
		HTTPRequests, HTTPDuration,
	} {
		if err := registerCollector(reg, c); err != nil {
			return err
		}
	}
	return nil
}

// RegisterPool expone gauges del pool de Postgres.
func RegisterPool(reg prometheus.Registerer, pool func() *pgxpool.Pool) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return registerCollector(reg, newPoolCollector(pool))
}

// Handler expone /metrics.
func Handler() http.Handler { return promhttp.Handler() }

func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return err
	}
	return nil
}

type poolCollector struct {
	pool         func() *pgxpool.Pool
	acquiredDesc *prometheus.Desc
	idleDesc     *prometheus.Desc
	totalDesc    *prometheus.Desc
}

func newPoolCollector(pool func() *pgxpool.Pool) *poolCollector {
	return &poolCollector{
		pool:         pool,
		acquiredDesc: prometheus.NewDesc("pg_pool_acquired", "Conexiones adquiridas", nil, nil),
		idleDesc:     prometheus.NewDesc("pg_pool_idle", "Conexiones inactivas", nil, nil),
		totalDesc:    prometheus.NewDesc("pg_pool_total", "Conexiones totales", nil, nil),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquiredDesc
	ch <- c.idleDesc
	ch <- c.totalDesc
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	if c.pool == nil {
		return
	}
	p := c.pool()
	if p == nil {
		return
	}
	st := p.Stat()
	ch <- prometheus.MustNewConstMetric(c.acquiredDesc, prometheus.GaugeValue, float64(st.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idleDesc, prometheus.GaugeValue, float64(st.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.GaugeValue, float64(st.TotalConns()))
}
