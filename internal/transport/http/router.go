// Package httptransport is the thin HTTP layer over the badge services.
// Handlers decode, delegate and encode; they hold no business logic.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"openbadges/internal/platform/health"
	"openbadges/internal/platform/metrics"
	request "openbadges/pkg/platform/middleware/request"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultRequestTimeout = 30 * time.Second
	// Baked images are the largest bodies the service accepts.
	defaultMaxBodyBytes int64 = 8 << 20
)

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r chi.Router)
}

// RouterConfig holds the shared collaborators of every route.
type RouterConfig struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Health         *health.Handler
	MetricsHandler http.Handler
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// NewRouter wires the middleware stack, health and metrics endpoints, and
// every registrar's routes.
func NewRouter(cfg RouterConfig, registrars ...Registrar) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.MetricsHandler == nil {
		cfg.MetricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(cfg.Logger))
	r.Use(request.Latency(cfg.Metrics))
	r.Use(request.Timeout(cfg.RequestTimeout))
	r.Use(request.BodyLimit(cfg.MaxBodyBytes))

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)

	for _, reg := range registrars {
		reg.Register(r)
	}
	return r
}
