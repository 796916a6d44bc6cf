package cache

import (
	"context"
	"errors"
	"log/slog"

	"openbadges/internal/platform/metrics"
	"openbadges/internal/statuslist/models"
	id "openbadges/pkg/domain"
	"openbadges/pkg/platform/circuit"
	"openbadges/pkg/platform/sentinel"
)

// Backend is the cache being guarded.
type Backend interface {
	Get(ctx context.Context, listID id.StatusListID) (*models.StatusList, error)
	Set(ctx context.Context, list *models.StatusList) error
	Invalidate(ctx context.Context, listID id.StatusListID, version int64) error
}

// Guarded skips the backend while its breaker is open. Reads then report a
// miss and writes are dropped, so status lists are served from the store
// until the backend recovers. Entries written before the outage expire on
// their own TTL.
type Guarded struct {
	backend Backend
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewGuarded wraps backend with breaker. logger and m may be nil.
func NewGuarded(backend Backend, breaker *circuit.Breaker, logger *slog.Logger, m *metrics.Metrics) *Guarded {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Guarded{backend: backend, breaker: breaker, logger: logger, metrics: m}
}

func (g *Guarded) Get(ctx context.Context, listID id.StatusListID) (*models.StatusList, error) {
	if !g.breaker.Allow() {
		return nil, sentinel.ErrNotFound
	}
	list, err := g.backend.Get(ctx, listID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		g.failure(ctx, err)
		return nil, err
	}
	g.success(ctx)
	return list, err
}

func (g *Guarded) Set(ctx context.Context, list *models.StatusList) error {
	if !g.breaker.Allow() {
		return nil
	}
	return g.record(ctx, g.backend.Set(ctx, list))
}

func (g *Guarded) Invalidate(ctx context.Context, listID id.StatusListID, version int64) error {
	if !g.breaker.Allow() {
		return nil
	}
	return g.record(ctx, g.backend.Invalidate(ctx, listID, version))
}

func (g *Guarded) record(ctx context.Context, err error) error {
	if err != nil {
		g.failure(ctx, err)
		return err
	}
	g.success(ctx)
	return nil
}

func (g *Guarded) failure(ctx context.Context, err error) {
	if change := g.breaker.RecordFailure(); change.Opened {
		g.metrics.SetStatusCacheCircuitOpen(true)
		g.logger.WarnContext(ctx, "status list cache bypassed",
			"breaker", g.breaker.Name(),
			"error", err,
		)
	}
}

func (g *Guarded) success(ctx context.Context) {
	if change := g.breaker.RecordSuccess(); change.Closed {
		g.metrics.SetStatusCacheCircuitOpen(false)
		g.logger.InfoContext(ctx, "status list cache restored", "breaker", g.breaker.Name())
	}
}
