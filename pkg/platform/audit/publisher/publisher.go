package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	dErrors "openbadges/pkg/domain-errors"
	audit "openbadges/pkg/platform/audit"
	"openbadges/pkg/platform/audit/metrics"
)

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store   audit.Store
	events  chan audit.Event
	wg      sync.WaitGroup
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	async   bool
	once    sync.Once
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Events are queued and persisted in a background goroutine.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan audit.Event, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for async error reporting.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) {
		p.now = now
	}
}

func NewPublisher(store audit.Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

// processEvents runs in a goroutine and persists events from the channel.
func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		p.metrics.DecQueueDepth()
		if err := p.persist(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Error("failed to persist audit event",
				"error", err,
				"action", event.Action,
				"credential_id", event.CredentialID,
			)
		}
	}
}

func (p *Publisher) persist(ctx context.Context, event audit.Event) error {
	start := time.Now()
	err := p.store.Append(ctx, event)
	p.metrics.ObservePersist(time.Since(start).Seconds(), err)
	return err
}

// Close shuts down the async publisher and waits for pending events to drain.
// It is safe to call more than once.
func (p *Publisher) Close() {
	if !p.async {
		return
	}
	p.once.Do(func() {
		close(p.events)
		p.wg.Wait()
	})
}

func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now().UTC()
	}
	if !p.async {
		return p.persist(ctx, event)
	}
	// Non-blocking send with context cancellation support
	select {
	case p.events <- event:
		p.metrics.IncQueueDepth()
		p.metrics.IncEventsEnqueued()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.metrics.IncEventsDropped()
		if p.logger != nil {
			p.logger.Warn("audit buffer full, event dropped",
				"action", event.Action,
				"credential_id", event.CredentialID,
			)
		}
		return dErrors.New(dErrors.CodeExhausted, "audit buffer full")
	}
}

// ListByCredential returns the recorded history of one credential.
func (p *Publisher) ListByCredential(ctx context.Context, credentialID string) ([]audit.Event, error) {
	return p.store.ListByCredential(ctx, credentialID)
}
