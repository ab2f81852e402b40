// Package collector implements the ingestion producer: it sweeps the
// active locations, fetches weather and pollution readings from the
// provider adapters, persists each raw event, and publishes it on the raw
// topic keyed by location.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/airsight/air-quality-pipeline/internal/domain"
	"github.com/airsight/air-quality-pipeline/internal/observability"
)

// LocationSource lists the locations to collect for.
type LocationSource interface {
	ActiveLocations(ctx context.Context) ([]domain.Location, error)
}

// RawStore persists raw events before they are published.
type RawStore interface {
	SaveRaw(ctx context.Context, raw domain.RawEvent) (uint, error)
}

// Publisher emits raw events on the raw topic. The collector pairs it
// with an async writer so publishing never blocks on the join processor.
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) error
}

// SourceAdapter fetches one provider's payload for a location.
type SourceAdapter interface {
	Fetch(ctx context.Context, loc domain.Location) (json.RawMessage, error)
}

// Collector is the ingestion producer loop.
type Collector struct {
	locations LocationSource
	weather   SourceAdapter
	pollution SourceAdapter
	store     RawStore
	publisher Publisher
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	cycleInterval time.Duration
	locationDelay time.Duration
	idleBackoff   time.Duration

	ready atomic.Bool
}

// New creates a collector.
func New(locations LocationSource, weather, pollution SourceAdapter, store RawStore, publisher Publisher,
	cycleInterval, locationDelay, idleBackoff time.Duration,
	clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Collector {
	return &Collector{
		locations:     locations,
		weather:       weather,
		pollution:     pollution,
		store:         store,
		publisher:     publisher,
		clock:         clock,
		logger:        logger,
		metrics:       metrics,
		cycleInterval: cycleInterval,
		locationDelay: locationDelay,
		idleBackoff:   idleBackoff,
	}
}

// CheckReadiness returns nil once at least one collection cycle finished.
func (c *Collector) CheckReadiness(_ context.Context) error {
	if !c.ready.Load() {
		return errors.New("collector has not completed a cycle yet")
	}
	return nil
}

// Run executes collection cycles until the context is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	c.logger.Info("collector started",
		"cycle_interval", c.cycleInterval, "location_delay", c.locationDelay)
	c.metrics.PipelineRunning.Set(1)
	defer c.metrics.PipelineRunning.Set(0)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("collector stopping", "reason", ctx.Err())
			return nil
		default:
		}

		locations, err := c.locations.ActiveLocations(ctx)
		if err != nil {
			c.logger.Error("list active locations failed", "error", err)
			if !c.sleep(ctx, c.idleBackoff) {
				return nil
			}
			continue
		}
		if len(locations) == 0 {
			c.logger.Warn("no active locations, backing off", "backoff", c.idleBackoff)
			if !c.sleep(ctx, c.idleBackoff) {
				return nil
			}
			continue
		}

		c.Sweep(ctx, locations)
		c.ready.Store(true)

		c.logger.Info("collection cycle complete", "locations", len(locations))
		if !c.sleep(ctx, c.cycleInterval) {
			return nil
		}
	}
}

// Sweep collects both sources for every location. A failed fetch for one
// location or source never blocks the others; the inter-location delay
// keeps the upstream providers' rate limits happy.
func (c *Collector) Sweep(ctx context.Context, locations []domain.Location) {
	start := time.Now()

	for i, loc := range locations {
		c.collect(ctx, loc, domain.SourceWeather, c.weather)
		c.collect(ctx, loc, domain.SourcePollution, c.pollution)

		if i < len(locations)-1 {
			if !c.sleep(ctx, c.locationDelay) {
				return
			}
		}
	}

	c.metrics.CollectionCycle.Observe(time.Since(start).Seconds())
}

// collect fetches one source for one location, persists the raw event,
// and publishes it fire-and-forget.
func (c *Collector) collect(ctx context.Context, loc domain.Location, source domain.Source, adapter SourceAdapter) {
	payload, err := adapter.Fetch(ctx, loc)
	if err != nil {
		c.metrics.FetchRequests.WithLabelValues(string(source), "error").Inc()
		c.logger.Error("fetch failed", "source", source, "location", loc.Name, "error", err)
		return
	}
	c.metrics.FetchRequests.WithLabelValues(string(source), "success").Inc()

	raw := domain.RawEvent{
		Source:     source,
		Location:   loc.Name,
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		Payload:    payload,
		ObservedAt: c.clock.Now().UTC(),
	}

	id, err := c.store.SaveRaw(ctx, raw)
	if err != nil {
		c.logger.Error("persist raw event failed", "source", source, "location", loc.Name, "error", err)
		return
	}
	raw.ID = id

	// Delivery acknowledgment is logged by the async writer's completion
	// callback, not awaited here.
	if err := c.publisher.Publish(ctx, string(source)+"-"+loc.Name, raw); err != nil {
		c.logger.Error("publish raw event failed", "source", source, "location", loc.Name, "error", err)
		return
	}
	c.metrics.RawPublished.Inc()
	c.logger.Debug("raw event published", "source", source, "location", loc.Name, "raw_id", id)
}

func (c *Collector) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-c.clock.After(d):
		return true
	}
}
