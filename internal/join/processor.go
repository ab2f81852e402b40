// Package join implements the stateful two-source stream join: raw weather
// and pollution events are paired per location and emitted as merged
// records.
//
// The state machine per location key is Empty → Half → Merged → Empty. A
// half that arrives while the same half is already pending overwrites it
// (latest-wins); a completed pair is merged, persisted, published, and the
// key resets to Empty. Keys never interact, so a single-threaded loop
// needs no locking; scaling out requires disjoint partition sets per
// instance, not a mutex.
package join

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/airsight/air-quality-pipeline/internal/adapter/kafka"
	"github.com/airsight/air-quality-pipeline/internal/domain"
	"github.com/airsight/air-quality-pipeline/internal/observability"
)

// RawConsumer delivers raw events from the raw topic.
type RawConsumer interface {
	Fetch(ctx context.Context) (kafka.Message, error)
}

// Publisher emits merged records to the processed topic.
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) error
}

// MergedStore persists merged records with raw-event provenance.
type MergedStore interface {
	SaveMerged(ctx context.Context, rec domain.MergedRecord, rawIDs []uint) (uint, error)
}

// pendingState is the in-flight join state for one location: at most one
// half per source, plus the raw IDs accumulated since the last merge.
type pendingState struct {
	weather    *domain.Weather
	pollution  *domain.Pollution
	rawIDs     []uint
	latitude   float64
	longitude  float64
	observedAt time.Time
	since      time.Time
}

// Processor consumes raw events and emits merged records.
type Processor struct {
	consumer  RawConsumer
	store     MergedStore
	publisher Publisher
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	staleTTL  time.Duration

	// pending is owned exclusively by the Run loop.
	pending map[string]*pendingState
	ready   atomic.Bool
}

// New creates a join processor. A staleTTL of zero disables the stale
// half-state sweep.
func New(consumer RawConsumer, store MergedStore, publisher Publisher, staleTTL time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Processor {
	return &Processor{
		consumer:  consumer,
		store:     store,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		staleTTL:  staleTTL,
		pending:   make(map[string]*pendingState),
	}
}

// CheckReadiness returns nil once the processor has handled at least one
// message.
func (p *Processor) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("processor has not handled any messages yet")
	}
	return nil
}

// Run executes the join loop until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("join processor started", "stale_ttl", p.staleTTL)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("join processor stopping", "reason", ctx.Err())
			return nil
		default:
		}

		msg, err := p.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("fetch raw event failed", "error", err)
			if !sleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = 200 * time.Millisecond

		p.Handle(ctx, msg)
		p.sweepStale()
		p.ready.Store(true)
	}
}

// Handle processes one raw-event message: normalize, update join state,
// and merge when both halves are present.
func (p *Processor) Handle(ctx context.Context, msg kafka.Message) {
	defer p.commit(ctx, msg)
	p.metrics.EventsConsumed.Inc()

	var raw domain.RawEvent
	if err := json.Unmarshal(msg.Value, &raw); err != nil {
		p.logger.Error("decode raw event failed", "error", err, "offset", msg.Offset)
		return
	}
	if raw.Location == "" || raw.Source == "" {
		p.logger.Warn("skipping raw event with missing location or source", "offset", msg.Offset)
		return
	}

	norm, err := domain.Normalize(raw)
	if err != nil {
		p.metrics.NormalizeErrors.Inc()
		p.logger.Warn("rejected malformed payload", "location", raw.Location, "source", raw.Source, "error", err)
		return
	}

	st, ok := p.pending[raw.Location]
	if !ok {
		st = &pendingState{since: p.clock.Now()}
		p.pending[raw.Location] = st
	}

	// Latest-wins: a fresh half replaces a stale pending one.
	switch norm.Source() {
	case domain.SourceWeather:
		st.weather = norm.Weather
	case domain.SourcePollution:
		st.pollution = norm.Pollution
	}
	st.rawIDs = append(st.rawIDs, norm.Header.RawID)
	st.latitude = norm.Header.Latitude
	st.longitude = norm.Header.Longitude
	st.observedAt = norm.Header.ObservedAt

	if st.weather != nil && st.pollution != nil {
		p.merge(ctx, raw.Location, st)
	}
	p.metrics.PendingStates.Set(float64(len(p.pending)))
}

// merge synthesizes, persists, and publishes the completed pair, then
// resets the location's state. A persistence failure leaves the state in
// place so the next arrival retries the merge.
func (p *Processor) merge(ctx context.Context, location string, st *pendingState) {
	rec := domain.MergedRecord{
		Location:   location,
		Latitude:   st.latitude,
		Longitude:  st.longitude,
		Weather:    *st.weather,
		Pollution:  *st.pollution,
		ObservedAt: st.observedAt,
	}

	id, err := p.store.SaveMerged(ctx, rec, st.rawIDs)
	if err != nil {
		p.logger.Error("persist merged record failed, retaining join state",
			"location", location, "error", err)
		return
	}
	rec.ID = id

	if err := p.publisher.Publish(ctx, location, rec); err != nil {
		// The record is durable; downstream will pick it up on the next
		// training window even if this publish is lost.
		p.logger.Error("publish merged record failed", "location", location, "error", err)
	}

	p.metrics.MergesProduced.Inc()
	p.logger.Info("merged record produced", "location", location, "merged_id", id, "raw_ids", len(st.rawIDs))
	delete(p.pending, location)
}

// sweepStale discards half-states whose pair never completed within the
// TTL, bounding the state a location with one dead source can leak.
func (p *Processor) sweepStale() {
	if p.staleTTL <= 0 {
		return
	}
	now := p.clock.Now()
	for location, st := range p.pending {
		if now.Sub(st.since) > p.staleTTL {
			p.metrics.StaleDiscarded.Inc()
			p.logger.Warn("discarding stale half-state",
				"location", location, "pending_since", st.since)
			delete(p.pending, location)
		}
	}
	p.metrics.PendingStates.Set(float64(len(p.pending)))
}

// PendingLocations reports how many locations currently hold half-state.
func (p *Processor) PendingLocations() int {
	return len(p.pending)
}

func (p *Processor) commit(ctx context.Context, msg kafka.Message) {
	if msg.Commit == nil {
		return
	}
	if err := msg.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err, "offset", msg.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
