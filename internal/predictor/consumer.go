// Package predictor implements the prediction/training consumer: every
// merged record becomes a prediction against the active model, and a
// time-based schedule triggers retraining.
package predictor

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
	"github.com/airsight/air-quality-pipeline/internal/model"
	"github.com/airsight/air-quality-pipeline/internal/observability"
)

// ProcessedConsumer delivers merged records from the processed topic.
type ProcessedConsumer interface {
	Fetch(ctx context.Context) (kafka.Message, error)
}

// PredictionStore persists prediction audit records.
type PredictionStore interface {
	SavePrediction(ctx context.Context, p *domain.Prediction) error
}

// RecipientSource lists users who opted into threshold alerts.
type RecipientSource interface {
	Recipients(ctx context.Context) ([]domain.AlertRecipient, error)
}

// Alert is the payload handed to the notification collaborator when a
// prediction exceeds a recipient's threshold.
type Alert struct {
	Location  string    `json:"location"`
	Pollutant string    `json:"pollutant"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Time      time.Time `json:"time"`
}

// Notifier delivers alerts. Failures are logged, never retried, and never
// block the prediction path.
type Notifier interface {
	Notify(ctx context.Context, recipient domain.AlertRecipient, alert Alert) error
}

// ModelService is the lifecycle-manager surface the consumer needs.
type ModelService interface {
	Predict(ctx context.Context, features map[string]float64) (float64, uint, error)
	Train(ctx context.Context, windowDays int) (*domain.TrainingRun, error)
}

// Consumer is the prediction/training loop.
type Consumer struct {
	consumer   ProcessedConsumer
	models     ModelService
	store      PredictionStore
	recipients RecipientSource
	notifier   Notifier
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics

	horizon       time.Duration
	trainInterval time.Duration
	trainTimeout  time.Duration
	windowDays    int

	// lastTrained is owned exclusively by the Run loop.
	lastTrained time.Time
	ready       atomic.Bool
}

// New creates a prediction/training consumer. The training schedule
// starts counting from construction time.
func New(consumer ProcessedConsumer, models ModelService, store PredictionStore, recipients RecipientSource, notifier Notifier,
	horizon, trainInterval, trainTimeout time.Duration, windowDays int,
	clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Consumer {
	return &Consumer{
		consumer:      consumer,
		models:        models,
		store:         store,
		recipients:    recipients,
		notifier:      notifier,
		clock:         clock,
		logger:        logger,
		metrics:       metrics,
		horizon:       horizon,
		trainInterval: trainInterval,
		trainTimeout:  trainTimeout,
		windowDays:    windowDays,
		lastTrained:   clock.Now(),
	}
}

// CheckReadiness returns nil once the consumer has handled at least one
// message.
func (c *Consumer) CheckReadiness(_ context.Context) error {
	if !c.ready.Load() {
		return errors.New("consumer has not handled any messages yet")
	}
	return nil
}

// Run executes the consume loop until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("prediction consumer started",
		"horizon", c.horizon, "train_interval", c.trainInterval)
	c.metrics.PipelineRunning.Set(1)
	defer c.metrics.PipelineRunning.Set(0)

	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("prediction consumer stopping", "reason", ctx.Err())
			return nil
		default:
		}

		msg, err := c.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("fetch merged record failed", "error", err)
			if !sleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = 200 * time.Millisecond

		c.Handle(ctx, msg)
		c.ready.Store(true)
	}
}

// Handle processes one merged record: predict, persist, evaluate alerts,
// and check the retraining schedule.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) {
	defer c.commit(ctx, msg)

	var rec domain.MergedRecord
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		c.logger.Error("decode merged record failed", "error", err, "offset", msg.Offset)
		return
	}

	c.predict(ctx, rec)
	c.maybeTrain(ctx)
}

func (c *Consumer) predict(ctx context.Context, rec domain.MergedRecord) {
	features := domain.PredictionFeatures(rec)

	value, modelID, err := c.models.Predict(ctx, features)
	if err != nil {
		c.metrics.PredictionErrors.Inc()
		if errors.Is(err, model.ErrModelUnavailable) {
			c.logger.Warn("prediction skipped, no model available", "location", rec.Location)
		} else {
			c.logger.Error("prediction failed", "location", rec.Location, "error", err)
		}
		return
	}

	pred := &domain.Prediction{
		ModelID:       modelID,
		InputFeatures: features,
		OutputValue:   value,
		Location:      rec.Location,
		Latitude:      rec.Latitude,
		Longitude:     rec.Longitude,
		ObservedAt:    rec.ObservedAt,
		TargetTime:    rec.ObservedAt.Add(c.horizon),
	}
	if err := c.store.SavePrediction(ctx, pred); err != nil {
		c.logger.Error("persist prediction failed", "location", rec.Location, "error", err)
		return
	}
	c.metrics.PredictionsMade.Inc()
	c.logger.Info("prediction made",
		"location", rec.Location, "value", value, "target_time", pred.TargetTime)

	c.evaluateAlerts(ctx, pred)
}

// evaluateAlerts compares the prediction against every recipient's
// threshold and hands exceedances to the notifier.
func (c *Consumer) evaluateAlerts(ctx context.Context, pred *domain.Prediction) {
	recipients, err := c.recipients.Recipients(ctx)
	if err != nil {
		c.logger.Error("list alert recipients failed", "error", err)
		return
	}

	for _, r := range recipients {
		if pred.OutputValue <= r.Threshold {
			continue
		}
		alert := Alert{
			Location:  pred.Location,
			Pollutant: domain.TargetFeature,
			Value:     pred.OutputValue,
			Threshold: r.Threshold,
			Time:      pred.TargetTime,
		}
		if err := c.notifier.Notify(ctx, r, alert); err != nil {
			c.logger.Error("alert delivery failed", "recipient", r.Email, "error", err)
			continue
		}
		c.metrics.AlertsSent.Inc()
	}
}

// maybeTrain triggers retraining when the configured interval has elapsed.
// The timestamp advances whether training succeeds or fails, preventing a
// tight retry loop; the timeout keeps a stalled run from stalling the
// schedule.
func (c *Consumer) maybeTrain(ctx context.Context) {
	if c.clock.Now().Sub(c.lastTrained) < c.trainInterval {
		return
	}
	c.lastTrained = c.clock.Now()

	c.logger.Info("training model on schedule", "window_days", c.windowDays)
	start := time.Now()

	trainCtx, cancel := context.WithTimeout(ctx, c.trainTimeout)
	defer cancel()

	run, err := c.models.Train(trainCtx, c.windowDays)
	c.metrics.TrainingDuration.Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, model.ErrInsufficientData):
		c.metrics.TrainingRuns.WithLabelValues("insufficient").Inc()
		c.logger.Warn("training aborted", "error", err)
	case err != nil:
		c.metrics.TrainingRuns.WithLabelValues("error").Inc()
		c.logger.Error("training failed", "error", err)
	default:
		c.metrics.TrainingRuns.WithLabelValues("ok").Inc()
		c.logger.Info("training run recorded",
			"model_id", run.ModelID, "remote_updated", run.RemoteUpdated)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if msg.Commit == nil {
		return
	}
	if err := msg.Commit(ctx); err != nil {
		c.logger.Warn("commit offset failed", "error", err, "offset", msg.Offset)
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
