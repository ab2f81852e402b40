// Package model owns the prediction model lifecycle: loading the active
// model, serving predictions from an immutable snapshot, retraining from
// historical merged records, and syncing artifacts with the remote store.
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/airsight/air-quality-pipeline/internal/artifact"
	"github.com/airsight/air-quality-pipeline/internal/domain"
)

// ErrModelUnavailable means no model could be loaded locally or remotely;
// prediction requests fail with this rather than crashing.
var ErrModelUnavailable = errors.New("no model available")

// ErrInsufficientData means the training window held fewer samples than
// the configured minimum; no model and no training run are created.
var ErrInsufficientData = errors.New("insufficient training data")

const (
	// A candidate replaces the active model only with ≥5% RMSE improvement.
	activateThresholdPct = 5.0
	// A ≥10% improvement additionally pushes the artifact remotely.
	remotePushThresholdPct = 10.0

	versionLayout = "20060102150405"
)

// Store is the durable-store surface the lifecycle manager needs.
type Store interface {
	ActiveModel(ctx context.Context) (*domain.ModelInfo, error)
	CreateModel(ctx context.Context, info *domain.ModelInfo) error
	DeactivateOthers(ctx context.Context, keepID uint) error
	SaveTrainingRun(ctx context.Context, run *domain.TrainingRun) error
	MergedSince(ctx context.Context, cutoff time.Time) ([]domain.MergedRecord, error)
}

// ArtifactStore is the remote artifact surface.
type ArtifactStore interface {
	Configured() bool
	Download(ctx context.Context) ([]byte, error)
	Upload(ctx context.Context, path string) error
}

// Snapshot pairs a model's metadata with its loaded artifact. Snapshots
// are immutable; activation publishes a new one, so an in-flight
// prediction always sees a self-consistent model.
type Snapshot struct {
	Info     domain.ModelInfo
	Artifact *Artifact
}

// Manager is the model lifecycle manager. The training path mutates the
// active snapshot pointer; the prediction path only reads it.
type Manager struct {
	store      Store
	remote     ArtifactStore
	modelsDir  string
	minSamples int
	clock      clockwork.Clock
	logger     *slog.Logger

	active atomic.Pointer[Snapshot]
}

// NewManager creates a lifecycle manager. It does not load a model; call
// LoadActive before serving predictions.
func NewManager(store Store, remote ArtifactStore, modelsDir string, minSamples int, clock clockwork.Clock, logger *slog.Logger) *Manager {
	return &Manager{
		store:      store,
		remote:     remote,
		modelsDir:  modelsDir,
		minSamples: minSamples,
		clock:      clock,
		logger:     logger,
	}
}

// Active returns the current snapshot, or nil when no model is loaded.
func (m *Manager) Active() *Snapshot {
	return m.active.Load()
}

// LoadActive loads the newest active model row's artifact from local
// storage. A missing artifact or absent active row falls back to
// DownloadRemote; if that also fails, ErrModelUnavailable is returned.
func (m *Manager) LoadActive(ctx context.Context) error {
	info, err := m.store.ActiveModel(ctx)
	if err != nil {
		return fmt.Errorf("look up active model: %w", err)
	}

	if info != nil {
		art, err := LoadArtifact(info.ArtifactPath)
		if err == nil {
			m.active.Store(&Snapshot{Info: *info, Artifact: art})
			m.logger.Info("loaded active model", "name", info.Name, "version", info.Version)
			return nil
		}
		m.logger.Error("active model artifact unusable", "path", info.ArtifactPath, "error", err)
	} else {
		m.logger.Warn("no active model found")
	}

	if m.DownloadRemote(ctx) {
		return nil
	}
	return ErrModelUnavailable
}

// Predict evaluates the active model on a full feature map and returns
// the predicted value and the serving model's ID.
func (m *Manager) Predict(ctx context.Context, features map[string]float64) (float64, uint, error) {
	snap := m.active.Load()
	if snap == nil {
		if err := m.LoadActive(ctx); err != nil {
			return 0, 0, err
		}
		snap = m.active.Load()
	}
	return snap.Artifact.Predict(domain.Vector(features)), snap.Info.ID, nil
}

// DownloadRemote fetches the remote artifact, persists it locally under a
// generated filename, records it as the active remote model, and swaps it
// in. Returns false (and logs) when the remote store is unconfigured or
// the fetch fails.
func (m *Manager) DownloadRemote(ctx context.Context) bool {
	data, err := m.remote.Download(ctx)
	if err != nil {
		if errors.Is(err, artifact.ErrNotConfigured) {
			m.logger.Warn("remote model store not configured")
		} else {
			m.logger.Error("remote model download failed", "error", err)
		}
		return false
	}

	art, err := ParseArtifact(data)
	if err != nil {
		m.logger.Error("remote model artifact unusable", "error", err)
		return false
	}

	version := m.clock.Now().UTC().Format(versionLayout)
	path := filepath.Join(m.modelsDir, "model_"+version+".json")
	if err := art.Save(path); err != nil {
		m.logger.Error("persist remote model failed", "error", err)
		return false
	}

	info := domain.ModelInfo{
		Name:         "remote_model",
		Version:      version,
		ArtifactPath: path,
		IsActive:     true,
		IsRemote:     true,
	}
	if err := m.store.CreateModel(ctx, &info); err != nil {
		m.logger.Error("record remote model failed", "error", err)
		return false
	}
	if err := m.store.DeactivateOthers(ctx, info.ID); err != nil {
		m.logger.Error("deactivate superseded models failed", "error", err)
	}

	m.active.Store(&Snapshot{Info: info, Artifact: art})
	m.logger.Info("downloaded and activated remote model", "version", version)
	return true
}

// PushRemote uploads a local artifact to the remote store. Failures are
// logged and reported as false, never fatal.
func (m *Manager) PushRemote(ctx context.Context, path string) bool {
	if err := m.remote.Upload(ctx, path); err != nil {
		if errors.Is(err, artifact.ErrNotConfigured) {
			m.logger.Warn("remote model store not configured, skipping push")
		} else {
			m.logger.Error("remote model push failed", "error", err)
		}
		return false
	}
	return true
}

// Train fits a candidate regressor on the merged records of the last
// windowDays, evaluates it against the held-out set, decides activation,
// and records a training run.
//
// Activation: with no prior model the candidate always activates; with a
// prior model it activates only on ≥5% RMSE improvement. The improvement
// is undefined (nil) when the prior RMSE was zero, in which case the
// candidate is not activated and no remote push can occur.
func (m *Manager) Train(ctx context.Context, windowDays int) (*domain.TrainingRun, error) {
	windowEnd := m.clock.Now().UTC()
	windowStart := windowEnd.AddDate(0, 0, -windowDays)

	records, err := m.store.MergedSince(ctx, windowStart)
	if err != nil {
		return nil, fmt.Errorf("load training window: %w", err)
	}
	if len(records) < m.minSamples {
		return nil, fmt.Errorf("%w: %d records, need %d", ErrInsufficientData, len(records), m.minSamples)
	}

	x, y := buildDataset(records)
	trainX, trainY, testX, testY := splitDataset(x, y)

	intercept, coefficients, err := fitRegressor(trainX, trainY)
	if err != nil {
		return nil, fmt.Errorf("fit regressor: %w", err)
	}

	candidate := &Artifact{
		Name:         "local_model",
		Version:      windowEnd.Format(versionLayout),
		Target:       domain.TargetFeature,
		Features:     append([]string(nil), domain.FeatureNames...),
		Intercept:    intercept,
		Coefficients: coefficients,
		TrainedAt:    windowEnd,
	}
	metricsAfter := evaluate(candidate.Predict, testX, testY)

	// Evaluate the current model on the same held-out set for comparison.
	var metricsBefore *domain.ModelMetrics
	if prev := m.active.Load(); prev != nil {
		mb := evaluate(prev.Artifact.Predict, testX, testY)
		metricsBefore = &mb
	}

	var improvement *float64
	activate := metricsBefore == nil
	if metricsBefore != nil {
		improvement = improvementPct(metricsBefore.RMSE, metricsAfter.RMSE)
		activate = improvement != nil && *improvement >= activateThresholdPct
	}

	path := filepath.Join(m.modelsDir, "model_"+strings.ReplaceAll(uuid.NewString(), "-", "")+".json")
	if err := candidate.Save(path); err != nil {
		return nil, err
	}

	info := domain.ModelInfo{
		Name:         candidate.Name,
		Version:      candidate.Version,
		ArtifactPath: path,
		Metrics:      &metricsAfter,
		IsActive:     activate,
		IsRemote:     false,
	}
	if err := m.store.CreateModel(ctx, &info); err != nil {
		return nil, fmt.Errorf("record trained model: %w", err)
	}

	if activate {
		if err := m.store.DeactivateOthers(ctx, info.ID); err != nil {
			return nil, fmt.Errorf("deactivate superseded models: %w", err)
		}
		m.active.Store(&Snapshot{Info: info, Artifact: candidate})
		if improvement != nil {
			m.logger.Info("activated new model", "version", info.Version, "improvement_pct", *improvement)
		} else {
			m.logger.Info("activated first model", "version", info.Version)
		}
	} else {
		m.logger.Info("keeping current model", "candidate_version", info.Version)
	}

	run := &domain.TrainingRun{
		ModelID:        info.ID,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		MetricsBefore:  metricsBefore,
		MetricsAfter:   &metricsAfter,
		ImprovementPct: improvement,
	}

	if activate && improvement != nil && *improvement >= remotePushThresholdPct {
		run.RemoteUpdated = m.PushRemote(ctx, path)
	}

	if err := m.store.SaveTrainingRun(ctx, run); err != nil {
		return nil, fmt.Errorf("record training run: %w", err)
	}
	return run, nil
}
