package model

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airsight/air-quality-pipeline/internal/artifact"
	"github.com/airsight/air-quality-pipeline/internal/domain"
)

type fakeLifecycleStore struct {
	models  []domain.ModelInfo
	runs    []domain.TrainingRun
	records []domain.MergedRecord
	nextID  uint
}

func (s *fakeLifecycleStore) ActiveModel(context.Context) (*domain.ModelInfo, error) {
	for i := len(s.models) - 1; i >= 0; i-- {
		if s.models[i].IsActive {
			info := s.models[i]
			return &info, nil
		}
	}
	return nil, nil
}

func (s *fakeLifecycleStore) CreateModel(_ context.Context, info *domain.ModelInfo) error {
	s.nextID++
	info.ID = s.nextID
	s.models = append(s.models, *info)
	return nil
}

func (s *fakeLifecycleStore) DeactivateOthers(_ context.Context, keepID uint) error {
	for i := range s.models {
		if s.models[i].ID != keepID {
			s.models[i].IsActive = false
		}
	}
	return nil
}

func (s *fakeLifecycleStore) SaveTrainingRun(_ context.Context, run *domain.TrainingRun) error {
	s.runs = append(s.runs, *run)
	return nil
}

func (s *fakeLifecycleStore) MergedSince(_ context.Context, cutoff time.Time) ([]domain.MergedRecord, error) {
	var out []domain.MergedRecord
	for _, rec := range s.records {
		if rec.ObservedAt.After(cutoff) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakeLifecycleStore) activeModels() []domain.ModelInfo {
	var out []domain.ModelInfo
	for _, m := range s.models {
		if m.IsActive {
			out = append(out, m)
		}
	}
	return out
}

type fakeArtifactStore struct {
	configured  bool
	data        []byte
	downloadErr error
	uploadErr   error
	uploads     []string
}

func (f *fakeArtifactStore) Configured() bool { return f.configured }

func (f *fakeArtifactStore) Download(context.Context) ([]byte, error) {
	if !f.configured {
		return nil, artifact.ErrNotConfigured
	}
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.data, nil
}

func (f *fakeArtifactStore) Upload(_ context.Context, path string) error {
	if !f.configured {
		return artifact.ErrNotConfigured
	}
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, path)
	return nil
}

// trainingRecords produces merged records where pm25 tracks temperature,
// observed within the last day.
func trainingRecords(n int, now time.Time) []domain.MergedRecord {
	recs := make([]domain.MergedRecord, n)
	for i := range recs {
		temp := float64(i % 25)
		recs[i] = domain.MergedRecord{
			Location: "Paris",
			Weather: domain.Weather{
				Temperature: f64(temp),
				Humidity:    f64(50 + float64(i%20)),
				Pressure:    f64(1013),
			},
			Pollution: domain.Pollution{
				Measurements: map[string]float64{"pm25": 5 + 2*temp, "pm10": 10 + temp},
			},
			ObservedAt: now.Add(-time.Duration(i) * time.Minute),
		}
	}
	return recs
}

func newTestManager(t *testing.T, store *fakeLifecycleStore, remote *fakeArtifactStore, clock clockwork.Clock) *Manager {
	t.Helper()
	return NewManager(store, remote, t.TempDir(), 10, clock, slog.Default())
}

func TestTrain_InsufficientData(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &fakeLifecycleStore{records: trainingRecords(5, clock.Now())}
	mgr := newTestManager(t, store, &fakeArtifactStore{}, clock)

	_, err := mgr.Train(context.Background(), 30)
	require.ErrorIs(t, err, ErrInsufficientData)

	assert.Empty(t, store.models, "no model row for a skipped run")
	assert.Empty(t, store.runs, "no training run row for a skipped run")
}

func TestTrain_FirstModelActivates(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &fakeLifecycleStore{records: trainingRecords(100, clock.Now())}
	mgr := newTestManager(t, store, &fakeArtifactStore{}, clock)

	run, err := mgr.Train(context.Background(), 30)
	require.NoError(t, err)

	assert.Nil(t, run.MetricsBefore, "no prior model to compare against")
	assert.Nil(t, run.ImprovementPct)
	assert.False(t, run.RemoteUpdated, "undefined improvement never pushes")

	require.Len(t, store.models, 1)
	assert.True(t, store.models[0].IsActive)
	assert.Equal(t, "local_model", store.models[0].Name)
	require.NotNil(t, run.MetricsAfter)
	assert.Less(t, run.MetricsAfter.RMSE, 1.0, "linear data fits nearly exactly")

	snap := mgr.Active()
	require.NotNil(t, snap)
	assert.Equal(t, store.models[0].ID, snap.Info.ID)

	// The artifact is on disk and loadable.
	art, err := LoadArtifact(store.models[0].ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, domain.TargetFeature, art.Target)

	require.Len(t, store.runs, 1)
	assert.Equal(t, store.models[0].ID, store.runs[0].ModelID)
}

func TestTrain_LargeImprovementActivatesAndPushes(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &fakeLifecycleStore{records: trainingRecords(100, clock.Now())}
	remote := &fakeArtifactStore{configured: true}
	mgr := newTestManager(t, store, remote, clock)

	// Seed a useless active model: predicting a constant far from the data
	// guarantees a large RMSE improvement for the candidate.
	prior := &Artifact{
		Name:         "local_model",
		Version:      "0",
		Target:       domain.TargetFeature,
		Features:     append([]string(nil), domain.FeatureNames...),
		Intercept:    1000,
		Coefficients: make([]float64, len(domain.FeatureNames)),
	}
	info := domain.ModelInfo{Name: prior.Name, Version: prior.Version, IsActive: true}
	require.NoError(t, store.CreateModel(context.Background(), &info))
	mgr.active.Store(&Snapshot{Info: info, Artifact: prior})

	run, err := mgr.Train(context.Background(), 30)
	require.NoError(t, err)

	require.NotNil(t, run.ImprovementPct)
	assert.Greater(t, *run.ImprovementPct, remotePushThresholdPct)
	assert.True(t, run.RemoteUpdated)
	require.Len(t, remote.uploads, 1)

	// Exactly one active model remains, and it is the candidate.
	active := store.activeModels()
	require.Len(t, active, 1)
	assert.Equal(t, run.ModelID, active[0].ID)
	assert.Equal(t, run.ModelID, mgr.Active().Info.ID)
}

func TestTrain_PushFailureDoesNotBlockActivation(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &fakeLifecycleStore{records: trainingRecords(100, clock.Now())}
	remote := &fakeArtifactStore{configured: true, uploadErr: errors.New("remote down")}
	mgr := newTestManager(t, store, remote, clock)

	prior := &Artifact{
		Target:       domain.TargetFeature,
		Features:     append([]string(nil), domain.FeatureNames...),
		Intercept:    1000,
		Coefficients: make([]float64, len(domain.FeatureNames)),
	}
	info := domain.ModelInfo{Name: "local_model", IsActive: true}
	require.NoError(t, store.CreateModel(context.Background(), &info))
	mgr.active.Store(&Snapshot{Info: info, Artifact: prior})

	run, err := mgr.Train(context.Background(), 30)
	require.NoError(t, err)

	assert.False(t, run.RemoteUpdated)
	assert.Equal(t, run.ModelID, mgr.Active().Info.ID, "activation is local, push is best effort")
}

func TestTrain_PerfectPriorIsKept(t *testing.T) {
	// A prior with zero held-out RMSE leaves the improvement undefined, so
	// the candidate is recorded but never activated or pushed.
	clock := clockwork.NewFakeClock()
	store := &fakeLifecycleStore{records: trainingRecords(100, clock.Now())}
	remote := &fakeArtifactStore{configured: true}
	mgr := newTestManager(t, store, remote, clock)

	coefs := make([]float64, len(domain.FeatureNames))
	coefs[indexOf(domain.FeatureNames, domain.TargetFeature)] = 1
	prior := &Artifact{
		Name:         "local_model",
		Target:       domain.TargetFeature,
		Features:     append([]string(nil), domain.FeatureNames...),
		Coefficients: coefs,
	}
	info := domain.ModelInfo{Name: "local_model", IsActive: true}
	require.NoError(t, store.CreateModel(context.Background(), &info))
	mgr.active.Store(&Snapshot{Info: info, Artifact: prior})

	run, err := mgr.Train(context.Background(), 30)
	require.NoError(t, err)

	require.NotNil(t, run.MetricsBefore)
	assert.Zero(t, run.MetricsBefore.RMSE)
	assert.Nil(t, run.ImprovementPct)
	assert.False(t, run.RemoteUpdated)
	assert.Empty(t, remote.uploads)

	// The prior stays active; the candidate row exists but is inactive.
	active := store.activeModels()
	require.Len(t, active, 1)
	assert.Equal(t, info.ID, active[0].ID)
	assert.Equal(t, info.ID, mgr.Active().Info.ID)
	assert.Len(t, store.models, 2)
}

func TestDownloadRemote(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	remoteArtifact, err := json.Marshal(Artifact{
		Name:         "remote_model",
		Target:       domain.TargetFeature,
		Features:     append([]string(nil), domain.FeatureNames...),
		Intercept:    2,
		Coefficients: make([]float64, len(domain.FeatureNames)),
	})
	require.NoError(t, err)

	t.Run("success activates the downloaded model", func(t *testing.T) {
		store := &fakeLifecycleStore{}
		remote := &fakeArtifactStore{configured: true, data: remoteArtifact}
		mgr := newTestManager(t, store, remote, clock)

		require.True(t, mgr.DownloadRemote(context.Background()))

		require.Len(t, store.models, 1)
		assert.True(t, store.models[0].IsActive)
		assert.True(t, store.models[0].IsRemote)
		assert.Equal(t, "20260301120000", store.models[0].Version)

		snap := mgr.Active()
		require.NotNil(t, snap)
		assert.Equal(t, 2.0, snap.Artifact.Intercept)
	})

	t.Run("unconfigured remote", func(t *testing.T) {
		store := &fakeLifecycleStore{}
		mgr := newTestManager(t, store, &fakeArtifactStore{}, clock)

		assert.False(t, mgr.DownloadRemote(context.Background()))
		assert.Empty(t, store.models)
	})

	t.Run("corrupt remote artifact", func(t *testing.T) {
		store := &fakeLifecycleStore{}
		remote := &fakeArtifactStore{configured: true, data: []byte(`{{`)}
		mgr := newTestManager(t, store, remote, clock)

		assert.False(t, mgr.DownloadRemote(context.Background()))
		assert.Empty(t, store.models)
	})
}

func TestLoadActive(t *testing.T) {
	clock := clockwork.NewFakeClock()

	t.Run("loads the active row's artifact", func(t *testing.T) {
		store := &fakeLifecycleStore{}
		mgr := newTestManager(t, store, &fakeArtifactStore{}, clock)

		art := &Artifact{
			Target:       domain.TargetFeature,
			Features:     append([]string(nil), domain.FeatureNames...),
			Coefficients: make([]float64, len(domain.FeatureNames)),
		}
		path := mgr.modelsDir + "/model_seed.json"
		require.NoError(t, art.Save(path))
		require.NoError(t, store.CreateModel(context.Background(), &domain.ModelInfo{
			Name: "local_model", ArtifactPath: path, IsActive: true,
		}))

		require.NoError(t, mgr.LoadActive(context.Background()))
		assert.NotNil(t, mgr.Active())
	})

	t.Run("nothing local or remote", func(t *testing.T) {
		mgr := newTestManager(t, &fakeLifecycleStore{}, &fakeArtifactStore{}, clock)
		err := mgr.LoadActive(context.Background())
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})

	t.Run("missing artifact falls back to remote", func(t *testing.T) {
		remoteArtifact, err := json.Marshal(Artifact{
			Target:       domain.TargetFeature,
			Features:     append([]string(nil), domain.FeatureNames...),
			Coefficients: make([]float64, len(domain.FeatureNames)),
		})
		require.NoError(t, err)

		store := &fakeLifecycleStore{}
		require.NoError(t, store.CreateModel(context.Background(), &domain.ModelInfo{
			Name: "local_model", ArtifactPath: "/nonexistent/model.json", IsActive: true,
		}))
		mgr := newTestManager(t, store, &fakeArtifactStore{configured: true, data: remoteArtifact}, clock)

		require.NoError(t, mgr.LoadActive(context.Background()))
		assert.True(t, mgr.Active().Info.IsRemote)
	})
}

func TestPredict(t *testing.T) {
	clock := clockwork.NewFakeClock()

	t.Run("no model anywhere", func(t *testing.T) {
		mgr := newTestManager(t, &fakeLifecycleStore{}, &fakeArtifactStore{}, clock)
		_, _, err := mgr.Predict(context.Background(), domain.FeatureDefaults)
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})

	t.Run("evaluates the active snapshot", func(t *testing.T) {
		mgr := newTestManager(t, &fakeLifecycleStore{}, &fakeArtifactStore{}, clock)

		coefs := make([]float64, len(domain.FeatureNames))
		coefs[indexOf(domain.FeatureNames, "temperature")] = 2
		mgr.active.Store(&Snapshot{
			Info: domain.ModelInfo{ID: 9},
			Artifact: &Artifact{
				Features:     append([]string(nil), domain.FeatureNames...),
				Intercept:    1,
				Coefficients: coefs,
			},
		})

		features := map[string]float64{"temperature": 10}
		value, modelID, err := mgr.Predict(context.Background(), features)
		require.NoError(t, err)
		assert.Equal(t, uint(9), modelID)
		assert.InDelta(t, 21.0, value, 1e-12)
	})
}
