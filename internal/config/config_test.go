package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/airquality")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "raw_pollution_weather_data", cfg.RawTopic)
	assert.Equal(t, "processed_pollution_weather_data", cfg.ProcessedTopic)
	assert.Equal(t, "join-processor", cfg.ProcessorGroupID)
	assert.Equal(t, "model-consumer", cfg.PredictorGroupID)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "json", cfg.LogFormat)

	assert.Equal(t, 30*time.Second, cfg.CycleInterval)
	assert.Equal(t, time.Second, cfg.LocationDelay)
	assert.Equal(t, time.Minute, cfg.IdleBackoff)
	assert.Equal(t, 24*time.Hour, cfg.StaleStateTTL)

	assert.Equal(t, "models", cfg.ModelsDir)
	assert.Equal(t, 30, cfg.TrainWindowDays)
	assert.Equal(t, 24*time.Hour, cfg.TrainInterval)
	assert.Equal(t, 10*time.Minute, cfg.TrainTimeout)
	assert.Equal(t, 100, cfg.MinTrainingSamples)
	assert.Equal(t, 24*time.Hour, cfg.PredictionHorizon)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/airquality")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("CYCLE_INTERVAL", "5m")
	t.Setenv("MIN_TRAINING_SAMPLES", "250")
	t.Setenv("STALE_STATE_TTL", "0s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Minute, cfg.CycleInterval)
	assert.Equal(t, 250, cfg.MinTrainingSamples)
	assert.Zero(t, cfg.StaleStateTTL, "zero TTL disables the stale sweep")
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unparsable duration", "TRAIN_INTERVAL", "soon"},
		{"negative duration", "CYCLE_INTERVAL", "-30s"},
		{"unparsable int", "TRAIN_WINDOW_DAYS", "month"},
		{"non-positive window", "TRAIN_WINDOW_DAYS", "0"},
		{"non-positive samples", "MIN_TRAINING_SAMPLES", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/airquality")
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2"}, parseBrokers("a:1,b:2"))
	assert.Equal(t, []string{"a:1"}, parseBrokers(" a:1 , "))
	assert.Empty(t, parseBrokers(","))
}
