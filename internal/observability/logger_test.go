package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"), "unknown levels fall back to info")
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger("debug", "json")
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	logger = NewLogger("warn", "text")
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}

func TestNewMetricsForTesting(t *testing.T) {
	// Unregistered instances can coexist; NewMetrics would panic on the
	// second registration.
	m1 := NewMetricsForTesting()
	m2 := NewMetricsForTesting()

	m1.MergesProduced.Inc()
	m2.TrainingRuns.WithLabelValues("ok").Inc()
	m1.FetchRequests.WithLabelValues("weather", "success").Inc()
}
