package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airsight/air-quality-pipeline/internal/domain"
)

func TestMarshalMetrics(t *testing.T) {
	t.Run("nil metrics become an empty object", func(t *testing.T) {
		data, err := marshalMetrics(nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{}`, string(data))
	})

	t.Run("roundtrip", func(t *testing.T) {
		data, err := marshalMetrics(&domain.ModelMetrics{MAE: 1.5, MSE: 4, RMSE: 2, R2: 0.9})
		require.NoError(t, err)

		var got domain.ModelMetrics
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, 2.0, got.RMSE)
		assert.Equal(t, 0.9, got.R2)
	})
}

func TestModelInfoFromRow(t *testing.T) {
	t.Run("with metrics", func(t *testing.T) {
		row := PredictionModel{
			ID:       4,
			Name:     "local_model",
			Version:  "20260301120000",
			Metrics:  []byte(`{"mae": 1, "mse": 4, "rmse": 2, "r2": 0.8}`),
			IsActive: true,
		}

		info := modelInfoFromRow(row)
		assert.Equal(t, uint(4), info.ID)
		assert.True(t, info.IsActive)
		require.NotNil(t, info.Metrics)
		assert.Equal(t, 2.0, info.Metrics.RMSE)
	})

	t.Run("unparsable metrics are dropped", func(t *testing.T) {
		info := modelInfoFromRow(PredictionModel{ID: 1, Metrics: []byte(`{{`)})
		assert.Nil(t, info.Metrics)
	})
}

func TestMergedDataSnapshotRoundtrip(t *testing.T) {
	temp := 15.0
	in := mergedData{
		Weather: domain.Weather{Temperature: &temp, Rain1h: 0.4},
		Pollution: domain.Pollution{
			Measurements: map[string]float64{"pm25": 12},
			Units:        map[string]string{"pm25": "µg/m³"},
		},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out mergedData
	require.NoError(t, json.Unmarshal(data, &out))
	require.NotNil(t, out.Weather.Temperature)
	assert.Equal(t, 15.0, *out.Weather.Temperature)
	assert.Equal(t, 12.0, out.Pollution.Measurements["pm25"])
}
