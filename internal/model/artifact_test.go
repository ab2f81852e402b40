package model

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitRegressor_RecoversLinearRelation(t *testing.T) {
	// y = 3 + 2*a - b with two independent columns.
	var x [][]float64
	var y []float64
	for i := 0; i < 50; i++ {
		a := float64(i)
		b := float64(i % 7)
		x = append(x, []float64{a, b})
		y = append(y, 3+2*a-b)
	}

	intercept, coefs, err := fitRegressor(x, y)
	require.NoError(t, err)
	require.Len(t, coefs, 2)
	assert.InDelta(t, 3.0, intercept, 0.01)
	assert.InDelta(t, 2.0, coefs[0], 0.01)
	assert.InDelta(t, -1.0, coefs[1], 0.01)
}

func TestFitRegressor_CollinearColumns(t *testing.T) {
	// A constant column would make plain least squares singular; the ridge
	// term must keep the solve well posed.
	var x [][]float64
	var y []float64
	for i := 0; i < 20; i++ {
		x = append(x, []float64{float64(i), 5})
		y = append(y, float64(i))
	}

	_, coefs, err := fitRegressor(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, coefs[0], 0.01)
}

func TestFitRegressor_InvalidShapes(t *testing.T) {
	_, _, err := fitRegressor(nil, nil)
	assert.Error(t, err)

	_, _, err = fitRegressor([][]float64{{1, 2}, {3}}, []float64{1, 2})
	assert.Error(t, err)
}

func TestArtifact_Predict(t *testing.T) {
	a := &Artifact{
		Features:     []string{"a", "b"},
		Intercept:    1,
		Coefficients: []float64{2, 3},
	}
	assert.Equal(t, 1+2*4+3*5, int(a.Predict([]float64{4, 5})))
	// Short vectors only consume the columns they carry.
	assert.Equal(t, 1+2*4, int(a.Predict([]float64{4})))
}

func TestArtifact_SaveLoadRoundtrip(t *testing.T) {
	a := &Artifact{
		Name:         "local_model",
		Version:      "20260301120000",
		Target:       "pm25",
		Features:     []string{"a", "b"},
		Intercept:    0.5,
		Coefficients: []float64{1.5, -2},
		TrainedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	path := filepath.Join(t.TempDir(), "nested", "model.json")
	require.NoError(t, a.Save(path))

	got, err := LoadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestParseArtifact_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{{`},
		{"no features", `{"name": "m", "coefficients": []}`},
		{"schema mismatch", `{"features": ["a", "b"], "coefficients": [1]}`},
		{"coefficient overflow", `{"features": ["a"], "coefficients": [1e999]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseArtifact([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadArtifact_MissingFile(t *testing.T) {
	_, err := LoadArtifact(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
