package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Artifact is the serialized form of a trained regressor: the fixed
// feature schema plus fitted coefficients. Stored as JSON so the remote
// artifact store can treat it as an opaque binary.
type Artifact struct {
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	Target       string    `json:"target"`
	Features     []string  `json:"features"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
	TrainedAt    time.Time `json:"trained_at"`
}

// ridgeLambda stabilizes the normal equations when feature columns are
// collinear, which happens whenever a pollutant column is entirely filled
// with one value.
const ridgeLambda = 1e-3

// fitRegressor solves the regularized least-squares problem for the given
// rows and targets and returns the fitted coefficients.
func fitRegressor(x [][]float64, y []float64) (intercept float64, coefficients []float64, err error) {
	n := len(x)
	if n == 0 || n != len(y) {
		return 0, nil, fmt.Errorf("invalid training shape: %d rows, %d targets", n, len(y))
	}
	p := len(x[0])

	// Design matrix with a leading column of ones for the intercept.
	a := mat.NewDense(n, p+1, nil)
	for i, row := range x {
		if len(row) != p {
			return 0, nil, fmt.Errorf("ragged training row %d", i)
		}
		a.Set(i, 0, 1)
		for j, v := range row {
			a.Set(i, j+1, v)
		}
	}
	b := mat.NewVecDense(n, y)

	// Normal equations (AᵀA + λI)β = Aᵀy, intercept unpenalized.
	var ata mat.Dense
	ata.Mul(a.T(), a)
	for j := 1; j <= p; j++ {
		ata.Set(j, j, ata.At(j, j)+ridgeLambda)
	}
	var aty mat.VecDense
	aty.MulVec(a.T(), b)

	var sol mat.VecDense
	if err := sol.SolveVec(&ata, &aty); err != nil {
		return 0, nil, fmt.Errorf("solve least squares: %w", err)
	}

	coefficients = make([]float64, p)
	for j := 0; j < p; j++ {
		coefficients[j] = sol.AtVec(j + 1)
	}
	return sol.AtVec(0), coefficients, nil
}

// Predict evaluates the regressor on one feature vector ordered by the
// artifact's feature schema.
func (a *Artifact) Predict(vector []float64) float64 {
	v := a.Intercept
	for i, c := range a.Coefficients {
		if i < len(vector) {
			v += c * vector[i]
		}
	}
	return v
}

// Save writes the artifact to disk, creating the directory if needed.
func (a *Artifact) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create models dir: %w", err)
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", path, err)
	}
	return nil
}

// LoadArtifact reads and validates an artifact file.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}
	return ParseArtifact(data)
}

// ParseArtifact decodes artifact bytes and checks internal consistency.
func ParseArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if len(a.Features) == 0 || len(a.Coefficients) != len(a.Features) {
		return nil, errors.New("artifact feature schema and coefficients disagree")
	}
	for _, c := range a.Coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, errors.New("artifact contains non-finite coefficients")
		}
	}
	return &a, nil
}
