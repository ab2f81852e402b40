package model

import (
	"math"
	"math/rand"

	"github.com/airsight/air-quality-pipeline/internal/domain"
)

// splitSeed makes the train/test split reproducible across runs so
// before/after metrics are comparable.
const (
	splitSeed    = 42
	testFraction = 0.2
)

// buildDataset turns merged records into a feature table ordered by the
// fixed schema. Missing values start as NaN and are filled per column:
// forward fill, then backward fill, then zero.
func buildDataset(records []domain.MergedRecord) (x [][]float64, y []float64) {
	n := len(records)
	cols := len(domain.FeatureNames)

	x = make([][]float64, n)
	for i, rec := range records {
		row := domain.FeatureRow(rec)
		x[i] = make([]float64, cols)
		for j, name := range domain.FeatureNames {
			if v, ok := row[name]; ok {
				x[i][j] = v
			} else {
				x[i][j] = math.NaN()
			}
		}
	}

	fillColumns(x)

	// The target column is the filled pm25 concentration.
	targetCol := indexOf(domain.FeatureNames, domain.TargetFeature)
	y = make([]float64, n)
	for i := range x {
		y[i] = x[i][targetCol]
	}
	return x, y
}

// fillColumns applies forward fill, backward fill, then zero to each
// column in place.
func fillColumns(x [][]float64) {
	if len(x) == 0 {
		return
	}
	cols := len(x[0])

	for j := 0; j < cols; j++ {
		last := math.NaN()
		for i := 0; i < len(x); i++ {
			if math.IsNaN(x[i][j]) {
				x[i][j] = last
			} else {
				last = x[i][j]
			}
		}
		next := math.NaN()
		for i := len(x) - 1; i >= 0; i-- {
			if math.IsNaN(x[i][j]) {
				x[i][j] = next
			} else {
				next = x[i][j]
			}
		}
		for i := range x {
			if math.IsNaN(x[i][j]) {
				x[i][j] = 0
			}
		}
	}
}

// splitDataset shuffles row indices with the fixed seed and carves off the
// test fraction, at least one row on each side.
func splitDataset(x [][]float64, y []float64) (trainX [][]float64, trainY []float64, testX [][]float64, testY []float64) {
	n := len(x)
	perm := rand.New(rand.NewSource(splitSeed)).Perm(n)

	nTest := int(float64(n) * testFraction)
	if nTest < 1 {
		nTest = 1
	}
	if nTest >= n {
		nTest = n - 1
	}

	for i, idx := range perm {
		if i < nTest {
			testX = append(testX, x[idx])
			testY = append(testY, y[idx])
		} else {
			trainX = append(trainX, x[idx])
			trainY = append(trainY, y[idx])
		}
	}
	return trainX, trainY, testX, testY
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
