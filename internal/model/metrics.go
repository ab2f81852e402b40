package model

import (
	"math"

	"github.com/airsight/air-quality-pipeline/internal/domain"
)

// evaluate computes MAE, MSE, RMSE, and R² for a predictor over a held-out
// set. RMSE is always sqrt(MSE). R² is zero when the targets have no
// variance.
func evaluate(predict func([]float64) float64, x [][]float64, y []float64) domain.ModelMetrics {
	n := len(y)
	if n == 0 {
		return domain.ModelMetrics{}
	}

	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(n)

	var absSum, sqSum, totSum float64
	for i, row := range x {
		diff := y[i] - predict(row)
		absSum += math.Abs(diff)
		sqSum += diff * diff
		totSum += (y[i] - mean) * (y[i] - mean)
	}

	mse := sqSum / float64(n)
	m := domain.ModelMetrics{
		MAE:  absSum / float64(n),
		MSE:  mse,
		RMSE: math.Sqrt(mse),
	}
	if totSum > 0 {
		m.R2 = 1 - sqSum/totSum
	}
	return m
}

// improvementPct computes the RMSE improvement percentage of a candidate
// over the prior model. Returns nil when the prior RMSE is zero, leaving
// the improvement undefined.
func improvementPct(rmseBefore, rmseAfter float64) *float64 {
	if rmseBefore <= 0 {
		return nil
	}
	pct := (rmseBefore - rmseAfter) / rmseBefore * 100
	return &pct
}
