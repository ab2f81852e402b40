package domain

import "time"

// ModelMetrics are the evaluation metrics computed against a held-out set.
// RMSE is always sqrt(MSE).
type ModelMetrics struct {
	MAE  float64 `json:"mae"`
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
}

// ModelInfo is the durable metadata for one trained or downloaded model.
// At most one model is active at any time; the lifecycle manager enforces
// the invariant, not storage. Superseded models are deactivated, never
// deleted.
type ModelInfo struct {
	ID           uint
	Name         string
	Version      string
	ArtifactPath string
	Metrics      *ModelMetrics
	IsActive     bool
	IsRemote     bool
	CreatedAt    time.Time
}

// Prediction is one prediction request's immutable audit record.
type Prediction struct {
	ID            uint
	ModelID       uint
	InputFeatures map[string]float64
	OutputValue   float64
	Location      string
	Latitude      float64
	Longitude     float64
	ObservedAt    time.Time
	TargetTime    time.Time
	CreatedAt     time.Time
}

// TrainingRun is one training invocation's immutable audit record.
// ImprovementPct is nil when there was no prior model or the prior RMSE
// was zero.
type TrainingRun struct {
	ID             uint
	ModelID        uint
	WindowStart    time.Time
	WindowEnd      time.Time
	MetricsBefore  *ModelMetrics
	MetricsAfter   *ModelMetrics
	ImprovementPct *float64
	RemoteUpdated  bool
	CreatedAt      time.Time
}

// AlertRecipient is a user who opted into pollution threshold alerts.
type AlertRecipient struct {
	Email     string
	Threshold float64
}
