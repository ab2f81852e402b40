package store

import (
	"time"

	"gorm.io/datatypes"
)

// Location is a monitored geographic point. Rows are created and edited by
// an external admin surface; the pipeline only reads them.
type Location struct {
	ID        uint    `gorm:"primaryKey"`
	Name      string  `gorm:"index;not null"`
	Latitude  float64 `gorm:"uniqueIndex:idx_location_coords,priority:1"`
	Longitude float64 `gorm:"uniqueIndex:idx_location_coords,priority:2"`
	Country   string
	City      string
	IsActive  bool `gorm:"index;default:true"`
	CreatedAt time.Time
}

// RawRecord stores one provider payload verbatim. Append-only.
type RawRecord struct {
	ID         uint           `gorm:"primaryKey"`
	Source     string         `gorm:"index;not null"`
	Payload    datatypes.JSON `gorm:"type:json"`
	Location   string         `gorm:"index;not null"`
	Latitude   float64
	Longitude  float64
	ObservedAt time.Time `gorm:"index"`
	ReceivedAt time.Time `gorm:"autoCreateTime"`
}

// MergedRecord stores one completed weather+pollution join, with
// provenance links to the contributing raw records. Append-only.
type MergedRecord struct {
	ID          uint           `gorm:"primaryKey"`
	RawRecords  []RawRecord    `gorm:"many2many:merged_record_sources"`
	Data        datatypes.JSON `gorm:"type:json"`
	Location    string         `gorm:"index;not null"`
	Latitude    float64
	Longitude   float64
	ObservedAt  time.Time `gorm:"index"`
	ProcessedAt time.Time `gorm:"autoCreateTime"`
}

// PredictionModel tracks one model artifact and its lifecycle flags.
type PredictionModel struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"uniqueIndex:idx_model_name_version,priority:1"`
	Version      string `gorm:"uniqueIndex:idx_model_name_version,priority:2"`
	ArtifactPath string
	Metrics      datatypes.JSON `gorm:"type:json"`
	IsActive     bool           `gorm:"index"`
	IsRemote     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Prediction stores one prediction request. Append-only.
type Prediction struct {
	ID            uint           `gorm:"primaryKey"`
	ModelID       uint           `gorm:"index"`
	InputFeatures datatypes.JSON `gorm:"type:json"`
	OutputValue   float64
	Location      string `gorm:"index"`
	Latitude      float64
	Longitude     float64
	ObservedAt    time.Time `gorm:"index"`
	TargetTime    time.Time `gorm:"index"`
	CreatedAt     time.Time
}

// TrainingRun stores one training invocation's before/after evaluation.
// Append-only audit record.
type TrainingRun struct {
	ID             uint `gorm:"primaryKey"`
	ModelID        uint `gorm:"index"`
	WindowStart    time.Time
	WindowEnd      time.Time
	MetricsBefore  datatypes.JSON `gorm:"type:json"`
	MetricsAfter   datatypes.JSON `gorm:"type:json"`
	ImprovementPct *float64
	RemoteUpdated  bool
	CreatedAt      time.Time
}

// AlertRecipient is a user who opted into pollution threshold alerts.
type AlertRecipient struct {
	ID            uint   `gorm:"primaryKey"`
	Email         string `gorm:"uniqueIndex;not null"`
	Threshold     float64
	ReceiveAlerts bool `gorm:"index;default:true"`
	CreatedAt     time.Time
}
