// Package store is the durable record store for the pipeline, backed by
// PostgreSQL through GORM. The pipeline reads and writes through the
// narrow per-component interfaces declared by the consuming packages;
// Store satisfies all of them.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/airsight/air-quality-pipeline/internal/domain"
)

// Store wraps the GORM connection with pipeline-shaped operations.
type Store struct {
	db *gorm.DB
}

// Connect opens a PostgreSQL connection and migrates the schema.
func Connect(databaseURL string) (*Store, error) {
	// PrepareStmt avoids the GORM migrator forcing simple protocol for its
	// introspection queries against pgx.
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(
		&Location{},
		&RawRecord{},
		&MergedRecord{},
		&PredictionModel{},
		&Prediction{},
		&TrainingRun{},
		&AlertRecipient{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// ActiveLocations returns every location flagged active.
func (s *Store) ActiveLocations(ctx context.Context) ([]domain.Location, error) {
	var rows []Location
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query active locations: %w", err)
	}

	locations := make([]domain.Location, len(rows))
	for i, r := range rows {
		locations[i] = domain.Location{
			Name:      r.Name,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			Country:   r.Country,
			City:      r.City,
			IsActive:  r.IsActive,
		}
	}
	return locations, nil
}

// SaveRaw persists one raw event and returns its assigned ID.
func (s *Store) SaveRaw(ctx context.Context, raw domain.RawEvent) (uint, error) {
	row := RawRecord{
		Source:     string(raw.Source),
		Payload:    []byte(raw.Payload),
		Location:   raw.Location,
		Latitude:   raw.Latitude,
		Longitude:  raw.Longitude,
		ObservedAt: raw.ObservedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("insert raw record: %w", err)
	}
	return row.ID, nil
}

// mergedData is the JSON snapshot stored in a merged record's Data column.
type mergedData struct {
	Weather   domain.Weather   `json:"weather"`
	Pollution domain.Pollution `json:"pollution"`
}

// SaveMerged persists one merged record with provenance links to the
// contributing raw records, and returns its assigned ID.
func (s *Store) SaveMerged(ctx context.Context, rec domain.MergedRecord, rawIDs []uint) (uint, error) {
	data, err := json.Marshal(mergedData{Weather: rec.Weather, Pollution: rec.Pollution})
	if err != nil {
		return 0, fmt.Errorf("marshal merged data: %w", err)
	}

	row := MergedRecord{
		Data:       data,
		Location:   rec.Location,
		Latitude:   rec.Latitude,
		Longitude:  rec.Longitude,
		ObservedAt: rec.ObservedAt,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert merged record: %w", err)
		}
		for _, id := range rawIDs {
			var raw RawRecord
			if err := tx.First(&raw, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					// Provenance is best-effort; a missing raw row does not
					// invalidate the merge itself.
					continue
				}
				return fmt.Errorf("load raw record %d: %w", id, err)
			}
			if err := tx.Model(&row).Association("RawRecords").Append(&raw); err != nil {
				return fmt.Errorf("link raw record %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return row.ID, nil
}

// MergedSince returns every merged record observed at or after the cutoff,
// oldest first. Used to build training windows.
func (s *Store) MergedSince(ctx context.Context, cutoff time.Time) ([]domain.MergedRecord, error) {
	var rows []MergedRecord
	if err := s.db.WithContext(ctx).
		Where("observed_at >= ?", cutoff).
		Order("observed_at").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query merged records: %w", err)
	}

	records := make([]domain.MergedRecord, 0, len(rows))
	for _, r := range rows {
		var data mergedData
		if err := json.Unmarshal(r.Data, &data); err != nil {
			// Skip rows whose snapshot no longer parses rather than failing
			// the whole training window.
			continue
		}
		records = append(records, domain.MergedRecord{
			ID:         r.ID,
			Location:   r.Location,
			Latitude:   r.Latitude,
			Longitude:  r.Longitude,
			Weather:    data.Weather,
			Pollution:  data.Pollution,
			ObservedAt: r.ObservedAt,
		})
	}
	return records, nil
}

// ActiveModel returns the active model row with the newest created_at, or
// nil when no model is active.
func (s *Store) ActiveModel(ctx context.Context) (*domain.ModelInfo, error) {
	var row PredictionModel
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active model: %w", err)
	}

	info := modelInfoFromRow(row)
	return &info, nil
}

// CreateModel persists a model row and backfills the assigned ID.
func (s *Store) CreateModel(ctx context.Context, info *domain.ModelInfo) error {
	metrics, err := marshalMetrics(info.Metrics)
	if err != nil {
		return err
	}
	row := PredictionModel{
		Name:         info.Name,
		Version:      info.Version,
		ArtifactPath: info.ArtifactPath,
		Metrics:      metrics,
		IsActive:     info.IsActive,
		IsRemote:     info.IsRemote,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert model: %w", err)
	}
	info.ID = row.ID
	info.CreatedAt = row.CreatedAt
	return nil
}

// DeactivateOthers clears the active flag on every model except the given
// one, restoring the single-active invariant after an activation.
func (s *Store) DeactivateOthers(ctx context.Context, keepID uint) error {
	err := s.db.WithContext(ctx).
		Model(&PredictionModel{}).
		Where("id <> ? AND is_active = ?", keepID, true).
		Update("is_active", false).Error
	if err != nil {
		return fmt.Errorf("deactivate models: %w", err)
	}
	return nil
}

// SavePrediction persists one prediction and backfills the assigned ID.
func (s *Store) SavePrediction(ctx context.Context, p *domain.Prediction) error {
	features, err := json.Marshal(p.InputFeatures)
	if err != nil {
		return fmt.Errorf("marshal input features: %w", err)
	}
	row := Prediction{
		ModelID:       p.ModelID,
		InputFeatures: features,
		OutputValue:   p.OutputValue,
		Location:      p.Location,
		Latitude:      p.Latitude,
		Longitude:     p.Longitude,
		ObservedAt:    p.ObservedAt,
		TargetTime:    p.TargetTime,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	p.ID = row.ID
	p.CreatedAt = row.CreatedAt
	return nil
}

// SaveTrainingRun persists one training audit record.
func (s *Store) SaveTrainingRun(ctx context.Context, r *domain.TrainingRun) error {
	before, err := marshalMetrics(r.MetricsBefore)
	if err != nil {
		return err
	}
	after, err := marshalMetrics(r.MetricsAfter)
	if err != nil {
		return err
	}
	row := TrainingRun{
		ModelID:        r.ModelID,
		WindowStart:    r.WindowStart,
		WindowEnd:      r.WindowEnd,
		MetricsBefore:  before,
		MetricsAfter:   after,
		ImprovementPct: r.ImprovementPct,
		RemoteUpdated:  r.RemoteUpdated,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert training run: %w", err)
	}
	r.ID = row.ID
	r.CreatedAt = row.CreatedAt
	return nil
}

// Recipients returns every user who opted into threshold alerts.
func (s *Store) Recipients(ctx context.Context) ([]domain.AlertRecipient, error) {
	var rows []AlertRecipient
	if err := s.db.WithContext(ctx).Where("receive_alerts = ?", true).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query alert recipients: %w", err)
	}

	recipients := make([]domain.AlertRecipient, len(rows))
	for i, r := range rows {
		recipients[i] = domain.AlertRecipient{Email: r.Email, Threshold: r.Threshold}
	}
	return recipients, nil
}

func modelInfoFromRow(row PredictionModel) domain.ModelInfo {
	info := domain.ModelInfo{
		ID:           row.ID,
		Name:         row.Name,
		Version:      row.Version,
		ArtifactPath: row.ArtifactPath,
		IsActive:     row.IsActive,
		IsRemote:     row.IsRemote,
		CreatedAt:    row.CreatedAt,
	}
	if len(row.Metrics) > 0 {
		var m domain.ModelMetrics
		if err := json.Unmarshal(row.Metrics, &m); err == nil {
			info.Metrics = &m
		}
	}
	return info
}

func marshalMetrics(m *domain.ModelMetrics) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metrics: %w", err)
	}
	return data, nil
}
