package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"incident-service/internal/domain/incident"
)

type IncidentRepository struct {
	db *gorm.DB
}

func NewIncidentRepository(db *gorm.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

func (IncidentEvent) TableName() string {
	return "incident_events"
}

type IncidentEvent struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	SourceID        string    `gorm:"not null"`
	IncidentType    string    `gorm:"not null"`
	Severity        string    `gorm:"not null"`
	Confidence      float64   `gorm:"not null"`
	Description     *string
	FrameIndex      int64   `gorm:"not null"`
	FrameTime       float64 `gorm:"not null"`
	SnapshotURL     *string
	RawJudgment     datatypes.JSON `gorm:"type:jsonb"`
	DispatchResults datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt       time.Time
}

// Create persists one incident event. dispatchResults may be nil when alerts
// have not been attempted yet.
func (r *IncidentRepository) Create(ctx context.Context, ev *incident.Event, dispatchResults any) error {
	dbEvent := IncidentEvent{
		ID:           ev.ID,
		SourceID:     ev.SourceID,
		IncidentType: string(ev.Type),
		Severity:     string(ev.Severity),
		Confidence:   ev.Confidence,
		FrameIndex:   ev.FrameIndex,
		FrameTime:    ev.FrameTime,
		CreatedAt:    ev.CreatedAt,
	}

	if ev.Description != "" {
		dbEvent.Description = &ev.Description
	}
	if ev.SnapshotURL != "" {
		dbEvent.SnapshotURL = &ev.SnapshotURL
	}

	raw, err := json.Marshal(ev.Judgment)
	if err != nil {
		return fmt.Errorf("marshal judgment: %w", err)
	}
	dbEvent.RawJudgment = datatypes.JSON(raw)

	if dispatchResults != nil {
		dr, err := json.Marshal(dispatchResults)
		if err != nil {
			return fmt.Errorf("marshal dispatch results: %w", err)
		}
		dbEvent.DispatchResults = datatypes.JSON(dr)
	}

	if err := r.db.WithContext(ctx).Create(&dbEvent).Error; err != nil {
		return fmt.Errorf("failed to create incident event in database: %w", err)
	}
	return nil
}

// UpdateDelivery records the snapshot URL and alert outcomes after the
// collaborators have been attempted.
func (r *IncidentRepository) UpdateDelivery(ctx context.Context, eventID uuid.UUID, snapshotURL string, dispatchResults any) error {
	updates := map[string]any{}
	if snapshotURL != "" {
		updates["snapshot_url"] = snapshotURL
	}
	if dispatchResults != nil {
		dr, err := json.Marshal(dispatchResults)
		if err != nil {
			return fmt.Errorf("marshal dispatch results: %w", err)
		}
		updates["dispatch_results"] = datatypes.JSON(dr)
	}
	if len(updates) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Model(&IncidentEvent{}).
		Where("id = ?", eventID).
		Updates(updates).Error
}

// Find returns events matching the filters, newest first.
func (r *IncidentRepository) Find(ctx context.Context, sourceID *string, incidentType *string, from, to *time.Time, limit, offset int) ([]IncidentEvent, error) {
	query := r.db.WithContext(ctx).Model(&IncidentEvent{})

	if sourceID != nil {
		query = query.Where("source_id = ?", *sourceID)
	}
	if incidentType != nil {
		query = query.Where("incident_type = ?", *incidentType)
	}
	if from != nil {
		query = query.Where("created_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("created_at <= ?", *to)
	}

	query = query.Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var events []IncidentEvent
	err := query.Find(&events).Error
	return events, err
}

func (r *IncidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*IncidentEvent, error) {
	var event IncidentEvent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// DeleteOldEvents removes events older than the given number of days.
func (r *IncidentRepository) DeleteOldEvents(ctx context.Context, days int) (int64, error) {
	cutoffTime := time.Now().AddDate(0, 0, -days)
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoffTime).
		Delete(&IncidentEvent{})

	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
