package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"

	"incident-service/internal/dispatch"
	"incident-service/internal/domain/incident"
	"incident-service/internal/repository"
	"incident-service/internal/storage"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// deliveryTimeout bounds the background snapshot upload and alert fan-out for
// a single event.
const deliveryTimeout = 30 * time.Second

type IncidentService struct {
	repo       *repository.IncidentRepository
	snapshots  *storage.SnapshotStore
	dispatcher *dispatch.Dispatcher
	log        zerolog.Logger
}

func NewIncidentService(repo *repository.IncidentRepository, snapshots *storage.SnapshotStore, dispatcher *dispatch.Dispatcher, log zerolog.Logger) *IncidentService {
	return &IncidentService{
		repo:       repo,
		snapshots:  snapshots,
		dispatcher: dispatcher,
		log:        log,
	}
}

// HandleIncident persists the event, then uploads the snapshot and fans out
// alerts in the background. The pipeline calls this inline on the frame path,
// so only the insert is synchronous.
func (s *IncidentService) HandleIncident(ctx context.Context, ev incident.Event, frameJPEG []byte) error {
	if err := s.repo.Create(ctx, &ev, nil); err != nil {
		s.log.Error().
			Err(err).
			Str("event_id", ev.ID.String()).
			Str("source_id", ev.SourceID).
			Msg("failed to save incident event")
		return fmt.Errorf("failed to save incident event: %w", err)
	}

	s.log.Info().
		Str("event_id", ev.ID.String()).
		Str("source_id", ev.SourceID).
		Str("incident_type", string(ev.Type)).
		Str("severity", string(ev.Severity)).
		Float64("confidence", ev.Confidence).
		Int64("frame_index", ev.FrameIndex).
		Msg("saved incident event to database")

	frameCopy := make([]byte, len(frameJPEG))
	copy(frameCopy, frameJPEG)
	go s.deliver(ev, frameCopy)

	return nil
}

func (s *IncidentService) deliver(ev incident.Event, frameJPEG []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	if s.snapshots != nil && len(frameJPEG) > 0 {
		url, err := s.snapshots.UploadSnapshot(ctx, ev.ID, ev.CreatedAt, frameJPEG)
		if err != nil {
			s.log.Error().
				Err(err).
				Str("event_id", ev.ID.String()).
				Msg("failed to upload incident snapshot")
		} else {
			ev.SnapshotURL = url
			s.log.Debug().
				Str("event_id", ev.ID.String()).
				Str("snapshot_url", url).
				Msg("uploaded incident snapshot")
		}
	}

	var results []dispatch.ChannelResult
	if s.dispatcher != nil {
		results = s.dispatcher.Dispatch(ctx, ev)
	}

	if err := s.repo.UpdateDelivery(ctx, ev.ID, ev.SnapshotURL, results); err != nil {
		s.log.Error().
			Err(err).
			Str("event_id", ev.ID.String()).
			Msg("failed to record delivery results")
	}
}

func (s *IncidentService) FindIncidents(ctx context.Context, sourceID, incidentType *string, from, to *string, limit, offset int) ([]IncidentInfo, error) {
	if incidentType != nil && *incidentType != "" {
		if !incident.Type(*incidentType).Valid() {
			return nil, fmt.Errorf("%w: unknown incident type %q", ErrInvalidInput, *incidentType)
		}
	}

	var fromTime, toTime *time.Time
	if from != nil && *from != "" {
		t, err := time.Parse(time.RFC3339, *from)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid from time format", ErrInvalidInput)
		}
		fromTime = &t
	}
	if to != nil && *to != "" {
		t, err := time.Parse(time.RFC3339, *to)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid to time format", ErrInvalidInput)
		}
		toTime = &t
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	if sourceID != nil && *sourceID == "" {
		sourceID = nil
	}
	if incidentType != nil && *incidentType == "" {
		incidentType = nil
	}

	events, err := s.repo.Find(ctx, sourceID, incidentType, fromTime, toTime, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find incidents: %w", err)
	}

	return lo.Map(events, func(e repository.IncidentEvent, _ int) IncidentInfo {
		return toIncidentInfo(e)
	}), nil
}

func (s *IncidentService) GetIncident(ctx context.Context, id string) (*IncidentInfo, error) {
	eventID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid incident id", ErrInvalidInput)
	}

	event, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	if event == nil {
		return nil, fmt.Errorf("%w: incident %s", ErrNotFound, id)
	}

	info := toIncidentInfo(*event)
	return &info, nil
}

// ExportIncidents writes matching events as an xlsx workbook.
func (s *IncidentService) ExportIncidents(ctx context.Context, w io.Writer, sourceID, incidentType *string, from, to *string) error {
	incidents, err := s.FindIncidents(ctx, sourceID, incidentType, from, to, 200, 0)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Incidents"
	f.SetSheetName(f.GetSheetName(0), sheet)

	headers := []string{"ID", "Source", "Type", "Severity", "Confidence", "Description", "Frame Index", "Frame Time (s)", "Snapshot URL", "Created At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to write export header: %w", err)
		}
	}

	for row, inc := range incidents {
		values := []any{
			inc.ID,
			inc.SourceID,
			inc.IncidentType,
			inc.Severity,
			inc.Confidence,
			lo.FromPtr(inc.Description),
			inc.FrameIndex,
			inc.FrameTime,
			lo.FromPtr(inc.SnapshotURL),
			inc.CreatedAt.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to write export row: %w", err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// CleanupOldEvents removes events older than the given number of days.
func (s *IncidentService) CleanupOldEvents(ctx context.Context, days int) (int64, error) {
	deleted, err := s.repo.DeleteOldEvents(ctx, days)
	if err != nil {
		s.log.Error().Err(err).Int("days", days).Msg("failed to cleanup old events")
		return 0, err
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted_count", deleted).Int("days", days).Msg("cleaned up old events")
	}
	return deleted, nil
}

func toIncidentInfo(e repository.IncidentEvent) IncidentInfo {
	return IncidentInfo{
		ID:           e.ID.String(),
		SourceID:     e.SourceID,
		IncidentType: e.IncidentType,
		Severity:     e.Severity,
		Confidence:   e.Confidence,
		Description:  e.Description,
		FrameIndex:   e.FrameIndex,
		FrameTime:    e.FrameTime,
		SnapshotURL:  e.SnapshotURL,
		CreatedAt:    e.CreatedAt,
	}
}

type IncidentInfo struct {
	ID           string    `json:"id"`
	SourceID     string    `json:"source_id"`
	IncidentType string    `json:"incident_type"`
	Severity     string    `json:"severity"`
	Confidence   float64   `json:"confidence"`
	Description  *string   `json:"description,omitempty"`
	FrameIndex   int64     `json:"frame_index"`
	FrameTime    float64   `json:"frame_time"`
	SnapshotURL  *string   `json:"snapshot_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
