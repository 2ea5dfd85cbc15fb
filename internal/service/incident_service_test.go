package service

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"incident-service/internal/repository"
)

func TestToIncidentInfo(t *testing.T) {
	id := uuid.New()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	desc := "overturned truck blocking lane 2"
	url := "https://snapshots.example.com/incidents/2026-03-01/" + id.String() + ".jpg"

	info := toIncidentInfo(repository.IncidentEvent{
		ID:           id,
		SourceID:     "cam-4",
		IncidentType: "breakdown",
		Severity:     "high",
		Confidence:   0.81,
		Description:  &desc,
		FrameIndex:   1200,
		FrameTime:    40.0,
		SnapshotURL:  &url,
		CreatedAt:    created,
	})

	if info.ID != id.String() {
		t.Errorf("id = %q, want %q", info.ID, id.String())
	}
	if info.SourceID != "cam-4" || info.IncidentType != "breakdown" || info.Severity != "high" {
		t.Errorf("identity fields wrong: %+v", info)
	}
	if info.Description == nil || *info.Description != desc {
		t.Errorf("description = %v, want %q", info.Description, desc)
	}
	if info.SnapshotURL == nil || *info.SnapshotURL != url {
		t.Errorf("snapshot url = %v, want %q", info.SnapshotURL, url)
	}
	if info.FrameIndex != 1200 || info.FrameTime != 40.0 {
		t.Errorf("frame fields wrong: %+v", info)
	}
	if !info.CreatedAt.Equal(created) {
		t.Errorf("created at = %v, want %v", info.CreatedAt, created)
	}
}

func TestToIncidentInfoOptionalFieldsAbsent(t *testing.T) {
	info := toIncidentInfo(repository.IncidentEvent{
		ID:           uuid.New(),
		SourceID:     "cam-5",
		IncidentType: "collision",
		Severity:     "critical",
	})

	if info.Description != nil {
		t.Errorf("description = %v, want nil", info.Description)
	}
	if info.SnapshotURL != nil {
		t.Errorf("snapshot url = %v, want nil", info.SnapshotURL)
	}
}
