package incident

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeCollision        Type = "collision"
	TypeFire             Type = "fire"
	TypeBreakdown        Type = "breakdown"
	TypePedestrianDanger Type = "pedestrian_danger"
	TypeDebris           Type = "debris"
	TypeOther            Type = "other"
	TypeNone             Type = "none"
)

// Valid reports whether t is one of the known incident types.
func (t Type) Valid() bool {
	switch t {
	case TypeCollision, TypeFire, TypeBreakdown, TypePedestrianDanger, TypeDebris, TypeOther, TypeNone:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Judgment is the structured result of the remote scene analysis for one frame.
// It always arrives through analyzer.ParseJudgment, which defaults every field,
// so a Judgment in hand is safe to read without further validation.
type Judgment struct {
	HasIncident       bool     `json:"has_incident"`
	IncidentType      Type     `json:"incident_type"`
	Severity          Severity `json:"severity"`
	Description       string   `json:"description"`
	Confidence        float64  `json:"confidence"`
	Vehicles          int      `json:"vehicles_detected"`
	Pedestrians       int      `json:"pedestrians_detected"`
	EmergencyVehicles int      `json:"emergency_vehicles_detected"`
}

// Event is the canonical record handed to alerting and persistence once a
// confirmed incident passes the per-source cooldown. Immutable after creation.
type Event struct {
	ID          uuid.UUID `json:"id"`
	SourceID    string    `json:"source_id"`
	Type        Type      `json:"type"`
	Severity    Severity  `json:"severity"`
	Confidence  float64   `json:"confidence"`
	Description string    `json:"description"`
	FrameIndex  int64     `json:"frame_index"`
	FrameTime   float64   `json:"frame_time"`
	CreatedAt   time.Time `json:"created_at"`
	SnapshotURL string    `json:"snapshot_url,omitempty"`
	Judgment    Judgment  `json:"judgment"`
}

// NewEvent builds an Event from a confirming judgment. Type, severity and
// confidence carry over from the judgment unchanged.
func NewEvent(sourceID string, frameIndex int64, frameTime float64, j Judgment, now time.Time) Event {
	return Event{
		ID:          uuid.New(),
		SourceID:    sourceID,
		Type:        j.IncidentType,
		Severity:    j.Severity,
		Confidence:  j.Confidence,
		Description: j.Description,
		FrameIndex:  frameIndex,
		FrameTime:   frameTime,
		CreatedAt:   now,
		Judgment:    j,
	}
}
