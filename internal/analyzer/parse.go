package analyzer

import (
	"encoding/json"
	"strconv"
	"strings"

	"incident-service/internal/domain/incident"
)

// DefaultJudgment is the safe fallback for a missing, timed-out or
// unparsable analysis: no incident, zero confidence.
func DefaultJudgment() incident.Judgment {
	return incident.Judgment{
		HasIncident:  false,
		IncidentType: incident.TypeNone,
		Severity:     incident.SeverityLow,
		Description:  "analysis unavailable",
		Confidence:   0,
	}
}

// ParseJudgment turns the raw model response text into a Judgment. The text
// is untrusted: markdown code fences are stripped, and every field is coerced
// and defaulted individually. A response that cannot be parsed at all yields
// DefaultJudgment; this function never fails.
func ParseJudgment(raw string) incident.Judgment {
	cleaned := stripFences(strings.TrimSpace(raw))

	var fields map[string]any
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return DefaultJudgment()
	}

	j := DefaultJudgment()
	j.HasIncident = coerceBool(fields["has_incident"])
	j.IncidentType = normalizeType(coerceString(fields["incident_type"]))
	j.Severity = normalizeSeverity(coerceString(fields["severity"]))
	if desc := strings.TrimSpace(coerceString(fields["description"])); desc != "" {
		j.Description = desc
	}
	j.Confidence = clamp01(coerceFloat(fields["confidence"]))
	j.Vehicles = coerceCount(fields["vehicles_detected"])
	j.Pedestrians = coerceCount(fields["pedestrians_detected"])
	j.EmergencyVehicles = coerceCount(fields["emergency_vehicles_detected"])

	// A confident incident claim with type "none" is contradictory; trust the
	// boolean only when a type backs it up.
	if j.IncidentType == incident.TypeNone {
		j.HasIncident = false
	}

	return j
}

func stripFences(s string) string {
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func normalizeType(s string) incident.Type {
	switch incident.Type(strings.ToLower(strings.TrimSpace(s))) {
	case incident.TypeCollision:
		return incident.TypeCollision
	case incident.TypeFire:
		return incident.TypeFire
	case incident.TypeBreakdown:
		return incident.TypeBreakdown
	case incident.TypePedestrianDanger:
		return incident.TypePedestrianDanger
	case incident.TypeDebris:
		return incident.TypeDebris
	case incident.TypeNone, "":
		return incident.TypeNone
	default:
		return incident.TypeOther
	}
}

func normalizeSeverity(s string) incident.Severity {
	switch incident.Severity(strings.ToLower(strings.TrimSpace(s))) {
	case incident.SeverityMedium:
		return incident.SeverityMedium
	case incident.SeverityHigh:
		return incident.SeverityHigh
	case incident.SeverityCritical:
		return incident.SeverityCritical
	default:
		return incident.SeverityLow
	}
}

func coerceBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && parsed
	default:
		return false
	}
}

func coerceString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func coerceFloat(v any) float64 {
	switch f := v.(type) {
	case float64:
		return f
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func coerceCount(v any) int {
	n := int(coerceFloat(v))
	if n < 0 {
		return 0
	}
	return n
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
