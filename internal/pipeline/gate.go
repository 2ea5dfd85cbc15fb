package pipeline

import (
	"incident-service/internal/domain/incident"
	"incident-service/internal/vision"
)

// Decision is the gate verdict for one frame.
type Decision string

const (
	// DecisionSkip: the frame is not on the sampling stride; nothing runs.
	DecisionSkip Decision = "skip"
	// DecisionAcceptHeuristic: the cheap score stands on its own; the
	// semantic analyzer is not consulted.
	DecisionAcceptHeuristic Decision = "accept_heuristic"
	// DecisionEscalate: the frame goes to the semantic analyzer.
	DecisionEscalate Decision = "escalate"
)

// vehicleProximityPx is the center distance below which two detected vehicles
// force escalation regardless of the heuristic score. pedestrianProximityPx is
// the wider band for a person near a vehicle.
const (
	vehicleProximityPx    = 50
	pedestrianProximityPx = 100
)

// Gate bounds the rate of expensive analyzer calls. It is a pure policy
// function: stride subsampling first, then a first-stage score threshold that
// is at most the final acceptance threshold, with a locator hard override.
type Gate struct {
	Stride            int64
	EscalateThreshold float64
}

// Decide returns the verdict for frameIndex given the heuristic score and the
// locator detections (may be nil when the locator is absent).
func (g Gate) Decide(score vision.CrashScore, frameIndex int64, detections []incident.Detection) Decision {
	stride := g.Stride
	if stride <= 0 {
		stride = 1
	}
	if frameIndex%stride != 0 {
		return DecisionSkip
	}

	if hardOverride(detections) {
		return DecisionEscalate
	}

	if score.Probability > g.EscalateThreshold {
		return DecisionEscalate
	}

	return DecisionAcceptHeuristic
}

// hardOverride reports locator evidence strong enough to escalate on its own:
// two vehicles nearly touching, a person dangerously close to a vehicle, or
// any fire/smoke indicator.
func hardOverride(detections []incident.Detection) bool {
	var vehicles, persons []incident.Detection
	for _, d := range detections {
		switch d.Category {
		case incident.CategoryIndicator:
			return true
		case incident.CategoryVehicle:
			vehicles = append(vehicles, d)
		case incident.CategoryPerson:
			persons = append(persons, d)
		}
	}

	for i := 0; i < len(vehicles); i++ {
		for j := i + 1; j < len(vehicles); j++ {
			if vehicles[i].CenterDistance(vehicles[j]) < vehicleProximityPx {
				return true
			}
		}
	}

	for _, p := range persons {
		for _, v := range vehicles {
			if p.CenterDistance(v) < pedestrianProximityPx {
				return true
			}
		}
	}
	return false
}
