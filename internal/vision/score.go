package vision

import "math"

// DefaultCrashThreshold is the probability above which a frame classifies as
// a collision. Deliberately a single fixed value so the gate stays auditable.
const DefaultCrashThreshold = 0.7

const lowWatermark = 0.4

type Class string

const (
	ClassNone      Class = "none"
	ClassLow       Class = "low"
	ClassCollision Class = "collision"
)

// CrashScore is the bounded crash-likelihood estimate for one frame.
type CrashScore struct {
	Probability float64 `json:"probability"`
	Class       Class   `json:"class"`
}

// ScoreFeatures fuses the heuristic features into a crash probability:
// the average of proximity risk, orientation anomaly and debris score, boosted
// by motion (0.3 x min(motionRatio*10, 1)) and object count (0.1 per object,
// capped at 0.3), clamped to [0,1]. Monotonically non-decreasing in motion
// ratio, object count and debris score.
func ScoreFeatures(f Features, crashThreshold float64) CrashScore {
	if crashThreshold <= 0 {
		crashThreshold = DefaultCrashThreshold
	}

	// No candidate objects means nothing to crash. The debris mask alone (an
	// all-dark frame matches it completely) must not raise the score.
	if len(f.Objects) == 0 {
		return CrashScore{Probability: 0, Class: ClassNone}
	}

	proximity := 0.0
	if len(f.Objects) >= 2 && !math.IsInf(f.MinDistance, 1) {
		proximity = math.Max(0, 1-f.MinDistance/200)
	}

	base := (proximity + f.AnomalyScore + f.DebrisScore) / 3

	motionBoost := 0.3 * math.Min(f.MotionRatio*10, 1)
	objectBoost := math.Min(0.1*float64(len(f.Objects)), 0.3)

	p := math.Min(base+motionBoost+objectBoost, 1.0)

	s := CrashScore{Probability: p, Class: ClassNone}
	switch {
	case p > crashThreshold:
		s.Class = ClassCollision
	case p > lowWatermark:
		s.Class = ClassLow
	}
	return s
}
