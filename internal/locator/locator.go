// Package locator wraps the optional object-detection capability. The
// pipeline tolerates a locator that is absent or failing: call sites map any
// error to an empty detection list and fall back to contour heuristics.
package locator

import (
	"context"

	"incident-service/internal/domain/incident"
)

// Locator detects candidate objects in one encoded frame. Implementations
// must be safe for concurrent use.
type Locator interface {
	Detect(ctx context.Context, frameJPEG []byte, minConfidence float64) ([]incident.Detection, error)
}

// Disabled is the no-model backend: every frame yields zero detections.
type Disabled struct{}

func (Disabled) Detect(ctx context.Context, frameJPEG []byte, minConfidence float64) ([]incident.Detection, error) {
	return nil, nil
}
