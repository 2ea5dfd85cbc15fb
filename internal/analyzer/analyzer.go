// Package analyzer wraps the remote vision-language capability that renders a
// semantic judgment for one frame. The remote service is slow, unreliable and
// untrusted: callers bound every invocation with a timeout and the response is
// re-validated field by field before the pipeline reads it.
package analyzer

import (
	"context"

	"incident-service/internal/domain/incident"
)

// Analyzer produces a structured judgment for one encoded frame.
// Implementations must be safe for concurrent use. On failure they return a
// default judgment alongside the error, so callers can always use the value.
type Analyzer interface {
	Analyze(ctx context.Context, frameJPEG []byte, sceneContext string) (incident.Judgment, error)
}

// Disabled is the backend used when no analyzer is configured: every frame is
// judged as no incident.
type Disabled struct{}

func (Disabled) Analyze(ctx context.Context, frameJPEG []byte, sceneContext string) (incident.Judgment, error) {
	return DefaultJudgment(), nil
}
