// Package render defines the interface the engine invokes to produce report
// artifacts. Rendering and delivery are implemented outside this repository;
// the engine only observes success or failure.
package render

import (
	"context"

	"github.com/quillhq/quill/internal/schedule"
)

// Outcome is the result of a successful render: a reference to the produced
// artifact (a storage URL, file path, or delivery receipt).
type Outcome struct {
	ArtifactRef string
}

// Renderer produces the report artifact for a schedule and forwards it to
// the configured recipients. Implementations may be slow (seconds to
// minutes) and must be safe for concurrent calls on distinct schedules.
// A returned error is the failure reason recorded against the schedule.
type Renderer interface {
	Render(ctx context.Context, s *schedule.Schedule) (Outcome, error)
}

// Func adapts a function to the Renderer interface.
type Func func(ctx context.Context, s *schedule.Schedule) (Outcome, error)

// Render calls f.
func (f Func) Render(ctx context.Context, s *schedule.Schedule) (Outcome, error) {
	return f(ctx, s)
}
