package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/quillhq/quill/internal/schedule"
	"github.com/quillhq/quill/internal/store"
)

// Tracker folds firing outcomes into a schedule's persisted run history.
// It holds no state of its own; every side effect is a single store update.
type Tracker struct {
	store store.Store
}

// NewTracker creates a run tracker over the given store.
func NewTracker(s store.Store) *Tracker {
	return &Tracker{store: s}
}

// RecordSuccess persists a successful firing: the run counter advances, the
// attempt instant becomes LastRun, any previous error detail is cleared, and
// the schedule moves on to nextRun.
func (t *Tracker) RecordSuccess(ctx context.Context, s *schedule.Schedule, firedAt, nextRun time.Time) error {
	err := t.store.Update(ctx, s.ID, store.Update{
		NextRun:      nextRun,
		LastRun:      firedAt,
		RunCount:     s.RunCount + 1,
		FailureCount: s.FailureCount,
	})
	if err != nil {
		return fmt.Errorf("failed to record success for schedule %s: %w", s.ID, err)
	}
	return nil
}

// RecordFailure persists a failed firing. Both counters advance and the
// error detail is stored, but the schedule still moves on to nextRun: a
// render failure never blocks future occurrences.
func (t *Tracker) RecordFailure(ctx context.Context, s *schedule.Schedule, firedAt, nextRun time.Time, detail string) error {
	err := t.store.Update(ctx, s.ID, store.Update{
		NextRun:      nextRun,
		LastRun:      firedAt,
		RunCount:     s.RunCount + 1,
		FailureCount: s.FailureCount + 1,
		LastError:    detail,
	})
	if err != nil {
		return fmt.Errorf("failed to record failure for schedule %s: %w", s.ID, err)
	}
	return nil
}
