// Package store persists schedules and provides the atomic claim and update
// primitives the engine's at-most-once firing guarantee is built on.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/quillhq/quill/internal/schedule"
)

// ErrNotFound is returned when a schedule does not exist.
var ErrNotFound = errors.New("schedule not found")

// ErrAlreadyExists is returned when creating a schedule with a taken ID.
var ErrAlreadyExists = errors.New("schedule already exists")

// Update carries the fields written after a firing attempt: the advanced
// next run, the attempt instant, and the counters. An empty LastError clears
// any previously stored error detail.
type Update struct {
	NextRun      time.Time
	LastRun      time.Time
	RunCount     int64
	FailureCount int64
	LastError    string
}

// Store is the persistence interface the engine and the management client
// consume. Claim and InitNextRun are the only operations that must be atomic
// across concurrent scheduler instances; everything else is plain CRUD.
type Store interface {
	// Create persists a new schedule. Returns ErrAlreadyExists on ID collision.
	Create(ctx context.Context, s *schedule.Schedule) error

	// Get returns a schedule by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*schedule.Schedule, error)

	// List returns all schedules in no particular order.
	List(ctx context.Context) ([]*schedule.Schedule, error)

	// Delete removes a schedule. Deleting a missing schedule is not an error.
	Delete(ctx context.Context, id string) error

	// FetchDue returns enabled, initialized, non-errored schedules whose
	// NextRun is at or before now.
	FetchDue(ctx context.Context, now time.Time) ([]*schedule.Schedule, error)

	// FetchUninitialized returns schedules that have not yet been assigned a
	// first NextRun.
	FetchUninitialized(ctx context.Context) ([]*schedule.Schedule, error)

	// InitNextRun assigns the first NextRun to a schedule, only if none is
	// set. Returns false when another instance initialized it first or the
	// schedule is gone.
	InitNextRun(ctx context.Context, id string, nextRun time.Time) (bool, error)

	// Claim grants the exclusive right to fire one occurrence. It succeeds
	// only if the schedule exists, is enabled, is not in an error state, no
	// claim is already held, and its stored NextRun still equals
	// expectedNextRun; the schedule is then withheld from FetchDue and from
	// further claims until Update advances it. False with a nil error means
	// the claim was lost, not that something went wrong.
	Claim(ctx context.Context, id string, expectedNextRun time.Time) (bool, error)

	// ReleaseClaim abandons a held claim whose outcome could not be
	// persisted, returning the schedule to FetchDue at its unchanged
	// NextRun. The occurrence becomes claimable again, so it may fire more
	// than once; the alternative is a schedule stranded outside every
	// index.
	ReleaseClaim(ctx context.Context, id string) error

	// Update writes the post-firing fields and re-indexes the schedule for
	// its next occurrence.
	Update(ctx context.Context, id string, u Update) error

	// SetEnabled enables or disables a schedule. Disabling freezes the
	// stored NextRun; enabling writes the caller-recomputed nextRun (nil to
	// leave an uninitialized schedule pending).
	SetEnabled(ctx context.Context, id string, enabled bool, nextRun *time.Time) error

	// SetErrorState flags a schedule whose next run could not be computed,
	// excluding it from FetchDue until cleared.
	SetErrorState(ctx context.Context, id string, detail string) error

	// ClearErrorState removes the error flag and returns the schedule to the
	// uninitialized pool so the engine assigns it a fresh NextRun.
	ClearErrorState(ctx context.Context, id string) error

	// Close releases the underlying connection.
	Close() error
}
