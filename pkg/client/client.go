// Package client provides the management API for recurring report
// schedules: creating, listing, enabling, and recovering them. The engine
// itself never goes through this package.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quillhq/quill/internal/recurrence"
	"github.com/quillhq/quill/internal/schedule"
	"github.com/quillhq/quill/internal/store"
)

// Client manages schedule definitions in the shared store.
type Client struct {
	store store.Store
}

// NewClient creates a schedule client connected to Redis.
func NewClient(redisURL string) (*Client, error) {
	s, err := store.NewRedisStore(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Client{store: s}, nil
}

// NewClientWithStore creates a schedule client over an existing store.
func NewClientWithStore(s store.Store) *Client {
	return &Client{store: s}
}

// CreateRequest carries the user-supplied definition of a new schedule.
// Pointer fields distinguish "not provided" from a zero value: DayOfWeek 0
// means Sunday, not unset.
type CreateRequest struct {
	Name          string             `json:"name"`
	ReportID      string             `json:"report_id"`
	Frequency     schedule.Frequency `json:"frequency"`
	TimeOfDay     string             `json:"time_of_day"`
	Timezone      string             `json:"timezone,omitempty"`
	DayOfWeek     *int               `json:"day_of_week,omitempty"`
	DayOfMonth    int                `json:"day_of_month,omitempty"`
	CronExpr      string             `json:"cron_expr,omitempty"`
	OutputFormats []string           `json:"output_formats"`
	Recipients    []string           `json:"recipients"`
	Enabled       *bool              `json:"enabled,omitempty"`
}

// CreateSchedule validates a definition and persists it. The schedule gets
// no NextRun here; the engine assigns the first occurrence on its next tick.
func (c *Client) CreateSchedule(ctx context.Context, req CreateRequest) (*schedule.Schedule, error) {
	tod, err := schedule.ParseTimeOfDay(req.TimeOfDay)
	if err != nil {
		return nil, fmt.Errorf("invalid time of day: %w", err)
	}

	now := time.Now().UTC()
	s := &schedule.Schedule{
		ID:            uuid.New().String(),
		Name:          req.Name,
		ReportID:      req.ReportID,
		Frequency:     req.Frequency,
		TimeOfDay:     tod,
		Timezone:      req.Timezone,
		DayOfMonth:    req.DayOfMonth,
		CronExpr:      req.CronExpr,
		Enabled:       true,
		OutputFormats: req.OutputFormats,
		Recipients:    req.Recipients,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.Enabled != nil {
		s.Enabled = *req.Enabled
	}
	if req.DayOfWeek != nil {
		s.DayOfWeek = *req.DayOfWeek
	} else if req.Frequency == schedule.FrequencyWeekly {
		s.DayOfWeek = schedule.DefaultDayOfWeek
	}

	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}

	if err := c.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}
	return s, nil
}

// GetSchedule retrieves a schedule by ID.
func (c *Client) GetSchedule(ctx context.Context, id string) (*schedule.Schedule, error) {
	return c.store.Get(ctx, id)
}

// ListSchedules returns all schedules.
func (c *Client) ListSchedules(ctx context.Context) ([]*schedule.Schedule, error) {
	return c.store.List(ctx)
}

// DeleteSchedule removes a schedule. In-flight renders for an already
// claimed occurrence are not interrupted.
func (c *Client) DeleteSchedule(ctx context.Context, id string) error {
	return c.store.Delete(ctx, id)
}

// DisableSchedule pauses a schedule. Its NextRun is frozen for inspection
// but no occurrence fires while disabled.
func (c *Client) DisableSchedule(ctx context.Context, id string) error {
	return c.store.SetEnabled(ctx, id, false, nil)
}

// EnableSchedule resumes a schedule. The next occurrence is recomputed from
// the current instant, so occurrences skipped while disabled are not
// replayed.
func (c *Client) EnableSchedule(ctx context.Context, id string) error {
	s, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.NextRun == nil {
		// Never initialized: leave it to the engine's pending pass.
		return c.store.SetEnabled(ctx, id, true, nil)
	}

	next, err := recurrence.Next(s, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to compute next run for schedule %s: %w", id, err)
	}
	return c.store.SetEnabled(ctx, id, true, &next)
}

// ClearError clears a schedule's error state after its configuration has
// been corrected, returning it to service.
func (c *Client) ClearError(ctx context.Context, id string) error {
	return c.store.ClearErrorState(ctx, id)
}

// Close releases the store connection.
func (c *Client) Close() error {
	return c.store.Close()
}
