// Package schedule defines the recurring report schedule model and its
// write-time validation rules.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Frequency determines how a schedule's next firing instant is derived.
type Frequency string

const (
	// FrequencyDaily fires every day at the configured time of day.
	FrequencyDaily Frequency = "daily"
	// FrequencyWeekly fires on the configured weekday at the configured time.
	FrequencyWeekly Frequency = "weekly"
	// FrequencyMonthly fires on the configured day of month, clamped to the
	// month's last day when the month is shorter.
	FrequencyMonthly Frequency = "monthly"
	// FrequencyQuarterly fires on the first day of the quarter month.
	FrequencyQuarterly Frequency = "quarterly"
	// FrequencyCron fires per a raw 5-field cron expression, for schedules
	// the fixed frequencies cannot express.
	FrequencyCron Frequency = "cron"
)

// Output formats forwarded to the renderer. The engine never interprets
// them.
const (
	FormatPDF   = "pdf"
	FormatExcel = "excel"
	FormatCSV   = "csv"
)

// cronParser validates cron expressions (standard 5-field:
// minute hour day month weekday).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// TimeOfDay is a wall-clock hour and minute, interpreted in the schedule's
// timezone. Seconds are intentionally not representable.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// ParseTimeOfDay parses a "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	tod := TimeOfDay{Hour: hour, Minute: minute}
	if err := tod.Validate(); err != nil {
		return TimeOfDay{}, err
	}
	return tod, nil
}

// Validate checks the hour and minute ranges.
func (t TimeOfDay) Validate() error {
	if t.Hour < 0 || t.Hour > 23 {
		return fmt.Errorf("hour %d out of range [0,23]", t.Hour)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("minute %d out of range [0,59]", t.Minute)
	}
	return nil
}

// String formats the time of day as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Schedule is a recurring report configuration. The engine reads the
// temporal fields and maintains NextRun/LastRun and the counters; all other
// fields are forwarded to the renderer untouched.
type Schedule struct {
	// ID uniquely identifies the schedule
	ID string `json:"id"`
	// Name is a human-readable label for logging and listings
	Name string `json:"name"`
	// ReportID references the report definition the renderer consumes
	ReportID string `json:"report_id"`
	// Frequency determines the recurrence rule
	Frequency Frequency `json:"frequency"`
	// TimeOfDay is the wall-clock firing time in Timezone
	TimeOfDay TimeOfDay `json:"time_of_day"`
	// Timezone is an IANA timezone name (default "UTC")
	Timezone string `json:"timezone"`
	// DayOfWeek is the firing weekday for weekly schedules (0=Sunday..6)
	DayOfWeek int `json:"day_of_week,omitempty"`
	// DayOfMonth is the firing day for monthly schedules (1..31, clamped)
	DayOfMonth int `json:"day_of_month,omitempty"`
	// CronExpr is the raw cron expression for cron schedules
	CronExpr string `json:"cron_expr,omitempty"`
	// Enabled gates claiming and firing; disabled schedules freeze NextRun
	Enabled bool `json:"enabled"`
	// NextRun is the UTC instant of the next firing; nil until first computed
	NextRun *time.Time `json:"next_run,omitempty"`
	// LastRun is the UTC instant of the most recent firing attempt
	LastRun *time.Time `json:"last_run,omitempty"`
	// RunCount is the total number of firing attempts, never reset
	RunCount int64 `json:"run_count"`
	// FailureCount is the total number of failed attempts, never reset
	FailureCount int64 `json:"failure_count"`
	// LastError is the detail of the most recent render failure
	LastError string `json:"last_error,omitempty"`
	// ErrorState marks a schedule whose next run could not be computed;
	// non-empty excludes it from due queries until cleared
	ErrorState string `json:"error_state,omitempty"`
	// OutputFormats are the artifact formats the renderer should produce
	OutputFormats []string `json:"output_formats"`
	// Recipients are the delivery addresses forwarded to the renderer
	Recipients []string `json:"recipients"`
	// CreatedAt is when the schedule was created
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the schedule was last modified
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultDayOfWeek is the weekday used for weekly schedules created without
// an explicit one. Sunday is 0, so absence must be decided where the raw
// input still distinguishes "unset" from "Sunday" (see pkg/client).
const DefaultDayOfWeek = int(time.Monday)

// ApplyDefaults fills in the defaulted fields.
func (s *Schedule) ApplyDefaults() {
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
}

// Validate checks the schedule's configuration. Frequency-specific fields
// are mutually exclusive: a weekly schedule must not carry DayOfMonth or
// CronExpr, and so on. Called at write time so invalid configurations never
// reach the engine.
func (s *Schedule) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("schedule ID cannot be empty")
	}
	if err := s.TimeOfDay.Validate(); err != nil {
		return fmt.Errorf("invalid time of day: %w", err)
	}
	if s.Timezone != "" && s.Timezone != "UTC" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
		}
	}

	switch s.Frequency {
	case FrequencyDaily, FrequencyQuarterly:
		if s.DayOfWeek != 0 || s.DayOfMonth != 0 || s.CronExpr != "" {
			return fmt.Errorf("%s schedules must not set day_of_week, day_of_month, or cron_expr", s.Frequency)
		}
	case FrequencyWeekly:
		if s.DayOfMonth != 0 || s.CronExpr != "" {
			return fmt.Errorf("weekly schedules must not set day_of_month or cron_expr")
		}
		if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
			return fmt.Errorf("day_of_week %d out of range [0,6]", s.DayOfWeek)
		}
	case FrequencyMonthly:
		if s.DayOfWeek != 0 || s.CronExpr != "" {
			return fmt.Errorf("monthly schedules must not set day_of_week or cron_expr")
		}
		if s.DayOfMonth < 1 || s.DayOfMonth > 31 {
			return fmt.Errorf("day_of_month %d out of range [1,31]", s.DayOfMonth)
		}
	case FrequencyCron:
		if s.DayOfWeek != 0 || s.DayOfMonth != 0 {
			return fmt.Errorf("cron schedules must not set day_of_week or day_of_month")
		}
		if s.CronExpr == "" {
			return fmt.Errorf("cron schedules require cron_expr")
		}
		if _, err := cronParser.Parse(s.CronExpr); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", s.CronExpr, err)
		}
	default:
		return fmt.Errorf("unknown frequency %q", s.Frequency)
	}

	if len(s.OutputFormats) == 0 {
		return fmt.Errorf("at least one output format is required")
	}
	for _, f := range s.OutputFormats {
		switch f {
		case FormatPDF, FormatExcel, FormatCSV:
		default:
			return fmt.Errorf("unknown output format %q", f)
		}
	}
	if len(s.Recipients) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}

	if s.FailureCount < 0 || s.RunCount < s.FailureCount {
		return fmt.Errorf("counters violate run_count >= failure_count >= 0 (run=%d failure=%d)", s.RunCount, s.FailureCount)
	}
	return nil
}

// Location resolves the schedule's timezone. Validate guarantees this
// cannot fail for stored schedules.
func (s *Schedule) Location() (*time.Location, error) {
	if s.Timezone == "" || s.Timezone == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}
