// Package recurrence computes the next firing instant for a schedule. The
// calculator is a pure function of its inputs: the only clock it consults is
// the caller-supplied reference instant.
package recurrence

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quillhq/quill/internal/schedule"
)

// cronParser matches the write-time validation parser (standard 5-field
// expressions).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// maxGapScanMinutes bounds the forward scan used to resolve local times that
// fall inside a DST spring-forward gap. Real-world gaps are 30 minutes to
// 2 hours.
const maxGapScanMinutes = 3 * 60

// Next returns the next firing instant for s strictly after from, in UTC.
//
// The candidate is built on the wall clock of the schedule's timezone: start
// from today at the schedule's time of day, advance one day if that has
// already passed, then apply the frequency rule (weekly weekday wrap,
// monthly day-of-month clamp, quarterly anchor to day 1). The result is
// never equal to from, so a schedule cannot re-fire on the tick that
// computed it.
func Next(s *schedule.Schedule, from time.Time) (time.Time, error) {
	loc, err := s.Location()
	if err != nil {
		return time.Time{}, err
	}

	if s.Frequency == schedule.FrequencyCron {
		return nextCron(s, from, loc)
	}

	local := from.In(loc)
	year, month, day := local.Date()

	// Baseline: today at the scheduled wall-clock time, pushed to tomorrow
	// when it is not strictly in the future. This alone satisfies the daily
	// frequency and guarantees strict future-ness for the rest.
	baseline := localInstant(year, month, day, s.TimeOfDay, loc)
	if !baseline.After(from) {
		year, month, day = local.AddDate(0, 0, 1).Date()
		baseline = localInstant(year, month, day, s.TimeOfDay, loc)
	}

	switch s.Frequency {
	case schedule.FrequencyDaily:
		return baseline.UTC(), nil

	case schedule.FrequencyWeekly:
		target := time.Weekday(s.DayOfWeek)
		offset := (int(target) - int(baseline.In(loc).Weekday()) + 7) % 7
		if offset > 0 {
			y, m, d := baseline.In(loc).AddDate(0, 0, offset).Date()
			baseline = localInstant(y, m, d, s.TimeOfDay, loc)
		}
		return baseline.UTC(), nil

	case schedule.FrequencyMonthly:
		y, m, _ := baseline.In(loc).Date()
		candidate := localInstant(y, m, clampDay(y, m, s.DayOfMonth), s.TimeOfDay, loc)
		if !candidate.After(from) {
			y, m = nextMonth(y, m, 1)
			candidate = localInstant(y, m, clampDay(y, m, s.DayOfMonth), s.TimeOfDay, loc)
		}
		return candidate.UTC(), nil

	case schedule.FrequencyQuarterly:
		// Anchors to day 1 of the candidate month; quarter-relative days are
		// deliberately not supported.
		y, m, _ := baseline.In(loc).Date()
		candidate := localInstant(y, m, 1, s.TimeOfDay, loc)
		if !candidate.After(from) {
			y, m = nextMonth(y, m, 3)
			candidate = localInstant(y, m, 1, s.TimeOfDay, loc)
		}
		return candidate.UTC(), nil

	default:
		return time.Time{}, fmt.Errorf("unknown frequency %q", s.Frequency)
	}
}

// nextCron evaluates a cron-frequency schedule in its timezone.
func nextCron(s *schedule.Schedule, from time.Time, loc *time.Location) (time.Time, error) {
	expr, err := cronParser.Parse(s.CronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", s.CronExpr, err)
	}
	next := expr.Next(from.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron expression %q has no future activation", s.CronExpr)
	}
	return next.UTC(), nil
}

// localInstant resolves a wall-clock date and time of day in loc to an
// instant, applying the engine's DST policy: a time erased by a
// spring-forward gap resolves to the first valid instant after the gap, and
// an ambiguous fall-back time resolves to the earlier of its two UTC
// instants.
func localInstant(year int, month time.Month, day int, tod schedule.TimeOfDay, loc *time.Location) time.Time {
	t := time.Date(year, month, day, tod.Hour, tod.Minute, 0, 0, loc)

	if !sameWallClock(t, tod) {
		// The requested wall time does not exist in loc on this date. Scan
		// forward minute by minute until a wall time round-trips; the first
		// hit is the instant the gap ends.
		for i := 1; i <= maxGapScanMinutes; i++ {
			cand := time.Date(year, month, day, tod.Hour, tod.Minute+i, 0, 0, loc)
			want := schedule.TimeOfDay{
				Hour:   (tod.Hour + (tod.Minute+i)/60) % 24,
				Minute: (tod.Minute + i) % 60,
			}
			if sameWallClock(cand, want) {
				return cand
			}
		}
		return t
	}

	// The wall time exists; it may exist twice around a fall-back
	// transition. Probe the instants 30 and 60 minutes earlier: if one shows
	// the same local date and wall clock, the time is ambiguous and the
	// earlier UTC instant wins.
	for _, back := range []time.Duration{30 * time.Minute, time.Hour} {
		alt := t.Add(-back)
		local := alt.In(loc)
		if sameWallClock(alt, tod) && local.Day() == day && local.Month() == month && local.Year() == year {
			return alt
		}
	}
	return t
}

// sameWallClock reports whether t's wall clock in its location matches tod.
func sameWallClock(t time.Time, tod schedule.TimeOfDay) bool {
	return t.Hour() == tod.Hour && t.Minute() == tod.Minute
}

// clampDay clamps a configured day-of-month to the number of days in the
// given month, so day 31 in February yields the 28th or 29th.
func clampDay(year int, month time.Month, day int) int {
	last := daysIn(year, month)
	if day > last {
		return last
	}
	return day
}

// daysIn returns the number of days in a month. Day 0 of the following
// month normalizes to the last day of this one.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// nextMonth advances a year/month pair by n months.
func nextMonth(year int, month time.Month, n int) (int, time.Month) {
	m := int(month) - 1 + n
	return year + m/12, time.Month(m%12 + 1)
}
