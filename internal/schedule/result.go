package schedule

import "time"

// RunResult is the ephemeral outcome of a single firing. It is folded into
// the schedule's counters by the run tracker and never persisted on its own.
type RunResult struct {
	// ScheduleID identifies the schedule that fired
	ScheduleID string `json:"schedule_id"`
	// FiredAt is the UTC instant the firing was attempted
	FiredAt time.Time `json:"fired_at"`
	// Succeeded reports whether the render attempt succeeded
	Succeeded bool `json:"succeeded"`
	// ArtifactRef references the rendered artifact on success
	ArtifactRef string `json:"artifact_ref,omitempty"`
	// ErrorDetail carries the failure reason on failure
	ErrorDetail string `json:"error_detail,omitempty"`
}

// Success builds a successful RunResult for a schedule.
func Success(scheduleID string, firedAt time.Time, artifactRef string) RunResult {
	return RunResult{
		ScheduleID:  scheduleID,
		FiredAt:     firedAt,
		Succeeded:   true,
		ArtifactRef: artifactRef,
	}
}

// Failure builds a failed RunResult for a schedule.
func Failure(scheduleID string, firedAt time.Time, detail string) RunResult {
	return RunResult{
		ScheduleID:  scheduleID,
		FiredAt:     firedAt,
		ErrorDetail: detail,
	}
}
