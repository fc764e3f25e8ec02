// Package engine drives recurring report schedules: it polls for due
// schedules, claims each exactly once, dispatches rendering, records the
// outcome, and advances the schedule to its next occurrence.
package engine

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/google/uuid"

	qerrors "github.com/quillhq/quill/internal/errors"
	"github.com/quillhq/quill/internal/logger"
	"github.com/quillhq/quill/internal/metrics"
	"github.com/quillhq/quill/internal/recurrence"
	"github.com/quillhq/quill/internal/render"
	"github.com/quillhq/quill/internal/schedule"
	"github.com/quillhq/quill/internal/store"
)

const (
	// DefaultTickInterval is how often the engine evaluates due schedules.
	DefaultTickInterval = 30 * time.Second
	// DefaultDrainTimeout bounds how long Stop waits for in-flight renders.
	DefaultDrainTimeout = 30 * time.Second
	// maxBackoffTicks caps the store-failure backoff at interval * 2^3.
	maxBackoffTicks = 8
	// recordAttempts is how many times a post-firing update is retried
	// before the claim is released back to the due index.
	recordAttempts = 3
	// defaultRecordBackoff is the base delay between record attempts,
	// doubled per retry.
	defaultRecordBackoff = 250 * time.Millisecond
)

// Options configures an Engine. Zero values fall back to defaults.
type Options struct {
	TickInterval time.Duration
	DrainTimeout time.Duration
	Clock        Clock
	Metrics      *metrics.Collector
	Logger       logger.Logger
}

// Engine is the scheduler loop. Multiple engine instances may run against
// the same store: the claim primitive guarantees at-most-once firing per
// occurrence, so no in-memory coordination is needed.
type Engine struct {
	instanceID string
	store      store.Store
	renderer   render.Renderer
	tracker    *Tracker
	clock      Clock

	interval      time.Duration
	drainTimeout  time.Duration
	recordBackoff time.Duration
	log           logger.Logger
	metrics       *metrics.Collector

	stopChan chan struct{}
	stopOnce sync.Once
	loopWG   sync.WaitGroup // the ticker loop
	renderWG sync.WaitGroup // in-flight claimed renders

	// Store-failure backoff state; touched only by the loop goroutine.
	skipTicks      int
	failedFetches  int
	lastFetchError error
}

// New creates an engine over a store and a renderer.
func New(s store.Store, r render.Renderer, opts Options) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}

	return &Engine{
		instanceID:    uuid.New().String(),
		store:         s,
		renderer:      r,
		tracker:       NewTracker(s),
		clock:         opts.Clock,
		interval:      opts.TickInterval,
		drainTimeout:  opts.DrainTimeout,
		recordBackoff: defaultRecordBackoff,
		log:           opts.Logger.WithComponent(logger.ComponentEngine),
		metrics:       opts.Metrics,
		stopChan:      make(chan struct{}),
	}
}

// Start launches the evaluation loop. It returns immediately; use Stop for
// a graceful shutdown.
func (e *Engine) Start(ctx context.Context) {
	e.log.Info("Scheduler engine started",
		"instance_id", e.instanceID,
		"tick_interval", e.interval)

	e.loopWG.Add(1)
	go e.run(ctx)
}

// Stop ceases issuing new claims and waits for in-flight renders to finish,
// up to the drain timeout. Renders that already fired are never cancelled.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.loopWG.Wait()

	done := make(chan struct{})
	go func() {
		e.renderWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.log.Info("Scheduler engine stopped", "instance_id", e.instanceID)
	case <-time.After(e.drainTimeout):
		e.log.Warn("Engine shutdown timed out waiting for in-flight renders",
			"instance_id", e.instanceID,
			"timeout", e.drainTimeout)
	}
}

func (e *Engine) run(ctx context.Context) {
	defer e.loopWG.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.tick(ctx)

	for {
		select {
		case <-e.stopChan:
			return
		case <-ctx.Done():
			e.log.Info("Engine loop stopping: context cancelled", "instance_id", e.instanceID)
			return
		case <-ticker.C:
			if e.skipTicks > 0 {
				e.skipTicks--
				continue
			}
			e.tick(ctx)
		}
	}
}

// tick runs one evaluation pass: initialize new schedules, fetch what is
// due, and claim-and-dispatch each candidate.
func (e *Engine) tick(ctx context.Context) {
	now := e.clock.Now()

	e.initializePending(ctx, now)

	due, err := e.store.FetchDue(ctx, now)
	if err != nil {
		// The store is unreachable; back off and let a later tick retry.
		e.failedFetches++
		e.lastFetchError = err
		backoff := 1 << e.failedFetches
		if backoff > maxBackoffTicks {
			backoff = maxBackoffTicks
		}
		e.skipTicks = backoff - 1
		e.log.Error("Failed to fetch due schedules",
			"error", err,
			"consecutive_failures", e.failedFetches,
			"skipping_ticks", e.skipTicks)
		return
	}
	e.failedFetches = 0
	e.lastFetchError = nil

	e.dispatch(ctx, due)
}

// dispatch claims each due schedule and fires the winners. Claims lost to
// concurrent schedulers working the same due list are expected and skipped.
func (e *Engine) dispatch(ctx context.Context, due []*schedule.Schedule) {
	for _, s := range due {
		if s.NextRun == nil {
			continue
		}

		claimed, err := e.store.Claim(ctx, s.ID, *s.NextRun)
		if err != nil {
			e.log.Warn("Claim attempt failed",
				"schedule_id", s.ID,
				"error", err)
			continue
		}
		if !claimed {
			// Lost to a concurrent scheduler, or the schedule was deleted
			// or disabled mid-flight. Expected; not an error.
			e.metrics.RecordClaimLost()
			e.log.Debug("Claim lost", "schedule_id", s.ID)
			continue
		}

		e.renderWG.Add(1)
		go e.fire(ctx, s)
	}
}

// fire renders one claimed occurrence, records the outcome, and advances the
// schedule. Runs as its own unit of work so one slow render never delays the
// evaluation of other due schedules.
func (e *Engine) fire(ctx context.Context, s *schedule.Schedule) {
	defer e.renderWG.Done()

	firedAt := e.clock.Now()
	e.metrics.RecordFiringStarted(s.Frequency)
	e.log.Info("Firing schedule",
		"schedule_id", s.ID,
		"name", s.Name,
		"frequency", s.Frequency)

	var outcome render.Outcome
	renderErr := qerrors.WithRecovery(func() error {
		var err error
		outcome, err = e.renderer.Render(ctx, s)
		return err
	})
	duration := e.clock.Now().Sub(firedAt)

	var result schedule.RunResult
	if renderErr != nil {
		var panicErr *qerrors.PanicError
		if stderrors.As(renderErr, &panicErr) {
			e.log.Error("Renderer panicked",
				"schedule_id", s.ID,
				"detail", qerrors.FormatPanicForLog(panicErr))
		}
		result = schedule.Failure(s.ID, firedAt, renderErr.Error())
		e.metrics.RecordFiringFailed(duration)
	} else {
		result = schedule.Success(s.ID, firedAt, outcome.ArtifactRef)
		e.metrics.RecordFiringSucceeded(duration)
	}

	// The new occurrence is computed from the firing instant, so the
	// schedule advances whether or not the render succeeded.
	next, err := recurrence.Next(s, firedAt)
	if err != nil {
		// Fatal for this schedule only: flag it and stop claiming it until
		// an operator corrects the configuration.
		e.metrics.RecordFatalSchedule()
		e.log.Error("Failed to compute next run; flagging schedule",
			"schedule_id", s.ID,
			"error", err)
		if serr := e.store.SetErrorState(ctx, s.ID, err.Error()); serr != nil {
			e.log.Error("Failed to flag schedule error state",
				"schedule_id", s.ID,
				"error", serr)
		}
		return
	}

	if !result.Succeeded {
		e.log.Warn("Render failed",
			"schedule_id", s.ID,
			"error", result.ErrorDetail,
			"next_run", next.Format(time.RFC3339))
	}

	// Record with bounded retries: the claim removed the schedule from the
	// due index, so losing this write would strand it. If every attempt
	// fails, release the claim so a later tick sees the occurrence again.
	var recordErr error
	for attempt := 0; attempt < recordAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(e.recordBackoff << (attempt - 1))
		}
		if result.Succeeded {
			recordErr = e.tracker.RecordSuccess(ctx, s, firedAt, next)
		} else {
			recordErr = e.tracker.RecordFailure(ctx, s, firedAt, next, result.ErrorDetail)
		}
		if recordErr == nil {
			break
		}
		e.log.Warn("Failed to record run outcome, retrying",
			"schedule_id", s.ID,
			"attempt", attempt+1,
			"max_attempts", recordAttempts,
			"error", recordErr)
	}
	if recordErr != nil {
		e.log.Error("Failed to record run outcome, releasing claim",
			"schedule_id", s.ID,
			"error", recordErr)
		if relErr := e.store.ReleaseClaim(ctx, s.ID); relErr != nil {
			e.log.Error("Failed to release claim",
				"schedule_id", s.ID,
				"error", relErr)
		}
		return
	}

	e.log.Debug("Schedule advanced",
		"schedule_id", s.ID,
		"next_run", next.Format(time.RFC3339),
		"succeeded", result.Succeeded)
}

// initializePending assigns a first NextRun to schedules the engine has not
// observed before. The assignment is a set-if-absent, so concurrent engines
// race harmlessly.
func (e *Engine) initializePending(ctx context.Context, now time.Time) {
	pending, err := e.store.FetchUninitialized(ctx)
	if err != nil {
		e.log.Error("Failed to fetch uninitialized schedules", "error", err)
		return
	}

	for _, s := range pending {
		next, err := recurrence.Next(s, now)
		if err != nil {
			e.metrics.RecordFatalSchedule()
			e.log.Error("Failed to compute initial next run; flagging schedule",
				"schedule_id", s.ID,
				"error", err)
			if serr := e.store.SetErrorState(ctx, s.ID, err.Error()); serr != nil {
				e.log.Error("Failed to flag schedule error state",
					"schedule_id", s.ID,
					"error", serr)
			}
			continue
		}

		assigned, err := e.store.InitNextRun(ctx, s.ID, next)
		if err != nil {
			e.log.Warn("Failed to initialize schedule",
				"schedule_id", s.ID,
				"error", err)
			continue
		}
		if assigned {
			e.log.Info("Schedule initialized",
				"schedule_id", s.ID,
				"name", s.Name,
				"next_run", next.Format(time.RFC3339))
		}
	}
}
