// Package metrics tracks in-memory engine metrics: firings, outcomes, claim
// races, and render durations.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/quillhq/quill/internal/schedule"
)

var (
	globalCollector *Collector
	once            sync.Once
)

// Collector tracks engine-wide metrics in memory
type Collector struct {
	// Counters (atomic for thread-safety)
	totalFirings   atomic.Int64
	totalSuccesses atomic.Int64
	totalFailures  atomic.Int64
	claimsLost     atomic.Int64
	fatalSchedules atomic.Int64

	mu                  sync.RWMutex
	firingsByFrequency  map[schedule.Frequency]int64
	totalRenderDuration time.Duration
	startTime           time.Time
	inFlight            int64
}

// Metrics is a snapshot of current engine metrics
type Metrics struct {
	TotalFirings       int64                        `json:"total_firings"`
	TotalSuccesses     int64                        `json:"total_successes"`
	TotalFailures      int64                        `json:"total_failures"`
	ClaimsLost         int64                        `json:"claims_lost"`
	FatalSchedules     int64                        `json:"fatal_schedules"`
	FiringsByFrequency map[schedule.Frequency]int64 `json:"firings_by_frequency"`
	AvgRenderDuration  time.Duration                `json:"avg_render_duration"`
	InFlight           int64                        `json:"in_flight"`
	Uptime             time.Duration                `json:"uptime"`
}

// Default returns the global metrics collector instance
func Default() *Collector {
	once.Do(func() {
		globalCollector = NewCollector()
	})
	return globalCollector
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		firingsByFrequency: make(map[schedule.Frequency]int64),
		startTime:          time.Now(),
	}
}

// RecordFiringStarted counts a claimed firing entering the render phase
func (c *Collector) RecordFiringStarted(freq schedule.Frequency) {
	c.totalFirings.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.firingsByFrequency[freq]++
	c.inFlight++
}

// RecordFiringSucceeded records a successful render
func (c *Collector) RecordFiringSucceeded(duration time.Duration) {
	c.totalSuccesses.Add(1)
	c.finishFiring(duration)
}

// RecordFiringFailed records a failed render
func (c *Collector) RecordFiringFailed(duration time.Duration) {
	c.totalFailures.Add(1)
	c.finishFiring(duration)
}

// RecordClaimLost counts a claim lost to a concurrent scheduler or a
// schedule deleted mid-flight
func (c *Collector) RecordClaimLost() {
	c.claimsLost.Add(1)
}

// RecordFatalSchedule counts a schedule moved into the error state
func (c *Collector) RecordFatalSchedule() {
	c.fatalSchedules.Add(1)
}

func (c *Collector) finishFiring(duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRenderDuration += duration
	c.inFlight--
}

// Snapshot returns the current metrics
func (c *Collector) Snapshot() Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byFreq := make(map[schedule.Frequency]int64, len(c.firingsByFrequency))
	for k, v := range c.firingsByFrequency {
		byFreq[k] = v
	}

	m := Metrics{
		TotalFirings:       c.totalFirings.Load(),
		TotalSuccesses:     c.totalSuccesses.Load(),
		TotalFailures:      c.totalFailures.Load(),
		ClaimsLost:         c.claimsLost.Load(),
		FatalSchedules:     c.fatalSchedules.Load(),
		FiringsByFrequency: byFreq,
		InFlight:           c.inFlight,
		Uptime:             time.Since(c.startTime),
	}
	if completed := m.TotalSuccesses + m.TotalFailures; completed > 0 {
		m.AvgRenderDuration = c.totalRenderDuration / time.Duration(completed)
	}
	return m
}

// Reset clears all counters (for tests)
func (c *Collector) Reset() {
	c.totalFirings.Store(0)
	c.totalSuccesses.Store(0)
	c.totalFailures.Store(0)
	c.claimsLost.Store(0)
	c.fatalSchedules.Store(0)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.firingsByFrequency = make(map[schedule.Frequency]int64)
	c.totalRenderDuration = 0
	c.inFlight = 0
	c.startTime = time.Now()
}
