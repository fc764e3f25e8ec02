package metrics

import (
	"testing"
	"time"

	"github.com/quillhq/quill/internal/schedule"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	if c == nil {
		t.Fatal("NewCollector returned nil")
	}

	m := c.Snapshot()
	if m.TotalFirings != 0 {
		t.Errorf("Expected TotalFirings = 0, got %d", m.TotalFirings)
	}
	if m.TotalSuccesses != 0 {
		t.Errorf("Expected TotalSuccesses = 0, got %d", m.TotalSuccesses)
	}
	if m.TotalFailures != 0 {
		t.Errorf("Expected TotalFailures = 0, got %d", m.TotalFailures)
	}
}

func TestRecordFiringStarted(t *testing.T) {
	c := NewCollector()

	c.RecordFiringStarted(schedule.FrequencyDaily)
	c.RecordFiringStarted(schedule.FrequencyWeekly)
	c.RecordFiringStarted(schedule.FrequencyDaily)

	m := c.Snapshot()
	if m.TotalFirings != 3 {
		t.Errorf("Expected TotalFirings = 3, got %d", m.TotalFirings)
	}
	if m.FiringsByFrequency[schedule.FrequencyDaily] != 2 {
		t.Errorf("Expected daily count = 2, got %d", m.FiringsByFrequency[schedule.FrequencyDaily])
	}
	if m.FiringsByFrequency[schedule.FrequencyWeekly] != 1 {
		t.Errorf("Expected weekly count = 1, got %d", m.FiringsByFrequency[schedule.FrequencyWeekly])
	}
	if m.InFlight != 3 {
		t.Errorf("Expected InFlight = 3, got %d", m.InFlight)
	}
}

func TestRecordFiringSucceeded(t *testing.T) {
	c := NewCollector()

	c.RecordFiringStarted(schedule.FrequencyDaily)
	c.RecordFiringSucceeded(100 * time.Millisecond)

	c.RecordFiringStarted(schedule.FrequencyMonthly)
	c.RecordFiringSucceeded(200 * time.Millisecond)

	m := c.Snapshot()
	if m.TotalSuccesses != 2 {
		t.Errorf("Expected TotalSuccesses = 2, got %d", m.TotalSuccesses)
	}
	if m.InFlight != 0 {
		t.Errorf("Expected InFlight = 0, got %d", m.InFlight)
	}

	// Average duration should be 150ms
	expectedAvg := 150 * time.Millisecond
	if m.AvgRenderDuration != expectedAvg {
		t.Errorf("Expected AvgRenderDuration = %v, got %v", expectedAvg, m.AvgRenderDuration)
	}
}

func TestRecordFiringFailed(t *testing.T) {
	c := NewCollector()

	c.RecordFiringStarted(schedule.FrequencyDaily)
	c.RecordFiringFailed(50 * time.Millisecond)

	m := c.Snapshot()
	if m.TotalFailures != 1 {
		t.Errorf("Expected TotalFailures = 1, got %d", m.TotalFailures)
	}
	if m.TotalSuccesses != 0 {
		t.Errorf("Expected TotalSuccesses = 0, got %d", m.TotalSuccesses)
	}
	if m.InFlight != 0 {
		t.Errorf("Expected InFlight = 0, got %d", m.InFlight)
	}
}

func TestRecordClaimLost(t *testing.T) {
	c := NewCollector()

	c.RecordClaimLost()
	c.RecordClaimLost()

	m := c.Snapshot()
	if m.ClaimsLost != 2 {
		t.Errorf("Expected ClaimsLost = 2, got %d", m.ClaimsLost)
	}
	if m.TotalFirings != 0 {
		t.Errorf("Lost claims must not count as firings, got %d", m.TotalFirings)
	}
}

func TestRecordFatalSchedule(t *testing.T) {
	c := NewCollector()

	c.RecordFatalSchedule()

	m := c.Snapshot()
	if m.FatalSchedules != 1 {
		t.Errorf("Expected FatalSchedules = 1, got %d", m.FatalSchedules)
	}
}

func TestMixedOutcomes(t *testing.T) {
	c := NewCollector()

	// 3 successes, 1 failure
	c.RecordFiringStarted(schedule.FrequencyDaily)
	c.RecordFiringSucceeded(100 * time.Millisecond)

	c.RecordFiringStarted(schedule.FrequencyWeekly)
	c.RecordFiringSucceeded(200 * time.Millisecond)

	c.RecordFiringStarted(schedule.FrequencyQuarterly)
	c.RecordFiringSucceeded(150 * time.Millisecond)

	c.RecordFiringStarted(schedule.FrequencyDaily)
	c.RecordFiringFailed(50 * time.Millisecond)

	m := c.Snapshot()
	if m.TotalFirings != 4 {
		t.Errorf("Expected TotalFirings = 4, got %d", m.TotalFirings)
	}
	if m.TotalSuccesses != 3 {
		t.Errorf("Expected TotalSuccesses = 3, got %d", m.TotalSuccesses)
	}
	if m.TotalFailures != 1 {
		t.Errorf("Expected TotalFailures = 1, got %d", m.TotalFailures)
	}

	// Average duration should be 125ms (500ms total / 4 completions)
	expectedAvg := 125 * time.Millisecond
	if m.AvgRenderDuration != expectedAvg {
		t.Errorf("Expected AvgRenderDuration = %v, got %v", expectedAvg, m.AvgRenderDuration)
	}
}

func TestReset(t *testing.T) {
	c := NewCollector()

	c.RecordFiringStarted(schedule.FrequencyDaily)
	c.RecordFiringSucceeded(100 * time.Millisecond)
	c.RecordClaimLost()
	c.RecordFatalSchedule()

	if c.Snapshot().TotalFirings == 0 {
		t.Error("Expected non-zero metrics before reset")
	}

	c.Reset()

	m := c.Snapshot()
	if m.TotalFirings != 0 {
		t.Errorf("Expected TotalFirings = 0 after reset, got %d", m.TotalFirings)
	}
	if m.TotalSuccesses != 0 {
		t.Errorf("Expected TotalSuccesses = 0 after reset, got %d", m.TotalSuccesses)
	}
	if m.ClaimsLost != 0 {
		t.Errorf("Expected ClaimsLost = 0 after reset, got %d", m.ClaimsLost)
	}
	if m.FatalSchedules != 0 {
		t.Errorf("Expected FatalSchedules = 0 after reset, got %d", m.FatalSchedules)
	}
	if len(m.FiringsByFrequency) != 0 {
		t.Errorf("Expected empty FiringsByFrequency after reset, got %d entries", len(m.FiringsByFrequency))
	}
	if m.AvgRenderDuration != 0 {
		t.Errorf("Expected AvgRenderDuration = 0 after reset, got %v", m.AvgRenderDuration)
	}
	if m.InFlight != 0 {
		t.Errorf("Expected InFlight = 0 after reset, got %d", m.InFlight)
	}
}

func TestUptime(t *testing.T) {
	c := NewCollector()

	time.Sleep(10 * time.Millisecond)

	m := c.Snapshot()
	if m.Uptime < 10*time.Millisecond {
		t.Errorf("Expected Uptime >= 10ms, got %v", m.Uptime)
	}
	if m.Uptime > 1*time.Second {
		t.Errorf("Expected Uptime < 1s, got %v", m.Uptime)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := NewCollector()
	done := make(chan bool)

	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				c.RecordFiringStarted(schedule.FrequencyDaily)
				c.RecordFiringSucceeded(1 * time.Millisecond)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	m := c.Snapshot()
	expected := int64(1000) // 10 goroutines * 100 firings each
	if m.TotalFirings != expected {
		t.Errorf("Expected TotalFirings = %d, got %d", expected, m.TotalFirings)
	}
	if m.TotalSuccesses != expected {
		t.Errorf("Expected TotalSuccesses = %d, got %d", expected, m.TotalSuccesses)
	}
	if m.InFlight != 0 {
		t.Errorf("Expected InFlight = 0, got %d", m.InFlight)
	}
}

// Benchmarks

func BenchmarkRecordFiringStarted(b *testing.B) {
	c := NewCollector()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.RecordFiringStarted(schedule.FrequencyDaily)
	}
}

func BenchmarkSnapshot(b *testing.B) {
	c := NewCollector()
	for i := 0; i < 1000; i++ {
		c.RecordFiringStarted(schedule.FrequencyDaily)
		c.RecordFiringSucceeded(1 * time.Millisecond)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Snapshot()
	}
}
