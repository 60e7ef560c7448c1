package monitor

import (
	"sync"
	"time"
)

// Stats accumulates scan counters for the admin API. All methods are safe for
// concurrent use.
type Stats struct {
	mu sync.Mutex

	cycles         int64
	lastCycleAt    time.Time
	lastDuration   time.Duration
	lastMonitored  int
	lastTriggered  int
	lastSkipped    int
	triggersTotal  int64
	closeFailures  int64
	lastCycleError string
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Cycles         int64         `json:"cycles"`
	LastCycleAt    time.Time     `json:"last_cycle_at"`
	LastDuration   time.Duration `json:"last_duration"`
	LastMonitored  int           `json:"last_monitored"`
	LastTriggered  int           `json:"last_triggered"`
	LastSkipped    int           `json:"last_skipped"`
	TriggersTotal  int64         `json:"triggers_total"`
	CloseFailures  int64         `json:"close_failures"`
	LastCycleError string        `json:"last_cycle_error,omitempty"`
}

// RecordCycle stores the outcome of one completed scan cycle.
func (s *Stats) RecordCycle(duration time.Duration, monitored, triggered, skipped int, cycleErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cycles++
	s.lastCycleAt = time.Now()
	s.lastDuration = duration
	s.lastMonitored = monitored
	s.lastTriggered = triggered
	s.lastSkipped = skipped
	s.triggersTotal += int64(triggered)

	s.lastCycleError = ""
	if cycleErr != nil {
		s.lastCycleError = cycleErr.Error()
	}
}

// RecordCloseFailure counts one failed close dispatch.
func (s *Stats) RecordCloseFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeFailures++
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Cycles:         s.cycles,
		LastCycleAt:    s.lastCycleAt,
		LastDuration:   s.lastDuration,
		LastMonitored:  s.lastMonitored,
		LastTriggered:  s.lastTriggered,
		LastSkipped:    s.lastSkipped,
		TriggersTotal:  s.triggersTotal,
		CloseFailures:  s.closeFailures,
		LastCycleError: s.lastCycleError,
	}
}
