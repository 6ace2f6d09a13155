// Package async runs background jobs on behalf of the indexing pipeline.
//
// Jobs belong to a family. The Scheduler runs at most one job of a family at a
// time and coalesces schedule signals that arrive while that job is running.
package async

import (
	"sync"
	"time"
)

// RunState is the state of a job family.
type RunState string

const (
	// StateIdle indicates no run of the family is active.
	StateIdle RunState = "idle"
	// StateRunning indicates a run of the family is active.
	StateRunning RunState = "running"
)

// StatusSnapshot is an immutable snapshot of a family's run history.
type StatusSnapshot struct {
	Family          string    `json:"family"`
	State           string    `json:"state"`
	Runs            int       `json:"runs"`
	Failures        int       `json:"failures"`
	Coalesced       int       `json:"coalesced"`
	LastStarted     time.Time `json:"last_started,omitempty"`
	LastFinished    time.Time `json:"last_finished,omitempty"`
	LastDurationMs  int64     `json:"last_duration_ms"`
	LastError       string    `json:"last_error,omitempty"`
	RescheduledRuns int       `json:"rescheduled_runs"`
}

// RunStatus provides thread-safe tracking of a family's runs.
type RunStatus struct {
	mu sync.RWMutex

	family       string
	state        RunState
	runs         int
	failures     int
	coalesced    int
	rescheduled  int
	lastStarted  time.Time
	lastFinished time.Time
	lastErr      string
}

// NewRunStatus creates an idle status for family.
func NewRunStatus(family string) *RunStatus {
	return &RunStatus{
		family: family,
		state:  StateIdle,
	}
}

// MarkStarted records the start of a run.
func (s *RunStatus) MarkStarted(rescheduled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateRunning
	s.runs++
	if rescheduled {
		s.rescheduled++
	}
	s.lastStarted = time.Now()
}

// MarkFinished records the end of a run. A nil err clears the last error.
func (s *RunStatus) MarkFinished(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastFinished = time.Now()
	if err != nil {
		s.failures++
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
	}
}

// MarkIdle records that the family has no active or pending run.
func (s *RunStatus) MarkIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateIdle
}

// MarkCoalesced records a schedule signal absorbed by an active run.
func (s *RunStatus) MarkCoalesced() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.coalesced++
}

// IsRunning returns true if a run is active.
func (s *RunStatus) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state == StateRunning
}

// Snapshot returns an immutable copy of the current status.
func (s *RunStatus) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var durationMs int64
	if !s.lastStarted.IsZero() && !s.lastFinished.IsZero() && !s.lastFinished.Before(s.lastStarted) {
		durationMs = s.lastFinished.Sub(s.lastStarted).Milliseconds()
	}

	return StatusSnapshot{
		Family:          s.family,
		State:           string(s.state),
		Runs:            s.runs,
		Failures:        s.failures,
		Coalesced:       s.coalesced,
		LastStarted:     s.lastStarted,
		LastFinished:    s.lastFinished,
		LastDurationMs:  durationMs,
		LastError:       s.lastErr,
		RescheduledRuns: s.rescheduled,
	}
}
