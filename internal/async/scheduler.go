package async

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Family tags jobs that must not run concurrently.
type Family string

// Job is a unit of background work.
type Job interface {
	Family() Family
	Run(ctx context.Context) error
}

// JobFunc adapts a function to a Job.
type JobFunc struct {
	Tag Family
	Fn  func(ctx context.Context) error
}

// Family implements Job.
func (j JobFunc) Family() Family { return j.Tag }

// Run implements Job.
func (j JobFunc) Run(ctx context.Context) error { return j.Fn(ctx) }

// familyState is guarded by Scheduler.mu.
type familyState struct {
	job         Job
	running     bool
	rescheduled bool
	idle        chan struct{}
	status      *RunStatus
}

// Scheduler runs jobs in background goroutines, at most one per family.
//
// A Schedule call for a family that is already running does not start a
// second run. It marks the family rescheduled instead, and one more run
// starts after the active one returns. Any number of signals during a run
// collapse into that single follow-up run.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	families map[Family]*familyState
	closed   bool
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler whose jobs run under a context derived from ctx.
func NewScheduler(ctx context.Context) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		ctx:      ctx,
		cancel:   cancel,
		families: make(map[Family]*familyState),
	}
}

func (s *Scheduler) family(tag Family) *familyState {
	st, ok := s.families[tag]
	if !ok {
		st = &familyState{status: NewRunStatus(string(tag))}
		s.families[tag] = st
	}
	return st
}

// Schedule requests a run of job. It returns true if a new run was started and
// false if the request was coalesced into an active run or the scheduler is
// shut down.
func (s *Scheduler) Schedule(job Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		slog.Debug("schedule_rejected",
			slog.String("family", string(job.Family())),
			slog.String("reason", "scheduler shut down"))
		return false
	}

	st := s.family(job.Family())
	st.job = job
	if st.running {
		st.rescheduled = true
		st.status.MarkCoalesced()
		return false
	}

	st.running = true
	st.idle = make(chan struct{})
	st.status.MarkStarted(false)
	s.wg.Add(1)
	go s.loop(job.Family(), st)
	return true
}

// loop runs the family's job until no reschedule is pending.
func (s *Scheduler) loop(tag Family, st *familyState) {
	defer s.wg.Done()

	s.mu.Lock()
	job := st.job
	s.mu.Unlock()

	for {
		err := s.runOnce(tag, job)
		st.status.MarkFinished(err)

		s.mu.Lock()
		if st.rescheduled && !s.closed {
			st.rescheduled = false
			job = st.job
			s.mu.Unlock()
			st.status.MarkStarted(true)
			slog.Debug("job_rescheduled", slog.String("family", string(tag)))
			continue
		}
		st.rescheduled = false
		st.running = false
		st.status.MarkIdle()
		close(st.idle)
		s.mu.Unlock()
		return
	}
}

// runOnce runs job and converts a panic into an error.
func (s *Scheduler) runOnce(tag Family, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
			slog.Error("job_panic",
				slog.String("family", string(tag)),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	err = job.Run(s.ctx)
	if err != nil {
		slog.Error("job_failed",
			slog.String("family", string(tag)),
			slog.String("error", err.Error()))
	}
	return err
}

// Running reports whether a run of family is active.
func (s *Scheduler) Running(family Family) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.families[family]
	return ok && st.running
}

// Join blocks until family has no active or pending run, or ctx is done.
func (s *Scheduler) Join(ctx context.Context, family Family) error {
	s.mu.Lock()
	st, ok := s.families[family]
	if !ok || !st.running {
		s.mu.Unlock()
		return nil
	}
	idle := st.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of family's run history.
func (s *Scheduler) Status(family Family) StatusSnapshot {
	s.mu.Lock()
	st := s.family(family)
	s.mu.Unlock()
	return st.status.Snapshot()
}

// Shutdown stops accepting work, cancels the context of active jobs and waits
// for them to return or for ctx to be done.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
