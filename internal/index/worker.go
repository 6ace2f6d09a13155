package index

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/propindex/internal/async"
	perrors "github.com/Aman-CERP/propindex/internal/errors"
	"github.com/Aman-CERP/propindex/internal/store"
)

// IndexWriterFamily is the scheduler family of the index worker.
// The scheduler runs at most one job of this family at a time.
const IndexWriterFamily async.Family = "index-writer"

const (
	// DefaultIdleTimeout is how long a run waits for the next mutation
	// before it commits and ends.
	DefaultIdleTimeout = 20 * time.Second

	// DefaultMaxAttempts is how many runs may fail on the same mutation
	// before it is dropped.
	DefaultMaxAttempts = 3
)

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	// IdleTimeout ends a run after the queue stayed empty this long.
	IdleTimeout time.Duration
	// CommitEvery commits during a run at least this often. Zero commits
	// only when the run goes idle.
	CommitEvery time.Duration
	// MaxAttempts bounds the runs that may fail on one mutation.
	MaxAttempts int
}

// withDefaults fills zero values.
func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.CommitEvery < 0 {
		c.CommitEvery = 0
	}
	return c
}

// pending is a dequeued mutation together with the number of runs that failed on it.
type pending struct {
	m        Mutation
	attempts int
}

// Worker is the job that drains the queue into the index writer.
//
// Each run obtains the writer, applies mutations in queue order and commits
// once the queue has been idle for IdleTimeout. Uncommitted work of a failed
// run is rolled back when the writer is returned; the mutations behind it are
// kept and applied again, ahead of the queue, by the next run.
type Worker struct {
	queue    *Queue
	provider store.WriterProvider
	cfg      WorkerConfig

	mu    sync.Mutex
	carry []*pending
}

var _ async.Job = (*Worker)(nil)

// NewWorker creates a worker draining queue into the writers handed out by provider.
func NewWorker(queue *Queue, provider store.WriterProvider, cfg WorkerConfig) *Worker {
	return &Worker{
		queue:    queue,
		provider: provider,
		cfg:      cfg.withDefaults(),
	}
}

// Family implements async.Job.
func (w *Worker) Family() async.Family {
	return IndexWriterFamily
}

// Carried returns the number of mutations waiting to be re-applied after a failed run.
func (w *Worker) Carried() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.carry)
}

func (w *Worker) takeCarry() []*pending {
	w.mu.Lock()
	defer w.mu.Unlock()
	c := w.carry
	w.carry = nil
	return c
}

func (w *Worker) setCarry(c []*pending) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.carry = c
}

// Run implements async.Job. It returns nil when the run ended because the
// queue went idle or ctx was cancelled, and the error that ended it otherwise.
func (w *Worker) Run(ctx context.Context) error {
	start := time.Now()

	writer, err := w.provider.ObtainWriter(ctx)
	if err != nil {
		WorkerRuns.WithLabelValues(runError).Inc()
		slog.Error("index_writer_unavailable",
			slog.String("code", perrors.GetCode(err)),
			slog.String("error", err.Error()))
		return err
	}
	defer w.release(writer)

	r := &run{
		worker:     w,
		writer:     writer,
		lastCommit: time.Now(),
	}
	result, err := r.execute(ctx)
	WorkerRuns.WithLabelValues(result).Inc()

	slog.Debug("index_worker_run_finished",
		slog.String("result", result),
		slog.Int("committed", r.committed),
		slog.Int("carried", w.Carried()),
		slog.Duration("duration", time.Since(start)))
	return err
}

// release returns the writer; failures are logged only.
func (w *Worker) release(writer store.Writer) {
	if err := w.provider.ReturnWriter(writer); err != nil {
		slog.Error("index_writer_release_failed",
			slog.String("error", err.Error()))
	}
}

// run is the state of one Worker.Run invocation.
type run struct {
	worker     *Worker
	writer     store.Writer
	applied    []*pending
	lastCommit time.Time
	committed  int
}

func (r *run) execute(ctx context.Context) (string, error) {
	w := r.worker

	carried := w.takeCarry()
	if len(carried) > 0 {
		slog.Info("index_worker_resuming",
			slog.Int("carried", len(carried)))
	}
	for i, p := range carried {
		if err := r.apply(ctx, p); err != nil {
			return r.applyFailed(ctx, p, carried[i+1:], err)
		}
	}

	lastItem := time.Now()
	for {
		if r.commitDue() {
			if err := r.commit(ctx); err != nil {
				return r.commitFailed(err)
			}
		}

		m, ok, err := w.queue.DequeueWithTimeout(ctx, r.wait(lastItem))
		if err != nil {
			return r.cancelled(ctx)
		}
		if !ok {
			if time.Since(lastItem) < w.cfg.IdleTimeout {
				continue
			}
			if err := r.commit(ctx); err != nil {
				return r.commitFailed(err)
			}
			return runSuccess, nil
		}

		lastItem = time.Now()
		p := &pending{m: m}
		if err := r.apply(ctx, p); err != nil {
			return r.applyFailed(ctx, p, nil, err)
		}
	}
}

// apply stages p on the writer.
func (r *run) apply(ctx context.Context, p *pending) error {
	switch m := p.m.(type) {
	case CreateMutation:
		if err := r.addAll(m.documents); err != nil {
			return err
		}
	case DeleteMutation:
		if err := r.writer.DeleteDocuments(ctx, store.FieldCDOID, m.Identity().Key()); err != nil {
			return err
		}
	case ReplaceMutation:
		if err := r.writer.DeleteDocuments(ctx, store.FieldFullPath, m.Identity().FullPath); err != nil {
			return err
		}
		if err := r.addAll(m.documents); err != nil {
			return err
		}
	default:
		return perrors.New(perrors.ErrCodeInternal, fmt.Sprintf("unknown mutation type %T", p.m), nil)
	}

	r.applied = append(r.applied, p)
	MutationsApplied.WithLabelValues(p.m.Action().String()).Inc()
	return nil
}

func (r *run) addAll(docs []store.Document) error {
	for _, doc := range docs {
		if err := r.writer.AddDocument(doc); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) commitDue() bool {
	every := r.worker.cfg.CommitEvery
	return every > 0 && len(r.applied) > 0 && time.Since(r.lastCommit) >= every
}

// wait returns how long the next dequeue may block: until the run goes idle
// or, with uncommitted work and CommitEvery set, until the next commit is due.
func (r *run) wait(lastItem time.Time) time.Duration {
	cfg := r.worker.cfg
	wait := cfg.IdleTimeout - time.Since(lastItem)
	if cfg.CommitEvery > 0 && len(r.applied) > 0 {
		wait = min(wait, cfg.CommitEvery-time.Since(r.lastCommit))
	}
	return max(wait, 0)
}

// commit makes everything applied so far visible.
func (r *run) commit(ctx context.Context) error {
	if len(r.applied) == 0 && r.writer.Pending() == 0 {
		r.lastCommit = time.Now()
		return nil
	}

	start := time.Now()
	err := r.writer.Commit(ctx)
	CommitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}

	slog.Debug("index_committed",
		slog.Int("mutations", len(r.applied)),
		slog.Duration("duration", time.Since(start)))
	r.committed += len(r.applied)
	r.applied = nil
	r.lastCommit = time.Now()
	return nil
}

// cancelled ends a run whose context was cancelled while it waited for the
// queue. Applied work is committed before the writer is released.
func (r *run) cancelled(ctx context.Context) (string, error) {
	if err := r.commit(context.WithoutCancel(ctx)); err != nil {
		return r.commitFailed(err)
	}
	slog.Warn("index_worker_cancelled",
		slog.Int("committed", r.committed),
		slog.Int("queued", r.worker.queue.Len()))
	return runCancelled, nil
}

// applyFailed handles an error from applying failed. rest are carried
// mutations that were not attempted yet.
func (r *run) applyFailed(ctx context.Context, failed *pending, rest []*pending, err error) (string, error) {
	w := r.worker

	if stderrors.Is(err, perrors.ErrInterrupted) || ctx.Err() != nil {
		// An interrupted DeleteDocuments stages nothing, so what was applied
		// before failed is complete and can be committed.
		if cerr := r.commit(context.WithoutCancel(ctx)); cerr != nil {
			state, err := r.commitFailed(cerr)
			// failed and rest were never applied, so their attempts stand.
			w.setCarry(append(append(w.takeCarry(), failed), rest...))
			return state, err
		}
		w.setCarry(append([]*pending{failed}, rest...))
		slog.Warn("index_worker_cancelled",
			slog.String("action", failed.m.Action().String()),
			slog.String("path", target(failed.m)),
			slog.Int("committed", r.committed))
		return runCancelled, nil
	}

	failed.attempts++
	logFailure("index_apply_failed", err,
		slog.String("action", failed.m.Action().String()),
		slog.String("path", target(failed.m)),
		slog.Int("attempt", failed.attempts))

	carry := append(r.applied, failed)
	carry = append(carry, rest...)
	r.applied = nil
	w.setCarry(r.keepRetryable(carry))
	return runError, err
}

// commitFailed handles a failed commit: every applied mutation counts the failure.
func (r *run) commitFailed(err error) (string, error) {
	for _, p := range r.applied {
		p.attempts++
	}
	logFailure("index_commit_failed", err,
		slog.Int("mutations", len(r.applied)))

	carry := r.applied
	r.applied = nil
	r.worker.setCarry(r.keepRetryable(carry))
	return runError, err
}

// keepRetryable drops mutations that reached the attempt limit.
func (r *run) keepRetryable(carry []*pending) []*pending {
	limit := r.worker.cfg.MaxAttempts
	kept := carry[:0]
	for _, p := range carry {
		if p.attempts >= limit {
			MutationsDropped.WithLabelValues(dropMaxAttempts).Inc()
			slog.Error("index_mutation_dropped",
				slog.String("action", p.m.Action().String()),
				slog.String("path", target(p.m)),
				slog.Int("attempts", p.attempts))
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// logFailure logs err at error level with its code.
func logFailure(msg string, err error, attrs ...slog.Attr) {
	attrs = append(attrs,
		slog.String("code", perrors.GetCode(err)),
		slog.Bool("fatal", perrors.IsFatal(err)),
		slog.String("error", err.Error()))
	slog.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}
