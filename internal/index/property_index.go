package index

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/propindex/internal/analyzer"
	"github.com/Aman-CERP/propindex/internal/async"
	"github.com/Aman-CERP/propindex/internal/properties"
)

// Scheduler starts a job unless a job of the same family is already running.
type Scheduler interface {
	Schedule(job async.Job) bool
}

// PropertyIndex receives translation file changes, turns them into mutations
// and hands them to the worker.
type PropertyIndex struct {
	analyzer  analyzer.Analyzer
	queue     *Queue
	scheduler Scheduler
	worker    *Worker
}

// NewPropertyIndex wires the change entry points to queue and worker.
func NewPropertyIndex(a analyzer.Analyzer, queue *Queue, scheduler Scheduler, worker *Worker) *PropertyIndex {
	return &PropertyIndex{
		analyzer:  a,
		queue:     queue,
		scheduler: scheduler,
		worker:    worker,
	}
}

// FileAdded indexes a file that has no documents yet.
// A file without any keys is skipped.
func (p *PropertyIndex) FileAdded(ctx context.Context, d properties.Descriptor) error {
	docs := p.analyzer.Analyze(d)
	m, err := NewCreate(docs)
	if err != nil {
		MutationsDropped.WithLabelValues(dropEmpty).Inc()
		slog.Debug("index_create_skipped",
			slog.String("path", d.Path),
			slog.String("reason", "no documents"))
		return nil
	}
	return p.Submit(ctx, m)
}

// FileDeleted removes every document of a file.
func (p *PropertyIndex) FileDeleted(ctx context.Context, d properties.Descriptor) error {
	return p.Submit(ctx, NewDelete(d))
}

// FileModified re-indexes a file. changes describes what differs from the
// previously seen content; the file is re-analyzed as a whole either way.
func (p *PropertyIndex) FileModified(ctx context.Context, d properties.Descriptor, changes []properties.Change) error {
	docs := p.analyzer.Analyze(d)
	slog.Debug("index_file_modified",
		slog.String("path", d.Path),
		slog.Int("changes", len(changes)),
		slog.Int("documents", len(docs)))
	return p.Submit(ctx, NewReplace(d, docs))
}

// Submit enqueues m, blocking while the queue is full, and schedules the
// worker. If ctx ends first, m is dropped and an ErrInterrupted error returned.
func (p *PropertyIndex) Submit(ctx context.Context, m Mutation) error {
	if err := p.queue.Enqueue(ctx, m); err != nil {
		MutationsDropped.WithLabelValues(dropInterrupted).Inc()
		slog.Warn("index_enqueue_interrupted",
			slog.String("action", m.Action().String()),
			slog.String("path", target(m)),
			slog.String("error", err.Error()))
		return err
	}
	p.scheduler.Schedule(p.worker)
	return nil
}

// Worker returns the worker mutations are handed to.
func (p *PropertyIndex) Worker() *Worker {
	return p.worker
}

// Queue returns the mutation queue.
func (p *PropertyIndex) Queue() *Queue {
	return p.queue
}
