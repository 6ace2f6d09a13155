package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Debouncer coalesces rapid file events so a burst of writes becomes one
// index update. Events for the same path within the window merge as follows:
//   - CREATE then MODIFY is CREATE (the file is still new)
//   - CREATE then DELETE or RENAME is nothing (the file never settled)
//   - MODIFY then DELETE is DELETE
//   - DELETE then CREATE is MODIFY (the file was replaced)
//
// Any other sequence keeps the latest event.
type Debouncer struct {
	window  time.Duration
	pending map[string]*pendingEvent
	mu      sync.Mutex
	output  chan []FileEvent
	timer   *time.Timer
	stopped bool
}

type pendingEvent struct {
	event   FileEvent
	firstOp Operation
}

// NewDebouncer creates a debouncer that emits after window of quiet.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
		output:  make(chan []FileEvent, 10),
	}
}

// Add queues event for the next batch.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	existing, ok := d.pending[event.Path]
	if !ok {
		d.pending[event.Path] = &pendingEvent{event: event, firstOp: event.Operation}
		d.scheduleFlush()
		return
	}

	op, keep := merge(existing.firstOp, event.Operation)
	if !keep {
		delete(d.pending, event.Path)
	} else {
		event.Operation = op
		existing.event = event
	}
	d.scheduleFlush()
}

// merge returns the operation that represents first followed by next,
// or false if the two cancel out.
func merge(first, next Operation) (Operation, bool) {
	switch first {
	case OpCreate:
		switch next {
		case OpModify:
			return OpCreate, true
		case OpDelete, OpRename:
			return 0, false
		}
	case OpDelete:
		if next == OpCreate {
			return OpModify, true
		}
	}
	return next, true
}

// scheduleFlush restarts the quiet-period timer. Caller holds d.mu.
func (d *Debouncer) scheduleFlush() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush emits all pending events as one batch ordered by path.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]FileEvent, 0, len(d.pending))
	for _, pe := range d.pending {
		events = append(events, pe.event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	d.pending = make(map[string]*pendingEvent)

	select {
	case d.output <- events:
	default:
		slog.Warn("debouncer_output_full",
			slog.Int("batch_size", len(events)))
	}
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop discards pending events and closes the output channel.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
