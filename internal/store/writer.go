package store

import (
	"context"
	"slices"
	"sync"

	perrors "github.com/Aman-CERP/propindex/internal/errors"
)

// Writer is exclusive write access to the index for the duration of one run.
// Changes are staged and become visible to searches only on Commit.
type Writer interface {
	// AddDocument stages doc, replacing any staged or committed document with the same ID.
	AddDocument(doc Document) error
	// DeleteDocuments stages removal of every document whose field equals value,
	// both committed ones and ones staged earlier in this run.
	DeleteDocuments(ctx context.Context, field, value string) error
	// Commit durably applies all staged changes as one batch.
	Commit(ctx context.Context) error
	// Rollback discards all staged changes.
	Rollback()
	// Pending returns the number of staged adds and deletes.
	Pending() int
}

// WriterProvider hands out the process-wide Writer and reclaims it.
type WriterProvider interface {
	ObtainWriter(ctx context.Context) (Writer, error)
	// ReturnWriter rolls back uncommitted changes and releases w. A nil w is a no-op.
	ReturnWriter(w Writer) error
}

// IndexWriter is the Writer over an Index.
type IndexWriter struct {
	index *Index

	mu       sync.Mutex
	adds     map[string]Document
	addOrder []string
	deletes  map[string]struct{}
	released bool
}

var _ Writer = (*IndexWriter)(nil)

func newIndexWriter(index *Index) *IndexWriter {
	return &IndexWriter{
		index:   index,
		adds:    make(map[string]Document),
		deletes: make(map[string]struct{}),
	}
}

// AddDocument implements Writer.
func (w *IndexWriter) AddDocument(doc Document) error {
	if doc.ID == "" {
		return perrors.New(perrors.ErrCodeInvalidInput, "document has no ID", nil)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return errReleased()
	}

	if _, staged := w.adds[doc.ID]; !staged {
		w.addOrder = append(w.addOrder, doc.ID)
	}
	w.adds[doc.ID] = doc.Clone()
	return nil
}

// DeleteDocuments implements Writer.
func (w *IndexWriter) DeleteDocuments(ctx context.Context, field, value string) error {
	w.mu.Lock()
	if w.released {
		w.mu.Unlock()
		return errReleased()
	}
	w.mu.Unlock()

	committed, err := w.index.matchingIDs(ctx, field, value)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range committed {
		w.deletes[id] = struct{}{}
	}
	for id, doc := range w.adds {
		if doc.Field(field) == value {
			delete(w.adds, id)
		}
	}
	w.addOrder = slices.DeleteFunc(w.addOrder, func(id string) bool {
		_, ok := w.adds[id]
		return !ok
	})
	return nil
}

// Commit implements Writer.
func (w *IndexWriter) Commit(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return errReleased()
	}
	if err := ctx.Err(); err != nil {
		return perrors.Interrupted("commit cancelled", err)
	}
	if len(w.adds) == 0 && len(w.deletes) == 0 {
		return nil
	}

	// Deleting an ID that is re-added in the same batch is redundant.
	deletes := make([]string, 0, len(w.deletes))
	for id := range w.deletes {
		if _, readded := w.adds[id]; !readded {
			deletes = append(deletes, id)
		}
	}
	slices.Sort(deletes)

	adds := make([]Document, 0, len(w.addOrder))
	for _, id := range w.addOrder {
		adds = append(adds, w.adds[id])
	}

	if err := w.index.commit(deletes, adds); err != nil {
		return err
	}
	w.reset()
	return nil
}

// Rollback implements Writer.
func (w *IndexWriter) Rollback() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reset()
}

// Pending implements Writer.
func (w *IndexWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.adds) + len(w.deletes)
}

func (w *IndexWriter) reset() {
	clear(w.adds)
	clear(w.deletes)
	w.addOrder = w.addOrder[:0]
}

// release rolls back and marks the writer unusable.
func (w *IndexWriter) release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reset()
	w.released = true
}

func errReleased() error {
	return perrors.New(perrors.ErrCodeInvalidInput, "index writer used after it was returned", nil)
}
