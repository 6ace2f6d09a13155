package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/propindex/internal/analyzer"
	"github.com/Aman-CERP/propindex/internal/async"
	perrors "github.com/Aman-CERP/propindex/internal/errors"
	"github.com/Aman-CERP/propindex/internal/properties"
	"github.com/Aman-CERP/propindex/internal/registry"
	"github.com/Aman-CERP/propindex/internal/store"
)

const testIdle = 30 * time.Millisecond

func newMemManager(t *testing.T) *store.Manager {
	t.Helper()
	m, err := store.OpenManager(context.Background(), "", store.ManagerOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func newMemRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

// descriptor parses path and assigns id.
func descriptor(t *testing.T, path string, id int64) properties.Descriptor {
	t.Helper()
	d, err := properties.ParsePath(path)
	require.NoError(t, err)
	return d.WithID(id)
}

// docs builds the documents of d from alternating keys and values.
func docs(d properties.Descriptor, kv ...string) []store.Document {
	f := &properties.File{}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Entries = append(f.Entries, properties.Entry{Key: kv[i], Value: kv[i+1]})
	}
	return analyzer.Documents(d, f)
}

func mustCreate(t *testing.T, documents []store.Document) CreateMutation {
	t.Helper()
	m, err := NewCreate(documents)
	require.NoError(t, err)
	return m
}

func enqueue(t *testing.T, q *Queue, mutations ...Mutation) {
	t.Helper()
	for _, m := range mutations {
		require.NoError(t, q.Enqueue(context.Background(), m))
	}
}

func countTerm(t *testing.T, m *store.Manager, field, value string) int {
	t.Helper()
	n, err := store.NewSearcher(m.Index(), 0).CountTerm(context.Background(), field, value)
	require.NoError(t, err)
	return n
}

// runWorker runs one worker pass with a safety timeout.
func runWorker(t *testing.T, w *Worker) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return w.Run(ctx)
}

// writeFile creates a file below root, creating parent directories.
func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

// drain removes every queued mutation.
func drain(t *testing.T, q *Queue) []Mutation {
	t.Helper()
	var out []Mutation
	for {
		m, ok, err := q.DequeueWithTimeout(context.Background(), 0)
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, m)
	}
}

// recordingScheduler counts schedule signals without running anything.
type recordingScheduler struct {
	mu   sync.Mutex
	jobs []async.Job
}

func (s *recordingScheduler) Schedule(job async.Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return true
}

func (s *recordingScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// failingWriter fails AddDocument for one document ID while failures remain.
type failingWriter struct {
	store.Writer
	failID    string
	failures  *atomic.Int32
	commitErr *atomic.Int32
}

func (w *failingWriter) AddDocument(doc store.Document) error {
	if doc.ID == w.failID && w.failures.Load() > 0 {
		w.failures.Add(-1)
		return perrors.New(perrors.ErrCodeIndexWrite, "simulated write failure", nil)
	}
	return w.Writer.AddDocument(doc)
}

func (w *failingWriter) Commit(ctx context.Context) error {
	if w.commitErr != nil && w.commitErr.Load() > 0 {
		w.commitErr.Add(-1)
		return perrors.New(perrors.ErrCodeDiskFull, "simulated commit failure", nil)
	}
	return w.Writer.Commit(ctx)
}

// failingProvider hands out failingWriters around a Manager's writer.
type failingProvider struct {
	*store.Manager
	failID    string
	failures  atomic.Int32
	commitErr atomic.Int32
}

func (p *failingProvider) ObtainWriter(ctx context.Context) (store.Writer, error) {
	w, err := p.Manager.ObtainWriter(ctx)
	if err != nil {
		return nil, err
	}
	return &failingWriter{Writer: w, failID: p.failID, failures: &p.failures, commitErr: &p.commitErr}, nil
}

func (p *failingProvider) ReturnWriter(w store.Writer) error {
	if fw, ok := w.(*failingWriter); ok {
		w = fw.Writer
	}
	return p.Manager.ReturnWriter(w)
}
