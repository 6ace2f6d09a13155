package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	perrors "github.com/Aman-CERP/propindex/internal/errors"
)

const (
	// LockFileName is the cross-process write lock inside the data directory.
	LockFileName = "write.lock"

	// IndexDirName is the bleve index directory inside the data directory.
	IndexDirName = "index.bleve"
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// LockTimeout bounds how long OpenManager retries a write lock held by another process.
	LockTimeout time.Duration
}

// Manager owns the index of one data directory and is its WriterProvider.
// At most one writer is outstanding at a time, and at most one process holds
// the data directory open for writing.
type Manager struct {
	dir   string
	index *Index
	lock  *flock.Flock

	mu       sync.Mutex
	current  *IndexWriter
	closed   bool
	obtained int
	returned int
}

var _ WriterProvider = (*Manager)(nil)

// OpenManager locks dir and opens its index. An empty dir opens an in-memory
// index without a lock.
func OpenManager(ctx context.Context, dir string, opts ManagerOptions) (*Manager, error) {
	if dir == "" {
		index, err := OpenIndex("")
		if err != nil {
			return nil, err
		}
		return &Manager{index: index}, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, perrors.New(perrors.ErrCodeIndexWrite, "failed to create data directory", err)
	}

	lockPath := filepath.Join(dir, LockFileName)
	lock := flock.New(lockPath)
	err := perrors.Retry(ctx, perrors.RetryConfigWithin(opts.LockTimeout), func() error {
		acquired, err := lock.TryLock()
		if err != nil {
			return perrors.New(perrors.ErrCodeIndexWrite, "failed to acquire write lock", err)
		}
		if !acquired {
			return perrors.New(perrors.ErrCodeIndexLocked,
				fmt.Sprintf("index at %s is locked by another process", dir), nil).
				WithDetail("lock", lockPath).
				WithSuggestion("stop the running 'propindex watch' for this workspace")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	index, err := OpenIndex(filepath.Join(dir, IndexDirName))
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	slog.Debug("index_manager_opened",
		slog.String("dir", dir),
		slog.String("lock", lockPath))

	return &Manager{dir: dir, index: index, lock: lock}, nil
}

// Index returns the managed index for read access.
func (m *Manager) Index() *Index {
	return m.index
}

// ObtainWriter implements WriterProvider.
func (m *Manager) ObtainWriter(ctx context.Context) (Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, perrors.Interrupted("obtain writer cancelled", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, perrors.New(perrors.ErrCodeIndexWrite, "index manager is closed", nil)
	}
	if m.current != nil {
		return nil, perrors.New(perrors.ErrCodeWriterInUse, "index writer is already in use", nil)
	}

	m.current = newIndexWriter(m.index)
	m.obtained++
	return m.current, nil
}

// ReturnWriter implements WriterProvider. Staged changes that were not committed are discarded.
func (m *Manager) ReturnWriter(w Writer) error {
	if w == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	iw, ok := w.(*IndexWriter)
	if !ok || iw != m.current {
		return perrors.New(perrors.ErrCodeInvalidInput, "writer was not obtained from this manager", nil)
	}

	if pending := iw.Pending(); pending > 0 {
		slog.Warn("index_writer_rollback", slog.Int("pending", pending))
	}
	iw.release()
	m.current = nil
	m.returned++
	return nil
}

// WriterStats reports how often the writer was obtained and returned.
func (m *Manager) WriterStats() (obtained, returned int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.obtained, m.returned
}

// Close closes the index and releases the write lock.
// An outstanding writer is rolled back.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	if m.current != nil {
		m.current.release()
		m.current = nil
	}

	err := m.index.Close()
	if m.lock != nil {
		if unlockErr := m.lock.Unlock(); unlockErr != nil && err == nil {
			err = perrors.New(perrors.ErrCodeIndexWrite, "failed to release write lock", unlockErr)
		}
	}
	return err
}
