package index

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	perrors "github.com/Aman-CERP/propindex/internal/errors"
	"github.com/Aman-CERP/propindex/internal/properties"
	"github.com/Aman-CERP/propindex/internal/registry"
	"github.com/Aman-CERP/propindex/internal/watcher"
)

// DefaultSnapshotCacheSize is the number of file snapshots kept for diffing.
const DefaultSnapshotCacheSize = 1024

// CoordinatorConfig contains configuration for the Coordinator.
type CoordinatorConfig struct {
	// Root is the absolute path of the workspace.
	Root string

	// Registry assigns and remembers file identities.
	Registry *registry.Registry

	// Index receives the resulting change notifications.
	Index *PropertyIndex

	// SnapshotCacheSize bounds the remembered file contents used to describe
	// modifications. Defaults to DefaultSnapshotCacheSize.
	SnapshotCacheSize int
}

// Coordinator maps watcher events onto PropertyIndex entry points.
type Coordinator struct {
	config    CoordinatorConfig
	snapshots *lru.Cache[string, map[string]string]
	mu        sync.Mutex
}

// NewCoordinator creates a coordinator.
func NewCoordinator(config CoordinatorConfig) *Coordinator {
	size := config.SnapshotCacheSize
	if size <= 0 {
		size = DefaultSnapshotCacheSize
	}
	snapshots, _ := lru.New[string, map[string]string](size)
	return &Coordinator{
		config:    config,
		snapshots: snapshots,
	}
}

// Remember records the current content of a file so a later modification can
// be described key by key.
func (c *Coordinator) Remember(relPath string, values map[string]string) {
	c.snapshots.Add(relPath, values)
}

// HandleEvents processes a batch of file events. Failures of single events are
// logged and skipped; only an interrupted enqueue stops the batch.
func (c *Coordinator) HandleEvents(ctx context.Context, events []watcher.FileEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, event := range events {
		if err := c.handleEvent(ctx, event); err != nil {
			if stderrors.Is(err, perrors.ErrInterrupted) {
				return err
			}
			slog.Warn("file_event_failed",
				slog.String("path", event.Path),
				slog.String("operation", event.Operation.String()),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

func (c *Coordinator) handleEvent(ctx context.Context, event watcher.FileEvent) error {
	slog.Debug("file_event",
		slog.String("path", event.Path),
		slog.String("operation", event.Operation.String()))

	if event.Operation.Removal() {
		if properties.IsPropertiesFile(event.Path) {
			return c.removeFile(ctx, event.Path)
		}
		return c.removeTree(ctx, event.Path)
	}
	if event.IsDir || !properties.IsPropertiesFile(event.Path) {
		return nil
	}
	return c.indexFile(ctx, event.Path)
}

// indexFile reports a created or modified file. Whether it is new is decided
// by the registry, not by the event, since editors often save by re-creating.
func (c *Coordinator) indexFile(ctx context.Context, relPath string) error {
	d, err := properties.ParsePath(relPath)
	if err != nil {
		slog.Debug("file_event_skipped",
			slog.String("path", relPath),
			slog.String("reason", err.Error()))
		return nil
	}

	abs := filepath.Join(c.config.Root, filepath.FromSlash(d.Path))
	info, err := os.Lstat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return c.removeFile(ctx, relPath)
		}
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		slog.Debug("file_event_skipped",
			slog.String("path", relPath),
			slog.String("reason", "symlink"))
		return nil
	}

	known, existed, err := c.config.Registry.Lookup(ctx, d.Path)
	if err != nil {
		return err
	}

	var current map[string]string
	if f, err := properties.Load(abs); err == nil {
		current = f.Map()
	}

	if existed {
		previous, _ := c.snapshots.Get(d.Path)
		changes := properties.Diff(previous, current)
		c.snapshots.Add(d.Path, current)
		return c.config.Index.FileModified(ctx, d.WithID(known.ID), changes)
	}

	resolved, err := c.config.Registry.Resolve(ctx, d)
	if err != nil {
		return err
	}
	c.snapshots.Add(d.Path, current)
	return c.config.Index.FileAdded(ctx, resolved)
}

// removeFile queues the delete before forgetting the file, so an interrupted
// enqueue leaves it registered and a redelivered event can retry.
func (c *Coordinator) removeFile(ctx context.Context, relPath string) error {
	d, ok, err := c.config.Registry.Lookup(ctx, path.Clean(relPath))
	if err != nil || !ok {
		return err
	}
	if err := c.config.Index.FileDeleted(ctx, d); err != nil {
		return err
	}
	if _, _, err := c.config.Registry.Remove(ctx, d.Path); err != nil {
		return err
	}
	c.snapshots.Remove(d.Path)
	return nil
}

// removeTree handles a vanished path that may have been a directory.
func (c *Coordinator) removeTree(ctx context.Context, relPath string) error {
	prefix := strings.TrimSuffix(path.Clean(relPath), "/") + "/"
	all, err := c.config.Registry.List(ctx)
	if err != nil {
		return err
	}
	for _, d := range all {
		if !strings.HasPrefix(d.Path, prefix) {
			continue
		}
		if err := c.removeFile(ctx, d.Path); err != nil {
			return err
		}
	}
	return nil
}
