package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/propindex/internal/analyzer"
	"github.com/Aman-CERP/propindex/internal/async"
	"github.com/Aman-CERP/propindex/internal/config"
	perrors "github.com/Aman-CERP/propindex/internal/errors"
	"github.com/Aman-CERP/propindex/internal/exclude"
	"github.com/Aman-CERP/propindex/internal/index"
	"github.com/Aman-CERP/propindex/internal/output"
	"github.com/Aman-CERP/propindex/internal/preflight"
	"github.com/Aman-CERP/propindex/internal/registry"
	"github.com/Aman-CERP/propindex/internal/store"
)

// closeTimeout bounds how long closing waits for the worker to commit.
const closeTimeout = 30 * time.Second

// workspace is the indexing pipeline of one workspace root.
type workspace struct {
	root      string
	dataDir   string
	cfg       *config.Config
	manager   *store.Manager
	registry  *registry.Registry
	scheduler *async.Scheduler
	index     *index.PropertyIndex
	coord     *index.Coordinator
	checker   *index.ConsistencyChecker
	reindexer *index.Reindexer
	excludes  []string
}

// resolveRoot returns the absolute workspace root named by args.
func resolveRoot(args []string) (string, error) {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	root, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", perrors.New(perrors.ErrCodeFileNotFound, "workspace not found: "+root, err)
	}
	if !info.IsDir() {
		return "", perrors.New(perrors.ErrCodeInvalidPath, "workspace is not a directory: "+root, nil)
	}
	return root, nil
}

// workspaceOptions adjusts the configured pipeline for one command.
type workspaceOptions struct {
	// IdleTimeout overrides index.idle_timeout when positive.
	IdleTimeout time.Duration
	// Preflight runs the preflight checks unless they passed before.
	Preflight bool
}

// openWorkspace loads the configuration of root, takes the index write lock
// and wires the pipeline. Close must be called to release the lock.
func openWorkspace(ctx context.Context, root string, opts workspaceOptions) (*workspace, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, perrors.ConfigError("failed to load configuration", err)
	}

	dataDir := cfg.DataDir(root)
	if opts.Preflight {
		if err := runPreflight(ctx, root, dataDir); err != nil {
			return nil, err
		}
	}

	manager, err := store.OpenManager(ctx, dataDir, store.ManagerOptions{
		LockTimeout: cfg.LockTimeoutDuration(),
	})
	if err != nil {
		return nil, err
	}

	reg, err := registry.Open(filepath.Join(dataDir, registry.FileName))
	if err != nil {
		_ = manager.Close()
		return nil, err
	}

	excludes := append([]string(nil), cfg.Workspace.Exclude...)
	if rel, err := filepath.Rel(root, dataDir); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		excludes = append(excludes, "/"+filepath.ToSlash(rel)+"/")
	}

	idle := cfg.IdleTimeoutDuration()
	if opts.IdleTimeout > 0 {
		idle = opts.IdleTimeout
	}

	queue := index.NewQueue(cfg.Index.QueueCapacity)
	worker := index.NewWorker(queue, manager, index.WorkerConfig{
		IdleTimeout: idle,
		CommitEvery: cfg.CommitEveryDuration(),
		MaxAttempts: cfg.Index.MaxAttempts,
	})
	scheduler := async.NewScheduler(context.Background())
	idx := index.NewPropertyIndex(analyzer.PropertyFileAnalyzer{Root: root}, queue, scheduler, worker)

	coord := index.NewCoordinator(index.CoordinatorConfig{
		Root:     root,
		Registry: reg,
		Index:    idx,
	})
	checker := index.NewConsistencyChecker(reg, manager.Index())
	reindexer := index.NewReindexer(index.ReindexerConfig{
		Root:        root,
		Registry:    reg,
		Index:       idx,
		Exclude:     exclude.New(excludes...),
		Workers:     cfg.Index.Workers,
		Coordinator: coord,
		Checker:     checker,
	})

	return &workspace{
		root:      root,
		dataDir:   dataDir,
		cfg:       cfg,
		manager:   manager,
		registry:  reg,
		scheduler: scheduler,
		index:     idx,
		coord:     coord,
		checker:   checker,
		reindexer: reindexer,
		excludes:  excludes,
	}, nil
}

// runPreflight checks that dataDir is usable the first time a version of
// propindex writes to it.
func runPreflight(ctx context.Context, root, dataDir string) error {
	if !preflight.NeedsCheck(dataDir) {
		return nil
	}

	checker := preflight.New(preflight.WithOutput(io.Discard))
	results := checker.RunAll(ctx, root, dataDir)
	for _, r := range results {
		switch {
		case r.IsCritical():
			slog.Error("preflight_failed", slog.String("check", r.Name), slog.String("message", r.Message))
			code := perrors.ErrCodeIndexWrite
			if r.Name == "disk_space" {
				code = perrors.ErrCodeDiskFull
			}
			return perrors.New(code, fmt.Sprintf("preflight check %s failed: %s", r.Name, r.Message), nil).
				WithSuggestion("run 'propindex doctor' for details")
		case r.Status != preflight.StatusPass:
			slog.Warn("preflight_warning", slog.String("check", r.Name), slog.String("message", r.Message))
		}
	}
	return preflight.MarkPassed(dataDir)
}

// waitIdle blocks until the worker has applied everything queued so far.
func (w *workspace) waitIdle(ctx context.Context) error {
	return w.scheduler.Join(ctx, index.IndexWriterFamily)
}

// closeWorkspace closes w within a bounded time and reports a failure to out.
func closeWorkspace(w *workspace, out *output.Writer) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		slog.Warn("workspace_close_failed", slog.String("error", err.Error()))
		out.Warningf("Failed to close index cleanly: %v", err)
	}
}

// Close stops the worker, which commits what it applied, and releases the
// registry and the index write lock. A writer still outstanding after the
// worker stopped is reported as an error.
func (w *workspace) Close(ctx context.Context) error {
	running := w.scheduler.Running(index.IndexWriterFamily)
	shutdownErr := w.scheduler.Shutdown(ctx)

	obtained, returned := w.manager.WriterStats()
	slog.Debug("workspace_closing",
		slog.Bool("worker_running", running),
		slog.Int("writers_obtained", obtained),
		slog.Int("writers_returned", returned))

	var leakErr error
	if obtained != returned {
		leakErr = perrors.New(perrors.ErrCodeWriterInUse,
			fmt.Sprintf("index writer not returned (obtained %d, returned %d)", obtained, returned), nil)
	}
	return stderrors.Join(shutdownErr, leakErr, w.registry.Close(), w.manager.Close())
}
