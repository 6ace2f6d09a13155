package index

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/propindex/internal/analyzer"
	perrors "github.com/Aman-CERP/propindex/internal/errors"
	"github.com/Aman-CERP/propindex/internal/exclude"
	"github.com/Aman-CERP/propindex/internal/properties"
	"github.com/Aman-CERP/propindex/internal/registry"
)

// DefaultReindexWorkers is the number of files analyzed concurrently.
const DefaultReindexWorkers = 4

// ReindexerConfig configures a Reindexer.
type ReindexerConfig struct {
	// Root is the absolute path of the workspace.
	Root string

	Registry *registry.Registry
	Index    *PropertyIndex

	// Exclude skips matching files and directories. Nil excludes only the
	// always-excluded directories.
	Exclude *exclude.Matcher

	// Workers bounds concurrent file analysis. Defaults to DefaultReindexWorkers.
	Workers int

	// Coordinator, if set, remembers the content seen so later modifications
	// are described key by key.
	Coordinator *Coordinator

	// Checker, if set, finds documents of files the registry does not know,
	// such as after the registry was recreated, so they can be removed.
	Checker *ConsistencyChecker
}

// ReindexResult summarizes a reindex.
type ReindexResult struct {
	// Files is the number of translation files submitted.
	Files int
	// Removed is the number of registered files that no longer exist.
	Removed int
	// Skipped is the number of .properties files outside the workspace layout.
	Skipped int
	// Orphans is the number of unknown files whose documents were removed.
	Orphans int
	// Duration is the time spent walking and submitting.
	Duration time.Duration
}

// Reindexer brings the index in line with the workspace on disk.
type Reindexer struct {
	config ReindexerConfig
}

// NewReindexer creates a reindexer.
func NewReindexer(config ReindexerConfig) *Reindexer {
	if config.Exclude == nil {
		config.Exclude = exclude.New()
	}
	if config.Workers <= 0 {
		config.Workers = DefaultReindexWorkers
	}
	return &Reindexer{config: config}
}

// Run submits a Replace for every translation file in the workspace and a
// Delete for every registered file that is gone. It returns once everything
// is queued; the worker applies it asynchronously.
func (r *Reindexer) Run(ctx context.Context) (*ReindexResult, error) {
	start := time.Now()
	result := &ReindexResult{}

	descriptors, skipped, err := r.scan(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, perrors.Interrupted("reindex cancelled", ctxErr)
		}
		return nil, perrors.New(perrors.ErrCodeFileNotFound, "cannot walk workspace "+r.config.Root, err)
	}
	result.Skipped = skipped

	seen := make(map[string]struct{}, len(descriptors))
	for i, d := range descriptors {
		resolved, err := r.config.Registry.Resolve(ctx, d)
		if err != nil {
			return nil, err
		}
		descriptors[i] = resolved
		seen[resolved.Path] = struct{}{}
	}

	var submitted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Workers)
	for _, d := range descriptors {
		g.Go(func() error {
			abs := filepath.Join(r.config.Root, filepath.FromSlash(d.Path))
			f, err := properties.Load(abs)
			if err != nil {
				slog.Warn("reindex_file_unreadable",
					slog.String("path", d.Path),
					slog.String("error", err.Error()))
			}
			docs := analyzer.Documents(d, f)
			if r.config.Coordinator != nil && f != nil {
				r.config.Coordinator.Remember(d.Path, f.Map())
			}
			if err := r.config.Index.Submit(gctx, NewReplace(d, docs)); err != nil {
				return err
			}
			submitted.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	result.Files = int(submitted.Load())

	registered, err := r.config.Registry.List(ctx)
	if err != nil {
		return nil, err
	}
	removed := make(map[string]struct{})
	for _, d := range registered {
		if _, ok := seen[d.Path]; ok {
			continue
		}
		removed[d.Path] = struct{}{}
		if _, _, err := r.config.Registry.Remove(ctx, d.Path); err != nil {
			return nil, err
		}
		if err := r.config.Index.FileDeleted(ctx, d); err != nil {
			return nil, err
		}
		result.Removed++
	}

	if r.config.Checker != nil {
		check, err := r.config.Checker.Check(ctx)
		if err != nil {
			return nil, err
		}
		// Files removed above still have committed documents until the
		// worker applies their deletes.
		var issues []Inconsistency
		for _, path := range check.Orphans() {
			if _, ok := removed[path]; ok {
				continue
			}
			issues = append(issues, Inconsistency{Type: InconsistencyOrphan, Path: path})
		}
		if err := r.config.Checker.Repair(ctx, r.config.Index, issues); err != nil {
			return nil, err
		}
		result.Orphans = len(issues)
	}

	result.Duration = time.Since(start)
	slog.Info("reindex_submitted",
		slog.Int("files", result.Files),
		slog.Int("removed", result.Removed),
		slog.Int("skipped", result.Skipped),
		slog.Int("orphans", result.Orphans),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// scan lists the translation files under the root in path order.
func (r *Reindexer) scan(ctx context.Context) ([]properties.Descriptor, int, error) {
	var (
		descriptors []properties.Descriptor
		skipped     int
	)
	err := filepath.WalkDir(r.config.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == r.config.Root {
				return err
			}
			slog.Warn("reindex_walk_error",
				slog.String("path", p),
				slog.String("error", err.Error()))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(r.config.Root, p)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if r.config.Exclude.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() || !properties.IsPropertiesFile(rel) {
			return nil
		}

		desc, err := properties.ParsePath(rel)
		if err != nil {
			skipped++
			slog.Debug("reindex_file_skipped",
				slog.String("path", rel),
				slog.String("reason", err.Error()))
			return nil
		}
		descriptors = append(descriptors, desc)
		return nil
	})
	return descriptors, skipped, err
}
