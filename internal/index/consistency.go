package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/propindex/internal/properties"
	"github.com/Aman-CERP/propindex/internal/registry"
	"github.com/Aman-CERP/propindex/internal/store"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphan indicates indexed documents for a file the registry does not know.
	InconsistencyOrphan InconsistencyType = iota
	// InconsistencyUnindexed indicates a registered file without documents.
	// Files without keys legitimately look like this.
	InconsistencyUnindexed
)

// String returns a short name of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphan:
		return "orphan"
	case InconsistencyUnindexed:
		return "unindexed"
	default:
		return "unknown"
	}
}

// Inconsistency is one file on which registry and index disagree.
type Inconsistency struct {
	Type InconsistencyType
	Path string
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Registered is the number of files in the registry.
	Registered int
	// Indexed is the number of distinct files with committed documents.
	Indexed int
	// Inconsistencies lists every disagreement.
	Inconsistencies []Inconsistency
	// Duration is how long the check took.
	Duration time.Duration
}

// Orphans returns the paths of orphaned files.
func (r *CheckResult) Orphans() []string {
	var paths []string
	for _, i := range r.Inconsistencies {
		if i.Type == InconsistencyOrphan {
			paths = append(paths, i.Path)
		}
	}
	return paths
}

// ConsistencyChecker compares the registry with the committed index.
// The registry is the source of truth.
type ConsistencyChecker struct {
	registry *registry.Registry
	searcher *store.Searcher
	index    *store.Index
}

// NewConsistencyChecker creates a checker over reg and index.
func NewConsistencyChecker(reg *registry.Registry, index *store.Index) *ConsistencyChecker {
	return &ConsistencyChecker{
		registry: reg,
		searcher: store.NewSearcher(index, 1),
		index:    index,
	}
}

// Check lists files that are indexed but not registered, and registered but not indexed.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	registered, err := c.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(registered))
	for _, d := range registered {
		known[d.Path] = true
	}

	terms, err := c.index.Terms(store.FieldFullPath)
	if err != nil {
		return nil, err
	}

	result := &CheckResult{Registered: len(registered)}
	indexed := make(map[string]bool, len(terms))
	for _, path := range terms {
		// Terms may still list deleted documents; count live ones.
		n, err := c.searcher.CountTerm(ctx, store.FieldFullPath, path)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}
		indexed[path] = true
		if !known[path] {
			result.Inconsistencies = append(result.Inconsistencies, Inconsistency{Type: InconsistencyOrphan, Path: path})
		}
	}
	result.Indexed = len(indexed)

	for _, d := range registered {
		if !indexed[d.Path] {
			result.Inconsistencies = append(result.Inconsistencies, Inconsistency{Type: InconsistencyUnindexed, Path: d.Path})
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// Repair submits an empty Replace for every orphaned file, which removes its
// documents. Unindexed files need a reindex and are only logged.
func (c *ConsistencyChecker) Repair(ctx context.Context, idx *PropertyIndex, issues []Inconsistency) error {
	var unindexed int
	for _, issue := range issues {
		switch issue.Type {
		case InconsistencyOrphan:
			if err := idx.Submit(ctx, NewReplace(properties.Descriptor{Path: issue.Path}, nil)); err != nil {
				return err
			}
			slog.Info("orphan_documents_removed", slog.String("path", issue.Path))
		case InconsistencyUnindexed:
			unindexed++
		}
	}

	if unindexed > 0 {
		slog.Warn("registered_files_without_documents",
			slog.Int("count", unindexed),
			slog.String("suggestion", "run 'propindex index' if these files have keys"))
	}
	return nil
}
