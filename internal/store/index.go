package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"

	perrors "github.com/Aman-CERP/propindex/internal/errors"
)

// pageSize bounds the hits fetched per request when collecting matching IDs.
const pageSize = 1000

// Index wraps the bleve index of translation entries.
// Writes go through an IndexWriter obtained from a Manager; reads through a Searcher.
type Index struct {
	mu         sync.RWMutex
	index      bleve.Index
	path       string
	closed     bool
	generation atomic.Uint64
}

// validateIndexIntegrity checks if a bleve index is valid before opening.
// Returns nil if valid, error describing corruption if not.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// isCorruptionError checks if an error indicates bleve index corruption.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		strings.Contains(errStr, "no such file or directory") ||
		stderrors.Is(err, bleve.ErrorIndexMetaCorrupt)
}

// OpenIndex opens the index at path, creating it if needed.
// If path is empty, creates an in-memory index.
// A corrupted index is cleared and recreated empty; a reindex repopulates it.
func OpenIndex(path string) (*Index, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, perrors.New(perrors.ErrCodeInternal, "failed to create index mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, perrors.New(perrors.ErrCodeIndexWrite, "failed to create index directory", err)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Error("index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, perrors.New(perrors.ErrCodeCorruptIndex,
					fmt.Sprintf("index corrupted at %s and cannot be removed", path), removeErr)
			}
			slog.Info("index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, reindex required"))
		}

		idx, err = bleve.Open(path)
		if stderrors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Error("index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, perrors.New(perrors.ErrCodeCorruptIndex, "index corrupted and cannot be cleared", removeErr)
			}
			slog.Info("index_cleared",
				slog.String("path", path),
				slog.String("reason", "open failed with corruption, reindex required"))
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, perrors.New(perrors.ErrCodeIndexWrite, "failed to create/open index", err)
	}

	return &Index{index: idx, path: path}, nil
}

// createIndexMapping maps identity and descriptor fields as exact-match
// keywords and the translated text as full text.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(KeyAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     KeyTokenizerName,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add key analyzer: %w", err)
	}

	keywordField := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = keyword.Name
		fm.Store = true
		fm.IncludeInAll = false
		return fm
	}
	textField := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = standard.Name
		fm.Store = true
		return fm
	}

	keyTerms := bleve.NewTextFieldMapping()
	keyTerms.Name = fieldKeyTerms
	keyTerms.Analyzer = KeyAnalyzerName
	keyTerms.Store = false

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false
	for _, f := range []string{FieldCDOID, FieldFullPath, FieldProject, FieldVersion, FieldLocale, FieldMaster} {
		doc.AddFieldMappingsAt(f, keywordField())
	}
	doc.AddFieldMappingsAt(FieldKey, keywordField(), keyTerms)
	doc.AddFieldMappingsAt(FieldValue, textField())
	doc.AddFieldMappingsAt(FieldComment, textField())

	indexMapping.DefaultMapping = doc
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping, nil
}

// Generation increases with every successful commit.
func (i *Index) Generation() uint64 {
	return i.generation.Load()
}

// DocCount returns the number of committed documents.
func (i *Index) DocCount() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return 0, perrors.New(perrors.ErrCodeIndexWrite, "index is closed", nil)
	}
	return i.index.DocCount()
}

// Path returns the on-disk location, or "" for in-memory indexes.
func (i *Index) Path() string {
	return i.path
}

// Close closes the index. It is safe to call more than once.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	return i.index.Close()
}

// Terms returns the distinct indexed values of a keyword field. Values of
// deleted documents may still be listed until segments merge.
func (i *Index) Terms(field string) ([]string, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return nil, perrors.New(perrors.ErrCodeIndexWrite, "index is closed", nil)
	}

	dict, err := i.index.FieldDict(field)
	if err != nil {
		return nil, classify(err, "failed to read terms of "+field)
	}
	defer func() { _ = dict.Close() }()

	var terms []string
	for {
		entry, err := dict.Next()
		if err != nil {
			return nil, classify(err, "failed to read terms of "+field)
		}
		if entry == nil {
			return terms, nil
		}
		terms = append(terms, entry.Term)
	}
}

// matchingIDs returns the IDs of committed documents whose field equals value exactly.
func (i *Index) matchingIDs(ctx context.Context, field, value string) ([]string, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return nil, perrors.New(perrors.ErrCodeIndexWrite, "index is closed", nil)
	}

	q := termQuery(field, value)

	var ids []string
	for from := 0; ; from += pageSize {
		req := bleve.NewSearchRequestOptions(q, pageSize, from, false)
		res, err := i.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, classify(err, "failed to find documents with "+field+"="+value)
		}
		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
		if len(res.Hits) < pageSize {
			return ids, nil
		}
	}
}

// commit executes one bleve batch: deletes first, then adds, then bumps the generation.
func (i *Index) commit(deletes []string, adds []Document) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return perrors.New(perrors.ErrCodeIndexWrite, "index is closed", nil)
	}

	batch := i.index.NewBatch()
	for _, id := range deletes {
		batch.Delete(id)
	}
	for _, doc := range adds {
		if err := batch.Index(doc.ID, doc.bleveData()); err != nil {
			return perrors.New(perrors.ErrCodeIndexWrite, "failed to index document "+doc.ID, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return classify(err, "failed to commit batch")
	}

	i.generation.Add(1)
	return nil
}

// classify maps a bleve error onto the corruption or write error codes.
func classify(err error, message string) error {
	if isCorruptionError(err) {
		return perrors.New(perrors.ErrCodeCorruptIndex, message, err).
			WithSuggestion("run 'propindex index' to rebuild the index")
	}
	return perrors.New(perrors.ErrCodeIndexWrite, message, err)
}
