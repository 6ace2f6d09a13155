package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	lru "github.com/hashicorp/golang-lru/v2"

	perrors "github.com/Aman-CERP/propindex/internal/errors"
)

// DefaultSearchCacheSize is the number of query results kept per searcher.
const DefaultSearchCacheSize = 256

// Query selects translation entries. Text is matched against value, comment
// and key words; Project and Locale filter exactly.
type Query struct {
	Text    string
	Project string
	Locale  string
	Limit   int
}

// Hit is one matching document.
type Hit struct {
	ID     string
	Score  float64
	Fields map[string]string
}

// SearchResult holds the hits of one query.
type SearchResult struct {
	Total uint64
	Hits  []Hit
}

// Searcher runs read-only queries against an Index.
// Results are cached per commit generation, so a commit invalidates them.
type Searcher struct {
	index *Index
	cache *lru.Cache[string, *SearchResult]
}

// NewSearcher creates a searcher with an LRU of cacheSize results.
func NewSearcher(index *Index, cacheSize int) *Searcher {
	if cacheSize <= 0 {
		cacheSize = DefaultSearchCacheSize
	}
	cache, _ := lru.New[string, *SearchResult](cacheSize)
	return &Searcher{index: index, cache: cache}
}

func (s *Searcher) cacheKey(q Query) string {
	return fmt.Sprintf("%d\x00%s\x00%s\x00%s\x00%d", s.index.Generation(), q.Text, q.Project, q.Locale, q.Limit)
}

// Search returns the documents matching q, best first.
func (s *Searcher) Search(ctx context.Context, q Query) (*SearchResult, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" && q.Project == "" && q.Locale == "" {
		return nil, perrors.New(perrors.ErrCodeQueryEmpty, "query needs text, a project or a locale", nil)
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}

	key := s.cacheKey(q)
	if res, ok := s.cache.Get(key); ok {
		return res, nil
	}

	var clauses []query.Query
	if q.Text != "" {
		value := bleve.NewMatchQuery(q.Text)
		value.SetField(FieldValue)
		comment := bleve.NewMatchQuery(q.Text)
		comment.SetField(FieldComment)
		keyTerms := bleve.NewMatchQuery(q.Text)
		keyTerms.SetField(fieldKeyTerms)
		clauses = append(clauses, bleve.NewDisjunctionQuery(value, comment, keyTerms))
	}
	if q.Project != "" {
		clauses = append(clauses, termQuery(FieldProject, q.Project))
	}
	if q.Locale != "" {
		clauses = append(clauses, termQuery(FieldLocale, q.Locale))
	}

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(clauses...), q.Limit, 0, false)
	req.Fields = []string{"*"}

	s.index.mu.RLock()
	defer s.index.mu.RUnlock()
	if s.index.closed {
		return nil, perrors.New(perrors.ErrCodeSearchFailed, "index is closed", nil)
	}

	res, err := s.index.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, perrors.New(perrors.ErrCodeSearchFailed, "search failed", err)
	}

	out := &SearchResult{Total: res.Total, Hits: make([]Hit, 0, len(res.Hits))}
	for _, h := range res.Hits {
		fields := make(map[string]string, len(h.Fields))
		for k, v := range h.Fields {
			if str, ok := v.(string); ok {
				fields[k] = str
			}
		}
		out.Hits = append(out.Hits, Hit{ID: h.ID, Score: h.Score, Fields: fields})
	}

	s.cache.Add(key, out)
	return out, nil
}

// CountTerm returns how many committed documents have field equal to value.
func (s *Searcher) CountTerm(ctx context.Context, field, value string) (int, error) {
	ids, err := s.index.matchingIDs(ctx, field, value)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// DocCount returns the number of committed documents.
func (s *Searcher) DocCount() (uint64, error) {
	return s.index.DocCount()
}

func termQuery(field, value string) *query.TermQuery {
	q := bleve.NewTermQuery(value)
	q.SetField(field)
	return q
}
