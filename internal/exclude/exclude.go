// Package exclude decides which workspace paths the indexer skips.
//
// Patterns use a gitignore-like syntax:
//
//	target        any path segment named target
//	*.bak         any file or directory matching the glob
//	build/        directories named build and everything below them
//	/docs/legacy  anchored at the workspace root
//	**/generated  any depth
//	!keep.properties  re-include a previously excluded path
//
// Later patterns win over earlier ones.
package exclude

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// AlwaysExcluded lists directories that are never indexed or watched.
var AlwaysExcluded = []string{".git/", ".propindex/"}

type pattern struct {
	source   string
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
}

// Matcher matches workspace-relative paths against exclude patterns.
// It is safe for concurrent use.
type Matcher struct {
	mu       sync.RWMutex
	patterns []pattern
}

// New creates a matcher holding AlwaysExcluded followed by patterns.
func New(patterns ...string) *Matcher {
	m := &Matcher{}
	for _, p := range AlwaysExcluded {
		m.Add(p)
	}
	for _, p := range patterns {
		m.Add(p)
	}
	return m
}

// Add appends a pattern. Blank lines and # comments are ignored.
func (m *Matcher) Add(raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return
	}

	p := pattern{source: raw}
	body := raw
	if strings.HasPrefix(body, "!") {
		p.negate = true
		body = body[1:]
	}
	if strings.HasSuffix(body, "/") {
		p.dirOnly = true
		body = strings.TrimSuffix(body, "/")
	}
	if strings.HasPrefix(body, "/") {
		p.anchored = true
		body = strings.TrimPrefix(body, "/")
	} else if strings.Contains(body, "/") && !strings.HasPrefix(body, "**/") {
		p.anchored = true
	}
	if body == "" {
		return
	}
	p.re = regexp.MustCompile("^" + globToRegexp(body) + "$")

	m.mu.Lock()
	m.patterns = append(m.patterns, p)
	m.mu.Unlock()
}

// Patterns returns the patterns in the order they were added.
func (m *Matcher) Patterns() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.patterns))
	for i, p := range m.patterns {
		out[i] = p.source
	}
	return out
}

// Match reports whether rel is excluded. isDir tells whether rel itself is a directory.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = path.Clean(filepath.ToSlash(rel))
	if rel == "." || rel == "" {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	excluded := false
	for _, p := range m.patterns {
		if p.matches(rel, isDir) {
			excluded = !p.negate
		}
	}
	return excluded
}

func (p pattern) matches(rel string, isDir bool) bool {
	segments := strings.Split(rel, "/")
	last := len(segments) - 1

	if p.anchored {
		// A match on a parent prefix excludes everything below it.
		for i := range segments {
			prefix := strings.Join(segments[:i+1], "/")
			if !p.re.MatchString(prefix) {
				continue
			}
			if i < last || !p.dirOnly || isDir {
				return true
			}
		}
		return false
	}

	if p.re.MatchString(rel) && (!p.dirOnly || isDir) {
		return true
	}
	for i, seg := range segments {
		if !p.re.MatchString(seg) {
			continue
		}
		if i < last || !p.dirOnly || isDir {
			return true
		}
	}
	return false
}

// globToRegexp translates * ? ** and [...] into a regular expression.
func globToRegexp(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				if i+2 < len(glob) && glob[i+2] == '/' {
					b.WriteString("(?:.*/)?")
					i += 2
				} else {
					b.WriteString(".*")
					i++
				}
				continue
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				b.WriteString(regexp.QuoteMeta("["))
				continue
			}
			b.WriteString(glob[i : i+end+2])
			i += end + 1
		case '\\':
			if i+1 < len(glob) {
				i++
				b.WriteString(regexp.QuoteMeta(string(glob[i])))
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}
