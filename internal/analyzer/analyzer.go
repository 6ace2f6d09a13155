// Package analyzer turns translation files into indexable documents.
package analyzer

import (
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/Aman-CERP/propindex/internal/properties"
	"github.com/Aman-CERP/propindex/internal/store"
)

// Analyzer maps a descriptor to the documents that represent it in the index.
// Implementations must be safe for concurrent use.
type Analyzer interface {
	Analyze(d properties.Descriptor) []store.Document
}

// PropertyFileAnalyzer reads translation files below Root and emits one
// document per property key.
type PropertyFileAnalyzer struct {
	Root string
}

var _ Analyzer = PropertyFileAnalyzer{}

// DocumentID returns the index ID of key in the file at fullPath.
func DocumentID(fullPath, key string) string {
	return fullPath + "#" + key
}

// Analyze implements Analyzer. Unreadable or unparsable files yield no
// documents and a warning.
func (a PropertyFileAnalyzer) Analyze(d properties.Descriptor) []store.Document {
	abs := filepath.Join(a.Root, filepath.FromSlash(d.Path))
	f, err := properties.Load(abs)
	if err != nil {
		slog.Warn("analyze_failed",
			slog.String("path", d.Path),
			slog.String("error", err.Error()))
		return nil
	}
	return Documents(d, f)
}

// Documents builds the documents of an already parsed file.
func Documents(d properties.Descriptor, f *properties.File) []store.Document {
	if f == nil || len(f.Entries) == 0 {
		return nil
	}

	identity := d.Identity()
	docs := make([]store.Document, 0, len(f.Entries))
	for _, e := range f.Entries {
		docs = append(docs, store.NewDocument(DocumentID(d.Path, e.Key), map[string]string{
			store.FieldCDOID:    identity.Key(),
			store.FieldFullPath: d.Path,
			store.FieldProject:  d.Project,
			store.FieldVersion:  d.Version,
			store.FieldLocale:   d.Locale,
			store.FieldKey:      e.Key,
			store.FieldValue:    e.Value,
			store.FieldComment:  e.Comment,
			store.FieldMaster:   strconv.FormatBool(d.Master),
		}))
	}
	return docs
}
