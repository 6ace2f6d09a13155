// Package store holds the bleve index of translation entries and the writer
// lifecycle around it: staged writes, commit, rollback and the exclusive
// write lock.
package store

import "maps"

// Field names stored on every indexed document.
const (
	FieldCDOID    = "cdoID"
	FieldFullPath = "fullPath"
	FieldProject  = "project"
	FieldVersion  = "version"
	FieldLocale   = "locale"
	FieldKey      = "key"
	FieldValue    = "value"
	FieldComment  = "comment"
	FieldMaster   = "master"

	// fieldKeyTerms indexes the key split into words; it is not stored.
	fieldKeyTerms = "keyTerms"
)

// Document is one indexable unit: an ID plus named string fields.
type Document struct {
	ID     string
	Fields map[string]string
}

// NewDocument builds a document that owns a copy of fields.
func NewDocument(id string, fields map[string]string) Document {
	return Document{ID: id, Fields: maps.Clone(fields)}
}

// Field returns the named field or "".
func (d Document) Field(name string) string {
	return d.Fields[name]
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	return NewDocument(d.ID, d.Fields)
}

// bleveData is the value handed to bleve for indexing.
func (d Document) bleveData() map[string]interface{} {
	data := make(map[string]interface{}, len(d.Fields))
	for k, v := range d.Fields {
		data[k] = v
	}
	return data
}
