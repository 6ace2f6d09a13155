// Package index turns translation file changes into index updates.
//
// Producers describe changes as mutations and put them on a bounded queue.
// A single worker job drains the queue and applies the mutations to the
// index writer, committing when the queue has been idle for a while.
package index

import (
	"slices"

	perrors "github.com/Aman-CERP/propindex/internal/errors"
	"github.com/Aman-CERP/propindex/internal/properties"
	"github.com/Aman-CERP/propindex/internal/store"
)

// Action is the kind of change a mutation makes.
type Action int

const (
	// ActionCreate adds documents.
	ActionCreate Action = iota
	// ActionDelete removes every document of a file.
	ActionDelete
	// ActionReplace removes every document of a file and adds new ones.
	ActionReplace
)

// String returns the lowercase action name used in logs and metric labels.
func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionDelete:
		return "delete"
	case ActionReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Mutation is one pending index change. The implementations are
// CreateMutation, DeleteMutation and ReplaceMutation; no others exist.
type Mutation interface {
	Action() Action
	mutation()
}

// CreateMutation adds documents for a file that was not indexed before.
type CreateMutation struct {
	documents []store.Document
}

// NewCreate returns a mutation adding docs. At least one document is required.
func NewCreate(docs []store.Document) (CreateMutation, error) {
	if len(docs) == 0 {
		return CreateMutation{}, perrors.New(perrors.ErrCodeEmptyCreate, "create mutation needs at least one document", nil)
	}
	return CreateMutation{documents: cloneDocuments(docs)}, nil
}

// Action implements Mutation.
func (CreateMutation) Action() Action { return ActionCreate }

// Documents returns a copy of the documents to add.
func (m CreateMutation) Documents() []store.Document { return cloneDocuments(m.documents) }

func (CreateMutation) mutation() {}

// DeleteMutation removes every document of a file.
type DeleteMutation struct {
	descriptor properties.Descriptor
}

// NewDelete returns a mutation removing the documents of d.
func NewDelete(d properties.Descriptor) DeleteMutation {
	return DeleteMutation{descriptor: d}
}

// Action implements Mutation.
func (DeleteMutation) Action() Action { return ActionDelete }

// Descriptor returns the file whose documents are removed.
func (m DeleteMutation) Descriptor() properties.Descriptor { return m.descriptor }

// Identity returns the identity of the file whose documents are removed.
func (m DeleteMutation) Identity() properties.Identity { return m.descriptor.Identity() }

func (DeleteMutation) mutation() {}

// ReplaceMutation swaps the documents of a file for a new set, which may be empty.
type ReplaceMutation struct {
	descriptor properties.Descriptor
	documents  []store.Document
}

// NewReplace returns a mutation replacing the documents of d with docs.
func NewReplace(d properties.Descriptor, docs []store.Document) ReplaceMutation {
	return ReplaceMutation{descriptor: d, documents: cloneDocuments(docs)}
}

// Action implements Mutation.
func (ReplaceMutation) Action() Action { return ActionReplace }

// Descriptor returns the file whose documents are replaced.
func (m ReplaceMutation) Descriptor() properties.Descriptor { return m.descriptor }

// Identity returns the identity of the file whose documents are replaced.
func (m ReplaceMutation) Identity() properties.Identity { return m.descriptor.Identity() }

// Documents returns a copy of the replacement documents.
func (m ReplaceMutation) Documents() []store.Document { return cloneDocuments(m.documents) }

func (ReplaceMutation) mutation() {}

func cloneDocuments(docs []store.Document) []store.Document {
	if docs == nil {
		return nil
	}
	out := slices.Clone(docs)
	for i := range out {
		out[i] = out[i].Clone()
	}
	return out
}

// target returns the path a mutation is about, for logging.
func target(m Mutation) string {
	switch m := m.(type) {
	case DeleteMutation:
		return m.descriptor.Path
	case ReplaceMutation:
		return m.descriptor.Path
	case CreateMutation:
		if len(m.documents) > 0 {
			return m.documents[0].Field(store.FieldFullPath)
		}
	}
	return ""
}
