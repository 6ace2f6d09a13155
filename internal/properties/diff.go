package properties

import (
	"cmp"
	"slices"
)

// ChangeKind classifies a per-key change between two versions of a file.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// Change describes one key that differs between two versions of a file.
type Change struct {
	Kind     ChangeKind
	Key      string
	OldValue string
	NewValue string
}

// Diff compares two key/value snapshots and returns the changes sorted by key.
// A nil old snapshot reports every key of next as added.
func Diff(old, next map[string]string) []Change {
	var changes []Change
	for k, nv := range next {
		ov, ok := old[k]
		switch {
		case !ok:
			changes = append(changes, Change{Kind: ChangeAdded, Key: k, NewValue: nv})
		case ov != nv:
			changes = append(changes, Change{Kind: ChangeModified, Key: k, OldValue: ov, NewValue: nv})
		}
	}
	for k, ov := range old {
		if _, ok := next[k]; !ok {
			changes = append(changes, Change{Kind: ChangeRemoved, Key: k, OldValue: ov})
		}
	}

	slices.SortFunc(changes, func(a, b Change) int {
		return cmp.Compare(a.Key, b.Key)
	})
	return changes
}
