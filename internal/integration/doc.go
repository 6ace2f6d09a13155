// Package integration holds end-to-end tests of the indexing pipeline:
// file watcher, coordinator, queue, worker and searcher wired together.
package integration
