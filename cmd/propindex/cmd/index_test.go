package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/Aman-CERP/propindex/internal/errors"
)

func TestIndexCmd_IndexesWorkspace(t *testing.T) {
	// Given: a workspace with two translation files
	isolate(t)
	root := newWorkspace(t)

	// When: indexing it
	out, err := execute(t, context.Background(), "index", root)

	// Then: both files are committed before the command returns
	require.NoError(t, err, out)
	assert.Contains(t, out, "Indexed 2 files, 3 documents")
	assert.DirExists(t, filepath.Join(root, ".propindex"))
}

func TestIndexCmd_RemovesDeletedFiles(t *testing.T) {
	// Given: an indexed workspace
	isolate(t)
	root := newWorkspace(t)
	_, err := execute(t, context.Background(), "index", root)
	require.NoError(t, err)

	// When: a file is deleted between runs and the workspace is reindexed
	require.NoError(t, os.Remove(filepath.Join(root, "shop/1.0/messages_de.properties")))
	out, err := execute(t, context.Background(), "index", root)

	// Then: its documents are gone
	require.NoError(t, err, out)
	assert.Contains(t, out, "Indexed 1 files, 2 documents")
	assert.Contains(t, out, "Removed 1 files")
}

func TestIndexCmd_ReportsSkippedFiles(t *testing.T) {
	isolate(t)
	root := newWorkspace(t)
	writeFile(t, root, "loose.properties", "k = v\n")

	out, err := execute(t, context.Background(), "index", root)

	require.NoError(t, err, out)
	assert.Contains(t, out, "Skipped 1 files")
}

func TestIndexCmd_MissingWorkspace(t *testing.T) {
	isolate(t)

	_, err := execute(t, context.Background(), "index", filepath.Join(t.TempDir(), "missing"))

	assert.Equal(t, perrors.ErrCodeFileNotFound, perrors.GetCode(err))
}

func TestIndexCmd_InvalidConfig(t *testing.T) {
	// Given: a workspace config with a negative queue capacity
	isolate(t)
	root := newWorkspace(t)
	writeFile(t, root, ".propindex.yaml", "index:\n  queue_capacity: -1\n")

	// When: indexing
	_, err := execute(t, context.Background(), "index", root)

	// Then: a configuration error is reported
	assert.Equal(t, perrors.ErrCodeConfigInvalid, perrors.GetCode(err))
}

func TestSearchCmd_FindsIndexedEntries(t *testing.T) {
	// Given: an indexed workspace
	isolate(t)
	root := newWorkspace(t)
	_, err := execute(t, context.Background(), "index", root)
	require.NoError(t, err)

	// When: searching for a word of a German value
	out, err := execute(t, context.Background(), "search", "--path", root, "--json", "warenkorb")

	// Then: the German entry is returned
	require.NoError(t, err, out)
	var res struct {
		Total uint64      `json:"total"`
		Hits  []searchHit `json:"hits"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "de", res.Hits[0].Locale)
	assert.Equal(t, "cart.empty", res.Hits[0].Key)
	assert.Equal(t, "shop/1.0/messages_de.properties", res.Hits[0].Path)
}

func TestSearchCmd_FiltersByLocale(t *testing.T) {
	isolate(t)
	root := newWorkspace(t)
	_, err := execute(t, context.Background(), "index", root)
	require.NoError(t, err)

	out, err := execute(t, context.Background(), "search", "--path", root, "--locale", "de")

	require.NoError(t, err, out)
	assert.Contains(t, out, "1 of 1 matches")
	assert.Contains(t, out, "Ihr Warenkorb ist leer")
}

func TestSearchCmd_EmptyQuery(t *testing.T) {
	isolate(t)
	root := newWorkspace(t)

	_, err := execute(t, context.Background(), "search", "--path", root)

	assert.Equal(t, perrors.ErrCodeQueryEmpty, perrors.GetCode(err))
}

func TestStatusCmd_ReportsCounts(t *testing.T) {
	// Given: an indexed workspace
	isolate(t)
	root := newWorkspace(t)
	_, err := execute(t, context.Background(), "index", root)
	require.NoError(t, err)

	// When: asking for status as JSON
	out, err := execute(t, context.Background(), "status", "--json", root)

	// Then: registry and index agree
	require.NoError(t, err, out)
	var report statusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Files)
	assert.Equal(t, 2, report.IndexedFiles)
	assert.Equal(t, uint64(3), report.Documents)
	assert.Empty(t, report.Inconsistencies)
}

func TestStatusCmd_TextOutput(t *testing.T) {
	isolate(t)
	root := newWorkspace(t)
	writeFile(t, root, "shop/1.0/empty_fr.properties", "")
	_, err := execute(t, context.Background(), "index", root)
	require.NoError(t, err)

	out, err := execute(t, context.Background(), "status", root)

	require.NoError(t, err, out)
	assert.Contains(t, out, "Index status")
	assert.Contains(t, out, "1 inconsistencies")
	assert.Contains(t, out, "unindexed shop/1.0/empty_fr.properties")
}

func TestUnappliedError(t *testing.T) {
	tests := []struct {
		name      string
		carried   int
		queued    int
		lastError string
		wantErr   string
	}{
		{name: "all applied", carried: 0, queued: 0},
		{name: "carried after failed run", carried: 2, lastError: "disk full", wantErr: "2 changes could not be applied: disk full"},
		{name: "queued after writer failure", queued: 3, lastError: "index is locked", wantErr: "3 changes could not be applied: index is locked"},
		{name: "no recorded error", queued: 1, wantErr: "1 changes could not be applied: worker stopped"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := unappliedError(tt.carried, tt.queued, tt.lastError)

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, perrors.ErrCodeIndexFailed, perrors.GetCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
