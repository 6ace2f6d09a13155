package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/propindex/internal/analyzer"
	perrors "github.com/Aman-CERP/propindex/internal/errors"
	"github.com/Aman-CERP/propindex/internal/exclude"
	"github.com/Aman-CERP/propindex/internal/store"
)

func TestReindexer_Run(t *testing.T) {
	// Given: a workspace with two translation files and some noise
	root := t.TempDir()
	writeFile(t, root, "shop/1.0/messages.properties", "a = one\nb = two\n")
	writeFile(t, root, "shop/1.0/messages_de.properties", "a = eins\n")
	writeFile(t, root, "stray.properties", "k = v\n")
	writeFile(t, root, "shop/1.0/notes.txt", "not a translation")
	writeFile(t, root, ".git/shop/1.0/x.properties", "k = v\n")
	writeFile(t, root, "shop/1.0/build/gen.properties", "k = v\n")

	// And: a registered file that no longer exists
	reg := newMemRegistry(t)
	gone, err := reg.Resolve(context.Background(), descriptor(t, "shop/1.0/gone.properties", 0))
	require.NoError(t, err)

	idx, _ := newTestPropertyIndex(t, root, DefaultQueueCapacity)
	r := NewReindexer(ReindexerConfig{
		Root:     root,
		Registry: reg,
		Index:    idx,
		Exclude:  exclude.New("build/"),
	})

	// When: reindexing
	result, err := r.Run(context.Background())

	// Then: existing files are replaced and the vanished one is deleted
	require.NoError(t, err)
	assert.Equal(t, 2, result.Files)
	assert.Equal(t, 1, result.Removed)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Orphans)

	byAction := map[Action][]Mutation{}
	for _, m := range drain(t, idx.Queue()) {
		byAction[m.Action()] = append(byAction[m.Action()], m)
	}
	assert.Len(t, byAction[ActionReplace], 2)
	assert.Equal(t, []Mutation{NewDelete(gone)}, byAction[ActionDelete])

	all, err := reg.List(context.Background())
	require.NoError(t, err)
	var paths []string
	for _, d := range all {
		paths = append(paths, d.Path)
	}
	assert.Equal(t, []string{"shop/1.0/messages.properties", "shop/1.0/messages_de.properties"}, paths)
}

func TestReindexer_RemembersSnapshots(t *testing.T) {
	// Given: a reindex with a coordinator attached
	root := t.TempDir()
	writeFile(t, root, "shop/1.0/messages.properties", "a = one\n")
	reg := newMemRegistry(t)
	idx, _ := newTestPropertyIndex(t, root, DefaultQueueCapacity)
	coord := NewCoordinator(CoordinatorConfig{Root: root, Registry: reg, Index: idx})

	_, err := NewReindexer(ReindexerConfig{Root: root, Registry: reg, Index: idx, Coordinator: coord}).
		Run(context.Background())
	require.NoError(t, err)

	// Then: the content seen is what later modifications are diffed against
	snapshot, ok := coord.snapshots.Get("shop/1.0/messages.properties")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"a": "one"}, snapshot)
}

func TestReindexer_RemovesOrphans(t *testing.T) {
	// Given: documents of a file the registry never heard of
	root := t.TempDir()
	writeFile(t, root, "shop/1.0/messages.properties", "a = one\n")

	m := newMemManager(t)
	q := NewQueue(DefaultQueueCapacity)
	w := NewWorker(q, m, WorkerConfig{IdleTimeout: testIdle})
	idx := NewPropertyIndex(analyzer.PropertyFileAnalyzer{Root: root}, q, &recordingScheduler{}, w)

	orphan := descriptor(t, "old/0.9/legacy.properties", 77)
	enqueue(t, q, mustCreate(t, docs(orphan, "x", "y")))
	require.NoError(t, runWorker(t, w))

	reg := newMemRegistry(t)
	r := NewReindexer(ReindexerConfig{
		Root:     root,
		Registry: reg,
		Index:    idx,
		Checker:  NewConsistencyChecker(reg, m.Index()),
	})

	// When: reindexing and applying the result
	result, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, runWorker(t, w))

	// Then: the orphaned documents are gone and the workspace file is indexed
	assert.Equal(t, 1, result.Orphans)
	assert.Zero(t, countTerm(t, m, store.FieldFullPath, orphan.Path))
	assert.Equal(t, 1, countTerm(t, m, store.FieldFullPath, "shop/1.0/messages.properties"))
}

func TestReindexer_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "shop/1.0/messages.properties", "a = one\n")
	idx, _ := newTestPropertyIndex(t, root, DefaultQueueCapacity)
	r := NewReindexer(ReindexerConfig{Root: root, Registry: newMemRegistry(t), Index: idx})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx)

	assert.ErrorIs(t, err, perrors.ErrInterrupted)
}

func TestReindexer_MissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing")
	idx, _ := newTestPropertyIndex(t, root, DefaultQueueCapacity)
	r := NewReindexer(ReindexerConfig{Root: root, Registry: newMemRegistry(t), Index: idx})

	_, err := r.Run(context.Background())

	assert.Equal(t, perrors.ErrCodeFileNotFound, perrors.GetCode(err))
}

func TestReindexer_UnparsableFileBecomesEmptyReplace(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "shop/1.0/broken.properties", "key = \\u12")
	idx, _ := newTestPropertyIndex(t, root, DefaultQueueCapacity)
	r := NewReindexer(ReindexerConfig{Root: root, Registry: newMemRegistry(t), Index: idx})

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Files)

	queued := drain(t, idx.Queue())
	require.Len(t, queued, 1)
	replace, ok := queued[0].(ReplaceMutation)
	require.True(t, ok)
	assert.Empty(t, replace.Documents())
	assert.Equal(t, "shop/1.0/broken.properties", replace.Descriptor().Path)
}
