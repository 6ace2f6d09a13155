package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/Aman-CERP/propindex/internal/errors"
)

func entry(path, cdoID, key, value, locale string) Document {
	return NewDocument(path+"#"+key, map[string]string{
		FieldCDOID:    cdoID,
		FieldFullPath: path,
		FieldProject:  "shop",
		FieldVersion:  "1.0",
		FieldLocale:   locale,
		FieldKey:      key,
		FieldValue:    value,
		FieldMaster:   "false",
	})
}

func newMemManager(t *testing.T) *Manager {
	t.Helper()
	m, err := OpenManager(context.Background(), "", ManagerOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func obtain(t *testing.T, m *Manager) Writer {
	t.Helper()
	w, err := m.ObtainWriter(context.Background())
	require.NoError(t, err)
	return w
}

func count(t *testing.T, m *Manager, field, value string) int {
	t.Helper()
	n, err := NewSearcher(m.Index(), 0).CountTerm(context.Background(), field, value)
	require.NoError(t, err)
	return n
}

// =============================================================================
// Writer staging
// =============================================================================

func TestIndexWriter_ChangesInvisibleUntilCommit(t *testing.T) {
	// Given: a writer with two staged documents
	m := newMemManager(t)
	w := obtain(t, m)
	require.NoError(t, w.AddDocument(entry("shop/1.0/m_de.properties", "L1", "a", "eins", "de")))
	require.NoError(t, w.AddDocument(entry("shop/1.0/m_de.properties", "L1", "b", "zwei", "de")))

	// Then: nothing is visible before commit
	assert.Equal(t, 2, w.Pending())
	assert.Equal(t, 0, count(t, m, FieldCDOID, "L1"))

	// When: committing
	require.NoError(t, w.Commit(context.Background()))

	// Then: both documents are visible and the generation moved
	assert.Equal(t, 0, w.Pending())
	assert.Equal(t, 2, count(t, m, FieldCDOID, "L1"))
	assert.Equal(t, uint64(1), m.Index().Generation())
}

func TestIndexWriter_DeleteByTermRemovesCommittedAndStaged(t *testing.T) {
	m := newMemManager(t)
	w := obtain(t, m)
	path := "shop/1.0/m_de.properties"

	// Given: one committed and one staged document for the same file
	require.NoError(t, w.AddDocument(entry(path, "L1", "a", "eins", "de")))
	require.NoError(t, w.Commit(context.Background()))
	require.NoError(t, w.AddDocument(entry(path, "L1", "b", "zwei", "de")))

	// When: deleting by full path
	require.NoError(t, w.DeleteDocuments(context.Background(), FieldFullPath, path))
	require.NoError(t, w.Commit(context.Background()))

	// Then: neither survives
	assert.Equal(t, 0, count(t, m, FieldFullPath, path))
}

func TestIndexWriter_ReplaceWithinOneRunLeavesLatestGeneration(t *testing.T) {
	// Given: a create followed by a replace of the same file, uncommitted
	m := newMemManager(t)
	w := obtain(t, m)
	path := "shop/1.0/m_fr.properties"

	require.NoError(t, w.AddDocument(entry(path, "L7", "a", "un", "fr")))
	require.NoError(t, w.AddDocument(entry(path, "L7", "b", "deux", "fr")))
	require.NoError(t, w.DeleteDocuments(context.Background(), FieldFullPath, path))
	require.NoError(t, w.AddDocument(entry(path, "L7", "a", "UN", "fr")))

	// When: committing once
	require.NoError(t, w.Commit(context.Background()))

	// Then: only the replacement is indexed
	assert.Equal(t, 1, count(t, m, FieldFullPath, path))
	res, err := NewSearcher(m.Index(), 0).Search(context.Background(), Query{Text: "UN"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "UN", res.Hits[0].Fields[FieldValue])
}

func TestIndexWriter_ReaddAfterCommittedDeleteKeepsDocument(t *testing.T) {
	m := newMemManager(t)
	w := obtain(t, m)
	path := "shop/1.0/m_it.properties"

	require.NoError(t, w.AddDocument(entry(path, "L3", "a", "uno", "it")))
	require.NoError(t, w.Commit(context.Background()))

	// When: replacing with a document of the same ID
	require.NoError(t, w.DeleteDocuments(context.Background(), FieldFullPath, path))
	require.NoError(t, w.AddDocument(entry(path, "L3", "a", "UNO", "it")))
	require.NoError(t, w.Commit(context.Background()))

	// Then: exactly the new version remains
	assert.Equal(t, 1, count(t, m, FieldFullPath, path))
}

func TestIndexWriter_RollbackDiscardsStagedChanges(t *testing.T) {
	m := newMemManager(t)
	w := obtain(t, m)
	require.NoError(t, w.AddDocument(entry("shop/1.0/m_de.properties", "L1", "a", "eins", "de")))

	w.Rollback()
	require.NoError(t, w.Commit(context.Background()))

	assert.Equal(t, 0, w.Pending())
	assert.Equal(t, uint64(0), m.Index().Generation(), "empty commit does not bump generation")
}

func TestIndexWriter_RejectsDocumentWithoutID(t *testing.T) {
	m := newMemManager(t)
	w := obtain(t, m)

	err := w.AddDocument(Document{})

	assert.Equal(t, perrors.ErrCodeInvalidInput, perrors.GetCode(err))
}

func TestIndexWriter_CommitCancelled(t *testing.T) {
	m := newMemManager(t)
	w := obtain(t, m)
	require.NoError(t, w.AddDocument(entry("shop/1.0/m_de.properties", "L1", "a", "eins", "de")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.Commit(ctx)

	assert.ErrorIs(t, err, perrors.ErrInterrupted)
	assert.Equal(t, 1, w.Pending(), "staged changes survive a cancelled commit")
}

// =============================================================================
// Manager lifecycle
// =============================================================================

func TestManager_SingleOutstandingWriter(t *testing.T) {
	// Given: a writer already obtained
	m := newMemManager(t)
	w := obtain(t, m)

	// When: obtaining a second writer
	_, err := m.ObtainWriter(context.Background())

	// Then: it is refused until the first is returned
	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeWriterInUse, perrors.GetCode(err))
	assert.True(t, perrors.IsRetryable(err))

	require.NoError(t, m.ReturnWriter(w))
	w2 := obtain(t, m)
	require.NoError(t, m.ReturnWriter(w2))

	obtained, returned := m.WriterStats()
	assert.Equal(t, 2, obtained)
	assert.Equal(t, 2, returned)
}

func TestManager_ReturnWriterRollsBackAndInvalidates(t *testing.T) {
	m := newMemManager(t)
	w := obtain(t, m)
	require.NoError(t, w.AddDocument(entry("shop/1.0/m_de.properties", "L1", "a", "eins", "de")))

	require.NoError(t, m.ReturnWriter(w))

	// Then: nothing was committed and the handle is dead
	assert.Equal(t, 0, count(t, m, FieldCDOID, "L1"))
	assert.Error(t, w.AddDocument(entry("shop/1.0/m_de.properties", "L1", "b", "zwei", "de")))
	assert.Error(t, w.Commit(context.Background()))
}

func TestManager_ReturnWriterNilAndTwice(t *testing.T) {
	m := newMemManager(t)
	require.NoError(t, m.ReturnWriter(nil))

	w := obtain(t, m)
	require.NoError(t, m.ReturnWriter(w))
	assert.Error(t, m.ReturnWriter(w), "second return is reported, not counted")

	_, returned := m.WriterStats()
	assert.Equal(t, 1, returned)
}

func TestManager_ObtainCancelled(t *testing.T) {
	m := newMemManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.ObtainWriter(ctx)

	assert.ErrorIs(t, err, perrors.ErrInterrupted)
}

func TestManager_LockedByAnotherOpen(t *testing.T) {
	// Given: a data directory held open by one manager
	dir := t.TempDir()
	first, err := OpenManager(context.Background(), dir, ManagerOptions{})
	require.NoError(t, err)

	// When: a second manager tries to open it with a short lock timeout
	start := time.Now()
	_, err = OpenManager(context.Background(), dir, ManagerOptions{LockTimeout: 300 * time.Millisecond})

	// Then: it fails with the lock error after retrying
	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeIndexLocked, perrors.GetCode(err))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	// And: after closing the first, the directory opens again
	require.NoError(t, first.Close())
	second, err := OpenManager(context.Background(), dir, ManagerOptions{})
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestManager_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	m, err := OpenManager(context.Background(), dir, ManagerOptions{})
	require.NoError(t, err)

	w := obtain(t, m)
	require.NoError(t, w.AddDocument(entry("shop/1.0/m_de.properties", "L1", "a", "eins", "de")))
	require.NoError(t, w.Commit(context.Background()))
	require.NoError(t, m.ReturnWriter(w))
	require.NoError(t, m.Close())

	reopened, err := OpenManager(context.Background(), dir, ManagerOptions{})
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 1, count(t, reopened, FieldCDOID, "L1"))
	assert.FileExists(t, filepath.Join(dir, LockFileName))
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	m, err := OpenManager(context.Background(), "", ManagerOptions{})
	require.NoError(t, err)
	_ = obtain(t, m)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.ObtainWriter(context.Background())
	assert.Error(t, err)
}

// =============================================================================
// Index integrity
// =============================================================================

func TestOpenIndex_RecoversFromCorruptedMeta(t *testing.T) {
	// Given: an index directory with an empty index_meta.json
	path := filepath.Join(t.TempDir(), IndexDirName)
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), []byte{}, 0o644))

	// When: opening it
	idx, err := OpenIndex(path)

	// Then: it was cleared and is usable
	require.NoError(t, err)
	defer idx.Close()
	n, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestValidateIndexIntegrity(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(t *testing.T, path string)
		wantError string
	}{
		{
			name:  "non-existent path is valid",
			setup: func(t *testing.T, path string) {},
		},
		{
			name: "valid meta is valid",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.MkdirAll(path, 0o755))
				require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), []byte(`{"storage":"scorch"}`), 0o644))
			},
		},
		{
			name: "invalid JSON is corrupt",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.MkdirAll(path, 0o755))
				require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), []byte(`{invalid`), 0o644))
			},
			wantError: "corrupt",
		},
		{
			name: "missing meta in existing dir is corrupt",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.MkdirAll(path, 0o755))
			},
			wantError: "missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "test.bleve")
			tt.setup(t, path)

			err := validateIndexIntegrity(path)

			if tt.wantError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantError)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// =============================================================================
// Searcher
// =============================================================================

func seed(t *testing.T, m *Manager, docs ...Document) {
	t.Helper()
	w := obtain(t, m)
	for _, d := range docs {
		require.NoError(t, w.AddDocument(d))
	}
	require.NoError(t, w.Commit(context.Background()))
	require.NoError(t, m.ReturnWriter(w))
}

func TestSearcher_MatchesValueAndKeyWords(t *testing.T) {
	m := newMemManager(t)
	seed(t, m,
		entry("shop/1.0/m_de.properties", "L1", "checkout.submitButton", "Jetzt kaufen", "de"),
		entry("shop/1.0/m_fr.properties", "L2", "checkout.submitButton", "Acheter maintenant", "fr"),
		entry("shop/1.0/m_de.properties", "L1", "cart.empty", "Warenkorb ist leer", "de"),
	)
	s := NewSearcher(m.Index(), 16)

	byValue, err := s.Search(context.Background(), Query{Text: "warenkorb"})
	require.NoError(t, err)
	require.Len(t, byValue.Hits, 1)
	assert.Equal(t, "cart.empty", byValue.Hits[0].Fields[FieldKey])

	byKeyWord, err := s.Search(context.Background(), Query{Text: "submit"})
	require.NoError(t, err)
	assert.Len(t, byKeyWord.Hits, 2)

	filtered, err := s.Search(context.Background(), Query{Text: "submit", Locale: "fr"})
	require.NoError(t, err)
	require.Len(t, filtered.Hits, 1)
	assert.Equal(t, "Acheter maintenant", filtered.Hits[0].Fields[FieldValue])

	byProject, err := s.Search(context.Background(), Query{Project: "shop", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), byProject.Total)
}

func TestSearcher_EmptyQueryRejected(t *testing.T) {
	s := NewSearcher(newMemManager(t).Index(), 0)

	_, err := s.Search(context.Background(), Query{Text: "   "})

	assert.Equal(t, perrors.ErrCodeQueryEmpty, perrors.GetCode(err))
}

func TestSearcher_CacheInvalidatedByCommit(t *testing.T) {
	// Given: a cached result
	m := newMemManager(t)
	seed(t, m, entry("shop/1.0/m_de.properties", "L1", "a", "Hallo", "de"))
	s := NewSearcher(m.Index(), 16)

	first, err := s.Search(context.Background(), Query{Text: "hallo"})
	require.NoError(t, err)
	require.Len(t, first.Hits, 1)

	// When: a commit adds another match
	seed(t, m, entry("shop/1.0/m_at.properties", "L2", "a", "Hallo", "de"))

	// Then: the next search sees it
	second, err := s.Search(context.Background(), Query{Text: "hallo"})
	require.NoError(t, err)
	assert.Len(t, second.Hits, 2)
}

func TestSearcher_ConcurrentSearchDuringCommits(t *testing.T) {
	m := newMemManager(t)
	s := NewSearcher(m.Index(), 4)

	var (
		wg        sync.WaitGroup
		commitErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		w, err := m.ObtainWriter(context.Background())
		if err != nil {
			commitErr = err
			return
		}
		defer func() { _ = m.ReturnWriter(w) }()
		for i := 0; i < 20; i++ {
			if err := w.AddDocument(entry("shop/1.0/m_de.properties", "L1", "k"+string(rune('a'+i)), "Wert", "de")); err != nil {
				commitErr = err
				return
			}
			if err := w.Commit(context.Background()); err != nil {
				commitErr = err
				return
			}
		}
	}()
	for i := 0; i < 20; i++ {
		_, err := s.Search(context.Background(), Query{Text: "wert"})
		require.NoError(t, err)
	}
	wg.Wait()
	require.NoError(t, commitErr)

	n, err := s.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(20), n)
}

func TestIndex_Terms(t *testing.T) {
	m := newMemManager(t)
	seed(t, m,
		entry("shop/1.0/m_de.properties", "L1", "a", "A", "de"),
		entry("shop/1.0/m_de.properties", "L1", "b", "B", "de"),
		entry("shop/1.0/m_fr.properties", "L2", "a", "A", "fr"),
	)

	terms, err := m.Index().Terms(FieldFullPath)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"shop/1.0/m_de.properties", "shop/1.0/m_fr.properties"}, terms)
}
