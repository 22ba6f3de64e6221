package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewLevelDB(dir)
	require.NoError(t, err)
	require.NoError(t, db1.Put([]byte("key"), []byte("value")))
	db1.Close()

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)

	_, err = db2.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOverlayCommitWritesThrough(t *testing.T) {
	base := NewMemDB()
	require.NoError(t, base.Put([]byte("keep"), []byte("1")))
	require.NoError(t, base.Put([]byte("drop"), []byte("2")))

	ov := NewOverlay(base)
	require.NoError(t, ov.Put([]byte("new"), []byte("3")))
	require.NoError(t, ov.Delete([]byte("drop")))

	// Base untouched until commit.
	_, err := base.Get([]byte("new"))
	require.ErrorIs(t, err, ErrNotFound)
	got, err := ov.Get([]byte("keep"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)
	has, err := ov.Has([]byte("drop"))
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, ov.Commit())

	got, err = base.Get([]byte("new"))
	require.NoError(t, err)
	require.Equal(t, []byte("3"), got)
	_, err = base.Get([]byte("drop"))
	require.ErrorIs(t, err, ErrNotFound)

	require.Error(t, ov.Put([]byte("late"), []byte("x")))
}

func TestOverlayDiscardLeavesParentUntouched(t *testing.T) {
	base := NewMemDB()
	ov := NewOverlay(base)
	require.NoError(t, ov.Put([]byte("a"), []byte("1")))
	require.Equal(t, 1, ov.Dirty())
	ov.Discard()

	require.Equal(t, 0, base.Len())
	// Committing a discarded overlay fails.
	require.Error(t, ov.Commit())
}

func TestNestedOverlayCommitsIntoParentOverlay(t *testing.T) {
	base := NewMemDB()
	outer := NewOverlay(base)
	inner := NewOverlay(outer)

	require.NoError(t, inner.Put([]byte("k"), []byte("v")))
	require.NoError(t, inner.Commit())

	got, err := outer.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
	require.Equal(t, 0, base.Len())

	require.NoError(t, outer.Commit())
	require.Equal(t, 1, base.Len())
}

func TestLevelDBBatchAppliesAtomically(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("old"), []byte("x")))
	batch := db.NewBatch()
	batch.Put([]byte("a"), []byte("1"))
	batch.Delete([]byte("old"))
	require.Equal(t, 2, batch.Len())
	require.NoError(t, batch.Write())

	has, err := db.Has([]byte("old"))
	require.NoError(t, err)
	require.False(t, has)
	got, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)
}
