package bplustree

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"reldb/internal/buffer"
	"reldb/internal/disk"
	"reldb/internal/types"
)

func newTestTree(t *testing.T, unique bool) *Tree {
	t.Helper()
	dir := t.TempDir()
	dm := disk.NewManager()
	require.NoError(t, dm.OpenFileWithID(filepath.Join(dir, "idx.bpt"), 1))
	pool := buffer.New(16, dm)
	tr, err := Open(pool, 1, 8, unique)
	require.NoError(t, err)
	return tr
}

func keyOf(n int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(n)^(1<<63))
	return b
}

func TestInsertSearchManyKeysSurvivesSplits(t *testing.T) {
	tr := newTestTree(t, true)
	const n = 500
	for i := 0; i < n; i++ {
		require.NoError(t, tr.Insert(keyOf(i), types.RID{PageNo: int64(i), Slot: 0}))
	}
	for i := 0; i < n; i++ {
		rid, ok, err := tr.Search(keyOf(i))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int64(i), rid.PageNo)
	}
}

func TestUniqueIndexRejectsDuplicate(t *testing.T) {
	tr := newTestTree(t, true)
	require.NoError(t, tr.Insert(keyOf(1), types.RID{PageNo: 1}))
	err := tr.Insert(keyOf(1), types.RID{PageNo: 2})
	require.Error(t, err)
}

func TestNonUniqueIndexAllowsDuplicateKeys(t *testing.T) {
	tr := newTestTree(t, false)
	require.NoError(t, tr.Insert(keyOf(1), types.RID{PageNo: 1}))
	require.NoError(t, tr.Insert(keyOf(1), types.RID{PageNo: 2}))
}

func TestLowerBoundIteratesInOrder(t *testing.T) {
	tr := newTestTree(t, true)
	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, tr.Insert(keyOf(i), types.RID{PageNo: int64(i)}))
	}

	it, err := tr.LowerBound(keyOf(50))
	require.NoError(t, err)
	expect := 50
	for {
		_, rid, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		require.Equal(t, int64(expect), rid.PageNo)
		expect++
	}
	require.Equal(t, n, expect)
}

func TestDeleteRemovesEntry(t *testing.T) {
	tr := newTestTree(t, true)
	require.NoError(t, tr.Insert(keyOf(1), types.RID{PageNo: 1}))
	require.NoError(t, tr.Delete(keyOf(1), types.RID{PageNo: 1}))

	_, ok, err := tr.Search(keyOf(1))
	require.NoError(t, err)
	require.False(t, ok)
}
