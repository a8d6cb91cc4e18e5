package exec

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"reldb/internal/bplustree"
	"reldb/internal/buffer"
	"reldb/internal/disk"
	"reldb/internal/heap"
	"reldb/internal/lock"
	"reldb/internal/txn"
	"reldb/internal/types"
	"reldb/internal/wal"
)

type dmlEnv struct {
	hf      *heap.File
	meta    *types.TableMeta
	indexes []IndexBinding
	txns    *txn.Manager
}

func newDMLEnv(t *testing.T) *dmlEnv {
	t.Helper()
	dir := t.TempDir()
	dm := disk.NewManager()
	require.NoError(t, dm.OpenWAL(filepath.Join(dir, "wal.log")))
	require.NoError(t, dm.OpenFileWithID(filepath.Join(dir, "t.heap"), 2))
	require.NoError(t, dm.OpenFileWithID(filepath.Join(dir, "t.idx"), 3))

	pool := buffer.New(8, dm)
	locks := lock.New()
	logMgr := wal.New(dm, 1, 0)
	pool.SetLogFlusher(logMgr)

	cols, recSize := types.ComputeRecordSize([]types.Column{
		{Table: "t", Name: "id", Type: types.Int64},
		{Table: "t", Name: "name", Type: types.CharN, Length: 8},
	})
	meta := &types.TableMeta{Name: "t", Columns: cols, HeapFileID: 2, RecordSize: recSize, Indexes: []types.IndexMeta{
		{Table: "t", Columns: []string{"id"}, KeyLength: 8, IndexFileID: 3},
	}}

	hf, err := heap.Open(pool, 2, "t", recSize, locks, logMgr)
	require.NoError(t, err)
	tree, err := bplustree.Open(pool, 3, 8, true)
	require.NoError(t, err)

	return &dmlEnv{
		hf:      hf,
		meta:    meta,
		indexes: []IndexBinding{{Meta: &meta.Indexes[0], Tree: tree}},
		txns:    txn.New(locks, logMgr),
	}
}

func TestInsertRowMaintainsIndex(t *testing.T) {
	env := newDMLEnv(t)
	tx, err := env.txns.Begin()
	require.NoError(t, err)

	rid, err := InsertRow(tx, env.hf, env.meta, env.indexes, types.Row{Values: []interface{}{int64(1), "a"}})
	require.NoError(t, err)
	require.NoError(t, env.txns.Commit(tx))

	key := types.EncodeKey(env.meta, []string{"id"}, types.Row{Values: []interface{}{int64(1), "a"}})
	got, ok, err := env.indexes[0].Tree.Search(key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rid, got)
}

func TestInsertRowRejectsDuplicateUniqueKey(t *testing.T) {
	env := newDMLEnv(t)
	tx1, err := env.txns.Begin()
	require.NoError(t, err)
	_, err = InsertRow(tx1, env.hf, env.meta, env.indexes, types.Row{Values: []interface{}{int64(1), "a"}})
	require.NoError(t, err)
	require.NoError(t, env.txns.Commit(tx1))

	tx2, err := env.txns.Begin()
	require.NoError(t, err)
	_, err = InsertRow(tx2, env.hf, env.meta, env.indexes, types.Row{Values: []interface{}{int64(1), "b"}})
	require.Error(t, err)
}

func TestAbortUndoesInsertAndIndexEntry(t *testing.T) {
	env := newDMLEnv(t)
	tx, err := env.txns.Begin()
	require.NoError(t, err)

	rid, err := InsertRow(tx, env.hf, env.meta, env.indexes, types.Row{Values: []interface{}{int64(1), "a"}})
	require.NoError(t, err)
	require.NoError(t, env.txns.Abort(tx))

	_, err = env.hf.Get(0, rid, false)
	require.Error(t, err)

	key := types.EncodeKey(env.meta, []string{"id"}, types.Row{Values: []interface{}{int64(1), "a"}})
	_, ok, err := env.indexes[0].Tree.Search(key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUpdateRowChangesIndexedKey(t *testing.T) {
	env := newDMLEnv(t)
	tx, err := env.txns.Begin()
	require.NoError(t, err)
	rid, err := InsertRow(tx, env.hf, env.meta, env.indexes, types.Row{Values: []interface{}{int64(1), "a"}})
	require.NoError(t, err)
	require.NoError(t, env.txns.Commit(tx))

	tx2, err := env.txns.Begin()
	require.NoError(t, err)
	require.NoError(t, UpdateRow(tx2, env.hf, env.meta, env.indexes, rid, types.Row{Values: []interface{}{int64(2), "a"}}))
	require.NoError(t, env.txns.Commit(tx2))

	oldKey := types.EncodeKey(env.meta, []string{"id"}, types.Row{Values: []interface{}{int64(1), "a"}})
	_, ok, err := env.indexes[0].Tree.Search(oldKey)
	require.NoError(t, err)
	require.False(t, ok)

	newKey := types.EncodeKey(env.meta, []string{"id"}, types.Row{Values: []interface{}{int64(2), "a"}})
	got, ok, err := env.indexes[0].Tree.Search(newKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rid, got)
}

func TestDeleteOpRemovesRowsMatchingChild(t *testing.T) {
	env := newDMLEnv(t)
	tx, err := env.txns.Begin()
	require.NoError(t, err)
	for i := int64(0); i < 3; i++ {
		_, err := InsertRow(tx, env.hf, env.meta, env.indexes, types.Row{Values: []interface{}{i, "a"}})
		require.NoError(t, err)
	}
	require.NoError(t, env.txns.Commit(tx))

	tx2, err := env.txns.Begin()
	require.NoError(t, err)
	scan := NewSeqScanOp(env.hf, tx2.ID, env.meta)
	filtered := NewFilterOp(scan, func(r Row) (bool, error) { return r.Values[0].(int64) == 1, nil })
	del := NewDeleteOp(tx2, env.hf, env.meta, env.indexes, filtered)

	_, err = del.Next()
	require.NoError(t, err)
	_, err = del.Next()
	require.Equal(t, io.EOF, err)
	require.NoError(t, env.txns.Commit(tx2))

	scan2 := NewSeqScanOp(env.hf, 0, env.meta)
	rows := drain(t, scan2)
	require.Len(t, rows, 2)
}
