package recovery

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"reldb/internal/buffer"
	"reldb/internal/catalog"
	"reldb/internal/disk"
	"reldb/internal/heap"
	"reldb/internal/lock"
	"reldb/internal/types"
	"reldb/internal/wal"
)

func newTestEnv(t *testing.T) (*disk.Manager, *buffer.Pool, *catalog.Catalog, *wal.Manager) {
	t.Helper()
	dir := t.TempDir()
	dm := disk.NewManager()
	require.NoError(t, dm.OpenWAL(filepath.Join(dir, "wal.log")))
	require.NoError(t, dm.OpenFileWithID(filepath.Join(dir, "t.heap"), 2))

	cat, err := catalog.Open(dir)
	require.NoError(t, err)
	cols, recSize := types.ComputeRecordSize([]types.Column{
		{Table: "t", Name: "a", Type: types.Int64},
	})
	tm, err := cat.CreateTable("t", cols, recSize)
	require.NoError(t, err)
	require.Equal(t, uint32(2), tm.HeapFileID)

	pool := buffer.New(8, dm)
	logMgr := wal.New(dm, 1, 0)
	pool.SetLogFlusher(logMgr)
	return dm, pool, cat, logMgr
}

func openHeap(t *testing.T, pool *buffer.Pool, locks *lock.Manager, logMgr *wal.Manager) *heap.File {
	t.Helper()
	f, err := heap.Open(pool, 2, "t", 8, locks, logMgr)
	require.NoError(t, err)
	return f
}

func TestRecoverRedoesCommittedInsertAfterSimulatedCrash(t *testing.T) {
	dir := t.TempDir()
	dm := disk.NewManager()
	require.NoError(t, dm.OpenWAL(filepath.Join(dir, "wal.log")))
	require.NoError(t, dm.OpenFileWithID(filepath.Join(dir, "t.heap"), 2))

	cat, err := catalog.Open(dir)
	require.NoError(t, err)
	cols, recSize := types.ComputeRecordSize([]types.Column{{Table: "t", Name: "a", Type: types.Int64}})
	_, err = cat.CreateTable("t", cols, recSize)
	require.NoError(t, err)

	locks := lock.New()
	logMgr := wal.New(dm, 1, 0)

	pool := buffer.New(8, dm)
	pool.SetLogFlusher(logMgr)
	f := openHeap(t, pool, locks, logMgr)

	txnID := wal.NextTxnID()
	locks.Begin(txnID)
	beginLSN, err := logMgr.Append(&wal.Record{Header: wal.Header{Type: wal.TBegin, TxnID: txnID}})
	require.NoError(t, err)
	buf := make([]byte, 8)
	buf[0] = 42
	rid, lsn, err := f.Insert(txnID, beginLSN, buf)
	require.NoError(t, err)

	_, err = logMgr.Append(&wal.Record{Header: wal.Header{Type: wal.TCommit, TxnID: txnID, PrevLSN: lsn}})
	require.NoError(t, err)
	_, err = logMgr.Append(&wal.Record{Header: wal.Header{Type: wal.TEnd, TxnID: txnID}})
	require.NoError(t, err)
	require.NoError(t, logMgr.Flush())

	// Simulate a crash: the dirty page never made it to disk, but the WAL
	// (flushed at commit) did.
	freshPool := buffer.New(8, dm)
	_, err = Recover(dm, freshPool, cat)
	require.NoError(t, err)

	f2 := openHeap(t, freshPool, nil, nil)
	got, err := f2.Get(0, rid, false)
	require.NoError(t, err)
	require.Equal(t, buf, got)
}

func TestRecoverUndoesUncommittedInsert(t *testing.T) {
	dir := t.TempDir()
	dm := disk.NewManager()
	require.NoError(t, dm.OpenWAL(filepath.Join(dir, "wal.log")))
	require.NoError(t, dm.OpenFileWithID(filepath.Join(dir, "t.heap"), 2))

	cat, err := catalog.Open(dir)
	require.NoError(t, err)
	cols, recSize := types.ComputeRecordSize([]types.Column{{Table: "t", Name: "a", Type: types.Int64}})
	_, err = cat.CreateTable("t", cols, recSize)
	require.NoError(t, err)

	locks := lock.New()
	logMgr := wal.New(dm, 1, 0)
	pool := buffer.New(8, dm)
	pool.SetLogFlusher(logMgr)
	f := openHeap(t, pool, locks, logMgr)

	txnID := wal.NextTxnID()
	locks.Begin(txnID)
	_, err = logMgr.Append(&wal.Record{Header: wal.Header{Type: wal.TBegin, TxnID: txnID}})
	require.NoError(t, err)

	buf := make([]byte, 8)
	buf[0] = 7
	rid, _, err := f.Insert(txnID, 0, buf)
	require.NoError(t, err)
	// Crash before commit/abort: no TCommit/TEnd record is ever written.
	require.NoError(t, logMgr.Flush())

	freshPool := buffer.New(8, dm)
	_, err = Recover(dm, freshPool, cat)
	require.NoError(t, err)

	f2 := openHeap(t, freshPool, nil, nil)
	_, err = f2.Get(0, rid, false)
	require.Error(t, err)
}
