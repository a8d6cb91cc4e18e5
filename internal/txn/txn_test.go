package txn

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"reldb/internal/disk"
	"reldb/internal/lock"
	"reldb/internal/wal"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	dm := disk.NewManager()
	require.NoError(t, dm.OpenWAL(filepath.Join(dir, "wal.log")))
	return New(lock.New(), wal.New(dm, 1, 0))
}

func TestCommitReleasesLocksAndMarksCommitted(t *testing.T) {
	m := newTestManager(t)
	txn, err := m.Begin()
	require.NoError(t, err)
	require.NoError(t, m.locks.LockTable(txn.ID, "t", lock.IX))

	require.NoError(t, m.Commit(txn))
	require.Equal(t, Committed, txn.State())
	_, held := m.locks.HeldTableMode(txn.ID, "t")
	require.False(t, held)
}

func TestAbortRunsUndoClosuresInReverseOrder(t *testing.T) {
	m := newTestManager(t)
	txn, err := m.Begin()
	require.NoError(t, err)

	var order []int
	txn.Record(KindInsert, "t", func() error { order = append(order, 1); return nil })
	txn.Record(KindInsert, "t", func() error { order = append(order, 2); return nil })

	require.NoError(t, m.Abort(txn))
	require.Equal(t, Aborted, txn.State())
	require.Equal(t, []int{2, 1}, order)
}

func TestDoubleCommitIsRejected(t *testing.T) {
	m := newTestManager(t)
	txn, err := m.Begin()
	require.NoError(t, err)
	require.NoError(t, m.Commit(txn))
	require.Error(t, m.Commit(txn))
}
