package buffer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"reldb/internal/disk"
	"reldb/internal/errs"
	"reldb/internal/page"
)

func newTestPool(t *testing.T, capacity int) (*Pool, uint32) {
	t.Helper()
	dir := t.TempDir()
	dm := disk.NewManager()
	path := filepath.Join(dir, "1.heap")
	require.NoError(t, dm.OpenFileWithID(path, 1))
	return New(capacity, dm), 1
}

func TestNewPageThenFetchSeesDirtyBytes(t *testing.T) {
	pool, fileID := newTestPool(t, 4)

	pg, err := pool.NewPage(fileID, page.TypeHeapData)
	require.NoError(t, err)
	pg.Data[100] = 42
	pg.Dirty = true
	id := pg.ID
	require.NoError(t, pool.Unpin(id, true))

	require.NoError(t, pool.Flush(id))

	pg2, err := pool.Fetch(id)
	require.NoError(t, err)
	require.Equal(t, byte(42), pg2.Data[100])
	require.NoError(t, pool.Unpin(id, false))
}

func TestUnpinErrorsWhenNotCachedOrNotPinned(t *testing.T) {
	pool, _ := newTestPool(t, 4)

	err := pool.Unpin(page.PackID(1, 99), false)
	require.ErrorIs(t, err, &errs.Error{Kind: errs.KindNotCached})

	pg, err := pool.NewPage(1, page.TypeHeapData)
	require.NoError(t, err)
	require.NoError(t, pool.Unpin(pg.ID, false))

	err = pool.Unpin(pg.ID, false)
	require.ErrorIs(t, err, &errs.Error{Kind: errs.KindNotPinned})
}

func TestEvictionRespectsPinsAndExhaustion(t *testing.T) {
	pool, fileID := newTestPool(t, 2)

	pg1, err := pool.NewPage(fileID, page.TypeHeapData)
	require.NoError(t, err)
	pg2, err := pool.NewPage(fileID, page.TypeHeapData)
	require.NoError(t, err)

	// Both pinned and pool is at capacity: a third page cannot be loaded.
	_, err = pool.NewPage(fileID, page.TypeHeapData)
	require.Error(t, err)

	require.NoError(t, pool.Unpin(pg1.ID, false))
	// Now there is a victim available.
	pg3, err := pool.NewPage(fileID, page.TypeHeapData)
	require.NoError(t, err)
	require.NotEqual(t, pg1.ID, pg3.ID)

	require.NoError(t, pool.Unpin(pg2.ID, false))
	require.NoError(t, pool.Unpin(pg3.ID, false))
}

func TestFlushFileEvictsUnpinnedFrames(t *testing.T) {
	pool, fileID := newTestPool(t, 4)
	pg, err := pool.NewPage(fileID, page.TypeHeapData)
	require.NoError(t, err)
	require.NoError(t, pool.Unpin(pg.ID, true))

	require.NoError(t, pool.FlushFile(fileID))
	stats := pool.Stats()
	require.Equal(t, 0, stats.Cached)
	require.Equal(t, 4, stats.FreeFrames)
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
