package heap

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"reldb/internal/buffer"
	"reldb/internal/disk"
)

func newTestFile(t *testing.T, recordSize int) *File {
	t.Helper()
	dir := t.TempDir()
	dm := disk.NewManager()
	require.NoError(t, dm.OpenFileWithID(filepath.Join(dir, "t.heap"), 1))
	pool := buffer.New(8, dm)
	f, err := Open(pool, 1, "t", recordSize, nil, nil)
	require.NoError(t, err)
	return f
}

func TestInsertGetRoundTrip(t *testing.T) {
	f := newTestFile(t, 16)
	buf := make([]byte, 16)
	copy(buf, "hello world")

	rid, _, err := f.Insert(0, 0, buf)
	require.NoError(t, err)

	got, err := f.Get(0, rid, false)
	require.NoError(t, err)
	require.Equal(t, buf, got)
}

func TestDeleteFreesSlotForReuse(t *testing.T) {
	f := newTestFile(t, 16)
	buf := make([]byte, 16)

	rid, _, err := f.Insert(0, 0, buf)
	require.NoError(t, err)

	_, _, err = f.Delete(0, 0, rid)
	require.NoError(t, err)

	_, err = f.Get(0, rid, false)
	require.Error(t, err)

	rid2, _, err := f.Insert(0, 0, buf)
	require.NoError(t, err)
	require.Equal(t, rid, rid2)
}

func TestUpdateOverwritesInPlace(t *testing.T) {
	f := newTestFile(t, 16)
	buf := make([]byte, 16)
	copy(buf, "version1")

	rid, _, err := f.Insert(0, 0, buf)
	require.NoError(t, err)

	newBuf := make([]byte, 16)
	copy(newBuf, "version2")
	old, _, err := f.Update(0, 0, rid, newBuf)
	require.NoError(t, err)
	require.Equal(t, buf, old)

	got, err := f.Get(0, rid, false)
	require.NoError(t, err)
	require.Equal(t, newBuf, got)
}

func TestScanVisitsAllLiveRecordsInOrder(t *testing.T) {
	f := newTestFile(t, 16)

	slotsPerPage := SlotsPerPage(16)
	n := slotsPerPage*2 + 3 // span at least three pages
	rids := make([]int, 0, n)
	for i := 0; i < n; i++ {
		buf := make([]byte, 16)
		buf[0] = byte(i)
		rid, _, err := f.Insert(0, 0, buf)
		require.NoError(t, err)
		rids = append(rids, int(rid.Slot))
	}

	sc := f.Scan(0)
	count := 0
	for {
		_, buf, err := sc.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.Equal(t, byte(count), buf[0])
		count++
	}
	require.Equal(t, n, count)
}

func TestRecordNotFoundAfterDeleteTwice(t *testing.T) {
	f := newTestFile(t, 16)
	buf := make([]byte, 16)

	rid, _, err := f.Insert(0, 0, buf)
	require.NoError(t, err)
	_, _, err = f.Delete(0, 0, rid)
	require.NoError(t, err)

	_, _, err = f.Delete(0, 0, rid)
	require.Error(t, err)
}
