package exec

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"reldb/internal/buffer"
	"reldb/internal/disk"
	"reldb/internal/heap"
	"reldb/internal/types"
)

func newTestTable(t *testing.T) (*heap.File, *types.TableMeta) {
	t.Helper()
	dir := t.TempDir()
	dm := disk.NewManager()
	require.NoError(t, dm.OpenFileWithID(filepath.Join(dir, "t.heap"), 1))
	pool := buffer.New(8, dm)

	cols, recSize := types.ComputeRecordSize([]types.Column{
		{Table: "t", Name: "id", Type: types.Int64},
		{Table: "t", Name: "name", Type: types.CharN, Length: 8},
	})
	meta := &types.TableMeta{Name: "t", Columns: cols, HeapFileID: 1, RecordSize: recSize}

	hf, err := heap.Open(pool, 1, "t", recSize, nil, nil)
	require.NoError(t, err)
	return hf, meta
}

func insertRows(t *testing.T, hf *heap.File, meta *types.TableMeta, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		row := types.Row{Values: []interface{}{int64(i), "r"}}
		buf, err := types.Encode(meta, row)
		require.NoError(t, err)
		_, _, err = hf.Insert(0, 0, buf)
		require.NoError(t, err)
	}
}

func drain(t *testing.T, op Operator) []Row {
	t.Helper()
	var out []Row
	for {
		row, err := op.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, row)
	}
}

func TestSeqScanFilterProjectPipeline(t *testing.T) {
	hf, meta := newTestTable(t)
	insertRows(t, hf, meta, 10)

	scan := NewSeqScanOp(hf, 0, meta)
	filtered := NewFilterOp(scan, func(r Row) (bool, error) {
		return r.Values[0].(int64) >= 5, nil
	})
	proj := NewProjectOp(filtered, []int{0})

	rows := drain(t, proj)
	require.Len(t, rows, 5)
	require.Equal(t, int64(5), rows[0].Values[0])
	require.Equal(t, int64(9), rows[4].Values[0])
}

func TestSortOpOrdersDescending(t *testing.T) {
	hf, meta := newTestTable(t)
	insertRows(t, hf, meta, 5)

	scan := NewSeqScanOp(hf, 0, meta)
	sorted := NewSortOp(scan, []int{0}, []bool{true})

	rows := drain(t, sorted)
	require.Len(t, rows, 5)
	for i, row := range rows {
		require.Equal(t, int64(4-i), row.Values[0])
	}
}

func TestLimitOpCapsAndSkips(t *testing.T) {
	hf, meta := newTestTable(t)
	insertRows(t, hf, meta, 10)

	scan := NewSeqScanOp(hf, 0, meta)
	limited := NewLimitOp(scan, 3, 2)

	rows := drain(t, limited)
	require.Len(t, rows, 3)
	require.Equal(t, int64(2), rows[0].Values[0])
	require.Equal(t, int64(4), rows[2].Values[0])
}

func TestAggregateCountAndSumWithGroupBy(t *testing.T) {
	hf, meta := newTestTable(t)
	// two rows named "a", three named "b"
	names := []string{"a", "a", "b", "b", "b"}
	for i, n := range names {
		row := types.Row{Values: []interface{}{int64(i), n}}
		buf, err := types.Encode(meta, row)
		require.NoError(t, err)
		_, _, err = hf.Insert(0, 0, buf)
		require.NoError(t, err)
	}

	scan := NewSeqScanOp(hf, 0, meta)
	agg := NewAggregateOp(scan, []int{1}, []AggSpec{{Func: AggCount, ColStar: true}, {Func: AggSum, Col: 0}})

	rows := drain(t, agg)
	require.Len(t, rows, 2)
	totals := map[string]int64{}
	for _, r := range rows {
		totals[r.Values[0].(string)] = r.Values[1].(int64)
	}
	require.Equal(t, int64(2), totals["a"])
	require.Equal(t, int64(3), totals["b"])
}

func TestNestedLoopJoinEvaluatesFullCombinedRow(t *testing.T) {
	hfL, metaL := newTestTable(t)
	hfR, metaR := newTestTable(t)
	insertRows(t, hfL, metaL, 3) // ids 0,1,2
	insertRows(t, hfR, metaR, 3) // ids 0,1,2

	left := NewSeqScanOp(hfL, 0, metaL)
	right := NewSeqScanOp(hfR, 0, metaR)
	// join on id equality AND a predicate that only makes sense against
	// the combined row (right.id > 0) -- this is exactly the case the
	// teacher's single-column join filter would miss.
	join := NewNestedLoopJoinOp(left, right, func(r Row) (bool, error) {
		leftID := r.Values[0].(int64)
		rightID := r.Values[2].(int64)
		return leftID == rightID && rightID > 0, nil
	})

	rows := drain(t, join)
	require.Len(t, rows, 2) // id=1 and id=2 matches; id=0 excluded by rightID>0
}
