package exec

import (
	"io"

	"reldb/internal/bplustree"
	"reldb/internal/heap"
	"reldb/internal/txn"
	"reldb/internal/types"
)

// IndexBinding pairs one secondary index's catalog metadata with its open
// B+-tree, so InsertRow/UpdateRow/DeleteRow can maintain every index on a
// table in lockstep with the heap, per spec.md §4.3's "index maintenance
// on DML".
type IndexBinding struct {
	Meta *types.IndexMeta
	Tree *bplustree.Tree
}

// InsertRow writes row into hf and every index in indexes, registering an
// undo closure on txn for each write so a live abort reverses exactly
// what was done (internal/recovery does not run these closures; it undoes
// heap writes from their PageImage records). Grounded on
// ShubhamNegi4-DaemonDB query_executor/exec_insert.go's
// insert-then-index-then-log sequence, but with the teacher's implicit
// rollback made explicit via internal/txn's write-set.
func InsertRow(t *txn.Transaction, hf *heap.File, meta *types.TableMeta, indexes []IndexBinding, row types.Row) (types.RID, error) {
	buf, err := types.Encode(meta, row)
	if err != nil {
		return types.RID{}, err
	}

	rid, lsn, err := hf.Insert(t.ID, t.LastLSN(), buf)
	if err != nil {
		return types.RID{}, err
	}
	t.SetLastLSN(lsn)
	t.Record(txn.KindInsert, meta.Name, func() error {
		_, _, err := hf.Delete(t.ID, t.LastLSN(), rid)
		return err
	})

	for _, ib := range indexes {
		key := types.EncodeKey(meta, ib.Meta.Columns, row)
		if err := ib.Tree.Insert(key, rid); err != nil {
			return types.RID{}, err
		}
		tree := ib.Tree
		t.Record(txn.KindInsert, meta.Name, func() error {
			return tree.Delete(key, rid)
		})
	}
	return rid, nil
}

// DeleteRow removes rid from hf and every index, registering undo
// closures that re-insert the old row on abort.
func DeleteRow(t *txn.Transaction, hf *heap.File, meta *types.TableMeta, indexes []IndexBinding, rid types.RID) error {
	old, lsn, err := hf.Delete(t.ID, t.LastLSN(), rid)
	if err != nil {
		return err
	}
	t.SetLastLSN(lsn)

	oldRow, err := types.Decode(meta, old)
	if err != nil {
		return err
	}
	t.Record(txn.KindDelete, meta.Name, func() error {
		buf, err := types.Encode(meta, oldRow)
		if err != nil {
			return err
		}
		_, _, err = hf.Insert(t.ID, t.LastLSN(), buf)
		return err
	})

	for _, ib := range indexes {
		key := types.EncodeKey(meta, ib.Meta.Columns, oldRow)
		if err := ib.Tree.Delete(key, rid); err != nil {
			return err
		}
		tree := ib.Tree
		t.Record(txn.KindDelete, meta.Name, func() error {
			return tree.Insert(key, rid)
		})
	}
	return nil
}

// UpdateRow overwrites rid's row with newRow, removing/reinserting any
// index entry whose key column changed, and registers an undo closure
// that restores the old row and old index entries.
func UpdateRow(t *txn.Transaction, hf *heap.File, meta *types.TableMeta, indexes []IndexBinding, rid types.RID, newRow types.Row) error {
	newBuf, err := types.Encode(meta, newRow)
	if err != nil {
		return err
	}

	old, lsn, err := hf.Update(t.ID, t.LastLSN(), rid, newBuf)
	if err != nil {
		return err
	}
	t.SetLastLSN(lsn)

	oldRow, err := types.Decode(meta, old)
	if err != nil {
		return err
	}
	t.Record(txn.KindUpdate, meta.Name, func() error {
		buf, err := types.Encode(meta, oldRow)
		if err != nil {
			return err
		}
		_, _, err = hf.Update(t.ID, t.LastLSN(), rid, buf)
		return err
	})

	for _, ib := range indexes {
		oldKey := types.EncodeKey(meta, ib.Meta.Columns, oldRow)
		newKey := types.EncodeKey(meta, ib.Meta.Columns, newRow)
		if string(oldKey) == string(newKey) {
			continue
		}
		if err := ib.Tree.Delete(oldKey, rid); err != nil {
			return err
		}
		if err := ib.Tree.Insert(newKey, rid); err != nil {
			return err
		}
		tree := ib.Tree
		t.Record(txn.KindUpdate, meta.Name, func() error {
			if err := tree.Delete(newKey, rid); err != nil {
				return err
			}
			return tree.Insert(oldKey, rid)
		})
	}
	return nil
}

// InsertOp is the top-level operator for an INSERT statement: each Next()
// call inserts one of the literal rows given at construction and returns
// it with its new RID, until every row has been inserted.
type InsertOp struct {
	t       *txn.Transaction
	hf      *heap.File
	meta    *types.TableMeta
	indexes []IndexBinding
	rows    []types.Row
	pos     int
}

func NewInsertOp(t *txn.Transaction, hf *heap.File, meta *types.TableMeta, indexes []IndexBinding, rows []types.Row) *InsertOp {
	return &InsertOp{t: t, hf: hf, meta: meta, indexes: indexes, rows: rows}
}

func (op *InsertOp) Next() (Row, error) {
	if op.pos >= len(op.rows) {
		return Row{}, io.EOF
	}
	row := op.rows[op.pos]
	op.pos++
	rid, err := InsertRow(op.t, op.hf, op.meta, op.indexes, row)
	if err != nil {
		return Row{}, err
	}
	return Row{Values: row.Values, RID: rid}, nil
}

// UpdateOp applies assign to every row child produces (a SeqScanOp or
// IndexScanOp, typically wrapped in a FilterOp for the WHERE clause) and
// writes the result back.
type UpdateOp struct {
	t       *txn.Transaction
	hf      *heap.File
	meta    *types.TableMeta
	indexes []IndexBinding
	child   Operator
	assign  func([]interface{}) []interface{}
}

func NewUpdateOp(t *txn.Transaction, hf *heap.File, meta *types.TableMeta, indexes []IndexBinding, child Operator, assign func([]interface{}) []interface{}) *UpdateOp {
	return &UpdateOp{t: t, hf: hf, meta: meta, indexes: indexes, child: child, assign: assign}
}

func (op *UpdateOp) Next() (Row, error) {
	row, err := op.child.Next()
	if err != nil {
		return Row{}, err
	}
	newVals := op.assign(row.Values)
	if err := UpdateRow(op.t, op.hf, op.meta, op.indexes, row.RID, types.Row{Values: newVals}); err != nil {
		return Row{}, err
	}
	return Row{Values: newVals, RID: row.RID}, nil
}

// DeleteOp deletes every row child produces.
type DeleteOp struct {
	t       *txn.Transaction
	hf      *heap.File
	meta    *types.TableMeta
	indexes []IndexBinding
	child   Operator
}

func NewDeleteOp(t *txn.Transaction, hf *heap.File, meta *types.TableMeta, indexes []IndexBinding, child Operator) *DeleteOp {
	return &DeleteOp{t: t, hf: hf, meta: meta, indexes: indexes, child: child}
}

func (op *DeleteOp) Next() (Row, error) {
	row, err := op.child.Next()
	if err != nil {
		return Row{}, err
	}
	if err := DeleteRow(op.t, op.hf, op.meta, op.indexes, row.RID); err != nil {
		return Row{}, err
	}
	return row, nil
}
