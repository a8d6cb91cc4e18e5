package engine

import (
	"bytes"

	"reldb/internal/bplustree"
	"reldb/internal/errs"
	"reldb/internal/exec"
	"reldb/internal/lock"
	"reldb/internal/sqlfront"
	"reldb/internal/txn"
	"reldb/internal/types"
)

// compile turns one node of a logical plan tree into the executor
// operator tree of SPEC_FULL.md §4.9: the planner's closures
// (func([]interface{}) (bool, error)) are adapted to internal/exec's
// func(exec.Row) (bool, error) predicate shape by one small wrapper per
// FilterNode/JoinNode — the only place a signature mismatch exists, since
// UpdateNode.Assign already matches exec.NewUpdateOp's assign parameter
// exactly.
func compile(db *Database, t *txn.Transaction, node sqlfront.Node) (exec.Operator, error) {
	switch n := node.(type) {
	case *sqlfront.ScanNode:
		return db.compileScan(t, n)
	case *sqlfront.FilterNode:
		child, err := compile(db, t, n.Child)
		if err != nil {
			return nil, err
		}
		pred := n.Pred
		return exec.NewFilterOp(child, func(r exec.Row) (bool, error) { return pred(r.Values) }), nil
	case *sqlfront.JoinNode:
		left, err := compile(db, t, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := compile(db, t, n.Right)
		if err != nil {
			return nil, err
		}
		pred := n.Pred
		return exec.NewNestedLoopJoinOp(left, right, func(r exec.Row) (bool, error) { return pred(r.Values) }), nil
	case *sqlfront.ProjectNode:
		child, err := compile(db, t, n.Child)
		if err != nil {
			return nil, err
		}
		return exec.NewProjectOp(child, n.Indexes), nil
	case *sqlfront.SortNode:
		child, err := compile(db, t, n.Child)
		if err != nil {
			return nil, err
		}
		return exec.NewSortOp(child, n.Keys, n.Desc), nil
	case *sqlfront.LimitNode:
		child, err := compile(db, t, n.Child)
		if err != nil {
			return nil, err
		}
		return exec.NewLimitOp(child, n.Limit, n.Offset), nil
	case *sqlfront.AggregateNode:
		child, err := compile(db, t, n.Child)
		if err != nil {
			return nil, err
		}
		return exec.NewAggregateOp(child, n.GroupBy, n.Specs), nil
	default:
		return nil, errs.Newf(errs.KindInternal, "node %T is not a query operator", node)
	}
}

// compileScan acquires the table's IS intention lock (spec.md §5: "the
// executor acquires both [table intention lock and row lock], in that
// order" — internal/heap's row-level locking happens inside Get/Scan
// itself, but sequential/index scans never touch the table-level lock on
// their own) and builds a SeqScanOp, or an IndexScanOp when the planner
// pushed a WHERE predicate into an index hint.
func (db *Database) compileScan(t *txn.Transaction, n *sqlfront.ScanNode) (exec.Operator, error) {
	if err := db.locks.LockTable(t.ID, n.Table.Name, lock.IS); err != nil {
		return nil, err
	}
	hf, err := db.tableHeap(n.Table.Name)
	if err != nil {
		return nil, err
	}
	if n.Index == nil {
		return exec.NewSeqScanOp(hf, t.ID, n.Table.Meta), nil
	}

	tree, ok := db.indexTree(n.Table.Name, n.Index.Columns)
	if !ok {
		return nil, errs.Newf(errs.KindIndexNotFound, "no index on %v for table %q", n.Index.Columns, n.Table.Name)
	}
	iter, stop, err := indexIterator(tree, n.Index)
	if err != nil {
		return nil, err
	}
	return exec.NewIndexScanOp(iter, hf, t.ID, n.Table.Meta, stop), nil
}

// indexIterator maps an IndexHint's comparison operator onto a starting
// bplustree.Iterator plus an optional stop predicate, per spec.md §4.3's
// lower_bound/upper_bound contract. "<" and "<=" have no usable starting
// bound of their own (everything below the target key qualifies), so they
// scan from the very beginning of the index (LowerBound(nil), which
// internal/bplustree documents as "start at leaf_begin") and rely on stop
// to end the range instead.
func indexIterator(tree *bplustree.Tree, hint *sqlfront.IndexHint) (*bplustree.Iterator, func([]byte) bool, error) {
	key := hint.Key
	switch hint.Op {
	case "=":
		iter, err := tree.LowerBound(key)
		if err != nil {
			return nil, nil, err
		}
		return iter, func(k []byte) bool { return !bytes.Equal(k, key) }, nil
	case ">=":
		iter, err := tree.LowerBound(key)
		return iter, nil, err
	case ">":
		iter, err := tree.UpperBound(key)
		return iter, nil, err
	case "<":
		iter, err := tree.LowerBound(nil)
		if err != nil {
			return nil, nil, err
		}
		return iter, func(k []byte) bool { return bytes.Compare(k, key) >= 0 }, nil
	case "<=":
		iter, err := tree.LowerBound(nil)
		if err != nil {
			return nil, nil, err
		}
		return iter, func(k []byte) bool { return bytes.Compare(k, key) > 0 }, nil
	default:
		return nil, nil, errs.Newf(errs.KindInternal, "unsupported index comparison %q", hint.Op)
	}
}

// resultColumns reports the output column names of a SELECT plan's root,
// walking down through SortNode/LimitNode to the ProjectNode/AggregateNode
// underneath — the only two node kinds that carry a Names slice.
func resultColumns(node sqlfront.Node) []string {
	switch n := node.(type) {
	case *sqlfront.SortNode:
		return resultColumns(n.Child)
	case *sqlfront.LimitNode:
		return resultColumns(n.Child)
	case *sqlfront.ProjectNode:
		return n.Names
	case *sqlfront.AggregateNode:
		return n.Names
	default:
		return nil
	}
}

func toIndexBindings(bindings []indexBinding) []exec.IndexBinding {
	out := make([]exec.IndexBinding, len(bindings))
	for i, b := range bindings {
		meta := b.meta
		out[i] = exec.IndexBinding{Meta: &meta, Tree: b.tree}
	}
	return out
}

func (db *Database) indexTree(table string, cols []string) (*bplustree.Tree, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	name := types.IndexName(table, cols)
	tree, ok := db.indexes[table][name]
	return tree, ok
}
