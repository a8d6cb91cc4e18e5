// Package exec is the Executor framework of SPEC_FULL.md §4.9: every
// statement compiles to a small tree of operators sharing one iterator
// contract, `Next() (Row, error)` returning `(Row{}, io.EOF)` at
// exhaustion — the Volcano/iterator model, as opposed to the teacher's
// query_executor, which materialises each statement's whole result as a
// `[]map[string]interface{}` up front (see executor.go/exec_select.go).
// Operators here instead pull one row at a time from their children,
// which is what lets SortOp/AggregateOp/NestedLoopJoinOp each decide for
// themselves whether they need to materialise (they do) without forcing
// every operator in the tree to.
//
// Grounded on ShubhamNegi4-DaemonDB query_executor/{exec_select.go,
// joins.go,helpers.go} for the operations themselves (scan, filter,
// project, join, sort) and on internal/heap.Scanner's own Next() (RID,
// []byte, error) shape, which this package's Row-producing operators
// extend uniformly.
package exec

import (
	"io"

	"reldb/internal/bplustree"
	"reldb/internal/heap"
	"reldb/internal/types"
)

// Row is one operator's output tuple: the decoded values (base-table
// column order for a scan, concatenated left+right for a join,
// aggregate-output order for AggregateOp) plus the originating RID when
// there is a single, unambiguous one — DML operators need it to address
// the underlying heap record; a join or aggregate result leaves it zero.
type Row struct {
	Values []interface{}
	RID    types.RID
}

// Operator is the iterator every executor node implements.
type Operator interface {
	Next() (Row, error)
}

// SeqScanOp drives internal/heap.Scanner, per spec.md §4.2's "sequential
// scan" contract.
type SeqScanOp struct {
	scanner *heap.Scanner
	meta    *types.TableMeta
}

func NewSeqScanOp(hf *heap.File, txnID uint64, meta *types.TableMeta) *SeqScanOp {
	return &SeqScanOp{scanner: hf.Scan(txnID), meta: meta}
}

func (s *SeqScanOp) Next() (Row, error) {
	rid, buf, err := s.scanner.Next()
	if err != nil {
		return Row{}, err
	}
	row, err := types.Decode(s.meta, buf)
	if err != nil {
		return Row{}, err
	}
	return Row{Values: row.Values, RID: rid}, nil
}

// IndexScanOp drives a bplustree.Iterator for a WHERE predicate the
// planner recognised as index-backed (col >=/>/=/<=/< const), per
// spec.md §4.3. stop, when non-nil, is checked against each key and ends
// the scan the first time it reports true — the upper-bound half of a
// range predicate that LowerBound/UpperBound's starting point alone
// can't express.
type IndexScanOp struct {
	iter *bplustree.Iterator
	hf   *heap.File
	meta *types.TableMeta
	txn  uint64
	stop func(key []byte) bool
}

func NewIndexScanOp(iter *bplustree.Iterator, hf *heap.File, txnID uint64, meta *types.TableMeta, stop func([]byte) bool) *IndexScanOp {
	return &IndexScanOp{iter: iter, hf: hf, meta: meta, txn: txnID, stop: stop}
}

func (s *IndexScanOp) Next() (Row, error) {
	key, rid, ok, err := s.iter.Next()
	if err != nil {
		return Row{}, err
	}
	if !ok || (s.stop != nil && s.stop(key)) {
		return Row{}, io.EOF
	}
	buf, err := s.hf.Get(s.txn, rid, false)
	if err != nil {
		return Row{}, err
	}
	row, err := types.Decode(s.meta, buf)
	if err != nil {
		return Row{}, err
	}
	return Row{Values: row.Values, RID: rid}, nil
}

// FilterOp drops every row pred rejects, per the WHERE clause of
// spec.md §6 that the planner didn't push into an index scan.
type FilterOp struct {
	child Operator
	pred  func(Row) (bool, error)
}

func NewFilterOp(child Operator, pred func(Row) (bool, error)) *FilterOp {
	return &FilterOp{child: child, pred: pred}
}

func (f *FilterOp) Next() (Row, error) {
	for {
		row, err := f.child.Next()
		if err != nil {
			return Row{}, err
		}
		ok, err := f.pred(row)
		if err != nil {
			return Row{}, err
		}
		if ok {
			return row, nil
		}
	}
}

// ProjectOp reorders/selects columns per the SELECT list of spec.md §6.
type ProjectOp struct {
	child   Operator
	indexes []int
}

func NewProjectOp(child Operator, indexes []int) *ProjectOp {
	return &ProjectOp{child: child, indexes: indexes}
}

func (p *ProjectOp) Next() (Row, error) {
	row, err := p.child.Next()
	if err != nil {
		return Row{}, err
	}
	out := make([]interface{}, len(p.indexes))
	for i, idx := range p.indexes {
		out[i] = row.Values[idx]
	}
	return Row{Values: out, RID: row.RID}, nil
}
