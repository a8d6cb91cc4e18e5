package exec

import (
	"fmt"
	"io"
)

// AggFunc enumerates the aggregate functions of spec.md §6.
type AggFunc int

const (
	AggCount AggFunc = iota
	AggSum
	AggMin
	AggMax
)

// AggSpec is one aggregate in the SELECT list: Col is the input column
// index (ignored for COUNT(*), signalled by ColStar).
type AggSpec struct {
	Func    AggFunc
	Col     int
	ColStar bool
}

// AggregateOp computes spec.md §6's COUNT/MAX/MIN/SUM, with an optional
// GROUP BY. Output rows are group-by column values followed by each
// aggregate's result, in declaration order.
//
// Grounded on ShubhamNegi4-DaemonDB query_executor/executor.go's
// aggregate handling (group keys built as a formatted-string map, same
// approach taken here via groupKey) but restructured as a pull operator
// that materialises groups on first Next() rather than computing the
// whole result inline inside ExecuteSelect.
type AggregateOp struct {
	child    Operator
	groupBy  []int
	specs    []AggSpec
	loaded   bool
	order    []string
	groups   map[string]*aggState
	outPos   int
}

type aggState struct {
	keyVals []interface{}
	counts  []int64
	sums    []float64
	mins    []interface{}
	maxs    []interface{}
	seen    []bool
}

func NewAggregateOp(child Operator, groupBy []int, specs []AggSpec) *AggregateOp {
	return &AggregateOp{child: child, groupBy: groupBy, specs: specs, groups: make(map[string]*aggState)}
}

func (a *AggregateOp) load() error {
	for {
		row, err := a.child.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		key := groupKey(row, a.groupBy)
		st, ok := a.groups[key]
		if !ok {
			st = &aggState{
				sums: make([]float64, len(a.specs)),
				mins: make([]interface{}, len(a.specs)),
				maxs: make([]interface{}, len(a.specs)),
				seen: make([]bool, len(a.specs)),
				counts: make([]int64, len(a.specs)),
			}
			for _, idx := range a.groupBy {
				st.keyVals = append(st.keyVals, row.Values[idx])
			}
			a.groups[key] = st
			a.order = append(a.order, key)
		}
		for i, spec := range a.specs {
			var v interface{}
			if !spec.ColStar {
				v = row.Values[spec.Col]
			}
			st.counts[i]++
			if spec.ColStar {
				continue
			}
			f, numOK := numeric(v)
			switch spec.Func {
			case AggSum:
				if numOK {
					st.sums[i] += f
				}
			case AggMin:
				if !st.seen[i] || compareValues(v, st.mins[i]) < 0 {
					st.mins[i] = v
				}
			case AggMax:
				if !st.seen[i] || compareValues(v, st.maxs[i]) > 0 {
					st.maxs[i] = v
				}
			}
			st.seen[i] = true
		}
	}
	a.loaded = true
	return nil
}

func (a *AggregateOp) Next() (Row, error) {
	if !a.loaded {
		if err := a.load(); err != nil {
			return Row{}, err
		}
	}
	if a.outPos >= len(a.order) {
		return Row{}, io.EOF
	}
	st := a.groups[a.order[a.outPos]]
	a.outPos++

	out := append([]interface{}{}, st.keyVals...)
	for i, spec := range a.specs {
		switch spec.Func {
		case AggCount:
			out = append(out, st.counts[i])
		case AggSum:
			out = append(out, st.sums[i])
		case AggMin:
			out = append(out, st.mins[i])
		case AggMax:
			out = append(out, st.maxs[i])
		}
	}
	return Row{Values: out}, nil
}

func groupKey(row Row, groupBy []int) string {
	if len(groupBy) == 0 {
		return "\x00" // single implicit group when there's no GROUP BY
	}
	key := ""
	for _, idx := range groupBy {
		key += fmt.Sprintf("\x1f%v", row.Values[idx])
	}
	return key
}
