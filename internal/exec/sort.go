package exec

import (
	"fmt"
	"io"
	"sort"
)

// SortOp buffers its entire input and sorts by the ORDER BY columns of
// spec.md §6, one comparator per key in precedence order.
//
// Grounded on ShubhamNegi4-DaemonDB query_executor/joins.go's
// sortRowsByColumn (sort.Slice + compareValues); generalised from one
// column to a key list so multi-column ORDER BY actually breaks ties.
type SortOp struct {
	child Operator
	keys  []int
	desc  []bool

	rows   []Row
	loaded bool
	pos    int
}

func NewSortOp(child Operator, keys []int, desc []bool) *SortOp {
	return &SortOp{child: child, keys: keys, desc: desc}
}

func (s *SortOp) load() error {
	for {
		row, err := s.child.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		s.rows = append(s.rows, row)
	}
	sort.SliceStable(s.rows, func(i, j int) bool {
		for k, col := range s.keys {
			c := compareValues(s.rows[i].Values[col], s.rows[j].Values[col])
			if c == 0 {
				continue
			}
			if s.desc[k] {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	s.loaded = true
	return nil
}

func (s *SortOp) Next() (Row, error) {
	if !s.loaded {
		if err := s.load(); err != nil {
			return Row{}, err
		}
	}
	if s.pos >= len(s.rows) {
		return Row{}, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

// LimitOp caps the number of rows produced, after skipping offset many,
// per spec.md §6's LIMIT clause.
type LimitOp struct {
	child         Operator
	limit, offset int
	seen, emitted int
}

func NewLimitOp(child Operator, limit, offset int) *LimitOp {
	return &LimitOp{child: child, limit: limit, offset: offset}
}

func (l *LimitOp) Next() (Row, error) {
	if l.emitted >= l.limit {
		return Row{}, io.EOF
	}
	for l.seen < l.offset {
		if _, err := l.child.Next(); err != nil {
			return Row{}, err
		}
		l.seen++
	}
	row, err := l.child.Next()
	if err != nil {
		return Row{}, err
	}
	l.emitted++
	return row, nil
}

// compareValues orders two decoded column values, per spec.md §6's typed
// comparison rules (numeric types compare numerically; everything else
// falls back to its formatted string). Grounded on
// ShubhamNegi4-DaemonDB query_executor/type_conv.go's compareValues.
func compareValues(a, b interface{}) int {
	af, aok := numeric(a)
	bf, bok := numeric(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
