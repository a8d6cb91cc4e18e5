// Package sqlfront is the SQL front end of SPEC_FULL.md §4.10: a
// hand-rolled lexer and recursive-descent parser for spec.md §6's
// grammar, followed by a planner that resolves every column reference
// against a catalog snapshot, applies spec.md §6's type-coercion table to
// every literal, and emits a Node tree internal/engine compiles 1:1 into
// internal/exec operators.
//
// This package carries none of the core's invariants (no locking, no
// WAL), matching spec.md §1's explicit "parser/planner is not part of the
// five-subsystem core" scoping — it only reads the catalog, never the
// heap or the log.
package sqlfront

import (
	"sort"

	"reldb/internal/catalog"
	"reldb/internal/errs"
	"reldb/internal/exec"
	"reldb/internal/types"
)

// Node is any logical-plan node Build produces. internal/engine type-
// switches over the concrete types below to compile each into the
// matching internal/exec operator (or, for DDL/utility statements, to the
// matching catalog/session action).
type Node interface{}

// TableRef names one FROM-list table and its column layout's offset
// within the plan's combined row (the concatenation of every FROM table's
// columns, left to right, that join/aggregate/project nodes index into).
type TableRef struct {
	Name   string
	Meta   *types.TableMeta
	Offset int
}

// IndexHint marks a ScanNode as index-backed: Columns names one of
// Table's single-column indexes (multi-column indexes are never chosen),
// and internal/engine drives a bplustree.Iterator over it instead of a
// full heap scan, per SPEC_FULL.md §4.9: "=" and ">=" start at
// LowerBound(Key) ("=" stops at the first different key), ">" at
// UpperBound(Key), and "<"/"<=" start at the first key and stop once Key
// is passed.
type IndexHint struct {
	Columns []string
	Op      string
	Key     []byte
}

type ScanNode struct {
	Table TableRef
	Index *IndexHint
}

type FilterNode struct {
	Child Node
	Pred  func([]interface{}) (bool, error)
}

type JoinNode struct {
	Left, Right Node
	Pred        func([]interface{}) (bool, error)
}

type ProjectNode struct {
	Child   Node
	Indexes []int
	Names   []string
}

type SortNode struct {
	Child Node
	Keys  []int
	Desc  []bool
}

type LimitNode struct {
	Child  Node
	Limit  int
	Offset int
}

type AggregateNode struct {
	Child   Node
	GroupBy []int
	Specs   []exec.AggSpec
	Names   []string
}

type InsertNode struct {
	Table TableRef
	Rows  []types.Row
}

type UpdateNode struct {
	Table  TableRef
	Child  Node
	Assign func([]interface{}) []interface{}
}

type DeleteNode struct {
	Table TableRef
	Child Node
}

type CreateTableNode struct {
	Table   string
	Columns []types.Column
}

type DropTableNode struct{ Table string }

type CreateIndexNode struct {
	Table   string
	Columns []string
}

type DropIndexNode struct {
	Table   string
	Columns []string
}

type ShowTablesNode struct{}
type ShowIndexNode struct{ Table string }
type DescNode struct{ Table string }
type BeginNode struct{}
type CommitNode struct{}
type AbortNode struct{}
type RollbackNode struct{}
type ExitNode struct{}
type HelpNode struct{}

// resolver resolves ColumnRef against the FROM list's combined row.
type resolver struct {
	tables []TableRef
}

func (r *resolver) columnCount() int {
	n := 0
	for _, t := range r.tables {
		n += len(t.Meta.Columns)
	}
	return n
}

// resolve finds ref's position in the combined row, erroring on an
// unknown or ambiguous (unqualified, present on >1 table) reference.
func (r *resolver) resolve(ref ColumnRef) (int, types.ColType, error) {
	var (
		idx   = -1
		ct    types.ColType
		found int
	)
	for _, t := range r.tables {
		if ref.Table != "" && ref.Table != t.Name {
			continue
		}
		for i, c := range t.Meta.Columns {
			if c.Name != ref.Name {
				continue
			}
			idx = t.Offset + i
			ct = c.Type
			found++
		}
	}
	if found == 0 {
		return 0, 0, errs.Newf(errs.KindColumnNotFound, "column %q not found", ref.Name)
	}
	if found > 1 {
		return 0, 0, errs.Newf(errs.KindAmbiguousColumn, "column %q is ambiguous", ref.Name)
	}
	return idx, ct, nil
}

// Build resolves stmt against cat and produces the Node tree
// internal/engine compiles into operators.
func Build(stmt Statement, cat *catalog.Catalog) (Node, error) {
	switch s := stmt.(type) {
	case *SelectStmt:
		return buildSelect(s, cat)
	case *InsertStmt:
		return buildInsert(s, cat)
	case *UpdateStmt:
		return buildUpdate(s, cat)
	case *DeleteStmt:
		return buildDelete(s, cat)
	case *CreateTableStmt:
		return buildCreateTable(s)
	case *DropTableStmt:
		return &DropTableNode{Table: s.Table}, nil
	case *CreateIndexStmt:
		return &CreateIndexNode{Table: s.Table, Columns: s.Columns}, nil
	case *DropIndexStmt:
		return &DropIndexNode{Table: s.Table, Columns: s.Columns}, nil
	case *ShowTablesStmt:
		return &ShowTablesNode{}, nil
	case *ShowIndexStmt:
		return &ShowIndexNode{Table: s.Table}, nil
	case *DescStmt:
		return &DescNode{Table: s.Table}, nil
	case *BeginStmt:
		return &BeginNode{}, nil
	case *CommitStmt:
		return &CommitNode{}, nil
	case *AbortStmt:
		return &AbortNode{}, nil
	case *RollbackStmt:
		return &RollbackNode{}, nil
	case *ExitStmt:
		return &ExitNode{}, nil
	case *HelpStmt:
		return &HelpNode{}, nil
	default:
		return nil, errs.Newf(errs.KindInternal, "unhandled statement type %T", stmt)
	}
}

func buildCreateTable(s *CreateTableStmt) (Node, error) {
	cols := make([]types.Column, len(s.Columns))
	for i, cd := range s.Columns {
		ct, length, err := types.ParseColType(cd.TypeName, cd.Length)
		if err != nil {
			return nil, err
		}
		cols[i] = types.Column{Table: s.Table, Name: cd.Name, Type: ct, Length: length}
	}
	return &CreateTableNode{Table: s.Table, Columns: cols}, nil
}

func loadTableRefs(cat *catalog.Catalog, names []string) ([]TableRef, error) {
	refs := make([]TableRef, len(names))
	offset := 0
	for i, name := range names {
		tm, err := cat.Table(name)
		if err != nil {
			return nil, err
		}
		refs[i] = TableRef{Name: name, Meta: tm, Offset: offset}
		offset += len(tm.Columns)
	}
	return refs, nil
}

func buildSelect(s *SelectStmt, cat *catalog.Catalog) (Node, error) {
	tables, err := loadTableRefs(cat, s.Tables)
	if err != nil {
		return nil, err
	}
	res := &resolver{tables: tables}

	var root Node = &ScanNode{Table: tables[0]}
	for i := 1; i < len(tables); i++ {
		root = &JoinNode{Left: root, Right: &ScanNode{Table: tables[i]}, Pred: alwaysTrue}
	}

	if s.Where != nil {
		leaves := flattenAnd(s.Where)
		// A single-table query with an index-backed conjunct (the earliest
		// one found) can drive an IndexScanOp instead of a full scan, per
		// SPEC_FULL.md §4.9. The pushed-down leaf is left out of the
		// residual filter, since the index range already enforces it;
		// every other leaf becomes part of that filter.
		residual := leaves
		if len(tables) == 1 {
			if hint, leafIdx, ok := findIndexHint(leaves, tables[0], res); ok {
				scan := root.(*ScanNode)
				scan.Index = hint
				residual = append(append([]Expr{}, leaves[:leafIdx]...), leaves[leafIdx+1:]...)
			}
		}
		if len(residual) > 0 {
			pred, err := buildPredicate(residual, res)
			if err != nil {
				return nil, err
			}
			root = &FilterNode{Child: root, Pred: pred}
		}
	}

	if isAggregateSelect(s.Items) {
		groupBy := make([]int, len(s.GroupBy))
		for i, g := range s.GroupBy {
			idx, _, err := res.resolve(g)
			if err != nil {
				return nil, err
			}
			groupBy[i] = idx
		}
		specs := make([]exec.AggSpec, len(s.Items))
		names := make([]string, len(s.Items))
		for i, item := range s.Items {
			if len(s.GroupBy) > 0 && item.Agg != "" && item.Alias == "" {
				return nil, errs.Newf(errs.KindInternal, "%s in a GROUP BY query needs AS <alias>", item.Agg)
			}
			spec, name, err := buildAggSpec(item, res)
			if err != nil {
				return nil, err
			}
			specs[i] = spec
			names[i] = name
		}
		// AggregateOp emits group-by columns first, then each aggregate,
		// so the output column names follow the same order.
		groupNames := make([]string, len(s.GroupBy))
		for i, g := range s.GroupBy {
			groupNames[i] = g.Name
		}
		outNames := append(groupNames, names...)
		root = &AggregateNode{Child: root, GroupBy: groupBy, Specs: specs, Names: outNames}
		return finishSelect(s, root, outNames, res)
	}

	indexes, names, err := projectIndexes(s.Items, res)
	if err != nil {
		return nil, err
	}
	root = &ProjectNode{Child: root, Indexes: indexes, Names: names}
	return finishSelect(s, root, names, res)
}

// finishSelect applies ORDER BY and LIMIT, which operate on the
// already-projected output row, so Order columns are resolved by name
// against names rather than against the original table columns.
func finishSelect(s *SelectStmt, root Node, names []string, res *resolver) (Node, error) {
	if len(s.Order) > 0 {
		keys := make([]int, len(s.Order))
		desc := make([]bool, len(s.Order))
		for i, o := range s.Order {
			idx := indexOfName(names, o.Column.Name)
			if idx < 0 {
				return nil, errs.Newf(errs.KindColumnNotFound, "ORDER BY column %q not in result", o.Column.Name)
			}
			keys[i] = idx
			desc[i] = o.Desc
		}
		root = &SortNode{Child: root, Keys: keys, Desc: desc}
	}
	if s.HasLimit {
		root = &LimitNode{Child: root, Limit: s.Limit}
	}
	return root, nil
}

func indexOfName(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func isAggregateSelect(items []SelectItem) bool {
	for _, it := range items {
		if it.Agg != "" {
			return true
		}
	}
	return false
}

func buildAggSpec(item SelectItem, res *resolver) (exec.AggSpec, string, error) {
	name := item.Alias
	var fn exec.AggFunc
	switch item.Agg {
	case "COUNT":
		fn = exec.AggCount
	case "SUM":
		fn = exec.AggSum
	case "MAX":
		fn = exec.AggMax
	case "MIN":
		fn = exec.AggMin
	default:
		return exec.AggSpec{}, "", errs.Newf(errs.KindInternal, "unknown aggregate %q", item.Agg)
	}
	if item.AggStar {
		if name == "" {
			name = "COUNT(*)"
		}
		return exec.AggSpec{Func: fn, ColStar: true}, name, nil
	}
	idx, _, err := res.resolve(item.Column)
	if err != nil {
		return exec.AggSpec{}, "", err
	}
	if name == "" {
		name = item.Column.Name
	}
	return exec.AggSpec{Func: fn, Col: idx}, name, nil
}

func projectIndexes(items []SelectItem, res *resolver) ([]int, []string, error) {
	if len(items) == 1 && items[0].Star {
		n := res.columnCount()
		indexes := make([]int, n)
		names := make([]string, n)
		i := 0
		for _, t := range res.tables {
			for _, c := range t.Meta.Columns {
				indexes[i] = i
				names[i] = c.Name
				i++
			}
		}
		return indexes, names, nil
	}
	indexes := make([]int, len(items))
	names := make([]string, len(items))
	for i, item := range items {
		idx, _, err := res.resolve(item.Column)
		if err != nil {
			return nil, nil, err
		}
		indexes[i] = idx
		name := item.Alias
		if name == "" {
			name = item.Column.Name
		}
		names[i] = name
	}
	return indexes, names, nil
}

func alwaysTrue([]interface{}) (bool, error) { return true, nil }

// flattenAnd splits a WHERE expression into its top-level AND conjuncts.
func flattenAnd(e Expr) []Expr {
	b, ok := e.(*BinaryExpr)
	if !ok || b.Op != "AND" {
		return []Expr{e}
	}
	return append(flattenAnd(b.Left), flattenAnd(b.Right)...)
}

func buildPredicate(leaves []Expr, res *resolver) (func([]interface{}) (bool, error), error) {
	var checks []func([]interface{}) (bool, error)
	for _, leaf := range leaves {
		b, ok := leaf.(*BinaryExpr)
		if !ok {
			return nil, errs.Newf(errs.KindInternal, "malformed predicate")
		}
		check, err := buildComparison(b, res)
		if err != nil {
			return nil, err
		}
		checks = append(checks, check)
	}
	return func(row []interface{}) (bool, error) {
		for _, c := range checks {
			ok, err := c(row)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}, nil
}

// buildComparison compiles one `col OP literal`, `literal OP col`, or
// `col OP col` leaf into a closure over the combined row.
func buildComparison(b *BinaryExpr, res *resolver) (func([]interface{}) (bool, error), error) {
	leftRef, leftIsCol := b.Left.(ColumnRef)
	rightRef, rightIsCol := b.Right.(ColumnRef)
	leftLit, leftIsLit := asLiteral(b.Left)
	rightLit, rightIsLit := asLiteral(b.Right)

	switch {
	case leftIsCol && rightIsLit:
		idx, ct, err := res.resolve(leftRef)
		if err != nil {
			return nil, err
		}
		op := b.Op
		return func(row []interface{}) (bool, error) {
			cmp, err := compareTyped(ct, row[idx], rightLit)
			if err != nil {
				return false, err
			}
			return applyOp(op, cmp), nil
		}, nil
	case rightIsCol && leftIsLit:
		idx, ct, err := res.resolve(rightRef)
		if err != nil {
			return nil, err
		}
		op := flipOp(b.Op)
		return func(row []interface{}) (bool, error) {
			cmp, err := compareTyped(ct, row[idx], leftLit)
			if err != nil {
				return false, err
			}
			return applyOp(op, cmp), nil
		}, nil
	case leftIsCol && rightIsCol:
		li, _, err := res.resolve(leftRef)
		if err != nil {
			return nil, err
		}
		ri, _, err := res.resolve(rightRef)
		if err != nil {
			return nil, err
		}
		op := b.Op
		return func(row []interface{}) (bool, error) {
			lf, lok := asFloat(row[li])
			rf, rok := asFloat(row[ri])
			var cmp int
			if lok && rok {
				cmp = signOf(lf - rf)
			} else {
				ls, _ := row[li].(string)
				rs, _ := row[ri].(string)
				cmp = stringCompare(ls, rs)
			}
			return applyOp(op, cmp), nil
		}, nil
	default:
		return nil, errs.Newf(errs.KindInternal, "unsupported predicate shape")
	}
}

func asLiteral(e Expr) (interface{}, bool) {
	if l, ok := e.(*Literal); ok {
		return l.Value, true
	}
	return nil, false
}

func flipOp(op string) string {
	switch op {
	case "<":
		return ">"
	case "<=":
		return ">="
	case ">":
		return "<"
	case ">=":
		return "<="
	default:
		return op
	}
}

// findIndexHint looks for a leaf of the form `indexed-col OP literal` (or
// the reverse) whose column set matches one of table's indexes exactly,
// preferring an earlier leaf over a later one.
func findIndexHint(leaves []Expr, table TableRef, res *resolver) (*IndexHint, int, bool) {
	for i, leaf := range leaves {
		b, ok := leaf.(*BinaryExpr)
		if !ok {
			continue
		}
		var (
			ref ColumnRef
			lit interface{}
			op  string
		)
		if cr, ok := b.Left.(ColumnRef); ok {
			if l, ok := asLiteral(b.Right); ok {
				ref, lit, op = cr, l, b.Op
			}
		} else if cr, ok := b.Right.(ColumnRef); ok {
			if l, ok := asLiteral(b.Left); ok {
				ref, lit, op = cr, l, flipOp(b.Op)
			}
		}
		if op == "" || op == "<>" {
			continue
		}
		for _, im := range table.Meta.Indexes {
			if len(im.Columns) != 1 || im.Columns[0] != ref.Name {
				continue
			}
			col, ok := table.Meta.Column(ref.Name)
			if !ok {
				continue
			}
			coerced, err := CoerceForColumn(col, lit)
			if err != nil {
				continue
			}
			key := buildSingleColumnKey(table.Meta, col, coerced)
			return &IndexHint{Columns: im.Columns, Op: op, Key: key}, i, true
		}
	}
	return nil, 0, false
}

func buildSingleColumnKey(meta *types.TableMeta, col types.Column, v interface{}) []byte {
	vals := make([]interface{}, len(meta.Columns))
	vals[meta.ColumnIndex(col.Name)] = v
	return types.EncodeKey(meta, []string{col.Name}, types.Row{Values: vals})
}

func buildInsert(s *InsertStmt, cat *catalog.Catalog) (Node, error) {
	tm, err := cat.Table(s.Table)
	if err != nil {
		return nil, err
	}
	if len(s.Values) != len(tm.Columns) {
		return nil, errs.Newf(errs.KindInvalidValueCount, "table %s expects %d values, got %d", s.Table, len(tm.Columns), len(s.Values))
	}
	vals := make([]interface{}, len(s.Values))
	for i, e := range s.Values {
		lit, ok := asLiteral(e)
		if !ok {
			return nil, errs.Newf(errs.KindIncompatibleType, "INSERT values must be literals")
		}
		coerced, err := CoerceForColumn(tm.Columns[i], lit)
		if err != nil {
			return nil, err
		}
		vals[i] = coerced
	}
	return &InsertNode{
		Table: TableRef{Name: s.Table, Meta: tm},
		Rows:  []types.Row{{Values: vals}},
	}, nil
}

func buildUpdate(s *UpdateStmt, cat *catalog.Catalog) (Node, error) {
	tm, err := cat.Table(s.Table)
	if err != nil {
		return nil, err
	}
	tables := []TableRef{{Name: s.Table, Meta: tm}}
	res := &resolver{tables: tables}

	type assign struct {
		idx int
		val interface{}
	}
	assigns := make([]assign, len(s.Assignments))
	for i, a := range s.Assignments {
		idx := tm.ColumnIndex(a.Column)
		if idx < 0 {
			return nil, errs.Newf(errs.KindColumnNotFound, "column %q not found on table %q", a.Column, s.Table)
		}
		lit, ok := asLiteral(a.Value)
		if !ok {
			return nil, errs.Newf(errs.KindIncompatibleType, "SET values must be literals")
		}
		coerced, err := CoerceForColumn(tm.Columns[idx], lit)
		if err != nil {
			return nil, err
		}
		assigns[i] = assign{idx: idx, val: coerced}
	}
	assignFn := func(row []interface{}) []interface{} {
		out := append([]interface{}{}, row...)
		for _, a := range assigns {
			out[a.idx] = a.val
		}
		return out
	}

	var child Node = &ScanNode{Table: tables[0]}
	if s.Where != nil {
		pred, err := buildPredicate(flattenAnd(s.Where), res)
		if err != nil {
			return nil, err
		}
		child = &FilterNode{Child: child, Pred: pred}
	}
	return &UpdateNode{Table: tables[0], Child: child, Assign: assignFn}, nil
}

func buildDelete(s *DeleteStmt, cat *catalog.Catalog) (Node, error) {
	tm, err := cat.Table(s.Table)
	if err != nil {
		return nil, err
	}
	tables := []TableRef{{Name: s.Table, Meta: tm}}
	res := &resolver{tables: tables}

	var child Node = &ScanNode{Table: tables[0]}
	if s.Where != nil {
		pred, err := buildPredicate(flattenAnd(s.Where), res)
		if err != nil {
			return nil, err
		}
		child = &FilterNode{Child: child, Pred: pred}
	}
	return &DeleteNode{Table: tables[0], Child: child}, nil
}

// sortColumnNames returns cols' names in alphabetical order. It has no
// callers; DESC lists columns in declaration order.
func sortColumnNames(cols []types.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	sort.Strings(names)
	return names
}
