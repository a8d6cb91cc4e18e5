package sqlfront

// Statement is any parsed top-level statement of spec.md §6's grammar.
//
// Grounded on ShubhamNegi4-DaemonDB query_parser/parser/ast.go's
// `Statement interface{}` marker plus per-statement struct shape
// (SelectStmt/InsertStmt/UpdateStmt/DropStmt), extended with the DDL,
// DELETE, transaction-control, and utility statements spec.md §6 adds.
type Statement interface{}

// Expr is a WHERE/SET-value expression: ColumnRef, Literal, or BinaryExpr.
type Expr interface{}

// ColumnRef names a column, optionally table-qualified ("t.col").
type ColumnRef struct {
	Table string
	Name  string
}

// Literal is a parsed constant: int64, float64, or string.
type Literal struct {
	Value interface{}
}

// BinaryExpr combines two expressions with a comparison or AND operator:
// Op is one of "=", "<>", "<", "<=", ">", ">=", "AND".
type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

type ColumnDef struct {
	Name     string
	TypeName string
	Length   int
}

type CreateTableStmt struct {
	Table   string
	Columns []ColumnDef
}

type DropTableStmt struct {
	Table string
}

type CreateIndexStmt struct {
	Table   string
	Columns []string
}

type DropIndexStmt struct {
	Table   string
	Columns []string
}

type InsertStmt struct {
	Table  string
	Values []Expr
}

type DeleteStmt struct {
	Table string
	Where Expr
}

type Assignment struct {
	Column string
	Value  Expr
}

type UpdateStmt struct {
	Table       string
	Assignments []Assignment
	Where       Expr
}

// SelectItem is one entry of a SELECT list: either a bare/aggregate
// column reference or "*".
type SelectItem struct {
	Star    bool
	Agg     string // "", "COUNT", "MAX", "MIN", "SUM"
	AggStar bool   // COUNT(*)
	Column  ColumnRef
	Alias   string
}

type OrderItem struct {
	Column ColumnRef
	Desc   bool
}

type SelectStmt struct {
	Items    []SelectItem
	Tables   []string
	Where    Expr
	GroupBy  []ColumnRef
	Order    []OrderItem
	Limit    int
	HasLimit bool
}

type ShowTablesStmt struct{}

type ShowIndexStmt struct {
	Table string
}

type DescStmt struct {
	Table string
}

type BeginStmt struct{}
type CommitStmt struct{}
type AbortStmt struct{}
type RollbackStmt struct{}
type ExitStmt struct{}
type HelpStmt struct{}
