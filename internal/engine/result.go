package engine

// ResultKind classifies a Result the way leftmike-maho.v1's evaluate
// package splits a plan into Rows/Cmd/Stmt: a SELECT produces rows, a
// DML/DDL/transaction-control statement produces a row count or message,
// and EXIT/HELP are signals the CLI session loop must recognize on its
// own rather than just printing.
type ResultKind int

const (
	ResultRows ResultKind = iota
	ResultMessage
	ResultExit
	ResultHelp
)

// Result is what Session.Execute returns for one statement, tagged by
// Kind: Columns/Rows for a SELECT (and SHOW/DESC); for a DML statement
// RowsAffected plus a Message that states the count; a Message alone for
// DDL/transaction control.
type Result struct {
	Kind ResultKind

	Columns []string
	Rows    [][]interface{}

	RowsAffected int64
	Message      string
}

func rowsResult(columns []string, rows [][]interface{}) *Result {
	return &Result{Kind: ResultRows, Columns: columns, Rows: rows}
}

func messageResult(rowsAffected int64, msg string) *Result {
	return &Result{Kind: ResultMessage, RowsAffected: rowsAffected, Message: msg}
}

func exitResult() *Result { return &Result{Kind: ResultExit} }

func helpResult(text string) *Result { return &Result{Kind: ResultHelp, Message: text} }
