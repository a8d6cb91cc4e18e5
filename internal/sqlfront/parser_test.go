package sqlfront

import (
	"reflect"
	"testing"
)

func TestParseStatementCoversEveryGrammarProduction(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want Statement
	}{
		{"show tables", "SHOW TABLES", &ShowTablesStmt{}},
		{"show index", "SHOW INDEX FROM t", &ShowIndexStmt{Table: "t"}},
		{"desc", "DESC t", &DescStmt{Table: "t"}},
		{"begin", "BEGIN", &BeginStmt{}},
		{"commit", "COMMIT", &CommitStmt{}},
		{"abort", "ABORT", &AbortStmt{}},
		{"rollback", "ROLLBACK", &RollbackStmt{}},
		{"exit", "EXIT", &ExitStmt{}},
		{"help", "HELP", &HelpStmt{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := ParseStatement(tt.sql)
			if err != nil {
				t.Fatalf("ParseStatement(%q): %v", tt.sql, err)
			}
			if !reflect.DeepEqual(stmt, tt.want) {
				t.Fatalf("ParseStatement(%q) = %#v, want %#v", tt.sql, stmt, tt.want)
			}
		})
	}
}

func TestParseCreateTableWithCharLength(t *testing.T) {
	stmt, err := ParseStatement("CREATE TABLE t ( a INT, b CHAR(8) )")
	if err != nil {
		t.Fatal(err)
	}
	ct, ok := stmt.(*CreateTableStmt)
	if !ok {
		t.Fatalf("want *CreateTableStmt, got %T", stmt)
	}
	if ct.Table != "t" || len(ct.Columns) != 2 {
		t.Fatalf("unexpected statement: %+v", ct)
	}
	if ct.Columns[1].TypeName != "CHAR" || ct.Columns[1].Length != 8 {
		t.Fatalf("want CHAR(8), got %+v", ct.Columns[1])
	}
}

func TestParseInsertValues(t *testing.T) {
	stmt, err := ParseStatement("INSERT INTO t VALUES (1, 'hello', -3.5)")
	if err != nil {
		t.Fatal(err)
	}
	ins, ok := stmt.(*InsertStmt)
	if !ok {
		t.Fatalf("want *InsertStmt, got %T", stmt)
	}
	if len(ins.Values) != 3 {
		t.Fatalf("want 3 values, got %d", len(ins.Values))
	}
	if lit := ins.Values[2].(*Literal); lit.Value.(float64) != -3.5 {
		t.Fatalf("want -3.5, got %v", lit.Value)
	}
}

func TestParseSelectWithWhereOrderLimit(t *testing.T) {
	stmt, err := ParseStatement("SELECT a, b FROM t WHERE a >= 2 ORDER BY a DESC LIMIT 5")
	if err != nil {
		t.Fatal(err)
	}
	sel, ok := stmt.(*SelectStmt)
	if !ok {
		t.Fatalf("want *SelectStmt, got %T", stmt)
	}
	if len(sel.Items) != 2 || sel.Tables[0] != "t" {
		t.Fatalf("unexpected select shape: %+v", sel)
	}
	if sel.Where == nil {
		t.Fatal("expected WHERE clause")
	}
	if len(sel.Order) != 1 || !sel.Order[0].Desc {
		t.Fatalf("want one descending ORDER BY item, got %+v", sel.Order)
	}
	if !sel.HasLimit || sel.Limit != 5 {
		t.Fatalf("want LIMIT 5, got %+v", sel)
	}
}

func TestParseSelectCountStarWithAlias(t *testing.T) {
	stmt, err := ParseStatement("SELECT COUNT(*) AS c FROM t")
	if err != nil {
		t.Fatal(err)
	}
	sel := stmt.(*SelectStmt)
	if len(sel.Items) != 1 || sel.Items[0].Agg != "COUNT" || !sel.Items[0].AggStar || sel.Items[0].Alias != "c" {
		t.Fatalf("unexpected item: %+v", sel.Items[0])
	}
}

func TestParseUpdateWithWhere(t *testing.T) {
	stmt, err := ParseStatement("UPDATE t SET b='XXXXXXXX' WHERE a=1")
	if err != nil {
		t.Fatal(err)
	}
	upd := stmt.(*UpdateStmt)
	if upd.Table != "t" || len(upd.Assignments) != 1 || upd.Assignments[0].Column != "b" {
		t.Fatalf("unexpected update: %+v", upd)
	}
	if upd.Where == nil {
		t.Fatal("expected WHERE clause")
	}
}

func TestParseStatementReportsErrorForMalformedInput(t *testing.T) {
	tests := []string{
		"SELECT * students",
		"CREATE TABLE t id int",
		"INSERT INTO t VALUES 1, 2",
		"",
	}
	for _, sql := range tests {
		if _, err := ParseStatement(sql); err == nil {
			t.Errorf("ParseStatement(%q): want error, got nil", sql)
		}
	}
}
