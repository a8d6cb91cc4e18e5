package sqlfront

import (
	"testing"

	"reldb/internal/catalog"
	"reldb/internal/errs"
	"reldb/internal/types"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cols, recSize := types.ComputeRecordSize([]types.Column{
		{Table: "t", Name: "a", Type: types.Int64},
		{Table: "t", Name: "b", Type: types.CharN, Length: 8},
	})
	if _, err := cat.CreateTable("t", cols, recSize); err != nil {
		t.Fatal(err)
	}
	if _, err := cat.CreateIndex("t", []string{"a"}, true); err != nil {
		t.Fatal(err)
	}
	return cat
}

func mustBuild(t *testing.T, cat *catalog.Catalog, sql string) Node {
	t.Helper()
	stmt, err := ParseStatement(sql)
	if err != nil {
		t.Fatalf("parse %q: %v", sql, err)
	}
	node, err := Build(stmt, cat)
	if err != nil {
		t.Fatalf("build %q: %v", sql, err)
	}
	return node
}

func TestBuildSelectPushesEqualityIntoIndexScan(t *testing.T) {
	cat := newTestCatalog(t)
	node := mustBuild(t, cat, "SELECT * FROM t WHERE a = 2")

	proj, ok := node.(*ProjectNode)
	if !ok {
		t.Fatalf("want *ProjectNode, got %T", node)
	}
	scan, ok := proj.Child.(*ScanNode)
	if !ok {
		t.Fatalf("want *ScanNode under projection, got %T", proj.Child)
	}
	if scan.Index == nil || scan.Index.Op != "=" {
		t.Fatalf("want an equality index hint, got %+v", scan.Index)
	}
}

func TestBuildSelectWithoutIndexedPredicateFilters(t *testing.T) {
	cat := newTestCatalog(t)
	node := mustBuild(t, cat, "SELECT a FROM t WHERE b = 'x'")

	proj := node.(*ProjectNode)
	filter, ok := proj.Child.(*FilterNode)
	if !ok {
		t.Fatalf("want *FilterNode, got %T", proj.Child)
	}
	if _, ok := filter.Child.(*ScanNode); !ok {
		t.Fatalf("want *ScanNode under filter, got %T", filter.Child)
	}
}

func TestBuildSelectUnknownColumnErrors(t *testing.T) {
	cat := newTestCatalog(t)
	stmt, err := ParseStatement("SELECT nope FROM t")
	if err != nil {
		t.Fatal(err)
	}
	_, err = Build(stmt, cat)
	if e, ok := errs.Of(err); !ok || e.Kind != errs.KindColumnNotFound {
		t.Fatalf("want KindColumnNotFound, got %v", err)
	}
}

func TestBuildInsertCoercesAndRejectsStringForIntColumn(t *testing.T) {
	cat := newTestCatalog(t)
	node := mustBuild(t, cat, "INSERT INTO t VALUES (1, 'hi')")
	ins := node.(*InsertNode)
	if len(ins.Rows) != 1 || ins.Rows[0].Values[0].(int64) != 1 {
		t.Fatalf("unexpected insert node: %+v", ins)
	}

	stmt, err := ParseStatement("INSERT INTO t VALUES ('nope', 'hi')")
	if err != nil {
		t.Fatal(err)
	}
	_, err = Build(stmt, cat)
	if e, ok := errs.Of(err); !ok || e.Kind != errs.KindIncompatibleType {
		t.Fatalf("want KindIncompatibleType, got %v", err)
	}
}

func TestBuildAggregateSelectProducesAggregateNode(t *testing.T) {
	cat := newTestCatalog(t)
	node := mustBuild(t, cat, "SELECT COUNT(*) AS c, SUM(a) AS s FROM t GROUP BY b")
	agg, ok := node.(*AggregateNode)
	if !ok {
		t.Fatalf("want *AggregateNode, got %T", node)
	}
	if len(agg.GroupBy) != 1 || len(agg.Specs) != 2 {
		t.Fatalf("unexpected aggregate node: %+v", agg)
	}
}

func TestBuildDeleteWithWhere(t *testing.T) {
	cat := newTestCatalog(t)
	node := mustBuild(t, cat, "DELETE FROM t WHERE a = 1")
	del, ok := node.(*DeleteNode)
	if !ok {
		t.Fatalf("want *DeleteNode, got %T", node)
	}
	if _, ok := del.Child.(*FilterNode); !ok {
		t.Fatalf("want a filtered child, got %T", del.Child)
	}
}
