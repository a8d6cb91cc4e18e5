package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"reldb/internal/config"
	"reldb/internal/errs"
)

func openTestDB(t *testing.T, dir string) *Database {
	db, err := Open(dir, config.Default())
	require.NoError(t, err)
	return db
}

func execOK(t *testing.T, s *Session, sql string) *Result {
	res, err := s.Execute(sql)
	require.NoErrorf(t, err, "executing %q", sql)
	return res
}

// TestDDLAndRoundTripDML covers spec.md §8 scenario 1: CREATE TABLE,
// two INSERTs, then a SELECT * returning both rows in insertion order.
func TestDDLAndRoundTripDML(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	defer db.Close()
	s := db.NewSession()

	execOK(t, s, "CREATE TABLE t (a INT, b CHAR(8))")
	execOK(t, s, "INSERT INTO t VALUES (1, 'hello')")
	execOK(t, s, "INSERT INTO t VALUES (2, 'world')")

	res := execOK(t, s, "SELECT * FROM t")
	require.Len(t, res.Rows, 2)
	require.Equal(t, []interface{}{int32(1), "hello"}, res.Rows[0])
	require.Equal(t, []interface{}{int32(2), "world"}, res.Rows[1])
}

// TestIndexDrivenRange covers scenario 2: after CREATE INDEX t(a), a
// WHERE a >= 2 predicate is pushed down to an IndexScanOp and returns
// only the qualifying row.
func TestIndexDrivenRange(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	defer db.Close()
	s := db.NewSession()

	execOK(t, s, "CREATE TABLE t (a INT, b CHAR(8))")
	execOK(t, s, "INSERT INTO t VALUES (1, 'hello')")
	execOK(t, s, "INSERT INTO t VALUES (2, 'world')")
	execOK(t, s, "CREATE INDEX t (a)")

	res := execOK(t, s, "SELECT * FROM t WHERE a >= 2")
	require.Len(t, res.Rows, 1)
	require.Equal(t, []interface{}{int32(2), "world"}, res.Rows[0])
}

// TestUniqueViolationLeavesTableUnchanged covers scenario 3: a duplicate
// key insert into a unique index fails with KindUniqueViolation and the
// table's row count is unaffected.
func TestUniqueViolationLeavesTableUnchanged(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	defer db.Close()
	s := db.NewSession()

	execOK(t, s, "CREATE TABLE t (a INT, b CHAR(8))")
	execOK(t, s, "INSERT INTO t VALUES (1, 'hello')")
	execOK(t, s, "INSERT INTO t VALUES (2, 'world')")
	execOK(t, s, "CREATE INDEX t (a)")

	_, err := s.Execute("INSERT INTO t VALUES (2, 'dupe')")
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, errs.KindUniqueViolation, e.Kind)

	res := execOK(t, s, "SELECT COUNT(*) AS c FROM t")
	require.Equal(t, []interface{}{int64(2)}, res.Rows[0])
}

// TestTransactionRollback covers scenario 4: an explicit BEGIN/UPDATE/
// ABORT leaves the row's prior value in place.
func TestTransactionRollback(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	defer db.Close()
	s := db.NewSession()

	execOK(t, s, "CREATE TABLE t (a INT, b CHAR(8))")
	execOK(t, s, "INSERT INTO t VALUES (1, 'hello')")

	execOK(t, s, "BEGIN")
	execOK(t, s, "UPDATE t SET b = 'XXXXXXXX' WHERE a = 1")
	execOK(t, s, "ABORT")

	res := execOK(t, s, "SELECT b FROM t WHERE a = 1")
	require.Equal(t, []interface{}{"hello"}, res.Rows[0])
}

// TestCrashRecovery covers scenario 5: a committed transaction survives a
// simulated crash (the Database is never cleanly Closed, so its dirty
// buffer-pool pages never reach disk) and reappears after Open replays
// the WAL.
func TestCrashRecovery(t *testing.T) {
	dir := t.TempDir()

	db := openTestDB(t, dir)
	s := db.NewSession()
	execOK(t, s, "CREATE TABLE t (a INT, b CHAR(8))")
	execOK(t, s, "INSERT INTO t VALUES (1, 'hello')")
	execOK(t, s, "INSERT INTO t VALUES (2, 'world')")

	s.Execute("BEGIN")
	execOK(t, s, "INSERT INTO t VALUES (3, 'three')")
	execOK(t, s, "COMMIT")
	// No db.Close(): simulates a crash before a clean shutdown flushed
	// every dirty page.

	db2 := openTestDB(t, dir)
	defer db2.Close()
	s2 := db2.NewSession()

	res := execOK(t, s2, "SELECT * FROM t WHERE a = 3")
	require.Len(t, res.Rows, 1)
	require.Equal(t, []interface{}{int32(3), "three"}, res.Rows[0])
}

// TestAggregateOrderAndLimit covers scenario 6 on the three-row state
// scenario 5 ends with, built here in a fresh database that is cleanly
// closed and reopened: COUNT(*) over three rows, then ORDER BY a DESC
// LIMIT 2.
func TestAggregateOrderAndLimit(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	s := db.NewSession()
	execOK(t, s, "CREATE TABLE t (a INT, b CHAR(8))")
	execOK(t, s, "INSERT INTO t VALUES (1, 'hello')")
	execOK(t, s, "INSERT INTO t VALUES (2, 'world')")
	execOK(t, s, "INSERT INTO t VALUES (3, 'three')")
	db.Close()

	db2 := openTestDB(t, dir)
	defer db2.Close()
	s2 := db2.NewSession()

	res := execOK(t, s2, "SELECT COUNT(*) AS c FROM t")
	require.Equal(t, []interface{}{int64(3)}, res.Rows[0])

	res = execOK(t, s2, "SELECT a FROM t ORDER BY a DESC LIMIT 2")
	require.Len(t, res.Rows, 2)
	require.Equal(t, []interface{}{int32(3)}, res.Rows[0])
	require.Equal(t, []interface{}{int32(2)}, res.Rows[1])
}
