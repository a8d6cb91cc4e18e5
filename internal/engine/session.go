// Package engine's Session is one client's view of a Database: at most
// one active transaction, each statement autocommitted while none is
// active, per SPEC_FULL.md
// §3's Session type and spec.md §5's "each session... owns at most one
// active transaction".
package engine

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"reldb/internal/errs"
	"reldb/internal/exec"
	"reldb/internal/lock"
	"reldb/internal/sqlfront"
	"reldb/internal/txn"
	"reldb/internal/types"
)

const helpText = `Statements:
  SELECT ... FROM ... [WHERE ...] [ORDER BY ...] [LIMIT n]
  INSERT INTO t VALUES (...)
  UPDATE t SET col = expr [WHERE ...]
  DELETE FROM t [WHERE ...]
  CREATE TABLE t (col TYPE [, ...])
  DROP TABLE t
  CREATE INDEX t (col [, ...])
  DROP INDEX t (col [, ...])
  SHOW TABLES
  SHOW INDEX FROM t
  DESC t
  BEGIN / COMMIT / ABORT / ROLLBACK
  HELP
  EXIT`

// Session is one client connection's state against a shared Database.
type Session struct {
	ID  uuid.UUID
	db  *Database
	txn *txn.Transaction
}

func newSession(db *Database) *Session {
	return &Session{ID: uuid.New(), db: db}
}

// Execute parses and runs one SQL statement, per spec.md §6's grammar.
func (s *Session) Execute(sql string) (*Result, error) {
	stmt, err := sqlfront.ParseStatement(sql)
	if err != nil {
		return nil, err
	}
	node, err := sqlfront.Build(stmt, s.db.cat)
	if err != nil {
		return nil, err
	}
	return s.dispatch(node)
}

func (s *Session) dispatch(node sqlfront.Node) (*Result, error) {
	switch n := node.(type) {
	case *sqlfront.BeginNode:
		return s.beginTxn()
	case *sqlfront.CommitNode:
		return s.commitTxn()
	case *sqlfront.AbortNode:
		return s.abortTxn()
	case *sqlfront.RollbackNode:
		return s.abortTxn()
	case *sqlfront.ExitNode:
		if s.txn != nil {
			t := s.txn
			s.txn = nil
			if err := s.db.txns.Abort(t); err != nil {
				return nil, err
			}
		}
		return exitResult(), nil
	case *sqlfront.HelpNode:
		return helpResult(helpText), nil

	case *sqlfront.ShowTablesNode:
		return s.showTables()
	case *sqlfront.ShowIndexNode:
		return s.showIndex(n.Table)
	case *sqlfront.DescNode:
		return s.desc(n.Table)

	case *sqlfront.CreateTableNode:
		return s.withDDL(func() (*Result, error) {
			if err := s.db.createTable(n.Table, n.Columns); err != nil {
				return nil, err
			}
			return messageResult(0, fmt.Sprintf("table %q created", n.Table)), nil
		})
	case *sqlfront.DropTableNode:
		return s.withDDL(func() (*Result, error) {
			if err := s.db.dropTable(n.Table); err != nil {
				return nil, err
			}
			return messageResult(0, fmt.Sprintf("table %q dropped", n.Table)), nil
		})
	case *sqlfront.CreateIndexNode:
		return s.withTxn(func(t *txn.Transaction) (*Result, error) {
			if err := s.db.createIndex(t, n.Table, n.Columns); err != nil {
				return nil, err
			}
			return messageResult(0, fmt.Sprintf("index %s created", types.IndexName(n.Table, n.Columns))), nil
		})
	case *sqlfront.DropIndexNode:
		return s.withTxn(func(t *txn.Transaction) (*Result, error) {
			if err := s.db.dropIndex(t, n.Table, n.Columns); err != nil {
				return nil, err
			}
			return messageResult(0, fmt.Sprintf("index %s dropped", types.IndexName(n.Table, n.Columns))), nil
		})

	case *sqlfront.InsertNode:
		return s.withTxn(func(t *txn.Transaction) (*Result, error) { return s.execInsert(t, n) })
	case *sqlfront.UpdateNode:
		return s.withTxn(func(t *txn.Transaction) (*Result, error) { return s.execUpdate(t, n) })
	case *sqlfront.DeleteNode:
		return s.withTxn(func(t *txn.Transaction) (*Result, error) { return s.execDelete(t, n) })

	default:
		return s.withTxn(func(t *txn.Transaction) (*Result, error) { return s.execSelect(t, node) })
	}
}

// withDDL runs fn outside any transaction: table creation/drop is
// catalog-level and not part of spec.md §4.7's undo log (only
// CreateIndex/DropIndex are named rollback primitives).
func (s *Session) withDDL(fn func() (*Result, error)) (*Result, error) {
	return fn()
}

// withTxn runs fn under a transaction, starting an implicit one if the
// session has no active BEGIN. An implicit (autocommit) transaction is
// always committed on success and rolled back on any error. An explicit,
// user-started transaction is left active on an ordinary error (so the
// client can retry or explicitly ABORT) but is auto-aborted when the
// error is a TransactionAbort — the lock manager already chose to kill
// this transaction (deadlock prevention or a lock-on-shrinking
// violation), so there is nothing left for the client to retry within it.
func (s *Session) withTxn(fn func(t *txn.Transaction) (*Result, error)) (*Result, error) {
	implicit := s.txn == nil
	t := s.txn
	if implicit {
		var err error
		t, err = s.db.txns.Begin()
		if err != nil {
			return nil, err
		}
	}

	res, err := fn(t)
	if err != nil {
		if implicit {
			s.db.txns.Abort(t)
			return nil, err
		}
		var abortErr *errs.Error
		if errors.As(err, &abortErr) && abortErr.Kind == errs.KindTransactionAbort {
			s.db.txns.Abort(t)
			s.txn = nil
		}
		return nil, err
	}

	if implicit {
		if err := s.db.txns.Commit(t); err != nil {
			return nil, err
		}
	} else {
		s.txn = t
	}
	return res, nil
}

func (s *Session) beginTxn() (*Result, error) {
	if s.txn != nil {
		return nil, errs.New(errs.KindInternal, "a transaction is already active on this session")
	}
	t, err := s.db.txns.Begin()
	if err != nil {
		return nil, err
	}
	s.txn = t
	return messageResult(0, "transaction started"), nil
}

func (s *Session) commitTxn() (*Result, error) {
	if s.txn == nil {
		return nil, errs.New(errs.KindInternal, "no active transaction")
	}
	t := s.txn
	s.txn = nil
	if err := s.db.txns.Commit(t); err != nil {
		return nil, err
	}
	return messageResult(0, "transaction committed"), nil
}

func (s *Session) abortTxn() (*Result, error) {
	if s.txn == nil {
		return nil, errs.New(errs.KindInternal, "no active transaction")
	}
	t := s.txn
	s.txn = nil
	if err := s.db.txns.Abort(t); err != nil {
		return nil, err
	}
	return messageResult(0, "transaction aborted"), nil
}

func (s *Session) showTables() (*Result, error) {
	names := s.db.cat.Tables()
	rows := make([][]interface{}, len(names))
	for i, name := range names {
		rows[i] = []interface{}{name}
	}
	return rowsResult([]string{"table"}, rows), nil
}

func (s *Session) showIndex(table string) (*Result, error) {
	tm, err := s.db.cat.Table(table)
	if err != nil {
		return nil, err
	}
	rows := make([][]interface{}, len(tm.Indexes))
	for i, im := range tm.Indexes {
		rows[i] = []interface{}{types.IndexName(im.Table, im.Columns), strings.Join(im.Columns, ",")}
	}
	return rowsResult([]string{"index", "columns"}, rows), nil
}

func (s *Session) desc(table string) (*Result, error) {
	tm, err := s.db.cat.Table(table)
	if err != nil {
		return nil, err
	}
	rows := make([][]interface{}, len(tm.Columns))
	for i, col := range tm.Columns {
		typeName := col.Type.String()
		if col.Type == types.CharN {
			typeName = fmt.Sprintf("CHAR(%d)", col.Length)
		}
		rows[i] = []interface{}{col.Name, typeName, col.Indexed}
	}
	return rowsResult([]string{"column", "type", "indexed"}, rows), nil
}

func (s *Session) execSelect(t *txn.Transaction, node sqlfront.Node) (*Result, error) {
	op, err := compile(s.db, t, node)
	if err != nil {
		return nil, err
	}
	var rows [][]interface{}
	for {
		row, err := op.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row.Values)
	}
	return rowsResult(resultColumns(node), rows), nil
}

// execInsert leaves the table's IX lock to heap.File.Insert itself — it
// already takes it before each row write.
func (s *Session) execInsert(t *txn.Transaction, n *sqlfront.InsertNode) (*Result, error) {
	hf, err := s.db.tableHeap(n.Table.Name)
	if err != nil {
		return nil, err
	}
	op := exec.NewInsertOp(t, hf, n.Table.Meta, toIndexBindings(s.db.tableIndexes(n.Table.Meta)), n.Rows)
	count, err := drain(op)
	if err != nil {
		return nil, err
	}
	return messageResult(count, fmt.Sprintf("%d row(s) inserted", count)), nil
}

// execUpdate takes the table's IX lock itself: unlike Insert/Delete,
// heap.File.Update only acquires a row lock internally.
func (s *Session) execUpdate(t *txn.Transaction, n *sqlfront.UpdateNode) (*Result, error) {
	if err := s.db.locks.LockTable(t.ID, n.Table.Name, lock.IX); err != nil {
		return nil, err
	}
	hf, err := s.db.tableHeap(n.Table.Name)
	if err != nil {
		return nil, err
	}
	child, err := compile(s.db, t, n.Child)
	if err != nil {
		return nil, err
	}
	op := exec.NewUpdateOp(t, hf, n.Table.Meta, toIndexBindings(s.db.tableIndexes(n.Table.Meta)), child, n.Assign)
	count, err := drain(op)
	if err != nil {
		return nil, err
	}
	return messageResult(count, fmt.Sprintf("%d row(s) updated", count)), nil
}

// execDelete leaves the table's IX lock to heap.File.Delete itself.
func (s *Session) execDelete(t *txn.Transaction, n *sqlfront.DeleteNode) (*Result, error) {
	hf, err := s.db.tableHeap(n.Table.Name)
	if err != nil {
		return nil, err
	}
	child, err := compile(s.db, t, n.Child)
	if err != nil {
		return nil, err
	}
	op := exec.NewDeleteOp(t, hf, n.Table.Meta, toIndexBindings(s.db.tableIndexes(n.Table.Meta)), child)
	count, err := drain(op)
	if err != nil {
		return nil, err
	}
	return messageResult(count, fmt.Sprintf("%d row(s) deleted", count)), nil
}

// drain runs op to exhaustion, counting rows produced — every DML
// operator emits exactly one Row per row it wrote.
func drain(op exec.Operator) (int64, error) {
	count := int64(0)
	for {
		if _, err := op.Next(); err != nil {
			if err == io.EOF {
				return count, nil
			}
			return count, err
		}
		count++
	}
}
