package engine

import (
	"os"

	"reldb/internal/heap"
	"reldb/internal/txn"
	"reldb/internal/types"
)

// createTable registers name with the catalog, allocates its heap file,
// and opens it, per spec.md §6's CREATE TABLE statement.
func (db *Database) createTable(name string, cols []types.Column) error {
	cols, recSize := types.ComputeRecordSize(cols)
	tm, err := db.cat.CreateTable(name, cols, recSize)
	if err != nil {
		return err
	}
	if err := db.disk.OpenFileWithID(heapPath(db.dir, name), tm.HeapFileID); err != nil {
		return err
	}
	hf, err := heap.Open(db.pool, tm.HeapFileID, name, tm.RecordSize, db.locks, db.log)
	if err != nil {
		return err
	}
	db.mu.Lock()
	db.heaps[name] = hf
	db.mu.Unlock()
	return nil
}

// dropTable removes name from the catalog and drops its in-memory heap
// handle; the underlying file is left on disk (the catalog's own doc
// comment notes file deletion is the caller's responsibility, and
// spec.md names no requirement to reclaim the file eagerly).
func (db *Database) dropTable(name string) error {
	tm, err := db.cat.Table(name)
	if err != nil {
		return err
	}
	if err := db.cat.DropTable(name); err != nil {
		return err
	}
	db.mu.Lock()
	delete(db.heaps, name)
	delete(db.indexes, name)
	db.mu.Unlock()
	for _, im := range tm.Indexes {
		os.Remove(indexPath(db.dir, im))
	}
	return nil
}

// createIndex registers a new index on table over cols, then builds it
// from the table's current contents via the same lock-free system scan
// Open uses for post-recovery rebuilds. It registers undo-CreateIndex on t
// (spec.md §4.7: "undo-CreateIndex → drop index") so an abort mid-txn
// drops the index back out.
func (db *Database) createIndex(t *txn.Transaction, table string, cols []string) error {
	im, err := db.cat.CreateIndex(table, cols, true)
	if err != nil {
		return err
	}
	tm, err := db.cat.Table(table)
	if err != nil {
		return err
	}
	hf, err := db.tableHeap(table)
	if err != nil {
		return err
	}
	if err := db.rebuildIndex(tm, *im, hf); err != nil {
		return err
	}
	t.Record(txn.KindCreateIndex, table, func() error {
		return db.dropIndexNoUndo(table, cols)
	})
	return nil
}

// dropIndex removes an index from the catalog and closes/deletes its
// file, registering undo-DropIndex on t (spec.md §4.7: "undo-DropIndex →
// create index and repopulate from heap scan") so an abort mid-txn
// rebuilds it.
func (db *Database) dropIndex(t *txn.Transaction, table string, cols []string) error {
	if err := db.dropIndexNoUndo(table, cols); err != nil {
		return err
	}
	t.Record(txn.KindDropIndex, table, func() error {
		return db.createIndexNoUndo(table, cols)
	})
	return nil
}

func (db *Database) dropIndexNoUndo(table string, cols []string) error {
	tm, err := db.cat.Table(table)
	if err != nil {
		return err
	}
	indexName := types.IndexName(table, cols)
	if err := db.cat.DropIndex(table, indexName); err != nil {
		return err
	}
	for _, im := range tm.Indexes {
		if types.IndexName(im.Table, im.Columns) == indexName {
			db.mu.Lock()
			delete(db.indexes[table], indexName)
			db.mu.Unlock()
			os.Remove(indexPath(db.dir, im))
		}
	}
	return nil
}

func (db *Database) createIndexNoUndo(table string, cols []string) error {
	im, err := db.cat.CreateIndex(table, cols, true)
	if err != nil {
		return err
	}
	tm, err := db.cat.Table(table)
	if err != nil {
		return err
	}
	hf, err := db.tableHeap(table)
	if err != nil {
		return err
	}
	return db.rebuildIndex(tm, *im, hf)
}
