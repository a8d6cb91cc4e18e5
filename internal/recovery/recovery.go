// Package recovery is the ARIES-style Recovery Manager of spec.md §4.5:
// analysis, redo, and undo over the WAL, run once at startup before the
// engine accepts any statements.
//
// Because every mutation internal/heap makes is logged as a full
// before/after PageImage (spec.md §4.2's "emit PageImage log records"),
// redo and undo both collapse to "write the right image if the page's
// on-disk LSN says it hasn't happened yet" — physiological logging in
// place of the teacher's approach of replaying typed DML operations
// against the live heap/catalog API.
//
// Grounded on ShubhamNegi4-DaemonDB storage_engine/recover_wal.go, whose
// single-pass committed/aborted-set scan followed by forward redo and
// reverse undo is the same three-phase shape spec.md §4.5 asks for; the
// page-LSN staleness check here ("pageLSN >= op.LSN ⇒ skip") is lifted
// directly from that file's replayInsert/replayDelete/replayUpdate.
//
// Index pages are not separately WAL-logged (internal/bplustree has no
// log hooks — see DESIGN.md); recovery restores heap (table data) state
// only. The caller (internal/engine) rebuilds every index from the
// recovered heap immediately afterwards, which is simpler and no less
// correct than replaying B+-tree page mutations, at the cost of a full
// index rebuild on every restart.
package recovery

import (
	"reldb/internal/buffer"
	"reldb/internal/catalog"
	"reldb/internal/disk"
	"reldb/internal/errs"
	"reldb/internal/page"
	"reldb/internal/wal"
)

// Recover replays every PageImage record in the WAL against the heap
// files named by cat, then undoes every transaction that never reached
// an End record (crashed active, or aborted but interrupted mid-
// rollback). It returns the LSN the caller's internal/wal.Manager should
// resume assigning from (one past the highest LSN seen in the log, or 1
// for an empty log).
func Recover(dm *disk.Manager, pool *buffer.Pool, cat *catalog.Catalog) (uint64, error) {
	reader, err := wal.NewReader(dm)
	if err != nil {
		return 0, err
	}

	var records []*wal.Record
	for {
		rec, err := reader.Next()
		if err != nil {
			return 0, errs.Wrap(errs.KindInternal, err, "recovery: read WAL")
		}
		if rec == nil {
			break
		}
		records = append(records, rec)
	}

	nextLSN := uint64(1)
	began := make(map[uint64]bool)
	ended := make(map[uint64]bool)
	for _, r := range records {
		if r.LSN >= nextLSN {
			nextLSN = r.LSN + 1
		}
		switch r.Type {
		case wal.TBegin:
			began[r.TxnID] = true
		case wal.TEnd:
			ended[r.TxnID] = true
		}
	}

	// Redo: unconditional for every logged page image, committed or not —
	// classic ARIES redoes everything and relies on the undo pass to fix
	// up losers afterwards.
	for _, r := range records {
		if r.Type != wal.TPageImage {
			continue
		}
		if err := applyImage(pool, cat, r, r.AfterImage, r.LSN); err != nil {
			return 0, err
		}
	}

	losers := make(map[uint64]bool)
	for txnID := range began {
		if !ended[txnID] {
			losers[txnID] = true
		}
	}
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if r.Type != wal.TPageImage || !losers[r.TxnID] {
			continue
		}
		if err := applyImage(pool, cat, r, r.BeforeImage, r.LSN); err != nil {
			return 0, err
		}
	}

	return nextLSN, nil
}

// applyImage writes image into r.TableName's r.PageNo if the page's
// current on-disk LSN is older than lsn (the redo/undo idempotency check
// every ARIES pass relies on to be safely re-runnable).
func applyImage(pool *buffer.Pool, cat *catalog.Catalog, r *wal.Record, image []byte, lsn uint64) error {
	if len(image) == 0 {
		return nil
	}
	// Resolve the table's current heap file id via the catalog (page 0 is
	// the heap file's own header page, using the same file id as every
	// other page in the file).
	tm, err := cat.Table(r.TableName)
	if err != nil {
		// Table was dropped or never committed after this record was
		// written — nothing to redo/undo onto.
		return nil
	}

	id := page.PackID(tm.HeapFileID, r.PageNo)
	pg, err := pool.Fetch(id)
	if err != nil {
		return err
	}
	if pg.LSN() >= lsn {
		return pool.Unpin(id, false)
	}
	copy(pg.Data[:], image)
	pg.Dirty = true
	if err := pool.Unpin(id, true); err != nil {
		return err
	}
	return pool.Flush(id)
}
