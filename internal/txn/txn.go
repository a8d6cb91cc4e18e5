// Package txn is the Transaction Manager of spec.md §4.7: begin/commit/
// abort lifecycle, a write-set recording every mutation a transaction has
// made, and reverse-order rollback on abort.
//
// Grounded on ShubhamNegi4-DaemonDB storage_engine/transaction_manager
// (TxnManager.{Begin,Commit,Abort}, atomic id issuance, an activeTxns map)
// but the teacher's own comment on Abort admits the gap SPEC_FULL.md asks
// to close: "In a full implementation, this would also roll back all
// writes... For now, rollback is implicit." This package makes that
// explicit: each write-set entry carries an undo closure (the idiomatic Go
// replacement for the teacher's RecordInsert/RecordUpdate-plus-RowPointer
// bookkeeping, which existed only to let a C++-style rollback helper find
// the row again) and Abort runs every closure in reverse order before
// releasing locks.
package txn

import (
	"sync"

	"reldb/internal/errs"
	"reldb/internal/lock"
	"reldb/internal/wal"
)

// State is a transaction's lifecycle state, per spec.md §4.7.
type State int

const (
	Active State = iota
	Committed
	Aborted
)

// Kind tags a write-set entry for introspection/logging; the actual
// compensating action lives in the entry's undo closure.
type Kind int

const (
	KindInsert Kind = iota
	KindDelete
	KindUpdate
	KindCreateIndex
	KindDropIndex
)

type writeSetEntry struct {
	kind  Kind
	table string
	undo  func() error
}

// Transaction is one in-flight (or just-finished) transaction.
type Transaction struct {
	ID      uint64
	mu      sync.Mutex
	state   State
	lastLSN uint64
	writes  []writeSetEntry
}

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Record appends an undo closure to the write-set. The executor calls
// this immediately after each successful heap/index mutation, passing a
// closure that reverses exactly that mutation.
func (t *Transaction) Record(kind Kind, table string, undo func() error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = append(t.writes, writeSetEntry{kind: kind, table: table, undo: undo})
}

// LastLSN returns the LSN of this transaction's most recent log record,
// the prev_lsn a caller's next log record should chain from.
func (t *Transaction) LastLSN() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastLSN
}

// SetLastLSN is called by executor operators after they append a
// PageImage/Insert/Delete/Update record directly (e.g. via internal/heap),
// to keep the transaction's prev_lsn chain current.
func (t *Transaction) SetLastLSN(lsn uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastLSN = lsn
}

// Manager is the Transaction Manager: it issues transaction ids, tracks
// active transactions, and drives commit/abort through the Lock Manager
// and Log Manager.
type Manager struct {
	mu     sync.Mutex
	active map[uint64]*Transaction

	locks *lock.Manager
	log   *wal.Manager
}

func New(locks *lock.Manager, log *wal.Manager) *Manager {
	return &Manager{active: make(map[uint64]*Transaction), locks: locks, log: log}
}

// Begin starts a new transaction: issues an id, registers it with the
// Lock Manager in the Growing phase, and appends a Begin log record.
func (m *Manager) Begin() (*Transaction, error) {
	txn := &Transaction{ID: wal.NextTxnID(), state: Active}
	m.locks.Begin(txn.ID)

	lsn, err := m.log.Append(&wal.Record{Header: wal.Header{Type: wal.TBegin, TxnID: txn.ID, PrevLSN: wal.InvalidLSN}})
	if err != nil {
		return nil, err
	}
	txn.lastLSN = lsn

	m.mu.Lock()
	m.active[txn.ID] = txn
	m.mu.Unlock()
	return txn, nil
}

// Get returns a still-active transaction by id, or (nil, false).
func (m *Manager) Get(id uint64) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.active[id]
	return txn, ok
}

// Commit writes the Commit/End records (flushing the log synchronously —
// spec.md's "synchronous flush-on-commit"), then releases every lock the
// transaction holds.
func (m *Manager) Commit(txn *Transaction) error {
	txn.mu.Lock()
	if txn.state != Active {
		txn.mu.Unlock()
		return errs.New(errs.KindTransactionAbort, "transaction is not active")
	}
	txn.mu.Unlock()

	lsn, err := m.log.Append(&wal.Record{Header: wal.Header{Type: wal.TCommit, TxnID: txn.ID, PrevLSN: txn.LastLSN()}})
	if err != nil {
		return err
	}
	txn.SetLastLSN(lsn)

	lsn, err = m.log.Append(&wal.Record{Header: wal.Header{Type: wal.TEnd, TxnID: txn.ID, PrevLSN: txn.LastLSN()}})
	if err != nil {
		return err
	}
	txn.SetLastLSN(lsn)

	if err := m.log.Flush(); err != nil {
		return err
	}

	m.locks.EnterShrinking(txn.ID)
	m.locks.Release(txn.ID)

	txn.mu.Lock()
	txn.state = Committed
	txn.mu.Unlock()

	m.mu.Lock()
	delete(m.active, txn.ID)
	m.mu.Unlock()
	return nil
}

// Abort writes an Abort record, runs every write-set undo closure in
// reverse order (each followed by an UndoNext/CLR record; internal/recovery
// does not read these records, and undoes a rollback cut short by a crash
// from the transaction's PageImage records instead), writes an End record,
// and releases locks.
func (m *Manager) Abort(txn *Transaction) error {
	txn.mu.Lock()
	if txn.state != Active {
		txn.mu.Unlock()
		return nil // idempotent, mirrors the teacher's TxnManager.Abort
	}
	txn.state = Aborted
	writes := txn.writes
	txn.mu.Unlock()

	lsn, err := m.log.Append(&wal.Record{Header: wal.Header{Type: wal.TAbort, TxnID: txn.ID, PrevLSN: txn.LastLSN()}})
	if err != nil {
		return err
	}
	txn.SetLastLSN(lsn)

	for i := len(writes) - 1; i >= 0; i-- {
		if err := writes[i].undo(); err != nil {
			return errs.Wrap(errs.KindInternal, err, "rollback failed")
		}
		lsn, err := m.log.Append(&wal.Record{
			Header:      wal.Header{Type: wal.TUndoNext, TxnID: txn.ID, PrevLSN: txn.LastLSN()},
			UndoNextLSN: txn.LastLSN(),
		})
		if err != nil {
			return err
		}
		txn.SetLastLSN(lsn)
	}

	lsn, err = m.log.Append(&wal.Record{Header: wal.Header{Type: wal.TEnd, TxnID: txn.ID, PrevLSN: txn.LastLSN()}})
	if err != nil {
		return err
	}
	txn.SetLastLSN(lsn)

	if err := m.log.Flush(); err != nil {
		return err
	}

	m.locks.EnterShrinking(txn.ID)
	m.locks.Release(txn.ID)

	m.mu.Lock()
	delete(m.active, txn.ID)
	m.mu.Unlock()
	return nil
}

// Active returns a snapshot of every currently active transaction id.
// Nothing in the repository calls it; recovery works from the WAL alone
// and there is no checkpointing.
func (m *Manager) Active() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint64, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}
