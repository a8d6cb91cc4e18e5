// Package lock is the Lock Manager of spec.md §4.6: table-level
// {IS,IX,S,SIX,X} locks, row-level {S,X} locks, two-phase (Growing/
// Shrinking) transaction state tracking, and an abort-on-conflict-at-
// acquire deadlock policy.
//
// The teacher repo carries no lock manager at all; this package is
// grounded on original_source/src/transaction/concurrency/lock_manager.cpp,
// whose LockRequestQueue/GroupLockMode machinery is real but whose row
// functions are stub no-ops and whose table-mode handling only tracks S/X.
// Per the decisions in SPEC_FULL.md §9, this package completes that
// skeleton: full IS/IX/S/SIX/X compatibility, real per-row locks, the
// general upgrade rule, and wound-wait/abort-on-conflict-at-acquire in
// place of blocking wait-for-graph detection.
package lock

import (
	"sync"

	"reldb/internal/errs"
)

// TableMode is a table-level lock mode, ordered weakest to strongest for
// upgrade comparisons.
type TableMode int

const (
	IS TableMode = iota
	IX
	S
	SIX
	X
)

func (m TableMode) String() string {
	return [...]string{"IS", "IX", "S", "SIX", "X"}[m]
}

// RowMode is a row-level lock mode.
type RowMode int

const (
	RowS RowMode = iota
	RowX
)

// tableCompat[requested][held] reports whether a requester in mode
// `requested` may join a group already held in mode `held`, per the
// standard multi-granularity lock table (Gray et al.).
var tableCompat = [5][5]bool{
	IS:  {IS: true, IX: true, S: true, SIX: true, X: false},
	IX:  {IS: true, IX: true, S: false, SIX: false, X: false},
	S:   {IS: true, IX: false, S: true, SIX: false, X: false},
	SIX: {IS: true, IX: false, S: false, SIX: false, X: false},
	X:   {IS: false, IX: false, S: false, SIX: false, X: false},
}

var rowCompat = [2][2]bool{
	RowS: {RowS: true, RowX: false},
	RowX: {RowS: false, RowX: false},
}

// TxnState is the Growing/Shrinking phase of two-phase locking.
type TxnState int

const (
	Growing TxnState = iota
	Shrinking
)

type tableHolder struct {
	mode TableMode
}

type tableEntry struct {
	holders map[uint64]tableHolder
}

func (e *tableEntry) groupMode() (TableMode, bool) {
	strongest := TableMode(-1)
	any := false
	for _, h := range e.holders {
		any = true
		if h.mode > strongest {
			strongest = h.mode
		}
	}
	return strongest, any
}

type rowEntry struct {
	holders map[uint64]RowMode
}

// Manager tracks every table- and row-lock grant, plus the set each
// transaction holds (so Release(txnID) can release them all at
// commit/abort time, and so LockRow can check whether the caller already
// holds a compatible or strictly weaker lock before re-requesting one).
type Manager struct {
	mu sync.Mutex

	tables map[string]*tableEntry
	rows   map[RowKey]*rowEntry

	txnTables map[uint64]map[string]TableMode
	txnRows   map[uint64]map[RowKey]RowMode
	txnState  map[uint64]TxnState
}

// RowKey identifies a row lock: table name plus an opaque row identity
// (types.RID, passed through as an interface{} comparable value so lock
// stays independent of internal/types).
type RowKey struct {
	Table string
	RID   interface{}
}

func New() *Manager {
	return &Manager{
		tables:    make(map[string]*tableEntry),
		rows:      make(map[RowKey]*rowEntry),
		txnTables: make(map[uint64]map[string]TableMode),
		txnRows:   make(map[uint64]map[RowKey]RowMode),
		txnState:  make(map[uint64]TxnState),
	}
}

// Begin registers txnID as Growing. Safe to call more than once.
func (m *Manager) Begin(txnID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txnState[txnID]; !ok {
		m.txnState[txnID] = Growing
	}
}

// EnterShrinking transitions a transaction to the Shrinking phase: per
// spec.md §5, no further lock acquisition is permitted once it has
// released any lock, modelled here as an explicit transition the
// transaction manager calls the moment it starts releasing locks (i.e. at
// commit/abort, immediately before Release).
func (m *Manager) EnterShrinking(txnID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txnState[txnID] = Shrinking
}

// LockTable acquires a table-level lock for txnID in the given mode,
// upgrading in place if the transaction already holds a weaker mode.
// Returns an abort error immediately on conflict rather than blocking —
// the "abort-on-conflict-at-acquire" policy spec.md §9 calls for in place
// of timeout/wait-for-graph deadlock detection.
func (m *Manager) LockTable(txnID uint64, table string, mode TableMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.txnState[txnID] == Shrinking {
		return errs.Abort(errs.ReasonLockOnShrinking, "lock requested after shrinking phase began")
	}

	held, already := m.txnTables[txnID][table]
	if already {
		if held >= mode {
			return nil
		}
		return m.upgradeTableLocked(txnID, table, held, mode)
	}

	e, ok := m.tables[table]
	if !ok {
		e = &tableEntry{holders: make(map[uint64]tableHolder)}
		m.tables[table] = e
	}
	for other, h := range e.holders {
		if other == txnID {
			continue
		}
		if !tableCompat[mode][h.mode] {
			return errs.Abort(errs.ReasonDeadlockPrevention, "table lock conflict on "+table)
		}
	}
	e.holders[txnID] = tableHolder{mode: mode}
	m.grantTableLocked(txnID, table, mode)
	return nil
}

// upgradeTableLocked replaces txnID's existing grant with a stronger mode,
// per spec.md §4.6's general upgrade rule: allowed only if every other
// holder's mode is compatible with the target mode.
func (m *Manager) upgradeTableLocked(txnID uint64, table string, from, to TableMode) error {
	e := m.tables[table]
	for other, h := range e.holders {
		if other == txnID {
			continue
		}
		if !tableCompat[to][h.mode] {
			return errs.Abort(errs.ReasonUpgrade, "table lock upgrade conflict on "+table)
		}
	}
	e.holders[txnID] = tableHolder{mode: to}
	m.grantTableLocked(txnID, table, to)
	return nil
}

func (m *Manager) grantTableLocked(txnID uint64, table string, mode TableMode) {
	if m.txnTables[txnID] == nil {
		m.txnTables[txnID] = make(map[string]TableMode)
	}
	m.txnTables[txnID][table] = mode
}

// LockRow acquires a row-level lock, same abort-on-conflict policy as
// LockTable. A transaction is expected to already hold the corresponding
// table-level intention lock (IS for RowS, IX for RowX); LockRow itself
// does not check that — the executor acquires both, in that order, per
// spec.md §5.
func (m *Manager) LockRow(txnID uint64, key RowKey, mode RowMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.txnState[txnID] == Shrinking {
		return errs.Abort(errs.ReasonLockOnShrinking, "row lock requested after shrinking phase began")
	}

	held, already := m.txnRows[txnID][key]
	if already {
		if held == mode || (held == RowX && mode == RowS) {
			return nil
		}
		// upgrade RowS -> RowX
		e := m.rows[key]
		for other, h := range e.holders {
			if other == txnID {
				continue
			}
			if !rowCompat[RowX][h] {
				return errs.Abort(errs.ReasonUpgrade, "row lock upgrade conflict")
			}
		}
		e.holders[txnID] = RowX
		m.txnRows[txnID][key] = RowX
		return nil
	}

	e, ok := m.rows[key]
	if !ok {
		e = &rowEntry{holders: make(map[uint64]RowMode)}
		m.rows[key] = e
	}
	for other, h := range e.holders {
		if other == txnID {
			continue
		}
		if !rowCompat[mode][h] {
			return errs.Abort(errs.ReasonDeadlockPrevention, "row lock conflict")
		}
	}
	e.holders[txnID] = mode
	if m.txnRows[txnID] == nil {
		m.txnRows[txnID] = make(map[RowKey]RowMode)
	}
	m.txnRows[txnID][key] = mode
	return nil
}

// Release drops every table- and row-lock txnID holds, per spec.md §4.6's
// commit/abort-time bulk release, and clears its bookkeeping.
func (m *Manager) Release(txnID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for table := range m.txnTables[txnID] {
		if e, ok := m.tables[table]; ok {
			delete(e.holders, txnID)
			if len(e.holders) == 0 {
				delete(m.tables, table)
			}
		}
	}
	for key := range m.txnRows[txnID] {
		if e, ok := m.rows[key]; ok {
			delete(e.holders, txnID)
			if len(e.holders) == 0 {
				delete(m.rows, key)
			}
		}
	}
	delete(m.txnTables, txnID)
	delete(m.txnRows, txnID)
	delete(m.txnState, txnID)
}

// HeldTableMode reports the mode txnID currently holds on table, if any.
func (m *Manager) HeldTableMode(txnID uint64, table string) (TableMode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mode, ok := m.txnTables[txnID][table]
	return mode, ok
}
