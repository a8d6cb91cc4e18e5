package wal

import (
	"sync"
	"sync/atomic"

	"reldb/internal/disk"
	"reldb/internal/errs"
)

// Manager is the Log Manager of spec.md §4.4: it assigns monotonic LSNs,
// buffers encoded records in memory, and flushes them to the WAL file on
// disk.Manager either when the buffer fills or when a caller demands
// durability up to a given LSN (FlushUpTo, satisfying buffer.LogFlusher,
// and the synchronous flush-on-commit spec.md requires).
//
// Grounded on ShubhamNegi4-DaemonDB wal_manager/wal.go's
// LogManager{buffer, flushedLSN, AppendRecord, Flush}, generalised from its
// per-call disk append to a buffered append that only syncs when asked.
type Manager struct {
	mu sync.Mutex

	disk *disk.Manager

	nextLSN    uint64 // next LSN to assign
	flushedLSN uint64 // highest LSN known durable on disk
	bufOff     int64  // WAL file offset the in-memory buffer starts at

	buf []byte // encoded records not yet synced to disk

	maxBuf int
}

const defaultMaxBuf = 1 << 20 // 1 MiB, matches the teacher's segment-rotation threshold order of magnitude

// New creates a Log Manager over an already-open WAL file (see
// disk.Manager.OpenWAL). startLSN/startOffset resume after a recovery scan;
// pass (1, 0) for a brand-new database.
func New(dm *disk.Manager, startLSN uint64, startOffset int64) *Manager {
	return &Manager{
		disk:       dm,
		nextLSN:    startLSN,
		flushedLSN: startLSN - 1,
		bufOff:     startOffset,
		maxBuf:     defaultMaxBuf,
	}
}

// Append assigns rec.LSN, encodes it, and buffers it. It does not block on
// I/O: callers that need durability call Flush or FlushUpTo.
func (m *Manager) Append(rec *Record) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lsn := m.nextLSN
	m.nextLSN++
	rec.LSN = lsn

	enc := rec.Encode()
	m.buf = append(m.buf, enc...)

	if len(m.buf) >= m.maxBuf {
		if err := m.flushLocked(); err != nil {
			return lsn, err
		}
	}
	return lsn, nil
}

// Flush forces every buffered record to disk and fsyncs the WAL file.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked()
}

// FlushUpTo satisfies buffer.LogFlusher: block until every record with
// lsn ≤ target is durable. Since records are flushed strictly in order,
// this collapses to "flush if we haven't reached target yet".
func (m *Manager) FlushUpTo(target uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if target <= m.flushedLSN {
		return nil
	}
	return m.flushLocked()
}

func (m *Manager) flushLocked() error {
	if len(m.buf) == 0 {
		return nil
	}
	if _, err := m.disk.AppendWAL(m.buf); err != nil {
		return err
	}
	if err := m.disk.SyncWAL(); err != nil {
		return err
	}
	m.bufOff += int64(len(m.buf))
	m.flushedLSN = m.nextLSN - 1
	m.buf = m.buf[:0]
	return nil
}

// FlushedLSN reports the highest LSN guaranteed durable.
func (m *Manager) FlushedLSN() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushedLSN
}

// NextTxnID hands out process-wide monotonic transaction ids, per spec.md
// §9's decision to use atomic 64-bit counters instead of a persisted
// counter file.
var txnIDCounter uint64

func NextTxnID() uint64 {
	return atomic.AddUint64(&txnIDCounter, 1)
}

// Reader replays the WAL from the beginning, used by internal/recovery's
// Analysis/Redo/Undo passes.
type Reader struct {
	disk *disk.Manager
	off  int64
	size int64
}

func NewReader(dm *disk.Manager) (*Reader, error) {
	size, err := dm.WALSize()
	if err != nil {
		return nil, err
	}
	return &Reader{disk: dm, size: size}, nil
}

// Next returns the next record in the WAL, or io.EOF-shaped via a nil
// record and nil error when the log is exhausted (recovery treats a short
// read at the tail as "last record was never fully flushed", not an
// error — see internal/recovery).
func (r *Reader) Next() (*Record, error) {
	if r.off >= r.size {
		return nil, nil
	}
	head, err := r.disk.ReadWALAt(r.off, HeaderSize)
	if err != nil {
		return nil, err
	}
	if len(head) < HeaderSize {
		r.off = r.size
		return nil, nil
	}
	totalLen := readHeader(head).TotalLen
	full, err := r.disk.ReadWALAt(r.off, int(totalLen)+4)
	if err != nil {
		return nil, err
	}
	if len(full) < int(totalLen)+4 {
		r.off = r.size
		return nil, nil
	}
	rec, n, err := Decode(full)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "wal replay")
	}
	r.off += int64(n)
	return rec, nil
}

// Offset reports the reader's current position in the WAL file.
func (r *Reader) Offset() int64 { return r.off }
