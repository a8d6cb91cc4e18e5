// Package bplustree is the disk-resident B+-tree secondary index of
// spec.md §4.3: an ordered key→RID mapping with uniqueness enforcement,
// and lower_bound/upper_bound range iteration. Index pages are not
// WAL-logged: the package emits no IndexPages (or any other) log records,
// and an index is rebuilt from its heap after a restart by internal/engine.
// spec.md calls this component "contract only — implementation is
// standard and summarised," so it follows the textbook shape rather than
// the teacher's exact node representation.
//
// Grounded on ShubhamNegi4-DaemonDB storage_engine/access/indexfile_manager
// /bplustree (Node{pageID,nodeType,keys,children,values,next},
// fetchNode/writeNode/newNode over the shared BufferPool, FindLeaf's
// top-down descent), adapted onto fixed-length keys (spec.md §4.3's packed
// comparator encoding makes every key in one tree the same length) and
// onto a recursive insert descent instead of persisted parent pointers.
package bplustree

import (
	"encoding/binary"

	"reldb/internal/page"
)

// Header page (page 0) layout, mirroring internal/heap's page-0 header
// convention: an index file's page 0 holds root pointer and sizing
// metadata instead of record data.
const (
	hdrOffLSN       = 0
	hdrOffRoot      = 8
	hdrOffKeyLen    = 16
	hdrOffMaxKeys   = 20
	hdrOffNumPages  = 22
	HeaderSize      = 26
)

const NoPage int64 = -1

type fileHeader struct {
	root    int64
	keyLen  uint32
	maxKeys uint16
	numPages uint32
}

func readHeader(pg *page.Page) fileHeader {
	return fileHeader{
		root:     int64(binary.LittleEndian.Uint64(pg.Data[hdrOffRoot:])),
		keyLen:   binary.LittleEndian.Uint32(pg.Data[hdrOffKeyLen:]),
		maxKeys:  binary.LittleEndian.Uint16(pg.Data[hdrOffMaxKeys:]),
		numPages: binary.LittleEndian.Uint32(pg.Data[hdrOffNumPages:]),
	}
}

func writeHeader(pg *page.Page, h fileHeader) {
	binary.LittleEndian.PutUint64(pg.Data[hdrOffRoot:], uint64(h.root))
	binary.LittleEndian.PutUint32(pg.Data[hdrOffKeyLen:], h.keyLen)
	binary.LittleEndian.PutUint16(pg.Data[hdrOffMaxKeys:], h.maxKeys)
	binary.LittleEndian.PutUint32(pg.Data[hdrOffNumPages:], h.numPages)
	pg.Dirty = true
}

// Node page layout (page 1+):
//
//	off  size  field
//	0    8     LSN
//	8    1     nodeType (0 internal, 1 leaf)
//	9    2     numKeys
//	11   8     nextLeaf (leaf only, NoPage if none)
//	20   ...   keys[numKeys], each keyLen bytes
//	     ...   leaf: rid[numKeys], 10 bytes each (int64 pageNo + uint16 slot)
//	     ...   internal: children[numKeys+1], 8 bytes each (local page no)
const (
	nodeOffLSN      = 0
	nodeOffType     = 8
	nodeOffNumKeys  = 9
	nodeOffNextLeaf = 11
	nodeDataStart   = 20

	ridSize   = 10
	childSize = 8
)

type kind uint8

const (
	kindInternal kind = 0
	kindLeaf     kind = 1
)

// MaxKeys returns how many fixed-length keys fit in one page for either
// node kind: the per-key budget uses the leaf's RID (the larger per-key
// payload), and the loop also checks the internal node's extra child.
func MaxKeys(keyLen int) int {
	budget := page.Size - nodeDataStart
	n := budget / (keyLen + ridSize)
	for n > 1 && nodeDataStart+n*keyLen+(n+1)*childSize > page.Size {
		n--
	}
	return n
}

func nodeType(pg *page.Page) kind { return kind(pg.Data[nodeOffType]) }

func setNodeType(pg *page.Page, k kind) { pg.Data[nodeOffType] = byte(k); pg.Dirty = true }

func numKeys(pg *page.Page) int {
	return int(binary.LittleEndian.Uint16(pg.Data[nodeOffNumKeys:]))
}

func setNumKeys(pg *page.Page, n int) {
	binary.LittleEndian.PutUint16(pg.Data[nodeOffNumKeys:], uint16(n))
	pg.Dirty = true
}

func nextLeaf(pg *page.Page) int64 {
	return int64(binary.LittleEndian.Uint64(pg.Data[nodeOffNextLeaf:]))
}

func setNextLeaf(pg *page.Page, v int64) {
	binary.LittleEndian.PutUint64(pg.Data[nodeOffNextLeaf:], uint64(v))
	pg.Dirty = true
}

func keyAt(pg *page.Page, i, keyLen int) []byte {
	off := nodeDataStart + i*keyLen
	return pg.Data[off : off+keyLen]
}

func setKeyAt(pg *page.Page, i, keyLen int, k []byte) {
	copy(keyAt(pg, i, keyLen), k)
	pg.Dirty = true
}

func keysEnd(keyLen, n int) int { return nodeDataStart + n*keyLen }

func ridAt(pg *page.Page, i, keyLen, maxKeys int) []byte {
	off := keysEnd(keyLen, maxKeys) + i*ridSize
	return pg.Data[off : off+ridSize]
}

func encodeRID(pageNo int64, slot uint16) []byte {
	b := make([]byte, ridSize)
	binary.LittleEndian.PutUint64(b, uint64(pageNo))
	binary.LittleEndian.PutUint16(b[8:], slot)
	return b
}

func decodeRID(b []byte) (int64, uint16) {
	return int64(binary.LittleEndian.Uint64(b)), binary.LittleEndian.Uint16(b[8:])
}

func childAt(pg *page.Page, i, keyLen, maxKeys int) int64 {
	off := keysEnd(keyLen, maxKeys) + i*childSize
	return int64(binary.LittleEndian.Uint64(pg.Data[off:]))
}

func setChildAt(pg *page.Page, i, keyLen, maxKeys int, v int64) {
	off := keysEnd(keyLen, maxKeys) + i*childSize
	binary.LittleEndian.PutUint64(pg.Data[off:], uint64(v))
	pg.Dirty = true
}

func initNode(pg *page.Page, k kind) {
	for i := range pg.Data {
		pg.Data[i] = 0
	}
	setNodeType(pg, k)
	setNumKeys(pg, 0)
	setNextLeaf(pg, NoPage)
}
