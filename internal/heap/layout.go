// Package heap implements the record heap of spec.md §4.2: slotted pages
// with a free-slot bitmap, a per-file free-page list threaded through page
// headers, and page 0 as the file header.
//
// Grounded on ShubhamNegi4-DaemonDB storage_engine/access/heapfile_manager
// (binary.LittleEndian field-at-offset accessors over a *page.Page,
// InitHeapPage/InsertRecord/GetRecord/DeleteRecord style) but reshaped from
// the teacher's variable-length tombstoned slots onto spec.md's fixed-size
// record-per-slot bitmap model, which is what lets popcount(bitmap) serve
// as record_count per spec.md §3's invariant.
package heap

import (
	"encoding/binary"

	"reldb/internal/page"
)

// Header page (page 0) layout — spec.md §3 "Heap file header":
//
//	off  size  field
//	0    8     LSN            (shared convention with every page type)
//	8    8     FirstFreePageNo (local page no, NoPage = none)
//	16   2     RecordsPerPage
//	18   2     RecordSize
//	20   4     NumPages        (heap pages, page 0 excluded)
const (
	hdrOffLSN            = 0
	hdrOffFirstFree      = 8
	hdrOffRecordsPerPage = 16
	hdrOffRecordSize     = 18
	hdrOffNumPages       = 20
	HeaderSize           = 24
)

// NoPage marks "no partially-free page" / "no next page" per spec.md §3.
const NoPage int64 = -1

type fileHeader struct {
	firstFreePageNo int64
	recordsPerPage  uint16
	recordSize      uint16
	numPages        uint32
}

func readHeader(pg *page.Page) fileHeader {
	return fileHeader{
		firstFreePageNo: int64(binary.LittleEndian.Uint64(pg.Data[hdrOffFirstFree:])),
		recordsPerPage:  binary.LittleEndian.Uint16(pg.Data[hdrOffRecordsPerPage:]),
		recordSize:      binary.LittleEndian.Uint16(pg.Data[hdrOffRecordSize:]),
		numPages:        binary.LittleEndian.Uint32(pg.Data[hdrOffNumPages:]),
	}
}

func writeHeader(pg *page.Page, h fileHeader) {
	binary.LittleEndian.PutUint64(pg.Data[hdrOffFirstFree:], uint64(h.firstFreePageNo))
	binary.LittleEndian.PutUint16(pg.Data[hdrOffRecordsPerPage:], h.recordsPerPage)
	binary.LittleEndian.PutUint16(pg.Data[hdrOffRecordSize:], h.recordSize)
	binary.LittleEndian.PutUint32(pg.Data[hdrOffNumPages:], h.numPages)
	pg.Dirty = true
}

func initHeader(pg *page.Page, recordsPerPage, recordSize int) {
	for i := range pg.Data {
		pg.Data[i] = 0
	}
	writeHeader(pg, fileHeader{
		firstFreePageNo: NoPage,
		recordsPerPage:  uint16(recordsPerPage),
		recordSize:      uint16(recordSize),
		numPages:        0,
	})
}

// Heap page (page 1+) layout — spec.md §3 "Heap page":
// "{ next_free_page, record_count, bitmap[slots], record_array[slots] }"
//
//	off  size  field
//	0    8     LSN
//	8    8     NextFreePageNo (local page no; NoPage if not on free list)
//	16   2     RecordCount     (popcount of the bitmap — spec.md invariant)
//	18   2     SlotsPerPage
//	20   ...   bitmap, ceil(SlotsPerPage/8) bytes
//	     ...   record_array[SlotsPerPage], each RecordSize bytes
const (
	pageOffLSN          = 0
	pageOffNextFree     = 8
	pageOffRecordCount  = 16
	pageOffSlotsPerPage = 18
	pageBitmapStart     = 20
)

func bitmapLen(slotsPerPage int) int {
	return (slotsPerPage + 7) / 8
}

func recordsStart(slotsPerPage int) int {
	return pageBitmapStart + bitmapLen(slotsPerPage)
}

// SlotsPerPage returns how many fixed-size records of recordSize fit after
// the page header and its bitmap.
func SlotsPerPage(recordSize int) int {
	// n records need n*recordSize + ceil(n/8) bytes of bitmap to fit in
	// page.Size - pageBitmapStart. Solve conservatively then trim.
	budget := page.Size - pageBitmapStart
	n := budget / (recordSize + 1) // upper bound including bitmap
	for n > 0 && recordsStart(n)+n*recordSize > page.Size {
		n--
	}
	return n
}

func initHeapPage(pg *page.Page, slotsPerPage int) {
	for i := range pg.Data {
		pg.Data[i] = 0
	}
	noFree := NoPage
	binary.LittleEndian.PutUint64(pg.Data[pageOffNextFree:], uint64(noFree))
	binary.LittleEndian.PutUint16(pg.Data[pageOffRecordCount:], 0)
	binary.LittleEndian.PutUint16(pg.Data[pageOffSlotsPerPage:], uint16(slotsPerPage))
	pg.Dirty = true
}

func pageNextFree(pg *page.Page) int64 {
	return int64(binary.LittleEndian.Uint64(pg.Data[pageOffNextFree:]))
}

func setPageNextFree(pg *page.Page, v int64) {
	binary.LittleEndian.PutUint64(pg.Data[pageOffNextFree:], uint64(v))
	pg.Dirty = true
}

func pageRecordCount(pg *page.Page) int {
	return int(binary.LittleEndian.Uint16(pg.Data[pageOffRecordCount:]))
}

func setPageRecordCount(pg *page.Page, v int) {
	binary.LittleEndian.PutUint16(pg.Data[pageOffRecordCount:], uint16(v))
	pg.Dirty = true
}

func pageSlotsPerPage(pg *page.Page) int {
	return int(binary.LittleEndian.Uint16(pg.Data[pageOffSlotsPerPage:]))
}

func bitmapOf(pg *page.Page) []byte {
	n := pageSlotsPerPage(pg)
	return pg.Data[pageBitmapStart : pageBitmapStart+bitmapLen(n)]
}

func bitSet(bm []byte, slot int) bool {
	return bm[slot/8]&(1<<(uint(slot)%8)) != 0
}

func bitSetOn(bm []byte, slot int) {
	bm[slot/8] |= 1 << (uint(slot) % 8)
}

func bitSetOff(bm []byte, slot int) {
	bm[slot/8] &^= 1 << (uint(slot) % 8)
}

// firstClearBit returns the first unset bit in [0, n), or -1.
func firstClearBit(bm []byte, n int) int {
	for i := 0; i < n; i++ {
		if !bitSet(bm, i) {
			return i
		}
	}
	return -1
}

func popcount(bm []byte, n int) int {
	c := 0
	for i := 0; i < n; i++ {
		if bitSet(bm, i) {
			c++
		}
	}
	return c
}

func recordAt(pg *page.Page, slot, recordSize int) []byte {
	off := recordsStart(pageSlotsPerPage(pg)) + slot*recordSize
	return pg.Data[off : off+recordSize]
}
