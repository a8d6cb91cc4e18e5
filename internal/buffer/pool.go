// Package buffer implements the paged buffer pool of spec.md §4.1: a
// fixed-size array of frames plus a free-frame list and an
// LRU-style replacer holding only unpinned frames.
//
// Grounded on ShubhamNegi4-DaemonDB storage_engine/bufferpool/bufferpool.go
// (fetch/new_page/unpin/flush, LRU victim selection, WAL-gated write-back)
// but reshaped onto a preallocated frame array so the spec.md §8 invariant
// "free_list ∩ replacer = ∅" and "pin_count=0 ⇔ frame in replacer" are
// structurally obvious rather than incidental.
package buffer

import (
	"container/list"
	"sync"

	"reldb/internal/disk"
	"reldb/internal/errs"
	"reldb/internal/page"
)

// LogFlusher is the minimal WAL contract the buffer pool needs: "before a
// dirty page is evicted, every log record whose LSN ≤ that page's LSN must
// be durable" (spec.md §4.4). The pool's simplest-correct implementation
// flushes the log up to the page's LSN before every write-back.
type LogFlusher interface {
	FlushUpTo(lsn uint64) error
}

type frame struct {
	pg    *page.Page
	valid bool
}

// Pool is the buffer pool. One mutex guards the frame table, page table,
// free list and replacer; a Page's own RWMutex protects its Data once a
// caller holds a pin (spec.md §4.1 Concurrency).
type Pool struct {
	mu sync.Mutex

	frames    []frame
	pageTable map[page.ID]int // page id -> frame index
	free      []int           // frame indices never yet assigned a page
	replacer  *list.List      // frame indices with pin_count==0, LRU order (front = victim)
	inReplacer map[int]*list.Element

	disk *disk.Manager
	log  LogFlusher
}

func New(capacity int, dm *disk.Manager) *Pool {
	p := &Pool{
		frames:     make([]frame, capacity),
		pageTable:  make(map[page.ID]int, capacity),
		free:       make([]int, capacity),
		replacer:   list.New(),
		inReplacer: make(map[int]*list.Element),
		disk:       dm,
	}
	for i := 0; i < capacity; i++ {
		p.free[i] = i
	}
	return p
}

func (p *Pool) SetLogFlusher(lf LogFlusher) { p.log = lf }

// Fetch maps to a cached frame if present (incrementing the pin and
// removing it from the replacer), otherwise selects a victim, evicts it if
// necessary and loads the page from disk. Returns the page pinned.
func (p *Pool) Fetch(id page.ID) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.pageTable[id]; ok {
		fr := &p.frames[idx]
		fr.pg.PinCount++
		p.removeFromReplacer(idx)
		return fr.pg, nil
	}

	idx, err := p.victim()
	if err != nil {
		return nil, err
	}
	if p.frames[idx].valid {
		if err := p.writeBackLocked(idx); err != nil {
			return nil, err
		}
		delete(p.pageTable, p.frames[idx].pg.ID)
	}

	pg, err := p.disk.ReadPage(id)
	if err != nil {
		return nil, err
	}
	pg.PinCount = 1
	p.frames[idx] = frame{pg: pg, valid: true}
	p.pageTable[id] = idx
	return pg, nil
}

// NewPage allocates a fresh page number from the disk layer for fileID,
// selects a victim the same way Fetch does, and installs a zeroed page
// pinned for the caller.
func (p *Pool) NewPage(fileID uint32, typ page.Type) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := p.disk.AllocatePage(fileID)
	if err != nil {
		return nil, err
	}

	idx, err := p.victim()
	if err != nil {
		return nil, err
	}
	if p.frames[idx].valid {
		if err := p.writeBackLocked(idx); err != nil {
			return nil, err
		}
		delete(p.pageTable, p.frames[idx].pg.ID)
	}

	pg := page.New(id, typ)
	pg.PinCount = 1
	p.frames[idx] = frame{pg: pg, valid: true}
	p.pageTable[id] = idx
	return pg, nil
}

// Unpin decrements a page's pin count and ORs in the dirty hint. When the
// count reaches zero the frame re-enters the replacer.
func (p *Pool) Unpin(id page.ID, dirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[id]
	if !ok {
		return errs.New(errs.KindNotCached, "page not in buffer pool")
	}
	fr := &p.frames[idx]
	if fr.pg.PinCount == 0 {
		return errs.New(errs.KindNotPinned, "page already unpinned")
	}
	fr.pg.PinCount--
	if dirty {
		fr.pg.Dirty = true
	}
	if fr.pg.PinCount == 0 {
		p.pushReplacer(idx)
	}
	return nil
}

// Flush writes a cached page's current contents through to disk if dirty.
func (p *Pool) Flush(id page.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.pageTable[id]
	if !ok {
		return errs.New(errs.KindNotCached, "page not in buffer pool")
	}
	return p.writeBackLocked(idx)
}

// FlushFile writes every cached page belonging to fileID; unpinned frames
// are evicted after writing, per spec.md §4.1.
func (p *Pool) FlushFile(fileID uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, idx := range p.pageTable {
		if id.FileID() != fileID {
			continue
		}
		if err := p.writeBackLocked(idx); err != nil {
			return err
		}
		if p.frames[idx].pg.PinCount == 0 {
			p.removeFromReplacer(idx)
			delete(p.pageTable, id)
			p.frames[idx] = frame{}
			p.free = append(p.free, idx)
		}
	}
	return nil
}

// writeBackLocked flushes frame idx's page if dirty, honoring the WAL
// rule via the registered LogFlusher. Caller holds p.mu.
func (p *Pool) writeBackLocked(idx int) error {
	fr := &p.frames[idx]
	if !fr.valid || !fr.pg.Dirty {
		return nil
	}
	if p.log != nil {
		if err := p.log.FlushUpTo(fr.pg.LSN()); err != nil {
			return err
		}
	}
	if err := p.disk.WritePage(fr.pg); err != nil {
		return err
	}
	fr.pg.Dirty = false
	return nil
}

// victim returns a frame index to (re)use: prefer the free list, then the
// LRU replacer. Fails with PoolExhausted if every frame is pinned.
func (p *Pool) victim() (int, error) {
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		return idx, nil
	}
	if el := p.replacer.Front(); el != nil {
		idx := el.Value.(int)
		p.replacer.Remove(el)
		delete(p.inReplacer, idx)
		return idx, nil
	}
	return 0, errs.New(errs.KindPoolExhausted, "all frames pinned")
}

func (p *Pool) pushReplacer(idx int) {
	if _, already := p.inReplacer[idx]; already {
		return
	}
	p.inReplacer[idx] = p.replacer.PushBack(idx)
}

func (p *Pool) removeFromReplacer(idx int) {
	if el, ok := p.inReplacer[idx]; ok {
		p.replacer.Remove(el)
		delete(p.inReplacer, idx)
	}
}

// Stats supports the invariant checks of spec.md §8.
type Stats struct {
	Cached, Pinned, Dirty, FreeFrames, InReplacer int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	var s Stats
	s.FreeFrames = len(p.free)
	s.InReplacer = p.replacer.Len()
	for _, fr := range p.frames {
		if !fr.valid {
			continue
		}
		s.Cached++
		if fr.pg.PinCount > 0 {
			s.Pinned++
		}
		if fr.pg.Dirty {
			s.Dirty++
		}
	}
	return s
}
