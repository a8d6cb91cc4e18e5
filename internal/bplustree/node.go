package bplustree

import (
	"reldb/internal/page"
	"reldb/internal/types"
)

// nodeMem is the in-memory, fully decoded form of one page. Operations
// load a node into this shape, mutate it with ordinary slice operations,
// and write the whole thing back — simpler and easier to get right than
// shifting bytes in place inside the page buffer, at the cost of some
// copying that a production index would avoid.
type nodeMem struct {
	leaf     bool
	keys     [][]byte
	rids     []types.RID // leaf only, len(rids) == len(keys)
	children []int64     // internal only, len(children) == len(keys)+1
	next     int64        // leaf only
}

func loadNode(pg *page.Page, keyLen, maxKeys int) *nodeMem {
	n := numKeys(pg)
	nm := &nodeMem{leaf: nodeType(pg) == kindLeaf}
	nm.keys = make([][]byte, n)
	for i := 0; i < n; i++ {
		k := make([]byte, keyLen)
		copy(k, keyAt(pg, i, keyLen))
		nm.keys[i] = k
	}
	if nm.leaf {
		nm.rids = make([]types.RID, n)
		for i := 0; i < n; i++ {
			pageNo, slot := decodeRID(ridAt(pg, i, keyLen, maxKeys))
			nm.rids[i] = types.RID{PageNo: pageNo, Slot: slot}
		}
		nm.next = nextLeaf(pg)
	} else {
		nm.children = make([]int64, n+1)
		for i := 0; i <= n; i++ {
			nm.children[i] = childAt(pg, i, keyLen, maxKeys)
		}
	}
	return nm
}

// storeNode writes nm into pg. Panics (via slice out-of-range) if
// len(nm.keys) exceeds the page's capacity for keyLen — callers must split
// before storing.
func storeNode(pg *page.Page, nm *nodeMem, keyLen, maxKeys int) {
	k := kindInternal
	if nm.leaf {
		k = kindLeaf
	}
	initNode(pg, k)
	setNumKeys(pg, len(nm.keys))
	for i, key := range nm.keys {
		setKeyAt(pg, i, keyLen, key)
	}
	if nm.leaf {
		for i, r := range nm.rids {
			copy(ridAt(pg, i, keyLen, maxKeys), encodeRID(r.PageNo, r.Slot))
		}
		setNextLeaf(pg, nm.next)
	} else {
		for i, c := range nm.children {
			setChildAt(pg, i, keyLen, maxKeys, c)
		}
	}
	pg.Dirty = true
}
