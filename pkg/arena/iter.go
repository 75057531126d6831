// ABOUTME: Tract iteration (component K): locate, walk, and contig-step allocated tracts
// ABOUTME: Ordering is address order across the chunk ring, not insertion or cache order

package arena

import "sort"

// TractOfAddr returns the tract covering addr, if addr falls on an
// allocated page.
func (a *Arena) TractOfAddr(addr uintptr) (*Tract, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, c := range a.chunks {
		if addr < c.base || addr >= c.limit {
			continue
		}
		idx, _ := c.pageIndexOfAddr(addr)
		tp := c.tablePageOf(idx)
		if !c.tableMappedBitmap.Test(tp) {
			return nil, false
		}
		d := &c.pageTable[idx]
		if d.state != stateAllocated {
			return nil, false
		}
		a.chunkCache = int(c.idx)
		return &d.tract, true
	}
	return nil, false
}

// TractFirst returns the lowest-addressed allocated tract in the arena.
func (a *Arena) TractFirst() (*Tract, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tractAfterLocked(0, true)
}

// TractNext returns the allocated tract with the least base address
// strictly greater than addr. Assumes no tract has base address zero.
func (a *Arena) TractNext(addr uintptr) (*Tract, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tractAfterLocked(addr, false)
}

// tractAfterLocked walks chunks in address order starting from the one
// containing (or following) addr, advancing each chunk's allocation
// bitmap to the next set bit. Callers must hold a.mu.
func (a *Arena) tractAfterLocked(addr uintptr, inclusive bool) (*Tract, bool) {
	chunks := append([]*Chunk(nil), a.chunks...)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].base < chunks[j].base })

	for _, c := range chunks {
		var fromIdx uint64
		switch {
		case addr == 0 && inclusive:
			fromIdx = c.ullage
		case addr < c.base:
			fromIdx = c.ullage
		case addr >= c.limit:
			continue
		default:
			idx, _ := c.pageIndexOfAddr(addr)
			if inclusive {
				fromIdx = idx
			} else {
				fromIdx = idx + 1
			}
			if fromIdx < c.ullage {
				fromIdx = c.ullage
			}
		}

		if i, ok := c.allocBitmap.nextSetFrom(fromIdx); ok {
			tp := c.tablePageOf(i)
			if !c.tableMappedBitmap.Test(tp) {
				continue
			}
			a.chunkCache = int(c.idx)
			return &c.pageTable[i].tract, true
		}
	}
	return nil, false
}

// TractNextContig returns the tract immediately following t in the same
// chunk iff that next page is allocated to the same pool. Allocation
// boundaries are not recorded, so two adjacent allocations by the same
// pool step through as one run. Returns false at an unallocated page, at
// a pool boundary, or at the chunk limit.
func (a *Arena) TractNextContig(t *Tract) (*Tract, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, c := range a.chunks {
		if t.Base < c.base || t.Base >= c.limit {
			continue
		}
		idx, _ := c.pageIndexOfAddr(t.Base)
		next := idx + 1
		if next >= c.pages {
			return nil, false
		}
		tp := c.tablePageOf(next)
		if !c.tableMappedBitmap.Test(tp) {
			return nil, false
		}
		d := &c.pageTable[next]
		if d.state != stateAllocated || d.tract.Pool != t.Pool {
			return nil, false
		}
		return &d.tract, true
	}
	return nil, false
}
