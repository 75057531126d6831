// ABOUTME: Page descriptor variant {Free, Latent, Allocated(tract)} and its transitions
// ABOUTME: Free and Latent share a ring link; the link stores page indices, not pointers

package arena

// pageState tags a page descriptor's variant.
type pageState uint8

const (
	stateFree pageState = iota
	stateLatent
	stateAllocated
)

// ringLink identifies a page by (chunk index, page index) instead of a
// pointer, per spec.md's Design Notes on the intrusive latent ring:
// descriptors stay trivially copyable and the ring never aliases
// GC-managed memory.
type ringLink struct {
	chunkIdx uint32
	pageIdx  uint32
}

var noLink = ringLink{chunkIdx: ^uint32(0), pageIdx: ^uint32(0)}

func (l ringLink) isNil() bool { return l == noLink }

// pageDescriptor is a tagged variant of {Free, Latent, Allocated}.
// Free and Latent share prev/next storage for the hysteresis ring link;
// Allocated carries the tract payload.
type pageDescriptor struct {
	state      pageState
	prev, next ringLink
	tract      Tract
}

// chunkAt resolves a ringLink to its chunk, or nil if the link is nil.
func (a *Arena) chunkAt(l ringLink) *Chunk {
	if l.isNil() {
		return nil
	}
	return a.chunks[l.chunkIdx]
}

func linkOf(c *Chunk, pageIdx uint64) ringLink {
	return ringLink{chunkIdx: c.idx, pageIdx: uint32(pageIdx)}
}

// pageIsMapped reports whether page i's descriptor storage exists and
// the page is Latent — the fast path where allocation can skip the OS
// map call entirely because the physical backing is already committed.
func (c *Chunk) pageIsMapped(i uint64) bool {
	tp := c.tablePageOf(i)
	if !c.tableMappedBitmap.Test(tp) {
		return false
	}
	return c.pageTable[i].state == stateLatent
}

// pageAlloc transitions Free or Latent -> Allocated and returns the new
// tract. If the page was Latent, it is first unlinked from the
// hysteresis ring and spareCommitted shrinks by one page.
func (a *Arena) pageAlloc(c *Chunk, i uint64, pool Pool) *Tract {
	d := c.descriptor(i)
	assertf(d.state != stateAllocated, "pageAlloc: page %d already allocated", i)

	if d.state == stateLatent {
		a.ringUnlink(c, i)
		a.spareCommitted -= uint64(c.pageSize)
	}

	wasLatent := d.state == stateLatent
	d.state = stateAllocated
	d.tract = Tract{Pool: pool, Base: c.pageAddr(i)}
	c.allocBitmap.Set(i)
	if wasLatent && c.noLatentRegionHasNoLatent(c.tablePageOf(i)) {
		c.noLatentBitmap.Set(c.tablePageOf(i))
	}
	return &d.tract
}

// pageLatent transitions Allocated -> Latent: the page joins the
// hysteresis ring instead of returning to the OS immediately.
func (a *Arena) pageLatent(c *Chunk, i uint64) {
	d := c.descriptor(i)
	assertf(d.state == stateAllocated, "pageLatent: page %d is not allocated", i)

	d.state = stateLatent
	d.tract = Tract{}
	c.allocBitmap.Reset(i)
	c.noLatentBitmap.Reset(c.tablePageOf(i))

	a.ringAppend(c, i)
	a.spareCommitted += uint64(c.pageSize)
}

// pageReclaim transitions Latent -> Free: the purger has unmapped the
// physical backing and returned the page to the free pool.
func (a *Arena) pageReclaim(c *Chunk, i uint64) {
	d := c.descriptor(i)
	assertf(d.state == stateLatent, "pageReclaim: page %d is not latent", i)
	d.state = stateFree

	if c.noLatentRegionHasNoLatent(c.tablePageOf(i)) {
		c.noLatentBitmap.Set(c.tablePageOf(i))
	}
}

// noLatentRegionHasNoLatent reports whether no descriptor covered by
// table page tp is currently Latent.
func (c *Chunk) noLatentRegionHasNoLatent(tp uint64) bool {
	lo := tp * c.descPerTablePage
	hi := lo + c.descPerTablePage
	if hi > c.pages {
		hi = c.pages
	}
	if !c.tableMappedBitmap.Test(tp) {
		return true
	}
	for i := lo; i < hi; i++ {
		if c.pageTable[i].state == stateLatent {
			return false
		}
	}
	return true
}

// ringAppend adds page (c, i) to the tail of the arena's latent ring,
// preserving insertion order.
func (a *Arena) ringAppend(c *Chunk, i uint64) {
	link := linkOf(c, i)
	d := &c.pageTable[i]
	d.prev = a.latentTail
	d.next = noLink

	if a.latentTail.isNil() {
		a.latentHead = link
	} else {
		tailChunk := a.chunkAt(a.latentTail)
		tailChunk.pageTable[a.latentTail.pageIdx].next = link
	}
	a.latentTail = link
}

// ringUnlink removes page (c, i) from the latent ring, wherever it sits.
func (a *Arena) ringUnlink(c *Chunk, i uint64) {
	d := &c.pageTable[i]

	if d.prev.isNil() {
		a.latentHead = d.next
	} else {
		prevChunk := a.chunkAt(d.prev)
		prevChunk.pageTable[d.prev.pageIdx].next = d.next
	}
	if d.next.isNil() {
		a.latentTail = d.prev
	} else {
		nextChunk := a.chunkAt(d.next)
		nextChunk.pageTable[d.next.pageIdx].prev = d.prev
	}

	d.prev, d.next = noLink, noLink
}
