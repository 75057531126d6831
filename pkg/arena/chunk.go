// ABOUTME: One contiguous VM reservation with its page-descriptor table and bitmaps
// ABOUTME: The boot-allocated bitmaps form the chunk's ullage, never handed out as tracts; the descriptor table lives on the Go heap

package arena

import (
	"fmt"
	"unsafe"
)

// descriptorSize is used only to size the lazy growth step of a chunk's
// page table (see ensureTableMapped); it is not a wire format.
var descriptorSize = unsafe.Sizeof(pageDescriptor{})

// Chunk is one contiguous reservation with its own descriptor tables.
type Chunk struct {
	arena *Arena
	idx   uint32 // this chunk's stable index in arena.chunks

	region *vmRegion
	base   uintptr
	limit  uintptr

	pageSize uintptr
	pages    uint64 // total page count
	ullage   uint64 // pages consumed by this chunk's own bookkeeping

	allocBitmap       *BitTable // 1 bit per page: currently owned by a pool
	tableMappedBitmap *BitTable // 1 bit per table page: that page-table segment is materialized
	noLatentBitmap    *BitTable // 1 bit per table page: clear iff some descriptor there is Latent

	descPerTablePage uint64
	pageTable        []pageDescriptor // lazily grown; length is a multiple of descPerTablePage, capped at pages
}

// chunkCreate reserves `size` bytes, maps just enough at the base to
// hold the chunk's own bitmaps (the boot allocator's domain), then
// bump-allocates them via chunkInit. The descriptor table itself is not
// eagerly backed by anything; ensureTableMapped grows it lazily per
// spec.md's Design Notes on partial page-table mapping.
func chunkCreate(a *Arena, idx uint32, size uint64) (*Chunk, error) {
	pageSize := a.alignment
	if size < uint64(pageSize) {
		size = uint64(pageSize)
	}
	// Round the requested size up to a whole number of pages.
	size = (size + uint64(pageSize) - 1) &^ (uint64(pageSize) - 1)

	region, err := vmReserve(size)
	if err != nil {
		return nil, err
	}

	totalPages := uint64(len(region.mem)) / uint64(pageSize)
	if totalPages == 0 {
		_ = region.release()
		return nil, fmt.Errorf("%w: chunk too small for one page", ErrMemory)
	}

	descPerTablePage := uint64(pageSize) / uint64(descriptorSize)
	if descPerTablePage == 0 {
		descPerTablePage = 1
	}

	c := &Chunk{
		arena:            a,
		idx:              idx,
		region:           region,
		base:             region.base,
		limit:            region.limit,
		pageSize:         pageSize,
		pages:            totalPages,
		descPerTablePage: descPerTablePage,
	}

	if err := c.chunkInit(); err != nil {
		_ = region.release()
		return nil, err
	}
	return c, nil
}

// chunkInit bump-allocates the three bitmaps inside a freshly mapped
// prefix of the chunk, using the boot allocator, before any page table
// exists. BootBlock-style: page size and the owning arena are threaded
// through explicitly (spec.md's Open Questions flag the original
// source's reliance on unbound globals here as a likely bug; this port
// never introduces that hazard).
func (c *Chunk) chunkInit() error {
	bitmapBits := c.pages

	nWords := func(n uint64) uint64 { return (n + wordBits - 1) / wordBits }
	tablePages := (c.pages + c.descPerTablePage - 1) / c.descPerTablePage

	bootBytes := uintptr(nWords(bitmapBits))*8 + // allocation bitmap
		uintptr(nWords(tablePages))*8 + // table-mapped bitmap
		uintptr(nWords(tablePages))*8 + // no-latent bitmap
		uintptr(bootAlign)*3 // alignment slop between the three

	ullagePages := (bootBytes + c.pageSize - 1) / c.pageSize
	if ullagePages == 0 {
		ullagePages = 1
	}
	if ullagePages >= c.pages {
		return fmt.Errorf("%w: chunk of %d pages has no room for %d ullage pages",
			ErrMemory, c.pages, ullagePages)
	}

	prefixLimit := c.base + ullagePages*c.pageSize
	if err := c.region.mapRange(c.base, prefixLimit); err != nil {
		return err
	}

	boot := newBootAllocator(c.region.slice(c.base, prefixLimit))

	allocBitmap, err := newBitTableOverBoot(boot, bitmapBits)
	if err != nil {
		return err
	}
	tableMapped, err := newBitTableOverBoot(boot, tablePages)
	if err != nil {
		return err
	}
	noLatent, err := newBitTableOverBoot(boot, tablePages)
	if err != nil {
		return err
	}
	// Every table page starts with no latent descriptors in it.
	noLatent.SetRange(0, tablePages)

	c.ullage = ullagePages
	c.allocBitmap = allocBitmap
	c.tableMappedBitmap = tableMapped
	c.noLatentBitmap = noLatent

	// The ullage pages themselves are never handed out as tracts; mark
	// them allocated-looking in the allocation bitmap so free-land
	// search never selects them.
	c.allocBitmap.SetRange(0, c.ullage)

	return nil
}

// chunkDestroy releases the chunk's entire reservation. Never called
// while the arena lives; only Arena.Destroy tears chunks down.
func chunkDestroy(c *Chunk) error {
	return c.region.release()
}

// tablePageOf returns the table-page index covering descriptor i.
func (c *Chunk) tablePageOf(i uint64) uint64 {
	return i / c.descPerTablePage
}

// ensureTableMapped grows the page table to cover table page tp if it
// has not been materialized yet, and sets the table-mapped bit.
func (c *Chunk) ensureTableMapped(tp uint64) {
	if c.tableMappedBitmap.Test(tp) {
		return
	}
	want := (tp + 1) * c.descPerTablePage
	if want > c.pages {
		want = c.pages
	}
	for uint64(len(c.pageTable)) < want {
		c.pageTable = append(c.pageTable, pageDescriptor{state: stateFree, prev: noLink, next: noLink})
	}
	c.tableMappedBitmap.Set(tp)
}

// descriptor returns the descriptor for page i, materializing its table
// page first if necessary.
func (c *Chunk) descriptor(i uint64) *pageDescriptor {
	c.ensureTableMapped(c.tablePageOf(i))
	return &c.pageTable[i]
}

// pageAddr returns the base address of page i.
func (c *Chunk) pageAddr(i uint64) uintptr {
	return c.base + uintptr(i)*c.pageSize
}

// pageIndexOfAddr returns the page index containing addr, and whether
// addr lies within this chunk at all.
func (c *Chunk) pageIndexOfAddr(addr uintptr) (uint64, bool) {
	if addr < c.base || addr >= c.limit {
		return 0, false
	}
	return uint64(addr-c.base) / uint64(c.pageSize), true
}

// committedBytes returns the bytes currently OS-committed in this
// chunk: the ullage prefix plus every Allocated or Latent page.
func (c *Chunk) committedBytes() uint64 {
	total := c.ullage
	for i := c.ullage; i < c.pages; i++ {
		tp := c.tablePageOf(i)
		if !c.tableMappedBitmap.Test(tp) {
			continue
		}
		switch c.pageTable[i].state {
		case stateAllocated, stateLatent:
			total++
		}
	}
	return total * uint64(c.pageSize)
}
