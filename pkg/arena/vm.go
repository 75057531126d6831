// ABOUTME: Virtual-memory primitive: reserve/release address ranges, commit/decommit pages
// ABOUTME: Anonymous mmap + mprotect, in the style of internal/vm/uffd_linux.go's raw unix.* use

package arena

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// vmRegion is one contiguous reservation of address space. Bases and
// limits handed to mapRange/unmapRange are always page-aligned.
type vmRegion struct {
	mem   []byte // the full reservation, PROT_NONE except where committed
	base  uintptr
	limit uintptr
}

// vmAlignment returns the OS page size, the arena's alignment unit.
func vmAlignment() uintptr {
	return uintptr(unix.Getpagesize())
}

// vmReserve reserves `size` bytes of address space (rounded up to the
// page size), backed by no physical memory until mapRange commits it.
// The implementation uses a single PROT_NONE anonymous mapping; there is
// no OS call that commits physical pages without first reserving their
// address range, so reserve and the eventual first map are always two
// separate steps even for a chunk's own ullage.
func vmReserve(size uint64) (*vmRegion, error) {
	align := uint64(vmAlignment())
	size = (size + align - 1) &^ (align - 1)

	mem, err := unix.Mmap(-1, 0, int(size),
		unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_NORESERVE)
	if err != nil {
		return nil, fmt.Errorf("%w: reserve %d bytes: %v", ErrResource, size, err)
	}

	base := uintptr(unsafe.Pointer(&mem[0]))
	return &vmRegion{mem: mem, base: base, limit: base + uintptr(len(mem))}, nil
}

// release returns the entire reservation to the OS. The arena never
// calls this while it lives; only Arena.Destroy (tearing down every
// chunk) does.
func (r *vmRegion) release() error {
	if err := unix.Munmap(r.mem); err != nil {
		return fmt.Errorf("%w: release: %v", ErrResource, err)
	}
	return nil
}

// slice returns the byte-slice view of [base, limit) within the
// reservation. base and limit must be page-aligned and within the
// reservation; this is a programmer contract, not a recoverable error.
func (r *vmRegion) slice(base, limit uintptr) []byte {
	assertf(base >= r.base && limit <= r.limit && base <= limit,
		"vm: range [%#x, %#x) outside reservation [%#x, %#x)", base, limit, r.base, r.limit)
	lo := base - r.base
	hi := limit - r.base
	return r.mem[lo:hi]
}

// mapRange commits physical backing for [base, limit). Fails with
// ErrResource on OS refusal (the allocator retries once after purging
// hysteresis before giving up, per spec.md §7).
func (r *vmRegion) mapRange(base, limit uintptr) error {
	if base == limit {
		return nil
	}
	seg := r.slice(base, limit)
	if err := unix.Mprotect(seg, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("%w: map [%#x, %#x): %v", ErrResource, base, limit, err)
	}
	return nil
}

// unmapRange releases physical backing for [base, limit) but leaves the
// address range reserved: madvise(DONTNEED) lets the OS reclaim the
// frames, mprotect(PROT_NONE) turns touching the range back into a
// fault so bugs that outlive a decommit are caught instead of silently
// reading stale data.
func (r *vmRegion) unmapRange(base, limit uintptr) error {
	if base == limit {
		return nil
	}
	seg := r.slice(base, limit)
	if err := unix.Madvise(seg, unix.MADV_DONTNEED); err != nil {
		return fmt.Errorf("%w: unmap [%#x, %#x): %v", ErrResource, base, limit, err)
	}
	if err := unix.Mprotect(seg, unix.PROT_NONE); err != nil {
		return fmt.Errorf("%w: unmap [%#x, %#x): %v", ErrResource, base, limit, err)
	}
	return nil
}
