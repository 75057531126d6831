package arena

import "testing"

// TestHysteresisFastPath_S4: freeing pages parks them as spare-committed
// rather than unmapping them immediately; reallocating the same amount
// with the same preference reuses them without changing committed
// bytes.
func TestHysteresisFastPath_S4(t *testing.T) {
	a := mustCreateArena(t, ClassVM, 1<<20, Config{SpareCommitLimit: 1 << 30})
	pool := testPool{id: "p1"}
	pageSize := uint64(a.alignment)
	n := pageSize * 16

	base, _, err := a.Alloc(pool, fillPref(), n)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	committedAfterAlloc := a.Committed()

	if err := a.Free(base, n, pool); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if got := a.SpareCommitted(); got != n {
		t.Fatalf("expected spareCommitted == %d after free, got %d", n, got)
	}
	if a.Committed() != committedAfterAlloc {
		t.Fatalf("committed changed on free: before=%d after=%d", committedAfterAlloc, a.Committed())
	}

	base2, _, err := a.Alloc(pool, fillPref(), n)
	if err != nil {
		t.Fatalf("realloc failed: %v", err)
	}
	if base2 != base {
		t.Fatalf("expected the hysteresis pool's pages to be reused")
	}
	if got := a.SpareCommitted(); got != 0 {
		t.Fatalf("expected spareCommitted == 0 after reuse, got %d", got)
	}
	if a.Committed() != committedAfterAlloc {
		t.Fatalf("committed changed on reuse: before=%d after=%d", committedAfterAlloc, a.Committed())
	}
}

func TestPurgeLocatedReclaimsSpareCommitted(t *testing.T) {
	a := mustCreateArena(t, ClassVM, 1<<20, Config{SpareCommitLimit: 1 << 30})
	pool := testPool{id: "p1"}
	pageSize := uint64(a.alignment)
	n := pageSize * 4

	base, _, err := a.Alloc(pool, fillPref(), n)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	committedBefore := a.Committed()
	if err := a.Free(base, n, pool); err != nil {
		t.Fatalf("Free failed: %v", err)
	}

	a.mu.Lock()
	purged := a.purgeAllLocked()
	a.mu.Unlock()

	if purged != n {
		t.Fatalf("expected to purge %d bytes, purged %d", n, purged)
	}
	if a.SpareCommitted() != 0 {
		t.Fatalf("expected spareCommitted == 0 after a full purge")
	}
	if got := committedBefore - a.Committed(); got != n {
		t.Fatalf("expected committed to shrink by %d, shrank by %d", n, got)
	}
}

func TestSetSpareCommitLimitPurgesImmediately(t *testing.T) {
	a := mustCreateArena(t, ClassVM, 1<<20, Config{SpareCommitLimit: 1 << 30})
	pool := testPool{id: "p1"}
	pageSize := uint64(a.alignment)
	n := pageSize * 8

	base, _, err := a.Alloc(pool, fillPref(), n)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if err := a.Free(base, n, pool); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if a.SpareCommitted() != n {
		t.Fatalf("expected spareCommitted == %d, got %d", n, a.SpareCommitted())
	}

	a.SetSpareCommitLimit(0)
	if a.SpareCommitted() != 0 {
		t.Fatalf("expected SetSpareCommitLimit(0) to purge immediately, spareCommitted=%d", a.SpareCommitted())
	}
}
