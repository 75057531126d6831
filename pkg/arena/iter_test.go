package arena

import "testing"

func TestTractFirstAndNext(t *testing.T) {
	a := mustCreateArena(t, ClassVM, 1<<20, Config{})
	pool := testPool{id: "p1"}
	pageSize := uint64(a.alignment)

	base1, _, err := a.Alloc(pool, fillPref(), pageSize)
	if err != nil {
		t.Fatalf("Alloc 1 failed: %v", err)
	}
	base2, _, err := a.Alloc(pool, fillPref(), pageSize)
	if err != nil {
		t.Fatalf("Alloc 2 failed: %v", err)
	}

	lo, hi := base1, base2
	if hi < lo {
		lo, hi = hi, lo
	}

	first, ok := a.TractFirst()
	if !ok || first.Base != lo {
		t.Fatalf("expected TractFirst to return the lowest base %#x, got %#x ok=%v", lo, first.Base, ok)
	}
	next, ok := a.TractNext(first.Base)
	if !ok || next.Base != hi {
		t.Fatalf("expected TractNext to return %#x, got %#x ok=%v", hi, next.Base, ok)
	}
	if _, ok := a.TractNext(next.Base); ok {
		t.Fatalf("expected no tract after the last one")
	}
}

func TestTractOfAddr(t *testing.T) {
	a := mustCreateArena(t, ClassVM, 1<<20, Config{})
	pool := testPool{id: "p1"}
	pageSize := uint64(a.alignment)

	base, _, err := a.Alloc(pool, fillPref(), pageSize)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	tract, ok := a.TractOfAddr(base)
	if !ok || tract.Base != base {
		t.Fatalf("expected TractOfAddr(%#x) to find the allocated tract", base)
	}
	if _, ok := a.TractOfAddr(base + uintptr(pageSize)*100); ok {
		t.Fatalf("expected no tract at an unallocated address")
	}
}

func TestTractNextContig(t *testing.T) {
	a := mustCreateArena(t, ClassVM, 1<<20, Config{})
	pool := testPool{id: "p1"}
	pageSize := uint64(a.alignment)

	base, tract, err := a.Alloc(pool, fillPref(), pageSize*3)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	second, ok := a.TractNextContig(tract)
	if !ok || second.Base != base+uintptr(pageSize) {
		t.Fatalf("expected a contiguous tract at %#x, got %#x ok=%v", base+uintptr(pageSize), second.Base, ok)
	}
	third, ok := a.TractNextContig(second)
	if !ok || third.Base != base+uintptr(2*pageSize) {
		t.Fatalf("expected a third contiguous tract, got %#x ok=%v", third.Base, ok)
	}
	if _, ok := a.TractNextContig(third); ok {
		t.Fatalf("expected no tract contiguous beyond the end of the run")
	}
}

func TestTractNextContigStopsAtPoolBoundary(t *testing.T) {
	a := mustCreateArena(t, ClassVM, 1<<20, Config{})
	poolA := testPool{id: "a"}
	poolB := testPool{id: "b"}
	pageSize := uint64(a.alignment)

	base, tract, err := a.Alloc(poolA, fillPref(), pageSize)
	if err != nil {
		t.Fatalf("Alloc A failed: %v", err)
	}
	if _, _, err := a.Alloc(poolB, fillPref(), pageSize); err != nil {
		t.Fatalf("Alloc B failed: %v", err)
	}

	if next, ok := a.TractNextContig(tract); ok {
		t.Fatalf("expected no contiguous tract across a pool boundary, got base=%#x after %#x", next.Base, base)
	}
}
