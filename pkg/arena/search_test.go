package arena

import "testing"

func TestFindFreeInRefSetHonorsZoneRestriction(t *testing.T) {
	a := mustCreateArena(t, ClassVM, 64<<20, Config{})
	pageSize := uint64(a.alignment)

	c, idx, ok := a.findFreeInRefSet(pageSize, SingleZone(5), false)
	if !ok {
		t.Fatalf("expected to find a free run in zone 5")
	}
	if z := ZoneOfAddr(c.pageAddr(idx), a.zoneShift); z != 5 {
		t.Fatalf("expected the found run to land in zone 5, got zone %d", z)
	}
}

func TestFindFreeInRefSetFailsOnEmptySet(t *testing.T) {
	a := mustCreateArena(t, ClassVM, 1<<20, Config{})
	pageSize := uint64(a.alignment)

	if _, _, ok := a.findFreeInRefSet(pageSize, EmptyRefSet(), false); ok {
		t.Fatalf("expected no run to satisfy the empty ref-set")
	}
}

func TestFindFreeInRefSetHighDirection(t *testing.T) {
	a := mustCreateArena(t, ClassVM, 64<<20, Config{})
	pageSize := uint64(a.alignment)

	_, lowIdx, ok := a.findFreeInRefSet(pageSize, UniversalRefSet(), false)
	if !ok {
		t.Fatalf("expected a run at the low end")
	}
	_, highIdx, ok := a.findFreeInRefSet(pageSize, UniversalRefSet(), true)
	if !ok {
		t.Fatalf("expected a run at the high end")
	}
	if highIdx <= lowIdx {
		t.Fatalf("expected the high-direction search to land above the low one: low=%d high=%d", lowIdx, highIdx)
	}
}

func TestSearchOrderPutsCacheFirst(t *testing.T) {
	a := mustCreateArena(t, ClassVM, 128<<10, Config{ExtendBy: 128 << 10})
	pool := testPool{id: "p1"}
	pageSize := uint64(a.alignment)

	for a.Reserved()-a.Committed() >= pageSize {
		if _, _, err := a.Alloc(pool, fillPref(), pageSize); err != nil {
			t.Fatalf("filler Alloc failed: %v", err)
		}
	}
	if _, _, err := a.Alloc(pool, fillPref(), pageSize); err != nil {
		t.Fatalf("growth Alloc failed: %v", err)
	}
	if len(a.chunks) < 2 {
		t.Fatalf("expected at least two chunks after growth, got %d", len(a.chunks))
	}

	order := a.searchOrder()
	if order[0] != a.chunks[a.chunkCache] {
		t.Fatalf("expected the cached chunk to sort first")
	}
}
