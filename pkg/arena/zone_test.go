package arena

import "testing"

func TestRefSetBasicOps(t *testing.T) {
	a := SingleZone(1).Union(SingleZone(3))
	b := SingleZone(3).Union(SingleZone(5))

	if !a.Member(1) || !a.Member(3) || a.Member(5) {
		t.Fatalf("unexpected membership in a: %v", a)
	}
	if u := a.Union(b); !u.Member(1) || !u.Member(3) || !u.Member(5) {
		t.Fatalf("union missing expected members: %v", u)
	}
	if i := a.Inter(b); !i.Member(3) || i.Member(1) || i.Member(5) {
		t.Fatalf("intersection wrong: %v", i)
	}
	if d := a.Diff(b); !d.Member(1) || d.Member(3) {
		t.Fatalf("difference wrong: %v", d)
	}
	if !EmptyRefSet().IsEmpty() || UniversalRefSet().IsEmpty() {
		t.Fatalf("universal/empty sets misbehave")
	}
}

func TestZoneOfAddr(t *testing.T) {
	const shift = 12 // 4 KiB stripes
	if z := ZoneOfAddr(0, shift); z != 0 {
		t.Fatalf("expected zone 0 at address 0, got %d", z)
	}
	stripe := stripeSize(shift)
	if z := ZoneOfAddr(stripe, shift); z != 1 {
		t.Fatalf("expected zone 1 one stripe in, got %d", z)
	}
	if z := ZoneOfAddr(stripe*wordBits, shift); z != 0 {
		t.Fatalf("expected zone wraparound to 0 after a full period, got %d", z)
	}
}

func TestRefSetOfRangeWithinOnePeriod(t *testing.T) {
	const shift = 12
	stripe := stripeSize(shift)
	rs := RefSetOfRange(0, stripe*3, shift)
	if !rs.Member(0) || !rs.Member(1) || !rs.Member(2) || rs.Member(3) {
		t.Fatalf("expected zones {0,1,2} exactly, got %v", rs)
	}
}

func TestRefSetOfRangeSaturatesPastFullPeriod(t *testing.T) {
	const shift = 12
	stripe := stripeSize(shift)
	rs := RefSetOfRange(0, stripe*wordBits+1, shift)
	if rs != UniversalRefSet() {
		t.Fatalf("expected saturation to the universal set, got %v", rs)
	}
}

func TestRefSetOfRangeEmptyWhenBaseNotBeforeLimit(t *testing.T) {
	if rs := RefSetOfRange(100, 100, 12); !rs.IsEmpty() {
		t.Fatalf("expected empty ref-set for a zero-length range")
	}
}

func TestDefaultBlacklistCoversZoneZeroAndTop(t *testing.T) {
	bl := defaultBlacklist()
	if !bl.Member(0) || !bl.Member(wordBits-1) {
		t.Fatalf("expected zones 0 and %d blacklisted, got %v", wordBits-1, bl)
	}
	if bl.Member(1) {
		t.Fatalf("expected zone 1 not blacklisted")
	}
}
