// ABOUTME: Allocation policy: Plan A/B/C/D fallback over zone preferences, then universal last resort
// ABOUTME: A single automatic retry happens after a hysteresis purge when the OS refuses to map

package arena

import (
	"fmt"
	"time"
)

// Preference is a segment preference consumed by allocation.
type Preference struct {
	Generational   bool
	Generation     int
	PreferredZones RefSet
	AvoidZones     RefSet
	High           bool // request allocation from the top of candidate runs
	Collected      bool // object is subject to garbage collection: fold in the arena's blacklist
}

const (
	planA    = "plan_a"
	planB    = "plan_b"
	planC    = "plan_c"
	planD    = "plan_d"
	planLast = "last_resort"
)

// Alloc serves a tract of `size` bytes (a multiple of the arena's page
// size) to pool, honoring pref's zone preference where the arena's
// class allows it.
func (a *Arena) Alloc(pool Pool, pref Preference, size uint64) (uintptr, *Tract, error) {
	start := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	defer func() {
		if a.met != nil {
			a.met.AllocDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if size == 0 || uint64(size)%uint64(a.alignment) != 0 {
		return 0, nil, fmt.Errorf("%w: size %d is not a multiple of the page size", ErrParam, size)
	}

	// Commit-limit pre-check, using spareCommitted as slack exactly as
	// spec.md §4.I states it (see DESIGN.md for the open question this
	// leaves unresolved on purpose).
	margin := int64(a.committed) + int64(size) - int64(a.spareCommitted)
	if margin > 0 && uint64(margin) > a.commitLimit {
		if a.met != nil {
			a.met.RecordAllocFailure("commit_limit")
		}
		return 0, nil, ErrCommitLimit
	}

	// Collected objects fold the arena's blacklist into the avoid set
	// for every plan except the universal last resort (spec.md §3, §4.I:
	// zones 0 and word-width-1 are avoided by default for collectable
	// memory, but the last resort may still dip into them).
	avoid := pref.AvoidZones
	if pref.Collected {
		avoid = avoid.Union(a.blacklist)
	}

	if a.class == ClassVMNZ {
		zones := UniversalRefSet().Diff(avoid)
		if base, t, err, ok := a.tryPlan(pool, pref, size, zones, planA); ok {
			return base, t, err
		}
		if _, err := a.growLocked(a.extendBy + size); err != nil {
			return 0, nil, err
		}
		if base, t, err, ok := a.tryPlan(pool, pref, size, zones, planC); ok {
			return base, t, err
		}
		if a.met != nil {
			a.met.RecordAllocFailure("resource")
		}
		return 0, nil, ErrResource
	}

	// Plan A: preferred zones minus avoided.
	zonesA := pref.PreferredZones.Diff(avoid)
	if base, t, err, ok := a.tryPlan(pool, pref, size, zonesA, planA); ok {
		return base, t, err
	}

	// Plan B: widen to preferred union arena-free, minus avoided.
	zonesB := pref.PreferredZones.Union(a.freeSet.Diff(avoid))
	if base, t, err, ok := a.tryPlan(pool, pref, size, zonesB, planB); ok {
		return base, t, err
	}

	// Plan C: grow the arena, then retry A and B. If growth fails the
	// remaining plans still run over the existing chunks.
	_, growErr := a.growLocked(a.extendBy + size)
	if growErr == nil {
		zonesBAfterGrow := pref.PreferredZones.Union(a.freeSet.Diff(avoid))
		if base, t, err, ok := a.tryPlan(pool, pref, size, zonesA, planC); ok {
			return base, t, err
		}
		if base, t, err, ok := a.tryPlan(pool, pref, size, zonesBAfterGrow, planC); ok {
			return base, t, err
		}
	}

	// Plan D: widen to universal minus avoided, mixing generations.
	zonesD := UniversalRefSet().Diff(avoid)
	if base, t, err, ok := a.tryPlan(pool, pref, size, zonesD, planD); ok {
		return base, t, err
	}

	// Last resort: universal set, may place collectable objects in
	// blacklisted zones, degrading zone-check precision permanently.
	if base, t, err, ok := a.tryPlan(pool, pref, size, UniversalRefSet(), planLast); ok {
		return base, t, err
	}

	if growErr != nil {
		return 0, nil, growErr
	}
	if a.met != nil {
		a.met.RecordAllocFailure("resource")
	}
	return 0, nil, ErrResource
}

// tryPlan attempts one plan: search zones for a run, then run the page
// mapping sub-protocol. ok is false only when no run was found at all
// (the caller should fall through to the next plan); err is set when a
// run was found but mapping it failed.
func (a *Arena) tryPlan(pool Pool, pref Preference, size uint64, zones RefSet, plan string) (uintptr, *Tract, error, bool) {
	c, startIdx, found := a.findFreeInRefSet(size, zones, pref.High)
	if !found {
		return 0, nil, nil, false
	}

	n := size / uint64(a.alignment)
	tract, err := a.commitAndAllocRun(c, startIdx, n, pool)
	if err != nil {
		return 0, nil, err, true
	}

	base := c.pageAddr(startIdx)
	rs := RefSetOfRange(base, base+size, a.zoneShift)
	a.freeSet = a.freeSet.Diff(rs)
	if pref.Generational && pref.Generation >= 0 && pref.Generation < maxGenerations {
		a.genRefSet[pref.Generation] = a.genRefSet[pref.Generation].Union(rs)
	}

	if a.met != nil {
		a.met.AllocationsTotal.WithLabelValues(plan).Inc()
		a.met.ArenaCommittedBytes.Set(float64(a.committed))
	}
	a.logEvent("allocated").
		withField("plan", plan).
		withField("base", base).
		withField("size", size).
		emit()

	return base, tract, nil, true
}

// commitAndAllocRun coalesces [startIdx, startIdx+n) into alternating
// already-mapped (Latent) and needs-map sub-runs, maps the latter (with
// one retry after a hysteresis purge if the OS refuses), and allocates
// every page in the run to pool. On a mapping failure it unmaps and
// resets every sub-run it had already mapped in this call, leaving no
// side effects, and records an emergency trace request.
func (a *Arena) commitAndAllocRun(c *Chunk, startIdx, n uint64, pool Pool) (*Tract, error) {
	end := startIdx + n
	type subrun struct{ lo, hi uint64 }
	var newlyMapped []subrun

	revert := func() {
		for _, r := range newlyMapped {
			_ = c.region.unmapRange(c.pageAddr(r.lo), c.pageAddr(r.hi))
		}
	}

	i := startIdx
	for i < end {
		c.ensureTableMapped(c.tablePageOf(i))
		if c.pageIsMapped(i) {
			i++
			continue
		}
		j := i
		for j < end {
			c.ensureTableMapped(c.tablePageOf(j))
			if c.pageIsMapped(j) {
				break
			}
			j++
		}

		if err := c.region.mapRange(c.pageAddr(i), c.pageAddr(j)); err != nil {
			a.purgeLocked(0)
			if err2 := c.region.mapRange(c.pageAddr(i), c.pageAddr(j)); err2 != nil {
				revert()
				a.emergencyTrace = true
				return nil, ErrResource
			}
		}
		newlyMapped = append(newlyMapped, subrun{lo: i, hi: j})
		i = j
	}

	var tract *Tract
	for p := startIdx; p < end; p++ {
		t := a.pageAlloc(c, p, pool)
		if p == startIdx {
			tract = t
		}
	}

	var newBytes uint64
	for _, r := range newlyMapped {
		newBytes += (r.hi - r.lo) * uint64(c.pageSize)
	}
	a.committed += newBytes

	return tract, nil
}

// Free returns [base, base+size) to the arena. base and size must be
// page-aligned, and the region must have been returned by a prior Alloc
// from this pool — ownership mismatches are a programmer error and
// panic rather than returning an error.
func (a *Arena) Free(base uintptr, size uint64, pool Pool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if size == 0 || uint64(size)%uint64(a.alignment) != 0 {
		return fmt.Errorf("%w: size %d is not a multiple of the page size", ErrParam, size)
	}

	var c *Chunk
	for _, cand := range a.chunks {
		if base >= cand.base && base < cand.limit {
			c = cand
			break
		}
	}
	if c == nil {
		return fmt.Errorf("%w: base %#x is not in any chunk", ErrParam, base)
	}

	assertf(uintptr(base)%a.alignment == 0, "Free: base %#x is not page-aligned", base)

	startIdx, _ := c.pageIndexOfAddr(base)
	n := size / uint64(a.alignment)

	for p := startIdx; p < startIdx+n; p++ {
		d := c.descriptor(p)
		assertf(d.state == stateAllocated, "Free: page %d is not allocated", p)
		assertf(d.tract.Pool == pool, "Free: page %d is not owned by the freeing pool", p)
	}
	for p := startIdx; p < startIdx+n; p++ {
		a.pageLatent(c, p)
	}

	if a.met != nil {
		a.met.ArenaSpareCommittedBytes.Set(float64(a.spareCommitted))
	}
	a.logEvent("freed").withField("base", base).withField("size", size).emit()

	if a.spareCommitted > a.spareCommitLimit {
		a.purgeLocked(a.spareCommitted - a.spareCommitLimit)
	}
	return nil
}
