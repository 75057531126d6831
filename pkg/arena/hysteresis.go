// ABOUTME: Spare-commit hysteresis pool: keeps freed pages mapped until pressure purges them
// ABOUTME: Purge walks the latent ring in insertion order and unmaps each page's contiguous latent run

package arena

// extendLatentRun finds the maximal contiguous run of Latent pages in c
// containing page i, testing each neighbouring descriptor in turn; a set
// no-latent bit (or an unmapped table page) ends the run without
// reading the descriptor.
func (c *Chunk) extendLatentRun(i uint64) (lo, hi uint64) {
	lo, hi = i, i+1
	for lo > c.ullage {
		tp := c.tablePageOf(lo - 1)
		if c.noLatentBitmap.Test(tp) || !c.tableMappedBitmap.Test(tp) || c.pageTable[lo-1].state != stateLatent {
			break
		}
		lo--
	}
	for hi < c.pages {
		tp := c.tablePageOf(hi)
		if c.noLatentBitmap.Test(tp) || !c.tableMappedBitmap.Test(tp) || c.pageTable[hi].state != stateLatent {
			break
		}
		hi++
	}
	return
}

// purgeLocked unmaps latent pages starting from the ring head, in
// insertion order, coalescing each into its maximal address-contiguous
// run before unmapping, until at least atLeast bytes have been freed
// (atLeast == 0 means "purge everything"). Callers must hold a.mu.
// Returns the bytes actually purged.
func (a *Arena) purgeLocked(atLeast uint64) uint64 {
	var purged uint64
	for !a.latentHead.isNil() {
		if atLeast != 0 && purged >= atLeast {
			break
		}
		c := a.chunkAt(a.latentHead)
		i := uint64(a.latentHead.pageIdx)
		lo, hi := c.extendLatentRun(i)

		for p := lo; p < hi; p++ {
			a.ringUnlink(c, p)
		}
		if err := c.region.unmapRange(c.pageAddr(lo), c.pageAddr(hi)); err != nil {
			// Leave the pages Latent (and off the ring is wrong — put
			// them back) rather than silently losing the hysteresis
			// accounting; this should not happen for a decommit.
			for p := lo; p < hi; p++ {
				a.ringAppend(c, p)
			}
			break
		}
		for p := lo; p < hi; p++ {
			a.pageReclaim(c, p)
		}

		n := (hi - lo) * uint64(c.pageSize)
		a.committed -= n
		a.spareCommitted -= n
		purged += n
	}

	if purged > 0 {
		if a.met != nil {
			a.met.PurgesTotal.Inc()
			a.met.ArenaCommittedBytes.Set(float64(a.committed))
			a.met.ArenaSpareCommittedBytes.Set(float64(a.spareCommitted))
		}
		a.logEvent("hysteresis purged").withField("bytes", purged).emit()
	}
	return purged
}

// purgeAllLocked purges every latent page. Idempotent: a second call
// with an empty ring is a no-op.
func (a *Arena) purgeAllLocked() uint64 {
	return a.purgeLocked(0)
}
