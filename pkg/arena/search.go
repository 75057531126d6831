// ABOUTME: Free-land search: find a page run satisfying a reference-set constraint
// ABOUTME: Directional (high/low); steps across zone stripes, treating address-space wrap as end-of-chunk

package arena

// findFreeInArea turns [base, limit) into a page-index range (clipped to
// the chunk's post-ullage pages) and asks the allocation bitmap for a
// run of n = size/pageSize reset bits, honoring `high`.
func findFreeInArea(c *Chunk, size uint64, base, limit uintptr, high bool) (pageIdx uint64, ok bool) {
	postUllage := c.base + c.ullage*c.pageSize
	if base < postUllage {
		base = postUllage
	}
	if limit > c.limit {
		limit = c.limit
	}
	if base >= limit {
		return 0, false
	}

	loIdx := uint64(base-c.base) / uint64(c.pageSize)
	hiIdx := uint64(limit-c.base) / uint64(c.pageSize)
	n := size / uint64(c.pageSize)

	if high {
		return c.allocBitmap.FindShortResRangeHigh(loIdx, hiIdx, n)
	}
	return c.allocBitmap.FindShortResRange(loIdx, hiIdx, n)
}

// searchOrder returns the chunk scan order: the cached primary chunk
// first (a pure performance hint), then the rest of the ring in
// creation order. findFreeInRefSet scans in this order; tract
// iteration (component K) walks chunks in address order and only
// updates the shared chunk cache.
func (a *Arena) searchOrder() []*Chunk {
	order := make([]*Chunk, 0, len(a.chunks))
	if a.chunkCache >= 0 && a.chunkCache < len(a.chunks) {
		order = append(order, a.chunks[a.chunkCache])
	}
	for i, c := range a.chunks {
		if i == a.chunkCache {
			continue
		}
		order = append(order, c)
	}
	return order
}

// findFreeInRefSet searches the chunk ring for a page run of `size`
// bytes whose every page's zone is in refSet. Within a chunk it walks
// from the first post-ullage address, extending the candidate range
// across consecutive in-set zone stripes and jumping over out-of-set
// stripes; arithmetic wrap at the top of the address space ends the
// chunk's scan early (zones are periodic, so a genuine wrap would
// otherwise revisit zone 0 forever).
func (a *Arena) findFreeInRefSet(size uint64, refSet RefSet, high bool) (*Chunk, uint64, bool) {
	stripe := stripeSize(a.zoneShift)

	for _, c := range a.searchOrder() {
		cursor := c.base + c.ullage*c.pageSize
		for cursor < c.limit {
			z := ZoneOfAddr(cursor, a.zoneShift)
			if !refSet.Member(z) {
				next := addrAlignUp(cursor+1, stripe)
				if next <= cursor {
					break // wrapped past the top of the address space
				}
				cursor = next
				continue
			}

			segStart := cursor
			segEnd := addrAlignUp(cursor+1, stripe)
			for segEnd < c.limit && refSet.Member(ZoneOfAddr(segEnd, a.zoneShift)) {
				next := addrAlignUp(segEnd+1, stripe)
				if next <= segEnd {
					break
				}
				segEnd = next
			}
			if segEnd > c.limit {
				segEnd = c.limit
			}

			if idx, ok := findFreeInArea(c, size, segStart, segEnd, high); ok {
				a.chunkCache = int(c.idx)
				return c, idx, true
			}
			cursor = segEnd
		}
	}
	return nil, 0, false
}
