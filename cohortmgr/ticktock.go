// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cohortmgr

import "github.com/btcsuite/btccohort/cohort"

// tickTock moves the outputs that crossed an age boundary between the
// previous tip timestamp prevTS and ts from bucket i to bucket i+1 of a
// ladder.  boundaries are in hours, ascending, and buckets has one more
// element than boundaries.
//
// Only the blocks with a timestamp in (prevTS - b, ts - b] cross boundary b,
// and they are found by binary search, so the cost is O(boundaries ×
// (log n + crossings)).  It returns the number of blocks moved.
func (m *Manager) tickTock(prevTS, ts uint32, boundaries []uint32,
	buckets []*entry) (int, error) {

	if ts <= prevTS {
		return 0, nil
	}

	var moved int
	for i, b := range boundaries {
		secs := int64(b) * 3600
		upper := int64(ts) - secs
		lower := int64(prevTS) - secs
		if upper < 0 || upper <= lower {
			continue
		}

		start := m.history.FirstAfter(lower)
		end := m.history.FirstAfter(upper)
		for height := start; height < end; height++ {
			bs := m.history.At(int32(height))
			if bs.Supply.IsZero() {
				continue
			}

			from, to := buckets[i].state, buckets[i+1].state
			if err := from.Decrement(bs.Supply, bs.Price); err != nil {
				if err := m.costBasisFailure(buckets[i], err); err != nil {
					return moved, err
				}
			}
			to.Increment(bs.Supply, bs.Price)
			moved++
		}
	}
	return moved, nil
}

// ageCohorts runs the tick-tock of every age based ladder for a new block
// timestamp.
func (m *Manager) ageCohorts(prevTS, ts uint32) error {
	u := m.utxo

	moved, err := m.tickTock(prevTS, ts, cohort.AgeBoundaries[:], u.age[:])
	if err != nil {
		return err
	}
	n, err := m.tickTock(prevTS, ts, cohort.TermBoundaries[:], u.term[:])
	if err != nil {
		return err
	}
	moved += n

	if moved > 0 {
		log.Tracef("Tick-tock moved %d block supplies", moved)
	}
	m.cfg.Metrics.AddCrossings(moved)
	return nil
}
