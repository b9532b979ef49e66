// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cohortmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btccohort/cohort"
	"github.com/btcsuite/btccohort/costbasis"
	"github.com/btcsuite/btccohort/supply"
	"golang.org/x/sync/errgroup"
)

// chunks splits n items into at most workers contiguous ranges.
func chunks(n, workers int) [][2]int {
	if workers < 1 {
		workers = 1
	}
	size := (n + workers - 1) / workers
	if size == 0 {
		return nil
	}
	var out [][2]int
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		out = append(out, [2]int{lo, hi})
	}
	return out
}

// classifyOutputs folds the outputs of a block into a Transacted, in
// parallel.
func (m *Manager) classifyOutputs(ctx context.Context,
	outputs []Output) (*supply.Transacted, error) {

	parts := chunks(len(outputs), m.cfg.Workers)
	partial := make([]supply.Transacted, len(parts))

	g, _ := errgroup.WithContext(ctx)
	for i, r := range parts {
		i, r := i, r
		g.Go(func() error {
			for _, out := range outputs[r[0]:r[1]] {
				partial[i].Iterate(out.Value, out.Type)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total supply.Transacted
	for i := range partial {
		total.Merge(&partial[i])
	}
	return &total, nil
}

// groupInputs folds the inputs of block height into one Transacted per
// origin height, in parallel.  Every origin must be height itself or a
// block already processed.
func (m *Manager) groupInputs(ctx context.Context, height int32,
	inputs []Input) (map[int32]*supply.Transacted, error) {

	parts := chunks(len(inputs), m.cfg.Workers)
	partial := make([]map[int32]*supply.Transacted, len(parts))

	g, _ := errgroup.WithContext(ctx)
	for i, r := range parts {
		i, r := i, r
		g.Go(func() error {
			byHeight := make(map[int32]*supply.Transacted)
			for _, in := range inputs[r[0]:r[1]] {
				if in.OriginHeight < 0 || in.OriginHeight > height {
					return fmt.Errorf("input of block %d spends "+
						"output of unknown block %d", height,
						in.OriginHeight)
				}
				t, ok := byHeight[in.OriginHeight]
				if !ok {
					t = &supply.Transacted{}
					byHeight[in.OriginHeight] = t
				}
				t.Iterate(in.Value, in.Type)
			}
			partial[i] = byHeight
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeMaps(partial, func(dst, src *supply.Transacted) {
		dst.Merge(src)
	}), nil
}

// mergeMaps reduces partial maps into one, draining smaller maps into the
// largest.
func mergeMaps[K comparable, V any](parts []map[K]V, merge func(dst, src V)) map[K]V {
	if len(parts) == 0 {
		return make(map[K]V)
	}
	sort.Slice(parts, func(i, j int) bool {
		return len(parts[i]) > len(parts[j])
	})
	dst := parts[0]
	for _, src := range parts[1:] {
		for k, v := range src {
			if cur, ok := dst[k]; ok {
				merge(cur, v)
			} else {
				dst[k] = v
			}
		}
	}
	return dst
}

// ProcessBlock applies one block: tick-tock for its timestamp, receive of
// its outputs, send of its inputs grouped by origin height, and the address
// pass.  The block must extend the current tip.
func (m *Manager) ProcessBlock(ctx context.Context, blk *Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if want := m.history.Tip() + 1; blk.Height != want {
		return fmt.Errorf("block %d does not extend tip %d", blk.Height,
			m.history.Tip())
	}

	// Aggregate and validate first so a failure leaves the ledgers
	// untouched.
	received, err := m.classifyOutputs(ctx, blk.Outputs)
	if err != nil {
		return err
	}
	spent, err := m.groupInputs(ctx, blk.Height, blk.Inputs)
	if err != nil {
		return err
	}
	deltas, err := m.foldAddresses(ctx, blk)
	if err != nil {
		return err
	}

	m.resetFlows()

	// Tick-tock against the previous tip.
	if tip := m.history.Tip(); tip >= 0 {
		prevTS := m.history.At(tip).Timestamp
		ts := blk.Timestamp
		if ts < prevTS {
			ts = prevTS
		}
		if err := m.ageCohorts(prevTS, ts); err != nil {
			return err
		}
	}

	height := m.history.Append(BlockState{
		Timestamp: blk.Timestamp,
		Price:     blk.Price,
		Supply:    received.Spendable,
	})
	m.dirtyHeights[height] = struct{}{}
	bs := m.history.At(height)

	if err := m.receive(height, bs, received); err != nil {
		return err
	}
	if err := m.send(height, bs, spent); err != nil {
		return err
	}
	if err := m.applyAddresses(height, deltas); err != nil {
		return err
	}

	if m.costBasisStale {
		m.rebuildCostBasis()
	}

	m.blockHashes.Put(keyHeight(height), blk.Hash[:])
	m.pushSeries(bs)
	m.sinceCommit++
	m.cfg.Metrics.BlockProcessed(height)
	return nil
}

func (m *Manager) resetFlows() {
	m.utxo.each(func(e *entry) { e.state.ResetFlows() })
	m.addr.each(func(e *entry) { e.state.ResetFlows() })
}

// receive adds the outputs of the new block to every cohort they belong to.
func (m *Manager) receive(height int32, bs *BlockState,
	received *supply.Transacted) error {

	if received.Spendable.IsZero() {
		return nil
	}

	u := m.utxo
	for _, e := range u.timeBased(height, bs.Timestamp, 0) {
		e.state.Receive(received.Spendable, bs.Price)
	}
	for i := range received.BySize {
		if !received.BySize[i].IsZero() {
			u.amount[i].state.Receive(received.BySize[i], bs.Price)
		}
	}
	for i := range received.ByType {
		typ := supply.OutputType(i)
		if typ.IsSpendable() && !received.ByType[i].IsZero() {
			(*u.types.Get(typ)).state.Receive(received.ByType[i], bs.Price)
		}
	}
	return nil
}

// send removes spent outputs from the cohorts that held them.
func (m *Manager) send(height int32, bs *BlockState,
	spent map[int32]*supply.Transacted) error {

	origins := make([]int32, 0, len(spent))
	for h := range spent {
		origins = append(origins, h)
	}
	sort.Slice(origins, func(i, j int) bool { return origins[i] < origins[j] })

	u := m.utxo
	for _, origin := range origins {
		t := spent[origin]
		ob := m.history.At(origin)
		info := cohort.SpendInfo{
			Current: bs.Price,
			Prev:    ob.Price,
			Peak:    m.history.PeakSince(origin),
			Age: cohort.Age{
				Seconds: int64(bs.Timestamp) - int64(ob.Timestamp),
				Blocks:  height - origin,
			},
		}

		ob.Supply.Sub(t.Spendable)
		m.dirtyHeights[origin] = struct{}{}

		for _, e := range u.timeBased(origin, ob.Timestamp, info.Age.Seconds) {
			if err := e.state.Send(t.Spendable, info); err != nil {
				if err := m.costBasisFailure(e, err); err != nil {
					return err
				}
			}
		}
		for i := range t.BySize {
			if t.BySize[i].IsZero() {
				continue
			}
			if err := u.amount[i].state.Send(t.BySize[i], info); err != nil {
				return err
			}
		}
		for i := range t.ByType {
			typ := supply.OutputType(i)
			if !typ.IsSpendable() || t.ByType[i].IsZero() {
				continue
			}
			if err := (*u.types.Get(typ)).state.Send(t.ByType[i], info); err != nil {
				return err
			}
		}
	}
	return nil
}

// costBasisFailure turns a cost basis underflow into a rebuild of every
// distribution from the history.  Other errors are returned.
func (m *Manager) costBasisFailure(e *entry, err error) error {
	if !errors.Is(err, costbasis.ErrUnderflow) {
		return err
	}
	log.Warnf("Cost basis of %s out of sync, rebuilding: %v", e.name, err)
	m.costBasisStale = true
	return nil
}
