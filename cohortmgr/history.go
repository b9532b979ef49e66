// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cohortmgr

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/btcsuite/btccohort/supply"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// BlockState is the history entry of one block: when it was mined, the
// price it was mined at and the part of its outputs still unspent.
type BlockState struct {
	Timestamp uint32
	Price     fn.Option[supply.Cents]
	Supply    supply.State
}

// History is the arena of every processed block's BlockState, indexed by
// height.  Timestamps are non-decreasing so ages and boundary crossings can
// be found by binary search.
type History struct {
	blocks []BlockState

	// peaks is a monotonic stack of heights whose prices strictly
	// decrease from bottom to top.  The highest price from any height
	// to the tip is the price of the first entry at or above that
	// height.
	peaks []int32
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{}
}

// Len returns the number of blocks.
func (h *History) Len() int {
	return len(h.blocks)
}

// Tip returns the height of the last block, or -1 when empty.
func (h *History) Tip() int32 {
	return int32(len(h.blocks)) - 1
}

// At returns the state of the block at height for in-place mutation.
func (h *History) At(height int32) *BlockState {
	return &h.blocks[height]
}

// Append adds the next block.  Its timestamp is raised to the previous
// block's if it is earlier, since block times are only loosely ordered.
func (h *History) Append(bs BlockState) int32 {
	if n := len(h.blocks); n > 0 && bs.Timestamp < h.blocks[n-1].Timestamp {
		bs.Timestamp = h.blocks[n-1].Timestamp
	}
	h.blocks = append(h.blocks, bs)
	height := int32(len(h.blocks) - 1)
	h.pushPeak(height)
	return height
}

func (h *History) pushPeak(height int32) {
	p, ok := h.blocks[height].Price.UnwrapOr(0), h.blocks[height].Price.IsSome()
	if !ok {
		return
	}
	for len(h.peaks) > 0 {
		top := h.peaks[len(h.peaks)-1]
		if h.blocks[top].Price.UnwrapOr(0) > p {
			break
		}
		h.peaks = h.peaks[:len(h.peaks)-1]
	}
	h.peaks = append(h.peaks, height)
}

// Truncate drops every block above height.
func (h *History) Truncate(height int32) {
	if int(height)+1 >= len(h.blocks) {
		return
	}
	h.blocks = h.blocks[:height+1]
	h.rebuildPeaks()
}

func (h *History) rebuildPeaks() {
	h.peaks = h.peaks[:0]
	for i := range h.blocks {
		h.pushPeak(int32(i))
	}
}

// PeakSince returns the highest price of the blocks from height to the tip.
func (h *History) PeakSince(height int32) fn.Option[supply.Cents] {
	i := sort.Search(len(h.peaks), func(i int) bool {
		return h.peaks[i] >= height
	})
	if i == len(h.peaks) {
		return fn.None[supply.Cents]()
	}
	return h.blocks[h.peaks[i]].Price
}

// FirstAfter returns the lowest height whose timestamp is after ts, or
// Len() if there is none.
func (h *History) FirstAfter(ts int64) int {
	return sort.Search(len(h.blocks), func(i int) bool {
		return int64(h.blocks[i].Timestamp) > ts
	})
}

// TotalSupply sums the unspent supply of every block.
func (h *History) TotalSupply() supply.State {
	var s supply.State
	for i := range h.blocks {
		s.Add(h.blocks[i].Supply)
	}
	return s
}

// blockStateSize is the serialized size of a BlockState.
const blockStateSize = 4 + 1 + 8 + 8 + 8

func keyHeight(height int32) []byte {
	var k [4]byte
	byteOrder.PutUint32(k[:], uint32(height))
	return k[:]
}

// valueBlockState serializes a BlockState for the chain state map.
func valueBlockState(bs *BlockState) []byte {
	v := make([]byte, blockStateSize)
	byteOrder.PutUint32(v[0:4], bs.Timestamp)
	bs.Price.WhenSome(func(p supply.Cents) {
		v[4] = 1
		byteOrder.PutUint64(v[5:13], uint64(p))
	})
	byteOrder.PutUint64(v[13:21], bs.Supply.UTXOCount)
	byteOrder.PutUint64(v[21:29], uint64(bs.Supply.Value))
	return v
}

func readBlockState(v []byte) (BlockState, error) {
	if len(v) != blockStateSize {
		return BlockState{}, fmt.Errorf("block state: expected %d "+
			"bytes, got %d", blockStateSize, len(v))
	}
	bs := BlockState{
		Timestamp: byteOrder.Uint32(v[0:4]),
		Price:     fn.None[supply.Cents](),
		Supply: supply.State{
			UTXOCount: byteOrder.Uint64(v[13:21]),
			Value:     btcutil.Amount(byteOrder.Uint64(v[21:29])),
		},
	}
	if v[4] == 1 {
		bs.Price = fn.Some(supply.Cents(byteOrder.Uint64(v[5:13])))
	}
	return bs, nil
}

// byteOrder is the byte order of every persisted integer.
var byteOrder = binary.BigEndian
