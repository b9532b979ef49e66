// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package costbasis

import "math/bits"

// FenwickTree is a fixed size binary indexed tree over uint64 weights.
// Point updates, prefix sums and rank queries are all O(log n).
type FenwickTree struct {
	// tree is one based: tree[i] holds the sum of the i&-i slots ending
	// at slot i-1.
	tree  []uint64
	total uint64
}

// NewFenwickTree returns an empty tree with n slots.
func NewFenwickTree(n int) *FenwickTree {
	return &FenwickTree{tree: make([]uint64, n+1)}
}

// Len returns the number of slots.
func (f *FenwickTree) Len() int {
	return len(f.tree) - 1
}

// Add adds delta to slot idx.
func (f *FenwickTree) Add(idx int, delta uint64) {
	f.total += delta
	for i := idx + 1; i < len(f.tree); i += i & -i {
		f.tree[i] += delta
	}
}

// Sub removes delta from slot idx.  The caller guarantees the slot holds at
// least delta.
func (f *FenwickTree) Sub(idx int, delta uint64) {
	f.total -= delta
	for i := idx + 1; i < len(f.tree); i += i & -i {
		f.tree[i] -= delta
	}
}

// PrefixSum returns the sum of slots 0 through idx inclusive.  A negative
// idx yields zero.
func (f *FenwickTree) PrefixSum(idx int) uint64 {
	if idx >= f.Len() {
		idx = f.Len() - 1
	}
	var sum uint64
	for i := idx + 1; i > 0; i -= i & -i {
		sum += f.tree[i]
	}
	return sum
}

// Total returns the sum of every slot.
func (f *FenwickTree) Total() uint64 {
	return f.total
}

// LowerBound returns the smallest slot whose prefix sum is at least target.
// The second return is false when target exceeds the total.
func (f *FenwickTree) LowerBound(target uint64) (int, bool) {
	if target == 0 {
		return 0, true
	}
	if target > f.total {
		return 0, false
	}

	n := f.Len()
	pos := 0
	for step := 1 << (bits.Len(uint(n)) - 1); step > 0; step >>= 1 {
		next := pos + step
		if next <= n && f.tree[next] < target {
			pos = next
			target -= f.tree[next]
		}
	}
	return pos, true
}

// Reset zeroes every slot.
func (f *FenwickTree) Reset() {
	for i := range f.tree {
		f.tree[i] = 0
	}
	f.total = 0
}
