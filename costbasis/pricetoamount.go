// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package costbasis

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/btcsuite/btccohort/colstore"
	"github.com/btcsuite/btccohort/supply"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/btree"
)

var (
	// ErrUnderflow is returned when more is removed at a price than the
	// distribution holds there.  The distribution must be reset and
	// rebuilt.
	ErrUnderflow = errors.New("cost basis underflow")

	// ErrCorrupt is returned by Import when the persisted distribution is
	// missing, malformed or for another height.
	ErrCorrupt = errors.New("cost basis corrupt")
)

var (
	keyStatePrefix = []byte("state/")
	keyHeight      = []byte("height")
)

// btreeDegree is the branching factor of the price tree.
const btreeDegree = 32

// entry is one price level of the distribution.
type entry struct {
	price  supply.Cents
	amount btcutil.Amount
}

func lessEntry(a, b entry) bool {
	return a.price < b.price
}

// PriceToAmount records, for currently held outputs, how much value was
// last transacted at each price.  An ordered tree keeps the exact levels and
// a Fenwick tree over discretized prices answers prefix sum and percentile
// queries in O(log n).
type PriceToAmount struct {
	levels  *btree.BTreeG[entry]
	fenwick *FenwickTree

	// dirty holds the prices changed since the last flush.  cleared is
	// set by Reset so the next flush drops every persisted level first.
	dirty   map[supply.Cents]struct{}
	cleared bool
}

// New returns an empty distribution.
func New() *PriceToAmount {
	return &PriceToAmount{
		levels:  btree.NewG[entry](btreeDegree, lessEntry),
		fenwick: NewFenwickTree(NumPriceBuckets),
		dirty:   make(map[supply.Cents]struct{}),
	}
}

// Increment adds amount at price.
func (p *PriceToAmount) Increment(price supply.Cents, amount btcutil.Amount) {
	if amount <= 0 {
		return
	}
	e, _ := p.levels.Get(entry{price: price})
	e.price = price
	e.amount += amount
	p.levels.ReplaceOrInsert(e)
	p.fenwick.Add(PriceBucket(price), uint64(amount))
	p.dirty[price] = struct{}{}
}

// Decrement removes amount at price, dropping the level once it is empty.
// ErrUnderflow is returned, and nothing changed, if the level holds less.
func (p *PriceToAmount) Decrement(price supply.Cents, amount btcutil.Amount) error {
	if amount <= 0 {
		return nil
	}
	e, ok := p.levels.Get(entry{price: price})
	if !ok || e.amount < amount {
		return fmt.Errorf("%w: remove %v at %v, held %v", ErrUnderflow,
			amount, price, e.amount)
	}

	e.amount -= amount
	if e.amount == 0 {
		p.levels.Delete(e)
	} else {
		p.levels.ReplaceOrInsert(e)
	}
	p.fenwick.Sub(PriceBucket(price), uint64(amount))
	p.dirty[price] = struct{}{}
	return nil
}

// Get returns the amount held at exactly price.
func (p *PriceToAmount) Get(price supply.Cents) btcutil.Amount {
	e, _ := p.levels.Get(entry{price: price})
	return e.amount
}

// FirstKeyValue returns the lowest held price and its amount.
func (p *PriceToAmount) FirstKeyValue() (supply.Cents, btcutil.Amount, bool) {
	e, ok := p.levels.Min()
	return e.price, e.amount, ok
}

// LastKeyValue returns the highest held price and its amount.
func (p *PriceToAmount) LastKeyValue() (supply.Cents, btcutil.Amount, bool) {
	e, ok := p.levels.Max()
	return e.price, e.amount, ok
}

// Len returns the number of price levels.
func (p *PriceToAmount) Len() int {
	return p.levels.Len()
}

// Total returns the value held across every price.
func (p *PriceToAmount) Total() btcutil.Amount {
	return btcutil.Amount(p.fenwick.Total())
}

// ForEach calls fn for every level in ascending price order until fn
// returns false.
func (p *PriceToAmount) ForEach(fn func(price supply.Cents, amount btcutil.Amount) bool) {
	p.levels.Ascend(func(e entry) bool {
		return fn(e.price, e.amount)
	})
}

// SupplyBelow returns the value held at prices strictly below price.
func (p *PriceToAmount) SupplyBelow(price supply.Cents) btcutil.Amount {
	b := PriceBucket(price)
	sum := btcutil.Amount(p.fenwick.PrefixSum(b - 1))
	p.levels.AscendRange(entry{price: BucketFloor(b)}, entry{price: price},
		func(e entry) bool {
			sum += e.amount
			return true
		})
	return sum
}

// Percentile returns the lowest price at or below which at least fraction
// q of the held value sits.  The second return is false for an empty
// distribution.
func (p *PriceToAmount) Percentile(q float64) (supply.Cents, bool) {
	total := p.fenwick.Total()
	if total == 0 {
		return 0, false
	}

	target := uint64(math.Ceil(q * float64(total)))
	switch {
	case target == 0:
		target = 1
	case target > total:
		target = total
	}

	b, ok := p.fenwick.LowerBound(target)
	if !ok {
		return 0, false
	}

	// Walk the exact levels inside the bucket.
	cum := p.fenwick.PrefixSum(b - 1)
	var price supply.Cents
	p.levels.AscendGreaterOrEqual(entry{price: BucketFloor(b)},
		func(e entry) bool {
			price = e.price
			cum += uint64(e.amount)
			return cum < target
		})
	return price, true
}

// Reset drops every level.  The next flush replaces the persisted
// distribution entirely.
func (p *PriceToAmount) Reset() {
	p.levels.Clear(false)
	p.fenwick.Reset()
	p.dirty = make(map[supply.Cents]struct{})
	p.cleared = true
}

func keyState(price supply.Cents) []byte {
	k := make([]byte, len(keyStatePrefix)+8)
	copy(k, keyStatePrefix)
	binary.BigEndian.PutUint64(k[len(keyStatePrefix):], uint64(price))
	return k
}

// Flush buffers the levels changed since the last flush, and the height
// they reflect, into kv.
func (p *PriceToAmount) Flush(kv *colstore.KV, height int32) error {
	if p.cleared {
		if err := kv.Clear(keyStatePrefix); err != nil {
			return err
		}
		p.levels.Ascend(func(e entry) bool {
			p.dirty[e.price] = struct{}{}
			return true
		})
		p.cleared = false
	}

	for price := range p.dirty {
		amount := p.Get(price)
		if amount == 0 {
			kv.Delete(keyState(price))
			continue
		}
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], uint64(amount))
		kv.Put(keyState(price), v[:])
	}
	p.dirty = make(map[supply.Cents]struct{})

	var h [4]byte
	binary.BigEndian.PutUint32(h[:], uint32(height))
	kv.Put(keyHeight, h[:])
	return nil
}

// Import replaces the distribution with the one persisted in kv.  It fails
// with ErrCorrupt if the persisted distribution does not reflect height.
func (p *PriceToAmount) Import(kv *colstore.KV, height int32) error {
	v, err := kv.Get(keyHeight)
	if err != nil {
		return err
	}
	if len(v) != 4 {
		return fmt.Errorf("%w: no height", ErrCorrupt)
	}
	if got := int32(binary.BigEndian.Uint32(v)); got != height {
		return fmt.Errorf("%w: stored at height %d, want %d",
			ErrCorrupt, got, height)
	}

	p.levels.Clear(false)
	p.fenwick.Reset()
	p.dirty = make(map[supply.Cents]struct{})
	p.cleared = false

	err = kv.ForEach(keyStatePrefix, func(k, v []byte) error {
		if len(k) != len(keyStatePrefix)+8 || len(v) != 8 {
			return fmt.Errorf("%w: bad level record", ErrCorrupt)
		}
		price := supply.Cents(binary.BigEndian.Uint64(k[len(keyStatePrefix):]))
		amount := btcutil.Amount(binary.BigEndian.Uint64(v))
		p.levels.ReplaceOrInsert(entry{price: price, amount: amount})
		p.fenwick.Add(PriceBucket(price), uint64(amount))
		return nil
	})
	if err != nil {
		p.Reset()
		return err
	}

	log.Tracef("Imported %d cost basis levels at height %d",
		p.levels.Len(), height)
	return nil
}
