// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package supply

import "github.com/btcsuite/btcd/btcutil"

// Transacted aggregates the outputs created, or the outputs destroyed, by
// one block.  It is rebuilt for every block and consumed immediately by the
// cohort updates.
type Transacted struct {
	// Spendable is the total of every output except unspendable ones.
	Spendable State

	// ByType splits every output, spendable or not, by output type.
	ByType [NumOutputTypes]State

	// BySize splits spendable outputs by value ladder bucket.
	BySize [NumAmountBuckets]State
}

// Iterate folds one output of the given value and type into the aggregate.
func (t *Transacted) Iterate(value btcutil.Amount, typ OutputType) {
	one := One(value)
	t.ByType[typ].Add(one)
	if !typ.IsSpendable() {
		return
	}
	t.Spendable.Add(one)
	t.BySize[AmountBucket(value)].Add(one)
}

// Merge folds other into t.
func (t *Transacted) Merge(other *Transacted) {
	t.Spendable.Add(other.Spendable)
	for i := range t.ByType {
		t.ByType[i].Add(other.ByType[i])
	}
	for i := range t.BySize {
		t.BySize[i].Add(other.BySize[i])
	}
}

// IsEmpty returns whether no output has been folded in.
func (t *Transacted) IsEmpty() bool {
	for i := range t.ByType {
		if !t.ByType[i].IsZero() {
			return false
		}
	}
	return true
}
