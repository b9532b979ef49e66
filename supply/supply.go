// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package supply

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// State is the number and total value of a set of unspent outputs.
//
// Both fields are never negative.  A subtraction that would take either
// field below zero means the cohort ledger and the per-output data it is
// derived from have desynchronized, which is not recoverable, so Sub panics
// instead of returning an error.
type State struct {
	UTXOCount uint64
	Value     btcutil.Amount
}

// Add folds other into s.
func (s *State) Add(other State) {
	s.UTXOCount += other.UTXOCount
	s.Value += other.Value
}

// Sub removes other from s, panicking on underflow.
func (s *State) Sub(other State) {
	if other.UTXOCount > s.UTXOCount || other.Value > s.Value {
		panic(fmt.Sprintf("supply desync: cannot subtract %v from %v",
			other, *s))
	}
	s.UTXOCount -= other.UTXOCount
	s.Value -= other.Value
}

// IsZero returns whether the state holds no outputs and no value.
func (s State) IsZero() bool {
	return s.UTXOCount == 0 && s.Value == 0
}

// String returns a human readable form of the state.
func (s State) String() string {
	return fmt.Sprintf("%d utxos / %d sats", s.UTXOCount, int64(s.Value))
}

// One returns the state of a single output of the given value.
func One(value btcutil.Amount) State {
	return State{UTXOCount: 1, Value: value}
}
