// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cohortmgr

import (
	"fmt"

	"github.com/btcsuite/btccohort/cohort"
	"github.com/btcsuite/btccohort/colstore"
	"github.com/btcsuite/btccohort/supply"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/holiman/uint256"
)

// Axis is a family of cohorts partitioning the same population.
type Axis string

// The cohort axes.  Every axis but all and term is a ladder or a closed set
// whose cohorts sum to the whole population.
const (
	AxisAll                Axis = "all"
	AxisTerm               Axis = "term"
	AxisAgeRange           Axis = "age_range"
	AxisEpoch              Axis = "epoch"
	AxisYear               Axis = "year"
	AxisAmountRange        Axis = "amount_range"
	AxisOutputType         Axis = "output_type"
	AxisAddressAmountRange Axis = "address_amount_range"
)

// entry is one cohort: its identity, its ledger and where it persists.
type entry struct {
	axis   Axis
	filter cohort.Filter
	ctx    cohort.Context
	name   string

	state *cohort.State

	// addr is set for address cohorts, in which case state points into
	// it.
	addr *cohort.AddressState

	// costBasis is the map the cost basis distribution is flushed to.
	// It is nil unless the cohort is extended.
	costBasis *colstore.KV

	series *series
}

func newEntry(axis Axis, f cohort.Filter, ctx cohort.Context) *entry {
	e := &entry{axis: axis, filter: f, ctx: ctx, name: f.Name()}
	if ctx == cohort.AddressContext {
		e.name = "addr_" + e.name
		e.addr = cohort.NewAddressState(f)
		e.state = &e.addr.State
	} else {
		e.state = cohort.NewState(f, ctx)
	}
	return e
}

// utxoCohorts holds every output cohort.
type utxoCohorts struct {
	all    *entry
	term   cohort.ByTerm[*entry]
	age    cohort.ByAgeRange[*entry]
	epoch  cohort.ByEpoch[*entry]
	year   cohort.ByYear[*entry]
	amount cohort.ByAmountRange[*entry]
	types  cohort.BySpendableType[*entry]
}

func newUTXOCohorts() *utxoCohorts {
	u := &utxoCohorts{
		all: newEntry(AxisAll, cohort.All(), cohort.UTXOContext),
	}
	for i, f := range u.term.Filters() {
		u.term[i] = newEntry(AxisTerm, f, cohort.UTXOContext)
	}
	for i, f := range u.age.Filters() {
		u.age[i] = newEntry(AxisAgeRange, f, cohort.UTXOContext)
	}
	for i, f := range u.epoch.Filters() {
		u.epoch[i] = newEntry(AxisEpoch, f, cohort.UTXOContext)
	}
	for i, f := range u.year.Filters() {
		u.year[i] = newEntry(AxisYear, f, cohort.UTXOContext)
	}
	for i, f := range u.amount.Filters() {
		u.amount[i] = newEntry(AxisAmountRange, f, cohort.UTXOContext)
	}
	for i, f := range u.types.Filters() {
		u.types[i] = newEntry(AxisOutputType, f, cohort.UTXOContext)
	}
	return u
}

// each calls fn for every output cohort in catalog order.
func (u *utxoCohorts) each(fn func(e *entry)) {
	fn(u.all)
	for _, e := range u.term {
		fn(e)
	}
	for _, e := range u.age {
		fn(e)
	}
	for _, e := range u.epoch {
		fn(e)
	}
	for _, e := range u.year {
		fn(e)
	}
	for _, e := range u.amount {
		fn(e)
	}
	for _, e := range u.types {
		fn(e)
	}
}

// timeBased returns the time based cohorts holding the outputs of a block
// created at height with timestamp ts, aged seconds.
func (u *utxoCohorts) timeBased(height int32, ts uint32, seconds int64) [5]*entry {
	return [5]*entry{
		u.all,
		*u.term.Get(cohort.TermIndex(seconds)),
		*u.age.Get(seconds),
		*u.epoch.Get(height),
		*u.year.Get(ts),
	}
}

// addressCohorts holds every address cohort.
type addressCohorts struct {
	amount cohort.ByAmountRange[*entry]
}

func newAddressCohorts() *addressCohorts {
	a := &addressCohorts{}
	for i, f := range a.amount.Filters() {
		a.amount[i] = newEntry(AxisAddressAmountRange, f,
			cohort.AddressContext)
	}
	return a
}

func (a *addressCohorts) each(fn func(e *entry)) {
	for _, e := range a.amount {
		fn(e)
	}
}

// cohortStateSize is the serialized size of a cohort ledger snapshot.
const cohortStateSize = 8 + 8 + 32 + 8

// valueCohortState serializes the supply, realized cap and address count
// of a cohort.  Flows are per block and cost basis is kept separately.
func valueCohortState(e *entry) []byte {
	v := make([]byte, cohortStateSize)
	byteOrder.PutUint64(v[0:8], e.state.Supply.UTXOCount)
	byteOrder.PutUint64(v[8:16], uint64(e.state.Supply.Value))
	if e.state.Realized != nil {
		capital := e.state.Realized.Cap.Bytes32()
		copy(v[16:48], capital[:])
	}
	if e.addr != nil {
		byteOrder.PutUint64(v[48:56], e.addr.AddrCount)
	}
	return v
}

func readCohortState(e *entry, v []byte) error {
	if len(v) != cohortStateSize {
		return fmt.Errorf("cohort %s: expected %d bytes, got %d",
			e.name, cohortStateSize, len(v))
	}
	e.state.Supply = supply.State{
		UTXOCount: byteOrder.Uint64(v[0:8]),
		Value:     btcutil.Amount(byteOrder.Uint64(v[8:16])),
	}
	if e.state.Realized != nil {
		e.state.Realized.ResetFlows()
		e.state.Realized.Cap.SetBytes32(v[16:48])
	}
	if e.addr != nil {
		e.addr.AddrCount = byteOrder.Uint64(v[48:56])
	}
	return nil
}

// resetLedger empties a cohort's ledger.
func (e *entry) resetLedger() {
	e.state.Supply = supply.State{}
	if e.state.Realized != nil {
		e.state.Realized.ResetFlows()
		e.state.Realized.Cap = uint256.Int{}
	}
	if e.state.CostBasis != nil {
		e.state.CostBasis.Reset()
	}
	if e.addr != nil {
		e.addr.AddrCount = 0
	}
}
