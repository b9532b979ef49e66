// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cohort

import (
	"fmt"

	"github.com/btcsuite/btccohort/costbasis"
	"github.com/btcsuite/btccohort/supply"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/holiman/uint256"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// secondsPerHour is the age below which a spend is excluded from adjusted
// flows.
const secondsPerHour = 3600

// Age is the time an output was held before being spent.
type Age struct {
	Seconds int64
	Blocks  int32
}

// Hours returns the age in fractional hours.
func (a Age) Hours() float64 {
	return float64(a.Seconds) / secondsPerHour
}

// Realized accumulates the realized capitalization of a cohort and the flows
// of the block being processed.  Every amount is in cent·sats so that
// adding and removing the same outputs at the same price is exact.
type Realized struct {
	// Cap is the sum, over held outputs, of price at receipt × value.
	Cap uint256.Int

	// Flows of the current block.  ResetFlows zeroes them.
	Profit            uint256.Int
	Loss              uint256.Int
	ValueCreated      uint256.Int
	ValueDestroyed    uint256.Int
	AdjValueCreated   uint256.Int
	AdjValueDestroyed uint256.Int
	PeakRegret        uint256.Int

	// CoinSecondsDestroyed is Σ value × age in sat·seconds.
	CoinSecondsDestroyed uint256.Int

	Received btcutil.Amount
	Sent     btcutil.Amount
}

// addCap adds price × value to the realized cap.
func (r *Realized) addCap(price supply.Cents, value btcutil.Amount) {
	r.Cap.Add(&r.Cap, supply.CentSats(price, value))
}

// subCap removes price × value from the realized cap, panicking if the cap
// would go negative.
func (r *Realized) subCap(price supply.Cents, value btcutil.Amount) {
	r.subCapRaw(supply.CentSats(price, value))
}

func (r *Realized) subCapRaw(x *uint256.Int) {
	if _, overflow := r.Cap.SubOverflow(&r.Cap, x); overflow {
		panic(fmt.Sprintf("realized cap desync: cannot subtract %v "+
			"cent·sats", x.Dec()))
	}
}

// recordSpend folds one spend into the flows.
func (r *Realized) recordSpend(value btcutil.Amount, current, prev,
	peak fn.Option[supply.Cents], age Age, adjusted bool) {

	r.Sent += value

	if age.Seconds > 0 {
		var cs uint256.Int
		cs.Mul(uint256.NewInt(uint64(value)), uint256.NewInt(uint64(age.Seconds)))
		r.CoinSecondsDestroyed.Add(&r.CoinSecondsDestroyed, &cs)
	}

	cur, curOK := current.UnwrapOr(0), current.IsSome()
	prv, prvOK := prev.UnwrapOr(0), prev.IsSome()
	if !curOK || !prvOK {
		return
	}

	created := supply.CentSats(cur, value)
	destroyed := supply.CentSats(prv, value)
	r.ValueCreated.Add(&r.ValueCreated, created)
	r.ValueDestroyed.Add(&r.ValueDestroyed, destroyed)
	if adjusted && age.Seconds >= secondsPerHour {
		r.AdjValueCreated.Add(&r.AdjValueCreated, created)
		r.AdjValueDestroyed.Add(&r.AdjValueDestroyed, destroyed)
	}

	switch {
	case cur > prv:
		r.Profit.Add(&r.Profit, supply.CentSats(cur-prv, value))
	case cur < prv:
		r.Loss.Add(&r.Loss, supply.CentSats(prv-cur, value))
	}

	peak.WhenSome(func(p supply.Cents) {
		if p > cur {
			r.PeakRegret.Add(&r.PeakRegret, supply.CentSats(p-cur, value))
		}
	})
}

// ResetFlows zeroes the per-block flows, keeping the cap.
func (r *Realized) ResetFlows() {
	*r = Realized{Cap: r.Cap}
}

// Price returns the realized price: cap divided by supply.
func (r *Realized) Price(value btcutil.Amount) supply.Cents {
	return supply.PriceOf(&r.Cap, value)
}

// SOPR returns the spent output profit ratio of the current block, value
// created over value destroyed.  The second return is false when nothing
// with a known price was spent.
func (r *Realized) SOPR(adjusted bool) (float64, bool) {
	created, destroyed := &r.ValueCreated, &r.ValueDestroyed
	if adjusted {
		created, destroyed = &r.AdjValueCreated, &r.AdjValueDestroyed
	}
	if destroyed.IsZero() {
		return 0, false
	}
	return created.Float64() / destroyed.Float64(), true
}

// State is the mutable ledger of one cohort.
type State struct {
	Supply supply.State

	// Realized is nil for cohorts that don't track realized cap.
	Realized *Realized

	// CostBasis is nil for cohorts that aren't extended.
	CostBasis *costbasis.PriceToAmount

	// Adjusted enables the adjusted flows.
	Adjusted bool
}

// NewState returns the empty ledger of a cohort.
func NewState(f Filter, ctx Context) *State {
	s := &State{
		Realized: &Realized{},
		Adjusted: f.ComputeAdjusted(ctx),
	}
	if f.IsExtended(ctx) {
		s.CostBasis = costbasis.New()
	}
	return s
}

// Increment adds outputs priced at price without recording any flow.
func (s *State) Increment(supplyState supply.State, price fn.Option[supply.Cents]) {
	s.Supply.Add(supplyState)
	price.WhenSome(func(p supply.Cents) {
		if s.Realized != nil {
			s.Realized.addCap(p, supplyState.Value)
		}
		if s.CostBasis != nil {
			s.CostBasis.Increment(p, supplyState.Value)
		}
	})
}

// Decrement removes outputs priced at price without recording any flow.
// Supply and realized cap are always updated.  A cost basis inconsistency
// is returned afterwards as an error wrapping costbasis.ErrUnderflow.
func (s *State) Decrement(supplyState supply.State, price fn.Option[supply.Cents]) error {
	s.Supply.Sub(supplyState)

	var err error
	price.WhenSome(func(p supply.Cents) {
		if s.Realized != nil {
			s.Realized.subCap(p, supplyState.Value)
		}
		if s.CostBasis != nil {
			err = s.CostBasis.Decrement(p, supplyState.Value)
		}
	})
	return err
}

// Receive adds newly created outputs at the price of their block.
func (s *State) Receive(supplyState supply.State, price fn.Option[supply.Cents]) {
	s.Increment(supplyState, price)
	if s.Realized != nil {
		s.Realized.Received += supplyState.Value
	}
}

// SpendInfo describes spent outputs sharing one origin block.
type SpendInfo struct {
	// Current is the price of the spending block.
	Current fn.Option[supply.Cents]

	// Prev is the price of the block that created the outputs.
	Prev fn.Option[supply.Cents]

	// Peak is the highest price seen between creation and spend.
	Peak fn.Option[supply.Cents]

	Age Age
}

// Send removes spent outputs and records the flows of the spend.
func (s *State) Send(supplyState supply.State, info SpendInfo) error {
	err := s.Decrement(supplyState, info.Prev)
	s.RecordSpend(supplyState.Value, info)
	return err
}

// RecordSpend records the flows of a spend without changing supply.
func (s *State) RecordSpend(value btcutil.Amount, info SpendInfo) {
	if s.Realized == nil {
		return
	}
	s.Realized.recordSpend(value, info.Current, info.Prev, info.Peak,
		info.Age, s.Adjusted)
}

// ResetFlows zeroes the per-block flows.
func (s *State) ResetFlows() {
	if s.Realized != nil {
		s.Realized.ResetFlows()
	}
}

// RealizedCap returns the realized cap in cents.
func (s *State) RealizedCap() supply.Cents {
	if s.Realized == nil {
		return 0
	}
	return supply.CentSatsToCents(&s.Realized.Cap)
}

// RealizedPrice returns the realized price in cents per bitcoin.
func (s *State) RealizedPrice() supply.Cents {
	if s.Realized == nil {
		return 0
	}
	return s.Realized.Price(s.Supply.Value)
}
