// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cohort

import (
	"fmt"

	"github.com/btcsuite/btccohort/supply"
	"github.com/btcsuite/btcd/btcutil"
)

// ThresholdHours is the age separating short term holders from long term
// holders: 155 days.
const ThresholdHours = 155 * 24

// Kind tags the variant held by a Filter.
type Kind uint8

// These constants enumerate every Filter variant.
const (
	KindAll Kind = iota
	KindTerm
	KindTime
	KindAmount
	KindEpoch
	KindYear
	KindType
)

// String returns the variant name.
func (k Kind) String() string {
	switch k {
	case KindAll:
		return "all"
	case KindTerm:
		return "term"
	case KindTime:
		return "time"
	case KindAmount:
		return "amount"
	case KindEpoch:
		return "epoch"
	case KindYear:
		return "year"
	case KindType:
		return "type"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Term splits holders by age around ThresholdHours.
type Term uint8

const (
	// Sth is short term holders, younger than ThresholdHours.
	Sth Term = iota

	// Lth is long term holders, at least ThresholdHours old.
	Lth
)

// Bound is the shape of a range filter.
type Bound uint8

const (
	// LowerThan covers [0, Hi).
	LowerThan Bound = iota

	// GreaterOrEqual covers [Lo, ∞).
	GreaterOrEqual

	// Range covers [Lo, Hi).
	Range
)

// HourRange is a half open interval of ages in hours.
type HourRange struct {
	Bound  Bound
	Lo, Hi uint32
}

func (r HourRange) lo() uint32 {
	if r.Bound == LowerThan {
		return 0
	}
	return r.Lo
}

// open returns whether the interval has no upper bound.
func (r HourRange) open() bool {
	return r.Bound == GreaterOrEqual
}

func (r HourRange) contains(hours float64) bool {
	if hours < float64(r.lo()) {
		return false
	}
	return r.open() || hours < float64(r.Hi)
}

// covers returns whether r contains every age of o.
func (r HourRange) covers(o HourRange) bool {
	if o.lo() < r.lo() {
		return false
	}
	if r.open() {
		return true
	}
	return !o.open() && o.Hi <= r.Hi
}

// SatRange is a half open interval of output or balance values.
type SatRange struct {
	Bound  Bound
	Lo, Hi btcutil.Amount
}

func (r SatRange) lo() btcutil.Amount {
	if r.Bound == LowerThan {
		return 0
	}
	return r.Lo
}

func (r SatRange) open() bool {
	return r.Bound == GreaterOrEqual
}

func (r SatRange) contains(v btcutil.Amount) bool {
	if v < r.lo() {
		return false
	}
	return r.open() || v < r.Hi
}

func (r SatRange) covers(o SatRange) bool {
	if o.lo() < r.lo() {
		return false
	}
	if r.open() {
		return true
	}
	return !o.open() && o.Hi <= r.Hi
}

// Filter is a cohort membership predicate.  It is a closed tagged union:
// Kind selects which of the remaining fields is meaningful.
type Filter struct {
	Kind  Kind
	Term  Term
	Hours HourRange
	Sats  SatRange
	Epoch uint8
	Year  uint16
	Type  supply.OutputType
}

// All matches every output.
func All() Filter {
	return Filter{Kind: KindAll}
}

// ByTermFilter matches the holders of one term.
func ByTermFilter(t Term) Filter {
	return Filter{Kind: KindTerm, Term: t}
}

// HoursLowerThan matches outputs younger than h hours.
func HoursLowerThan(h uint32) Filter {
	return Filter{Kind: KindTime, Hours: HourRange{Bound: LowerThan, Hi: h}}
}

// HoursGreaterOrEqual matches outputs at least h hours old.
func HoursGreaterOrEqual(h uint32) Filter {
	return Filter{Kind: KindTime, Hours: HourRange{Bound: GreaterOrEqual, Lo: h}}
}

// HoursRange matches outputs aged [lo, hi) hours.
func HoursRange(lo, hi uint32) Filter {
	return Filter{Kind: KindTime, Hours: HourRange{Bound: Range, Lo: lo, Hi: hi}}
}

// SatsLowerThan matches values below s.
func SatsLowerThan(s btcutil.Amount) Filter {
	return Filter{Kind: KindAmount, Sats: SatRange{Bound: LowerThan, Hi: s}}
}

// SatsGreaterOrEqual matches values of at least s.
func SatsGreaterOrEqual(s btcutil.Amount) Filter {
	return Filter{Kind: KindAmount, Sats: SatRange{Bound: GreaterOrEqual, Lo: s}}
}

// SatsRange matches values in [lo, hi).
func SatsRange(lo, hi btcutil.Amount) Filter {
	return Filter{Kind: KindAmount, Sats: SatRange{Bound: Range, Lo: lo, Hi: hi}}
}

// EpochFilter matches outputs created in halving epoch e.
func EpochFilter(e uint8) Filter {
	return Filter{Kind: KindEpoch, Epoch: e}
}

// YearFilter matches outputs created in calendar year y.
func YearFilter(y uint16) Filter {
	return Filter{Kind: KindYear, Year: y}
}

// TypeFilter matches outputs of script type t.
func TypeFilter(t supply.OutputType) Filter {
	return Filter{Kind: KindType, Type: t}
}

// IncludesFirstDay returns whether the cohort counts an output at the
// instant it is created.
func (f Filter) IncludesFirstDay() bool {
	switch f.Kind {
	case KindAll:
		return true
	case KindTerm:
		return f.Term == Sth
	case KindTime:
		return f.Hours.lo() == 0
	case KindAmount, KindEpoch, KindYear, KindType:
		return false
	default:
		panic(fmt.Sprintf("unknown filter kind %v", f.Kind))
	}
}

// ContainsTime returns whether an output aged hours belongs to an age
// based cohort.  Filters that don't partition by age return false, except
// All.
func (f Filter) ContainsTime(hours float64) bool {
	switch f.Kind {
	case KindAll:
		return true
	case KindTerm:
		if f.Term == Sth {
			return hours < ThresholdHours
		}
		return hours >= ThresholdHours
	case KindTime:
		return f.Hours.contains(hours)
	case KindAmount, KindEpoch, KindYear, KindType:
		return false
	default:
		panic(fmt.Sprintf("unknown filter kind %v", f.Kind))
	}
}

// ContainsAmount returns whether a value belongs to an amount based
// cohort.  Filters that don't partition by value return false, except All.
func (f Filter) ContainsAmount(v btcutil.Amount) bool {
	switch f.Kind {
	case KindAll:
		return true
	case KindAmount:
		return f.Sats.contains(v)
	case KindTerm, KindTime, KindEpoch, KindYear, KindType:
		return false
	default:
		panic(fmt.Sprintf("unknown filter kind %v", f.Kind))
	}
}

// Includes returns whether every output matched by other is matched by f.
// Only the pairs below are ordered; every other pair is unrelated.
func (f Filter) Includes(other Filter) bool {
	switch f.Kind {
	case KindAll:
		return true
	case KindTerm:
		if other.Kind != KindTime {
			return false
		}
		if f.Term == Sth {
			return !other.Hours.open() && other.Hours.Hi <= ThresholdHours
		}
		return other.Hours.lo() >= ThresholdHours
	case KindTime:
		return other.Kind == KindTime && f.Hours.covers(other.Hours)
	case KindAmount:
		return other.Kind == KindAmount && f.Sats.covers(other.Sats)
	case KindEpoch, KindYear, KindType:
		return false
	default:
		panic(fmt.Sprintf("unknown filter kind %v", f.Kind))
	}
}

// Context is the population a cohort partitions.
type Context uint8

const (
	// UTXOContext cohorts partition unspent outputs.
	UTXOContext Context = iota

	// AddressContext cohorts partition addresses by balance.
	AddressContext
)

// IsExtended returns whether the cohort carries a cost basis distribution
// and the percentile and relative metrics derived from it.  Only time based
// output cohorts do.
func (f Filter) IsExtended(ctx Context) bool {
	if ctx == AddressContext {
		return false
	}
	switch f.Kind {
	case KindAll, KindTerm, KindTime, KindEpoch, KindYear:
		return true
	case KindAmount, KindType:
		return false
	default:
		panic(fmt.Sprintf("unknown filter kind %v", f.Kind))
	}
}

// ComputeAdjusted returns whether the cohort tracks adjusted flows, which
// exclude spends of outputs younger than one hour.  Only cohorts that can
// hold such outputs, and more, do.
func (f Filter) ComputeAdjusted(ctx Context) bool {
	if ctx == AddressContext {
		return false
	}
	switch f.Kind {
	case KindAll:
		return true
	case KindTerm:
		return f.Term == Sth
	case KindTime:
		return f.Hours.lo() == 0 && (f.Hours.open() || f.Hours.Hi > 1)
	case KindAmount, KindEpoch, KindYear, KindType:
		return false
	default:
		panic(fmt.Sprintf("unknown filter kind %v", f.Kind))
	}
}

// Name returns the stable identifier of the cohort, used in persisted
// column names.
func (f Filter) Name() string {
	switch f.Kind {
	case KindAll:
		return "all"
	case KindTerm:
		if f.Term == Sth {
			return "sth"
		}
		return "lth"
	case KindTime:
		switch f.Hours.Bound {
		case LowerThan:
			return "up_to_" + hoursLabel(f.Hours.Hi)
		case GreaterOrEqual:
			return "at_least_" + hoursLabel(f.Hours.Lo)
		default:
			return hoursLabel(f.Hours.Lo) + "_to_" + hoursLabel(f.Hours.Hi)
		}
	case KindAmount:
		switch f.Sats.Bound {
		case LowerThan:
			return "under_" + satsLabel(f.Sats.Hi)
		case GreaterOrEqual:
			return satsLabel(f.Sats.Lo) + "_or_more"
		default:
			if i, ok := amountBucketOf(f.Sats); ok {
				return supply.AmountBucketName(i)
			}
			return satsLabel(f.Sats.Lo) + "_to_" + satsLabel(f.Sats.Hi)
		}
	case KindEpoch:
		return fmt.Sprintf("epoch_%d", f.Epoch)
	case KindYear:
		return fmt.Sprintf("year_%d", f.Year)
	case KindType:
		return f.Type.String()
	default:
		panic(fmt.Sprintf("unknown filter kind %v", f.Kind))
	}
}

// String returns the cohort name.
func (f Filter) String() string {
	return f.Name()
}

func hoursLabel(h uint32) string {
	switch {
	case h == 0:
		return "0h"
	case h%(365*24) == 0:
		return fmt.Sprintf("%dy", h/(365*24))
	case h%(30*24) == 0:
		return fmt.Sprintf("%dm", h/(30*24))
	case h%(7*24) == 0:
		return fmt.Sprintf("%dw", h/(7*24))
	case h%24 == 0:
		return fmt.Sprintf("%dd", h/24)
	default:
		return fmt.Sprintf("%dh", h)
	}
}

func satsLabel(s btcutil.Amount) string {
	unit := "sats"
	v := int64(s)
	if v != 0 && v%btcutil.SatoshiPerBitcoin == 0 {
		unit = "btc"
		v /= btcutil.SatoshiPerBitcoin
	}
	switch {
	case v != 0 && v%1_000_000 == 0:
		return fmt.Sprintf("%dm_%s", v/1_000_000, unit)
	case v != 0 && v%1_000 == 0:
		return fmt.Sprintf("%dk_%s", v/1_000, unit)
	default:
		return fmt.Sprintf("%d%s", v, unit)
	}
}

// amountBucketOf reports whether r is exactly one bucket of the value
// ladder.
func amountBucketOf(r SatRange) (int, bool) {
	i := supply.AmountBucket(r.Lo)
	lo, hi, open := supply.AmountBucketBounds(i)
	return i, !open && lo == r.Lo && hi == r.Hi
}
