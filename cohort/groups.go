// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cohort

import (
	"sort"
	"time"

	"github.com/btcsuite/btccohort/supply"
	"github.com/btcsuite/btcd/btcutil"
)

const (
	// NumAgeBoundaries is the number of edges of the age ladder.
	NumAgeBoundaries = 20

	// NumAgeRanges is the number of age ladder buckets.
	NumAgeRanges = NumAgeBoundaries + 1

	// NumTerms is the number of holder terms.
	NumTerms = 2

	// NumEpochs is the number of halving epoch cohorts.  The last one also
	// holds every later epoch.
	NumEpochs = 8

	// BlocksPerEpoch is the number of blocks between subsidy halvings.
	BlocksPerEpoch = 210_000

	// FirstYear is the calendar year of the genesis block.
	FirstYear = 2009

	// NumYears is the number of calendar year cohorts.  The last one also
	// holds every later year.
	NumYears = 32
)

// AgeBoundaries are the edges of the age ladder in hours, ascending.  Bucket
// 0 is [0, AgeBoundaries[0]) and bucket i is [AgeBoundaries[i-1],
// AgeBoundaries[i]); the last bucket is open ended.
var AgeBoundaries = [NumAgeBoundaries]uint32{
	1,
	24,
	7 * 24,
	30 * 24,
	2 * 30 * 24,
	3 * 30 * 24,
	4 * 30 * 24,
	5 * 30 * 24,
	6 * 30 * 24,
	1 * 365 * 24,
	2 * 365 * 24,
	3 * 365 * 24,
	4 * 365 * 24,
	5 * 365 * 24,
	6 * 365 * 24,
	7 * 365 * 24,
	8 * 365 * 24,
	10 * 365 * 24,
	12 * 365 * 24,
	15 * 365 * 24,
}

// TermBoundaries is the single edge of the term ladder.
var TermBoundaries = [1]uint32{ThresholdHours}

// LadderIndex returns the bucket of a ladder with the given ascending hour
// boundaries that holds an output aged seconds.
func LadderIndex(boundaries []uint32, seconds int64) int {
	return sort.Search(len(boundaries), func(i int) bool {
		return seconds < int64(boundaries[i])*3600
	})
}

// AgeRangeIndex returns the age ladder bucket of an output aged seconds.
func AgeRangeIndex(seconds int64) int {
	return LadderIndex(AgeBoundaries[:], seconds)
}

// TermIndex returns the term of an output aged seconds.
func TermIndex(seconds int64) Term {
	return Term(LadderIndex(TermBoundaries[:], seconds))
}

// AgeRangeFilter returns the filter of age ladder bucket i.
func AgeRangeFilter(i int) Filter {
	switch {
	case i == 0:
		return HoursLowerThan(AgeBoundaries[0])
	case i == NumAgeRanges-1:
		return HoursGreaterOrEqual(AgeBoundaries[i-1])
	default:
		return HoursRange(AgeBoundaries[i-1], AgeBoundaries[i])
	}
}

// AmountRangeFilter returns the filter of value ladder bucket i.
func AmountRangeFilter(i int) Filter {
	lo, hi, open := supply.AmountBucketBounds(i)
	if open {
		return SatsGreaterOrEqual(lo)
	}
	return SatsRange(lo, hi)
}

// EpochIndex returns the epoch cohort of a block height.
func EpochIndex(height int32) int {
	e := int(height) / BlocksPerEpoch
	if e >= NumEpochs {
		return NumEpochs - 1
	}
	return e
}

// YearIndex returns the year cohort of a block timestamp.
func YearIndex(timestamp uint32) int {
	y := time.Unix(int64(timestamp), 0).UTC().Year() - FirstYear
	switch {
	case y < 0:
		return 0
	case y >= NumYears:
		return NumYears - 1
	default:
		return y
	}
}

// ByTerm holds one payload per holder term.
type ByTerm[T any] [NumTerms]T

// ByAgeRange holds one payload per age ladder bucket.
type ByAgeRange[T any] [NumAgeRanges]T

// ByAmountRange holds one payload per value ladder bucket.
type ByAmountRange[T any] [supply.NumAmountBuckets]T

// ByEpoch holds one payload per halving epoch.
type ByEpoch[T any] [NumEpochs]T

// ByYear holds one payload per calendar year.
type ByYear[T any] [NumYears]T

// BySpendableType holds one payload per spendable output type.
type BySpendableType[T any] [supply.NumSpendableTypes]T

// Get returns the payload of term t.
func (b *ByTerm[T]) Get(t Term) *T { return &b[t] }

// Get returns the payload of the bucket holding an output aged seconds.
func (b *ByAgeRange[T]) Get(seconds int64) *T { return &b[AgeRangeIndex(seconds)] }

// Get returns the payload of the bucket holding value v.
func (b *ByAmountRange[T]) Get(v btcutil.Amount) *T { return &b[supply.AmountBucket(v)] }

// Get returns the payload of the epoch holding height.
func (b *ByEpoch[T]) Get(height int32) *T { return &b[EpochIndex(height)] }

// Get returns the payload of the year holding timestamp.
func (b *ByYear[T]) Get(timestamp uint32) *T { return &b[YearIndex(timestamp)] }

// Get returns the payload of spendable type t.
func (b *BySpendableType[T]) Get(t supply.OutputType) *T { return &b[t.SpendableIndex()] }

// Filters returns the filter of every term.
func (b *ByTerm[T]) Filters() []Filter {
	return []Filter{ByTermFilter(Sth), ByTermFilter(Lth)}
}

// Filters returns the filter of every age ladder bucket.
func (b *ByAgeRange[T]) Filters() []Filter {
	f := make([]Filter, NumAgeRanges)
	for i := range f {
		f[i] = AgeRangeFilter(i)
	}
	return f
}

// Filters returns the filter of every value ladder bucket.
func (b *ByAmountRange[T]) Filters() []Filter {
	f := make([]Filter, supply.NumAmountBuckets)
	for i := range f {
		f[i] = AmountRangeFilter(i)
	}
	return f
}

// Filters returns the filter of every epoch.
func (b *ByEpoch[T]) Filters() []Filter {
	f := make([]Filter, NumEpochs)
	for i := range f {
		f[i] = EpochFilter(uint8(i))
	}
	return f
}

// Filters returns the filter of every year.
func (b *ByYear[T]) Filters() []Filter {
	f := make([]Filter, NumYears)
	for i := range f {
		f[i] = YearFilter(uint16(FirstYear + i))
	}
	return f
}

// Filters returns the filter of every spendable type.
func (b *BySpendableType[T]) Filters() []Filter {
	f := make([]Filter, supply.NumSpendableTypes)
	for i := range f {
		f[i] = TypeFilter(supply.SpendableTypeAt(i))
	}
	return f
}
