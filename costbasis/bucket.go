// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package costbasis

import "github.com/btcsuite/btccohort/supply"

// Prices are discretized into buckets before they are added to the Fenwick
// tree: every cent below $10, then three significant digits per decade.
const (
	exactBuckets     = 1000
	bucketsPerDecade = 900

	// maxDecimalDigits is the number of decimal digits of the largest
	// uint64.
	maxDecimalDigits = 20

	// NumPriceBuckets is the number of Fenwick slots needed to cover
	// every representable price.
	NumPriceBuckets = exactBuckets +
		(maxDecimalDigits-3)*bucketsPerDecade
)

var pow10 = func() [maxDecimalDigits]uint64 {
	var p [maxDecimalDigits]uint64
	p[0] = 1
	for i := 1; i < maxDecimalDigits; i++ {
		p[i] = p[i-1] * 10
	}
	return p
}()

// PriceBucket returns the Fenwick slot holding price.
func PriceBucket(price supply.Cents) int {
	p := uint64(price)
	if p < exactBuckets {
		return int(p)
	}

	// Find the power of ten that leaves three significant digits.
	shift := 1
	for shift+3 < maxDecimalDigits && p/pow10[shift] >= 1000 {
		shift++
	}
	mantissa := p / pow10[shift]
	return exactBuckets + (shift-1)*bucketsPerDecade + int(mantissa) - 100
}

// BucketFloor returns the lowest price that falls in bucket idx.
func BucketFloor(idx int) supply.Cents {
	if idx < exactBuckets {
		return supply.Cents(idx)
	}
	idx -= exactBuckets
	shift := idx/bucketsPerDecade + 1
	mantissa := uint64(idx%bucketsPerDecade + 100)
	return supply.Cents(mantissa * pow10[shift])
}
