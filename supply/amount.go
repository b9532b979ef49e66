// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package supply

import "github.com/btcsuite/btcd/btcutil"

// NumAmountBuckets is the number of buckets in the logarithmic value ladder:
// zero, one bucket per power of ten from 1 sat to 10^16 sats, and everything
// at or above 10^16 sats.
const NumAmountBuckets = 18

// amountLowerBounds holds the inclusive lower bound of each bucket.  Bucket
// i covers [amountLowerBounds[i], amountLowerBounds[i+1]) and the last
// bucket is open ended.
var amountLowerBounds = [NumAmountBuckets]btcutil.Amount{
	0,
	1,
	10,
	100,
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
	100_000_000_000,
	1_000_000_000_000,
	10_000_000_000_000,
	100_000_000_000_000,
	1_000_000_000_000_000,
	10_000_000_000_000_000,
}

var amountLabels = [NumAmountBuckets]string{
	"0sats", "1sat", "10sats", "100sats", "1k_sats", "10k_sats",
	"100k_sats", "1m_sats", "10m_sats", "1btc", "10btc", "100btc",
	"1k_btc", "10k_btc", "100k_btc", "1m_btc", "10m_btc", "100m_btc",
}

// AmountBucket returns the index of the ladder bucket holding value.
func AmountBucket(value btcutil.Amount) int {
	if value <= 0 {
		return 0
	}
	i := 1
	for i < NumAmountBuckets-1 && value >= amountLowerBounds[i+1] {
		i++
	}
	return i
}

// AmountBucketBounds returns the [lo, hi) range of bucket i.  open is true
// for the last bucket, in which case hi is meaningless.
func AmountBucketBounds(i int) (lo, hi btcutil.Amount, open bool) {
	lo = amountLowerBounds[i]
	if i == NumAmountBuckets-1 {
		return lo, 0, true
	}
	return lo, amountLowerBounds[i+1], false
}

// AmountBucketName returns the stable identifier of bucket i, such as
// "1k_sats_to_10k_sats".
func AmountBucketName(i int) string {
	switch {
	case i == 0:
		return amountLabels[0]
	case i == NumAmountBuckets-1:
		return amountLabels[i] + "_or_more"
	default:
		return amountLabels[i] + "_to_" + amountLabels[i+1]
	}
}
