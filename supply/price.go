// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package supply

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/holiman/uint256"
)

// Cents is a USD price or value expressed in whole cents.
type Cents uint64

// ToUSD returns the value in dollars.
func (c Cents) ToUSD() float64 {
	return float64(c) / 100
}

// String returns the value formatted as dollars, e.g. "$12.34".
func (c Cents) String() string {
	return fmt.Sprintf("$%d.%02d", uint64(c)/100, uint64(c)%100)
}

// satsPerBTC as a 256-bit integer, the divisor turning cent·sats into cents.
var satsPerBTC = uint256.NewInt(btcutil.SatoshiPerBitcoin)

// CentSats returns price × value in cent·sats.  Realized capitalization is
// accumulated in this unit so that adding and later removing the same
// output at the same price is exact, however the outputs were grouped.
func CentSats(price Cents, value btcutil.Amount) *uint256.Int {
	if value < 0 {
		panic(fmt.Sprintf("negative amount %d", int64(value)))
	}
	z := uint256.NewInt(uint64(price))
	return z.Mul(z, uint256.NewInt(uint64(value)))
}

// CentSatsToCents converts a cent·sat quantity to whole cents, rounding
// down.
func CentSatsToCents(x *uint256.Int) Cents {
	var z uint256.Int
	z.Div(x, satsPerBTC)
	if !z.IsUint64() {
		return Cents(^uint64(0))
	}
	return Cents(z.Uint64())
}

// PriceOf returns the value-weighted price, in cents per bitcoin, of a
// realized cap held against value.  Zero value yields zero.
func PriceOf(capital *uint256.Int, value btcutil.Amount) Cents {
	if value <= 0 {
		return 0
	}
	var z uint256.Int
	z.Div(capital, uint256.NewInt(uint64(value)))
	if !z.IsUint64() {
		return Cents(^uint64(0))
	}
	return Cents(z.Uint64())
}
