// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cohort

import (
	"errors"
	"testing"

	"github.com/btcsuite/btccohort/costbasis"
	"github.com/btcsuite/btccohort/supply"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/holiman/uint256"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

func price(c supply.Cents) fn.Option[supply.Cents] {
	return fn.Some(c)
}

func TestReceiveSendSymmetry(t *testing.T) {
	t.Parallel()

	filters := []Filter{All(), ByTermFilter(Sth), AgeRangeFilter(0),
		AmountRangeFilter(9), TypeFilter(supply.P2WPKH)}
	for _, f := range filters {
		s := NewState(f, UTXOContext)
		s.Receive(supply.One(70_000), price(2_500_000))
		s.ResetFlows()

		before := s.Supply
		beforeCap := s.Realized.Cap

		s.Receive(supply.One(123_456_789), price(3_333_333))
		err := s.Send(supply.One(123_456_789), SpendInfo{
			Current: price(3_333_333),
			Prev:    price(3_333_333),
		})
		require.NoError(t, err)

		require.Equal(t, before, s.Supply, f.Name())
		require.True(t, beforeCap.Eq(&s.Realized.Cap), f.Name())
		require.True(t, s.Realized.Profit.IsZero())
		require.True(t, s.Realized.Loss.IsZero())
		if s.CostBasis != nil {
			require.Equal(t, 1, s.CostBasis.Len())
			require.Equal(t, btcutil.Amount(70_000), s.CostBasis.Total())
		}
	}
}

func TestSendRealizesGain(t *testing.T) {
	t.Parallel()

	s := NewState(All(), UTXOContext)
	s.Receive(supply.One(btcutil.SatoshiPerBitcoin), price(1_000_000))
	require.Equal(t, supply.Cents(1_000_000), s.RealizedCap())
	require.Equal(t, supply.Cents(1_000_000), s.RealizedPrice())

	s.ResetFlows()
	err := s.Send(supply.One(btcutil.SatoshiPerBitcoin), SpendInfo{
		Current: price(1_200_000),
		Prev:    price(1_000_000),
		Peak:    price(1_500_000),
		Age:     Age{Seconds: 2 * 86_400, Blocks: 288},
	})
	require.NoError(t, err)

	require.True(t, s.Supply.IsZero())
	require.True(t, s.Realized.Cap.IsZero())
	require.Equal(t, supply.Cents(200_000),
		supply.CentSatsToCents(&s.Realized.Profit))
	require.True(t, s.Realized.Loss.IsZero())
	require.Equal(t, supply.Cents(300_000),
		supply.CentSatsToCents(&s.Realized.PeakRegret))
	require.Equal(t, btcutil.Amount(btcutil.SatoshiPerBitcoin), s.Realized.Sent)

	sopr, ok := s.Realized.SOPR(false)
	require.True(t, ok)
	require.InDelta(t, 1.2, sopr, 1e-12)

	sopr, ok = s.Realized.SOPR(true)
	require.True(t, ok)
	require.InDelta(t, 1.2, sopr, 1e-12)

	cdd := new(uint256.Int).Mul(uint256.NewInt(btcutil.SatoshiPerBitcoin),
		uint256.NewInt(2*86_400))
	require.True(t, cdd.Eq(&s.Realized.CoinSecondsDestroyed))
}

func TestAdjustedExcludesYoungSpends(t *testing.T) {
	t.Parallel()

	s := NewState(All(), UTXOContext)
	require.True(t, s.Adjusted)
	s.Receive(supply.One(1000), price(100))
	err := s.Send(supply.One(1000), SpendInfo{
		Current: price(90),
		Prev:    price(100),
		Age:     Age{Seconds: 600},
	})
	require.NoError(t, err)

	_, ok := s.Realized.SOPR(true)
	require.False(t, ok)
	sopr, ok := s.Realized.SOPR(false)
	require.True(t, ok)
	require.InDelta(t, 0.9, sopr, 1e-12)
	require.False(t, s.Realized.Loss.IsZero())
}

func TestUnknownPrice(t *testing.T) {
	t.Parallel()

	s := NewState(All(), UTXOContext)
	s.Receive(supply.One(1000), fn.None[supply.Cents]())
	require.True(t, s.Realized.Cap.IsZero())
	require.Equal(t, 0, s.CostBasis.Len())

	err := s.Send(supply.One(1000), SpendInfo{
		Current: price(10),
		Prev:    fn.None[supply.Cents](),
	})
	require.NoError(t, err)
	require.True(t, s.Supply.IsZero())
	require.True(t, s.Realized.ValueCreated.IsZero())
}

func TestUnderflowSplit(t *testing.T) {
	t.Parallel()

	// Supply and realized cap underflows are fatal.
	s := NewState(All(), UTXOContext)
	require.Panics(t, func() {
		_ = s.Decrement(supply.One(1), price(1))
	})

	s = NewState(All(), UTXOContext)
	s.Increment(supply.One(10), price(1))
	require.Panics(t, func() {
		_ = s.Decrement(supply.One(10), price(2))
	})

	// A cost basis underflow is reported after supply and realized cap
	// were updated.
	s = NewState(All(), UTXOContext)
	s.Increment(supply.One(10), price(5))
	s.CostBasis.Reset()
	err := s.Decrement(supply.One(10), price(5))
	require.True(t, errors.Is(err, costbasis.ErrUnderflow))
	require.True(t, s.Supply.IsZero())
	require.True(t, s.Realized.Cap.IsZero())
}

func TestAddressState(t *testing.T) {
	t.Parallel()

	var a AddressData
	a.Receive(5000, supply.CentSats(100, 5000))
	a.Receive(3000, supply.CentSats(200, 3000))

	bucket := NewAddressState(AmountRangeFilter(supply.AmountBucket(a.Balance())))
	require.Nil(t, bucket.CostBasis)
	bucket.AddAddress(&a)
	require.Equal(t, uint64(1), bucket.AddrCount)
	require.Equal(t, supply.State{UTXOCount: 2, Value: 8000}, bucket.Supply)

	bucket.SubAddress(&a)
	require.Equal(t, uint64(0), bucket.AddrCount)
	require.True(t, bucket.Supply.IsZero())
	require.True(t, bucket.Realized.Cap.IsZero())
	require.Panics(t, func() { bucket.SubAddress(&a) })

	a.Send(5000, supply.CentSats(100, 5000))
	require.Equal(t, btcutil.Amount(3000), a.Balance())
	require.Equal(t, uint64(1), a.UTXOCount)
	require.Panics(t, func() { a.Send(4000, uint256.NewInt(0)) })

	b, err := a.Encode()
	require.NoError(t, err)
	decoded, err := DecodeAddressData(b)
	require.NoError(t, err)
	require.Equal(t, a, *decoded)
}
