// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cohortmgr

import (
	"context"
	"math/rand"
	"testing"

	"github.com/btcsuite/btccohort/cohort"
	"github.com/btcsuite/btccohort/colstore"
	"github.com/btcsuite/btccohort/supply"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

// requirePartitions checks that every axis sums to the whole population and
// that the population matches the history.
func requirePartitions(t *testing.T, m *Manager, c *chainBuilder) {
	t.Helper()

	all := m.utxo.all.state
	require.Equal(t, m.history.TotalSupply(), all.Supply)

	axes := map[string][]*entry{
		"term":   m.utxo.term[:],
		"age":    m.utxo.age[:],
		"epoch":  m.utxo.epoch[:],
		"year":   m.utxo.year[:],
		"amount": m.utxo.amount[:],
		"type":   m.utxo.types[:],
	}
	for axis, entries := range axes {
		var (
			sum     supply.State
			sumCap  uint256.Int
			sumCost btcutil.Amount
		)
		for _, e := range entries {
			sum.Add(e.state.Supply)
			sumCap.Add(&sumCap, &e.state.Realized.Cap)
			if e.state.CostBasis != nil {
				sumCost += e.state.CostBasis.Total()
			}
		}
		require.Equal(t, all.Supply, sum, axis)
		require.True(t, sumCap.Eq(&all.Realized.Cap), axis)
		if entries[0].state.CostBasis != nil {
			require.Equal(t, all.CostBasis.Total(), sumCost, axis)
		}
	}

	// The address axis holds exactly the outputs with an address.
	var (
		want  supply.State
		addrs = make(map[string]struct{})
	)
	for _, u := range c.utxos {
		if u.addr != nil {
			want.Add(supply.One(u.value))
			addrs[string(u.addr)] = struct{}{}
		}
	}
	var (
		got   supply.State
		count uint64
	)
	for _, e := range m.addr.amount {
		got.Add(e.state.Supply)
		count += e.addr.AddrCount
	}
	require.Equal(t, want, got)
	require.Equal(t, uint64(len(addrs)), count)
}

func TestPartitionInvariant(t *testing.T) {
	t.Parallel()

	m := testManager(t, testDB(t))
	r := rand.New(rand.NewSource(7))

	var c chainBuilder
	for i := 0; i < 120; i++ {
		blk := c.random(r)
		require.NoError(t, m.ProcessBlock(context.Background(), blk))
		requirePartitions(t, m, &c)
	}

	// Some outputs must have aged past the holder threshold.
	require.NotZero(t, m.utxo.term[cohort.Lth].state.Supply.UTXOCount)
}

func TestProcessBlockRejectsGap(t *testing.T) {
	t.Parallel()

	m := testManager(t, testDB(t))
	var c chainBuilder
	c.next(genesisTime, usd(1), []Output{{Value: 1, Type: supply.P2PKH}})
	blk := c.next(genesisTime+600, usd(1), nil)

	require.Error(t, m.ProcessBlock(context.Background(), blk))
	require.Equal(t, int32(-1), m.Tip())
}

// TestProcessBlockRejectsUnknownOrigin checks a block spending an output of
// a block not yet processed is refused before any ledger changes, so a
// later commit cannot persist part of it.
func TestProcessBlockRejectsUnknownOrigin(t *testing.T) {
	t.Parallel()

	db := testDB(t)
	m := testManager(t, db)
	var c chainBuilder
	processAll(t, m, []*Block{c.next(genesisTime, usd(1), []Output{{
		Value:   10,
		Type:    supply.P2PKH,
		Address: []byte("alice"),
	}})})
	before := snapshot(m)
	supplyBefore := m.Supply()

	blk := c.next(genesisTime+600, usd(2), []Output{{
		Value:   2,
		Type:    supply.P2PKH,
		Address: []byte("bob"),
	}})
	blk.Inputs = []Input{{
		Value:        10,
		Type:         supply.P2PKH,
		Address:      []byte("alice"),
		OriginHeight: 9,
	}}

	err := m.ProcessBlock(context.Background(), blk)
	require.ErrorContains(t, err, "unknown block 9")
	require.Equal(t, int32(0), m.Tip())
	require.Equal(t, supplyBefore, m.Supply())
	requireSameSnapshot(t, before, snapshot(m))

	bob, err := m.loadAddress("bob")
	require.NoError(t, err)
	require.True(t, bob.IsEmpty())

	// Nothing of the refused block reaches disk.
	require.NoError(t, m.Commit(true))
	m = testManager(t, db)
	require.Equal(t, int32(0), m.Tip())
	requireSameSnapshot(t, before, snapshot(m))

	_, ok, err := m.BlockHash(1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewRejectsShallowTipDistance(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, testDB(t))
	cfg.TipDistance = cfg.MaxReorgDepth - 1
	_, err := New(cfg)
	require.Error(t, err)

	cfg.TipDistance = cfg.MaxReorgDepth
	_, err = New(cfg)
	require.NoError(t, err)
}

// TestRealizedGain replays three blocks: 1 BTC mined at $10 000, an
// unrelated block at $11 000 and the spend of the first coin at $12 000.
func TestRealizedGain(t *testing.T) {
	t.Parallel()

	m := testManager(t, testDB(t))
	var c chainBuilder
	processAll(t, m, []*Block{
		c.next(genesisTime, usd(10_000), []Output{{
			Value:   btcutil.SatoshiPerBitcoin,
			Type:    supply.P2PKH,
			Address: []byte("alice"),
		}}),
		c.next(genesisTime+600, usd(11_000), []Output{{
			Value:   btcutil.SatoshiPerBitcoin / 2,
			Type:    supply.P2WPKH,
			Address: []byte("bob"),
		}}),
		c.next(genesisTime+1200, usd(12_000), []Output{{
			Value:   btcutil.SatoshiPerBitcoin,
			Type:    supply.P2WPKH,
			Address: []byte("carol"),
		}}, 0),
	})

	all := m.utxo.all.state
	require.Equal(t, supply.State{
		UTXOCount: 2,
		Value:     btcutil.SatoshiPerBitcoin * 3 / 2,
	}, all.Supply)
	require.Equal(t, supply.Cents(1_750_000), all.RealizedCap())

	profit := supply.CentSatsToCents(&all.Realized.Profit)
	require.Equal(t, supply.Cents(200_000), profit)
	require.True(t, all.Realized.Loss.IsZero())
	require.Equal(t, btcutil.Amount(btcutil.SatoshiPerBitcoin), all.Realized.Sent)

	// Spent within the hour, so the adjusted flows skip it.
	require.True(t, all.Realized.AdjValueCreated.IsZero())

	// Alice's address is empty and left its cohort.
	alice, err := m.loadAddress("alice")
	require.NoError(t, err)
	require.True(t, alice.IsEmpty())
	require.Equal(t, uint64(1), alice.SpentTXOs)

	var addrCount uint64
	for _, e := range m.addr.amount {
		addrCount += e.addr.AddrCount
	}
	require.Equal(t, uint64(2), addrCount)

	p2pkh := (*m.utxo.types.Get(supply.P2PKH)).state
	require.True(t, p2pkh.Supply.IsZero())
	require.Equal(t, supply.Cents(200_000),
		supply.CentSatsToCents(&p2pkh.Realized.Profit))
}

func TestTickTockSingleOutput(t *testing.T) {
	t.Parallel()

	m := testManager(t, testDB(t))
	var c chainBuilder
	one := supply.One(btcutil.SatoshiPerBitcoin)

	processAll(t, m, []*Block{c.next(genesisTime, usd(5), []Output{{
		Value: btcutil.SatoshiPerBitcoin,
		Type:  supply.P2TR,
	}})})
	require.Equal(t, one, m.utxo.age[0].state.Supply)

	steps := []int64{
		3600 - 1,
		3600,
		24 * 3600,
		int64(cohort.ThresholdHours)*3600 - 1,
		int64(cohort.ThresholdHours) * 3600,
		16 * 365 * 24 * 3600,
	}
	for _, age := range steps {
		blk := c.next(uint32(genesisTime+age), usd(5), nil)
		require.NoError(t, m.ProcessBlock(context.Background(), blk))

		want := cohort.AgeRangeIndex(age)
		for i, e := range m.utxo.age {
			if i == want {
				require.Equal(t, one, e.state.Supply, "age %d", age)
				require.Equal(t, supply.Cents(500), e.state.RealizedCap())
				require.Equal(t,
					btcutil.Amount(btcutil.SatoshiPerBitcoin),
					e.state.CostBasis.Get(500))
			} else {
				require.True(t, e.state.Supply.IsZero(),
					"age %d bucket %d", age, i)
			}
		}

		term := cohort.TermIndex(age)
		require.Equal(t, one, m.utxo.term[term].state.Supply)
		require.True(t, m.utxo.term[1-term].state.Supply.IsZero())
	}
}

func TestTickTockNoElapsedTime(t *testing.T) {
	t.Parallel()

	m := testManager(t, testDB(t))
	var c chainBuilder
	processAll(t, m, []*Block{
		c.next(genesisTime, usd(5), []Output{{Value: 7, Type: supply.P2SH}}),
		c.next(genesisTime-100, usd(5), nil),
		c.next(genesisTime, usd(5), nil),
	})
	require.Equal(t, supply.One(7), m.utxo.age[0].state.Supply)
	require.Equal(t, uint32(genesisTime), m.history.At(1).Timestamp)
}

func TestAddressMigration(t *testing.T) {
	t.Parallel()

	m := testManager(t, testDB(t))
	var c chainBuilder
	addr := []byte("dave")
	half := btcutil.Amount(btcutil.SatoshiPerBitcoin / 2)
	one := btcutil.Amount(btcutil.SatoshiPerBitcoin)
	bucket := func(v btcutil.Amount) *cohort.AddressState {
		return m.addr.amount[supply.AmountBucket(v)].addr
	}

	processAll(t, m, []*Block{c.next(genesisTime, usd(100), []Output{{
		Value: half, Type: supply.P2WPKH, Address: addr,
	}})})
	require.Equal(t, uint64(1), bucket(half).AddrCount)

	// Growing to 1.5 BTC moves the address up one bucket.
	processAll(t, m, []*Block{c.next(genesisTime+600, usd(100), []Output{{
		Value: one, Type: supply.P2WPKH, Address: addr,
	}})})
	require.Zero(t, bucket(half).AddrCount)
	require.True(t, bucket(half).Supply.IsZero())
	require.Equal(t, uint64(1), bucket(one+half).AddrCount)
	require.Equal(t, supply.State{UTXOCount: 2, Value: one + half},
		bucket(one+half).Supply)
	require.Equal(t, one, bucket(one+half).Realized.Received)

	// Spending the half coin stays in the same bucket.
	processAll(t, m, []*Block{c.next(genesisTime+1200, usd(200), nil, 0)})
	st := bucket(one)
	require.Equal(t, uint64(1), st.AddrCount)
	require.Equal(t, supply.One(one), st.Supply)
	require.Equal(t, half, st.Realized.Sent)
	require.Equal(t, supply.Cents(100*100),
		supply.CentSatsToCents(&st.Realized.Cap))

	// Spending the rest empties the address.
	processAll(t, m, []*Block{c.next(genesisTime+1800, usd(50), nil, 0)})
	require.Zero(t, bucket(one).AddrCount)
	require.True(t, bucket(one).Supply.IsZero())
	require.True(t, bucket(one).Realized.Cap.IsZero())
	require.Equal(t, one, bucket(one).Realized.Sent)

	data, err := m.loadAddress(string(addr))
	require.NoError(t, err)
	require.True(t, data.IsEmpty())
	require.Equal(t, uint64(2), data.FundedTXOs)
	require.Equal(t, uint64(2), data.SpentTXOs)
}

func TestCommitReload(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(11))
	var c chainBuilder
	for i := 0; i < 60; i++ {
		c.random(r)
	}

	refDB := testDB(t)
	ref := testManager(t, refDB)
	processAll(t, ref, c.blocks)

	db := testDB(t)
	m := testManager(t, db)
	processAll(t, m, c.blocks[:25])
	require.NoError(t, m.Commit(false))
	processAll(t, m, c.blocks[25:40])
	require.NoError(t, m.Commit(true))

	// Uncommitted blocks are lost on reopen.
	processAll(t, m, c.blocks[40:45])

	m = testManager(t, db)
	require.Equal(t, int32(39), m.Tip())
	processAll(t, m, c.blocks[40:])
	require.NoError(t, m.Commit(true))

	requireSameSnapshot(t, snapshot(ref), snapshot(m))
	require.Equal(t, ref.history.blocks, m.history.blocks)

	// Committed series match a run without restarts.
	require.NoError(t, ref.Commit(true))
	reader := NewSeriesReader(db)
	tip, ok, err := reader.Tip()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int32(59), tip)

	got, err := reader.Series("all", MetricSupply, 0, 60)
	require.NoError(t, err)
	want, err := NewSeriesReader(refDB).Series("all",
		MetricSupply, 0, 60)
	require.NoError(t, err)
	require.Len(t, got, 60)
	require.Equal(t, want, got)

	oneBTC := btcutil.Amount(btcutil.SatoshiPerBitcoin)
	addrCohort := (*m.addr.amount.Get(oneBTC)).name
	require.Equal(t, "addr_"+cohort.AmountRangeFilter(
		supply.AmountBucket(oneBTC)).Name(), addrCohort)
	require.Equal(t, "addr_1btc_to_10btc", addrCohort)
	for _, name := range []string{"sth", "epoch_0", addrCohort} {
		vals, err := reader.Series(name, MetricSupply, 0, 100)
		require.NoError(t, err)
		require.Len(t, vals, 60, name)
	}

	hash, ok, err := m.BlockHash(30)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, c.blocks[30].Hash, hash)
}

func TestCommitIsIdempotent(t *testing.T) {
	t.Parallel()

	m := testManager(t, testDB(t))
	require.NoError(t, m.Commit(true))
	_, ok := m.store.Stamp()
	require.False(t, ok)

	var c chainBuilder
	processAll(t, m, []*Block{c.next(genesisTime, usd(1),
		[]Output{{Value: 10, Type: supply.P2PKH}})})
	require.NoError(t, m.Commit(true))
	stamps, err := m.store.Stamps()
	require.NoError(t, err)
	require.Equal(t, []uint32{0}, stamps)

	require.NoError(t, m.Commit(true))
	stamps, err = m.store.Stamps()
	require.NoError(t, err)
	require.Equal(t, []uint32{0}, stamps)
}

func TestRollback(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(3))
	var c chainBuilder
	for i := 0; i < 8; i++ {
		c.random(r)
	}

	db := testDB(t)
	m := testManager(t, db)

	var at5 map[string]cohortSnapshot
	for _, blk := range c.blocks {
		require.NoError(t, m.ProcessBlock(context.Background(), blk))
		require.NoError(t, m.Commit(true))
		if blk.Height == 5 {
			at5 = snapshot(m)
		}
	}

	restored, err := m.Rollback(5)
	require.NoError(t, err)
	require.Equal(t, int32(5), restored)
	require.Equal(t, int32(6), m.NextHeight())
	requireSameSnapshot(t, at5, snapshot(m))

	reader := NewSeriesReader(db)
	supplies, err := reader.Series("all", MetricSupply, 0, 100)
	require.NoError(t, err)
	require.Len(t, supplies, 6)

	_, ok, err := m.BlockHash(6)
	require.NoError(t, err)
	require.False(t, ok)

	// The fork is applied on top of the restored state.
	c.rewind(5)
	for i := 0; i < 4; i++ {
		blk := c.random(r)
		require.NoError(t, m.ProcessBlock(context.Background(), blk))
		requirePartitions(t, m, &c)
	}
	require.NoError(t, m.Commit(true))
}

func TestRollbackUnavailable(t *testing.T) {
	t.Parallel()

	m := testManager(t, testDB(t))
	r := rand.New(rand.NewSource(5))
	var c chainBuilder
	for i := 0; i < 6; i++ {
		c.random(r)
	}

	processAll(t, m, c.blocks[:3])
	require.NoError(t, m.Commit(true))
	processAll(t, m, c.blocks[3:])
	require.NoError(t, m.Commit(false))

	before := snapshot(m)
	_, err := m.Rollback(2)
	require.True(t, colstore.IsError(err, colstore.ErrRollbackUnavailable))
	require.Equal(t, int32(5), m.Tip())
	requireSameSnapshot(t, before, snapshot(m))
}

func TestRollbackWithoutCheckpoint(t *testing.T) {
	t.Parallel()

	m := testManager(t, testDB(t))
	var c chainBuilder
	processAll(t, m, []*Block{c.next(genesisTime, usd(1),
		[]Output{{Value: 10, Type: supply.P2PKH}})})

	restored, err := m.Rollback(0)
	require.NoError(t, err)
	require.Equal(t, int32(-1), restored)
	require.Equal(t, int32(0), m.NextHeight())
	require.True(t, m.Supply().IsZero())
}

func TestCostBasisRebuildOnCorruption(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(9))
	var c chainBuilder
	for i := 0; i < 30; i++ {
		c.random(r)
	}

	db := testDB(t)
	m := testManager(t, db)
	processAll(t, m, c.blocks)
	require.NoError(t, m.Commit(true))
	want := snapshot(m)

	// Drop the height marker of one distribution.
	kv, err := m.store.Map("all" + costBasisSuffix)
	require.NoError(t, err)
	kv.Delete([]byte("height"))
	_, err = m.store.Flush(29, true)
	require.NoError(t, err)

	m = testManager(t, db)
	requireSameSnapshot(t, want, snapshot(m))
}

func TestCostBasisRebuildOnUnderflow(t *testing.T) {
	t.Parallel()

	m := testManager(t, testDB(t))
	var c chainBuilder
	processAll(t, m, []*Block{
		c.next(genesisTime, usd(100), []Output{
			{Value: 50, Type: supply.P2PKH},
			{Value: 70, Type: supply.P2WPKH},
		}),
	})
	want := snapshot(m)

	// Lose the distribution of the all cohort, then spend from it.
	m.utxo.all.state.CostBasis.Reset()
	processAll(t, m, []*Block{c.next(genesisTime+60, usd(120), nil, 0)})

	all := m.utxo.all.state
	require.Equal(t, btcutil.Amount(70), all.CostBasis.Total())
	require.Equal(t, btcutil.Amount(70), all.CostBasis.Get(10_000))
	require.Equal(t, want["all"].Supply.Value-50, all.Supply.Value)
	requirePartitions(t, m, &c)
}

func TestCatalog(t *testing.T) {
	t.Parallel()

	m := testManager(t, testDB(t))
	infos := m.Catalog()

	names := make(map[string]CohortInfo)
	for _, info := range infos {
		_, dup := names[info.Name]
		require.False(t, dup, info.Name)
		names[info.Name] = info
	}

	all := names["all"]
	require.True(t, all.Extended)
	require.Empty(t, all.Parents)

	sth := names["sth"]
	require.Equal(t, AxisTerm, sth.Axis)
	require.Equal(t, []string{"all"}, sth.Parents)
	require.Contains(t, sth.Metrics, PercentileMetric(50))

	youngest := names[cohort.AgeRangeFilter(0).Name()]
	require.ElementsMatch(t, []string{"all", "sth"}, youngest.Parents)

	p2tr := names[cohort.TypeFilter(supply.P2TR).Name()]
	require.False(t, p2tr.Extended)
	require.NotContains(t, p2tr.Metrics, MetricCostBasisMin)

	addr := names["addr_"+cohort.AmountRangeFilter(9).Name()]
	require.Equal(t, cohort.AddressContext, addr.Context)
	require.Contains(t, addr.Metrics, MetricAddrCount)
	require.Empty(t, addr.Parents)
}
