// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cohortmgr

import (
	"context"
	"encoding/binary"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btccohort/colstore"
	"github.com/btcsuite/btccohort/supply"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"
)

// genesisTime is the timestamp of the first synthetic block.
const genesisTime = 1_231_006_505

const testReorgDepth = 10

func testDB(t *testing.T) walletdb.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "cohort.db")
	db, err := walletdb.Create("bdb", dbPath, true, 10*time.Second, false)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testConfig(t *testing.T, db walletdb.DB) Config {
	t.Helper()

	store, err := colstore.Open(db, testReorgDepth)
	require.NoError(t, err)

	return Config{
		Store:          store,
		Workers:        3,
		TipDistance:    1000,
		FlushInterval:  100,
		MaxReorgDepth:  testReorgDepth,
		PollTicker:     ticker.NewForce(time.Hour),
		ProgressTicker: ticker.NewForce(time.Hour),
	}
}

func testManager(t *testing.T, db walletdb.DB) *Manager {
	t.Helper()

	m, err := New(testConfig(t, db))
	require.NoError(t, err)
	return m
}

func usd(dollars int64) fn.Option[supply.Cents] {
	return fn.Some(supply.Cents(dollars * 100))
}

// blockHash derives a distinct hash per height and fork.
func blockHash(height int32, fork byte) chainhash.Hash {
	var b [5]byte
	binary.BigEndian.PutUint32(b[:4], uint32(height))
	b[4] = fork
	return chainhash.DoubleHashH(b[:])
}

// utxo is an unspent output tracked by the chain builder.
type utxo struct {
	value  btcutil.Amount
	typ    supply.OutputType
	addr   []byte
	height int32
}

// chainBuilder produces synthetic connected blocks.
type chainBuilder struct {
	blocks []*Block
	utxos  []utxo
	fork   byte
}

func (c *chainBuilder) tip() *Block {
	if len(c.blocks) == 0 {
		return nil
	}
	return c.blocks[len(c.blocks)-1]
}

// next builds the block after the tip at ts with the given outputs,
// spending the listed indexes of the unspent set.
func (c *chainBuilder) next(ts uint32, price fn.Option[supply.Cents],
	outputs []Output, spend ...int) *Block {

	height := int32(len(c.blocks))
	blk := &Block{
		Height:    height,
		Hash:      blockHash(height, c.fork),
		Timestamp: ts,
		Price:     price,
		Outputs:   outputs,
	}
	if tip := c.tip(); tip != nil {
		blk.PrevHash = tip.Hash
	}

	spent := make(map[int]bool)
	for _, i := range spend {
		u := c.utxos[i]
		spent[i] = true
		blk.Inputs = append(blk.Inputs, Input{
			Value:        u.value,
			Type:         u.typ,
			Address:      u.addr,
			OriginHeight: u.height,
		})
	}
	kept := c.utxos[:0]
	for i, u := range c.utxos {
		if !spent[i] {
			kept = append(kept, u)
		}
	}
	c.utxos = kept

	for _, out := range outputs {
		if !out.Type.IsSpendable() {
			continue
		}
		c.utxos = append(c.utxos, utxo{
			value:  out.Value,
			typ:    out.Type,
			addr:   out.Address,
			height: height,
		})
	}

	c.blocks = append(c.blocks, blk)
	return blk
}

// rewind drops blocks above height and replays the unspent set, so the
// next blocks fork the chain.
func (c *chainBuilder) rewind(height int32) {
	blocks := c.blocks[:height+1]
	c.blocks, c.utxos = nil, nil
	c.fork++
	for _, b := range blocks {
		c.replay(b)
	}
}

func (c *chainBuilder) replay(blk *Block) {
	for _, in := range blk.Inputs {
		for i, u := range c.utxos {
			if u.height == in.OriginHeight && u.value == in.Value &&
				string(u.addr) == string(in.Address) {

				c.utxos = append(c.utxos[:i], c.utxos[i+1:]...)
				break
			}
		}
	}
	for _, out := range blk.Outputs {
		if out.Type.IsSpendable() {
			c.utxos = append(c.utxos, utxo{
				value:  out.Value,
				typ:    out.Type,
				addr:   out.Address,
				height: blk.Height,
			})
		}
	}
	c.blocks = append(c.blocks, blk)
}

var randomTypes = []supply.OutputType{
	supply.P2PK65, supply.P2PKH, supply.P2SH, supply.P2WPKH,
	supply.P2WSH, supply.P2TR, supply.OpReturn, supply.Unknown,
}

// random builds a block after the tip with random outputs and spends.
// Ages advance by up to a month per block so every age boundary gets
// crossed.
func (c *chainBuilder) random(r *rand.Rand) *Block {
	ts := uint32(genesisTime)
	if tip := c.tip(); tip != nil {
		ts = tip.Timestamp + uint32(r.Int63n(30*24*3600))
		// Block times are only loosely ordered.
		if r.Intn(10) == 0 {
			ts = tip.Timestamp - uint32(r.Intn(3600))
		}
	}

	price := fn.None[supply.Cents]()
	if r.Intn(8) != 0 {
		price = fn.Some(supply.Cents(100 + r.Int63n(10_000_000)))
	}

	outputs := make([]Output, 1+r.Intn(6))
	for i := range outputs {
		typ := randomTypes[r.Intn(len(randomTypes))]
		out := Output{
			Value: btcutil.Amount(r.Int63n(5 * btcutil.SatoshiPerBitcoin)),
			Type:  typ,
		}
		if typ.HasAddress() {
			out.Address = []byte{byte(r.Intn(12))}
		}
		outputs[i] = out
	}

	var spend []int
	for i := range c.utxos {
		if r.Intn(4) == 0 {
			spend = append(spend, i)
		}
	}
	return c.next(ts, price, outputs, spend...)
}

func processAll(t *testing.T, m *Manager, blocks []*Block) {
	t.Helper()

	for _, blk := range blocks {
		require.NoError(t, m.ProcessBlock(context.Background(), blk))
	}
}

// cohortSnapshot is the persistent part of a cohort ledger.
type cohortSnapshot struct {
	Supply    supply.State
	Cap       string
	AddrCount uint64
	CostBasis map[supply.Cents]btcutil.Amount
}

func snapshot(m *Manager) map[string]cohortSnapshot {
	snap := make(map[string]cohortSnapshot)
	m.eachEntry(func(e *entry) {
		s := cohortSnapshot{
			Supply: e.state.Supply,
			Cap:    e.state.Realized.Cap.Hex(),
		}
		if e.addr != nil {
			s.AddrCount = e.addr.AddrCount
		}
		if cb := e.state.CostBasis; cb != nil {
			s.CostBasis = make(map[supply.Cents]btcutil.Amount)
			cb.ForEach(func(p supply.Cents, a btcutil.Amount) bool {
				s.CostBasis[p] = a
				return true
			})
		}
		snap[e.name] = s
	})
	return snap
}

func requireSameSnapshot(t *testing.T, want, got map[string]cohortSnapshot) {
	t.Helper()

	for name, w := range want {
		g := got[name]
		require.Equal(t, w, g, "cohort %s\nwant: %s\ngot: %s", name,
			spew.Sdump(w), spew.Sdump(g))
	}
	require.Len(t, got, len(want))
}

// fakeSource serves blocks of a chainBuilder.
type fakeSource struct {
	mu    sync.Mutex
	chain *chainBuilder
}

func (s *fakeSource) BestHeight(context.Context) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int32(len(s.chain.blocks)) - 1, nil
}

func (s *fakeSource) BlockHash(_ context.Context,
	height int32) (chainhash.Hash, error) {

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain.blocks[height].Hash, nil
}

func (s *fakeSource) FetchBlock(_ context.Context, height int32) (*Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain.blocks[height], nil
}
