// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cohortmgr

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/btcsuite/btccohort/colstore"
	"github.com/btcsuite/btccohort/costbasis"
	"github.com/btcsuite/btccohort/internal/telemetry"
	"github.com/btcsuite/btccohort/supply"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	mapChainState  = "chain_state"
	mapBlockHash   = "block_hash"
	mapCohortState = "cohort_state"
	mapAddressData = "address_data"

	// ColumnTimestamp and ColumnPrice hold the timestamp and price of
	// every block.  A block without a price has price 0.
	ColumnTimestamp = "chain/timestamp"
	ColumnPrice     = "chain/price"

	costBasisSuffix = "_price_to_amount"
)

// Config holds the collaborators and tuning of a Manager.
type Config struct {
	// Store holds every persisted column and map.  It must be opened
	// with the same MaxReorgDepth.
	Store *colstore.Store

	// Workers bounds the fan-out of the per block passes.  Zero uses
	// GOMAXPROCS.
	Workers int

	// TipDistance is how many blocks from the best height count as near
	// the tip, where every block is committed with changes.  It must be
	// at least MaxReorgDepth so every reorg finds a checkpoint.
	TipDistance int32

	// FlushInterval is the number of blocks between commits far from
	// the tip.
	FlushInterval int32

	// MaxReorgDepth is the deepest reorganization Run recovers from.
	MaxReorgDepth int32

	// PollTicker paces tip polling once caught up, and ProgressTicker
	// paces progress logging.
	PollTicker     ticker.Ticker
	ProgressTicker ticker.Ticker

	// Metrics may be nil.
	Metrics *telemetry.Metrics
}

// Manager owns the block history and every cohort, applies blocks to them
// and checkpoints them into the column store.
type Manager struct {
	cfg   Config
	store *colstore.Store

	// mu serializes block processing, commits and rollbacks.
	mu sync.Mutex

	history *History
	utxo    *utxoCohorts
	addr    *addressCohorts

	chainState  *colstore.KV
	blockHashes *colstore.KV
	cohortState *colstore.KV
	addressData *colstore.KV

	timestamps *colstore.Column
	prices     *colstore.Column

	// dirtyHeights are the history entries changed since the last
	// commit.
	dirtyHeights map[int32]struct{}

	// costBasisStale is set when a distribution no longer matches the
	// ledgers and must be rebuilt from the history.
	costBasisStale bool

	sinceCommit int32
}

// New opens the cohorts persisted in cfg.Store and loads them at the last
// checkpoint.
func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("cohortmgr: no store")
	}
	if cfg.Workers < 1 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.FlushInterval < 1 {
		cfg.FlushInterval = 1
	}
	if cfg.TipDistance < cfg.MaxReorgDepth {
		return nil, fmt.Errorf("cohortmgr: tip distance %d is below the "+
			"max reorg depth %d", cfg.TipDistance, cfg.MaxReorgDepth)
	}

	m := &Manager{
		cfg:          cfg,
		store:        cfg.Store,
		history:      NewHistory(),
		utxo:         newUTXOCohorts(),
		addr:         newAddressCohorts(),
		dirtyHeights: make(map[int32]struct{}),
	}

	var err error
	maps := []struct {
		kv   **colstore.KV
		name string
	}{
		{&m.chainState, mapChainState},
		{&m.blockHashes, mapBlockHash},
		{&m.cohortState, mapCohortState},
		{&m.addressData, mapAddressData},
	}
	for _, mp := range maps {
		if *mp.kv, err = m.store.Map(mp.name); err != nil {
			return nil, err
		}
	}
	if m.timestamps, err = m.store.Column(ColumnTimestamp); err != nil {
		return nil, err
	}
	if m.prices, err = m.store.Column(ColumnPrice); err != nil {
		return nil, err
	}

	m.eachEntry(func(e *entry) {
		if err != nil {
			return
		}
		if e.state.CostBasis != nil {
			e.costBasis, err = m.store.Map(e.name + costBasisSuffix)
			if err != nil {
				return
			}
		}
		e.series, err = openSeries(m.store, e)
	})
	if err != nil {
		return nil, err
	}

	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// eachEntry calls fn for every cohort.
func (m *Manager) eachEntry(fn func(e *entry)) {
	m.utxo.each(fn)
	m.addr.each(fn)
}

// load replaces every in-memory structure with the last checkpoint.
func (m *Manager) load() error {
	m.history = NewHistory()
	m.dirtyHeights = make(map[int32]struct{})
	m.costBasisStale = false
	m.sinceCommit = 0
	m.eachEntry(func(e *entry) { e.resetLedger() })

	stamp, ok := m.store.Stamp()
	if !ok {
		m.truncateSeries()
		log.Infof("Starting from genesis")
		return nil
	}

	err := m.chainState.ForEach(nil, func(k, v []byte) error {
		if len(k) != 4 {
			return fmt.Errorf("chain state: bad key %x", k)
		}
		height := int32(byteOrder.Uint32(k))
		if int(height) != len(m.history.blocks) {
			return fmt.Errorf("chain state: expected height %d, "+
				"got %d", len(m.history.blocks), height)
		}
		bs, err := readBlockState(v)
		if err != nil {
			return err
		}
		m.history.blocks = append(m.history.blocks, bs)
		return nil
	})
	if err != nil {
		return err
	}
	m.history.rebuildPeaks()

	tip := m.history.Tip()
	if tip != int32(stamp) {
		return fmt.Errorf("chain state ends at height %d, checkpoint "+
			"is at %d", tip, stamp)
	}

	m.eachEntry(func(e *entry) {
		if err != nil {
			return
		}
		var v []byte
		v, err = m.cohortState.Get([]byte(e.name))
		if err != nil || v == nil {
			return
		}
		err = readCohortState(e, v)
	})
	if err != nil {
		return err
	}

	m.eachEntry(func(e *entry) {
		if err != nil || e.state.CostBasis == nil {
			return
		}
		cbErr := e.state.CostBasis.Import(e.costBasis, tip)
		switch {
		case errors.Is(cbErr, costbasis.ErrCorrupt):
			log.Warnf("Cost basis of %s unusable: %v", e.name, cbErr)
			m.costBasisStale = true
		case cbErr != nil:
			err = cbErr
		}
	})
	if err != nil {
		return err
	}
	if m.costBasisStale {
		m.rebuildCostBasis()
	}

	m.truncateSeries()

	log.Infof("Loaded cohorts at height %d", tip)
	return nil
}

func (m *Manager) truncateSeries() {
	tip := m.history.Tip()
	m.timestamps.Truncate(uint64(tip + 1))
	m.prices.Truncate(uint64(tip + 1))
	m.eachEntry(func(e *entry) { e.series.truncate(tip) })
}

// pushSeries appends the values of the block just processed to every
// column.
func (m *Manager) pushSeries(bs *BlockState) {
	m.timestamps.Push(uint64(bs.Timestamp))
	m.prices.Push(uint64(bs.Price.UnwrapOr(0)))
	m.eachEntry(func(e *entry) { e.series.push(e, bs.Price) })
}

// rebuildCostBasis recomputes every cost basis distribution from the
// remaining supply of each block in the history.
func (m *Manager) rebuildCostBasis() {
	m.eachEntry(func(e *entry) {
		if e.state.CostBasis != nil {
			e.state.CostBasis.Reset()
		}
	})

	tip := m.history.Tip()
	if tip >= 0 {
		tipTS := int64(m.history.At(tip).Timestamp)
		for h := int32(0); h <= tip; h++ {
			bs := m.history.At(h)
			if bs.Supply.IsZero() || bs.Price.IsNone() {
				continue
			}
			price := bs.Price.UnwrapOr(0)
			age := tipTS - int64(bs.Timestamp)
			for _, e := range m.utxo.timeBased(h, bs.Timestamp, age) {
				if e.state.CostBasis != nil {
					e.state.CostBasis.Increment(price, bs.Supply.Value)
				}
			}
		}
	}

	m.costBasisStale = false
	m.cfg.Metrics.CostBasisRebuilt()
	log.Infof("Rebuilt cost basis distributions at height %d", tip)
}

// Tip returns the height of the last processed block, or -1.
func (m *Manager) Tip() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.Tip()
}

// NextHeight returns the height of the next block to process.
func (m *Manager) NextHeight() int32 {
	return m.Tip() + 1
}

// BlockHash returns the hash of the processed block at height.
func (m *Manager) BlockHash(height int32) (chainhash.Hash, bool, error) {
	var hash chainhash.Hash
	v, err := m.blockHashes.Get(keyHeight(height))
	if err != nil || v == nil {
		return hash, false, err
	}
	if err := hash.SetBytes(v); err != nil {
		return hash, false, err
	}
	return hash, true, nil
}

// History returns the block history.  It must not be mutated.
func (m *Manager) History() *History {
	return m.history
}

// Supply returns the supply of the all cohort.
func (m *Manager) Supply() supply.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.utxo.all.state.Supply
}

// Commit writes everything processed since the last commit in one
// transaction stamped with the tip height.  With changes, the commit can be
// rolled back.  It is a no-op when nothing was processed since the last
// commit.
func (m *Manager) Commit(withChanges bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.commit(withChanges)
}

func (m *Manager) commit(withChanges bool) error {
	tip := m.history.Tip()
	if tip < 0 {
		return nil
	}
	if stamp, ok := m.store.Stamp(); ok && int32(stamp) == tip &&
		len(m.dirtyHeights) == 0 {

		return nil
	}

	for h := range m.dirtyHeights {
		m.chainState.Put(keyHeight(h), valueBlockState(m.history.At(h)))
	}

	var err error
	m.eachEntry(func(e *entry) {
		if err != nil {
			return
		}
		m.cohortState.Put([]byte(e.name), valueCohortState(e))
		if e.state.CostBasis != nil {
			err = e.state.CostBasis.Flush(e.costBasis, tip)
		}
	})
	if err != nil {
		return err
	}

	start := time.Now()
	flushed, err := m.store.Flush(uint32(tip), withChanges)
	if err != nil {
		return err
	}
	m.dirtyHeights = make(map[int32]struct{})
	m.sinceCommit = 0

	if flushed {
		d := time.Since(start)
		m.cfg.Metrics.ObserveFlush(d, withChanges)
		log.Debugf("Committed height %d in %v (with changes: %v)",
			tip, d, withChanges)
	}
	return nil
}

// Rollback restores the newest checkpoint at or below height and returns
// its height.  Blocks above it must be processed again.  Without any
// checkpoint, the manager restarts from genesis.
func (m *Manager) Rollback(height int32) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.store.Stamp(); !ok || height < 0 {
		if ok {
			return 0, colstore.Error{
				ErrorCode:   colstore.ErrRollbackUnavailable,
				Description: "cannot roll back below genesis",
			}
		}
		m.store.Discard()
		if err := m.load(); err != nil {
			return 0, err
		}
		return -1, nil
	}

	stamp, err := m.store.Rollback(uint32(height))
	if err != nil {
		return 0, err
	}
	if err := m.load(); err != nil {
		return 0, err
	}

	restored := int32(stamp)
	m.cfg.Metrics.RolledBack(restored)
	log.Infof("Rolled back to height %d", restored)
	return restored, nil
}
