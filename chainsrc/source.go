// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chainsrc feeds the cohort engine with blocks fetched from a
// bitcoind or btcd node over JSON-RPC.  Spent outputs are resolved to the
// height, value, type and address they were created with through a
// persisted origin index.
package chainsrc

import (
	"context"
	"errors"
	"runtime"

	"github.com/btcsuite/btccohort/cohortmgr"
	"github.com/btcsuite/btccohort/colstore"
	"github.com/btcsuite/btccohort/supply"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownOutPoint is returned when a block spends an output missing
// from the origin index.
var ErrUnknownOutPoint = errors.New("spent output not in origin index")

// Client is the part of the node RPC interface the source needs.
// *rpcclient.Client satisfies it.
type Client interface {
	GetBlockCount() (int64, error)
	GetBlockHash(height int64) (*chainhash.Hash, error)
	GetBlock(hash *chainhash.Hash) (*wire.MsgBlock, error)
}

// PriceSource prices a block from its timestamp.
type PriceSource interface {
	PriceAt(timestamp uint32) fn.Option[supply.Cents]
}

// Config holds the collaborators of a Source.
type Config struct {
	Client Client
	Params *chaincfg.Params

	// Store must be the column store of the cohort engine, so the
	// origin index is checkpointed and rolled back with it.
	Store *colstore.Store

	// Prices may be nil, in which case no block has a price.
	Prices PriceSource

	// Workers bounds the fan-out of output classification.
	Workers int
}

// Source is a cohortmgr.BlockSource backed by a node.
type Source struct {
	cfg   Config
	index *OriginIndex
}

var _ cohortmgr.BlockSource = (*Source)(nil)

// New returns a Source over cfg.Client.
func New(cfg Config) (*Source, error) {
	if cfg.Client == nil || cfg.Params == nil || cfg.Store == nil {
		return nil, errors.New("chainsrc: incomplete config")
	}
	if cfg.Workers < 1 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	index, err := OpenOriginIndex(cfg.Store)
	if err != nil {
		return nil, err
	}
	return &Source{cfg: cfg, index: index}, nil
}

// NewRPCClient connects to a node's JSON-RPC server in HTTP POST mode,
// which both bitcoind and btcd support.
func NewRPCClient(host, user, pass string, certs []byte,
	disableTLS bool) (*rpcclient.Client, error) {

	return rpcclient.New(&rpcclient.ConnConfig{
		Host:         host,
		User:         user,
		Pass:         pass,
		Certificates: certs,
		DisableTLS:   disableTLS,
		HTTPPostMode: true,
	}, nil)
}

// BestHeight returns the height of the node's best block.
func (s *Source) BestHeight(ctx context.Context) (int32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := s.cfg.Client.GetBlockCount()
	if err != nil {
		return 0, err
	}
	return int32(n), nil
}

// BlockHash returns the hash of the block at height on the node's chain.
func (s *Source) BlockHash(ctx context.Context,
	height int32) (chainhash.Hash, error) {

	if err := ctx.Err(); err != nil {
		return chainhash.Hash{}, err
	}
	hash, err := s.cfg.Client.GetBlockHash(int64(height))
	if err != nil {
		return chainhash.Hash{}, err
	}
	return *hash, nil
}

// FetchBlock fetches the block at height and resolves its inputs.  The
// origin index is updated, and the update is only persisted by the next
// flush of the store.
func (s *Source) FetchBlock(ctx context.Context,
	height int32) (*cohortmgr.Block, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hash, err := s.cfg.Client.GetBlockHash(int64(height))
	if err != nil {
		return nil, err
	}
	msg, err := s.cfg.Client.GetBlock(hash)
	if err != nil {
		return nil, err
	}
	return s.convert(ctx, height, msg)
}

// txOutputs is the classification of the outputs of one transaction.
type txOutputs struct {
	hash    chainhash.Hash
	outputs []cohortmgr.Output
}

// classify hashes every transaction and classifies its outputs, in
// parallel.
func (s *Source) classify(ctx context.Context,
	txs []*wire.MsgTx) ([]txOutputs, error) {

	out := make([]txOutputs, len(txs))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, tx := range txs {
		i, tx := i, tx
		g.Go(func() error {
			res := txOutputs{
				hash:    tx.TxHash(),
				outputs: make([]cohortmgr.Output, len(tx.TxOut)),
			}
			for j, txOut := range tx.TxOut {
				typ := supply.ClassifyScript(txOut.PkScript)
				res.outputs[j] = cohortmgr.Output{
					Value:   btcutil.Amount(txOut.Value),
					Type:    typ,
					Address: addressKey(txOut.PkScript, typ, s.cfg.Params),
				}
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Source) convert(ctx context.Context, height int32,
	msg *wire.MsgBlock) (*cohortmgr.Block, error) {

	blk := &cohortmgr.Block{
		Height:    height,
		Hash:      msg.BlockHash(),
		PrevHash:  msg.Header.PrevBlock,
		Timestamp: uint32(msg.Header.Timestamp.Unix()),
		Price:     fn.None[supply.Cents](),
	}
	if s.cfg.Prices != nil {
		blk.Price = s.cfg.Prices.PriceAt(blk.Timestamp)
	}

	classified, err := s.classify(ctx, msg.Transactions)
	if err != nil {
		return nil, err
	}

	// Outputs created in this block, which may be spent by later
	// transactions of the same block.
	created := make(map[wire.OutPoint]*Origin)

	for i, tx := range msg.Transactions {
		// The first transaction is the coinbase and spends nothing.
		if i > 0 {
			for _, in := range tx.TxIn {
				op := in.PreviousOutPoint
				o, ok := created[op]
				if ok {
					delete(created, op)
				} else {
					o, err = s.index.Spend(&op)
					if err != nil {
						return nil, err
					}
				}
				blk.Inputs = append(blk.Inputs, cohortmgr.Input{
					Value:        o.Value,
					Type:         o.Type,
					Address:      o.Address,
					OriginHeight: o.Height,
				})
			}
		}

		c := classified[i]
		for j, out := range c.outputs {
			blk.Outputs = append(blk.Outputs, out)
			if !out.Type.IsSpendable() {
				continue
			}
			op := wire.OutPoint{Hash: c.hash, Index: uint32(j)}
			created[op] = &Origin{
				Height:  height,
				Value:   out.Value,
				Type:    out.Type,
				Address: out.Address,
			}
		}
	}

	for op, o := range created {
		op := op
		if err := s.index.Add(&op, o); err != nil {
			return nil, err
		}
	}

	log.Tracef("Block %d (%v): %d outputs, %d inputs", height, blk.Hash,
		len(blk.Outputs), len(blk.Inputs))
	return blk, nil
}

// addressKey returns the identity of the address an output pays to: its
// type followed by the script's address payload.  Outputs without an
// address yield nil.
func addressKey(pkScript []byte, typ supply.OutputType,
	params *chaincfg.Params) []byte {

	if !typ.HasAddress() {
		return nil
	}
	if typ == supply.P2A {
		return append([]byte{byte(typ)}, pkScript...)
	}

	_, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, params)
	if err != nil || len(addrs) != 1 {
		return nil
	}
	return append([]byte{byte(typ)}, addrs[0].ScriptAddress()...)
}
