// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cohortmgr

import (
	"context"

	"github.com/btcsuite/btccohort/supply"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Output is an output created by a block.
type Output struct {
	Value btcutil.Amount
	Type  supply.OutputType

	// Address identifies the receiving address.  It is nil for outputs
	// without one.
	Address []byte
}

// Input is a spent output, described by the output it consumes.
type Input struct {
	Value   btcutil.Amount
	Type    supply.OutputType
	Address []byte

	// OriginHeight is the height of the block that created the spent
	// output.
	OriginHeight int32
}

// Block is everything the engine needs to know about one block.  Coinbase
// inputs are not listed.
type Block struct {
	Height    int32
	Hash      chainhash.Hash
	PrevHash  chainhash.Hash
	Timestamp uint32
	Price     fn.Option[supply.Cents]
	Outputs   []Output
	Inputs    []Input
}

// BlockSource provides blocks in the shape the engine consumes.
type BlockSource interface {
	// BestHeight returns the height of the source's chain tip.
	BestHeight(ctx context.Context) (int32, error)

	// BlockHash returns the hash of the block at height on the source's
	// current chain.
	BlockHash(ctx context.Context, height int32) (chainhash.Hash, error)

	// FetchBlock returns the block at height.  Blocks are requested in
	// height order, each once, unless the engine rolls back.
	FetchBlock(ctx context.Context, height int32) (*Block, error)
}
