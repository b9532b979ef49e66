// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"encoding/hex"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// TestNet4 is the network magic of the test network (version 4).
const TestNet4 wire.BitcoinNet = 0x1c163f28

// TestNet4ChainParams defines the test network (version 4).  It shares the
// address encodings and proof of work rules of testnet3, so it is derived
// from those with the genesis block, seeds and activation heights
// replaced.
var TestNet4ChainParams = newTestNet4Params()

func newTestNet4Params() chaincfg.Params {
	p := chaincfg.TestNet3Params

	p.Name = "testnet4"
	p.Net = TestNet4
	p.DefaultPort = "48333"
	p.DNSSeeds = []chaincfg.DNSSeed{
		{Host: "seed.testnet4.bitcoin.sprovoost.nl", HasFiltering: true},
		{Host: "seed.testnet4.wiz.biz", HasFiltering: true},
	}

	genesisHash := testNet4GenesisBlock.BlockHash()
	p.GenesisBlock = &testNet4GenesisBlock
	p.GenesisHash = &genesisHash
	p.Checkpoints = nil

	// Every soft fork is active from the first block.
	p.BIP0034Height = 1
	p.BIP0065Height = 1
	p.BIP0066Height = 1
	p.Deployments[chaincfg.DeploymentTaproot] = chaincfg.ConsensusDeployment{
		BitNumber:         2,
		DeploymentStarter: alwaysActive{},
		DeploymentEnder:   alwaysActive{},
	}

	return p
}

// testNet4GenesisBlock is the first block of testnet4.
var testNet4GenesisBlock = wire.MsgBlock{
	Header: wire.BlockHeader{
		Version:    1,
		MerkleRoot: mustHash("7aa0a7ae1e223414cb807e40cd57e667b718e42aaf9306db9102fe28912b7b4e"),
		Timestamp:  time.Unix(1714777860, 0),
		Bits:       0x1d00ffff,
		Nonce:      393743547,
	},
	Transactions: []*wire.MsgTx{{
		Version: 1,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{Index: wire.MaxPrevOutIndex},
			SignatureScript: mustHex("04ffff001d01044c4c30332f4d61792f32" +
				"3032342030303030303030303030303030303030303030" +
				"303165626435386332343439373062336161396437383362" +
				"623030313031316662653865613865393865303065"),
			Sequence: wire.MaxTxInSequenceNum,
		}},
		TxOut: []*wire.TxOut{{
			Value: 50 * 1e8,
			PkScript: mustHex("21000000000000000000000000000000000000" +
				"000000000000000000000000000000ac"),
		}},
	}},
}

func mustHash(s string) chainhash.Hash {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic(err)
	}
	return *h
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// alwaysActive is a deployment that is active from genesis.
type alwaysActive struct{}

func (alwaysActive) HasStarted(*wire.BlockHeader) (bool, error) {
	return true, nil
}

func (alwaysActive) HasEnded(*wire.BlockHeader) (bool, error) {
	return true, nil
}
