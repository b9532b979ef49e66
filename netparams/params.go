// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package netparams maps the networks btccohort can follow to their chain
// parameters and the default JSON-RPC port of a bitcoind node on each.
package netparams

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// Params is used to group parameters for various networks such as the main
// network and test networks.
type Params struct {
	*chaincfg.Params

	// RPCPort is the default JSON-RPC port of a node on the network.
	RPCPort string
}

// MainNetParams contains parameters for following the main network.
var MainNetParams = Params{
	Params:  &chaincfg.MainNetParams,
	RPCPort: "8332",
}

// TestNet3Params contains parameters for following the test network
// (version 3).
var TestNet3Params = Params{
	Params:  &chaincfg.TestNet3Params,
	RPCPort: "18332",
}

// TestNet4Params contains parameters for following the test network
// (version 4).
var TestNet4Params = Params{
	Params:  &TestNet4ChainParams,
	RPCPort: "48332",
}

// SigNetParams contains parameters for following the default signet.
var SigNetParams = Params{
	Params:  &chaincfg.SigNetParams,
	RPCPort: "38332",
}

// RegTestParams contains parameters for following a regression test
// network.
var RegTestParams = Params{
	Params:  &chaincfg.RegressionNetParams,
	RPCPort: "18443",
}

// ByName returns the parameters of the network called name.
func ByName(name string) (*Params, error) {
	switch name {
	case "main", MainNetParams.Name:
		return &MainNetParams, nil
	case TestNet3Params.Name:
		return &TestNet3Params, nil
	case TestNet4Params.Name:
		return &TestNet4Params, nil
	case SigNetParams.Name:
		return &SigNetParams, nil
	case RegTestParams.Name:
		return &RegTestParams, nil
	}
	return nil, fmt.Errorf("unknown network %q", name)
}
