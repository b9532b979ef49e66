// Copyright (c) 2013-2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import "github.com/btcsuite/btccohort/netparams"

// activeNet is the network followed by the daemon, mainnet unless a network
// option selects another.
var activeNet = &netparams.MainNetParams
