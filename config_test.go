// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btccohort/netparams"
	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/require"
)

// resetActiveNet restores the default network after a test selected one.
func resetActiveNet(t *testing.T) {
	t.Cleanup(func() { activeNet = &netparams.MainNetParams })
}

func TestConfigValidateNetwork(t *testing.T) {
	resetActiveNet(t)

	tests := []struct {
		name    string
		set     func(*config)
		want    *netparams.Params
		connect string
	}{{
		name:    "mainnet",
		set:     func(*config) {},
		want:    &netparams.MainNetParams,
		connect: "localhost:8332",
	}, {
		name:    "testnet4",
		set:     func(c *config) { c.TestNet4 = true },
		want:    &netparams.TestNet4Params,
		connect: "localhost:48332",
	}, {
		name:    "regtest",
		set:     func(c *config) { c.RegTest = true },
		want:    &netparams.RegTestParams,
		connect: "localhost:18443",
	}, {
		name: "explicit port",
		set: func(c *config) {
			c.SigNet = true
			c.RPCConnect = "10.0.0.1:1234"
		},
		want:    &netparams.SigNetParams,
		connect: "10.0.0.1:1234",
	}}

	for _, test := range tests {
		activeNet = &netparams.MainNetParams
		c := defaultConfig()
		test.set(&c)

		require.NoError(t, c.validate(), test.name)
		require.Same(t, test.want, activeNet, test.name)
		require.Equal(t, test.connect, c.RPCConnect, test.name)
		require.Equal(t, test.want.Params.Name, filepath.Base(c.LogDir),
			test.name)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	resetActiveNet(t)

	tests := []struct {
		name string
		set  func(*config)
	}{
		{"two networks", func(c *config) { c.TestNet3, c.SigNet = true, true }},
		{"flush interval", func(c *config) { c.FlushInterval = 0 }},
		{"tip distance", func(c *config) { c.TipDistance = -1 }},
		{"reorg depth", func(c *config) { c.MaxReorgDepth = 0 }},
		{"tip below reorg depth", func(c *config) {
			c.TipDistance, c.MaxReorgDepth = 10, 11
		}},
		{"workers", func(c *config) { c.Workers = -2 }},
		{"poll interval", func(c *config) { c.PollInterval = 0 }},
		{"debug level", func(c *config) { c.DebugLevel = "loud" }},
	}
	for _, test := range tests {
		c := defaultConfig()
		test.set(&c)
		require.Error(t, c.validate(), test.name)
	}
}

func TestConfigDataDirMovesLogs(t *testing.T) {
	resetActiveNet(t)

	dir := t.TempDir()
	c := defaultConfig()
	require.NoError(t, c.AppDataDir.UnmarshalFlag(dir))
	require.NoError(t, c.validate())

	require.Equal(t, filepath.Join(dir, defaultLogDirname, "mainnet"),
		c.LogDir)
	require.Equal(t, filepath.Join(dir, "mainnet", cohortDBName),
		c.dbPath())
}

func TestParseAndSetDebugLevels(t *testing.T) {
	defer setLogLevels(btclog.LevelInfo)

	require.NoError(t, parseAndSetDebugLevels("debug"))
	require.Equal(t, btclog.LevelDebug, cmgrLog.Level())

	require.NoError(t, parseAndSetDebugLevels("CMGR=trace,CSTR=warn"))
	require.Equal(t, btclog.LevelTrace, cmgrLog.Level())
	require.Equal(t, btclog.LevelWarn, cstrLog.Level())
	require.Equal(t, btclog.LevelDebug, prcfLog.Level())

	require.Error(t, parseAndSetDebugLevels("loud"))
	require.Error(t, parseAndSetDebugLevels("NOPE=info"))
	require.Error(t, parseAndSetDebugLevels("CMGR=loud"))
	require.Error(t, parseAndSetDebugLevels("CMGR"+",CSTR=info"))
}

func TestVersion(t *testing.T) {
	require.Equal(t, "beta", normalizeVerString("be ta!"))
	require.Equal(t, "0.1.0-beta", version())
}
