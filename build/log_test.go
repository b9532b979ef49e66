// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package build

import (
	"testing"

	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/require"
)

func TestNewSubLogger(t *testing.T) {
	var got string
	gen := func(subsystem string) btclog.Logger {
		got = subsystem
		return btclog.Disabled
	}

	logger := NewSubLogger("CMGR", gen)
	require.NotNil(t, logger)

	switch LoggingType {
	case LogTypeDefault:
		require.Equal(t, "CMGR", got)
	case LogTypeNone:
		require.Equal(t, btclog.Disabled, logger)
	}

	require.NotNil(t, NewSubLogger("CSTR", nil))
}

func TestStrings(t *testing.T) {
	require.Equal(t, "development", Development.String())
	require.Equal(t, "production", Production.String())
	require.Equal(t, "stdout", LogTypeStdOut.String())
	require.Equal(t, "unknown", LogType(9).String())
}
