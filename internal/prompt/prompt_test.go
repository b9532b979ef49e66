// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prompt

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPassPromptNotTerminal(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	var out bytes.Buffer
	_, err = PassPrompt(int(r.Fd()), &out, "RPC password")
	require.ErrorIs(t, err, ErrNotTerminal)
	require.Zero(t, out.Len())
}
