// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btccohort/colstore"
	"github.com/stretchr/testify/require"
)

func TestOpenDBCreatesThenReopens(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "mainnet", cohortDBName)

	db, err := openDB(dbPath, time.Second)
	require.NoError(t, err)
	store, err := colstore.Open(db, 10)
	require.NoError(t, err)
	col, err := store.Column("heights")
	require.NoError(t, err)
	col.Push(7)
	_, err = store.Flush(0, true)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = openDB(dbPath, time.Second)
	require.NoError(t, err)
	defer db.Close()

	stamp, ok, err := colstore.NewReader(db).Stamp()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(0), stamp)
}
