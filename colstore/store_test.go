// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package colstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) walletdb.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "cohort.db")
	db, err := walletdb.Create("bdb", dbPath, true, 10*time.Second, false)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testStore(t *testing.T, db walletdb.DB, depth uint32) *Store {
	t.Helper()

	s, err := Open(db, depth)
	require.NoError(t, err)
	return s
}

func columnValues(t *testing.T, c *Column) []uint64 {
	t.Helper()

	values := make([]uint64, 0, c.Len())
	for i := uint64(0); i < c.Len(); i++ {
		v, err := c.Get(i)
		require.NoError(t, err)
		values = append(values, v)
	}
	return values
}

func TestColumnPushFlushReopen(t *testing.T) {
	t.Parallel()

	db := testDB(t)
	s := testStore(t, db, 10)

	c, err := s.Column("all/supply")
	require.NoError(t, err)
	for _, v := range []uint64{5, 6, 7} {
		c.Push(v)
	}
	require.Equal(t, uint64(3), c.Len())

	wrote, err := s.Flush(2, true)
	require.NoError(t, err)
	require.True(t, wrote)

	// Nothing buffered at the same stamp is a no-op.
	wrote, err = s.Flush(2, true)
	require.NoError(t, err)
	require.False(t, wrote)

	c.Push(8)
	require.Equal(t, []uint64{5, 6, 7, 8}, columnValues(t, c))

	_, err = c.Get(4)
	require.True(t, IsError(err, ErrOutOfRange))

	// A second store over the same database sees flushed values only.
	s2 := testStore(t, db, 10)
	stamp, ok := s2.Stamp()
	require.True(t, ok)
	require.Equal(t, uint32(2), stamp)

	c2, err := s2.Column("all/supply")
	require.NoError(t, err)
	require.Equal(t, []uint64{5, 6, 7}, columnValues(t, c2))

	r := NewReader(db)
	values, err := r.ReadRange("all/supply", 1, 10)
	require.NoError(t, err)
	require.Equal(t, []uint64{6, 7}, values)
}

func TestColumnTruncate(t *testing.T) {
	t.Parallel()

	s := testStore(t, testDB(t), 10)
	c, err := s.Column("x")
	require.NoError(t, err)
	for i := uint64(0); i < 5; i++ {
		c.Push(i)
	}
	_, err = s.Flush(4, true)
	require.NoError(t, err)

	c.Push(5)
	c.Truncate(5)
	require.Equal(t, []uint64{0, 1, 2, 3, 4}, columnValues(t, c))

	c.Truncate(2)
	c.Push(9)
	require.Equal(t, []uint64{0, 1, 9}, columnValues(t, c))

	_, err = s.Flush(5, true)
	require.NoError(t, err)

	n, err := NewReader(s.db).ColumnLen("x")
	require.NoError(t, err)
	require.Equal(t, uint64(3), n)
	require.Equal(t, []uint64{0, 1, 9}, columnValues(t, c))
}

func TestMapOverlay(t *testing.T) {
	t.Parallel()

	s := testStore(t, testDB(t), 10)
	m, err := s.Map("chain_state")
	require.NoError(t, err)

	m.Put([]byte("a/1"), []byte("one"))
	m.Put([]byte("a/2"), []byte("two"))
	m.Put([]byte("b/1"), []byte("other"))
	_, err = s.Flush(0, true)
	require.NoError(t, err)

	m.Delete([]byte("a/1"))
	m.Put([]byte("a/3"), []byte("three"))

	v, err := m.Get([]byte("a/1"))
	require.NoError(t, err)
	require.Nil(t, v)

	var keys []string
	err = m.ForEach([]byte("a/"), func(k, v []byte) error {
		keys = append(keys, string(k)+"="+string(v))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a/2=two", "a/3=three"}, keys)

	require.NoError(t, m.Clear([]byte("a/")))
	_, err = s.Flush(1, true)
	require.NoError(t, err)

	r := NewReader(s.db)
	v, err = r.MapGet("chain_state", []byte("a/2"))
	require.NoError(t, err)
	require.Nil(t, v)
	v, err = r.MapGet("chain_state", []byte("b/1"))
	require.NoError(t, err)
	require.Equal(t, []byte("other"), v)
}

func TestRollback(t *testing.T) {
	t.Parallel()

	s := testStore(t, testDB(t), 100)
	c, err := s.Column("col")
	require.NoError(t, err)
	m, err := s.Map("kv")
	require.NoError(t, err)

	// Stamp 1: [10, 11], k=v1.
	c.Push(10)
	c.Push(11)
	m.Put([]byte("k"), []byte("v1"))
	_, err = s.Flush(1, true)
	require.NoError(t, err)

	// Stamp 3: [10, 11, 12, 13], k=v2, j=x.
	c.Push(12)
	c.Push(13)
	m.Put([]byte("k"), []byte("v2"))
	m.Put([]byte("j"), []byte("x"))
	_, err = s.Flush(3, true)
	require.NoError(t, err)

	// Stamp 4: k deleted.
	c.Push(14)
	m.Delete([]byte("k"))
	_, err = s.Flush(4, true)
	require.NoError(t, err)

	// Buffered changes are discarded by a rollback.
	c.Push(15)
	m.Put([]byte("z"), []byte("pending"))

	restored, err := s.Rollback(2)
	require.NoError(t, err)
	require.Equal(t, uint32(1), restored)

	require.Equal(t, []uint64{10, 11}, columnValues(t, c))
	v, err := m.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)
	v, err = m.Get([]byte("j"))
	require.NoError(t, err)
	require.Nil(t, v)
	v, err = m.Get([]byte("z"))
	require.NoError(t, err)
	require.Nil(t, v)

	stamps, err := s.Stamps()
	require.NoError(t, err)
	require.Equal(t, []uint32{1}, stamps)

	stamp, _ := s.Stamp()
	require.Equal(t, uint32(1), stamp)

	_, err = s.Rollback(0)
	require.True(t, IsError(err, ErrRollbackUnavailable))
}

func TestRollbackThroughFlushWithoutChanges(t *testing.T) {
	t.Parallel()

	s := testStore(t, testDB(t), 100)
	m, err := s.Map("kv")
	require.NoError(t, err)

	m.Put([]byte("k"), []byte("v1"))
	_, err = s.Flush(1, true)
	require.NoError(t, err)

	m.Put([]byte("k"), []byte("v2"))
	_, err = s.Flush(2, false)
	require.NoError(t, err)

	m.Put([]byte("k"), []byte("v3"))
	_, err = s.Flush(3, true)
	require.NoError(t, err)

	// Stamp 2 can be reached, stamp 1 can't.
	_, err = s.Rollback(1)
	require.True(t, IsError(err, ErrRollbackUnavailable))

	v, err := m.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v3"), v)

	restored, err := s.Rollback(2)
	require.NoError(t, err)
	require.Equal(t, uint32(2), restored)

	v, err = m.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), v)
}

func TestPruneKeepsAnchor(t *testing.T) {
	t.Parallel()

	s := testStore(t, testDB(t), 2)
	c, err := s.Column("col")
	require.NoError(t, err)

	for stamp := uint32(0); stamp <= 6; stamp++ {
		c.Push(uint64(stamp))
		_, err = s.Flush(stamp, true)
		require.NoError(t, err)
	}

	stamps, err := s.Stamps()
	require.NoError(t, err)
	require.Equal(t, []uint32{3, 4, 5, 6}, stamps)

	restored, err := s.Rollback(3)
	require.NoError(t, err)
	require.Equal(t, uint32(3), restored)
	require.Equal(t, uint64(4), c.Len())

	_, err = s.Rollback(2)
	require.True(t, IsError(err, ErrRollbackUnavailable))
}
