// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package colstore

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	"github.com/btcsuite/btcwallet/walletdb"
)

// Store is a set of named columns and key/value maps kept in a walletdb
// namespace.  Writes are buffered in memory and applied atomically by Flush,
// which tags them with a stamp.  Flushes made with changes journal enough
// to be undone by Rollback.
//
// Store has a single writer.  Concurrent readers use Reader, which only
// observes flushed data.
type Store struct {
	db            walletdb.DB
	maxReorgDepth uint32

	mu       sync.Mutex
	columns  map[string]*Column
	maps     map[string]*KV
	stamp    uint32
	hasStamp bool
}

// Open opens the column store kept in db, creating its buckets if needed.
// Journals older than maxReorgDepth stamps are pruned on flush.
func Open(db walletdb.DB, maxReorgDepth uint32) (*Store, error) {
	s := &Store{
		db:            db,
		maxReorgDepth: maxReorgDepth,
		columns:       make(map[string]*Column),
		maps:          make(map[string]*KV),
	}

	err := walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		ns, err := tx.CreateTopLevelBucket(bucketRoot)
		if err != nil {
			return err
		}
		if err := createStore(ns); err != nil {
			return err
		}

		v := ns.NestedReadBucket(bucketMeta).Get(keyStamp)
		if v == nil {
			return nil
		}
		s.stamp, err = readUint32(v)
		s.hasStamp = err == nil
		return err
	})
	if err != nil {
		return nil, wrapDBError("open column store", err)
	}

	if s.hasStamp {
		log.Debugf("Opened column store at stamp %d", s.stamp)
	}
	return s, nil
}

// Stamp returns the stamp of the last flush, if any.
func (s *Store) Stamp() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stamp, s.hasStamp
}

// Stamps returns every retained checkpoint stamp in ascending order.
func (s *Store) Stamps() ([]uint32, error) {
	var stamps []uint32
	err := walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		b := tx.ReadBucket(bucketRoot).NestedReadBucket(bucketStamps)
		return forEachNested(b, func(k []byte) error {
			stamp, err := readUint32(k)
			if err != nil {
				return err
			}
			stamps = append(stamps, stamp)
			return nil
		})
	})
	if err != nil {
		return nil, wrapDBError("list stamps", err)
	}
	return stamps, nil
}

// Column returns the named column, creating it if it doesn't exist.
func (s *Store) Column(name string) (*Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.columns[name]; ok {
		return c, nil
	}

	var n uint64
	err := walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		cols := tx.ReadWriteBucket(bucketRoot).
			NestedReadWriteBucket(bucketColumns)
		b, err := cols.CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return err
		}
		n, err = columnLen(b)
		return err
	})
	if err != nil {
		return nil, wrapDBError("open column "+name, err)
	}

	c := &Column{name: name, store: s, persisted: n, truncTo: n}
	s.columns[name] = c
	return c, nil
}

// Map returns the named key/value map, creating it if it doesn't exist.
func (s *Store) Map(name string) (*KV, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.maps[name]; ok {
		return m, nil
	}

	err := walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		maps := tx.ReadWriteBucket(bucketRoot).
			NestedReadWriteBucket(bucketMaps)
		_, err := maps.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, wrapDBError("open map "+name, err)
	}

	m := &KV{name: name, store: s, overlay: make(map[string]pendingValue)}
	s.maps[name] = m
	return m, nil
}

func (s *Store) hasPending() bool {
	for _, c := range s.columns {
		if c.truncTo != c.persisted || len(c.pending) > 0 {
			return true
		}
	}
	for _, m := range s.maps {
		if len(m.overlay) > 0 {
			return true
		}
	}
	return false
}

// Flush writes every buffered change in a single transaction tagged with
// stamp.  With changes, the previous value of every overwritten map entry
// is journaled under the stamp so Rollback can restore it.  Flushing the
// current stamp again with nothing buffered is a no-op, reported by a false
// return.
func (s *Store) Flush(stamp uint32, withChanges bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasStamp && stamp == s.stamp && !s.hasPending() {
		return false, nil
	}

	err := walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		ns := tx.ReadWriteBucket(bucketRoot)
		return s.flush(ns, stamp, withChanges)
	})
	if err != nil {
		return false, wrapDBError("flush", err)
	}

	for _, c := range s.columns {
		c.persisted = c.Len()
		c.truncTo = c.persisted
		c.pending = nil
	}
	for _, m := range s.maps {
		m.overlay = make(map[string]pendingValue)
	}
	s.stamp = stamp
	s.hasStamp = true

	log.Tracef("Flushed stamp %d (with changes: %v)", stamp, withChanges)
	return true, nil
}

func (s *Store) flush(ns walletdb.ReadWriteBucket, stamp uint32,
	withChanges bool) error {

	stamps := ns.NestedReadWriteBucket(bucketStamps)
	sb, err := stamps.CreateBucketIfNotExists(keyStampRecord(stamp))
	if err != nil {
		return err
	}

	// A stamp flushed again keeps a complete journal only if every flush
	// made under it journaled.
	changes := withChanges
	if v := sb.Get(keyChanges); v != nil && v[0] == 0 {
		changes = false
	}
	if changes {
		err = sb.Put(keyChanges, []byte{1})
	} else {
		err = sb.Put(keyChanges, []byte{0})
	}
	if err != nil {
		return err
	}

	journal, err := sb.CreateBucketIfNotExists(bucketJournal)
	if err != nil {
		return err
	}

	maps := ns.NestedReadWriteBucket(bucketMaps)
	for name, m := range s.maps {
		if len(m.overlay) == 0 {
			continue
		}
		mb, err := maps.CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return err
		}
		for k, pv := range m.overlay {
			key := []byte(k)
			if withChanges {
				jk := keyJournal(name, key)
				if journal.Get(jk) == nil {
					before := valueBeforeImage(mb.Get(key))
					if err := journal.Put(jk, before); err != nil {
						return err
					}
				}
			}
			if pv.deleted {
				err = mb.Delete(key)
			} else {
				err = mb.Put(key, pv.value)
			}
			if err != nil {
				return err
			}
		}
	}

	cols := ns.NestedReadWriteBucket(bucketColumns)
	for name, c := range s.columns {
		cb, err := cols.CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return err
		}
		if c.truncTo < c.persisted {
			if err := truncateColumn(cb, c.truncTo); err != nil {
				return err
			}
		}
		for i, v := range c.pending {
			idx := c.truncTo + uint64(i)
			if err := cb.Put(keyIndex(idx), uint64Bytes(v)); err != nil {
				return err
			}
		}
	}

	// Record the length of every column, including ones not opened by
	// this process, so a rollback to this stamp can truncate them.
	lens, err := sb.CreateBucketIfNotExists(bucketLens)
	if err != nil {
		return err
	}
	err = forEachNested(cols, func(name []byte) error {
		n, err := columnLen(cols.NestedReadBucket(name))
		if err != nil {
			return err
		}
		return lens.Put(name, uint64Bytes(n))
	})
	if err != nil {
		return err
	}

	meta := ns.NestedReadWriteBucket(bucketMeta)
	if err := meta.Put(keyStamp, uint32Bytes(stamp)); err != nil {
		return err
	}

	return s.prune(stamps, stamp)
}

// prune removes checkpoints that are deeper than the maximum reorg depth
// below stamp.  The newest of them is kept, without its journal, as the
// anchor a deep rollback can still reach.
func (s *Store) prune(stamps walletdb.ReadWriteBucket, stamp uint32) error {
	if stamp <= s.maxReorgDepth {
		return nil
	}
	limit := stamp - s.maxReorgDepth

	var old []uint32
	err := forEachNested(stamps, func(k []byte) error {
		u, err := readUint32(k)
		if err != nil {
			return err
		}
		if u < limit {
			old = append(old, u)
		}
		return nil
	})
	if err != nil || len(old) == 0 {
		return err
	}

	sort.Slice(old, func(i, j int) bool { return old[i] < old[j] })
	anchor := old[len(old)-1]
	for _, u := range old[:len(old)-1] {
		if err := stamps.DeleteNestedBucket(keyStampRecord(u)); err != nil {
			return err
		}
	}

	ab := stamps.NestedReadWriteBucket(keyStampRecord(anchor))
	if ab.NestedReadBucket(bucketJournal) == nil {
		return nil
	}
	if err := ab.DeleteNestedBucket(bucketJournal); err != nil {
		return err
	}
	if _, err := ab.CreateBucket(bucketJournal); err != nil {
		return err
	}
	return ab.Put(keyChanges, []byte{0})
}

// Discard drops every buffered change.
func (s *Store) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.columns {
		c.truncTo, c.pending = c.persisted, nil
	}
	for _, m := range s.maps {
		m.overlay = make(map[string]pendingValue)
	}
}

// Rollback restores the state of the newest checkpoint at or below target
// and returns its stamp.  Every buffered change is discarded.  It fails with
// ErrRollbackUnavailable when no retained checkpoint is at or below target,
// or when a checkpoint between it and the current state was flushed without
// changes.  A failed rollback leaves the store untouched.
func (s *Store) Rollback(target uint32) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var restored uint32
	err := walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		var err error
		restored, err = s.rollback(tx.ReadWriteBucket(bucketRoot), target)
		return err
	})
	if err != nil {
		return 0, wrapDBError("rollback", err)
	}

	err = walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		cols := tx.ReadBucket(bucketRoot).NestedReadBucket(bucketColumns)
		for name, c := range s.columns {
			n, err := columnLen(cols.NestedReadBucket([]byte(name)))
			if err != nil {
				return err
			}
			c.persisted, c.truncTo, c.pending = n, n, nil
		}
		return nil
	})
	if err != nil {
		return 0, wrapDBError("reload columns", err)
	}
	for _, m := range s.maps {
		m.overlay = make(map[string]pendingValue)
	}
	s.stamp = restored
	s.hasStamp = true

	log.Infof("Rolled back column store to stamp %d", restored)
	return restored, nil
}

func (s *Store) rollback(ns walletdb.ReadWriteBucket, target uint32) (uint32, error) {
	stamps := ns.NestedReadWriteBucket(bucketStamps)

	var all []uint32
	err := forEachNested(stamps, func(k []byte) error {
		u, err := readUint32(k)
		if err != nil {
			return err
		}
		all = append(all, u)
		return nil
	})
	if err != nil {
		return 0, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	i := sort.Search(len(all), func(i int) bool { return all[i] > target })
	if i == 0 {
		return 0, storeError(ErrRollbackUnavailable,
			"no checkpoint at or below the rollback height", nil)
	}
	restored := all[i-1]

	maps := ns.NestedReadWriteBucket(bucketMaps)
	for j := len(all) - 1; j >= i; j-- {
		key := keyStampRecord(all[j])
		sb := stamps.NestedReadWriteBucket(key)
		if v := sb.Get(keyChanges); v == nil || v[0] != 1 {
			return 0, storeError(ErrRollbackUnavailable,
				"checkpoint flushed without changes is in the way", nil)
		}
		if err := undoJournal(maps, sb.NestedReadBucket(bucketJournal)); err != nil {
			return 0, err
		}
		if err := stamps.DeleteNestedBucket(key); err != nil {
			return 0, err
		}
	}

	lens := stamps.NestedReadBucket(keyStampRecord(restored)).
		NestedReadBucket(bucketLens)
	cols := ns.NestedReadWriteBucket(bucketColumns)
	err = forEachNested(cols, func(name []byte) error {
		var n uint64
		if lens != nil {
			if v := lens.Get(name); v != nil {
				n, err = readUint64(v)
				if err != nil {
					return err
				}
			}
		}
		return truncateColumn(cols.NestedReadWriteBucket(name), n)
	})
	if err != nil {
		return 0, err
	}

	meta := ns.NestedReadWriteBucket(bucketMeta)
	return restored, meta.Put(keyStamp, uint32Bytes(restored))
}

func undoJournal(maps walletdb.ReadWriteBucket, journal walletdb.ReadBucket) error {
	if journal == nil {
		return nil
	}

	type entry struct{ k, v []byte }
	var entries []entry
	err := journal.ForEach(func(k, v []byte) error {
		entries = append(entries, entry{
			k: append([]byte(nil), k...),
			v: append([]byte(nil), v...),
		})
		return nil
	})
	if err != nil {
		return err
	}

	for _, e := range entries {
		name, key, err := splitJournalKey(e.k)
		if err != nil {
			return err
		}
		mb, err := maps.CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return err
		}
		if len(e.v) == 0 || e.v[0] == 0 {
			err = mb.Delete(key)
		} else {
			err = mb.Put(key, e.v[1:])
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func wrapDBError(desc string, err error) error {
	var e Error
	if errors.As(err, &e) {
		return err
	}
	return storeError(ErrDatabase, desc, err)
}

// pendingValue is a buffered map write.
type pendingValue struct {
	value   []byte
	deleted bool
}

// Column is a dense, append-only sequence of uint64 values addressed by
// index.  Height indexed columns hold the value for block i at index i.
type Column struct {
	name  string
	store *Store

	persisted uint64
	truncTo   uint64
	pending   []uint64
}

// Name returns the column name.
func (c *Column) Name() string {
	return c.name
}

// Len returns the number of values, including buffered ones.
func (c *Column) Len() uint64 {
	return c.truncTo + uint64(len(c.pending))
}

// Push appends v.
func (c *Column) Push(v uint64) {
	c.pending = append(c.pending, v)
}

// Truncate drops every value at or above index n.
func (c *Column) Truncate(n uint64) {
	switch {
	case n >= c.Len():
	case n >= c.truncTo:
		c.pending = c.pending[:n-c.truncTo]
	default:
		c.truncTo = n
		c.pending = nil
	}
}

// Get returns the value at index i.
func (c *Column) Get(i uint64) (uint64, error) {
	if i >= c.Len() {
		return 0, storeError(ErrOutOfRange, "read past end of column "+
			c.name, nil)
	}
	if i >= c.truncTo {
		return c.pending[i-c.truncTo], nil
	}

	var v uint64
	err := walletdb.View(c.store.db, func(tx walletdb.ReadTx) error {
		b := tx.ReadBucket(bucketRoot).NestedReadBucket(bucketColumns).
			NestedReadBucket([]byte(c.name))
		var err error
		v, err = readUint64(b.Get(keyIndex(i)))
		return err
	})
	return v, err
}

// KV is a buffered key/value map.
type KV struct {
	name    string
	store   *Store
	overlay map[string]pendingValue
}

// Name returns the map name.
func (m *KV) Name() string {
	return m.name
}

// Put buffers key = value.  Both slices are copied.
func (m *KV) Put(key, value []byte) {
	m.overlay[string(key)] = pendingValue{
		value: append([]byte{}, value...),
	}
}

// Delete buffers the removal of key.
func (m *KV) Delete(key []byte) {
	m.overlay[string(key)] = pendingValue{deleted: true}
}

// Get returns the value of key, or nil if it is absent.
func (m *KV) Get(key []byte) ([]byte, error) {
	if pv, ok := m.overlay[string(key)]; ok {
		if pv.deleted {
			return nil, nil
		}
		return pv.value, nil
	}

	var v []byte
	err := walletdb.View(m.store.db, func(tx walletdb.ReadTx) error {
		b := tx.ReadBucket(bucketRoot).NestedReadBucket(bucketMaps).
			NestedReadBucket([]byte(m.name))
		if raw := b.Get(key); raw != nil {
			v = append([]byte{}, raw...)
		}
		return nil
	})
	if err != nil {
		return nil, wrapDBError("read map "+m.name, err)
	}
	return v, nil
}

// ForEach calls fn in key order for every entry whose key starts with
// prefix, buffered writes included.
func (m *KV) ForEach(prefix []byte, fn func(k, v []byte) error) error {
	entries := make(map[string][]byte)
	err := walletdb.View(m.store.db, func(tx walletdb.ReadTx) error {
		b := tx.ReadBucket(bucketRoot).NestedReadBucket(bucketMaps).
			NestedReadBucket([]byte(m.name))
		c := b.ReadCursor()
		for k, v := c.Seek(prefix); k != nil &&
			bytes.HasPrefix(k, prefix); k, v = c.Next() {

			entries[string(k)] = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return wrapDBError("iterate map "+m.name, err)
	}

	for k, pv := range m.overlay {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if pv.deleted {
			delete(entries, k)
		} else {
			entries[k] = pv.value
		}
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), entries[k]); err != nil {
			return err
		}
	}
	return nil
}

// Clear buffers the removal of every entry whose key starts with prefix.
func (m *KV) Clear(prefix []byte) error {
	return m.ForEach(prefix, func(k, _ []byte) error {
		m.Delete(k)
		return nil
	})
}
