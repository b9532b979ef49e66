// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package colstore

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcwallet/walletdb"
)

// Naming
//
// The following naming conventions are used throughout this file:
//
//   Index     Position of a value inside a column, equal to the block height
//             for height indexed columns
//   Stamp     Checkpoint identifier, the tip height at the time of a flush
//   Journal   Before-images of the map entries overwritten by one flush
//
// Database layout
//
//   colstore/meta/version           -> uint32
//   colstore/meta/stamp             -> uint32, last flushed stamp
//   colstore/columns/<name>/<index> -> uint64
//   colstore/maps/<name>/<key>      -> value
//   colstore/stamps/<stamp>/changes -> 1 when the journal is complete
//   colstore/stamps/<stamp>/lens/<column>     -> uint64 column length
//   colstore/stamps/<stamp>/journal/<map,key> -> before-image

// Version is the current version of the persisted layout.
const Version uint32 = 1

// byteOrder is the preferred byte order used through the database.  Big
// endian keeps cursor order equal to numeric order.
var byteOrder = binary.BigEndian

var (
	bucketRoot    = []byte("colstore")
	bucketMeta    = []byte("meta")
	bucketColumns = []byte("columns")
	bucketMaps    = []byte("maps")
	bucketStamps  = []byte("stamps")
	bucketLens    = []byte("lens")
	bucketJournal = []byte("journal")

	keyVersion = []byte("version")
	keyStamp   = []byte("stamp")
	keyChanges = []byte("changes")
)

func uint32Bytes(v uint32) []byte {
	var b [4]byte
	byteOrder.PutUint32(b[:], v)
	return b[:]
}

func uint64Bytes(v uint64) []byte {
	var b [8]byte
	byteOrder.PutUint64(b[:], v)
	return b[:]
}

func keyIndex(i uint64) []byte {
	return uint64Bytes(i)
}

func keyStampRecord(stamp uint32) []byte {
	return uint32Bytes(stamp)
}

// keyJournal joins a map name and one of its keys into a journal key.  The
// name is length prefixed so any key bytes can follow it.
func keyJournal(mapName string, key []byte) []byte {
	k := make([]byte, 2+len(mapName)+len(key))
	byteOrder.PutUint16(k, uint16(len(mapName)))
	copy(k[2:], mapName)
	copy(k[2+len(mapName):], key)
	return k
}

func splitJournalKey(k []byte) (string, []byte, error) {
	if len(k) < 2 {
		return "", nil, storeError(ErrCorrupt, "short journal key", nil)
	}
	n := int(byteOrder.Uint16(k))
	if len(k) < 2+n {
		return "", nil, storeError(ErrCorrupt, "short journal key", nil)
	}
	return string(k[2 : 2+n]), k[2+n:], nil
}

// valueBeforeImage encodes the value a key held before a flush.  A nil old
// value records that the key was absent.
func valueBeforeImage(old []byte) []byte {
	if old == nil {
		return []byte{0}
	}
	v := make([]byte, 1+len(old))
	v[0] = 1
	copy(v[1:], old)
	return v
}

func readUint32(v []byte) (uint32, error) {
	if len(v) != 4 {
		return 0, storeError(ErrCorrupt,
			fmt.Sprintf("expected 4 bytes, got %d", len(v)), nil)
	}
	return byteOrder.Uint32(v), nil
}

func readUint64(v []byte) (uint64, error) {
	if len(v) != 8 {
		return 0, storeError(ErrCorrupt,
			fmt.Sprintf("expected 8 bytes, got %d", len(v)), nil)
	}
	return byteOrder.Uint64(v), nil
}

// columnLen returns the number of values stored in a column bucket.  Values
// are dense from index zero so the length is one past the last key.
func columnLen(b walletdb.ReadBucket) (uint64, error) {
	k, _ := b.ReadCursor().Last()
	if k == nil {
		return 0, nil
	}
	last, err := readUint64(k)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// truncateColumn deletes every value at or above index n.
func truncateColumn(b walletdb.ReadWriteBucket, n uint64) error {
	var doomed [][]byte
	c := b.ReadCursor()
	for k, _ := c.Seek(keyIndex(n)); k != nil; k, _ = c.Next() {
		doomed = append(doomed, append([]byte(nil), k...))
	}
	for _, k := range doomed {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// forEachNested calls fn with the name of every nested bucket of b.
func forEachNested(b walletdb.ReadBucket, fn func(name []byte) error) error {
	var names [][]byte
	err := b.ForEach(func(k, v []byte) error {
		if v == nil {
			names = append(names, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := fn(name); err != nil {
			return err
		}
	}
	return nil
}

// createStore creates the top level buckets if they don't exist yet and
// checks the persisted version.
func createStore(ns walletdb.ReadWriteBucket) error {
	meta, err := ns.CreateBucketIfNotExists(bucketMeta)
	if err != nil {
		return err
	}
	for _, name := range [][]byte{bucketColumns, bucketMaps, bucketStamps} {
		if _, err := ns.CreateBucketIfNotExists(name); err != nil {
			return err
		}
	}

	v := meta.Get(keyVersion)
	if v == nil {
		return meta.Put(keyVersion, uint32Bytes(Version))
	}
	version, err := readUint32(v)
	if err != nil {
		return err
	}
	if version != Version {
		str := fmt.Sprintf("column store version %d, expected %d",
			version, Version)
		return storeError(ErrVersionMismatch, str, nil)
	}
	return nil
}
