// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package colstore

import (
	"fmt"

	"github.com/btcsuite/btcwallet/walletdb"
)

// Reader gives read-only access to the flushed contents of a column store.
// It never observes buffered writes, so it is safe to use from any number
// of goroutines while the writer keeps processing blocks.
type Reader struct {
	db walletdb.DB
}

// NewReader returns a Reader over the column store kept in db.
func NewReader(db walletdb.DB) *Reader {
	return &Reader{db: db}
}

// Stamp returns the stamp of the last flush, if any.
func (r *Reader) Stamp() (uint32, bool, error) {
	var (
		stamp uint32
		ok    bool
	)
	err := walletdb.View(r.db, func(tx walletdb.ReadTx) error {
		ns := tx.ReadBucket(bucketRoot)
		if ns == nil {
			return nil
		}
		v := ns.NestedReadBucket(bucketMeta).Get(keyStamp)
		if v == nil {
			return nil
		}
		var err error
		stamp, err = readUint32(v)
		ok = err == nil
		return err
	})
	return stamp, ok, err
}

// ColumnLen returns the flushed length of the named column.  Unknown
// columns have length zero.
func (r *Reader) ColumnLen(name string) (uint64, error) {
	var n uint64
	err := walletdb.View(r.db, func(tx walletdb.ReadTx) error {
		b := r.column(tx, name)
		if b == nil {
			return nil
		}
		var err error
		n, err = columnLen(b)
		return err
	})
	return n, err
}

// ReadRange returns the values of the named column at indexes [from, to).
// The range is clamped to the flushed length.
func (r *Reader) ReadRange(name string, from, to uint64) ([]uint64, error) {
	if to < from {
		return nil, fmt.Errorf("invalid range [%d, %d)", from, to)
	}

	var values []uint64
	err := walletdb.View(r.db, func(tx walletdb.ReadTx) error {
		b := r.column(tx, name)
		if b == nil {
			return storeError(ErrOutOfRange, "no column "+name, nil)
		}
		c := b.ReadCursor()
		for k, v := c.Seek(keyIndex(from)); k != nil; k, v = c.Next() {
			idx, err := readUint64(k)
			if err != nil {
				return err
			}
			if idx >= to {
				break
			}
			val, err := readUint64(v)
			if err != nil {
				return err
			}
			values = append(values, val)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// MapGet returns the flushed value of key in the named map, or nil.
func (r *Reader) MapGet(name string, key []byte) ([]byte, error) {
	var v []byte
	err := walletdb.View(r.db, func(tx walletdb.ReadTx) error {
		ns := tx.ReadBucket(bucketRoot)
		if ns == nil {
			return nil
		}
		b := ns.NestedReadBucket(bucketMaps).NestedReadBucket([]byte(name))
		if b == nil {
			return nil
		}
		if raw := b.Get(key); raw != nil {
			v = append([]byte{}, raw...)
		}
		return nil
	})
	return v, err
}

func (r *Reader) column(tx walletdb.ReadTx, name string) walletdb.ReadBucket {
	ns := tx.ReadBucket(bucketRoot)
	if ns == nil {
		return nil
	}
	return ns.NestedReadBucket(bucketColumns).NestedReadBucket([]byte(name))
}
