// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainsrc

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btccohort/colstore"
	"github.com/btcsuite/btccohort/supply"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/tlv"
)

// mapOrigins is the map holding the origin index.
const mapOrigins = "utxo_origin"

const (
	typeOriginHeight  tlv.Type = 1
	typeOriginValue   tlv.Type = 2
	typeOriginType    tlv.Type = 3
	typeOriginAddress tlv.Type = 4
)

// Origin is what the index remembers about an unspent output: enough to
// describe its spend without fetching the creating transaction.
type Origin struct {
	Height  int32
	Value   btcutil.Amount
	Type    supply.OutputType
	Address []byte
}

// keyOutPoint is the index key of an outpoint: the transaction hash
// followed by the big endian output index.
func keyOutPoint(op *wire.OutPoint) []byte {
	k := make([]byte, 36)
	copy(k, op.Hash[:])
	binary.BigEndian.PutUint32(k[32:], op.Index)
	return k
}

func originRecords(height *uint32, value *uint64, typ *uint8,
	addr *[]byte) []tlv.Record {

	records := []tlv.Record{
		tlv.MakePrimitiveRecord(typeOriginHeight, height),
		tlv.MakePrimitiveRecord(typeOriginValue, value),
		tlv.MakePrimitiveRecord(typeOriginType, typ),
	}
	if addr != nil {
		records = append(records,
			tlv.MakePrimitiveRecord(typeOriginAddress, addr))
	}
	return records
}

func (o *Origin) encode() ([]byte, error) {
	height := uint32(o.Height)
	value := uint64(o.Value)
	typ := uint8(o.Type)

	var addr *[]byte
	if len(o.Address) > 0 {
		addr = &o.Address
	}
	stream, err := tlv.NewStream(originRecords(&height, &value, &typ,
		addr)...)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := stream.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeOrigin(b []byte) (*Origin, error) {
	var (
		height uint32
		value  uint64
		typ    uint8
		addr   []byte
	)
	stream, err := tlv.NewStream(originRecords(&height, &value, &typ,
		&addr)...)
	if err != nil {
		return nil, err
	}
	if err := stream.Decode(bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("decode origin: %w", err)
	}
	if int(typ) >= supply.NumOutputTypes {
		return nil, fmt.Errorf("decode origin: unknown output type %d",
			typ)
	}

	o := &Origin{
		Height: int32(height),
		Value:  btcutil.Amount(value),
		Type:   supply.OutputType(typ),
	}
	if len(addr) > 0 {
		o.Address = addr
	}
	return o, nil
}

// OriginIndex maps every unspent output to its Origin.  It lives in the
// engine's column store, so a rollback of the store rolls the index back
// with the cohorts.
type OriginIndex struct {
	kv *colstore.KV
}

// OpenOriginIndex opens the origin index kept in store.
func OpenOriginIndex(store *colstore.Store) (*OriginIndex, error) {
	kv, err := store.Map(mapOrigins)
	if err != nil {
		return nil, err
	}
	return &OriginIndex{kv: kv}, nil
}

// Add records a new unspent output.
func (x *OriginIndex) Add(op *wire.OutPoint, o *Origin) error {
	v, err := o.encode()
	if err != nil {
		return err
	}
	x.kv.Put(keyOutPoint(op), v)
	return nil
}

// Spend removes an output from the index and returns its Origin.  It
// fails with ErrUnknownOutPoint if the output is not indexed.
func (x *OriginIndex) Spend(op *wire.OutPoint) (*Origin, error) {
	k := keyOutPoint(op)
	v, err := x.kv.Get(k)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownOutPoint, op)
	}
	o, err := decodeOrigin(v)
	if err != nil {
		return nil, err
	}
	x.kv.Delete(k)
	return o, nil
}

// Get returns the Origin of an unspent output, or nil.
func (x *OriginIndex) Get(op *wire.OutPoint) (*Origin, error) {
	v, err := x.kv.Get(keyOutPoint(op))
	if err != nil || v == nil {
		return nil, err
	}
	return decodeOrigin(v)
}
