// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cohort

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btccohort/supply"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/holiman/uint256"
	"github.com/lightningnetwork/lnd/tlv"
)

// AddressState is the ledger of one address cohort: the State of every
// output held by its addresses and the number of those addresses.
type AddressState struct {
	State
	AddrCount uint64
}

// NewAddressState returns the empty ledger of an address cohort.
func NewAddressState(f Filter) *AddressState {
	return &AddressState{State: *NewState(f, AddressContext)}
}

// AddAddress moves a whole address into the cohort.
func (s *AddressState) AddAddress(a *AddressData) {
	s.AddrCount++
	s.Supply.Add(a.Supply())
	if s.Realized != nil {
		s.Realized.Cap.Add(&s.Realized.Cap, &a.RealizedCap)
	}
}

// SubAddress moves a whole address out of the cohort.  It panics if the
// cohort doesn't hold the address.
func (s *AddressState) SubAddress(a *AddressData) {
	if s.AddrCount == 0 {
		panic("address count desync: cannot remove address from " +
			"empty cohort")
	}
	s.AddrCount--
	s.Supply.Sub(a.Supply())
	if s.Realized != nil {
		s.Realized.subCapRaw(&a.RealizedCap)
	}
}

// AddressData is the balance record of one address.
type AddressData struct {
	Received    btcutil.Amount
	Sent        btcutil.Amount
	RealizedCap uint256.Int
	UTXOCount   uint64
	FundedTXOs  uint64
	SpentTXOs   uint64
}

// Balance returns the value currently held by the address.
func (a *AddressData) Balance() btcutil.Amount {
	return a.Received - a.Sent
}

// Supply returns the outputs currently held by the address.
func (a *AddressData) Supply() supply.State {
	return supply.State{UTXOCount: a.UTXOCount, Value: a.Balance()}
}

// IsEmpty returns whether the address holds no output.
func (a *AddressData) IsEmpty() bool {
	return a.UTXOCount == 0
}

// Receive records a new output of the address.
func (a *AddressData) Receive(value btcutil.Amount, capital *uint256.Int) {
	a.Received += value
	a.UTXOCount++
	a.FundedTXOs++
	a.RealizedCap.Add(&a.RealizedCap, capital)
}

// Send records the spend of an output of the address.  It panics if the
// address doesn't hold enough.
func (a *AddressData) Send(value btcutil.Amount, capital *uint256.Int) {
	if a.UTXOCount == 0 || value > a.Balance() {
		panic(fmt.Sprintf("address desync: cannot spend %v from %v",
			value, a.Supply()))
	}
	if _, overflow := a.RealizedCap.SubOverflow(&a.RealizedCap, capital); overflow {
		panic("address desync: realized cap underflow")
	}
	a.Sent += value
	a.UTXOCount--
	a.SpentTXOs++
}

const (
	typeAddrReceived    tlv.Type = 1
	typeAddrSent        tlv.Type = 2
	typeAddrRealizedCap tlv.Type = 3
	typeAddrUTXOCount   tlv.Type = 4
	typeAddrFunded      tlv.Type = 5
	typeAddrSpent       tlv.Type = 6
)

// addressRecords returns the TLV records of the fields of a, bound to the
// given scratch values.
func addressRecords(received, sent, utxos, funded, spent *uint64,
	capital *[32]byte) []tlv.Record {

	return []tlv.Record{
		tlv.MakePrimitiveRecord(typeAddrReceived, received),
		tlv.MakePrimitiveRecord(typeAddrSent, sent),
		tlv.MakePrimitiveRecord(typeAddrRealizedCap, capital),
		tlv.MakePrimitiveRecord(typeAddrUTXOCount, utxos),
		tlv.MakePrimitiveRecord(typeAddrFunded, funded),
		tlv.MakePrimitiveRecord(typeAddrSpent, spent),
	}
}

// Encode serializes the record as a TLV stream.
func (a *AddressData) Encode() ([]byte, error) {
	received := uint64(a.Received)
	sent := uint64(a.Sent)
	utxos, funded, spent := a.UTXOCount, a.FundedTXOs, a.SpentTXOs
	capital := a.RealizedCap.Bytes32()

	stream, err := tlv.NewStream(addressRecords(
		&received, &sent, &utxos, &funded, &spent, &capital,
	)...)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := stream.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeAddressData parses a record produced by Encode.
func DecodeAddressData(b []byte) (*AddressData, error) {
	var (
		received, sent, utxos, funded, spent uint64
		capital                              [32]byte
	)
	stream, err := tlv.NewStream(addressRecords(
		&received, &sent, &utxos, &funded, &spent, &capital,
	)...)
	if err != nil {
		return nil, err
	}
	if err := stream.Decode(bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("decode address data: %w", err)
	}

	a := &AddressData{
		Received:   btcutil.Amount(received),
		Sent:       btcutil.Amount(sent),
		UTXOCount:  utxos,
		FundedTXOs: funded,
		SpentTXOs:  spent,
	}
	a.RealizedCap.SetBytes32(capital[:])
	return a, nil
}
