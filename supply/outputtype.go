// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package supply

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
)

// OutputType is the closed set of output script kinds tracked by the
// engine.
type OutputType uint8

// These constants enumerate every OutputType.  The order is persisted and
// must not change.
const (
	P2PK65 OutputType = iota
	P2PK33
	P2PKH
	P2MS
	P2SH
	OpReturn
	P2WPKH
	P2WSH
	P2TR
	P2A
	Empty
	Unknown

	// NumOutputTypes is the number of OutputType values.
	NumOutputTypes = int(Unknown) + 1

	// NumSpendableTypes is the number of OutputType values able to hold
	// spendable value, that is every type except OpReturn.
	NumSpendableTypes = NumOutputTypes - 1
)

var outputTypeStrings = [NumOutputTypes]string{
	P2PK65:   "p2pk65",
	P2PK33:   "p2pk33",
	P2PKH:    "p2pkh",
	P2MS:     "p2ms",
	P2SH:     "p2sh",
	OpReturn: "opreturn",
	P2WPKH:   "p2wpkh",
	P2WSH:    "p2wsh",
	P2TR:     "p2tr",
	P2A:      "p2a",
	Empty:    "empty",
	Unknown:  "unknown",
}

// String returns the lower case identifier of the output type.
func (t OutputType) String() string {
	if int(t) < NumOutputTypes {
		return outputTypeStrings[t]
	}
	return fmt.Sprintf("OutputType(%d)", uint8(t))
}

// IsSpendable returns whether outputs of this type can ever be spent.
func (t OutputType) IsSpendable() bool {
	return t != OpReturn
}

// HasAddress returns whether outputs of this type are attributed to an
// address for the address cohorts.
func (t OutputType) HasAddress() bool {
	switch t {
	case P2PK65, P2PK33, P2PKH, P2SH, P2WPKH, P2WSH, P2TR, P2A:
		return true
	default:
		return false
	}
}

// SpendableIndex maps a spendable type onto a dense index in
// [0, NumSpendableTypes).  It panics for OpReturn.
func (t OutputType) SpendableIndex() int {
	switch {
	case t < OpReturn:
		return int(t)
	case t > OpReturn && int(t) < NumOutputTypes:
		return int(t) - 1
	default:
		panic(fmt.Sprintf("%v has no spendable index", t))
	}
}

// SpendableTypeAt is the inverse of SpendableIndex.
func SpendableTypeAt(i int) OutputType {
	if i < int(OpReturn) {
		return OutputType(i)
	}
	return OutputType(i + 1)
}

// payToAnchorScript is the standard pay-to-anchor output script:
// OP_1 OP_PUSHBYTES_2 0x4e73.
var payToAnchorScript = []byte{txscript.OP_1, txscript.OP_DATA_2, 0x4e, 0x73}

// ClassifyScript maps an output script onto its OutputType.
func ClassifyScript(pkScript []byte) OutputType {
	if len(pkScript) == 0 {
		return Empty
	}
	if bytes.Equal(pkScript, payToAnchorScript) {
		return P2A
	}

	switch txscript.GetScriptClass(pkScript) {
	case txscript.PubKeyTy:
		if len(pkScript) == 35 {
			return P2PK33
		}
		return P2PK65
	case txscript.PubKeyHashTy:
		return P2PKH
	case txscript.MultiSigTy:
		return P2MS
	case txscript.ScriptHashTy:
		return P2SH
	case txscript.NullDataTy:
		return OpReturn
	case txscript.WitnessV0PubKeyHashTy:
		return P2WPKH
	case txscript.WitnessV0ScriptHashTy:
		return P2WSH
	case txscript.WitnessV1TaprootTy:
		return P2TR
	default:
		// OP_RETURN scripts that exceed the standard data size are not
		// classified as null data by txscript but are still provably
		// unspendable.
		if pkScript[0] == txscript.OP_RETURN {
			return OpReturn
		}
		return Unknown
	}
}
