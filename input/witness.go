package input

import (
	"bytes"
	"errors"
	"fmt"
)

const (
	// WitnessHeaderSize is the size of the fixed placeholder prefix every
	// unlock witness carries for token-contract compatibility.
	WitnessHeaderSize = 16

	// pathTagSize is the size of the unlock path tag.
	pathTagSize = 1

	// SingleSigWitnessSize is the exact witness size for a single-sig
	// payee: header + tag + payee sig + payer sig.
	SingleSigWitnessSize = WitnessHeaderSize + pathTagSize +
		2*SignatureSize
)

// EmptyWitnessArgs is the fixed 16-byte placeholder header: the
// serialization of a WitnessArgs structure with all fields empty. Token
// contracts sharing the transaction expect to find it at the front of the
// witness.
var EmptyWitnessArgs = [WitnessHeaderSize]byte{
	16, 0, 0, 0, 16, 0, 0, 0, 16, 0, 0, 0, 16, 0, 0, 0,
}

// UnlockPath is the witness tag selecting which of the two unlock paths the
// spender is taking.
type UnlockPath byte

const (
	// PathSettlement is the cooperative settlement path.
	PathSettlement UnlockPath = 0x00

	// PathRefund is the unilateral timeout refund path.
	PathRefund UnlockPath = 0x01
)

// String returns a human readable path name.
func (p UnlockPath) String() string {
	switch p {
	case PathSettlement:
		return "settlement"
	case PathRefund:
		return "refund"
	default:
		return fmt.Sprintf("unknown(%d)", byte(p))
	}
}

var (
	// ErrWitnessLength is returned when a witness's length does not match
	// the exact size implied by the declared scheme. This is a distinct
	// error class from signature failure: it is detected before any
	// semantic check runs.
	ErrWitnessLength = errors.New("witness length mismatch")

	// ErrWitnessHeader is returned when the fixed placeholder prefix is
	// not the empty WitnessArgs serialization.
	ErrWitnessHeader = errors.New("malformed witness placeholder header")
)

// Witness is the decoded authorization block of a channel spend.
//
// Serialized layout:
//
//	[placeholder(16)] [path tag(1)] [payload]
//
// Single-sig payload: payee signature (65) || payer signature (65).
// Multisig payload: multisig descriptor || M payee signatures || payer
// signature.
type Witness struct {
	// Path is the unlock path tag. Decoding preserves unknown tags so the
	// validator can reject them as an unknown path rather than as a parse
	// failure.
	Path UnlockPath

	// Desc is the revealed multisig descriptor. Nil for single-sig
	// schemes.
	Desc *MultisigDesc

	// PayeeSigs holds one signature for single-sig payees, or exactly
	// Threshold signatures for multisig payees.
	PayeeSigs []Signature

	// PayerSig is the payer's signature. The payer side is always
	// single-sig.
	PayerSig Signature
}

// Encode serializes the witness.
func (w *Witness) Encode() []byte {
	size := WitnessHeaderSize + pathTagSize +
		(len(w.PayeeSigs)+1)*SignatureSize
	if w.Desc != nil {
		size += w.Desc.SerializedSize()
	}

	buf := make([]byte, 0, size)
	buf = append(buf, EmptyWitnessArgs[:]...)
	buf = append(buf, byte(w.Path))
	if w.Desc != nil {
		buf = append(buf, w.Desc.Encode()...)
	}
	for _, sig := range w.PayeeSigs {
		buf = append(buf, sig[:]...)
	}
	buf = append(buf, w.PayerSig[:]...)
	return buf
}

// DecodeWitness parses an unlock witness under the given authorization
// scheme. Every field length is a function of the declared scheme and the
// descriptor's declared key count, computed before any byte past the header
// is interpreted; a length mismatch rejects the whole witness without a
// partial parse.
func DecodeWitness(raw []byte, scheme AuthScheme) (*Witness, error) {
	if len(raw) < WitnessHeaderSize+pathTagSize+SignatureSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrWitnessLength,
			len(raw))
	}
	if !bytes.Equal(raw[:WitnessHeaderSize], EmptyWitnessArgs[:]) {
		return nil, ErrWitnessHeader
	}

	w := &Witness{Path: UnlockPath(raw[WitnessHeaderSize])}
	payload := raw[WitnessHeaderSize+pathTagSize:]

	if !scheme.Multisig() {
		if len(raw) != SingleSigWitnessSize {
			return nil, fmt.Errorf("%w: got %d, want %d",
				ErrWitnessLength, len(raw), SingleSigWitnessSize)
		}

		var payeeSig Signature
		copy(payeeSig[:], payload[0:SignatureSize])
		copy(w.PayerSig[:], payload[SignatureSize:2*SignatureSize])
		w.PayeeSigs = []Signature{payeeSig}
		return w, nil
	}

	// Multisig: the declared key count fixes the descriptor length, the
	// declared threshold fixes the signature count, and the total must
	// line up exactly.
	if len(payload) < MultisigHeaderSize {
		return nil, fmt.Errorf("%w: %d byte payload", ErrWitnessLength,
			len(payload))
	}
	threshold := int(payload[2])
	numKeys := int(payload[3])
	descLen := MultisigHeaderSize + numKeys*KeyHashSize
	want := descLen + (threshold+1)*SignatureSize
	if len(payload) != want {
		return nil, fmt.Errorf("%w: got %d byte payload, want %d "+
			"for %d-of-%d", ErrWitnessLength, len(payload), want,
			threshold, numKeys)
	}

	desc, err := DecodeMultisigDesc(payload[:descLen])
	if err != nil {
		return nil, err
	}
	w.Desc = desc

	w.PayeeSigs = make([]Signature, threshold)
	offset := descLen
	for i := 0; i < threshold; i++ {
		copy(w.PayeeSigs[i][:], payload[offset:offset+SignatureSize])
		offset += SignatureSize
	}
	copy(w.PayerSig[:], payload[offset:offset+SignatureSize])
	return w, nil
}
