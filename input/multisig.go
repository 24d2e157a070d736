package input

import (
	"errors"
	"fmt"

	"github.com/shaojunda/spillman-channel/wire"
)

const (
	// MultisigHeaderSize is the fixed prefix of a multisig descriptor:
	// format version, require-first-N, threshold and key count, one byte
	// each.
	MultisigHeaderSize = 4

	// KeyHashSize is the size of each declared key hash.
	KeyHashSize = 20
)

// ErrInvalidMultisigDesc is returned when a multisig descriptor violates
// its structural invariants.
var ErrInvalidMultisigDesc = errors.New("invalid multisig descriptor")

// MultisigDesc describes the payee's threshold multisig configuration. The
// channel parameters commit only to blake160 of its serialization; the full
// descriptor travels in the unlock witness and must hash back to the
// committed value.
//
// Serialized layout: S(1) | R(1) | M(1) | N(1) | N x 20-byte key hashes.
type MultisigDesc struct {
	// Version is the descriptor format version. Only version 0 is
	// defined.
	Version byte

	// RequireFirstN demands that each of the first RequireFirstN declared
	// keys contributes a signature.
	RequireFirstN uint8

	// Threshold is the number of distinct valid signatures required.
	Threshold uint8

	// KeyHashes are the blake160 hashes of the declared public keys.
	KeyHashes [][KeyHashSize]byte
}

// NumKeys returns the declared key count N.
func (d *MultisigDesc) NumKeys() int {
	return len(d.KeyHashes)
}

// SerializedSize returns the exact encoded size of the descriptor.
func (d *MultisigDesc) SerializedSize() int {
	return MultisigHeaderSize + d.NumKeys()*KeyHashSize
}

// Validate enforces the descriptor's structural invariants: version 0, at
// least one key, a threshold within [1, N] and require-first-N within the
// threshold.
func (d *MultisigDesc) Validate() error {
	switch {
	case d.Version != 0:
		return fmt.Errorf("%w: version %d", ErrInvalidMultisigDesc,
			d.Version)

	case d.NumKeys() == 0 || d.NumKeys() > 255:
		return fmt.Errorf("%w: %d keys", ErrInvalidMultisigDesc,
			d.NumKeys())

	case d.Threshold == 0 || int(d.Threshold) > d.NumKeys():
		return fmt.Errorf("%w: threshold %d of %d keys",
			ErrInvalidMultisigDesc, d.Threshold, d.NumKeys())

	case d.RequireFirstN > d.Threshold:
		return fmt.Errorf("%w: require-first-%d exceeds threshold %d",
			ErrInvalidMultisigDesc, d.RequireFirstN, d.Threshold)
	}
	return nil
}

// Encode serializes the descriptor.
func (d *MultisigDesc) Encode() []byte {
	buf := make([]byte, 0, d.SerializedSize())
	buf = append(buf, d.Version, d.RequireFirstN, d.Threshold,
		byte(d.NumKeys()))
	for _, keyHash := range d.KeyHashes {
		buf = append(buf, keyHash[:]...)
	}
	return buf
}

// Hash returns blake160 of the encoded descriptor. This is the value
// committed as the payee authorization hash for multisig channels.
func (d *MultisigDesc) Hash() [20]byte {
	return wire.Blake160(d.Encode())
}

// DecodeMultisigDesc parses a descriptor from raw. The expected total
// length is derived from the declared key count before any key hash is
// read, so a truncated descriptor never partially parses.
func DecodeMultisigDesc(raw []byte) (*MultisigDesc, error) {
	if len(raw) < MultisigHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidMultisigDesc,
			len(raw))
	}

	numKeys := int(raw[3])
	if len(raw) != MultisigHeaderSize+numKeys*KeyHashSize {
		return nil, fmt.Errorf("%w: got %d bytes, declared %d keys",
			ErrInvalidMultisigDesc, len(raw), numKeys)
	}

	d := &MultisigDesc{
		Version:       raw[0],
		RequireFirstN: raw[1],
		Threshold:     raw[2],
		KeyHashes:     make([][KeyHashSize]byte, numKeys),
	}
	for i := 0; i < numKeys; i++ {
		offset := MultisigHeaderSize + i*KeyHashSize
		copy(d.KeyHashes[i][:], raw[offset:offset+KeyHashSize])
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// VerifySigs checks a set of signatures against the descriptor: at least
// Threshold signatures must recover distinct declared keys, and each of the
// first RequireFirstN keys must be among those covered. Work is bounded by
// Threshold x NumKeys.
func (d *MultisigDesc) VerifySigs(digest wire.Hash, sigs []Signature) error {
	if len(sigs) < int(d.Threshold) {
		return fmt.Errorf("%w: %d signatures for threshold %d",
			ErrKeyHashMismatch, len(sigs), d.Threshold)
	}

	matched := make([]bool, d.NumKeys())
	var matches uint8
	for _, sig := range sigs {
		pub, err := RecoverPubKey(sig, digest)
		if err != nil {
			return err
		}

		keyHash := PubKeyHash(pub)
		for i, declared := range d.KeyHashes {
			if matched[i] || keyHash != declared {
				continue
			}
			matched[i] = true
			matches++
			break
		}
	}

	if matches < d.Threshold {
		return fmt.Errorf("%w: %d distinct keys matched, need %d",
			ErrKeyHashMismatch, matches, d.Threshold)
	}
	for i := 0; i < int(d.RequireFirstN); i++ {
		if !matched[i] {
			return fmt.Errorf("%w: required key %d did not sign",
				ErrKeyHashMismatch, i)
		}
	}
	return nil
}
