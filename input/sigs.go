package input

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/shaojunda/spillman-channel/wire"
)

// SignatureSize is the size of a recoverable signature on the wire:
// r(32) || s(32) || recovery id(1).
const SignatureSize = 65

// compactSigMagicOffset and compactSigCompPubKey mirror the header byte
// encoding used by the compact signature format of the underlying secp256k1
// library, which places the header first rather than last.
const (
	compactSigMagicOffset = 27
	compactSigCompPubKey  = 4
)

var (
	// ErrInvalidSignature is returned when a signature cannot be parsed
	// or no public key can be recovered from it.
	ErrInvalidSignature = errors.New("invalid recoverable signature")

	// ErrKeyHashMismatch is returned when a signature is well formed but
	// the recovered key does not hash to the expected value.
	ErrKeyHashMismatch = errors.New("recovered key hash mismatch")
)

// Signature is a 65-byte recoverable ECDSA signature over a transaction
// digest.
type Signature [SignatureSize]byte

// Signer produces recoverable signatures over transaction digests. It
// abstracts away key custody so that hardware or remote signers can slot in
// behind the same interface.
type Signer interface {
	// SignDigest signs the passed 32-byte digest.
	SignDigest(digest wire.Hash) (Signature, error)

	// PubKey returns the public key all signatures will recover to.
	PubKey() *secp256k1.PublicKey
}

// MemorySigner is a Signer backed by a plain in-memory private key.
type MemorySigner struct {
	priv *secp256k1.PrivateKey
}

// A compile time check to ensure MemorySigner implements Signer.
var _ Signer = (*MemorySigner)(nil)

// NewMemorySigner wraps the passed private key.
func NewMemorySigner(priv *secp256k1.PrivateKey) *MemorySigner {
	return &MemorySigner{priv: priv}
}

// SignDigest signs the digest, re-ordering the library's header-first
// compact form into the wire's r || s || v layout.
func (m *MemorySigner) SignDigest(digest wire.Hash) (Signature, error) {
	var sig Signature

	compact := ecdsa.SignCompact(m.priv, digest[:], true)
	if len(compact) != SignatureSize {
		return sig, ErrInvalidSignature
	}

	copy(sig[0:64], compact[1:65])
	sig[64] = compact[0] - compactSigMagicOffset - compactSigCompPubKey
	return sig, nil
}

// PubKey returns the signer's public key.
func (m *MemorySigner) PubKey() *secp256k1.PublicKey {
	return m.priv.PubKey()
}

// KeyHash returns blake160 of the signer's compressed public key.
func (m *MemorySigner) KeyHash() [20]byte {
	return PubKeyHash(m.priv.PubKey())
}

// PubKeyHash returns blake160 of the compressed serialization of the passed
// public key. This is the 20-byte authorization hash format used throughout
// the channel parameters.
func PubKeyHash(pub *secp256k1.PublicKey) [20]byte {
	return wire.Blake160(pub.SerializeCompressed())
}

// RecoverPubKey recovers the public key that produced the passed signature
// over the digest.
func RecoverPubKey(sig Signature, digest wire.Hash) (*secp256k1.PublicKey,
	error) {

	if sig[64] > 3 {
		return nil, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature,
			sig[64])
	}

	var compact [SignatureSize]byte
	compact[0] = sig[64] + compactSigMagicOffset + compactSigCompPubKey
	copy(compact[1:65], sig[0:64])

	pub, _, err := ecdsa.RecoverCompact(compact[:], digest[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return pub, nil
}

// VerifyDigest checks that the signature over the digest was produced by
// the key hashing to keyHash.
func VerifyDigest(sig Signature, digest wire.Hash, keyHash [20]byte) error {
	pub, err := RecoverPubKey(sig, digest)
	if err != nil {
		return err
	}
	if PubKeyHash(pub) != keyHash {
		return ErrKeyHashMismatch
	}
	return nil
}
