package input

import (
	"encoding/binary"
	"fmt"
)

// ParamsSize is the exact serialized size of the channel parameter block
// that is committed into the escrow's lock script args.
const ParamsSize = 50

// AuthScheme identifies the signature scheme guarding the payee's half of
// the channel. The payer side is always single-sig.
type AuthScheme byte

const (
	// SchemeSingleSig is a plain secp256k1 key hash.
	SchemeSingleSig AuthScheme = 0x00

	// SchemeMultisigLegacy is the legacy threshold multisig contract,
	// resolved by type hash.
	SchemeMultisigLegacy AuthScheme = 0x06

	// SchemeMultisigV2 is the v2 threshold multisig contract, resolved by
	// data hash under the v1 VM.
	SchemeMultisigV2 AuthScheme = 0x07
)

// Valid reports whether the scheme is one of the closed set of supported
// values. The validator's execution bound depends on this set being
// exhaustively enumerable.
func (s AuthScheme) Valid() bool {
	switch s {
	case SchemeSingleSig, SchemeMultisigLegacy, SchemeMultisigV2:
		return true
	default:
		return false
	}
}

// Multisig reports whether the scheme requires a multisig descriptor in the
// unlock witness.
func (s AuthScheme) Multisig() bool {
	return s == SchemeMultisigLegacy || s == SchemeMultisigV2
}

// String returns a human readable scheme name.
func (s AuthScheme) String() string {
	switch s {
	case SchemeSingleSig:
		return "single-sig"
	case SchemeMultisigLegacy:
		return "multisig-legacy"
	case SchemeMultisigV2:
		return "multisig-v2"
	default:
		return fmt.Sprintf("unknown(%d)", byte(s))
	}
}

var (
	// ErrParamsLength is returned when a parameter block is not exactly
	// ParamsSize bytes.
	ErrParamsLength = fmt.Errorf("channel params must be %d bytes",
		ParamsSize)

	// ErrUnknownScheme is returned when the parameter block declares an
	// authorization scheme outside the supported set.
	ErrUnknownScheme = fmt.Errorf("unknown authorization scheme")
)

// ChannelParams is the immutable configuration of a channel escrow,
// committed once at funding time.
//
// Serialized layout (little-endian, 50 bytes):
//
//	[payee_auth_hash(20)] [payer_key_hash(20)] [timeout(8)]
//	[scheme(1)] [version(1)]
//
// For a single-sig payee the auth hash is blake160 of the payee's public
// key. For a multisig payee it is blake160 of the multisig descriptor that
// must be revealed in the unlock witness.
type ChannelParams struct {
	// PayeeAuthHash is the payee authorization reference.
	PayeeAuthHash [20]byte

	// PayerKeyHash is blake160 of the payer's public key.
	PayerKeyHash [20]byte

	// Timeout is the refund activation instant in seconds since the unix
	// epoch.
	Timeout uint64

	// Scheme selects the payee authorization scheme.
	Scheme AuthScheme

	// Version is the parameter block format version. Only version 0 is
	// defined.
	Version byte
}

// Encode serializes the parameter block into its fixed 50-byte form.
func (p *ChannelParams) Encode() []byte {
	buf := make([]byte, 0, ParamsSize)
	buf = append(buf, p.PayeeAuthHash[:]...)
	buf = append(buf, p.PayerKeyHash[:]...)
	var timeout [8]byte
	binary.LittleEndian.PutUint64(timeout[:], p.Timeout)
	buf = append(buf, timeout[:]...)
	buf = append(buf, byte(p.Scheme), p.Version)
	return buf
}

// DecodeParams parses a 50-byte channel parameter block. The length and the
// scheme tag are checked before anything else; a bad length is a malformed
// block, never a partial parse.
func DecodeParams(raw []byte) (*ChannelParams, error) {
	if len(raw) != ParamsSize {
		return nil, fmt.Errorf("%w: got %d", ErrParamsLength, len(raw))
	}

	p := &ChannelParams{
		Timeout: binary.LittleEndian.Uint64(raw[40:48]),
		Scheme:  AuthScheme(raw[48]),
		Version: raw[49],
	}
	copy(p.PayeeAuthHash[:], raw[0:20])
	copy(p.PayerKeyHash[:], raw[20:40])

	if !p.Scheme.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownScheme, raw[48])
	}
	return p, nil
}
