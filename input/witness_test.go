package input

import (
	"testing"

	"github.com/shaojunda/spillman-channel/wire"
	"github.com/stretchr/testify/require"
)

// TestWitnessSingleSigRoundTrip pins the single-sig witness to its exact
// 147-byte form and asserts Encode and DecodeWitness are inverses.
func TestWitnessSingleSigRoundTrip(t *testing.T) {
	t.Parallel()

	digest := wire.Blake256([]byte("digest"))
	payeeSig, err := testSigner(t).SignDigest(digest)
	require.NoError(t, err)
	payerSig, err := testSigner(t).SignDigest(digest)
	require.NoError(t, err)

	witness := &Witness{
		Path:      PathSettlement,
		PayeeSigs: []Signature{payeeSig},
		PayerSig:  payerSig,
	}

	encoded := witness.Encode()
	require.Len(t, encoded, SingleSigWitnessSize)
	require.Equal(t, EmptyWitnessArgs[:], encoded[:WitnessHeaderSize])
	require.Equal(t, byte(PathSettlement), encoded[WitnessHeaderSize])
	require.Equal(t, payeeSig[:], encoded[17:82])
	require.Equal(t, payerSig[:], encoded[82:147])

	decoded, err := DecodeWitness(encoded, SchemeSingleSig)
	require.NoError(t, err)
	require.Equal(t, witness, decoded)
}

// TestWitnessMultisigRoundTrip asserts the multisig layout: descriptor,
// then threshold payee signatures, then the payer signature.
func TestWitnessMultisigRoundTrip(t *testing.T) {
	t.Parallel()

	desc, signers := testMultisig(t, 0, 2, 3)
	digest := wire.Blake256([]byte("digest"))
	payeeSigs := signWith(t, digest, signers[0], signers[1])
	payerSig, err := testSigner(t).SignDigest(digest)
	require.NoError(t, err)

	witness := &Witness{
		Path:      PathRefund,
		Desc:      desc,
		PayeeSigs: payeeSigs,
		PayerSig:  payerSig,
	}

	encoded := witness.Encode()
	wantLen := WitnessHeaderSize + 1 + desc.SerializedSize() +
		3*SignatureSize
	require.Len(t, encoded, wantLen)

	decoded, err := DecodeWitness(encoded, SchemeMultisigV2)
	require.NoError(t, err)
	require.Equal(t, witness, decoded)
}

// TestDecodeWitnessRejects covers the malformed classes: bad placeholder
// header, wrong total length and truncation.
func TestDecodeWitnessRejects(t *testing.T) {
	t.Parallel()

	digest := wire.Blake256([]byte("digest"))
	sig, err := testSigner(t).SignDigest(digest)
	require.NoError(t, err)

	valid := (&Witness{
		Path:      PathSettlement,
		PayeeSigs: []Signature{sig},
		PayerSig:  sig,
	}).Encode()

	// Corrupted placeholder header.
	badHeader := append([]byte(nil), valid...)
	badHeader[0] = 0xff
	_, err = DecodeWitness(badHeader, SchemeSingleSig)
	require.ErrorIs(t, err, ErrWitnessHeader)

	// One byte short of the exact single-sig size.
	_, err = DecodeWitness(valid[:len(valid)-1], SchemeSingleSig)
	require.ErrorIs(t, err, ErrWitnessLength)

	// One byte over.
	_, err = DecodeWitness(append(valid, 0), SchemeSingleSig)
	require.ErrorIs(t, err, ErrWitnessLength)

	// Shorter than any witness can be.
	_, err = DecodeWitness(valid[:20], SchemeSingleSig)
	require.ErrorIs(t, err, ErrWitnessLength)

	// A single-sig witness under a multisig scheme: the first payload
	// bytes are signature material, not a descriptor, so the derived
	// length cannot line up.
	_, err = DecodeWitness(valid, SchemeMultisigV2)
	require.ErrorIs(t, err, ErrWitnessLength)
}

// TestDecodeWitnessMultisigLength asserts the total length is derived from
// the declared threshold and key count before anything is parsed.
func TestDecodeWitnessMultisigLength(t *testing.T) {
	t.Parallel()

	desc, signers := testMultisig(t, 0, 2, 3)
	digest := wire.Blake256([]byte("digest"))
	payerSig, err := testSigner(t).SignDigest(digest)
	require.NoError(t, err)

	witness := &Witness{
		Path:      PathRefund,
		Desc:      desc,
		PayeeSigs: signWith(t, digest, signers[0], signers[1]),
		PayerSig:  payerSig,
	}
	valid := witness.Encode()

	_, err = DecodeWitness(valid[:len(valid)-1], SchemeMultisigV2)
	require.ErrorIs(t, err, ErrWitnessLength)

	_, err = DecodeWitness(append(valid, 0), SchemeMultisigV2)
	require.ErrorIs(t, err, ErrWitnessLength)

	// Fewer signatures than the declared threshold.
	short := &Witness{
		Path:      PathRefund,
		Desc:      desc,
		PayeeSigs: signWith(t, digest, signers[0]),
		PayerSig:  payerSig,
	}
	_, err = DecodeWitness(short.Encode(), SchemeMultisigV2)
	require.ErrorIs(t, err, ErrWitnessLength)
}

// TestDecodeWitnessPreservesUnknownPath asserts that an undefined path tag
// still decodes; rejecting it by tag is a validation decision, not a parse
// failure.
func TestDecodeWitnessPreservesUnknownPath(t *testing.T) {
	t.Parallel()

	digest := wire.Blake256([]byte("digest"))
	sig, err := testSigner(t).SignDigest(digest)
	require.NoError(t, err)

	raw := (&Witness{
		Path:      UnlockPath(0x02),
		PayeeSigs: []Signature{sig},
		PayerSig:  sig,
	}).Encode()

	decoded, err := DecodeWitness(raw, SchemeSingleSig)
	require.NoError(t, err)
	require.Equal(t, UnlockPath(0x02), decoded.Path)
}
