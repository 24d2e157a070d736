package input

import (
	"testing"

	"github.com/shaojunda/spillman-channel/wire"
	"github.com/stretchr/testify/require"
)

// testMultisig builds a descriptor over freshly generated signers.
func testMultisig(t *testing.T, requireFirstN, threshold uint8,
	numKeys int) (*MultisigDesc, []*MemorySigner) {

	t.Helper()

	signers := make([]*MemorySigner, numKeys)
	desc := &MultisigDesc{
		RequireFirstN: requireFirstN,
		Threshold:     threshold,
		KeyHashes:     make([][KeyHashSize]byte, numKeys),
	}
	for i := range signers {
		signers[i] = testSigner(t)
		desc.KeyHashes[i] = signers[i].KeyHash()
	}
	return desc, signers
}

// signWith collects one signature per passed signer over the digest.
func signWith(t *testing.T, digest wire.Hash,
	signers ...*MemorySigner) []Signature {

	t.Helper()

	sigs := make([]Signature, len(signers))
	for i, signer := range signers {
		var err error
		sigs[i], err = signer.SignDigest(digest)
		require.NoError(t, err)
	}
	return sigs
}

// TestMultisigDescRoundTrip asserts that Encode and DecodeMultisigDesc are
// inverses and that the committed hash is stable across the round trip.
func TestMultisigDescRoundTrip(t *testing.T) {
	t.Parallel()

	desc, _ := testMultisig(t, 1, 2, 3)

	decoded, err := DecodeMultisigDesc(desc.Encode())
	require.NoError(t, err)
	require.Equal(t, desc, decoded)
	require.Equal(t, desc.Hash(), decoded.Hash())
}

// TestMultisigDescValidate covers the structural invariants.
func TestMultisigDescValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		mutate func(*MultisigDesc)
	}{{
		name:   "bad version",
		mutate: func(d *MultisigDesc) { d.Version = 1 },
	}, {
		name:   "no keys",
		mutate: func(d *MultisigDesc) { d.KeyHashes = nil },
	}, {
		name:   "zero threshold",
		mutate: func(d *MultisigDesc) { d.Threshold = 0 },
	}, {
		name:   "threshold above key count",
		mutate: func(d *MultisigDesc) { d.Threshold = 4 },
	}, {
		name:   "require-first above threshold",
		mutate: func(d *MultisigDesc) { d.RequireFirstN = 3 },
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			desc, _ := testMultisig(t, 1, 2, 3)
			require.NoError(t, desc.Validate())

			tc.mutate(desc)
			require.ErrorIs(
				t, desc.Validate(), ErrInvalidMultisigDesc,
			)
		})
	}
}

// TestDecodeMultisigDescLength asserts that the declared key count fixes
// the expected length exactly.
func TestDecodeMultisigDescLength(t *testing.T) {
	t.Parallel()

	desc, _ := testMultisig(t, 0, 2, 3)
	encoded := desc.Encode()

	_, err := DecodeMultisigDesc(encoded[:len(encoded)-1])
	require.ErrorIs(t, err, ErrInvalidMultisigDesc)

	_, err = DecodeMultisigDesc(append(encoded, 0))
	require.ErrorIs(t, err, ErrInvalidMultisigDesc)

	_, err = DecodeMultisigDesc(encoded[:3])
	require.ErrorIs(t, err, ErrInvalidMultisigDesc)
}

// TestVerifySigsThreshold exercises the 2-of-3 happy path and its failure
// modes: too few signatures, duplicated signers and unknown signers.
func TestVerifySigsThreshold(t *testing.T) {
	t.Parallel()

	desc, signers := testMultisig(t, 0, 2, 3)
	digest := wire.Blake256([]byte("refund digest"))

	// Any two distinct declared keys suffice.
	require.NoError(t, desc.VerifySigs(
		digest, signWith(t, digest, signers[0], signers[2]),
	))
	require.NoError(t, desc.VerifySigs(
		digest, signWith(t, digest, signers[2], signers[1]),
	))

	// One signature short.
	err := desc.VerifySigs(digest, signWith(t, digest, signers[0]))
	require.ErrorIs(t, err, ErrKeyHashMismatch)

	// The same key twice matches only once.
	err = desc.VerifySigs(
		digest, signWith(t, digest, signers[1], signers[1]),
	)
	require.ErrorIs(t, err, ErrKeyHashMismatch)

	// A signer outside the declared set contributes nothing.
	stranger := testSigner(t)
	err = desc.VerifySigs(
		digest, signWith(t, digest, signers[0], stranger),
	)
	require.ErrorIs(t, err, ErrKeyHashMismatch)
}

// TestVerifySigsRequireFirstN asserts that each of the first R declared
// keys must be among the signers, no matter how many others signed.
func TestVerifySigsRequireFirstN(t *testing.T) {
	t.Parallel()

	desc, signers := testMultisig(t, 1, 2, 3)
	digest := wire.Blake256([]byte("refund digest"))

	// Key 0 signing satisfies require-first-1.
	require.NoError(t, desc.VerifySigs(
		digest, signWith(t, digest, signers[0], signers[1]),
	))

	// Two valid signatures, but key 0 is missing.
	err := desc.VerifySigs(
		digest, signWith(t, digest, signers[1], signers[2]),
	)
	require.ErrorIs(t, err, ErrKeyHashMismatch)
}
